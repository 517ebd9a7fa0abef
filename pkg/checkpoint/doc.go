// Package checkpoint implements the resume cursor of an incremental
// repository traversal.
//
// A Checkpoint tracks the last inserted item per insertion channel (one
// channel per where clause partitioning the scan) and the last deleted item.
// Channels are visited round-robin; Advance moves to the next one and
// reports when the ring is back where it started.
//
// The most recent update can be undone with Restore, which lets a caller
// retry an item whose processing failed. There is no deeper history.
//
// Checkpoints travel as JSON tokens:
//
//	{"uuid":"0900000180000123","lastModified":"2009-06-01 12:00:00"}
//	{"index":1,"uuid":["0900000180000123",null],"lastModified":["2009-06-01 12:00:00",null]}
//
// The first, compact form is used for a single channel. Deletions add
// "uuidToRemove" and "lastRemoved". Tokens written before deletion dates
// were kept in UTC carry "lastRemoveDate" instead, which Parse shifts by
// Options.MigrationOffset.
//
// The package performs no I/O; callers persist the token themselves, for
// example with the store package.
package checkpoint
