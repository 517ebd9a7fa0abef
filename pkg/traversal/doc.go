// Package traversal runs resumable incremental passes over a repository.
//
// A pass resumes from a checkpoint token, feeds one batch of inserted items
// from the current channel to the index, then one batch of deleted items.
// Channels with nothing new are skipped until one yields items or the ring
// has been walked once. When an item fails, its checkpoint update is rolled
// back and the batch stops, so the item is picked up again next time.
//
// Runner adds persistence: it loads the token for a connector name from a
// store, runs a pass and saves the new token when it changed.
package traversal
