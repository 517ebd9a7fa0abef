// Package store persists serialized checkpoints by connector name.
//
// The checkpoint package never performs I/O; a traversal runner loads the
// token before a pass and saves the new one after it. Backends:
//
//   - FileStore: one file per name, atomic rename, previous token kept as .bak
//   - EncryptedFileStore: a single AES-GCM file keyed by a PBKDF2 passphrase
//   - KeyringStore: the system keychain
//   - RedisStore: one string key per name under a prefix
//   - SQLiteStore: a cursors(name, token, updated_at) table
//
// Manager chains several backends with fallback. Open builds the backend
// selected in the store config section.
//
// Saving an empty token deletes the entry, since an empty token means the
// traversal has nothing to resume from.
package store
