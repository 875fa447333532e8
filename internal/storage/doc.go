// Package storage implements the durable credential store.
//
// A Store keeps one credential document per identity in an embedded backend
// selected by DSN:
//
//	badger://<dir>    Badger v3 LSM store (default for bare paths)
//	sqlite://<file>   SQLite via modernc.org/sqlite
//	memory://         Badger in-memory mode, for tests and dry runs
//
// The backend is opened lazily on first use. Live credentials can be sealed
// at rest with an AEAD cipher keyed by storage.encryption_key.
package storage
