package core

type (
	// kvStore provides an abstraction of what the rep-cache expects
	// from some underlying KV store implementation.
	kvStore interface {
		// Drop removes all keys in the store
		Drop() error
		// Size reports about the size in bytes of the DB
		Size() uint64
		// Close the DB
		Close() error
		// Exists returns true if a key exists
		Exists([]byte) (bool, error)
		// Get the value for a key
		Get([]byte) ([]byte, error)
		// Set a key with some value
		Set([]byte, []byte) error
		// SetIfNotExists sets a key only when it does not exist yet
		SetIfNotExists([]byte, []byte) error
		// Delete removes a key
		Delete([]byte) error
		// AllKeys returns an iterator over all keys in the DB
		AllKeys() kvIterator
	}

	// kvIterator provides a simplified abstraction for some KV iterator
	kvIterator interface {
		Next() bool
		Item() ([]byte, []byte, error)
		Close() error
	}
)

// openKV opens a kvStore
func openKV(pth string) (kvStore, error) {
	return makeKVBadger(pth)
}
