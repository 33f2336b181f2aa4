package store

import "errors"

var (
	// ErrNotFound is returned when a key or location does not exist.
	ErrNotFound = errors.New("not found")
)

// KV is the persistence backend for small JSON blobs.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}
