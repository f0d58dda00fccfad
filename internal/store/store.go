// Package store implements the server's key-value map: an unordered,
// single-threaded mapping from byte-string keys to byte-string values.
// Nothing in this package is safe for concurrent use — the server is the
// only caller, from the single dispatch thread, per the concurrency model
// in the spec.
package store

// Store owns copies of every key and value it holds. SET always copies
// its arguments before insertion, so callers may reuse or discard the
// slices they pass in immediately after the call returns.
type Store struct {
	m map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{m: make(map[string][]byte)}
}

// Set copies key and value into freshly allocated storage and inserts
// them, replacing (and releasing, for the GC to reclaim) any prior value
// under the same key.
func (s *Store) Set(key, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	s.m[string(key)] = v
}

// Get returns the stored value for key and whether it was present. The
// returned slice is owned by the store; callers that need to keep it past
// the next mutating call must copy it.
func (s *Store) Get(key []byte) ([]byte, bool) {
	v, ok := s.m[string(key)]
	return v, ok
}

// Len reports the number of keys currently stored, for the admin metrics
// surface.
func (s *Store) Len() int {
	return len(s.m)
}
