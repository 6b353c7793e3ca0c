package fixtures

import (
	"errors"
	"sync"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// ErrStoreClosed is returned after Close.
var ErrStoreClosed = errors.New("store closed")

// MemoryStore is an in-memory domain.StateStore.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]byte
	putErr  error
	closed  bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

// Get returns a copy of the named record.
func (s *MemoryStore) Get(name string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrStoreClosed
	}
	v, ok := s.records[name]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Put stores a copy of value.
func (s *MemoryStore) Put(name string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if s.putErr != nil {
		return s.putErr
	}
	s.records[name] = append([]byte(nil), value...)
	return nil
}

// Delete removes records.
func (s *MemoryStore) Delete(names ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	for _, n := range names {
		delete(s.records, n)
	}
	return nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// FailPuts makes Put return err until called with nil.
func (s *MemoryStore) FailPuts(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putErr = err
}

// Has reports whether a record exists.
func (s *MemoryStore) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[name]
	return ok
}

var _ domain.StateStore = (*MemoryStore)(nil)
