package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/blackwell-systems/fsauditd/internal/audit"
	"github.com/blackwell-systems/fsauditd/internal/store"
)

// setupTestStore creates an in-memory SQLite store for tests and registers
// cleanup with t.Cleanup so callers don't need explicit defer.
func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("setupTestStore: open: %v", err)
	}
	if err := st.CreateSchema(); err != nil {
		st.Close()
		t.Fatalf("setupTestStore: schema: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// memStore is an in-memory Store that can be told to fail.
type memStore struct {
	mu       sync.Mutex
	entries  []*audit.Entry
	failNext error
}

func (s *memStore) Insert(_ context.Context, e *audit.Entry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return 0, err
	}
	if err := e.Validate(); err != nil {
		return 0, err
	}
	cp := *e
	cp.ID = int64(len(s.entries) + 1)
	s.entries = append(s.entries, &cp)
	e.ID = cp.ID
	return cp.ID, nil
}

func (s *memStore) LastInserted(context.Context) (*audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return nil, nil
	}
	cp := *s.entries[len(s.entries)-1]
	return &cp, nil
}

func (s *memStore) all() []*audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*audit.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

var errDiskFull = errors.New("disk full")
