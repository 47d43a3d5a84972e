package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hammamikhairi/voicecart/internal/logger"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// DefaultMemoryCapacity bounds the in-memory history.
const DefaultMemoryCapacity = 200

// MemoryStore is an in-memory history store. Safe for concurrent access.
// The oldest entries are dropped once capacity is reached.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	log      *logger.Logger
}

// NewMemoryStore creates an empty store holding at most capacity entries.
// A capacity <= 0 selects DefaultMemoryCapacity.
func NewMemoryStore(capacity int, log *logger.Logger) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity, log: log}
}

// Append records an entry, assigning an ID and time when missing.
func (s *MemoryStore) Append(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == s.capacity {
		s.entries = append(s.entries[:0], s.entries[1:]...)
	}
	s.entries = append(s.entries, e)
	s.log.Debug("history: recorded %q as %s", e.Transcript, e.Action)
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
