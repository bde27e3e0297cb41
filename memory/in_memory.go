package memory

import (
	"context"
	"sync"

	"github.com/hupe1980/agentroom/core"
)

// InMemoryStore is a process-local RecordStore. Records are copied on the
// way in and out. Suitable for tests and ephemeral demo servers.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]core.MemoryRecord
}

// NewInMemoryStore creates an empty in-memory record store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]core.MemoryRecord)}
}

// Load returns a copy of the record for name.
func (s *InMemoryStore) Load(_ context.Context, name string) (*core.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[name]
	if !ok {
		return nil, core.ErrRecordNotFound
	}
	return &core.MemoryRecord{
		LongTerm:    core.CloneMessages(rec.LongTerm),
		ToolHistory: core.CloneMessages(rec.ToolHistory),
	}, nil
}

// Save stores a copy of rec under name.
func (s *InMemoryStore) Save(_ context.Context, name string, rec *core.MemoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[name] = core.MemoryRecord{
		LongTerm:    core.CloneMessages(rec.LongTerm),
		ToolHistory: core.CloneMessages(rec.ToolHistory),
	}
	return nil
}

// Delete removes the record for name.
func (s *InMemoryStore) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, name)
}
