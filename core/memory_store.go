package core

import (
	"context"
	"errors"
)

// ErrRecordNotFound is returned by a RecordStore when no record exists for a name.
var ErrRecordNotFound = errors.New("memory record not found")

// MemoryRecord is the durable part of an agent's memory.
type MemoryRecord struct {
	LongTerm    []Message `json:"long_term_memory"`
	ToolHistory []Message `json:"tool_history"`
}

// RecordStore persists one MemoryRecord per agent name. Implementations only
// need to be safe for concurrent access across distinct names.
type RecordStore interface {
	Load(ctx context.Context, name string) (*MemoryRecord, error)
	Save(ctx context.Context, name string, rec *MemoryRecord) error
}
