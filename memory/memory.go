// Package memory implements the bounded conversational store owned by every
// agent plus the durable record stores backing its long-term part.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/hupe1980/agentroom/core"
	"github.com/hupe1980/agentroom/logging"
)

// ShortTermCapacity bounds the short-term buffer.
const ShortTermCapacity = 100

// Priority ranks a short-term entry for retrieval.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
)

// Entry is one short-term memory item.
type Entry struct {
	Message  core.Message `json:"message"`
	Priority Priority     `json:"priority"`
}

// Options configures a Memory.
type Options struct {
	Logger logging.Logger
}

// Memory is an agent's conversational store:
//   - short-term: working buffer, at most ShortTermCapacity entries, FIFO eviction
//   - long-term: append-only, persisted
//   - tool history: append-only, persisted
//
// All getters return copies. Save commits long-term memory and tool history
// to the RecordStore and clears the short-term buffer.
type Memory struct {
	name   string
	store  core.RecordStore
	logger logging.Logger

	mu          sync.RWMutex
	shortTerm   []Entry
	longTerm    []core.Message
	toolHistory []core.Message
}

// New creates the memory of agent name and loads its durable record.
func New(ctx context.Context, name string, store core.RecordStore, optFns ...func(o *Options)) *Memory {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if store == nil {
		store = NewInMemoryStore()
	}
	m := &Memory{
		name:   name,
		store:  store,
		logger: logging.With(opts.Logger, "component", "memory", "agent", name),
	}
	m.Load(ctx)
	return m
}

// Name returns the agent name the durable record is keyed by.
func (m *Memory) Name() string { return m.name }

// AddShortTerm appends msg, evicting the oldest entry past capacity.
func (m *Memory) AddShortTerm(msg core.Message, p Priority) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shortTerm = append(m.shortTerm, Entry{Message: msg, Priority: p})
	if over := len(m.shortTerm) - ShortTermCapacity; over > 0 {
		m.shortTerm = append(m.shortTerm[:0:0], m.shortTerm[over:]...)
	}
}

// AddLongTerm appends msg to long-term memory.
func (m *Memory) AddLongTerm(msg core.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.longTerm = append(m.longTerm, msg)
}

// AddToolHistory appends a tool invocation record.
func (m *Memory) AddToolHistory(msg core.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolHistory = append(m.toolHistory, msg)
}

// ShortTerm returns a copy of the short-term entries, oldest first.
func (m *Memory) ShortTerm() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, len(m.shortTerm))
	copy(out, m.shortTerm)
	return out
}

// ShortTermMessages returns the short-term messages without priorities.
func (m *Memory) ShortTermMessages() []core.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.Message, len(m.shortTerm))
	for i, e := range m.shortTerm {
		out[i] = e.Message
	}
	return out
}

// ShortTermLen returns the number of short-term entries.
func (m *Memory) ShortTermLen() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.shortTerm)
}

// LongTerm returns a copy of long-term memory.
func (m *Memory) LongTerm() []core.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.Message{}, m.longTerm...)
}

// ToolHistory returns a copy of the tool history.
func (m *Memory) ToolHistory() []core.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.Message{}, m.toolHistory...)
}

// ResetShortTerm clears the short-term buffer only.
func (m *Memory) ResetShortTerm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shortTerm = nil
}

// DropOldestShortTerm removes the oldest short-term entry. It reports false
// when the buffer is empty.
func (m *Memory) DropOldestShortTerm() (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.shortTerm) == 0 {
		return Entry{}, false
	}
	e := m.shortTerm[0]
	m.shortTerm = append(m.shortTerm[:0:0], m.shortTerm[1:]...)
	return e, true
}

// Fork returns a memory sharing name and store with a deep copy of the
// short-term buffer. Long-term state is reloaded from the store.
func (m *Memory) Fork(ctx context.Context) *Memory {
	f := &Memory{name: m.name, store: m.store, logger: m.logger}
	f.Load(ctx)
	f.shortTerm = m.ShortTerm()
	return f
}

// Save persists long-term memory and tool history, then clears short-term memory.
func (m *Memory) Save(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := &core.MemoryRecord{
		LongTerm:    append([]core.Message{}, m.longTerm...),
		ToolHistory: append([]core.Message{}, m.toolHistory...),
	}
	if err := m.store.Save(ctx, m.name, rec); err != nil {
		return err
	}
	m.shortTerm = nil
	m.logger.Debug("memory.save", "long_term", len(rec.LongTerm), "tool_history", len(rec.ToolHistory))
	return nil
}

// Load replaces long-term memory and tool history with the durable record.
// A missing or unreadable record yields empty sequences.
func (m *Memory) Load(ctx context.Context) {
	rec, err := m.store.Load(ctx, m.name)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.longTerm = []core.Message{}
	m.toolHistory = []core.Message{}
	if err != nil {
		if !isNotFound(err) {
			m.logger.Warn("memory.load.failed", "error", err)
		}
		return
	}
	if rec == nil {
		return
	}
	m.longTerm = append(m.longTerm, rec.LongTerm...)
	m.toolHistory = append(m.toolHistory, rec.ToolHistory...)
}

// Filter returns the entries whose content contains any keyword OR whose
// priority is at least minPriority. Order is preserved and every entry is
// returned at most once.
func Filter(entries []Entry, keywords []string, minPriority Priority) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Priority >= minPriority || containsAny(e.Message.Content, keywords) {
			out = append(out, e)
		}
	}
	return out
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}
