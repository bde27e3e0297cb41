package model

import (
	"context"
	"fmt"
	"sync"
)

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Replies come from, in order: a queued script, a canned response keyed by
// the last message, or an echo of the last message.
type MockModel struct {
	info Info

	mu        sync.Mutex
	responses map[string]string
	script    []scripted
	requests  []Request
	usage     TokenUsage
}

type scripted struct {
	text string
	err  error
}

// NewMockModel constructs a MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Enqueue appends replies consumed one per Generate call.
func (m *MockModel) Enqueue(replies ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range replies {
		m.script = append(m.script, scripted{text: r})
	}
}

// EnqueueError makes the next Generate call fail with err.
func (m *MockModel) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{err: err})
}

// SetUsage sets the usage reported with every final response.
func (m *MockModel) SetUsage(u TokenUsage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = u
}

// Requests returns the requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func (m *MockModel) next(req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.script) > 0 {
		s := m.script[0]
		m.script = m.script[1:]
		return s.text, s.err
	}
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("no messages provided")
	}
	input := req.Messages[len(req.Messages)-1].Content
	if r, ok := m.responses[input]; ok {
		return r, nil
	}
	return fmt.Sprintf("Mock response to: %s", input), nil
}

// Generate implements Model; emits optional streaming char chunks then the final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		full, err := m.next(req)
		if err != nil {
			errCh <- err
			return
		}
		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: string(r)}:
				}
			}
		}
		m.mu.Lock()
		usage := m.usage
		m.mu.Unlock()
		respCh <- Response{Text: full, FinishReason: "stop", Usage: &usage}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
