package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrAlreadyAwaiting is returned by Expect while another human reply is outstanding.
var ErrAlreadyAwaiting = errors.New("already awaiting a human response")

// HumanRendezvous is the single-slot synchronization point between the step
// executor waiting on a human participant and the gateway delivering that
// participant's reply. At most one wait is outstanding and each reply is
// consumed exactly once.
type HumanRendezvous struct {
	mu       sync.Mutex
	expected string
	slot     chan string
}

// NewHumanRendezvous creates an idle rendezvous.
func NewHumanRendezvous() *HumanRendezvous {
	return &HumanRendezvous{slot: make(chan string, 1)}
}

// Expect registers name as the responder the session is waiting for.
func (r *HumanRendezvous) Expect(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.expected != "" {
		return fmt.Errorf("%w: %s", ErrAlreadyAwaiting, r.expected)
	}
	// drop a reply left over from an abandoned wait
	select {
	case <-r.slot:
	default:
	}
	r.expected = name
	return nil
}

// Expected returns the name of the awaited responder ("" when idle).
func (r *HumanRendezvous) Expected() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expected
}

// Deliver hands a reply to the waiting executor. It reports false when no
// reply is expected, so a second delivery for the same wait is rejected.
func (r *HumanRendezvous) Deliver(reply string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.expected == "" {
		return false
	}
	r.expected = ""
	r.slot <- reply
	return true
}

// Wait blocks until a reply is delivered, the timeout elapses or ctx is
// done. The boolean is false when no reply arrived; the wait is cleared in
// every case.
func (r *HumanRendezvous) Wait(ctx context.Context, timeout time.Duration) (string, bool) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case reply := <-r.slot:
		return reply, true
	case <-timer:
	case <-ctx.Done():
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.expected != "" {
		r.expected = ""
		return "", false
	}
	// delivered between the timeout firing and taking the lock
	select {
	case reply := <-r.slot:
		return reply, true
	default:
		return "", false
	}
}

// Cancel clears an outstanding wait without delivering a reply.
func (r *HumanRendezvous) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expected = ""
}
