package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/agentroom/core"
	"github.com/hupe1980/agentroom/logging"
)

// DefaultTTL is the idle time after which a detached session is evicted.
const DefaultTTL = 30 * time.Minute

// Eviction reasons reported to the Observer.
const (
	ReasonIdle     = "idle"
	ReasonExplicit = "explicit"
	ReasonShutdown = "shutdown"
)

// Observer is notified about the session lifecycle.
type Observer interface {
	SessionCreated()
	SessionEvicted(reason string)
}

type noopObserver struct{}

func (noopObserver) SessionCreated()       {}
func (noopObserver) SessionEvicted(string) {}

// Options configures a Store.
type Options struct {
	// TTL is the idle time before a detached session is evicted (DefaultTTL if <= 0).
	TTL time.Duration
	// Context is the parent of every session context.
	Context context.Context
	// OutboxSize bounds each session's outbound queue.
	OutboxSize int
	Observer   Observer
	Logger     logging.Logger
}

// Store is a process local, concurrency safe registry of sessions keyed by
// user id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session

	opts   Options
	logger logging.Logger
}

// NewStore creates an empty store.
func NewStore(optFns ...func(o *Options)) *Store {
	opts := Options{TTL: DefaultTTL, Context: context.Background()}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	return &Store{
		sessions: make(map[string]*core.Session),
		opts:     opts,
		logger:   logging.With(opts.Logger, "component", "session"),
	}
}

// GetOrCreate returns the session of userID, creating it on first contact.
// The boolean reports whether the session was created.
func (s *Store) GetOrCreate(userID string) (*core.Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[userID]
	s.mu.RUnlock()
	if ok {
		return sess, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		return sess, false
	}
	sess = core.NewSession(userID, func(o *core.SessionOptions) {
		o.Context = s.opts.Context
		o.OutboxSize = s.opts.OutboxSize
		o.Logger = s.opts.Logger
	})
	s.sessions[userID] = sess
	s.opts.Observer.SessionCreated()
	s.logger.Info("session.created", "user_id", userID)
	return sess, true
}

// Get returns an existing session.
func (s *Store) Get(userID string) (*core.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// Evict removes the session of userID, cancels it and waits for its
// in-flight work. It reports false if there was no such session.
func (s *Store) Evict(userID string) bool {
	return s.evict(userID, ReasonExplicit)
}

func (s *Store) evict(userID, reason string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if ok {
		delete(s.sessions, userID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	sess.Close()
	s.opts.Observer.SessionEvicted(reason)
	s.logger.Info("session.evicted", "user_id", userID, "reason", reason)
	return true
}

// EvictIdle evicts sessions without an attached channel whose last activity
// is older than the TTL. It returns the number of evicted sessions.
func (s *Store) EvictIdle(now time.Time) int {
	s.mu.RLock()
	var idle []string
	for id, sess := range s.sessions {
		if sess.Attached() == 0 && now.Sub(sess.LastSeen()) > s.opts.TTL {
			idle = append(idle, id)
		}
	}
	s.mu.RUnlock()

	n := 0
	for _, id := range idle {
		if s.evict(id, ReasonIdle) {
			n++
		}
	}
	return n
}

// Run evicts idle sessions every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := s.EvictIdle(now); n > 0 {
				s.logger.Debug("session.janitor", "evicted", n, "remaining", s.Len())
			}
		}
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// UserIDs returns the ids of all live sessions, sorted.
func (s *Store) UserIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close evicts every session.
func (s *Store) Close() {
	for _, id := range s.UserIDs() {
		s.evict(id, ReasonShutdown)
	}
}
