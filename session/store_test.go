package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu      sync.Mutex
	created int
	evicted []string
}

func (o *recordingObserver) SessionCreated() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created++
}

func (o *recordingObserver) SessionEvicted(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.evicted = append(o.evicted, reason)
}

func TestStore_GetOrCreate(t *testing.T) {
	obs := &recordingObserver{}
	s := NewStore(func(o *Options) { o.Observer = obs })

	a, created := s.GetOrCreate("u1")
	require.True(t, created)
	b, created := s.GetOrCreate("u1")
	assert.False(t, created)
	assert.Same(t, a, b)
	assert.Equal(t, "u1", a.GlobalChannel())

	got, ok := s.Get("u1")
	assert.True(t, ok)
	assert.Same(t, a, got)

	_, ok = s.Get("u2")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, obs.created)
}

func TestStore_ConcurrentGetOrCreate(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.GetOrCreate("shared")
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, s.Len())
}

func TestStore_EvictCancelsAndWaits(t *testing.T) {
	obs := &recordingObserver{}
	s := NewStore(func(o *Options) { o.Observer = obs })
	sess, _ := s.GetOrCreate("u1")

	finished := make(chan struct{})
	sess.Go(func(ctx context.Context) {
		<-ctx.Done()
		close(finished)
	})

	require.True(t, s.Evict("u1"))
	select {
	case <-finished:
	default:
		t.Fatal("evict returned before the in-flight work finished")
	}
	assert.Error(t, sess.Context().Err())
	assert.False(t, s.Evict("u1"))
	assert.Equal(t, []string{ReasonExplicit}, obs.evicted)
}

func TestStore_EvictIdle(t *testing.T) {
	s := NewStore(func(o *Options) { o.TTL = time.Minute })

	idle, _ := s.GetOrCreate("idle")
	attached, _ := s.GetOrCreate("attached")
	s.GetOrCreate("fresh")
	attached.Attach()

	now := time.Now()
	assert.Equal(t, 0, s.EvictIdle(now))

	later := now.Add(2 * time.Minute)
	assert.Equal(t, 2, s.EvictIdle(later))
	assert.Equal(t, []string{"attached"}, s.UserIDs())
	assert.Error(t, idle.Context().Err())
}

func TestStore_RunJanitor(t *testing.T) {
	s := NewStore(func(o *Options) { o.TTL = time.Millisecond })
	s.GetOrCreate("u1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestStore_Close(t *testing.T) {
	obs := &recordingObserver{}
	s := NewStore(func(o *Options) { o.Observer = obs })
	s.GetOrCreate("a")
	s.GetOrCreate("b")

	s.Close()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, []string{ReasonShutdown, ReasonShutdown}, obs.evicted)
}

func TestStore_SessionContextInheritsParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	s := NewStore(func(o *Options) { o.Context = parent })
	sess, _ := s.GetOrCreate("u1")

	cancel()
	assert.Error(t, sess.Context().Err())
}
