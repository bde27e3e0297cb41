package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/hupe1980/agentroom/core"
)

// Interface compliance (compile-time assertions)
var (
	_ core.RecordStore = (*InMemoryStore)(nil)
	_ core.RecordStore = (*FileStore)(nil)
	_ core.RecordStore = (*RedisStore)(nil)
)

func msg(i int) core.Message { return core.UserMessage(fmt.Sprintf("m%d", i)) }

func TestMemory_ShortTermBoundedFIFO(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		priorities := rapid.SliceOfN(rapid.IntRange(1, 3), 0, 3*ShortTermCapacity).Draw(rt, "priorities")

		m := New(context.Background(), "agent", NewInMemoryStore())
		for i, p := range priorities {
			m.AddShortTerm(msg(i), Priority(p))
			if m.ShortTermLen() > ShortTermCapacity {
				rt.Fatalf("short-term length %d exceeds %d", m.ShortTermLen(), ShortTermCapacity)
			}
		}

		got := m.ShortTerm()
		first := len(priorities) - len(got)
		for i, e := range got {
			// the survivors are exactly the most recent entries, in order
			if e.Message != msg(first+i) {
				rt.Fatalf("entry %d = %q, want %q", i, e.Message.Content, msg(first+i).Content)
			}
		}
	})
}

func TestMemory_EvictsOldestNotLowestPriority(t *testing.T) {
	m := New(context.Background(), "agent", NewInMemoryStore())
	m.AddShortTerm(core.UserMessage("oldest-high"), PriorityHigh)
	for i := 0; i < ShortTermCapacity; i++ {
		m.AddShortTerm(msg(i), PriorityLow)
	}
	entries := m.ShortTerm()
	require.Len(t, entries, ShortTermCapacity)
	assert.Equal(t, "m0", entries[0].Message.Content)
	assert.Equal(t, PriorityLow, entries[0].Priority)
}

func TestMemory_GettersReturnCopies(t *testing.T) {
	m := New(context.Background(), "agent", NewInMemoryStore())
	m.AddShortTerm(core.UserMessage("a"), PriorityLow)
	m.AddLongTerm(core.UserMessage("b"))
	m.AddToolHistory(core.UserMessage("c"))

	st := m.ShortTerm()
	st[0].Message.Content = "x"
	msgs := m.ShortTermMessages()
	msgs[0].Content = "x"
	lt := m.LongTerm()
	lt[0].Content = "x"
	th := m.ToolHistory()
	th[0].Content = "x"

	assert.Equal(t, "a", m.ShortTerm()[0].Message.Content)
	assert.Equal(t, "b", m.LongTerm()[0].Content)
	assert.Equal(t, "c", m.ToolHistory()[0].Content)
}

func TestMemory_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())

	m := New(ctx, "ResearchAssistant", store)
	m.AddShortTerm(core.UserMessage("working"), PriorityHigh)
	m.AddLongTerm(core.SystemMessage("summary"))
	m.AddToolHistory(core.UserMessage("search: paris"))

	require.NoError(t, m.Save(ctx))
	assert.Empty(t, m.ShortTerm())

	fresh := New(ctx, "ResearchAssistant", store)
	assert.Equal(t, m.LongTerm(), fresh.LongTerm())
	assert.Equal(t, m.ToolHistory(), fresh.ToolHistory())
	assert.Empty(t, fresh.ShortTerm())
}

func TestMemory_LoadMissingOrCorruptIsEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileStore(dir)

	m := New(ctx, "nobody", store)
	assert.Empty(t, m.LongTerm())
	assert.Empty(t, m.ToolHistory())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken_memory.json"), []byte("{not json"), 0o644))
	m = New(ctx, "broken", store)
	assert.NotNil(t, m.LongTerm())
	assert.Empty(t, m.LongTerm())
	assert.Empty(t, m.ToolHistory())
}

func TestMemory_ResetAndDropOldest(t *testing.T) {
	m := New(context.Background(), "agent", nil)
	m.AddShortTerm(core.UserMessage("a"), PriorityLow)
	m.AddShortTerm(core.UserMessage("b"), PriorityLow)
	m.AddLongTerm(core.UserMessage("kept"))

	e, ok := m.DropOldestShortTerm()
	assert.True(t, ok)
	assert.Equal(t, "a", e.Message.Content)

	m.ResetShortTerm()
	assert.Empty(t, m.ShortTerm())
	assert.Len(t, m.LongTerm(), 1)

	_, ok = m.DropOldestShortTerm()
	assert.False(t, ok)
}

func TestMemory_ForkIsIndependent(t *testing.T) {
	ctx := context.Background()
	m := New(ctx, "agent", NewInMemoryStore())
	m.AddShortTerm(core.UserMessage("shared"), PriorityLow)

	f := m.Fork(ctx)
	f.AddShortTerm(core.UserMessage("fork only"), PriorityLow)
	m.AddShortTerm(core.UserMessage("origin only"), PriorityLow)

	assert.Equal(t, []core.Message{core.UserMessage("shared"), core.UserMessage("fork only")}, f.ShortTermMessages())
	assert.Equal(t, []core.Message{core.UserMessage("shared"), core.UserMessage("origin only")}, m.ShortTermMessages())
	assert.Equal(t, "agent", f.Name())
}

func TestFilter_KeywordOrPriority(t *testing.T) {
	entries := []Entry{
		{Message: core.UserMessage("x marks the spot"), Priority: PriorityLow},
		{Message: core.UserMessage("nothing here"), Priority: PriorityHigh},
		{Message: core.UserMessage("nothing here either"), Priority: PriorityMedium},
		{Message: core.UserMessage("x and high"), Priority: PriorityHigh},
	}
	got := Filter(entries, []string{"x"}, 3)
	require.Len(t, got, 3)
	assert.Equal(t, entries[0], got[0])
	assert.Equal(t, entries[1], got[1])
	assert.Equal(t, entries[3], got[2])
}

func TestFilter_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		words := []string{"alpha", "beta", "x", "Question", ""}
		n := rapid.IntRange(0, 40).Draw(rt, "n")
		entries := make([]Entry, n)
		for i := range entries {
			entries[i] = Entry{
				Message:  core.UserMessage(rapid.SampledFrom(words).Draw(rt, "content")),
				Priority: Priority(rapid.IntRange(1, 3).Draw(rt, "priority")),
			}
		}
		minPriority := Priority(rapid.IntRange(1, 4).Draw(rt, "min"))
		got := Filter(entries, []string{"x"}, minPriority)

		want := 0
		for _, e := range entries {
			if e.Priority >= minPriority || e.Message.Content == "x" {
				want++
			}
		}
		if len(got) != want {
			rt.Fatalf("got %d entries, want %d", len(got), want)
		}
	})
}

func TestFileStore_SanitizesNames(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	assert.Equal(t, filepath.Join(dir, "passwd_memory.json"), s.Path("../../etc/passwd"))

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "../escape", &core.MemoryRecord{LongTerm: []core.Message{core.UserMessage("a")}}))
	rec, err := s.Load(ctx, "escape")
	require.NoError(t, err)
	assert.Len(t, rec.LongTerm, 1)
}

func TestInMemoryStore_NotFoundAndCopy(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	_, err := s.Load(ctx, "a")
	assert.ErrorIs(t, err, core.ErrRecordNotFound)

	rec := &core.MemoryRecord{LongTerm: []core.Message{core.UserMessage("a")}}
	require.NoError(t, s.Save(ctx, "a", rec))
	rec.LongTerm[0].Content = "mutated"

	got, err := s.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.LongTerm[0].Content)

	s.Delete("a")
	_, err = s.Load(ctx, "a")
	assert.ErrorIs(t, err, core.ErrRecordNotFound)
}
