package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memerrors "github.com/cadre-oss/agentmem/internal/errors"
	"github.com/cadre-oss/agentmem/internal/event"
	"github.com/cadre-oss/agentmem/internal/telemetry"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	cfg := DefaultConfig(t.TempDir())
	cfg.UserRoot = t.TempDir()
	s, err := NewStore(cfg, opts...)
	require.NoError(t, err)
	return s
}

func TestStore_UpdateThenList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ref := AgentRef("engineer")

	require.NoError(t, s.Update(ctx, ref, "uses go 1.25"))
	require.NoError(t, s.Update(ctx, ref, "tests live next to code"))

	l, err := s.List(ctx, ref)
	require.NoError(t, err)
	assert.True(t, l.Exists)
	assert.Equal(t, []string{"uses go 1.25", "tests live next to code"}, l.Entries)
	assert.Equal(t, "# Engineer Agent Memory", l.Header)

	raw, err := os.ReadFile(filepath.Join(s.Config().ProjectRoot, ".claude-mpm", "memories", "engineer.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Engineer Agent Memory\n- uses go 1.25\n- tests live next to code\n", string(raw))
	assert.Equal(t, len(raw), l.Size)
}

func TestStore_ThreeEntriesInInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ref := AgentRef("engineer")

	for _, e := range []string{"first", "second", "third"} {
		require.NoError(t, s.Update(ctx, ref, e))
	}
	l, err := s.List(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, l.Entries)
}

func TestStore_UpdateAppendsExactlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ref := ProjectRef()

	require.NoError(t, s.Update(ctx, ref, "a"))
	require.NoError(t, s.Update(ctx, ref, "b"))
	require.NoError(t, s.Update(ctx, ref, "a"))

	l, err := s.List(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "a"}, l.Entries)
	assert.Equal(t, "a", l.Entries[len(l.Entries)-1])
}

func TestStore_ListUnseen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	l, err := s.List(ctx, AgentRef("qa"))
	require.NoError(t, err)
	assert.False(t, l.Exists)
	assert.Empty(t, l.Entries)
	assert.Zero(t, l.Size)

	_, err = s.List(ctx, AgentRef("qa"), RequireExisting())
	assert.ErrorIs(t, err, memerrors.ErrNotFound)
}

func TestStore_RejectsInvalidEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ref := AgentRef("engineer")
	require.NoError(t, s.Update(ctx, ref, "keep me"))
	path, err := s.Path(ref)
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	for _, entry := range []string{"", "   ", "line one\nline two", "trailing\n", "cr\rhere", string([]byte{0xff, 0xfe})} {
		err := s.Update(ctx, ref, entry)
		assert.ErrorIs(t, err, memerrors.ErrValidation, "entry %q", entry)
	}

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStore_CapacityCeiling(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ref := AgentRef("engineer")

	entry := strings.Repeat("x", 1000)
	var err error
	n := 0
	for ; n < 200; n++ {
		if err = s.Update(ctx, ref, entry); err != nil {
			break
		}
	}
	require.ErrorIs(t, err, memerrors.ErrCapacityExceeded)
	assert.NotEmpty(t, memerrors.Suggestion(err))

	l, err := s.List(ctx, ref)
	require.NoError(t, err)
	assert.Len(t, l.Entries, n)
	assert.LessOrEqual(t, l.Size, DefaultMaxBytes)
	assert.Greater(t, l.Size+len(entry)+3, DefaultMaxBytes)
}

func TestStore_OversizedSingleEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ref := AgentRef("engineer")
	require.NoError(t, s.Update(ctx, ref, "small"))

	before, err := s.SizeStatus(ctx, ref)
	require.NoError(t, err)

	err = s.Update(ctx, ref, strings.Repeat("y", 81*1024))
	require.ErrorIs(t, err, memerrors.ErrCapacityExceeded)

	after, err := s.SizeStatus(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, before.Size, after.Size)
}

func TestStore_Clear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ref := UserRef("engineer")
	require.NoError(t, s.Update(ctx, ref, "one"))
	require.NoError(t, s.Update(ctx, ref, "two"))

	require.NoError(t, s.Clear(ctx, ref))

	l, err := s.List(ctx, ref)
	require.NoError(t, err)
	assert.True(t, l.Exists, "clear keeps the file")
	assert.Empty(t, l.Entries)
	assert.Equal(t, "# Engineer User Memory", l.Header)
}

func TestStore_ClearUnseenCreatesHeaderOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Clear(ctx, ProjectRef()))
	raw, err := os.ReadFile(filepath.Join(s.Config().ProjectRoot, "CLAUDE.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Project Memory\n", string(raw))
}

func TestStore_Prune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ref := AgentRef("qa")
	for _, e := range []string{"old: flaky test", "run go test ./...", "old: skip lint"} {
		require.NoError(t, s.Update(ctx, ref, e))
	}

	pred, err := MatchGlob("old:*")
	require.NoError(t, err)
	n, err := s.Prune(ctx, ref, pred)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	l, err := s.List(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"run go test ./..."}, l.Entries)

	n, err = s.Prune(ctx, ref, Contains("nothing matches"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_PruneUnseenIsNoop(t *testing.T) {
	s := newTestStore(t)
	n, err := s.Prune(context.Background(), AgentRef("ghost"), Contains("x"))
	require.NoError(t, err)
	assert.Zero(t, n)

	path, err := s.Path(AgentRef("ghost"))
	require.NoError(t, err)
	assert.NoFileExists(t, path)
}

func TestStore_ConsolidateIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ref := AgentRef("engineer")
	for _, e := range []string{"a", "b", "a", "c", "b"} {
		require.NoError(t, s.Update(ctx, ref, e))
	}

	require.NoError(t, s.Consolidate(ctx, ref, DedupExact))
	first, err := s.List(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, first.Entries)

	require.NoError(t, s.Consolidate(ctx, ref, DedupExact))
	second, err := s.List(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, first.Entries, second.Entries)
	assert.Equal(t, first.Size, second.Size)
}

func TestStore_ConsolidateRejectsBadMerge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ref := AgentRef("engineer")
	require.NoError(t, s.Update(ctx, ref, "a"))

	err := s.Consolidate(ctx, ref, func(context.Context, []string) ([]string, error) {
		return []string{"two\nlines"}, nil
	})
	assert.ErrorIs(t, err, memerrors.ErrValidation)

	err = s.Consolidate(ctx, ref, func(context.Context, []string) ([]string, error) {
		return nil, errors.New("model unavailable")
	})
	assert.ErrorIs(t, err, memerrors.ErrMergeFailed)

	err = s.Consolidate(ctx, ref, func(context.Context, []string) ([]string, error) {
		return []string{strings.Repeat("z", DefaultMaxBytes)}, nil
	})
	assert.ErrorIs(t, err, memerrors.ErrCapacityExceeded)

	l, err := s.List(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, l.Entries)
}

func TestStore_ConsolidateKeepsFileWhenCommandPrintsNothing(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	s := newTestStore(t)
	ctx := context.Background()
	ref := AgentRef("engineer")
	require.NoError(t, s.Update(ctx, ref, "a"))
	require.NoError(t, s.Update(ctx, ref, "b"))

	err := s.Consolidate(ctx, ref, NewExecMerger("true").Merge)
	require.ErrorIs(t, err, memerrors.ErrMergeFailed)

	l, err := s.List(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, l.Entries)
}

func TestStore_SizeStatus(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.Limits = Limits{WarnBytes: 100, CriticalBytes: 200, MaxBytes: 300}
	s, err := NewStore(cfg)
	require.NoError(t, err)
	ctx := context.Background()
	ref := AgentRef("engineer")

	u, err := s.SizeStatus(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, u.Status)

	require.NoError(t, s.Update(ctx, ref, strings.Repeat("w", 90)))
	u, err = s.SizeStatus(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, StatusWarn, u.Status)

	require.NoError(t, s.Update(ctx, ref, strings.Repeat("c", 90)))
	u, err = s.SizeStatus(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, StatusCritical, u.Status)
	assert.Equal(t, 300-u.Size, u.Remaining)
}

func TestStore_HandWrittenFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := filepath.Join(s.Config().ProjectRoot, "CLAUDE.md")
	require.NoError(t, os.WriteFile(path, []byte("# House Rules\n\n- use tabs\nno bullet here\n"), 0o644))

	l, err := s.List(ctx, ProjectRef())
	require.NoError(t, err)
	assert.Equal(t, "# House Rules", l.Header)
	assert.Equal(t, []string{"use tabs", "no bullet here"}, l.Entries)

	require.NoError(t, s.Update(ctx, ProjectRef(), "new rule"))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# House Rules\n- use tabs\n- no bullet here\n- new rule\n", string(raw))
}

func TestStore_CorruptFile(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(s.Config().ProjectRoot, "CLAUDE.md")
	require.NoError(t, os.WriteFile(path, []byte{'#', ' ', 0xff, '\n'}, 0o644))

	_, err := s.List(context.Background(), ProjectRef())
	assert.ErrorIs(t, err, memerrors.ErrIO)
	assert.NotEmpty(t, memerrors.Suggestion(err))
}

func TestStore_InvalidRefs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, ref := range []Ref{
		AgentRef(""),
		AgentRef("../escape"),
		AgentRef("a/b"),
		{Scope: "team", AgentID: "x"},
	} {
		assert.ErrorIs(t, s.Update(ctx, ref, "x"), memerrors.ErrInvalidRef, "ref %v", ref)
	}

	cfg := DefaultConfig(t.TempDir())
	noUser, err := NewStore(cfg)
	require.NoError(t, err)
	_, err = noUser.List(ctx, UserRef("engineer"))
	assert.ErrorIs(t, err, memerrors.ErrInvalidRef)
}

func TestStore_ContextCancelled(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Update(ctx, ProjectRef(), "x"), context.Canceled)
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ref := AgentRef("engineer")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Update(ctx, ref, fmt.Sprintf("entry %d", i)))
		}(i)
	}
	wg.Wait()

	l, err := s.List(ctx, ref)
	require.NoError(t, err)
	assert.Len(t, l.Entries, 50)
}

func TestStore_Refs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, AgentRef("qa"), "x"))
	require.NoError(t, s.Update(ctx, AgentRef("engineer"), "x"))
	require.NoError(t, s.Update(ctx, ProjectRef(), "x"))
	require.NoError(t, s.Update(ctx, UserRef("engineer"), "x"))

	refs, err := s.Refs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Ref{ProjectRef(), AgentRef("engineer"), AgentRef("qa"), UserRef("engineer")}, refs)
}

func TestStore_EventsAndMetrics(t *testing.T) {
	bus := event.NewBus(nil)
	var mu sync.Mutex
	var got []event.Event
	bus.Register(event.NewFuncHook("capture", nil, true, func(ev event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
		return nil
	}))
	metrics := telemetry.NewMetrics()
	s := newTestStore(t, WithEventBus(bus), WithMetrics(metrics))
	ctx := context.Background()
	ref := AgentRef("engineer")

	require.NoError(t, s.Update(ctx, ref, "a"))
	require.Error(t, s.Update(ctx, ref, "bad\nentry"))
	_, err := s.Prune(ctx, ref, Exact("a"))
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx, ref))

	types := make([]event.EventType, len(got))
	for i, ev := range got {
		types[i] = ev.Type
	}
	assert.Equal(t, []event.EventType{
		event.MemoryUpdated, event.MemoryRejected, event.MemoryPruned, event.MemoryCleared,
	}, types)
	assert.Equal(t, "agent", got[0].String("scope"))
	assert.Equal(t, "engineer", got[0].String("agent"))
	assert.Equal(t, []string{"a"}, got[0].Data["entries"])
	assert.Equal(t, memerrors.CodeValidation, got[1].String("code"))

	assert.EqualValues(t, 1, metrics.Updates)
	assert.EqualValues(t, 1, metrics.RejectedUpdates)
	assert.EqualValues(t, 1, metrics.PrunedEntries)
	assert.EqualValues(t, 1, metrics.Clears)
}

func TestStore_BlockingHookFailureAfterWrite(t *testing.T) {
	bus := event.NewBus(nil)
	bus.Register(event.NewFuncHook("veto", []event.EventType{event.MemoryUpdated}, true, func(event.Event) error {
		return errors.New("nope")
	}))
	s := newTestStore(t, WithEventBus(bus))
	ctx := context.Background()

	err := s.Update(ctx, ProjectRef(), "written anyway")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "veto")

	l, err := s.List(ctx, ProjectRef())
	require.NoError(t, err)
	assert.Equal(t, []string{"written anyway"}, l.Entries)
}

func TestStore_MutationEventsCarryCommitOrder(t *testing.T) {
	bus := event.NewBus(nil)
	var mu sync.Mutex
	var seqs []uint64
	bus.Register(event.NewFuncHook("seq", []event.EventType{
		event.MemoryUpdated, event.MemoryPruned, event.MemoryCleared, event.MemoryConsolidated,
	}, true, func(ev event.Event) error {
		seq, ok := ev.Data["seq"].(uint64)
		require.True(t, ok, "%s has no seq", ev.Type)
		_, ok = ev.Data["at"].(time.Time)
		require.True(t, ok, "%s has no commit time", ev.Type)
		mu.Lock()
		seqs = append(seqs, seq)
		mu.Unlock()
		return nil
	}))
	s := newTestStore(t, WithEventBus(bus))
	ctx := context.Background()
	ref := AgentRef("qa")

	require.NoError(t, s.Update(ctx, ref, "a"))
	require.NoError(t, s.Update(ctx, ref, "a"))
	_, err := s.Prune(ctx, ref, Exact("nothing"))
	require.NoError(t, err)
	require.NoError(t, s.Consolidate(ctx, ref, DedupExact))
	require.NoError(t, s.Clear(ctx, ref))

	require.Len(t, seqs, 4, "a prune that removes nothing emits no event")
	for i := 1; i < len(seqs); i++ {
		assert.Greater(t, seqs[i], seqs[i-1])
	}
}
