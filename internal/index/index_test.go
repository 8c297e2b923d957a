package index

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memerrors "github.com/cadre-oss/agentmem/internal/errors"
	"github.com/cadre-oss/agentmem/internal/event"
	"github.com/cadre-oss/agentmem/internal/memory"
	"github.com/cadre-oss/agentmem/internal/telemetry"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func newIndexedStore(t *testing.T, idx *Index) *memory.Store {
	t.Helper()
	bus := event.NewBus(nil)
	bus.Register(idx.Hook())
	cfg := memory.DefaultConfig(t.TempDir())
	cfg.UserRoot = t.TempDir()
	s, err := memory.NewStore(cfg, memory.WithEventBus(bus))
	require.NoError(t, err)
	return s
}

func TestIndex_SyncAndSearch(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Sync(ctx, memory.AgentRef("qa"), []string{"Run go test", "lint with golangci"}))
	require.NoError(t, idx.Sync(ctx, memory.ProjectRef(), []string{"go 1.25 everywhere"}))

	hits, err := idx.Search(ctx, "GO", Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, memory.ProjectRef(), hits[0].Ref)
	assert.Equal(t, "Run go test", hits[1].Entry)
	assert.Equal(t, 0, hits[1].Position)

	hits, err = idx.Search(ctx, "go", Filter{Scope: memory.ScopeAgent, AgentID: "qa", Limit: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Run go test", hits[0].Entry)

	// Resync replaces rows.
	require.NoError(t, idx.Sync(ctx, memory.AgentRef("qa"), []string{"nothing relevant"}))
	hits, err = idx.Search(ctx, "golangci", Filter{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_SearchEscapesWildcards(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Sync(ctx, memory.AgentRef("qa"), []string{"coverage 100%", "coverage high"}))

	hits, err := idx.Search(ctx, "100%", Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hits, err = idx.Search(ctx, "e_h", Filter{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = idx.Search(ctx, "  ", Filter{})
	assert.ErrorIs(t, err, memerrors.ErrValidation)
}

func TestIndex_HookFollowsStore(t *testing.T) {
	idx := openTestIndex(t)
	s := newIndexedStore(t, idx)
	ctx := telemetry.ContextWithTrace(context.Background(), telemetry.NewTraceContext("test"))
	ref := memory.AgentRef("engineer")

	require.NoError(t, s.Update(ctx, ref, "prefer table tests"))
	require.NoError(t, s.Update(ctx, ref, "deprecated: use make"))
	require.Error(t, s.Update(ctx, ref, "two\nlines"))

	hits, err := idx.Search(ctx, "deprecated", Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	_, err = s.Prune(ctx, ref, memory.Contains("deprecated"))
	require.NoError(t, err)
	hits, err = idx.Search(ctx, "deprecated", Filter{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, s.Clear(ctx, ref))
	hits, err = idx.Search(ctx, "table", Filter{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	ops, err := idx.History(ctx, ref, 10)
	require.NoError(t, err)
	require.Len(t, ops, 5)
	assert.Equal(t, "cleared", ops[0].Op)
	assert.Equal(t, "pruned", ops[1].Op)
	assert.Equal(t, 1, ops[1].Count)
	assert.Equal(t, "rejected", ops[2].Op)
	assert.Equal(t, memerrors.CodeValidation, ops[2].Status)
	assert.Equal(t, "updated", ops[4].Op)
	assert.Equal(t, telemetry.OpID(ctx), ops[0].OpID)
	assert.NotEqual(t, ops[0].ID, ops[1].ID)
}

func TestIndex_Rebuild(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	cfg := memory.DefaultConfig(t.TempDir())
	s, err := memory.NewStore(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, memory.ProjectRef(), "shared fact"))
	require.NoError(t, s.Update(ctx, memory.AgentRef("qa"), "qa fact"))
	require.NoError(t, idx.Sync(ctx, memory.AgentRef("gone"), []string{"stale fact"}))

	n, err := idx.Rebuild(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hits, err := idx.Search(ctx, "fact", Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "shared fact", hits[0].Entry)
	assert.Equal(t, "qa fact", hits[1].Entry)

	ops, err := idx.History(ctx, memory.AgentRef("qa"), 0)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "reindex", ops[0].Op)
}

func TestIndex_HookRequiresSnapshot(t *testing.T) {
	idx := openTestIndex(t)
	err := idx.Hook().Handle(event.NewEvent(event.MemoryUpdated, map[string]interface{}{
		"scope": "agent", "agent": "qa",
	}))
	assert.Error(t, err)
}

func TestIndex_SearchFoldsUnicodeCase(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Sync(ctx, memory.AgentRef("qa"), []string{"Ärger mit ÜBERGRÖSSE", "plain ascii"}))

	for _, q := range []string{"ärger", "ÄRGER", "übergrösse"} {
		hits, err := idx.Search(ctx, q, Filter{})
		require.NoError(t, err, q)
		require.Len(t, hits, 1, q)
		assert.Equal(t, "Ärger mit ÜBERGRÖSSE", hits[0].Entry, "original text is returned")
	}
	assert.True(t, memory.Contains("übergrösse")("Ärger mit ÜBERGRÖSSE"))
}

func TestIndex_UpgradesIndexWithoutFoldedColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE entries (
		scope TEXT NOT NULL, agent TEXT NOT NULL, position INTEGER NOT NULL, content TEXT NOT NULL,
		PRIMARY KEY (scope, agent, position))`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO entries VALUES ('agent', 'qa', 0, 'Öffne den Port')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	idx, err := Open(path)
	require.NoError(t, err)
	defer idx.Close()

	hits, err := idx.Search(context.Background(), "öffne", Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Öffne den Port", hits[0].Entry)
}

func TestIndex_HookKeepsNewestSnapshot(t *testing.T) {
	idx := openTestIndex(t)
	bus := event.NewBus(nil)

	// Holds back the event for the first write until the second write has
	// been committed and indexed.
	held := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	bus.Register(event.NewFuncHook("hold-first", []event.EventType{event.MemoryUpdated}, true, func(ev event.Event) error {
		if entries, _ := ev.Data["entries"].([]string); len(entries) == 1 {
			once.Do(func() { close(held) })
			<-release
		}
		return nil
	}))
	bus.Register(idx.Hook())

	cfg := memory.DefaultConfig(t.TempDir())
	s, err := memory.NewStore(cfg, memory.WithEventBus(bus))
	require.NoError(t, err)
	ctx := context.Background()
	ref := memory.AgentRef("api")

	firstDone := make(chan error, 1)
	go func() { firstDone <- s.Update(ctx, ref, "first") }()
	<-held

	require.NoError(t, s.Update(ctx, ref, "second"))
	close(release)
	select {
	case err := <-firstDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("first update never returned")
	}

	l, err := s.List(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, l.Entries)

	for _, q := range []string{"first", "second"} {
		hits, err := idx.Search(ctx, q, Filter{})
		require.NoError(t, err)
		assert.Len(t, hits, 1, "index should hold %q", q)
	}

	// Journal follows commit order, not delivery order.
	ops, err := idx.History(ctx, ref, 10)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Greater(t, ops[0].Size, ops[1].Size)
}
