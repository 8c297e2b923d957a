//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cadre-oss/agentmem/pkg/agentmem"
)

func TestMemoryPersistenceAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// --- Run 1: open, add entries, close ---
	m1, err := agentmem.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range []string{"uses chi for routing", "sqlite index is disposable", "uses chi for routing"} {
		if err := m1.Update(ctx, agentmem.AgentRef("architect"), e); err != nil {
			t.Fatal(err)
		}
	}
	m1.Close()

	// --- Run 2: a fresh instance sees all three entries ---
	m2, err := agentmem.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer m2.Close()

	l, err := m2.List(ctx, agentmem.AgentRef("architect"))
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Entries) != 3 {
		t.Fatalf("expected 3 persisted entries, got %d", len(l.Entries))
	}

	// Consolidation persists too
	if err := m2.Consolidate(ctx, agentmem.AgentRef("architect"), agentmem.DedupExact); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(l.Path)
	if err != nil {
		t.Fatal(err)
	}
	want := "# Architect Agent Memory\n- uses chi for routing\n- sqlite index is disposable\n"
	if string(raw) != want {
		t.Errorf("file content =\n%q\nwant\n%q", raw, want)
	}

	hits, err := m2.Search(ctx, "disposable")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("expected 1 search hit, got %d", len(hits))
	}
}

func TestConcurrentWriters(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	m, err := agentmem.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := m.Update(ctx, agentmem.ProjectRef(), fmt.Sprintf("entry %d", i)); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	l, err := m.List(ctx, agentmem.ProjectRef())
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Entries) != 20 {
		t.Errorf("expected 20 entries, got %d", len(l.Entries))
	}
	if _, err := os.Stat(filepath.Join(dir, "CLAUDE.md")); err != nil {
		t.Error(err)
	}
}
