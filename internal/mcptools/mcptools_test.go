package mcptools

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadre-oss/agentmem/internal/event"
	"github.com/cadre-oss/agentmem/internal/index"
	"github.com/cadre-oss/agentmem/internal/memory"
	"github.com/cadre-oss/agentmem/internal/testutil"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

func newTestStore(t *testing.T, opts ...memory.Option) *memory.Store {
	t.Helper()
	return testutil.NewTestHarness(t, opts...).Store
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func call(t *testing.T, handle func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	res, err := handle(context.Background(), makeReq(args))
	require.NoError(t, err, "tool errors are reported in the result")
	require.NotNil(t, res)
	return res
}

// ─── Definitions ─────────────────────────────────────────────────────────────

func TestDefinitions(t *testing.T) {
	store := newTestStore(t)
	loader := memory.NewLoader(store, memory.LoaderConfig{}, nil)

	tests := []struct {
		def      mcp.Tool
		name     string
		required []string
	}{
		{NewListTool(store).Definition(), "memory_list", []string{"scope"}},
		{NewAddTool(store).Definition(), "memory_add", []string{"scope", "entry"}},
		{NewPruneTool(store).Definition(), "memory_prune", []string{"scope"}},
		{NewClearTool(store).Definition(), "memory_clear", []string{"scope", "confirm"}},
		{NewConsolidateTool(store, nil).Definition(), "memory_consolidate", []string{"scope"}},
		{NewStatusTool(store).Definition(), "memory_status", nil},
		{NewContextTool(loader).Definition(), "memory_context", []string{"agent"}},
		{NewSearchTool(nil).Definition(), "memory_search", []string{"query"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.def.Name)
			assert.NotEmpty(t, tt.def.Description)
			for _, r := range tt.required {
				assert.Contains(t, tt.def.InputSchema.Properties, r)
				assert.Contains(t, tt.def.InputSchema.Required, r)
			}
		})
	}
}

// ─── Per-file tools ──────────────────────────────────────────────────────────

func TestAddAndList(t *testing.T) {
	store := newTestStore(t)
	add := NewAddTool(store)
	list := NewListTool(store)

	res := call(t, add.Handle, map[string]interface{}{"scope": "agent", "agent": "qa", "entry": "run go test ./..."})
	assert.False(t, res.IsError)
	assert.Contains(t, resultText(res), "Entry saved.")
	assert.Contains(t, resultText(res), "agent/qa")

	call(t, add.Handle, map[string]interface{}{"scope": "agent", "agent": "qa", "entry": "use -race"})

	res = call(t, list.Handle, map[string]interface{}{"scope": "agent", "agent": "qa"})
	text := resultText(res)
	assert.Contains(t, text, "# Qa Agent Memory (2 entries")
	assert.Less(t, strings.Index(text, "1. run go test"), strings.Index(text, "2. use -race"))
}

func TestAdd_Errors(t *testing.T) {
	store := newTestStore(t)
	add := NewAddTool(store)

	res := call(t, add.Handle, map[string]interface{}{"scope": "project"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "'entry' is required")

	res = call(t, add.Handle, map[string]interface{}{"scope": "agent", "entry": "x"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "INVALID_REF")

	// A missing scope never falls back to some default file.
	res = call(t, add.Handle, map[string]interface{}{"agent": "qa", "entry": "x"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "scope is required")
	refs, err := store.Refs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, refs)

	res = call(t, add.Handle, map[string]interface{}{"scope": "project", "entry": strings.Repeat("x", 300)})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "CAPACITY_EXCEEDED")
	assert.Contains(t, resultText(res), "Suggestion:")
}

func TestList_Empty(t *testing.T) {
	res := call(t, NewListTool(newTestStore(t)).Handle, map[string]interface{}{"scope": "project"})
	assert.False(t, res.IsError)
	assert.Equal(t, "project has no entries.", resultText(res))
}

func TestPrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, e := range []string{"old: a", "keep b", "OLD c"} {
		require.NoError(t, store.Update(ctx, memory.ProjectRef(), e))
	}
	prune := NewPruneTool(store)

	res := call(t, prune.Handle, map[string]interface{}{"scope": "project"})
	assert.True(t, res.IsError)

	res = call(t, prune.Handle, map[string]interface{}{"scope": "project", "pattern": "old:*", "contains": "old c"})
	assert.Equal(t, "Removed 2 entries from project.", resultText(res))

	l, err := store.List(ctx, memory.ProjectRef())
	require.NoError(t, err)
	assert.Equal(t, []string{"keep b"}, l.Entries)
}

func TestClear_RequiresConfirm(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Update(ctx, memory.ProjectRef(), "a"))
	clearTool := NewClearTool(store)

	res := call(t, clearTool.Handle, map[string]interface{}{"scope": "project"})
	assert.True(t, res.IsError)
	l, _ := store.List(ctx, memory.ProjectRef())
	assert.Len(t, l.Entries, 1)

	res = call(t, clearTool.Handle, map[string]interface{}{"scope": "project", "confirm": true})
	assert.False(t, res.IsError)
	l, _ = store.List(ctx, memory.ProjectRef())
	assert.Empty(t, l.Entries)
}

func TestConsolidate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ref := memory.AgentRef("qa")
	for _, e := range []string{"a", "b", "a", "c"} {
		require.NoError(t, store.Update(ctx, ref, e))
	}
	tool := NewConsolidateTool(store, nil)

	res := call(t, tool.Handle, map[string]interface{}{"scope": "agent", "agent": "qa"})
	assert.Contains(t, resultText(res), "4 -> 3 entries")

	res = call(t, tool.Handle, map[string]interface{}{"scope": "agent", "agent": "qa", "strategy": "keep_latest", "keep": float64(1)})
	assert.Contains(t, resultText(res), "3 -> 1 entries")
	l, _ := store.List(ctx, ref)
	assert.Equal(t, []string{"c"}, l.Entries)

	res = call(t, tool.Handle, map[string]interface{}{"scope": "agent", "agent": "qa", "strategy": "command"})
	assert.True(t, res.IsError)

	res = call(t, tool.Handle, map[string]interface{}{"scope": "agent", "agent": "qa", "strategy": "summarize"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "VALIDATION")
}

func TestStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	status := NewStatusTool(store)

	res := call(t, status.Handle, map[string]interface{}{})
	assert.Equal(t, "No memory files yet.", resultText(res))

	require.NoError(t, store.Update(ctx, memory.ProjectRef(), strings.Repeat("w", 110)))
	require.NoError(t, store.Update(ctx, memory.AgentRef("qa"), "x"))

	res = call(t, status.Handle, map[string]interface{}{"scope": "project"})
	assert.Contains(t, resultText(res), "(warn,")

	res = call(t, status.Handle, map[string]interface{}{})
	lines := strings.Split(strings.TrimSpace(resultText(res)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "project:"))
	assert.True(t, strings.HasPrefix(lines[1], "agent/qa:"))
	assert.Contains(t, lines[1], "(ok,")
}

// ─── Context and search ──────────────────────────────────────────────────────

func TestContext(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tool := NewContextTool(memory.NewLoader(store, memory.LoaderConfig{}, nil))

	res := call(t, tool.Handle, map[string]interface{}{"agent": "engineer"})
	assert.Equal(t, "No memory recorded for engineer yet.", resultText(res))

	require.NoError(t, store.Update(ctx, memory.ProjectRef(), "p1"))
	require.NoError(t, store.Update(ctx, memory.AgentRef("engineer"), "a1"))
	res = call(t, tool.Handle, map[string]interface{}{"agent": "engineer"})
	assert.Equal(t, "## Project Memory\n- p1\n\n## Engineer Agent Memory\n- a1\n", resultText(res))

	res = call(t, tool.Handle, map[string]interface{}{"agent": "../etc"})
	assert.True(t, res.IsError)
}

func TestContext_Truncated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Update(ctx, memory.AgentRef("qa"), strings.Repeat("y", 20)))
	}
	tool := NewContextTool(memory.NewLoader(store, memory.LoaderConfig{MaxBytes: 60}, nil))

	res := call(t, tool.Handle, map[string]interface{}{"agent": "qa"})
	assert.Contains(t, resultText(res), "(truncated:")
}

func TestSearch(t *testing.T) {
	idx, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	bus := event.NewBus(nil)
	bus.Register(idx.Hook())
	store := newTestStore(t, memory.WithEventBus(bus))
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, memory.AgentRef("qa"), "flaky: TestRetry"))
	require.NoError(t, store.Update(ctx, memory.ProjectRef(), "no flaky tests on main"))

	tool := NewSearchTool(idx)
	res := call(t, tool.Handle, map[string]interface{}{"query": "FLAKY"})
	text := resultText(res)
	assert.Contains(t, text, "Found 2 entries")
	assert.Less(t, strings.Index(text, "[project #1]"), strings.Index(text, "[agent/qa #1]"))

	res = call(t, tool.Handle, map[string]interface{}{"query": "flaky", "scope": "agent"})
	assert.Contains(t, resultText(res), "Found 1 entries")

	res = call(t, tool.Handle, map[string]interface{}{"query": "nothing"})
	assert.Equal(t, `No entries match "nothing".`, resultText(res))

	res = call(t, tool.Handle, map[string]interface{}{})
	assert.True(t, res.IsError)
}

func TestNewServer(t *testing.T) {
	store := newTestStore(t)
	s := NewServer("agentmem", "test", Deps{
		Store:  store,
		Loader: memory.NewLoader(store, memory.LoaderConfig{}, nil),
	})
	assert.NotNil(t, s)
}

func TestTools_EmitEvents(t *testing.T) {
	h := testutil.NewTestHarness(t)
	ctx := context.Background()

	call(t, NewAddTool(h.Store).Handle, map[string]interface{}{"scope": "agent", "agent": "qa", "entry": "first"})
	call(t, NewAddTool(h.Store).Handle, map[string]interface{}{"scope": "agent", "agent": "qa", "entry": "second"})
	res := call(t, NewAddTool(h.Store).Handle, map[string]interface{}{"scope": "agent", "agent": "qa", "entry": strings.Repeat("x", 300)})
	assert.True(t, res.IsError)
	call(t, NewPruneTool(h.Store).Handle, map[string]interface{}{"scope": "agent", "agent": "qa", "contains": "first"})

	assert.Equal(t, 2, h.EventCount(event.MemoryUpdated))
	h.AssertEventEmitted(event.MemoryRejected)
	h.AssertEventEmitted(event.MemoryPruned)
	h.AssertNoEvent(event.MemoryCleared)
	assert.Equal(t, int64(2), h.Metrics.GetSummary()["updates"])

	merger := &testutil.MockMerger{Result: []string{"merged"}}
	require.NoError(t, h.Store.Consolidate(ctx, memory.AgentRef("qa"), merger.Merge))
	assert.Equal(t, 1, merger.CallCount())
	assert.Equal(t, [][]string{{"second"}}, merger.Received)
	h.AssertEventEmitted(event.MemoryConsolidated)

	l, err := h.Store.List(ctx, memory.AgentRef("qa"))
	require.NoError(t, err)
	assert.Equal(t, []string{"merged"}, l.Entries)
}
