package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cadre-oss/agentmem/internal/memory"
)

// ListTool handles the memory_list MCP tool.
type ListTool struct {
	store *memory.Store
}

// NewListTool creates a ListTool.
func NewListTool(store *memory.Store) *ListTool {
	return &ListTool{store: store}
}

// Definition returns the MCP tool definition for memory_list.
func (t *ListTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_list",
		mcp.WithDescription("List the entries of one memory file in the order they were written."),
		mcp.WithString("scope", scopeOptions()...),
		mcp.WithString("agent", agentOptions()...),
	)
}

// Handle processes the memory_list tool call.
func (t *ListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := refArg(req)
	if err != nil {
		return errorResult("list", err), nil
	}
	l, err := t.store.List(ctx, ref)
	if err != nil {
		return errorResult("list", err), nil
	}
	if len(l.Entries) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("%s has no entries.", ref)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s (%d entries, %d bytes)\n%s",
		l.Header, len(l.Entries), l.Size, formatEntries(l.Entries))), nil
}

// AddTool handles the memory_add MCP tool.
type AddTool struct {
	store *memory.Store
}

// NewAddTool creates an AddTool.
func NewAddTool(store *memory.Store) *AddTool {
	return &AddTool{store: store}
}

// Definition returns the MCP tool definition for memory_add.
func (t *AddTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_add",
		mcp.WithDescription(
			"Append one learning to a memory file. Keep it to a single line. "+
				"If the file is near capacity, prune or consolidate it first.",
		),
		mcp.WithString("scope", scopeOptions()...),
		mcp.WithString("agent", agentOptions()...),
		mcp.WithString("entry",
			mcp.Required(),
			mcp.Description("Single-line entry (e.g. 'run make lint before committing')"),
		),
	)
}

// Handle processes the memory_add tool call.
func (t *AddTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entry := req.GetString("entry", "")
	if strings.TrimSpace(entry) == "" {
		return mcp.NewToolResultError("'entry' is required"), nil
	}
	ref, err := refArg(req)
	if err != nil {
		return errorResult("add", err), nil
	}
	if err := t.store.Update(ctx, ref, entry); err != nil {
		return errorResult("add", err), nil
	}
	u, err := t.store.SizeStatus(ctx, ref)
	if err != nil {
		return errorResult("add", err), nil
	}
	return mcp.NewToolResultText("Entry saved.\n" + formatUsage(u)), nil
}

// PruneTool handles the memory_prune MCP tool.
type PruneTool struct {
	store *memory.Store
}

// NewPruneTool creates a PruneTool.
func NewPruneTool(store *memory.Store) *PruneTool {
	return &PruneTool{store: store}
}

// Definition returns the MCP tool definition for memory_prune.
func (t *PruneTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_prune",
		mcp.WithDescription("Remove entries matching a glob pattern or a case-insensitive substring. Remaining entries keep their order."),
		mcp.WithString("scope", scopeOptions()...),
		mcp.WithString("agent", agentOptions()...),
		mcp.WithString("pattern",
			mcp.Description("Glob matched against the whole entry (e.g. 'old:*')"),
		),
		mcp.WithString("contains",
			mcp.Description("Remove entries containing this text, ignoring case"),
		),
	)
}

// Handle processes the memory_prune tool call.
func (t *PruneTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pattern := req.GetString("pattern", "")
	contains := req.GetString("contains", "")
	if pattern == "" && contains == "" {
		return mcp.NewToolResultError("one of 'pattern' or 'contains' is required"), nil
	}
	ref, err := refArg(req)
	if err != nil {
		return errorResult("prune", err), nil
	}

	var preds []memory.Predicate
	if pattern != "" {
		p, err := memory.MatchGlob(pattern)
		if err != nil {
			return errorResult("prune", err), nil
		}
		preds = append(preds, p)
	}
	if contains != "" {
		preds = append(preds, memory.Contains(contains))
	}

	removed, err := t.store.Prune(ctx, ref, memory.Any(preds...))
	if err != nil {
		return errorResult("prune", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Removed %d entries from %s.", removed, ref)), nil
}

// ClearTool handles the memory_clear MCP tool.
type ClearTool struct {
	store *memory.Store
}

// NewClearTool creates a ClearTool.
func NewClearTool(store *memory.Store) *ClearTool {
	return &ClearTool{store: store}
}

// Definition returns the MCP tool definition for memory_clear.
func (t *ClearTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_clear",
		mcp.WithDescription("Remove every entry from a memory file, keeping its header. Requires confirm=true."),
		mcp.WithString("scope", scopeOptions()...),
		mcp.WithString("agent", agentOptions()...),
		mcp.WithBoolean("confirm",
			mcp.Required(),
			mcp.Description("Must be true; clearing cannot be undone"),
		),
	)
}

// Handle processes the memory_clear tool call.
func (t *ClearTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !boolArg(req, "confirm", false) {
		return mcp.NewToolResultError("set 'confirm' to true to clear a memory file"), nil
	}
	ref, err := refArg(req)
	if err != nil {
		return errorResult("clear", err), nil
	}
	if err := t.store.Clear(ctx, ref); err != nil {
		return errorResult("clear", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Cleared %s.", ref)), nil
}

// ConsolidateTool handles the memory_consolidate MCP tool.
type ConsolidateTool struct {
	store  *memory.Store
	merger *memory.ExecMerger
}

// NewConsolidateTool creates a ConsolidateTool. merger may be nil, in which
// case the command strategy is unavailable.
func NewConsolidateTool(store *memory.Store, merger *memory.ExecMerger) *ConsolidateTool {
	return &ConsolidateTool{store: store, merger: merger}
}

// Definition returns the MCP tool definition for memory_consolidate.
func (t *ConsolidateTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_consolidate",
		mcp.WithDescription(
			"Rewrite a memory file into a smaller equivalent set of entries. "+
				"Use this when memory_status reports warn or critical.",
		),
		mcp.WithString("scope", scopeOptions()...),
		mcp.WithString("agent", agentOptions()...),
		mcp.WithString("strategy",
			mcp.Enum("dedup", "keep_latest", "command"),
			mcp.Description("dedup (default) removes duplicates, keep_latest keeps the newest N, command runs the configured consolidation command"),
		),
		mcp.WithNumber("keep",
			mcp.Description("Entries to keep for keep_latest"),
		),
	)
}

// Handle processes the memory_consolidate tool call.
func (t *ConsolidateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := refArg(req)
	if err != nil {
		return errorResult("consolidate", err), nil
	}

	strategy := req.GetString("strategy", "dedup")
	var merge memory.MergeFunc
	if strategy == "command" {
		if t.merger == nil {
			return mcp.NewToolResultError("no consolidation command is configured"), nil
		}
		merge = t.merger.Merge
	} else if merge, err = memory.ParseStrategy(strategy, intArg(req, "keep", 0)); err != nil {
		return errorResult("consolidate", err), nil
	}

	before, err := t.store.List(ctx, ref)
	if err != nil {
		return errorResult("consolidate", err), nil
	}
	if err := t.store.Consolidate(ctx, ref, merge); err != nil {
		return errorResult("consolidate", err), nil
	}
	after, err := t.store.List(ctx, ref)
	if err != nil {
		return errorResult("consolidate", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Consolidated %s: %d -> %d entries, %d -> %d bytes.",
		ref, len(before.Entries), len(after.Entries), before.Size, after.Size)), nil
}

// StatusTool handles the memory_status MCP tool.
type StatusTool struct {
	store *memory.Store
}

// NewStatusTool creates a StatusTool.
func NewStatusTool(store *memory.Store) *StatusTool {
	return &StatusTool{store: store}
}

// Definition returns the MCP tool definition for memory_status.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_status",
		mcp.WithDescription("Report a memory file's size against its limits: ok, warn or critical. Omit scope to report every file."),
		mcp.WithString("scope",
			mcp.Enum(string(memory.ScopeProject), string(memory.ScopeAgent), string(memory.ScopeUser)),
			mcp.Description("Memory scope; omit to report all existing files"),
		),
		mcp.WithString("agent", agentOptions()...),
	)
}

// Handle processes the memory_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var refs []memory.Ref
	if req.GetString("scope", "") == "" {
		all, err := t.store.Refs(ctx)
		if err != nil {
			return errorResult("status", err), nil
		}
		if len(all) == 0 {
			return mcp.NewToolResultText("No memory files yet."), nil
		}
		refs = all
	} else {
		ref, err := refArg(req)
		if err != nil {
			return errorResult("status", err), nil
		}
		refs = []memory.Ref{ref}
	}

	var b strings.Builder
	for _, ref := range refs {
		u, err := t.store.SizeStatus(ctx, ref)
		if err != nil {
			return errorResult("status", err), nil
		}
		b.WriteString(formatUsage(u))
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}
