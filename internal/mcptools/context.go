package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cadre-oss/agentmem/internal/index"
	"github.com/cadre-oss/agentmem/internal/memory"
)

// ContextTool handles the memory_context MCP tool.
type ContextTool struct {
	loader *memory.Loader
}

// NewContextTool creates a ContextTool.
func NewContextTool(loader *memory.Loader) *ContextTool {
	return &ContextTool{loader: loader}
}

// Definition returns the MCP tool definition for memory_context.
func (t *ContextTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_context",
		mcp.WithDescription(
			"Load the memory an agent should see before starting a task: project memory, "+
				"then the agent's own memory, then the agent's user memory. Call this at the start of a task.",
		),
		mcp.WithString("agent",
			mcp.Required(),
			mcp.Description("Agent id (e.g. 'engineer')"),
		),
	)
}

// Handle processes the memory_context tool call.
func (t *ContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent := req.GetString("agent", "")
	if agent == "" {
		return mcp.NewToolResultError("'agent' is required"), nil
	}
	c, err := t.loader.Assemble(ctx, agent)
	if err != nil {
		return errorResult("context", err), nil
	}
	if c.Text == "" {
		return mcp.NewToolResultText(fmt.Sprintf("No memory recorded for %s yet.", agent)), nil
	}
	text := c.Text
	if c.Truncated {
		text += "\n(truncated: lower-precedence entries were dropped to fit the context budget)\n"
	}
	return mcp.NewToolResultText(text), nil
}

// SearchTool handles the memory_search MCP tool.
type SearchTool struct {
	idx *index.Index
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(idx *index.Index) *SearchTool {
	return &SearchTool{idx: idx}
}

// Definition returns the MCP tool definition for memory_search.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_search",
		mcp.WithDescription("Search entries across every memory file. Results are ordered project, agent, user."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Text to look for, case-insensitive"),
		),
		mcp.WithString("scope",
			mcp.Enum(string(memory.ScopeProject), string(memory.ScopeAgent), string(memory.ScopeUser)),
			mcp.Description("Restrict to one scope"),
		),
		mcp.WithString("agent",
			mcp.Description("Restrict to one agent"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results (default: 20)"),
		),
	)
}

// Handle processes the memory_search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	filter := index.Filter{
		AgentID: req.GetString("agent", ""),
		Limit:   intArg(req, "limit", 20),
	}
	if sc := req.GetString("scope", ""); sc != "" {
		scope, err := memory.ParseScope(sc)
		if err != nil {
			return errorResult("search", err), nil
		}
		filter.Scope = scope
	}

	hits, err := t.idx.Search(ctx, query, filter)
	if err != nil {
		return errorResult("search", err), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No entries match %q.", query)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d entries:\n", len(hits))
	for _, h := range hits {
		fmt.Fprintf(&b, "[%s #%d] %s\n", h.Ref, h.Position+1, h.Entry)
	}
	return mcp.NewToolResultText(b.String()), nil
}
