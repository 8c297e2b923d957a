// Package mcptools exposes the memory store as MCP tools.
//
// Each tool is a struct with its dependencies injected via constructor:
// Definition() returns the mcp.Tool schema and Handle() processes a call.
// Store errors are returned as tool errors, never as protocol errors.
package mcptools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	memerrors "github.com/cadre-oss/agentmem/internal/errors"
	"github.com/cadre-oss/agentmem/internal/memory"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// refArg reads the scope and agent arguments shared by the per-file tools.
func refArg(req mcp.CallToolRequest) (memory.Ref, error) {
	scope, err := memory.ParseScope(req.GetString("scope", ""))
	if err != nil {
		return memory.Ref{}, err
	}
	return memory.Ref{Scope: scope, AgentID: req.GetString("agent", "")}.Normalize()
}

func scopeOptions() []mcp.PropertyOption {
	return []mcp.PropertyOption{
		mcp.Required(),
		mcp.Enum(string(memory.ScopeProject), string(memory.ScopeAgent), string(memory.ScopeUser)),
		mcp.Description("Memory scope: project (shared), agent (per agent) or user (per agent, outside the repo)"),
	}
}

func agentOptions() []mcp.PropertyOption {
	return []mcp.PropertyOption{
		mcp.Description("Agent id, required for agent and user scope (e.g. 'engineer')"),
	}
}

// errorResult renders a store error with its code and recovery hint.
func errorResult(action string, err error) *mcp.CallToolResult {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed: %v", action, err)
	if sug := memerrors.Suggestion(err); sug != "" {
		fmt.Fprintf(&b, "\nSuggestion: %s", sug)
	}
	return mcp.NewToolResultError(b.String())
}

func formatEntries(entries []string) string {
	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s\n", i+1, e)
	}
	return b.String()
}

func formatUsage(u *memory.Usage) string {
	return fmt.Sprintf("%s: %d/%d bytes (%s, %d remaining)",
		u.Ref, u.Size, u.Limits.MaxBytes, u.Status, u.Remaining)
}
