package mcptools

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/cadre-oss/agentmem/internal/index"
	"github.com/cadre-oss/agentmem/internal/memory"
)

// Deps are the collaborators the tools need. Index and Merger are optional;
// memory_search is only registered when an index is available.
type Deps struct {
	Store  *memory.Store
	Loader *memory.Loader
	Index  *index.Index
	Merger *memory.ExecMerger
}

const instructions = `agentmem keeps durable, line-oriented memory for agents.
Call memory_context at the start of a task and memory_add when you learn something worth keeping.
When memory_status reports warn or critical, prune or consolidate before adding more.`

// NewServer creates an MCP server with every memory tool registered.
func NewServer(name, version string, deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	list := NewListTool(deps.Store)
	s.AddTool(list.Definition(), list.Handle)

	add := NewAddTool(deps.Store)
	s.AddTool(add.Definition(), add.Handle)

	prune := NewPruneTool(deps.Store)
	s.AddTool(prune.Definition(), prune.Handle)

	clearTool := NewClearTool(deps.Store)
	s.AddTool(clearTool.Definition(), clearTool.Handle)

	consolidate := NewConsolidateTool(deps.Store, deps.Merger)
	s.AddTool(consolidate.Definition(), consolidate.Handle)

	status := NewStatusTool(deps.Store)
	s.AddTool(status.Definition(), status.Handle)

	ctxTool := NewContextTool(deps.Loader)
	s.AddTool(ctxTool.Definition(), ctxTool.Handle)

	if deps.Index != nil {
		search := NewSearchTool(deps.Index)
		s.AddTool(search.Definition(), search.Handle)
	}

	return s
}

// Serve runs the MCP server over stdin/stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
