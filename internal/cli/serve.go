package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/agentmem/internal/mcptools"
	"github.com/cadre-oss/agentmem/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agentmem HTTP API",
	Long: `Start an HTTP API over the memory files, with a server-sent event
stream of memory changes at /v1/events.

Set server.token in agentmem.yaml (or AGENTMEM_TOKEN via ${AGENTMEM_TOKEN})
to require a bearer token.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP tool server over stdio",
	Long: `Run a Model Context Protocol server over stdin/stdout so agents can
read and write their memory through tools.

Example client configuration:
  {"mcpServers": {"agentmem": {"command": "agentmem", "args": ["mcp"]}}}`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "address to listen on (default from server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := server.New(server.Options{
		Name:    a.cfg.Name,
		Version: Version,
		Token:   a.cfg.Server.Token,
		Store:   a.store,
		Loader:  a.loader,
		Index:   a.index,
		Merger:  a.merger,
		Bus:     a.bus,
		Metrics: a.metrics,
		Logger:  a.logger,
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return srv.Start(ctx, addr)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	s := mcptools.NewServer("agentmem", Version, mcptools.Deps{
		Store:  a.store,
		Loader: a.loader,
		Index:  a.index,
		Merger: a.merger,
	})
	a.logger.Debug("Serving MCP tools over stdio", "project", a.cfg.Name)
	return mcptools.Serve(s)
}
