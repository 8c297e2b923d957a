package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/agentmem/internal/config"
	"github.com/cadre-oss/agentmem/internal/memory"
)

var (
	initAgents string
	initForce  bool
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Initialize agentmem in a project",
	Long: `Write agentmem.yaml, create the project memory file and optional agent
memory files, and keep the search index out of git.

Examples:
  agentmem init
  agentmem init --agents engineer,qa
  agentmem init ./service --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initAgents, "agents", "", "comma-separated agent ids to create memory files for")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing agentmem.yaml")
}

const configTemplate = `# agentmem.yaml - agent memory configuration
name: %s

memory:
  project_root: .
  # user_root: ~              # enables user-scope memory under ~/.claude-mpm/memories
  project_file: CLAUDE.md
  memory_dir: .claude-mpm/memories
  limits:
    warn_bytes: 61440
    critical_bytes: 76800
    max_bytes: 81920

loader:
  max_bytes: 245760
  max_tokens: 0               # 0 disables the token budget
  tokenizer: estimate         # estimate | tiktoken

consolidate:
  # command: ./scripts/summarize-memory   # reads entries on stdin, writes entries on stdout
  timeout: 2m

index:
  enabled: true
  path: .claude-mpm/index.db

logging:
  level: info
  format: text                # text | json

metrics:
  # path: .claude-mpm/metrics.jsonl
  # max_bytes: 1048576        # rotate to metrics.jsonl.1 past this size

server:
  addr: 127.0.0.1:8742
  # token: ${AGENTMEM_TOKEN}

hooks:
  enabled: false
  hooks: []
`

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	cfgPath := filepath.Join(abs, config.FileNames[0])
	if _, err := os.Stat(cfgPath); err == nil && !initForce {
		fmt.Fprintf(out, "%s already exists (use --force to overwrite)\n", cfgPath)
	} else {
		content := fmt.Sprintf(configTemplate, filepath.Base(abs))
		if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Fprintf(out, "Wrote %s\n", cfgPath)
	}

	cfg, err := config.Load(abs)
	if err != nil {
		return err
	}
	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		return err
	}
	store, err := memory.NewStore(storeCfg)
	if err != nil {
		return err
	}

	refs := []memory.Ref{memory.ProjectRef()}
	for _, id := range strings.Split(initAgents, ",") {
		if id = strings.TrimSpace(id); id != "" {
			refs = append(refs, memory.AgentRef(id))
		}
	}
	if err := createMemoryFiles(cmd.Context(), out, store, refs); err != nil {
		return err
	}

	if !filepath.IsAbs(cfg.Index.Path) {
		if err := ensureGitignore(filepath.Join(abs, ".gitignore"), cfg.Index.Path); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "\nInitialized agentmem in %s\n", abs)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Add a learning:   agentmem add \"run make lint before committing\"")
	fmt.Fprintln(out, "  2. Check sizes:      agentmem status")
	fmt.Fprintln(out, "  3. Wire your agents: agentmem mcp")
	return nil
}

// createMemoryFiles writes header-only files for refs that do not exist yet.
func createMemoryFiles(ctx context.Context, out io.Writer, store *memory.Store, refs []memory.Ref) error {
	for _, ref := range refs {
		l, err := store.List(ctx, ref)
		if err != nil {
			return err
		}
		if l.Exists {
			fmt.Fprintf(out, "Kept %s\n", l.Path)
			continue
		}
		if err := store.Clear(ctx, ref); err != nil {
			return err
		}
		fmt.Fprintf(out, "Created %s\n", l.Path)
	}
	return nil
}

// ensureGitignore appends line to the .gitignore at path unless already present.
func ensureGitignore(path, line string) error {
	content, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read .gitignore: %w", err)
	}
	for _, l := range strings.Split(string(content), "\n") {
		if strings.TrimSpace(l) == line {
			return nil
		}
	}

	var b strings.Builder
	b.Write(content)
	if len(content) > 0 && !strings.HasSuffix(string(content), "\n") {
		b.WriteString("\n")
	}
	b.WriteString("# agentmem search index\n" + line + "\n")
	return os.WriteFile(path, []byte(b.String()), 0644)
}
