package cli

import (
	"context"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/agentmem/internal/memory"
)

func init() {
	for _, c := range []*cobra.Command{
		listCmd, addCmd, pruneCmd, clearCmd, consolidateCmd, statusCmd, contextCmd, historyCmd,
	} {
		c.ValidArgsFunction = completeAgentIDs
	}
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for agentmem.

To load completions:

Bash:
  $ source <(agentmem completion bash)
  # To load completions for each session, execute once:
  # Linux:
  $ agentmem completion bash > /etc/bash_completion.d/agentmem
  # macOS:
  $ agentmem completion bash > $(brew --prefix)/etc/bash_completion.d/agentmem

Zsh:
  $ source <(agentmem completion zsh)
  # To load completions for each session, execute once:
  $ agentmem completion zsh > "${fpath[1]}/_agentmem"

Fish:
  $ agentmem completion fish | source
  # To load completions for each session, execute once:
  $ agentmem completion fish > ~/.config/fish/completions/agentmem.fish

PowerShell:
  PS> agentmem completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(cmd.OutOrStdout())
		case "zsh":
			return rootCmd.GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			return rootCmd.GenFishCompletion(cmd.OutOrStdout(), true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
		}
		return nil
	},
}

// completeAgentIDs offers the agent ids that already have a memory file in
// either agent or user scope.
func completeAgentIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	ids, err := agentIDs(cmd)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	var out []string
	for _, id := range ids {
		if strings.HasPrefix(id, toComplete) {
			out = append(out, id)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func agentIDs(cmd *cobra.Command) ([]string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		return nil, err
	}
	store, err := memory.NewStore(storeCfg)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	refs, err := store.Refs(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var ids []string
	for _, ref := range refs {
		if ref.AgentID != "" && !seen[ref.AgentID] {
			seen[ref.AgentID] = true
			ids = append(ids, ref.AgentID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
