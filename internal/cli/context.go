package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/agentmem/internal/index"
	"github.com/cadre-oss/agentmem/internal/memory"
)

var (
	contextJSON  bool
	contextStats bool
	searchScope  string
	searchAgent  string
	searchLimit  int
	historyLimit int
)

var contextCmd = &cobra.Command{
	Use:   "context <agent>",
	Short: "Print the memory context assembled for an agent",
	Long: `Print the memory an agent sees before a task: project memory, then
the agent's memory, then the agent's user memory. Over-budget contexts
drop entries from the lowest-precedence file first.

Examples:
  agentmem context engineer
  agentmem context engineer --stats`,
	Args: cobra.ExactArgs(1),
	RunE: runContext,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search entries across every memory file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var historyCmd = &cobra.Command{
	Use:   "history [agent]",
	Short: "Show recent operations on a memory file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the search index from the memory files",
	Args:  cobra.NoArgs,
	RunE:  runReindex,
}

func init() {
	contextCmd.Flags().BoolVar(&contextJSON, "json", false, "output as JSON")
	contextCmd.Flags().BoolVar(&contextStats, "stats", false, "print size and truncation stats to stderr")
	searchCmd.Flags().StringVarP(&searchScope, "scope", "s", "", "restrict to one scope")
	searchCmd.Flags().StringVarP(&searchAgent, "agent", "a", "", "restrict to one agent")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 50, "maximum results")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of operations to show")
}

func runContext(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.loader.Assemble(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if contextJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	}
	fmt.Fprint(out, c.Text)

	if contextStats {
		errOut := cmd.ErrOrStderr()
		fmt.Fprintf(errOut, "%d bytes, %d tokens", c.Bytes, c.Tokens)
		if c.Truncated {
			fmt.Fprint(errOut, ", truncated")
		}
		fmt.Fprintln(errOut)
		for _, s := range c.Sections {
			fmt.Fprintf(errOut, "  %-24s %d entries", s.Ref.String(), len(s.Entries))
			if s.Dropped > 0 {
				fmt.Fprintf(errOut, " (%d dropped)", s.Dropped)
			}
			fmt.Fprintln(errOut)
		}
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	idx, err := a.requireIndex()
	if err != nil {
		return err
	}
	filter := index.Filter{AgentID: searchAgent, Limit: searchLimit}
	if searchScope != "" {
		if filter.Scope, err = memory.ParseScope(searchScope); err != nil {
			return err
		}
	}

	hits, err := idx.Search(cmd.Context(), args[0], filter)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(hits) == 0 {
		fmt.Fprintf(out, "No entries match %q.\n", args[0])
		return nil
	}
	for _, h := range hits {
		fmt.Fprintf(out, "%s %s\n", mutedStyle.Render(fmt.Sprintf("[%s #%d]", h.Ref, h.Position+1)), h.Entry)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	idx, err := a.requireIndex()
	if err != nil {
		return err
	}
	ref, err := refFromArgs(args)
	if err != nil {
		return err
	}
	ops, err := idx.History(cmd.Context(), ref, historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(ops) == 0 {
		fmt.Fprintf(out, "No recorded operations for %s.\n", ref)
		return nil
	}
	for _, op := range ops {
		fmt.Fprintf(out, "%s  %-12s count=%d size=%d",
			op.CreatedAt.Local().Format("2006-01-02 15:04:05"), op.Op, op.Count, op.Size)
		switch {
		case op.Op == "rejected":
			fmt.Fprintf(out, " %s", critStyle.Render(op.Status))
		case op.Status != "":
			fmt.Fprintf(out, " %s", styleStatus(memory.SizeStatus(op.Status)))
		}
		if op.Detail != "" {
			fmt.Fprintf(out, "  %s", mutedStyle.Render(op.Detail))
		}
		fmt.Fprintln(out)
	}
	return nil
}

func runReindex(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	idx, err := a.requireIndex()
	if err != nil {
		return err
	}
	n, err := idx.Rebuild(cmd.Context(), a.store)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d memory files\n", n)
	return nil
}
