package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/agentmem/internal/memory"
)

var (
	memScope    string
	listJSON    bool
	listStrict  bool
	prunePat    string
	pruneSubstr string
	clearYes    bool
	consStrat   string
	consKeep    int
)

var listCmd = &cobra.Command{
	Use:   "list [agent]",
	Short: "List the entries of a memory file",
	Long: `List the entries of a memory file in the order they were written.

Examples:
  agentmem list                    # project memory
  agentmem list engineer           # engineer's agent memory
  agentmem list engineer -s user   # engineer's user memory`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

var addCmd = &cobra.Command{
	Use:   "add [agent] <entry>",
	Short: "Append an entry to a memory file",
	Long: `Append a single-line entry to a memory file, creating it if needed.

Examples:
  agentmem add "run make lint before committing"
  agentmem add engineer "prefer table-driven tests"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAdd,
}

var pruneCmd = &cobra.Command{
	Use:   "prune [agent]",
	Short: "Remove entries matching a pattern",
	Long: `Remove every entry matching a glob pattern or a case-insensitive substring.

Examples:
  agentmem prune --pattern 'old:*'
  agentmem prune engineer --contains deprecated`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPrune,
}

var clearCmd = &cobra.Command{
	Use:   "clear [agent]",
	Short: "Remove every entry from a memory file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runClear,
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate [agent]",
	Short: "Rewrite a memory file into fewer entries",
	Long: `Rewrite a memory file through a merge strategy.

Strategies:
  dedup        remove exact duplicates, keeping first occurrences (default)
  keep_latest  keep the newest --keep entries
  command      pipe entries through consolidate.command from agentmem.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConsolidate,
}

var statusCmd = &cobra.Command{
	Use:   "status [agent]",
	Short: "Show memory file sizes against their limits",
	Long: `Show memory file sizes against the warn, critical and max limits.

Examples:
  agentmem status            # every memory file
  agentmem status engineer   # engineer's agent memory`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	for _, c := range []*cobra.Command{listCmd, addCmd, pruneCmd, clearCmd, consolidateCmd, statusCmd, historyCmd} {
		c.Flags().StringVarP(&memScope, "scope", "s", "", "memory scope: project, agent or user (default: agent when an agent is given, else project)")
	}
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")
	listCmd.Flags().BoolVar(&listStrict, "strict", false, "fail if the memory file does not exist")
	pruneCmd.Flags().StringVarP(&prunePat, "pattern", "p", "", "glob matched against whole entries")
	pruneCmd.Flags().StringVarP(&pruneSubstr, "contains", "c", "", "case-insensitive substring")
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "confirm clearing the file")
	consolidateCmd.Flags().StringVar(&consStrat, "strategy", "dedup", "merge strategy: dedup, keep_latest, command")
	consolidateCmd.Flags().IntVar(&consKeep, "keep", 0, "entries to keep for keep_latest")
}

// refFromArgs builds a ref from --scope and an optional agent argument.
func refFromArgs(agentArgs []string) (memory.Ref, error) {
	var agent string
	if len(agentArgs) > 0 {
		agent = agentArgs[0]
	}
	scopeName := memScope
	if scopeName == "" {
		scopeName = string(memory.ScopeProject)
		if agent != "" {
			scopeName = string(memory.ScopeAgent)
		}
	}
	scope, err := memory.ParseScope(scopeName)
	if err != nil {
		return memory.Ref{}, err
	}
	return memory.Ref{Scope: scope, AgentID: agent}.Normalize()
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ref, err := refFromArgs(args)
	if err != nil {
		return err
	}
	var opts []memory.ListOption
	if listStrict {
		opts = append(opts, memory.RequireExisting())
	}
	l, err := a.store.List(cmd.Context(), ref, opts...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if listJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(l)
	}
	fmt.Fprintln(out, headerStyle.Render(l.Header))
	fmt.Fprintln(out, mutedStyle.Render(l.Path))
	if len(l.Entries) == 0 {
		fmt.Fprintln(out, "\nNo entries.")
		return nil
	}
	fmt.Fprintln(out)
	for _, e := range l.Entries {
		fmt.Fprintf(out, "- %s\n", e)
	}
	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	entry := args[len(args)-1]
	ref, err := refFromArgs(args[:len(args)-1])
	if err != nil {
		return err
	}
	if err := a.store.Update(cmd.Context(), ref, entry); err != nil {
		return err
	}
	u, err := a.store.SizeStatus(cmd.Context(), ref)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added to %s\n", ref)
	printUsage(cmd.OutOrStdout(), u)
	return nil
}

func runPrune(cmd *cobra.Command, args []string) error {
	if prunePat == "" && pruneSubstr == "" {
		return fmt.Errorf("one of --pattern or --contains is required")
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ref, err := refFromArgs(args)
	if err != nil {
		return err
	}
	var preds []memory.Predicate
	if prunePat != "" {
		p, err := memory.MatchGlob(prunePat)
		if err != nil {
			return err
		}
		preds = append(preds, p)
	}
	if pruneSubstr != "" {
		preds = append(preds, memory.Contains(pruneSubstr))
	}

	removed, err := a.store.Prune(cmd.Context(), ref, memory.Any(preds...))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries from %s\n", removed, ref)
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	if !clearYes {
		return fmt.Errorf("refusing to clear without --yes")
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ref, err := refFromArgs(args)
	if err != nil {
		return err
	}
	if err := a.store.Clear(cmd.Context(), ref); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", ref)
	return nil
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ref, err := refFromArgs(args)
	if err != nil {
		return err
	}

	var merge memory.MergeFunc
	if consStrat == "command" {
		if a.merger == nil {
			return fmt.Errorf("no consolidation command configured (set consolidate.command in agentmem.yaml)")
		}
		merge = a.merger.Merge
	} else if merge, err = memory.ParseStrategy(consStrat, consKeep); err != nil {
		return err
	}

	before, err := a.store.List(cmd.Context(), ref)
	if err != nil {
		return err
	}
	if err := a.store.Consolidate(cmd.Context(), ref, merge); err != nil {
		return err
	}
	after, err := a.store.List(cmd.Context(), ref)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Consolidated %s: %d -> %d entries, %d -> %d bytes\n",
		ref, len(before.Entries), len(after.Entries), before.Size, after.Size)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var refs []memory.Ref
	if len(args) == 0 && memScope == "" {
		if refs, err = a.store.Refs(cmd.Context()); err != nil {
			return err
		}
		if len(refs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No memory files yet.")
			return nil
		}
	} else {
		ref, err := refFromArgs(args)
		if err != nil {
			return err
		}
		refs = []memory.Ref{ref}
	}

	out := cmd.OutOrStdout()
	limits := a.store.Limits()
	fmt.Fprintln(out, headerStyle.Render("Memory Files"))
	fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("warn %d / critical %d / max %d bytes",
		limits.WarnBytes, limits.CriticalBytes, limits.MaxBytes)))
	fmt.Fprintln(out)
	for _, ref := range refs {
		u, err := a.store.SizeStatus(cmd.Context(), ref)
		if err != nil {
			return err
		}
		printUsage(out, u)
	}
	return nil
}

func printUsage(out io.Writer, u *memory.Usage) {
	fmt.Fprintf(out, "%s %-24s %7d / %d bytes  %s\n",
		statusIcon(u.Status), u.Ref.String(), u.Size, u.Limits.MaxBytes, styleStatus(u.Status))
}
