package cli

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/agentmem/internal/memory"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and memory files",
	Long:  "Validate that the configuration, memory files, search index and tokenizer are properly set up.",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "agentmem doctor: checking your environment")
	fmt.Fprintln(out)
	allOK := true
	fail := func(format string, a ...interface{}) {
		fmt.Fprintf(out, format, a...)
		allOK = false
	}

	// 1. Go version
	fmt.Fprintf(out, "  Go version: %s ✓\n", runtime.Version())

	// 2. OS/Arch
	fmt.Fprintf(out, "  Platform:   %s/%s ✓\n", runtime.GOOS, runtime.GOARCH)

	// 3. Configuration
	a, err := openApp(cmd)
	if err != nil {
		fail("  Config:     INVALID ✗\n    → %v\n", err)
		fmt.Fprintln(out, "\nSome checks failed. See above for details.")
		return nil
	}
	defer a.Close()
	if dir := a.cfg.Dir(); dir != "" {
		fmt.Fprintf(out, "  Config:     %s (%s) ✓\n", a.cfg.Name, dir)
	} else {
		fmt.Fprintf(out, "  Config:     defaults ✓\n")
	}

	// 4. Project root
	root := a.store.Config().ProjectRoot
	if st, err := os.Stat(root); err != nil || !st.IsDir() {
		fail("  Project:    %s NOT A DIRECTORY ✗\n", root)
	} else {
		fmt.Fprintf(out, "  Project:    %s ✓\n", root)
	}

	// 5. User scope
	if ur := a.store.Config().UserRoot; ur != "" {
		fmt.Fprintf(out, "  User scope: %s ✓\n", ur)
	} else {
		fmt.Fprintln(out, "  User scope: disabled (set memory.user_root to enable)")
	}

	// 6. Memory files
	refs, err := a.store.Refs(cmd.Context())
	if err != nil {
		fail("  Memory:     FAILED (%s) ✗\n", err)
	} else {
		fmt.Fprintf(out, "  Memory:     %d files ✓\n", len(refs))
		for _, ref := range refs {
			u, err := a.store.SizeStatus(cmd.Context(), ref)
			if err != nil {
				fail("    %s: %v ✗\n", ref, err)
				continue
			}
			if u.Status != memory.StatusOK {
				fmt.Fprintf(out, "    %s %s is %s (%d bytes)\n", statusIcon(u.Status), ref, styleStatus(u.Status), u.Size)
				fmt.Fprintf(out, "    → agentmem consolidate %s\n", refArgs(ref))
			}
		}
	}

	// 7. Search index
	switch {
	case !a.cfg.IndexEnabled():
		fmt.Fprintln(out, "  Index:      disabled")
	case a.index == nil:
		fail("  Index:      UNAVAILABLE ✗\n    → check index.path, then run 'agentmem reindex'\n")
	default:
		path, _ := a.cfg.IndexPath()
		fmt.Fprintf(out, "  Index:      %s ✓\n", path)
	}

	// 8. Tokenizer
	counter := memory.NewTokenCounter(a.cfg.Loader.Tokenizer, a.logger)
	fmt.Fprintf(out, "  Tokenizer:  %s ✓\n", counter.Name())

	// 9. Consolidation command
	if a.cfg.Consolidate.Command != "" {
		if _, err := exec.LookPath("sh"); err != nil {
			fail("  Consolidate: sh NOT FOUND ✗\n")
		} else {
			fmt.Fprintf(out, "  Consolidate: %q ✓\n", a.cfg.Consolidate.Command)
		}
	}

	fmt.Fprintln(out)
	if allOK {
		fmt.Fprintln(out, "All checks passed!")
	} else {
		fmt.Fprintln(out, "Some checks failed. See above for details.")
	}
	return nil
}

// refArgs renders the command-line arguments that select ref.
func refArgs(ref memory.Ref) string {
	switch ref.Scope {
	case memory.ScopeAgent:
		return ref.AgentID
	case memory.ScopeUser:
		return ref.AgentID + " --scope user"
	default:
		return ""
	}
}
