package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	memerrors "github.com/cadre-oss/agentmem/internal/errors"
)

// MergeFunc rewrites the entries of one file during Consolidate. It receives
// a copy of the entries in file order.
type MergeFunc func(ctx context.Context, entries []string) ([]string, error)

// DedupExact drops repeated entries, keeping the first occurrence.
// Applying it twice yields the same result as applying it once.
func DedupExact(_ context.Context, entries []string) ([]string, error) {
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		key := strings.TrimSpace(e)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

// KeepLatest keeps the n most recent entries after deduplication.
func KeepLatest(n int) MergeFunc {
	return func(ctx context.Context, entries []string) ([]string, error) {
		if n <= 0 {
			return nil, memerrors.Newf(memerrors.CodeValidation, "keep must be positive, got %d", n)
		}
		out, _ := DedupExact(ctx, entries)
		if len(out) > n {
			out = out[len(out)-n:]
		}
		return out, nil
	}
}

// ParseStrategy resolves a named built-in strategy.
func ParseStrategy(name string, keep int) (MergeFunc, error) {
	switch strings.ToLower(name) {
	case "", "dedup":
		return DedupExact, nil
	case "keep_latest", "keep-latest":
		return KeepLatest(keep), nil
	}
	return nil, memerrors.Newf(memerrors.CodeValidation, "unknown consolidation strategy %q", name).
		WithSuggestion("use dedup or keep_latest")
}

// ExecMerger runs an external command as the merge step. Entries are written
// to its stdin one per line; each non-blank stdout line becomes an entry.
type ExecMerger struct {
	Command    string
	Timeout    time.Duration
	WorkingDir string
}

// NewExecMerger creates a merger for command with a two minute timeout.
func NewExecMerger(command string) *ExecMerger {
	return &ExecMerger{Command: command, Timeout: 2 * time.Minute}
}

// Merge implements MergeFunc.
func (m *ExecMerger) Merge(ctx context.Context, entries []string) ([]string, error) {
	if m.Command == "" {
		return nil, memerrors.New(memerrors.CodeMergeFailed, "no consolidation command configured").
			WithSuggestion("set consolidate.command in agentmem.yaml")
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", m.Command)
	if m.WorkingDir != "" {
		cmd.Dir = m.WorkingDir
	}
	cmd.Env = os.Environ()
	cmd.Stdin = strings.NewReader(strings.Join(entries, "\n") + "\n")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, memerrors.Newf(memerrors.CodeMergeFailed, "command timed out after %v", timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, memerrors.Wrap(memerrors.CodeMergeFailed, fmt.Sprintf("command %q failed: %s", m.Command, msg), err)
	}

	var out []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, strings.TrimPrefix(line, bullet))
	}
	if len(out) == 0 && len(entries) > 0 {
		return nil, memerrors.Newf(memerrors.CodeMergeFailed, "command %q produced no entries for %d inputs", m.Command, len(entries)).
			WithSuggestion("the command must print the merged entries to stdout, one per line")
	}
	return out, nil
}
