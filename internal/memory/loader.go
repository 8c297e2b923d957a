package memory

import (
	"context"
	"strings"

	"github.com/cadre-oss/agentmem/internal/event"
)

// DefaultContextBytes caps an assembled context at three full files.
const DefaultContextBytes = 3 * DefaultMaxBytes

// LoaderConfig bounds the size of an assembled context.
type LoaderConfig struct {
	MaxBytes  int // 0 disables the byte budget
	MaxTokens int // 0 disables the token budget
}

// Section is the contribution of one memory file to a context.
type Section struct {
	Ref     Ref      `json:"ref"`
	Label   string   `json:"label"`
	Entries []string `json:"entries"`
	Dropped int      `json:"dropped"`
}

// Context is an assembled memory context, ready to prepend to a task prompt.
type Context struct {
	AgentID   string     `json:"agent"`
	Sections  []*Section `json:"sections"`
	Text      string     `json:"text"`
	Bytes     int        `json:"bytes"`
	Tokens    int        `json:"tokens"`
	Truncated bool       `json:"truncated"`
}

// Loader assembles the memory an agent sees before a task. It only reads.
type Loader struct {
	store   *Store
	cfg     LoaderConfig
	counter TokenCounter
}

// NewLoader creates a loader over store. A nil counter uses EstimateCounter.
func NewLoader(store *Store, cfg LoaderConfig, counter TokenCounter) *Loader {
	if counter == nil {
		counter = EstimateCounter{}
	}
	return &Loader{store: store, cfg: cfg, counter: counter}
}

// Assemble concatenates the project, agent and user files for agentID in that
// order. When the result is over budget, entries are dropped from the end of
// the lowest-precedence section first and emptied sections are removed.
func (l *Loader) Assemble(ctx context.Context, agentID string) (*Context, error) {
	if err := ValidateAgentID(agentID); err != nil {
		return nil, err
	}

	sections := []*Section{}
	for _, scope := range Precedence {
		if scope == ScopeUser && l.store.cfg.UserRoot == "" {
			continue
		}
		listing, err := l.store.List(ctx, Ref{Scope: scope, AgentID: agentID})
		if err != nil {
			return nil, err
		}
		if len(listing.Entries) == 0 {
			continue
		}
		sections = append(sections, &Section{
			Ref:     listing.Ref,
			Label:   sectionLabel(listing.Header, listing.Ref),
			Entries: listing.Entries,
		})
	}

	truncated := l.fit(sections)
	kept := make([]*Section, 0, len(sections))
	for _, s := range sections {
		if len(s.Entries) > 0 {
			kept = append(kept, s)
		}
	}
	// Dropped sections still count in stats so callers can see what was cut.
	out := &Context{AgentID: agentID, Sections: sections, Truncated: truncated}
	out.Text = render(kept)
	out.Bytes = len(out.Text)
	out.Tokens = l.counter.Count(out.Text)

	l.store.metrics.IncAssemblies(truncated)
	if truncated {
		l.store.logger.WithTrace(ctx).Warn("Memory context truncated",
			"agent", agentID, "bytes", out.Bytes, "tokens", out.Tokens)
	}
	_ = l.store.bus.Emit(event.NewEvent(event.ContextAssembled, map[string]interface{}{
		"agent":     agentID,
		"sections":  len(kept),
		"size":      out.Bytes,
		"tokens":    out.Tokens,
		"truncated": truncated,
	}))
	return out, nil
}

// fit trims sections in place until the rendered text holds both budgets.
// Entries leave in a fixed order (end of the last section first), so the
// number to drop is found by binary search over that order, measuring the
// exact text render would produce each time.
func (l *Loader) fit(sections []*Section) bool {
	total := 0
	for _, s := range sections {
		total += len(s.Entries)
	}
	fits := func(drop int) bool {
		text := render(trimTail(sections, drop))
		if l.cfg.MaxBytes > 0 && len(text) > l.cfg.MaxBytes {
			return false
		}
		return l.cfg.MaxTokens <= 0 || l.counter.Count(text) <= l.cfg.MaxTokens
	}
	if fits(0) {
		return false
	}

	lo, hi := 1, total // dropping everything renders "", which always fits
	for lo < hi {
		mid := lo + (hi-lo)/2
		if fits(mid) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	// Token counts are not strictly monotonic under BPE; step past any blip.
	for lo < total && !fits(lo) {
		lo++
	}

	drop := lo
	for i := len(sections) - 1; i >= 0 && drop > 0; i-- {
		s := sections[i]
		d := min(drop, len(s.Entries))
		s.Entries = s.Entries[:len(s.Entries)-d]
		s.Dropped += d
		drop -= d
	}
	return true
}

// trimTail returns the non-empty sections left after dropping drop entries
// from the end, lowest precedence first. sections is not modified.
func trimTail(sections []*Section, drop int) []*Section {
	out := make([]*Section, len(sections))
	for i := len(sections) - 1; i >= 0; i-- {
		s := sections[i]
		d := min(drop, len(s.Entries))
		drop -= d
		out[i] = &Section{Ref: s.Ref, Label: s.Label, Entries: s.Entries[:len(s.Entries)-d]}
	}
	kept := out[:0]
	for _, s := range out {
		if len(s.Entries) > 0 {
			kept = append(kept, s)
		}
	}
	return kept
}

func sectionHeading(s *Section) string { return "## " + s.Label }

func render(sections []*Section) string {
	var sb strings.Builder
	for i, s := range sections {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(sectionHeading(s))
		sb.WriteByte('\n')
		for _, e := range s.Entries {
			sb.WriteString(bullet)
			sb.WriteString(e)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// sectionLabel uses the file's own header, falling back to the default.
func sectionLabel(header string, ref Ref) string {
	label := strings.TrimSpace(strings.TrimLeft(header, "#"))
	if label == "" {
		label = strings.TrimSpace(strings.TrimLeft(DefaultHeader(ref), "#"))
	}
	return label
}
