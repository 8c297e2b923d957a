// Package memory keeps per-agent markdown memory files and assembles them
// into the context an agent receives before a task.
//
// Files live in three scopes:
//
//	<project>/CLAUDE.md                         project-wide
//	<project>/.claude-mpm/memories/<agent>.md   agent-specific
//	<user>/.claude-mpm/memories/<agent>.md      user-level
//
// Every operation is a full read-modify-write of one file, serialized per
// file by an in-process mutex and committed with an atomic rename.
package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	memerrors "github.com/cadre-oss/agentmem/internal/errors"
	"github.com/cadre-oss/agentmem/internal/event"
	"github.com/cadre-oss/agentmem/internal/telemetry"
)

// mutationSeq orders mutation snapshots process-wide. It is advanced while
// the file lock is held, so for any one file a higher seq is a newer state.
var mutationSeq atomic.Uint64

// Store persists memory entries keyed by Ref.
type Store struct {
	cfg     Config
	locks   sync.Map // path -> *sync.Mutex
	bus     *event.Bus
	metrics *telemetry.Metrics
	logger  *telemetry.Logger
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithEventBus emits lifecycle events on bus.
func WithEventBus(bus *event.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

// WithMetrics records operation counters in m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger sets the store logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a store for cfg. Directories are created lazily on first write.
func NewStore(cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Store{
		cfg:    cfg,
		logger: telemetry.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the store configuration.
func (s *Store) Config() Config {
	return s.cfg
}

// Limits returns the configured size thresholds.
func (s *Store) Limits() Limits {
	return s.cfg.Limits
}

// Path returns the file backing ref.
func (s *Store) Path(ref Ref) (string, error) {
	ref, err := ref.Normalize()
	if err != nil {
		return "", err
	}
	return s.path(ref)
}

func (s *Store) path(ref Ref) (string, error) {
	switch ref.Scope {
	case ScopeProject:
		return filepath.Join(s.cfg.ProjectRoot, s.cfg.ProjectFile), nil
	case ScopeAgent:
		return filepath.Join(s.cfg.ProjectRoot, s.cfg.MemoryDir, ref.AgentID+".md"), nil
	case ScopeUser:
		if s.cfg.UserRoot == "" {
			return "", memerrors.New(memerrors.CodeInvalidRef, "user scope is not configured").
				WithSuggestion("set memory.user_root in agentmem.yaml")
		}
		return filepath.Join(s.cfg.UserRoot, s.cfg.MemoryDir, ref.AgentID+".md"), nil
	}
	return "", memerrors.Newf(memerrors.CodeInvalidRef, "unknown scope %q", ref.Scope)
}

func (s *Store) lock(path string) func() {
	v, _ := s.locks.LoadOrStore(path, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// read loads the file at path. A missing file returns (nil, nil); a file
// without a header line gets the default header for ref.
func (s *Store) read(path string, ref Ref) (*File, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, memerrors.Wrap(memerrors.CodeIO, "read memory file "+path, err)
	}
	f, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if f.Header == "" {
		f.Header = DefaultHeader(ref)
	}
	return f, nil
}

// write replaces the file at path atomically.
func (s *Store) write(path string, f *File) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return memerrors.Wrap(memerrors.CodeIO, "create memory directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return memerrors.Wrap(memerrors.CodeIO, "create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(f.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return memerrors.Wrap(memerrors.CodeIO, "write memory file "+path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return memerrors.Wrap(memerrors.CodeIO, "write memory file "+path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return memerrors.Wrap(memerrors.CodeIO, "replace memory file "+path, err)
	}
	return nil
}

// Listing is the result of List.
type Listing struct {
	Ref     Ref      `json:"ref"`
	Path    string   `json:"path"`
	Header  string   `json:"header"`
	Entries []string `json:"entries"`
	Size    int      `json:"size"`
	Exists  bool     `json:"exists"`
}

type listOptions struct {
	requireExisting bool
}

// ListOption configures List.
type ListOption func(*listOptions)

// RequireExisting makes List fail with NOT_FOUND for a file never written.
func RequireExisting() ListOption {
	return func(o *listOptions) { o.requireExisting = true }
}

// List returns the entries of ref in file order and the file's byte size.
// An unseen ref yields an empty listing unless RequireExisting is given.
func (s *Store) List(ctx context.Context, ref Ref, opts ...ListOption) (*Listing, error) {
	var o listOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ref, err := ref.Normalize()
	if err != nil {
		return nil, err
	}
	path, err := s.path(ref)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(path)
	f, err := s.read(path, ref)
	unlock()
	if err != nil {
		return nil, err
	}

	if f == nil {
		if o.requireExisting {
			return nil, memerrors.Newf(memerrors.CodeNotFound, "no memory file for %s", ref)
		}
		return &Listing{Ref: ref, Path: path, Header: DefaultHeader(ref), Entries: []string{}}, nil
	}
	return &Listing{
		Ref:     ref,
		Path:    path,
		Header:  f.Header,
		Entries: f.Entries,
		Size:    f.Size(),
		Exists:  true,
	}, nil
}

// Update appends entry to ref, creating the file on first write. Invalid
// entries fail with VALIDATION and writes past the ceiling fail with
// CAPACITY_EXCEEDED; in both cases the file is left untouched.
func (s *Store) Update(ctx context.Context, ref Ref, entry string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ref, err := ref.Normalize()
	if err != nil {
		return err
	}
	if err := ValidateEntry(entry); err != nil {
		s.reject(ctx, ref, err)
		return err
	}
	path, err := s.path(ref)
	if err != nil {
		return err
	}

	start := s.now()
	unlock := s.lock(path)
	f, err := s.read(path, ref)
	if err != nil {
		unlock()
		return err
	}
	if f == nil {
		f = NewFile(DefaultHeader(ref))
	}
	next := f.withEntries(append(f.Entries, entry))
	if err := s.checkCapacity(ref, next); err != nil {
		unlock()
		s.reject(ctx, ref, err)
		return err
	}
	err = s.write(path, next)
	snap := s.stamp(next)
	unlock()
	if err != nil {
		return err
	}

	s.metrics.IncUpdates()
	s.metrics.RecordOpDuration(s.now().Sub(start))
	s.logger.WithTrace(ctx).Debug("Memory updated", "ref", ref.String(), "size", next.Size())
	return s.emitMutation(ctx, event.MemoryUpdated, ref, snap, map[string]interface{}{"count": 1})
}

// Prune removes every entry matching pred and returns how many were removed.
// Nothing is written when no entry matches.
func (s *Store) Prune(ctx context.Context, ref Ref, pred Predicate) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if pred == nil {
		return 0, memerrors.New(memerrors.CodeValidation, "prune requires a predicate")
	}
	ref, err := ref.Normalize()
	if err != nil {
		return 0, err
	}
	path, err := s.path(ref)
	if err != nil {
		return 0, err
	}

	unlock := s.lock(path)
	f, err := s.read(path, ref)
	if err != nil || f == nil {
		unlock()
		return 0, err
	}
	kept := make([]string, 0, len(f.Entries))
	for _, e := range f.Entries {
		if !pred(e) {
			kept = append(kept, e)
		}
	}
	removed := len(f.Entries) - len(kept)
	if removed == 0 {
		unlock()
		return 0, nil
	}
	next := f.withEntries(kept)
	err = s.write(path, next)
	snap := s.stamp(next)
	unlock()
	if err != nil {
		return 0, err
	}

	s.metrics.AddPruned(removed)
	s.logger.WithTrace(ctx).Debug("Memory pruned", "ref", ref.String(), "removed", removed)
	return removed, s.emitMutation(ctx, event.MemoryPruned, ref, snap, map[string]interface{}{"count": removed})
}

// Clear resets ref to a header-only file. The file itself is kept.
func (s *Store) Clear(ctx context.Context, ref Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ref, err := ref.Normalize()
	if err != nil {
		return err
	}
	path, err := s.path(ref)
	if err != nil {
		return err
	}

	unlock := s.lock(path)
	f, err := s.read(path, ref)
	if err != nil {
		unlock()
		return err
	}
	header := DefaultHeader(ref)
	removed := 0
	if f != nil {
		removed = len(f.Entries)
		header = f.Header
	}
	next := NewFile(header)
	err = s.write(path, next)
	snap := s.stamp(next)
	unlock()
	if err != nil {
		return err
	}

	s.metrics.IncClears()
	s.logger.WithTrace(ctx).Debug("Memory cleared", "ref", ref.String(), "removed", removed)
	return s.emitMutation(ctx, event.MemoryCleared, ref, snap, map[string]interface{}{"count": removed})
}

// Consolidate replaces the entries of ref with merge(entries). The result is
// validated and capacity-checked before anything is written. An unseen ref
// is a no-op.
func (s *Store) Consolidate(ctx context.Context, ref Ref, merge MergeFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if merge == nil {
		return memerrors.New(memerrors.CodeValidation, "consolidate requires a merge function")
	}
	ref, err := ref.Normalize()
	if err != nil {
		return err
	}
	path, err := s.path(ref)
	if err != nil {
		return err
	}

	unlock := s.lock(path)
	defer func() {
		if unlock != nil {
			unlock()
		}
	}()
	f, err := s.read(path, ref)
	if err != nil || f == nil {
		return err
	}

	input := make([]string, len(f.Entries))
	copy(input, f.Entries)
	merged, err := merge(ctx, input)
	if err != nil {
		return memerrors.Wrap(memerrors.CodeMergeFailed, "merge "+ref.String(), err)
	}
	for i, e := range merged {
		if err := ValidateEntry(e); err != nil {
			return fmt.Errorf("merged entry %d: %w", i, err)
		}
	}
	next := f.withEntries(merged)
	if err := s.checkCapacity(ref, next); err != nil {
		return err
	}
	if err := s.write(path, next); err != nil {
		return err
	}
	snap := s.stamp(next)
	unlock()
	unlock = nil

	s.metrics.IncConsolidations()
	s.logger.WithTrace(ctx).Debug("Memory consolidated", "ref", ref.String(),
		"before", len(f.Entries), "after", len(merged))
	return s.emitMutation(ctx, event.MemoryConsolidated, ref, snap, map[string]interface{}{
		"count":  len(f.Entries) - len(merged),
		"before": len(f.Entries),
		"after":  len(merged),
	})
}

// Usage describes a file's size against the configured limits.
type Usage struct {
	Ref       Ref        `json:"ref"`
	Status    SizeStatus `json:"status"`
	Size      int        `json:"size"`
	Remaining int        `json:"remaining"`
	Limits    Limits     `json:"limits"`
}

// SizeStatus reports ok, warn or critical from the file's byte length alone.
func (s *Store) SizeStatus(ctx context.Context, ref Ref) (*Usage, error) {
	l, err := s.List(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &Usage{
		Ref:       l.Ref,
		Status:    s.cfg.Limits.Status(l.Size),
		Size:      l.Size,
		Remaining: max(0, s.cfg.Limits.MaxBytes-l.Size),
		Limits:    s.cfg.Limits,
	}, nil
}

// Refs lists every memory file that exists, project first, then agent and
// user files sorted by agent id.
func (s *Store) Refs(ctx context.Context) ([]Ref, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var refs []Ref
	if _, err := os.Stat(filepath.Join(s.cfg.ProjectRoot, s.cfg.ProjectFile)); err == nil {
		refs = append(refs, ProjectRef())
	}

	roots := map[Scope]string{ScopeAgent: s.cfg.ProjectRoot, ScopeUser: s.cfg.UserRoot}
	for _, scope := range []Scope{ScopeAgent, ScopeUser} {
		if roots[scope] == "" {
			continue
		}
		dir := filepath.Join(roots[scope], s.cfg.MemoryDir)
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, memerrors.Wrap(memerrors.CodeIO, "list "+dir, err)
		}
		var ids []string
		for _, e := range entries {
			id, ok := strings.CutSuffix(e.Name(), ".md")
			if e.IsDir() || !ok || ValidateAgentID(id) != nil {
				continue
			}
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			refs = append(refs, Ref{Scope: scope, AgentID: id})
		}
	}
	return refs, nil
}

func (s *Store) checkCapacity(ref Ref, f *File) error {
	if size := f.Size(); size > s.cfg.Limits.MaxBytes {
		return memerrors.Newf(memerrors.CodeCapacityExceeded,
			"%s would grow to %d bytes, ceiling is %d", ref, size, s.cfg.Limits.MaxBytes).
			WithSuggestion("prune or consolidate this memory file first")
	}
	return nil
}

func (s *Store) reject(ctx context.Context, ref Ref, err error) {
	capacity := errors.Is(err, memerrors.ErrCapacityExceeded)
	s.metrics.IncRejected(capacity)
	s.logger.WithTrace(ctx).Debug("Memory update rejected", "ref", ref.String(), "error", err)
	_ = s.bus.Emit(event.NewEvent(event.MemoryRejected, map[string]interface{}{
		"scope":  string(ref.Scope),
		"agent":  ref.AgentID,
		"code":   memerrors.AsCode(err),
		"op_id":  telemetry.OpID(ctx),
		"reason": err.Error(),
	}))
}

// committed is the state of a file as written, stamped while its lock is
// still held.
type committed struct {
	file *File
	seq  uint64
	at   time.Time
}

func (s *Store) stamp(f *File) committed {
	return committed{file: f, seq: mutationSeq.Add(1), at: s.now()}
}

// emitMutation publishes a mutation event carrying an entries snapshot, plus
// a size warning when the new size crosses a threshold. Events are emitted
// after the lock is released, so hooks on the same file can observe them out
// of order; "seq" and "at" give the commit order.
func (s *Store) emitMutation(ctx context.Context, t event.EventType, ref Ref, snap committed, extra map[string]interface{}) error {
	f := snap.file
	size := f.Size()
	status := s.cfg.Limits.Status(size)
	opID := telemetry.OpID(ctx)

	data := map[string]interface{}{
		"scope":   string(ref.Scope),
		"agent":   ref.AgentID,
		"size":    size,
		"status":  string(status),
		"op_id":   opID,
		"entries": append([]string(nil), f.Entries...),
		"seq":     snap.seq,
		"at":      snap.at,
	}
	for k, v := range extra {
		data[k] = v
	}
	if err := s.bus.Emit(event.NewEvent(t, data)); err != nil {
		return fmt.Errorf("%s written, but event hook failed: %w", ref, err)
	}

	if status != StatusOK {
		s.logger.WithTrace(ctx).Warn("Memory file approaching ceiling",
			"ref", ref.String(), "size", size, "status", string(status), "max", s.cfg.Limits.MaxBytes)
		if err := s.bus.Emit(event.NewEvent(event.MemorySizeWarning, map[string]interface{}{
			"scope":  string(ref.Scope),
			"agent":  ref.AgentID,
			"size":   size,
			"status": string(status),
			"op_id":  opID,
		})); err != nil {
			return fmt.Errorf("%s written, but event hook failed: %w", ref, err)
		}
	}
	return nil
}
