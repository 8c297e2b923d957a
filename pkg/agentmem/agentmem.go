// Package agentmem provides a public API over agent memory files.
//
// Example usage:
//
//	import "github.com/cadre-oss/agentmem/pkg/agentmem"
//
//	// Record a learning for the engineer agent
//	err := agentmem.Remember("engineer", "run make lint before committing")
//
//	// Load what the engineer should see before its next task
//	text, err := agentmem.Recall("engineer")
package agentmem

import (
	"context"
	"errors"
	"fmt"

	"github.com/cadre-oss/agentmem/internal/config"
	"github.com/cadre-oss/agentmem/internal/event"
	"github.com/cadre-oss/agentmem/internal/index"
	"github.com/cadre-oss/agentmem/internal/memory"
	"github.com/cadre-oss/agentmem/internal/telemetry"
)

type (
	Ref       = memory.Ref
	Scope     = memory.Scope
	Listing   = memory.Listing
	Usage     = memory.Usage
	Context   = memory.Context
	Predicate = memory.Predicate
	MergeFunc = memory.MergeFunc
	Hit       = index.Hit
)

const (
	ScopeProject = memory.ScopeProject
	ScopeAgent   = memory.ScopeAgent
	ScopeUser    = memory.ScopeUser
)

var (
	ProjectRef = memory.ProjectRef
	AgentRef   = memory.AgentRef
	UserRef    = memory.UserRef

	MatchGlob  = memory.MatchGlob
	Contains   = memory.Contains
	DedupExact = memory.DedupExact
	KeepLatest = memory.KeepLatest
)

// ErrNoIndex is returned by Search when the search index is disabled or
// could not be opened.
var ErrNoIndex = errors.New("agentmem: search index is disabled")

// Memory is an open set of memory files for one project.
type Memory struct {
	store    *memory.Store
	loader   *memory.Loader
	index    *index.Index
	indexErr error
}

// Open loads agentmem.yaml from dir or its nearest parent that has one and
// opens the project's memory. A missing config uses the defaults rooted at dir.
func Open(dir string) (*Memory, error) {
	cfg, err := config.Load(config.Find(dir))
	if err != nil {
		return nil, err
	}
	return OpenConfig(cfg)
}

// OpenConfig opens memory described by an already loaded configuration.
// An index that cannot be opened is skipped: memory files keep working and
// Search reports ErrNoIndex with the cause.
func OpenConfig(cfg *config.Config) (*Memory, error) {
	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		return nil, err
	}
	logger := telemetry.NopLogger()
	bus := event.NewBus(logger)

	m := &Memory{}
	if cfg.IndexEnabled() {
		if err := m.openIndex(cfg); err != nil {
			logger.Warn("Search index unavailable", "error", err)
			m.indexErr = err
		} else {
			bus.Register(m.index.Hook())
		}
	}

	m.store, err = memory.NewStore(storeCfg, memory.WithEventBus(bus), memory.WithLogger(logger))
	if err != nil {
		m.Close()
		return nil, err
	}
	m.loader = memory.NewLoader(m.store,
		memory.LoaderConfig{MaxBytes: cfg.Loader.MaxBytes, MaxTokens: cfg.Loader.MaxTokens},
		memory.NewTokenCounter(cfg.Loader.Tokenizer, logger),
	)
	return m, nil
}

func (m *Memory) openIndex(cfg *config.Config) error {
	path, err := cfg.IndexPath()
	if err != nil {
		return err
	}
	m.index, err = index.Open(path)
	return err
}

// List returns the entries of ref in file order.
func (m *Memory) List(ctx context.Context, ref Ref) (*Listing, error) {
	return m.store.List(ctx, ref)
}

// Update appends one entry to ref.
func (m *Memory) Update(ctx context.Context, ref Ref, entry string) error {
	return m.store.Update(ctx, ref, entry)
}

// Prune removes entries matching pred and returns how many were removed.
func (m *Memory) Prune(ctx context.Context, ref Ref, pred Predicate) (int, error) {
	return m.store.Prune(ctx, ref, pred)
}

// Clear removes every entry from ref, keeping its header.
func (m *Memory) Clear(ctx context.Context, ref Ref) error {
	return m.store.Clear(ctx, ref)
}

// Consolidate rewrites ref through merge.
func (m *Memory) Consolidate(ctx context.Context, ref Ref, merge MergeFunc) error {
	return m.store.Consolidate(ctx, ref, merge)
}

// SizeStatus reports ref's size against the configured limits.
func (m *Memory) SizeStatus(ctx context.Context, ref Ref) (*Usage, error) {
	return m.store.SizeStatus(ctx, ref)
}

// Context assembles the memory agentID sees before a task.
func (m *Memory) Context(ctx context.Context, agentID string) (*Context, error) {
	return m.loader.Assemble(ctx, agentID)
}

// Search finds entries containing query across every memory file.
func (m *Memory) Search(ctx context.Context, query string) ([]Hit, error) {
	if m.index == nil {
		if m.indexErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoIndex, m.indexErr)
		}
		return nil, ErrNoIndex
	}
	return m.index.Search(ctx, query, index.Filter{})
}

// Close releases the search index.
func (m *Memory) Close() error {
	if m.index != nil {
		return m.index.Close()
	}
	return nil
}

// Remember appends entry to agentID's memory in the current project.
func Remember(agentID, entry string) error {
	return RememberWithContext(context.Background(), agentID, entry)
}

// RememberWithContext appends entry to agentID's memory in the current project.
func RememberWithContext(ctx context.Context, agentID, entry string) error {
	m, err := Open(".")
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Update(ctx, AgentRef(agentID), entry)
}

// Recall returns the assembled memory text for agentID in the current project.
func Recall(agentID string) (string, error) {
	return RecallWithContext(context.Background(), agentID)
}

// RecallWithContext returns the assembled memory text for agentID in the current project.
func RecallWithContext(ctx context.Context, agentID string) (string, error) {
	m, err := Open(".")
	if err != nil {
		return "", err
	}
	defer m.Close()
	c, err := m.Context(ctx, agentID)
	if err != nil {
		return "", err
	}
	return c.Text, nil
}
