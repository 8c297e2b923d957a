package testutil

import (
	"context"
	"sync"

	"github.com/cadre-oss/agentmem/internal/memory"
	"github.com/cadre-oss/agentmem/internal/telemetry"
)

// MockMerger is a consolidation function that returns canned entries and
// records what it was given.
type MockMerger struct {
	mu       sync.Mutex
	Result   []string
	Err      error
	Calls    int
	Received [][]string
}

// Merge implements memory.MergeFunc.
func (m *MockMerger) Merge(ctx context.Context, entries []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.Received = append(m.Received, append([]string(nil), entries...))
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]string(nil), m.Result...), nil
}

// CallCount returns how many times Merge ran.
func (m *MockMerger) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// TestLogger returns a logger suitable for tests (verbose, no file output).
func TestLogger() *telemetry.Logger {
	return telemetry.NewLogger(true)
}

// TestLimits returns small thresholds so tests can cross them with a few
// short entries.
func TestLimits() memory.Limits {
	return memory.Limits{WarnBytes: 100, CriticalBytes: 150, MaxBytes: 200}
}

var _ memory.MergeFunc = (&MockMerger{}).Merge
