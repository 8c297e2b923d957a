package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects memory store counters. A nil *Metrics is safe to use.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	Updates            int64
	RejectedUpdates    int64
	CapacityRejections int64
	Prunes             int64
	PrunedEntries      int64
	Clears             int64
	Consolidations     int64
	Assemblies         int64
	TruncatedContexts  int64

	// Histograms (simplified)
	opDurations []time.Duration

	exporter MetricsExporter
}

const maxDurations = 1000

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		opDurations: make([]time.Duration, 0, 1000),
	}
}

// IncUpdates counts an accepted update.
func (m *Metrics) IncUpdates() {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.Updates, 1)
}

// IncRejected counts a rejected update; capacity marks a ceiling rejection.
func (m *Metrics) IncRejected(capacity bool) {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.RejectedUpdates, 1)
	if capacity {
		atomic.AddInt64(&m.CapacityRejections, 1)
	}
}

// AddPruned counts a prune call and the entries it removed.
func (m *Metrics) AddPruned(n int) {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.Prunes, 1)
	atomic.AddInt64(&m.PrunedEntries, int64(n))
}

// IncClears counts a clear.
func (m *Metrics) IncClears() {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.Clears, 1)
}

// IncConsolidations counts a consolidation.
func (m *Metrics) IncConsolidations() {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.Consolidations, 1)
}

// IncAssemblies counts a context assembly; truncated marks a budget cut.
func (m *Metrics) IncAssemblies(truncated bool) {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.Assemblies, 1)
	if truncated {
		atomic.AddInt64(&m.TruncatedContexts, 1)
	}
}

// RecordOpDuration records how long a store operation took.
func (m *Metrics) RecordOpDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Keep a bounded window for long-running servers.
	if len(m.opDurations) >= maxDurations {
		m.opDurations = append(m.opDurations[:0], m.opDurations[len(m.opDurations)-maxDurations/2:]...)
	}
	m.opDurations = append(m.opDurations, d)
}

// GetSummary returns a summary of collected metrics
func (m *Metrics) GetSummary() map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := map[string]interface{}{
		"updates":             atomic.LoadInt64(&m.Updates),
		"rejected_updates":    atomic.LoadInt64(&m.RejectedUpdates),
		"capacity_rejections": atomic.LoadInt64(&m.CapacityRejections),
		"prunes":              atomic.LoadInt64(&m.Prunes),
		"pruned_entries":      atomic.LoadInt64(&m.PrunedEntries),
		"clears":              atomic.LoadInt64(&m.Clears),
		"consolidations":      atomic.LoadInt64(&m.Consolidations),
		"assemblies":          atomic.LoadInt64(&m.Assemblies),
		"truncated_contexts":  atomic.LoadInt64(&m.TruncatedContexts),
	}

	if len(m.opDurations) > 0 {
		var total time.Duration
		for _, d := range m.opDurations {
			total += d
		}
		summary["avg_op_duration_us"] = total.Microseconds() / int64(len(m.opDurations))
	}

	return summary
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range []*int64{
		&m.Updates, &m.RejectedUpdates, &m.CapacityRejections, &m.Prunes, &m.PrunedEntries,
		&m.Clears, &m.Consolidations, &m.Assemblies, &m.TruncatedContexts,
	} {
		atomic.StoreInt64(c, 0)
	}

	m.opDurations = m.opDurations[:0]
}

// SetExporter attaches a metrics exporter.
func (m *Metrics) SetExporter(e MetricsExporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exporter = e
}

// Flush exports the current metrics snapshot with the given event label.
func (m *Metrics) Flush(event string, labels map[string]string) {
	if m == nil {
		return
	}
	m.mu.RLock()
	exporter := m.exporter
	m.mu.RUnlock()

	if exporter == nil {
		return
	}

	snapshot := MetricsSnapshot{
		Timestamp: time.Now(),
		Event:     event,
		Metrics:   m.GetSummary(),
		Labels:    labels,
	}
	// Best-effort export.
	_ = exporter.Export(snapshot)
}
