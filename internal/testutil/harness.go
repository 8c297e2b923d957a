package testutil

import (
	"sync"
	"testing"

	"github.com/cadre-oss/agentmem/internal/event"
	"github.com/cadre-oss/agentmem/internal/memory"
	"github.com/cadre-oss/agentmem/internal/telemetry"
)

// TestHarness provides everything needed for store-level tests:
// a temp project root, a store wired to an event bus and metrics, and
// assertion helpers over the captured events.
type TestHarness struct {
	T       *testing.T
	Root    string
	Store   *memory.Store
	Bus     *event.Bus
	Metrics *telemetry.Metrics
	Logger  *telemetry.Logger

	mu     sync.Mutex
	events []event.Event
}

// NewTestHarness creates a harness over a fresh temp directory using
// TestLimits.
func NewTestHarness(t *testing.T, opts ...memory.Option) *TestHarness {
	t.Helper()

	logger := TestLogger()
	bus := event.NewBus(logger)
	metrics := telemetry.NewMetrics()

	h := &TestHarness{
		T:       t,
		Root:    t.TempDir(),
		Bus:     bus,
		Metrics: metrics,
		Logger:  logger,
	}
	bus.Register(&eventCapture{harness: h})

	cfg := memory.DefaultConfig(h.Root)
	cfg.Limits = TestLimits()
	opts = append([]memory.Option{
		memory.WithEventBus(bus),
		memory.WithMetrics(metrics),
		memory.WithLogger(logger),
	}, opts...)
	store, err := memory.NewStore(cfg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	h.Store = store
	return h
}

// Events returns a copy of the captured events.
func (h *TestHarness) Events() []event.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]event.Event(nil), h.events...)
}

// AssertEventEmitted checks that an event with the given type was emitted.
func (h *TestHarness) AssertEventEmitted(eventType event.EventType) {
	h.T.Helper()
	if h.EventCount(eventType) == 0 {
		h.T.Errorf("expected event %q to be emitted", eventType)
	}
}

// AssertNoEvent checks that an event type was NOT emitted.
func (h *TestHarness) AssertNoEvent(eventType event.EventType) {
	h.T.Helper()
	if n := h.EventCount(eventType); n > 0 {
		h.T.Errorf("expected event %q NOT to be emitted, but it was (%d times)", eventType, n)
	}
}

// EventCount returns the number of events with the given type.
func (h *TestHarness) EventCount(eventType event.EventType) int {
	count := 0
	for _, e := range h.Events() {
		if e.Type == eventType {
			count++
		}
	}
	return count
}

// eventCapture is a blocking hook that records every event.
type eventCapture struct {
	harness *TestHarness
}

func (c *eventCapture) Name() string                 { return "test-capture" }
func (c *eventCapture) Matches(event.EventType) bool { return true }
func (c *eventCapture) IsBlocking() bool             { return true } // sync for tests

func (c *eventCapture) Handle(ev event.Event) error {
	c.harness.mu.Lock()
	c.harness.events = append(c.harness.events, ev)
	c.harness.mu.Unlock()
	return nil
}
