package event

import (
	"fmt"
	"sync"
	"time"
)

// Bus fans memory events out to hooks. The store emits only after the file
// is on disk, so a blocking hook error is reported to the caller but never
// undoes the write.
//
// Blocking hooks run in registration order on the emitting goroutine and
// the first error stops dispatch. Non-blocking hooks each get a goroutine;
// their errors and panics are logged. Drain waits for those goroutines,
// which short-lived processes must do before exiting. A nil Bus is a no-op.
type Bus struct {
	mu       sync.RWMutex
	hooks    []Hook
	disabled bool
	logger   Logger
	inflight sync.WaitGroup
}

// Logger is the subset of telemetry.Logger the bus needs.
type Logger interface {
	Warn(msg string, keyvals ...interface{})
}

// NewBus returns an enabled bus. logger may be nil.
func NewBus(logger Logger) *Bus {
	return &Bus{logger: logger}
}

func (b *Bus) Register(h Hook) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.hooks = append(b.hooks, h)
	b.mu.Unlock()
}

// HookNames lists registered hooks in registration order.
func (b *Bus) HookNames() []string {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.hooks))
	for _, h := range b.hooks {
		names = append(names, h.Name())
	}
	return names
}

// SetEnabled turns dispatch on or off without dropping registrations.
func (b *Bus) SetEnabled(enabled bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.disabled = !enabled
	b.mu.Unlock()
}

// matching snapshots the hooks interested in t so no lock is held while
// they run.
func (b *Bus) matching(t EventType) []Hook {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.disabled {
		return nil
	}
	var out []Hook
	for _, h := range b.hooks {
		if h.Matches(t) {
			out = append(out, h)
		}
	}
	return out
}

// Emit dispatches ev and returns the first blocking hook error.
func (b *Bus) Emit(ev Event) error {
	if b == nil {
		return nil
	}
	for _, h := range b.matching(ev.Type) {
		if h.IsBlocking() {
			if err := h.Handle(ev); err != nil {
				return fmt.Errorf("blocking hook %s failed: %w", h.Name(), err)
			}
			continue
		}
		b.inflight.Add(1)
		go b.runAsync(h, ev)
	}
	return nil
}

func (b *Bus) runAsync(h Hook, ev Event) {
	defer b.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			b.warn("Non-blocking hook panicked", h, ev, "panic", r)
		}
	}()
	if err := h.Handle(ev); err != nil {
		b.warn("Non-blocking hook failed", h, ev, "error", err)
	}
}

func (b *Bus) warn(msg string, h Hook, ev Event, key string, val interface{}) {
	if b.logger == nil {
		return
	}
	b.logger.Warn(msg, "hook", h.Name(), "event", string(ev.Type), key, val)
}

// Drain waits up to timeout for non-blocking hooks still running and
// reports whether they all finished. timeout <= 0 waits indefinitely.
func (b *Bus) Drain(timeout time.Duration) bool {
	if b == nil {
		return true
	}
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
