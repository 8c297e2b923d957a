package index

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cadre-oss/agentmem/internal/event"
	"github.com/cadre-oss/agentmem/internal/memory"
)

// HookName identifies the index hook on the bus.
const HookName = "index"

// Hook returns a blocking hook that keeps the index in step with the store.
// Mutations are synced from the entries snapshot carried on the event, and
// a snapshot older than one already synced for the same file is skipped;
// rejected updates are journaled only.
func (x *Index) Hook() event.Hook {
	types := []event.EventType{
		event.MemoryUpdated,
		event.MemoryPruned,
		event.MemoryCleared,
		event.MemoryConsolidated,
		event.MemoryRejected,
	}
	return event.NewFuncHook(HookName, types, true, x.handle)
}

func (x *Index) handle(ev event.Event) error {
	ctx := context.Background()
	ref := memory.Ref{Scope: memory.Scope(ev.String("scope")), AgentID: ev.String("agent")}
	op := Op{
		OpID:   ev.String("op_id"),
		Ref:    ref,
		Op:     strings.TrimPrefix(string(ev.Type), "memory."),
		Count:  intField(ev, "count"),
		Size:   intField(ev, "size"),
		Status: ev.String("status"),
	}
	if at, ok := ev.Data["at"].(time.Time); ok {
		op.CreatedAt = at
	}
	if ev.Type == event.MemoryRejected {
		op.Status = ev.String("code")
		op.Detail = ev.String("reason")
		return x.Journal(ctx, op)
	}

	entries, ok := ev.Data["entries"].([]string)
	if !ok {
		return fmt.Errorf("event %s carries no entries snapshot", ev.Type)
	}
	if err := x.syncNewer(ctx, ref, entries, seqField(ev)); err != nil {
		return err
	}
	return x.Journal(ctx, op)
}

// syncNewer syncs entries unless a snapshot with a higher seq has already
// been synced for ref. A zero seq always syncs.
func (x *Index) syncNewer(ctx context.Context, ref memory.Ref, entries []string, seq uint64) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if seq != 0 && seq <= x.synced[ref] {
		return nil
	}
	if err := x.Sync(ctx, ref, entries); err != nil {
		return err
	}
	if seq != 0 {
		x.synced[ref] = seq
	}
	return nil
}

func seqField(ev event.Event) uint64 {
	switch v := ev.Data["seq"].(type) {
	case uint64:
		return v
	case int:
		return uint64(v)
	case float64:
		return uint64(v)
	}
	return 0
}

func intField(ev event.Event, key string) int {
	switch v := ev.Data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
