package event

import "time"

// EventType identifies the kind of memory lifecycle event.
type EventType string

const (
	// Mutations
	MemoryUpdated      EventType = "memory.updated"
	MemoryPruned       EventType = "memory.pruned"
	MemoryCleared      EventType = "memory.cleared"
	MemoryConsolidated EventType = "memory.consolidated"

	// Rejections and size thresholds
	MemoryRejected    EventType = "memory.rejected"
	MemorySizeWarning EventType = "memory.size_warning"

	// Loader
	ContextAssembled EventType = "context.assembled"
)

// AllTypes lists every event type, in declaration order.
func AllTypes() []EventType {
	return []EventType{
		MemoryUpdated, MemoryPruned, MemoryCleared, MemoryConsolidated,
		MemoryRejected, MemorySizeWarning, ContextAssembled,
	}
}

// IsMutation reports whether events of this type change a memory file.
func (t EventType) IsMutation() bool {
	switch t {
	case MemoryUpdated, MemoryPruned, MemoryCleared, MemoryConsolidated:
		return true
	}
	return false
}

// Event carries data about a lifecycle occurrence.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]interface{}) Event {
	return Event{
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// String returns a data field as a string, or "" when absent.
func (e Event) String(key string) string {
	s, _ := e.Data[key].(string)
	return s
}
