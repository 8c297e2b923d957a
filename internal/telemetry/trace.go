package telemetry

import (
	"context"

	"github.com/google/uuid"
)

type traceKey struct{}

// TraceContext carries correlation IDs for one memory operation.
// OpID doubles as the journal record id in the index.
type TraceContext struct {
	OpID      string `json:"op_id"`
	RequestID string `json:"request_id,omitempty"`
	Source    string `json:"source"` // cli, http, mcp
	AgentID   string `json:"agent_id,omitempty"`
}

// NewTraceContext creates a trace context with a fresh OpID.
func NewTraceContext(source string) *TraceContext {
	return &TraceContext{
		OpID:   uuid.NewString(),
		Source: source,
	}
}

// WithRequest returns a copy with the RequestID set.
func (tc *TraceContext) WithRequest(id string) *TraceContext {
	child := *tc
	child.RequestID = id
	return &child
}

// WithAgent returns a copy with the AgentID set.
func (tc *TraceContext) WithAgent(agentID string) *TraceContext {
	child := *tc
	child.AgentID = agentID
	return &child
}

// Fields returns key-value pairs suitable for structured logging.
func (tc *TraceContext) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"op_id":  tc.OpID,
		"source": tc.Source,
	}
	if tc.RequestID != "" {
		fields["request_id"] = tc.RequestID
	}
	if tc.AgentID != "" {
		fields["agent"] = tc.AgentID
	}
	return fields
}

// ContextWithTrace stores a TraceContext in the context.
func ContextWithTrace(ctx context.Context, tc *TraceContext) context.Context {
	return context.WithValue(ctx, traceKey{}, tc)
}

// TraceFromContext extracts a TraceContext from the context, or nil.
func TraceFromContext(ctx context.Context) *TraceContext {
	tc, _ := ctx.Value(traceKey{}).(*TraceContext)
	return tc
}

// OpID returns the operation id carried by ctx, minting a new one if absent.
func OpID(ctx context.Context) string {
	if tc := TraceFromContext(ctx); tc != nil && tc.OpID != "" {
		return tc.OpID
	}
	return uuid.NewString()
}

// WithTrace returns a logger enriched with trace fields from the context.
func (l *Logger) WithTrace(ctx context.Context) *Logger {
	tc := TraceFromContext(ctx)
	if tc == nil {
		return l
	}
	return l.WithFields(tc.Fields())
}
