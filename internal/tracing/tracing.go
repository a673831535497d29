// Package tracing propagates a per-request trace ID and operation name
// through context.Context, so the access log and the structured logger
// can correlate every line written while handling one proxied request.
//
// It intentionally carries none of the teacher's multi-tenant trace
// persistence (there is no database here): just the context
// plumbing and the HTTP header convention.
package tracing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type ctxKey int

const (
	traceIDKey ctxKey = iota
	operationNameKey
)

// Config names the inbound header the healer proxy reads a caller's
// trace ID from, and any additional headers to fall back to.
type Config struct {
	// TraceHeader is the header name for the trace ID.
	// Defaults to "X-Trace-Id".
	TraceHeader string `conf:"trace_header" mapstructure:"trace_header" yaml:"trace_header" json:"trace_header"`

	// ExtraTraceHeaders are consulted, in order, if TraceHeader is absent.
	ExtraTraceHeaders []string `conf:"extra_trace_headers" mapstructure:"extra_trace_headers" yaml:"extra_trace_headers" json:"extra_trace_headers"`
}

// HeaderName returns the configured trace header, or its default.
func (c Config) HeaderName() string {
	if c.TraceHeader != "" {
		return c.TraceHeader
	}

	return "X-Trace-Id"
}

// GenerateTraceID creates a new trace ID, format sh-{uuid}.
func GenerateTraceID() string {
	return fmt.Sprintf("sh-%s", uuid.New().String())
}

// WithTraceID stores traceID in ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID reads the trace ID from ctx.
func GetTraceID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(traceIDKey).(string)
	return id, ok
}

// WithOperationName stores name in ctx.
func WithOperationName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, operationNameKey, name)
}

// GetOperationName reads the operation name from ctx.
func GetOperationName(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(operationNameKey).(string)
	return name, ok
}
