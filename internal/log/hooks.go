package log

import (
	"context"

	"github.com/mrorigo/stream-healer/internal/tracing"
)

// traceFields enriches a log call with the trace ID and operation name
// carried on ctx, when present. It is registered on the global logger
// by SetGlobalConfig.
func traceFields(ctx context.Context, _ string, fields ...Field) []Field {
	if ctx == nil {
		return fields
	}

	if traceID, ok := tracing.GetTraceID(ctx); ok {
		fields = append(fields, String("trace_id", traceID))
	}

	if operationName, ok := tracing.GetOperationName(ctx); ok {
		fields = append(fields, String("operation_name", operationName))
	}

	return fields
}
