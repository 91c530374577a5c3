package pipeline

import (
	"context"

	"github.com/google/uuid"
)

type traceKey struct{}

// WithTrace stores the correlation id on the context so downstream calls
// and log entries can pick it up without threading a parameter.
func WithTrace(ctx context.Context, trace string) context.Context {
	return context.WithValue(ctx, traceKey{}, trace)
}

// TraceFrom returns the correlation id on the context, or "" when unset.
func TraceFrom(ctx context.Context) string {
	trace, _ := ctx.Value(traceKey{}).(string)
	return trace
}

// EnsureTrace returns the context trace, minting a fresh id when absent.
func EnsureTrace(ctx context.Context) (context.Context, string) {
	if trace := TraceFrom(ctx); trace != "" {
		return ctx, trace
	}
	trace := uuid.New().String()
	return WithTrace(ctx, trace), trace
}
