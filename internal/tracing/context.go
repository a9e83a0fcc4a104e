package tracing

import (
	"context"

	"github.com/perimetric/traceline/internal/shared/id"
)

// Context keys for trace propagation
type contextKey string

const traceContextKey contextKey = "trace_context"

// TraceContext carries the ambient tracing state for one logical request:
// the trace id, the correlation id, and the stack of currently-open span ids
// (innermost last).
//
// Values are immutable once stored in a context. Pushing or popping a span
// derives a new context with a copied stack, so two goroutines sharing a
// parent context can never observe each other's span stacks.
type TraceContext struct {
	TraceID       id.TraceID
	CorrelationID string
	SpanStack     []id.SpanID
}

// CurrentSpanID returns the innermost open span id, or "" if none
func (tc *TraceContext) CurrentSpanID() id.SpanID {
	if tc == nil || len(tc.SpanStack) == 0 {
		return ""
	}
	return tc.SpanStack[len(tc.SpanStack)-1]
}

// WithTraceContext stores a trace context in ctx. Passing a context with a
// fresh TraceContext starts a new ambient scope with an empty span stack.
func WithTraceContext(ctx context.Context, tc *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey, tc)
}

// ClearTraceContext removes any ambient trace state from ctx
func ClearTraceContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, traceContextKey, (*TraceContext)(nil))
}

// FromContext retrieves the ambient trace context, if any
func FromContext(ctx context.Context) (*TraceContext, bool) {
	tc, ok := ctx.Value(traceContextKey).(*TraceContext)
	if !ok || tc == nil {
		return nil, false
	}
	return tc, true
}

// TraceIDFrom returns the ambient trace id, or "" if none is set
func TraceIDFrom(ctx context.Context) id.TraceID {
	if tc, ok := FromContext(ctx); ok {
		return tc.TraceID
	}
	return ""
}

// CorrelationIDFrom returns the ambient correlation id, or "" if none is set
func CorrelationIDFrom(ctx context.Context) string {
	if tc, ok := FromContext(ctx); ok {
		return tc.CorrelationID
	}
	return ""
}

// CurrentSpanID returns the innermost open span id in ctx, or "" if none
func CurrentSpanID(ctx context.Context) id.SpanID {
	if tc, ok := FromContext(ctx); ok {
		return tc.CurrentSpanID()
	}
	return ""
}

// pushSpan derives a context whose span stack has spanID on top
func pushSpan(ctx context.Context, spanID id.SpanID) context.Context {
	tc, ok := FromContext(ctx)
	if !ok {
		return ctx
	}
	stack := make([]id.SpanID, len(tc.SpanStack)+1)
	copy(stack, tc.SpanStack)
	stack[len(stack)-1] = spanID
	return WithTraceContext(ctx, &TraceContext{
		TraceID:       tc.TraceID,
		CorrelationID: tc.CorrelationID,
		SpanStack:     stack,
	})
}

// popSpan derives a context with spanID removed from the top of the span
// stack. The pop only happens when spanID is actually on top: spans must
// unwind in LIFO order matching nested scope exit.
func popSpan(ctx context.Context, spanID id.SpanID) (context.Context, bool) {
	tc, ok := FromContext(ctx)
	if !ok || tc.CurrentSpanID() != spanID {
		return ctx, false
	}
	stack := make([]id.SpanID, len(tc.SpanStack)-1)
	copy(stack, tc.SpanStack[:len(tc.SpanStack)-1])
	return WithTraceContext(ctx, &TraceContext{
		TraceID:       tc.TraceID,
		CorrelationID: tc.CorrelationID,
		SpanStack:     stack,
	}), true
}
