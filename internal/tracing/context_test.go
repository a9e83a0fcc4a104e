package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/perimetric/traceline/internal/shared/id"
)

func TestFromContextEmpty(t *testing.T) {
	ctx := context.Background()

	_, ok := FromContext(ctx)
	assert.False(t, ok)
	assert.Equal(t, id.TraceID(""), TraceIDFrom(ctx))
	assert.Equal(t, "", CorrelationIDFrom(ctx))
	assert.Equal(t, id.SpanID(""), CurrentSpanID(ctx))
}

func TestWithTraceContext(t *testing.T) {
	ctx := WithTraceContext(context.Background(), &TraceContext{
		TraceID:       "trc_1",
		CorrelationID: "corr-1",
	})

	tc, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, id.TraceID("trc_1"), tc.TraceID)
	assert.Equal(t, "corr-1", tc.CorrelationID)
	assert.Empty(t, tc.SpanStack)
}

func TestClearTraceContext(t *testing.T) {
	ctx := WithTraceContext(context.Background(), &TraceContext{TraceID: "trc_1"})
	ctx = ClearTraceContext(ctx)

	_, ok := FromContext(ctx)
	assert.False(t, ok)
}

func TestPushPopSpan(t *testing.T) {
	ctx := WithTraceContext(context.Background(), &TraceContext{TraceID: "trc_1"})

	ctx1 := pushSpan(ctx, "spn_a")
	ctx2 := pushSpan(ctx1, "spn_b")

	assert.Equal(t, id.SpanID("spn_b"), CurrentSpanID(ctx2))
	assert.Equal(t, id.SpanID("spn_a"), CurrentSpanID(ctx1))
	// The parent context is untouched by deeper pushes
	assert.Equal(t, id.SpanID(""), CurrentSpanID(ctx))

	// Popping a span that is not on top is refused
	_, ok := popSpan(ctx2, "spn_a")
	assert.False(t, ok)

	popped, ok := popSpan(ctx2, "spn_b")
	assert.True(t, ok)
	assert.Equal(t, id.SpanID("spn_a"), CurrentSpanID(popped))
}

func TestPushSpanWithoutTrace(t *testing.T) {
	ctx := pushSpan(context.Background(), "spn_a")
	assert.Equal(t, id.SpanID(""), CurrentSpanID(ctx))
}
