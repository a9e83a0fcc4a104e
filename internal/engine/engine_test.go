package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perimetric/traceline/internal/correlation"
	"github.com/perimetric/traceline/internal/infrastructure/config"
	"github.com/perimetric/traceline/internal/tracing"
)

func newTestEngine() *Engine {
	cfg := DefaultConfig()
	// Loops are exercised separately; tests drive cleanup and sweep directly
	cfg.CleanupInterval = 0
	cfg.SweepInterval = 0
	return New(cfg, nil)
}

func TestConfigFrom(t *testing.T) {
	appCfg := config.Default()
	appCfg.Tracing.SampleRate = 0.5
	appCfg.Correlation.RetentionHours = 6

	cfg := ConfigFrom(appCfg)
	assert.Equal(t, 0.5, cfg.Tracing.SampleRate)
	assert.Equal(t, 6*time.Hour, cfg.Correlation.Retention)
	assert.Equal(t, time.Minute, cfg.CleanupInterval)
	assert.Equal(t, 10*time.Minute, cfg.SweepInterval)
}

func TestEngineTraceAndErrorFlow(t *testing.T) {
	e := newTestEngine()
	defer e.Shutdown(context.Background())

	ctx, traceID, ok := e.Tracer().StartTrace(context.Background(), "req-1")
	require.True(t, ok)
	require.NotEmpty(t, traceID)

	ctx, span, ok := e.Tracer().StartSpan(ctx, "load", tracing.SpanTypeDatabase, nil)
	require.True(t, ok)

	errorID, recorded := e.RecordError(ctx, errors.New("connection refused"),
		correlation.WithExceptionType("ConnectionError"),
	)
	require.True(t, recorded)

	ctx = e.Tracer().FinishSpan(ctx, span, tracing.SpanError, tracing.ErrorInfoFromError(errors.New("connection refused")))
	e.Tracer().FinishTrace(ctx)

	detail, found := e.Correlator().Error(errorID)
	require.True(t, found)
	assert.Equal(t, traceID.String(), detail.TraceID)
	assert.Equal(t, "req-1", detail.CorrelationID)

	stats := e.Statistics()
	assert.Equal(t, uint64(1), stats.Tracing.TracesFinished)
	assert.Equal(t, uint64(1), stats.Correlation.ErrorsRecorded)
	assert.GreaterOrEqual(t, stats.UptimeSeconds, 0.0)
}

func TestShutdownStopsLoops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CleanupInterval = 10 * time.Millisecond
	cfg.SweepInterval = 10 * time.Millisecond
	e := New(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, e.Shutdown(ctx))

	// Shutdown is idempotent
	assert.NoError(t, e.Shutdown(ctx))
}

func TestTimelineBucketsCounts(t *testing.T) {
	e := newTestEngine()
	defer e.Shutdown(context.Background())

	ctx, _, ok := e.Tracer().StartTrace(context.Background(), "")
	require.True(t, ok)
	e.Tracer().FinishTrace(ctx)

	_, recorded := e.RecordError(context.Background(), errors.New("boom"))
	require.True(t, recorded)

	tl := e.Timeline(time.Hour, 5*time.Minute)
	assert.Len(t, tl.Buckets, 12)
	assert.Equal(t, 300.0, tl.GranularitySec)

	traces, errs := 0, 0
	for _, b := range tl.Buckets {
		traces += b.Traces
		errs += b.Errors
	}
	assert.Equal(t, 1, traces)
	assert.Equal(t, 1, errs)
}

func TestTimelineDefaultsAndCaps(t *testing.T) {
	e := newTestEngine()
	defer e.Shutdown(context.Background())

	tl := e.Timeline(0, 0)
	assert.Len(t, tl.Buckets, 12)

	// A degenerate granularity may not explode the bucket count
	tl = e.Timeline(24*time.Hour, time.Millisecond)
	assert.LessOrEqual(t, len(tl.Buckets), 1000)
}

func TestRecommendations(t *testing.T) {
	e := newTestEngine()
	defer e.Shutdown(context.Background())

	assert.Empty(t, e.Recommendations())

	_, recorded := e.RecordError(context.Background(), errors.New("fatal corruption in segment"),
		correlation.WithExceptionType("StorageError"),
	)
	require.True(t, recorded)

	recs := e.Recommendations()
	require.Len(t, recs, 1)
	assert.NotEmpty(t, recs[0].Advice)
	assert.Equal(t, 1, recs[0].Cluster.Count)
}
