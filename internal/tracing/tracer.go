package tracing

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/perimetric/traceline/internal/shared/id"
)

// Config defines request tracer configuration
type Config struct {
	// SampleRate is the probability that StartTrace actually traces, in [0,1]
	SampleRate float64
	// MaxCompletedTraces bounds the completed-trace ring buffer
	MaxCompletedTraces int
	// MaxTraceDuration is the age past which an unfinished trace is abandoned
	MaxTraceDuration time.Duration
}

// DefaultConfig returns production-ready tracer configuration
func DefaultConfig() Config {
	return Config{
		SampleRate:         1.0,
		MaxCompletedTraces: 1000,
		MaxTraceDuration:   5 * time.Minute,
	}
}

// Stats holds aggregate tracer counters
type Stats struct {
	ActiveTraces     int     `json:"active_traces"`
	CompletedTraces  int     `json:"completed_traces"`
	TracesStarted    uint64  `json:"traces_started"`
	TracesFinished   uint64  `json:"traces_finished"`
	TracesAbandoned  uint64  `json:"traces_abandoned"`
	TracesSampledOut uint64  `json:"traces_sampled_out"`
	TracesWithErrors uint64  `json:"traces_with_errors"`
	SpansStarted     uint64  `json:"spans_started"`
	SpansFinished    uint64  `json:"spans_finished"`
	SpansErrored     uint64  `json:"spans_errored"`
	SampleRate       float64 `json:"sample_rate"`
}

// Tracer owns trace and span lifecycle: sampling decisions, the active-trace
// registry, the bounded completed-trace ring buffer, and abandonment of
// traces whose owner never finished them.
//
// Every operation is defensive: a missing trace, a missing span, or a
// malformed span stack logs at debug level and no-ops. Tracing must never
// abort the traced business operation.
type Tracer struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.RWMutex
	active    map[id.TraceID]*Trace
	completed []*Trace // ring buffer, oldest first
	stats     Stats

	rngMu sync.Mutex
	rng   *rand.Rand

	onFinished func(TraceView)
}

// New creates a request tracer
func New(cfg Config, logger *zap.Logger) *Tracer {
	if cfg.MaxCompletedTraces <= 0 {
		cfg.MaxCompletedTraces = DefaultConfig().MaxCompletedTraces
	}
	if cfg.MaxTraceDuration <= 0 {
		cfg.MaxTraceDuration = DefaultConfig().MaxTraceDuration
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracer{
		cfg:    cfg,
		logger: logger,
		active: make(map[id.TraceID]*Trace),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// OnTraceFinished registers a callback invoked with a snapshot of every
// finished (or abandoned) trace. Must be set before traffic starts.
func (t *Tracer) OnTraceFinished(fn func(TraceView)) {
	t.onFinished = fn
}

// shouldSample applies the configured sampling probability
func (t *Tracer) shouldSample() bool {
	if t.cfg.SampleRate >= 1.0 {
		return true
	}
	if t.cfg.SampleRate <= 0 {
		return false
	}
	t.rngMu.Lock()
	defer t.rngMu.Unlock()
	return t.rng.Float64() < t.cfg.SampleRate
}

// StartTrace begins a new trace, honoring the sampling decision.
//
// If correlationID is empty a new one is generated; an id supplied by an
// upstream caller is kept as-is so client and server logs stay correlated.
// When the sampler rejects the request, ok is false and the returned context
// is the caller's unchanged: the operation proceeds untraced.
func (t *Tracer) StartTrace(ctx context.Context, correlationID string) (context.Context, id.TraceID, bool) {
	if !t.shouldSample() {
		t.mu.Lock()
		t.stats.TracesSampledOut++
		t.mu.Unlock()
		t.logger.Debug("trace not sampled", zap.Float64("sample_rate", t.cfg.SampleRate))
		return ctx, "", false
	}

	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	trace := newTrace(correlationID)

	t.mu.Lock()
	t.active[trace.ID] = trace
	t.stats.TracesStarted++
	t.mu.Unlock()

	ctx = WithTraceContext(ctx, &TraceContext{
		TraceID:       trace.ID,
		CorrelationID: correlationID,
	})

	t.logger.Debug("trace started",
		zap.String("trace_id", trace.ID.String()),
		zap.String("correlation_id", correlationID),
	)
	return ctx, trace.ID, true
}

// StartSpan opens a span under the ambient trace. The parent is the span on
// top of the ambient span stack, if any. Returns ok=false (and the caller's
// context unchanged) when no active trace is in scope.
func (t *Tracer) StartSpan(ctx context.Context, operation string, spanType SpanType, tags map[string]string) (context.Context, *Span, bool) {
	tc, ok := FromContext(ctx)
	if !ok {
		t.logger.Debug("start_span without active trace", zap.String("operation", operation))
		return ctx, nil, false
	}

	t.mu.Lock()
	trace, ok := t.active[tc.TraceID]
	if !ok {
		t.mu.Unlock()
		t.logger.Debug("start_span for unknown trace",
			zap.String("trace_id", tc.TraceID.String()),
			zap.String("operation", operation),
		)
		return ctx, nil, false
	}

	span := newSpan(tc.TraceID, tc.CorrelationID, tc.CurrentSpanID(), operation, spanType, tags)
	trace.addSpan(span)
	t.stats.SpansStarted++
	t.mu.Unlock()

	return pushSpan(ctx, span.ID), span, true
}

// FinishSpan closes a span, recording status and optional error info, and
// returns a context with the span popped from the ambient stack. The pop
// only happens when the span is on top of the stack; anything else indicates
// out-of-order unwinding and is logged at debug level.
func (t *Tracer) FinishSpan(ctx context.Context, span *Span, status SpanStatus, errInfo *ErrorInfo) context.Context {
	if span == nil {
		t.logger.Debug("finish_span with nil span")
		return ctx
	}
	if !span.finish(status, errInfo) {
		t.logger.Debug("finish_span on already finished span", zap.String("span_id", span.ID.String()))
		return ctx
	}

	t.mu.Lock()
	t.stats.SpansFinished++
	if status == SpanError {
		t.stats.SpansErrored++
	}
	if errInfo != nil || status == SpanError {
		if trace, ok := t.active[span.TraceID]; ok {
			trace.ErrorCount++
		} else {
			t.logger.Debug("finish_span for unknown trace", zap.String("trace_id", span.TraceID.String()))
		}
	}
	t.mu.Unlock()

	popped, ok := popSpan(ctx, span.ID)
	if !ok {
		t.logger.Debug("finish_span out of stack order", zap.String("span_id", span.ID.String()))
		return ctx
	}
	return popped
}

// FinishTrace finishes the ambient trace and returns a context with all
// trace state cleared.
func (t *Tracer) FinishTrace(ctx context.Context) context.Context {
	tc, ok := FromContext(ctx)
	if !ok {
		t.logger.Debug("finish_trace without active trace")
		return ctx
	}
	t.FinishTraceByID(tc.TraceID)
	return ClearTraceContext(ctx)
}

// FinishTraceByID finishes a specific trace, moving it from the active
// registry to the completed ring buffer. The final status derives from the
// trace's error count.
func (t *Tracer) FinishTraceByID(traceID id.TraceID) {
	t.finishTrace(traceID, "")
}

func (t *Tracer) finishTrace(traceID id.TraceID, forcedStatus TraceStatus) {
	t.mu.Lock()
	trace, ok := t.active[traceID]
	if !ok {
		t.mu.Unlock()
		t.logger.Debug("finish_trace for unknown trace", zap.String("trace_id", traceID.String()))
		return
	}
	delete(t.active, traceID)

	trace.EndTime = time.Now()
	switch {
	case forcedStatus != "":
		trace.Status = forcedStatus
	case trace.ErrorCount > 0:
		trace.Status = TraceError
	default:
		trace.Status = TraceCompleted
	}

	t.completed = append(t.completed, trace)
	if len(t.completed) > t.cfg.MaxCompletedTraces {
		// Evict oldest first
		t.completed = t.completed[len(t.completed)-t.cfg.MaxCompletedTraces:]
	}

	if forcedStatus == TraceAbandoned {
		t.stats.TracesAbandoned++
	} else {
		t.stats.TracesFinished++
	}
	if trace.ErrorCount > 0 {
		t.stats.TracesWithErrors++
	}
	view := trace.view(true)
	t.mu.Unlock()

	t.logger.Debug("trace finished",
		zap.String("trace_id", traceID.String()),
		zap.String("status", string(trace.Status)),
		zap.Int("error_count", trace.ErrorCount),
	)
	if t.onFinished != nil {
		t.onFinished(view)
	}
}

// CleanupAbandoned force-finishes every active trace older than the
// configured maximum duration. It guards against traces whose owning request
// crashed without calling FinishTrace. Returns the number reclaimed.
func (t *Tracer) CleanupAbandoned() int {
	now := time.Now()

	t.mu.RLock()
	var stale []id.TraceID
	for traceID, trace := range t.active {
		if trace.age(now) > t.cfg.MaxTraceDuration {
			stale = append(stale, traceID)
		}
	}
	t.mu.RUnlock()

	for _, traceID := range stale {
		t.logger.Debug("abandoning stale trace", zap.String("trace_id", traceID.String()))
		t.finishTrace(traceID, TraceAbandoned)
	}
	return len(stale)
}

// WithSpan runs fn inside a span, guaranteeing the span is finished exactly
// once on every exit path. A returned error or a panic marks the span as
// errored with a structured summary; panics are re-raised after the span is
// closed. This is the scoped replacement for manually paired
// StartSpan/FinishSpan calls.
func (t *Tracer) WithSpan(ctx context.Context, operation string, spanType SpanType, fn func(context.Context) error) error {
	spanCtx, span, ok := t.StartSpan(ctx, operation, spanType, nil)
	if !ok {
		return fn(ctx)
	}

	defer func() {
		if r := recover(); r != nil {
			t.FinishSpan(spanCtx, span, SpanError, &ErrorInfo{
				Type:    "panic",
				Message: fmt.Sprint(r),
				Stack:   string(debug.Stack()),
			})
			panic(r)
		}
	}()

	err := fn(spanCtx)
	if err != nil {
		t.FinishSpan(spanCtx, span, SpanError, ErrorInfoFromError(err))
		return err
	}
	t.FinishSpan(spanCtx, span, SpanSuccess, nil)
	return nil
}

// Traced wraps an operation so every invocation runs inside a span named
// after it.
func (t *Tracer) Traced(operation string, spanType SpanType, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return t.WithSpan(ctx, operation, spanType, fn)
	}
}

// ErrorInfoFromError builds a span error summary from an error value
func ErrorInfoFromError(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	return &ErrorInfo{
		Type:    fmt.Sprintf("%T", err),
		Message: err.Error(),
	}
}

// ============================================================================
// Reporting accessors
// ============================================================================

// Trace returns a full snapshot of a trace by id, searching active traces
// first and the completed ring second.
func (t *Tracer) Trace(traceID id.TraceID) (TraceView, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if trace, ok := t.active[traceID]; ok {
		return trace.view(true), true
	}
	for i := len(t.completed) - 1; i >= 0; i-- {
		if t.completed[i].ID == traceID {
			return t.completed[i].view(true), true
		}
	}
	return TraceView{}, false
}

// TraceByCorrelation returns the most recent trace carrying correlationID
func (t *Tracer) TraceByCorrelation(correlationID string) (TraceView, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, trace := range t.active {
		if trace.CorrelationID == correlationID {
			return trace.view(true), true
		}
	}
	for i := len(t.completed) - 1; i >= 0; i-- {
		if t.completed[i].CorrelationID == correlationID {
			return t.completed[i].view(true), true
		}
	}
	return TraceView{}, false
}

// RecentTraces returns trace summaries newest first: active traces, then
// completed ones. Span bodies are omitted. errorsOnly keeps traces with at
// least one error.
func (t *Tracer) RecentTraces(limit int, errorsOnly bool) []TraceView {
	t.mu.RLock()
	defer t.mu.RUnlock()

	views := make([]TraceView, 0, len(t.active)+len(t.completed))
	for _, trace := range t.active {
		views = append(views, trace.view(false))
	}
	for i := len(t.completed) - 1; i >= 0; i-- {
		views = append(views, t.completed[i].view(false))
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].StartTime.After(views[j].StartTime)
	})

	if errorsOnly {
		filtered := views[:0]
		for _, v := range views {
			if v.ErrorCount > 0 {
				filtered = append(filtered, v)
			}
		}
		views = filtered
	}
	if limit > 0 && len(views) > limit {
		views = views[:limit]
	}
	return views
}

// CompletedSince returns end timestamps and error counts of completed traces
// newer than cutoff, used by the timeline report.
func (t *Tracer) CompletedSince(cutoff time.Time) []TraceView {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var views []TraceView
	for _, trace := range t.completed {
		if trace.EndTime.After(cutoff) {
			views = append(views, trace.view(false))
		}
	}
	return views
}

// Stats returns a snapshot of the tracer's aggregate counters
func (t *Tracer) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.stats
	s.ActiveTraces = len(t.active)
	s.CompletedTraces = len(t.completed)
	s.SampleRate = t.cfg.SampleRate
	return s
}
