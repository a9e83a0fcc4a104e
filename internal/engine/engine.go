package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/perimetric/traceline/internal/correlation"
	"github.com/perimetric/traceline/internal/infrastructure/config"
	"github.com/perimetric/traceline/internal/shared/id"
	"github.com/perimetric/traceline/internal/tracing"
)

// Config defines engine configuration
type Config struct {
	Tracing     tracing.Config
	Correlation correlation.Config
	// CleanupInterval is how often over-age active traces are abandoned.
	// Non-positive disables the loop.
	CleanupInterval time.Duration
	// SweepInterval is how often expired errors and clusters are deleted.
	// Non-positive disables the loop.
	SweepInterval time.Duration
}

// DefaultConfig returns production-ready engine configuration
func DefaultConfig() Config {
	return Config{
		Tracing:         tracing.DefaultConfig(),
		Correlation:     correlation.DefaultConfig(),
		CleanupInterval: time.Minute,
		SweepInterval:   10 * time.Minute,
	}
}

// ConfigFrom maps application configuration onto engine configuration
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Tracing: tracing.Config{
			SampleRate:         cfg.Tracing.SampleRate,
			MaxCompletedTraces: cfg.Tracing.MaxCompletedTraces,
			MaxTraceDuration:   cfg.Tracing.MaxTraceDuration,
		},
		Correlation: correlation.Config{
			Threshold:        cfg.Correlation.Threshold,
			RecentWindowSize: cfg.Correlation.RecentWindowSize,
			Retention:        time.Duration(cfg.Correlation.RetentionHours) * time.Hour,
			SpikeWindow:      cfg.Correlation.SpikeWindow,
			Weights:          correlation.DefaultWeights(),
		},
		CleanupInterval: cfg.Tracing.CleanupInterval,
		SweepInterval:   cfg.Correlation.SweepInterval,
	}
}

// Engine owns the request tracer and the error correlator and runs their
// background maintenance: the abandonment cleanup and the retention sweep.
// It is the single object host applications embed.
type Engine struct {
	cfg        Config
	logger     *zap.Logger
	tracer     *tracing.Tracer
	correlator *correlation.Correlator
	startedAt  time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates and starts an engine. Background loops begin immediately;
// call Shutdown to stop them.
func New(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		tracer:     tracing.New(cfg.Tracing, logger),
		correlator: correlation.New(cfg.Correlation, logger),
		startedAt:  time.Now(),
		stop:       make(chan struct{}),
	}

	if cfg.CleanupInterval > 0 {
		e.loop(cfg.CleanupInterval, func() {
			if n := e.tracer.CleanupAbandoned(); n > 0 {
				e.logger.Info("abandoned stale traces", zap.Int("count", n))
			}
		})
	}
	if cfg.SweepInterval > 0 {
		e.loop(cfg.SweepInterval, func() {
			e.correlator.Sweep()
		})
	}
	return e
}

// loop runs fn every interval until Shutdown
func (e *Engine) loop(interval time.Duration, fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-e.stop:
				return
			}
		}
	}()
}

// Shutdown stops the background loops and waits for them to drain, or
// returns the context's error if it expires first.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.stopOnce.Do(func() { close(e.stop) })

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.logger.Info("engine stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine shutdown: %w", ctx.Err())
	}
}

// Tracer returns the request tracer
func (e *Engine) Tracer() *tracing.Tracer {
	return e.tracer
}

// Correlator returns the error correlator
func (e *Engine) Correlator() *correlation.Correlator {
	return e.correlator
}

// RecordError records an error into the correlator with trace context from
// ctx.
func (e *Engine) RecordError(ctx context.Context, err error, opts ...correlation.RecordOption) (id.ErrorID, bool) {
	return e.correlator.Record(ctx, err, opts...)
}

// ============================================================================
// Aggregate reporting
// ============================================================================

// Statistics aggregates tracer and correlator counters
type Statistics struct {
	UptimeSeconds float64           `json:"uptime_seconds"`
	Tracing       tracing.Stats     `json:"tracing"`
	Correlation   correlation.Stats `json:"correlation"`
}

// Statistics returns a point-in-time aggregate snapshot
func (e *Engine) Statistics() Statistics {
	return Statistics{
		UptimeSeconds: time.Since(e.startedAt).Seconds(),
		Tracing:       e.tracer.Stats(),
		Correlation:   e.correlator.Stats(),
	}
}

// TimelineBucket is one granularity-sized slice of the timeline
type TimelineBucket struct {
	Start       time.Time `json:"start"`
	Traces      int       `json:"traces"`
	ErrorTraces int       `json:"error_traces"`
	Errors      int       `json:"errors"`
}

// TimelineView is the bucketed activity report for one trailing window
type TimelineView struct {
	WindowStart    time.Time        `json:"window_start"`
	WindowEnd      time.Time        `json:"window_end"`
	GranularitySec float64          `json:"granularity_seconds"`
	Buckets        []TimelineBucket `json:"buckets"`
}

// maxTimelineBuckets caps the response size for hostile window/granularity
// combinations
const maxTimelineBuckets = 1000

// Timeline buckets completed-trace and recorded-error counts over the
// trailing window. Non-positive inputs fall back to a 1h window at 5m
// granularity.
func (e *Engine) Timeline(window, granularity time.Duration) TimelineView {
	if window <= 0 {
		window = time.Hour
	}
	if granularity <= 0 {
		granularity = 5 * time.Minute
	}
	if window/granularity > maxTimelineBuckets {
		granularity = window / maxTimelineBuckets
	}

	end := time.Now()
	start := end.Add(-window)
	n := int((window + granularity - 1) / granularity)

	buckets := make([]TimelineBucket, n)
	for i := range buckets {
		buckets[i].Start = start.Add(time.Duration(i) * granularity)
	}
	bucketFor := func(ts time.Time) int {
		i := int(ts.Sub(start) / granularity)
		if i < 0 || i >= n {
			return -1
		}
		return i
	}

	for _, tv := range e.tracer.CompletedSince(start) {
		if i := bucketFor(tv.StartTime); i >= 0 {
			buckets[i].Traces++
			if tv.ErrorCount > 0 {
				buckets[i].ErrorTraces++
			}
		}
	}
	for _, ts := range e.correlator.ErrorTimestampsSince(start) {
		if i := bucketFor(ts); i >= 0 {
			buckets[i].Errors++
		}
	}

	return TimelineView{
		WindowStart:    start,
		WindowEnd:      end,
		GranularitySec: granularity.Seconds(),
		Buckets:        buckets,
	}
}

// Recommendation pairs a high-priority cluster with generated guidance
type Recommendation struct {
	Cluster correlation.ClusterView `json:"cluster"`
	Advice  []string                `json:"advice"`
}

// Recommendations returns the top-priority clusters with generated
// operator guidance, highest priority first.
func (e *Engine) Recommendations() []Recommendation {
	clusters := e.correlator.HighPriorityClusters()

	recs := make([]Recommendation, 0, len(clusters))
	for _, cv := range clusters {
		recs = append(recs, Recommendation{
			Cluster: cv,
			Advice:  adviceFor(cv),
		})
	}
	return recs
}

func adviceFor(cv correlation.ClusterView) []string {
	var advice []string

	if cv.ErrorRate > 1.0 {
		advice = append(advice, fmt.Sprintf(
			"error rate %.1f/min exceeds 1.0/min; investigate before it compounds", cv.ErrorRate))
	}
	switch cv.Trend {
	case correlation.TrendIncreasing:
		advice = append(advice, "volume is increasing; check recent deploys and upstream changes")
	case correlation.TrendSpike:
		advice = append(advice, "sudden spike; correlate with deploy and incident timelines")
	}
	if cv.Cascade != nil && cv.Cascade.IsCascade {
		advice = append(advice, "cascade detected; fix the root errors first, downstream errors are symptoms")
	}
	advice = append(advice, cv.SuspectedRootCauses...)

	if len(advice) == 0 {
		advice = append(advice, "contains severe errors; review the sample errors for impact")
	}
	return advice
}
