package tracing

import (
	"sort"
	"time"

	"github.com/perimetric/traceline/internal/shared/id"
)

// TraceStatus is the lifecycle state of a trace
type TraceStatus string

const (
	TraceInProgress TraceStatus = "in_progress"
	TraceCompleted  TraceStatus = "completed"
	TraceError      TraceStatus = "error"
	TraceAbandoned  TraceStatus = "abandoned"
)

// Trace is the complete record of one logical operation, composed of spans.
//
// Traces are owned by the Tracer: every mutation and read goes through the
// tracer's lock, so the struct itself carries no synchronization.
type Trace struct {
	ID            id.TraceID
	CorrelationID string
	StartTime     time.Time
	EndTime       time.Time // zero until finished
	Status        TraceStatus
	ErrorCount    int
	RootSpanID    id.SpanID
	Metadata      map[string]interface{}
	Spans         map[id.SpanID]*Span
}

func newTrace(correlationID string) *Trace {
	return &Trace{
		ID:            id.NewTraceID(),
		CorrelationID: correlationID,
		StartTime:     time.Now(),
		Status:        TraceInProgress,
		Metadata:      make(map[string]interface{}),
		Spans:         make(map[id.SpanID]*Span),
	}
}

func (tr *Trace) addSpan(s *Span) {
	if tr.RootSpanID == "" && s.ParentID == "" {
		tr.RootSpanID = s.ID
	}
	tr.Spans[s.ID] = s
}

// age reports how long the trace has been running
func (tr *Trace) age(now time.Time) time.Duration {
	return now.Sub(tr.StartTime)
}

// TraceView is an immutable snapshot of a trace for the reporting API
type TraceView struct {
	TraceID       string                 `json:"trace_id"`
	CorrelationID string                 `json:"correlation_id"`
	StartTime     time.Time              `json:"start_time"`
	EndTime       *time.Time             `json:"end_time,omitempty"`
	DurationMS    float64                `json:"duration_ms"`
	Status        TraceStatus            `json:"status"`
	ErrorCount    int                    `json:"error_count"`
	RootSpanID    string                 `json:"root_span_id,omitempty"`
	SpanCount     int                    `json:"span_count"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Spans         []SpanView             `json:"spans,omitempty"`
}

// view snapshots the trace. Span views are included only when withSpans is
// set; list endpoints skip them to keep payloads small.
func (tr *Trace) view(withSpans bool) TraceView {
	v := TraceView{
		TraceID:       tr.ID.String(),
		CorrelationID: tr.CorrelationID,
		StartTime:     tr.StartTime,
		Status:        tr.Status,
		ErrorCount:    tr.ErrorCount,
		RootSpanID:    tr.RootSpanID.String(),
		SpanCount:     len(tr.Spans),
	}
	if !tr.EndTime.IsZero() {
		end := tr.EndTime
		v.EndTime = &end
		v.DurationMS = float64(tr.EndTime.Sub(tr.StartTime)) / float64(time.Millisecond)
	}
	if len(tr.Metadata) > 0 {
		v.Metadata = make(map[string]interface{}, len(tr.Metadata))
		for k, val := range tr.Metadata {
			v.Metadata[k] = val
		}
	}
	if withSpans {
		v.Spans = make([]SpanView, 0, len(tr.Spans))
		for _, s := range tr.Spans {
			v.Spans = append(v.Spans, s.View())
		}
		sort.Slice(v.Spans, func(i, j int) bool {
			return v.Spans[i].StartTime.Before(v.Spans[j].StartTime)
		})
	}
	return v
}
