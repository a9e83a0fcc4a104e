package tracing

import (
	"sync"
	"time"

	"github.com/perimetric/traceline/internal/shared/id"
)

// SpanType categorizes the operation a span covers
type SpanType string

const (
	SpanTypeRequest        SpanType = "request"
	SpanTypeDatabase       SpanType = "database"
	SpanTypeExternalAPI    SpanType = "external_api"
	SpanTypeComputation    SpanType = "computation"
	SpanTypeIOOperation    SpanType = "io_operation"
	SpanTypeCache          SpanType = "cache"
	SpanTypeAuthentication SpanType = "authentication"
	SpanTypeMiddleware     SpanType = "middleware"
	SpanTypeProvider       SpanType = "provider"
	SpanTypeController     SpanType = "controller"
	SpanTypeOrchestrator   SpanType = "orchestrator"
	SpanTypeExecutor       SpanType = "executor"
)

// SpanStatus is the lifecycle state of a span
type SpanStatus string

const (
	SpanInProgress SpanStatus = "in_progress"
	SpanSuccess    SpanStatus = "success"
	SpanError      SpanStatus = "error"
)

// ErrorInfo is a structured summary of the error that failed a span
type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// SpanLog is a timestamped log event attached to a span
type SpanLog struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Span represents a single timed operation within a trace.
//
// A span is mutated by the goroutine running the traced operation and read
// concurrently by the reporting API, so its mutable fields are guarded by a
// small mutex. Identity fields are written once at creation and never change.
type Span struct {
	ID            id.SpanID
	ParentID      id.SpanID // empty for the trace's root span
	TraceID       id.TraceID
	CorrelationID string
	Operation     string
	Type          SpanType
	StartTime     time.Time

	mu       sync.Mutex
	endTime  time.Time
	duration time.Duration
	status   SpanStatus
	tags     map[string]string
	logs     []SpanLog
	baggage  map[string]interface{}
	errInfo  *ErrorInfo
}

func newSpan(traceID id.TraceID, correlationID string, parentID id.SpanID, operation string, spanType SpanType, tags map[string]string) *Span {
	s := &Span{
		ID:            id.NewSpanID(),
		ParentID:      parentID,
		TraceID:       traceID,
		CorrelationID: correlationID,
		Operation:     operation,
		Type:          spanType,
		StartTime:     time.Now(),
		status:        SpanInProgress,
		tags:          make(map[string]string, len(tags)),
		baggage:       make(map[string]interface{}),
	}
	for k, v := range tags {
		s.tags[k] = v
	}
	return s
}

// SetTag adds a tag to the span
func (s *Span) SetTag(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[key] = value
}

// SetBaggage attaches an arbitrary value to the span
func (s *Span) SetBaggage(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baggage[key] = value
}

// Baggage returns the value stored under key, if any
func (s *Span) Baggage(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.baggage[key]
	return v, ok
}

// Log appends a log event to the span
func (s *Span) Log(level, message string, fields map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, SpanLog{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Fields:    fields,
	})
}

// Status returns the span's current status
func (s *Span) Status() SpanStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Duration returns the span's duration, zero until finished
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Error returns the span's error summary, nil unless the span failed
func (s *Span) Error() *ErrorInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errInfo
}

// finish closes the span exactly once. Later calls are ignored.
func (s *Span) finish(status SpanStatus, errInfo *ErrorInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.endTime.IsZero() {
		return false
	}
	s.endTime = time.Now()
	s.duration = s.endTime.Sub(s.StartTime)
	s.status = status
	if status == SpanError && errInfo == nil {
		// An error span always carries error info
		errInfo = &ErrorInfo{Type: "unknown", Message: "unspecified error"}
	}
	s.errInfo = errInfo
	return true
}

// SpanView is an immutable snapshot of a span for the reporting API
type SpanView struct {
	SpanID        string                 `json:"span_id"`
	ParentSpanID  string                 `json:"parent_span_id,omitempty"`
	TraceID       string                 `json:"trace_id"`
	CorrelationID string                 `json:"correlation_id"`
	OperationName string                 `json:"operation_name"`
	SpanType      SpanType               `json:"span_type"`
	StartTime     time.Time              `json:"start_time"`
	EndTime       *time.Time             `json:"end_time,omitempty"`
	DurationMS    float64                `json:"duration_ms"`
	Status        SpanStatus             `json:"status"`
	Tags          map[string]string      `json:"tags,omitempty"`
	Logs          []SpanLog              `json:"logs,omitempty"`
	Baggage       map[string]interface{} `json:"baggage,omitempty"`
	ErrorInfo     *ErrorInfo             `json:"error_info,omitempty"`
}

// View builds a consistent snapshot of the span
func (s *Span) View() SpanView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := SpanView{
		SpanID:        s.ID.String(),
		ParentSpanID:  s.ParentID.String(),
		TraceID:       s.TraceID.String(),
		CorrelationID: s.CorrelationID,
		OperationName: s.Operation,
		SpanType:      s.Type,
		StartTime:     s.StartTime,
		DurationMS:    float64(s.duration) / float64(time.Millisecond),
		Status:        s.status,
		ErrorInfo:     s.errInfo,
	}
	if !s.endTime.IsZero() {
		end := s.endTime
		v.EndTime = &end
	}
	if len(s.tags) > 0 {
		v.Tags = make(map[string]string, len(s.tags))
		for k, val := range s.tags {
			v.Tags[k] = val
		}
	}
	if len(s.baggage) > 0 {
		v.Baggage = make(map[string]interface{}, len(s.baggage))
		for k, val := range s.baggage {
			v.Baggage[k] = val
		}
	}
	if len(s.logs) > 0 {
		v.Logs = append([]SpanLog(nil), s.logs...)
	}
	return v
}
