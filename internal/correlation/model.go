package correlation

import (
	"sort"
	"time"

	"github.com/perimetric/traceline/internal/shared/id"
)

// Trend describes how a cluster's error volume is moving
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
	TrendSpike      Trend = "spike"
)

// CorrelatedError is one recorded error occurrence plus everything derived
// from it: classification, fingerprint, and links to related errors.
//
// Instances are owned by the Correlator; all mutation happens under its
// lock.
type CorrelatedError struct {
	ID            id.ErrorID
	Timestamp     time.Time
	TraceID       id.TraceID
	CorrelationID string

	ExceptionType string
	Message       string
	StackTrace    []string
	Function      string
	Module        string
	File          string
	Line          int

	Category    Category
	Severity    Severity
	Fingerprint string
	Parts       FingerprintParts
	Metadata    map[string]interface{}
	User        string

	Related map[id.ErrorID]struct{}
	// Score is the maximum correlation score observed against any related
	// error
	Score float64

	IsRootCause   bool
	ChainPosition int
}

// Cluster aggregates every recorded error sharing one fingerprint.
// Exactly one cluster exists per distinct fingerprint at any time.
type Cluster struct {
	ID          id.ClusterID
	Fingerprint string
	FirstSeen   time.Time
	LastSeen    time.Time

	Errors         []*CorrelatedError
	AffectedTraces map[id.TraceID]struct{}
	AffectedUsers  map[string]struct{}

	// ErrorRate is errors per minute over the trailing hour
	ErrorRate           float64
	Trend               Trend
	SuspectedRootCauses []string
	Temporal            *TemporalPattern
	Cascade             *CascadeResult
}

func newCluster(fingerprint string, first *CorrelatedError) *Cluster {
	c := &Cluster{
		ID:             id.NewClusterID(),
		Fingerprint:    fingerprint,
		FirstSeen:      first.Timestamp,
		LastSeen:       first.Timestamp,
		AffectedTraces: make(map[id.TraceID]struct{}),
		AffectedUsers:  make(map[string]struct{}),
		Trend:          TrendStable,
	}
	c.add(first)
	return c
}

func (c *Cluster) add(e *CorrelatedError) {
	c.Errors = append(c.Errors, e)
	if e.Timestamp.After(c.LastSeen) {
		c.LastSeen = e.Timestamp
	}
	if e.TraceID != "" {
		c.AffectedTraces[e.TraceID] = struct{}{}
	}
	if e.User != "" {
		c.AffectedUsers[e.User] = struct{}{}
	}
}

// Count reports the number of errors in the cluster
func (c *Cluster) Count() int {
	return len(c.Errors)
}

func (c *Cluster) timestamps() []time.Time {
	ts := make([]time.Time, len(c.Errors))
	for i, e := range c.Errors {
		ts[i] = e.Timestamp
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	return ts
}

// ============================================================================
// Reporting views
// ============================================================================

// ErrorView is an immutable snapshot of a recorded error
type ErrorView struct {
	ErrorID          string                 `json:"error_id"`
	Timestamp        time.Time              `json:"timestamp"`
	TraceID          string                 `json:"trace_id,omitempty"`
	CorrelationID    string                 `json:"correlation_id,omitempty"`
	ExceptionType    string                 `json:"exception_type"`
	ExceptionMessage string                 `json:"exception_message"`
	StackTrace       []string               `json:"stack_trace,omitempty"`
	FunctionName     string                 `json:"function_name"`
	ModuleName       string                 `json:"module_name"`
	FileName         string                 `json:"file_name"`
	LineNumber       int                    `json:"line_number"`
	Category         Category               `json:"category"`
	Severity         Severity               `json:"severity"`
	Fingerprint      string                 `json:"fingerprint"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	RelatedErrorIDs  []string               `json:"related_error_ids,omitempty"`
	CorrelationScore float64                `json:"correlation_score"`
	IsRootCause      bool                   `json:"is_root_cause"`
	ChainPosition    int                    `json:"chain_position"`
}

func (e *CorrelatedError) view(withStack bool) ErrorView {
	v := ErrorView{
		ErrorID:          e.ID.String(),
		Timestamp:        e.Timestamp,
		TraceID:          e.TraceID.String(),
		CorrelationID:    e.CorrelationID,
		ExceptionType:    e.ExceptionType,
		ExceptionMessage: e.Message,
		FunctionName:     e.Function,
		ModuleName:       e.Module,
		FileName:         e.File,
		LineNumber:       e.Line,
		Category:         e.Category,
		Severity:         e.Severity,
		Fingerprint:      e.Fingerprint,
		CorrelationScore: e.Score,
		IsRootCause:      e.IsRootCause,
		ChainPosition:    e.ChainPosition,
	}
	if withStack {
		v.StackTrace = append([]string(nil), e.StackTrace...)
	}
	if len(e.Metadata) > 0 {
		v.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, val := range e.Metadata {
			v.Metadata[k] = val
		}
	}
	if len(e.Related) > 0 {
		v.RelatedErrorIDs = make([]string, 0, len(e.Related))
		for rid := range e.Related {
			v.RelatedErrorIDs = append(v.RelatedErrorIDs, rid.String())
		}
		sort.Strings(v.RelatedErrorIDs)
	}
	return v
}

// ErrorDetailView is the full error record including its fingerprint
// components and snapshots of the errors it correlates with.
type ErrorDetailView struct {
	ErrorView
	FingerprintParts FingerprintParts `json:"fingerprint_components"`
	RelatedErrors    []ErrorView      `json:"related_errors,omitempty"`
}

// ClusterView is an immutable snapshot of an error cluster
type ClusterView struct {
	ClusterID           string           `json:"cluster_id"`
	Fingerprint         string           `json:"fingerprint"`
	FirstSeen           time.Time        `json:"first_seen"`
	LastSeen            time.Time        `json:"last_seen"`
	Count               int              `json:"count"`
	ErrorRate           float64          `json:"error_rate"`
	Trend               Trend            `json:"trend"`
	SuspectedRootCauses []string         `json:"suspected_root_causes,omitempty"`
	Temporal            *TemporalPattern `json:"temporal_pattern,omitempty"`
	Cascade             *CascadeResult   `json:"cascade,omitempty"`
	AffectedTraceCount  int              `json:"affected_trace_count"`
	AffectedUserCount   int              `json:"affected_user_count"`

	// Populated only in the detail view
	SampleErrors   []ErrorView `json:"sample_errors,omitempty"`
	AffectedTraces []string    `json:"affected_traces,omitempty"`
	AffectedUsers  []string    `json:"affected_users,omitempty"`
}

const clusterSampleSize = 10

func (c *Cluster) view(detailed bool) ClusterView {
	v := ClusterView{
		ClusterID:           c.ID.String(),
		Fingerprint:         c.Fingerprint,
		FirstSeen:           c.FirstSeen,
		LastSeen:            c.LastSeen,
		Count:               c.Count(),
		ErrorRate:           c.ErrorRate,
		Trend:               c.Trend,
		SuspectedRootCauses: append([]string(nil), c.SuspectedRootCauses...),
		Temporal:            c.Temporal,
		Cascade:             c.Cascade,
		AffectedTraceCount:  len(c.AffectedTraces),
		AffectedUserCount:   len(c.AffectedUsers),
	}
	if detailed {
		n := len(c.Errors)
		start := n - clusterSampleSize
		if start < 0 {
			start = 0
		}
		for _, e := range c.Errors[start:] {
			v.SampleErrors = append(v.SampleErrors, e.view(false))
		}
		for tid := range c.AffectedTraces {
			v.AffectedTraces = append(v.AffectedTraces, tid.String())
		}
		sort.Strings(v.AffectedTraces)
		for u := range c.AffectedUsers {
			v.AffectedUsers = append(v.AffectedUsers, u)
		}
		sort.Strings(v.AffectedUsers)
	}
	return v
}
