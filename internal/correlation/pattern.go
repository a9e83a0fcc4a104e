package correlation

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/perimetric/traceline/internal/shared/id"
)

// PatternKind names a detected temporal pattern
type PatternKind string

const (
	PatternBurst     PatternKind = "burst"
	PatternPeriodic  PatternKind = "periodic"
	PatternSpike     PatternKind = "spike"
	PatternScattered PatternKind = "scattered"
)

// Detection thresholds. Burst looks for rapid-fire errors, periodic for a
// steady cadence (low coefficient of variation), spike for a cluster whose
// whole lifetime fits inside one short window.
const (
	burstInterval      = 30 * time.Second
	burstFraction      = 0.6
	periodicScoreFloor = 0.7
	cascadeGap         = 10 * time.Second
)

// TemporalPattern is the outcome of temporal analysis over a cluster's
// error timestamps
type TemporalPattern struct {
	Kind       PatternKind `json:"kind"`
	Confidence float64     `json:"confidence"`
	Detail     string      `json:"detail"`
}

// CascadeEdge records one apparent root→caused relationship
type CascadeEdge struct {
	RootErrorID   id.ErrorID    `json:"root_error_id"`
	CausedErrorID id.ErrorID    `json:"caused_error_id"`
	Gap           time.Duration `json:"gap_ns"`
}

// CascadeResult is the outcome of cascade analysis over a cluster
type CascadeResult struct {
	IsCascade  bool          `json:"is_cascade"`
	Edges      []CascadeEdge `json:"edges,omitempty"`
	Confidence float64       `json:"confidence"`
}

// Detector analyzes a cluster's error timestamps and trace relationships
// for temporal patterns and cascades.
type Detector struct {
	// SpikeWindow bounds how long a cluster's whole lifetime may span to
	// still count as a spike
	SpikeWindow time.Duration
}

// NewDetector creates a pattern detector. A non-positive spikeWindow falls
// back to 5 minutes.
func NewDetector(spikeWindow time.Duration) *Detector {
	if spikeWindow <= 0 {
		spikeWindow = 5 * time.Minute
	}
	return &Detector{SpikeWindow: spikeWindow}
}

// Temporal classifies the inter-arrival behavior of the given timestamps.
// Returns nil when there are fewer than 3 observations, too few to call a
// pattern.
func (d *Detector) Temporal(timestamps []time.Time) *TemporalPattern {
	if len(timestamps) < 3 {
		return nil
	}

	ts := append([]time.Time(nil), timestamps...)
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })

	intervals := make([]float64, len(ts)-1)
	under := 0
	for i := 1; i < len(ts); i++ {
		gap := ts[i].Sub(ts[i-1])
		intervals[i-1] = gap.Seconds()
		if gap < burstInterval {
			under++
		}
	}

	if frac := float64(under) / float64(len(intervals)); frac >= burstFraction {
		return &TemporalPattern{
			Kind:       PatternBurst,
			Confidence: frac,
			Detail:     fmt.Sprintf("%d of %d intervals under %s", under, len(intervals), burstInterval),
		}
	}

	mean, std := stat.MeanStdDev(intervals, nil)
	if mean > 0 {
		if score := 1 - std/mean; score > periodicScoreFloor {
			return &TemporalPattern{
				Kind:       PatternPeriodic,
				Confidence: score,
				Detail:     fmt.Sprintf("regular cadence of ~%.1fs between errors", mean),
			}
		}
	}

	if span := ts[len(ts)-1].Sub(ts[0]); span <= d.SpikeWindow {
		return &TemporalPattern{
			Kind:       PatternSpike,
			Confidence: 0.8,
			Detail:     fmt.Sprintf("%d errors within %s", len(ts), span.Round(time.Second)),
		}
	}

	return &TemporalPattern{
		Kind:       PatternScattered,
		Confidence: 0.5,
		Detail:     "no dominant temporal pattern",
	}
}

// Cascades looks for one error provoking another within the same logical
// request: errors are grouped by correlation id, and any adjacent pair
// closer than the cascade gap becomes a root→caused edge.
func (d *Detector) Cascades(errors []*CorrelatedError) *CascadeResult {
	if len(errors) == 0 {
		return &CascadeResult{}
	}

	groups := make(map[string][]*CorrelatedError)
	for _, e := range errors {
		if e.CorrelationID == "" {
			continue
		}
		groups[e.CorrelationID] = append(groups[e.CorrelationID], e)
	}

	result := &CascadeResult{}
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Timestamp.Before(group[j].Timestamp) })
		for i := 1; i < len(group); i++ {
			gap := group[i].Timestamp.Sub(group[i-1].Timestamp)
			if gap > 0 && gap < cascadeGap {
				result.Edges = append(result.Edges, CascadeEdge{
					RootErrorID:   group[i-1].ID,
					CausedErrorID: group[i].ID,
					Gap:           gap,
				})
			}
		}
	}

	result.IsCascade = len(result.Edges) > 0
	if confidence := float64(len(result.Edges)) / float64(len(errors)); confidence < 1.0 {
		result.Confidence = confidence
	} else {
		result.Confidence = 1.0
	}
	return result
}

// rootErrorIDs returns the distinct edge roots that never appear as a
// caused error, i.e. the apparent origins of the chains.
func (r *CascadeResult) rootErrorIDs() []id.ErrorID {
	caused := make(map[id.ErrorID]struct{}, len(r.Edges))
	for _, e := range r.Edges {
		caused[e.CausedErrorID] = struct{}{}
	}
	seen := make(map[id.ErrorID]struct{})
	var roots []id.ErrorID
	for _, e := range r.Edges {
		if _, isCaused := caused[e.RootErrorID]; isCaused {
			continue
		}
		if _, dup := seen[e.RootErrorID]; dup {
			continue
		}
		seen[e.RootErrorID] = struct{}{}
		roots = append(roots, e.RootErrorID)
	}
	return roots
}
