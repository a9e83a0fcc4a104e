package correlation

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/perimetric/traceline/internal/shared/id"
	"github.com/perimetric/traceline/internal/tracing"
)

// Weights are the additive correlation-scoring signals. They are heuristic
// defaults, deliberately configurable rather than load-bearing constants.
type Weights struct {
	FingerprintMatch float64
	TypeMatch        float64
	MessageExact     float64
	MessageShared    float64
	ModuleMatch      float64
	FunctionMatch    float64 // additional, on top of ModuleMatch
	CorrelationMatch float64
	TimeProximity    float64
	TimeWindow       time.Duration
}

// DefaultWeights returns the stock scoring weights
func DefaultWeights() Weights {
	return Weights{
		FingerprintMatch: 0.8,
		TypeMatch:        0.3,
		MessageExact:     0.4,
		MessageShared:    0.2,
		ModuleMatch:      0.2,
		FunctionMatch:    0.3,
		CorrelationMatch: 0.4,
		TimeProximity:    0.3,
		TimeWindow:       60 * time.Second,
	}
}

// Config defines error correlator configuration
type Config struct {
	// Threshold is the minimum score at which two errors are linked
	Threshold float64
	// RecentWindowSize bounds the sliding buffer each new error is scored
	// against, keeping recording cost O(window)
	RecentWindowSize int
	// Retention is how long errors and clusters are kept before the sweep
	// deletes them
	Retention time.Duration
	// SpikeWindow is forwarded to the pattern detector
	SpikeWindow time.Duration
	Weights     Weights
}

// DefaultConfig returns production-ready correlator configuration
func DefaultConfig() Config {
	return Config{
		Threshold:        0.7,
		RecentWindowSize: 100,
		Retention:        24 * time.Hour,
		SpikeWindow:      5 * time.Minute,
		Weights:          DefaultWeights(),
	}
}

// Stats holds aggregate correlator counters
type Stats struct {
	ErrorsRecorded   uint64           `json:"errors_recorded"`
	ErrorsRetained   int              `json:"errors_retained"`
	Clusters         int              `json:"clusters"`
	LinksCreated     uint64           `json:"links_created"`
	RecentWindow     int              `json:"recent_window"`
	ErrorsByCategory map[Category]int `json:"errors_by_category"`
	ErrorsBySeverity map[Severity]int `json:"errors_by_severity"`
}

// Correlator records errors, scores them against a recent window, and
// groups them into per-fingerprint clusters with pattern analysis.
//
// Recording never propagates internal failures: tracing a failure must not
// cause a second failure. Anything that goes wrong inside Record is caught
// and logged.
type Correlator struct {
	cfg      Config
	logger   *zap.Logger
	detector *Detector

	mu       sync.RWMutex
	errors   map[id.ErrorID]*CorrelatedError
	recent   []*CorrelatedError // sliding window, oldest first
	clusters map[string]*Cluster
	byID     map[id.ClusterID]*Cluster
	recorded uint64
	links    uint64

	onRecorded       func(ErrorView)
	onClusterUpdated func(ClusterView)
}

// New creates an error correlator
func New(cfg Config, logger *zap.Logger) *Correlator {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if cfg.RecentWindowSize <= 0 {
		cfg.RecentWindowSize = DefaultConfig().RecentWindowSize
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig().Retention
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Correlator{
		cfg:      cfg,
		logger:   logger,
		detector: NewDetector(cfg.SpikeWindow),
		errors:   make(map[id.ErrorID]*CorrelatedError),
		clusters: make(map[string]*Cluster),
		byID:     make(map[id.ClusterID]*Cluster),
	}
}

// OnErrorRecorded registers a callback invoked with every recorded error.
// Must be set before traffic starts.
func (c *Correlator) OnErrorRecorded(fn func(ErrorView)) {
	c.onRecorded = fn
}

// OnClusterUpdated registers a callback invoked whenever a cluster absorbs
// a new error. Must be set before traffic starts.
func (c *Correlator) OnClusterUpdated(fn func(ClusterView)) {
	c.onClusterUpdated = fn
}

// ============================================================================
// Record options
// ============================================================================

type recordOptions struct {
	user          string
	metadata      map[string]interface{}
	exceptionType string
	frames        []Frame
	module        string
	function      string
	file          string
	line          int
	hasLocation   bool
	timestamp     time.Time
}

// RecordOption customizes how an error is recorded
type RecordOption func(*recordOptions)

// WithUser attributes the error to a user for affected-user tracking
func WithUser(user string) RecordOption {
	return func(o *recordOptions) { o.user = user }
}

// WithMetadata attaches arbitrary context to the recorded error
func WithMetadata(md map[string]interface{}) RecordOption {
	return func(o *recordOptions) { o.metadata = md }
}

// WithExceptionType overrides the error's type name, normally derived from
// the error value's dynamic type
func WithExceptionType(t string) RecordOption {
	return func(o *recordOptions) { o.exceptionType = t }
}

// WithLocation supplies the error's origin explicitly instead of capturing
// the caller's stack
func WithLocation(module, function, file string, line int) RecordOption {
	return func(o *recordOptions) {
		o.module, o.function, o.file, o.line = module, function, file, line
		o.hasLocation = true
	}
}

// WithStack supplies pre-resolved stack frames, e.g. carried over a wire
// boundary
func WithStack(frames []Frame) RecordOption {
	return func(o *recordOptions) { o.frames = frames }
}

// WithTimestamp overrides the record time, useful in tests and backfill
func WithTimestamp(ts time.Time) RecordOption {
	return func(o *recordOptions) { o.timestamp = ts }
}

// ============================================================================
// Recording
// ============================================================================

// Record fingerprints, classifies, correlates, and clusters an error.
// The trace and correlation ids are read from ctx when present. Returns
// ok=false when err is nil or an internal failure was swallowed.
func (c *Correlator) Record(ctx context.Context, err error, opts ...RecordOption) (errorID id.ErrorID, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("error recording failed", zap.Any("panic", r))
			errorID, ok = "", false
		}
	}()

	if err == nil {
		c.logger.Debug("record called with nil error")
		return "", false
	}

	var o recordOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.frames == nil {
		o.frames = captureFrames(3)
	}
	if !o.hasLocation {
		o.module, o.function, o.file, o.line = callerLocation(o.frames)
	}
	if o.exceptionType == "" {
		o.exceptionType = errorTypeName(err)
	}
	if o.timestamp.IsZero() {
		o.timestamp = time.Now()
	}

	fingerprint, parts := ComputeFingerprint(o.exceptionType, err.Error(), o.module, o.function, o.frames)

	e := &CorrelatedError{
		ID:            id.NewErrorID(),
		Timestamp:     o.timestamp,
		TraceID:       tracing.TraceIDFrom(ctx),
		CorrelationID: tracing.CorrelationIDFrom(ctx),
		ExceptionType: o.exceptionType,
		Message:       err.Error(),
		StackTrace:    renderStack(o.frames),
		Function:      o.function,
		Module:        o.module,
		File:          o.file,
		Line:          o.line,
		Category:      ClassifyCategory(o.exceptionType, err.Error()),
		Severity:      ClassifySeverity(o.exceptionType, err.Error()),
		Fingerprint:   fingerprint,
		Parts:         parts,
		Metadata:      o.metadata,
		User:          o.user,
		Related:       make(map[id.ErrorID]struct{}),
	}

	c.mu.Lock()
	c.errors[e.ID] = e
	c.correlate(e)
	c.recent = append(c.recent, e)
	if len(c.recent) > c.cfg.RecentWindowSize {
		c.recent = c.recent[len(c.recent)-c.cfg.RecentWindowSize:]
	}
	cluster := c.upsertCluster(e)
	c.recorded++
	errView := e.view(false)
	clusterView := cluster.view(false)
	c.mu.Unlock()

	c.logger.Debug("error recorded",
		zap.String("error_id", e.ID.String()),
		zap.String("fingerprint", fingerprint),
		zap.String("category", string(e.Category)),
		zap.String("severity", string(e.Severity)),
	)

	if c.onRecorded != nil {
		c.onRecorded(errView)
	}
	if c.onClusterUpdated != nil {
		c.onClusterUpdated(clusterView)
	}
	return e.ID, true
}

// errorTypeName derives an exception-type-like name from an error's dynamic
// type
func errorTypeName(err error) string {
	name := fmt.Sprintf("%T", err)
	return strings.TrimPrefix(name, "*")
}

// captureFrames resolves the caller's stack, skipping this package's own
// frames so the signature reflects application code.
func captureFrames(skip int) []Frame {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return nil
	}
	iter := runtime.CallersFrames(pcs[:n])

	var frames []Frame
	for {
		fr, more := iter.Next()
		if !strings.Contains(fr.Function, "traceline/internal/correlation") {
			frames = append(frames, Frame{
				File:     fr.File,
				Line:     fr.Line,
				Function: fr.Function,
			})
		}
		if !more {
			break
		}
	}
	return frames
}

// callerLocation extracts module/function/file/line from the first
// application frame.
func callerLocation(frames []Frame) (module, function, file string, line int) {
	for _, fr := range frames {
		if isFrameworkFrame(fr) {
			continue
		}
		module, function = splitQualifiedName(fr.Function)
		return module, function, fr.File, fr.Line
	}
	if len(frames) > 0 {
		fr := frames[0]
		module, function = splitQualifiedName(fr.Function)
		return module, function, fr.File, fr.Line
	}
	return "unknown", "unknown", "", 0
}

// splitQualifiedName splits a fully qualified Go function name like
// "github.com/acme/app/internal/store.(*DB).Load" into its package's last
// element and the function part.
func splitQualifiedName(qualified string) (module, function string) {
	if qualified == "" {
		return "unknown", "unknown"
	}
	rest := qualified
	if slash := strings.LastIndex(qualified, "/"); slash >= 0 {
		rest = qualified[slash+1:]
	}
	if dot := strings.Index(rest, "."); dot >= 0 {
		return rest[:dot], rest[dot+1:]
	}
	return rest, "unknown"
}

func renderStack(frames []Frame) []string {
	out := make([]string, len(frames))
	for i, fr := range frames {
		out[i] = fr.String()
	}
	return out
}

// ============================================================================
// Scoring and linking
// ============================================================================

// score computes the pairwise correlation score in [0,1], summed from
// independent signals and capped.
func (c *Correlator) score(a, b *CorrelatedError) float64 {
	w := c.cfg.Weights
	s := 0.0

	if a.Fingerprint == b.Fingerprint {
		s += w.FingerprintMatch
	}
	if a.ExceptionType == b.ExceptionType {
		s += w.TypeMatch
	}
	na, nb := NormalizeMessage(a.Message), NormalizeMessage(b.Message)
	if na == nb {
		s += w.MessageExact
	} else if sharesWord(na, nb) {
		s += w.MessageShared
	}
	if a.Module != "" && a.Module == b.Module {
		s += w.ModuleMatch
		if a.Function == b.Function {
			s += w.FunctionMatch
		}
	}
	if a.CorrelationID != "" && a.CorrelationID == b.CorrelationID {
		s += w.CorrelationMatch
	}
	dt := a.Timestamp.Sub(b.Timestamp)
	if dt < 0 {
		dt = -dt
	}
	if dt < w.TimeWindow {
		s += w.TimeProximity * (1 - dt.Seconds()/w.TimeWindow.Seconds())
	}

	if s > 1.0 {
		s = 1.0
	}
	return s
}

func sharesWord(a, b string) bool {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(a) {
		words[w] = struct{}{}
	}
	for _, w := range strings.Fields(b) {
		if _, ok := words[w]; ok {
			return true
		}
	}
	return false
}

// correlate scores e against every error in the recent window and links
// both sides when the score clears the threshold. Later errors see earlier
// ones, never the reverse; once linked, the relation is mutual.
func (c *Correlator) correlate(e *CorrelatedError) {
	for _, other := range c.recent {
		if other.ID == e.ID {
			continue
		}
		s := c.score(e, other)
		if s < c.cfg.Threshold {
			continue
		}
		e.Related[other.ID] = struct{}{}
		other.Related[e.ID] = struct{}{}
		if s > e.Score {
			e.Score = s
		}
		if s > other.Score {
			other.Score = s
		}
		c.links++
	}
}

// ============================================================================
// Clustering
// ============================================================================

// upsertCluster adds e to its fingerprint's cluster, creating the cluster
// on first sight, and refreshes the cluster's derived statistics. Caller
// holds the lock.
func (c *Correlator) upsertCluster(e *CorrelatedError) *Cluster {
	cluster, ok := c.clusters[e.Fingerprint]
	if !ok {
		cluster = newCluster(e.Fingerprint, e)
		c.clusters[e.Fingerprint] = cluster
		c.byID[cluster.ID] = cluster
	} else {
		cluster.add(e)
	}

	now := e.Timestamp
	cluster.ErrorRate = c.clusterRate(cluster, now)

	if cluster.Count() >= 3 {
		cluster.Temporal = c.detector.Temporal(cluster.timestamps())
		cluster.Cascade = c.detector.Cascades(cluster.Errors)
		c.markChainPositions(cluster)
		cluster.Trend = computeTrend(cluster, now)
		cluster.SuspectedRootCauses = suspectRootCauses(cluster)
	}
	return cluster
}

// clusterRate computes errors per minute over the trailing hour
func (c *Correlator) clusterRate(cluster *Cluster, now time.Time) float64 {
	cutoff := now.Add(-time.Hour)
	n := 0
	for _, e := range cluster.Errors {
		if e.Timestamp.After(cutoff) {
			n++
		}
	}
	return float64(n) / 60.0
}

// computeTrend compares volume in the last 30 minutes against everything
// earlier. A detected spike pattern wins outright.
func computeTrend(cluster *Cluster, now time.Time) Trend {
	if cluster.Temporal != nil && cluster.Temporal.Kind == PatternSpike {
		return TrendSpike
	}

	cutoff := now.Add(-30 * time.Minute)
	recent, earlier := 0, 0
	for _, e := range cluster.Errors {
		if e.Timestamp.After(cutoff) {
			recent++
		} else {
			earlier++
		}
	}
	switch {
	case earlier == 0 && recent > 0:
		return TrendIncreasing
	case recent > 2*earlier:
		return TrendIncreasing
	case 2*recent < earlier:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// markChainPositions annotates cluster errors with their cascade role:
// position within their correlation group, and whether they originate a
// chain. Caller holds the lock.
func (c *Correlator) markChainPositions(cluster *Cluster) {
	if cluster.Cascade == nil || !cluster.Cascade.IsCascade {
		return
	}
	roots := make(map[id.ErrorID]struct{})
	for _, rid := range cluster.Cascade.rootErrorIDs() {
		roots[rid] = struct{}{}
	}

	groups := make(map[string][]*CorrelatedError)
	for _, e := range cluster.Errors {
		if e.CorrelationID != "" {
			groups[e.CorrelationID] = append(groups[e.CorrelationID], e)
		}
	}
	for _, group := range groups {
		sort.Slice(group, func(i, j int) bool { return group[i].Timestamp.Before(group[j].Timestamp) })
		for i, e := range group {
			e.ChainPosition = i
			_, e.IsRootCause = roots[e.ID]
		}
	}
}

// suspectRootCauses produces best-effort, advisory explanations for a
// cluster.
func suspectRootCauses(cluster *Cluster) []string {
	var causes []string

	if cluster.Cascade != nil && cluster.Cascade.IsCascade {
		roots := cluster.Cascade.rootErrorIDs()
		causes = append(causes, fmt.Sprintf(
			"cascading failure: %d root error(s) triggering downstream errors", len(roots)))
	}

	modules := make(map[string]struct{})
	for _, e := range cluster.Errors {
		if e.Module != "" {
			modules[e.Module] = struct{}{}
		}
	}
	if len(modules) == 1 {
		for m := range modules {
			causes = append(causes, fmt.Sprintf("errors isolated to module %q", m))
		}
	} else if len(modules) > 1 {
		names := make([]string, 0, len(modules))
		for m := range modules {
			names = append(names, m)
		}
		sort.Strings(names)
		if len(names) > 3 {
			names = names[:3]
		}
		causes = append(causes, fmt.Sprintf("errors spread across modules: %s", strings.Join(names, ", ")))
	}

	if cluster.Temporal != nil {
		switch cluster.Temporal.Kind {
		case PatternBurst:
			causes = append(causes, "error burst suggests sudden load or resource issue")
		case PatternPeriodic:
			causes = append(causes, "periodic errors suggest scheduled job or cron issue")
		case PatternSpike:
			causes = append(causes, "error spike suggests triggered event or external change")
		}
	}

	types := make(map[string]int)
	for _, e := range cluster.Errors {
		types[e.ExceptionType]++
	}
	for typ, n := range types {
		if frac := float64(n) / float64(cluster.Count()); frac > 0.8 {
			causes = append(causes, fmt.Sprintf("dominant exception type %q (%.0f%% of cluster)", typ, frac*100))
		}
	}
	return causes
}

// ============================================================================
// Priority ranking
// ============================================================================

// priorityScore ranks a qualifying cluster for operator attention
func priorityScore(cluster *Cluster) float64 {
	score := cluster.ErrorRate * 10
	for _, e := range cluster.Errors {
		switch e.Severity {
		case SeverityCritical:
			score += 10
		case SeverityHigh:
			score += 5
		default:
			score++
		}
	}
	if cluster.Trend == TrendIncreasing || cluster.Trend == TrendSpike {
		score += 20
	}
	return score
}

// isHighPriority reports whether a cluster deserves operator attention:
// high volume, severe errors, or a worsening trend.
func isHighPriority(cluster *Cluster, now time.Time) bool {
	if cluster.ErrorRate > 1.0 {
		return true
	}
	for _, e := range cluster.Errors {
		if e.Severity == SeverityHigh || e.Severity == SeverityCritical {
			return true
		}
	}
	if cluster.Trend == TrendIncreasing {
		return true
	}
	if cluster.Trend == TrendSpike && now.Sub(cluster.LastSeen) < time.Hour {
		return true
	}
	return false
}

// HighPriorityClusters returns qualifying clusters sorted by descending
// priority score.
func (c *Correlator) HighPriorityClusters() []ClusterView {
	now := time.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	type ranked struct {
		view  ClusterView
		score float64
	}
	var qualifying []ranked
	for _, cluster := range c.clusters {
		if isHighPriority(cluster, now) {
			v := cluster.view(false)
			qualifying = append(qualifying, ranked{v, priorityScore(cluster)})
		}
	}
	sort.Slice(qualifying, func(i, j int) bool { return qualifying[i].score > qualifying[j].score })

	views := make([]ClusterView, len(qualifying))
	for i, r := range qualifying {
		views[i] = r.view
	}
	return views
}

// ============================================================================
// Retention
// ============================================================================

// Sweep deletes errors and clusters older than the retention period,
// bounding memory growth. Returns the number of errors and clusters
// removed.
func (c *Correlator) Sweep() (errorsRemoved, clustersRemoved int) {
	cutoff := time.Now().Add(-c.cfg.Retention)

	c.mu.Lock()
	defer c.mu.Unlock()

	for eid, e := range c.errors {
		if e.Timestamp.Before(cutoff) {
			delete(c.errors, eid)
			errorsRemoved++
		}
	}

	kept := c.recent[:0]
	for _, e := range c.recent {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	c.recent = kept

	for fp, cluster := range c.clusters {
		if cluster.LastSeen.Before(cutoff) {
			delete(c.clusters, fp)
			delete(c.byID, cluster.ID)
			clustersRemoved++
			continue
		}
		// Prune expired errors so count == len(errors) stays true
		retained := cluster.Errors[:0]
		for _, e := range cluster.Errors {
			if !e.Timestamp.Before(cutoff) {
				retained = append(retained, e)
			}
		}
		cluster.Errors = retained
	}

	if errorsRemoved > 0 || clustersRemoved > 0 {
		c.logger.Debug("retention sweep",
			zap.Int("errors_removed", errorsRemoved),
			zap.Int("clusters_removed", clustersRemoved),
		)
	}
	return errorsRemoved, clustersRemoved
}

// ============================================================================
// Reporting accessors
// ============================================================================

// RecentErrors returns recorded errors newest first, optionally filtered by
// severity and category.
func (c *Correlator) RecentErrors(limit int, severity Severity, category Category) []ErrorView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	views := make([]ErrorView, 0, len(c.errors))
	for _, e := range c.errors {
		if severity != "" && e.Severity != severity {
			continue
		}
		if category != "" && e.Category != category {
			continue
		}
		views = append(views, e.view(false))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Timestamp.After(views[j].Timestamp) })
	if limit > 0 && len(views) > limit {
		views = views[:limit]
	}
	return views
}

// Error returns full error detail: stack, fingerprint components, and
// snapshots of related errors.
func (c *Correlator) Error(errorID id.ErrorID) (ErrorDetailView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.errors[errorID]
	if !ok {
		return ErrorDetailView{}, false
	}
	detail := ErrorDetailView{
		ErrorView:        e.view(true),
		FingerprintParts: e.Parts,
	}
	for rid := range e.Related {
		if related, ok := c.errors[rid]; ok {
			detail.RelatedErrors = append(detail.RelatedErrors, related.view(false))
		}
	}
	sort.Slice(detail.RelatedErrors, func(i, j int) bool {
		return detail.RelatedErrors[i].Timestamp.Before(detail.RelatedErrors[j].Timestamp)
	})
	return detail, true
}

// Clusters returns cluster summaries, most recently active first
func (c *Correlator) Clusters(limit int) []ClusterView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	views := make([]ClusterView, 0, len(c.clusters))
	for _, cluster := range c.clusters {
		views = append(views, cluster.view(false))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].LastSeen.After(views[j].LastSeen) })
	if limit > 0 && len(views) > limit {
		views = views[:limit]
	}
	return views
}

// Cluster returns full cluster detail including sample errors and affected
// traces/users.
func (c *Correlator) Cluster(clusterID id.ClusterID) (ClusterView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cluster, ok := c.byID[clusterID]
	if !ok {
		return ClusterView{}, false
	}
	return cluster.view(true), true
}

// ErrorTimestampsSince returns the timestamps of all retained errors newer
// than cutoff, for timeline bucketing.
func (c *Correlator) ErrorTimestampsSince(cutoff time.Time) []time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ts []time.Time
	for _, e := range c.errors {
		if e.Timestamp.After(cutoff) {
			ts = append(ts, e.Timestamp)
		}
	}
	return ts
}

// Stats returns a snapshot of the correlator's aggregate counters
func (c *Correlator) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		ErrorsRecorded:   c.recorded,
		ErrorsRetained:   len(c.errors),
		Clusters:         len(c.clusters),
		LinksCreated:     c.links,
		RecentWindow:     len(c.recent),
		ErrorsByCategory: make(map[Category]int),
		ErrorsBySeverity: make(map[Severity]int),
	}
	for _, e := range c.errors {
		s.ErrorsByCategory[e.Category]++
		s.ErrorsBySeverity[e.Severity]++
	}
	return s
}
