package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/perimetric/traceline/internal/correlation"
	"github.com/perimetric/traceline/internal/engine"
	"github.com/perimetric/traceline/internal/shared/id"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000

	defaultTimelineHours       = 1
	maxTimelineHours           = 168
	defaultTimelineGranularity = 5 // minutes
)

// Handlers serves the read-only reporting API over the engine
type Handlers struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewHandlers creates the reporting handlers
func NewHandlers(eng *engine.Engine, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{engine: eng, logger: logger}
}

// RegisterRoutes mounts every reporting route on the router
func (h *Handlers) RegisterRoutes(r gin.IRouter) {
	r.GET("/traces", h.ListTraces)
	r.GET("/traces/correlation/:correlation_id", h.GetTraceByCorrelation)
	r.GET("/traces/:trace_id", h.GetTrace)
	r.GET("/errors", h.ListErrors)
	r.GET("/errors/:error_id", h.GetError)
	r.GET("/clusters", h.ListClusters)
	r.GET("/clusters/:cluster_id", h.GetCluster)
	r.GET("/statistics", h.GetStatistics)
	r.GET("/analysis/timeline", h.GetTimeline)
	r.GET("/analysis/correlations", h.GetCorrelations)
}

// queryInt parses an optional integer query parameter within [0, max]
func queryInt(c *gin.Context, name string, fallback, max int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > max {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + " parameter"})
		return 0, false
	}
	return n, true
}

// queryBool parses an optional boolean query parameter
func queryBool(c *gin.Context, name string) (bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + " parameter"})
		return false, false
	}
	return v, true
}

// ListTraces handles GET /traces
func (h *Handlers) ListTraces(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultListLimit, maxListLimit)
	if !ok {
		return
	}
	errorsOnly, ok := queryBool(c, "include_errors_only")
	if !ok {
		return
	}

	traces := h.engine.Tracer().RecentTraces(limit, errorsOnly)
	c.JSON(http.StatusOK, gin.H{
		"traces": traces,
		"count":  len(traces),
	})
}

// GetTrace handles GET /traces/{trace_id}
func (h *Handlers) GetTrace(c *gin.Context) {
	traceID, err := id.ParseTraceID(c.Param("trace_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trace id"})
		return
	}

	view, found := h.engine.Tracer().Trace(traceID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "trace not found"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetTraceByCorrelation handles GET /traces/correlation/{correlation_id}
func (h *Handlers) GetTraceByCorrelation(c *gin.Context) {
	correlationID := c.Param("correlation_id")

	view, found := h.engine.Tracer().TraceByCorrelation(correlationID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no trace for correlation id"})
		return
	}
	c.JSON(http.StatusOK, view)
}

var validSeverities = map[string]correlation.Severity{
	string(correlation.SeverityLow):      correlation.SeverityLow,
	string(correlation.SeverityMedium):   correlation.SeverityMedium,
	string(correlation.SeverityHigh):     correlation.SeverityHigh,
	string(correlation.SeverityCritical): correlation.SeverityCritical,
}

var validCategories = map[string]correlation.Category{
	string(correlation.CategoryNetwork):        correlation.CategoryNetwork,
	string(correlation.CategoryDatabase):       correlation.CategoryDatabase,
	string(correlation.CategoryAuthentication): correlation.CategoryAuthentication,
	string(correlation.CategoryAuthorization):  correlation.CategoryAuthorization,
	string(correlation.CategoryValidation):     correlation.CategoryValidation,
	string(correlation.CategoryBusinessLogic):  correlation.CategoryBusinessLogic,
	string(correlation.CategoryExternalAPI):    correlation.CategoryExternalAPI,
	string(correlation.CategoryResource):       correlation.CategoryResource,
	string(correlation.CategoryConfiguration):  correlation.CategoryConfiguration,
	string(correlation.CategorySystem):         correlation.CategorySystem,
	string(correlation.CategoryUnknown):        correlation.CategoryUnknown,
}

// ListErrors handles GET /errors
func (h *Handlers) ListErrors(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultListLimit, maxListLimit)
	if !ok {
		return
	}

	var severity correlation.Severity
	if raw := c.Query("severity"); raw != "" {
		s, known := validSeverities[raw]
		if !known {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid severity parameter"})
			return
		}
		severity = s
	}

	var category correlation.Category
	if raw := c.Query("category"); raw != "" {
		cat, known := validCategories[raw]
		if !known {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category parameter"})
			return
		}
		category = cat
	}

	errors := h.engine.Correlator().RecentErrors(limit, severity, category)
	c.JSON(http.StatusOK, gin.H{
		"errors": errors,
		"count":  len(errors),
	})
}

// GetError handles GET /errors/{error_id}
func (h *Handlers) GetError(c *gin.Context) {
	errorID, err := id.ParseErrorID(c.Param("error_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid error id"})
		return
	}

	detail, found := h.engine.Correlator().Error(errorID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "error not found"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ListClusters handles GET /clusters
func (h *Handlers) ListClusters(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultListLimit, maxListLimit)
	if !ok {
		return
	}
	priorityOnly, ok := queryBool(c, "priority_only")
	if !ok {
		return
	}

	var clusters []correlation.ClusterView
	if priorityOnly {
		clusters = h.engine.Correlator().HighPriorityClusters()
		if limit > 0 && len(clusters) > limit {
			clusters = clusters[:limit]
		}
	} else {
		clusters = h.engine.Correlator().Clusters(limit)
	}

	c.JSON(http.StatusOK, gin.H{
		"clusters": clusters,
		"count":    len(clusters),
	})
}

// GetCluster handles GET /clusters/{cluster_id}
func (h *Handlers) GetCluster(c *gin.Context) {
	clusterID, err := id.ParseClusterID(c.Param("cluster_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cluster id"})
		return
	}

	view, found := h.engine.Correlator().Cluster(clusterID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "cluster not found"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetStatistics handles GET /statistics
func (h *Handlers) GetStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Statistics())
}

// GetTimeline handles GET /analysis/timeline
func (h *Handlers) GetTimeline(c *gin.Context) {
	hours, ok := queryInt(c, "hours", defaultTimelineHours, maxTimelineHours)
	if !ok {
		return
	}
	granularity, ok := queryInt(c, "granularity", defaultTimelineGranularity, 24*60)
	if !ok {
		return
	}
	if hours == 0 {
		hours = defaultTimelineHours
	}
	if granularity == 0 {
		granularity = defaultTimelineGranularity
	}

	view := h.engine.Timeline(
		time.Duration(hours)*time.Hour,
		time.Duration(granularity)*time.Minute,
	)
	c.JSON(http.StatusOK, view)
}

// GetCorrelations handles GET /analysis/correlations
func (h *Handlers) GetCorrelations(c *gin.Context) {
	recommendations := h.engine.Recommendations()
	c.JSON(http.StatusOK, gin.H{
		"recommendations": recommendations,
		"count":           len(recommendations),
	})
}
