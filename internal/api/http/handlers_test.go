package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perimetric/traceline/internal/correlation"
	"github.com/perimetric/traceline/internal/engine"
	"github.com/perimetric/traceline/internal/shared/id"
	"github.com/perimetric/traceline/internal/tracing"
)

func setupRouter(t *testing.T) (*gin.Engine, *engine.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := engine.DefaultConfig()
	cfg.CleanupInterval = 0
	cfg.SweepInterval = 0
	eng := engine.New(cfg, nil)
	t.Cleanup(func() { eng.Shutdown(context.Background()) })

	router := gin.New()
	NewHandlers(eng, nil).RegisterRoutes(router)
	return router, eng
}

func doGET(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	return w
}

func finishTrace(t *testing.T, eng *engine.Engine, correlationID string, withError bool) id.TraceID {
	t.Helper()
	ctx, traceID, ok := eng.Tracer().StartTrace(context.Background(), correlationID)
	require.True(t, ok)

	ctx, span, ok := eng.Tracer().StartSpan(ctx, "handle", tracing.SpanTypeRequest, nil)
	require.True(t, ok)

	status := tracing.SpanSuccess
	var errInfo *tracing.ErrorInfo
	if withError {
		status = tracing.SpanError
		errInfo = tracing.ErrorInfoFromError(errors.New("boom"))
	}
	ctx = eng.Tracer().FinishSpan(ctx, span, status, errInfo)
	eng.Tracer().FinishTrace(ctx)
	return traceID
}

func TestListTraces(t *testing.T) {
	router, eng := setupRouter(t)
	finishTrace(t, eng, "req-ok", false)
	finishTrace(t, eng, "req-bad", true)

	w := doGET(router, "/traces")
	require.Equal(t, 200, w.Code)

	var body struct {
		Traces []tracing.TraceView `json:"traces"`
		Count  int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	// Newest first
	assert.Equal(t, "req-bad", body.Traces[0].CorrelationID)

	w = doGET(router, "/traces?include_errors_only=true")
	require.Equal(t, 200, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "req-bad", body.Traces[0].CorrelationID)
}

func TestListTracesBadParams(t *testing.T) {
	router, _ := setupRouter(t)

	assert.Equal(t, 400, doGET(router, "/traces?limit=abc").Code)
	assert.Equal(t, 400, doGET(router, "/traces?limit=-1").Code)
	assert.Equal(t, 400, doGET(router, "/traces?include_errors_only=maybe").Code)
}

func TestGetTrace(t *testing.T) {
	router, eng := setupRouter(t)
	traceID := finishTrace(t, eng, "req-1", false)

	w := doGET(router, "/traces/"+traceID.String())
	require.Equal(t, 200, w.Code)

	var view tracing.TraceView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, traceID.String(), view.TraceID)
	assert.Len(t, view.Spans, 1)

	assert.Equal(t, 404, doGET(router, "/traces/"+id.NewTraceID().String()).Code)
	assert.Equal(t, 400, doGET(router, "/traces/not-an-id").Code)
}

func TestGetTraceByCorrelation(t *testing.T) {
	router, eng := setupRouter(t)
	traceID := finishTrace(t, eng, "req-42", false)

	w := doGET(router, "/traces/correlation/req-42")
	require.Equal(t, 200, w.Code)

	var view tracing.TraceView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, traceID.String(), view.TraceID)

	assert.Equal(t, 404, doGET(router, "/traces/correlation/nope").Code)
}

func TestListErrors(t *testing.T) {
	router, eng := setupRouter(t)

	_, ok := eng.RecordError(context.Background(), errors.New("connection refused"),
		correlation.WithExceptionType("ConnectionError"))
	require.True(t, ok)
	_, ok = eng.RecordError(context.Background(), errors.New("fatal corruption"),
		correlation.WithExceptionType("StorageError"))
	require.True(t, ok)

	w := doGET(router, "/errors")
	require.Equal(t, 200, w.Code)

	var body struct {
		Errors []correlation.ErrorView `json:"errors"`
		Count  int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)

	w = doGET(router, "/errors?severity=critical")
	require.Equal(t, 200, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "StorageError", body.Errors[0].ExceptionType)

	w = doGET(router, "/errors?category=network")
	require.Equal(t, 200, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "ConnectionError", body.Errors[0].ExceptionType)

	assert.Equal(t, 400, doGET(router, "/errors?severity=extreme").Code)
	assert.Equal(t, 400, doGET(router, "/errors?category=cosmic").Code)
}

func TestGetError(t *testing.T) {
	router, eng := setupRouter(t)

	errorID, ok := eng.RecordError(context.Background(), errors.New("connection refused"),
		correlation.WithExceptionType("ConnectionError"))
	require.True(t, ok)

	w := doGET(router, "/errors/"+errorID.String())
	require.Equal(t, 200, w.Code)

	var detail correlation.ErrorDetailView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, errorID.String(), detail.ErrorID)
	assert.NotEmpty(t, detail.FingerprintParts.MessageHash)

	assert.Equal(t, 404, doGET(router, "/errors/"+id.NewErrorID().String()).Code)
	assert.Equal(t, 400, doGET(router, "/errors/bogus").Code)
}

func TestListClusters(t *testing.T) {
	router, eng := setupRouter(t)

	_, ok := eng.RecordError(context.Background(), errors.New("minor hiccup"),
		correlation.WithExceptionType("NoteError"))
	require.True(t, ok)
	_, ok = eng.RecordError(context.Background(), errors.New("fatal corruption"),
		correlation.WithExceptionType("StorageError"))
	require.True(t, ok)

	var body struct {
		Clusters []correlation.ClusterView `json:"clusters"`
		Count    int                       `json:"count"`
	}

	w := doGET(router, "/clusters")
	require.Equal(t, 200, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)

	w = doGET(router, "/clusters?priority_only=true")
	require.Equal(t, 200, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestGetClusterNotFound(t *testing.T) {
	router, _ := setupRouter(t)

	w := doGET(router, "/clusters/"+id.NewClusterID().String())
	require.Equal(t, 404, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "cluster not found", body["error"])
}

func TestGetCluster(t *testing.T) {
	router, eng := setupRouter(t)

	_, ok := eng.RecordError(context.Background(), errors.New("connection refused"),
		correlation.WithExceptionType("ConnectionError"))
	require.True(t, ok)

	clusters := eng.Correlator().Clusters(0)
	require.Len(t, clusters, 1)

	w := doGET(router, "/clusters/"+clusters[0].ClusterID)
	require.Equal(t, 200, w.Code)

	var view correlation.ClusterView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, clusters[0].ClusterID, view.ClusterID)
	assert.Len(t, view.SampleErrors, 1)
}

func TestGetStatistics(t *testing.T) {
	router, eng := setupRouter(t)
	finishTrace(t, eng, "", false)

	w := doGET(router, "/statistics")
	require.Equal(t, 200, w.Code)

	var stats engine.Statistics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, uint64(1), stats.Tracing.TracesFinished)
}

func TestGetTimeline(t *testing.T) {
	router, eng := setupRouter(t)
	finishTrace(t, eng, "", true)

	w := doGET(router, "/analysis/timeline?hours=1&granularity=5")
	require.Equal(t, 200, w.Code)

	var view engine.TimelineView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Len(t, view.Buckets, 12)

	total := 0
	for _, b := range view.Buckets {
		total += b.Traces
	}
	assert.Equal(t, 1, total)

	assert.Equal(t, 400, doGET(router, "/analysis/timeline?hours=zillion").Code)
	assert.Equal(t, 400, doGET(router, "/analysis/timeline?hours=9999").Code)
}

func TestGetCorrelations(t *testing.T) {
	router, eng := setupRouter(t)

	_, ok := eng.RecordError(context.Background(), errors.New("fatal corruption"),
		correlation.WithExceptionType("StorageError"))
	require.True(t, ok)

	w := doGET(router, "/analysis/correlations")
	require.Equal(t, 200, w.Code)

	var body struct {
		Recommendations []engine.Recommendation `json:"recommendations"`
		Count           int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.NotEmpty(t, body.Recommendations[0].Advice)
}
