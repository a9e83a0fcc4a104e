package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/perimetric/traceline/internal/api/http"
	"github.com/perimetric/traceline/internal/api/middleware"
	"github.com/perimetric/traceline/internal/api/ws"
	"github.com/perimetric/traceline/internal/correlation"
	"github.com/perimetric/traceline/internal/engine"
	"github.com/perimetric/traceline/internal/infrastructure/config"
	"github.com/perimetric/traceline/internal/infrastructure/logging"
	"github.com/perimetric/traceline/internal/infrastructure/monitoring"
	"github.com/perimetric/traceline/internal/tracing"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	engine  *engine.Engine
	hub     *ws.Hub
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
	httpSrv *http.Server
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing traceline server",
		zap.String("port", cfg.Server.Port),
		zap.Float64("sample_rate", cfg.Tracing.SampleRate),
	)

	metrics := monitoring.NewMetrics()
	eng := engine.New(engine.ConfigFrom(cfg), logger.Logger)
	hub := ws.NewHub(logger.Logger, metrics)

	// Engine events feed both the metrics and the live stream
	eng.Tracer().OnTraceFinished(func(v tracing.TraceView) {
		metrics.RecordTraceFinished(v)
		hub.Broadcast(ws.EventTraceFinished, v)
	})
	eng.Correlator().OnErrorRecorded(func(v correlation.ErrorView) {
		metrics.RecordError(v)
		hub.Broadcast(ws.EventErrorRecorded, v)
	})
	eng.Correlator().OnClusterUpdated(func(v correlation.ClusterView) {
		metrics.SetClusters(eng.Correlator().Stats().Clusters)
		hub.Broadcast(ws.EventClusterUpdated, v)
	})

	// Request errors observed by the tracing middleware go through the
	// correlator, timed for the scoring histogram.
	onError := func(ctx context.Context, err error) {
		timer := monitoring.NewTimer(metrics.ObserveCorrelation)
		eng.RecordError(ctx, err)
		timer.Stop()
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(eng.Tracer(), onError))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apihttp.NewHandlers(eng, logger.Logger).RegisterRoutes(router)

	router.GET("/stream", hub.HandleConnection)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		engine:  eng,
		hub:     hub,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Engine returns the tracing/correlation engine, letting host code record
// spans and errors directly.
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// Router returns the configured gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server and blocks until it stops
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))

	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Close gracefully shuts down the server, the event stream, and the engine
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown failed", zap.Error(err))
		}
	}

	s.hub.Close()

	if err := s.engine.Shutdown(ctx); err != nil {
		s.logger.Error("Engine shutdown failed", zap.Error(err))
		return err
	}

	s.logger.Sync()
	return nil
}
