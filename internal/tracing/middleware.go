package tracing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Propagation headers. An inbound correlation id is honored as the trace's
// correlation id and echoed back on the response so callers can correlate
// client-side and server-side logs.
const (
	CorrelationHeader = "X-Correlation-ID"
	TraceHeader       = "X-Trace-ID"
)

// ErrorFunc receives request errors observed by the middleware, typically
// wired to the error correlator's Record.
type ErrorFunc func(ctx context.Context, err error)

// HTTPMiddleware creates Gin middleware that traces every request: it opens
// a trace (honoring an inbound X-Correlation-ID), wraps the handler in a
// request span, and finishes the trace when the handler returns. Handler
// errors and 5xx responses mark the span as errored and are forwarded to
// onError when set.
func HTTPMiddleware(tracer *Tracer, onError ErrorFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, traceID, sampled := tracer.StartTrace(c.Request.Context(), c.GetHeader(CorrelationHeader))
		if !sampled {
			// Still echo the correlation id so callers can correlate logs
			if corr := c.GetHeader(CorrelationHeader); corr != "" {
				c.Header(CorrelationHeader, corr)
			}
			c.Next()
			return
		}

		c.Header(CorrelationHeader, CorrelationIDFrom(ctx))
		c.Header(TraceHeader, traceID.String())

		spanCtx, span, _ := tracer.StartSpan(ctx, c.FullPath(), SpanTypeRequest, map[string]string{
			"http.method": c.Request.Method,
			"http.url":    c.Request.URL.String(),
			"http.host":   c.Request.Host,
		})
		c.Request = c.Request.WithContext(spanCtx)

		c.Next()

		status := c.Writer.Status()
		if span != nil {
			span.SetTag("http.status", fmt.Sprintf("%d", status))
		}

		var reqErr error
		if len(c.Errors) > 0 {
			reqErr = c.Errors.Last()
		} else if status >= http.StatusInternalServerError {
			reqErr = fmt.Errorf("http %d on %s %s", status, c.Request.Method, c.FullPath())
		}

		if reqErr != nil {
			tracer.FinishSpan(spanCtx, span, SpanError, ErrorInfoFromError(reqErr))
			if onError != nil {
				onError(spanCtx, reqErr)
			}
		} else {
			tracer.FinishSpan(spanCtx, span, SpanSuccess, nil)
		}

		tracer.FinishTrace(ctx)
	}
}

// GRPCUnaryInterceptor creates a gRPC unary server interceptor mirroring the
// HTTP middleware: trace per call, correlation id from metadata, span per
// handler invocation.
func GRPCUnaryInterceptor(tracer *Tracer, onError ErrorFunc) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		var correlationID string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get("x-correlation-id"); len(vals) > 0 {
				correlationID = vals[0]
			}
		}

		ctx, traceID, sampled := tracer.StartTrace(ctx, correlationID)
		if !sampled {
			return handler(ctx, req)
		}

		_ = grpc.SetHeader(ctx, metadata.Pairs(
			"x-correlation-id", CorrelationIDFrom(ctx),
			"x-trace-id", traceID.String(),
		))

		spanCtx, span, _ := tracer.StartSpan(ctx, info.FullMethod, SpanTypeRequest, map[string]string{
			"rpc.system": "grpc",
			"rpc.method": info.FullMethod,
		})

		resp, err := handler(spanCtx, req)

		if err != nil {
			tracer.FinishSpan(spanCtx, span, SpanError, ErrorInfoFromError(err))
			if onError != nil {
				onError(spanCtx, err)
			}
		} else {
			tracer.FinishSpan(spanCtx, span, SpanSuccess, nil)
		}

		tracer.FinishTrace(ctx)
		return resp, err
	}
}
