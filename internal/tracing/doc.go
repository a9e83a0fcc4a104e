/*
Package tracing implements in-process request tracing: hierarchical span
trees per trace, ambient context propagation, sampling, and bounded
in-memory retention.

# Overview

A trace records one logical operation (typically one inbound request) as a
tree of spans. Ambient state (trace id, correlation id, and the stack of
open span ids) travels through context.Context, so concurrent requests are
fully isolated without any shared mutable globals.

# Usage

	tracer := tracing.New(tracing.DefaultConfig(), logger)

	ctx, traceID, ok := tracer.StartTrace(ctx, incomingCorrelationID)
	if ok {
		defer tracer.FinishTrace(ctx)
	}

	err := tracer.WithSpan(ctx, "load_user", tracing.SpanTypeDatabase, func(ctx context.Context) error {
		return loadUser(ctx)
	})

WithSpan guarantees the span is finished exactly once on every exit path,
including panics, and records a structured error summary when the operation
fails.

# Failure semantics

Tracer operations never fail loudly: a sampling miss, a missing trace, or an
out-of-order span unwind degrades to a debug log line and a no-op. The host
application's business logic must continue unaffected whatever the tracer's
state.

# Propagation

Traces use standard HTTP headers:
  - X-Correlation-ID: caller-defined logical flow id, honored inbound and
    echoed outbound
  - X-Trace-ID: identifier of the server-side trace

HTTPMiddleware and GRPCUnaryInterceptor instrument gin routers and gRPC
servers with per-request traces automatically.
*/
package tracing
