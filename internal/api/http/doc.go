/*
Package http serves the read-only reporting API.

Routes:

	GET /traces?limit&include_errors_only      recent traces, newest first
	GET /traces/{trace_id}                     full trace with spans
	GET /traces/correlation/{correlation_id}   trace lookup by correlation id
	GET /errors?limit&severity&category        recent errors, filterable
	GET /errors/{error_id}                     error detail + related + fingerprint parts
	GET /clusters?limit&priority_only          clusters, optionally high-priority only
	GET /clusters/{cluster_id}                 cluster detail + samples + affected
	GET /statistics                            aggregate tracer + correlator statistics
	GET /analysis/timeline?hours&granularity   time-bucketed trace/error counts
	GET /analysis/correlations                 top-priority clusters with advice

Unknown ids yield 404, malformed ids and query parameters yield 400, both
as JSON bodies. The surface is read-only; recording happens in-process
through the engine API and the tracing middleware.
*/
package http
