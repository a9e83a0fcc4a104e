/*
Package correlation turns individual error occurrences into actionable
groups.

Every recorded error is classified (category, severity), fingerprinted
(exception type + normalized message + declaring function + condensed
stack), and scored against a sliding window of recent errors. Pairs
whose combined signal clears the threshold are linked mutually. Errors
sharing a fingerprint accumulate into a single cluster, which carries
derived state: error rate over the trailing hour, volume trend,
temporal pattern (burst, periodic, spike, scattered), cascade analysis
within correlation-id groups, and suspected root causes.

Key Features:
  - Deterministic fingerprinting with volatile-token masking
  - Keyword classification into category and severity tiers
  - Similarity scoring over a bounded recent window
  - Per-fingerprint clustering with rate, trend, and pattern analysis
  - Priority ranking of clusters for operator attention
  - Retention sweep bounding memory growth

Architecture:

	Record(ctx, err)
	    |
	    v
	fingerprint + classify ──> score vs recent window ──> link pairs
	    |
	    v
	cluster upsert ──> rate / trend / temporal / cascade

The correlator holds everything in memory and is safe for concurrent
use. Recording never propagates internal failures.
*/
package correlation
