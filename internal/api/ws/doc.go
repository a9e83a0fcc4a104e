/*
Package ws streams engine events to WebSocket subscribers.

The Hub receives trace_finished, error_recorded, and cluster_updated
events from engine callbacks and fans them out to every connected client.
Each subscriber has a bounded send queue; a client that cannot keep up is
disconnected so broadcasting never blocks the engine's hot path.
*/
package ws
