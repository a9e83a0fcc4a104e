/*
Package engine assembles the tracer and the correlator into one embeddable
unit.

The Engine owns lifecycle: it starts the trace-abandonment cleanup and the
error-retention sweep on construction and drains them on Shutdown. On top
of the two subsystems it offers the aggregate reporting the HTTP layer
serves: combined statistics, a time-bucketed activity timeline, and
priority-ranked cluster recommendations.
*/
package engine
