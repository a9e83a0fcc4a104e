package ws

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/perimetric/traceline/internal/infrastructure/monitoring"
)

// Event types broadcast to subscribers
const (
	EventTraceFinished  = "trace_finished"
	EventErrorRecorded  = "error_recorded"
	EventClusterUpdated = "cluster_updated"
)

// Event is one message on the stream
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp int64       `json:"timestamp"`
}

// sendBuffer bounds each subscriber's queue. A subscriber that falls this
// far behind is dropped rather than allowed to stall the engine.
const sendBuffer = 64

type subscriber struct {
	send chan Event
}

// Hub fans engine events out to WebSocket subscribers. Broadcasting never
// blocks: slow subscribers are disconnected.
type Hub struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	closed      bool
}

// NewHub creates an event hub. metrics may be nil.
func NewHub(logger *zap.Logger, metrics *monitoring.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:      logger,
		metrics:     metrics,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Broadcast queues an event for every subscriber
func (h *Hub) Broadcast(eventType string, payload interface{}) {
	evt := Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	for sub := range h.subscribers {
		select {
		case sub.send <- evt:
		default:
			delete(h.subscribers, sub)
			close(sub.send)
			h.logger.Warn("dropping slow websocket subscriber")
			if h.metrics != nil {
				h.metrics.DecWSConnections()
			}
		}
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RecordWSEvent(eventType)
	}
}

// SubscriberCount reports the number of connected subscribers
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber and rejects future connections
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		close(sub.send)
		if h.metrics != nil {
			h.metrics.DecWSConnections()
		}
	}
}

// register adds a subscriber, failing when the hub is closed
func (h *Hub) register(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subscribers[sub] = struct{}{}
	if h.metrics != nil {
		h.metrics.IncWSConnections()
	}
	return true
}

// unregister removes a subscriber if it is still registered
func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	close(sub.send)
	if h.metrics != nil {
		h.metrics.DecWSConnections()
	}
}
