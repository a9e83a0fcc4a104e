package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in dev
	},
}

const writeTimeout = 10 * time.Second

// HandleConnection upgrades the request and streams events until the
// client disconnects or falls too far behind.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := &subscriber{send: make(chan Event, sendBuffer)}
	if !h.register(sub) {
		conn.Close()
		return
	}

	// Writer: pump queued events to the socket. The channel is closed by
	// unregister, Broadcast (slow client), or Close.
	go func() {
		defer conn.Close()
		for evt := range sub.send {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				h.unregister(sub)
				return
			}
		}
	}()

	// Reader: the stream is one-way, reads only detect disconnect
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.unregister(sub)
				return
			}
		}
	}()
}
