package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())

		metrics.RecordHTTPRequest(method, path, status, duration)
	}
}

// Timer measures the duration of one operation
type Timer struct {
	start   time.Time
	observe func(time.Duration)
}

// NewTimer starts a timer that feeds the given observer when stopped
func NewTimer(observe func(time.Duration)) *Timer {
	return &Timer{start: time.Now(), observe: observe}
}

// Stop stops the timer and records the duration
func (t *Timer) Stop() {
	t.observe(time.Since(t.start))
}
