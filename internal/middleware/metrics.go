package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/serversoft/serversoft/internal/telemetry"
)

const noRouteLabel = "<no-route>"

// MetricsMiddleware records request counts and latency per route template
// (c.FullPath(), never the raw URL). Unmatched requests share the
// "<no-route>" label. Websocket upgrades are counted but kept out of the
// latency histogram and the in-flight gauge, since a stream lives for the
// whole session.
//
// Register after gin.Recovery so statuses written by the recovery handler
// are seen.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		stream := isWebsocketUpgrade(c)
		if !stream {
			telemetry.HTTPRequestsInFlight.Inc()
			defer telemetry.HTTPRequestsInFlight.Dec()
		}
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = noRouteLabel
		}
		method := c.Request.Method

		telemetry.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		if !stream {
			telemetry.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		}
	}
}

func isWebsocketUpgrade(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}
