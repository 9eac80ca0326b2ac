// Package safego runs fire-and-forget work in goroutines whose panics are
// recovered, logged and counted instead of taking the process down.
package safego

import (
	"context"
	"log/slog"
	"time"

	"github.com/serversoft/serversoft/internal/telemetry"
)

// Go runs fn in a new goroutine. name identifies the task in logs and in
// the background_panics_total metric.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				telemetry.BackgroundPanicsTotal.WithLabelValues(name).Inc()
				slog.Error("recovered panic in background goroutine", "task", name, "panic", r)
			}
		}()
		fn()
	}()
}

// GoTimeout is Go with a context that expires after timeout. The context is
// detached from any request, so work outlives the handler that started it.
func GoTimeout(name string, timeout time.Duration, fn func(ctx context.Context)) {
	Go(name, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		fn(ctx)
	})
}
