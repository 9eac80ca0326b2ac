// server_monitor.go implements the ServerMonitor background job, which periodically
// probes every server with stored SSH credentials and records its status and metrics.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/serversoft/serversoft/internal/config"
	"github.com/serversoft/serversoft/internal/crypto"
	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/db/repositories"
	"github.com/serversoft/serversoft/internal/sshprobe"
	"github.com/serversoft/serversoft/internal/webhooks"
)

// EventPublisher pushes a live event to a user's websocket subscribers.
type EventPublisher interface {
	Publish(userID, eventType string, data interface{})
}

// ServerRefresher probes one server and stores the result.
type ServerRefresher interface {
	Refresh(ctx context.Context, store sshprobe.MetricsStore, c *crypto.Cipher, s *models.Server) (*sshprobe.Result, error)
}

// ServerMonitor refreshes server metrics on an interval with bounded concurrency.
type ServerMonitor struct {
	serverRepo  *repositories.ServerRepository
	prober      ServerRefresher
	cipher      *crypto.Cipher
	events      EventPublisher
	dispatcher  WebhookDispatcher
	interval    time.Duration
	concurrency int
	enabled     bool
	stopChan    chan struct{}
}

// NewServerMonitor creates a ServerMonitor. events and dispatcher may be nil.
func NewServerMonitor(
	serverRepo *repositories.ServerRepository,
	prober ServerRefresher,
	cipher *crypto.Cipher,
	events EventPublisher,
	dispatcher WebhookDispatcher,
	cfg config.ServerMonitorJobConfig,
) *ServerMonitor {
	minutes := cfg.IntervalMinutes
	if minutes <= 0 {
		minutes = 5
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &ServerMonitor{
		serverRepo:  serverRepo,
		prober:      prober,
		cipher:      cipher,
		events:      events,
		dispatcher:  dispatcher,
		interval:    time.Duration(minutes) * time.Minute,
		concurrency: concurrency,
		enabled:     cfg.Enabled,
		stopChan:    make(chan struct{}),
	}
}

// Start runs a sweep immediately and then on every interval until ctx is
// cancelled or Stop is called.
func (m *ServerMonitor) Start(ctx context.Context) {
	if !m.enabled {
		slog.Info("server monitor disabled")
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	slog.Info("server monitor started", "interval", m.interval, "concurrency", m.concurrency)
	m.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			m.sweep(ctx)
		case <-m.stopChan:
			slog.Info("server monitor stopped")
			return
		case <-ctx.Done():
			slog.Info("server monitor context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (m *ServerMonitor) Stop() {
	close(m.stopChan)
}

// sweep probes every monitorable server. A failing server never aborts the
// others.
func (m *ServerMonitor) sweep(ctx context.Context) {
	servers, err := m.serverRepo.ListMonitorableServers(ctx)
	if err != nil {
		slog.Error("server monitor: failed to list servers", "error", err)
		return
	}

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for _, s := range servers {
		s := s
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			m.check(ctx, s)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *ServerMonitor) check(ctx context.Context, s *models.Server) {
	previous := s.Status
	res, err := m.prober.Refresh(ctx, m.serverRepo, m.cipher, s)
	if err != nil {
		slog.Error("server monitor: refresh failed", "server_id", s.ID, "error", err)
		return
	}
	if res.ProbeErr != nil {
		slog.Debug("server monitor: probe failed", "server_id", s.ID, "error", res.ProbeErr)
	}
	if !res.Changed {
		return
	}

	data := map[string]interface{}{
		"server_id":       s.ID,
		"name":            s.Name,
		"previous_status": previous,
		"status":          res.Metrics.Status,
		"checked_at":      res.CheckedAt,
	}
	if m.events != nil {
		m.events.Publish(s.UserID, webhooks.EventServerStatusChanged, data)
	}
	if m.dispatcher != nil {
		m.dispatcher.Dispatch(s.UserID, webhooks.EventServerStatusChanged, data)
	}
}
