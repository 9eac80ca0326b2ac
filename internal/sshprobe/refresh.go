package sshprobe

import (
	"context"
	"fmt"
	"time"

	"github.com/serversoft/serversoft/internal/crypto"
	"github.com/serversoft/serversoft/internal/db/models"
)

// MetricsStore persists probe results. *repositories.ServerRepository
// satisfies it.
type MetricsStore interface {
	UpdateMetrics(ctx context.Context, id string, m models.ServerMetrics, checkedAt time.Time) error
}

// Result describes one refresh.
type Result struct {
	Metrics   models.ServerMetrics
	CheckedAt time.Time
	// Changed is set when the stored status differs from the previous one.
	Changed bool
	// ProbeErr is why the server was marked offline, if it was.
	ProbeErr error
}

// TargetFor builds the connection target of s, decrypting its SSH secret.
func TargetFor(s *models.Server, c *crypto.Cipher) Target {
	t := Target{
		Host:       s.IPAddress,
		Port:       s.SSHPort,
		Username:   s.SSHUsername,
		AuthMethod: s.SSHAuthMethod,
	}
	if s.HasSSHSecret() {
		t.Secret = c.DecryptOrPassthrough(*s.SSHSecretEncrypted)
	}
	return t
}

// Refresh probes s, stores the snapshot and updates s in place. Unreachable
// servers are stored as offline; only a storage failure is returned as an
// error.
func (p *Prober) Refresh(ctx context.Context, store MetricsStore, c *crypto.Cipher, s *models.Server) (*Result, error) {
	m, probeErr := p.Probe(ctx, TargetFor(s, c))
	if probeErr != nil {
		// keep the last readings so the dashboard still shows something
		m.Uptime, m.LoadAverage, m.DiskUsage, m.MemoryUsage = s.Uptime, s.LoadAverage, s.DiskUsage, s.MemoryUsage
	}
	if s.Status == models.ServerStatusMaintenance {
		// manual status; readings still refresh
		m.Status = s.Status
	}

	now := time.Now().UTC()
	if err := store.UpdateMetrics(ctx, s.ID, m, now); err != nil {
		return nil, fmt.Errorf("store metrics for server %s: %w", s.ID, err)
	}

	res := &Result{Metrics: m, CheckedAt: now, Changed: s.Status != m.Status, ProbeErr: probeErr}
	s.Status = m.Status
	s.Uptime, s.LoadAverage, s.DiskUsage, s.MemoryUsage = m.Uptime, m.LoadAverage, m.DiskUsage, m.MemoryUsage
	s.LastCheckedAt = &now
	return res, nil
}
