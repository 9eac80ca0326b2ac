// server_repository.go implements ServerRepository: CRUD over a user's
// servers plus the monitoring snapshot written by refresh and the monitor job.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/serversoft/serversoft/internal/db/models"
)

// ServerRepository handles server database operations
type ServerRepository struct {
	db *sqlx.DB
}

// NewServerRepository creates a new ServerRepository
func NewServerRepository(db *sqlx.DB) *ServerRepository {
	return &ServerRepository{db: db}
}

const serverColumns = `id, user_id, name, ip_address, ssh_port, ssh_username, ssh_auth_method,
	ssh_secret_encrypted, status, uptime, load_average, disk_usage, memory_usage,
	last_checked_at, created_at, updated_at`

// CreateServer inserts a server. Status defaults to unknown until the first probe.
func (r *ServerRepository) CreateServer(ctx context.Context, s *models.Server) error {
	s.ID = uuid.New().String()
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	if s.Status == "" {
		s.Status = models.ServerStatusUnknown
	}

	query := `
		INSERT INTO servers (id, user_id, name, ip_address, ssh_port, ssh_username, ssh_auth_method,
			ssh_secret_encrypted, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.UserID, s.Name, s.IPAddress, s.SSHPort, s.SSHUsername, s.SSHAuthMethod,
		s.SSHSecretEncrypted, s.Status, s.CreatedAt, s.UpdatedAt,
	)
	return translateError(err)
}

// GetServer retrieves a server owned by userID.
func (r *ServerRepository) GetServer(ctx context.Context, userID, id string) (*models.Server, error) {
	var s models.Server
	query := `SELECT ` + serverColumns + ` FROM servers WHERE id = $1 AND user_id = $2`
	err := r.db.GetContext(ctx, &s, query, id, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListServers returns the user's servers ordered by name.
func (r *ServerRepository) ListServers(ctx context.Context, userID string) ([]*models.Server, error) {
	servers := make([]*models.Server, 0)
	query := `SELECT ` + serverColumns + ` FROM servers WHERE user_id = $1 ORDER BY name, created_at`
	if err := r.db.SelectContext(ctx, &servers, query, userID); err != nil {
		return nil, err
	}
	return servers, nil
}

// ListMonitorableServers returns every server with stored SSH credentials
// that is not in maintenance, least recently checked first. Used by the
// background monitor.
func (r *ServerRepository) ListMonitorableServers(ctx context.Context) ([]*models.Server, error) {
	servers := make([]*models.Server, 0)
	query := `SELECT ` + serverColumns + ` FROM servers
		WHERE ssh_auth_method <> 'none' AND ssh_secret_encrypted IS NOT NULL
			AND status <> 'maintenance'
		ORDER BY last_checked_at NULLS FIRST`
	if err := r.db.SelectContext(ctx, &servers, query); err != nil {
		return nil, err
	}
	return servers, nil
}

// CountServers returns how many servers the user owns.
func (r *ServerRepository) CountServers(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM servers WHERE user_id = $1`, userID)
	return count, err
}

// UpdateServer writes the editable connection fields.
func (r *ServerRepository) UpdateServer(ctx context.Context, s *models.Server) error {
	s.UpdatedAt = time.Now()
	query := `
		UPDATE servers
		SET name = $3, ip_address = $4, ssh_port = $5, ssh_username = $6, ssh_auth_method = $7,
			ssh_secret_encrypted = $8, status = $9, updated_at = $10
		WHERE id = $1 AND user_id = $2
	`
	return expectOne(r.db.ExecContext(ctx, query,
		s.ID, s.UserID, s.Name, s.IPAddress, s.SSHPort, s.SSHUsername, s.SSHAuthMethod,
		s.SSHSecretEncrypted, s.Status, s.UpdatedAt,
	))
}

// UpdateMetrics stores a monitoring snapshot. Callers have already resolved
// the server through an ownership-checked read or the monitor's full scan.
// A server switched to maintenance while the probe ran keeps that status.
func (r *ServerRepository) UpdateMetrics(ctx context.Context, id string, m models.ServerMetrics, checkedAt time.Time) error {
	query := `
		UPDATE servers
		SET status = CASE WHEN status = 'maintenance' THEN status ELSE $2 END,
			uptime = $3, load_average = $4, disk_usage = $5, memory_usage = $6,
			last_checked_at = $7, updated_at = $7
		WHERE id = $1
	`
	return expectOne(r.db.ExecContext(ctx, query,
		id, m.Status, m.Uptime, m.LoadAverage, m.DiskUsage, m.MemoryUsage, checkedAt,
	))
}

// DeleteServer removes a server together with its installations and group
// memberships in one transaction.
func (r *ServerRepository) DeleteServer(ctx context.Context, userID, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint:errcheck

	var lockedID string
	err = tx.GetContext(ctx, &lockedID,
		`SELECT id FROM servers WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID,
	)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM installations WHERE server_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM server_group_members WHERE server_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM servers WHERE id = $1 AND user_id = $2`, id, userID); err != nil {
		return err
	}
	return tx.Commit()
}
