// installation_repository.go implements InstallationRepository. Reads join the
// server and software names so the dashboard can render a row without
// further lookups.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/serversoft/serversoft/internal/db/models"
)

// InstallationRepository handles installation database operations
type InstallationRepository struct {
	db *sqlx.DB
}

// NewInstallationRepository creates a new InstallationRepository
func NewInstallationRepository(db *sqlx.DB) *InstallationRepository {
	return &InstallationRepository{db: db}
}

const installationSelect = `
	SELECT i.id, i.user_id, i.server_id, i.software_id, i.status, i.version, i.created_at, i.updated_at,
		s.name AS server_name, sw.name AS software_name, sw.version AS latest_version
	FROM installations i
	JOIN servers s ON s.id = i.server_id
	JOIN software sw ON sw.id = i.software_id
`

// InstallationFilters narrows ListInstallations. Empty fields are ignored.
type InstallationFilters struct {
	ServerID string
	Status   string
}

// CreateInstallation records software on a server. Installing the same
// software twice on one server returns ErrDuplicate.
func (r *InstallationRepository) CreateInstallation(ctx context.Context, inst *models.Installation) error {
	inst.ID = uuid.New().String()
	inst.CreatedAt = time.Now()
	inst.UpdatedAt = inst.CreatedAt
	if inst.Status == "" {
		inst.Status = models.InstallationStatusPending
	}

	query := `
		INSERT INTO installations (id, user_id, server_id, software_id, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		inst.ID, inst.UserID, inst.ServerID, inst.SoftwareID, inst.Status, inst.Version,
		inst.CreatedAt, inst.UpdatedAt,
	)
	return translateError(err)
}

// GetInstallation retrieves an installation owned by userID.
func (r *InstallationRepository) GetInstallation(ctx context.Context, userID, id string) (*models.Installation, error) {
	var inst models.Installation
	err := r.db.GetContext(ctx, &inst, installationSelect+` WHERE i.id = $1 AND i.user_id = $2`, id, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// ListInstallations returns the user's installations, newest first.
func (r *InstallationRepository) ListInstallations(ctx context.Context, userID string, f InstallationFilters) ([]*models.Installation, error) {
	query := installationSelect + ` WHERE i.user_id = $1`
	args := []interface{}{userID}
	if f.ServerID != "" {
		args = append(args, f.ServerID)
		query += ` AND i.server_id = $2`
	}
	if f.Status != "" {
		args = append(args, f.Status)
		if f.ServerID != "" {
			query += ` AND i.status = $3`
		} else {
			query += ` AND i.status = $2`
		}
	}
	query += ` ORDER BY i.created_at DESC`

	items := make([]*models.Installation, 0)
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateStatus sets the status of an installation owned by userID. status
// must already be canonical.
func (r *InstallationRepository) UpdateStatus(ctx context.Context, userID, id, status string) error {
	query := `UPDATE installations SET status = $3, updated_at = $4 WHERE id = $1 AND user_id = $2`
	return expectOne(r.db.ExecContext(ctx, query, id, userID, status, time.Now()))
}

// UpdateVersion records the version that is now installed.
func (r *InstallationRepository) UpdateVersion(ctx context.Context, userID, id, version string) error {
	query := `UPDATE installations SET version = $3, updated_at = $4 WHERE id = $1 AND user_id = $2`
	return expectOne(r.db.ExecContext(ctx, query, id, userID, version, time.Now()))
}

// DeleteInstallation removes an installation owned by userID.
func (r *InstallationRepository) DeleteInstallation(ctx context.Context, userID, id string) error {
	return expectOne(r.db.ExecContext(ctx,
		`DELETE FROM installations WHERE id = $1 AND user_id = $2`, id, userID))
}
