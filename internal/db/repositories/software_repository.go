// software_repository.go implements SoftwareRepository over the shared
// software catalog.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/serversoft/serversoft/internal/db/models"
)

// SoftwareRepository handles software catalog database operations
type SoftwareRepository struct {
	db *sqlx.DB
}

// NewSoftwareRepository creates a new SoftwareRepository
func NewSoftwareRepository(db *sqlx.DB) *SoftwareRepository {
	return &SoftwareRepository{db: db}
}

const softwareColumns = `id, name, category, version, description, artifact_path, artifact_checksum,
	artifact_size, created_at, updated_at`

// ListSoftware returns the catalog, optionally restricted to one category.
func (r *SoftwareRepository) ListSoftware(ctx context.Context, category string) ([]*models.Software, error) {
	items := make([]*models.Software, 0)
	var err error
	if category == "" {
		err = r.db.SelectContext(ctx, &items,
			`SELECT `+softwareColumns+` FROM software ORDER BY category, name`)
	} else {
		err = r.db.SelectContext(ctx, &items,
			`SELECT `+softwareColumns+` FROM software WHERE category = $1 ORDER BY name`, category)
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListCategories returns the distinct categories in use.
func (r *SoftwareRepository) ListCategories(ctx context.Context) ([]string, error) {
	categories := make([]string, 0)
	err := r.db.SelectContext(ctx, &categories,
		`SELECT DISTINCT category FROM software WHERE category <> '' ORDER BY category`)
	return categories, err
}

// GetSoftware retrieves a catalog entry by ID
func (r *SoftwareRepository) GetSoftware(ctx context.Context, id string) (*models.Software, error) {
	var s models.Software
	err := r.db.GetContext(ctx, &s, `SELECT `+softwareColumns+` FROM software WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSoftware adds a catalog entry. A duplicate name returns ErrDuplicate.
func (r *SoftwareRepository) CreateSoftware(ctx context.Context, s *models.Software) error {
	s.ID = uuid.New().String()
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt

	query := `
		INSERT INTO software (id, name, category, version, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Name, s.Category, s.Version, s.Description, s.CreatedAt, s.UpdatedAt)
	return translateError(err)
}

// UpdateSoftware writes the descriptive fields of a catalog entry.
func (r *SoftwareRepository) UpdateSoftware(ctx context.Context, s *models.Software) error {
	s.UpdatedAt = time.Now()
	query := `
		UPDATE software
		SET name = $2, category = $3, version = $4, description = $5, updated_at = $6
		WHERE id = $1
	`
	return expectOne(r.db.ExecContext(ctx, query,
		s.ID, s.Name, s.Category, s.Version, s.Description, s.UpdatedAt))
}

// SetArtifact records the storage location and checksum of an uploaded installer.
func (r *SoftwareRepository) SetArtifact(ctx context.Context, id, path, checksum string, size int64) error {
	query := `
		UPDATE software
		SET artifact_path = $2, artifact_checksum = $3, artifact_size = $4, updated_at = $5
		WHERE id = $1
	`
	return expectOne(r.db.ExecContext(ctx, query, id, path, checksum, size, time.Now()))
}

// DeleteSoftware removes a catalog entry. Entries still referenced by an
// installation cannot be removed and return ErrInUse.
func (r *SoftwareRepository) DeleteSoftware(ctx context.Context, id string) error {
	return expectOne(r.db.ExecContext(ctx, `DELETE FROM software WHERE id = $1`, id))
}
