// credential_repository.go implements CredentialRepository. Secret values are
// stored already encrypted by the caller; this layer never sees plaintext.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/serversoft/serversoft/internal/db/models"
)

// CredentialRepository handles cloud credential database operations
type CredentialRepository struct {
	db *sqlx.DB
}

// NewCredentialRepository creates a new CredentialRepository
func NewCredentialRepository(db *sqlx.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

const credentialColumns = `id, user_id, name, provider, fields, secrets, verification_status,
	verification_error, last_verified_at, created_at, updated_at`

// CreateCredential inserts a credential set. Names are unique per user.
func (r *CredentialRepository) CreateCredential(ctx context.Context, c *models.CloudCredential) error {
	c.ID = uuid.New().String()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	if c.VerificationStatus == "" {
		c.VerificationStatus = models.VerificationUnverified
	}

	query := `
		INSERT INTO cloud_credentials (id, user_id, name, provider, fields, secrets, verification_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.UserID, c.Name, c.Provider, c.Fields, c.Secrets, c.VerificationStatus, c.CreatedAt, c.UpdatedAt)
	return translateError(err)
}

// GetCredential retrieves a credential owned by userID.
func (r *CredentialRepository) GetCredential(ctx context.Context, userID, id string) (*models.CloudCredential, error) {
	var c models.CloudCredential
	err := r.db.GetContext(ctx, &c,
		`SELECT `+credentialColumns+` FROM cloud_credentials WHERE id = $1 AND user_id = $2`, id, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCredentials returns the user's credentials, optionally for one provider.
func (r *CredentialRepository) ListCredentials(ctx context.Context, userID, provider string) ([]*models.CloudCredential, error) {
	creds := make([]*models.CloudCredential, 0)
	var err error
	if provider == "" {
		err = r.db.SelectContext(ctx, &creds,
			`SELECT `+credentialColumns+` FROM cloud_credentials WHERE user_id = $1 ORDER BY provider, name`, userID)
	} else {
		err = r.db.SelectContext(ctx, &creds,
			`SELECT `+credentialColumns+` FROM cloud_credentials WHERE user_id = $1 AND provider = $2 ORDER BY name`,
			userID, provider)
	}
	if err != nil {
		return nil, err
	}
	return creds, nil
}

// UpdateCredential writes name, fields and secrets and resets verification,
// since the stored values may no longer match what was verified.
func (r *CredentialRepository) UpdateCredential(ctx context.Context, c *models.CloudCredential) error {
	c.UpdatedAt = time.Now()
	c.VerificationStatus = models.VerificationUnverified
	c.VerificationError = nil
	query := `
		UPDATE cloud_credentials
		SET name = $3, fields = $4, secrets = $5, verification_status = $6,
			verification_error = NULL, updated_at = $7
		WHERE id = $1 AND user_id = $2
	`
	return expectOne(r.db.ExecContext(ctx, query,
		c.ID, c.UserID, c.Name, c.Fields, c.Secrets, c.VerificationStatus, c.UpdatedAt))
}

// UpdateVerification records the outcome of a provider verification call.
func (r *CredentialRepository) UpdateVerification(ctx context.Context, userID, id, status string, verificationErr *string, at time.Time) error {
	query := `
		UPDATE cloud_credentials
		SET verification_status = $3, verification_error = $4, last_verified_at = $5
		WHERE id = $1 AND user_id = $2
	`
	return expectOne(r.db.ExecContext(ctx, query, id, userID, status, verificationErr, at))
}

// DeleteCredential removes a credential owned by userID.
func (r *CredentialRepository) DeleteCredential(ctx context.Context, userID, id string) error {
	return expectOne(r.db.ExecContext(ctx,
		`DELETE FROM cloud_credentials WHERE id = $1 AND user_id = $2`, id, userID))
}
