// Package repositories implements the data access layer for ServerSoft.
// Each repository type owns the SQL for one domain entity; handlers and
// background jobs never issue SQL directly. Queries against user-owned rows
// always filter by user_id so one account can never read or mutate another's.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/serversoft/serversoft/internal/db/models"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, name, password_hash, oidc_sub, is_admin, created_at, updated_at`

func scanUser(s scanner) (*models.User, error) {
	user := &models.User{}
	err := s.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.OIDCSub,
		&user.IsAdmin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateUser creates a new user. A duplicate email returns ErrDuplicate.
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	query := `
		INSERT INTO users (id, email, name, password_hash, oidc_sub, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.OIDCSub,
		user.IsAdmin,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return translateError(err)
}

// CreateSignupUser creates a password account and makes it an admin when it
// is the first account. The table lock serialises concurrent signups so only
// one of them can see an empty users table. user.IsAdmin is set from the row.
func (r *UserRepository) CreateSignupUser(ctx context.Context, user *models.User) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint:errcheck

	if _, err := tx.ExecContext(ctx, `LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return err
	}

	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	query := `
		INSERT INTO users (id, email, name, password_hash, oidc_sub, is_admin, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, NOT EXISTS (SELECT 1 FROM users), $6, $7
		RETURNING is_admin
	`
	err = tx.QueryRowContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.OIDCSub,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.IsAdmin)
	if err != nil {
		return translateError(err)
	}
	return tx.Commit()
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, userID))
}

// GetUserByEmail retrieves a user by email, case-insensitively.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// GetUserByOIDCSub retrieves a user by OIDC subject
func (r *UserRepository) GetUserByOIDCSub(ctx context.Context, oidcSub string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE oidc_sub = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, oidcSub))
}

// UpdateUser updates the profile fields of a user
func (r *UserRepository) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()

	query := `
		UPDATE users
		SET email = $2, name = $3, oidc_sub = $4, updated_at = $5
		WHERE id = $1
	`
	return expectOne(r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.OIDCSub,
		user.UpdatedAt,
	))
}

// UpdatePassword replaces the stored bcrypt hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	return expectOne(r.db.ExecContext(ctx, query, userID, passwordHash, time.Now()))
}

// CountUsers returns the number of accounts.
func (r *UserRepository) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// ListUsers returns one page of accounts ordered by email, plus the total.
func (r *UserRepository) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int, error) {
	total, err := r.CountUsers(ctx)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY email LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// SetAdmin grants or revokes the admin flag.
func (r *UserRepository) SetAdmin(ctx context.Context, userID string, isAdmin bool) error {
	query := `UPDATE users SET is_admin = $2, updated_at = $3 WHERE id = $1`
	return expectOne(r.db.ExecContext(ctx, query, userID, isAdmin, time.Now()))
}

// DeleteUser removes an account. Owned rows go with it through ON DELETE
// CASCADE; audit entries keep a NULL user.
func (r *UserRepository) DeleteUser(ctx context.Context, userID string) error {
	return expectOne(r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID))
}

// GetOrCreateUserFromOIDC returns the user linked to oidcSub. An existing
// account with the same email is linked on first OIDC sign-in; otherwise a
// new password-less account is created.
func (r *UserRepository) GetOrCreateUserFromOIDC(ctx context.Context, oidcSub, email, name string) (*models.User, error) {
	user, err := r.GetUserByOIDCSub(ctx, oidcSub)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	user, err = r.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		user.OIDCSub = &oidcSub
		if user.Name == "" {
			user.Name = name
		}
		if err := r.UpdateUser(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	}

	user = &models.User{
		Email:   email,
		Name:    name,
		OIDCSub: &oidcSub,
	}
	if err := r.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ============================================================================
// Password reset tokens
// ============================================================================

// CreatePasswordResetToken stores the hash of a freshly issued reset token.
func (r *UserRepository) CreatePasswordResetToken(ctx context.Context, token *models.PasswordResetToken) error {
	token.ID = uuid.New().String()
	token.CreatedAt = time.Now()

	query := `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, token.ID, token.UserID, token.TokenHash, token.ExpiresAt, token.CreatedAt)
	return err
}

// GetPasswordResetToken looks up a token by its hash.
func (r *UserRepository) GetPasswordResetToken(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, used_at, created_at
		FROM password_reset_tokens
		WHERE token_hash = $1
	`
	t := &models.PasswordResetToken{}
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ConsumePasswordResetToken sets the new password hash and marks the token
// used in one transaction. The token update is conditional on used_at being
// NULL, so a token can only ever be redeemed once.
func (r *UserRepository) ConsumePasswordResetToken(ctx context.Context, tokenID, userID, passwordHash string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint:errcheck

	now := time.Now()
	if err := expectOne(tx.ExecContext(ctx,
		`UPDATE password_reset_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL`,
		tokenID, now,
	)); err != nil {
		return err
	}
	if err := expectOne(tx.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		userID, passwordHash, now,
	)); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteExpiredPasswordResetTokens removes tokens that are used or expired
// and returns how many were deleted.
func (r *UserRepository) DeleteExpiredPasswordResetTokens(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE used_at IS NOT NULL OR expires_at < NOW()`,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
