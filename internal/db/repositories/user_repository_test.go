package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/serversoft/serversoft/internal/db/models"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var userCols = []string{
	"id", "email", "name", "password_hash", "oidc_sub", "is_admin", "created_at", "updated_at",
}

var resetTokenCols = []string{"id", "user_id", "token_hash", "expires_at", "used_at", "created_at"}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newUserRepo(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUserRepository(db), mock
}

func sampleUserRow() *sqlmock.Rows {
	return sqlmock.NewRows(userCols).
		AddRow("user-1", "alice@example.com", "Alice", "$2a$10$hash", nil, false, time.Now(), time.Now())
}

// ---------------------------------------------------------------------------
// CreateUser
// ---------------------------------------------------------------------------

func TestCreateUser_Success(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(1, 1))

	u := &models.User{Email: "alice@example.com", Name: "Alice"}
	if err := repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID == "" {
		t.Error("expected ID to be assigned")
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.CreateUser(context.Background(), &models.User{Email: "alice@example.com"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
}

func TestCreateSignupUser_FirstAccountIsAdmin(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO users .* SELECT .*NOT EXISTS \(SELECT 1 FROM users\).*RETURNING is_admin`).
		WillReturnRows(sqlmock.NewRows([]string{"is_admin"}).AddRow(true))
	mock.ExpectCommit()

	u := &models.User{Email: "alice@example.com", Name: "Alice"}
	if err := repo.CreateSignupUser(context.Background(), u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !u.IsAdmin {
		t.Error("first account should be admin")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateSignupUser_LaterAccountIsNotAdmin(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("LOCK TABLE users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(sqlmock.NewRows([]string{"is_admin"}).AddRow(false))
	mock.ExpectCommit()

	u := &models.User{Email: "bob@example.com", Name: "Bob", IsAdmin: true}
	if err := repo.CreateSignupUser(context.Background(), u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.IsAdmin {
		t.Error("caller-supplied IsAdmin must be replaced by the stored value")
	}
}

func TestCreateSignupUser_DuplicateRollsBack(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("LOCK TABLE users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.CreateSignupUser(context.Background(), &models.User{Email: "alice@example.com"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

func TestGetUserByID_Found(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users WHERE id").
		WithArgs("user-1").
		WillReturnRows(sampleUserRow())

	u, err := repo.GetUserByID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u == nil || u.Email != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if !u.HasPassword() {
		t.Error("expected HasPassword to be true")
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users WHERE id").
		WillReturnRows(sqlmock.NewRows(userCols))

	u, err := repo.GetUserByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != nil {
		t.Error("expected nil user")
	}
}

func TestGetUserByEmail_CaseInsensitive(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users WHERE LOWER\\(email\\) = LOWER\\(\\$1\\)").
		WithArgs("Alice@Example.com").
		WillReturnRows(sampleUserRow())

	u, err := repo.GetUserByEmail(context.Background(), "Alice@Example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u == nil {
		t.Fatal("expected user")
	}
}

func TestGetUserByID_DBError(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users").
		WillReturnError(errDB)

	if _, err := repo.GetUserByID(context.Background(), "user-1"); err == nil {
		t.Error("expected error")
	}
}

// ---------------------------------------------------------------------------
// GetOrCreateUserFromOIDC
// ---------------------------------------------------------------------------

func TestGetOrCreateUserFromOIDC_Existing(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users WHERE oidc_sub").
		WithArgs("sub-1").
		WillReturnRows(sampleUserRow())

	u, err := repo.GetOrCreateUserFromOIDC(context.Background(), "sub-1", "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != "user-1" {
		t.Errorf("ID = %s, want user-1", u.ID)
	}
}

func TestGetOrCreateUserFromOIDC_LinksByEmail(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users WHERE oidc_sub").
		WillReturnRows(sqlmock.NewRows(userCols))
	mock.ExpectQuery("SELECT.*FROM users WHERE LOWER\\(email\\)").
		WillReturnRows(sampleUserRow())
	mock.ExpectExec("UPDATE users").
		WithArgs("user-1", "alice@example.com", "Alice", "sub-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u, err := repo.GetOrCreateUserFromOIDC(context.Background(), "sub-1", "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.OIDCSub == nil || *u.OIDCSub != "sub-1" {
		t.Errorf("OIDCSub = %v, want sub-1", u.OIDCSub)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetOrCreateUserFromOIDC_Creates(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users WHERE oidc_sub").
		WillReturnRows(sqlmock.NewRows(userCols))
	mock.ExpectQuery("SELECT.*FROM users WHERE LOWER\\(email\\)").
		WillReturnRows(sqlmock.NewRows(userCols))
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(1, 1))

	u, err := repo.GetOrCreateUserFromOIDC(context.Background(), "sub-2", "bob@example.com", "Bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.HasPassword() {
		t.Error("OIDC-created user should not have a password")
	}
}

// ---------------------------------------------------------------------------
// Password reset tokens
// ---------------------------------------------------------------------------

func TestGetPasswordResetToken(t *testing.T) {
	repo, mock := newUserRepo(t)
	exp := time.Now().Add(time.Hour)
	mock.ExpectQuery("SELECT.*FROM password_reset_tokens").
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows(resetTokenCols).AddRow("tok-1", "user-1", "abc", exp, nil, time.Now()))

	tok, err := repo.GetPasswordResetToken(context.Background(), "abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok == nil || !tok.Usable(time.Now()) {
		t.Errorf("expected usable token, got %+v", tok)
	}
}

func TestConsumePasswordResetToken_Success(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE password_reset_tokens SET used_at").
		WithArgs("tok-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs("user-1", "newhash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.ConsumePasswordResetToken(context.Background(), "tok-1", "user-1", "newhash"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestConsumePasswordResetToken_AlreadyUsed(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE password_reset_tokens SET used_at").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ConsumePasswordResetToken(context.Background(), "tok-1", "user-1", "newhash")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteExpiredPasswordResetTokens(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("DELETE FROM password_reset_tokens").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteExpiredPasswordResetTokens(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("deleted = %d, want 4", n)
	}
}

// ---------------------------------------------------------------------------
// Admin management
// ---------------------------------------------------------------------------

func TestListUsers_Paginated(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))
	mock.ExpectQuery("FROM users ORDER BY email LIMIT").WithArgs(20, 20).WillReturnRows(sampleUserRow())

	users, total, err := repo.ListUsers(context.Background(), 20, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 21 || len(users) != 1 || users[0].Email != "alice@example.com" {
		t.Errorf("unexpected result: total=%d users=%+v", total, users)
	}
}

func TestSetAdmin_NotFound(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("UPDATE users SET is_admin").WithArgs("user-9", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SetAdmin(context.Background(), "user-9", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteUser(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("DELETE FROM users").WithArgs("user-1").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.DeleteUser(context.Background(), "user-1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
