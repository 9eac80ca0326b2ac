package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/serversoft/serversoft/internal/db/models"
)

var settingsCols = []string{
	"user_id", "theme", "email_notifications", "webhook_notifications", "server_alerts",
	"compact_view", "refresh_interval_seconds", "updated_at",
}

func newSettingsRepo(t *testing.T) (*SettingsRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSettingsRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestGetSettings_NeverSaved(t *testing.T) {
	repo, mock := newSettingsRepo(t)
	mock.ExpectQuery("SELECT.*FROM user_settings").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(settingsCols))

	s, err := repo.GetSettings(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != nil {
		t.Error("expected nil settings")
	}
}

func TestGetSettings_Found(t *testing.T) {
	repo, mock := newSettingsRepo(t)
	mock.ExpectQuery("SELECT.*FROM user_settings").
		WillReturnRows(sqlmock.NewRows(settingsCols).
			AddRow("user-1", "dark", false, true, true, true, 60, time.Now()))

	s, err := repo.GetSettings(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Theme != "dark" || s.RefreshIntervalSeconds != 60 || s.EmailNotifications {
		t.Errorf("unexpected settings: %+v", s)
	}
}

func TestUpsertSettings(t *testing.T) {
	repo, mock := newSettingsRepo(t)
	mock.ExpectExec("INSERT INTO user_settings.*ON CONFLICT \\(user_id\\) DO UPDATE").
		WithArgs("user-1", "system", true, true, true, false, 30, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpsertSettings(context.Background(), models.DefaultUserSettings("user-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
