package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serversoft/serversoft/internal/db/repositories"
)

var settingsCols = []string{
	"user_id", "theme", "email_notifications", "webhook_notifications", "server_alerts",
	"compact_view", "refresh_interval_seconds", "updated_at",
}

func newSettingsRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := NewSettingsHandlers(repositories.NewSettingsRepository(sqlx.NewDb(db, "sqlmock")))
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", "user-1")
		c.Next()
	})
	r.GET("/settings", h.GetSettingsHandler())
	r.PUT("/settings", h.UpdateSettingsHandler())
	return mock, r
}

func TestGetSettings_DefaultsWhenUnsaved(t *testing.T) {
	mock, r := newSettingsRouter(t)
	mock.ExpectQuery("FROM user_settings").WithArgs("user-1").WillReturnRows(sqlmock.NewRows(settingsCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/settings", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"theme":"system"`)
	assert.Contains(t, w.Body.String(), `"refresh_interval_seconds":30`)
}

func TestUpdateSettings_PartialMerge(t *testing.T) {
	mock, r := newSettingsRouter(t)
	mock.ExpectQuery("FROM user_settings").
		WillReturnRows(sqlmock.NewRows(settingsCols).AddRow("user-1", "dark", false, true, true, false, 60, time.Now()))
	mock.ExpectExec("INSERT INTO user_settings").
		WithArgs("user-1", "dark", false, true, true, true, 60, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonReq("PUT", "/settings", gin.H{"compact_view": true}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSettings_Validation(t *testing.T) {
	tests := []struct {
		name string
		body gin.H
	}{
		{"interval too small", gin.H{"refresh_interval_seconds": 4}},
		{"interval too large", gin.H{"refresh_interval_seconds": 3601}},
		{"unknown theme", gin.H{"theme": "solarized"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, r := newSettingsRouter(t)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, jsonReq("PUT", "/settings", tt.body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUpdateSettings_BoundaryIntervalsAccepted(t *testing.T) {
	for _, interval := range []int{5, 3600} {
		mock, r := newSettingsRouter(t)
		mock.ExpectQuery("FROM user_settings").WillReturnRows(sqlmock.NewRows(settingsCols))
		mock.ExpectExec("INSERT INTO user_settings").WillReturnResult(sqlmock.NewResult(1, 1))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, jsonReq("PUT", "/settings", gin.H{"refresh_interval_seconds": interval}))
		assert.Equal(t, http.StatusOK, w.Code, "interval %d", interval)
	}
}
