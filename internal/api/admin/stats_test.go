package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

// ---------------------------------------------------------------------------
// Router helper
// ---------------------------------------------------------------------------

func newStatsRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	h := NewStatsHandler(sqlxDB)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", "user-1")
		c.Next()
	})
	r.GET("/stats/dashboard", h.GetDashboardStats)
	return mock, r
}

var statsCols = []string{
	"server_count", "servers_online", "servers_offline", "servers_maintenance",
	"installation_count", "installations_running", "installations_stopped",
	"installations_pending", "installations_installing",
	"group_count", "credential_count", "webhook_count", "api_key_count",
}

// ---------------------------------------------------------------------------
// GetDashboardStats tests
// ---------------------------------------------------------------------------

func TestGetDashboardStats_Success(t *testing.T) {
	mock, r := newStatsRouter(t)

	mock.ExpectQuery("server_count").WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(statsCols).
			AddRow(5, 3, 1, 0, 9, 6, 1, 1, 0, 2, 1, 1, 3))
	mock.ExpectQuery("FROM audit_logs").WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"action", "resource_type", "resource_id", "created_at"}).
			AddRow("server.create", "server", "srv-1", time.Now()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/stats/dashboard", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	var stats DashboardStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Servers.Unknown != 1 {
		t.Errorf("servers.unknown = %d, want 1", stats.Servers.Unknown)
	}
	if stats.Installations.Failed != 1 {
		t.Errorf("installations.failed = %d, want 1", stats.Installations.Failed)
	}
	if len(stats.RecentActivity) != 1 {
		t.Errorf("recent_activity len = %d, want 1", len(stats.RecentActivity))
	}
}

func TestGetDashboardStats_ActivityFailureIgnored(t *testing.T) {
	mock, r := newStatsRouter(t)

	mock.ExpectQuery("server_count").
		WillReturnRows(sqlmock.NewRows(statsCols).AddRow(0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0))
	mock.ExpectQuery("FROM audit_logs").WillReturnError(errors.New("relation does not exist"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/stats/dashboard", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if acts, ok := resp["recent_activity"].([]interface{}); !ok || len(acts) != 0 {
		t.Errorf("recent_activity = %v, want []", resp["recent_activity"])
	}
}

func TestGetDashboardStats_CountsFail(t *testing.T) {
	mock, r := newStatsRouter(t)
	mock.ExpectQuery("server_count").WillReturnError(errors.New("db down"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/stats/dashboard", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestGetDashboardStats_NoAuth(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	r := gin.New()
	r.GET("/stats/dashboard", NewStatsHandler(sqlx.NewDb(db, "sqlmock")).GetDashboardStats)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/stats/dashboard", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
