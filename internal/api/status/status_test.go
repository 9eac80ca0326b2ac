package status

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/db/repositories"
	"github.com/serversoft/serversoft/internal/events"
	"github.com/serversoft/serversoft/internal/webhooks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var serverCols = []string{
	"id", "user_id", "name", "ip_address", "ssh_port", "ssh_username", "ssh_auth_method",
	"ssh_secret_encrypted", "status", "uptime", "load_average", "disk_usage", "memory_usage",
	"last_checked_at", "created_at", "updated_at",
}

func serverRow(status string) *sqlmock.Rows {
	return sqlmock.NewRows(serverCols).
		AddRow("srv-1", "user-1", "web-1", "10.0.0.5", 22, "root", "none",
			nil, status, "1 day", "0.10 0.10 0.10", "40%", "1.0G/4.0G", nil, time.Now(), time.Now())
}

// fakeSetter stands in for the installation handlers.
type fakeSetter struct {
	calls []string
	err   error
}

func (f *fakeSetter) SetStatus(_ context.Context, userID, id, status string) (*models.Installation, error) {
	f.calls = append(f.calls, userID+"/"+id+"/"+status)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Installation{ID: id, UserID: userID, Status: models.InstallationStatusRunning}, nil
}

type recorder struct {
	events []string
}

func (r *recorder) Dispatch(_, event string, _ interface{}) {
	r.events = append(r.events, event)
}

func newStatusRouter(t *testing.T) (sqlmock.Sqlmock, *fakeSetter, *recorder, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	setter := &fakeSetter{}
	rec := &recorder{}
	h := NewHandlers(repositories.NewServerRepository(sqlx.NewDb(db, "sqlmock")), setter, events.NewEmitter(nil, rec))

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", "user-1")
		c.Next()
	})
	r.POST("/status", h.ReportStatusHandler())
	return mock, setter, rec, r
}

func post(r *gin.Engine, body interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", "/status", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestReportStatus_EmptyReport(t *testing.T) {
	_, _, _, r := newStatusRouter(t)
	w := post(r, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportStatus_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body gin.H
	}{
		{"server status", gin.H{"server": gin.H{"id": "srv-1", "status": "exploded"}}},
		{"installation status", gin.H{"installation": gin.H{"id": "inst-1", "status": "paused"}}},
		{"missing server id", gin.H{"server": gin.H{"status": "online"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, setter, _, r := newStatusRouter(t)
			w := post(r, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, setter.calls)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestReportStatus_ServerMetricsMerged(t *testing.T) {
	mock, _, rec, r := newStatusRouter(t)
	mock.ExpectQuery("FROM servers WHERE id").WithArgs("srv-1", "user-1").WillReturnRows(serverRow("online"))
	mock.ExpectExec("UPDATE servers").
		WithArgs("srv-1", "offline", "1 day", "0.10 0.10 0.10", "95%", "1.0G/4.0G", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := post(r, gin.H{"server": gin.H{"id": "srv-1", "status": "Offline", "disk_usage": "95%"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"disk_usage":"95%"`)
	assert.Equal(t, []string{webhooks.EventServerStatusChanged}, rec.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportStatus_UnchangedServerStatusNoEvent(t *testing.T) {
	mock, _, rec, r := newStatusRouter(t)
	mock.ExpectQuery("FROM servers WHERE id").WillReturnRows(serverRow("online"))
	mock.ExpectExec("UPDATE servers").WillReturnResult(sqlmock.NewResult(0, 1))

	w := post(r, gin.H{"server": gin.H{"id": "srv-1", "status": "online"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, rec.events)
}

func TestReportStatus_ServerNotOwned(t *testing.T) {
	mock, _, _, r := newStatusRouter(t)
	mock.ExpectQuery("FROM servers WHERE id").WillReturnRows(sqlmock.NewRows(serverCols))

	w := post(r, gin.H{"server": gin.H{"id": "srv-9", "status": "online"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReportStatus_Installation(t *testing.T) {
	_, setter, _, r := newStatusRouter(t)

	w := post(r, gin.H{"installation": gin.H{"id": "inst-1", "status": "active"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"user-1/inst-1/active"}, setter.calls)
	assert.Contains(t, w.Body.String(), `"status":"running"`)
}

func TestReportStatus_InstallationNotFound(t *testing.T) {
	_, setter, _, r := newStatusRouter(t)
	setter.err = repositories.ErrNotFound

	w := post(r, gin.H{"installation": gin.H{"id": "inst-9", "status": "running"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
