package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/serversoft/serversoft/internal/config"
	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/db/repositories"
)

func newAuditRepo(t *testing.T) (*repositories.AuditRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repositories.NewAuditRepository(db), mock
}

// newAuditRouter registers method+route with a handler that authenticates
// as user-1 and replies with status.
func newAuditRouter(repo *repositories.AuditRepository, cfg config.AuditConfig, method, route string, status int) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		setCaller(c, &models.User{ID: "user-1"}, AuthMethodSession, []string{"*"})
	})
	r.Use(AuditMiddleware(repo, cfg, nil))
	r.Handle(method, route, func(c *gin.Context) { c.Status(status) })
	return r
}

// waitForExpectations polls until the async insert has run or the deadline passes.
func waitForExpectations(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	var err error
	for time.Now().Before(deadline) {
		if err = mock.ExpectationsWereMet(); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("unmet expectations: %v", err)
}

// ---------------------------------------------------------------------------
// auditAction
// ---------------------------------------------------------------------------

func TestAuditAction(t *testing.T) {
	tests := []struct {
		method, path      string
		wantRes, wantVerb string
	}{
		{"POST", "/api/v1/servers", "server", "created"},
		{"PUT", "/api/v1/servers/abc", "server", "updated"},
		{"DELETE", "/api/v1/servers/abc", "server", "deleted"},
		{"POST", "/api/v1/servers/abc/refresh", "server", "refresh"},
		{"PATCH", "/api/v1/installations/abc/status", "installation", "status"},
		{"PUT", "/api/v1/groups/g1/order", "server_group", "order"},
		{"POST", "/api/v1/apikeys/k1/rotate", "api_key", "rotate"},
		{"PUT", "/api/v1/billing/subscription", "subscription", "updated"},
		{"POST", "/api/v1/status", "status", "created"},
		{"GET", "/api/v1/credentials", "credential", "read"},
		{"POST", "/api/v1/unknown", "unknown", "created"},
		{"DELETE", "/api/v1/groups/:id/members/:server_id", "server_group", "members"},
		{"PUT", "/api/v1/admin/users/:id", "user", "updated"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			res, verb := auditAction(tt.method, tt.path)
			if res != tt.wantRes || verb != tt.wantVerb {
				t.Errorf("auditAction = (%q, %q), want (%q, %q)", res, verb, tt.wantRes, tt.wantVerb)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// AuditMiddleware: skip paths
// ---------------------------------------------------------------------------

func TestAuditMiddleware_SkipsReadsByDefault(t *testing.T) {
	repo, mock := newAuditRepo(t)
	r := newAuditRouter(repo, config.AuditConfig{}, http.MethodGet, "/api/v1/servers", http.StatusOK)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/servers", nil)
	r.ServeHTTP(w, req)

	time.Sleep(50 * time.Millisecond)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected DB activity: %v", err)
	}
}

func TestAuditMiddleware_SkipsFailuresByDefault(t *testing.T) {
	repo, mock := newAuditRepo(t)
	r := newAuditRouter(repo, config.AuditConfig{}, http.MethodPost, "/api/v1/servers", http.StatusBadRequest)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/servers", nil)
	r.ServeHTTP(w, req)

	time.Sleep(50 * time.Millisecond)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected DB activity: %v", err)
	}
}

func TestAuditMiddleware_SkipsAnonymous(t *testing.T) {
	repo, mock := newAuditRepo(t)
	r := gin.New()
	r.Use(AuditMiddleware(repo, config.AuditConfig{}, nil))
	r.POST("/api/v1/auth/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	r.ServeHTTP(w, req)

	time.Sleep(50 * time.Millisecond)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected DB activity: %v", err)
	}
}

// ---------------------------------------------------------------------------
// AuditMiddleware: write path
// ---------------------------------------------------------------------------

func TestAuditMiddleware_RecordsSuccessfulWrite(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(sqlmock.AnyArg(), "user-1", "server.deleted", "server", "srv-1",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := newAuditRouter(repo, config.AuditConfig{}, http.MethodDelete, "/api/v1/servers/:id", http.StatusOK)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/api/v1/servers/srv-1", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	r.ServeHTTP(w, req)

	waitForExpectations(t, mock)
}

func TestAuditMiddleware_LogsReadsWhenConfigured(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	cfg := config.AuditConfig{LogReadOperations: true}
	r := newAuditRouter(repo, cfg, http.MethodGet, "/api/v1/credentials", http.StatusOK)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/credentials", nil)
	r.ServeHTTP(w, req)

	waitForExpectations(t, mock)
}

// ---------------------------------------------------------------------------
// AuditMiddleware: shipping
// ---------------------------------------------------------------------------

type recordingShipper struct {
	mu      sync.Mutex
	actions []string
}

func (s *recordingShipper) Ship(_ context.Context, entry *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, entry.Action)
	return nil
}

func (s *recordingShipper) Close() error { return nil }

func (s *recordingShipper) shipped() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.actions...)
}

func TestAuditMiddleware_ShipsStoredEntries(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))

	shipper := &recordingShipper{}
	r := gin.New()
	r.Use(func(c *gin.Context) {
		setCaller(c, &models.User{ID: "user-1"}, AuthMethodSession, []string{"*"})
	})
	r.Use(AuditMiddleware(repo, config.AuditConfig{}, shipper))
	r.POST("/api/v1/servers", func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/servers", nil)
	r.ServeHTTP(w, req)

	deadline := time.Now().Add(time.Second)
	for len(shipper.shipped()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	got := shipper.shipped()
	if len(got) != 1 || got[0] != "server.created" {
		t.Errorf("shipped = %v, want [server.created]", got)
	}
}
