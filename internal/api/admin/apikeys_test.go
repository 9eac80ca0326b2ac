package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/serversoft/serversoft/internal/auth"
	"github.com/serversoft/serversoft/internal/config"
	"github.com/serversoft/serversoft/internal/db/repositories"
)

// ---------------------------------------------------------------------------
// Column / row definitions
// ---------------------------------------------------------------------------

var akCols = []string{
	"id", "user_id", "name", "description", "key_hash", "key_prefix", "permissions",
	"expires_at", "last_used_at", "created_at",
}

var testKeyPermissions = []byte(`["servers:read"]`)

func sampleAKRow() *sqlmock.Rows {
	return sqlmock.NewRows(akCols).
		AddRow("key-1", "user-1", "CI Key", nil, "hashedkey", "ss_abc1234",
			testKeyPermissions, nil, nil, time.Now())
}

// ---------------------------------------------------------------------------
// Router helper
// ---------------------------------------------------------------------------

func newAPIKeyRouter(t *testing.T, userID string) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.Auth.APIKeys.Prefix = "ss"
	h := NewAPIKeyHandlers(cfg, repositories.NewAPIKeyRepository(db))

	r := gin.New()
	if userID != "" {
		uid := userID
		r.Use(func(c *gin.Context) {
			c.Set("user_id", uid)
			c.Next()
		})
	}
	r.GET("/apikeys", h.ListAPIKeysHandler())
	r.POST("/apikeys", h.CreateAPIKeyHandler())
	r.GET("/apikeys/:id", h.GetAPIKeyHandler())
	r.DELETE("/apikeys/:id", h.DeleteAPIKeyHandler())
	r.PUT("/apikeys/:id", h.UpdateAPIKeyHandler())
	r.POST("/apikeys/:id/rotate", h.RotateAPIKeyHandler())
	return mock, r
}

func jsonReq(method, path string, body interface{}) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// ---------------------------------------------------------------------------
// ListAPIKeysHandler
// ---------------------------------------------------------------------------

func TestListAPIKeys_NoAuth(t *testing.T) {
	_, r := newAPIKeyRouter(t, "")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/apikeys", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestListAPIKeys_OwnKeys(t *testing.T) {
	mock, r := newAPIKeyRouter(t, "user-1")
	mock.ExpectQuery("FROM api_keys WHERE user_id").WithArgs("user-1").
		WillReturnRows(sampleAKRow())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/apikeys", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "hashedkey") {
		t.Error("key hash leaked into list response")
	}
	if !strings.Contains(w.Body.String(), `"available_permissions"`) {
		t.Error("available_permissions missing")
	}
}

// ---------------------------------------------------------------------------
// CreateAPIKeyHandler
// ---------------------------------------------------------------------------

func TestCreateAPIKey_InvalidPermission(t *testing.T) {
	_, r := newAPIKeyRouter(t, "user-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonReq("POST", "/apikeys", gin.H{"name": "CI", "permissions": []string{"modules:read"}}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateAPIKey_EmptyPermissions(t *testing.T) {
	_, r := newAPIKeyRouter(t, "user-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonReq("POST", "/apikeys", gin.H{"name": "CI", "permissions": []string{}}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateAPIKey_ExpiryInPast(t *testing.T) {
	_, r := newAPIKeyRouter(t, "user-1")
	past := time.Now().Add(-time.Hour).Format(time.RFC3339)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonReq("POST", "/apikeys", gin.H{
		"name": "CI", "permissions": []string{"status:write"}, "expires_at": past,
	}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateAPIKey_Success(t *testing.T) {
	mock, r := newAPIKeyRouter(t, "user-1")
	mock.ExpectExec("INSERT INTO api_keys").
		WithArgs(sqlmock.AnyArg(), "user-1", "CI", nil, sqlmock.AnyArg(), sqlmock.AnyArg(),
			[]byte(`["status:write","servers:read"]`), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonReq("POST", "/apikeys", gin.H{
		"name": " CI ", "permissions": []string{"status:write", "servers:read"},
	}))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var resp CreateAPIKeyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(resp.Key, "ss_") {
		t.Errorf("key = %q, want ss_ prefix", resp.Key)
	}
	if resp.KeyPrefix != auth.KeyPrefix(resp.Key) {
		t.Errorf("key_prefix = %q, want %q", resp.KeyPrefix, auth.KeyPrefix(resp.Key))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

// ---------------------------------------------------------------------------
// Get / Update / Delete
// ---------------------------------------------------------------------------

func TestGetAPIKey_OtherUsersKey(t *testing.T) {
	mock, r := newAPIKeyRouter(t, "user-2")
	mock.ExpectQuery("FROM api_keys WHERE id").WithArgs("key-1", "user-2").
		WillReturnRows(sqlmock.NewRows(akCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/apikeys/key-1", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUpdateAPIKey_ChangesPermissions(t *testing.T) {
	mock, r := newAPIKeyRouter(t, "user-1")
	mock.ExpectQuery("FROM api_keys WHERE id").WillReturnRows(sampleAKRow())
	mock.ExpectExec("UPDATE api_keys").
		WithArgs("key-1", "user-1", "CI Key", nil, []byte(`["servers:write"]`), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonReq("PUT", "/apikeys/key-1", gin.H{"permissions": []string{"servers:write"}}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteAPIKey_NotFound(t *testing.T) {
	mock, r := newAPIKeyRouter(t, "user-1")
	mock.ExpectExec("DELETE FROM api_keys").WithArgs("key-9", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/apikeys/key-9", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// RotateAPIKeyHandler
// ---------------------------------------------------------------------------

func TestRotateAPIKey_ReturnsNewSecret(t *testing.T) {
	mock, r := newAPIKeyRouter(t, "user-1")
	mock.ExpectQuery("FROM api_keys WHERE id").WillReturnRows(sampleAKRow())
	mock.ExpectExec("UPDATE api_keys").
		WithArgs("key-1", "user-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/apikeys/key-1/rotate", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp CreateAPIKeyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "key-1" || resp.Name != "CI Key" {
		t.Errorf("rotated key identity changed: %+v", resp)
	}
	if resp.KeyPrefix == "ss_abc1234" {
		t.Error("key_prefix not replaced")
	}
	if len(resp.Permissions) != 1 || resp.Permissions[0] != "servers:read" {
		t.Errorf("permissions = %v, want [servers:read]", resp.Permissions)
	}
}

func TestRotateAPIKey_RevokedConcurrently(t *testing.T) {
	mock, r := newAPIKeyRouter(t, "user-1")
	mock.ExpectQuery("FROM api_keys WHERE id").WillReturnRows(sampleAKRow())
	mock.ExpectExec("UPDATE api_keys").WillReturnResult(sqlmock.NewResult(0, 0))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/apikeys/key-1/rotate", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
