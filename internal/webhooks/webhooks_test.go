package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serversoft/serversoft/internal/config"
	"github.com/serversoft/serversoft/internal/crypto"
	"github.com/serversoft/serversoft/internal/db/models"
)

func newTestCipher(t *testing.T) *crypto.Cipher {
	t.Helper()
	c, err := crypto.NewCipher("webhooks-test-secret")
	require.NoError(t, err)
	return c
}

func newHook(t *testing.T, c *crypto.Cipher, url, secret string, events ...string) *models.WorkflowWebhook {
	t.Helper()
	enc, err := c.Encrypt(secret)
	require.NoError(t, err)
	return &models.WorkflowWebhook{
		ID:              "hook-" + url,
		UserID:          "user-1",
		WebhookKey:      "whk_test",
		SecretEncrypted: enc,
		URL:             url,
		Events:          events,
		Active:          true,
	}
}

// ---------------------------------------------------------------------------
// Signing and secrets
// ---------------------------------------------------------------------------

func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"event":"server.created"}`)
	sig := Sign("s3cret", body)

	assert.True(t, VerifySignature("s3cret", body, sig))
	assert.False(t, VerifySignature("other", body, sig))
	assert.False(t, VerifySignature("s3cret", []byte(`{}`), sig))
	assert.False(t, VerifySignature("s3cret", body, sig[len(signaturePrefix):]))
	assert.False(t, VerifySignature("s3cret", body, "sha256=zz"))
}

func TestCheckSecret(t *testing.T) {
	c := newTestCipher(t)
	hook := newHook(t, c, "http://example.invalid", "right")

	assert.True(t, CheckSecret(c, hook, "right"))
	assert.False(t, CheckSecret(c, hook, "wrong"))
	assert.False(t, CheckSecret(c, hook, ""))

	hook.SecretEncrypted = "not-ciphertext"
	assert.False(t, CheckSecret(c, hook, "not-ciphertext"))
}

func TestNewCredentials(t *testing.T) {
	k1, s1, err := NewCredentials()
	require.NoError(t, err)
	k2, s2, err := NewCredentials()
	require.NoError(t, err)

	assert.Regexp(t, `^whk_[0-9a-f]{32}$`, k1)
	assert.Len(t, s1, 64)
	assert.NotEqual(t, k1, k2)
	assert.NotEqual(t, s1, s2)
}

func TestValidateURL(t *testing.T) {
	for _, ok := range []string{"https://hooks.example.com/x", "http://10.0.0.5:5678/webhook/abc"} {
		assert.NoError(t, ValidateURL(ok), ok)
	}
	for _, bad := range []string{"", "example.com/hook", "ftp://example.com", "https://", "javascript:alert(1)"} {
		assert.ErrorIs(t, ValidateURL(bad), ErrInvalidURL, bad)
	}
}

func TestValidEvent(t *testing.T) {
	assert.True(t, ValidEvent(EventServerCreated))
	assert.True(t, ValidEvent("*"))
	assert.False(t, ValidEvent("server.exploded"))
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

type fakeStore struct {
	mu        sync.Mutex
	hooks     []*models.WorkflowWebhook
	triggered []string
}

func (f *fakeStore) ListActiveWebhooks(context.Context, string) ([]*models.WorkflowWebhook, error) {
	return f.hooks, nil
}

func (f *fakeStore) MarkTriggered(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, id)
	return nil
}

type fakeSettings struct{ enabled bool }

func (f fakeSettings) GetSettings(_ context.Context, userID string) (*models.UserSettings, error) {
	s := models.DefaultUserSettings(userID)
	s.WebhookNotifications = f.enabled
	return s, nil
}

type capture struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   [][]byte
}

func (c *capture) server(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.requests = append(c.requests, r)
		c.bodies = append(c.bodies, body)
		c.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDispatchSync_DeliversToSubscribers(t *testing.T) {
	c := newTestCipher(t)
	var got capture
	ok := got.server(t, http.StatusOK)
	var other capture
	skipped := other.server(t, http.StatusOK)

	store := &fakeStore{hooks: []*models.WorkflowWebhook{
		newHook(t, c, ok.URL, "secret-a", EventServerCreated),
		newHook(t, c, skipped.URL, "secret-b", EventInstallationDeleted),
	}}
	d := NewDispatcher(store, nil, c, time.Second)

	n, err := d.DispatchSync(context.Background(), "user-1", EventServerCreated, map[string]string{"id": "srv-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, other.requests)
	require.Len(t, got.requests, 1)

	req, body := got.requests[0], got.bodies[0]
	assert.Equal(t, EventServerCreated, req.Header.Get("X-ServerSoft-Event"))
	assert.True(t, VerifySignature("secret-a", body, req.Header.Get(SignatureHeader)))

	var payload struct {
		Event     string            `json:"event"`
		Timestamp time.Time         `json:"timestamp"`
		Data      map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, EventServerCreated, payload.Event)
	assert.Equal(t, "srv-1", payload.Data["id"])
	assert.False(t, payload.Timestamp.IsZero())

	assert.Equal(t, []string{store.hooks[0].ID}, store.triggered)
}

func TestDispatchSync_DownstreamFailureNotMarked(t *testing.T) {
	c := newTestCipher(t)
	var got capture
	failing := got.server(t, http.StatusInternalServerError)

	store := &fakeStore{hooks: []*models.WorkflowWebhook{newHook(t, c, failing.URL, "s")}}
	d := NewDispatcher(store, nil, c, time.Second)

	n, err := d.DispatchSync(context.Background(), "user-1", EventServerDeleted, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, got.requests, 1)
	assert.Empty(t, store.triggered)
}

func TestDispatchSync_NotificationsDisabled(t *testing.T) {
	c := newTestCipher(t)
	var got capture
	srv := got.server(t, http.StatusOK)

	store := &fakeStore{hooks: []*models.WorkflowWebhook{newHook(t, c, srv.URL, "s")}}
	d := NewDispatcher(store, fakeSettings{enabled: false}, c, time.Second)

	n, err := d.DispatchSync(context.Background(), "user-1", EventServerCreated, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, got.requests)
}

func TestDeliver_UndecryptableSecret(t *testing.T) {
	c := newTestCipher(t)
	hook := &models.WorkflowWebhook{ID: "h", URL: "http://127.0.0.1:1", SecretEncrypted: "plain"}
	d := NewDispatcher(&fakeStore{}, nil, c, time.Second)

	assert.Error(t, d.Deliver(context.Background(), hook, EventTest, nil))
}

func TestDispatch_NilDispatcher(t *testing.T) {
	var d *Dispatcher
	d.Dispatch("user-1", EventServerCreated, nil)
}

// ---------------------------------------------------------------------------
// Relay
// ---------------------------------------------------------------------------

func TestRelay_ForwardsBodyAndRelaysResponse(t *testing.T) {
	var gotBody []byte
	var gotSig, gotType string
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		gotType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"queued":true}`))
	}))
	defer downstream.Close()

	r := NewRelay(config.WebhooksConfig{RelayTimeout: time.Second})
	hook := &models.WorkflowWebhook{URL: downstream.URL}
	body := []byte(`{"server_id":"srv-1","status":"running"}`)

	resp, err := r.Forward(context.Background(), hook, "s3cret", body, "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.JSONEq(t, `{"queued":true}`, string(resp.Body))

	assert.Equal(t, body, gotBody)
	assert.Equal(t, "application/json", gotType)
	assert.True(t, VerifySignature("s3cret", body, gotSig))
}

func TestRelay_DownstreamUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r := NewRelay(config.WebhooksConfig{RelayTimeout: time.Second})
	_, err := r.Forward(context.Background(), &models.WorkflowWebhook{URL: url}, "s", []byte(`{}`), "application/json")
	assert.True(t, errors.Is(err, ErrDownstream), "err = %v", err)
}

func TestNewRelay_Defaults(t *testing.T) {
	r := NewRelay(config.WebhooksConfig{})
	assert.Equal(t, int64(defaultMaxBodyBytes), r.MaxBodyBytes())
}
