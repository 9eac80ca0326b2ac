package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serversoft/serversoft/internal/events"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newLiveServer(t *testing.T, userID string, origins ...string) (*events.Hub, *httptest.Server) {
	t.Helper()
	hub := events.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	h := NewHandlers(hub, origins)
	r := gin.New()
	r.GET("/events/ws", func(c *gin.Context) {
		if userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	}, h.StreamHandler())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/events/ws"
}

func TestStream_DeliversOwnEvents(t *testing.T) {
	hub, srv := newLiveServer(t, "user-1")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	// registration is asynchronous; publish until the first message lands
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(20 * time.Millisecond):
				hub.Publish("user-2", "server.created", map[string]string{"id": "other"})
				hub.Publish("user-1", "server.created", map[string]string{"id": "srv-1"})
			}
		}
	}()
	defer close(done)

	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg events.Message
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "server.created", msg.Type)
	assert.Contains(t, string(payload), `"srv-1"`)
}

func TestStream_RequiresAuth(t *testing.T) {
	_, srv := newLiveServer(t, "")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStream_PlainRequestRejected(t *testing.T) {
	_, srv := newLiveServer(t, "user-1")
	resp, err := http.Get(srv.URL + "/events/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://dash.example.com"})

	req := httptest.NewRequest("GET", "http://api.example.com/events/ws", nil)
	assert.True(t, check(req), "no Origin header")

	req.Header.Set("Origin", "https://dash.example.com")
	assert.True(t, check(req), "configured origin")

	req.Header.Set("Origin", "http://api.example.com")
	assert.True(t, check(req), "same origin")

	req.Header.Set("Origin", "https://evil.example.net")
	assert.False(t, check(req), "foreign origin")

	assert.True(t, originChecker([]string{"*"})(req), "wildcard")
}
