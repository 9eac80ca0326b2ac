// Package live upgrades authenticated requests to a websocket that streams
// the caller's domain events.
package live

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/serversoft/serversoft/internal/api/httperr"
	"github.com/serversoft/serversoft/internal/events"
)

// Handlers serves GET /api/v1/events/ws.
type Handlers struct {
	hub      *events.Hub
	upgrader websocket.Upgrader
}

// NewHandlers creates the websocket handler. Browser connections are only
// accepted from allowedOrigins ("*" allows any); requests without an Origin
// header, such as CLI clients, are always accepted.
func NewHandlers(hub *events.Hub, allowedOrigins []string) *Handlers {
	return &Handlers{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		// same-origin dashboards need no CORS entry
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// @Summary      Event stream
// @Description  Upgrades to a websocket delivering {"type","data","timestamp"} messages for the caller's servers,
// @Description  installations and webhooks. Browsers may pass the session token as the token query parameter.
// @Tags         Events
// @Security     Bearer
// @Param        token  query  string  false  "Session token or API key"
// @Success      101
// @Router       /api/v1/events/ws [get]
func (h *Handlers) StreamHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		if !websocket.IsWebSocketUpgrade(c.Request) {
			httperr.BadRequest(c, "Websocket upgrade required")
			return
		}
		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade has already written the HTTP error.
			slog.Debug("websocket upgrade failed", "user_id", userID, "error", err)
			return
		}
		events.NewClient(conn).Serve(h.hub, userID)
	}
}
