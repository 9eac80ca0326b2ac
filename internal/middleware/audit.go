// audit.go provides Gin middleware that records authenticated write operations to the audit log.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/serversoft/serversoft/internal/audit"
	"github.com/serversoft/serversoft/internal/config"
	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/db/repositories"
	"github.com/serversoft/serversoft/internal/safego"
)

// auditWriteTimeout bounds the async audit insert.
const auditWriteTimeout = 5 * time.Second

// resourceTypes maps the first path segment under /api/v1 to an audit
// resource type.
var resourceTypes = map[string]string{
	"servers":       "server",
	"software":      "software",
	"installations": "installation",
	"credentials":   "credential",
	"groups":        "server_group",
	"apikeys":       "api_key",
	"webhooks":      "webhook",
	"settings":      "settings",
	"billing":       "subscription",
	"status":        "status",
	"auth":          "user",
	"users":         "user",
}

// AuditMiddleware records authenticated requests once the handler has run.
// By default only successful mutating requests are logged; cfg can widen
// that to reads and failures. Each stored entry is also passed to shipper
// when one is given.
func AuditMiddleware(auditRepo *repositories.AuditRepository, cfg config.AuditConfig, shipper audit.Shipper) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == http.MethodOptions {
			return
		}

		isRead := c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead
		isFailed := c.Writer.Status() >= 400
		if isRead && !cfg.LogReadOperations {
			return
		}
		if isFailed && !cfg.LogFailedRequests {
			return
		}

		userID := CurrentUserID(c)
		if userID == "" {
			return
		}

		entry := buildAuditLog(c, userID)

		safego.GoTimeout("audit.write", auditWriteTimeout, func(ctx context.Context) {
			if err := auditRepo.CreateAuditLog(ctx, entry); err != nil {
				slog.Error("failed to create audit log", "action", entry.Action, "error", err)
			}
			if shipper != nil {
				if err := shipper.Ship(ctx, entry); err != nil {
					slog.Warn("failed to ship audit log", "action", entry.Action, "error", err)
				}
			}
		})
	}
}

func buildAuditLog(c *gin.Context, userID string) *models.AuditLog {
	ip := c.ClientIP()
	entry := &models.AuditLog{
		UserID:    &userID,
		IPAddress: &ip,
		CreatedAt: time.Now(),
		Metadata: models.JSONObject{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status_code": c.Writer.Status(),
		},
	}
	if method := c.GetString("auth_method"); method != "" {
		entry.Metadata["auth_method"] = method
	}
	if keyID := c.GetString("api_key_id"); keyID != "" {
		entry.Metadata["api_key_id"] = keyID
	}
	if rid := RequestID(c); rid != "" {
		entry.Metadata["request_id"] = rid
	}

	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	resource, verb := auditAction(c.Request.Method, route)
	entry.Action = resource + "." + verb
	if resource != "" {
		entry.ResourceType = &resource
	}
	if id := c.Param("id"); id != "" {
		entry.ResourceID = &id
	}
	return entry
}

// auditAction derives a resource type and verb such as ("server", "deleted")
// from the route. Sub-resource actions (/servers/:id/refresh) use the last
// literal path segment as the verb.
func auditAction(method, path string) (string, string) {
	rest := strings.TrimPrefix(path, "/api/v1/")
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	if segments[0] == "admin" && len(segments) > 1 {
		segments = segments[1:]
	}

	resource, ok := resourceTypes[segments[0]]
	if !ok {
		resource = segments[0]
	}

	if len(segments) >= 3 {
		for i := len(segments) - 1; i > 0; i-- {
			if !strings.HasPrefix(segments[i], ":") {
				return resource, segments[i]
			}
		}
	}

	switch method {
	case http.MethodPost:
		if len(segments) == 1 {
			return resource, "created"
		}
		return resource, "action"
	case http.MethodPut, http.MethodPatch:
		return resource, "updated"
	case http.MethodDelete:
		return resource, "deleted"
	default:
		return resource, "read"
	}
}
