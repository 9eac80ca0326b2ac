// Package status accepts status reports from machine clients such as
// deployment agents and CI jobs authenticating with a status:write API key.
package status

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/serversoft/serversoft/internal/api/httperr"
	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/db/repositories"
	"github.com/serversoft/serversoft/internal/events"
	"github.com/serversoft/serversoft/internal/webhooks"
)

// InstallationStatusSetter applies a normalized installation status.
// *installations.Handlers satisfies it.
type InstallationStatusSetter interface {
	SetStatus(ctx context.Context, userID, id, status string) (*models.Installation, error)
}

// Handlers serves POST /api/v1/status.
type Handlers struct {
	serverRepo    *repositories.ServerRepository
	installations InstallationStatusSetter
	emitter       *events.Emitter
}

// NewHandlers creates the status handler.
func NewHandlers(serverRepo *repositories.ServerRepository, installations InstallationStatusSetter, emitter *events.Emitter) *Handlers {
	return &Handlers{serverRepo: serverRepo, installations: installations, emitter: emitter}
}

// ServerReport updates a server's status and, optionally, its metrics.
// Omitted metrics keep their stored value.
type ServerReport struct {
	ID          string  `json:"id" binding:"required"`
	Status      string  `json:"status" binding:"required"`
	Uptime      *string `json:"uptime"`
	LoadAverage *string `json:"load_average"`
	DiskUsage   *string `json:"disk_usage"`
	MemoryUsage *string `json:"memory_usage"`
}

// InstallationReport updates one installation's status. Aliases such as
// "active" are accepted.
type InstallationReport struct {
	ID     string `json:"id" binding:"required"`
	Status string `json:"status" binding:"required"`
}

// Request is the body of POST /api/v1/status. At least one part is required.
type Request struct {
	Server       *ServerReport       `json:"server"`
	Installation *InstallationReport `json:"installation"`
}

// @Summary      Report status
// @Description  Updates a server's status and metrics and/or an installation's status. Changes are published as
// @Description  server.status_changed and installation.status_changed events.
// @Tags         Status
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  Request  true  "Status report"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}  "Empty report or invalid status"
// @Failure      404  {object}  map[string]interface{}  "Server or installation not found"
// @Router       /api/v1/status [post]
func (h *Handlers) ReportStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		var req Request
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}
		if req.Server == nil && req.Installation == nil {
			httperr.BadRequest(c, "server or installation is required")
			return
		}
		if req.Server != nil {
			req.Server.Status = strings.ToLower(strings.TrimSpace(req.Server.Status))
			if !models.IsValidServerStatus(req.Server.Status) {
				httperr.BadRequest(c, "Invalid server status: must be one of online, offline, maintenance, unknown")
				return
			}
		}
		if req.Installation != nil {
			if _, err := models.NormalizeInstallationStatus(req.Installation.Status); err != nil {
				httperr.BadRequest(c, "Invalid installation status: must be one of pending, installing, running, stopped, failed")
				return
			}
		}

		ctx := c.Request.Context()
		resp := gin.H{}
		if req.Server != nil {
			s, ok := h.applyServer(c, userID, req.Server)
			if !ok {
				return
			}
			resp["server"] = s
		}
		if req.Installation != nil {
			inst, err := h.installations.SetStatus(ctx, userID, req.Installation.ID, req.Installation.Status)
			if err != nil {
				if errors.Is(err, models.ErrInvalidStatus) {
					httperr.BadRequest(c, "Invalid installation status")
					return
				}
				httperr.Repo(c, err, "Installation", "Failed to update installation status")
				return
			}
			resp["installation"] = inst
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (h *Handlers) applyServer(c *gin.Context, userID string, r *ServerReport) (*models.Server, bool) {
	ctx := c.Request.Context()
	s, err := h.serverRepo.GetServer(ctx, userID, r.ID)
	if err != nil {
		httperr.Internal(c, "Failed to load server", err)
		return nil, false
	}
	if s == nil {
		httperr.NotFound(c, "Server")
		return nil, false
	}

	m := models.ServerMetrics{
		Status:      r.Status,
		Uptime:      pick(r.Uptime, s.Uptime),
		LoadAverage: pick(r.LoadAverage, s.LoadAverage),
		DiskUsage:   pick(r.DiskUsage, s.DiskUsage),
		MemoryUsage: pick(r.MemoryUsage, s.MemoryUsage),
	}
	now := time.Now().UTC()
	if err := h.serverRepo.UpdateMetrics(ctx, s.ID, m, now); err != nil {
		httperr.Repo(c, err, "Server", "Failed to update server status")
		return nil, false
	}

	previous := s.Status
	s.Status, s.Uptime, s.LoadAverage, s.DiskUsage, s.MemoryUsage = m.Status, m.Uptime, m.LoadAverage, m.DiskUsage, m.MemoryUsage
	s.LastCheckedAt = &now
	if previous != s.Status {
		h.emitter.Emit(userID, webhooks.EventServerStatusChanged, gin.H{
			"server_id":       s.ID,
			"name":            s.Name,
			"previous_status": previous,
			"status":          s.Status,
			"checked_at":      now,
		})
	}
	return s, true
}

func pick(v *string, current string) string {
	if v == nil {
		return current
	}
	return strings.TrimSpace(*v)
}
