// Package installations serves /api/v1/installations: which catalog software
// is installed on which of the caller's servers, and in what state.
package installations

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/serversoft/serversoft/internal/api/httperr"
	"github.com/serversoft/serversoft/internal/catalog"
	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/db/repositories"
	"github.com/serversoft/serversoft/internal/events"
	"github.com/serversoft/serversoft/internal/webhooks"
)

const invalidStatusMessage = "status must be one of pending, installing, running, stopped, failed (active and inactive are accepted)"

// Handlers serves the installation endpoints.
type Handlers struct {
	installRepo  *repositories.InstallationRepository
	serverRepo   *repositories.ServerRepository
	softwareRepo *repositories.SoftwareRepository
	emitter      *events.Emitter
}

// NewHandlers creates the installation handlers.
func NewHandlers(installRepo *repositories.InstallationRepository, serverRepo *repositories.ServerRepository,
	softwareRepo *repositories.SoftwareRepository, emitter *events.Emitter) *Handlers {
	return &Handlers{
		installRepo:  installRepo,
		serverRepo:   serverRepo,
		softwareRepo: softwareRepo,
		emitter:      emitter,
	}
}

// Response is an installation as the API returns it.
type Response struct {
	*models.Installation
	UpdateAvailable bool `json:"update_available"`
}

func toResponse(inst *models.Installation) Response {
	latest := ""
	if inst.LatestVersion != nil {
		latest = *inst.LatestVersion
	}
	return Response{Installation: inst, UpdateAvailable: catalog.UpdateAvailable(inst.Version, latest)}
}

// ListInstallationsHandler returns the caller's installations, optionally
// filtered by ?server_id= and ?status=.
func (h *Handlers) ListInstallationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		filters := repositories.InstallationFilters{ServerID: strings.TrimSpace(c.Query("server_id"))}
		if raw := c.Query("status"); raw != "" {
			status, err := models.NormalizeInstallationStatus(raw)
			if err != nil {
				httperr.BadRequest(c, invalidStatusMessage)
				return
			}
			filters.Status = status
		}

		items, err := h.installRepo.ListInstallations(c.Request.Context(), userID, filters)
		if err != nil {
			httperr.Internal(c, "Failed to list installations", err)
			return
		}
		out := make([]Response, 0, len(items))
		for _, inst := range items {
			out = append(out, toResponse(inst))
		}
		c.JSON(http.StatusOK, gin.H{"installations": out})
	}
}

func (h *Handlers) load(c *gin.Context, userID string) (*models.Installation, bool) {
	inst, err := h.installRepo.GetInstallation(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		httperr.Internal(c, "Failed to load installation", err)
		return nil, false
	}
	if inst == nil {
		httperr.NotFound(c, "Installation")
		return nil, false
	}
	return inst, true
}

// GetInstallationHandler returns one installation.
func (h *Handlers) GetInstallationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		inst, ok := h.load(c, userID)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, toResponse(inst))
	}
}

// CreateRequest is the body of POST /api/v1/installations.
type CreateRequest struct {
	ServerID   string `json:"server_id" binding:"required"`
	SoftwareID string `json:"software_id" binding:"required"`
	Version    string `json:"version"`
	Status     string `json:"status"`
}

// @Summary      Create installation
// @Description  Records catalog software on one of the caller's servers. The version defaults to the catalog version.
// @Tags         Installations
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateRequest  true  "Installation"
// @Success      201  {object}  Response
// @Failure      404  {object}  map[string]interface{}  "Server or software not found"
// @Failure      409  {object}  map[string]interface{}  "Already installed on this server"
// @Router       /api/v1/installations [post]
func (h *Handlers) CreateInstallationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		var req CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}
		status := models.InstallationStatusPending
		if req.Status != "" {
			var err error
			if status, err = models.NormalizeInstallationStatus(req.Status); err != nil {
				httperr.BadRequest(c, invalidStatusMessage)
				return
			}
		}

		ctx := c.Request.Context()
		server, err := h.serverRepo.GetServer(ctx, userID, req.ServerID)
		if err != nil {
			httperr.Internal(c, "Failed to load server", err)
			return
		}
		if server == nil {
			httperr.NotFound(c, "Server")
			return
		}
		sw, err := h.softwareRepo.GetSoftware(ctx, req.SoftwareID)
		if err != nil {
			httperr.Internal(c, "Failed to load software", err)
			return
		}
		if sw == nil {
			httperr.NotFound(c, "Software")
			return
		}

		version := strings.TrimSpace(req.Version)
		if version == "" {
			version = sw.Version
		}
		inst := &models.Installation{
			UserID:        userID,
			ServerID:      server.ID,
			SoftwareID:    sw.ID,
			Status:        status,
			Version:       version,
			ServerName:    &server.Name,
			SoftwareName:  &sw.Name,
			LatestVersion: &sw.Version,
		}
		if err := h.installRepo.CreateInstallation(ctx, inst); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				httperr.Abort(c, http.StatusConflict, "Software is already installed on this server")
				return
			}
			httperr.Internal(c, "Failed to create installation", err)
			return
		}

		resp := toResponse(inst)
		h.emitter.Emit(userID, webhooks.EventInstallationCreated, resp)
		c.JSON(http.StatusCreated, resp)
	}
}

// UpdateRequest is the body of PUT /api/v1/installations/:id. Omitted fields
// are left alone.
type UpdateRequest struct {
	Version *string `json:"version"`
	Status  *string `json:"status"`
}

// UpdateInstallationHandler changes the installed version and/or status.
func (h *Handlers) UpdateInstallationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		var req UpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}
		var status string
		if req.Status != nil {
			var err error
			if status, err = models.NormalizeInstallationStatus(*req.Status); err != nil {
				httperr.BadRequest(c, invalidStatusMessage)
				return
			}
		}
		if req.Version != nil && strings.TrimSpace(*req.Version) == "" {
			httperr.BadRequest(c, "version cannot be empty")
			return
		}

		inst, ok := h.load(c, userID)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		if req.Version != nil {
			v := strings.TrimSpace(*req.Version)
			if err := h.installRepo.UpdateVersion(ctx, userID, inst.ID, v); err != nil {
				httperr.Repo(c, err, "Installation", "Failed to update installation")
				return
			}
			inst.Version = v
		}
		if status != "" {
			if err := h.applyStatus(ctx, inst, status); err != nil {
				httperr.Repo(c, err, "Installation", "Failed to update installation")
				return
			}
		}
		c.JSON(http.StatusOK, toResponse(inst))
	}
}

// StatusRequest is the body of PATCH /api/v1/installations/:id/status.
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// @Summary      Update installation status
// @Description  Sets the status. "active" and "inactive" are normalized to running and stopped.
// @Tags         Installations
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string         true  "Installation ID"
// @Param        body  body  StatusRequest  true  "New status"
// @Success      200  {object}  Response
// @Failure      400  {object}  map[string]interface{}  "Unknown status"
// @Router       /api/v1/installations/{id}/status [patch]
func (h *Handlers) UpdateStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		var req StatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}
		inst, err := h.SetStatus(c.Request.Context(), userID, c.Param("id"), req.Status)
		if err != nil {
			if errors.Is(err, models.ErrInvalidStatus) {
				httperr.BadRequest(c, invalidStatusMessage)
				return
			}
			httperr.Repo(c, err, "Installation", "Failed to update installation status")
			return
		}
		c.JSON(http.StatusOK, toResponse(inst))
	}
}

// SetStatus normalizes status and applies it to the caller's installation,
// publishing installation.status_changed when the value changes. It returns
// models.ErrInvalidStatus or repositories.ErrNotFound for bad input.
func (h *Handlers) SetStatus(ctx context.Context, userID, id, status string) (*models.Installation, error) {
	canonical, err := models.NormalizeInstallationStatus(status)
	if err != nil {
		return nil, err
	}
	inst, err := h.installRepo.GetInstallation(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, repositories.ErrNotFound
	}
	if err := h.applyStatus(ctx, inst, canonical); err != nil {
		return nil, err
	}
	return inst, nil
}

func (h *Handlers) applyStatus(ctx context.Context, inst *models.Installation, status string) error {
	if inst.Status == status {
		return nil
	}
	if err := h.installRepo.UpdateStatus(ctx, inst.UserID, inst.ID, status); err != nil {
		return err
	}
	previous := inst.Status
	inst.Status = status
	h.emitter.Emit(inst.UserID, webhooks.EventInstallationStatusChanged, gin.H{
		"installation":    toResponse(inst),
		"previous_status": previous,
	})
	return nil
}

// DeleteInstallationHandler removes an installation.
func (h *Handlers) DeleteInstallationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		inst, ok := h.load(c, userID)
		if !ok {
			return
		}
		if err := h.installRepo.DeleteInstallation(c.Request.Context(), userID, inst.ID); err != nil {
			httperr.Repo(c, err, "Installation", "Failed to delete installation")
			return
		}
		h.emitter.Emit(userID, webhooks.EventInstallationDeleted, toResponse(inst))
		c.JSON(http.StatusOK, gin.H{"message": "Installation deleted"})
	}
}
