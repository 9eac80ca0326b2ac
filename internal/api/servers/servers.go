// Package servers implements the server and server-group endpoints.
//
// SSH passwords and private keys are encrypted with the credential cipher
// before they are stored and are never returned; responses only carry
// has_ssh_secret.
package servers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/ssh"

	"github.com/serversoft/serversoft/internal/api/httperr"
	"github.com/serversoft/serversoft/internal/crypto"
	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/db/repositories"
	"github.com/serversoft/serversoft/internal/events"
	"github.com/serversoft/serversoft/internal/sshprobe"
	"github.com/serversoft/serversoft/internal/webhooks"
)

const (
	defaultSSHPort     = 22
	defaultSSHUsername = "root"
	maxNameLength      = 255
)

// Refresher probes a server over SSH and stores the snapshot.
// *sshprobe.Prober satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, store sshprobe.MetricsStore, c *crypto.Cipher, s *models.Server) (*sshprobe.Result, error)
}

// Handlers serves /api/v1/servers.
type Handlers struct {
	serverRepo  *repositories.ServerRepository
	billingRepo *repositories.BillingRepository
	cipher      *crypto.Cipher
	prober      Refresher
	emitter     *events.Emitter
}

// NewHandlers creates the server handlers. prober may be nil, in which case
// refresh responds 503.
func NewHandlers(
	serverRepo *repositories.ServerRepository,
	billingRepo *repositories.BillingRepository,
	cipher *crypto.Cipher,
	prober Refresher,
	emitter *events.Emitter,
) *Handlers {
	return &Handlers{
		serverRepo:  serverRepo,
		billingRepo: billingRepo,
		cipher:      cipher,
		prober:      prober,
		emitter:     emitter,
	}
}

type serverResponse struct {
	*models.Server
	HasSSHSecret bool `json:"has_ssh_secret"`
}

func toResponse(s *models.Server) serverResponse {
	return serverResponse{Server: s, HasSSHSecret: s.HasSSHSecret()}
}

// ServerRequest is the body of POST and PUT /api/v1/servers. On update,
// omitted fields keep their stored value; ssh_secret "" clears the secret.
type ServerRequest struct {
	Name          *string `json:"name"`
	IPAddress     *string `json:"ip_address"`
	SSHPort       *int    `json:"ssh_port"`
	SSHUsername   *string `json:"ssh_username"`
	SSHAuthMethod *string `json:"ssh_auth_method"`
	SSHSecret     *string `json:"ssh_secret"`
	Status        *string `json:"status"`
}

// apply copies the request onto s and validates the result. The SSH secret
// is handled separately by sealSecret.
func (req *ServerRequest) apply(s *models.Server) error {
	if req.Name != nil {
		s.Name = strings.TrimSpace(*req.Name)
	}
	if req.IPAddress != nil {
		s.IPAddress = strings.TrimSpace(*req.IPAddress)
	}
	if req.SSHPort != nil {
		s.SSHPort = *req.SSHPort
	}
	if req.SSHUsername != nil {
		s.SSHUsername = strings.TrimSpace(*req.SSHUsername)
	}
	if req.SSHAuthMethod != nil {
		s.SSHAuthMethod = *req.SSHAuthMethod
	}
	if req.Status != nil {
		s.Status = *req.Status
	}

	if s.Name == "" {
		return errors.New("name is required")
	}
	if len(s.Name) > maxNameLength {
		return fmt.Errorf("name must be at most %d characters", maxNameLength)
	}
	if net.ParseIP(s.IPAddress) == nil {
		return errors.New("ip_address must be a valid IPv4 or IPv6 address")
	}
	if s.SSHPort < 1 || s.SSHPort > 65535 {
		return errors.New("ssh_port must be between 1 and 65535")
	}
	if s.SSHUsername == "" {
		return errors.New("ssh_username is required")
	}
	if !models.IsValidServerStatus(s.Status) {
		return fmt.Errorf("invalid status %q", s.Status)
	}

	switch s.SSHAuthMethod {
	case models.SSHAuthNone, models.SSHAuthPassword:
	case models.SSHAuthKey:
		if req.SSHSecret != nil && *req.SSHSecret != "" {
			if _, err := ssh.ParsePrivateKey([]byte(*req.SSHSecret)); err != nil {
				return errors.New("ssh_secret is not a usable unencrypted private key")
			}
		}
	default:
		return fmt.Errorf("ssh_auth_method must be one of %s, %s, %s",
			models.SSHAuthPassword, models.SSHAuthKey, models.SSHAuthNone)
	}
	return nil
}

// sealSecret encrypts a supplied SSH secret onto s. Auth method none never
// keeps a secret.
func (h *Handlers) sealSecret(req *ServerRequest, s *models.Server) error {
	if s.SSHAuthMethod == models.SSHAuthNone {
		s.SSHSecretEncrypted = nil
		return nil
	}
	if req.SSHSecret == nil {
		return nil
	}
	if *req.SSHSecret == "" {
		s.SSHSecretEncrypted = nil
		return nil
	}
	enc, err := h.cipher.Encrypt(*req.SSHSecret)
	if err != nil {
		return err
	}
	s.SSHSecretEncrypted = &enc
	return nil
}

func (h *Handlers) loadServer(c *gin.Context, userID string) (*models.Server, bool) {
	s, err := h.serverRepo.GetServer(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		httperr.Internal(c, "Failed to load server", err)
		return nil, false
	}
	if s == nil {
		httperr.NotFound(c, "Server")
		return nil, false
	}
	return s, true
}

// @Summary      List servers
// @Tags         Servers
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/servers [get]
func (h *Handlers) ListServersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		servers, err := h.serverRepo.ListServers(c.Request.Context(), userID)
		if err != nil {
			httperr.Internal(c, "Failed to list servers", err)
			return
		}
		out := make([]serverResponse, 0, len(servers))
		for _, s := range servers {
			out = append(out, toResponse(s))
		}
		c.JSON(http.StatusOK, gin.H{"servers": out})
	}
}

// @Summary      Register a server
// @Description  Creates a server. The caller's billing plan limits how many servers they may own.
// @Tags         Servers
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  ServerRequest  true  "Server"
// @Success      201  {object}  serverResponse
// @Failure      400  {object}  map[string]interface{}
// @Failure      403  {object}  map[string]interface{}  "Plan server limit reached"
// @Router       /api/v1/servers [post]
func (h *Handlers) CreateServerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		var req ServerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}

		s := &models.Server{
			UserID:        userID,
			SSHPort:       defaultSSHPort,
			SSHUsername:   defaultSSHUsername,
			SSHAuthMethod: models.SSHAuthNone,
			Status:        models.ServerStatusUnknown,
		}
		if req.SSHAuthMethod == nil && req.SSHSecret != nil && *req.SSHSecret != "" {
			s.SSHAuthMethod = models.SSHAuthPassword
		}
		if err := req.apply(s); err != nil {
			httperr.BadRequest(c, err.Error())
			return
		}
		if err := h.sealSecret(&req, s); err != nil {
			httperr.Internal(c, "Failed to encrypt SSH secret", err)
			return
		}

		ctx := c.Request.Context()
		plan, err := h.currentPlan(ctx, userID)
		if err != nil {
			httperr.Internal(c, "Failed to create server", err)
			return
		}
		count, err := h.serverRepo.CountServers(ctx, userID)
		if err != nil {
			httperr.Internal(c, "Failed to create server", err)
			return
		}
		if plan != nil && !plan.AllowsServers(count+1) {
			httperr.Abort(c, http.StatusForbidden,
				fmt.Sprintf("The %s plan allows at most %d servers", plan.Name, *plan.MaxServers))
			return
		}

		if err := h.serverRepo.CreateServer(ctx, s); err != nil {
			httperr.Repo(c, err, "Server", "Failed to create server")
			return
		}
		h.emitter.Emit(userID, webhooks.EventServerCreated, gin.H{
			"server_id":  s.ID,
			"name":       s.Name,
			"ip_address": s.IPAddress,
		})
		c.JSON(http.StatusCreated, toResponse(s))
	}
}

// currentPlan resolves the caller's plan; users without a subscription are
// on the default plan. A missing plan row means no limit is enforced.
func (h *Handlers) currentPlan(ctx context.Context, userID string) (*models.BillingPlan, error) {
	code := models.DefaultPlanCode
	sub, err := h.billingRepo.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub != nil && sub.Status == models.SubscriptionActive {
		code = sub.PlanCode
	}
	return h.billingRepo.GetPlan(ctx, code)
}

// GetServerHandler returns one of the caller's servers.
func (h *Handlers) GetServerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		s, ok := h.loadServer(c, userID)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, toResponse(s))
	}
}

// UpdateServerHandler edits connection details or sets a manual status such
// as maintenance.
func (h *Handlers) UpdateServerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		var req ServerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}
		s, ok := h.loadServer(c, userID)
		if !ok {
			return
		}
		previous := s.Status
		if err := req.apply(s); err != nil {
			httperr.BadRequest(c, err.Error())
			return
		}
		if err := h.sealSecret(&req, s); err != nil {
			httperr.Internal(c, "Failed to encrypt SSH secret", err)
			return
		}
		if err := h.serverRepo.UpdateServer(c.Request.Context(), s); err != nil {
			httperr.Repo(c, err, "Server", "Failed to update server")
			return
		}
		if s.Status != previous {
			h.emitter.Emit(userID, webhooks.EventServerStatusChanged, gin.H{
				"server_id":       s.ID,
				"name":            s.Name,
				"previous_status": previous,
				"status":          s.Status,
			})
		}
		c.JSON(http.StatusOK, toResponse(s))
	}
}

// DeleteServerHandler removes a server with its installations and group
// memberships.
func (h *Handlers) DeleteServerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		id := c.Param("id")
		if err := h.serverRepo.DeleteServer(c.Request.Context(), userID, id); err != nil {
			httperr.Repo(c, err, "Server", "Failed to delete server")
			return
		}
		h.emitter.Emit(userID, webhooks.EventServerDeleted, gin.H{"server_id": id})
		c.JSON(http.StatusOK, gin.H{"message": "Server deleted"})
	}
}

// @Summary      Refresh server metrics
// @Description  Connects over SSH, reads uptime, load, disk and memory usage and stores them. An unreachable server is marked offline.
// @Tags         Servers
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Server ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}  "No SSH credentials"
// @Failure      404  {object}  map[string]interface{}
// @Router       /api/v1/servers/{id}/refresh [post]
func (h *Handlers) RefreshServerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		if h.prober == nil {
			httperr.Abort(c, http.StatusServiceUnavailable, "SSH probing is not available")
			return
		}
		s, ok := h.loadServer(c, userID)
		if !ok {
			return
		}
		if s.SSHAuthMethod == models.SSHAuthNone || !s.HasSSHSecret() {
			httperr.BadRequest(c, "Server has no SSH credentials")
			return
		}

		previous := s.Status
		res, err := h.prober.Refresh(c.Request.Context(), h.serverRepo, h.cipher, s)
		if err != nil {
			httperr.Internal(c, "Failed to store server metrics", err)
			return
		}
		if res.Changed {
			h.emitter.Emit(userID, webhooks.EventServerStatusChanged, gin.H{
				"server_id":       s.ID,
				"name":            s.Name,
				"previous_status": previous,
				"status":          res.Metrics.Status,
				"checked_at":      res.CheckedAt,
			})
		}

		resp := gin.H{"server": toResponse(s)}
		if res.ProbeErr != nil {
			resp["probe_error"] = res.ProbeErr.Error()
		}
		c.JSON(http.StatusOK, resp)
	}
}
