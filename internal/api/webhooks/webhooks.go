// Package webhooks serves workflow webhook registration under
// /api/v1/webhooks and the unauthenticated callback relay at
// /webhooks/callback/:key.
package webhooks

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/serversoft/serversoft/internal/api/httperr"
	"github.com/serversoft/serversoft/internal/crypto"
	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/db/repositories"
	"github.com/serversoft/serversoft/internal/events"
	"github.com/serversoft/serversoft/internal/webhooks"
)

const maxNameLength = 255

// Deliverer posts one event to a webhook. *webhooks.Dispatcher satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, hook *models.WorkflowWebhook, event string, data interface{}) error
}

// Handlers serves the webhook management and callback endpoints.
type Handlers struct {
	webhookRepo *repositories.WebhookRepository
	cipher      *crypto.Cipher
	deliverer   Deliverer
	relay       *webhooks.Relay
	emitter     *events.Emitter
	publicURL   string
}

// NewHandlers creates the webhook handlers. publicURL is the externally
// reachable base used to build callback URLs.
func NewHandlers(webhookRepo *repositories.WebhookRepository, cipher *crypto.Cipher, deliverer Deliverer,
	relay *webhooks.Relay, emitter *events.Emitter, publicURL string) *Handlers {
	return &Handlers{
		webhookRepo: webhookRepo,
		cipher:      cipher,
		deliverer:   deliverer,
		relay:       relay,
		emitter:     emitter,
		publicURL:   strings.TrimRight(publicURL, "/"),
	}
}

type webhookResponse struct {
	*models.WorkflowWebhook
	CallbackURL string `json:"callback_url"`
	Secret      string `json:"secret,omitempty"`
}

func (h *Handlers) toResponse(w *models.WorkflowWebhook) webhookResponse {
	return webhookResponse{WorkflowWebhook: w, CallbackURL: h.publicURL + "/webhooks/callback/" + w.WebhookKey}
}

// WebhookRequest is the body of POST and PUT /api/v1/webhooks. On update,
// omitted fields keep their value.
type WebhookRequest struct {
	Name   *string  `json:"name"`
	URL    *string  `json:"url"`
	Events []string `json:"events"`
	Active *bool    `json:"active"`
}

func (req *WebhookRequest) apply(w *models.WorkflowWebhook) error {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return errors.New("name is required")
		}
		if len(name) > maxNameLength {
			return errors.New("name is too long")
		}
		w.Name = name
	}
	if req.URL != nil {
		if err := webhooks.ValidateURL(*req.URL); err != nil {
			return err
		}
		w.URL = strings.TrimSpace(*req.URL)
	}
	if req.Events != nil {
		for _, e := range req.Events {
			if !webhooks.ValidEvent(e) {
				return errors.New("unknown event: " + e)
			}
		}
		w.Events = req.Events
	}
	if req.Active != nil {
		w.Active = *req.Active
	}
	return nil
}

// ListWebhooksHandler returns the caller's webhooks. Secrets are never listed.
func (h *Handlers) ListWebhooksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		hooks, err := h.webhookRepo.ListWebhooks(c.Request.Context(), userID)
		if err != nil {
			httperr.Internal(c, "Failed to list webhooks", err)
			return
		}
		out := make([]webhookResponse, 0, len(hooks))
		for _, w := range hooks {
			out = append(out, h.toResponse(w))
		}
		c.JSON(http.StatusOK, gin.H{"webhooks": out, "events": webhooks.Events})
	}
}

// @Summary      Register webhook
// @Description  Registers a workflow webhook. The response carries the shared secret, shown only once, and the callback URL the external tool posts to.
// @Tags         Webhooks
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  WebhookRequest  true  "Webhook"
// @Success      201  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}  "Invalid URL or event"
// @Router       /api/v1/webhooks [post]
func (h *Handlers) CreateWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		var req WebhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}
		if req.Name == nil || req.URL == nil {
			httperr.BadRequest(c, "name and url are required")
			return
		}
		hook := &models.WorkflowWebhook{UserID: userID, Active: true, Events: models.StringList{}}
		if err := req.apply(hook); err != nil {
			httperr.BadRequest(c, err.Error())
			return
		}

		key, secret, err := webhooks.NewCredentials()
		if err != nil {
			httperr.Internal(c, "Failed to generate webhook credentials", err)
			return
		}
		enc, err := h.cipher.Encrypt(secret)
		if err != nil {
			httperr.Internal(c, "Failed to encrypt webhook secret", err)
			return
		}
		hook.WebhookKey = key
		hook.SecretEncrypted = enc

		if err := h.webhookRepo.CreateWebhook(c.Request.Context(), hook); err != nil {
			httperr.Repo(c, err, "Webhook", "Failed to create webhook")
			return
		}
		resp := h.toResponse(hook)
		resp.Secret = secret
		c.JSON(http.StatusCreated, resp)
	}
}

func (h *Handlers) load(c *gin.Context, userID string) (*models.WorkflowWebhook, bool) {
	hook, err := h.webhookRepo.GetWebhook(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		httperr.Internal(c, "Failed to load webhook", err)
		return nil, false
	}
	if hook == nil {
		httperr.NotFound(c, "Webhook")
		return nil, false
	}
	return hook, true
}

// GetWebhookHandler returns one webhook without its secret.
func (h *Handlers) GetWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		hook, ok := h.load(c, userID)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, h.toResponse(hook))
	}
}

// UpdateWebhookHandler changes name, URL, subscriptions or the active flag.
func (h *Handlers) UpdateWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		var req WebhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}
		hook, ok := h.load(c, userID)
		if !ok {
			return
		}
		if err := req.apply(hook); err != nil {
			httperr.BadRequest(c, err.Error())
			return
		}
		if err := h.webhookRepo.UpdateWebhook(c.Request.Context(), hook); err != nil {
			httperr.Repo(c, err, "Webhook", "Failed to update webhook")
			return
		}
		c.JSON(http.StatusOK, h.toResponse(hook))
	}
}

// DeleteWebhookHandler removes a webhook. Its callback URL stops working.
func (h *Handlers) DeleteWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		if err := h.webhookRepo.DeleteWebhook(c.Request.Context(), userID, c.Param("id")); err != nil {
			httperr.Repo(c, err, "Webhook", "Failed to delete webhook")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Webhook deleted"})
	}
}

// TriggerWebhookHandler sends a webhook.test event to one webhook, ignoring
// its subscriptions and active flag, and reports whether it was accepted.
func (h *Handlers) TriggerWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		hook, ok := h.load(c, userID)
		if !ok {
			return
		}
		data := gin.H{"webhook_id": hook.ID, "message": "Test delivery from ServerSoft"}
		if err := h.deliverer.Deliver(c.Request.Context(), hook, webhooks.EventTest, data); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "Delivery failed", "delivered": false, "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"delivered": true, "triggered_at": time.Now().UTC()})
	}
}
