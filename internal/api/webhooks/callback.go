package webhooks

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/serversoft/serversoft/internal/api/httperr"
	"github.com/serversoft/serversoft/internal/webhooks"
)

// @Summary      Webhook callback relay
// @Description  Accepts a callback from an external workflow tool and forwards the body unchanged to the webhook's
// @Description  downstream URL. The secret issued at registration must be passed as the secret query parameter; it is
// @Description  compared in constant time against the stored secret before anything is forwarded.
// @Tags         Webhooks
// @Accept       json
// @Produce      json
// @Param        key     path   string  true  "Webhook key"
// @Param        secret  query  string  true  "Webhook shared secret"
// @Success      200  {object}  map[string]interface{}  "Downstream response, relayed as-is"
// @Failure      401  {object}  map[string]interface{}  "Secret mismatch"
// @Failure      404  {object}  map[string]interface{}  "Unknown or inactive webhook"
// @Failure      413  {object}  map[string]interface{}  "Body too large"
// @Failure      502  {object}  map[string]interface{}  "Downstream unreachable"
// @Router       /webhooks/callback/{key} [post]
func (h *Handlers) CallbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		hook, err := h.webhookRepo.GetWebhookByKey(ctx, c.Param("key"))
		if err != nil {
			httperr.Internal(c, "Failed to load webhook", err)
			return
		}
		if hook == nil || !hook.Active {
			httperr.NotFound(c, "Webhook")
			return
		}

		secret := c.Query("secret")
		if !webhooks.CheckSecret(h.cipher, hook, secret) {
			httperr.Abort(c, http.StatusUnauthorized, "Invalid webhook secret")
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.relay.MaxBodyBytes())
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httperr.Abort(c, http.StatusRequestEntityTooLarge, "Callback body too large")
				return
			}
			httperr.BadRequest(c, "Failed to read callback body")
			return
		}

		resp, err := h.relay.Forward(ctx, hook, secret, body, c.ContentType())
		if err != nil {
			slog.Warn("webhook relay failed", "webhook_id", hook.ID, "error", err)
			if errors.Is(err, webhooks.ErrDownstream) {
				httperr.Abort(c, http.StatusBadGateway, "Webhook downstream unreachable")
				return
			}
			httperr.Internal(c, "Failed to relay callback", err)
			return
		}

		now := time.Now().UTC()
		if err := h.webhookRepo.MarkTriggered(ctx, hook.ID, now); err != nil {
			slog.Warn("failed to record webhook trigger", "webhook_id", hook.ID, "error", err)
		}
		h.emitter.Emit(hook.UserID, webhooks.EventCallbackReceived, gin.H{
			"webhook_id":        hook.ID,
			"downstream_status": resp.StatusCode,
			"received_at":       now,
		})

		c.Data(resp.StatusCode, resp.ContentType, resp.Body)
	}
}
