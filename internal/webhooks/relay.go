package webhooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/serversoft/serversoft/internal/config"
	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/telemetry"
)

const (
	defaultMaxBodyBytes  = 1 << 20
	maxRelayedRespBytes  = 1 << 20
	defaultRelayContType = "application/json"
)

// ErrDownstream wraps failures to reach a webhook's downstream URL.
var ErrDownstream = errors.New("downstream unreachable")

// RelayResponse is the downstream answer passed back to the caller.
type RelayResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Relay forwards inbound callbacks to the webhook's configured URL.
type Relay struct {
	client       *http.Client
	maxBodyBytes int64
}

// NewRelay creates a Relay from the webhook settings.
func NewRelay(cfg config.WebhooksConfig) *Relay {
	timeout := cfg.RelayTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Relay{client: &http.Client{Timeout: timeout}, maxBodyBytes: maxBody}
}

// MaxBodyBytes is the largest callback body the relay accepts.
func (r *Relay) MaxBodyBytes() int64 {
	return r.maxBodyBytes
}

// Forward posts body unchanged to hook.URL, signed with secret, and returns
// the downstream response.
func (r *Relay) Forward(ctx context.Context, hook *models.WorkflowWebhook, secret string, body []byte, contentType string) (*RelayResponse, error) {
	if contentType == "" {
		contentType = defaultRelayContType
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownstream, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-ServerSoft-Event", EventCallbackReceived)
	req.Header.Set(SignatureHeader, Sign(secret, body))

	start := time.Now()
	resp, err := r.client.Do(req)
	telemetry.WebhookRelayDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.WebhookDeliveriesTotal.WithLabelValues(EventCallbackReceived, "error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrDownstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayedRespBytes))
	if err != nil {
		telemetry.WebhookDeliveriesTotal.WithLabelValues(EventCallbackReceived, "error").Inc()
		return nil, fmt.Errorf("%w: reading response: %v", ErrDownstream, err)
	}
	telemetry.WebhookDeliveriesTotal.WithLabelValues(EventCallbackReceived, "ok").Inc()

	return &RelayResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        respBody,
	}, nil
}
