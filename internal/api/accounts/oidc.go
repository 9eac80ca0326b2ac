package accounts

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/serversoft/serversoft/internal/auth/oidc"
)

// oidcStateCookie carries the CSRF state between login and callback.
const oidcStateCookie = "serversoft_oidc_state"

const oidcStateMaxAge = 10 * 60

// OIDCAuthenticator is the part of *oidc.OIDCProvider the handlers use.
type OIDCAuthenticator interface {
	GetAuthURL(state string) string
	Authenticate(ctx context.Context, code string) (*oidc.UserInfo, error)
}

// SetOIDCProvider enables the OIDC routes.
func (h *Handlers) SetOIDCProvider(p OIDCAuthenticator) {
	h.oidc = p
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// @Summary      Begin OIDC sign-in
// @Tags         Authentication
// @Success      302  {object}  string  "Redirects to the identity provider"
// @Failure      404  {object}  map[string]interface{}  "OIDC not configured"
// @Router       /api/v1/auth/oidc/login [get]
func (h *Handlers) OIDCLoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.oidc == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "OIDC sign-in is not configured"})
			return
		}
		state, err := generateState()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate state"})
			return
		}
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     oidcStateCookie,
			Value:    state,
			Path:     "/api/v1/auth/oidc",
			MaxAge:   oidcStateMaxAge,
			HttpOnly: true,
			Secure:   h.cfg.Server.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
		c.Redirect(http.StatusFound, h.oidc.GetAuthURL(state))
	}
}

// OIDCCallbackHandler completes the authorization-code flow, links or creates
// the account and redirects the browser to the dashboard with a session
// cookie set. Failures redirect to the dashboard login page with an error
// code in the query string.
func (h *Handlers) OIDCCallbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		frontend := h.cfg.Server.GetPublicURL()
		fail := func(code, description string) {
			target := frontend + "/login?error=" + url.QueryEscape(code) +
				"&error_description=" + url.QueryEscape(description)
			c.Redirect(http.StatusFound, target)
		}

		if h.oidc == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "OIDC sign-in is not configured"})
			return
		}

		if e := c.Query("error"); e != "" {
			fail(e, c.Query("error_description"))
			return
		}

		cookie, err := c.Cookie(oidcStateCookie)
		state := c.Query("state")
		if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie), []byte(state)) != 1 {
			fail("invalid_state", "Sign-in session expired, please try again")
			return
		}
		http.SetCookie(c.Writer, &http.Cookie{
			Name:   oidcStateCookie,
			Value:  "",
			Path:   "/api/v1/auth/oidc",
			MaxAge: -1,
		})

		code := c.Query("code")
		if code == "" {
			fail("invalid_request", "Missing authorization code")
			return
		}

		ctx := c.Request.Context()
		info, err := h.oidc.Authenticate(ctx, code)
		if err != nil {
			slog.Warn("oidc authentication failed", "error", err)
			if errors.Is(err, oidc.ErrEmailNotVerified) {
				fail("email_not_verified", "Your email address is not verified")
				return
			}
			fail("authentication_failed", "Sign-in failed")
			return
		}

		user, err := h.userRepo.GetOrCreateUserFromOIDC(ctx, info.Subject, info.Email, info.Name)
		if err != nil {
			slog.Error("failed to resolve oidc user", "error", err, "subject", info.Subject)
			fail("server_error", "Could not complete sign-in")
			return
		}
		if _, err := h.startSession(c, user); err != nil {
			slog.Error("failed to start session", "error", err, "user_id", user.ID)
			fail("server_error", "Could not complete sign-in")
			return
		}
		c.Redirect(http.StatusFound, frontend+"/")
	}
}
