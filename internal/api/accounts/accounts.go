// Package accounts implements sign-up, password and OIDC sign-in, sessions and
// password reset for dashboard users.
//
// A session is a JWT carried in the HTTP-only serversoft_session cookie. The
// token is also returned in the login response body for clients that prefer
// an Authorization header.
package accounts

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/serversoft/serversoft/internal/api/httperr"
	"github.com/serversoft/serversoft/internal/auth"
	"github.com/serversoft/serversoft/internal/config"
	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/db/repositories"
	"github.com/serversoft/serversoft/internal/middleware"
	"github.com/serversoft/serversoft/internal/notify"
	"github.com/serversoft/serversoft/internal/safego"
)

const (
	defaultSessionTTL       = 24 * time.Hour
	defaultPasswordResetTTL = time.Hour
	defaultMinPassword      = 8
	resetMailTimeout        = 30 * time.Second
)

// Handlers serves the /api/v1/auth routes.
type Handlers struct {
	cfg      *config.Config
	userRepo *repositories.UserRepository
	mailer   notify.Mailer
	oidc     OIDCAuthenticator
}

// NewHandlers creates the account handlers. mailer may be nil, in which case
// reset links are logged instead of emailed.
func NewHandlers(cfg *config.Config, userRepo *repositories.UserRepository, mailer notify.Mailer) *Handlers {
	return &Handlers{cfg: cfg, userRepo: userRepo, mailer: mailer}
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

func (h *Handlers) sessionTTL() time.Duration {
	if h.cfg.Auth.SessionTTL > 0 {
		return h.cfg.Auth.SessionTTL
	}
	return defaultSessionTTL
}

func (h *Handlers) minPasswordLength() int {
	if h.cfg.Auth.MinPasswordLength > 0 {
		return h.cfg.Auth.MinPasswordLength
	}
	return defaultMinPassword
}

// startSession issues a JWT for user and sets the session cookie.
func (h *Handlers) startSession(c *gin.Context, user *models.User) (*sessionResponse, error) {
	ttl := h.sessionTTL()
	token, err := auth.GenerateJWT(user.ID, user.Email, ttl)
	if err != nil {
		return nil, err
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.Server.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return &sessionResponse{Token: token, ExpiresAt: time.Now().Add(ttl), User: user}, nil
}

func (h *Handlers) clearSession(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Server.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func normalizeEmail(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", false
	}
	return strings.ToLower(addr.Address), true
}

// SignupRequest is the body of POST /api/v1/auth/signup.
type SignupRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required"`
}

// @Summary      Create an account
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  SignupRequest  true  "Account details"
// @Success      201  {object}  sessionResponse
// @Failure      400  {object}  map[string]interface{}
// @Failure      403  {object}  map[string]interface{}  "Sign-up disabled"
// @Failure      409  {object}  map[string]interface{}  "Email already registered"
// @Router       /api/v1/auth/signup [post]
// SignupHandler creates a password account and starts a session. The first
// account created becomes an administrator.
func (h *Handlers) SignupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.cfg.Auth.AllowSignup {
			httperr.Abort(c, http.StatusForbidden, "Sign-up is disabled")
			return
		}

		var req SignupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}
		email, ok := normalizeEmail(req.Email)
		if !ok {
			httperr.BadRequest(c, "Invalid email address")
			return
		}
		if err := auth.ValidatePassword(req.Password, h.minPasswordLength()); err != nil {
			httperr.BadRequest(c, err.Error())
			return
		}

		ctx := c.Request.Context()
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			httperr.Internal(c, "Failed to create account", err)
			return
		}

		name := strings.TrimSpace(req.Name)
		if name == "" {
			name = email[:strings.Index(email, "@")]
		}
		user := &models.User{
			Email:        email,
			Name:         name,
			PasswordHash: &hash,
		}
		// the first account becomes admin
		if err := h.userRepo.CreateSignupUser(ctx, user); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				httperr.Abort(c, http.StatusConflict, "An account with this email already exists")
				return
			}
			httperr.Internal(c, "Failed to create account", err)
			return
		}

		resp, err := h.startSession(c, user)
		if err != nil {
			httperr.Internal(c, "Failed to start session", err)
			return
		}
		slog.Info("account created", "user_id", user.ID, "admin", user.IsAdmin)
		c.JSON(http.StatusCreated, resp)
	}
}

// LoginRequest is the body of POST /api/v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// @Summary      Sign in with email and password
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Credentials"
// @Success      200  {object}  sessionResponse
// @Failure      401  {object}  map[string]interface{}
// @Router       /api/v1/auth/login [post]
func (h *Handlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}

		user, err := h.userRepo.GetUserByEmail(c.Request.Context(), strings.TrimSpace(req.Email))
		if err != nil {
			httperr.Internal(c, "Failed to sign in", err)
			return
		}
		if user == nil || !user.HasPassword() || !auth.CheckPassword(*user.PasswordHash, req.Password) {
			httperr.Abort(c, http.StatusUnauthorized, "Invalid email or password")
			return
		}

		resp, err := h.startSession(c, user)
		if err != nil {
			httperr.Internal(c, "Failed to start session", err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// LogoutHandler clears the session cookie. Session JWTs are stateless, so a
// copied token stays valid until it expires.
func (h *Handlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.clearSession(c)
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}

// MeHandler returns the caller and how they authenticated.
func (h *Handlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			httperr.Abort(c, http.StatusUnauthorized, "User not authenticated")
			return
		}
		scopes, _ := c.Get("scopes")
		c.JSON(http.StatusOK, gin.H{
			"user":         user,
			"auth_method":  c.GetString("auth_method"),
			"permissions":  scopes,
			"has_password": user.HasPassword(),
		})
	}
}

// ChangePasswordRequest is the body of PUT /api/v1/auth/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ChangePasswordHandler sets a new password. Accounts that already have one
// must present it; OIDC-only accounts may set a first password.
func (h *Handlers) ChangePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			httperr.Abort(c, http.StatusUnauthorized, "User not authenticated")
			return
		}

		var req ChangePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}
		if user.HasPassword() && !auth.CheckPassword(*user.PasswordHash, req.CurrentPassword) {
			httperr.Abort(c, http.StatusUnauthorized, "Current password is incorrect")
			return
		}
		if err := auth.ValidatePassword(req.NewPassword, h.minPasswordLength()); err != nil {
			httperr.BadRequest(c, err.Error())
			return
		}

		hash, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			httperr.Internal(c, "Failed to update password", err)
			return
		}
		if err := h.userRepo.UpdatePassword(c.Request.Context(), user.ID, hash); err != nil {
			httperr.Repo(c, err, "User", "Failed to update password")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
	}
}

// ForgotPasswordRequest is the body of POST /api/v1/auth/password/forgot.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

const forgotPasswordMessage = "If an account exists for that address, a reset link has been sent"

// ForgotPasswordHandler emails a single-use reset link. The response is the
// same whether or not the account exists.
func (h *Handlers) ForgotPasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ForgotPasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}

		ctx := c.Request.Context()
		user, err := h.userRepo.GetUserByEmail(ctx, strings.TrimSpace(req.Email))
		if err != nil {
			httperr.Internal(c, "Failed to process request", err)
			return
		}
		if user == nil {
			c.JSON(http.StatusOK, gin.H{"message": forgotPasswordMessage})
			return
		}

		token, tokenHash, err := auth.GenerateResetToken()
		if err != nil {
			httperr.Internal(c, "Failed to process request", err)
			return
		}
		ttl := h.cfg.Auth.PasswordResetTTL
		if ttl <= 0 {
			ttl = defaultPasswordResetTTL
		}
		record := &models.PasswordResetToken{
			UserID:    user.ID,
			TokenHash: tokenHash,
			ExpiresAt: time.Now().Add(ttl),
		}
		if err := h.userRepo.CreatePasswordResetToken(ctx, record); err != nil {
			httperr.Internal(c, "Failed to process request", err)
			return
		}

		resetURL := h.cfg.Server.GetPublicURL() + "/reset-password?token=" + token
		h.sendResetMail(user, resetURL, ttl)
		c.JSON(http.StatusOK, gin.H{"message": forgotPasswordMessage})
	}
}

// sendResetMail delivers the reset link off the request path so response
// timing does not depend on the mail server.
func (h *Handlers) sendResetMail(user *models.User, resetURL string, ttl time.Duration) {
	if h.mailer == nil {
		slog.Warn("password reset requested but outbound email is not configured", "user_id", user.ID)
		return
	}
	subject, body := notify.PasswordResetMessage(user.Name, resetURL, ttl)
	to := user.Email
	safego.GoTimeout("accounts.reset_mail", resetMailTimeout, func(ctx context.Context) {
		if err := h.mailer.Send(ctx, to, subject, body); err != nil {
			slog.Error("failed to send password reset email", "user_id", user.ID, "error", err)
		}
	})
}

// ResetPasswordRequest is the body of POST /api/v1/auth/password/reset.
type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ResetPasswordHandler redeems a reset token.
func (h *Handlers) ResetPasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ResetPasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}
		if err := auth.ValidatePassword(req.Password, h.minPasswordLength()); err != nil {
			httperr.BadRequest(c, err.Error())
			return
		}

		ctx := c.Request.Context()
		record, err := h.userRepo.GetPasswordResetToken(ctx, auth.HashResetToken(req.Token))
		if err != nil {
			httperr.Internal(c, "Failed to reset password", err)
			return
		}
		if record == nil || !record.Usable(time.Now()) {
			httperr.BadRequest(c, "Invalid or expired reset token")
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			httperr.Internal(c, "Failed to reset password", err)
			return
		}
		if err := h.userRepo.ConsumePasswordResetToken(ctx, record.ID, record.UserID, hash); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				httperr.BadRequest(c, "Invalid or expired reset token")
				return
			}
			httperr.Internal(c, "Failed to reset password", err)
			return
		}
		slog.Info("password reset", "user_id", record.UserID)
		c.JSON(http.StatusOK, gin.H{"message": "Password has been reset"})
	}
}
