// Package api wires together all HTTP routes for the ServerSoft backend.
//
// Route grouping:
//   - /health, /ready, /version, the auth entry points, the billing plan list
//     and the webhook callback relay are public. The callback authenticates
//     with the per-webhook secret instead of a session.
//   - Everything else under /api/v1/ requires a session or an API key, and
//     each route additionally requires the permission its resource maps to.
//     API keys carry explicit scopes; sessions hold every permission.
package api

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/serversoft/serversoft/internal/api/accounts"
	"github.com/serversoft/serversoft/internal/api/admin"
	"github.com/serversoft/serversoft/internal/api/billing"
	"github.com/serversoft/serversoft/internal/api/credentials"
	"github.com/serversoft/serversoft/internal/api/installations"
	"github.com/serversoft/serversoft/internal/api/live"
	"github.com/serversoft/serversoft/internal/api/servers"
	"github.com/serversoft/serversoft/internal/api/software"
	"github.com/serversoft/serversoft/internal/api/status"
	apiwebhooks "github.com/serversoft/serversoft/internal/api/webhooks"
	"github.com/serversoft/serversoft/internal/audit"
	"github.com/serversoft/serversoft/internal/auth"
	"github.com/serversoft/serversoft/internal/auth/oidc"
	"github.com/serversoft/serversoft/internal/catalog"
	"github.com/serversoft/serversoft/internal/cloudcreds"
	"github.com/serversoft/serversoft/internal/config"
	"github.com/serversoft/serversoft/internal/crypto"
	"github.com/serversoft/serversoft/internal/db"
	"github.com/serversoft/serversoft/internal/db/repositories"
	"github.com/serversoft/serversoft/internal/events"
	"github.com/serversoft/serversoft/internal/jobs"
	"github.com/serversoft/serversoft/internal/middleware"
	"github.com/serversoft/serversoft/internal/notify"
	"github.com/serversoft/serversoft/internal/sshprobe"
	"github.com/serversoft/serversoft/internal/storage"
	"github.com/serversoft/serversoft/internal/webhooks"
)

// Version is reported by /version. Overridden at build time with -ldflags.
var Version = "0.1.0"

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	stopHub        context.CancelFunc
	serverMonitor  *jobs.ServerMonitor
	expiryNotifier *jobs.APIKeyExpiryNotifier
	rateLimiters   []*middleware.RateLimiter
	redisLimiters  []*middleware.RedisRateLimiter
	auditShipper   *audit.MultiShipper
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.serverMonitor != nil {
		bg.serverMonitor.Stop()
	}
	if bg.expiryNotifier != nil {
		bg.expiryNotifier.Stop()
	}
	if bg.stopHub != nil {
		bg.stopHub()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.auditShipper != nil {
		if err := bg.auditShipper.Close(); err != nil {
			slog.Warn("failed to close audit shipper", "error", err)
		}
	}
	for _, rl := range bg.redisLimiters {
		if err := rl.Close(); err != nil {
			slog.Warn("failed to close redis rate limiter", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, sqlDB *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	cipher, err := crypto.NewCipher(cfg.Crypto.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to initialize credential cipher: %v", err)
	}

	// Artifact storage is optional; uploads answer 503 without it.
	var storageBackend storage.Storage
	if backend, err := storage.NewStorage(cfg); err != nil {
		slog.Warn("artifact storage unavailable", "backend", cfg.Storage.DefaultBackend, "error", err)
	} else {
		storageBackend = backend
		slog.Info("initialized storage backend", "backend", cfg.Storage.DefaultBackend)
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(sqlDB)
	apiKeyRepo := repositories.NewAPIKeyRepository(sqlDB)
	auditRepo := repositories.NewAuditRepository(sqlDB)

	sqlxDB := db.Wrap(sqlDB)
	serverRepo := repositories.NewServerRepository(sqlxDB)
	groupRepo := repositories.NewServerGroupRepository(sqlxDB)
	softwareRepo := repositories.NewSoftwareRepository(sqlxDB)
	installRepo := repositories.NewInstallationRepository(sqlxDB)
	credRepo := repositories.NewCredentialRepository(sqlxDB)
	webhookRepo := repositories.NewWebhookRepository(sqlxDB)
	settingsRepo := repositories.NewSettingsRepository(sqlxDB)
	billingRepo := repositories.NewBillingRepository(sqlxDB)

	cat := catalog.New(softwareRepo, cfg.Catalog.CacheTTL)

	var prober *sshprobe.Prober
	var refresher servers.Refresher
	if p, err := sshprobe.New(cfg.SSH); err != nil {
		slog.Warn("ssh probing disabled", "error", err)
	} else {
		prober = p
		refresher = p
	}

	var mailer notify.Mailer
	if m, err := notify.NewMailer(cfg.Notifications); err == nil {
		mailer = m
	} else if !errors.Is(err, notify.ErrDisabled) {
		slog.Warn("email notifications disabled", "error", err)
	}

	// Live events
	hub := events.NewHub()
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)
	bg.stopHub = stopHub

	dispatcher := webhooks.NewDispatcher(webhookRepo, settingsRepo, cipher, cfg.Webhooks.RelayTimeout)
	relay := webhooks.NewRelay(cfg.Webhooks)
	emitter := events.NewEmitter(hub, dispatcher)

	// Background jobs
	if prober != nil {
		bg.serverMonitor = jobs.NewServerMonitor(serverRepo, prober, cipher, hub, dispatcher, cfg.Jobs.ServerMonitor)
		go bg.serverMonitor.Start(context.Background())
	}
	bg.expiryNotifier = jobs.NewAPIKeyExpiryNotifier(apiKeyRepo, userRepo, mailer, dispatcher, cfg.Jobs.APIKeyExpiry)
	go bg.expiryNotifier.Start(context.Background())

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))

	// Rate limiters: shared through Redis when configured, per process otherwise.
	passthrough := func(c *gin.Context) { c.Next() }
	authLimit, generalLimit := gin.HandlerFunc(passthrough), gin.HandlerFunc(passthrough)
	if rl := cfg.Security.RateLimiting; rl.Enabled {
		generalCfg := middleware.DefaultRateLimitConfig()
		if rl.RequestsPerMinute > 0 {
			generalCfg.RequestsPerMinute = rl.RequestsPerMinute
		}
		if rl.Burst > 0 {
			generalCfg.BurstSize = rl.Burst
		}
		authCfg := middleware.AuthRateLimitConfig()

		authLimiter, generalLimiter := bg.newLimiter(rl, authCfg), bg.newLimiter(rl, generalCfg)
		authLimit = middleware.RateLimitMiddleware(authLimiter, "auth")
		generalLimit = middleware.RateLimitMiddleware(generalLimiter, "api")
	}

	// Handlers
	accountHandlers := accounts.NewHandlers(cfg, userRepo, mailer)
	if cfg.Auth.OIDC.Enabled {
		provider, err := oidc.NewOIDCProvider(&cfg.Auth.OIDC)
		if err != nil {
			slog.Error("failed to initialize OIDC provider", "error", err, "issuer", cfg.Auth.OIDC.IssuerURL)
		} else {
			accountHandlers.SetOIDCProvider(provider)
			slog.Info("OIDC sign-in enabled", "issuer", cfg.Auth.OIDC.IssuerURL)
		}
	}
	serverHandlers := servers.NewHandlers(serverRepo, billingRepo, cipher, refresher, emitter)
	groupHandlers := servers.NewGroupHandlers(groupRepo, serverRepo)
	softwareHandlers := software.NewHandlers(softwareRepo, cat, storageBackend, cfg.Storage.MaxUploadBytes)
	installHandlers := installations.NewHandlers(installRepo, serverRepo, softwareRepo, emitter)
	credentialHandlers := credentials.NewHandlers(credRepo, cipher, cloudcreds.NewVerifier())
	webhookHandlers := apiwebhooks.NewHandlers(webhookRepo, cipher, dispatcher, relay, emitter, cfg.Server.GetPublicURL())
	billingHandlers := billing.NewHandlers(billingRepo, serverRepo)
	statusHandlers := status.NewHandlers(serverRepo, installHandlers, emitter)
	liveHandlers := live.NewHandlers(hub, cfg.Security.CORS.AllowedOrigins)
	apiKeyHandlers := admin.NewAPIKeyHandlers(cfg, apiKeyRepo)
	settingsHandlers := admin.NewSettingsHandlers(settingsRepo)
	auditHandlers := admin.NewAuditHandlers(auditRepo)
	userHandlers := admin.NewUserHandlers(userRepo)
	statsHandler := admin.NewStatsHandler(sqlxDB)

	// System endpoints
	router.GET("/health", healthCheckHandler(sqlDB))
	router.GET("/ready", readinessHandler(sqlDB, storageBackend))
	router.GET("/version", versionHandler())

	// Workflow webhook callback relay. Authenticated by the webhook secret.
	router.POST("/webhooks/callback/:key", webhookHandlers.CallbackHandler())

	apiV1 := router.Group("/api/v1")

	// Public auth endpoints
	authGroup := apiV1.Group("/auth")
	authGroup.Use(authLimit)
	{
		authGroup.POST("/signup", accountHandlers.SignupHandler())
		authGroup.POST("/login", accountHandlers.LoginHandler())
		authGroup.POST("/logout", accountHandlers.LogoutHandler())
		authGroup.POST("/password/forgot", accountHandlers.ForgotPasswordHandler())
		authGroup.POST("/password/reset", accountHandlers.ResetPasswordHandler())
		authGroup.GET("/oidc/login", accountHandlers.OIDCLoginHandler())
		authGroup.GET("/oidc/callback", accountHandlers.OIDCCallbackHandler())
	}
	apiV1.GET("/billing/plans", billingHandlers.ListPlansHandler())

	// Authenticated endpoints
	authenticated := apiV1.Group("")
	authenticated.Use(middleware.AuthMiddleware(cfg, userRepo, apiKeyRepo))
	authenticated.Use(generalLimit)
	if cfg.Audit.Enabled {
		var shipper audit.Shipper
		if ms, err := audit.NewFromConfig(cfg.Audit); err != nil {
			slog.Warn("audit shipping disabled", "error", err)
		} else if ms != nil {
			shipper = ms
			bg.auditShipper = ms
		}
		authenticated.Use(middleware.AuditMiddleware(auditRepo, cfg.Audit, shipper))
	}
	{
		authenticated.GET("/auth/me", accountHandlers.MeHandler())
		authenticated.PUT("/auth/password", middleware.RequireSession(), accountHandlers.ChangePasswordHandler())

		// Servers
		serversGroup := authenticated.Group("/servers")
		{
			serversGroup.GET("", middleware.RequirePermission(auth.PermServersRead), serverHandlers.ListServersHandler())
			serversGroup.POST("", middleware.RequirePermission(auth.PermServersWrite), serverHandlers.CreateServerHandler())
			serversGroup.GET("/:id", middleware.RequirePermission(auth.PermServersRead), serverHandlers.GetServerHandler())
			serversGroup.PUT("/:id", middleware.RequirePermission(auth.PermServersWrite), serverHandlers.UpdateServerHandler())
			serversGroup.DELETE("/:id", middleware.RequirePermission(auth.PermServersWrite), serverHandlers.DeleteServerHandler())
			serversGroup.POST("/:id/refresh", middleware.RequirePermission(auth.PermServersWrite), serverHandlers.RefreshServerHandler())
		}

		// Server groups
		groupsGroup := authenticated.Group("/groups")
		{
			groupsGroup.GET("", middleware.RequirePermission(auth.PermGroupsRead), groupHandlers.ListGroupsHandler())
			groupsGroup.POST("", middleware.RequirePermission(auth.PermGroupsWrite), groupHandlers.CreateGroupHandler())
			groupsGroup.GET("/:id", middleware.RequirePermission(auth.PermGroupsRead), groupHandlers.GetGroupHandler())
			groupsGroup.PUT("/:id", middleware.RequirePermission(auth.PermGroupsWrite), groupHandlers.UpdateGroupHandler())
			groupsGroup.DELETE("/:id", middleware.RequirePermission(auth.PermGroupsWrite), groupHandlers.DeleteGroupHandler())
			groupsGroup.POST("/:id/members", middleware.RequirePermission(auth.PermGroupsWrite), groupHandlers.AddMemberHandler())
			groupsGroup.DELETE("/:id/members/:server_id", middleware.RequirePermission(auth.PermGroupsWrite), groupHandlers.RemoveMemberHandler())
			groupsGroup.PUT("/:id/order", middleware.RequirePermission(auth.PermGroupsWrite), groupHandlers.ReorderMembersHandler())
		}

		// Software catalog: readable by everyone, curated by admins
		softwareGroup := authenticated.Group("/software")
		{
			softwareGroup.GET("", softwareHandlers.ListSoftwareHandler())
			softwareGroup.GET("/categories", softwareHandlers.ListCategoriesHandler())
			softwareGroup.GET("/:id", softwareHandlers.GetSoftwareHandler())
			softwareGroup.GET("/:id/artifact", softwareHandlers.DownloadArtifactHandler())
			softwareGroup.POST("", middleware.RequireAdmin(), softwareHandlers.CreateSoftwareHandler())
			softwareGroup.PUT("/:id", middleware.RequireAdmin(), softwareHandlers.UpdateSoftwareHandler())
			softwareGroup.DELETE("/:id", middleware.RequireAdmin(), softwareHandlers.DeleteSoftwareHandler())
			softwareGroup.POST("/:id/artifact", middleware.RequireAdmin(), softwareHandlers.UploadArtifactHandler())
		}

		// Installations
		installGroup := authenticated.Group("/installations")
		{
			installGroup.GET("", middleware.RequirePermission(auth.PermInstallationsRead), installHandlers.ListInstallationsHandler())
			installGroup.POST("", middleware.RequirePermission(auth.PermInstallationsWrite), installHandlers.CreateInstallationHandler())
			installGroup.GET("/:id", middleware.RequirePermission(auth.PermInstallationsRead), installHandlers.GetInstallationHandler())
			installGroup.PUT("/:id", middleware.RequirePermission(auth.PermInstallationsWrite), installHandlers.UpdateInstallationHandler())
			installGroup.DELETE("/:id", middleware.RequirePermission(auth.PermInstallationsWrite), installHandlers.DeleteInstallationHandler())
			installGroup.PATCH("/:id/status", middleware.RequirePermission(auth.PermInstallationsWrite), installHandlers.UpdateStatusHandler())
		}

		// Cloud credentials
		credGroup := authenticated.Group("/credentials")
		{
			credGroup.GET("/providers", credentialHandlers.ListProvidersHandler())
			credGroup.GET("", middleware.RequirePermission(auth.PermCredentialsRead), credentialHandlers.ListCredentialsHandler())
			credGroup.POST("", middleware.RequirePermission(auth.PermCredentialsWrite), credentialHandlers.CreateCredentialHandler())
			credGroup.GET("/:id", middleware.RequirePermission(auth.PermCredentialsRead), credentialHandlers.GetCredentialHandler())
			credGroup.PUT("/:id", middleware.RequirePermission(auth.PermCredentialsWrite), credentialHandlers.UpdateCredentialHandler())
			credGroup.DELETE("/:id", middleware.RequirePermission(auth.PermCredentialsWrite), credentialHandlers.DeleteCredentialHandler())
			credGroup.POST("/:id/verify", middleware.RequirePermission(auth.PermCredentialsWrite), credentialHandlers.VerifyCredentialHandler())
		}

		// API keys are managed from a signed-in session only
		apiKeysGroup := authenticated.Group("/apikeys")
		apiKeysGroup.Use(middleware.RequireSession())
		{
			apiKeysGroup.GET("", apiKeyHandlers.ListAPIKeysHandler())
			apiKeysGroup.POST("", apiKeyHandlers.CreateAPIKeyHandler())
			apiKeysGroup.GET("/:id", apiKeyHandlers.GetAPIKeyHandler())
			apiKeysGroup.PUT("/:id", apiKeyHandlers.UpdateAPIKeyHandler())
			apiKeysGroup.DELETE("/:id", apiKeyHandlers.DeleteAPIKeyHandler())
			apiKeysGroup.POST("/:id/rotate", apiKeyHandlers.RotateAPIKeyHandler())
		}

		// Workflow webhooks
		webhooksGroup := authenticated.Group("/webhooks")
		{
			webhooksGroup.GET("", middleware.RequirePermission(auth.PermWebhooksRead), webhookHandlers.ListWebhooksHandler())
			webhooksGroup.POST("", middleware.RequirePermission(auth.PermWebhooksWrite), webhookHandlers.CreateWebhookHandler())
			webhooksGroup.GET("/:id", middleware.RequirePermission(auth.PermWebhooksRead), webhookHandlers.GetWebhookHandler())
			webhooksGroup.PUT("/:id", middleware.RequirePermission(auth.PermWebhooksWrite), webhookHandlers.UpdateWebhookHandler())
			webhooksGroup.DELETE("/:id", middleware.RequirePermission(auth.PermWebhooksWrite), webhookHandlers.DeleteWebhookHandler())
			webhooksGroup.POST("/:id/trigger", middleware.RequirePermission(auth.PermWebhooksWrite), webhookHandlers.TriggerWebhookHandler())
		}

		// Machine status reports
		authenticated.POST("/status", middleware.RequirePermission(auth.PermStatusWrite), statusHandlers.ReportStatusHandler())

		// Settings
		authenticated.GET("/settings", middleware.RequirePermission(auth.PermSettingsRead), settingsHandlers.GetSettingsHandler())
		authenticated.PUT("/settings", middleware.RequirePermission(auth.PermSettingsWrite), settingsHandlers.UpdateSettingsHandler())

		// Billing
		authenticated.GET("/billing/subscription", middleware.RequirePermission(auth.PermBillingRead), billingHandlers.GetSubscriptionHandler())
		authenticated.PUT("/billing/subscription", middleware.RequireSession(), billingHandlers.UpdateSubscriptionHandler())

		// Audit and dashboard
		authenticated.GET("/audit-logs", middleware.RequireSession(), auditHandlers.ListAuditLogsHandler())
		authenticated.GET("/stats/dashboard", middleware.RequirePermission(auth.PermServersRead), statsHandler.GetDashboardStats)

		// Live events over websocket
		authenticated.GET("/events/ws", middleware.RequirePermission(auth.PermServersRead), liveHandlers.StreamHandler())

		// Instance administration
		adminGroup := authenticated.Group("/admin")
		adminGroup.Use(middleware.RequireAdmin())
		{
			adminGroup.GET("/users", userHandlers.ListUsersHandler())
			adminGroup.PUT("/users/:id", userHandlers.UpdateUserHandler())
			adminGroup.DELETE("/users/:id", userHandlers.DeleteUserHandler())
		}
	}

	return router, bg
}

// newLimiter builds a Redis-backed limiter when an address is configured,
// falling back to the in-memory limiter if Redis cannot be reached.
func (bg *BackgroundServices) newLimiter(rl config.RateLimitingConfig, cfg middleware.RateLimitConfig) middleware.Limiter {
	if rl.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		limiter, err := middleware.NewRedisRateLimiter(ctx, rl.RedisAddr, rl.RedisPassword, rl.RedisDB, cfg)
		if err == nil {
			bg.redisLimiters = append(bg.redisLimiters, limiter)
			return limiter
		}
		slog.Warn("redis rate limiter unavailable, using in-memory limits", "addr", rl.RedisAddr, "error", err)
	}
	limiter := middleware.NewRateLimiter(cfg)
	bg.rateLimiters = append(bg.rateLimiters, limiter)
	return limiter
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the database and, when configured, artifact storage.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the storage backend so
// that a readiness gate fails when artifact uploads and downloads would error.
func readinessHandler(db *sql.DB, storageBackend storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Probe with a known-absent sentinel path. Exists exercises
		// authentication and connectivity without creating any state.
		if storageBackend == nil {
			checks["storage"] = "disabled"
		} else if _, err := storageBackend.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		} else {
			checks["storage"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the server version, API version and supported webhook events.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version, webhook_events"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":        Version,
			"api_version":    "v1",
			"webhook_events": webhooks.Events,
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := redactQuery(c)

		c.Next()

		latency := time.Since(start)

		// Log the request
		if cfg.Logging.Format == "json" {
			logJSON(c, latency, path, query)
		} else {
			logText(c, latency, path, query)
		}
	}
}

// redactQuery drops the query string of requests that carry a secret in it:
// webhook callbacks and websocket token auth.
func redactQuery(c *gin.Context) string {
	q := c.Request.URL.Query()
	if q.Has("secret") || q.Has("token") {
		return "[redacted]"
	}
	return c.Request.URL.RawQuery
}

// logJSON logs a request as a JSON-structured slog record.
func logJSON(c *gin.Context, latency time.Duration, path, query string) {
	level := slog.LevelInfo
	if c.Writer.Status() >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.LogAttrs(
		c.Request.Context(),
		level,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", middleware.RequestID(c)),
		slog.String("user_id", middleware.CurrentUserID(c)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// logText logs a request as a human-readable slog text record.
func logText(c *gin.Context, latency time.Duration, path, query string) {
	// slog emits text when the global handler is a TextHandler
	// (configured in telemetry.SetupLogger).
	logJSON(c, latency, path, query)
}
