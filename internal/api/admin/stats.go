// stats.go implements the dashboard summary: counts of the caller's servers,
// installations and integrations plus their most recent activity.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/serversoft/serversoft/internal/api/httperr"
)

// StatsHandler handles stats-related API requests
type StatsHandler struct {
	db *sqlx.DB
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(database *sqlx.DB) *StatsHandler {
	return &StatsHandler{
		db: database,
	}
}

// DashboardStats represents the response for dashboard statistics
type DashboardStats struct {
	Servers        ServerStats       `json:"servers"`
	Installations  InstallationStats `json:"installations"`
	Groups         int64             `json:"groups"`
	Credentials    int64             `json:"credentials"`
	Webhooks       int64             `json:"webhooks"`
	APIKeys        int64             `json:"api_keys"`
	RecentActivity []ActivityEntry   `json:"recent_activity"`
}

// ServerStats breaks servers down by status.
type ServerStats struct {
	Total       int64 `json:"total"`
	Online      int64 `json:"online"`
	Offline     int64 `json:"offline"`
	Maintenance int64 `json:"maintenance"`
	Unknown     int64 `json:"unknown"`
}

// InstallationStats breaks installations down by status.
type InstallationStats struct {
	Total      int64 `json:"total"`
	Running    int64 `json:"running"`
	Stopped    int64 `json:"stopped"`
	Pending    int64 `json:"pending"`
	Installing int64 `json:"installing"`
	Failed     int64 `json:"failed"`
}

// ActivityEntry is one recent audit entry.
type ActivityEntry struct {
	Action       string    `json:"action"`
	ResourceType *string   `json:"resource_type"`
	ResourceID   *string   `json:"resource_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// @Summary      Get dashboard statistics
// @Description  Returns counts of the caller's servers and installations by status, groups, credentials, webhooks and API keys, plus the eight most recent audit entries.
// @Tags         Stats
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  DashboardStats
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/stats/dashboard [get]
// GetDashboardStats returns dashboard statistics using a single database round-trip
// for the counts.
func (h *StatsHandler) GetDashboardStats(c *gin.Context) {
	userID, ok := httperr.UserID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	query := `
		SELECT
			(SELECT COUNT(*) FROM servers WHERE user_id = $1) AS server_count,
			(SELECT COUNT(*) FROM servers WHERE user_id = $1 AND status = 'online') AS servers_online,
			(SELECT COUNT(*) FROM servers WHERE user_id = $1 AND status = 'offline') AS servers_offline,
			(SELECT COUNT(*) FROM servers WHERE user_id = $1 AND status = 'maintenance') AS servers_maintenance,
			(SELECT COUNT(*) FROM installations WHERE user_id = $1) AS installation_count,
			(SELECT COUNT(*) FROM installations WHERE user_id = $1 AND status = 'running') AS installations_running,
			(SELECT COUNT(*) FROM installations WHERE user_id = $1 AND status = 'stopped') AS installations_stopped,
			(SELECT COUNT(*) FROM installations WHERE user_id = $1 AND status = 'pending') AS installations_pending,
			(SELECT COUNT(*) FROM installations WHERE user_id = $1 AND status = 'installing') AS installations_installing,
			(SELECT COUNT(*) FROM server_groups WHERE user_id = $1) AS group_count,
			(SELECT COUNT(*) FROM cloud_credentials WHERE user_id = $1) AS credential_count,
			(SELECT COUNT(*) FROM workflow_webhooks WHERE user_id = $1) AS webhook_count,
			(SELECT COUNT(*) FROM api_keys WHERE user_id = $1) AS api_key_count
	`

	var stats DashboardStats
	err := h.db.QueryRowContext(ctx, query, userID).Scan(
		&stats.Servers.Total,
		&stats.Servers.Online,
		&stats.Servers.Offline,
		&stats.Servers.Maintenance,
		&stats.Installations.Total,
		&stats.Installations.Running,
		&stats.Installations.Stopped,
		&stats.Installations.Pending,
		&stats.Installations.Installing,
		&stats.Groups,
		&stats.Credentials,
		&stats.Webhooks,
		&stats.APIKeys,
	)
	if err != nil {
		httperr.Internal(c, "Failed to load dashboard statistics", err)
		return
	}
	stats.Servers.Unknown = stats.Servers.Total - stats.Servers.Online - stats.Servers.Offline - stats.Servers.Maintenance
	stats.Installations.Failed = stats.Installations.Total - stats.Installations.Running - stats.Installations.Stopped -
		stats.Installations.Pending - stats.Installations.Installing

	// Recent activity is best effort; the counts are still useful without it.
	stats.RecentActivity = []ActivityEntry{}
	rows, err := h.db.QueryContext(ctx, `
		SELECT action, resource_type, resource_id, created_at
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 8
	`, userID)
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var entry ActivityEntry
			if scanErr := rows.Scan(&entry.Action, &entry.ResourceType, &entry.ResourceID, &entry.CreatedAt); scanErr == nil {
				stats.RecentActivity = append(stats.RecentActivity, entry)
			}
		}
	}

	c.JSON(http.StatusOK, stats)
}
