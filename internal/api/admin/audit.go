package admin

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/serversoft/serversoft/internal/api/httperr"
	"github.com/serversoft/serversoft/internal/db/repositories"
)

// AuditHandlers serves the caller's own audit trail.
type AuditHandlers struct {
	auditRepo *repositories.AuditRepository
}

// NewAuditHandlers creates the audit handlers.
func NewAuditHandlers(auditRepo *repositories.AuditRepository) *AuditHandlers {
	return &AuditHandlers{auditRepo: auditRepo}
}

// @Summary      List audit logs
// @Description  Get a paginated list of the caller's audit entries, newest first.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        page           query  int     false  "Page number (default 1)"
// @Param        per_page       query  int     false  "Items per page, max 100 (default 20)"
// @Param        action         query  string  false  "Filter by action"
// @Param        resource_type  query  string  false  "Filter by resource type"
// @Success      200  {object}  map[string]interface{}  "logs: []models.AuditLog, pagination: {page, per_page, total}"
// @Router       /api/v1/audit-logs [get]
func (h *AuditHandlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}

		filters := repositories.AuditFilters{UserID: &userID}
		if v := strings.TrimSpace(c.Query("action")); v != "" {
			filters.Action = &v
		}
		if v := strings.TrimSpace(c.Query("resource_type")); v != "" {
			filters.ResourceType = &v
		}

		logs, total, err := h.auditRepo.ListAuditLogs(c.Request.Context(), filters, perPage, (page-1)*perPage)
		if err != nil {
			httperr.Internal(c, "Failed to list audit logs", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"logs": logs,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}
