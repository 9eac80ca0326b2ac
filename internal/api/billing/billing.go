// Package billing serves the plan catalog and the caller's subscription.
// No payment is taken; changing plan only moves the server limit.
package billing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/serversoft/serversoft/internal/api/httperr"
	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/db/repositories"
)

// Handlers serves /api/v1/billing.
type Handlers struct {
	billingRepo *repositories.BillingRepository
	serverRepo  *repositories.ServerRepository
}

// NewHandlers creates the billing handlers.
func NewHandlers(billingRepo *repositories.BillingRepository, serverRepo *repositories.ServerRepository) *Handlers {
	return &Handlers{billingRepo: billingRepo, serverRepo: serverRepo}
}

// SubscriptionResponse pairs the subscription with its plan and usage.
type SubscriptionResponse struct {
	Subscription *models.Subscription `json:"subscription"`
	Plan         *models.BillingPlan  `json:"plan"`
	ServersUsed  int                  `json:"servers_used"`
}

// @Summary      List plans
// @Description  Returns the plan catalog in display order. Public.
// @Tags         Billing
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "plans: []models.BillingPlan"
// @Router       /api/v1/billing/plans [get]
func (h *Handlers) ListPlansHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		plans, err := h.billingRepo.ListPlans(c.Request.Context())
		if err != nil {
			httperr.Internal(c, "Failed to list plans", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"plans": plans})
	}
}

// GetSubscriptionHandler returns the caller's subscription. Users who never
// chose a plan are reported on the free plan.
func (h *Handlers) GetSubscriptionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		sub, err := h.billingRepo.GetSubscription(ctx, userID)
		if err != nil {
			httperr.Internal(c, "Failed to load subscription", err)
			return
		}
		if sub == nil {
			sub = &models.Subscription{UserID: userID, PlanCode: models.DefaultPlanCode, Status: models.SubscriptionActive}
		}
		plan, err := h.billingRepo.GetPlan(ctx, sub.PlanCode)
		if err != nil {
			httperr.Internal(c, "Failed to load plan", err)
			return
		}
		used, err := h.serverRepo.CountServers(ctx, userID)
		if err != nil {
			httperr.Internal(c, "Failed to count servers", err)
			return
		}
		c.JSON(http.StatusOK, SubscriptionResponse{Subscription: sub, Plan: plan, ServersUsed: used})
	}
}

// ChangePlanRequest is the body of PUT /api/v1/billing/subscription.
type ChangePlanRequest struct {
	PlanCode string `json:"plan_code" binding:"required"`
}

// @Summary      Change plan
// @Description  Moves the caller onto another plan. Rejected with 409 when the caller already owns more servers than the plan allows.
// @Tags         Billing
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  ChangePlanRequest  true  "Plan"
// @Success      200  {object}  SubscriptionResponse
// @Failure      400  {object}  map[string]interface{}  "Unknown plan"
// @Failure      409  {object}  map[string]interface{}  "Server count exceeds plan limit"
// @Router       /api/v1/billing/subscription [put]
func (h *Handlers) UpdateSubscriptionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		var req ChangePlanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}
		ctx := c.Request.Context()
		plan, err := h.billingRepo.GetPlan(ctx, strings.ToLower(strings.TrimSpace(req.PlanCode)))
		if err != nil {
			httperr.Internal(c, "Failed to load plan", err)
			return
		}
		if plan == nil {
			httperr.BadRequest(c, "Unknown plan: "+req.PlanCode)
			return
		}

		used, err := h.serverRepo.CountServers(ctx, userID)
		if err != nil {
			httperr.Internal(c, "Failed to count servers", err)
			return
		}
		if !plan.AllowsServers(used) {
			httperr.Abort(c, http.StatusConflict, "Remove servers before moving to the "+plan.Name+" plan")
			return
		}

		sub, err := h.billingRepo.UpsertSubscription(ctx, userID, plan.Code)
		if err != nil {
			httperr.Internal(c, "Failed to update subscription", err)
			return
		}
		c.JSON(http.StatusOK, SubscriptionResponse{Subscription: sub, Plan: plan, ServersUsed: used})
	}
}
