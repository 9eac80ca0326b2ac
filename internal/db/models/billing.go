package models

import "time"

// Subscription statuses.
const (
	SubscriptionActive   = "active"
	SubscriptionCanceled = "canceled"
)

// DefaultPlanCode is the plan a user is on until they pick one.
const DefaultPlanCode = "free"

// BillingPlan is a catalog plan. MaxServers nil means unlimited.
type BillingPlan struct {
	Code       string     `db:"code" json:"code"`
	Name       string     `db:"name" json:"name"`
	PriceCents int        `db:"price_cents" json:"price_cents"`
	Currency   string     `db:"currency" json:"currency"`
	MaxServers *int       `db:"max_servers" json:"max_servers"`
	Features   StringList `db:"features" json:"features"`
	SortOrder  int        `db:"sort_order" json:"-"`
}

// AllowsServers reports whether count servers fit within the plan.
func (p *BillingPlan) AllowsServers(count int) bool {
	return p.MaxServers == nil || count <= *p.MaxServers
}

// Subscription records which plan a user is on.
type Subscription struct {
	UserID             string     `db:"user_id" json:"user_id"`
	PlanCode           string     `db:"plan_code" json:"plan_code"`
	Status             string     `db:"status" json:"status"`
	CurrentPeriodStart time.Time  `db:"current_period_start" json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `db:"current_period_end" json:"current_period_end,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}
