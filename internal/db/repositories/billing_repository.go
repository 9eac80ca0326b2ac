package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/serversoft/serversoft/internal/db/models"
)

// BillingRepository handles billing plans and subscriptions. Plans are
// seeded by migration; no payment state is kept.
type BillingRepository struct {
	db *sqlx.DB
}

// NewBillingRepository creates a new BillingRepository
func NewBillingRepository(db *sqlx.DB) *BillingRepository {
	return &BillingRepository{db: db}
}

const planColumns = `code, name, price_cents, currency, max_servers, features, sort_order`

// ListPlans returns the plan catalog in display order.
func (r *BillingRepository) ListPlans(ctx context.Context) ([]*models.BillingPlan, error) {
	plans := make([]*models.BillingPlan, 0)
	if err := r.db.SelectContext(ctx, &plans, `SELECT `+planColumns+` FROM billing_plans ORDER BY sort_order, code`); err != nil {
		return nil, err
	}
	return plans, nil
}

// GetPlan retrieves a plan by code
func (r *BillingRepository) GetPlan(ctx context.Context, code string) (*models.BillingPlan, error) {
	var p models.BillingPlan
	err := r.db.GetContext(ctx, &p, `SELECT `+planColumns+` FROM billing_plans WHERE code = $1`, code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetSubscription returns the user's subscription, or nil when the user is
// implicitly on the default plan.
func (r *BillingRepository) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var s models.Subscription
	query := `
		SELECT user_id, plan_code, status, current_period_start, current_period_end, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1
	`
	err := r.db.GetContext(ctx, &s, query, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSubscription moves the user onto planCode starting a new period now.
func (r *BillingRepository) UpsertSubscription(ctx context.Context, userID, planCode string) (*models.Subscription, error) {
	now := time.Now()
	s := &models.Subscription{
		UserID:             userID,
		PlanCode:           planCode,
		Status:             models.SubscriptionActive,
		CurrentPeriodStart: now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	query := `
		INSERT INTO subscriptions (user_id, plan_code, status, current_period_start, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			plan_code = EXCLUDED.plan_code,
			status = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = NULL,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		s.UserID, s.PlanCode, s.Status, s.CurrentPeriodStart, s.CreatedAt, s.UpdatedAt,
	).Scan(&s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}
