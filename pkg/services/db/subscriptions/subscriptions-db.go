package subscriptions

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Subscription mirrors the Stripe subscription record we care about.
// Rows are upserted by the billing webhook and read when deriving pro status.
type Subscription struct {
	ID                int64
	UserID            int64
	StripeSubID       string
	StripeCustomerID  string
	PriceID           string
	Status            string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
}

// Active reports whether this subscription grants pro status at time now.
func (s *Subscription) Active(now time.Time) bool {
	switch s.Status {
	case "active", "trialing":
		return now.Before(s.CurrentPeriodEnd)
	default:
		return false
	}
}

// Upsert inserts or updates the subscription keyed by the Stripe subscription ID.
func (s *Subscription) Upsert(ctx context.Context, d *sql.DB) error {
	res, err := d.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, stripe_sub_id, stripe_customer_id, price_id, status, current_period_end, cancel_at_period_end)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (stripe_sub_id) DO UPDATE SET
			status = excluded.status,
			price_id = excluded.price_id,
			current_period_end = excluded.current_period_end,
			cancel_at_period_end = excluded.cancel_at_period_end`,
		s.UserID, s.StripeSubID, s.StripeCustomerID, s.PriceID, s.Status,
		s.CurrentPeriodEnd, s.CancelAtPeriodEnd)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription %s: %w", s.StripeSubID, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		s.ID = id
	}
	return nil
}

// GetLatestByUserID loads the user's most recently updated subscription.
// Returns sql.ErrNoRows when the user never subscribed.
func GetLatestByUserID(ctx context.Context, d *sql.DB, userID int64) (Subscription, error) {
	var s Subscription
	err := d.QueryRowContext(ctx, `
		SELECT id, user_id, stripe_sub_id, stripe_customer_id, price_id, status, current_period_end, cancel_at_period_end
		FROM subscriptions WHERE user_id = ?
		ORDER BY current_period_end DESC LIMIT 1`, userID).
		Scan(&s.ID, &s.UserID, &s.StripeSubID, &s.StripeCustomerID, &s.PriceID,
			&s.Status, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd)
	if err != nil {
		return s, err
	}
	return s, nil
}

// CustomerIDForUser returns the Stripe customer ID recorded for the user, if any.
func CustomerIDForUser(ctx context.Context, d *sql.DB, userID int64) (string, error) {
	var id string
	err := d.QueryRowContext(ctx,
		"SELECT stripe_customer_id FROM subscriptions WHERE user_id = ? ORDER BY id DESC LIMIT 1",
		userID).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}
