package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/listingcraft/listingcraft/internal/subscription/domain"
	"gorm.io/gorm"
)

const subscriptionColumns = `id, account_id, plan_id, external_subscription_id, external_customer_id,
	 billing_email, status, current_period_start, current_period_end, trial_end,
	 cancel_at_period_end, canceled_at, trial_reminder_sent_at, created_at, updated_at`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, account_id, plan_id, external_subscription_id, external_customer_id,
			billing_email, status, current_period_start, current_period_end, trial_end,
			cancel_at_period_end, canceled_at, trial_reminder_sent_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.AccountID,
		subscription.PlanID,
		subscription.ExternalSubscriptionID,
		subscription.ExternalCustomerID,
		subscription.BillingEmail,
		subscription.Status,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.TrialEnd,
		subscription.CancelAtPeriodEnd,
		subscription.CanceledAt,
		subscription.TrialReminderSentAt,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) FindByAccountID(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE account_id = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		accountID,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindCurrentByAccountID(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findCurrent(ctx, db, accountID, "")
}

func (r *repo) FindCurrentByAccountIDForUpdate(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findCurrent(ctx, db, accountID, lockClause(db))
}

func (r *repo) findCurrent(ctx context.Context, db *gorm.DB, accountID snowflake.ID, lock string) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE account_id = ? AND status <> ?
		 ORDER BY created_at DESC
		 LIMIT 1`+lock,
		accountID,
		subscriptiondomain.SubscriptionStatusCanceled,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*subscriptiondomain.Subscription, error) {
	return r.findByExternal(ctx, db, externalID, "")
}

func (r *repo) FindByExternalIDForUpdate(ctx context.Context, db *gorm.DB, externalID string) (*subscriptiondomain.Subscription, error) {
	return r.findByExternal(ctx, db, externalID, lockClause(db))
}

func (r *repo) findByExternal(ctx context.Context, db *gorm.DB, externalID string, lock string) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE external_subscription_id = ?
		 ORDER BY created_at DESC
		 LIMIT 1`+lock,
		externalID,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET plan_id = ?, external_subscription_id = ?, external_customer_id = ?,
		     billing_email = ?, status = ?,
		     current_period_start = ?, current_period_end = ?, trial_end = ?,
		     cancel_at_period_end = ?, canceled_at = ?, trial_reminder_sent_at = ?, updated_at = ?
		 WHERE id = ?`,
		subscription.PlanID,
		subscription.ExternalSubscriptionID,
		subscription.ExternalCustomerID,
		subscription.BillingEmail,
		subscription.Status,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.TrialEnd,
		subscription.CancelAtPeriodEnd,
		subscription.CanceledAt,
		subscription.TrialReminderSentAt,
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}

func (r *repo) LockStaleIncomplete(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE status = ? AND created_at < ?
		 ORDER BY created_at ASC
		 LIMIT ?`+skipLockedClause(db),
		subscriptiondomain.SubscriptionStatusIncomplete,
		cutoff,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) FindTrialsEndingBefore(ctx context.Context, db *gorm.DB, deadline time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE status = ?
		   AND trial_end IS NOT NULL AND trial_end < ?
		   AND trial_reminder_sent_at IS NULL
		 ORDER BY trial_end ASC
		 LIMIT ?`,
		subscriptiondomain.SubscriptionStatusTrialing,
		deadline,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) MarkTrialReminderSent(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET trial_reminder_sent_at = ?, updated_at = ?
		 WHERE id = ? AND trial_reminder_sent_at IS NULL`,
		at,
		at,
		id,
	).Error
}

// SQLite has no row locks; transactions already serialize writers there.
func lockClause(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}

func skipLockedClause(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE SKIP LOCKED"
}
