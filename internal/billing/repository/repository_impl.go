package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/listingcraft/listingcraft/internal/billing/domain"
	"gorm.io/gorm"
)

const eventColumns = `id, event_id, event_type, account_id, external_subscription_id,
	 payload, outcome, last_error, processed_at, created_at`

type repo struct{}

func Provide() billingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *billingdomain.BillingEvent) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO billing_events (
			id, event_id, event_type, account_id, external_subscription_id,
			payload, outcome, last_error, processed_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING`,
		event.ID,
		event.EventID,
		event.EventType,
		event.AccountID,
		event.ExternalSubscriptionID,
		event.Payload,
		event.Outcome,
		event.LastError,
		event.ProcessedAt,
		event.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByEventID(ctx context.Context, db *gorm.DB, eventID string, forUpdate bool) (*billingdomain.BillingEvent, error) {
	lock := ""
	if forUpdate {
		lock = lockClause(db)
	}
	var event billingdomain.BillingEvent
	err := db.WithContext(ctx).Raw(
		`SELECT `+eventColumns+`
		 FROM billing_events
		 WHERE event_id = ?`+lock,
		eventID,
	).Scan(&event).Error
	if err != nil {
		return nil, err
	}
	if event.ID == 0 {
		return nil, nil
	}
	return &event, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome billingdomain.Outcome, lastError *string, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billing_events
		 SET outcome = ?, last_error = ?, processed_at = ?
		 WHERE id = ?`,
		outcome,
		lastError,
		processedAt,
		id,
	).Error
}

func (r *repo) DeleteProcessedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM billing_events
		 WHERE processed_at IS NOT NULL AND processed_at < ?`,
		cutoff,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// sqlite does not support FOR UPDATE; single-writer semantics make the lock
// unnecessary there.
func lockClause(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}
