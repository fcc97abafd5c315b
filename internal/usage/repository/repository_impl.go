package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/listingcraft/listingcraft/internal/usage/domain"
	"gorm.io/gorm"
)

const usageColumns = `id, account_id, period_start, period_end, count, created_at, updated_at`

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

// EnsureRecord inserts the zero-count row for the period, silently keeping
// the existing row on replay.
func (r *repo) EnsureRecord(ctx context.Context, db *gorm.DB, record *usagedomain.UsageRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO usage_records (
			id, account_id, period_start, period_end, count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, period_start) DO NOTHING`,
		record.ID,
		record.AccountID,
		record.PeriodStart,
		record.PeriodEnd,
		record.Count,
		record.CreatedAt,
		record.UpdatedAt,
	).Error
}

func (r *repo) FindRecord(ctx context.Context, db *gorm.DB, accountID snowflake.ID, periodStart time.Time) (*usagedomain.UsageRecord, error) {
	var record usagedomain.UsageRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+usageColumns+`
		 FROM usage_records
		 WHERE account_id = ? AND period_start = ?`,
		accountID,
		periodStart,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

// ConditionalIncrement is the single read-modify-write for quota: the count
// moves only when it is still below limit (negative limit = no cap). The
// storage engine serializes the UPDATE, so two concurrent calls can never
// both observe the same pre-increment count.
func (r *repo) ConditionalIncrement(ctx context.Context, db *gorm.DB, accountID snowflake.ID, periodStart time.Time, limit int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE usage_records
		 SET count = count + 1, updated_at = ?
		 WHERE account_id = ? AND period_start = ? AND (? < 0 OR count < ?)`,
		now,
		accountID,
		periodStart,
		limit,
		limit,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]usagedomain.UsageRecord, error) {
	if limit <= 0 {
		limit = 12
	}
	var records []usagedomain.UsageRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+usageColumns+`
		 FROM usage_records
		 WHERE account_id = ?
		 ORDER BY period_start DESC
		 LIMIT ?`,
		accountID,
		limit,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
