package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	EnsureRecord(ctx context.Context, db *gorm.DB, record *UsageRecord) error
	FindRecord(ctx context.Context, db *gorm.DB, accountID snowflake.ID, periodStart time.Time) (*UsageRecord, error)
	ConditionalIncrement(ctx context.Context, db *gorm.DB, accountID snowflake.ID, periodStart time.Time, limit int64, now time.Time) (bool, error)
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]UsageRecord, error)
}
