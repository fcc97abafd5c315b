package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// CurrentUsage materializes the zero row for the period when none
	// exists yet and returns it.
	CurrentUsage(ctx context.Context, accountID snowflake.ID, periodStart, periodEnd time.Time) (UsageRecord, error)
	// Increment adds one unit of consumption if the period's count is still
	// below limit. A negative limit means unlimited: the increment always
	// lands so usage is still recorded for analytics. The check and the
	// increment are a single conditional UPDATE, so concurrent callers
	// cannot both consume the last unit.
	Increment(ctx context.Context, accountID snowflake.ID, periodStart, periodEnd time.Time, limit int64) (int64, error)
	// HistoryByAccount returns the most recent periods, newest first.
	HistoryByAccount(ctx context.Context, accountID snowflake.ID, limit int) ([]UsageRecord, error)
}

var (
	ErrInvalidAccount = errors.New("invalid_account")
	ErrInvalidPeriod  = errors.New("invalid_period")
	ErrQuotaExhausted = errors.New("quota_exhausted")
	ErrRecordNotFound = errors.New("usage_record_not_found")
)
