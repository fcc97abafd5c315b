package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/listingcraft/listingcraft/internal/clock"
	usagedomain "github.com/listingcraft/listingcraft/internal/usage/domain"
	usagerepo "github.com/listingcraft/listingcraft/internal/usage/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:usage_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := []string{
		`CREATE TABLE usage_records (
			id BIGINT PRIMARY KEY,
			account_id BIGINT NOT NULL,
			period_start TIMESTAMP NOT NULL,
			period_end TIMESTAMP NOT NULL,
			count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_usage_records_account_period ON usage_records (account_id, period_start)`,
	}
	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	return db
}

func newTestService(t *testing.T) usagedomain.Service {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(Params{
		DB:    setupTestDB(t),
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  usagerepo.Provide(),
	})
}

func period() (time.Time, time.Time) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func TestCurrentUsageMaterializesZeroRow(t *testing.T) {
	svc := newTestService(t)
	start, end := period()

	record, err := svc.CurrentUsage(context.Background(), 42, start, end)
	require.NoError(t, err)
	require.Equal(t, int64(0), record.Count)
	require.Equal(t, snowflake.ID(42), record.AccountID)

	// A second read finds the same row, not a fresh one.
	again, err := svc.CurrentUsage(context.Background(), 42, start, end)
	require.NoError(t, err)
	require.Equal(t, record.ID, again.ID)
}

func TestIncrementReturnsNewCount(t *testing.T) {
	svc := newTestService(t)
	start, end := period()

	count, err := svc.Increment(context.Background(), 42, start, end, 50)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	count, err = svc.Increment(context.Background(), 42, start, end, 50)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestIncrementStopsAtLimit(t *testing.T) {
	svc := newTestService(t)
	start, end := period()

	for i := 0; i < 2; i++ {
		_, err := svc.Increment(context.Background(), 42, start, end, 2)
		require.NoError(t, err)
	}

	_, err := svc.Increment(context.Background(), 42, start, end, 2)
	require.ErrorIs(t, err, usagedomain.ErrQuotaExhausted)

	record, err := svc.CurrentUsage(context.Background(), 42, start, end)
	require.NoError(t, err)
	require.Equal(t, int64(2), record.Count)
}

func TestConcurrentIncrementsNeverExceedLimit(t *testing.T) {
	svc := newTestService(t)
	start, end := period()

	const limit = 5
	const callers = 10

	var wg sync.WaitGroup
	var allowed, exhausted atomic.Int64
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Increment(context.Background(), 42, start, end, limit)
			switch {
			case err == nil:
				allowed.Add(1)
			case errors.Is(err, usagedomain.ErrQuotaExhausted):
				exhausted.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(limit), allowed.Load())
	require.Equal(t, int64(callers-limit), exhausted.Load())

	record, err := svc.CurrentUsage(context.Background(), 42, start, end)
	require.NoError(t, err)
	require.Equal(t, int64(limit), record.Count)
}

func TestNegativeLimitIsUnlimited(t *testing.T) {
	svc := newTestService(t)
	start, end := period()

	var count int64
	for i := 0; i < 5; i++ {
		var err error
		count, err = svc.Increment(context.Background(), 42, start, end, -1)
		require.NoError(t, err)
	}
	require.Equal(t, int64(5), count)
}

func TestUsageValidation(t *testing.T) {
	svc := newTestService(t)
	start, end := period()

	_, err := svc.CurrentUsage(context.Background(), 0, start, end)
	require.ErrorIs(t, err, usagedomain.ErrInvalidAccount)

	_, err = svc.CurrentUsage(context.Background(), 42, end, start)
	require.ErrorIs(t, err, usagedomain.ErrInvalidPeriod)

	_, err = svc.Increment(context.Background(), 0, start, end, 50)
	require.ErrorIs(t, err, usagedomain.ErrInvalidAccount)

	_, err = svc.Increment(context.Background(), 42, start, start, 50)
	require.ErrorIs(t, err, usagedomain.ErrInvalidPeriod)
}

func TestHistoryNewestFirst(t *testing.T) {
	svc := newTestService(t)

	march := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, monthsAgo := range []int{2, 1, 0} {
		start := march.AddDate(0, -monthsAgo, 0)
		_, err := svc.Increment(context.Background(), 42, start, start.AddDate(0, 1, 0), 50)
		require.NoError(t, err)
	}

	history, err := svc.HistoryByAccount(context.Background(), 42, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, march, history[0].PeriodStart.UTC())
	require.Equal(t, march.AddDate(0, -1, 0), history[1].PeriodStart.UTC())

	_, err = svc.HistoryByAccount(context.Background(), 0, 2)
	require.ErrorIs(t, err, usagedomain.ErrInvalidAccount)
}
