package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/listingcraft/listingcraft/internal/cache"
	plandomain "github.com/listingcraft/listingcraft/internal/plan/domain"
	planrepo "github.com/listingcraft/listingcraft/internal/plan/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:plan_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := []string{
		`CREATE TABLE plans (
			id BIGINT PRIMARY KEY,
			code TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			price_cents BIGINT NOT NULL,
			currency TEXT NOT NULL DEFAULT 'usd',
			billing_interval TEXT NOT NULL DEFAULT 'month',
			description_quota BIGINT NOT NULL,
			trial_days INT NOT NULL DEFAULT 0,
			features TEXT,
			external_price_id TEXT NOT NULL DEFAULT '',
			external_product_id TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_plans_code ON plans (code)`,
	}
	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	return db
}

type fixture struct {
	db  *gorm.DB
	svc plandomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupTestDB(t)
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  planrepo.Provide(),
		Cache: cache.NewPlanCache(),
	})

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	insert := `INSERT INTO plans (id, code, name, price_cents, description_quota, trial_days,
		features, external_price_id, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	require.NoError(t, db.Exec(insert, 1, "basic", "Basic", 1900, 50, 14, `["50 descriptions"]`, "price_basic", true, now, now).Error)
	require.NoError(t, db.Exec(insert, 2, "pro", "Pro", 4900, 200, 14, `["200 descriptions","priority support"]`, "price_pro", true, now, now).Error)
	require.NoError(t, db.Exec(insert, 3, "legacy", "Legacy", 900, 10, 0, `[]`, "price_legacy", false, now, now).Error)

	return &fixture{db: db, svc: svc}
}

func TestListReturnsActivePlansByPrice(t *testing.T) {
	f := newFixture(t)

	plans, err := f.svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 2)
	require.Equal(t, "basic", plans[0].Code)
	require.Equal(t, "pro", plans[1].Code)
	require.True(t, plans[0].PriceCents < plans[1].PriceCents)
}

func TestListServesFromCache(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.List(context.Background())
	require.NoError(t, err)

	// The catalog only changes through reseeding, so a row deleted behind
	// the cache's back stays visible until the entry expires.
	require.NoError(t, f.db.Exec(`DELETE FROM plans WHERE code = 'pro'`).Error)

	plans, err := f.svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 2)
}

func TestGetByID(t *testing.T) {
	f := newFixture(t)

	plan, err := f.svc.Get(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, "basic", plan.Code)
	require.Equal(t, "1", plan.ID)
	require.Equal(t, int64(50), plan.DescriptionQuota)
	require.Equal(t, []string{"50 descriptions"}, plan.Features)

	_, err = f.svc.Get(context.Background(), "999")
	require.ErrorIs(t, err, plandomain.ErrNotFound)

	for _, id := range []string{"", "abc", "0"} {
		_, err = f.svc.Get(context.Background(), id)
		require.ErrorIs(t, err, plandomain.ErrInvalidID, "id %q", id)
	}
}

func TestGetByCodeNormalizesInput(t *testing.T) {
	f := newFixture(t)

	plan, err := f.svc.GetByCode(context.Background(), "  PRO ")
	require.NoError(t, err)
	require.Equal(t, "pro", plan.Code)

	_, err = f.svc.GetByCode(context.Background(), "   ")
	require.ErrorIs(t, err, plandomain.ErrInvalidCode)

	_, err = f.svc.GetByCode(context.Background(), "enterprise")
	require.ErrorIs(t, err, plandomain.ErrNotFound)
}

func TestGetByExternalPriceID(t *testing.T) {
	f := newFixture(t)

	plan, err := f.svc.GetByExternalPriceID(context.Background(), "price_pro")
	require.NoError(t, err)
	require.Equal(t, "pro", plan.Code)

	_, err = f.svc.GetByExternalPriceID(context.Background(), "price_unknown")
	require.ErrorIs(t, err, plandomain.ErrNotFound)

	_, err = f.svc.GetByExternalPriceID(context.Background(), "")
	require.ErrorIs(t, err, plandomain.ErrInvalidID)
}

func TestInactivePlanStillResolvableByID(t *testing.T) {
	f := newFixture(t)

	// Subscriptions created on a retired plan keep resolving their quota.
	plan, err := f.svc.Get(context.Background(), "3")
	require.NoError(t, err)
	require.Equal(t, "legacy", plan.Code)
	require.False(t, plan.Active)
}
