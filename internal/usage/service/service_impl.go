package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/listingcraft/listingcraft/internal/clock"
	obsmetrics "github.com/listingcraft/listingcraft/internal/observability/metrics"
	usagedomain "github.com/listingcraft/listingcraft/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       usagedomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       usagedomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) usagedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("usage.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

// CurrentUsage implements domain.Service.
func (s *Service) CurrentUsage(ctx context.Context, accountID snowflake.ID, periodStart, periodEnd time.Time) (usagedomain.UsageRecord, error) {
	if accountID == 0 {
		return usagedomain.UsageRecord{}, usagedomain.ErrInvalidAccount
	}
	if !periodStart.Before(periodEnd) {
		return usagedomain.UsageRecord{}, usagedomain.ErrInvalidPeriod
	}

	if err := s.ensure(ctx, s.db, accountID, periodStart, periodEnd); err != nil {
		return usagedomain.UsageRecord{}, err
	}

	record, err := s.repo.FindRecord(ctx, s.db, accountID, periodStart)
	if err != nil {
		return usagedomain.UsageRecord{}, err
	}
	if record == nil {
		return usagedomain.UsageRecord{}, usagedomain.ErrRecordNotFound
	}
	return *record, nil
}

// Increment implements domain.Service.
func (s *Service) Increment(ctx context.Context, accountID snowflake.ID, periodStart, periodEnd time.Time, limit int64) (int64, error) {
	if accountID == 0 {
		return 0, usagedomain.ErrInvalidAccount
	}
	if !periodStart.Before(periodEnd) {
		return 0, usagedomain.ErrInvalidPeriod
	}

	var newCount int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensure(ctx, tx, accountID, periodStart, periodEnd); err != nil {
			return err
		}

		incremented, err := s.repo.ConditionalIncrement(ctx, tx, accountID, periodStart, limit, s.clock.Now())
		if err != nil {
			return err
		}
		if !incremented {
			return usagedomain.ErrQuotaExhausted
		}

		record, err := s.repo.FindRecord(ctx, tx, accountID, periodStart)
		if err != nil {
			return err
		}
		if record == nil {
			return usagedomain.ErrRecordNotFound
		}
		newCount = record.Count
		return nil
	})
	if err != nil {
		return 0, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordQuotaIncrement(ctx)
	}
	return newCount, nil
}

// HistoryByAccount implements domain.Service.
func (s *Service) HistoryByAccount(ctx context.Context, accountID snowflake.ID, limit int) ([]usagedomain.UsageRecord, error) {
	if accountID == 0 {
		return nil, usagedomain.ErrInvalidAccount
	}
	return s.repo.ListByAccount(ctx, s.db, accountID, limit)
}

func (s *Service) ensure(ctx context.Context, db *gorm.DB, accountID snowflake.ID, periodStart, periodEnd time.Time) error {
	now := s.clock.Now()
	return s.repo.EnsureRecord(ctx, db, &usagedomain.UsageRecord{
		ID:          s.genID.Generate(),
		AccountID:   accountID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Count:       0,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}
