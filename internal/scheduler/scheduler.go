package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/listingcraft/listingcraft/internal/billing/domain"
	"github.com/listingcraft/listingcraft/internal/clock"
	"github.com/listingcraft/listingcraft/internal/config"
	notificationdomain "github.com/listingcraft/listingcraft/internal/notification/domain"
	obsmetrics "github.com/listingcraft/listingcraft/internal/observability/metrics"
	"github.com/listingcraft/listingcraft/internal/ratelimit"
	subscriptiondomain "github.com/listingcraft/listingcraft/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

// jobLockTTL bounds how long a crashed scheduler can hold a job lock.
const jobLockTTL = 5 * time.Minute

type Params struct {
	fx.In

	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Policy          *config.PolicyHolder
	SubscriptionSvc subscriptiondomain.Service
	BillingSvc      billingdomain.Service
	NotificationSvc notificationdomain.Notifier
	Locker          *ratelimit.Locker `optional:"true"`
	Config          Config            `optional:"true"`
}

type Scheduler struct {
	log             *zap.Logger
	cfg             Config
	genID           *snowflake.Node
	clock           clock.Clock
	policy          *config.PolicyHolder
	subscriptionSvc subscriptiondomain.Service
	billingSvc      billingdomain.Service
	notificationSvc notificationdomain.Notifier
	locker          *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Policy == nil ||
		p.SubscriptionSvc == nil || p.BillingSvc == nil || p.NotificationSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		genID:           p.GenID,
		clock:           p.Clock,
		policy:          p.Policy,
		subscriptionSvc: p.SubscriptionSvc,
		billingSvc:      p.BillingSvc,
		notificationSvc: p.NotificationSvc,
		locker:          p.Locker,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) (int, error)) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	log := s.log.With(
		zap.String("job", name),
		zap.String("run_id", s.genID.Generate().String()),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	// With multiple replicas only one runs each job per interval.
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, "scheduler:job:"+name, jobLockTTL)
		if err != nil {
			schedMetrics.IncJobError(name, err)
			return fmt.Errorf("%s: %w", name, err)
		}
		if !ok {
			schedMetrics.IncBatchDeferred(name, "lock_held")
			log.Debug("job lock held elsewhere, skipping")
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), "scheduler:job:"+name, token); err != nil {
				log.Warn("job lock release failed", zap.Error(err))
			}
		}()
	}

	processed, err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if processed > 0 {
		schedMetrics.AddBatchProcessed(name, "subscription", processed)
	}
	if err == nil {
		if processed > 0 {
			log.Info("job finished", zap.Int("processed", processed))
		}
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		log.Warn("job timed out",
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}

	schedMetrics.IncJobError(name, err)
	log.Warn("job failed", zap.Error(err))
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) (int, error)
	}{
		{"sweep_incomplete", s.SweepIncompleteJob},
		{"trial_reminders", s.TrialRemindersJob},
		{"purge_billing_events", s.PurgeBillingEventsJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// SweepIncompleteJob cancels checkouts that never completed payment.
func (s *Scheduler) SweepIncompleteJob(ctx context.Context) (int, error) {
	policy := s.policy.Get()
	cutoff := s.clock.Now().Add(-time.Duration(policy.IncompleteMaxAgeHours) * time.Hour)

	total := 0
	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		swept, err := s.subscriptionSvc.SweepStaleIncomplete(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			return total, err
		}
		total += swept
		if swept < s.cfg.BatchSize {
			return total, nil
		}
	}
}

// TrialRemindersJob mails accounts whose trial is about to end. The reminder
// marker is written only after a successful send, so a failed send retries on
// the next run.
func (s *Scheduler) TrialRemindersJob(ctx context.Context) (int, error) {
	policy := s.policy.Get()
	deadline := s.clock.Now().AddDate(0, 0, policy.TrialReminderLeadDays)

	subscriptions, err := s.subscriptionSvc.TrialsEndingBefore(ctx, deadline, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	var jobErr error
	for i := range subscriptions {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		subscription := &subscriptions[i]
		if subscription.TrialEnd == nil || subscription.BillingEmail == nil || *subscription.BillingEmail == "" {
			continue
		}
		if err := s.notificationSvc.TrialEndingSoon(ctx, *subscription.BillingEmail, *subscription.TrialEnd); err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}
		if err := s.subscriptionSvc.MarkTrialReminderSent(ctx, subscription.ID); err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}
		sent++
	}
	return sent, jobErr
}

// PurgeBillingEventsJob deletes processed webhook events past retention.
func (s *Scheduler) PurgeBillingEventsJob(ctx context.Context) (int, error) {
	policy := s.policy.Get()
	cutoff := s.clock.Now().AddDate(0, 0, -policy.EventRetentionDays)

	purged, err := s.billingSvc.PurgeProcessedBefore(ctx, cutoff)
	return int(purged), err
}
