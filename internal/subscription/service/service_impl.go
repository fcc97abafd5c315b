package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/listingcraft/listingcraft/internal/clock"
	plandomain "github.com/listingcraft/listingcraft/internal/plan/domain"
	subscriptiondomain "github.com/listingcraft/listingcraft/internal/subscription/domain"
	"github.com/listingcraft/listingcraft/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    subscriptiondomain.Repository
	PlanSvc plandomain.Service
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    subscriptiondomain.Repository
	planSvc plandomain.Service
}

func NewService(p Params) subscriptiondomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("subscription.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		planSvc: p.PlanSvc,
	}
}

// Get implements domain.Service.
func (s *Service) Get(ctx context.Context, accountID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	if accountID == 0 {
		return nil, subscriptiondomain.ErrInvalidAccount
	}
	return s.repo.FindCurrentByAccountID(ctx, s.db, accountID)
}

// CreateFromCheckout implements domain.Service.
func (s *Service) CreateFromCheckout(ctx context.Context, req subscriptiondomain.CreateFromCheckoutRequest) (*subscriptiondomain.Subscription, error) {
	var created *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.CreateFromCheckoutTx(ctx, tx, req)
		if err != nil {
			return err
		}
		created = subscription
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateFromCheckoutTx implements domain.Service.
func (s *Service) CreateFromCheckoutTx(ctx context.Context, tx *gorm.DB, req subscriptiondomain.CreateFromCheckoutRequest) (*subscriptiondomain.Subscription, error) {
	if req.AccountID == 0 {
		return nil, subscriptiondomain.ErrInvalidAccount
	}
	externalID := strings.TrimSpace(req.ExternalSubscriptionID)
	if externalID == "" {
		return nil, subscriptiondomain.ErrInvalidExternalID
	}
	if !req.PeriodStart.Before(req.PeriodEnd) {
		return nil, subscriptiondomain.ErrInvalidPeriod
	}
	status := req.Status
	if status == "" {
		status = subscriptiondomain.SubscriptionStatusActive
	}
	if !status.Valid() || status.Terminal() {
		return nil, subscriptiondomain.ErrInvalidStatus
	}

	if _, err := s.planSvc.Get(ctx, strconv.FormatInt(req.PlanID, 10)); err != nil {
		return nil, subscriptiondomain.ErrInvalidPlan
	}

	existing, err := s.repo.FindCurrentByAccountIDForUpdate(ctx, tx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.ExternalID() == externalID {
			// Redelivered checkout event for the row we already hold.
			return existing, nil
		}
		return nil, subscriptiondomain.ErrSubscriptionConflict
	}

	now := s.clock.Now()
	externalCustomerID := strings.TrimSpace(req.ExternalCustomerID)
	subscription := &subscriptiondomain.Subscription{
		ID:                     s.genID.Generate(),
		AccountID:              req.AccountID,
		PlanID:                 req.PlanID,
		ExternalSubscriptionID: &externalID,
		Status:                 status,
		CurrentPeriodStart:     req.PeriodStart,
		CurrentPeriodEnd:       req.PeriodEnd,
		TrialEnd:               req.TrialEnd,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if externalCustomerID != "" {
		subscription.ExternalCustomerID = &externalCustomerID
	}
	if billingEmail := strings.TrimSpace(req.BillingEmail); billingEmail != "" {
		subscription.BillingEmail = &billingEmail
	}

	if err := s.repo.Insert(ctx, tx, subscription); err != nil {
		// The live-account unique index catches the race the FOR UPDATE
		// read cannot: two first checkouts inserting at once.
		if db.IsDuplicateKeyErr(err) {
			return nil, subscriptiondomain.ErrSubscriptionConflict
		}
		return nil, err
	}
	return subscription, nil
}

// ApplyStatusTransition implements domain.Service.
func (s *Service) ApplyStatusTransition(ctx context.Context, req subscriptiondomain.TransitionRequest) (*subscriptiondomain.Subscription, error) {
	var updated *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.ApplyStatusTransitionTx(ctx, tx, req)
		if err != nil {
			return err
		}
		updated = subscription
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ApplyStatusTransitionTx applies one processor event inside the caller's
// transaction. Disallowed transitions are logged no-ops, never errors: the
// processor delivers events at-least-once and out of order, so replayed or
// superseded events must not fail the webhook.
func (s *Service) ApplyStatusTransitionTx(ctx context.Context, tx *gorm.DB, req subscriptiondomain.TransitionRequest) (*subscriptiondomain.Subscription, error) {
	externalID := strings.TrimSpace(req.ExternalSubscriptionID)
	if externalID == "" {
		return nil, subscriptiondomain.ErrInvalidExternalID
	}
	if !req.Status.Valid() {
		return nil, subscriptiondomain.ErrInvalidStatus
	}

	subscription, err := s.lockForTransition(ctx, tx, req.AccountID, externalID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	if subscription.ExternalID() != externalID {
		return nil, subscriptiondomain.ErrExternalIDMismatch
	}

	now := s.clock.Now()

	if subscription.Status == req.Status {
		// Replayed event. A same-status ACTIVE event can still carry a
		// renewed billing cycle (payment-succeeded).
		if req.Status == subscriptiondomain.SubscriptionStatusActive && s.applyPeriod(subscription, req) {
			subscription.UpdatedAt = now
			if err := s.repo.Update(ctx, tx, subscription); err != nil {
				return nil, err
			}
		}
		return subscription, nil
	}

	if !subscriptiondomain.TransitionAllowed(subscription.Status, req.Status) {
		s.log.Info("transition not applied",
			zap.String("external_subscription_id", externalID),
			zap.String("current_status", string(subscription.Status)),
			zap.String("requested_status", string(req.Status)),
		)
		return subscription, nil
	}

	subscription.Status = req.Status
	switch req.Status {
	case subscriptiondomain.SubscriptionStatusActive:
		// Period bounds move only when a new billing cycle begins.
		s.applyPeriod(subscription, req)
	case subscriptiondomain.SubscriptionStatusCanceled:
		canceledAt := now
		if req.CanceledAt != nil {
			canceledAt = *req.CanceledAt
		}
		subscription.CanceledAt = &canceledAt
	}
	if req.CancelAtPeriodEnd != nil {
		subscription.CancelAtPeriodEnd = *req.CancelAtPeriodEnd
	}
	if req.PlanID != 0 && req.PlanID != subscription.PlanID {
		subscription.PlanID = req.PlanID
	}
	subscription.UpdatedAt = now

	if err := s.repo.Update(ctx, tx, subscription); err != nil {
		return nil, err
	}
	return subscription, nil
}

// ChangePlan implements domain.Service.
func (s *Service) ChangePlan(ctx context.Context, accountID snowflake.ID, newPlanID string) (*subscriptiondomain.Subscription, error) {
	if accountID == 0 {
		return nil, subscriptiondomain.ErrInvalidAccount
	}

	plan, err := s.planSvc.Get(ctx, strings.TrimSpace(newPlanID))
	if err != nil {
		return nil, subscriptiondomain.ErrInvalidPlan
	}
	if !plan.Active {
		return nil, subscriptiondomain.ErrPlanNotSubscribable
	}
	planID, err := strconv.ParseInt(plan.ID, 10, 64)
	if err != nil {
		return nil, subscriptiondomain.ErrInvalidPlan
	}

	var updated *subscriptiondomain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindCurrentByAccountIDForUpdate(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		switch subscription.Status {
		case subscriptiondomain.SubscriptionStatusActive, subscriptiondomain.SubscriptionStatusTrialing:
		default:
			return subscriptiondomain.ErrChangePlanNotAllowed
		}

		// Usage history is untouched; only future accrual follows the new
		// plan's quota.
		subscription.PlanID = planID
		subscription.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, subscription); err != nil {
			return err
		}
		updated = subscription
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// MarkCancelAtPeriodEnd implements domain.Service.
func (s *Service) MarkCancelAtPeriodEnd(ctx context.Context, accountID snowflake.ID, cancel bool) (*subscriptiondomain.Subscription, error) {
	if accountID == 0 {
		return nil, subscriptiondomain.ErrInvalidAccount
	}

	var updated *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindCurrentByAccountIDForUpdate(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if subscription.CancelAtPeriodEnd == cancel {
			updated = subscription
			return nil
		}

		subscription.CancelAtPeriodEnd = cancel
		subscription.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, subscription); err != nil {
			return err
		}
		updated = subscription
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) lockForTransition(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, externalID string) (*subscriptiondomain.Subscription, error) {
	if accountID != 0 {
		subscription, err := s.repo.FindCurrentByAccountIDForUpdate(ctx, tx, accountID)
		if err != nil {
			return nil, err
		}
		if subscription != nil {
			return subscription, nil
		}
	}
	return s.repo.FindByExternalIDForUpdate(ctx, tx, externalID)
}

// applyPeriod copies the event's billing cycle onto the row when it is a
// newer, well-formed window. Pure status flips carry zero bounds and leave
// the stored period alone.
func (s *Service) applyPeriod(subscription *subscriptiondomain.Subscription, req subscriptiondomain.TransitionRequest) bool {
	if req.PeriodStart.IsZero() || req.PeriodEnd.IsZero() {
		return false
	}
	if !req.PeriodStart.Before(req.PeriodEnd) {
		return false
	}
	if !req.PeriodEnd.After(subscription.CurrentPeriodEnd) {
		return false
	}
	subscription.CurrentPeriodStart = req.PeriodStart
	subscription.CurrentPeriodEnd = req.PeriodEnd
	return true
}

// SweepStaleIncomplete implements domain.Service.
func (s *Service) SweepStaleIncomplete(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	swept := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.LockStaleIncomplete(ctx, tx, cutoff, limit)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		for i := range rows {
			subscription := &rows[i]
			subscription.Status = subscriptiondomain.SubscriptionStatusCanceled
			subscription.CanceledAt = &now
			subscription.UpdatedAt = now
			if err := s.repo.Update(ctx, tx, subscription); err != nil {
				return err
			}
			swept++
			s.log.Info("stale incomplete subscription canceled",
				zap.String("subscription_id", subscription.ID.String()),
				zap.String("account_id", subscription.AccountID.String()),
			)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return swept, nil
}

// TrialsEndingBefore implements domain.Service.
func (s *Service) TrialsEndingBefore(ctx context.Context, deadline time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	return s.repo.FindTrialsEndingBefore(ctx, s.db, deadline, limit)
}

// MarkTrialReminderSent implements domain.Service.
func (s *Service) MarkTrialReminderSent(ctx context.Context, id snowflake.ID) error {
	return s.repo.MarkTrialReminderSent(ctx, s.db, id, s.clock.Now())
}
