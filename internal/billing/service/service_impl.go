package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/listingcraft/listingcraft/internal/audit/domain"
	billingdomain "github.com/listingcraft/listingcraft/internal/billing/domain"
	"github.com/listingcraft/listingcraft/internal/clock"
	notificationdomain "github.com/listingcraft/listingcraft/internal/notification/domain"
	obsmetrics "github.com/listingcraft/listingcraft/internal/observability/metrics"
	plandomain "github.com/listingcraft/listingcraft/internal/plan/domain"
	"github.com/listingcraft/listingcraft/internal/ratelimit"
	subscriptiondomain "github.com/listingcraft/listingcraft/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const accountLockTTL = 10 * time.Second

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          billingdomain.Repository
	Subscriptions subscriptiondomain.Service
	Plans         plandomain.Service
	Audit         auditdomain.Service
	Notifier      notificationdomain.Notifier
	Locker        *ratelimit.Locker   `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          billingdomain.Repository
	subscriptions subscriptiondomain.Service
	plans         plandomain.Service
	audit         auditdomain.Service
	notifier      notificationdomain.Notifier
	locker        *ratelimit.Locker
	obsMetrics    *obsmetrics.Metrics
}

func NewService(p Params) billingdomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("billing"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		subscriptions: p.Subscriptions,
		plans:         p.Plans,
		audit:         p.Audit,
		notifier:      p.Notifier,
		locker:        p.Locker,
		obsMetrics:    p.ObsMetrics,
	}
}

// applied carries what the transaction decided so post-commit side effects
// (mail, metrics) run only for events that actually landed.
type applied struct {
	outcome      billingdomain.Outcome
	subscription *subscriptiondomain.Subscription
	planName     string
}

func (s *Service) HandleEvent(ctx context.Context, event billingdomain.Event) (billingdomain.Outcome, error) {
	if event.EventID == "" {
		return "", billingdomain.ErrInvalidEvent
	}

	if s.locker != nil {
		key := "billing:event:" + lockScope(event)
		token, ok, err := s.locker.TryLock(ctx, key, accountLockTTL)
		if err != nil {
			s.log.Warn("billing lock unavailable", zap.Error(err))
		} else if ok {
			defer func() {
				if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
					s.log.Warn("billing lock release failed", zap.Error(err))
				}
			}()
		}
	}

	var result applied
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := &billingdomain.BillingEvent{
			ID:        s.genID.Generate(),
			EventID:   event.EventID,
			EventType: event.EventType,
			AccountID: event.AccountID,
			Payload:   datatypes.JSON(event.RawPayload),
			CreatedAt: s.clock.Now(),
		}
		if event.ExternalSubscriptionID != "" {
			record.ExternalSubscriptionID = &event.ExternalSubscriptionID
		}

		inserted, err := s.repo.Insert(ctx, tx, record)
		if err != nil {
			return err
		}
		if !inserted {
			existing, err := s.repo.FindByEventID(ctx, tx, event.EventID, true)
			if err != nil {
				return err
			}
			if existing == nil {
				return billingdomain.ErrInvalidEvent
			}
			if existing.ProcessedAt != nil {
				result = applied{outcome: billingdomain.OutcomeAlreadyProcessed}
				return nil
			}
			// A prior delivery inserted the row but died before marking
			// it processed; reprocess under this row.
			record = existing
		}

		result, err = s.apply(ctx, tx, event)
		if err != nil {
			return err
		}

		var lastError *string
		if result.outcome == billingdomain.OutcomeRejected {
			detail := rejectionDetail(event)
			lastError = &detail
		}
		return s.repo.MarkProcessed(ctx, tx, record.ID, result.outcome, lastError, s.clock.Now())
	})
	if err != nil {
		s.log.Error("billing event failed",
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
		return "", err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordBillingEvent(ctx, event.EventType, string(result.outcome))
	}
	s.log.Info("billing event handled",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.String("outcome", string(result.outcome)),
	)

	if result.outcome == billingdomain.OutcomeProcessed {
		s.notify(ctx, event, result)
	}
	return result.outcome, nil
}

func (s *Service) PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.DeleteProcessedBefore(ctx, s.db, cutoff)
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, event billingdomain.Event) (applied, error) {
	switch event.EventType {
	case billingdomain.EventTypeCheckoutCompleted:
		return s.applyCheckout(ctx, tx, event)
	case billingdomain.EventTypeSubscriptionUpdated,
		billingdomain.EventTypeSubscriptionDeleted,
		billingdomain.EventTypePaymentFailed,
		billingdomain.EventTypePaymentSucceeded:
		return s.applyTransition(ctx, tx, event)
	default:
		return applied{outcome: billingdomain.OutcomeIgnored}, nil
	}
}

func (s *Service) applyCheckout(ctx context.Context, tx *gorm.DB, event billingdomain.Event) (applied, error) {
	if event.AccountID == 0 {
		s.auditReject(ctx, event, auditdomain.KindMismatch, "checkout event carries no account id")
		return applied{outcome: billingdomain.OutcomeRejected}, nil
	}

	plan, err := s.resolvePlan(ctx, event)
	if err != nil {
		return applied{}, err
	}
	if plan == nil {
		s.auditReject(ctx, event, auditdomain.KindMismatch, "checkout event resolves to no known plan")
		return applied{outcome: billingdomain.OutcomeRejected}, nil
	}
	planID, err := strconv.ParseInt(plan.ID, 10, 64)
	if err != nil {
		return applied{}, plandomain.ErrInvalidID
	}

	now := s.clock.Now()
	status := subscriptiondomain.SubscriptionStatusActive
	periodEnd := now.AddDate(0, 1, 0)
	var trialEnd *time.Time
	if plan.TrialDays > 0 {
		status = subscriptiondomain.SubscriptionStatusTrialing
		t := now.AddDate(0, 0, plan.TrialDays)
		trialEnd = &t
		periodEnd = t
	}

	sub, err := s.subscriptions.CreateFromCheckoutTx(ctx, tx, subscriptiondomain.CreateFromCheckoutRequest{
		AccountID:              event.AccountID,
		PlanID:                 planID,
		ExternalSubscriptionID: event.ExternalSubscriptionID,
		ExternalCustomerID:     event.ExternalCustomerID,
		BillingEmail:           event.CustomerEmail,
		Status:                 status,
		PeriodStart:            now,
		PeriodEnd:              periodEnd,
		TrialEnd:               trialEnd,
	})
	switch {
	case errors.Is(err, subscriptiondomain.ErrSubscriptionConflict):
		s.auditReject(ctx, event, auditdomain.KindConflict, "account already holds a live subscription")
		return applied{outcome: billingdomain.OutcomeRejected}, nil
	case err != nil:
		return applied{}, err
	}
	return applied{
		outcome:      billingdomain.OutcomeProcessed,
		subscription: sub,
		planName:     plan.Name,
	}, nil
}

func (s *Service) applyTransition(ctx context.Context, tx *gorm.DB, event billingdomain.Event) (applied, error) {
	if event.Status == "" {
		// Provider status the enum does not cover. Keep the ledger row,
		// leave the subscription alone, flag it for review.
		s.audit.Record(ctx, auditdomain.Entry{
			Kind:      auditdomain.KindUnknownStatus,
			AccountID: event.AccountID,
			EventID:   event.EventID,
			Detail:    "unmapped provider status " + strconv.Quote(event.RawStatus),
			Payload:   payloadMap(event.RawPayload),
		})
		return applied{outcome: billingdomain.OutcomeProcessed}, nil
	}

	planID := int64(0)
	if event.PlanID != 0 || event.ExternalPriceID != "" {
		if plan, err := s.resolvePlan(ctx, event); err == nil && plan != nil {
			if id, err := strconv.ParseInt(plan.ID, 10, 64); err == nil {
				planID = id
			}
		}
	}

	sub, err := s.subscriptions.ApplyStatusTransitionTx(ctx, tx, subscriptiondomain.TransitionRequest{
		AccountID:              event.AccountID,
		ExternalSubscriptionID: event.ExternalSubscriptionID,
		Status:                 event.Status,
		PeriodStart:            event.PeriodStart,
		PeriodEnd:              event.PeriodEnd,
		CancelAtPeriodEnd:      event.CancelAtPeriodEnd,
		CanceledAt:             event.CanceledAt,
		PlanID:                 planID,
	})
	switch {
	case errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound):
		s.auditReject(ctx, event, auditdomain.KindMismatch, "no subscription matches the event")
		return applied{outcome: billingdomain.OutcomeRejected}, nil
	case errors.Is(err, subscriptiondomain.ErrExternalIDMismatch):
		s.auditReject(ctx, event, auditdomain.KindMismatch, "external subscription id does not match the stored one")
		return applied{outcome: billingdomain.OutcomeRejected}, nil
	case err != nil:
		return applied{}, err
	}

	result := applied{
		outcome:      billingdomain.OutcomeProcessed,
		subscription: sub,
	}
	if plan, err := s.plans.Get(ctx, strconv.FormatInt(sub.PlanID, 10)); err == nil && plan != nil {
		result.planName = plan.Name
	}
	return result, nil
}

// resolvePlan prefers the checkout metadata plan id and falls back to the
// provider price id carried on subscription and invoice lines.
func (s *Service) resolvePlan(ctx context.Context, event billingdomain.Event) (*plandomain.Response, error) {
	if event.PlanID != 0 {
		plan, err := s.plans.Get(ctx, strconv.FormatInt(event.PlanID, 10))
		if err != nil && !errors.Is(err, plandomain.ErrNotFound) {
			return nil, err
		}
		if plan != nil {
			return plan, nil
		}
	}
	if event.ExternalPriceID != "" {
		plan, err := s.plans.GetByExternalPriceID(ctx, event.ExternalPriceID)
		if err != nil && !errors.Is(err, plandomain.ErrNotFound) {
			return nil, err
		}
		return plan, nil
	}
	return nil, nil
}

// notify runs after commit; a mail failure never rolls back reconciliation.
func (s *Service) notify(ctx context.Context, event billingdomain.Event, result applied) {
	email := event.CustomerEmail
	if email == "" && result.subscription != nil && result.subscription.BillingEmail != nil {
		email = *result.subscription.BillingEmail
	}
	if email == "" {
		return
	}

	var err error
	switch event.EventType {
	case billingdomain.EventTypeCheckoutCompleted:
		err = s.notifier.SubscriptionConfirmed(ctx, email, result.planName)
	case billingdomain.EventTypeSubscriptionDeleted:
		err = s.notifier.SubscriptionCanceled(ctx, email)
	case billingdomain.EventTypePaymentFailed:
		err = s.notifier.PaymentFailed(ctx, email)
	case billingdomain.EventTypePaymentSucceeded:
		receipt := notificationdomain.Receipt{
			Email:       email,
			PlanName:    result.planName,
			AmountCents: event.AmountCents,
			Currency:    event.Currency,
		}
		if result.subscription != nil {
			receipt.PeriodEnd = result.subscription.CurrentPeriodEnd
		}
		err = s.notifier.PaymentReceipt(ctx, receipt)
	}
	if err != nil {
		s.log.Warn("billing notification failed",
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}
}

func (s *Service) auditReject(ctx context.Context, event billingdomain.Event, kind auditdomain.Kind, detail string) {
	s.audit.Record(ctx, auditdomain.Entry{
		Kind:      kind,
		AccountID: event.AccountID,
		EventID:   event.EventID,
		Detail:    detail,
		Payload:   payloadMap(event.RawPayload),
	})
}

func lockScope(event billingdomain.Event) string {
	if event.AccountID != 0 {
		return "account:" + event.AccountID.String()
	}
	if event.ExternalSubscriptionID != "" {
		return "sub:" + event.ExternalSubscriptionID
	}
	return "event:" + event.EventID
}

func rejectionDetail(event billingdomain.Event) string {
	return "rejected " + event.EventType + " for subscription " + event.ExternalSubscriptionID
}

func payloadMap(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
