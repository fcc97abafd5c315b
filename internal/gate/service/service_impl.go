package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/listingcraft/listingcraft/internal/clock"
	"github.com/listingcraft/listingcraft/internal/config"
	gatedomain "github.com/listingcraft/listingcraft/internal/gate/domain"
	notificationdomain "github.com/listingcraft/listingcraft/internal/notification/domain"
	obsmetrics "github.com/listingcraft/listingcraft/internal/observability/metrics"
	plandomain "github.com/listingcraft/listingcraft/internal/plan/domain"
	subscriptiondomain "github.com/listingcraft/listingcraft/internal/subscription/domain"
	usagedomain "github.com/listingcraft/listingcraft/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// authorizeTimeout bounds the whole decision path so a slow database turns
// into a fast fail-closed denial instead of a hung request.
const authorizeTimeout = 3 * time.Second

type Params struct {
	fx.In

	Log           *zap.Logger
	Clock         clock.Clock
	Policy        *config.PolicyHolder
	Subscriptions subscriptiondomain.Service
	Plans         plandomain.Service
	Usage         usagedomain.Service
	Notifier      notificationdomain.Notifier
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log           *zap.Logger
	clock         clock.Clock
	policy        *config.PolicyHolder
	subscriptions subscriptiondomain.Service
	plans         plandomain.Service
	usage         usagedomain.Service
	notifier      notificationdomain.Notifier
	obsMetrics    *obsmetrics.Metrics
}

func NewService(p Params) gatedomain.Service {
	return &Service{
		log:           p.Log.Named("gate"),
		clock:         p.Clock,
		policy:        p.Policy,
		subscriptions: p.Subscriptions,
		plans:         p.Plans,
		usage:         p.Usage,
		notifier:      p.Notifier,
		obsMetrics:    p.ObsMetrics,
	}
}

func (s *Service) Authorize(ctx context.Context, accountID snowflake.ID) gatedomain.Decision {
	ctx, cancel := context.WithTimeout(ctx, authorizeTimeout)
	defer cancel()

	decision := s.authorize(ctx, accountID)
	if s.obsMetrics != nil {
		verdict := "deny"
		if decision.Allowed {
			verdict = "allow"
		}
		s.obsMetrics.RecordGateDecision(ctx, verdict, string(decision.Reason))
	}
	return decision
}

func (s *Service) authorize(ctx context.Context, accountID snowflake.ID) gatedomain.Decision {
	if accountID == 0 {
		return gatedomain.Deny(gatedomain.ReasonNoActiveSubscription)
	}

	sub, err := s.subscriptions.Get(ctx, accountID)
	if err != nil {
		s.log.Error("subscription lookup failed", zap.Int64("account_id", int64(accountID)), zap.Error(err))
		return gatedomain.Deny(gatedomain.ReasonSystemUnavailable)
	}
	if sub == nil {
		return gatedomain.Deny(gatedomain.ReasonNoActiveSubscription)
	}

	now := s.clock.Now()
	if !s.statusAdmits(sub, now) {
		return gatedomain.Deny(gatedomain.ReasonNoActiveSubscription)
	}

	plan, err := s.plans.Get(ctx, strconv.FormatInt(sub.PlanID, 10))
	if err != nil || plan == nil {
		// A subscription pointing at a plan the catalog does not know is
		// a configuration error, not a user problem. Fail closed.
		s.log.Error("plan lookup failed for live subscription",
			zap.Int64("account_id", int64(accountID)),
			zap.Int64("plan_id", sub.PlanID),
			zap.Error(err),
		)
		return gatedomain.Deny(gatedomain.ReasonSystemUnavailable)
	}

	periodStart, periodEnd := effectivePeriod(sub, now)

	count, err := s.usage.Increment(ctx, accountID, periodStart, periodEnd, plan.DescriptionQuota)
	switch {
	case errors.Is(err, usagedomain.ErrQuotaExhausted):
		return gatedomain.Deny(gatedomain.ReasonQuotaExceeded)
	case err != nil:
		s.log.Error("quota increment failed", zap.Int64("account_id", int64(accountID)), zap.Error(err))
		return gatedomain.Deny(gatedomain.ReasonSystemUnavailable)
	}

	remaining := int64(-1)
	if !plan.Unlimited() {
		remaining = plan.DescriptionQuota - count
		s.maybeWarn(ctx, sub, plan, count)
	}
	return gatedomain.Allow(remaining)
}

// statusAdmits applies the status half of the decision. PAST_DUE only passes
// when the operator policy grants a grace window and the stored period ended
// recently enough.
func (s *Service) statusAdmits(sub *subscriptiondomain.Subscription, now time.Time) bool {
	switch sub.Status {
	case subscriptiondomain.SubscriptionStatusActive, subscriptiondomain.SubscriptionStatusTrialing:
		return true
	case subscriptiondomain.SubscriptionStatusPastDue:
		policy := s.policy.Get()
		if !policy.PastDueGraceEnabled || policy.PastDueGraceDays <= 0 {
			return false
		}
		graceEnd := sub.CurrentPeriodEnd.AddDate(0, 0, policy.PastDueGraceDays)
		return now.Before(graceEnd)
	default:
		return false
	}
}

// effectivePeriod rolls the stored period forward month by month until it
// covers now. The subscription row is never written here; the authoritative
// bounds only move when a billing event lands. Rolling into a fresh period
// naturally starts a fresh usage row.
func effectivePeriod(sub *subscriptiondomain.Subscription, now time.Time) (time.Time, time.Time) {
	start, end := sub.CurrentPeriodStart, sub.CurrentPeriodEnd
	for !end.IsZero() && !now.Before(end) {
		start = end
		end = end.AddDate(0, 1, 0)
	}
	return start, end
}

func (s *Service) maybeWarn(ctx context.Context, sub *subscriptiondomain.Subscription, plan *plandomain.Response, count int64) {
	if sub.BillingEmail == nil || *sub.BillingEmail == "" || plan.DescriptionQuota <= 0 {
		return
	}

	var crossed float64
	for _, threshold := range s.policy.Get().WarnThresholds {
		mark := threshold * float64(plan.DescriptionQuota)
		if float64(count) >= mark && float64(count-1) < mark && threshold > crossed {
			crossed = threshold
		}
	}
	if crossed == 0 {
		return
	}

	err := s.notifier.QuotaWarning(ctx, notificationdomain.QuotaWarning{
		Email:     *sub.BillingEmail,
		PlanName:  plan.Name,
		Used:      count,
		Quota:     plan.DescriptionQuota,
		Threshold: crossed,
	})
	if err != nil {
		s.log.Warn("quota warning notification failed", zap.Error(err))
	}
}
