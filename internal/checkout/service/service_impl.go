package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/listingcraft/listingcraft/internal/checkout/domain"
	plandomain "github.com/listingcraft/listingcraft/internal/plan/domain"
	subscriptiondomain "github.com/listingcraft/listingcraft/internal/subscription/domain"
	stripe "github.com/stripe/stripe-go/v76"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log           *zap.Logger
	Client        checkoutdomain.ProcessorClient `optional:"true"`
	Plans         plandomain.Service
	Subscriptions subscriptiondomain.Service
}

type Service struct {
	log           *zap.Logger
	client        checkoutdomain.ProcessorClient
	plans         plandomain.Service
	subscriptions subscriptiondomain.Service
}

func NewService(p Params) checkoutdomain.Service {
	return &Service{
		log:           p.Log.Named("checkout"),
		client:        p.Client,
		plans:         p.Plans,
		subscriptions: p.Subscriptions,
	}
}

func (s *Service) CreateCheckoutSession(ctx context.Context, accountID snowflake.ID, req checkoutdomain.CheckoutRequest) (string, error) {
	if s.client == nil {
		return "", checkoutdomain.ErrNotConfigured
	}

	plan, err := s.plans.GetByCode(ctx, strings.TrimSpace(req.PlanCode))
	if err != nil || plan == nil {
		return "", checkoutdomain.ErrPlanNotFound
	}
	if !plan.Active || plan.ExternalPriceID == "" {
		return "", checkoutdomain.ErrPlanNotPurchasable
	}

	existing, err := s.subscriptions.Get(ctx, accountID)
	if err != nil {
		return "", err
	}
	if existing != nil && !existing.Status.Terminal() {
		return "", checkoutdomain.ErrCheckoutConflict
	}

	metadata := map[string]string{
		"account_id": accountID.String(),
		"plan_id":    plan.ID,
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(accountID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(plan.ExternalPriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	params.Metadata = metadata
	if plan.TrialDays > 0 {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(int64(plan.TrialDays))
	}

	sess, err := s.client.NewCheckoutSession(params)
	if err != nil {
		s.log.Error("checkout session create failed",
			zap.Int64("account_id", int64(accountID)),
			zap.String("plan_code", plan.Code),
			zap.Error(err),
		)
		return "", err
	}
	s.log.Info("checkout session created",
		zap.Int64("account_id", int64(accountID)),
		zap.String("plan_code", plan.Code),
		zap.String("session_id", sess.ID),
	)
	return sess.URL, nil
}

func (s *Service) CreateBillingPortalSession(ctx context.Context, accountID snowflake.ID, returnURL string) (string, error) {
	if s.client == nil {
		return "", checkoutdomain.ErrNotConfigured
	}

	sub, err := s.subscriptions.Get(ctx, accountID)
	if err != nil {
		return "", err
	}
	if sub == nil || sub.ExternalCustomerID == nil || *sub.ExternalCustomerID == "" {
		return "", checkoutdomain.ErrNoSubscription
	}

	sess, err := s.client.NewPortalSession(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(*sub.ExternalCustomerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		s.log.Error("portal session create failed", zap.Int64("account_id", int64(accountID)), zap.Error(err))
		return "", err
	}
	return sess.URL, nil
}

func (s *Service) CancelAtPeriodEnd(ctx context.Context, accountID snowflake.ID) error {
	if s.client == nil {
		return checkoutdomain.ErrNotConfigured
	}

	sub, err := s.subscriptions.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if sub == nil || sub.ExternalID() == "" {
		return checkoutdomain.ErrNoSubscription
	}

	_, err = s.client.UpdateSubscription(sub.ExternalID(), &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	})
	if err != nil {
		s.log.Error("processor cancel flag failed", zap.Int64("account_id", int64(accountID)), zap.Error(err))
		return err
	}

	// Mirror locally; the deleted webhook finalizes the state later.
	if _, err := s.subscriptions.MarkCancelAtPeriodEnd(ctx, accountID, true); err != nil {
		return err
	}
	s.log.Info("subscription flagged for period-end cancel",
		zap.Int64("account_id", int64(accountID)),
		zap.String("external_subscription_id", sub.ExternalID()),
	)
	return nil
}
