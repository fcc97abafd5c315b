// Package domain covers the processor-facing half of signup: sending a buyer
// to hosted checkout, opening the billing portal, and flagging a subscription
// for end-of-period cancellation. Subscription state itself only changes when
// the resulting webhook events come back.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	stripe "github.com/stripe/stripe-go/v76"
)

type Service interface {
	// CreateCheckoutSession returns the hosted checkout URL.
	CreateCheckoutSession(ctx context.Context, accountID snowflake.ID, req CheckoutRequest) (string, error)
	// CreateBillingPortalSession returns the hosted portal URL for an
	// account with an existing processor customer.
	CreateBillingPortalSession(ctx context.Context, accountID snowflake.ID, returnURL string) (string, error)
	// CancelAtPeriodEnd flags the processor subscription and mirrors the
	// flag locally.
	CancelAtPeriodEnd(ctx context.Context, accountID snowflake.ID) error
}

type CheckoutRequest struct {
	PlanCode   string
	SuccessURL string
	CancelURL  string
}

// ProcessorClient is the narrow slice of the payment processor API the
// checkout flow needs; tests stub it.
type ProcessorClient interface {
	NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	NewPortalSession(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
	UpdateSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

var (
	ErrNotConfigured      = errors.New("billing_not_configured")
	ErrPlanNotFound       = errors.New("plan_not_found")
	ErrPlanNotPurchasable = errors.New("plan_not_purchasable")
	ErrCheckoutConflict   = errors.New("checkout_conflict")
	ErrNoSubscription     = errors.New("no_subscription")
)
