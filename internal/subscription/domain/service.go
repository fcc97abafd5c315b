package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateFromCheckoutRequest struct {
	AccountID              snowflake.ID
	PlanID                 int64
	ExternalSubscriptionID string
	ExternalCustomerID     string
	BillingEmail           string
	Status                 SubscriptionStatus
	PeriodStart            time.Time
	PeriodEnd              time.Time
	TrialEnd               *time.Time
}

type TransitionRequest struct {
	AccountID              snowflake.ID
	ExternalSubscriptionID string
	Status                 SubscriptionStatus
	PeriodStart            time.Time
	PeriodEnd              time.Time
	CancelAtPeriodEnd      *bool
	CanceledAt             *time.Time
	PlanID                 int64
}

type Service interface {
	// Get returns nil without error when the account has no subscription.
	Get(ctx context.Context, accountID snowflake.ID) (*Subscription, error)
	CreateFromCheckout(ctx context.Context, req CreateFromCheckoutRequest) (*Subscription, error)
	// CreateFromCheckoutTx is CreateFromCheckout scoped to a caller-owned
	// transaction, used by the billing reconciler.
	CreateFromCheckoutTx(ctx context.Context, tx *gorm.DB, req CreateFromCheckoutRequest) (*Subscription, error)
	ApplyStatusTransition(ctx context.Context, req TransitionRequest) (*Subscription, error)
	ApplyStatusTransitionTx(ctx context.Context, tx *gorm.DB, req TransitionRequest) (*Subscription, error)
	ChangePlan(ctx context.Context, accountID snowflake.ID, newPlanID string) (*Subscription, error)
	MarkCancelAtPeriodEnd(ctx context.Context, accountID snowflake.ID, cancel bool) (*Subscription, error)
	// SweepStaleIncomplete cancels INCOMPLETE subscriptions created before
	// cutoff. Returns how many rows were canceled.
	SweepStaleIncomplete(ctx context.Context, cutoff time.Time, limit int) (int, error)
	TrialsEndingBefore(ctx context.Context, deadline time.Time, limit int) ([]Subscription, error)
	MarkTrialReminderSent(ctx context.Context, id snowflake.ID) error
}

var (
	ErrInvalidAccount         = errors.New("invalid_account")
	ErrInvalidPlan            = errors.New("invalid_plan")
	ErrInvalidExternalID      = errors.New("invalid_external_subscription_id")
	ErrInvalidPeriod          = errors.New("invalid_period")
	ErrInvalidStatus          = errors.New("invalid_status")
	ErrSubscriptionNotFound   = errors.New("subscription_not_found")
	ErrSubscriptionConflict   = errors.New("subscription_conflict")
	ErrExternalIDMismatch     = errors.New("external_subscription_id_mismatch")
	ErrChangePlanNotAllowed   = errors.New("change_plan_not_allowed")
	ErrPlanNotSubscribable    = errors.New("plan_not_subscribable")
	ErrSubscriptionTerminated = errors.New("subscription_terminated")
)
