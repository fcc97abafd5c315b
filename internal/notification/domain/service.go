// Package domain defines the outbound notification surface. Every caller
// treats a send failure as warn-only: mail can be down without blocking
// billing reconciliation or the request path.
package domain

import (
	"context"
	"time"
)

type Receipt struct {
	Email       string
	PlanName    string
	AmountCents int64
	Currency    string
	PeriodEnd   time.Time
}

type QuotaWarning struct {
	Email     string
	PlanName  string
	Used      int64
	Quota     int64
	Threshold float64
}

type Notifier interface {
	SubscriptionConfirmed(ctx context.Context, email, planName string) error
	SubscriptionCanceled(ctx context.Context, email string) error
	PaymentFailed(ctx context.Context, email string) error
	PaymentReceipt(ctx context.Context, receipt Receipt) error
	QuotaWarning(ctx context.Context, warning QuotaWarning) error
	TrialEndingSoon(ctx context.Context, email string, trialEnd time.Time) error
}
