// Package domain contains the subscription record and its lifecycle rules.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStatus is the closed set of lifecycle states. CANCELED is
// terminal; a canceled account resubscribes through a new row.
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing   SubscriptionStatus = "TRIALING"
	SubscriptionStatusActive     SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPastDue    SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusCanceled   SubscriptionStatus = "CANCELED"
	SubscriptionStatusIncomplete SubscriptionStatus = "INCOMPLETE"
)

// Valid reports whether the value is a known status.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusTrialing,
		SubscriptionStatusActive,
		SubscriptionStatusPastDue,
		SubscriptionStatusCanceled,
		SubscriptionStatusIncomplete:
		return true
	default:
		return false
	}
}

// Terminal reports whether no transition may leave the status.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusCanceled
}

// TransitionAllowed consults the lifecycle table. Same-status requests are
// not listed here; callers treat them as idempotent no-ops.
func TransitionAllowed(current, target SubscriptionStatus) bool {
	switch current {
	case SubscriptionStatusIncomplete:
		return target == SubscriptionStatusActive || target == SubscriptionStatusCanceled
	case SubscriptionStatusTrialing:
		return target == SubscriptionStatusActive || target == SubscriptionStatusCanceled
	case SubscriptionStatusActive:
		return target == SubscriptionStatusPastDue || target == SubscriptionStatusCanceled
	case SubscriptionStatusPastDue:
		return target == SubscriptionStatusActive || target == SubscriptionStatusCanceled
	default:
		return false
	}
}

// Subscription captures an account's agreement with the payment processor.
// At most one non-terminal row exists per account.
type Subscription struct {
	ID                     snowflake.ID       `gorm:"primaryKey"`
	AccountID              snowflake.ID       `gorm:"not null;index"`
	PlanID                 int64              `gorm:"not null"`
	ExternalSubscriptionID *string            `gorm:"type:text;uniqueIndex:ux_subscriptions_external_id"`
	ExternalCustomerID     *string            `gorm:"type:text"`
	BillingEmail           *string            `gorm:"type:text"`
	Status                 SubscriptionStatus `gorm:"type:text;not null"`
	CurrentPeriodStart     time.Time          `gorm:"not null"`
	CurrentPeriodEnd       time.Time          `gorm:"not null"`
	TrialEnd               *time.Time         `gorm:""`
	CancelAtPeriodEnd      bool               `gorm:"not null;default:false"`
	CanceledAt             *time.Time         `gorm:""`
	TrialReminderSentAt    *time.Time         `gorm:""`
	CreatedAt              time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// ExternalID returns the processor subscription id or "".
func (s *Subscription) ExternalID() string {
	if s == nil || s.ExternalSubscriptionID == nil {
		return ""
	}
	return *s.ExternalSubscriptionID
}
