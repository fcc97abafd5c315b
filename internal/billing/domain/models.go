// Package domain defines the billing event ledger and the normalized event
// shape the reconciler consumes. Every inbound webhook event lands in
// billing_events exactly once, keyed by the provider event id, and the stored
// outcome makes replays observable.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/listingcraft/listingcraft/internal/subscription/domain"
	"gorm.io/datatypes"
)

// Outcome is the terminal disposition of one inbound event.
type Outcome string

const (
	OutcomeProcessed        Outcome = "processed"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeRejected         Outcome = "rejected"
)

// BillingEvent is the dedupe ledger row. EventID carries the provider's
// event id; a unique index on it makes replay detection a plain insert.
type BillingEvent struct {
	ID                     snowflake.ID   `gorm:"primaryKey"`
	EventID                string         `gorm:"type:text;not null;uniqueIndex:ux_billing_events_event_id"`
	EventType              string         `gorm:"type:text;not null;index"`
	AccountID              snowflake.ID   `gorm:"index"`
	ExternalSubscriptionID *string        `gorm:"type:text"`
	Payload                datatypes.JSON `gorm:"type:jsonb"`
	Outcome                Outcome        `gorm:"type:text"`
	LastError              *string        `gorm:"type:text"`
	ProcessedAt            *time.Time
	CreatedAt              time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BillingEvent) TableName() string { return "billing_events" }

// Provider event types the reconciler understands. Anything else is parsed
// as ignored before it reaches the ledger.
const (
	EventTypeCheckoutCompleted   = "checkout.session.completed"
	EventTypeSubscriptionUpdated = "customer.subscription.updated"
	EventTypeSubscriptionDeleted = "customer.subscription.deleted"
	EventTypePaymentFailed       = "invoice.payment_failed"
	EventTypePaymentSucceeded    = "invoice.payment_succeeded"
)

// Event is one provider webhook event normalized for the reconciler.
type Event struct {
	EventID                string
	EventType              string
	OccurredAt             time.Time
	AccountID              snowflake.ID
	ExternalSubscriptionID string
	ExternalCustomerID     string
	CustomerEmail          string
	// PlanID is resolved from checkout metadata when present; zero means
	// the reconciler falls back to ExternalPriceID.
	PlanID          int64
	ExternalPriceID string
	// Status is empty when the provider status has no local mapping;
	// RawStatus keeps the original value for the audit trail.
	Status            subscriptiondomain.SubscriptionStatus
	RawStatus         string
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd *bool
	CanceledAt        *time.Time
	TrialEnd          *time.Time
	AmountCents       int64
	Currency          string
	RawPayload        []byte
}
