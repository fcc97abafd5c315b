// Package stripe normalizes Stripe webhook payloads into billing events.
// Signature verification follows the Stripe-Signature scheme: an HMAC-SHA256
// over "<timestamp>.<payload>" with the shared webhook secret, plus a clock
// tolerance window against replayed captures.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/listingcraft/listingcraft/internal/billing/domain"
	"github.com/listingcraft/listingcraft/internal/clock"
	subscriptiondomain "github.com/listingcraft/listingcraft/internal/subscription/domain"
)

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
	clock         clock.Clock
}

func NewAdapter(webhookSecret string, tolerance time.Duration, clk clock.Clock) *Adapter {
	return &Adapter{
		webhookSecret: webhookSecret,
		tolerance:     tolerance,
		clock:         clk,
	}
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return billingdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return billingdomain.ErrInvalidSignature
	}

	if a.tolerance > 0 {
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return billingdomain.ErrInvalidSignature
		}
		age := a.clock.Now().Sub(time.Unix(ts, 0))
		if age > a.tolerance || age < -a.tolerance {
			return billingdomain.ErrInvalidSignature
		}
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return billingdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*billingdomain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, billingdomain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case billingdomain.EventTypeCheckoutCompleted:
		return a.parseCheckoutSession(event, payload)
	case billingdomain.EventTypeSubscriptionUpdated, billingdomain.EventTypeSubscriptionDeleted:
		return a.parseSubscription(event, payload)
	case billingdomain.EventTypePaymentFailed, billingdomain.EventTypePaymentSucceeded:
		return a.parseInvoice(event, payload)
	default:
		return nil, billingdomain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID              string            `json:"id"`
	Customer        string            `json:"customer"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails *stripeCustomer   `json:"customer_details"`
	Subscription    string            `json:"subscription"`
	Metadata        map[string]string `json:"metadata"`
}

type stripeCustomer struct {
	Email string `json:"email"`
}

type stripeSubscription struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CanceledAt         int64             `json:"canceled_at"`
	TrialEnd           int64             `json:"trial_end"`
	Items              stripeItemList    `json:"items"`
	Metadata           map[string]string `json:"metadata"`
}

type stripeItemList struct {
	Data []stripeItem `json:"data"`
}

type stripeItem struct {
	Price stripePrice `json:"price"`
}

type stripePrice struct {
	ID string `json:"id"`
}

type stripeInvoice struct {
	ID                  string            `json:"id"`
	Customer            string            `json:"customer"`
	CustomerEmail       string            `json:"customer_email"`
	Subscription        string            `json:"subscription"`
	AmountPaid          int64             `json:"amount_paid"`
	AmountDue           int64             `json:"amount_due"`
	Currency            string            `json:"currency"`
	Lines               stripeLineList    `json:"lines"`
	SubscriptionDetails *stripeSubDetails `json:"subscription_details"`
}

type stripeSubDetails struct {
	Metadata map[string]string `json:"metadata"`
}

type stripeLineList struct {
	Data []stripeLine `json:"data"`
}

type stripeLine struct {
	Period stripePeriod `json:"period"`
	Price  stripePrice  `json:"price"`
}

type stripePeriod struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

func (a *Adapter) parseCheckoutSession(event stripeEvent, payload []byte) (*billingdomain.Event, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.Subscription) == "" {
		return nil, billingdomain.ErrInvalidEvent
	}

	email := strings.TrimSpace(session.CustomerEmail)
	if email == "" && session.CustomerDetails != nil {
		email = strings.TrimSpace(session.CustomerDetails.Email)
	}

	return &billingdomain.Event{
		EventID:                event.ID,
		EventType:              event.Type,
		OccurredAt:             timestamp(event.Created),
		AccountID:              parseAccountID(session.Metadata),
		ExternalSubscriptionID: session.Subscription,
		ExternalCustomerID:     session.Customer,
		CustomerEmail:          email,
		PlanID:                 parsePlanID(session.Metadata),
		RawPayload:             payload,
	}, nil
}

func (a *Adapter) parseSubscription(event stripeEvent, payload []byte) (*billingdomain.Event, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, billingdomain.ErrInvalidEvent
	}

	out := &billingdomain.Event{
		EventID:                event.ID,
		EventType:              event.Type,
		OccurredAt:             timestamp(event.Created),
		AccountID:              parseAccountID(sub.Metadata),
		ExternalSubscriptionID: sub.ID,
		ExternalCustomerID:     sub.Customer,
		PlanID:                 parsePlanID(sub.Metadata),
		RawStatus:              strings.TrimSpace(sub.Status),
		PeriodStart:            timestamp(sub.CurrentPeriodStart),
		PeriodEnd:              timestamp(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:      &sub.CancelAtPeriodEnd,
		RawPayload:             payload,
	}
	if len(sub.Items.Data) > 0 {
		out.ExternalPriceID = sub.Items.Data[0].Price.ID
	}
	if sub.CanceledAt > 0 {
		t := timestamp(sub.CanceledAt)
		out.CanceledAt = &t
	}
	if sub.TrialEnd > 0 {
		t := timestamp(sub.TrialEnd)
		out.TrialEnd = &t
	}

	if event.Type == billingdomain.EventTypeSubscriptionDeleted {
		out.Status = subscriptiondomain.SubscriptionStatusCanceled
	} else {
		out.Status = mapStatus(out.RawStatus)
	}
	return out, nil
}

func (a *Adapter) parseInvoice(event stripeEvent, payload []byte) (*billingdomain.Event, error) {
	var invoice stripeInvoice
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}

	amount := invoice.AmountPaid
	if event.Type == billingdomain.EventTypePaymentFailed {
		amount = invoice.AmountDue
	}

	var metadata map[string]string
	if invoice.SubscriptionDetails != nil {
		metadata = invoice.SubscriptionDetails.Metadata
	}

	out := &billingdomain.Event{
		EventID:                event.ID,
		EventType:              event.Type,
		OccurredAt:             timestamp(event.Created),
		AccountID:              parseAccountID(metadata),
		ExternalSubscriptionID: invoice.Subscription,
		ExternalCustomerID:     invoice.Customer,
		CustomerEmail:          strings.TrimSpace(invoice.CustomerEmail),
		PlanID:                 parsePlanID(metadata),
		AmountCents:            amount,
		Currency:               strings.ToUpper(strings.TrimSpace(invoice.Currency)),
		RawPayload:             payload,
	}
	if len(invoice.Lines.Data) > 0 {
		line := invoice.Lines.Data[0]
		out.PeriodStart = timestamp(line.Period.Start)
		out.PeriodEnd = timestamp(line.Period.End)
		out.ExternalPriceID = line.Price.ID
	}
	if event.Type == billingdomain.EventTypePaymentSucceeded {
		out.Status = subscriptiondomain.SubscriptionStatusActive
	} else {
		out.Status = subscriptiondomain.SubscriptionStatusPastDue
	}
	return out, nil
}

// mapStatus translates a Stripe subscription status into the local enum.
// Unknown values map to an empty status; the reconciler audits those and
// leaves the subscription untouched.
func mapStatus(status string) subscriptiondomain.SubscriptionStatus {
	switch status {
	case "active":
		return subscriptiondomain.SubscriptionStatusActive
	case "trialing":
		return subscriptiondomain.SubscriptionStatusTrialing
	case "past_due", "unpaid":
		return subscriptiondomain.SubscriptionStatusPastDue
	case "canceled", "incomplete_expired":
		return subscriptiondomain.SubscriptionStatusCanceled
	case "incomplete":
		return subscriptiondomain.SubscriptionStatusIncomplete
	default:
		return ""
	}
}

func parseAccountID(metadata map[string]string) snowflake.ID {
	raw := strings.TrimSpace(metadata["account_id"])
	if raw == "" {
		return 0
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0
	}
	return id
}

func parsePlanID(metadata map[string]string) int64 {
	raw := strings.TrimSpace(metadata["plan_id"])
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func timestamp(unix int64) time.Time {
	if unix <= 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var ts string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			ts = value
		}
		if key == "v1" && value != "" {
			signatures = append(signatures, value)
		}
	}
	if ts == "" || len(signatures) == 0 {
		return "", nil, billingdomain.ErrInvalidSignature
	}
	return ts, signatures, nil
}
