package stripe_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/listingcraft/listingcraft/internal/billing/adapters/stripe"
	billingdomain "github.com/listingcraft/listingcraft/internal/billing/domain"
	"github.com/listingcraft/listingcraft/internal/clock"
	subscriptiondomain "github.com/listingcraft/listingcraft/internal/subscription/domain"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func signPayload(t *testing.T, secret string, ts time.Time, payload []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func newAdapter(now time.Time) *stripe.Adapter {
	return stripe.NewAdapter(testSecret, 5*time.Minute, clock.NewFakeClock(now))
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	adapter := newAdapter(now)
	payload := []byte(`{"id":"evt_1","type":"customer.subscription.updated"}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", signPayload(t, testSecret, now, payload))

	require.NoError(t, adapter.Verify(context.Background(), payload, headers))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	adapter := newAdapter(now)
	payload := []byte(`{"id":"evt_1"}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", signPayload(t, "whsec_other", now, payload))

	err := adapter.Verify(context.Background(), payload, headers)
	require.ErrorIs(t, err, billingdomain.ErrInvalidSignature)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	adapter := newAdapter(now)
	payload := []byte(`{"id":"evt_1"}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", signPayload(t, testSecret, now, payload))

	err := adapter.Verify(context.Background(), []byte(`{"id":"evt_2"}`), headers)
	require.ErrorIs(t, err, billingdomain.ErrInvalidSignature)
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	adapter := newAdapter(now)
	payload := []byte(`{"id":"evt_1"}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", signPayload(t, testSecret, now.Add(-10*time.Minute), payload))

	err := adapter.Verify(context.Background(), payload, headers)
	require.ErrorIs(t, err, billingdomain.ErrInvalidSignature)
}

func TestVerifyRejectsMissingHeader(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	adapter := newAdapter(now)

	err := adapter.Verify(context.Background(), []byte(`{}`), http.Header{})
	require.ErrorIs(t, err, billingdomain.ErrInvalidSignature)
}

func TestParseCheckoutSession(t *testing.T) {
	adapter := newAdapter(time.Now())
	payload := []byte(`{
		"id": "evt_checkout",
		"type": "checkout.session.completed",
		"created": 1741000000,
		"data": {"object": {
			"id": "cs_1",
			"customer": "cus_1",
			"customer_details": {"email": "buyer@example.com"},
			"subscription": "sub_1",
			"metadata": {"account_id": "1234567890123456789", "plan_id": "2"}
		}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, "evt_checkout", event.EventID)
	require.Equal(t, billingdomain.EventTypeCheckoutCompleted, event.EventType)
	require.Equal(t, "sub_1", event.ExternalSubscriptionID)
	require.Equal(t, "cus_1", event.ExternalCustomerID)
	require.Equal(t, "buyer@example.com", event.CustomerEmail)
	require.Equal(t, int64(2), event.PlanID)
	require.Equal(t, int64(1234567890123456789), int64(event.AccountID))
}

func TestParseSubscriptionUpdated(t *testing.T) {
	adapter := newAdapter(time.Now())
	payload := []byte(`{
		"id": "evt_sub",
		"type": "customer.subscription.updated",
		"created": 1741000000,
		"data": {"object": {
			"id": "sub_1",
			"customer": "cus_1",
			"status": "past_due",
			"current_period_start": 1741000000,
			"current_period_end": 1743678400,
			"cancel_at_period_end": true,
			"items": {"data": [{"price": {"id": "price_pro"}}]}
		}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.SubscriptionStatusPastDue, event.Status)
	require.Equal(t, "past_due", event.RawStatus)
	require.Equal(t, "price_pro", event.ExternalPriceID)
	require.NotNil(t, event.CancelAtPeriodEnd)
	require.True(t, *event.CancelAtPeriodEnd)
	require.Equal(t, time.Unix(1741000000, 0).UTC(), event.PeriodStart)
	require.Equal(t, time.Unix(1743678400, 0).UTC(), event.PeriodEnd)
}

func TestParseSubscriptionDeletedMapsToCanceled(t *testing.T) {
	adapter := newAdapter(time.Now())
	payload := []byte(`{
		"id": "evt_del",
		"type": "customer.subscription.deleted",
		"created": 1741000000,
		"data": {"object": {"id": "sub_1", "customer": "cus_1", "status": "canceled", "canceled_at": 1741000001}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.SubscriptionStatusCanceled, event.Status)
	require.NotNil(t, event.CanceledAt)
}

func TestParseUnknownStatusLeavesStatusEmpty(t *testing.T) {
	adapter := newAdapter(time.Now())
	payload := []byte(`{
		"id": "evt_odd",
		"type": "customer.subscription.updated",
		"created": 1741000000,
		"data": {"object": {"id": "sub_1", "status": "paused"}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	require.Empty(t, event.Status)
	require.Equal(t, "paused", event.RawStatus)
}

func TestParseInvoicePaymentSucceeded(t *testing.T) {
	adapter := newAdapter(time.Now())
	payload := []byte(`{
		"id": "evt_inv",
		"type": "invoice.payment_succeeded",
		"created": 1741000000,
		"data": {"object": {
			"id": "in_1",
			"customer": "cus_1",
			"customer_email": "buyer@example.com",
			"subscription": "sub_1",
			"amount_paid": 7900,
			"currency": "usd",
			"lines": {"data": [{"period": {"start": 1743678400, "end": 1746270400}, "price": {"id": "price_pro"}}]}
		}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.SubscriptionStatusActive, event.Status)
	require.Equal(t, int64(7900), event.AmountCents)
	require.Equal(t, "USD", event.Currency)
	require.Equal(t, time.Unix(1743678400, 0).UTC(), event.PeriodStart)
	require.Equal(t, time.Unix(1746270400, 0).UTC(), event.PeriodEnd)
}

func TestParseIgnoresUnhandledEventTypes(t *testing.T) {
	adapter := newAdapter(time.Now())
	payload := []byte(`{"id": "evt_x", "type": "charge.refunded", "data": {"object": {}}}`)

	_, err := adapter.Parse(context.Background(), payload)
	require.ErrorIs(t, err, billingdomain.ErrEventIgnored)
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	adapter := newAdapter(time.Now())

	_, err := adapter.Parse(context.Background(), []byte("not json"))
	require.ErrorIs(t, err, billingdomain.ErrInvalidPayload)
}
