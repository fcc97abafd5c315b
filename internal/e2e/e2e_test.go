// Package e2e drives the HTTP surface against real services on an in-memory
// database. Only the payment processor, the completion provider, and outbound
// mail are stubbed; webhooks enter through real signature verification.
package e2e

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	auditrepo "github.com/listingcraft/listingcraft/internal/audit/repository"
	auditservice "github.com/listingcraft/listingcraft/internal/audit/service"
	stripeadapter "github.com/listingcraft/listingcraft/internal/billing/adapters/stripe"
	billingrepo "github.com/listingcraft/listingcraft/internal/billing/repository"
	billingservice "github.com/listingcraft/listingcraft/internal/billing/service"
	"github.com/listingcraft/listingcraft/internal/cache"
	checkoutservice "github.com/listingcraft/listingcraft/internal/checkout/service"
	"github.com/listingcraft/listingcraft/internal/clock"
	"github.com/listingcraft/listingcraft/internal/config"
	gateservice "github.com/listingcraft/listingcraft/internal/gate/service"
	listingrepo "github.com/listingcraft/listingcraft/internal/listing/repository"
	listingservice "github.com/listingcraft/listingcraft/internal/listing/service"
	notificationdomain "github.com/listingcraft/listingcraft/internal/notification/domain"
	plandomain "github.com/listingcraft/listingcraft/internal/plan/domain"
	planrepo "github.com/listingcraft/listingcraft/internal/plan/repository"
	planservice "github.com/listingcraft/listingcraft/internal/plan/service"
	"github.com/listingcraft/listingcraft/internal/providers/completion"
	"github.com/listingcraft/listingcraft/internal/seed"
	"github.com/listingcraft/listingcraft/internal/server"
	subscriptionrepo "github.com/listingcraft/listingcraft/internal/subscription/repository"
	subscriptionservice "github.com/listingcraft/listingcraft/internal/subscription/service"
	usagerepo "github.com/listingcraft/listingcraft/internal/usage/repository"
	usageservice "github.com/listingcraft/listingcraft/internal/usage/service"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_e2e_test"

type recordingNotifier struct {
	confirmed []string
	canceled  []string
	failed    []string
	receipts  []notificationdomain.Receipt
	warnings  []notificationdomain.QuotaWarning
	trials    []string
}

func (n *recordingNotifier) SubscriptionConfirmed(ctx context.Context, email, planName string) error {
	n.confirmed = append(n.confirmed, email)
	return nil
}

func (n *recordingNotifier) SubscriptionCanceled(ctx context.Context, email string) error {
	n.canceled = append(n.canceled, email)
	return nil
}

func (n *recordingNotifier) PaymentFailed(ctx context.Context, email string) error {
	n.failed = append(n.failed, email)
	return nil
}

func (n *recordingNotifier) PaymentReceipt(ctx context.Context, receipt notificationdomain.Receipt) error {
	n.receipts = append(n.receipts, receipt)
	return nil
}

func (n *recordingNotifier) QuotaWarning(ctx context.Context, warning notificationdomain.QuotaWarning) error {
	n.warnings = append(n.warnings, warning)
	return nil
}

func (n *recordingNotifier) TrialEndingSoon(ctx context.Context, email string, trialEnd time.Time) error {
	n.trials = append(n.trials, email)
	return nil
}

type stubCompletion struct {
	description string
	err         error
	calls       int
}

func (s *stubCompletion) GenerateDescription(ctx context.Context, req completion.Request) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.description, nil
}

type stubProcessor struct {
	subUpdates map[string]*stripe.SubscriptionParams
}

func newStubProcessor() *stubProcessor {
	return &stubProcessor{subUpdates: map[string]*stripe.SubscriptionParams{}}
}

func (c *stubProcessor) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return &stripe.CheckoutSession{ID: "cs_e2e_1", URL: "https://checkout.example/cs_e2e_1"}, nil
}

func (c *stubProcessor) NewPortalSession(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	return &stripe.BillingPortalSession{URL: "https://portal.example/ps_e2e_1"}, nil
}

func (c *stubProcessor) UpdateSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	c.subUpdates[id] = params
	return &stripe.Subscription{ID: id}, nil
}

type testEnv struct {
	t          *testing.T
	db         *gorm.DB
	engine     *gin.Engine
	clock      *clock.FakeClock
	plans      plandomain.Service
	notifier   *recordingNotifier
	completion *stubCompletion
	processor  *stubProcessor
}

func setupSchema(t *testing.T, db *gorm.DB) {
	t.Helper()

	schema := []string{
		`CREATE TABLE plans (
			id BIGINT PRIMARY KEY,
			code TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			price_cents BIGINT NOT NULL,
			currency TEXT NOT NULL DEFAULT 'usd',
			billing_interval TEXT NOT NULL DEFAULT 'month',
			description_quota BIGINT NOT NULL,
			trial_days INTEGER NOT NULL DEFAULT 0,
			features TEXT,
			external_price_id TEXT NOT NULL DEFAULT '',
			external_product_id TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_plans_code ON plans (code)`,
		`CREATE TABLE subscriptions (
			id BIGINT PRIMARY KEY,
			account_id BIGINT NOT NULL,
			plan_id BIGINT NOT NULL,
			external_subscription_id TEXT,
			external_customer_id TEXT,
			billing_email TEXT,
			status TEXT NOT NULL,
			current_period_start TIMESTAMP,
			current_period_end TIMESTAMP,
			trial_end TIMESTAMP,
			cancel_at_period_end BOOLEAN NOT NULL DEFAULT FALSE,
			canceled_at TIMESTAMP,
			trial_reminder_sent_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_subscriptions_external_id ON subscriptions (external_subscription_id)`,
		`CREATE UNIQUE INDEX ux_subscriptions_live_account ON subscriptions (account_id) WHERE status <> 'CANCELED'`,
		`CREATE TABLE usage_records (
			id BIGINT PRIMARY KEY,
			account_id BIGINT NOT NULL,
			period_start TIMESTAMP NOT NULL,
			period_end TIMESTAMP NOT NULL,
			count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_usage_records_account_period ON usage_records (account_id, period_start)`,
		`CREATE TABLE billing_events (
			id BIGINT PRIMARY KEY,
			event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			account_id BIGINT,
			external_subscription_id TEXT,
			payload TEXT,
			outcome TEXT,
			last_error TEXT,
			processed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_billing_events_event_id ON billing_events (event_id)`,
		`CREATE TABLE audit_logs (
			id BIGINT PRIMARY KEY,
			kind TEXT NOT NULL,
			account_id BIGINT,
			event_id TEXT,
			detail TEXT NOT NULL,
			payload TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE listings (
			id BIGINT PRIMARY KEY,
			account_id BIGINT NOT NULL,
			property_type TEXT NOT NULL,
			title TEXT NOT NULL,
			address TEXT,
			city TEXT NOT NULL,
			state TEXT,
			country TEXT NOT NULL DEFAULT 'USA',
			zip_code TEXT,
			price_cents BIGINT NOT NULL DEFAULT 0,
			bedrooms INTEGER,
			bathrooms REAL,
			square_feet INTEGER,
			lot_size INTEGER,
			year_built INTEGER,
			key_features TEXT,
			tone TEXT NOT NULL,
			target_audience TEXT NOT NULL,
			additional_notes TEXT,
			generated_description TEXT,
			edited_description TEXT,
			slug TEXT NOT NULL,
			is_favorite BOOLEAN NOT NULL DEFAULT FALSE,
			generation_count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_listings_slug ON listings (slug)`,
		`CREATE INDEX ix_listings_account_created ON listings (account_id, created_at)`,
	}
	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:e2e_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	setupSchema(t, db)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, seed.EnsurePlans(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	plans := planservice.NewService(planservice.Params{
		DB:    db,
		Log:   log,
		Repo:  planrepo.Provide(),
		Cache: cache.NewPlanCache(),
	})
	subs := subscriptionservice.NewService(subscriptionservice.Params{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   clk,
		Repo:    subscriptionrepo.Provide(),
		PlanSvc: plans,
	})
	usage := usageservice.NewService(usageservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  usagerepo.Provide(),
	})
	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  auditrepo.Provide(),
	})
	notifier := &recordingNotifier{}
	billing := billingservice.NewService(billingservice.Params{
		DB:            db,
		Log:           log,
		GenID:         node,
		Clock:         clk,
		Repo:          billingrepo.Provide(),
		Subscriptions: subs,
		Plans:         plans,
		Audit:         audit,
		Notifier:      notifier,
	})
	adapter := stripeadapter.NewAdapter(webhookSecret, 5*time.Minute, clk)
	gate := gateservice.NewService(gateservice.Params{
		Log:           log,
		Clock:         clk,
		Policy:        config.NewStaticPolicyHolder(config.DefaultAccessPolicy()),
		Subscriptions: subs,
		Plans:         plans,
		Usage:         usage,
		Notifier:      notifier,
	})
	processor := newStubProcessor()
	checkoutSvc := checkoutservice.NewService(checkoutservice.Params{
		Log:           log,
		Client:        processor,
		Plans:         plans,
		Subscriptions: subs,
	})
	completionStub := &stubCompletion{description: "A bright three bedroom home close to downtown."}
	listings := listingservice.NewService(listingservice.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      clk,
		Repo:       listingrepo.Provide(),
		Gate:       gate,
		Completion: completionStub,
	})

	engine := gin.New()
	engine.Use(server.ErrorHandlingMiddleware())
	server.NewServer(server.ServerParams{
		Gin:             engine,
		Cfg:             config.Config{BillingPortalReturnURL: "https://app.example/billing"},
		GenID:           node,
		Clock:           clk,
		AuditSvc:        audit,
		BillingSvc:      billing,
		WebhookAdapter:  adapter,
		PlanSvc:         plans,
		SubscriptionSvc: subs,
		UsageSvc:        usage,
		GateSvc:         gate,
		CheckoutSvc:     checkoutSvc,
		ListingSvc:      listings,
	})

	return &testEnv{
		t:          t,
		db:         db,
		engine:     engine,
		clock:      clk,
		plans:      plans,
		notifier:   notifier,
		completion: completionStub,
		processor:  processor,
	}
}

func (e *testEnv) do(method, path string, body any, account string) *httptest.ResponseRecorder {
	e.t.Helper()

	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(e.t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if account != "" {
		req.Header.Set(server.HeaderAccount, account)
	}

	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

// postWebhook signs the payload the way the processor would and posts it.
func (e *testEnv) postWebhook(event map[string]any) *httptest.ResponseRecorder {
	e.t.Helper()

	payload, err := json.Marshal(event)
	require.NoError(e.t, err)

	ts := e.clock.Now().Unix()
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	signature := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, signature))

	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) planID(code string) int64 {
	e.t.Helper()
	plan, err := e.plans.GetByCode(context.Background(), code)
	require.NoError(e.t, err)
	id, err := strconv.ParseInt(plan.ID, 10, 64)
	require.NoError(e.t, err)
	return id
}

// subscribe runs a signed checkout.session.completed webhook for the account.
func (e *testEnv) subscribe(account snowflake.ID, planCode, eventID, externalSubID string) {
	e.t.Helper()

	rec := e.postWebhook(checkoutCompletedEvent(eventID, account, e.planID(planCode), externalSubID))
	require.Equal(e.t, http.StatusOK, rec.Code)
	require.Equal(e.t, "processed", decode(e.t, rec)["outcome"])
}

func checkoutCompletedEvent(eventID string, account snowflake.ID, planID int64, externalSubID string) map[string]any {
	return map[string]any{
		"id":      eventID,
		"type":    "checkout.session.completed",
		"created": time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":             "cs_" + eventID,
				"customer":       "cus_1",
				"customer_email": "buyer@example.com",
				"subscription":   externalSubID,
				"metadata": map[string]string{
					"account_id": account.String(),
					"plan_id":    strconv.FormatInt(planID, 10),
				},
			},
		},
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCheckoutToGenerationFlow(t *testing.T) {
	env := newTestEnv(t)
	env.subscribe(42, "basic", "evt_checkout_1", "sub_1")

	require.Equal(t, []string{"buyer@example.com"}, env.notifier.confirmed)

	rec := env.do(http.MethodGet, "/v1/subscription", nil, "42")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	sub := data["subscription"].(map[string]any)
	require.Equal(t, "TRIALING", sub["Status"])
	plan := data["plan"].(map[string]any)
	require.Equal(t, "basic", plan["code"])

	rec = env.do(http.MethodPost, "/v1/listings", map[string]any{
		"title":         "Sunny Cottage",
		"city":          "Austin",
		"property_type": "house",
		"tone":          "friendly",
	}, "42")
	require.Equal(t, http.StatusCreated, rec.Code)
	listing := decode(t, rec)["data"].(map[string]any)
	require.Equal(t, "A bright three bedroom home close to downtown.", listing["GeneratedDescription"])
	require.Equal(t, 1, env.completion.calls)

	rec = env.do(http.MethodGet, "/v1/usage", nil, "42")
	require.Equal(t, http.StatusOK, rec.Code)
	current := decode(t, rec)["data"].(map[string]any)["current"].(map[string]any)
	require.Equal(t, float64(1), current["count"])
	require.Equal(t, float64(50), current["limit"])
	require.Equal(t, float64(49), current["remaining"])
}

func TestQuotaExhaustionBlocksGeneration(t *testing.T) {
	env := newTestEnv(t)

	// A two-generation plan keeps the exhaustion loop short.
	require.NoError(t, env.db.Exec(
		`INSERT INTO plans (id, code, name, price_cents, currency, billing_interval,
			description_quota, trial_days, features, external_price_id, external_product_id,
			active, created_at, updated_at)
		 VALUES (900, 'tiny', 'Tiny', 900, 'usd', 'month', 2, 0, '[]', '', '', TRUE, ?, ?)`,
		env.clock.Now(), env.clock.Now(),
	).Error)

	env.subscribe(77, "tiny", "evt_checkout_tiny", "sub_tiny")

	for i := 0; i < 2; i++ {
		rec := env.do(http.MethodPost, "/v1/listings", map[string]any{
			"title":         fmt.Sprintf("Listing %d", i),
			"city":          "Denver",
			"property_type": "apartment",
		}, "77")
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := env.do(http.MethodPost, "/v1/listings", map[string]any{
		"title":         "One Too Many",
		"city":          "Denver",
		"property_type": "apartment",
	}, "77")
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	payload := decode(t, rec)["error"].(map[string]any)
	require.Equal(t, "quota_exceeded", payload["code"])

	rec = env.do(http.MethodGet, "/v1/usage", nil, "77")
	current := decode(t, rec)["data"].(map[string]any)["current"].(map[string]any)
	require.Equal(t, float64(2), current["count"])
}

func TestGenerationDeniedWithoutSubscription(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/v1/listings", map[string]any{
		"title":         "No Plan Yet",
		"city":          "Boise",
		"property_type": "house",
	}, "999")
	require.Equal(t, http.StatusForbidden, rec.Code)
	payload := decode(t, rec)["error"].(map[string]any)
	require.Equal(t, "no_active_subscription", payload["code"])
	require.Equal(t, 0, env.completion.calls)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/v1/listings", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/v1/plans", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	plans := decode(t, rec)["data"].([]any)
	require.Len(t, plans, 3)
}

func TestListingLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.subscribe(55, "pro", "evt_checkout_pro", "sub_pro")

	rec := env.do(http.MethodPost, "/v1/listings", map[string]any{
		"title":         "Lakefront Retreat",
		"city":          "Madison",
		"property_type": "house",
		"bedrooms":      4,
	}, "55")
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode(t, rec)["data"].(map[string]any)
	id := created["ID"].(string)

	rec = env.do(http.MethodPatch, "/v1/listings/"+id+"/description", map[string]any{
		"description": "Hand tuned copy.",
	}, "55")
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode(t, rec)["data"].(map[string]any)
	require.Equal(t, "Hand tuned copy.", updated["EditedDescription"])

	rec = env.do(http.MethodPost, "/v1/listings/"+id+"/favorite", nil, "55")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decode(t, rec)["data"].(map[string]any)["IsFavorite"])

	rec = env.do(http.MethodGet, "/v1/listings?favorites=true", nil, "55")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode(t, rec)["data"].([]any), 1)

	// Another account cannot see or delete the listing.
	rec = env.do(http.MethodGet, "/v1/listings/"+id, nil, "56")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodDelete, "/v1/listings/"+id, nil, "55")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/v1/listings/"+id, nil, "55")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
