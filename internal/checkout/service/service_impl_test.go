package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/listingcraft/listingcraft/internal/checkout/domain"
	checkoutservice "github.com/listingcraft/listingcraft/internal/checkout/service"
	plandomain "github.com/listingcraft/listingcraft/internal/plan/domain"
	subscriptiondomain "github.com/listingcraft/listingcraft/internal/subscription/domain"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubClient struct {
	sessions      []*stripe.CheckoutSessionParams
	portals       []*stripe.BillingPortalSessionParams
	subUpdates    map[string]*stripe.SubscriptionParams
	checkoutErr   error
	lastSessionID string
}

func newStubClient() *stubClient {
	return &stubClient{subUpdates: map[string]*stripe.SubscriptionParams{}}
}

func (c *stubClient) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if c.checkoutErr != nil {
		return nil, c.checkoutErr
	}
	c.sessions = append(c.sessions, params)
	c.lastSessionID = "cs_test_1"
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1"}, nil
}

func (c *stubClient) NewPortalSession(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	c.portals = append(c.portals, params)
	return &stripe.BillingPortalSession{URL: "https://portal.example/ps_1"}, nil
}

func (c *stubClient) UpdateSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	c.subUpdates[id] = params
	return &stripe.Subscription{ID: id}, nil
}

type stubPlanService struct {
	plans []plandomain.Response
}

func (s *stubPlanService) List(ctx context.Context) ([]plandomain.Response, error) {
	return s.plans, nil
}

func (s *stubPlanService) Get(ctx context.Context, id string) (*plandomain.Response, error) {
	for i := range s.plans {
		if s.plans[i].ID == id {
			return &s.plans[i], nil
		}
	}
	return nil, plandomain.ErrNotFound
}

func (s *stubPlanService) GetByCode(ctx context.Context, code string) (*plandomain.Response, error) {
	for i := range s.plans {
		if s.plans[i].Code == code {
			return &s.plans[i], nil
		}
	}
	return nil, plandomain.ErrNotFound
}

func (s *stubPlanService) GetByExternalPriceID(ctx context.Context, priceID string) (*plandomain.Response, error) {
	return nil, plandomain.ErrNotFound
}

type stubSubscriptionService struct {
	current        *subscriptiondomain.Subscription
	cancelFlagged  bool
	cancelAccounts []snowflake.ID
}

func (s *stubSubscriptionService) Get(ctx context.Context, accountID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return s.current, nil
}

func (s *stubSubscriptionService) CreateFromCheckout(ctx context.Context, req subscriptiondomain.CreateFromCheckoutRequest) (*subscriptiondomain.Subscription, error) {
	return nil, nil
}

func (s *stubSubscriptionService) CreateFromCheckoutTx(ctx context.Context, tx *gorm.DB, req subscriptiondomain.CreateFromCheckoutRequest) (*subscriptiondomain.Subscription, error) {
	return nil, nil
}

func (s *stubSubscriptionService) ApplyStatusTransition(ctx context.Context, req subscriptiondomain.TransitionRequest) (*subscriptiondomain.Subscription, error) {
	return nil, nil
}

func (s *stubSubscriptionService) ApplyStatusTransitionTx(ctx context.Context, tx *gorm.DB, req subscriptiondomain.TransitionRequest) (*subscriptiondomain.Subscription, error) {
	return nil, nil
}

func (s *stubSubscriptionService) ChangePlan(ctx context.Context, accountID snowflake.ID, newPlanID string) (*subscriptiondomain.Subscription, error) {
	return nil, nil
}

func (s *stubSubscriptionService) MarkCancelAtPeriodEnd(ctx context.Context, accountID snowflake.ID, cancel bool) (*subscriptiondomain.Subscription, error) {
	s.cancelFlagged = cancel
	s.cancelAccounts = append(s.cancelAccounts, accountID)
	return s.current, nil
}

func (s *stubSubscriptionService) SweepStaleIncomplete(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	return 0, nil
}

func (s *stubSubscriptionService) TrialsEndingBefore(ctx context.Context, deadline time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	return nil, nil
}

func (s *stubSubscriptionService) MarkTrialReminderSent(ctx context.Context, id snowflake.ID) error {
	return nil
}

func newService(client checkoutdomain.ProcessorClient, subs *stubSubscriptionService) checkoutdomain.Service {
	plans := &stubPlanService{plans: []plandomain.Response{
		{ID: "1", Code: "basic", Name: "Basic", TrialDays: 14, ExternalPriceID: "price_basic", Active: true},
		{ID: "2", Code: "pro", Name: "Pro", ExternalPriceID: "price_pro", Active: true},
		{ID: "3", Code: "legacy", Name: "Legacy", ExternalPriceID: "price_legacy", Active: false},
	}}
	return checkoutservice.NewService(checkoutservice.Params{
		Log:           zap.NewNop(),
		Client:        client,
		Plans:         plans,
		Subscriptions: subs,
	})
}

func TestCreateCheckoutSessionBuildsSubscriptionParams(t *testing.T) {
	client := newStubClient()
	svc := newService(client, &stubSubscriptionService{})
	accountID := snowflake.ID(42)

	url, err := svc.CreateCheckoutSession(context.Background(), accountID, checkoutdomain.CheckoutRequest{
		PlanCode:   "basic",
		SuccessURL: "https://app.example/success",
		CancelURL:  "https://app.example/cancel",
	})
	require.NoError(t, err)
	require.Equal(t, "https://checkout.example/cs_test_1", url)

	require.Len(t, client.sessions, 1)
	params := client.sessions[0]
	require.Equal(t, string(stripe.CheckoutSessionModeSubscription), *params.Mode)
	require.Equal(t, accountID.String(), *params.ClientReferenceID)
	require.Equal(t, "price_basic", *params.LineItems[0].Price)
	require.Equal(t, accountID.String(), params.Metadata["account_id"])
	require.Equal(t, "1", params.Metadata["plan_id"])
	require.Equal(t, int64(14), *params.SubscriptionData.TrialPeriodDays)
	require.Equal(t, params.Metadata, params.SubscriptionData.Metadata)
}

func TestCreateCheckoutSessionOmitsTrialWhenPlanHasNone(t *testing.T) {
	client := newStubClient()
	svc := newService(client, &stubSubscriptionService{})

	_, err := svc.CreateCheckoutSession(context.Background(), 42, checkoutdomain.CheckoutRequest{PlanCode: "pro"})
	require.NoError(t, err)
	require.Nil(t, client.sessions[0].SubscriptionData.TrialPeriodDays)
}

func TestCreateCheckoutSessionRejectsUnknownPlan(t *testing.T) {
	svc := newService(newStubClient(), &stubSubscriptionService{})

	_, err := svc.CreateCheckoutSession(context.Background(), 42, checkoutdomain.CheckoutRequest{PlanCode: "ghost"})
	require.ErrorIs(t, err, checkoutdomain.ErrPlanNotFound)
}

func TestCreateCheckoutSessionRejectsInactivePlan(t *testing.T) {
	svc := newService(newStubClient(), &stubSubscriptionService{})

	_, err := svc.CreateCheckoutSession(context.Background(), 42, checkoutdomain.CheckoutRequest{PlanCode: "legacy"})
	require.ErrorIs(t, err, checkoutdomain.ErrPlanNotPurchasable)
}

func TestCreateCheckoutSessionConflictsWithLiveSubscription(t *testing.T) {
	subs := &stubSubscriptionService{current: &subscriptiondomain.Subscription{
		ID:        1,
		AccountID: 42,
		Status:    subscriptiondomain.SubscriptionStatusActive,
	}}
	svc := newService(newStubClient(), subs)

	_, err := svc.CreateCheckoutSession(context.Background(), 42, checkoutdomain.CheckoutRequest{PlanCode: "pro"})
	require.ErrorIs(t, err, checkoutdomain.ErrCheckoutConflict)
}

func TestCreateCheckoutSessionAllowedAfterCancellation(t *testing.T) {
	subs := &stubSubscriptionService{current: &subscriptiondomain.Subscription{
		ID:        1,
		AccountID: 42,
		Status:    subscriptiondomain.SubscriptionStatusCanceled,
	}}
	svc := newService(newStubClient(), subs)

	_, err := svc.CreateCheckoutSession(context.Background(), 42, checkoutdomain.CheckoutRequest{PlanCode: "pro"})
	require.NoError(t, err)
}

func TestCreateCheckoutSessionWithoutClient(t *testing.T) {
	svc := newService(nil, &stubSubscriptionService{})

	_, err := svc.CreateCheckoutSession(context.Background(), 42, checkoutdomain.CheckoutRequest{PlanCode: "pro"})
	require.ErrorIs(t, err, checkoutdomain.ErrNotConfigured)
}

func TestCreateBillingPortalSession(t *testing.T) {
	customerID := "cus_1"
	subs := &stubSubscriptionService{current: &subscriptiondomain.Subscription{
		ID:                 1,
		AccountID:          42,
		ExternalCustomerID: &customerID,
		Status:             subscriptiondomain.SubscriptionStatusActive,
	}}
	client := newStubClient()
	svc := newService(client, subs)

	url, err := svc.CreateBillingPortalSession(context.Background(), 42, "https://app.example/billing")
	require.NoError(t, err)
	require.Equal(t, "https://portal.example/ps_1", url)
	require.Equal(t, "cus_1", *client.portals[0].Customer)
	require.Equal(t, "https://app.example/billing", *client.portals[0].ReturnURL)
}

func TestCreateBillingPortalSessionWithoutCustomer(t *testing.T) {
	svc := newService(newStubClient(), &stubSubscriptionService{})

	_, err := svc.CreateBillingPortalSession(context.Background(), 42, "https://app.example/billing")
	require.ErrorIs(t, err, checkoutdomain.ErrNoSubscription)
}

func TestCancelAtPeriodEndFlagsProcessorAndLocalRow(t *testing.T) {
	externalID := "sub_1"
	now := time.Now()
	subs := &stubSubscriptionService{current: &subscriptiondomain.Subscription{
		ID:                     1,
		AccountID:              42,
		ExternalSubscriptionID: &externalID,
		Status:                 subscriptiondomain.SubscriptionStatusActive,
		CurrentPeriodEnd:       now.AddDate(0, 1, 0),
	}}
	client := newStubClient()
	svc := newService(client, subs)

	require.NoError(t, svc.CancelAtPeriodEnd(context.Background(), 42))
	require.True(t, *client.subUpdates["sub_1"].CancelAtPeriodEnd)
	require.True(t, subs.cancelFlagged)
}
