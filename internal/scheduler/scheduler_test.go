package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/listingcraft/listingcraft/internal/billing/domain"
	"github.com/listingcraft/listingcraft/internal/clock"
	"github.com/listingcraft/listingcraft/internal/config"
	notificationdomain "github.com/listingcraft/listingcraft/internal/notification/domain"
	subscriptiondomain "github.com/listingcraft/listingcraft/internal/subscription/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubSubscriptionService struct {
	sweepCutoffs  []time.Time
	sweepResults  []int
	trialDeadline time.Time
	trials        []subscriptiondomain.Subscription
	remindersSent []snowflake.ID
	markErr       error
}

func (s *stubSubscriptionService) Get(ctx context.Context, accountID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return nil, nil
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
	return nil, nil
}

func (s *stubSubscriptionService) SweepStaleIncomplete(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	s.sweepCutoffs = append(s.sweepCutoffs, cutoff)
	if len(s.sweepResults) == 0 {
		return 0, nil
	}
	result := s.sweepResults[0]
	s.sweepResults = s.sweepResults[1:]
	return result, nil
}

func (s *stubSubscriptionService) TrialsEndingBefore(ctx context.Context, deadline time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	s.trialDeadline = deadline
	return s.trials, nil
}

func (s *stubSubscriptionService) MarkTrialReminderSent(ctx context.Context, id snowflake.ID) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.remindersSent = append(s.remindersSent, id)
	return nil
}

type stubBillingService struct {
	purgeCutoff time.Time
	purged      int64
}

func (s *stubBillingService) HandleEvent(ctx context.Context, event billingdomain.Event) (billingdomain.Outcome, error) {
	return billingdomain.OutcomeProcessed, nil
}

func (s *stubBillingService) PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.purgeCutoff = cutoff
	return s.purged, nil
}

type reminderRecorder struct {
	emails  []string
	failFor string
}

func (n *reminderRecorder) SubscriptionConfirmed(ctx context.Context, email, planName string) error {
	return nil
}
func (n *reminderRecorder) SubscriptionCanceled(ctx context.Context, email string) error { return nil }
func (n *reminderRecorder) PaymentFailed(ctx context.Context, email string) error        { return nil }
func (n *reminderRecorder) PaymentReceipt(ctx context.Context, receipt notificationdomain.Receipt) error {
	return nil
}
func (n *reminderRecorder) QuotaWarning(ctx context.Context, warning notificationdomain.QuotaWarning) error {
	return nil
}
func (n *reminderRecorder) TrialEndingSoon(ctx context.Context, email string, trialEnd time.Time) error {
	if email == n.failFor {
		return errors.New("smtp unavailable")
	}
	n.emails = append(n.emails, email)
	return nil
}

func email(s string) *string { return &s }

type fixture struct {
	clock    *clock.FakeClock
	subs     *stubSubscriptionService
	billing  *stubBillingService
	reminder *reminderRecorder
	sched    *Scheduler
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{
		clock:    clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)),
		subs:     &stubSubscriptionService{},
		billing:  &stubBillingService{},
		reminder: &reminderRecorder{},
	}

	sched, err := New(Params{
		Log:             zap.NewNop(),
		GenID:           node,
		Clock:           f.clock,
		Policy:          config.NewStaticPolicyHolder(config.DefaultAccessPolicy()),
		SubscriptionSvc: f.subs,
		BillingSvc:      f.billing,
		NotificationSvc: f.reminder,
		Config:          cfg,
	})
	require.NoError(t, err)
	f.sched = sched
	return f
}

func TestSweepIncompleteUsesPolicyCutoff(t *testing.T) {
	f := newFixture(t, Config{BatchSize: 10})
	f.subs.sweepResults = []int{10, 3}

	processed, err := f.sched.SweepIncompleteJob(context.Background())
	require.NoError(t, err)
	require.Equal(t, 13, processed)

	// Full first batch triggers a second pass; short batch stops.
	require.Len(t, f.subs.sweepCutoffs, 2)
	wantCutoff := f.clock.Now().Add(-24 * time.Hour)
	require.Equal(t, wantCutoff, f.subs.sweepCutoffs[0])
}

func TestTrialRemindersMarksOnlySent(t *testing.T) {
	f := newFixture(t, Config{})
	trialEnd := f.clock.Now().AddDate(0, 0, 2)
	empty := ""
	f.subs.trials = []subscriptiondomain.Subscription{
		{ID: 1, BillingEmail: email("a@example.com"), TrialEnd: &trialEnd},
		{ID: 2, BillingEmail: nil, TrialEnd: &trialEnd},
		{ID: 3, BillingEmail: &empty, TrialEnd: &trialEnd},
		{ID: 4, BillingEmail: email("b@example.com"), TrialEnd: &trialEnd},
		{ID: 5, BillingEmail: email("c@example.com"), TrialEnd: nil},
	}
	f.reminder.failFor = "b@example.com"

	sent, err := f.sched.TrialRemindersJob(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, sent)

	require.Equal(t, f.clock.Now().AddDate(0, 0, 3), f.subs.trialDeadline)
	require.Equal(t, []string{"a@example.com"}, f.reminder.emails)
	require.Equal(t, []snowflake.ID{1}, f.subs.remindersSent)
}

func TestPurgeBillingEventsUsesRetention(t *testing.T) {
	f := newFixture(t, Config{})
	f.billing.purged = 7

	processed, err := f.sched.PurgeBillingEventsJob(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, processed)
	require.Equal(t, f.clock.Now().AddDate(0, 0, -90), f.billing.purgeCutoff)
}

func TestRunOnceHonorsEnabledJobs(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{"purge_billing_events"}})
	f.billing.purged = 1
	trialEnd := f.clock.Now()
	f.subs.trials = []subscriptiondomain.Subscription{
		{ID: 1, BillingEmail: email("a@example.com"), TrialEnd: &trialEnd},
	}

	require.NoError(t, f.sched.RunOnce(context.Background()))

	require.False(t, f.billing.purgeCutoff.IsZero())
	require.Empty(t, f.subs.sweepCutoffs)
	require.Empty(t, f.reminder.emails)
}

func TestRunOnceJoinsJobErrors(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{"trial_reminders"}})
	trialEnd := f.clock.Now()
	f.subs.trials = []subscriptiondomain.Subscription{
		{ID: 1, BillingEmail: email("a@example.com"), TrialEnd: &trialEnd},
	}
	f.subs.markErr = errors.New("write failed")

	err := f.sched.RunOnce(context.Background())
	require.ErrorContains(t, err, "trial_reminders")
}
