package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/listingcraft/listingcraft/internal/notification/domain"
	"github.com/listingcraft/listingcraft/internal/providers/email"
	"github.com/listingcraft/listingcraft/internal/providers/pdf"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	Email email.Provider
	PDF   pdf.Provider
}

type Service struct {
	log   *zap.Logger
	email email.Provider
	pdf   pdf.Provider
}

func NewService(p Params) domain.Notifier {
	return &Service{
		log:   p.Log.Named("notification"),
		email: p.Email,
		pdf:   p.PDF,
	}
}

var (
	confirmedTmpl = template.Must(template.New("confirmed").Parse(`
<p>Hi,</p>
<p>Your <strong>{{.PlanName}}</strong> subscription is now active. You can start generating listing descriptions right away.</p>
<p>The ListingCraft team</p>`))

	canceledTmpl = template.Must(template.New("canceled").Parse(`
<p>Hi,</p>
<p>Your subscription has been canceled. You will keep access until the end of the current billing period.</p>
<p>The ListingCraft team</p>`))

	paymentFailedTmpl = template.Must(template.New("payment_failed").Parse(`
<p>Hi,</p>
<p>We could not collect your latest payment. Please update your payment method from the billing portal to keep your account active.</p>
<p>The ListingCraft team</p>`))

	receiptTmpl = template.Must(template.New("receipt").Parse(`
<p>Hi,</p>
<p>Thanks for your payment of <strong>{{.Amount}}</strong> for your {{.PlanName}} subscription. Your receipt is attached.</p>
<p>Your plan renews on {{.RenewsOn}}.</p>
<p>The ListingCraft team</p>`))

	quotaWarningTmpl = template.Must(template.New("quota_warning").Parse(`
<p>Hi,</p>
<p>You have used <strong>{{.Used}} of {{.Quota}}</strong> listing descriptions on your {{.PlanName}} plan this billing period.</p>
<p>Upgrade your plan if you need more room.</p>
<p>The ListingCraft team</p>`))

	trialEndingTmpl = template.Must(template.New("trial_ending").Parse(`
<p>Hi,</p>
<p>Your free trial ends on <strong>{{.TrialEnd}}</strong>. Add a payment method before then to keep generating descriptions without interruption.</p>
<p>The ListingCraft team</p>`))
)

func (s *Service) SubscriptionConfirmed(ctx context.Context, to, planName string) error {
	body, err := render(confirmedTmpl, map[string]string{"PlanName": planName})
	if err != nil {
		return err
	}
	return s.email.Send(ctx, []string{to}, "Your ListingCraft subscription is active", body)
}

func (s *Service) SubscriptionCanceled(ctx context.Context, to string) error {
	body, err := render(canceledTmpl, nil)
	if err != nil {
		return err
	}
	return s.email.Send(ctx, []string{to}, "Your ListingCraft subscription was canceled", body)
}

func (s *Service) PaymentFailed(ctx context.Context, to string) error {
	body, err := render(paymentFailedTmpl, nil)
	if err != nil {
		return err
	}
	return s.email.Send(ctx, []string{to}, "Action needed: payment failed", body)
}

func (s *Service) PaymentReceipt(ctx context.Context, receipt domain.Receipt) error {
	amount := formatAmount(receipt.AmountCents, receipt.Currency)
	body, err := render(receiptTmpl, map[string]string{
		"Amount":   amount,
		"PlanName": receipt.PlanName,
		"RenewsOn": receipt.PeriodEnd.Format("January 2, 2006"),
	})
	if err != nil {
		return err
	}

	doc, err := s.pdf.GenerateReceipt(ctx, pdf.ReceiptData{
		ReceiptNumber: fmt.Sprintf("LC-%d", time.Now().UTC().Unix()),
		DatePaid:      time.Now().UTC().Format("January 2, 2006"),
		ServicePeriod: "through " + receipt.PeriodEnd.Format("January 2, 2006"),
		BillToEmail:   receipt.Email,
		PlanName:      receipt.PlanName,
		Amount:        amount,
	})
	if err != nil {
		// Receipt mail still goes out without the attachment.
		s.log.Warn("receipt pdf generation failed", zap.Error(err))
		return s.email.Send(ctx, []string{receipt.Email}, "Your ListingCraft receipt", body)
	}

	return s.email.SendWithAttachment(ctx, []string{receipt.Email}, "Your ListingCraft receipt", body, email.Attachment{
		Filename:    "receipt.pdf",
		ContentType: "application/pdf",
		Content:     doc,
	})
}

func (s *Service) QuotaWarning(ctx context.Context, warning domain.QuotaWarning) error {
	body, err := render(quotaWarningTmpl, map[string]interface{}{
		"Used":     warning.Used,
		"Quota":    warning.Quota,
		"PlanName": warning.PlanName,
	})
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("You have used %d%% of your listing quota", int(warning.Threshold*100))
	return s.email.Send(ctx, []string{warning.Email}, subject, body)
}

func (s *Service) TrialEndingSoon(ctx context.Context, to string, trialEnd time.Time) error {
	body, err := render(trialEndingTmpl, map[string]string{
		"TrialEnd": trialEnd.Format("January 2, 2006"),
	})
	if err != nil {
		return err
	}
	return s.email.Send(ctx, []string{to}, "Your ListingCraft trial ends soon", body)
}

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render notification template: %w", err)
	}
	return buf.String(), nil
}

func formatAmount(cents int64, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("$%d.%02d %s", cents/100, cents%100, currency)
}
