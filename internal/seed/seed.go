// Package seed bootstraps the plan catalog so a fresh install can sell
// subscriptions without manual setup.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/listingcraft/listingcraft/internal/plan/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func defaultPlans() []plandomain.Plan {
	return []plandomain.Plan{
		{
			Code:             "basic",
			Name:             "Basic",
			PriceCents:       2900,
			Currency:         "usd",
			Interval:         "month",
			DescriptionQuota: 50,
			TrialDays:        14,
			Features: datatypes.NewJSONSlice([]string{
				"50 AI listing descriptions per month",
				"All tones and property types",
				"Email support",
			}),
			Active: true,
		},
		{
			Code:             "pro",
			Name:             "Pro",
			PriceCents:       7900,
			Currency:         "usd",
			Interval:         "month",
			DescriptionQuota: 200,
			TrialDays:        14,
			Features: datatypes.NewJSONSlice([]string{
				"200 AI listing descriptions per month",
				"All tones and property types",
				"Priority support",
			}),
			Active: true,
		},
		{
			Code:             "agency",
			Name:             "Agency",
			PriceCents:       19900,
			Currency:         "usd",
			Interval:         "month",
			DescriptionQuota: plandomain.UnlimitedQuota,
			TrialDays:        14,
			Features: datatypes.NewJSONSlice([]string{
				"Unlimited AI listing descriptions",
				"All tones and property types",
				"Priority support",
			}),
			Active: true,
		},
	}
}

// EnsurePlans inserts the catalog plans that do not exist yet. Existing rows
// are left untouched so operators can adjust pricing without seeds
// overwriting it.
func EnsurePlans(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, plan := range defaultPlans() {
			err := tx.Exec(
				`INSERT INTO plans (
					id, code, name, description, price_cents, currency, billing_interval,
					description_quota, trial_days, features, external_price_id,
					external_product_id, active, created_at, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (code) DO NOTHING`,
				node.Generate(),
				plan.Code,
				plan.Name,
				plan.Description,
				plan.PriceCents,
				plan.Currency,
				plan.Interval,
				plan.DescriptionQuota,
				plan.TrialDays,
				plan.Features,
				plan.ExternalPriceID,
				plan.ExternalProductID,
				plan.Active,
				now,
				now,
			).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}
