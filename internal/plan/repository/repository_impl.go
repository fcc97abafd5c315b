package repository

import (
	"context"

	plandomain "github.com/listingcraft/listingcraft/internal/plan/domain"
	"gorm.io/gorm"
)

const planColumns = `id, code, name, description, price_cents, currency, billing_interval,
	 description_quota, trial_days, features, external_price_id, external_product_id,
	 active, created_at, updated_at`

type repo struct{}

func Provide() plandomain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, plan *plandomain.Plan) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO plans (
			id, code, name, description, price_cents, currency, billing_interval,
			description_quota, trial_days, features, external_price_id, external_product_id,
			active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			price_cents = excluded.price_cents,
			currency = excluded.currency,
			billing_interval = excluded.billing_interval,
			description_quota = excluded.description_quota,
			trial_days = excluded.trial_days,
			features = excluded.features,
			external_price_id = excluded.external_price_id,
			external_product_id = excluded.external_product_id,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		plan.ID,
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
		plan.CreatedAt,
		plan.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*plandomain.Plan, error) {
	var plan plandomain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT `+planColumns+` FROM plans WHERE id = ?`,
		id,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*plandomain.Plan, error) {
	var plan plandomain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT `+planColumns+` FROM plans WHERE code = ?`,
		code,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) FindByExternalPriceID(ctx context.Context, db *gorm.DB, priceID string) (*plandomain.Plan, error) {
	var plan plandomain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT `+planColumns+` FROM plans WHERE external_price_id = ? LIMIT 1`,
		priceID,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB) ([]plandomain.Plan, error) {
	var plans []plandomain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT ` + planColumns + `
		 FROM plans
		 WHERE active
		 ORDER BY price_cents ASC, id ASC`,
	).Scan(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}
