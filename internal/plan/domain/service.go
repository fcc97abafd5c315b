package domain

import (
	"context"
	"errors"
	"time"
)

// Service exposes the read-side plan catalog. Plans are seeded at boot and
// only change through reseeding, so every method is a lookup.
type Service interface {
	List(ctx context.Context) ([]Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	GetByCode(ctx context.Context, code string) (*Response, error)
	GetByExternalPriceID(ctx context.Context, priceID string) (*Response, error)
}

type Response struct {
	ID               string    `json:"id"`
	Code             string    `json:"code"`
	Name             string    `json:"name"`
	Description      *string   `json:"description,omitempty"`
	PriceCents       int64     `json:"price_cents"`
	Currency         string    `json:"currency"`
	Interval         string    `json:"interval"`
	DescriptionQuota int64     `json:"description_quota"`
	TrialDays        int       `json:"trial_days"`
	Features         []string  `json:"features,omitempty"`
	ExternalPriceID  string    `json:"external_price_id,omitempty"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Unlimited reports whether the plan places no cap on generations per period.
func (r Response) Unlimited() bool { return r.DescriptionQuota == UnlimitedQuota }

var (
	ErrNotFound    = errors.New("plan_not_found")
	ErrInvalidID   = errors.New("invalid_plan_id")
	ErrInvalidCode = errors.New("invalid_plan_code")
)
