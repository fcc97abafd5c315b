package domain

import (
	"time"

	"gorm.io/datatypes"
)

// UnlimitedQuota marks a plan whose monthly generation allowance is not capped.
const UnlimitedQuota int64 = -1

type Plan struct {
	ID                int64                      `json:"id" gorm:"primaryKey"`
	Code              string                     `json:"code" gorm:"type:text;not null;uniqueIndex:ux_plans_code"`
	Name              string                     `json:"name" gorm:"type:text;not null"`
	Description       *string                    `json:"description,omitempty" gorm:"type:text"`
	PriceCents        int64                      `json:"price_cents" gorm:"not null"`
	Currency          string                     `json:"currency" gorm:"type:text;not null;default:usd"`
	Interval          string                     `json:"interval" gorm:"column:billing_interval;type:text;not null;default:month"`
	DescriptionQuota  int64                      `json:"description_quota" gorm:"not null"`
	TrialDays         int                        `json:"trial_days" gorm:"not null;default:0"`
	Features          datatypes.JSONSlice[string] `json:"features,omitempty" gorm:"type:jsonb"`
	ExternalPriceID   string                     `json:"external_price_id" gorm:"type:text;not null;default:''"`
	ExternalProductID string                     `json:"external_product_id" gorm:"type:text;not null;default:''"`
	Active            bool                       `json:"active" gorm:"not null;default:true"`
	CreatedAt         time.Time                  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time                  `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Plan) TableName() string { return "plans" }

// Unlimited reports whether the plan places no cap on generations per period.
func (p Plan) Unlimited() bool { return p.DescriptionQuota == UnlimitedQuota }
