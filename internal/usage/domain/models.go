// Package domain contains the per-period usage ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageRecord counts billable generations for one account within one billing
// period. Rows are materialized lazily at zero and never reset: a new period
// gets a new row and old rows stay behind as history.
type UsageRecord struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	AccountID   snowflake.ID `gorm:"not null;uniqueIndex:ux_usage_records_account_period"`
	PeriodStart time.Time    `gorm:"not null;uniqueIndex:ux_usage_records_account_period"`
	PeriodEnd   time.Time    `gorm:"not null"`
	Count       int64        `gorm:"not null;default:0"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }
