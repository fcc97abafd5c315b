package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert writes the ledger row, returning false when an event with
	// the same EventID already exists.
	Insert(ctx context.Context, db *gorm.DB, event *BillingEvent) (bool, error)
	FindByEventID(ctx context.Context, db *gorm.DB, eventID string, forUpdate bool) (*BillingEvent, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome Outcome, lastError *string, processedAt time.Time) error
	DeleteProcessedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
}
