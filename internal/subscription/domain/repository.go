package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByAccountID(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*Subscription, error)
	// FindCurrentByAccountID returns the newest non-terminal row, or nil.
	FindCurrentByAccountID(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*Subscription, error)
	FindCurrentByAccountIDForUpdate(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*Subscription, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Subscription, error)
	FindByExternalIDForUpdate(ctx context.Context, db *gorm.DB, externalID string) (*Subscription, error)
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	// LockStaleIncomplete claims INCOMPLETE rows created before cutoff for
	// the sweep job. Uses SKIP LOCKED so concurrent sweepers do not contend.
	LockStaleIncomplete(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Subscription, error)
	// FindTrialsEndingBefore returns TRIALING rows whose trial ends before
	// deadline and that have not been reminded yet.
	FindTrialsEndingBefore(ctx context.Context, db *gorm.DB, deadline time.Time, limit int) ([]Subscription, error)
	MarkTrialReminderSent(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
