package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/listingcraft/listingcraft/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, listing *Listing) error
	FindByID(ctx context.Context, db *gorm.DB, accountID, listingID snowflake.ID) (*Listing, error)
	// ListByAccount over-fetches limit+1 rows so the caller can derive
	// the has-more flag, newest first.
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, cursor *pagination.Cursor, limit int, favoritesOnly bool) ([]*Listing, error)
	Update(ctx context.Context, db *gorm.DB, listing *Listing) error
	Delete(ctx context.Context, db *gorm.DB, accountID, listingID snowflake.ID) (bool, error)
	SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error)
}
