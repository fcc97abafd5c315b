package repository

import (
	"context"
	"strconv"

	"github.com/bwmarrin/snowflake"
	listingdomain "github.com/listingcraft/listingcraft/internal/listing/domain"
	"github.com/listingcraft/listingcraft/pkg/db/pagination"
	"gorm.io/gorm"
)

const listingColumns = `id, account_id, property_type, title, address, city, state, country, zip_code,
	 price_cents, bedrooms, bathrooms, square_feet, lot_size, year_built, key_features,
	 tone, target_audience, additional_notes, generated_description, edited_description,
	 slug, is_favorite, generation_count, created_at, updated_at`

type repo struct{}

func Provide() listingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, listing *listingdomain.Listing) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO listings (
			id, account_id, property_type, title, address, city, state, country, zip_code,
			price_cents, bedrooms, bathrooms, square_feet, lot_size, year_built, key_features,
			tone, target_audience, additional_notes, generated_description, edited_description,
			slug, is_favorite, generation_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		listing.ID,
		listing.AccountID,
		listing.PropertyType,
		listing.Title,
		listing.Address,
		listing.City,
		listing.State,
		listing.Country,
		listing.ZipCode,
		listing.PriceCents,
		listing.Bedrooms,
		listing.Bathrooms,
		listing.SquareFeet,
		listing.LotSize,
		listing.YearBuilt,
		listing.KeyFeatures,
		listing.Tone,
		listing.TargetAudience,
		listing.AdditionalNotes,
		listing.GeneratedDescription,
		listing.EditedDescription,
		listing.Slug,
		listing.IsFavorite,
		listing.GenerationCount,
		listing.CreatedAt,
		listing.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, accountID, listingID snowflake.ID) (*listingdomain.Listing, error) {
	var listing listingdomain.Listing
	err := db.WithContext(ctx).Raw(
		`SELECT `+listingColumns+`
		 FROM listings
		 WHERE account_id = ? AND id = ?`,
		accountID,
		listingID,
	).Scan(&listing).Error
	if err != nil {
		return nil, err
	}
	if listing.ID == 0 {
		return nil, nil
	}
	return &listing, nil
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, cursor *pagination.Cursor, limit int, favoritesOnly bool) ([]*listingdomain.Listing, error) {
	query := `SELECT ` + listingColumns + `
		 FROM listings
		 WHERE account_id = ?`
	args := []any{accountID}

	if favoritesOnly {
		query += ` AND is_favorite = ?`
		args = append(args, true)
	}
	if cursor != nil && cursor.ID != "" {
		afterID, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err == nil {
			query += ` AND id < ?`
			args = append(args, afterID)
		}
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit+1)

	var listings []*listingdomain.Listing
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, listing *listingdomain.Listing) error {
	return db.WithContext(ctx).Exec(
		`UPDATE listings
		 SET generated_description = ?, edited_description = ?, is_favorite = ?,
		     generation_count = ?, updated_at = ?
		 WHERE account_id = ? AND id = ?`,
		listing.GeneratedDescription,
		listing.EditedDescription,
		listing.IsFavorite,
		listing.GenerationCount,
		listing.UpdatedAt,
		listing.AccountID,
		listing.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, accountID, listingID snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM listings WHERE account_id = ? AND id = ?`,
		accountID,
		listingID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM listings WHERE slug = ?`,
		slug,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
