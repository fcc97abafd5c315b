package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, plan *Plan) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Plan, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Plan, error)
	FindByExternalPriceID(ctx context.Context, db *gorm.DB, priceID string) (*Plan, error)
	FindActive(ctx context.Context, db *gorm.DB) ([]Plan, error)
}
