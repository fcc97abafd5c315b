package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	gatedomain "github.com/listingcraft/listingcraft/internal/gate/domain"
	"github.com/listingcraft/listingcraft/pkg/db/pagination"
)

type CreateListingRequest struct {
	PropertyType    PropertyType
	Title           string
	Address         string
	City            string
	State           string
	Country         string
	ZipCode         string
	PriceCents      int64
	Bedrooms        *int
	Bathrooms       *float64
	SquareFeet      *int
	LotSize         *int
	YearBuilt       *int
	KeyFeatures     []string
	Tone            Tone
	TargetAudience  TargetAudience
	AdditionalNotes string
}

type ListRequest struct {
	Pagination    pagination.Pagination
	FavoritesOnly bool
}

type Service interface {
	// Create charges one quota unit, persists the listing, then asks the
	// completion provider for a description. A provider failure still
	// returns the persisted row alongside ErrGenerationFailed; the quota
	// unit stays consumed.
	Create(ctx context.Context, accountID snowflake.ID, req CreateListingRequest) (*Listing, error)
	// Regenerate runs the same admission path as Create and bumps the
	// listing's generation count.
	Regenerate(ctx context.Context, accountID snowflake.ID, listingID snowflake.ID) (*Listing, error)
	Get(ctx context.Context, accountID, listingID snowflake.ID) (*Listing, error)
	List(ctx context.Context, accountID snowflake.ID, req ListRequest) ([]*Listing, *pagination.PageInfo, error)
	UpdateDescription(ctx context.Context, accountID, listingID snowflake.ID, description string) (*Listing, error)
	ToggleFavorite(ctx context.Context, accountID, listingID snowflake.ID) (*Listing, error)
	Delete(ctx context.Context, accountID, listingID snowflake.ID) error
}

var (
	ErrListingNotFound     = errors.New("listing_not_found")
	ErrInvalidTitle        = errors.New("invalid_title")
	ErrInvalidCity         = errors.New("invalid_city")
	ErrInvalidPropertyType = errors.New("invalid_property_type")
	ErrInvalidTone         = errors.New("invalid_tone")
	ErrInvalidAudience     = errors.New("invalid_target_audience")
	ErrGenerationFailed    = errors.New("generation_failed")
)

// AccessDeniedError wraps the gate decision so the transport layer can map
// the reason to a status code.
type AccessDeniedError struct {
	Decision gatedomain.Decision
}

func (e *AccessDeniedError) Error() string {
	return "access_denied: " + string(e.Decision.Reason)
}
