package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/listingcraft/listingcraft/internal/clock"
	gatedomain "github.com/listingcraft/listingcraft/internal/gate/domain"
	listingdomain "github.com/listingcraft/listingcraft/internal/listing/domain"
	obsmetrics "github.com/listingcraft/listingcraft/internal/observability/metrics"
	"github.com/listingcraft/listingcraft/internal/providers/completion"
	"github.com/listingcraft/listingcraft/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxSlugAttempts = 50
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       listingdomain.Repository
	Gate       gatedomain.Service
	Completion completion.Provider
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       listingdomain.Repository
	gate       gatedomain.Service
	completion completion.Provider
	metrics    *obsmetrics.Metrics
}

func NewService(p Params) listingdomain.Service {
	return &service{
		db:         p.DB,
		log:        p.Log.Named("listing.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		gate:       p.Gate,
		completion: p.Completion,
		metrics:    p.ObsMetrics,
	}
}

func (s *service) Create(ctx context.Context, accountID snowflake.ID, req listingdomain.CreateListingRequest) (*listingdomain.Listing, error) {
	if err := validateCreate(&req); err != nil {
		return nil, err
	}

	decision := s.gate.Authorize(ctx, accountID)
	if !decision.Allowed {
		s.recordGeneration(ctx, string(req.Tone), "denied")
		return nil, &listingdomain.AccessDeniedError{Decision: decision}
	}

	now := s.clock.Now()
	listing := &listingdomain.Listing{
		ID:              s.genID.Generate(),
		AccountID:       accountID,
		PropertyType:    req.PropertyType,
		Title:           strings.TrimSpace(req.Title),
		Address:         strings.TrimSpace(req.Address),
		City:            strings.TrimSpace(req.City),
		State:           strings.TrimSpace(req.State),
		Country:         req.Country,
		ZipCode:         req.ZipCode,
		PriceCents:      req.PriceCents,
		Bedrooms:        req.Bedrooms,
		Bathrooms:       req.Bathrooms,
		SquareFeet:      req.SquareFeet,
		LotSize:         req.LotSize,
		YearBuilt:       req.YearBuilt,
		KeyFeatures:     req.KeyFeatures,
		Tone:            req.Tone,
		TargetAudience:  req.TargetAudience,
		AdditionalNotes: strings.TrimSpace(req.AdditionalNotes),
		GenerationCount: 0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if listing.Country == "" {
		listing.Country = "USA"
	}

	uniqueSlug, err := s.uniqueSlug(ctx, listing.Title, listing.City)
	if err != nil {
		return nil, err
	}
	listing.Slug = uniqueSlug

	if err := s.repo.Insert(ctx, s.db, listing); err != nil {
		return nil, err
	}

	// The quota unit was consumed by the gate above; a provider failure
	// does not refund it.
	if err := s.generate(ctx, listing); err != nil {
		s.log.Warn("description generation failed",
			zap.String("listing_id", listing.ID.String()),
			zap.Error(err),
		)
		s.recordGeneration(ctx, string(listing.Tone), "error")
		return listing, listingdomain.ErrGenerationFailed
	}

	s.recordGeneration(ctx, string(listing.Tone), "ok")
	s.log.Info("listing created",
		zap.String("listing_id", listing.ID.String()),
		zap.String("account_id", accountID.String()),
		zap.String("slug", listing.Slug),
		zap.Int64("remaining", decision.Remaining),
	)
	return listing, nil
}

func (s *service) Regenerate(ctx context.Context, accountID, listingID snowflake.ID) (*listingdomain.Listing, error) {
	listing, err := s.repo.FindByID(ctx, s.db, accountID, listingID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, listingdomain.ErrListingNotFound
	}

	decision := s.gate.Authorize(ctx, accountID)
	if !decision.Allowed {
		s.recordGeneration(ctx, string(listing.Tone), "denied")
		return nil, &listingdomain.AccessDeniedError{Decision: decision}
	}

	if err := s.generate(ctx, listing); err != nil {
		s.log.Warn("description regeneration failed",
			zap.String("listing_id", listing.ID.String()),
			zap.Error(err),
		)
		s.recordGeneration(ctx, string(listing.Tone), "error")
		return listing, listingdomain.ErrGenerationFailed
	}

	s.recordGeneration(ctx, string(listing.Tone), "ok")
	return listing, nil
}

// generate calls the completion provider and, on success, persists the new
// description and the bumped generation count.
func (s *service) generate(ctx context.Context, listing *listingdomain.Listing) error {
	description, err := s.completion.GenerateDescription(ctx, completion.Request{
		PropertyType:    string(listing.PropertyType),
		Title:           listing.Title,
		Address:         listing.Address,
		City:            listing.City,
		State:           listing.State,
		Country:         listing.Country,
		PriceCents:      listing.PriceCents,
		Bedrooms:        listing.Bedrooms,
		Bathrooms:       listing.Bathrooms,
		SquareFeet:      listing.SquareFeet,
		LotSize:         listing.LotSize,
		YearBuilt:       listing.YearBuilt,
		KeyFeatures:     listing.KeyFeatures,
		Tone:            string(listing.Tone),
		TargetAudience:  string(listing.TargetAudience),
		AdditionalNotes: listing.AdditionalNotes,
	})
	if err != nil {
		return err
	}

	listing.GeneratedDescription = description
	listing.GenerationCount++
	listing.UpdatedAt = s.clock.Now()
	return s.repo.Update(ctx, s.db, listing)
}

func (s *service) Get(ctx context.Context, accountID, listingID snowflake.ID) (*listingdomain.Listing, error) {
	listing, err := s.repo.FindByID(ctx, s.db, accountID, listingID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, listingdomain.ErrListingNotFound
	}
	return listing, nil
}

func (s *service) List(ctx context.Context, accountID snowflake.ID, req listingdomain.ListRequest) ([]*listingdomain.Listing, *pagination.PageInfo, error) {
	limit := req.Pagination.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var cursor *pagination.Cursor
	if req.Pagination.PageToken != "" {
		decoded, err := pagination.DecodeCursor(req.Pagination.PageToken)
		if err != nil {
			return nil, nil, err
		}
		cursor = decoded
	}

	listings, err := s.repo.ListByAccount(ctx, s.db, accountID, cursor, limit, req.FavoritesOnly)
	if err != nil {
		return nil, nil, err
	}

	page, info := pagination.BuildCursorPageInfo(listings, limit, func(l *listingdomain.Listing) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: l.ID.String()})
		return token
	})
	return page, info, nil
}

func (s *service) UpdateDescription(ctx context.Context, accountID, listingID snowflake.ID, description string) (*listingdomain.Listing, error) {
	listing, err := s.repo.FindByID(ctx, s.db, accountID, listingID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, listingdomain.ErrListingNotFound
	}

	listing.EditedDescription = strings.TrimSpace(description)
	listing.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, listing); err != nil {
		return nil, err
	}
	return listing, nil
}

func (s *service) ToggleFavorite(ctx context.Context, accountID, listingID snowflake.ID) (*listingdomain.Listing, error) {
	listing, err := s.repo.FindByID(ctx, s.db, accountID, listingID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, listingdomain.ErrListingNotFound
	}

	listing.IsFavorite = !listing.IsFavorite
	listing.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, listing); err != nil {
		return nil, err
	}
	return listing, nil
}

func (s *service) Delete(ctx context.Context, accountID, listingID snowflake.ID) error {
	deleted, err := s.repo.Delete(ctx, s.db, accountID, listingID)
	if err != nil {
		return err
	}
	if !deleted {
		return listingdomain.ErrListingNotFound
	}
	return nil
}

// uniqueSlug derives a URL slug from the title and city, appending a numeric
// suffix when the base form is already taken.
func (s *service) uniqueSlug(ctx context.Context, title, city string) (string, error) {
	base := slug.Make(title + " " + city)
	candidate := base
	for i := 2; i <= maxSlugAttempts; i++ {
		exists, err := s.repo.SlugExists(ctx, s.db, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	// Snowflake IDs are unique, so this candidate cannot collide.
	return fmt.Sprintf("%s-%s", base, s.genID.Generate().String()), nil
}

func (s *service) recordGeneration(ctx context.Context, tone, status string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordListingGeneration(ctx, tone, status)
}

func validateCreate(req *listingdomain.CreateListingRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return listingdomain.ErrInvalidTitle
	}
	if strings.TrimSpace(req.City) == "" {
		return listingdomain.ErrInvalidCity
	}
	if !req.PropertyType.Valid() {
		return listingdomain.ErrInvalidPropertyType
	}
	if req.Tone == "" {
		req.Tone = listingdomain.ToneProfessional
	}
	if !req.Tone.Valid() {
		return listingdomain.ErrInvalidTone
	}
	if req.TargetAudience == "" {
		req.TargetAudience = listingdomain.AudienceGeneral
	}
	if !req.TargetAudience.Valid() {
		return listingdomain.ErrInvalidAudience
	}
	return nil
}
