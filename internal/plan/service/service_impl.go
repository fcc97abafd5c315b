package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/listingcraft/listingcraft/internal/cache"
	plandomain "github.com/listingcraft/listingcraft/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  plandomain.Repository
	Cache cache.PlanCache
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  plandomain.Repository
	cache cache.PlanCache
}

func NewService(p Params) plandomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("plan.service"),
		repo:  p.Repo,
		cache: p.Cache,
	}
}

// List implements domain.Service. Ordering is ascending price, id as the
// tie-break, so the catalog renders the same way every time.
func (s *Service) List(ctx context.Context) ([]plandomain.Response, error) {
	if plans, ok := s.cache.GetActivePlans(); ok {
		return toResponses(plans), nil
	}

	plans, err := s.repo.FindActive(ctx, s.db)
	if err != nil {
		return nil, err
	}
	s.cache.SetActivePlans(plans)
	return toResponses(plans), nil
}

// Get implements domain.Service.
func (s *Service) Get(ctx context.Context, id string) (*plandomain.Response, error) {
	trimmed := strings.TrimSpace(id)
	planID, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || planID == 0 {
		return nil, plandomain.ErrInvalidID
	}

	if plan, ok := s.cache.GetPlan(trimmed); ok {
		return toResponse(plan), nil
	}

	plan, err := s.repo.FindByID(ctx, s.db, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrNotFound
	}
	s.cache.SetPlan(trimmed, *plan)
	return toResponse(*plan), nil
}

// GetByCode implements domain.Service.
func (s *Service) GetByCode(ctx context.Context, code string) (*plandomain.Response, error) {
	trimmed := strings.ToLower(strings.TrimSpace(code))
	if trimmed == "" {
		return nil, plandomain.ErrInvalidCode
	}

	if plan, ok := s.cache.GetPlan("code:" + trimmed); ok {
		return toResponse(plan), nil
	}

	plan, err := s.repo.FindByCode(ctx, s.db, trimmed)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrNotFound
	}
	s.cache.SetPlan("code:"+trimmed, *plan)
	return toResponse(*plan), nil
}

// GetByExternalPriceID implements domain.Service.
func (s *Service) GetByExternalPriceID(ctx context.Context, priceID string) (*plandomain.Response, error) {
	trimmed := strings.TrimSpace(priceID)
	if trimmed == "" {
		return nil, plandomain.ErrInvalidID
	}

	if plan, ok := s.cache.GetPlan("price:" + trimmed); ok {
		return toResponse(plan), nil
	}

	plan, err := s.repo.FindByExternalPriceID(ctx, s.db, trimmed)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrNotFound
	}
	s.cache.SetPlan("price:"+trimmed, *plan)
	return toResponse(*plan), nil
}

func toResponse(plan plandomain.Plan) *plandomain.Response {
	resp := plandomain.Response{
		ID:               strconv.FormatInt(plan.ID, 10),
		Code:             plan.Code,
		Name:             plan.Name,
		Description:      plan.Description,
		PriceCents:       plan.PriceCents,
		Currency:         plan.Currency,
		Interval:         plan.Interval,
		DescriptionQuota: plan.DescriptionQuota,
		TrialDays:        plan.TrialDays,
		ExternalPriceID:  plan.ExternalPriceID,
		Active:           plan.Active,
		CreatedAt:        plan.CreatedAt,
		UpdatedAt:        plan.UpdatedAt,
	}
	if len(plan.Features) > 0 {
		resp.Features = append([]string(nil), plan.Features...)
	}
	return &resp
}

func toResponses(plans []plandomain.Plan) []plandomain.Response {
	out := make([]plandomain.Response, 0, len(plans))
	for _, plan := range plans {
		out = append(out, *toResponse(plan))
	}
	return out
}
