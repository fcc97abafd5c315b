package cache

import (
	"strings"
	"time"

	plandomain "github.com/listingcraft/listingcraft/internal/plan/domain"
)

const (
	defaultPlanTTL     = 5 * time.Minute
	defaultPlanListTTL = time.Minute

	activePlansKey = "active"
)

// PlanCache stores hot-path plan catalog lookups. The catalog only changes
// when reseeded, so writers must call Invalidate/InvalidateAll afterwards.
type PlanCache interface {
	GetPlan(key string) (plandomain.Plan, bool)
	SetPlan(key string, plan plandomain.Plan)
	GetActivePlans() ([]plandomain.Plan, bool)
	SetActivePlans(plans []plandomain.Plan)
	Invalidate(key string)
	InvalidateAll()
}

type planCache struct {
	plans   Cache[string, plandomain.Plan]
	lists   Cache[string, []plandomain.Plan]
	planTTL time.Duration
	listTTL time.Duration
}

// NewPlanCache returns an in-memory cache tuned for the plan catalog.
func NewPlanCache() PlanCache {
	return &planCache{
		plans:   NewTTLCache[string, plandomain.Plan](),
		lists:   NewTTLCache[string, []plandomain.Plan](),
		planTTL: defaultPlanTTL,
		listTTL: defaultPlanListTTL,
	}
}

func (c *planCache) GetPlan(key string) (plandomain.Plan, bool) {
	return c.plans.Get(cacheKey(key))
}

func (c *planCache) SetPlan(key string, plan plandomain.Plan) {
	if plan.ID == 0 {
		return
	}
	c.plans.Set(cacheKey(key), plan, c.planTTL)
}

func (c *planCache) GetActivePlans() ([]plandomain.Plan, bool) {
	return c.lists.Get(activePlansKey)
}

func (c *planCache) SetActivePlans(plans []plandomain.Plan) {
	if len(plans) == 0 {
		return
	}
	c.lists.Set(activePlansKey, plans, c.listTTL)
}

func (c *planCache) Invalidate(key string) {
	c.plans.Delete(cacheKey(key))
	c.lists.Delete(activePlansKey)
}

func (c *planCache) InvalidateAll() {
	c.plans.Purge()
	c.lists.Purge()
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
