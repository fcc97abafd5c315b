package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	plandomain "github.com/listingcraft/listingcraft/internal/plan/domain"
	subscriptiondomain "github.com/listingcraft/listingcraft/internal/subscription/domain"
)

type usageSummary struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Count       int64     `json:"count"`
	Limit       int64     `json:"limit"`
	Remaining   int64     `json:"remaining"`
}

func (s *Server) GetSubscription(c *gin.Context) {
	account, ok := accountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	ctx := c.Request.Context()
	sub, err := s.subscriptionSvc.Get(ctx, account)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if sub == nil {
		AbortWithError(c, subscriptiondomain.ErrSubscriptionNotFound)
		return
	}

	plan, err := s.planSvc.Get(ctx, strconv.FormatInt(sub.PlanID, 10))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.usageForSubscription(c, sub, plan)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"subscription": sub,
			"plan":         plan,
			"usage":        summary,
		},
	})
}

func (s *Server) ChangePlan(c *gin.Context) {
	account, ok := accountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req struct {
		PlanID string `json:"plan_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PlanID) == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sub, err := s.subscriptionSvc.ChangePlan(c.Request.Context(), account, strings.TrimSpace(req.PlanID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	account, ok := accountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.checkoutSvc.CancelAtPeriodEnd(c.Request.Context(), account); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"cancel_at_period_end": true}})
}

// usageForSubscription reads the current period's counter. The stored period
// may lag when no event has arrived since renewal, so it is rolled forward
// in memory the same way admission does.
func (s *Server) usageForSubscription(c *gin.Context, sub *subscriptiondomain.Subscription, plan *plandomain.Response) (*usageSummary, error) {
	start, end := sub.CurrentPeriodStart, sub.CurrentPeriodEnd
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return nil, nil
	}
	now := s.clock.Now()
	for !now.Before(end) {
		start = end
		end = end.AddDate(0, 1, 0)
	}

	record, err := s.usageSvc.CurrentUsage(c.Request.Context(), sub.AccountID, start, end)
	if err != nil {
		return nil, err
	}

	remaining := plandomain.UnlimitedQuota
	if !plan.Unlimited() {
		remaining = plan.DescriptionQuota - record.Count
		if remaining < 0 {
			remaining = 0
		}
	}

	return &usageSummary{
		PeriodStart: start,
		PeriodEnd:   end,
		Count:       record.Count,
		Limit:       plan.DescriptionQuota,
		Remaining:   remaining,
	}, nil
}
