package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/listingcraft/listingcraft/internal/subscription/domain"
)

const maxUsageHistory = 12

func (s *Server) GetUsage(c *gin.Context) {
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

	history, err := s.usageSvc.HistoryByAccount(ctx, account, maxUsageHistory)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"current": summary,
			"history": history,
		},
	})
}
