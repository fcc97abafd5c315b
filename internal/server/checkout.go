package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/listingcraft/listingcraft/internal/checkout/domain"
)

func (s *Server) CreateCheckoutSession(c *gin.Context) {
	account, ok := accountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req struct {
		PlanCode   string `json:"plan_code"`
		SuccessURL string `json:"success_url"`
		CancelURL  string `json:"cancel_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PlanCode) == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	url, err := s.checkoutSvc.CreateCheckoutSession(c.Request.Context(), account, checkoutdomain.CheckoutRequest{
		PlanCode:   strings.TrimSpace(req.PlanCode),
		SuccessURL: strings.TrimSpace(req.SuccessURL),
		CancelURL:  strings.TrimSpace(req.CancelURL),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"url": url}})
}

func (s *Server) CreateBillingPortalSession(c *gin.Context) {
	account, ok := accountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req struct {
		ReturnURL string `json:"return_url"`
	}
	// An empty body is fine; the configured default return URL applies.
	_ = c.ShouldBindJSON(&req)

	returnURL := strings.TrimSpace(req.ReturnURL)
	if returnURL == "" {
		returnURL = s.cfg.BillingPortalReturnURL
	}

	url, err := s.checkoutSvc.CreateBillingPortalSession(c.Request.Context(), account, returnURL)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"url": url}})
}
