package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/listingcraft/listingcraft/internal/audit/domain"
	billingdomain "github.com/listingcraft/listingcraft/internal/billing/domain"
)

// HandleStripeWebhook verifies, parses, and reconciles one processor event.
// Rejected events still answer 200 so the processor stops redelivering; only
// a storage failure earns a retryable 5xx.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ctx := c.Request.Context()
	if err := s.webhookAdapter.Verify(ctx, payload, c.Request.Header); err != nil {
		s.auditSvc.Record(ctx, auditdomain.Entry{
			Kind:   auditdomain.KindInvalidSignature,
			Detail: err.Error(),
		})
		if s.obsMetrics != nil {
			s.obsMetrics.RecordWebhookRejection(ctx, "invalid_signature")
		}
		AbortWithError(c, billingdomain.ErrInvalidSignature)
		return
	}

	event, err := s.webhookAdapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, billingdomain.ErrEventIgnored) {
			c.JSON(http.StatusOK, gin.H{"outcome": "ignored"})
			return
		}
		if s.obsMetrics != nil {
			s.obsMetrics.RecordWebhookRejection(ctx, "invalid_payload")
		}
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	outcome, err := s.billingSvc.HandleEvent(ctx, *event)
	if err != nil {
		AbortWithError(c, ErrInternal)
		return
	}

	c.JSON(http.StatusOK, gin.H{"outcome": string(outcome)})
}
