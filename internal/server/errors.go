package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/listingcraft/listingcraft/internal/billing/domain"
	checkoutdomain "github.com/listingcraft/listingcraft/internal/checkout/domain"
	gatedomain "github.com/listingcraft/listingcraft/internal/gate/domain"
	listingdomain "github.com/listingcraft/listingcraft/internal/listing/domain"
	plandomain "github.com/listingcraft/listingcraft/internal/plan/domain"
	subscriptiondomain "github.com/listingcraft/listingcraft/internal/subscription/domain"
	usagedomain "github.com/listingcraft/listingcraft/internal/usage/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var denied *listingdomain.AccessDeniedError
	if errors.As(err, &denied) {
		return accessDeniedStatus(denied.Decision.Reason), errorPayload{
			Type:    "access_denied",
			Code:    string(denied.Decision.Reason),
			Message: "access denied",
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    err.Error(),
			Message: "validation error",
		}
	case errors.Is(err, billingdomain.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "webhook signature verification failed",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    err.Error(),
			Message: "conflict",
		}
	case errors.Is(err, checkoutdomain.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "billing is not configured",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// accessDeniedStatus maps a gate denial to the status the client can act on:
// exhausted quota is a payment problem, a missing subscription is a
// permission problem, and an unanswerable check is an outage.
func accessDeniedStatus(reason gatedomain.Reason) int {
	switch reason {
	case gatedomain.ReasonQuotaExceeded:
		return http.StatusPaymentRequired
	case gatedomain.ReasonNoActiveSubscription:
		return http.StatusForbidden
	case gatedomain.ReasonSystemUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusForbidden
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, listingdomain.ErrInvalidTitle),
		errors.Is(err, listingdomain.ErrInvalidCity),
		errors.Is(err, listingdomain.ErrInvalidPropertyType),
		errors.Is(err, listingdomain.ErrInvalidTone),
		errors.Is(err, listingdomain.ErrInvalidAudience),
		errors.Is(err, subscriptiondomain.ErrInvalidAccount),
		errors.Is(err, subscriptiondomain.ErrInvalidPlan),
		errors.Is(err, subscriptiondomain.ErrPlanNotSubscribable),
		errors.Is(err, checkoutdomain.ErrPlanNotPurchasable),
		errors.Is(err, plandomain.ErrInvalidID),
		errors.Is(err, usagedomain.ErrInvalidPeriod):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, plandomain.ErrNotFound),
		errors.Is(err, listingdomain.ErrListingNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, checkoutdomain.ErrPlanNotFound),
		errors.Is(err, checkoutdomain.ErrNoSubscription),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, subscriptiondomain.ErrSubscriptionConflict),
		errors.Is(err, subscriptiondomain.ErrChangePlanNotAllowed),
		errors.Is(err, subscriptiondomain.ErrSubscriptionTerminated),
		errors.Is(err, checkoutdomain.ErrCheckoutConflict):
		return true
	default:
		return false
	}
}

func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return "server_error", payload.Type
	}
	return "client_error", payload.Type
}
