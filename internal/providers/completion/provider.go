// Package completion wraps the chat-completion API that writes listing
// descriptions. The adapter speaks the DeepSeek-compatible wire format; the
// model, base URL, and key come from configuration.
package completion

import (
	"context"
	"errors"
	"fmt"
)

type Request struct {
	PropertyType    string
	Title           string
	Address         string
	City            string
	State           string
	Country         string
	PriceCents      int64
	Bedrooms        *int
	Bathrooms       *float64
	SquareFeet      *int
	LotSize         *int
	YearBuilt       *int
	KeyFeatures     []string
	Tone            string
	TargetAudience  string
	AdditionalNotes string
}

type Provider interface {
	GenerateDescription(ctx context.Context, req Request) (string, error)
}

var ErrNotConfigured = errors.New("completion_not_configured")

// APIError carries the provider's status and message for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("completion api error: status %d: %s", e.StatusCode, e.Message)
}
