package domain

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// WebhookAdapter verifies and normalizes raw provider webhook payloads.
type WebhookAdapter interface {
	// Verify checks the payload signature against the shared secret,
	// including the timestamp tolerance window.
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	// Parse returns ErrEventIgnored for event types the reconciler does
	// not consume.
	Parse(ctx context.Context, payload []byte) (*Event, error)
}

// Service reconciles normalized billing events into subscription state.
type Service interface {
	// HandleEvent applies one event inside a single transaction. The
	// returned outcome is what got recorded in the ledger; an error means
	// nothing was committed and the provider should retry.
	HandleEvent(ctx context.Context, event Event) (Outcome, error)
	// PurgeProcessedBefore removes ledger rows processed before the
	// cutoff, returning the number deleted.
	PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrEventIgnored     = errors.New("event_ignored")
)
