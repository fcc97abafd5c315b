package context

import "context"

type requestIDKey struct{}
type accountIDKey struct{}

// WithRequestID stores the request ID on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request ID, or empty when unset.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(requestIDKey{}).(string); ok {
		return value
	}
	return ""
}

// WithAccountID stores the string form of the acting account for log enrichment.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	if accountID == "" {
		return ctx
	}
	return context.WithValue(ctx, accountIDKey{}, accountID)
}

// AccountIDFromContext returns the acting account ID, or empty when unset.
func AccountIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(accountIDKey{}).(string); ok {
		return value
	}
	return ""
}
