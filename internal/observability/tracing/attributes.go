package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

// allowedSpanKeys is the allowlist of span attribute keys. Everything else
// is dropped so spans never carry account identifiers or payload fragments.
var allowedSpanKeys = map[attribute.Key]struct{}{
	"http.method":             {},
	"http.route":              {},
	"http.status_code":        {},
	"http.server_duration_ms": {},
	"request_id":              {},
	"correlation_id":          {},
	"event_type":              {},
	"outcome":                 {},
	"decision":                {},
	"reason":                  {},
	"tone":                    {},
	"status":                  {},
	"job":                     {},
}

// ExtractContext restores remote trace context from an inbound carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// SafeAttributes filters span attributes down to the low-cardinality allowlist.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedSpanKeys[attr.Key]; ok {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}

const maxSpanErrorLen = 160

// SafeError flattens and truncates an error before it is recorded on a span,
// so SQL text and request payloads never leave the process via traces.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	if len(msg) > maxSpanErrorLen {
		msg = msg[:maxSpanErrorLen] + "..."
	}
	return errors.New(msg)
}
