package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	gateDecisions      metric.Int64Counter
	billingEvents      metric.Int64Counter
	quotaIncrements    metric.Int64Counter
	listingGenerations metric.Int64Counter
	webhookRejections  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "listingcraft"
	}
	meter := provider.Meter(name)

	gateDecisions, err := meter.Int64Counter("listingcraft_gate_decisions_total")
	if err != nil {
		return nil, err
	}
	billingEvents, err := meter.Int64Counter("listingcraft_billing_events_total")
	if err != nil {
		return nil, err
	}
	quotaIncrements, err := meter.Int64Counter("listingcraft_quota_increments_total")
	if err != nil {
		return nil, err
	}
	listingGenerations, err := meter.Int64Counter("listingcraft_listing_generations_total")
	if err != nil {
		return nil, err
	}
	webhookRejections, err := meter.Int64Counter("listingcraft_webhook_rejections_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gateDecisions:      gateDecisions,
		billingEvents:      billingEvents,
		quotaIncrements:    quotaIncrements,
		listingGenerations: listingGenerations,
		webhookRejections:  webhookRejections,
	}, nil
}

// RecordGateDecision increments gate decision counts by outcome and reason.
func (m *Metrics) RecordGateDecision(ctx context.Context, decision, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("decision", strings.TrimSpace(decision)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.gateDecisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBillingEvent increments processed billing event counts.
func (m *Metrics) RecordBillingEvent(ctx context.Context, eventType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.billingEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordQuotaIncrement increments successful quota charges.
func (m *Metrics) RecordQuotaIncrement(ctx context.Context) {
	if m == nil {
		return
	}
	m.quotaIncrements.Add(ctx, 1)
}

// RecordListingGeneration increments description generation counts.
func (m *Metrics) RecordListingGeneration(ctx context.Context, tone, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("tone", strings.TrimSpace(tone)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.listingGenerations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordWebhookRejection increments rejected webhook counts by reason.
func (m *Metrics) RecordWebhookRejection(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.webhookRejections.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"decision":    {},
	"reason":      {},
	"event_type":  {},
	"outcome":     {},
	"tone":        {},
	"status":      {},
	"endpoint":    {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
