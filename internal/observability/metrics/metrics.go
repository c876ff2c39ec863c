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
	storeOutcomes   metric.Int64Counter
	scoringCalls    metric.Int64Counter
	customerUpdates metric.Int64Counter
	summaryRequests metric.Int64Counter
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
		name = "storepulse"
	}
	meter := provider.Meter(name)

	storeOutcomes, err := meter.Int64Counter("storepulse_analysis_store_outcomes_total")
	if err != nil {
		return nil, err
	}
	scoringCalls, err := meter.Int64Counter("storepulse_scoring_calls_total")
	if err != nil {
		return nil, err
	}
	customerUpdates, err := meter.Int64Counter("storepulse_customer_segment_updates_total")
	if err != nil {
		return nil, err
	}
	summaryRequests, err := meter.Int64Counter("storepulse_dashboard_summary_requests_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		storeOutcomes:   storeOutcomes,
		scoringCalls:    scoringCalls,
		customerUpdates: customerUpdates,
		summaryRequests: summaryRequests,
	}, nil
}

// RecordStoreOutcome counts one per-store analysis result.
func (m *Metrics) RecordStoreOutcome(ctx context.Context, trigger, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("trigger", strings.TrimSpace(trigger)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.storeOutcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordScoringCall counts outbound scoring requests by outcome.
func (m *Metrics) RecordScoringCall(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.scoringCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCustomerUpdates adds the number of customers re-segmented in one store run.
func (m *Metrics) RecordCustomerUpdates(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.customerUpdates.Add(ctx, int64(count))
}

// RecordSummaryRequest counts dashboard summary lookups by cache status.
func (m *Metrics) RecordSummaryRequest(ctx context.Context, cacheStatus string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("cache", strings.TrimSpace(cacheStatus)))
	m.summaryRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"trigger":     {},
	"outcome":     {},
	"cache":       {},
	"endpoint":    {},
	"status_code": {},
	"reason":      {},
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
