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
	productsCreated metric.Int64Counter
	decisions       metric.Int64Counter
	deletions       metric.Int64Counter
	uploadFailures  metric.Int64Counter
	degradedReads   metric.Int64Counter
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
	meter := provider.Meter(serviceName(cfg))

	productsCreated, err := meter.Int64Counter("marketplace_products_created_total")
	if err != nil {
		return nil, err
	}
	decisions, err := meter.Int64Counter("marketplace_review_decisions_total")
	if err != nil {
		return nil, err
	}
	deletions, err := meter.Int64Counter("marketplace_product_deletions_total")
	if err != nil {
		return nil, err
	}
	uploadFailures, err := meter.Int64Counter("marketplace_upload_failures_total")
	if err != nil {
		return nil, err
	}
	degradedReads, err := meter.Int64Counter("marketplace_degraded_reads_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		productsCreated: productsCreated,
		decisions:       decisions,
		deletions:       deletions,
		uploadFailures:  uploadFailures,
		degradedReads:   degradedReads,
	}, nil
}

// RecordProductCreated counts a new submission and how many of its files landed.
func (m *Metrics) RecordProductCreated(ctx context.Context, attached bool) {
	if m == nil {
		return
	}
	outcome := "with_files"
	if !attached {
		outcome = "without_files"
	}
	m.productsCreated.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("outcome", outcome))...))
}

// RecordDecision counts review decisions by decision and outcome.
func (m *Metrics) RecordDecision(ctx context.Context, decision, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("decision", strings.TrimSpace(decision)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.decisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDeletion counts deletion sagas by cleanup mode and outcome.
func (m *Metrics) RecordDeletion(ctx context.Context, mode, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("mode", strings.TrimSpace(mode)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.deletions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordUploadFailure counts files skipped because the upload failed.
func (m *Metrics) RecordUploadFailure(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.uploadFailures.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("kind", strings.TrimSpace(kind)))...))
}

// RecordDegradedRead counts views served without remote metadata.
func (m *Metrics) RecordDegradedRead(ctx context.Context) {
	if m == nil {
		return
	}
	m.degradedReads.Add(ctx, 1)
}

func serviceName(cfg Config) string {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "marketplace"
	}
	return name
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
	"endpoint":    {},
	"method":      {},
	"status_code": {},
	"decision":    {},
	"outcome":     {},
	"mode":        {},
	"kind":        {},
	"operation":   {},
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
