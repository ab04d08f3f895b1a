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
	sessionsOpened    metric.Int64Counter
	settlements       metric.Int64Counter
	notificationsSent metric.Int64Counter
	fanOutRows        metric.Int64Counter
	feedRefreshes     metric.Int64Counter
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
		name = "dinehall"
	}
	meter := provider.Meter(name)

	sessionsOpened, err := meter.Int64Counter("dinehall_sessions_opened_total")
	if err != nil {
		return nil, err
	}
	settlements, err := meter.Int64Counter("dinehall_settlements_total")
	if err != nil {
		return nil, err
	}
	notificationsSent, err := meter.Int64Counter("dinehall_notifications_sent_total")
	if err != nil {
		return nil, err
	}
	fanOutRows, err := meter.Int64Counter("dinehall_notification_fanout_rows_total")
	if err != nil {
		return nil, err
	}
	feedRefreshes, err := meter.Int64Counter("dinehall_feed_refreshes_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		sessionsOpened:    sessionsOpened,
		settlements:       settlements,
		notificationsSent: notificationsSent,
		fanOutRows:        fanOutRows,
		feedRefreshes:     feedRefreshes,
	}, nil
}

// RecordSessionOpened increments opened-session counts.
func (m *Metrics) RecordSessionOpened(ctx context.Context, restaurantID string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("restaurant_id", strings.TrimSpace(restaurantID)))
	m.sessionsOpened.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSettlement increments settlement counts per payment method.
func (m *Metrics) RecordSettlement(ctx context.Context, restaurantID, method string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("restaurant_id", strings.TrimSpace(restaurantID)),
		attribute.String("method", strings.TrimSpace(method)),
	)
	m.settlements.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordNotificationSent increments sent-notification counts.
func (m *Metrics) RecordNotificationSent(ctx context.Context, restaurantID, targetType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("restaurant_id", strings.TrimSpace(restaurantID)),
		attribute.String("target_type", strings.TrimSpace(targetType)),
	)
	m.notificationsSent.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordFanOutRows adds the number of inbox rows created by one send.
func (m *Metrics) RecordFanOutRows(ctx context.Context, restaurantID string, rows int64) {
	if m == nil || rows <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("restaurant_id", strings.TrimSpace(restaurantID)))
	m.fanOutRows.Add(ctx, rows, metric.WithAttributes(attrs...))
}

// RecordFeedRefresh increments feed-driven view refresh counts.
func (m *Metrics) RecordFeedRefresh(ctx context.Context, restaurantID string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("restaurant_id", strings.TrimSpace(restaurantID)))
	m.feedRefreshes.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"restaurant_id": {},
	"method":        {},
	"target_type":   {},
}

// FilterAttributes drops label keys outside the low-cardinality allow
// list so a misbehaving caller cannot blow up series counts.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		if strings.TrimSpace(attr.Value.AsString()) == "" {
			continue
		}
		out = append(out, attr)
	}
	return out
}
