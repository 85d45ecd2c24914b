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

// Metrics exposes sponsorship domain instruments.
type Metrics struct {
	reservations   metric.Int64Counter
	transitions    metric.Int64Counter
	budgetCommits  metric.Int64Counter
	sponsoredMinor metric.Int64Counter
	transactions   metric.Int64Counter
	ledgerEntries  metric.Int64Counter
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

// New configures the domain instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "sponsorship"
	}
	meter := provider.Meter(name)

	reservations, err := meter.Int64Counter("sponsorship_reservations_total")
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("sponsorship_allocation_transitions_total")
	if err != nil {
		return nil, err
	}
	budgetCommits, err := meter.Int64Counter("sponsorship_budget_commits_total")
	if err != nil {
		return nil, err
	}
	sponsoredMinor, err := meter.Int64Counter("sponsorship_sponsored_amount_minor_total")
	if err != nil {
		return nil, err
	}
	transactions, err := meter.Int64Counter("sponsorship_transactions_recorded_total")
	if err != nil {
		return nil, err
	}
	ledgerEntries, err := meter.Int64Counter("sponsorship_ledger_entries_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		reservations:   reservations,
		transitions:    transitions,
		budgetCommits:  budgetCommits,
		sponsoredMinor: sponsoredMinor,
		transactions:   transactions,
		ledgerEntries:  ledgerEntries,
	}, nil
}

// RecordReservation counts reserve attempts by outcome (reserved, existing, unavailable).
func (m *Metrics) RecordReservation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.reservations.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("outcome", outcome))...))
}

// RecordTransition counts allocation status changes.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	)...))
}

// RecordBudgetCommit counts ledger commits and releases and the minor units committed.
func (m *Metrics) RecordBudgetCommit(ctx context.Context, operation string, amount int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", operation))
	m.budgetCommits.Add(ctx, 1, metric.WithAttributes(attrs...))
	if operation == "commit" && amount > 0 {
		m.sponsoredMinor.Add(ctx, amount, metric.WithAttributes(attrs...))
	}
}

// RecordTransaction counts recorded completed transactions.
func (m *Metrics) RecordTransaction(ctx context.Context, sponsored bool) {
	if m == nil {
		return
	}
	m.transactions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.Bool("sponsored", sponsored))...))
}

// RecordLedgerEntry counts journal entries by source.
func (m *Metrics) RecordLedgerEntry(ctx context.Context, sourceType string) {
	if m == nil {
		return
	}
	m.ledgerEntries.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("source_type", strings.TrimSpace(sourceType)))...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
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
	"outcome":     {},
	"from":        {},
	"to":          {},
	"operation":   {},
	"currency":    {},
	"sponsored":   {},
	"source_type": {},
}

// FilterAttributes strips labels outside the allow-list so user and rule ids never become series.
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
