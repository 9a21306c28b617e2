package otel

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/emiliopalmerini/abcsmc/internal/ports"
)

const (
	serviceName    = "abcsmc"
	serviceVersion = "1.0.0"
)

// Exporter exports generation metrics to an OTEL Collector.
type Exporter struct {
	provider         *sdkmetric.MeterProvider
	meter            metric.Meter
	generationsTotal metric.Int64Counter
	simulationsTotal metric.Int64Counter
	acceptanceHist   metric.Float64Histogram
	durationHist     metric.Float64Histogram
	essHist          metric.Float64Histogram
	registration     metric.Registration

	mu          sync.Mutex
	epsilon     map[attribute.Distinct]observation
	probability map[attribute.Distinct]observation
}

type observation struct {
	attrs attribute.Set
	value float64
}

// NewExporter creates a new OTEL metrics exporter.
func NewExporter(ctx context.Context, cfg Config) (*Exporter, error) {
	if !cfg.Active() {
		return nil, fmt.Errorf("OTEL exporter is disabled or endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	e, err := NewExporterWithReader(ctx, sdkmetric.NewPeriodicReader(exp))
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(e.provider)
	return e, nil
}

// NewExporterWithReader builds the instruments on a meter provider reading
// through reader.
func NewExporterWithReader(ctx context.Context, reader sdkmetric.Reader) (*Exporter, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	e := &Exporter{
		provider:    provider,
		meter:       provider.Meter(serviceName),
		epsilon:     map[attribute.Distinct]observation{},
		probability: map[attribute.Distinct]observation{},
	}

	if e.generationsTotal, err = e.meter.Int64Counter(
		"abcsmc_generations_total",
		metric.WithDescription("Total number of completed generations"),
		metric.WithUnit("{generation}"),
	); err != nil {
		return nil, fmt.Errorf("creating generations counter: %w", err)
	}

	if e.simulationsTotal, err = e.meter.Int64Counter(
		"abcsmc_simulations_total",
		metric.WithDescription("Total number of model evaluations"),
		metric.WithUnit("{simulation}"),
	); err != nil {
		return nil, fmt.Errorf("creating simulations counter: %w", err)
	}

	if e.acceptanceHist, err = e.meter.Float64Histogram(
		"abcsmc_acceptance_rate",
		metric.WithDescription("Accepted particles per evaluation"),
	); err != nil {
		return nil, fmt.Errorf("creating acceptance histogram: %w", err)
	}

	if e.durationHist, err = e.meter.Float64Histogram(
		"abcsmc_generation_duration_seconds",
		metric.WithDescription("Wall time per generation"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	if e.essHist, err = e.meter.Float64Histogram(
		"abcsmc_effective_sample_size",
		metric.WithDescription("Effective sample size of the population"),
	); err != nil {
		return nil, fmt.Errorf("creating ESS histogram: %w", err)
	}

	epsilonGauge, err := e.meter.Float64ObservableGauge(
		"abcsmc_epsilon",
		metric.WithDescription("Acceptance threshold of the latest generation"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating epsilon gauge: %w", err)
	}
	probabilityGauge, err := e.meter.Float64ObservableGauge(
		"abcsmc_model_probability",
		metric.WithDescription("Model probability of the latest generation"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating model probability gauge: %w", err)
	}
	e.registration, err = e.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		for _, obs := range e.epsilon {
			o.ObserveFloat64(epsilonGauge, obs.value, metric.WithAttributeSet(obs.attrs))
		}
		for _, obs := range e.probability {
			o.ObserveFloat64(probabilityGauge, obs.value, metric.WithAttributeSet(obs.attrs))
		}
		return nil
	}, epsilonGauge, probabilityGauge)
	if err != nil {
		return nil, fmt.Errorf("registering gauge callback: %w", err)
	}

	return e, nil
}

// ExportGeneration exports the metrics of a completed generation.
func (e *Exporter) ExportGeneration(ctx context.Context, m *ports.GenerationMetrics) error {
	analysis := attribute.String("analysis_uuid", m.AnalysisUUID)
	opt := metric.WithAttributes(analysis)

	e.generationsTotal.Add(ctx, 1, opt)
	e.simulationsTotal.Add(ctx, m.NrSimulations, opt)
	e.acceptanceHist.Record(ctx, m.AcceptanceRate, opt)
	e.durationHist.Record(ctx, m.Duration.Seconds(), opt)
	e.essHist.Record(ctx, m.EffectiveSampleSize, opt)

	e.mu.Lock()
	defer e.mu.Unlock()
	set := attribute.NewSet(analysis)
	e.epsilon[set.Equivalent()] = observation{set, m.Epsilon}
	for name, p := range m.ModelProbabilities {
		set := attribute.NewSet(analysis, attribute.String("model", name))
		e.probability[set.Equivalent()] = observation{set, p}
	}
	return nil
}

// Close shuts down the exporter and flushes any pending metrics.
func (e *Exporter) Close(ctx context.Context) error {
	if e.registration != nil {
		_ = e.registration.Unregister()
	}
	return e.provider.Shutdown(ctx)
}
