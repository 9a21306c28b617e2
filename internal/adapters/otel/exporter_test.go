package otel

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/emiliopalmerini/abcsmc/internal/ports"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestExporter_ExportGeneration(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	e, err := NewExporterWithReader(ctx, reader)
	if err != nil {
		t.Fatalf("NewExporterWithReader failed: %v", err)
	}
	defer e.Close(ctx)

	for gen := 0; gen < 2; gen++ {
		err := e.ExportGeneration(ctx, &ports.GenerationMetrics{
			AnalysisUUID:        "run-1",
			T:                   gen,
			Epsilon:             1 / float64(gen+1),
			NrSimulations:       100,
			NrParticles:         20,
			AcceptanceRate:      0.2,
			EffectiveSampleSize: 18,
			ModelProbabilities:  map[string]float64{"a": 0.7, "b": 0.3},
			Duration:            time.Second,
		})
		if err != nil {
			t.Fatalf("ExportGeneration failed: %v", err)
		}
	}

	metrics := collect(t, reader)

	sims, ok := metrics["abcsmc_simulations_total"].Data.(metricdata.Sum[int64])
	if !ok || len(sims.DataPoints) != 1 || sims.DataPoints[0].Value != 200 {
		t.Errorf("expected 200 simulations, got %+v", metrics["abcsmc_simulations_total"].Data)
	}

	eps, ok := metrics["abcsmc_epsilon"].Data.(metricdata.Gauge[float64])
	if !ok || len(eps.DataPoints) != 1 || eps.DataPoints[0].Value != 0.5 {
		t.Errorf("expected epsilon gauge 0.5, got %+v", metrics["abcsmc_epsilon"].Data)
	}

	probs, ok := metrics["abcsmc_model_probability"].Data.(metricdata.Gauge[float64])
	if !ok || len(probs.DataPoints) != 2 {
		t.Fatalf("expected 2 model probability points, got %+v", metrics["abcsmc_model_probability"].Data)
	}
	for _, dp := range probs.DataPoints {
		model, _ := dp.Attributes.Value(attribute.Key("model"))
		if model.AsString() == "a" && dp.Value != 0.7 {
			t.Errorf("expected model a at 0.7, got %v", dp.Value)
		}
	}

	hist, ok := metrics["abcsmc_acceptance_rate"].Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 {
		t.Errorf("expected 2 acceptance observations, got %+v", metrics["abcsmc_acceptance_rate"].Data)
	}
}

func TestNewExporter_Disabled(t *testing.T) {
	if _, err := NewExporter(context.Background(), Config{Enabled: false, Endpoint: "localhost:4317"}); err == nil {
		t.Error("expected error for disabled exporter")
	}
	if (Config{Enabled: true}).Active() {
		t.Error("config without endpoint should be inactive")
	}
}

func TestNoOpExporter(t *testing.T) {
	e := NewNoOpExporter()
	if err := e.ExportGeneration(context.Background(), &ports.GenerationMetrics{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := e.Close(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
