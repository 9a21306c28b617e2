package ports

import (
	"context"
	"time"
)

// MetricsExporter exports inference progress to an external observability system.
type MetricsExporter interface {
	// ExportGeneration exports the metrics of a completed generation.
	ExportGeneration(ctx context.Context, m *GenerationMetrics) error
	// Close shuts down the exporter and flushes any pending metrics.
	Close(ctx context.Context) error
}

// GenerationMetrics summarizes one generation of an analysis.
type GenerationMetrics struct {
	AnalysisID   int64
	AnalysisUUID string
	T            int

	Epsilon             float64
	NrSimulations       int64
	NrParticles         int64
	AcceptanceRate      float64
	EffectiveSampleSize float64
	ModelProbabilities  map[string]float64

	Duration time.Duration
	EndedAt  time.Time
}
