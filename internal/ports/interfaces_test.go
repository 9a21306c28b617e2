package ports_test

import (
	"testing"

	"github.com/emiliopalmerini/abcsmc/internal/adapters/memory"
	"github.com/emiliopalmerini/abcsmc/internal/adapters/otel"
	"github.com/emiliopalmerini/abcsmc/internal/adapters/turso"
	"github.com/emiliopalmerini/abcsmc/internal/ports"
)

// Compile-time interface conformance checks.
// These verify that concrete adapters properly implement their port interfaces.

func TestHistoryRepositoryConformance(t *testing.T) {
	var _ ports.HistoryRepository = (*turso.HistoryRepository)(nil)
	var _ ports.HistoryRepository = (*memory.HistoryRepository)(nil)
}

func TestMetricsExporterConformance(t *testing.T) {
	var _ ports.MetricsExporter = (*otel.Exporter)(nil)
	var _ ports.MetricsExporter = (*otel.NoOpExporter)(nil)
}
