package ports

import (
	"context"
	"time"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
)

// HistoryRepository persists analyses and their populations.
type HistoryRepository interface {
	// CreateAnalysis stores a new analysis and sets its ID.
	CreateAnalysis(ctx context.Context, a *domain.Analysis) error
	GetAnalysis(ctx context.Context, id int64) (*domain.Analysis, error)
	ListAnalyses(ctx context.Context) ([]*domain.Analysis, error)
	FinishAnalysis(ctx context.Context, id int64, end time.Time) error
	DeleteAnalysis(ctx context.Context, id int64) error

	// AppendPopulation stores generation pop.T with one model row per name,
	// including models without particles.
	AppendPopulation(ctx context.Context, analysisID int64, pop *domain.Population, modelNames []string) error
	ListPopulations(ctx context.Context, analysisID int64) ([]domain.PopulationSummary, error)
	// ListModelProbabilities returns model probabilities of generation t, or
	// of all generations when t is nil.
	ListModelProbabilities(ctx context.Context, analysisID int64, t *int) ([]domain.ModelProbability, error)
	// GetParticles returns the particles of generation t with their weights
	// in the population, optionally restricted to model m.
	GetParticles(ctx context.Context, analysisID int64, t int, m *int) ([]domain.Particle, error)
	// MaxT returns the highest stored generation, or -1 if there is none.
	MaxT(ctx context.Context, analysisID int64) (int, error)
}
