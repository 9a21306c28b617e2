// Package history tracks one analysis in a HistoryRepository and answers the
// questions the inference loop asks about previous generations.
package history

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
	"github.com/emiliopalmerini/abcsmc/internal/ports"
	"github.com/emiliopalmerini/abcsmc/internal/random"
)

// Last selects the most recent generation wherever a generation is expected.
const Last = -1

type History struct {
	repo ports.HistoryRepository
	// MinParticles is the smallest population that is stored. Smaller
	// populations end the run.
	MinParticles int

	mu         sync.RWMutex
	analysis   *domain.Analysis
	maxT       int
	totalSims  int
	modelProbs map[int][]float64
}

func New(repo ports.HistoryRepository) *History {
	return &History{repo: repo, MinParticles: 1, maxT: -1, modelProbs: map[int][]float64{}}
}

// Start stores a new analysis and makes it the tracked one.
func (h *History) Start(ctx context.Context, a *domain.Analysis) error {
	if a.StartTime.IsZero() {
		a.StartTime = time.Now().UTC()
	}
	if err := h.repo.CreateAnalysis(ctx, a); err != nil {
		return fmt.Errorf("failed to start analysis: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.analysis = a
	h.maxT = -1
	h.totalSims = 0
	h.modelProbs = map[int][]float64{}
	return nil
}

// Resume tracks an existing analysis.
func (h *History) Resume(ctx context.Context, id int64) error {
	a, err := h.repo.GetAnalysis(ctx, id)
	if err != nil {
		return err
	}
	pops, err := h.repo.ListPopulations(ctx, id)
	if err != nil {
		return err
	}
	total := 0
	maxT := -1
	for _, p := range pops {
		total += p.NrSimulations
		maxT = max(maxT, p.T)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.analysis = a
	h.maxT = maxT
	h.totalSims = total
	h.modelProbs = map[int][]float64{}
	return nil
}

func (h *History) Analysis() *domain.Analysis {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.analysis
}

func (h *History) ID() int64 {
	return h.Analysis().ID
}

func (h *History) NrModels() int {
	return len(h.Analysis().ModelNames)
}

// MaxT is the highest stored generation, -1 before the first.
func (h *History) MaxT() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.maxT
}

// T is the index of the next generation.
func (h *History) T() int {
	return h.MaxT() + 1
}

func (h *History) TotalNrSimulations() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalSims
}

func (h *History) resolve(t int) int {
	if t < 0 {
		return h.MaxT()
	}
	return t
}

// AppendPopulation stores pop unless it has fewer than MinParticles
// particles, and reports whether it was stored.
func (h *History) AppendPopulation(ctx context.Context, pop *domain.Population) (bool, error) {
	a := h.Analysis()
	if a == nil {
		return false, fmt.Errorf("no analysis started")
	}
	if len(pop.Particles) < max(h.MinParticles, 1) {
		return false, nil
	}
	if pop.EndTime.IsZero() {
		pop.EndTime = time.Now().UTC()
	}
	if err := h.repo.AppendPopulation(ctx, a.ID, pop, a.ModelNames); err != nil {
		return false, fmt.Errorf("failed to append population %d: %w", pop.T, err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.maxT = max(h.maxT, pop.T)
	h.totalSims += pop.NrSimulations
	h.modelProbs[pop.T] = pop.ModelProbabilities(len(a.ModelNames))
	return true, nil
}

// ModelProbabilities returns the probability of every model at generation t.
func (h *History) ModelProbabilities(ctx context.Context, t int) ([]float64, error) {
	t = h.resolve(t)
	h.mu.RLock()
	cached, ok := h.modelProbs[t]
	h.mu.RUnlock()
	if ok {
		return cached, nil
	}

	rows, err := h.repo.ListModelProbabilities(ctx, h.ID(), &t)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("generation %d: %w", t, domain.ErrNotFound)
	}
	probs := make([]float64, h.NrModels())
	for _, r := range rows {
		if r.M >= 0 && r.M < len(probs) {
			probs[r.M] = r.Probability
		}
	}
	h.mu.Lock()
	h.modelProbs[t] = probs
	h.mu.Unlock()
	return probs, nil
}

// NrModelsAlive counts the models with positive probability in the last
// generation.
func (h *History) NrModelsAlive(ctx context.Context) (int, error) {
	if h.MaxT() < 0 {
		return h.NrModels(), nil
	}
	probs, err := h.ModelProbabilities(ctx, Last)
	if err != nil {
		return 0, err
	}
	alive := 0
	for _, p := range probs {
		if p > 0 {
			alive++
		}
	}
	return alive, nil
}

// SampleFromModels draws a model index according to the probabilities of
// generation t.
func (h *History) SampleFromModels(ctx context.Context, t int, rng *rand.Rand) (int, error) {
	probs, err := h.ModelProbabilities(ctx, t)
	if err != nil {
		return 0, err
	}
	return random.DrawIndex(probs, rng), nil
}

// WeightedParticles returns the parameters of model m at generation t with
// weights normalized within the model.
func (h *History) WeightedParticles(ctx context.Context, t, m int) ([]domain.Parameter, []float64, error) {
	particles, err := h.Particles(ctx, t, &m)
	if err != nil {
		return nil, nil, err
	}
	pop := domain.Population{Particles: particles}
	params, weights := pop.ModelParticles(m)
	return params, weights, nil
}

// Particles returns the particles of generation t, optionally of model m only.
func (h *History) Particles(ctx context.Context, t int, m *int) ([]domain.Particle, error) {
	return h.repo.GetParticles(ctx, h.ID(), h.resolve(t), m)
}

// Population loads generation t.
func (h *History) Population(ctx context.Context, t int) (*domain.Population, error) {
	t = h.resolve(t)
	pops, err := h.Populations(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range pops {
		if s.T != t {
			continue
		}
		particles, err := h.Particles(ctx, t, nil)
		if err != nil {
			return nil, err
		}
		return &domain.Population{
			T:             s.T,
			Epsilon:       s.Epsilon,
			NrSimulations: s.NrSimulations,
			Particles:     particles,
			EndTime:       s.EndTime,
		}, nil
	}
	return nil, fmt.Errorf("generation %d: %w", t, domain.ErrNotFound)
}

func (h *History) Populations(ctx context.Context) ([]domain.PopulationSummary, error) {
	return h.repo.ListPopulations(ctx, h.ID())
}

// Done marks the analysis finished.
func (h *History) Done(ctx context.Context) error {
	end := time.Now().UTC()
	if err := h.repo.FinishAnalysis(ctx, h.ID(), end); err != nil {
		return fmt.Errorf("failed to finish analysis: %w", err)
	}
	h.mu.Lock()
	h.analysis.EndTime = &end
	h.mu.Unlock()
	return nil
}
