// Package memory provides an in-process HistoryRepository for tests and
// throwaway runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
)

type HistoryRepository struct {
	mu       sync.RWMutex
	nextID   int64
	analyses map[int64]*domain.Analysis
	pops     map[int64]map[int]*storedPopulation
}

type storedPopulation struct {
	summary domain.PopulationSummary
	models  []domain.ModelProbability
	parts   []domain.Particle
}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{
		analyses: map[int64]*domain.Analysis{},
		pops:     map[int64]map[int]*storedPopulation{},
	}
}

func (r *HistoryRepository) CreateAnalysis(_ context.Context, a *domain.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	a.ID = r.nextID
	c := *a
	r.analyses[a.ID] = &c
	r.pops[a.ID] = map[int]*storedPopulation{}
	return nil
}

func (r *HistoryRepository) GetAnalysis(_ context.Context, id int64) (*domain.Analysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.analyses[id]
	if !ok {
		return nil, fmt.Errorf("analysis %d: %w", id, domain.ErrNotFound)
	}
	c := *a
	return &c, nil
}

func (r *HistoryRepository) ListAnalyses(_ context.Context) ([]*domain.Analysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Analysis, 0, len(r.analyses))
	for _, a := range r.analyses {
		c := *a
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *HistoryRepository) FinishAnalysis(_ context.Context, id int64, end time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.analyses[id]
	if !ok {
		return fmt.Errorf("analysis %d: %w", id, domain.ErrNotFound)
	}
	a.EndTime = &end
	return nil
}

func (r *HistoryRepository) DeleteAnalysis(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.analyses[id]; !ok {
		return fmt.Errorf("analysis %d: %w", id, domain.ErrNotFound)
	}
	delete(r.analyses, id)
	delete(r.pops, id)
	return nil
}

func (r *HistoryRepository) AppendPopulation(_ context.Context, analysisID int64, pop *domain.Population, modelNames []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pops, ok := r.pops[analysisID]
	if !ok {
		return fmt.Errorf("analysis %d: %w", analysisID, domain.ErrNotFound)
	}
	if _, dup := pops[pop.T]; dup {
		return fmt.Errorf("population %d already stored", pop.T)
	}
	for i, p := range pop.Particles {
		if p.M < 0 || p.M >= len(modelNames) {
			return fmt.Errorf("particle %d has model index %d outside [0, %d)", i, p.M, len(modelNames))
		}
	}

	s := &storedPopulation{
		summary: domain.PopulationSummary{
			T:             pop.T,
			Epsilon:       pop.Epsilon,
			NrSimulations: pop.NrSimulations,
			NrParticles:   len(pop.Particles),
			EndTime:       pop.EndTime,
		},
	}
	for m, p := range pop.ModelProbabilities(len(modelNames)) {
		s.models = append(s.models, domain.ModelProbability{T: pop.T, M: m, Name: modelNames[m], Probability: p})
	}
	for _, p := range pop.Particles {
		s.parts = append(s.parts, copyParticle(p))
	}
	pops[pop.T] = s
	return nil
}

func copyParticle(p domain.Particle) domain.Particle {
	c := p
	c.Parameter = p.Parameter.Copy()
	c.AcceptedDistances = append([]float64(nil), p.AcceptedDistances...)
	c.AcceptedSumStats = make([]domain.SumStat, len(p.AcceptedSumStats))
	for i, s := range p.AcceptedSumStats {
		c.AcceptedSumStats[i] = s.Copy()
	}
	c.Accepted = true
	return c
}

func (r *HistoryRepository) sortedGenerations(analysisID int64) []int {
	ts := make([]int, 0, len(r.pops[analysisID]))
	for t := range r.pops[analysisID] {
		ts = append(ts, t)
	}
	sort.Ints(ts)
	return ts
}

func (r *HistoryRepository) ListPopulations(_ context.Context, analysisID int64) ([]domain.PopulationSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.PopulationSummary
	for _, t := range r.sortedGenerations(analysisID) {
		out = append(out, r.pops[analysisID][t].summary)
	}
	return out, nil
}

func (r *HistoryRepository) ListModelProbabilities(_ context.Context, analysisID int64, t *int) ([]domain.ModelProbability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ModelProbability
	for _, gen := range r.sortedGenerations(analysisID) {
		if t != nil && *t != gen {
			continue
		}
		out = append(out, r.pops[analysisID][gen].models...)
	}
	return out, nil
}

func (r *HistoryRepository) GetParticles(_ context.Context, analysisID int64, t int, m *int) ([]domain.Particle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.pops[analysisID][t]
	if !ok {
		return nil, nil
	}
	var out []domain.Particle
	for _, p := range s.parts {
		if m != nil && p.M != *m {
			continue
		}
		out = append(out, copyParticle(p))
	}
	return out, nil
}

func (r *HistoryRepository) MaxT(_ context.Context, analysisID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	maxT := -1
	for t := range r.pops[analysisID] {
		maxT = max(maxT, t)
	}
	return maxT, nil
}
