package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
	"github.com/emiliopalmerini/abcsmc/internal/util"
	"github.com/emiliopalmerini/abcsmc/internal/web/templates"
)

const fanOut = 8

func (s *Server) handleAnalyses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rows, err := s.fetchAnalyses(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	_ = templates.Analyses(rows).Render(ctx, w)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathInt(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	detail, err := s.fetchAnalysis(ctx, int64(id))
	if err != nil {
		s.writeError(w, err)
		return
	}
	_ = templates.Analysis(detail).Render(ctx, w)
}

func (s *Server) handlePopulation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathInt(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	t, err := pathInt(r, "t")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	detail, err := s.fetchPopulation(ctx, int64(id), t)
	if err != nil {
		s.writeError(w, err)
		return
	}
	_ = templates.Population(detail).Render(ctx, w)
}

func (s *Server) fetchAnalyses(ctx context.Context) ([]templates.AnalysisRow, error) {
	analyses, err := s.repo.ListAnalyses(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]templates.AnalysisRow, len(analyses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOut)
	for i, a := range analyses {
		g.Go(func() error {
			maxT, err := s.repo.MaxT(gctx, a.ID)
			if err != nil {
				return err
			}
			rows[i] = analysisRow(a, maxT+1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

func analysisRow(a *domain.Analysis, generations int) templates.AnalysisRow {
	return templates.AnalysisRow{
		ID:          a.ID,
		UUID:        a.UUID,
		StartTime:   a.StartTime,
		EndTime:     a.EndTime,
		Models:      a.ModelNames,
		Generations: generations,
	}
}

func (s *Server) fetchAnalysis(ctx context.Context, id int64) (templates.AnalysisDetail, error) {
	var (
		analysis *domain.Analysis
		pops     []domain.PopulationSummary
		probs    []domain.ModelProbability
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		analysis, err = s.repo.GetAnalysis(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		pops, err = s.repo.ListPopulations(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		probs, err = s.repo.ListModelProbabilities(gctx, id, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return templates.AnalysisDetail{}, err
	}

	rows := make([]templates.PopulationRow, len(pops))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(fanOut)
	for i, p := range pops {
		rows[i] = templates.PopulationRow{
			T:                  p.T,
			Epsilon:            p.Epsilon,
			NrSimulations:      p.NrSimulations,
			NrParticles:        p.NrParticles,
			ModelProbabilities: make([]float64, len(analysis.ModelNames)),
			EndTime:            p.EndTime,
		}
		g.Go(func() error {
			particles, err := s.repo.GetParticles(gctx, id, p.T, nil)
			if err != nil {
				return err
			}
			weights := make([]float64, len(particles))
			for j, particle := range particles {
				weights[j] = particle.Weight
			}
			rows[i].EffectiveSampleSize = domain.EffectiveSampleSize(weights)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return templates.AnalysisDetail{}, err
	}

	index := make(map[int]int, len(rows))
	for i, r := range rows {
		index[r.T] = i
	}
	for _, mp := range probs {
		if i, ok := index[mp.T]; ok && mp.M >= 0 && mp.M < len(rows[i].ModelProbabilities) {
			rows[i].ModelProbabilities[mp.M] = mp.Probability
		}
	}

	detail := templates.AnalysisDetail{
		Analysis:    analysisRow(analysis, len(pops)),
		Distance:    analysis.DistanceConfig,
		Epsilon:     analysis.EpsilonConfig,
		Populations: rows,
	}
	for _, k := range analysis.ObservedSumStat.Keys() {
		detail.Observed = append(detail.Observed, templates.Stat{Name: k, Value: util.FormatFloat(analysis.ObservedSumStat[k])})
	}
	keys := make([]string, 0, len(analysis.Options))
	for k := range analysis.Options {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		detail.Options = append(detail.Options, templates.Stat{Name: k, Value: analysis.Options[k]})
	}
	return detail, nil
}

func (s *Server) fetchPopulation(ctx context.Context, id int64, t int) (templates.PopulationDetail, error) {
	var (
		analysis  *domain.Analysis
		pops      []domain.PopulationSummary
		particles []domain.Particle
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		analysis, err = s.repo.GetAnalysis(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		pops, err = s.repo.ListPopulations(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		particles, err = s.repo.GetParticles(gctx, id, t, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return templates.PopulationDetail{}, err
	}

	i := slices.IndexFunc(pops, func(p domain.PopulationSummary) bool { return p.T == t })
	if i < 0 {
		return templates.PopulationDetail{}, fmt.Errorf("generation %d: %w", t, domain.ErrNotFound)
	}

	pop := domain.Population{T: t, Particles: particles}
	probs := pop.ModelProbabilities(len(analysis.ModelNames))
	detail := templates.PopulationDetail{AnalysisID: id, T: t, Epsilon: pops[i].Epsilon}
	for m, name := range analysis.ModelNames {
		params, weights := pop.ModelParticles(m)
		mp := templates.ModelPosterior{M: m, Name: name, Probability: probs[m], NrParticles: len(params)}
		for _, ps := range domain.SummarizeParameters(params, weights) {
			mp.Parameters = append(mp.Parameters, templates.ParameterRow(ps))
		}
		detail.Models = append(detail.Models, mp)
	}
	return detail, nil
}

func pathInt(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, chi.URLParam(r, name))
	}
	return v, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.logger.Error("request failed", zap.Error(err))
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(v)
}
