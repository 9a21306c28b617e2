// Package abc implements Approximate Bayesian Computation with Sequential
// Monte Carlo (Toni & Stumpf) for joint model selection and parameter
// inference.
package abc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
	"github.com/emiliopalmerini/abcsmc/internal/epsilon"
	"github.com/emiliopalmerini/abcsmc/internal/history"
	"github.com/emiliopalmerini/abcsmc/internal/model"
	"github.com/emiliopalmerini/abcsmc/internal/ports"
	"github.com/emiliopalmerini/abcsmc/internal/sampler"
)

// ErrNoValidProposal is returned when no proposal with positive prior density
// could be drawn from the previous generation.
var ErrNoValidProposal = errors.New("no valid proposal")

const maxProposalAttempts = 100000

// StopReason explains why Run returned.
type StopReason string

const (
	StopMaxPopulations   StopReason = "max_populations"
	StopEmptyPopulation  StopReason = "empty_population"
	StopMinimumEpsilon   StopReason = "minimum_epsilon"
	StopSingleModelAlive StopReason = "single_model_alive"
	StopSimulationBudget StopReason = "simulation_budget"
	StopSamplerStopped   StopReason = "sampler_stopped"
)

func incomplete(opts sampler.Options) StopReason {
	if opts.MaxEval > 0 {
		return StopSimulationBudget
	}
	return StopSamplerStopped
}

// RunOptions bound a call to Run.
type RunOptions struct {
	// NrSamplesPerParticle holds B_t, the repeated simulations per proposal,
	// for each generation to run. Its length is the number of generations.
	NrSamplesPerParticle []int
	// MaxNrPopulations is used with B_t = 1 when NrSamplesPerParticle is empty.
	MaxNrPopulations int
	MinimumEpsilon   float64
	// MaxTotalNrSimulations stops the run once the analysis spent this many
	// evaluations. Zero means no limit.
	MaxTotalNrSimulations int
}

func (o RunOptions) samplesPerParticle() ([]int, error) {
	if len(o.NrSamplesPerParticle) > 0 {
		for _, b := range o.NrSamplesPerParticle {
			if b < 1 {
				return nil, fmt.Errorf("samples per particle must be positive, got %d", b)
			}
		}
		return o.NrSamplesPerParticle, nil
	}
	if o.MaxNrPopulations < 1 {
		return nil, fmt.Errorf("need NrSamplesPerParticle or a positive MaxNrPopulations")
	}
	b := make([]int, o.MaxNrPopulations)
	for i := range b {
		b[i] = 1
	}
	return b, nil
}

type ABCSMC struct {
	cfg      Config
	history  *history.History
	observed domain.SumStat
	logger   *zap.Logger

	priorSample []domain.Particle
	alive       []bool
	stopReason  StopReason
}

// New validates cfg and fills in its defaults.
func New(cfg Config) (*ABCSMC, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.setDefaults()
	h := history.New(cfg.Repository)
	h.MinParticles = cfg.MinParticlesPerPopulation
	return &ABCSMC{cfg: cfg, history: h, logger: cfg.Logger}, nil
}

func (a *ABCSMC) History() *history.History {
	return a.history
}

// StopReason is the reason the last Run stopped.
func (a *ABCSMC) StopReason() StopReason {
	return a.stopReason
}

// PriorSample simulates PopulationSize particles from the prior. The sample
// is computed once and cached.
func (a *ABCSMC) PriorSample(ctx context.Context) ([]domain.Particle, error) {
	if a.priorSample != nil {
		return a.priorSample, nil
	}
	simulate := func(ctx context.Context, rng *rand.Rand) (domain.Particle, error) {
		m := a.cfg.ModelPrior.Rvs(rng)
		theta := a.cfg.ParameterPriors[m].Rvs(rng)
		stats, err := model.SummaryStatistics(ctx, a.cfg.Models[m], rng, theta, a.cfg.Summary)
		if err != nil {
			return domain.Particle{}, err
		}
		return domain.Particle{
			M:                m,
			Parameter:        theta,
			Weight:           1,
			AcceptedSumStats: []domain.SumStat{stats},
			NrSimulations:    1,
		}, nil
	}
	sample, err := a.cfg.Sampler.SampleUntilNAccepted(ctx, a.cfg.PopulationSize, simulate, sampler.Options{AllAccepted: true})
	if err != nil {
		return nil, fmt.Errorf("failed to sample from prior: %w", err)
	}
	a.priorSample = sample.Accepted()
	return a.priorSample, nil
}

// calibrate initializes the distance and the epsilon schedule on the prior
// sample.
func (a *ABCSMC) calibrate(ctx context.Context) error {
	prior, err := a.PriorSample(ctx)
	if err != nil {
		return err
	}
	stats := make([]domain.SumStat, len(prior))
	for i, p := range prior {
		stats[i] = p.AcceptedSumStats[0]
	}
	if err := a.cfg.Distance.Initialize(stats, a.observed); err != nil {
		return fmt.Errorf("failed to initialize distance: %w", err)
	}
	distances := make([]float64, len(stats))
	for i, s := range stats {
		if distances[i], err = a.cfg.Distance.Distance(s, a.observed); err != nil {
			return fmt.Errorf("failed to compute prior distance: %w", err)
		}
	}
	if err := a.cfg.Epsilon.Initialize(distances, nil); err != nil {
		return err
	}
	return nil
}

// NewAnalysis calibrates on the prior sample and starts a new analysis of the
// observed summary statistics. groundTruthModel and groundTruthParameter are
// recorded only; pass -1 and nil when unknown.
func (a *ABCSMC) NewAnalysis(ctx context.Context, observed domain.SumStat, groundTruthModel int, groundTruthParameter domain.Parameter, options map[string]string) (*history.History, error) {
	a.observed = observed.Copy()
	if err := a.calibrate(ctx); err != nil {
		return nil, err
	}

	distanceJSON, err := json.Marshal(a.cfg.Distance.Config())
	if err != nil {
		return nil, fmt.Errorf("failed to encode distance: %w", err)
	}
	epsilonJSON, err := json.Marshal(a.cfg.Epsilon.Config())
	if err != nil {
		return nil, fmt.Errorf("failed to encode epsilon: %w", err)
	}
	opts := map[string]string{
		"population_size":           strconv.Itoa(a.cfg.PopulationSize),
		"max_attempts_per_particle": strconv.Itoa(a.cfg.MaxAttemptsPerParticle),
		"min_particles":             strconv.Itoa(a.cfg.MinParticlesPerPopulation),
		"probability_to_stay":       strconv.FormatFloat(a.cfg.ModelKernel.ProbabilityToStay, 'g', -1, 64),
	}
	for k, v := range options {
		opts[k] = v
	}

	analysis := &domain.Analysis{
		UUID:                 uuid.NewString(),
		StartTime:            time.Now().UTC(),
		ModelNames:           a.cfg.ModelNames(),
		GroundTruthModel:     groundTruthModel,
		GroundTruthParameter: groundTruthParameter,
		ObservedSumStat:      a.observed,
		Options:              opts,
		DistanceConfig:       string(distanceJSON),
		EpsilonConfig:        string(epsilonJSON),
	}
	if err := a.history.Start(ctx, analysis); err != nil {
		return nil, err
	}
	a.cfg.Sampler.SetAnalysisID(analysis.UUID)
	a.logger.Info("analysis started",
		zap.Int64("id", analysis.ID),
		zap.String("uuid", analysis.UUID),
		zap.Strings("models", analysis.ModelNames))
	return a.history, nil
}

// Resume continues a stored analysis. The observed data are read from the
// history; the distance is recalibrated on a fresh prior sample and the
// epsilon schedule is restored from the stored generations.
func (a *ABCSMC) Resume(ctx context.Context, id int64) (*history.History, error) {
	if err := a.history.Resume(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to resume analysis %d: %w", id, err)
	}
	analysis := a.history.Analysis()
	if len(analysis.ModelNames) != len(a.cfg.Models) {
		return nil, fmt.Errorf("analysis %d has %d models, configuration has %d", id, len(analysis.ModelNames), len(a.cfg.Models))
	}
	a.observed = analysis.ObservedSumStat
	if err := a.calibrate(ctx); err != nil {
		return nil, err
	}

	if r, ok := a.cfg.Epsilon.(epsilon.Resumable); ok {
		pops, err := a.history.Populations(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range pops {
			r.SetValue(p.T, p.Epsilon)
		}
	}
	if maxT := a.history.MaxT(); maxT >= 0 {
		last, err := a.history.Population(ctx, maxT)
		if err != nil {
			return nil, err
		}
		distances, weights := last.Distances()
		if err := a.cfg.Epsilon.Update(maxT, distances, weights); err != nil {
			return nil, err
		}
	}
	a.cfg.Sampler.SetAnalysisID(analysis.UUID)
	a.logger.Info("analysis resumed", zap.Int64("id", id), zap.Int("next_generation", a.history.T()))
	return a.history, nil
}

// Run samples generations until a stop criterion is met. It can be called
// repeatedly and continues where the previous call stopped.
func (a *ABCSMC) Run(ctx context.Context, opts RunOptions) (*history.History, error) {
	if a.history.Analysis() == nil {
		return nil, fmt.Errorf("no analysis: call NewAnalysis or Resume first")
	}
	bt, err := opts.samplesPerParticle()
	if err != nil {
		return nil, err
	}

	t0 := a.history.T()
	a.stopReason = StopMaxPopulations
	for i, b := range bt {
		t := t0 + i
		stop, err := a.generation(ctx, t, b, opts)
		if err != nil {
			return nil, fmt.Errorf("generation %d: %w", t, err)
		}
		if stop != "" {
			a.stopReason = stop
			break
		}
	}
	a.logger.Info("run finished",
		zap.String("reason", string(a.stopReason)),
		zap.Int("populations", a.history.MaxT()+1),
		zap.Int("total_simulations", a.history.TotalNrSimulations()))

	if err := a.history.Done(ctx); err != nil {
		return nil, err
	}
	return a.history, nil
}

func (a *ABCSMC) generation(ctx context.Context, t, b int, opts RunOptions) (StopReason, error) {
	start := time.Now()
	eps, err := a.cfg.Epsilon.Value(t)
	if err != nil {
		return "", err
	}
	var prevProbs []float64
	if t > 0 {
		if prevProbs, err = a.history.ModelProbabilities(ctx, t-1); err != nil {
			return "", err
		}
		if err := a.fitTransitions(ctx, t); err != nil {
			return "", err
		}
	}

	var sopts sampler.Options
	if opts.MaxTotalNrSimulations > 0 {
		sopts.MaxEval = opts.MaxTotalNrSimulations - a.history.TotalNrSimulations()
		if sopts.MaxEval <= 0 {
			return StopSimulationBudget, nil
		}
	}
	sample, err := a.cfg.Sampler.SampleUntilNAccepted(ctx, a.cfg.PopulationSize, a.simulateOne(t, b, eps, prevProbs), sopts)
	if err != nil {
		return "", err
	}

	pop := &domain.Population{
		T:             t,
		Epsilon:       eps,
		NrSimulations: sample.NrEvaluations,
		Particles:     sample.Accepted(),
		EndTime:       time.Now().UTC(),
	}
	stored, err := a.history.AppendPopulation(ctx, pop)
	if err != nil {
		return "", err
	}
	acceptance := 0.0
	if sample.NrEvaluations > 0 {
		acceptance = float64(len(pop.Particles)) / float64(sample.NrEvaluations)
	}
	a.logger.Info("generation finished",
		zap.Int("t", t),
		zap.Float64("epsilon", eps),
		zap.Int("accepted", len(pop.Particles)),
		zap.Int("evaluations", sample.NrEvaluations),
		zap.Float64("acceptance_rate", acceptance),
		zap.Duration("duration", time.Since(start)))
	if !stored {
		if !sample.Ok {
			return incomplete(sopts), nil
		}
		return StopEmptyPopulation, nil
	}
	a.exportMetrics(ctx, pop, acceptance, time.Since(start))

	distances, weights := pop.Distances()
	if err := a.cfg.Epsilon.Update(t, distances, weights); err != nil {
		return "", err
	}

	alive, err := a.history.NrModelsAlive(ctx)
	if err != nil {
		return "", err
	}

	switch {
	case eps <= opts.MinimumEpsilon:
		return StopMinimumEpsilon, nil
	case !a.cfg.ContinueIfSingleModelAlive && len(a.cfg.Models) > 1 && alive <= 1:
		return StopSingleModelAlive, nil
	case opts.MaxTotalNrSimulations > 0 && a.history.TotalNrSimulations() >= opts.MaxTotalNrSimulations:
		return StopSimulationBudget, nil
	case !sample.Ok:
		return incomplete(sopts), nil
	}
	return "", nil
}

// fitTransitions fits every model's transition on its particles of
// generation t-1. Models without particles are marked dead.
func (a *ABCSMC) fitTransitions(ctx context.Context, t int) error {
	a.alive = make([]bool, len(a.cfg.Models))
	for m := range a.cfg.Models {
		params, weights, err := a.history.WeightedParticles(ctx, t-1, m)
		if err != nil {
			return err
		}
		if len(params) == 0 {
			continue
		}
		a.alive[m] = true
		if len(a.cfg.ParameterPriors[m]) == 0 {
			continue
		}
		if err := a.cfg.Transitions[m].Fit(params, weights); err != nil {
			return fmt.Errorf("failed to fit transition of model %d: %w", m, err)
		}
	}
	return nil
}

// proposal draws a model and a parameter with positive prior density.
func (a *ABCSMC) proposal(ctx context.Context, t int, prevProbs []float64, rng *rand.Rand) (int, domain.Parameter, error) {
	if t == 0 {
		m := a.cfg.ModelPrior.Rvs(rng)
		return m, a.cfg.ParameterPriors[m].Rvs(rng), nil
	}
	for i := 0; i < maxProposalAttempts; i++ {
		ms, err := a.history.SampleFromModels(ctx, t-1, rng)
		if err != nil {
			return 0, nil, err
		}
		mss := a.cfg.ModelKernel.Rvs(ms, rng)
		if prevProbs[mss] == 0 || !a.alive[mss] {
			continue
		}
		theta := domain.Parameter{}
		if len(a.cfg.ParameterPriors[mss]) > 0 {
			theta = a.cfg.Transitions[mss].Rvs(rng)
		}
		if a.cfg.ModelPrior.Pmf(mss)*a.cfg.ParameterPriors[mss].Pdf(theta) > 0 {
			return mss, theta, nil
		}
	}
	return 0, nil, ErrNoValidProposal
}

// simulateOne evaluates one proposal with b repeated simulations.
func (a *ABCSMC) simulateOne(t, b int, eps float64, prevProbs []float64) sampler.SimulateFunc {
	distanceTo := func(x domain.SumStat) (float64, error) {
		return a.cfg.Distance.Distance(x, a.observed)
	}
	return func(ctx context.Context, rng *rand.Rand) (domain.Particle, error) {
		m, p, err := a.proposal(ctx, t, prevProbs, rng)
		if err != nil {
			return domain.Particle{}, err
		}
		particle := domain.Particle{M: m, Parameter: p}
		for j := 0; j < b; j++ {
			if j >= a.cfg.MaxAttemptsPerParticle {
				a.logger.Warn("max attempts per particle reached", zap.Int("max", a.cfg.MaxAttemptsPerParticle))
				return domain.Particle{M: m, Parameter: p, NrSimulations: j}, nil
			}
			res, err := model.Accept(ctx, a.cfg.Models[m], rng, p, a.cfg.Summary, distanceTo, eps)
			if err != nil {
				return domain.Particle{}, err
			}
			particle.NrSimulations++
			if res.Accepted {
				particle.AcceptedDistances = append(particle.AcceptedDistances, res.Distance)
				particle.AcceptedSumStats = append(particle.AcceptedSumStats, res.SumStat)
			}
		}
		if len(particle.AcceptedDistances) > 0 {
			particle.Accepted = true
			particle.Weight = a.weight(t, m, p, len(particle.AcceptedDistances), b, prevProbs)
		}
		return particle, nil
	}
}

// weight is the importance weight of an accepted proposal:
// prior(m) prior(theta|m) f / (sum_j P_{t-1}(j) K(m|j) K_t(theta|m)),
// where f is the fraction of accepted repeated simulations. At t=0 it is f.
func (a *ABCSMC) weight(t, m int, theta domain.Parameter, accepted, b int, prevProbs []float64) float64 {
	fraction := float64(accepted) / float64(b)
	if t == 0 {
		return fraction
	}
	modelFactor := 0.0
	for j, pj := range prevProbs {
		modelFactor += pj * a.cfg.ModelKernel.Pmf(m, j)
	}
	particleFactor := 1.0
	if len(a.cfg.ParameterPriors[m]) > 0 {
		particleFactor = a.cfg.Transitions[m].Pdf(theta)
	}
	normalization := modelFactor * particleFactor
	if normalization == 0 {
		a.logger.Warn("proposal density is zero", zap.Int("model", m))
		return 0
	}
	return a.cfg.ModelPrior.Pmf(m) * a.cfg.ParameterPriors[m].Pdf(theta) * fraction / normalization
}

func (a *ABCSMC) exportMetrics(ctx context.Context, pop *domain.Population, acceptance float64, d time.Duration) {
	if a.cfg.Metrics == nil {
		return
	}
	analysis := a.history.Analysis()
	weights := make([]float64, len(pop.Particles))
	for i, p := range pop.Particles {
		weights[i] = p.Weight
	}
	probs := map[string]float64{}
	for m, p := range pop.ModelProbabilities(len(analysis.ModelNames)) {
		probs[analysis.ModelNames[m]] = p
	}
	err := a.cfg.Metrics.ExportGeneration(ctx, &ports.GenerationMetrics{
		AnalysisID:          analysis.ID,
		AnalysisUUID:        analysis.UUID,
		T:                   pop.T,
		Epsilon:             pop.Epsilon,
		NrSimulations:       int64(pop.NrSimulations),
		NrParticles:         int64(len(pop.Particles)),
		AcceptanceRate:      acceptance,
		EffectiveSampleSize: domain.EffectiveSampleSize(weights),
		ModelProbabilities:  probs,
		Duration:            d,
		EndedAt:             pop.EndTime,
	})
	if err != nil {
		a.logger.Warn("failed to export metrics", zap.Int("t", pop.T), zap.Error(err))
	}
}
