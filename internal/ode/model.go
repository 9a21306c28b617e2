package ode

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
	"github.com/emiliopalmerini/abcsmc/internal/expression"
)

type boundObservable struct {
	spec    domain.Observable
	formula expression.Func
	noise   expression.Func
}

// Model simulates every condition of a definition and reports its observables
// at fixed timepoints as summary statistics keyed "<observable>__<condition>__<i>".
type Model struct {
	Def        *domain.ModelDefinition
	Timepoints []float64
	// NoiseFree disables the measurement noise model.
	NoiseFree bool
	Options   Options

	systems     []*System
	observables []boundObservable
}

// NewModel compiles the definition for all of its conditions.
func NewModel(def *domain.ModelDefinition, timepoints []float64) (*Model, error) {
	if len(timepoints) == 0 {
		return nil, fmt.Errorf("no timepoints")
	}
	if len(def.Observables) == 0 {
		return nil, fmt.Errorf("%w: no observables", domain.ErrInvalidDefinition)
	}
	m := &Model{Def: def, Timepoints: append([]float64(nil), timepoints...)}
	for _, c := range def.Conditions {
		sys, err := Compile(def, c)
		if err != nil {
			return nil, err
		}
		m.systems = append(m.systems, sys)
	}

	symbols := Symbols(def)
	for _, o := range def.Observables {
		f, err := Bind(o.Formula, symbols)
		if err != nil {
			return nil, fmt.Errorf("failed to bind observable %s: %w", o.ID, err)
		}
		b := boundObservable{spec: o, formula: f}
		if o.NoiseFormula != "" {
			b.noise, err = Bind(o.NoiseFormula, symbols)
			if err != nil {
				return nil, fmt.Errorf("failed to bind noise of %s: %w", o.ID, err)
			}
		}
		m.observables = append(m.observables, b)
	}
	return m, nil
}

func (m *Model) Name() string {
	return m.Def.Name
}

// Key returns the summary statistic key of an observable value.
func Key(observable, condition string, i int) string {
	return fmt.Sprintf("%s__%s__%d", observable, condition, i)
}

func (m *Model) Simulate(ctx context.Context, rng *rand.Rand, par domain.Parameter) (domain.SumStat, error) {
	out := domain.SumStat{}
	for _, sys := range m.systems {
		params := sys.ParameterValues(par)
		traj, err := sys.Integrate(ctx, params, m.Timepoints, m.Options)
		if err != nil {
			return nil, fmt.Errorf("condition %s: %w", sys.Condition.ID, err)
		}
		var scratch []float64
		for i, y := range traj {
			scratch = sys.layout(scratch, y, params, m.Timepoints[i])
			for _, o := range m.observables {
				v := transform(o.spec.Transformation, o.formula(scratch))
				if !m.NoiseFree && o.noise != nil && rng != nil {
					v += drawNoise(o.spec.NoiseDistribution, o.noise(scratch), rng)
				}
				if math.IsNaN(v) {
					return nil, fmt.Errorf("observable %s is NaN at t=%g", o.spec.ID, m.Timepoints[i])
				}
				out[Key(o.spec.ID, sys.Condition.ID, i)] = v
			}
		}
	}
	return out, nil
}

func transform(s domain.Scale, v float64) float64 {
	if s == "" {
		return v
	}
	return s.Apply(v)
}

func drawNoise(dist domain.NoiseDistribution, scale float64, rng *rand.Rand) float64 {
	if scale <= 0 {
		return 0
	}
	var d interface{ Quantile(p float64) float64 }
	switch dist {
	case domain.NoiseLaplace:
		d = distuv.Laplace{Mu: 0, Scale: scale}
	default:
		d = distuv.Normal{Mu: 0, Sigma: scale}
	}
	u := rng.Float64()
	for u == 0 {
		u = rng.Float64()
	}
	return d.Quantile(u)
}
