// Package conversion provides the conversion reaction x1 <-> x2, the reference
// model of the declarative model schema.
package conversion

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
	"github.com/emiliopalmerini/abcsmc/internal/ode"
)

const (
	Name             = "conversion_reaction"
	IrreversibleName = "conversion_irreversible"
	Condition        = "condition1"
	Observable       = "obs_x2"
)

// DefaultTimepoints are the measurement times used when none are given.
var DefaultTimepoints = []float64{0, 10, 20, 30, 40, 50, 60}

// Definition returns the model definition.
func Definition() *domain.ModelDefinition {
	return &domain.ModelDefinition{
		Name: Name,
		States: []domain.StateVariable{
			{ID: "x1", Rate: "-theta1 * x1 + theta2 * x2", InitialValue: 1},
			{ID: "x2", Rate: "theta1 * x1 - theta2 * x2", InitialValue: 0},
		},
		Parameters: []domain.ParameterSpec{
			{ID: "theta1", Name: "$\\theta_1$", NominalValue: 0.08, Scale: domain.ScaleLog10, LowerBound: 0.002, UpperBound: 3, Estimate: true},
			{ID: "theta2", Name: "$\\theta_2$", NominalValue: 0.12, Scale: domain.ScaleLog10, LowerBound: 0.002, UpperBound: 3, Estimate: true},
			{ID: "sigma", Name: "$\\sigma$", NominalValue: 0.02, Scale: domain.ScaleLin, LowerBound: 0, UpperBound: 1},
		},
		Observables: []domain.Observable{
			{ID: Observable, Formula: "x2", Transformation: domain.ScaleLin, NoiseFormula: "sigma", NoiseDistribution: domain.NoiseNormal},
		},
		Conditions: []domain.Condition{{ID: Condition}},
	}
}

// IrreversibleDefinition is the conversion reaction without the back reaction
// x2 -> x1. It competes with Definition in model selection.
func IrreversibleDefinition() *domain.ModelDefinition {
	def := Definition()
	def.Name = IrreversibleName
	def.Parameters[1] = domain.ParameterSpec{ID: "theta2", Name: "$\\theta_2$", Scale: domain.ScaleLin, LowerBound: 0, UpperBound: 3}
	return def
}

// NewModel compiles the conversion reaction for the given timepoints.
func NewModel(timepoints []float64) (*ode.Model, error) {
	if len(timepoints) == 0 {
		timepoints = DefaultTimepoints
	}
	return ode.NewModel(Definition(), timepoints)
}

// Analytic returns x2(t) for linear rates theta1 and theta2.
func Analytic(theta1, theta2, t float64) float64 {
	k := theta1 + theta2
	return theta1 / k * (1 - math.Exp(-k*t))
}

// Observed simulates noisy measurements at the nominal-scale parameter theta
// (log10 values keyed theta1 and theta2) with a seeded generator.
func Observed(ctx context.Context, timepoints []float64, theta domain.Parameter, seed uint64) (domain.SumStat, error) {
	m, err := NewModel(timepoints)
	if err != nil {
		return nil, err
	}
	if theta == nil {
		theta = m.Def.NominalParameters()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	data, err := m.Simulate(ctx, rng, theta)
	if err != nil {
		return nil, fmt.Errorf("failed to simulate observed data: %w", err)
	}
	return data, nil
}
