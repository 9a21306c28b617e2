package domain

import (
	"fmt"
	"math"
	"slices"

	"github.com/emiliopalmerini/abcsmc/internal/expression"
)

// Scale is the space in which a parameter is estimated.
type Scale string

const (
	ScaleLin   Scale = "lin"
	ScaleLog   Scale = "log"
	ScaleLog10 Scale = "log10"
)

// Apply maps a linear value onto the scale.
func (s Scale) Apply(x float64) float64 {
	switch s {
	case ScaleLog:
		return math.Log(x)
	case ScaleLog10:
		return math.Log10(x)
	default:
		return x
	}
}

// Unscale maps a scaled value back to linear space.
func (s Scale) Unscale(x float64) float64 {
	switch s {
	case ScaleLog:
		return math.Exp(x)
	case ScaleLog10:
		return math.Pow(10, x)
	default:
		return x
	}
}

func (s Scale) valid() bool {
	return s == ScaleLin || s == ScaleLog || s == ScaleLog10
}

// NoiseDistribution is the family of the measurement noise of an observable.
type NoiseDistribution string

const (
	NoiseNormal  NoiseDistribution = "normal"
	NoiseLaplace NoiseDistribution = "laplace"
)

// StateVariable is one ODE state with its right-hand side.
type StateVariable struct {
	ID           string
	Rate         string
	InitialValue float64
}

// ParameterSpec declares a model parameter. Bounds and nominal value are linear.
type ParameterSpec struct {
	ID           string
	Name         string
	NominalValue float64
	Scale        Scale
	LowerBound   float64
	UpperBound   float64
	Estimate     bool
}

// ScaledBounds returns the bounds on the parameter's scale.
func (p ParameterSpec) ScaledBounds() (float64, float64) {
	return p.Scale.Apply(p.LowerBound), p.Scale.Apply(p.UpperBound)
}

// Observable maps model state to a measured quantity.
type Observable struct {
	ID                string
	Formula           string
	Transformation    Scale
	NoiseFormula      string
	NoiseDistribution NoiseDistribution
}

// Condition is an experimental context. Overrides replace parameter values
// (linear space) for simulations under this condition.
type Condition struct {
	ID        string
	Overrides map[string]float64
}

// ModelDefinition is a declarative ODE model.
type ModelDefinition struct {
	Name        string
	States      []StateVariable
	Parameters  []ParameterSpec
	Observables []Observable
	Conditions  []Condition
}

// StateIDs returns the state identifiers in declaration order.
func (d *ModelDefinition) StateIDs() []string {
	ids := make([]string, len(d.States))
	for i, s := range d.States {
		ids[i] = s.ID
	}
	return ids
}

// ParameterIDs returns the parameter identifiers in declaration order.
func (d *ModelDefinition) ParameterIDs() []string {
	ids := make([]string, len(d.Parameters))
	for i, p := range d.Parameters {
		ids[i] = p.ID
	}
	return ids
}

// EstimatedParameters returns the parameters flagged for estimation.
func (d *ModelDefinition) EstimatedParameters() []ParameterSpec {
	var out []ParameterSpec
	for _, p := range d.Parameters {
		if p.Estimate {
			out = append(out, p)
		}
	}
	return out
}

// NominalParameters returns the nominal value of every estimated parameter on
// its scale, i.e. a point in the space the prior is defined on.
func (d *ModelDefinition) NominalParameters() Parameter {
	par := Parameter{}
	for _, p := range d.EstimatedParameters() {
		par[p.ID] = p.Scale.Apply(p.NominalValue)
	}
	return par
}

// Validate checks the structural consistency of the definition.
func (d *ModelDefinition) Validate() error {
	if len(d.States) == 0 {
		return fmt.Errorf("%w: no state variables", ErrInvalidDefinition)
	}
	if len(d.Conditions) == 0 {
		return fmt.Errorf("%w: no conditions", ErrInvalidDefinition)
	}

	seen := map[string]string{}
	claim := func(id, kind string) error {
		if id == "" {
			return fmt.Errorf("%w: empty %s id", ErrInvalidDefinition, kind)
		}
		if other, ok := seen[id]; ok {
			return fmt.Errorf("%w: id %q used by %s and %s", ErrInvalidDefinition, id, other, kind)
		}
		if expression.IsFunction(id) {
			return fmt.Errorf("%w: %s id %q is a function name", ErrInvalidDefinition, kind, id)
		}
		seen[id] = kind
		return nil
	}
	// t is bound to the integration time in every formula.
	seen["t"] = "time"

	for _, s := range d.States {
		if err := claim(s.ID, "state"); err != nil {
			return err
		}
	}
	for _, p := range d.Parameters {
		if err := claim(p.ID, "parameter"); err != nil {
			return err
		}
		if err := p.validate(); err != nil {
			return err
		}
	}

	symbols := append(d.StateIDs(), d.ParameterIDs()...)
	symbols = append(symbols, "t")
	for _, s := range d.States {
		if err := checkFormula(s.Rate, symbols, "rate of "+s.ID); err != nil {
			return err
		}
	}

	obsIDs := map[string]bool{}
	for _, o := range d.Observables {
		if o.ID == "" || obsIDs[o.ID] {
			return fmt.Errorf("%w: observable id %q is empty or duplicated", ErrInvalidDefinition, o.ID)
		}
		obsIDs[o.ID] = true
		if err := checkFormula(o.Formula, symbols, "observable "+o.ID); err != nil {
			return err
		}
		if o.NoiseFormula != "" {
			if err := checkFormula(o.NoiseFormula, symbols, "noise of "+o.ID); err != nil {
				return err
			}
		}
		if o.Transformation != "" && !o.Transformation.valid() {
			return fmt.Errorf("%w: observable %s: unknown transformation %q", ErrInvalidDefinition, o.ID, o.Transformation)
		}
		switch o.NoiseDistribution {
		case "", NoiseNormal, NoiseLaplace:
		default:
			return fmt.Errorf("%w: observable %s: unknown noise distribution %q", ErrInvalidDefinition, o.ID, o.NoiseDistribution)
		}
	}

	condIDs := map[string]bool{}
	params := d.ParameterIDs()
	for _, c := range d.Conditions {
		if c.ID == "" || condIDs[c.ID] {
			return fmt.Errorf("%w: condition id %q is empty or duplicated", ErrInvalidDefinition, c.ID)
		}
		condIDs[c.ID] = true
		for k := range c.Overrides {
			if !slices.Contains(params, k) {
				return fmt.Errorf("%w: condition %s overrides unknown parameter %q", ErrInvalidDefinition, c.ID, k)
			}
		}
	}
	return nil
}

func (p ParameterSpec) validate() error {
	if !p.Scale.valid() {
		return fmt.Errorf("%w: parameter %s: unknown scale %q", ErrInvalidDefinition, p.ID, p.Scale)
	}
	if p.LowerBound > p.UpperBound {
		return fmt.Errorf("%w: parameter %s: lower bound %g above upper bound %g", ErrInvalidDefinition, p.ID, p.LowerBound, p.UpperBound)
	}
	if p.Scale != ScaleLin && p.LowerBound <= 0 {
		return fmt.Errorf("%w: parameter %s: %s scale requires positive bounds", ErrInvalidDefinition, p.ID, p.Scale)
	}
	if p.NominalValue < p.LowerBound || p.NominalValue > p.UpperBound {
		return fmt.Errorf("%w: parameter %s: nominal value %g outside [%g, %g]", ErrInvalidDefinition, p.ID, p.NominalValue, p.LowerBound, p.UpperBound)
	}
	return nil
}

func checkFormula(formula string, symbols []string, what string) error {
	n, err := expression.Parse(formula)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, what, err)
	}
	for _, op := range n.Operands() {
		if !slices.Contains(symbols, op) {
			return fmt.Errorf("%w: %s references unknown symbol %q", ErrInvalidDefinition, what, op)
		}
	}
	return nil
}
