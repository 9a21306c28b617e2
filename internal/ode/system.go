// Package ode simulates declarative ODE model definitions.
//
// A System binds the right-hand sides of a model definition to a fixed symbol
// layout (states, then parameters, then time) so that each integration step
// evaluates closures instead of walking expression trees with map lookups.
package ode

import (
	"fmt"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
	"github.com/emiliopalmerini/abcsmc/internal/expression"
)

// System is a model definition compiled for one condition.
type System struct {
	Def       *domain.ModelDefinition
	Condition domain.Condition

	symbols []string
	rates   []expression.Func
}

// Compile validates the definition and binds its rate expressions.
func Compile(def *domain.ModelDefinition, cond domain.Condition) (*System, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	symbols := Symbols(def)
	rates := make([]expression.Func, len(def.States))
	for i, s := range def.States {
		f, err := Bind(s.Rate, symbols)
		if err != nil {
			return nil, fmt.Errorf("failed to bind rate of %s: %w", s.ID, err)
		}
		rates[i] = f
	}
	return &System{Def: def, Condition: cond, symbols: symbols, rates: rates}, nil
}

// Symbols returns the evaluation layout: state ids, parameter ids, then "t".
func Symbols(def *domain.ModelDefinition) []string {
	symbols := append(def.StateIDs(), def.ParameterIDs()...)
	return append(symbols, "t")
}

// Bind parses a formula and binds it to the layout.
func Bind(formula string, symbols []string) (expression.Func, error) {
	n, err := expression.Parse(formula)
	if err != nil {
		return nil, err
	}
	return n.Bind(symbols)
}

// ParameterValues resolves the linear value of every declared parameter.
// Estimated parameters present in par are unscaled from their declared scale;
// all others take their nominal value. Condition overrides win.
func (s *System) ParameterValues(par domain.Parameter) []float64 {
	values := make([]float64, len(s.Def.Parameters))
	for i, p := range s.Def.Parameters {
		v := p.NominalValue
		if x, ok := par[p.ID]; ok && p.Estimate {
			v = p.Scale.Unscale(x)
		}
		if o, ok := s.Condition.Overrides[p.ID]; ok {
			v = o
		}
		values[i] = v
	}
	return values
}

// InitialState returns the declared initial values.
func (s *System) InitialState() []float64 {
	y := make([]float64, len(s.Def.States))
	for i, st := range s.Def.States {
		y[i] = st.InitialValue
	}
	return y
}

// layout packs state, parameters and time into dst following Symbols.
func (s *System) layout(dst, y, params []float64, t float64) []float64 {
	dst = dst[:0]
	dst = append(dst, y...)
	dst = append(dst, params...)
	return append(dst, t)
}

// Derivative evaluates dy/dt into dy.
func (s *System) Derivative(t float64, y, params, dy []float64, scratch []float64) []float64 {
	scratch = s.layout(scratch, y, params, t)
	for i, f := range s.rates {
		dy[i] = f(scratch)
	}
	return scratch
}
