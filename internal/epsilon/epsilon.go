// Package epsilon provides acceptance threshold schedules.
package epsilon

import (
	"fmt"
	"math"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
)

// Epsilon yields the acceptance threshold for each generation.
type Epsilon interface {
	// Initialize receives the distances of the prior sample to the observed
	// data and their weights.
	Initialize(priorDistances, weights []float64) error
	// Value returns the threshold for generation t.
	Value(t int) (float64, error)
	// Update is called after generation t was accepted, with the accepted
	// distances and their weights.
	Update(t int, distances, weights []float64) error
	Config() map[string]any
}

// Constant uses the same threshold for every generation.
type Constant struct {
	Epsilon float64
}

func (c *Constant) Initialize([]float64, []float64) error  { return nil }
func (c *Constant) Value(int) (float64, error)             { return c.Epsilon, nil }
func (c *Constant) Update(int, []float64, []float64) error { return nil }
func (c *Constant) Config() map[string]any {
	return map[string]any{"name": "constant", "epsilon": c.Epsilon}
}

// List uses a predefined threshold per generation.
type List struct {
	Values []float64
}

func (l *List) Initialize([]float64, []float64) error  { return nil }
func (l *List) Update(int, []float64, []float64) error { return nil }

func (l *List) Value(t int) (float64, error) {
	if t < 0 || t >= len(l.Values) {
		return 0, fmt.Errorf("no epsilon defined for generation %d (list has %d values)", t, len(l.Values))
	}
	return l.Values[t], nil
}

func (l *List) Config() map[string]any {
	return map[string]any{"name": "list", "values": l.Values}
}

// Quantile sets epsilon_{t+1} to Multiplier times the Alpha-quantile of the
// distances accepted at generation t. The initial threshold is InitialEpsilon
// if positive, otherwise the quantile of the prior sample distances.
type Quantile struct {
	Alpha          float64
	Multiplier     float64
	Weighted       bool
	InitialEpsilon float64

	values map[int]float64
}

// NewQuantile returns a quantile schedule. Alpha must lie in (0, 1].
func NewQuantile(alpha, multiplier float64, weighted bool) (*Quantile, error) {
	if alpha <= 0 || alpha > 1 {
		return nil, fmt.Errorf("alpha must be in (0, 1], got %g", alpha)
	}
	if multiplier <= 0 {
		multiplier = 1
	}
	return &Quantile{Alpha: alpha, Multiplier: multiplier, Weighted: weighted}, nil
}

// NewMedian is the 0.5-quantile schedule.
func NewMedian() *Quantile {
	q, _ := NewQuantile(0.5, 1, true)
	return q
}

func (q *Quantile) Initialize(priorDistances, weights []float64) error {
	q.values = map[int]float64{}
	if q.InitialEpsilon > 0 {
		q.values[0] = q.InitialEpsilon
		return nil
	}
	eps, err := q.quantile(priorDistances, weights)
	if err != nil {
		return fmt.Errorf("failed to initialize epsilon: %w", err)
	}
	q.values[0] = eps
	return nil
}

func (q *Quantile) Value(t int) (float64, error) {
	v, ok := q.values[t]
	if !ok {
		return 0, fmt.Errorf("epsilon for generation %d not yet computed", t)
	}
	return v, nil
}

func (q *Quantile) Update(t int, distances, weights []float64) error {
	eps, err := q.quantile(distances, weights)
	if err != nil {
		return fmt.Errorf("failed to update epsilon: %w", err)
	}
	if q.values == nil {
		q.values = map[int]float64{}
	}
	q.values[t+1] = eps
	return nil
}

// SetValue fixes the threshold of generation t, e.g. when resuming a run.
func (q *Quantile) SetValue(t int, eps float64) {
	if q.values == nil {
		q.values = map[int]float64{}
	}
	q.values[t] = eps
}

func (q *Quantile) quantile(distances, weights []float64) (float64, error) {
	var finite, fw []float64
	for i, d := range distances {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			continue
		}
		finite = append(finite, d)
		if q.Weighted && weights != nil {
			fw = append(fw, weights[i])
		}
	}
	if len(finite) == 0 {
		return 0, domain.ErrNoParticles
	}
	if !q.Weighted || weights == nil {
		fw = nil
	}
	return q.Multiplier * domain.WeightedQuantile(finite, fw, q.Alpha), nil
}

func (q *Quantile) Config() map[string]any {
	return map[string]any{
		"name":            "quantile",
		"alpha":           q.Alpha,
		"multiplier":      q.Multiplier,
		"weighted":        q.Weighted,
		"initial_epsilon": q.InitialEpsilon,
	}
}

// Resumable is implemented by schedules whose state can be restored from
// stored generation thresholds.
type Resumable interface {
	SetValue(t int, eps float64)
}

// New builds a schedule by name: constant, list, median or quantile.
func New(name string, alpha, multiplier float64, values []float64) (Epsilon, error) {
	switch name {
	case "constant":
		if len(values) != 1 {
			return nil, fmt.Errorf("constant epsilon needs exactly one value")
		}
		return &Constant{Epsilon: values[0]}, nil
	case "list":
		if len(values) == 0 {
			return nil, fmt.Errorf("list epsilon needs values")
		}
		return &List{Values: values}, nil
	case "", "median":
		q := NewMedian()
		if multiplier > 0 {
			q.Multiplier = multiplier
		}
		if len(values) > 0 {
			q.InitialEpsilon = values[0]
		}
		return q, nil
	case "quantile":
		q, err := NewQuantile(alpha, multiplier, true)
		if err != nil {
			return nil, err
		}
		if len(values) > 0 {
			q.InitialEpsilon = values[0]
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown epsilon %q", name)
	}
}
