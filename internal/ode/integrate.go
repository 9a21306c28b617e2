package ode

import (
	"context"
	"fmt"
	"math"
)

// Options control the fixed-step integrator.
type Options struct {
	// MaxStep bounds the RK4 step size. Zero means 0.01.
	MaxStep float64
}

func (o Options) maxStep() float64 {
	if o.MaxStep <= 0 {
		return 0.01
	}
	return o.MaxStep
}

// Integrate solves the system from t=0 with the definition's initial values
// and returns the state at every timepoint. Timepoints must be non-negative
// and non-decreasing.
func (s *System) Integrate(ctx context.Context, params []float64, timepoints []float64, opts Options) ([][]float64, error) {
	for i, tp := range timepoints {
		if tp < 0 || (i > 0 && tp < timepoints[i-1]) {
			return nil, fmt.Errorf("timepoints must be non-negative and non-decreasing, got %v", timepoints)
		}
	}

	n := len(s.Def.States)
	y := s.InitialState()
	k1 := make([]float64, n)
	k2 := make([]float64, n)
	k3 := make([]float64, n)
	k4 := make([]float64, n)
	tmp := make([]float64, n)
	scratch := make([]float64, 0, len(s.symbols))

	out := make([][]float64, len(timepoints))
	t := 0.0
	maxStep := opts.maxStep()
	for i, target := range timepoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for t < target {
			h := math.Min(maxStep, target-t)
			scratch = s.Derivative(t, y, params, k1, scratch)
			for j := range y {
				tmp[j] = y[j] + h/2*k1[j]
			}
			scratch = s.Derivative(t+h/2, tmp, params, k2, scratch)
			for j := range y {
				tmp[j] = y[j] + h/2*k2[j]
			}
			scratch = s.Derivative(t+h/2, tmp, params, k3, scratch)
			for j := range y {
				tmp[j] = y[j] + h*k3[j]
			}
			scratch = s.Derivative(t+h, tmp, params, k4, scratch)
			for j := range y {
				y[j] += h / 6 * (k1[j] + 2*k2[j] + 2*k3[j] + k4[j])
				if math.IsNaN(y[j]) || math.IsInf(y[j], 0) {
					return nil, fmt.Errorf("integration diverged at t=%g for state %s", t+h, s.Def.States[j].ID)
				}
			}
			t += h
			if target-t < 1e-12 {
				t = target
			}
		}
		out[i] = append([]float64(nil), y...)
	}
	return out, nil
}
