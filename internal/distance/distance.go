// Package distance compares simulated summary statistics with observed ones.
package distance

import (
	"fmt"
	"math"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
)

// Distance measures how far simulated statistics x are from observed x0.
type Distance interface {
	// Initialize calibrates the distance on summary statistics sampled from
	// the prior. Distances without calibration ignore the call.
	Initialize(priorSumStats []domain.SumStat, observed domain.SumStat) error
	Distance(x, x0 domain.SumStat) (float64, error)
	// Config describes the distance for the history.
	Config() map[string]any
}

// PNorm is the weighted Minkowski distance sum_k (w_k |x_k - x0_k|)^p)^(1/p).
// P may be math.Inf(1) for the maximum norm. Nil weights mean weight 1 for
// every statistic of x0.
type PNorm struct {
	P       float64
	Weights map[string]float64
}

func NewPNorm(p float64) (*PNorm, error) {
	if p < 1 {
		return nil, fmt.Errorf("p must be at least 1, got %g", p)
	}
	return &PNorm{P: p}, nil
}

func (d *PNorm) Initialize([]domain.SumStat, domain.SumStat) error {
	return nil
}

func (d *PNorm) Distance(x, x0 domain.SumStat) (float64, error) {
	return pnorm(d.P, d.Weights, x, x0)
}

func (d *PNorm) Config() map[string]any {
	return map[string]any{"name": "pnorm", "p": formatP(d.P), "weights": d.Weights}
}

func pnorm(p float64, weights map[string]float64, x, x0 domain.SumStat) (float64, error) {
	acc := 0.0
	for _, k := range x0.Keys() {
		w := 1.0
		if weights != nil {
			w = weights[k]
		}
		if w == 0 {
			continue
		}
		v, ok := x[k]
		if !ok {
			return 0, fmt.Errorf("summary statistic %q missing from simulation", k)
		}
		diff := math.Abs(w * (v - x0[k]))
		if math.IsInf(p, 1) {
			acc = math.Max(acc, diff)
		} else {
			acc += math.Pow(diff, p)
		}
	}
	if math.IsInf(p, 1) {
		return acc, nil
	}
	return math.Pow(acc, 1/p), nil
}

func formatP(p float64) any {
	if math.IsInf(p, 1) {
		return "inf"
	}
	return p
}

// AdaptivePNorm is a PNorm whose weights are the inverse median absolute
// deviations of each statistic over the prior sample.
type AdaptivePNorm struct {
	PNorm
}

func NewAdaptivePNorm(p float64) (*AdaptivePNorm, error) {
	base, err := NewPNorm(p)
	if err != nil {
		return nil, err
	}
	return &AdaptivePNorm{PNorm: *base}, nil
}

func (d *AdaptivePNorm) Initialize(prior []domain.SumStat, observed domain.SumStat) error {
	if len(prior) == 0 {
		return fmt.Errorf("cannot calibrate distance: %w", domain.ErrNoParticles)
	}
	weights := make(map[string]float64, len(observed))
	allZero := true
	for _, k := range observed.Keys() {
		values := make([]float64, 0, len(prior))
		for _, s := range prior {
			if v, ok := s[k]; ok {
				values = append(values, v)
			}
		}
		mad := medianAbsoluteDeviation(values)
		if mad > 0 {
			weights[k] = 1 / mad
			allZero = false
		} else {
			weights[k] = 0
		}
	}
	if allZero {
		for k := range weights {
			weights[k] = 1
		}
	}
	d.Weights = weights
	return nil
}

func (d *AdaptivePNorm) Config() map[string]any {
	c := d.PNorm.Config()
	c["name"] = "adaptive_pnorm"
	return c
}

func medianAbsoluteDeviation(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	med := domain.WeightedQuantile(x, nil, 0.5)
	dev := make([]float64, len(x))
	for i, v := range x {
		dev[i] = math.Abs(v - med)
	}
	return domain.WeightedQuantile(dev, nil, 0.5)
}

// ZScore is the mean relative deviation |x_k - x0_k| / |x0_k| over the observed
// statistics with non-zero value.
type ZScore struct{}

func (ZScore) Initialize([]domain.SumStat, domain.SumStat) error { return nil }

func (ZScore) Distance(x, x0 domain.SumStat) (float64, error) {
	acc := 0.0
	n := 0
	for _, k := range x0.Keys() {
		if x0[k] == 0 {
			continue
		}
		v, ok := x[k]
		if !ok {
			return 0, fmt.Errorf("summary statistic %q missing from simulation", k)
		}
		acc += math.Abs((v - x0[k]) / x0[k])
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return acc / float64(n), nil
}

func (ZScore) Config() map[string]any {
	return map[string]any{"name": "zscore"}
}

// New builds a distance by name: pnorm, adaptive_pnorm or zscore.
func New(name string, p float64) (Distance, error) {
	switch name {
	case "", "pnorm":
		return NewPNorm(p)
	case "adaptive_pnorm", "adaptive":
		return NewAdaptivePNorm(p)
	case "zscore":
		return ZScore{}, nil
	default:
		return nil, fmt.Errorf("unknown distance %q", name)
	}
}
