package domain

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// WeightedMean returns the weighted mean of x. Weights need not be normalized.
// Zero-safe: returns 0 for empty input or zero total weight.
func WeightedMean(x, weights []float64) float64 {
	if len(x) == 0 || floats.Sum(weights) == 0 {
		return 0
	}
	return stat.Mean(x, weights)
}

// WeightedStd returns the weighted population standard deviation of x.
func WeightedStd(x, weights []float64) float64 {
	total := floats.Sum(weights)
	if len(x) == 0 || total == 0 {
		return 0
	}
	mean := stat.Mean(x, weights)
	ss := 0.0
	for i, v := range x {
		d := v - mean
		ss += weights[i] * d * d
	}
	return math.Sqrt(ss / total)
}

// WeightedQuantile returns the empirical alpha-quantile of x under the given
// weights. A nil weights slice means uniform weights.
func WeightedQuantile(x, weights []float64, alpha float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	xs := make([]float64, len(x))
	copy(xs, x)
	var ws []float64
	if weights != nil {
		ws = make([]float64, len(weights))
		copy(ws, weights)
		sort.Sort(pairSorter{xs, ws})
	} else {
		sort.Float64s(xs)
	}
	return stat.Quantile(alpha, stat.Empirical, xs, ws)
}

// EffectiveSampleSize returns (sum w)^2 / sum w^2.
func EffectiveSampleSize(weights []float64) float64 {
	sq := floats.Dot(weights, weights)
	if sq == 0 {
		return 0
	}
	s := floats.Sum(weights)
	return s * s / sq
}

type pairSorter struct {
	x, w []float64
}

func (p pairSorter) Len() int           { return len(p.x) }
func (p pairSorter) Less(i, j int) bool { return p.x[i] < p.x[j] }
func (p pairSorter) Swap(i, j int) {
	p.x[i], p.x[j] = p.x[j], p.x[i]
	p.w[i], p.w[j] = p.w[j], p.w[i]
}

// ParameterSummary holds weighted moments of one parameter in a population.
type ParameterSummary struct {
	Name string
	Mean float64
	Std  float64
	Min  float64
	Max  float64
}

// SummarizeParameters computes weighted moments for every parameter key.
func SummarizeParameters(params []Parameter, weights []float64) []ParameterSummary {
	if len(params) == 0 {
		return nil
	}
	keys := params[0].Keys()
	out := make([]ParameterSummary, 0, len(keys))
	for _, k := range keys {
		x := make([]float64, len(params))
		for i, p := range params {
			x[i] = p[k]
		}
		out = append(out, ParameterSummary{
			Name: k,
			Mean: WeightedMean(x, weights),
			Std:  WeightedStd(x, weights),
			Min:  floats.Min(x),
			Max:  floats.Max(x),
		})
	}
	return out
}
