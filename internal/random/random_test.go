package random

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
)

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 0))
}

func TestNewRV(t *testing.T) {
	tests := []struct {
		kind    string
		args    []float64
		wantErr bool
	}{
		{"uniform", []float64{0, 1}, false},
		{"uniform", []float64{1, 1}, true},
		{"normal", []float64{0, 1}, false},
		{"normal", []float64{0, -1}, true},
		{"lognormal", []float64{0, 1}, false},
		{"laplace", []float64{0, 2}, false},
		{"exponential", []float64{2}, false},
		{"exponential", []float64{2, 3}, true},
		{"gamma", []float64{2, 1}, false},
		{"beta", []float64{2, 2}, false},
		{"cauchy", []float64{0, 1}, true},
	}
	for _, tt := range tests {
		_, err := NewRV(tt.kind, tt.args...)
		if tt.wantErr {
			assert.Error(t, err, "%s%v", tt.kind, tt.args)
		} else {
			assert.NoError(t, err, "%s%v", tt.kind, tt.args)
		}
	}
}

func TestRV_RvsWithinSupport(t *testing.T) {
	rng := newRNG(1)
	rv := MustRV("uniform", -2, 3)
	sum := 0.0
	const n = 20000
	for i := 0; i < n; i++ {
		x := rv.Rvs(rng)
		require.GreaterOrEqual(t, x, -2.0)
		require.LessOrEqual(t, x, 3.0)
		sum += x
	}
	assert.InDelta(t, 0.5, sum/n, 0.05)
	assert.InDelta(t, 0.2, rv.Pdf(0), 1e-12)
	assert.Equal(t, 0.0, rv.Pdf(4))
}

func TestRV_NormalMoments(t *testing.T) {
	rng := newRNG(2)
	rv := MustRV("normal", 3, 2)
	const n = 20000
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = rv.Rvs(rng)
	}
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	assert.InDelta(t, 3, domain.WeightedMean(xs, w), 0.08)
	assert.InDelta(t, 2, domain.WeightedStd(xs, w), 0.08)
	assert.Equal(t, "normal(3, 2)", rv.String())
}

func TestDistribution_Pdf(t *testing.T) {
	d := Distribution{
		"a": MustRV("uniform", 0, 2),
		"b": MustRV("uniform", 0, 4),
	}
	assert.InDelta(t, 0.125, d.Pdf(domain.Parameter{"a": 1, "b": 1}), 1e-12)
	assert.Equal(t, 0.0, d.Pdf(domain.Parameter{"a": 3, "b": 1}))
	assert.Equal(t, 0.0, d.Pdf(domain.Parameter{"a": 1}))
	assert.Equal(t, 0.0, d.Pdf(domain.Parameter{"a": 1, "c": 1}))

	p := d.Rvs(newRNG(3))
	assert.Equal(t, []string{"a", "b"}, p.Keys())
	assert.Greater(t, d.Pdf(p), 0.0)
}

func TestDiscreteRV(t *testing.T) {
	d, err := NewDiscrete([]float64{1, 0, 3})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, d.Pmf(0), 1e-12)
	assert.Equal(t, 0.0, d.Pmf(1))
	assert.Equal(t, 0.0, d.Pmf(7))

	rng := newRNG(4)
	counts := make([]int, 3)
	for i := 0; i < 10000; i++ {
		counts[d.Rvs(rng)]++
	}
	assert.Equal(t, 0, counts[1])
	assert.InDelta(t, 0.75, float64(counts[2])/10000, 0.03)

	_, err = NewDiscrete([]float64{0, 0})
	assert.Error(t, err)
}

func TestModelPerturbationKernel(t *testing.T) {
	k, err := NewModelPerturbationKernel(3, 0.7)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, k.Pmf(1, 1), 1e-12)
	assert.InDelta(t, 0.15, k.Pmf(0, 1), 1e-12)

	total := 0.0
	for n := 0; n < 3; n++ {
		total += k.Pmf(n, 2)
	}
	assert.InDelta(t, 1, total, 1e-12)

	rng := newRNG(5)
	stay := 0
	for i := 0; i < 10000; i++ {
		n := k.Rvs(1, rng)
		require.True(t, n >= 0 && n < 3)
		if n == 1 {
			stay++
		}
	}
	assert.InDelta(t, 0.7, float64(stay)/10000, 0.03)

	single, err := NewModelPerturbationKernel(1, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 0, single.Rvs(0, rng))
	assert.Equal(t, 1.0, single.Pmf(0, 0))

	_, err = NewModelPerturbationKernel(2, 1.5)
	assert.Error(t, err)
}

func TestPriorFromDefinition(t *testing.T) {
	def := &domain.ModelDefinition{
		Parameters: []domain.ParameterSpec{
			{ID: "k", Scale: domain.ScaleLog10, LowerBound: 0.01, UpperBound: 100, NominalValue: 1, Estimate: true},
			{ID: "fixed", Scale: domain.ScaleLin, LowerBound: 0, UpperBound: 1, NominalValue: 0.5},
		},
	}
	prior, err := PriorFromDefinition(def)
	require.NoError(t, err)
	require.Len(t, prior, 1)
	assert.InDelta(t, -2, prior["k"].Args[0], 1e-12)
	assert.InDelta(t, 2, prior["k"].Args[1], 1e-12)
	assert.InDelta(t, 0.25, prior.Pdf(domain.Parameter{"k": 0}), 1e-9)
	assert.True(t, math.IsInf(math.Log(prior.Pdf(domain.Parameter{"k": 3})), -1))

	def.Parameters[0].Estimate = false
	_, err = PriorFromDefinition(def)
	assert.ErrorIs(t, err, domain.ErrInvalidDefinition)
}
