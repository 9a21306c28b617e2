package transition

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/integrate/quad"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
)

func TestMultivariateNormal_FitErrors(t *testing.T) {
	tr := NewMultivariateNormal()
	assert.ErrorIs(t, tr.Fit(nil, nil), domain.ErrNoParticles)
	assert.Error(t, tr.Fit([]domain.Parameter{{"a": 1}}, []float64{1, 2}))
	assert.Error(t, tr.Fit([]domain.Parameter{{"a": 1}}, []float64{0}))
	assert.False(t, tr.Fitted())
}

func TestMultivariateNormal_PdfIntegratesToOne(t *testing.T) {
	tr := NewMultivariateNormal()
	params := []domain.Parameter{{"x": -1}, {"x": 0.5}, {"x": 2}}
	require.NoError(t, tr.Fit(params, []float64{1, 2, 1}))
	require.True(t, tr.Fitted())

	integral := quad.Fixed(func(x float64) float64 {
		return tr.Pdf(domain.Parameter{"x": x})
	}, -30, 30, 2000, nil, 0)
	assert.InDelta(t, 1, integral, 1e-6)
}

func TestMultivariateNormal_RvsFollowsParticles(t *testing.T) {
	tr := NewMultivariateNormal()
	params := []domain.Parameter{
		{"a": 1, "b": 10},
		{"a": 2, "b": 20},
		{"a": 3, "b": 30},
		{"a": 4, "b": 40},
	}
	require.NoError(t, tr.Fit(params, []float64{0.25, 0.25, 0.25, 0.25}))

	rng := rand.New(rand.NewPCG(7, 0))
	const n = 20000
	sumA, sumB := 0.0, 0.0
	for i := 0; i < n; i++ {
		p := tr.Rvs(rng)
		require.Len(t, p, 2)
		sumA += p["a"]
		sumB += p["b"]
	}
	assert.InDelta(t, 2.5, sumA/n, 0.05)
	assert.InDelta(t, 25, sumB/n, 0.5)
	assert.Greater(t, tr.Pdf(domain.Parameter{"a": 2.5, "b": 25}), 0.0)
	assert.Equal(t, 0.0, tr.Pdf(domain.Parameter{"a": 2.5}))
}

func TestMultivariateNormal_CollinearParticlesFallBackToDiagonal(t *testing.T) {
	tr := NewMultivariateNormal()
	params := []domain.Parameter{
		{"a": 1, "b": 2},
		{"a": 2, "b": 4},
		{"a": 3, "b": 6},
		{"a": 4, "b": 8},
	}
	require.NoError(t, tr.Fit(params, []float64{1, 1, 1, 1}))
	require.True(t, tr.Fitted())

	cov := tr.Covariance()
	assert.Zero(t, cov.At(0, 1))
	assert.Greater(t, cov.At(0, 0), 0.0)
	assert.Greater(t, cov.At(1, 1), 0.0)

	for _, p := range params {
		d := tr.Pdf(p)
		assert.False(t, math.IsInf(d, 0) || math.IsNaN(d), "density at %v is %v", p, d)
		assert.Greater(t, d, 0.0)
	}
	off := tr.Pdf(domain.Parameter{"a": 2.5, "b": 2})
	assert.False(t, math.IsInf(off, 0) || math.IsNaN(off))

	rng := rand.New(rand.NewPCG(3, 0))
	for i := 0; i < 100; i++ {
		p := tr.Rvs(rng)
		assert.False(t, math.IsNaN(p["a"]) || math.IsNaN(p["b"]))
	}
}

func TestMultivariateNormal_SingleParticle(t *testing.T) {
	tr := NewMultivariateNormal()
	require.NoError(t, tr.Fit([]domain.Parameter{{"a": 5}}, []float64{1}))
	cov := tr.Covariance()
	assert.InDelta(t, 0.25, cov.At(0, 0), 1e-12)

	p := tr.Rvs(rand.New(rand.NewPCG(1, 1)))
	assert.False(t, math.IsNaN(p["a"]))
}

func TestBandwidthFactor(t *testing.T) {
	assert.InDelta(t, math.Pow(4.0/300.0, 1.0/5.0), bandwidthFactor(Silverman, 100, 1), 1e-12)
	assert.InDelta(t, math.Pow(100, -1.0/5.0), bandwidthFactor(Scott, 100, 1), 1e-12)
}
