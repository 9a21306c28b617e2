package transition

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
	"github.com/emiliopalmerini/abcsmc/internal/random"
)

type Bandwidth string

// maxCondition is the largest covariance condition number used as is.
const maxCondition = 1e12

const (
	Silverman Bandwidth = "silverman"
	Scott     Bandwidth = "scott"
)

// MultivariateNormal is a weighted mixture of Gaussians centered on the
// particles, sharing the population covariance scaled by a bandwidth factor.
type MultivariateNormal struct {
	// Scaling multiplies the covariance after the bandwidth rule. Zero means 1.
	Scaling   float64
	Bandwidth Bandwidth

	keys    []string
	centers [][]float64
	weights []float64
	cov     *mat.SymDense
	lower   *mat.TriDense
	kernel  *distmv.Normal
}

func NewMultivariateNormal() *MultivariateNormal {
	return &MultivariateNormal{Scaling: 1, Bandwidth: Silverman}
}

func (t *MultivariateNormal) Fitted() bool {
	return t.kernel != nil
}

// Covariance returns the fitted kernel covariance.
func (t *MultivariateNormal) Covariance() *mat.SymDense {
	return t.cov
}

func (t *MultivariateNormal) Fit(params []domain.Parameter, weights []float64) error {
	if len(params) == 0 {
		return fmt.Errorf("cannot fit transition: %w", domain.ErrNoParticles)
	}
	if len(params) != len(weights) {
		return fmt.Errorf("cannot fit transition: %d particles but %d weights", len(params), len(weights))
	}
	keys := params[0].Keys()
	d := len(keys)
	if d == 0 {
		return fmt.Errorf("cannot fit transition: particles have no parameters")
	}

	total := 0.0
	for _, w := range weights {
		if w < 0 {
			return fmt.Errorf("cannot fit transition: negative weight %g", w)
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("cannot fit transition: weights sum to %g", total)
	}

	centers := make([][]float64, len(params))
	w := make([]float64, len(params))
	for i, p := range params {
		v, err := p.Vector(keys)
		if err != nil {
			return fmt.Errorf("cannot fit transition: %w", err)
		}
		centers[i] = v
		w[i] = weights[i] / total
	}

	cov := weightedCovariance(centers, w, d)
	factor := bandwidthFactor(t.Bandwidth, domain.EffectiveSampleSize(w), d)
	scaling := t.Scaling
	if scaling == 0 {
		scaling = 1
	}
	cov.ScaleSym(factor*factor*scaling, cov)
	regularize(cov, centers, w)

	// Collinear particles give a singular covariance; keep only the variances.
	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok || chol.Cond() > maxCondition {
		diag := mat.NewSymDense(d, nil)
		for j := 0; j < d; j++ {
			diag.SetSym(j, j, cov.At(j, j))
		}
		cov = diag
		if ok := chol.Factorize(cov); !ok {
			return fmt.Errorf("cannot fit transition: covariance is not positive definite")
		}
	}
	var lower mat.TriDense
	chol.LTo(&lower)

	kernel, ok := distmv.NewNormal(make([]float64, d), cov, nil)
	if !ok {
		return fmt.Errorf("cannot fit transition: covariance is not positive definite")
	}

	t.keys = keys
	t.centers = centers
	t.weights = w
	t.cov = cov
	t.lower = &lower
	t.kernel = kernel
	return nil
}

func (t *MultivariateNormal) Rvs(rng *rand.Rand) domain.Parameter {
	i := random.DrawIndex(t.weights, rng)
	d := len(t.keys)
	z := mat.NewVecDense(d, nil)
	for j := 0; j < d; j++ {
		z.SetVec(j, rng.NormFloat64())
	}
	var step mat.VecDense
	step.MulVec(t.lower, z)
	x := make([]float64, d)
	for j := range x {
		x[j] = t.centers[i][j] + step.AtVec(j)
	}
	return domain.ParameterFromVector(t.keys, x)
}

func (t *MultivariateNormal) Pdf(p domain.Parameter) float64 {
	if len(p) != len(t.keys) {
		return 0
	}
	x, err := p.Vector(t.keys)
	if err != nil {
		return 0
	}
	diff := make([]float64, len(x))
	density := 0.0
	for i, c := range t.centers {
		for j := range x {
			diff[j] = x[j] - c[j]
		}
		density += t.weights[i] * math.Exp(t.kernel.LogProb(diff))
	}
	return density
}

func weightedCovariance(x [][]float64, w []float64, d int) *mat.SymDense {
	mean := make([]float64, d)
	for i, row := range x {
		for j, v := range row {
			mean[j] += w[i] * v
		}
	}
	cov := mat.NewSymDense(d, nil)
	for j := 0; j < d; j++ {
		for k := j; k < d; k++ {
			s := 0.0
			for i, row := range x {
				s += w[i] * (row[j] - mean[j]) * (row[k] - mean[k])
			}
			cov.SetSym(j, k, s)
		}
	}
	return cov
}

// regularize replaces degenerate variances, e.g. from a single particle, with a
// fraction of the parameter magnitude so the kernel can still move.
func regularize(cov *mat.SymDense, x [][]float64, w []float64) {
	d, _ := cov.Dims()
	for j := 0; j < d; j++ {
		if cov.At(j, j) > 1e-12 {
			continue
		}
		mean := 0.0
		for i, row := range x {
			mean += w[i] * row[j]
		}
		scale := 0.1 * math.Abs(mean)
		if scale == 0 {
			scale = 0.1
		}
		cov.SetSym(j, j, scale*scale)
	}
}

func bandwidthFactor(rule Bandwidth, n float64, d int) float64 {
	if n < 1 {
		n = 1
	}
	dim := float64(d)
	switch rule {
	case Scott:
		return math.Pow(n, -1/(dim+4))
	default:
		return math.Pow(4/(n*(dim+2)), 1/(dim+4))
	}
}
