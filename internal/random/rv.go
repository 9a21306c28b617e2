// Package random provides the prior distributions of ABC-SMC: univariate
// random variables, joint parameter priors, model priors and the model
// perturbation kernel. Sampling always draws from a caller-supplied RNG so that
// concurrent samplers can hand each evaluation its own stream.
package random

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

type univariate interface {
	Prob(x float64) float64
	CDF(x float64) float64
	Quantile(p float64) float64
}

// RV is a univariate random variable.
type RV struct {
	Kind string
	Args []float64
	dist univariate
}

// NewRV creates a random variable of the given kind:
//
//	uniform(min, max)  normal(mu, sigma)  lognormal(mu, sigma)
//	laplace(mu, scale) exponential(rate)  gamma(alpha, beta)  beta(alpha, beta)
func NewRV(kind string, args ...float64) (RV, error) {
	need := 2
	if kind == "exponential" {
		need = 1
	}
	if len(args) != need {
		return RV{}, fmt.Errorf("%s takes %d arguments, got %d", kind, need, len(args))
	}
	var d univariate
	switch kind {
	case "uniform":
		if args[0] >= args[1] {
			return RV{}, fmt.Errorf("uniform: min %g must be below max %g", args[0], args[1])
		}
		d = distuv.Uniform{Min: args[0], Max: args[1]}
	case "normal":
		if args[1] <= 0 {
			return RV{}, fmt.Errorf("normal: sigma must be positive")
		}
		d = distuv.Normal{Mu: args[0], Sigma: args[1]}
	case "lognormal":
		if args[1] <= 0 {
			return RV{}, fmt.Errorf("lognormal: sigma must be positive")
		}
		d = distuv.LogNormal{Mu: args[0], Sigma: args[1]}
	case "laplace":
		if args[1] <= 0 {
			return RV{}, fmt.Errorf("laplace: scale must be positive")
		}
		d = distuv.Laplace{Mu: args[0], Scale: args[1]}
	case "exponential":
		if args[0] <= 0 {
			return RV{}, fmt.Errorf("exponential: rate must be positive")
		}
		d = distuv.Exponential{Rate: args[0]}
	case "gamma":
		if args[0] <= 0 || args[1] <= 0 {
			return RV{}, fmt.Errorf("gamma: alpha and beta must be positive")
		}
		d = distuv.Gamma{Alpha: args[0], Beta: args[1]}
	case "beta":
		if args[0] <= 0 || args[1] <= 0 {
			return RV{}, fmt.Errorf("beta: alpha and beta must be positive")
		}
		d = distuv.Beta{Alpha: args[0], Beta: args[1]}
	default:
		return RV{}, fmt.Errorf("unknown distribution %q", kind)
	}
	return RV{Kind: kind, Args: append([]float64(nil), args...), dist: d}, nil
}

// MustRV is like NewRV but panics on error.
func MustRV(kind string, args ...float64) RV {
	rv, err := NewRV(kind, args...)
	if err != nil {
		panic(err)
	}
	return rv
}

// Rvs draws one value by inverse transform sampling.
func (r RV) Rvs(rng *rand.Rand) float64 {
	u := rng.Float64()
	for u == 0 {
		u = rng.Float64()
	}
	return r.dist.Quantile(u)
}

func (r RV) Pdf(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return r.dist.Prob(x)
}

func (r RV) Cdf(x float64) float64 {
	return r.dist.CDF(x)
}

func (r RV) String() string {
	args := make([]string, len(r.Args))
	for i, a := range r.Args {
		args[i] = strconv.FormatFloat(a, 'g', -1, 64)
	}
	return fmt.Sprintf("%s(%s)", r.Kind, strings.Join(args, ", "))
}

// DiscreteRV is a distribution over the integers 0..len(Probabilities)-1.
type DiscreteRV struct {
	Probabilities []float64
}

// NewDiscreteUniform returns the uniform distribution over n outcomes.
func NewDiscreteUniform(n int) DiscreteRV {
	p := make([]float64, n)
	for i := range p {
		p[i] = 1 / float64(n)
	}
	return DiscreteRV{Probabilities: p}
}

// NewDiscrete normalizes the given non-negative weights.
func NewDiscrete(weights []float64) (DiscreteRV, error) {
	total := 0.0
	for _, w := range weights {
		if w < 0 {
			return DiscreteRV{}, fmt.Errorf("negative weight %g", w)
		}
		total += w
	}
	if total == 0 {
		return DiscreteRV{}, fmt.Errorf("weights sum to zero")
	}
	p := make([]float64, len(weights))
	for i, w := range weights {
		p[i] = w / total
	}
	return DiscreteRV{Probabilities: p}, nil
}

func (d DiscreteRV) Rvs(rng *rand.Rand) int {
	return drawIndex(d.Probabilities, rng)
}

func (d DiscreteRV) Pmf(m int) float64 {
	if m < 0 || m >= len(d.Probabilities) {
		return 0
	}
	return d.Probabilities[m]
}

// drawIndex draws an index proportionally to weights, which need not sum to one.
func drawIndex(weights []float64, rng *rand.Rand) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	u := rng.Float64() * total
	acc := 0.0
	last := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		last = i
		if u < acc {
			return i
		}
	}
	return last
}

// DrawIndex draws an index with probability proportional to weights.
func DrawIndex(weights []float64, rng *rand.Rand) int {
	return drawIndex(weights, rng)
}
