package random

import (
	"fmt"
	"math/rand/v2"
)

// ModelPerturbationKernel moves a particle from one model to another. With
// probability ProbabilityToStay it stays; otherwise it jumps uniformly to one of
// the other models.
type ModelPerturbationKernel struct {
	NrModels          int
	ProbabilityToStay float64
}

func NewModelPerturbationKernel(nrModels int, probabilityToStay float64) (ModelPerturbationKernel, error) {
	if nrModels < 1 {
		return ModelPerturbationKernel{}, fmt.Errorf("need at least one model, got %d", nrModels)
	}
	if probabilityToStay < 0 || probabilityToStay > 1 {
		return ModelPerturbationKernel{}, fmt.Errorf("probability to stay %g outside [0, 1]", probabilityToStay)
	}
	return ModelPerturbationKernel{NrModels: nrModels, ProbabilityToStay: probabilityToStay}, nil
}

func (k ModelPerturbationKernel) Rvs(m int, rng *rand.Rand) int {
	if k.NrModels == 1 || rng.Float64() < k.ProbabilityToStay {
		return m
	}
	n := rng.IntN(k.NrModels - 1)
	if n >= m {
		n++
	}
	return n
}

// Pmf returns the probability of moving from model m to model n.
func (k ModelPerturbationKernel) Pmf(n, m int) float64 {
	if n < 0 || n >= k.NrModels || m < 0 || m >= k.NrModels {
		return 0
	}
	if k.NrModels == 1 {
		return 1
	}
	if n == m {
		return k.ProbabilityToStay
	}
	return (1 - k.ProbabilityToStay) / float64(k.NrModels-1)
}
