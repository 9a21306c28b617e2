// Package transition implements the perturbation kernels that propose new
// parameters from the previous generation's weighted particles.
package transition

import (
	"math/rand/v2"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
)

// Transition is a proposal density fitted to a weighted particle population.
type Transition interface {
	// Fit fits the kernel to the particles. Weights must be non-negative and
	// are normalized internally.
	Fit(params []domain.Parameter, weights []float64) error
	// Rvs draws a perturbed parameter.
	Rvs(rng *rand.Rand) domain.Parameter
	// Pdf evaluates the proposal density at p.
	Pdf(p domain.Parameter) float64
	// Fitted reports whether Fit succeeded at least once.
	Fitted() bool
}

// Factory creates a fresh transition for each model.
type Factory func() Transition
