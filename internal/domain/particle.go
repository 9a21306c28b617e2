package domain

import (
	"fmt"
)

// Particle is a (model, parameter) pair evaluated against the observed data.
type Particle struct {
	M                 int
	Parameter         Parameter
	Weight            float64
	AcceptedDistances []float64
	AcceptedSumStats  []SumStat
	Accepted          bool
	// NrSimulations is the number of model evaluations spent on this particle.
	NrSimulations int
	// Preliminary marks a particle whose evaluation has not completed.
	Preliminary bool
}

// Sample is the outcome of one sampling call: the accepted particles and,
// optionally, the rejected ones.
type Sample struct {
	Particles     []Particle
	NrEvaluations int
	// Ok is false when sampling stopped before reaching the requested number
	// of acceptances, e.g. because the evaluation budget was exhausted.
	Ok bool
}

// Accepted returns the accepted particles.
func (s *Sample) Accepted() []Particle {
	var out []Particle
	for _, p := range s.Particles {
		if p.Accepted {
			out = append(out, p)
		}
	}
	return out
}

func (s *Sample) NAccepted() int {
	n := 0
	for _, p := range s.Particles {
		if p.Accepted {
			n++
		}
	}
	return n
}

// NormalizeWeights rescales the weights of the accepted particles to sum to one.
func (s *Sample) NormalizeWeights() error {
	total := 0.0
	for _, p := range s.Particles {
		if p.Accepted {
			total += p.Weight
		}
	}
	if s.NAccepted() == 0 {
		return nil
	}
	if total <= 0 {
		return fmt.Errorf("cannot normalize weights: total accepted weight is %g", total)
	}
	for i := range s.Particles {
		if s.Particles[i].Accepted {
			s.Particles[i].Weight /= total
		}
	}
	return nil
}

// Distances returns the accepted distances of all accepted particles, one entry
// per accepted simulation, together with the particle weight split evenly
// across its simulations.
func (s *Sample) Distances() ([]float64, []float64) {
	return particleDistances(s.Accepted())
}

func particleDistances(particles []Particle) ([]float64, []float64) {
	var distances, weights []float64
	for _, p := range particles {
		n := len(p.AcceptedDistances)
		for _, d := range p.AcceptedDistances {
			distances = append(distances, d)
			weights = append(weights, p.Weight/float64(n))
		}
	}
	return distances, weights
}
