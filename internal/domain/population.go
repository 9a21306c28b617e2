package domain

import "time"

// Population is the weighted set of accepted particles of one generation.
type Population struct {
	T             int
	Epsilon       float64
	NrSimulations int
	Particles     []Particle
	EndTime       time.Time
}

// ModelProbabilities returns the normalized weight mass per model index.
func (p *Population) ModelProbabilities(nrModels int) []float64 {
	probs := make([]float64, nrModels)
	total := 0.0
	for _, particle := range p.Particles {
		if particle.M < 0 || particle.M >= nrModels {
			continue
		}
		probs[particle.M] += particle.Weight
		total += particle.Weight
	}
	if total > 0 {
		for i := range probs {
			probs[i] /= total
		}
	}
	return probs
}

// ModelParticles returns the parameters of model m and their weights, normalized
// to sum to one within the model.
func (p *Population) ModelParticles(m int) ([]Parameter, []float64) {
	var params []Parameter
	var weights []float64
	total := 0.0
	for _, particle := range p.Particles {
		if particle.M != m {
			continue
		}
		params = append(params, particle.Parameter)
		weights = append(weights, particle.Weight)
		total += particle.Weight
	}
	if total > 0 {
		for i := range weights {
			weights[i] /= total
		}
	}
	return params, weights
}

// Distances returns one entry per accepted simulation with the weights split
// evenly within each particle.
func (p *Population) Distances() ([]float64, []float64) {
	return particleDistances(p.Particles)
}

// PopulationSummary is the per-generation metadata stored in the history.
type PopulationSummary struct {
	T             int
	Epsilon       float64
	NrSimulations int
	NrParticles   int
	EndTime       time.Time
}

// ModelProbability is the probability of model M at generation T.
type ModelProbability struct {
	T           int
	M           int
	Name        string
	Probability float64
}
