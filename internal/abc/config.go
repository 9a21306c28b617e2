package abc

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/emiliopalmerini/abcsmc/internal/distance"
	"github.com/emiliopalmerini/abcsmc/internal/epsilon"
	"github.com/emiliopalmerini/abcsmc/internal/model"
	"github.com/emiliopalmerini/abcsmc/internal/ports"
	"github.com/emiliopalmerini/abcsmc/internal/random"
	"github.com/emiliopalmerini/abcsmc/internal/sampler"
	"github.com/emiliopalmerini/abcsmc/internal/transition"
)

const (
	DefaultMaxAttemptsPerParticle = 500
	DefaultProbabilityToStay      = 0.7
)

// Config wires the components of an ABCSMC run. Models, ParameterPriors and
// Transitions are indexed by model.
type Config struct {
	Models          []model.Model
	ParameterPriors []random.Distribution
	// Transitions defaults to a multivariate normal per model.
	Transitions []transition.Transition
	// ModelPrior defaults to the uniform distribution over the models.
	ModelPrior *random.DiscreteRV
	// ModelKernel defaults to staying with probability 0.7.
	ModelKernel *random.ModelPerturbationKernel

	Distance       distance.Distance
	Epsilon        epsilon.Epsilon
	PopulationSize int
	// Sampler defaults to a single-core sampler seeded with 0.
	Sampler sampler.Sampler
	// Summary defaults to the identity.
	Summary model.SummaryFunc

	MaxAttemptsPerParticle    int
	MinParticlesPerPopulation int
	// ContinueIfSingleModelAlive keeps running after all but one model died.
	ContinueIfSingleModelAlive bool

	Repository ports.HistoryRepository
	Metrics    ports.MetricsExporter
	Logger     *zap.Logger
}

func (c *Config) validate() error {
	n := len(c.Models)
	if n == 0 {
		return fmt.Errorf("no models")
	}
	if len(c.ParameterPriors) != n {
		return fmt.Errorf("got %d models but %d parameter priors", n, len(c.ParameterPriors))
	}
	if c.Transitions != nil && len(c.Transitions) != n {
		return fmt.Errorf("got %d models but %d transitions", n, len(c.Transitions))
	}
	if c.ModelPrior != nil && len(c.ModelPrior.Probabilities) != n {
		return fmt.Errorf("model prior covers %d models, want %d", len(c.ModelPrior.Probabilities), n)
	}
	if c.ModelKernel != nil && c.ModelKernel.NrModels != n {
		return fmt.Errorf("model kernel covers %d models, want %d", c.ModelKernel.NrModels, n)
	}
	if c.PopulationSize < 1 {
		return fmt.Errorf("population size must be positive, got %d", c.PopulationSize)
	}
	if c.Distance == nil {
		return fmt.Errorf("no distance")
	}
	if c.Epsilon == nil {
		return fmt.Errorf("no epsilon schedule")
	}
	if c.Repository == nil {
		return fmt.Errorf("no history repository")
	}
	return nil
}

func (c *Config) setDefaults() {
	n := len(c.Models)
	if c.Transitions == nil {
		c.Transitions = make([]transition.Transition, n)
		for i := range c.Transitions {
			c.Transitions[i] = transition.NewMultivariateNormal()
		}
	}
	if c.ModelPrior == nil {
		p := random.NewDiscreteUniform(n)
		c.ModelPrior = &p
	}
	if c.ModelKernel == nil {
		k, _ := random.NewModelPerturbationKernel(n, DefaultProbabilityToStay)
		c.ModelKernel = &k
	}
	if c.Sampler == nil {
		c.Sampler = sampler.NewSingleCore(0)
	}
	if c.Summary == nil {
		c.Summary = model.Identity
	}
	if c.MaxAttemptsPerParticle <= 0 {
		c.MaxAttemptsPerParticle = DefaultMaxAttemptsPerParticle
	}
	if c.MinParticlesPerPopulation <= 0 {
		c.MinParticlesPerPopulation = 1
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// ModelNames returns the names of the configured models.
func (c *Config) ModelNames() []string {
	names := make([]string, len(c.Models))
	for i, m := range c.Models {
		names[i] = m.Name()
	}
	return names
}
