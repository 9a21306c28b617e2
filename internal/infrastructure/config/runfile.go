package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EpsilonSpec selects the acceptance threshold schedule.
type EpsilonSpec struct {
	Name       string    `yaml:"name"`
	Alpha      float64   `yaml:"alpha"`
	Multiplier float64   `yaml:"multiplier"`
	Values     []float64 `yaml:"values"`
}

// DistanceSpec selects the distance function.
type DistanceSpec struct {
	Name string  `yaml:"name"`
	P    float64 `yaml:"p"`
}

// SamplerSpec selects the sampler.
type SamplerSpec struct {
	Name    string `yaml:"name"`
	Workers int    `yaml:"workers"`
}

// RunFile describes an inference run. Observed data are simulated from
// GroundTruth under the first model unless Observed is given.
type RunFile struct {
	Models      []string           `yaml:"models"`
	Timepoints  []float64          `yaml:"timepoints"`
	Observed    map[string]float64 `yaml:"observed"`
	GroundTruth map[string]float64 `yaml:"ground_truth"`
	Seed        uint64             `yaml:"seed"`

	PopulationSize         int   `yaml:"population_size"`
	Generations            int   `yaml:"generations"`
	SamplesPerParticle     []int `yaml:"samples_per_particle"`
	MaxAttemptsPerParticle int   `yaml:"max_attempts_per_particle"`
	MinParticles           int   `yaml:"min_particles"`

	MinimumEpsilon             float64 `yaml:"minimum_epsilon"`
	MaxTotalSimulations        int     `yaml:"max_total_simulations"`
	ProbabilityToStay          float64 `yaml:"probability_to_stay"`
	ContinueIfSingleModelAlive bool    `yaml:"continue_if_single_model_alive"`

	Epsilon  EpsilonSpec       `yaml:"epsilon"`
	Distance DistanceSpec      `yaml:"distance"`
	Sampler  SamplerSpec       `yaml:"sampler"`
	Options  map[string]string `yaml:"options"`
}

// DefaultRunFile is the conversion reaction with a median epsilon schedule.
func DefaultRunFile() *RunFile {
	return &RunFile{
		Models:            []string{"conversion_reaction"},
		PopulationSize:    100,
		Generations:       5,
		ProbabilityToStay: 0.7,
		Epsilon:           EpsilonSpec{Name: "median", Multiplier: 1},
		Distance:          DistanceSpec{Name: "pnorm", P: 2},
		Sampler:           SamplerSpec{Name: "parallel"},
	}
}

// LoadRunFile reads a run file. Unset fields keep their defaults.
func LoadRunFile(path string) (*RunFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}
	return ParseRunFile(data)
}

// ParseRunFile decodes and validates a YAML run file.
func ParseRunFile(data []byte) (*RunFile, error) {
	rf := DefaultRunFile()
	if err := yaml.Unmarshal(data, rf); err != nil {
		return nil, fmt.Errorf("failed to parse run file: %w", err)
	}
	if err := rf.Validate(); err != nil {
		return nil, err
	}
	return rf, nil
}

// Validate checks the run file for values the engine would reject.
func (rf *RunFile) Validate() error {
	if len(rf.Models) == 0 {
		return fmt.Errorf("run file: no models")
	}
	if rf.PopulationSize < 1 {
		return fmt.Errorf("run file: population_size must be positive, got %d", rf.PopulationSize)
	}
	if rf.Generations < 1 && len(rf.SamplesPerParticle) == 0 {
		return fmt.Errorf("run file: need generations or samples_per_particle")
	}
	if rf.ProbabilityToStay < 0 || rf.ProbabilityToStay > 1 {
		return fmt.Errorf("run file: probability_to_stay %g outside [0, 1]", rf.ProbabilityToStay)
	}
	if rf.Sampler.Workers < 0 {
		return fmt.Errorf("run file: negative sampler workers")
	}
	return nil
}

// Marshal encodes the run file as YAML.
func (rf *RunFile) Marshal() ([]byte, error) {
	return yaml.Marshal(rf)
}
