package templates

import "time"

// AnalysisRow is one line of the analyses list.
type AnalysisRow struct {
	ID          int64
	UUID        string
	StartTime   time.Time
	EndTime     *time.Time
	Models      []string
	Generations int
}

// PopulationRow is one generation of an analysis.
type PopulationRow struct {
	T                   int
	Epsilon             float64
	NrSimulations       int
	NrParticles         int
	EffectiveSampleSize float64
	ModelProbabilities  []float64
	EndTime             time.Time
}

// AnalysisDetail is the analysis page.
type AnalysisDetail struct {
	Analysis    AnalysisRow
	Observed    []Stat
	Options     []Stat
	Distance    string
	Epsilon     string
	Populations []PopulationRow
}

// Stat is a named value.
type Stat struct {
	Name  string
	Value string
}

// ParameterRow holds the weighted moments of one parameter.
type ParameterRow struct {
	Name string
	Mean float64
	Std  float64
	Min  float64
	Max  float64
}

// ModelPosterior is the parameter posterior of one model in a generation.
type ModelPosterior struct {
	M           int
	Name        string
	Probability float64
	NrParticles int
	Parameters  []ParameterRow
}

// PopulationDetail is the generation page.
type PopulationDetail struct {
	AnalysisID int64
	T          int
	Epsilon    float64
	Models     []ModelPosterior
}
