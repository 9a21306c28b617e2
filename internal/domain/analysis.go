package domain

import "time"

// Analysis is one ABC-SMC run stored in the history.
type Analysis struct {
	ID                   int64
	UUID                 string
	StartTime            time.Time
	EndTime              *time.Time
	ModelNames           []string
	GroundTruthModel     int
	GroundTruthParameter Parameter
	ObservedSumStat      SumStat
	Options              map[string]string
	DistanceConfig       string
	EpsilonConfig        string
}

// Done reports whether the run has been marked finished.
func (a *Analysis) Done() bool {
	return a.EndTime != nil
}
