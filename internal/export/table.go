// Package export flattens stored populations into tables and writes them in
// several file formats.
package export

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
	"github.com/emiliopalmerini/abcsmc/internal/history"
)

const (
	// AllGenerations selects every stored generation.
	AllGenerations = -2
	// AllModels selects every model.
	AllModels = -1
)

// ErrNotTidy is returned when a tidy table is requested for more than one
// generation or model.
var ErrNotTidy = errors.New("tidy tables need a single generation and model")

// LongColumns are the columns of the long table.
var LongColumns = []string{"t", "m", "w", "par_name", "par_val", "distance", "sumstat_name", "sumstat_val"}

// Query selects the particles to export. T may be history.Last or
// AllGenerations, M may be AllModels.
type Query struct {
	T    int
	M    int
	Tidy bool
}

// Table is a rectangular result. Cells hold int, float64, string or nil.
type Table struct {
	Columns []string
	Rows    [][]any
}

// ParseGeneration accepts "all", "last" or a generation number.
func ParseGeneration(s string) (int, error) {
	switch s {
	case "all":
		return AllGenerations, nil
	case "", "last":
		return history.Last, nil
	}
	t, err := strconv.Atoi(s)
	if err != nil || t < 0 {
		return 0, fmt.Errorf("invalid generation %q", s)
	}
	return t, nil
}

// ParseModel accepts "all" or a model index.
func ParseModel(s string) (int, error) {
	if s == "" || s == "all" {
		return AllModels, nil
	}
	m, err := strconv.Atoi(s)
	if err != nil || m < 0 {
		return 0, fmt.Errorf("invalid model %q", s)
	}
	return m, nil
}

// PopulationExtended builds the table of the selected particles with one row
// per accepted simulation, parameter and summary statistic, or one row per
// accepted simulation if q.Tidy is set.
func PopulationExtended(ctx context.Context, h *history.History, q Query) (*Table, error) {
	gens, err := generations(ctx, h, q.T)
	if err != nil {
		return nil, err
	}
	if q.M >= h.NrModels() {
		return nil, fmt.Errorf("model %d: %w", q.M, domain.ErrNotFound)
	}
	if q.Tidy && (len(gens) > 1 || (q.M == AllModels && h.NrModels() > 1)) {
		return nil, ErrNotTidy
	}

	var m *int
	if q.M != AllModels {
		m = &q.M
	}
	type generation struct {
		t         int
		particles []domain.Particle
	}
	loaded := make([]generation, 0, len(gens))
	for _, t := range gens {
		particles, err := h.Particles(ctx, t, m)
		if err != nil {
			return nil, fmt.Errorf("failed to load generation %d: %w", t, err)
		}
		loaded = append(loaded, generation{t, particles})
	}

	if !q.Tidy {
		table := &Table{Columns: LongColumns}
		for _, g := range loaded {
			for _, p := range g.particles {
				table.Rows = append(table.Rows, longRows(g.t, p)...)
			}
		}
		return table, nil
	}

	var particles []domain.Particle
	t := 0
	if len(loaded) == 1 {
		t = loaded[0].t
		particles = loaded[0].particles
	}
	return tidy(t, particles), nil
}

func generations(ctx context.Context, h *history.History, t int) ([]int, error) {
	pops, err := h.Populations(ctx)
	if err != nil {
		return nil, err
	}
	if len(pops) == 0 {
		return nil, fmt.Errorf("analysis %d has no generations: %w", h.ID(), domain.ErrNotFound)
	}
	switch t {
	case AllGenerations:
		out := make([]int, len(pops))
		for i, p := range pops {
			out[i] = p.T
		}
		return out, nil
	case history.Last:
		return []int{h.MaxT()}, nil
	}
	for _, p := range pops {
		if p.T == t {
			return []int{t}, nil
		}
	}
	return nil, fmt.Errorf("generation %d: %w", t, domain.ErrNotFound)
}

func longRows(t int, p domain.Particle) [][]any {
	var rows [][]any
	params := p.Parameter.Keys()
	for j, d := range p.AcceptedDistances {
		var stats domain.SumStat
		if j < len(p.AcceptedSumStats) {
			stats = p.AcceptedSumStats[j]
		}
		for _, name := range params {
			for _, key := range stats.Keys() {
				rows = append(rows, []any{t, p.M, p.Weight, name, p.Parameter[name], d, key, stats[key]})
			}
		}
		if len(params) == 0 {
			for _, key := range stats.Keys() {
				rows = append(rows, []any{t, p.M, p.Weight, nil, nil, d, key, stats[key]})
			}
		}
	}
	return rows
}

func tidy(t int, particles []domain.Particle) *Table {
	parSet := map[string]bool{}
	statSet := map[string]bool{}
	for _, p := range particles {
		for k := range p.Parameter {
			parSet[k] = true
		}
		for _, s := range p.AcceptedSumStats {
			for k := range s {
				statSet[k] = true
			}
		}
	}
	pars := sortedSet(parSet)
	stats := sortedSet(statSet)

	table := &Table{Columns: []string{"t", "m", "w", "distance"}}
	for _, k := range pars {
		table.Columns = append(table.Columns, "par_"+k)
	}
	for _, k := range stats {
		table.Columns = append(table.Columns, "sumstat_"+k)
	}

	for _, p := range particles {
		for j, d := range p.AcceptedDistances {
			row := []any{t, p.M, p.Weight, d}
			for _, k := range pars {
				row = append(row, cell(p.Parameter, k))
			}
			var s domain.SumStat
			if j < len(p.AcceptedSumStats) {
				s = p.AcceptedSumStats[j]
			}
			for _, k := range stats {
				row = append(row, cell(s, k))
			}
			table.Rows = append(table.Rows, row)
		}
	}
	return table
}

func cell[M ~map[string]float64](m M, k string) any {
	if v, ok := m[k]; ok {
		return v
	}
	return nil
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
