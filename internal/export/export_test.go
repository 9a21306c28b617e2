package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/emiliopalmerini/abcsmc/internal/adapters/memory"
	"github.com/emiliopalmerini/abcsmc/internal/domain"
	"github.com/emiliopalmerini/abcsmc/internal/history"
)

func particle(m int, w, a, d float64) domain.Particle {
	return domain.Particle{
		M:                 m,
		Weight:            w,
		Parameter:         domain.Parameter{"a": a, "b": 2 * a},
		Accepted:          true,
		AcceptedDistances: []float64{d},
		AcceptedSumStats:  []domain.SumStat{{"y": a + d}},
	}
}

func newHistory(t *testing.T, models ...string) *history.History {
	t.Helper()
	ctx := context.Background()
	h := history.New(memory.NewHistoryRepository())
	require.NoError(t, h.Start(ctx, &domain.Analysis{UUID: "u", ModelNames: models}))
	for gen := 0; gen < 2; gen++ {
		pop := &domain.Population{T: gen, Epsilon: 1, NrSimulations: 4}
		for i := range models {
			pop.Particles = append(pop.Particles, particle(i, 0.5, float64(gen+i), 0.1))
		}
		pop.Particles = append(pop.Particles, particle(0, 0.5, float64(gen), 0.2))
		_, err := h.AppendPopulation(ctx, pop)
		require.NoError(t, err)
	}
	return h
}

func TestParseGeneration(t *testing.T) {
	tests := map[string]int{"all": AllGenerations, "last": history.Last, "": history.Last, "3": 3}
	for in, want := range tests {
		got, err := ParseGeneration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"-1", "x"} {
		_, err := ParseGeneration(in)
		assert.Error(t, err, in)
	}
}

func TestParseModel(t *testing.T) {
	m, err := ParseModel("all")
	require.NoError(t, err)
	assert.Equal(t, AllModels, m)
	m, err = ParseModel("1")
	require.NoError(t, err)
	assert.Equal(t, 1, m)
	_, err = ParseModel("-2")
	assert.Error(t, err)
}

func TestPopulationExtended_Long(t *testing.T) {
	ctx := context.Background()
	h := newHistory(t, "m0", "m1")

	table, err := PopulationExtended(ctx, h, Query{T: history.Last, M: AllModels})
	require.NoError(t, err)
	assert.Equal(t, LongColumns, table.Columns)
	// 3 particles x 2 parameters x 1 statistic
	require.Len(t, table.Rows, 6)
	for _, r := range table.Rows {
		assert.Equal(t, 1, r[0])
	}

	table, err = PopulationExtended(ctx, h, Query{T: AllGenerations, M: 1})
	require.NoError(t, err)
	require.Len(t, table.Rows, 4)
	assert.Equal(t, 0, table.Rows[0][0])
	assert.Equal(t, 1, table.Rows[0][1])
	assert.Equal(t, "a", table.Rows[0][3])
	assert.Equal(t, "y", table.Rows[0][6])
}

func TestPopulationExtended_Tidy(t *testing.T) {
	ctx := context.Background()
	h := newHistory(t, "m0", "m1")

	table, err := PopulationExtended(ctx, h, Query{T: 0, M: 0, Tidy: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"t", "m", "w", "distance", "par_a", "par_b", "sumstat_y"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []any{0, 0, 0.5, 0.1, 0.0, 0.0, 0.1}, table.Rows[0])

	_, err = PopulationExtended(ctx, h, Query{T: history.Last, M: AllModels, Tidy: true})
	assert.ErrorIs(t, err, ErrNotTidy)
	_, err = PopulationExtended(ctx, h, Query{T: AllGenerations, M: 0, Tidy: true})
	assert.ErrorIs(t, err, ErrNotTidy)

	single := newHistory(t, "only")
	table, err = PopulationExtended(ctx, single, Query{T: history.Last, M: AllModels, Tidy: true})
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)
}

func TestPopulationExtended_NotFound(t *testing.T) {
	ctx := context.Background()
	h := newHistory(t, "m0")
	_, err := PopulationExtended(ctx, h, Query{T: 7, M: AllModels})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = PopulationExtended(ctx, h, Query{T: 0, M: 3})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func sampleTable() *Table {
	return &Table{
		Columns: []string{"t", "name", "value"},
		Rows: [][]any{
			{0, "<x>", 1.5},
			{1, "y", nil},
		},
	}
}

func TestWrite(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		format string
		check  func(t *testing.T, out string)
	}{
		{"csv", func(t *testing.T, out string) {
			assert.Equal(t, "t,name,value\n0,<x>,1.5\n1,y,\n", out)
		}},
		{"tsv", func(t *testing.T, out string) {
			assert.Equal(t, "t\tname\tvalue\n0\t<x>\t1.5\n1\ty\t\n", out)
		}},
		{"json", func(t *testing.T, out string) {
			var recs []map[string]any
			require.NoError(t, json.Unmarshal([]byte(out), &recs))
			require.Len(t, recs, 2)
			assert.Equal(t, "<x>", recs[0]["name"])
			assert.Nil(t, recs[1]["value"])
		}},
		{"yaml", func(t *testing.T, out string) {
			var recs []map[string]any
			require.NoError(t, yaml.Unmarshal([]byte(out), &recs))
			require.Len(t, recs, 2)
			assert.Equal(t, 1.5, recs[0]["value"])
		}},
		{"html", func(t *testing.T, out string) {
			assert.Contains(t, out, "<th>name</th>")
			assert.Contains(t, out, "<td>&lt;x&gt;</td>")
			assert.Equal(t, 3, strings.Count(out, "<tr>"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Write(ctx, &buf, sampleTable(), tt.format))
			tt.check(t, buf.String())
		})
	}

	var buf bytes.Buffer
	assert.Error(t, Write(ctx, &buf, sampleTable(), "feather"))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yml")
	require.NoError(t, WriteFile(context.Background(), path, sampleTable(), ""))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: <x>")

	assert.Equal(t, "html", FormatFromPath("x.HTM"))
	assert.Equal(t, "csv", FormatFromPath("x.csv"))
}
