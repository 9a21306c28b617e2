package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/emiliopalmerini/abcsmc/internal/export"
	"github.com/emiliopalmerini/abcsmc/internal/history"
	"github.com/emiliopalmerini/abcsmc/internal/web/templates"
)

type apiAnalysis struct {
	ID          int64      `json:"id"`
	UUID        string     `json:"uuid"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Models      []string   `json:"models"`
	Generations int        `json:"generations"`
}

type apiPopulation struct {
	T                   int       `json:"t"`
	Epsilon             float64   `json:"epsilon"`
	NrSimulations       int       `json:"nr_simulations"`
	NrParticles         int       `json:"nr_particles"`
	EffectiveSampleSize float64   `json:"effective_sample_size"`
	ModelProbabilities  []float64 `json:"model_probabilities"`
	EndTime             time.Time `json:"end_time"`
}

type apiAnalysisDetail struct {
	apiAnalysis
	Observed    map[string]string `json:"observed"`
	Options     map[string]string `json:"options"`
	Distance    string            `json:"distance"`
	Epsilon     string            `json:"epsilon"`
	Populations []apiPopulation   `json:"populations"`
}

func toAPIAnalysis(r templates.AnalysisRow) apiAnalysis {
	return apiAnalysis{
		ID:          r.ID,
		UUID:        r.UUID,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Models:      r.Models,
		Generations: r.Generations,
	}
}

func (s *Server) handleAPIAnalyses(w http.ResponseWriter, r *http.Request) {
	rows, err := s.fetchAnalyses(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]apiAnalysis, len(rows))
	for i, row := range rows {
		out[i] = toAPIAnalysis(row)
	}
	writeJSON(w, out)
}

func (s *Server) handleAPIAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	d, err := s.fetchAnalysis(r.Context(), int64(id))
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := apiAnalysisDetail{
		apiAnalysis: toAPIAnalysis(d.Analysis),
		Observed:    map[string]string{},
		Options:     map[string]string{},
		Distance:    d.Distance,
		Epsilon:     d.Epsilon,
		Populations: make([]apiPopulation, len(d.Populations)),
	}
	for _, st := range d.Observed {
		out.Observed[st.Name] = st.Value
	}
	for _, st := range d.Options {
		out.Options[st.Name] = st.Value
	}
	for i, p := range d.Populations {
		out.Populations[i] = apiPopulation(p)
	}
	writeJSON(w, out)
}

func (s *Server) handleAPIDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.repo.DeleteAnalysis(r.Context(), int64(id)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var contentTypes = map[string]string{
	"csv":  "text/csv",
	"tsv":  "text/tab-separated-values",
	"json": "application/json",
	"yaml": "application/yaml",
	"html": "text/html; charset=utf-8",
}

func (s *Server) handleAPIExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathInt(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	format := q.Get("format")
	if format == "" {
		format = "csv"
	}
	contentType, ok := contentTypes[format]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown format %q", format), http.StatusBadRequest)
		return
	}
	query := export.Query{}
	if query.T, err = export.ParseGeneration(q.Get("t")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if query.M, err = export.ParseModel(q.Get("m")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if v := q.Get("tidy"); v != "" {
		if query.Tidy, err = strconv.ParseBool(v); err != nil {
			http.Error(w, fmt.Sprintf("invalid tidy %q", v), http.StatusBadRequest)
			return
		}
	}

	h := history.New(s.repo)
	if err := h.Resume(ctx, int64(id)); err != nil {
		s.writeError(w, err)
		return
	}
	table, err := export.PopulationExtended(ctx, h, query)
	if err != nil {
		if errors.Is(err, export.ErrNotTidy) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	if format == "html" {
		_ = templates.Table(fmt.Sprintf("Analysis %d export", id), table).Render(ctx, w)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=analysis-%d.%s", id, format))
	if err := export.Write(ctx, w, table, format); err != nil {
		s.writeError(w, err)
	}
}
