package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/emiliopalmerini/abcsmc/internal/adapters/memory"
	"github.com/emiliopalmerini/abcsmc/internal/domain"
	"github.com/emiliopalmerini/abcsmc/internal/ports"
)

var _ ports.HistoryRepository = (&Server{}).repo

func seededRepo(t *testing.T) *memory.HistoryRepository {
	t.Helper()
	ctx := context.Background()
	repo := memory.NewHistoryRepository()
	a := &domain.Analysis{
		UUID:            "0f8fad5b-d9cb-469f-a165-70867728950e",
		StartTime:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ModelNames:      []string{"near", "far"},
		ObservedSumStat: domain.SumStat{"y": 1},
		Options:         map[string]string{"population_size": "2"},
		DistanceConfig:  `{"name":"pnorm"}`,
		EpsilonConfig:   `{"name":"median"}`,
	}
	if err := repo.CreateAnalysis(ctx, a); err != nil {
		t.Fatalf("CreateAnalysis: %v", err)
	}
	for gen := 0; gen < 2; gen++ {
		pop := &domain.Population{T: gen, Epsilon: 1 / float64(gen+1), NrSimulations: 10, EndTime: time.Now().UTC()}
		for i := 0; i < 2; i++ {
			pop.Particles = append(pop.Particles, domain.Particle{
				M:                 0,
				Weight:            0.5,
				Parameter:         domain.Parameter{"theta": float64(i)},
				Accepted:          true,
				AcceptedDistances: []float64{0.1},
				AcceptedSumStats:  []domain.SumStat{{"y": 1.1}},
			})
		}
		if err := repo.AppendPopulation(ctx, a.ID, pop, a.ModelNames); err != nil {
			t.Fatalf("AppendPopulation: %v", err)
		}
	}
	return repo
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRoutes(t *testing.T) {
	s := NewServer(Config{}, seededRepo(t), nil)
	h := s.Handler()

	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{"/health", http.StatusOK, "ok"},
		{"/", http.StatusOK, "0f8fad5b"},
		{"/runs/1", http.StatusOK, "p(far)"},
		{"/runs/1/populations/1", http.StatusOK, "theta"},
		{"/runs/1/populations/9", http.StatusNotFound, "not found"},
		{"/runs/42", http.StatusNotFound, "not found"},
		{"/runs/abc", http.StatusBadRequest, "invalid id"},
		{"/static/style.css", http.StatusOK, "table"},
		{"/api/runs/1/export?format=csv&t=all", http.StatusOK, "t,m,w,par_name"},
		{"/api/runs/1/export?format=html", http.StatusOK, "<table"},
		{"/api/runs/1/export?format=feather", http.StatusBadRequest, "unknown format"},
		{"/api/runs/1/export?t=all&tidy=true", http.StatusBadRequest, "tidy"},
		{"/api/runs/1/export?t=x", http.StatusBadRequest, "invalid generation"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, h, tt.path)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body does not contain %q:\n%s", tt.contains, rec.Body.String())
			}
		})
	}
}

func TestAnalysisPage_ModelProbabilities(t *testing.T) {
	s := NewServer(Config{}, seededRepo(t), nil)
	detail, err := s.fetchAnalysis(context.Background(), 1)
	if err != nil {
		t.Fatalf("fetchAnalysis: %v", err)
	}
	if len(detail.Populations) != 2 {
		t.Fatalf("expected 2 populations, got %d", len(detail.Populations))
	}
	p := detail.Populations[1]
	if p.ModelProbabilities[0] != 1 || p.ModelProbabilities[1] != 0 {
		t.Errorf("ModelProbabilities = %v", p.ModelProbabilities)
	}
	if p.EffectiveSampleSize < 1.99 || p.EffectiveSampleSize > 2.01 {
		t.Errorf("EffectiveSampleSize = %g, want 2", p.EffectiveSampleSize)
	}
	if len(detail.Options) != 1 || detail.Options[0].Name != "population_size" {
		t.Errorf("Options = %v", detail.Options)
	}
}

func TestAPIAnalyses(t *testing.T) {
	s := NewServer(Config{}, seededRepo(t), nil)
	rec := get(t, s.Handler(), "/api/runs/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out []apiAnalysis
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Generations != 2 || out[0].Models[1] != "far" {
		t.Errorf("unexpected analyses %+v", out)
	}

	rec = get(t, s.Handler(), "/api/runs/1")
	var detail apiAnalysisDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(detail.Populations) != 2 || detail.Observed["y"] != "1" {
		t.Errorf("unexpected detail %+v", detail)
	}
}

func TestAPIDeleteAnalysis(t *testing.T) {
	s := NewServer(Config{}, seededRepo(t), nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/runs/1", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := get(t, s.Handler(), "/runs/1"); rec.Code != http.StatusNotFound {
		t.Errorf("deleted analysis still served: %d", rec.Code)
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	s := NewServer(Config{Addr: addr, ShutdownTimeout: time.Second}, seededRepo(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server did not come up: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("health = %q", body)
	}

	// keeps serving until cancelled
	time.Sleep(50 * time.Millisecond)
	if resp, err := http.Get("http://" + addr + "/health"); err != nil {
		t.Fatalf("server stopped early: %v", err)
	} else {
		resp.Body.Close()
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
