package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("ABCSMC_DATABASE_URL", "file:test.db")
	t.Setenv("ABCSMC_LOG_LEVEL", "debug")
	t.Setenv("ABCSMC_OTEL_ENABLED", "true")
	t.Setenv("ABCSMC_SHUTDOWN_TIMEOUT", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.URL != "file:test.db" {
		t.Errorf("URL = %q", cfg.Database.URL)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if !cfg.OTel.Enabled || cfg.OTel.Endpoint != "localhost:4317" {
		t.Errorf("OTel = %+v", cfg.OTel)
	}
	if cfg.Server.ShutdownTimeout != 2*time.Second || cfg.Server.Addr != "127.0.0.1:5000" {
		t.Errorf("Server = %+v", cfg.Server)
	}
}

func TestLoad_DefaultDatabase(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	t.Setenv("ABCSMC_DATABASE_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := "file:" + filepath.Join(dir, "abcsmc", "abcsmc.db")
	if cfg.Database.URL != want {
		t.Errorf("URL = %q, want %q", cfg.Database.URL, want)
	}
}

func TestParseRunFile(t *testing.T) {
	data := []byte(`
models: [conversion_reaction, conversion_irreversible]
population_size: 50
generations: 3
seed: 7
epsilon:
  name: quantile
  alpha: 0.3
sampler:
  name: mapping
  workers: 2
ground_truth:
  theta1: -1.1
`)
	rf, err := ParseRunFile(data)
	if err != nil {
		t.Fatalf("ParseRunFile: %v", err)
	}
	if len(rf.Models) != 2 || rf.PopulationSize != 50 || rf.Seed != 7 {
		t.Errorf("unexpected run file %+v", rf)
	}
	if rf.Epsilon.Name != "quantile" || rf.Epsilon.Alpha != 0.3 || rf.Epsilon.Multiplier != 1 {
		t.Errorf("Epsilon = %+v", rf.Epsilon)
	}
	if rf.Distance.Name != "pnorm" || rf.Distance.P != 2 {
		t.Errorf("Distance defaults lost: %+v", rf.Distance)
	}
	if rf.GroundTruth["theta1"] != -1.1 {
		t.Errorf("GroundTruth = %v", rf.GroundTruth)
	}
}

func TestParseRunFile_Invalid(t *testing.T) {
	tests := map[string]string{
		"syntax":          "models: [",
		"no models":       "models: []",
		"population size": "population_size: 0",
		"stay":            "probability_to_stay: 2",
		"workers":         "sampler: {workers: -1}",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseRunFile([]byte(data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadRunFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	data, err := DefaultRunFile().Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	rf, err := LoadRunFile(path)
	if err != nil {
		t.Fatalf("LoadRunFile: %v", err)
	}
	if rf.Models[0] != "conversion_reaction" || rf.Generations != 5 {
		t.Errorf("unexpected run file %+v", rf)
	}
}
