package ode

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
)

func decayDefinition() *domain.ModelDefinition {
	return &domain.ModelDefinition{
		Name: "decay",
		States: []domain.StateVariable{
			{ID: "x", Rate: "-k * x", InitialValue: 2},
		},
		Parameters: []domain.ParameterSpec{
			{ID: "k", NominalValue: 0.5, Scale: domain.ScaleLog10, LowerBound: 0.01, UpperBound: 10, Estimate: true},
			{ID: "sigma", NominalValue: 0.1, Scale: domain.ScaleLin, LowerBound: 0, UpperBound: 1},
		},
		Observables: []domain.Observable{
			{ID: "obs_x", Formula: "x", Transformation: domain.ScaleLin, NoiseFormula: "sigma", NoiseDistribution: domain.NoiseNormal},
		},
		Conditions: []domain.Condition{
			{ID: "c0"},
			{ID: "fast", Overrides: map[string]float64{"k": 2}},
		},
	}
}

func TestIntegrate_ExponentialDecay(t *testing.T) {
	def := decayDefinition()
	sys, err := Compile(def, def.Conditions[0])
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	params := sys.ParameterValues(domain.Parameter{"k": math.Log10(0.5)})
	if math.Abs(params[0]-0.5) > 1e-12 {
		t.Fatalf("expected unscaled k=0.5, got %v", params[0])
	}

	timepoints := []float64{0, 1, 2.5, 5}
	traj, err := sys.Integrate(context.Background(), params, timepoints, Options{MaxStep: 0.05})
	if err != nil {
		t.Fatalf("Integrate failed: %v", err)
	}
	for i, tp := range timepoints {
		want := 2 * math.Exp(-0.5*tp)
		if math.Abs(traj[i][0]-want) > 1e-7 {
			t.Errorf("t=%v: expected %v, got %v", tp, want, traj[i][0])
		}
	}
}

func TestIntegrate_InvalidTimepoints(t *testing.T) {
	def := decayDefinition()
	sys, err := Compile(def, def.Conditions[0])
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	params := sys.ParameterValues(nil)
	if _, err := sys.Integrate(context.Background(), params, []float64{2, 1}, Options{}); err == nil {
		t.Error("expected error for decreasing timepoints")
	}
	if _, err := sys.Integrate(context.Background(), params, []float64{-1}, Options{}); err == nil {
		t.Error("expected error for negative timepoint")
	}
}

func TestIntegrate_Cancelled(t *testing.T) {
	def := decayDefinition()
	sys, _ := Compile(def, def.Conditions[0])
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sys.Integrate(ctx, sys.ParameterValues(nil), []float64{1}, Options{}); err == nil {
		t.Error("expected context error")
	}
}

func TestIntegrate_Diverges(t *testing.T) {
	def := decayDefinition()
	def.States[0].Rate = "x * x"
	sys, err := Compile(def, def.Conditions[0])
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if _, err := sys.Integrate(context.Background(), sys.ParameterValues(nil), []float64{10}, Options{MaxStep: 0.1}); err == nil {
		t.Error("expected divergence error")
	}
}

func TestModel_Simulate(t *testing.T) {
	def := decayDefinition()
	m, err := NewModel(def, []float64{1, 2})
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}
	m.NoiseFree = true

	out, err := m.Simulate(context.Background(), nil, domain.Parameter{"k": math.Log10(0.5)})
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 2 conditions x 2 timepoints, got %d keys: %v", len(out), out)
	}
	if got, want := out[Key("obs_x", "c0", 1)], 2*math.Exp(-1); math.Abs(got-want) > 1e-6 {
		t.Errorf("c0 t=2: expected %v, got %v", want, got)
	}
	// The override fixes k=2 regardless of the sampled value.
	if got, want := out[Key("obs_x", "fast", 0)], 2*math.Exp(-2); math.Abs(got-want) > 1e-6 {
		t.Errorf("fast t=1: expected %v, got %v", want, got)
	}
}

func TestModel_Noise(t *testing.T) {
	def := decayDefinition()
	def.Conditions = def.Conditions[:1]
	m, err := NewModel(def, []float64{1})
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}
	rng := rand.New(rand.NewPCG(3, 4))
	key := Key("obs_x", "c0", 0)
	clean := 2 * math.Exp(-0.5)

	const n = 4000
	sum, sq := 0.0, 0.0
	for i := 0; i < n; i++ {
		out, err := m.Simulate(context.Background(), rng, domain.Parameter{"k": math.Log10(0.5)})
		if err != nil {
			t.Fatalf("Simulate failed: %v", err)
		}
		d := out[key] - clean
		sum += d
		sq += d * d
	}
	if mean := sum / n; math.Abs(mean) > 0.01 {
		t.Errorf("noise mean should be ~0, got %v", mean)
	}
	if std := math.Sqrt(sq / n); math.Abs(std-0.1) > 0.01 {
		t.Errorf("noise std should be ~0.1, got %v", std)
	}
}

func TestModel_LogTransformation(t *testing.T) {
	def := decayDefinition()
	def.Observables[0].Transformation = domain.ScaleLog
	m, err := NewModel(def, []float64{2})
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}
	m.NoiseFree = true
	out, err := m.Simulate(context.Background(), nil, domain.Parameter{"k": math.Log10(0.5)})
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if got, want := out[Key("obs_x", "c0", 0)], math.Log(2)-1; math.Abs(got-want) > 1e-6 {
		t.Errorf("expected %v, got %v", want, got)
	}
}
