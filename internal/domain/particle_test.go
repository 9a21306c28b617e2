package domain

import (
	"math"
	"testing"
)

func TestSample_NormalizeWeights(t *testing.T) {
	s := &Sample{Particles: []Particle{
		{Weight: 2, Accepted: true},
		{Weight: 6, Accepted: true},
		{Weight: 100, Accepted: false},
	}}
	if err := s.NormalizeWeights(); err != nil {
		t.Fatalf("NormalizeWeights failed: %v", err)
	}
	if s.Particles[0].Weight != 0.25 || s.Particles[1].Weight != 0.75 {
		t.Errorf("unexpected weights: %v, %v", s.Particles[0].Weight, s.Particles[1].Weight)
	}
	if s.Particles[2].Weight != 100 {
		t.Errorf("rejected particle weight must be untouched, got %v", s.Particles[2].Weight)
	}
	if s.NAccepted() != 2 || len(s.Accepted()) != 2 {
		t.Errorf("expected 2 accepted particles")
	}
}

func TestSample_NormalizeWeightsZeroTotal(t *testing.T) {
	s := &Sample{Particles: []Particle{{Weight: 0, Accepted: true}}}
	if err := s.NormalizeWeights(); err == nil {
		t.Fatal("expected error for zero total weight")
	}
}

func TestPopulation_ModelProbabilities(t *testing.T) {
	pop := &Population{Particles: []Particle{
		{M: 0, Weight: 1, Parameter: Parameter{"a": 1}},
		{M: 1, Weight: 3, Parameter: Parameter{"b": 2}},
		{M: 1, Weight: 1, Parameter: Parameter{"b": 4}},
	}}
	probs := pop.ModelProbabilities(3)
	want := []float64{0.2, 0.8, 0}
	for i := range want {
		if math.Abs(probs[i]-want[i]) > 1e-12 {
			t.Errorf("model %d: expected %v, got %v", i, want[i], probs[i])
		}
	}

	params, weights := pop.ModelParticles(1)
	if len(params) != 2 || weights[0] != 0.75 || weights[1] != 0.25 {
		t.Errorf("unexpected model particles: %v %v", params, weights)
	}
}

func TestPopulation_Distances(t *testing.T) {
	pop := &Population{Particles: []Particle{
		{Weight: 0.5, AcceptedDistances: []float64{1, 3}},
		{Weight: 0.5, AcceptedDistances: []float64{2}},
	}}
	d, w := pop.Distances()
	if len(d) != 3 || w[0] != 0.25 || w[1] != 0.25 || w[2] != 0.5 {
		t.Errorf("unexpected distances %v weights %v", d, w)
	}
}
