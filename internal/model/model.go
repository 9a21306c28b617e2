// Package model defines the simulator contract of the inference engine.
package model

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
)

// Model simulates data for a parameter.
type Model interface {
	Name() string
	// Simulate returns the raw model output, which the summary function maps
	// to summary statistics.
	Simulate(ctx context.Context, rng *rand.Rand, par domain.Parameter) (domain.SumStat, error)
}

// SimulateFunc is the signature of FuncModel simulators.
type SimulateFunc func(ctx context.Context, rng *rand.Rand, par domain.Parameter) (domain.SumStat, error)

// FuncModel adapts a plain function to Model.
type FuncModel struct {
	ModelName string
	Fn        SimulateFunc
}

func NewFuncModel(name string, fn SimulateFunc) *FuncModel {
	return &FuncModel{ModelName: name, Fn: fn}
}

func (m *FuncModel) Name() string {
	return m.ModelName
}

func (m *FuncModel) Simulate(ctx context.Context, rng *rand.Rand, par domain.Parameter) (domain.SumStat, error) {
	return m.Fn(ctx, rng, par)
}

// SummaryFunc maps raw model output to summary statistics.
type SummaryFunc func(domain.SumStat) (domain.SumStat, error)

// Identity is the default summary function.
func Identity(s domain.SumStat) (domain.SumStat, error) {
	return s, nil
}

// DistanceFunc measures the distance of simulated statistics to the data.
type DistanceFunc func(domain.SumStat) (float64, error)

// Result is the outcome of one model evaluation.
type Result struct {
	SumStat  domain.SumStat
	Distance float64
	Accepted bool
}

// SummaryStatistics simulates the model and applies the summary function.
func SummaryStatistics(ctx context.Context, m Model, rng *rand.Rand, par domain.Parameter, summary SummaryFunc) (domain.SumStat, error) {
	raw, err := m.Simulate(ctx, rng, par)
	if err != nil {
		return nil, fmt.Errorf("failed to simulate model %s: %w", m.Name(), err)
	}
	if summary == nil {
		summary = Identity
	}
	stats, err := summary(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to compute summary statistics: %w", err)
	}
	return stats, nil
}

// Accept simulates the model and accepts the result if its distance to the
// observed data does not exceed eps.
func Accept(ctx context.Context, m Model, rng *rand.Rand, par domain.Parameter, summary SummaryFunc, distance DistanceFunc, eps float64) (Result, error) {
	stats, err := SummaryStatistics(ctx, m, rng, par, summary)
	if err != nil {
		return Result{}, err
	}
	d, err := distance(stats)
	if err != nil {
		return Result{}, fmt.Errorf("failed to compute distance: %w", err)
	}
	return Result{SumStat: stats, Distance: d, Accepted: d <= eps}, nil
}
