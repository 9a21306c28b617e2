// Package models is the catalog of built-in ODE models available to the
// command line and the run file.
package models

import (
	"fmt"
	"slices"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
	"github.com/emiliopalmerini/abcsmc/internal/models/conversion"
	"github.com/emiliopalmerini/abcsmc/internal/ode"
	"github.com/emiliopalmerini/abcsmc/internal/random"
)

var catalog = map[string]func() *domain.ModelDefinition{
	conversion.Name:             conversion.Definition,
	conversion.IrreversibleName: conversion.IrreversibleDefinition,
}

// Names lists the built-in models.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Definition returns the definition of a built-in model.
func Definition(name string) (*domain.ModelDefinition, error) {
	def, ok := catalog[name]
	if !ok {
		return nil, fmt.Errorf("%w: model %q", domain.ErrNotFound, name)
	}
	return def(), nil
}

// Load compiles a built-in model for the timepoints and derives its prior.
func Load(name string, timepoints []float64) (*ode.Model, random.Distribution, error) {
	def, err := Definition(name)
	if err != nil {
		return nil, nil, err
	}
	if len(timepoints) == 0 {
		timepoints = conversion.DefaultTimepoints
	}
	m, err := ode.NewModel(def, timepoints)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compile model %s: %w", name, err)
	}
	prior, err := random.PriorFromDefinition(def)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build prior of model %s: %w", name, err)
	}
	return m, prior, nil
}
