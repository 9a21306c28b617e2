package random

import (
	"fmt"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
)

// PriorFromDefinition returns a uniform prior over the scaled bounds of every
// estimated parameter of the definition.
func PriorFromDefinition(def *domain.ModelDefinition) (Distribution, error) {
	prior := Distribution{}
	for _, p := range def.EstimatedParameters() {
		lb, ub := p.ScaledBounds()
		rv, err := NewRV("uniform", lb, ub)
		if err != nil {
			return nil, fmt.Errorf("failed to create prior for %s: %w", p.ID, err)
		}
		prior[p.ID] = rv
	}
	if len(prior) == 0 {
		return nil, fmt.Errorf("%w: no estimated parameters", domain.ErrInvalidDefinition)
	}
	return prior, nil
}
