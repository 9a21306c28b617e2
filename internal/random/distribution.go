package random

import (
	"math/rand/v2"
	"sort"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
)

// Distribution is a joint prior of independent named random variables.
type Distribution map[string]RV

// Keys returns the parameter names in sorted order.
func (d Distribution) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d Distribution) Rvs(rng *rand.Rand) domain.Parameter {
	p := make(domain.Parameter, len(d))
	for _, k := range d.Keys() {
		p[k] = d[k].Rvs(rng)
	}
	return p
}

// Pdf returns the joint density. A parameter with missing or extra keys has
// density zero.
func (d Distribution) Pdf(p domain.Parameter) float64 {
	if len(p) != len(d) {
		return 0
	}
	density := 1.0
	for k, rv := range d {
		x, ok := p[k]
		if !ok {
			return 0
		}
		density *= rv.Pdf(x)
	}
	return density
}

// Config describes the prior for the history.
func (d Distribution) Config() map[string]string {
	out := make(map[string]string, len(d))
	for k, rv := range d {
		out[k] = rv.String()
	}
	return out
}
