package domain

import (
	"fmt"
	"sort"
)

// Parameter maps parameter names to values. Parameters of estimated model
// quantities are expressed on their declared scale.
type Parameter map[string]float64

// Keys returns the parameter names in sorted order.
func (p Parameter) Keys() []string {
	return sortedKeys(p)
}

func (p Parameter) Copy() Parameter {
	c := make(Parameter, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// Vector returns the values of p in the order given by keys.
func (p Parameter) Vector(keys []string) ([]float64, error) {
	v := make([]float64, len(keys))
	for i, k := range keys {
		x, ok := p[k]
		if !ok {
			return nil, fmt.Errorf("parameter %q missing", k)
		}
		v[i] = x
	}
	return v, nil
}

// ParameterFromVector is the inverse of Parameter.Vector.
func ParameterFromVector(keys []string, v []float64) Parameter {
	p := make(Parameter, len(keys))
	for i, k := range keys {
		p[k] = v[i]
	}
	return p
}

// SumStat maps summary statistic names to values.
type SumStat map[string]float64

func (s SumStat) Keys() []string {
	return sortedKeys(s)
}

func (s SumStat) Copy() SumStat {
	c := make(SumStat, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

func sortedKeys[M ~map[string]float64](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
