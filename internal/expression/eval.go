package expression

import (
	"fmt"
	"math"
)

type function struct {
	arity int
	fn    func(args []float64) float64
}

var functions = map[string]function{
	"exp":   {1, func(a []float64) float64 { return math.Exp(a[0]) }},
	"log":   {1, func(a []float64) float64 { return math.Log(a[0]) }},
	"ln":    {1, func(a []float64) float64 { return math.Log(a[0]) }},
	"log10": {1, func(a []float64) float64 { return math.Log10(a[0]) }},
	"sqrt":  {1, func(a []float64) float64 { return math.Sqrt(a[0]) }},
	"abs":   {1, func(a []float64) float64 { return math.Abs(a[0]) }},
	"sin":   {1, func(a []float64) float64 { return math.Sin(a[0]) }},
	"cos":   {1, func(a []float64) float64 { return math.Cos(a[0]) }},
	"pow":   {2, func(a []float64) float64 { return math.Pow(a[0], a[1]) }},
	"min":   {2, func(a []float64) float64 { return math.Min(a[0], a[1]) }},
	"max":   {2, func(a []float64) float64 { return math.Max(a[0], a[1]) }},
}

// IsFunction reports whether name is a built-in function.
func IsFunction(name string) bool {
	_, ok := functions[name]
	return ok
}

// Env maps symbol names to values.
type Env map[string]float64

// Eval evaluates the expression. Every referenced symbol must be present in env.
func (n *Node) Eval(env Env) (float64, error) {
	switch n.Kind {
	case Number:
		return n.Value, nil
	case Symbol:
		v, ok := env[n.Name]
		if !ok {
			return 0, fmt.Errorf("unknown symbol %q", n.Name)
		}
		return v, nil
	}
	args := make([]float64, len(n.Args))
	for i, a := range n.Args {
		v, err := a.Eval(env)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	if n.Kind == Call {
		return functions[n.Name].fn(args), nil
	}
	return applyOperator(n.Name, args), nil
}

func applyOperator(op string, args []float64) float64 {
	if len(args) == 1 {
		return -args[0]
	}
	switch op {
	case "+":
		return args[0] + args[1]
	case "-":
		return args[0] - args[1]
	case "*":
		return args[0] * args[1]
	case "/":
		return args[0] / args[1]
	default:
		return math.Pow(args[0], args[1])
	}
}

// Func is an expression bound to a fixed symbol layout.
type Func func(values []float64) float64

// Bind resolves every symbol to its index in symbols and returns a closure
// evaluating the expression against a value slice of the same layout.
func (n *Node) Bind(symbols []string) (Func, error) {
	index := make(map[string]int, len(symbols))
	for i, s := range symbols {
		index[s] = i
	}
	return n.bind(index)
}

func (n *Node) bind(index map[string]int) (Func, error) {
	switch n.Kind {
	case Number:
		v := n.Value
		return func([]float64) float64 { return v }, nil
	case Symbol:
		i, ok := index[n.Name]
		if !ok {
			return nil, fmt.Errorf("unknown symbol %q", n.Name)
		}
		return func(values []float64) float64 { return values[i] }, nil
	}
	args := make([]Func, len(n.Args))
	for i, a := range n.Args {
		f, err := a.bind(index)
		if err != nil {
			return nil, err
		}
		args[i] = f
	}
	if n.Kind == Call {
		fn := functions[n.Name].fn
		return func(values []float64) float64 {
			vals := make([]float64, len(args))
			for i, a := range args {
				vals[i] = a(values)
			}
			return fn(vals)
		}, nil
	}
	if len(args) == 1 {
		a := args[0]
		return func(values []float64) float64 { return -a(values) }, nil
	}
	a, b := args[0], args[1]
	switch n.Name {
	case "+":
		return func(v []float64) float64 { return a(v) + b(v) }, nil
	case "-":
		return func(v []float64) float64 { return a(v) - b(v) }, nil
	case "*":
		return func(v []float64) float64 { return a(v) * b(v) }, nil
	case "/":
		return func(v []float64) float64 { return a(v) / b(v) }, nil
	default:
		return func(v []float64) float64 { return math.Pow(a(v), b(v)) }, nil
	}
}
