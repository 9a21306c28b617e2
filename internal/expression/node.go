// Package expression parses and evaluates the arithmetic formulas used in model
// definitions: ODE right-hand sides, observable formulas and noise formulas.
package expression

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type Kind int

const (
	Number Kind = iota
	Symbol
	Operator
	Call
)

// Node is one element of a parsed expression tree.
type Node struct {
	Kind  Kind
	Name  string
	Value float64
	Args  []*Node
}

func NewNumberNode(v float64) *Node {
	return &Node{Kind: Number, Value: v}
}

func NewSymbolNode(name string) *Node {
	return &Node{Kind: Symbol, Name: name}
}

func NewOperatorNode(op string, args ...*Node) *Node {
	return &Node{Kind: Operator, Name: op, Args: args}
}

func NewCallNode(fn string, args ...*Node) *Node {
	return &Node{Kind: Call, Name: fn, Args: args}
}

func (n *Node) String() string {
	switch n.Kind {
	case Number:
		return strconv.FormatFloat(n.Value, 'g', -1, 64)
	case Symbol:
		return n.Name
	case Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = a.String()
		}
		return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ", "))
	default:
		if len(n.Args) == 1 {
			return fmt.Sprintf("(%s%s)", n.Name, n.Args[0])
		}
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = a.String()
		}
		return "(" + strings.Join(args, " "+n.Name+" ") + ")"
	}
}

// Operands returns the distinct symbols referenced by the expression in order of
// first appearance. Function names are not included.
func (n *Node) Operands() []string {
	switch n.Kind {
	case Number:
		return nil
	case Symbol:
		return []string{n.Name}
	}
	var result []string
	for _, a := range n.Args {
		for _, o := range a.Operands() {
			if !slices.Contains(result, o) {
				result = append(result, o)
			}
		}
	}
	return result
}
