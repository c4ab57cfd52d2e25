// Package attribution implements the energy attribution transform: binding
// time-aligned interpolated inputs to a user-provided arithmetic formula
// and emitting a derived measurement point per aligned row (spec.md §4.5,
// "Attribution formula evaluator").
package attribution

import (
	"fmt"

	"gopkg.in/Knetic/govaluate.v3"
)

// AggregateOperator rolls up a set of interpolated values across a
// resource dimension before the formula is evaluated.
type AggregateOperator int

const (
	Sum AggregateOperator = iota
	Min
	Max
	Avg
)

// ParseAggregateOperator maps a config string to an AggregateOperator.
func ParseAggregateOperator(s string) (AggregateOperator, error) {
	switch s {
	case "sum", "":
		return Sum, nil
	case "min":
		return Min, nil
	case "max":
		return Max, nil
	case "avg":
		return Avg, nil
	default:
		return Sum, fmt.Errorf("alumet: unknown aggregate operator %q", s)
	}
}

// Apply reduces values per the operator. Applying to an empty slice
// returns 0 for every operator — an input with no contributing keys this
// round contributes nothing rather than failing the whole formula.
func (op AggregateOperator) Apply(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	switch op {
	case Sum:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum
	case Min:
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return m
	case Max:
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return m
	case Avg:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	default:
		return 0
	}
}

// Formula wraps a user-provided arithmetic expression (dialect: + - * /
// min max, identifiers, numeric literals) bound to named interpolated
// inputs per aligned row. Grounded on
// original_source/plugin-energy-attribution/src/formula.rs, which binds
// the same dialect via the Rust `evalexpr` crate; govaluate.v3 is the
// closest idiomatic Go equivalent (both support min/max as functions and
// arbitrary identifier binding).
type Formula struct {
	expr *govaluate.EvaluableExpression
}

// NewFormula compiles expr, exposing "min" and "max" as functions of one or
// more arguments alongside the dialect's native arithmetic operators.
func NewFormula(expr string) (*Formula, error) {
	functions := map[string]govaluate.ExpressionFunction{
		"min": func(args ...interface{}) (interface{}, error) {
			return reduceFloats(args, func(a, b float64) float64 {
				if a < b {
					return a
				}
				return b
			})
		},
		"max": func(args ...interface{}) (interface{}, error) {
			return reduceFloats(args, func(a, b float64) float64 {
				if a > b {
					return a
				}
				return b
			})
		},
	}
	compiled, err := govaluate.NewEvaluableExpressionWithFunctions(expr, functions)
	if err != nil {
		return nil, fmt.Errorf("alumet: invalid attribution formula %q: %w", expr, err)
	}
	return &Formula{expr: compiled}, nil
}

func reduceFloats(args []interface{}, combine func(a, b float64) float64) (interface{}, error) {
	if len(args) == 0 {
		return 0.0, fmt.Errorf("alumet: min/max require at least one argument")
	}
	acc, ok := args[0].(float64)
	if !ok {
		return nil, fmt.Errorf("alumet: min/max arguments must be numeric")
	}
	for _, a := range args[1:] {
		v, ok := a.(float64)
		if !ok {
			return nil, fmt.Errorf("alumet: min/max arguments must be numeric")
		}
		acc = combine(acc, v)
	}
	return acc, nil
}

// Eval evaluates the formula against a named-input binding, returning the
// result as float64 (the attribution output is always carried as F64 per
// spec.md §4.5).
func (f *Formula) Eval(inputs map[string]interface{}) (float64, error) {
	result, err := f.expr.Evaluate(inputs)
	if err != nil {
		return 0, fmt.Errorf("alumet: formula evaluation failed: %w", err)
	}
	v, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("alumet: formula did not evaluate to a number")
	}
	return v, nil
}
