package lineage

import (
	"fmt"
	"math"
)

// Operator is one of the four arithmetic operators a calculation may apply.
type Operator string

const (
	Add      Operator = "+"
	Subtract Operator = "-"
	Multiply Operator = "*"
	Divide   Operator = "/"
)

// Operators lists the recognized operators in display order.
var Operators = []Operator{Add, Subtract, Multiply, Divide}

// Valid reports whether op is a recognized operator.
func (op Operator) Valid() bool {
	switch op {
	case Add, Subtract, Multiply, Divide:
		return true
	}
	return false
}

// ParseOperator returns the Operator for s or ErrInvalidOperator.
func ParseOperator(s string) (Operator, error) {
	op := Operator(s)
	if !op.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidOperator, s)
	}
	return op, nil
}

// Evaluate applies op to left and right. Division fails with ErrDivideByZero
// iff right is exactly zero; the other operators always succeed.
func Evaluate(left float64, op Operator, right float64) (float64, error) {
	switch op {
	case Add:
		return left + right, nil
	case Subtract:
		return left - right, nil
	case Multiply:
		return left * right, nil
	case Divide:
		if right == 0 {
			return 0, ErrDivideByZero
		}
		return left / right, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidOperator, string(op))
	}
}

// Finite reports whether f is neither NaN nor an infinity.
func Finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
