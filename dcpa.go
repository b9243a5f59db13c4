package dcpa

import (
	"errors"
	"fmt"
)

// Standard widths.
const (
	WidthBool = 1
	Width8    = 8
	Width16   = 16
	Width32   = 32
	Width64   = 64
)

var (
	ErrSolverTimeout       = errors.New("Solver timeout")
	ErrSolverCanceled      = errors.New("Solver canceled")
	ErrSolverResourceLimit = errors.New("Solver resource limit")
	ErrSolverUnknown       = errors.New("Solver unknown error")

	ErrUnsupportedExpr = errors.New("unsupported expression")
	ErrWidthMismatch   = errors.New("width mismatch")
)

// ContractViolation is the panic value raised when an operator is called
// with input that breaks its calling contract. These are programming errors
// in the caller and are never recovered by the operators themselves.
type ContractViolation struct {
	Op     string // operator name, e.g. "combine"
	Block  string // block id of the worker that owns the operator
	Reason string
}

// Error returns the formatted violation.
func (e *ContractViolation) Error() string {
	if e.Block == "" {
		return fmt.Sprintf("contract violation: %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("contract violation: %s [block %s]: %s", e.Op, e.Block, e.Reason)
}

// Violate panics with a ContractViolation.
func Violate(op, block, format string, args ...interface{}) {
	panic(&ContractViolation{Op: op, Block: block, Reason: fmt.Sprintf(format, args...)})
}

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}
