package dcpa

import (
	"context"
)

// Solver decides the satisfiability of a conjunction of boolean constraints.
// When satisfiable, values holds a model value for each requested variable.
//
// A Solver is used by a single goroutine at a time. Implementations must
// return ErrSolverCanceled once ctx is done.
type Solver interface {
	Solve(ctx context.Context, constraints []Expr, vars []*VarExpr) (satisfiable bool, values []*ConstantExpr, err error)
}

// IsSatisfiable returns true if the conjunction of exprs is satisfiable.
func IsSatisfiable(ctx context.Context, s Solver, exprs ...Expr) (bool, error) {
	constraints := make([]Expr, 0, len(exprs))
	for _, expr := range exprs {
		if IsConstantFalse(expr) {
			return false, nil
		} else if IsConstantTrue(expr) {
			continue
		}
		constraints = append(constraints, expr)
	}
	if len(constraints) == 0 {
		return true, nil
	}
	sat, _, err := s.Solve(ctx, constraints, nil)
	return sat, err
}

// IsUnsat returns true if expr is unsatisfiable.
func IsUnsat(ctx context.Context, s Solver, expr Expr) (bool, error) {
	sat, err := IsSatisfiable(ctx, s, expr)
	return !sat, err
}

// Entails returns true if a implies b.
func Entails(ctx context.Context, s Solver, a, b Expr) (bool, error) {
	if IsConstantTrue(b) || IsConstantFalse(a) {
		return true, nil
	}
	return IsUnsat(ctx, s, And(a, Not(b)))
}
