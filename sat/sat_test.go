package sat_test

import (
	"context"
	"testing"

	"github.com/benbjohnson/dcpa"
	"github.com/benbjohnson/dcpa/sat"
	"github.com/davecgh/go-spew/spew"
)

// MustSolve solves constraints and returns the model values of vars.
func MustSolve(tb testing.TB, s *sat.Solver, constraints []string, vars ...*dcpa.VarExpr) (bool, []*dcpa.ConstantExpr) {
	tb.Helper()
	exprs := make([]dcpa.Expr, len(constraints))
	for i := range constraints {
		exprs[i] = dcpa.MustParseExpr(constraints[i])
	}
	ok, values, err := s.Solve(context.Background(), exprs, vars)
	if err != nil {
		tb.Fatal(err)
	}
	return ok, values
}

func TestSolver_Solve(t *testing.T) {
	x, y := dcpa.NewVarExpr("x", 8), dcpa.NewVarExpr("y", 8)

	t.Run("Eq", func(t *testing.T) {
		ok, values := MustSolve(t, sat.NewSolver(0), []string{"(eq 5:8 x:8)"}, x)
		if !ok {
			t.Fatal("expected sat")
		} else if v := values[0].Int(); v != 5 {
			t.Fatalf("unexpected value: %s", spew.Sdump(values))
		}
	})

	t.Run("Add", func(t *testing.T) {
		ok, values := MustSolve(t, sat.NewSolver(0), []string{"(eq 1:8 (add 3:8 x:8))"}, x)
		if !ok {
			t.Fatal("expected sat")
		} else if v := values[0].Int(); v != -2 {
			t.Fatalf("unexpected value: %d", v)
		}
	})

	t.Run("Signed", func(t *testing.T) {
		ok, values := MustSolve(t, sat.NewSolver(0), []string{"(slt x:8 0:8)", "(slt -3:8 x:8)"}, x)
		if !ok {
			t.Fatal("expected sat")
		} else if v := values[0].Int(); v != -2 && v != -1 {
			t.Fatalf("unexpected value: %d", v)
		}
	})

	t.Run("Mul", func(t *testing.T) {
		ok, values := MustSolve(t, sat.NewSolver(0), []string{"(eq 12:8 (mul 3:8 x:8))", "(ult x:8 10:8)"}, x)
		if !ok {
			t.Fatal("expected sat")
		} else if v := values[0].Int(); v != 4 {
			t.Fatalf("unexpected value: %d", v)
		}
	})

	t.Run("Div", func(t *testing.T) {
		ok, values := MustSolve(t, sat.NewSolver(0), []string{"(eq 3:8 (udiv x:8 4:8))", "(eq 0:8 (urem x:8 4:8))"}, x)
		if !ok {
			t.Fatal("expected sat")
		} else if v := values[0].Int(); v != 12 {
			t.Fatalf("unexpected value: %d", v)
		}
	})

	t.Run("Unconstrained", func(t *testing.T) {
		ok, values := MustSolve(t, sat.NewSolver(0), []string{"(eq 5:8 x:8)"}, x, y)
		if !ok {
			t.Fatal("expected sat")
		} else if len(values) != 2 {
			t.Fatalf("unexpected values: %s", spew.Sdump(values))
		} else if v := values[1].Int(); v != 0 {
			t.Fatalf("unexpected value: %d", v)
		}
	})

	t.Run("Unsat", func(t *testing.T) {
		if ok, values := MustSolve(t, sat.NewSolver(0), []string{"(slt x:8 0:8)", "(eq 0:8 x:8)"}, x); ok {
			t.Fatal("expected unsat")
		} else if values != nil {
			t.Fatalf("unexpected values: %s", spew.Sdump(values))
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		// x + 1 < x holds only at the signed maximum.
		ok, values := MustSolve(t, sat.NewSolver(0), []string{"(slt (add 1:8 x:8) x:8)"}, x)
		if !ok {
			t.Fatal("expected sat")
		} else if v := values[0].Int(); v != 127 {
			t.Fatalf("unexpected value: %d", v)
		}
	})

	t.Run("ErrNonBoolean", func(t *testing.T) {
		_, _, err := sat.NewSolver(0).Solve(context.Background(), []dcpa.Expr{x}, nil)
		if e, ok := err.(*sat.Error); !ok {
			t.Fatalf("unexpected error: %v", err)
		} else if e.Op != "assert" {
			t.Fatalf("unexpected op: %s", e.Op)
		}
	})

	t.Run("ErrCanceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, _, err := sat.NewSolver(0).Solve(ctx, []dcpa.Expr{dcpa.MustParseExpr("(eq 5:8 x:8)")}, nil); err != dcpa.ErrSolverCanceled {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("Cancelable", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s := sat.NewSolver(0)
		ok, _, err := s.Solve(ctx, []dcpa.Expr{dcpa.MustParseExpr("(eq 5:8 x:8)")}, nil)
		if err != nil {
			t.Fatal(err)
		} else if !ok {
			t.Fatal("expected sat")
		} else if n := s.Stats().CancelN; n != 0 {
			t.Fatalf("unexpected cancellations: %d", n)
		}
	})
}

func TestSolver_Cache(t *testing.T) {
	s := sat.NewSolver(4)
	constraints := []string{"(slt x:8 0:8)", "(eq 0:8 x:8)"}
	for i := 0; i < 2; i++ {
		if ok, _ := MustSolve(t, s, constraints); ok {
			t.Fatal("expected unsat")
		}
	}

	// Requesting model values bypasses the cache.
	if ok, _ := MustSolve(t, s, constraints, dcpa.NewVarExpr("x", 8)); ok {
		t.Fatal("expected unsat")
	}

	if stats := s.Stats(); stats.SolveN != 3 {
		t.Fatalf("unexpected solve count: %d", stats.SolveN)
	} else if stats.CacheHitN != 1 {
		t.Fatalf("unexpected cache hits: %d", stats.CacheHitN)
	}
}
