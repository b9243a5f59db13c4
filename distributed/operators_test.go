package distributed_test

import (
	"context"
	"errors"
	"testing"

	"github.com/benbjohnson/dcpa"
	"github.com/benbjohnson/dcpa/distributed"
	"github.com/benbjohnson/dcpa/sat"
	"github.com/google/go-cmp/cmp"
)

// Nodes is a test implementation of distributed.NodeLookup.
type Nodes map[int]*dcpa.CFANode

func (m Nodes) Node(number int) (*dcpa.CFANode, bool) {
	n, ok := m[number]
	return n, ok
}

// NewOperators returns operators for block "B1" over nodes N1..N3.
func NewOperators() *distributed.PredicateOperators {
	nodes := Nodes{
		1: {Number: 1, Function: "main"},
		2: {Number: 2, Function: "main"},
		3: {Number: 3, Function: "main"},
	}
	var o *distributed.PredicateOperators
	o = distributed.NewPredicateOperators("B1", sat.NewSolver(0), nodes, func(node *dcpa.CFANode) dcpa.PredicateAbstractState {
		pf := o.PathFormulas.MakeEmpty()
		return dcpa.NewAbstractionState(pf, o.Abstractions.MakeTrueAbstraction(pf), dcpa.LocationCounts{})
	})
	return o
}

// MustParseSSAMap parses an SSA table. Panic on error.
func MustParseSSAMap(s string) dcpa.SSAMap {
	m, err := dcpa.ParseSSAMap(s)
	if err != nil {
		panic(err)
	}
	return m
}

// NewAbstractionState returns an abstraction state whose abstraction is the
// uninstantiated formula text, instantiated against ssa.
func NewAbstractionState(o *distributed.PredicateOperators, text, ssa string) *dcpa.AbstractionState {
	pf := o.PathFormulas.MakeEmptyWithContext(MustParseSSAMap(ssa), nil)
	abs := o.Abstractions.MakeAbstraction(dcpa.MustParseExpr(text), pf)
	return dcpa.NewAbstractionState(pf, abs, dcpa.LocationCounts{})
}

// Formula returns the formula a state carries.
func Formula(state dcpa.PredicateAbstractState) dcpa.Expr {
	switch state := state.(type) {
	case *dcpa.AbstractionState:
		return state.Abstraction.Instantiated
	case *dcpa.NonAbstractionState:
		return state.PathFormula.Formula
	default:
		return dcpa.False()
	}
}

// MustEquivalent fails unless a and b are logically equivalent.
func MustEquivalent(tb testing.TB, a, b dcpa.Expr) {
	tb.Helper()
	s := sat.NewSolver(0)
	if ok, err := dcpa.Entails(context.Background(), s, a, b); err != nil {
		tb.Fatal(err)
	} else if !ok {
		tb.Fatalf("%s does not entail %s", a, b)
	}
	if ok, err := dcpa.Entails(context.Background(), s, b, a); err != nil {
		tb.Fatal(err)
	} else if !ok {
		tb.Fatalf("%s does not entail %s", b, a)
	}
}

// MustViolate fails unless fn panics with a contract violation for op.
func MustViolate(tb testing.TB, op string, fn func()) {
	tb.Helper()
	defer func() {
		tb.Helper()
		r := recover()
		if v, ok := r.(*dcpa.ContractViolation); !ok {
			tb.Fatalf("unexpected panic value: %#v", r)
		} else if v.Op != op {
			tb.Fatalf("unexpected op: %q", v.Op)
		} else if v.Block != "B1" {
			tb.Fatalf("unexpected block: %q", v.Block)
		}
	}()
	fn()
}

func TestPredicateOperators_Serialize(t *testing.T) {
	t.Run("Abstraction", func(t *testing.T) {
		o := NewOperators()
		state := NewAbstractionState(o, "(sgt x:32 0:32)", "x@2:32")
		if diff := cmp.Diff(o.Serialize(state), distributed.Payload{
			distributed.FormulaKey: "(slt 0:32 x@2:32)",
			distributed.SSAKey:     "x@2:32",
			distributed.PTSKey:     "",
		}); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("TrueAbstractionSendsBlockFormula", func(t *testing.T) {
		o := NewOperators()
		block := o.PathFormulas.MakeAssign(o.PathFormulas.MakeEmpty(), dcpa.NewVarExpr("x", 32), dcpa.NewConstantExpr32(4))
		abs := o.Abstractions.MakeTrueAbstraction(block)
		state := dcpa.NewAbstractionState(o.PathFormulas.MakeEmptyWithContext(block.SSA, block.PTS), abs, dcpa.LocationCounts{})

		payload := o.Serialize(state)
		if got, want := payload[distributed.FormulaKey], "(eq 4:32 x@1:32)"; got != want {
			t.Fatalf("formula=%q, want %q", got, want)
		} else if got, want := payload[distributed.SSAKey], "x@1:32"; got != want {
			t.Fatalf("ssa=%q, want %q", got, want)
		}
	})

	t.Run("NonAbstraction", func(t *testing.T) {
		o := NewOperators()
		pf := o.PathFormulas.MakeAssume(o.PathFormulas.MakeEmptyWithContext(MustParseSSAMap("y@3:8"), nil), dcpa.MustParseExpr("(ult y:8 7:8)"))
		pf = o.PathFormulas.MakeAlloc(pf, "heap0")
		state := dcpa.NewNonAbstractionState(pf, o.Abstractions.MakeTrueAbstraction(pf), dcpa.LocationCounts{})
		if diff := cmp.Diff(o.Serialize(state), distributed.Payload{
			distributed.FormulaKey: "(ult y@3:8 7:8)",
			distributed.SSAKey:     "y@3:8",
			distributed.PTSKey:     "heap0",
		}); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Infeasible", func(t *testing.T) {
		o := NewOperators()
		if got := o.Serialize(&dcpa.InfeasibleDummyState{})[distributed.FormulaKey]; got != "false" {
			t.Fatalf("unexpected formula: %q", got)
		}
	})
}

func TestPredicateOperators_Deserialize(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		for _, tt := range []struct{ text, ssa string }{
			{"(sgt x:32 0:32)", "x@1:32"},
			{"(and (eq x:32 1:32) (eq y:32 0:32))", "x@1:32 y@1:32"},
			{"(or (ult a:8 3:8) (eq b:16 (add a2:16 1:16)))", ""},
		} {
			t.Run(tt.text, func(t *testing.T) {
				o := NewOperators()
				state := NewAbstractionState(o, tt.text, tt.ssa)
				msg := distributed.NewMessage(distributed.PostCondition, "B0", 2, o.Serialize(state))

				other, err := o.Deserialize(msg)
				if err != nil {
					t.Fatal(err)
				} else if _, ok := other.(*dcpa.NonAbstractionState); !ok {
					t.Fatalf("unexpected state: %T", other)
				}
				MustEquivalent(t, Formula(state), Formula(other))
				if got := other.(*dcpa.NonAbstractionState).PathFormula.SSA; !got.Equal(state.PathFormula.SSA) {
					t.Fatalf("unexpected ssa: %s", got)
				}
			})
		}
	})

	t.Run("WireRoundTrip", func(t *testing.T) {
		o := NewOperators()
		state := NewAbstractionState(o, "(slt x:32 -3:32)", "x@4:32")
		data, err := distributed.NewMessage(distributed.PostCondition, "B0", 1, o.Serialize(state)).Encode()
		if err != nil {
			t.Fatal(err)
		}
		msg, err := distributed.DecodeMessage(data)
		if err != nil {
			t.Fatal(err)
		}
		other, err := o.Deserialize(msg)
		if err != nil {
			t.Fatal(err)
		}
		MustEquivalent(t, Formula(state), Formula(other))
	})

	t.Run("MissingFields", func(t *testing.T) {
		o := NewOperators()
		state, err := o.Deserialize(distributed.NewMessage(distributed.PostCondition, "B0", 1, nil))
		if err != nil {
			t.Fatal(err)
		}
		pf := state.(*dcpa.NonAbstractionState).PathFormula
		if !dcpa.IsConstantTrue(pf.Formula) {
			t.Fatalf("unexpected formula: %s", pf.Formula)
		} else if pf.SSA.Len() != 0 {
			t.Fatalf("unexpected ssa: %s", pf.SSA)
		}

		stats := o.Stats.Snapshot()
		if stats.MissingFormulaN != 1 || stats.MissingSSAN != 1 || stats.MissingPTSN != 1 {
			t.Fatalf("unexpected stats: %#v", stats)
		} else if stats.FailOpenN() != 3 {
			t.Fatalf("unexpected fail open count: %d", stats.FailOpenN())
		}
	})

	t.Run("MalformedFields", func(t *testing.T) {
		o := NewOperators()
		state, err := o.Deserialize(distributed.NewMessage(distributed.PostCondition, "B0", 1, distributed.Payload{
			distributed.FormulaKey: "(eq x:32",
			distributed.SSAKey:     "x@zero:32",
			distributed.PTSKey:     "not a base",
		}))
		if err != nil {
			t.Fatal(err)
		}
		if f := Formula(state); !dcpa.IsConstantTrue(f) {
			t.Fatalf("unexpected formula: %s", f)
		}
		stats := o.Stats.Snapshot()
		if stats.MalformedFormulaN != 1 || stats.MalformedSSAN != 1 || stats.MalformedPTSN != 1 {
			t.Fatalf("unexpected stats: %#v", stats)
		}
	})

	t.Run("SSAMismatch", func(t *testing.T) {
		for _, tt := range []struct {
			name    string
			formula string
			ssa     string
		}{
			{"Width", "(eq 1:8 x@1:8)", "x@1:32"},
			{"BareWidth", "(slt x:8 y@1:8)", "x@2:16 y@1:8"},
			{"IndexAhead", "(eq 1:8 x@3:8)", "x@2:8"},
			{"NotInTable", "(eq 1:8 x@1:8)", "y@1:8"},
		} {
			t.Run(tt.name, func(t *testing.T) {
				o := NewOperators()
				state, err := o.Deserialize(distributed.NewMessage(distributed.PostCondition, "B0", 1, distributed.Payload{
					distributed.FormulaKey: tt.formula,
					distributed.SSAKey:     tt.ssa,
					distributed.PTSKey:     "",
				}))
				if err != nil {
					t.Fatal(err)
				} else if f := Formula(state); !dcpa.IsConstantTrue(f) {
					t.Fatalf("unexpected formula: %s", f)
				}
				if stats := o.Stats.Snapshot(); stats.MalformedFormulaN != 1 || stats.FailOpenN() != 1 {
					t.Fatalf("unexpected stats: %#v", stats)
				}

				// The fallback state can be abstracted without tripping over the table.
				pf := state.(*dcpa.NonAbstractionState).PathFormula
				if abs := o.Abstractions.MakeAbstraction(pf.Formula, pf); !abs.IsTrue() {
					t.Fatalf("unexpected abstraction: %s", abs)
				}
			})
		}
	})

	t.Run("SSAConsistent", func(t *testing.T) {
		o := NewOperators()
		state, err := o.Deserialize(distributed.NewMessage(distributed.PostCondition, "B0", 1, distributed.Payload{
			distributed.FormulaKey: "(and (eq x@1:8 y:8) (slt x@2:8 x@1:8))",
			distributed.SSAKey:     "x@2:8",
			distributed.PTSKey:     "",
		}))
		if err != nil {
			t.Fatal(err)
		} else if f := Formula(state); dcpa.IsConstantTrue(f) {
			t.Fatal("expected formula to be kept")
		} else if n := o.Stats.Snapshot().FailOpenN(); n != 0 {
			t.Fatalf("unexpected fail open count: %d", n)
		}
	})

	t.Run("NonBooleanFormula", func(t *testing.T) {
		o := NewOperators()
		state, err := o.Deserialize(distributed.NewMessage(distributed.PostCondition, "B0", 1, distributed.Payload{
			distributed.FormulaKey: "(add x:32 1:32)",
			distributed.SSAKey:     "",
			distributed.PTSKey:     "",
		}))
		if err != nil {
			t.Fatal(err)
		} else if f := Formula(state); !dcpa.IsConstantTrue(f) {
			t.Fatalf("unexpected formula: %s", f)
		} else if n := o.Stats.Snapshot().MalformedFormulaN; n != 1 {
			t.Fatalf("unexpected count: %d", n)
		}
	})

	t.Run("ErrUnknownNode", func(t *testing.T) {
		o := NewOperators()
		_, err := o.Deserialize(distributed.NewMessage(distributed.PostCondition, "B0", 99, nil))
		if !errors.Is(err, distributed.ErrUnknownNode) {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestPredicateOperators_Combine(t *testing.T) {
	// Two upstream blocks reach the same entry with x=1 and x=2.
	t.Run("Scenario", func(t *testing.T) {
		o := NewOperators()
		a := NewAbstractionState(o, "(and (eq x:32 1:32) (eq y:32 0:32))", "x@1:32 y@1:32")
		b := NewAbstractionState(o, "(and (eq x:32 2:32) (eq y:32 0:32))", "x@1:32 y@1:32")

		state := o.Combine([]dcpa.PredicateAbstractState{a, b})
		nonabs, ok := state.(*dcpa.NonAbstractionState)
		if !ok {
			t.Fatalf("unexpected state: %T", state)
		}
		MustEquivalent(t, nonabs.PathFormula.Formula, dcpa.MustParseExpr("(and (or (eq x@1:32 1:32) (eq x@1:32 2:32)) (eq y@1:32 0:32))"))
		if got, want := nonabs.PathFormula.SSA.String(), "x@1:32 y@1:32"; got != want {
			t.Fatalf("ssa=%s, want %s", got, want)
		}
	})

	t.Run("MergesSSA", func(t *testing.T) {
		o := NewOperators()
		a := NewAbstractionState(o, "(eq x:32 1:32)", "x@1:32")
		b := NewAbstractionState(o, "(eq y:32 2:32)", "x@3:32 y@2:32")

		nonabs := o.Combine([]dcpa.PredicateAbstractState{a, b}).(*dcpa.NonAbstractionState)
		if got, want := nonabs.PathFormula.SSA.String(), "x@3:32 y@2:32"; got != want {
			t.Fatalf("ssa=%s, want %s", got, want)
		}
		MustEquivalent(t, nonabs.PathFormula.Formula, dcpa.MustParseExpr("(or (eq x@3:32 1:32) (eq y@2:32 2:32))"))
	})

	t.Run("Permutations", func(t *testing.T) {
		o := NewOperators()
		states := []dcpa.PredicateAbstractState{
			NewAbstractionState(o, "(eq x:32 1:32)", "x@1:32"),
			NewAbstractionState(o, "(slt x:32 -4:32)", "x@2:32"),
			NewAbstractionState(o, "(ugt x:32 100:32)", "x@1:32 z@1:8"),
		}
		want := Formula(o.Combine(states))
		for _, perm := range [][]int{{0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}} {
			permuted := []dcpa.PredicateAbstractState{states[perm[0]], states[perm[1]], states[perm[2]]}
			MustEquivalent(t, Formula(o.Combine(permuted)), want)
		}

		// Folding pairwise yields the same meaning as combining at once.
		left := o.Combine([]dcpa.PredicateAbstractState{states[0], states[1]}).(*dcpa.NonAbstractionState)
		merged := NewAbstractionState(o, dcpa.Uninstantiate(left.PathFormula.Formula).String(), left.PathFormula.SSA.String())
		MustEquivalent(t, dcpa.Uninstantiate(Formula(o.Combine([]dcpa.PredicateAbstractState{merged, states[2]}))), dcpa.Uninstantiate(want))
	})

	t.Run("IsExactDisjunction", func(t *testing.T) {
		o := NewOperators()
		a := NewAbstractionState(o, "(ult x:8 4:8)", "x@1:8")
		b := NewAbstractionState(o, "(ugt x:8 250:8)", "x@1:8")
		got := Formula(o.Combine([]dcpa.PredicateAbstractState{a, b}))
		MustEquivalent(t, got, dcpa.Or(a.Abstraction.Instantiated, b.Abstraction.Instantiated))
	})

	t.Run("Idempotent", func(t *testing.T) {
		o := NewOperators()
		a := NewAbstractionState(o, "(eq x:32 1:32)", "x@1:32")
		MustEquivalent(t, Formula(o.Combine([]dcpa.PredicateAbstractState{a, a})), a.Abstraction.Instantiated)
	})

	t.Run("ErrEmpty", func(t *testing.T) {
		o := NewOperators()
		MustViolate(t, "combine", func() { o.Combine(nil) })
	})

	t.Run("ErrMixed", func(t *testing.T) {
		o := NewOperators()
		a := NewAbstractionState(o, "(eq x:32 1:32)", "x@1:32")
		b := dcpa.WithPathFormula(a, a.PathFormula)
		MustViolate(t, "combine", func() { o.Combine([]dcpa.PredicateAbstractState{a, b}) })
	})

	t.Run("ErrWidthConflict", func(t *testing.T) {
		o := NewOperators()
		a := NewAbstractionState(o, "(eq x:32 1:32)", "x@1:32")
		b := NewAbstractionState(o, "(eq x:8 1:8)", "x@1:8")
		MustViolate(t, "combine", func() { o.Combine([]dcpa.PredicateAbstractState{a, b}) })
	})
}

func TestPredicateOperators_Proceed(t *testing.T) {
	ctx := context.Background()

	t.Run("Forward", func(t *testing.T) {
		o := NewOperators()
		for _, state := range []dcpa.PredicateAbstractState{
			NewAbstractionState(o, "false", ""),
			NewAbstractionState(o, "(and (eq x:32 1:32) (eq x:32 2:32))", "x@1:32"),
			&dcpa.InfeasibleDummyState{},
		} {
			if ok, err := o.ProceedForward(ctx, state); err != nil {
				t.Fatal(err)
			} else if !ok {
				t.Fatalf("expected proceed: %s", state)
			}
		}
	})

	t.Run("Backward", func(t *testing.T) {
		o := NewOperators()
		for _, tt := range []struct {
			state dcpa.PredicateAbstractState
			want  bool
		}{
			{NewAbstractionState(o, "(eq x:32 1:32)", "x@1:32"), true},
			{NewAbstractionState(o, "(and (eq x:32 1:32) (eq x:32 2:32))", "x@1:32"), false},
			{dcpa.WithPathFormula(NewAbstractionState(o, "true", ""), dcpa.PathFormula{
				Formula: dcpa.MustParseExpr("(and (eq x@1:32 (add x:32 1:32)) (eq x@1:32 x:32))"),
				SSA:     MustParseSSAMap("x@1:32"),
			}), false},
			{dcpa.WithPathFormula(NewAbstractionState(o, "true", ""), dcpa.PathFormula{
				Formula: dcpa.MustParseExpr("(and (eq x@1:32 (add x:32 1:32)) (slt x@1:32 x:32))"),
				SSA:     MustParseSSAMap("x@1:32"),
			}), true},
			{&dcpa.InfeasibleDummyState{}, false},
		} {
			if ok, err := o.ProceedBackward(ctx, tt.state); err != nil {
				t.Fatal(err)
			} else if ok != tt.want {
				t.Fatalf("ProceedBackward(%s)=%v, want %v", tt.state, ok, tt.want)
			}
		}
		if n := o.Stats.Snapshot().ProceedStopN; n != 3 {
			t.Fatalf("unexpected stop count: %d", n)
		}
	})

	t.Run("ErrCanceled", func(t *testing.T) {
		o := NewOperators()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := o.ProceedBackward(ctx, NewAbstractionState(o, "(eq x:32 1:32)", "x@1:32")); err != dcpa.ErrSolverCanceled {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestPredicateOperators_Widen(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		o := NewOperators()
		a := NewAbstractionState(o, "(eq i:32 0:32)", "i@1:32")
		a.Locations = a.Locations.Set(1, 1).Set(2, 5)
		b := NewAbstractionState(o, "(eq i:32 1:32)", "i@2:32")
		b.Locations = b.Locations.Set(2, 7).Set(3, 1)
		b.Abstraction.ReusedIDs = dcpa.NewIDSet(8)

		w := o.Widen(a, b)
		MustEquivalent(t, w.Abstraction.Instantiated, dcpa.Or(a.Abstraction.Instantiated, b.Abstraction.Instantiated))
		MustEquivalent(t, w.Abstraction.Uninstantiated, dcpa.MustParseExpr("(or (eq i:32 0:32) (eq i:32 1:32))"))
		want := dcpa.LocationCounts{}.Set(1, 1).Set(2, 7).Set(3, 1)
		if got := w.Locations; !got.Equal(want) {
			t.Fatalf("locations=%s, want %s", got, want)
		} else if !w.Abstraction.ReusedIDs.Equal(dcpa.NewIDSet(8)) {
			t.Fatalf("unexpected reused ids: %s", w.Abstraction.ReusedIDs)
		} else if got, want := w.PathFormula.SSA.String(), "i@2:32"; got != want {
			t.Fatalf("ssa=%s, want %s", got, want)
		}
	})

	// Widening never loses behavior of either operand.
	t.Run("Safety", func(t *testing.T) {
		o := NewOperators()
		a := NewAbstractionState(o, "(ult x:8 10:8)", "x@1:8")
		b := NewAbstractionState(o, "(eq y:8 3:8)", "y@1:8")
		w := o.Widen(a, b)

		ctx := context.Background()
		for _, in := range []*dcpa.AbstractionState{a, b} {
			if ok, err := dcpa.Entails(ctx, o.Solver, in.Abstraction.Instantiated, w.Abstraction.Instantiated); err != nil {
				t.Fatal(err)
			} else if !ok {
				t.Fatalf("%s not entailed by widened state", in.Abstraction.Instantiated)
			}
		}
	})

	// A loop counter bounded by 4 bits stops growing once every value was seen.
	t.Run("Fixpoint", func(t *testing.T) {
		o := NewOperators()
		ctx := context.Background()

		state := NewAbstractionState(o, "(eq i:4 0:4)", "")
		var n int
		for i := 1; ; i++ {
			if i > 32 {
				t.Fatal("no fixpoint")
			}
			next := NewAbstractionState(o, dcpa.NewBinaryExpr(dcpa.EQ, dcpa.NewVarExpr("i", 4), dcpa.NewConstantExpr(uint64(i%16), 4)).String(), "")
			if ok, err := o.Covers(ctx, state, next); err != nil {
				t.Fatal(err)
			} else if ok {
				n = i
				break
			}
			state = o.Widen(state, next)
		}
		if n != 16 {
			t.Fatalf("fixpoint after %d iterations", n)
		}
	})

	t.Run("ErrNonAbstraction", func(t *testing.T) {
		o := NewOperators()
		a := NewAbstractionState(o, "(eq x:32 1:32)", "x@1:32")
		MustViolate(t, "widen", func() { o.Widen(a, dcpa.WithPathFormula(a, a.PathFormula)) })
		MustViolate(t, "widen", func() { o.Widen(&dcpa.InfeasibleDummyState{}, a) })
	})
}

func TestPredicateOperators_Covers(t *testing.T) {
	ctx := context.Background()

	t.Run("Abstraction", func(t *testing.T) {
		o := NewOperators()
		a := NewAbstractionState(o, "(sgt x:32 0:32)", "x@1:32")
		b := NewAbstractionState(o, "(sgt x:32 5:32)", "x@1:32")
		if ok, err := o.Covers(ctx, a, b); err != nil {
			t.Fatal(err)
		} else if !ok {
			t.Fatal("expected A to cover B")
		}
		if ok, err := o.Covers(ctx, b, a); err != nil {
			t.Fatal(err)
		} else if ok {
			t.Fatal("expected B not to cover A")
		}
		if o.CoverageIsEquality() {
			t.Fatal("expected entailment based coverage")
		}
	})

	t.Run("NonAbstraction", func(t *testing.T) {
		o := NewOperators()
		base := NewAbstractionState(o, "true", "")
		a := dcpa.WithPathFormula(base, dcpa.PathFormula{Formula: dcpa.MustParseExpr("(ult x@1:8 10:8)")})
		b := dcpa.WithPathFormula(base, dcpa.PathFormula{Formula: dcpa.MustParseExpr("(eq x@1:8 3:8)")})
		if ok, err := o.Covers(ctx, a, b); err != nil {
			t.Fatal(err)
		} else if !ok {
			t.Fatal("expected A to cover B")
		}
	})

	t.Run("Mixed", func(t *testing.T) {
		o := NewOperators()
		a := NewAbstractionState(o, "true", "")
		b := dcpa.WithPathFormula(a, dcpa.PathFormula{Formula: dcpa.False()})
		if ok, err := o.Covers(ctx, a, b); err != nil {
			t.Fatal(err)
		} else if ok {
			t.Fatal("mixed kinds must not cover")
		}
	})

	t.Run("ErrUnknownState", func(t *testing.T) {
		o := NewOperators()
		b := NewAbstractionState(o, "true", "")
		MustViolate(t, "covers", func() { o.Covers(ctx, nil, b) })
	})
}
