package dcpa_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/benbjohnson/dcpa"
	"github.com/google/go-cmp/cmp"
)

// Var returns an uninstantiated variable.
func Var(name string, width uint) *dcpa.VarExpr {
	return dcpa.NewVarExpr(name, width)
}

// Const returns a constant.
func Const(value uint64, width uint) *dcpa.ConstantExpr {
	return dcpa.NewConstantExpr(value, width)
}

func TestExprWidth(t *testing.T) {
	for _, tt := range []struct {
		name  string
		expr  dcpa.Expr
		width uint
	}{
		{"ConstantExpr", Const(0, 8), 8},
		{"VarExpr", Var("x", 16), 16},
		{"ExtractExpr", &dcpa.ExtractExpr{Expr: Const(0, 32), Offset: 8, Width: 16}, 16},
		{"NotExpr", &dcpa.NotExpr{Expr: Const(0, 8)}, 8},
		{"CastExpr", &dcpa.CastExpr{Src: Const(0, 8), Width: 16}, 16},
		{"Compare", &dcpa.BinaryExpr{Op: dcpa.EQ, LHS: Const(0, 8), RHS: Const(0, 8)}, dcpa.WidthBool},
		{"Arithmetic", &dcpa.BinaryExpr{Op: dcpa.ADD, LHS: Const(0, 8), RHS: Const(0, 8)}, 8},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if w := dcpa.ExprWidth(tt.expr); w != tt.width {
				t.Fatalf("unexpected width: %d", w)
			}
		})
	}
}

func TestBinaryOp_String(t *testing.T) {
	t.Run("Known", func(t *testing.T) {
		if s := dcpa.ADD.String(); s != "add" {
			t.Fatalf("unexpected string: %s", s)
		}
	})
	t.Run("Unknown", func(t *testing.T) {
		if s := dcpa.BinaryOp(100).String(); s != "BinaryOp<100>" {
			t.Fatalf("unexpected string: %s", s)
		}
	})
	t.Run("Parse", func(t *testing.T) {
		if op, ok := dcpa.ParseBinaryOp("sge"); !ok || op != dcpa.SGE {
			t.Fatalf("unexpected op: %s", op)
		} else if _, ok := dcpa.ParseBinaryOp("pow"); ok {
			t.Fatal("expected unknown op")
		}
	})
}

func TestNewBinaryExpr(t *testing.T) {
	x, y := Var("x", 8), Var("y", 8)
	a, b := Var("a", 1), Var("b", 1)

	for _, tt := range []struct {
		name string
		op   dcpa.BinaryOp
		lhs  dcpa.Expr
		rhs  dcpa.Expr
		want string
	}{
		{"AddConstantFirst", dcpa.ADD, x, Const(1, 8), "(add 1:8 x:8)"},
		{"AddZero", dcpa.ADD, Const(0, 8), x, "x:8"},
		{"AddConstants", dcpa.ADD, Const(250, 8), Const(10, 8), "4:8"},
		{"AddNested", dcpa.ADD, Const(1, 8), &dcpa.BinaryExpr{Op: dcpa.ADD, LHS: Const(2, 8), RHS: x}, "(add 3:8 x:8)"},
		{"AddBool", dcpa.ADD, a, b, "(xor a:1 b:1)"},
		{"SubSelf", dcpa.SUB, x, x, "0:8"},
		{"SubConstant", dcpa.SUB, x, Const(1, 8), "(add 255:8 x:8)"},
		{"SubFromConstant", dcpa.SUB, Const(5, 8), x, "(sub 5:8 x:8)"},
		{"MulOne", dcpa.MUL, x, Const(1, 8), "x:8"},
		{"MulZero", dcpa.MUL, x, Const(0, 8), "0:8"},
		{"UDivZero", dcpa.UDIV, Const(7, 8), Const(0, 8), "255:8"},
		{"SDiv", dcpa.SDIV, Const(0xF9, 8), Const(2, 8), "253:8"},
		{"SRem", dcpa.SREM, Const(0xF9, 8), Const(2, 8), "255:8"},
		{"AndAllOnes", dcpa.AND, Const(255, 8), x, "x:8"},
		{"AndZero", dcpa.AND, x, Const(0, 8), "0:8"},
		{"AndConstantLast", dcpa.AND, Const(15, 8), x, "(and x:8 15:8)"},
		{"OrZero", dcpa.OR, x, Const(0, 8), "x:8"},
		{"OrSelf", dcpa.OR, x, x, "x:8"},
		{"XorZero", dcpa.XOR, Const(0, 8), x, "x:8"},
		{"Shl", dcpa.SHL, Const(3, 8), Const(2, 8), "12:8"},
		{"ShlOverflow", dcpa.SHL, Const(3, 8), Const(9, 8), "0:8"},
		{"AShr", dcpa.ASHR, Const(0x80, 8), Const(7, 8), "255:8"},
		{"EqConstantFirst", dcpa.EQ, x, Const(2, 8), "(eq 2:8 x:8)"},
		{"EqSelf", dcpa.EQ, x, x, "true"},
		{"EqShift", dcpa.EQ, Const(3, 8), &dcpa.BinaryExpr{Op: dcpa.ADD, LHS: Const(1, 8), RHS: x}, "(eq 2:8 x:8)"},
		{"EqTrue", dcpa.EQ, dcpa.True(), a, "a:1"},
		{"EqFalse", dcpa.EQ, dcpa.False(), a, "(not a:1)"},
		{"EqZExt", dcpa.EQ, &dcpa.CastExpr{Src: x, Width: 16}, Const(7, 16), "(eq 7:8 x:8)"},
		{"EqZExtOutOfRange", dcpa.EQ, &dcpa.CastExpr{Src: x, Width: 16}, Const(300, 16), "false"},
		{"Ne", dcpa.NE, x, Const(2, 8), "(not (eq 2:8 x:8))"},
		{"Sgt", dcpa.SGT, x, Const(0, 8), "(slt 0:8 x:8)"},
		{"Sge", dcpa.SGE, x, y, "(sle y:8 x:8)"},
		{"Ugt", dcpa.UGT, x, y, "(ult y:8 x:8)"},
		{"Uge", dcpa.UGE, x, y, "(ule y:8 x:8)"},
		{"SltSelf", dcpa.SLT, x, x, "false"},
		{"SleSelf", dcpa.SLE, x, x, "true"},
		{"SltConstants", dcpa.SLT, Const(255, 8), Const(0, 8), "true"},
		{"UltConstants", dcpa.ULT, Const(255, 8), Const(0, 8), "false"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := dcpa.NewBinaryExpr(tt.op, tt.lhs, tt.rhs).String(); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}

	t.Run("ErrWidthMismatch", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic")
			}
		}()
		dcpa.NewBinaryExpr(dcpa.ADD, x, Var("z", 16))
	})
}

func TestNewNotExpr(t *testing.T) {
	if got := dcpa.NewNotExpr(dcpa.True()).String(); got != "false" {
		t.Fatalf("unexpected expr: %s", got)
	} else if got := dcpa.NewNotExpr(dcpa.NewNotExpr(Var("c", 1))).String(); got != "c:1" {
		t.Fatalf("unexpected expr: %s", got)
	} else if got := dcpa.NewNotExpr(Const(0x0F, 8)).String(); got != "240:8" {
		t.Fatalf("unexpected expr: %s", got)
	}

	t.Run("ErrNotBoolean", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic")
			}
		}()
		dcpa.Not(Var("x", 8))
	})
}

func TestNewCastExpr(t *testing.T) {
	for _, tt := range []struct {
		name   string
		src    dcpa.Expr
		width  uint
		signed bool
		want   string
	}{
		{"ZExt", Var("x", 8), 16, false, "(zext x:8 16)"},
		{"SExt", Var("x", 8), 16, true, "(sext x:8 16)"},
		{"SameWidth", Var("x", 8), 8, true, "x:8"},
		{"Truncate", Var("x", 16), 8, false, "(extract x:16 0 8)"},
		{"ZExtConstant", Const(255, 8), 16, false, "255:16"},
		{"SExtConstant", Const(255, 8), 16, true, "65535:16"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := dcpa.NewCastExpr(tt.src, tt.width, tt.signed).String(); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNewExtractExpr(t *testing.T) {
	if got := dcpa.NewExtractExpr(Const(0x1234, 16), 8, 8).String(); got != "18:8" {
		t.Fatalf("unexpected expr: %s", got)
	} else if got := dcpa.NewExtractExpr(dcpa.NewExtractExpr(Var("x", 32), 8, 16), 4, 8).String(); got != "(extract x:32 12 8)" {
		t.Fatalf("unexpected expr: %s", got)
	} else if got := dcpa.NewExtractExpr(Var("x", 32), 0, 32).String(); got != "x:32" {
		t.Fatalf("unexpected expr: %s", got)
	}
}

func TestConstantExpr_Int(t *testing.T) {
	for _, tt := range []struct {
		c    *dcpa.ConstantExpr
		want int64
	}{
		{Const(127, 8), 127},
		{Const(128, 8), -128},
		{Const(0xFFFF, 16), -1},
		{Const(1, 64), 1},
	} {
		if got := tt.c.Int(); got != tt.want {
			t.Fatalf("%s: got %d, want %d", tt.c, got, tt.want)
		}
	}
}

func TestAnd(t *testing.T) {
	a, b := Var("a", 1), Var("b", 1)
	if got := dcpa.And().String(); got != "true" {
		t.Fatalf("unexpected expr: %s", got)
	} else if got := dcpa.Or().String(); got != "false" {
		t.Fatalf("unexpected expr: %s", got)
	} else if got := dcpa.And(a).String(); got != "a:1" {
		t.Fatalf("unexpected expr: %s", got)
	} else if got := dcpa.Or(dcpa.Not(a), b).String(); got != "(or (not a:1) b:1)" {
		t.Fatalf("unexpected expr: %s", got)
	}

	t.Run("Conjuncts", func(t *testing.T) {
		c := Var("c", 1)
		var a2 []string
		for _, e := range dcpa.Conjuncts(dcpa.And(a, dcpa.Or(b, c), c)) {
			a2 = append(a2, e.String())
		}
		if diff := cmp.Diff([]string{"a:1", "(or b:1 c:1)", "c:1"}, a2); diff != "" {
			t.Fatal(diff)
		} else if n := len(dcpa.Conjuncts(dcpa.True())); n != 0 {
			t.Fatalf("unexpected conjuncts: %d", n)
		}
	})
}

func TestSortExprs(t *testing.T) {
	a := dcpa.SortExprs([]dcpa.Expr{
		dcpa.MustParseExpr("(slt x:8 0:8)"),
		Var("y", 8),
		Const(3, 8),
		Var("x", 8),
		dcpa.NewIndexedVarExpr("x", 2, 8),
		Var("y", 8),
	})

	var other []string
	for _, e := range a {
		other = append(other, e.String())
	}
	if diff := cmp.Diff([]string{"3:8", "x:8", "x@2:8", "y:8", "(slt x:8 0:8)"}, other); diff != "" {
		t.Fatal(diff)
	}
}

func TestFindVars(t *testing.T) {
	expr := dcpa.MustParseExpr("(and (slt x@1:8 y:8) (eq x:8 (add 1:8 x@1:8)))")

	var keys []string
	for _, v := range dcpa.FindVars(expr) {
		keys = append(keys, v.Key())
	}
	if diff := cmp.Diff([]string{"x", "x@1", "y"}, keys); diff != "" {
		t.Fatal(diff)
	}
}

func TestExprEvaluator_Evaluate(t *testing.T) {
	x, y := Var("x", 8), Var("y", 8)
	ee := dcpa.NewExprEvaluator([]*dcpa.VarExpr{x, y}, []*dcpa.ConstantExpr{Const(0xFE, 8), Const(3, 8)})

	for _, tt := range []struct {
		expr string
		want string
	}{
		{"(add x:8 y:8)", "1:8"},
		{"(slt x:8 y:8)", "true"},
		{"(ult x:8 y:8)", "false"},
		{"(sext x:8 16)", "65534:16"},
		{"(extract x:8 4 4)", "15:4"},
		{"(not (eq x:8 y:8))", "true"},
	} {
		t.Run(tt.expr, func(t *testing.T) {
			if got, err := ee.Evaluate(dcpa.MustParseExpr(tt.expr)); err != nil {
				t.Fatal(err)
			} else if got.String() != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}

	t.Run("ErrUnbound", func(t *testing.T) {
		if _, err := ee.Evaluate(Var("z", 8)); err == nil || err.Error() != "variable not bound: z" {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestParseExpr(t *testing.T) {
	for _, s := range []string{
		"true",
		"false",
		"5:8",
		"x:8",
		"x@3:32",
		"main.t0$:16",
		"(add 1:8 x:8)",
		"(not (eq 2:16 n@1:16))",
		"(zext x:8 16)",
		"(sext x:8 64)",
		"(extract x:32 8 16)",
		"(and (slt i:8 10:8) (not c:1))",
		"(or a:1 b:1)",
	} {
		t.Run(s, func(t *testing.T) {
			if expr, err := dcpa.ParseExpr(s); err != nil {
				t.Fatal(err)
			} else if got := expr.String(); got != s {
				t.Fatalf("got %s", got)
			}
		})
	}

	t.Run("Normalized", func(t *testing.T) {
		for s, want := range map[string]string{
			"-1:8":                      "255:8",
			"(sgt x:8 y:8)":             "(slt y:8 x:8)",
			"(and a:1 b:1 c:1)":         "(and (and a:1 b:1) c:1)",
			"  ( eq  x:8   x:8 )  ":     "true",
			"(sub (add 1:8 x:8) 1:8)":   "x:8",
			"(ne (zext x:8 16) 300:16)": "true",
		} {
			if got := dcpa.MustParseExpr(s).String(); got != want {
				t.Fatalf("%q: got %s, want %s", s, got, want)
			}
		}
	})

	for _, tt := range []struct {
		name string
		s    string
		err  string
	}{
		{"ErrEmpty", "", "unexpected end of input"},
		{"ErrMissingWidth", "x", `missing width in "x"`},
		{"ErrWidth", "x:65", `invalid width "65"`},
		{"ErrZeroWidth", "0:0", `invalid width "0"`},
		{"ErrName", "1x@1:8", `invalid constant "1x@1:8"`},
		{"ErrIndex", "x@-1:8", `invalid ssa index`},
		{"ErrOperator", "(pow x:8 y:8)", `unknown operator "pow"`},
		{"ErrOperandCount", "(add x:8)", "unexpected operand count 1"},
		{"ErrTooManyOperands", "(add x:8 y:8 z:8)", "unexpected operand count 3"},
		{"ErrWidthMismatch", "(add x:8 y:16)", "width mismatch"},
		{"ErrUnclosed", "(add x:8 y:8", "expected ')'"},
		{"ErrTrailing", "x:8 y:8", "unexpected trailing input"},
		{"ErrExtractBounds", "(extract x:8 4 8)", "extract out of bounds"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dcpa.ParseExpr(tt.s)
			var perr *dcpa.ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("unexpected error: %#v", err)
			} else if !strings.Contains(err.Error(), tt.err) {
				t.Fatalf("unexpected error: %s", err)
			}
		})
	}
}

func TestIsValidVarName(t *testing.T) {
	for name, want := range map[string]bool{
		"x":         true,
		"Abs.t0":    true,
		"Count.i$":  true,
		"_tmp#2":    true,
		"":          false,
		"true":      false,
		"1x":        false,
		"x y":       false,
		"x@1":       false,
		"(x)":       false,
		"x:8":       false,
		"héllo":     true,
		"a.b.c.d_1": true,
	} {
		if got := dcpa.IsValidVarName(name); got != want {
			t.Fatalf("%q: got %v, want %v", name, got, want)
		}
	}
}
