//go:build z3

package z3

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/benbjohnson/dcpa"
)

/*
#cgo LDFLAGS: -lz3
#include <z3.h>
#include <stdlib.h>
#include <stdio.h>
*/
import "C"

// Ensure solver implements interface.
var _ dcpa.Solver = (*Solver)(nil)

// Solver represents a solver that uses an embedded Z3 solver.
type Solver struct {
	ctx   *Context
	stats Stats
}

// NewSolver returns a new instance of Solver.
func NewSolver() *Solver {
	return &Solver{
		ctx: NewContext(),
	}
}

// Close deletes the underlying Z3 context.
func (s *Solver) Close() error {
	return s.ctx.Close()
}

// Stats returns statistics for the solver.
func (s *Solver) Stats() Stats {
	return s.stats
}

func (s *Solver) Solve(ctx context.Context, constraints []dcpa.Expr, vars []*dcpa.VarExpr) (satisfiable bool, values []*dcpa.ConstantExpr, err error) {
	if err := ctx.Err(); err != nil {
		return false, nil, dcpa.ErrSolverCanceled
	}

	t := time.Now()
	defer func() {
		s.stats.SolveN++
		s.stats.SolveTime += time.Since(t)
	}()

	solver := C.Z3_mk_solver(s.ctx.raw)
	if err := s.ctx.err("Z3_mk_solver"); err != nil {
		return false, nil, err
	}
	C.Z3_solver_inc_ref(s.ctx.raw, solver)
	defer C.Z3_solver_dec_ref(s.ctx.raw, solver)

	// Assert constraints.
	for _, constraint := range constraints {
		z3Constraint, err := s.ctx.toAST(constraint)
		if err != nil {
			return false, nil, err
		}
		C.Z3_solver_assert(s.ctx.raw, solver, z3Constraint)
		if err := s.ctx.err("Z3_solver_assert"); err != nil {
			return false, nil, err
		}
	}

	// Interrupt the check if the context is canceled while it runs.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			C.Z3_interrupt(s.ctx.raw)
		case <-done:
		}
	}()
	ret := C.Z3_solver_check(s.ctx.raw, solver)
	close(done)
	wg.Wait()

	// Exit immediately if unsatisfiable or the solver encountered an error.
	if err := s.ctx.err("Z3_solver_check"); err != nil {
		return false, nil, err
	} else if ret == C.Z3_L_FALSE {
		return false, nil, nil
	} else if ret == C.Z3_L_UNDEF {
		reason := C.GoString(C.Z3_solver_get_reason_unknown(s.ctx.raw, solver))
		switch {
		case strings.Contains(reason, "timeout"):
			return false, nil, dcpa.ErrSolverTimeout
		case strings.Contains(reason, "canceled"), ctx.Err() != nil:
			return false, nil, dcpa.ErrSolverCanceled
		case strings.Contains(reason, "(resource limits reached)"):
			return false, nil, dcpa.ErrSolverResourceLimit
		case strings.Contains(reason, "unknown"):
			return false, nil, dcpa.ErrSolverUnknown
		default:
			return false, nil, fmt.Errorf("z3: %s", reason)
		}
	} else if len(vars) == 0 {
		return true, nil, nil // no variables requested, ignore model
	}

	// Calculate a model for the given formula.
	model := C.Z3_solver_get_model(s.ctx.raw, solver)
	if err := s.ctx.err("Z3_solver_get_model"); err != nil {
		return true, nil, err
	}
	C.Z3_model_inc_ref(s.ctx.raw, model)
	defer C.Z3_model_dec_ref(s.ctx.raw, model)

	values = make([]*dcpa.ConstantExpr, 0, len(vars))
	for _, v := range vars {
		value, err := s.ctx.evalVar(model, v)
		if err != nil {
			return true, nil, err
		}
		values = append(values, value)
	}
	return true, values, nil
}

// Context represents a Z3 context object that is used for constructing expressions.
type Context struct {
	raw C.Z3_context
}

// NewContext returns a new instance of Context.
func NewContext() *Context {
	config := C.Z3_mk_config()
	defer C.Z3_del_config(config)

	raw := C.Z3_mk_context(config)
	C.Z3_set_error_handler(raw, nil)
	C.Z3_set_ast_print_mode(raw, C.Z3_PRINT_SMTLIB2_COMPLIANT)
	return &Context{raw: raw}
}

// Close deletes the underlying Z3 context.
func (ctx *Context) Close() error {
	C.Z3_del_context(ctx.raw)
	return ctx.err("Z3_del_context")
}

// err returns the error for the last API call. Returns nil if last call was successful.
func (ctx *Context) err(op string) error {
	if code := C.Z3_get_error_code(ctx.raw); code != C.Z3_OK {
		return &Error{Code: int(code), Op: op, Message: C.GoString(C.Z3_get_error_msg(ctx.raw, code))}
	}
	return nil
}

// toAST returns a new instance of Z3_ast from an expression. Boolean
// expressions map to the Z3 bool sort, all others to bit-vector sorts.
func (ctx *Context) toAST(expr dcpa.Expr) (C.Z3_ast, error) {
	switch expr := expr.(type) {
	case *dcpa.ConstantExpr:
		return ctx.toConstantAST(expr)
	case *dcpa.VarExpr:
		return ctx.toVarAST(expr)
	case *dcpa.ExtractExpr:
		return ctx.toExtractAST(expr)
	case *dcpa.CastExpr:
		return ctx.toCastAST(expr)
	case *dcpa.NotExpr:
		return ctx.toNotAST(expr)
	case *dcpa.BinaryExpr:
		return ctx.toBinaryAST(expr)
	default:
		return nil, fmt.Errorf("z3.Context.toAST: %w: %T", dcpa.ErrUnsupportedExpr, expr)
	}
}

func (ctx *Context) toConstantAST(expr *dcpa.ConstantExpr) (C.Z3_ast, error) {
	if expr.Width == dcpa.WidthBool {
		if expr.IsTrue() {
			return C.Z3_mk_true(ctx.raw), ctx.err("Z3_mk_true")
		}
		return C.Z3_mk_false(ctx.raw), ctx.err("Z3_mk_false")
	}
	return ctx.makeUint64(expr.Width, expr.Value)
}

func (ctx *Context) toVarAST(expr *dcpa.VarExpr) (C.Z3_ast, error) {
	var t C.Z3_sort
	if expr.Width == dcpa.WidthBool {
		t = C.Z3_mk_bool_sort(ctx.raw)
	} else {
		t = C.Z3_mk_bv_sort(ctx.raw, C.uint(expr.Width))
	}
	if err := ctx.err("Z3_mk_sort"); err != nil {
		return nil, err
	}

	cname := C.CString(expr.Key())
	defer C.free(unsafe.Pointer(cname))
	symbol := C.Z3_mk_string_symbol(ctx.raw, cname)
	return C.Z3_mk_const(ctx.raw, symbol, t), ctx.err("Z3_mk_const")
}

func (ctx *Context) toExtractAST(expr *dcpa.ExtractExpr) (C.Z3_ast, error) {
	src, err := ctx.toAST(expr.Expr)
	if err != nil {
		return nil, err
	}

	// If extracting single bit, use EQ expression to convert to bool sort.
	if expr.Width == dcpa.WidthBool {
		extractExpr := C.Z3_mk_extract(ctx.raw, C.uint(expr.Offset), C.uint(expr.Offset), src)
		if err := ctx.err("Z3_mk_extract[bool]"); err != nil {
			return nil, err
		}
		one, err := ctx.makeUint64(1, 1)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_eq(ctx.raw, extractExpr, one), ctx.err("Z3_mk_eq")
	}
	return C.Z3_mk_extract(ctx.raw, C.uint(expr.Offset+expr.Width-1), C.uint(expr.Offset), src), ctx.err("Z3_mk_extract")
}

func (ctx *Context) toCastAST(expr *dcpa.CastExpr) (C.Z3_ast, error) {
	src, err := ctx.toAST(expr.Src)
	if err != nil {
		return nil, err
	}

	// Convert boolean cast to if-then-else expression.
	if dcpa.ExprWidth(expr.Src) == dcpa.WidthBool {
		one := uint64(1)
		if expr.Signed {
			one = ^uint64(0)
		}
		whenTrue, err := ctx.makeUint64(expr.Width, one)
		if err != nil {
			return nil, err
		}
		whenFalse, err := ctx.makeUint64(expr.Width, 0)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_ite(ctx.raw, src, whenTrue, whenFalse), ctx.err("Z3_mk_ite")
	}

	n := C.uint(expr.Width - dcpa.ExprWidth(expr.Src))
	if expr.Signed {
		return C.Z3_mk_sign_ext(ctx.raw, n, src), ctx.err("Z3_mk_sign_ext")
	}
	return C.Z3_mk_zero_ext(ctx.raw, n, src), ctx.err("Z3_mk_zero_ext")
}

func (ctx *Context) toNotAST(expr *dcpa.NotExpr) (C.Z3_ast, error) {
	src, err := ctx.toAST(expr.Expr)
	if err != nil {
		return nil, err
	}

	// If boolean, use boolean NOT operation.
	if dcpa.ExprWidth(expr.Expr) == dcpa.WidthBool {
		return C.Z3_mk_not(ctx.raw, src), ctx.err("Z3_mk_not")
	}
	return C.Z3_mk_bvnot(ctx.raw, src), ctx.err("Z3_mk_bvnot")
}

func (ctx *Context) toBinaryAST(expr *dcpa.BinaryExpr) (C.Z3_ast, error) {
	lhs, err := ctx.toAST(expr.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := ctx.toAST(expr.RHS)
	if err != nil {
		return nil, err
	}
	boolean := dcpa.ExprWidth(expr.LHS) == dcpa.WidthBool

	args := [2]C.Z3_ast{lhs, rhs}
	switch {
	case boolean && expr.Op == dcpa.AND:
		return C.Z3_mk_and(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_and")
	case boolean && expr.Op == dcpa.OR:
		return C.Z3_mk_or(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_or")
	case boolean && expr.Op == dcpa.XOR:
		return C.Z3_mk_xor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_xor")
	case boolean && expr.Op == dcpa.EQ:
		return C.Z3_mk_iff(ctx.raw, lhs, rhs), ctx.err("Z3_mk_iff")
	case boolean:
		return nil, fmt.Errorf("z3.Context.toBinaryAST: %w: boolean %s", dcpa.ErrUnsupportedExpr, expr.Op)
	}

	switch expr.Op {
	case dcpa.ADD:
		return C.Z3_mk_bvadd(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvadd")
	case dcpa.SUB:
		return C.Z3_mk_bvsub(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsub")
	case dcpa.MUL:
		return C.Z3_mk_bvmul(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvmul")
	case dcpa.UDIV:
		return C.Z3_mk_bvudiv(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvudiv")
	case dcpa.SDIV:
		return C.Z3_mk_bvsdiv(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsdiv")
	case dcpa.UREM:
		return C.Z3_mk_bvurem(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvurem")
	case dcpa.SREM:
		return C.Z3_mk_bvsrem(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsrem")
	case dcpa.AND:
		return C.Z3_mk_bvand(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvand")
	case dcpa.OR:
		return C.Z3_mk_bvor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvor")
	case dcpa.XOR:
		return C.Z3_mk_bvxor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvxor")
	case dcpa.SHL:
		return C.Z3_mk_bvshl(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvshl")
	case dcpa.LSHR:
		return C.Z3_mk_bvlshr(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvlshr")
	case dcpa.ASHR:
		return C.Z3_mk_bvashr(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvashr")
	case dcpa.EQ:
		return C.Z3_mk_eq(ctx.raw, lhs, rhs), ctx.err("Z3_mk_eq")
	case dcpa.ULT:
		return C.Z3_mk_bvult(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvult")
	case dcpa.ULE:
		return C.Z3_mk_bvule(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvule")
	case dcpa.SLT:
		return C.Z3_mk_bvslt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvslt")
	case dcpa.SLE:
		return C.Z3_mk_bvsle(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsle")
	default:
		return nil, fmt.Errorf("z3.Context.toBinaryAST: unexpected operation: %s", expr.Op)
	}
}

func (ctx *Context) makeUint64(width uint, value uint64) (C.Z3_ast, error) {
	t := C.Z3_mk_bv_sort(ctx.raw, C.uint(width))
	if err := ctx.err("Z3_mk_bv_sort"); err != nil {
		return nil, err
	}
	return C.Z3_mk_unsigned_int64(ctx.raw, C.uint64_t(value), t), ctx.err("Z3_mk_unsigned_int64")
}

// evalVar evaluates a variable against the model. Unconstrained variables
// are completed to zero.
func (ctx *Context) evalVar(model C.Z3_model, v *dcpa.VarExpr) (*dcpa.ConstantExpr, error) {
	ast, err := ctx.toVarAST(v)
	if err != nil {
		return nil, err
	}

	var result C.Z3_ast
	C.Z3_model_eval(ctx.raw, model, ast, C.bool(true), &result)
	if err := ctx.err("Z3_model_eval"); err != nil {
		return nil, err
	}

	if v.Width == dcpa.WidthBool {
		return dcpa.NewBoolConstantExpr(C.Z3_get_bool_value(ctx.raw, result) == C.Z3_L_TRUE), ctx.err("Z3_get_bool_value")
	}

	var value C.uint64_t
	C.Z3_get_numeral_uint64(ctx.raw, result, &value)
	if err := ctx.err("Z3_get_numeral_uint64"); err != nil {
		return nil, err
	}
	return dcpa.NewConstantExpr(uint64(value), v.Width), nil
}

// Error represents an error from the Z3 API.
type Error struct {
	Code    int
	Op      string
	Message string
}

// Error returns the error as a string.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Message, e.Code)
}

// Stats represents statistics for the solver.
type Stats struct {
	SolveN    int
	SolveTime time.Duration
}
