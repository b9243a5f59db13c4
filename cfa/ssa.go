package cfa

import (
	"fmt"
	"go/constant"
	"go/token"
	"go/types"
	"path/filepath"

	"github.com/benbjohnson/dcpa"
	"github.com/pkg/errors"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// IntrinsicPath is the import path of the package whose functions mark
// nondeterministic values and checks in analyzed programs.
const IntrinsicPath = "github.com/benbjohnson/dcpa"

// LoadFunction loads the packages matching pattern and translates the
// function with the given name.
func LoadFunction(pattern, name string) (*CFA, error) {
	initial, err := packages.Load(&packages.Config{Mode: packages.LoadAllSyntax}, pattern)
	if err != nil {
		return nil, err
	} else if packages.PrintErrors(initial) > 0 {
		return nil, fmt.Errorf("packages contain errors")
	}

	// Build program in SSA form.
	prog, pkgs := ssautil.AllPackages(initial, ssa.BuilderMode(0))
	for i, pkg := range pkgs {
		if pkg == nil {
			return nil, fmt.Errorf("cannot build SSA for package %s", initial[i])
		}
	}
	prog.Build()

	for _, pkg := range pkgs {
		if m, ok := pkg.Members[name]; !ok {
			continue
		} else if fn, ok := m.(*ssa.Function); !ok {
			return nil, fmt.Errorf("member %q is %T, not a function", name, m)
		} else {
			return FromFunction(fn, nil)
		}
	}
	return nil, fmt.Errorf("function %q not found in %s", name, pattern)
}

// FromFunction translates a Go function in SSA form into a CFA. Parameters
// become the program inputs. Only boolean and integer values are supported.
// Calls into IntrinsicPath mark arbitrary values, assumptions and
// assertions; a panic is an error location.
//
// If sizes is nil then the sizes of the gc compiler on amd64 are used.
func FromFunction(fn *ssa.Function, sizes types.Sizes) (*CFA, error) {
	if sizes == nil {
		sizes = types.SizesFor("gc", "amd64")
	}
	if len(fn.Blocks) == 0 {
		return nil, fmt.Errorf("function %s has no body", fn.Name())
	}

	b := &builder{
		fn:     fn,
		sizes:  sizes,
		cfa:    New(fn.Name()),
		starts: make(map[*ssa.BasicBlock]*dcpa.CFANode),
		vars:   make(map[ssa.Value]*dcpa.VarExpr),
	}
	for _, blk := range fn.Blocks {
		b.starts[blk] = b.cfa.AddNode()
	}
	b.cfa.Entry = b.starts[fn.Blocks[0]]
	b.cfa.Exit = b.cfa.AddNode()

	for _, blk := range fn.Blocks {
		if err := b.block(blk); err != nil {
			return nil, err
		}
	}
	if err := b.cfa.Validate(); err != nil {
		return nil, err
	}
	return b.cfa, nil
}

type builder struct {
	fn      *ssa.Function
	sizes   types.Sizes
	cfa     *CFA
	starts  map[*ssa.BasicBlock]*dcpa.CFANode
	errNode *dcpa.CFANode
	vars    map[ssa.Value]*dcpa.VarExpr
}

func (b *builder) errorNode() *dcpa.CFANode {
	if b.errNode == nil {
		b.errNode = b.cfa.AddNode()
		b.cfa.MarkError(b.errNode)
	}
	return b.errNode
}

func (b *builder) label(instr ssa.Instruction) string {
	pos := b.fn.Prog.Fset.Position(instr.Pos())
	if !pos.IsValid() {
		return instr.String()
	}
	return fmt.Sprintf("%s:%d: %s", filepath.Base(pos.Filename), pos.Line, instr.String())
}

func (b *builder) errorf(instr ssa.Instruction, format string, args ...interface{}) error {
	return errors.Errorf("%s: %s", b.label(instr), fmt.Sprintf(format, args...))
}

// block translates the instructions of blk into a chain of edges.
func (b *builder) block(blk *ssa.BasicBlock) error {
	cur := b.starts[blk]
	for _, instr := range blk.Instrs {
		switch instr := instr.(type) {
		case *ssa.DebugRef, *ssa.Phi:
			// Phis are assigned along the incoming edges.

		case *ssa.MakeInterface:
			// Panic values are not tracked.
			for _, ref := range *instr.Referrers() {
				if _, ok := ref.(*ssa.Panic); !ok {
					return b.errorf(instr, "unsupported instruction %T", instr)
				}
			}

		case *ssa.BinOp, *ssa.UnOp, *ssa.Convert, *ssa.ChangeType:
			v := instr.(ssa.Value)
			value, err := b.instrExpr(instr)
			if err != nil {
				return err
			}
			dst, err := b.variable(v)
			if err != nil {
				return b.errorf(instr, "%s", err)
			}
			cur = b.edge(cur, &Edge{Kind: AssignEdge, Var: dst, Value: value, Label: b.label(instr)})

		case *ssa.Call:
			next, err := b.call(cur, instr)
			if err != nil {
				return err
			}
			cur = next

		case *ssa.If:
			cond, err := b.expr(instr.Cond)
			if err != nil {
				return b.errorf(instr, "%s", err)
			}
			label := b.label(instr)
			if err := b.jump(cur, &Edge{Kind: AssumeEdge, Cond: cond, Label: label}, blk, blk.Succs[0]); err != nil {
				return err
			}
			return b.jump(cur, &Edge{Kind: AssumeEdge, Cond: dcpa.Not(cond), Label: label}, blk, blk.Succs[1])

		case *ssa.Jump:
			return b.jump(cur, &Edge{Kind: BlankEdge, Label: b.label(instr)}, blk, blk.Succs[0])

		case *ssa.Return:
			b.cfa.AddEdge(&Edge{From: cur, To: b.cfa.Exit, Kind: BlankEdge, Label: b.label(instr)})
			return nil

		case *ssa.Panic:
			b.cfa.AddEdge(&Edge{From: cur, To: b.errorNode(), Kind: BlankEdge, Label: b.label(instr)})
			return nil

		default:
			return b.errorf(instr, "unsupported instruction %T", instr)
		}
	}
	return fmt.Errorf("block %d of %s has no terminator", blk.Index, b.fn.Name())
}

// edge adds e from cur to a new node and returns the new node.
func (b *builder) edge(cur *dcpa.CFANode, e *Edge) *dcpa.CFANode {
	next := b.cfa.AddNode()
	e.From, e.To = cur, next
	b.cfa.AddEdge(e)
	return next
}

// jump adds e from cur towards succ, followed by the phi assignments of
// succ for the edge from pred. Phis are assigned in parallel through
// temporaries when there is more than one.
func (b *builder) jump(cur *dcpa.CFANode, e *Edge, pred, succ *ssa.BasicBlock) error {
	index := -1
	for i, p := range succ.Preds {
		if p == pred {
			index = i
			break
		}
	}
	if index < 0 {
		return fmt.Errorf("block %d is not a predecessor of block %d", pred.Index, succ.Index)
	}

	var phis []*ssa.Phi
	for _, instr := range succ.Instrs {
		if phi, ok := instr.(*ssa.Phi); ok {
			phis = append(phis, phi)
		}
	}

	var assigns []*Edge
	var copies []*Edge
	for _, phi := range phis {
		dst, err := b.variable(phi)
		if err != nil {
			return b.errorf(phi, "%s", err)
		}
		value, err := b.expr(phi.Edges[index])
		if err != nil {
			return b.errorf(phi, "%s", err)
		}
		label := b.label(phi)
		if len(phis) == 1 {
			assigns = append(assigns, &Edge{Kind: AssignEdge, Var: dst, Value: value, Label: label})
			continue
		}
		tmp := dcpa.NewVarExpr(dst.Name+"$", dst.Width)
		assigns = append(assigns, &Edge{Kind: AssignEdge, Var: tmp, Value: value, Label: label})
		copies = append(copies, &Edge{Kind: AssignEdge, Var: dst, Value: tmp, Label: label})
	}

	chain := append(append([]*Edge{e}, assigns...), copies...)
	for _, e := range chain[:len(chain)-1] {
		cur = b.edge(cur, e)
	}
	last := chain[len(chain)-1]
	last.From, last.To = cur, b.starts[succ]
	b.cfa.AddEdge(last)
	return nil
}

// call translates a call to an intrinsic.
func (b *builder) call(cur *dcpa.CFANode, instr *ssa.Call) (*dcpa.CFANode, error) {
	callee := instr.Call.StaticCallee()
	if callee == nil || callee.Pkg == nil || callee.Pkg.Pkg.Path() != IntrinsicPath {
		return nil, b.errorf(instr, "unsupported call: %s", instr.Call.String())
	}

	switch name := callee.Name(); name {
	case "Assume", "Assert":
		cond, err := b.expr(instr.Call.Args[0])
		if err != nil {
			return nil, b.errorf(instr, "%s", err)
		}
		label := b.label(instr)
		if name == "Assert" {
			b.cfa.AddEdge(&Edge{From: cur, To: b.errorNode(), Kind: AssumeEdge, Cond: dcpa.Not(cond), Label: label})
		}
		return b.edge(cur, &Edge{Kind: AssumeEdge, Cond: cond, Label: label}), nil

	case "Bool", "Byte", "Int", "Int8", "Int16", "Int32", "Int64", "Uint", "Uint8", "Uint16", "Uint32", "Uint64":
		dst, err := b.variable(instr)
		if err != nil {
			return nil, b.errorf(instr, "%s", err)
		}
		return b.edge(cur, &Edge{Kind: HavocEdge, Var: dst, Label: b.label(instr)}), nil

	default:
		return nil, b.errorf(instr, "unsupported intrinsic: %s", name)
	}
}

// width returns the bit width of a boolean or integer type.
func (b *builder) width(typ types.Type) (uint, bool) {
	basic, ok := typ.Underlying().(*types.Basic)
	if !ok {
		return 0, false
	}
	info := basic.Info()
	if info&types.IsBoolean != 0 {
		return dcpa.WidthBool, true
	} else if info&types.IsInteger != 0 {
		return uint(b.sizes.Sizeof(typ)) * 8, true
	}
	return 0, false
}

func isSigned(typ types.Type) bool {
	basic, ok := typ.Underlying().(*types.Basic)
	return ok && basic.Info()&types.IsUnsigned == 0
}

// variable returns the variable holding the value of v.
func (b *builder) variable(v ssa.Value) (*dcpa.VarExpr, error) {
	if x, ok := b.vars[v]; ok {
		return x, nil
	}
	width, ok := b.width(v.Type())
	if !ok {
		return nil, fmt.Errorf("unsupported type %s of %s", v.Type(), v.Name())
	}

	name := v.Name()
	if _, ok := v.(*ssa.Parameter); !ok {
		name = b.fn.Name() + "." + name
	}
	if !dcpa.IsValidVarName(name) {
		return nil, fmt.Errorf("invalid variable name %q", name)
	}
	x := dcpa.NewVarExpr(name, width)
	b.vars[v] = x
	return x, nil
}

// expr returns the expression for an operand.
func (b *builder) expr(v ssa.Value) (dcpa.Expr, error) {
	c, ok := v.(*ssa.Const)
	if !ok {
		return b.variable(v)
	}
	width, ok := b.width(c.Type())
	if !ok {
		return nil, fmt.Errorf("unsupported constant type %s", c.Type())
	}
	switch {
	case c.Value == nil:
		return dcpa.NewConstantExpr(0, width), nil
	case c.Value.Kind() == constant.Bool:
		return dcpa.NewBoolConstantExpr(constant.BoolVal(c.Value)), nil
	case isSigned(c.Type()):
		return dcpa.NewConstantExpr(uint64(c.Int64()), width), nil
	default:
		return dcpa.NewConstantExpr(c.Uint64(), width), nil
	}
}

func (b *builder) instrExpr(instr ssa.Instruction) (dcpa.Expr, error) {
	switch instr := instr.(type) {
	case *ssa.BinOp:
		return b.binOp(instr)
	case *ssa.UnOp:
		return b.unOp(instr)
	case *ssa.Convert:
		return b.convert(instr)
	case *ssa.ChangeType:
		if _, ok := b.width(instr.Type()); !ok {
			return nil, b.errorf(instr, "unsupported type %s", instr.Type())
		}
		return b.expr(instr.X)
	default:
		panic("unreachable")
	}
}

func (b *builder) binOp(instr *ssa.BinOp) (dcpa.Expr, error) {
	x, err := b.expr(instr.X)
	if err != nil {
		return nil, b.errorf(instr, "%s", err)
	}
	y, err := b.expr(instr.Y)
	if err != nil {
		return nil, b.errorf(instr, "%s", err)
	}
	signed := isSigned(instr.X.Type())

	// Shift counts may have any integer type.
	if instr.Op == token.SHL || instr.Op == token.SHR {
		y = resize(y, dcpa.ExprWidth(x), false)
	}

	var op dcpa.BinaryOp
	switch instr.Op {
	case token.ADD:
		op = dcpa.ADD
	case token.SUB:
		op = dcpa.SUB
	case token.MUL:
		op = dcpa.MUL
	case token.QUO:
		op = choose(signed, dcpa.SDIV, dcpa.UDIV)
	case token.REM:
		op = choose(signed, dcpa.SREM, dcpa.UREM)
	case token.AND:
		op = dcpa.AND
	case token.OR:
		op = dcpa.OR
	case token.XOR:
		op = dcpa.XOR
	case token.SHL:
		op = dcpa.SHL
	case token.SHR:
		op = choose(signed, dcpa.ASHR, dcpa.LSHR)
	case token.AND_NOT:
		return dcpa.NewBinaryExpr(dcpa.AND, x, complement(y)), nil
	case token.EQL:
		op = dcpa.EQ
	case token.NEQ:
		op = dcpa.NE
	case token.LSS:
		op = choose(signed, dcpa.SLT, dcpa.ULT)
	case token.LEQ:
		op = choose(signed, dcpa.SLE, dcpa.ULE)
	case token.GTR:
		op = choose(signed, dcpa.SGT, dcpa.UGT)
	case token.GEQ:
		op = choose(signed, dcpa.SGE, dcpa.UGE)
	default:
		return nil, b.errorf(instr, "unsupported operator %s", instr.Op)
	}
	return dcpa.NewBinaryExpr(op, x, y), nil
}

func (b *builder) unOp(instr *ssa.UnOp) (dcpa.Expr, error) {
	x, err := b.expr(instr.X)
	if err != nil {
		return nil, b.errorf(instr, "%s", err)
	}
	switch instr.Op {
	case token.NOT:
		return dcpa.NewNotExpr(x), nil
	case token.SUB:
		return dcpa.NewBinaryExpr(dcpa.SUB, dcpa.NewConstantExpr(0, dcpa.ExprWidth(x)), x), nil
	case token.XOR:
		return complement(x), nil
	default:
		return nil, b.errorf(instr, "unsupported unary operator %s", instr.Op)
	}
}

func (b *builder) convert(instr *ssa.Convert) (dcpa.Expr, error) {
	x, err := b.expr(instr.X)
	if err != nil {
		return nil, b.errorf(instr, "%s", err)
	}
	width, ok := b.width(instr.Type())
	if !ok || dcpa.ExprWidth(x) == dcpa.WidthBool || width == dcpa.WidthBool {
		return nil, b.errorf(instr, "unsupported conversion from %s to %s", instr.X.Type(), instr.Type())
	}
	return resize(x, width, isSigned(instr.X.Type())), nil
}

// resize extends or truncates x to width.
func resize(x dcpa.Expr, width uint, signed bool) dcpa.Expr {
	switch w := dcpa.ExprWidth(x); {
	case w < width:
		return dcpa.NewCastExpr(x, width, signed)
	case w > width:
		return dcpa.NewExtractExpr(x, 0, width)
	default:
		return x
	}
}

func complement(x dcpa.Expr) dcpa.Expr {
	w := dcpa.ExprWidth(x)
	if w == dcpa.WidthBool {
		return dcpa.NewNotExpr(x)
	}
	return dcpa.NewBinaryExpr(dcpa.XOR, x, dcpa.NewConstantExpr(^uint64(0), w))
}

func choose(signed bool, s, u dcpa.BinaryOp) dcpa.BinaryOp {
	if signed {
		return s
	}
	return u
}
