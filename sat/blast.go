package sat

import (
	"fmt"

	"github.com/benbjohnson/dcpa"
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"
)

// blaster translates bit-vector expressions into an and-inverter circuit.
// Bit slices are ordered least significant bit first.
type blaster struct {
	c    *logic.C
	vars map[string][]z.Lit
	memo map[dcpa.Expr][]z.Lit
}

func newBlaster() *blaster {
	return &blaster{
		c:    logic.NewC(),
		vars: make(map[string][]z.Lit),
		memo: make(map[dcpa.Expr][]z.Lit),
	}
}

func (b *blaster) blast(expr dcpa.Expr) ([]z.Lit, error) {
	if bits, ok := b.memo[expr]; ok {
		return bits, nil
	}
	bits, err := b.blastExpr(expr)
	if err != nil {
		return nil, err
	}
	b.memo[expr] = bits
	return bits, nil
}

func (b *blaster) blastExpr(expr dcpa.Expr) ([]z.Lit, error) {
	switch expr := expr.(type) {
	case *dcpa.ConstantExpr:
		return b.constant(expr.Value, expr.Width), nil

	case *dcpa.VarExpr:
		return b.variable(expr)

	case *dcpa.NotExpr:
		x, err := b.blast(expr.Expr)
		if err != nil {
			return nil, err
		}
		return b.not(x), nil

	case *dcpa.CastExpr:
		src, err := b.blast(expr.Src)
		if err != nil {
			return nil, err
		}
		fill := b.c.F
		if expr.Signed {
			fill = src[len(src)-1]
		}
		bits := make([]z.Lit, expr.Width)
		copy(bits, src)
		for i := len(src); i < len(bits); i++ {
			bits[i] = fill
		}
		return bits, nil

	case *dcpa.ExtractExpr:
		x, err := b.blast(expr.Expr)
		if err != nil {
			return nil, err
		}
		return x[expr.Offset : expr.Offset+expr.Width], nil

	case *dcpa.BinaryExpr:
		lhs, err := b.blast(expr.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := b.blast(expr.RHS)
		if err != nil {
			return nil, err
		}
		if len(lhs) != len(rhs) {
			return nil, &Error{Op: "blast", Message: fmt.Sprintf("%s: width mismatch: %d != %d", expr.Op, len(lhs), len(rhs))}
		}
		return b.binary(expr.Op, lhs, rhs)

	default:
		return nil, fmt.Errorf("sat: %w: %T", dcpa.ErrUnsupportedExpr, expr)
	}
}

func (b *blaster) binary(op dcpa.BinaryOp, x, y []z.Lit) ([]z.Lit, error) {
	switch op {
	case dcpa.ADD:
		sum, _ := b.add(x, y, b.c.F)
		return sum, nil
	case dcpa.SUB:
		return b.sub(x, y), nil
	case dcpa.MUL:
		return b.mul(x, y), nil
	case dcpa.UDIV:
		q, _ := b.udivrem(x, y)
		return q, nil
	case dcpa.UREM:
		_, r := b.udivrem(x, y)
		return r, nil
	case dcpa.SDIV:
		q, _ := b.sdivrem(x, y)
		return q, nil
	case dcpa.SREM:
		_, r := b.sdivrem(x, y)
		return r, nil
	case dcpa.AND:
		return b.bitwise(x, y, b.c.And), nil
	case dcpa.OR:
		return b.bitwise(x, y, b.c.Or), nil
	case dcpa.XOR:
		return b.bitwise(x, y, b.c.Xor), nil
	case dcpa.SHL:
		return b.shift(x, y, shiftLeft), nil
	case dcpa.LSHR:
		return b.shift(x, y, shiftLogicalRight), nil
	case dcpa.ASHR:
		return b.shift(x, y, shiftArithmeticRight), nil
	case dcpa.EQ:
		return []z.Lit{b.eq(x, y)}, nil
	case dcpa.NE:
		return []z.Lit{b.eq(x, y).Not()}, nil
	case dcpa.ULT:
		return []z.Lit{b.ult(x, y)}, nil
	case dcpa.ULE:
		return []z.Lit{b.ult(y, x).Not()}, nil
	case dcpa.UGT:
		return []z.Lit{b.ult(y, x)}, nil
	case dcpa.UGE:
		return []z.Lit{b.ult(x, y).Not()}, nil
	case dcpa.SLT:
		return []z.Lit{b.slt(x, y)}, nil
	case dcpa.SLE:
		return []z.Lit{b.slt(y, x).Not()}, nil
	case dcpa.SGT:
		return []z.Lit{b.slt(y, x)}, nil
	case dcpa.SGE:
		return []z.Lit{b.slt(x, y).Not()}, nil
	default:
		return nil, fmt.Errorf("sat: %w: binary op %s", dcpa.ErrUnsupportedExpr, op)
	}
}

func (b *blaster) constant(value uint64, width uint) []z.Lit {
	bits := make([]z.Lit, width)
	for i := range bits {
		if value&(1<<uint(i)) != 0 {
			bits[i] = b.c.T
		} else {
			bits[i] = b.c.F
		}
	}
	return bits
}

func (b *blaster) variable(v *dcpa.VarExpr) ([]z.Lit, error) {
	key := v.Key()
	if bits, ok := b.vars[key]; ok {
		if uint(len(bits)) != v.Width {
			return nil, &Error{Op: "blast", Message: fmt.Sprintf("variable %s used with widths %d and %d", key, len(bits), v.Width)}
		}
		return bits, nil
	}
	bits := make([]z.Lit, v.Width)
	for i := range bits {
		bits[i] = b.c.Lit()
	}
	b.vars[key] = bits
	return bits, nil
}

func (b *blaster) not(x []z.Lit) []z.Lit {
	bits := make([]z.Lit, len(x))
	for i := range x {
		bits[i] = x[i].Not()
	}
	return bits
}

func (b *blaster) bitwise(x, y []z.Lit, fn func(a, b z.Lit) z.Lit) []z.Lit {
	bits := make([]z.Lit, len(x))
	for i := range x {
		bits[i] = fn(x[i], y[i])
	}
	return bits
}

// mux returns t if sel is true and e otherwise.
func (b *blaster) mux(sel z.Lit, t, e []z.Lit) []z.Lit {
	bits := make([]z.Lit, len(t))
	for i := range t {
		bits[i] = b.c.Choice(sel, t[i], e[i])
	}
	return bits
}

// add returns the ripple-carry sum of x, y and carry, and the carry out.
func (b *blaster) add(x, y []z.Lit, carry z.Lit) ([]z.Lit, z.Lit) {
	bits := make([]z.Lit, len(x))
	for i := range x {
		t := b.c.Xor(x[i], y[i])
		bits[i] = b.c.Xor(t, carry)
		carry = b.c.Or(b.c.And(x[i], y[i]), b.c.And(carry, t))
	}
	return bits, carry
}

// sub returns x - y as x + ^y + 1.
func (b *blaster) sub(x, y []z.Lit) []z.Lit {
	diff, _ := b.add(x, b.not(y), b.c.T)
	return diff
}

func (b *blaster) neg(x []z.Lit) []z.Lit {
	return b.sub(b.constant(0, uint(len(x))), x)
}

// mul returns the low bits of x*y by shift-and-add.
func (b *blaster) mul(x, y []z.Lit) []z.Lit {
	w := len(x)
	acc := b.constant(0, uint(w))
	for i := 0; i < w; i++ {
		partial := make([]z.Lit, w)
		for j := range partial {
			if j < i {
				partial[j] = b.c.F
			} else {
				partial[j] = b.c.And(x[j-i], y[i])
			}
		}
		acc, _ = b.add(acc, partial, b.c.F)
	}
	return acc
}

// udivrem returns the quotient and remainder of unsigned restoring division.
// Division by zero yields an all-ones quotient and x as remainder.
func (b *blaster) udivrem(x, y []z.Lit) (q, r []z.Lit) {
	w := len(x)
	divisor := append(append([]z.Lit{}, y...), b.c.F)
	rem := b.constant(0, uint(w+1))
	q = make([]z.Lit, w)
	for i := w - 1; i >= 0; i-- {
		shifted := make([]z.Lit, w+1)
		shifted[0] = x[i]
		copy(shifted[1:], rem[:w])
		ge := b.ult(shifted, divisor).Not()
		q[i] = ge
		rem = b.mux(ge, b.sub(shifted, divisor), shifted)
	}
	return q, rem[:w]
}

// sdivrem returns the quotient, truncated toward zero, and the remainder
// with the sign of the dividend.
func (b *blaster) sdivrem(x, y []z.Lit) (q, r []z.Lit) {
	w := len(x)
	sx, sy := x[w-1], y[w-1]
	ax := b.mux(sx, b.neg(x), x)
	ay := b.mux(sy, b.neg(y), y)
	uq, ur := b.udivrem(ax, ay)
	q = b.mux(b.c.Xor(sx, sy), b.neg(uq), uq)
	r = b.mux(sx, b.neg(ur), ur)
	return q, r
}

func (b *blaster) eq(x, y []z.Lit) z.Lit {
	bits := make([]z.Lit, len(x))
	for i := range x {
		bits[i] = b.c.Xor(x[i], y[i]).Not()
	}
	return b.c.Ands(bits...)
}

// ult returns true if x < y as unsigned integers: x - y borrows.
func (b *blaster) ult(x, y []z.Lit) z.Lit {
	_, carry := b.add(x, b.not(y), b.c.T)
	return carry.Not()
}

// slt compares as signed integers by flipping the sign bits.
func (b *blaster) slt(x, y []z.Lit) z.Lit {
	w := len(x)
	fx := append(append([]z.Lit{}, x[:w-1]...), x[w-1].Not())
	fy := append(append([]z.Lit{}, y[:w-1]...), y[w-1].Not())
	return b.ult(fx, fy)
}

type shiftKind int

const (
	shiftLeft shiftKind = iota
	shiftLogicalRight
	shiftArithmeticRight
)

// shift builds a barrel shifter. Shift amounts of at least the width fill
// the result with zeros, or with the sign bit for arithmetic shifts.
func (b *blaster) shift(x, amount []z.Lit, kind shiftKind) []z.Lit {
	w := len(x)
	fill := b.c.F
	if kind == shiftArithmeticRight {
		fill = x[w-1]
	}

	cur := x
	for k := 0; (1<<uint(k)) < w && k < len(amount); k++ {
		n := 1 << uint(k)
		shifted := make([]z.Lit, w)
		for i := range shifted {
			switch kind {
			case shiftLeft:
				if i >= n {
					shifted[i] = cur[i-n]
				} else {
					shifted[i] = b.c.F
				}
			default:
				if i+n < w {
					shifted[i] = cur[i+n]
				} else {
					shifted[i] = fill
				}
			}
		}
		cur = b.mux(amount[k], shifted, cur)
	}

	filled := make([]z.Lit, w)
	for i := range filled {
		filled[i] = fill
	}
	overflow := b.ult(amount, b.constant(uint64(w), uint(len(amount)))).Not()
	return b.mux(overflow, filled, cur)
}
