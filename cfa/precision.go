package cfa

import (
	"github.com/benbjohnson/dcpa"
)

// MinePredicates returns an initial precision built from the assume
// conditions of c. Each condition is tracked at both nodes of its edge and,
// without its negation, in the scope of the whole function.
func MinePredicates(c *CFA) *dcpa.Precision {
	p := dcpa.NewPrecision()
	for _, e := range c.Edges() {
		if e.Kind != AssumeEdge || dcpa.IsConstantExpr(e.Cond) {
			continue
		}
		for _, pred := range atoms(e.Cond) {
			p = p.AddLocal(e.From.Number, pred).AddLocal(e.To.Number, pred)
			p = p.AddFunction(c.Function, pred)
		}
	}
	return p
}

// atoms splits a condition into its boolean atoms, dropping negations and
// descending into conjunctions and disjunctions.
func atoms(expr dcpa.Expr) []dcpa.Expr {
	switch expr := expr.(type) {
	case *dcpa.NotExpr:
		return atoms(expr.Expr)
	case *dcpa.BinaryExpr:
		if (expr.Op == dcpa.AND || expr.Op == dcpa.OR) && dcpa.ExprWidth(expr) == dcpa.WidthBool {
			return append(atoms(expr.LHS), atoms(expr.RHS)...)
		}
	case *dcpa.ConstantExpr:
		return nil
	}
	return []dcpa.Expr{dcpa.Uninstantiate(expr)}
}
