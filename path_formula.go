package dcpa

import (
	"fmt"
)

// PathFormula is the strongest postcondition of a path segment in SSA form.
// Formula is instantiated against SSA. Length is the number of edges the
// formula was built from.
type PathFormula struct {
	Formula Expr
	SSA     SSAMap
	PTS     PointerTargetSet
	Length  int
}

// String returns a human readable form of the path formula.
func (pf PathFormula) String() string {
	return fmt.Sprintf("%s [ssa=%q pts=%q len=%d]", pf.Formula, pf.SSA, pf.PTS, pf.Length)
}

// PathFormulaManager builds path formulas.
type PathFormulaManager struct {
	PTS PointerTargetSetManager
}

// NewPathFormulaManager returns a new instance of PathFormulaManager.
func NewPathFormulaManager(pts PointerTargetSetManager) *PathFormulaManager {
	if pts == nil {
		pts = NewTrackedBasesManager()
	}
	return &PathFormulaManager{PTS: pts}
}

// MakeEmpty returns the path formula of the empty path.
func (m *PathFormulaManager) MakeEmpty() PathFormula {
	return PathFormula{Formula: True(), SSA: NewSSAMap(), PTS: m.PTS.Empty()}
}

// MakeEmptyWithContext returns an empty path formula that continues from the
// given SSA table and pointer target set.
func (m *PathFormulaManager) MakeEmptyWithContext(ssa SSAMap, pts PointerTargetSet) PathFormula {
	if pts == nil {
		pts = m.PTS.Empty()
	}
	return PathFormula{Formula: True(), SSA: ssa, PTS: pts}
}

// MakeAnd conjoins an already instantiated formula.
func (m *PathFormulaManager) MakeAnd(pf PathFormula, instantiated Expr) PathFormula {
	pf.Formula = And(pf.Formula, instantiated)
	pf.Length++
	return pf
}

// MakeAssume extends pf with an assume edge on cond.
func (m *PathFormulaManager) MakeAssume(pf PathFormula, cond Expr) PathFormula {
	return m.MakeAnd(pf, Instantiate(cond, pf.SSA))
}

// MakeAssign extends pf with the assignment v := rhs.
func (m *PathFormulaManager) MakeAssign(pf PathFormula, v *VarExpr, rhs Expr) PathFormula {
	assert(v.Width == ExprWidth(rhs), "assign %s: width mismatch: %d != %d", v, v.Width, ExprWidth(rhs))

	value := Instantiate(rhs, pf.SSA)
	b := NewSSAMapBuilder(pf.SSA)
	index := b.Fresh(v.Name, v.Width)

	pf = m.MakeAnd(pf, NewBinaryExpr(EQ, NewIndexedVarExpr(v.Name, index, v.Width), value))
	pf.SSA = b.Build()
	return pf
}

// MakeHavoc extends pf with an edge that gives v an arbitrary new value.
func (m *PathFormulaManager) MakeHavoc(pf PathFormula, v *VarExpr) PathFormula {
	b := NewSSAMapBuilder(pf.SSA)
	b.Fresh(v.Name, v.Width)
	pf.SSA = b.Build()
	pf.Length++
	return pf
}

// MakeAlloc extends pf with the allocation of a new heap base.
func (m *PathFormulaManager) MakeAlloc(pf PathFormula, base string) PathFormula {
	pf.PTS = m.PTS.Alloc(pf.PTS, base)
	pf.Length++
	return pf
}

// MakeBlank extends pf with an edge that has no effect on the formula.
func (m *PathFormulaManager) MakeBlank(pf PathFormula) PathFormula {
	pf.Length++
	return pf
}

// MakeOr returns the disjunction of two path formulas. The SSA tables are
// merged by maximum and each side is extended with equalities lifting its
// variables to the merged indices.
func (m *PathFormulaManager) MakeOr(a, b PathFormula) PathFormula {
	ssa := MergeSSAMaps(a.SSA, b.SSA)

	fa := And(a.Formula, alignSSA(a.SSA, ssa))
	fb := And(b.Formula, alignSSA(b.SSA, ssa))

	length := a.Length
	if b.Length > length {
		length = b.Length
	}

	return PathFormula{
		Formula: Or(fa, fb),
		SSA:     ssa,
		PTS:     m.PTS.Merge(a.PTS, b.PTS, ssa),
		Length:  length,
	}
}

// alignSSA returns the equalities that lift variables below their index in
// target up to it. A variable missing from ssa is equated with its
// uninstantiated initial value.
func alignSSA(ssa, target SSAMap) Expr {
	var eqs []Expr
	target.Each(func(name string, e SSAEntry) {
		current, ok := ssa.Get(name)
		if ok && current.Index >= e.Index {
			return
		}
		var lower Expr = NewVarExpr(name, e.Width)
		if ok {
			lower = NewIndexedVarExpr(name, current.Index, e.Width)
		}
		eqs = append(eqs, NewBinaryExpr(EQ, NewIndexedVarExpr(name, e.Index, e.Width), lower))
	})
	return And(eqs...)
}

// Concat appends suffix, which must have been built from an empty SSA table,
// to prefix. The suffix is reindexed so its initial values are the prefix's
// final values.
func (m *PathFormulaManager) Concat(prefix, suffix PathFormula) PathFormula {
	b := NewSSAMapBuilder(prefix.SSA)
	suffix.SSA.Each(func(name string, e SSAEntry) {
		index := e.Index
		if p, ok := prefix.SSA.Get(name); ok {
			if p.Width != e.Width {
				Violate("concat", "", "width conflict for %s: %d != %d", name, p.Width, e.Width)
			}
			index += p.Index
		}
		b.Set(name, index, e.Width)
	})
	ssa := b.Build()

	return PathFormula{
		Formula: And(prefix.Formula, Reindex(suffix.Formula, prefix.SSA)),
		SSA:     ssa,
		PTS:     m.PTS.Merge(prefix.PTS, suffix.PTS, ssa),
		Length:  prefix.Length + suffix.Length,
	}
}
