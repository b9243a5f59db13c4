package dcpa

// Instantiate replaces every uninstantiated variable in expr by its current
// index in ssa. Variables missing from ssa keep no index: they denote the
// value at the start of the formula's scope.
func Instantiate(expr Expr, ssa SSAMap) Expr {
	return WalkExpr(ExprVisitorFunc(func(e Expr) Expr {
		v, ok := e.(*VarExpr)
		if !ok || v.IsInstantiated() {
			return e
		}
		entry, ok := ssa.Get(v.Name)
		if !ok {
			return e
		}
		assert(entry.Width == v.Width, "instantiate %s: width mismatch with ssa entry: %d", v, entry.Width)
		return NewIndexedVarExpr(v.Name, entry.Index, v.Width)
	}), expr)
}

// Uninstantiate removes the SSA index from every variable in expr.
func Uninstantiate(expr Expr) Expr {
	return WalkExpr(ExprVisitorFunc(func(e Expr) Expr {
		if v, ok := e.(*VarExpr); ok && v.IsInstantiated() {
			return NewVarExpr(v.Name, v.Width)
		}
		return e
	}), expr)
}

// Reindex shifts every variable of expr behind the indices of prefix.
// A variable without index becomes the prefix's current version of it;
// a variable at index i becomes index i+prefix[name].
func Reindex(expr Expr, prefix SSAMap) Expr {
	return WalkExpr(ExprVisitorFunc(func(e Expr) Expr {
		v, ok := e.(*VarExpr)
		if !ok {
			return e
		}
		offset := 0
		if entry, ok := prefix.Get(v.Name); ok {
			offset = entry.Index
		}
		if offset == 0 {
			return e
		}
		if !v.IsInstantiated() {
			return NewIndexedVarExpr(v.Name, offset, v.Width)
		}
		return NewIndexedVarExpr(v.Name, v.Index+offset, v.Width)
	}), expr)
}

// IsCurrent returns true if every variable of expr is either uninstantiated
// and absent from ssa, or instantiated at its current index in ssa.
// Such a formula speaks only about the values at the end of the path.
func IsCurrent(expr Expr, ssa SSAMap) bool {
	for _, v := range FindVars(expr) {
		if v.IsInstantiated() {
			if ssa.Index(v.Name) != v.Index {
				return false
			}
		} else if _, ok := ssa.Get(v.Name); ok {
			return false
		}
	}
	return true
}
