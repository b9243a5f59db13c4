package dcpa

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// AbstractionMode selects how predicate abstractions are computed.
type AbstractionMode int

const (
	// BooleanAbstraction computes the strongest boolean combination of the
	// predicates implied by a path formula.
	BooleanAbstraction AbstractionMode = iota

	// CartesianAbstraction computes the strongest conjunction of predicates
	// and negated predicates implied by a path formula.
	CartesianAbstraction
)

func (m AbstractionMode) String() string {
	switch m {
	case BooleanAbstraction:
		return "boolean"
	case CartesianAbstraction:
		return "cartesian"
	default:
		return fmt.Sprintf("AbstractionMode<%d>", int(m))
	}
}

// ParseAbstractionMode returns the mode with the given name.
func ParseAbstractionMode(s string) (AbstractionMode, error) {
	switch strings.ToLower(s) {
	case "", "boolean":
		return BooleanAbstraction, nil
	case "cartesian":
		return CartesianAbstraction, nil
	default:
		return 0, fmt.Errorf("unknown abstraction mode: %q", s)
	}
}

// DefaultBooleanLimit is the number of predicates above which boolean
// abstraction falls back to cartesian abstraction.
const DefaultBooleanLimit = 8

var lastAbstractionID int64

func nextAbstractionID() int {
	return int(atomic.AddInt64(&lastAbstractionID, 1))
}

// AbstractionManager computes and stores predicate abstractions.
// It is not safe for concurrent use.
type AbstractionManager struct {
	solver Solver
	cache  *lru.Cache
	stats  AbstractionStats

	Mode         AbstractionMode
	BooleanLimit int
}

// AbstractionStats holds abstraction statistics.
type AbstractionStats struct {
	AbstractionN int
	CacheHitN    int
	SolveN       int
	Time         time.Duration
}

type storedAbstraction struct {
	id             int
	uninstantiated Expr
}

// NewAbstractionManager returns a manager using solver. Up to cacheSize
// computed abstractions are kept for reuse; zero disables reuse.
func NewAbstractionManager(solver Solver, cacheSize int) *AbstractionManager {
	m := &AbstractionManager{
		solver:       solver,
		Mode:         BooleanAbstraction,
		BooleanLimit: DefaultBooleanLimit,
	}
	if cacheSize > 0 {
		cache, err := lru.New(cacheSize)
		assert(err == nil, "abstraction cache: %v", err)
		m.cache = cache
	}
	return m
}

// Stats returns statistics for the manager.
func (m *AbstractionManager) Stats() AbstractionStats {
	return m.stats
}

// MakeTrueAbstraction returns the abstraction "true" computed from pf.
func (m *AbstractionManager) MakeTrueAbstraction(pf PathFormula) *AbstractionFormula {
	return m.MakeAbstraction(True(), pf)
}

// MakeAbstraction wraps an uninstantiated formula as a fresh abstraction
// whose instantiated form uses the SSA indices of blockFormula.
func (m *AbstractionManager) MakeAbstraction(uninstantiated Expr, blockFormula PathFormula) *AbstractionFormula {
	return &AbstractionFormula{
		ID:             nextAbstractionID(),
		Region:         Region{Formula: uninstantiated},
		Instantiated:   Instantiate(uninstantiated, blockFormula.SSA),
		Uninstantiated: uninstantiated,
		BlockFormula:   blockFormula,
	}
}

// Abstract computes the predicate abstraction of pf over predicates, which
// must be uninstantiated boolean formulas.
func (m *AbstractionManager) Abstract(ctx context.Context, pf PathFormula, predicates []Expr) (*AbstractionFormula, error) {
	t := time.Now()
	defer func() {
		m.stats.AbstractionN++
		m.stats.Time += time.Since(t)
	}()

	preds := make([]Expr, 0, len(predicates))
	for _, p := range predicates {
		if !IsConstantExpr(p) {
			preds = append(preds, Uninstantiate(p))
		}
	}
	preds = SortExprs(preds)

	mode := m.Mode
	if len(preds) > m.BooleanLimit {
		mode = CartesianAbstraction
	}

	key := abstractionKey(mode, pf, preds)
	if m.cache != nil {
		if v, ok := m.cache.Get(key); ok {
			stored := v.(*storedAbstraction)
			m.stats.CacheHitN++
			abs := m.MakeAbstraction(stored.uninstantiated, pf)
			abs.ReusedIDs = NewIDSet(stored.id)
			return abs, nil
		}
	}

	instantiated := make([]Expr, len(preds))
	for i, p := range preds {
		instantiated[i] = Instantiate(p, pf.SSA)
	}

	var result Expr
	if sat, err := m.isSatisfiable(ctx, pf.Formula); err != nil {
		return nil, err
	} else if !sat {
		result = False()
	} else if mode == CartesianAbstraction {
		if result, err = m.cartesian(ctx, pf.Formula, instantiated); err != nil {
			return nil, err
		}
	} else {
		if result, err = m.boolean(ctx, pf.Formula, instantiated, nil); err != nil {
			return nil, err
		}
	}

	abs := m.MakeAbstraction(Uninstantiate(result), pf)
	abs.Instantiated = result
	if m.cache != nil {
		m.cache.Add(key, &storedAbstraction{id: abs.ID, uninstantiated: abs.Uninstantiated})
	}
	return abs, nil
}

func (m *AbstractionManager) isSatisfiable(ctx context.Context, exprs ...Expr) (bool, error) {
	m.stats.SolveN++
	return IsSatisfiable(ctx, m.solver, exprs...)
}

// cartesian returns the conjunction of each predicate or its negation
// that is implied by f.
func (m *AbstractionManager) cartesian(ctx context.Context, f Expr, preds []Expr) (Expr, error) {
	var conj []Expr
	for _, p := range preds {
		if sat, err := m.isSatisfiable(ctx, f, Not(p)); err != nil {
			return nil, err
		} else if !sat {
			conj = append(conj, p)
			continue
		}

		if sat, err := m.isSatisfiable(ctx, f, p); err != nil {
			return nil, err
		} else if !sat {
			conj = append(conj, Not(p))
		}
	}
	return And(conj...), nil
}

// boolean splits on each predicate in turn and returns the disjunction of
// all feasible predicate valuations (cubes).
func (m *AbstractionManager) boolean(ctx context.Context, f Expr, preds []Expr, cube []Expr) (Expr, error) {
	if sat, err := m.isSatisfiable(ctx, append([]Expr{f}, cube...)...); err != nil {
		return nil, err
	} else if !sat {
		return False(), nil
	}
	if len(preds) == 0 {
		return And(cube...), nil
	}

	pos, err := m.boolean(ctx, f, preds[1:], append(cube[:len(cube):len(cube)], preds[0]))
	if err != nil {
		return nil, err
	}
	neg, err := m.boolean(ctx, f, preds[1:], append(cube[:len(cube):len(cube)], Not(preds[0])))
	if err != nil {
		return nil, err
	}
	return Or(pos, neg), nil
}

func abstractionKey(mode AbstractionMode, pf PathFormula, preds []Expr) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s|%s|%s|", mode, pf.Formula, pf.SSA)
	for _, p := range preds {
		buf.WriteString(p.String())
		buf.WriteByte(';')
	}
	return buf.String()
}
