package sat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/dcpa"
	"github.com/go-air/gini"
	"github.com/go-air/gini/z"
	lru "github.com/hashicorp/golang-lru"
)

// Ensure solver implements interface.
var _ dcpa.Solver = (*Solver)(nil)

// DefaultPollInterval is the default interval at which a running search
// checks for cancellation.
const DefaultPollInterval = 5 * time.Millisecond

// Solver is a pure Go bit-vector solver. Formulas are bit-blasted into an
// and-inverter circuit, converted to CNF and decided with gini.
type Solver struct {
	cache *lru.Cache

	mu    sync.Mutex
	stats Stats

	// Interval at which a running search checks its context.
	PollInterval time.Duration
}

// NewSolver returns a new instance of Solver. Results of up to cacheSize
// queries without requested model values are cached; zero disables caching.
func NewSolver(cacheSize int) *Solver {
	s := &Solver{PollInterval: DefaultPollInterval}
	if cacheSize > 0 {
		s.cache, _ = lru.New(cacheSize)
	}
	return s
}

// Stats returns statistics for the solver.
func (s *Solver) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Solve decides the conjunction of constraints. If satisfiable, values holds
// a model value for each of vars; variables not occurring in the
// constraints are reported as zero.
func (s *Solver) Solve(ctx context.Context, constraints []dcpa.Expr, vars []*dcpa.VarExpr) (satisfiable bool, values []*dcpa.ConstantExpr, err error) {
	if err := ctx.Err(); err != nil {
		return false, nil, dcpa.ErrSolverCanceled
	}

	t := time.Now()
	defer func() {
		s.mu.Lock()
		s.stats.SolveN++
		s.stats.SolveTime += time.Since(t)
		s.mu.Unlock()
	}()

	var key string
	if s.cache != nil && len(vars) == 0 {
		key = queryKey(constraints)
		if v, ok := s.cache.Get(key); ok {
			s.mu.Lock()
			s.stats.CacheHitN++
			s.mu.Unlock()
			return v.(bool), nil, nil
		}
	}

	b := newBlaster()
	roots := make([]z.Lit, 0, len(constraints))
	for _, constraint := range constraints {
		if w := dcpa.ExprWidth(constraint); w != dcpa.WidthBool {
			return false, nil, &Error{Op: "assert", Message: fmt.Sprintf("non-boolean constraint (width %d): %s", w, constraint)}
		}
		bits, err := b.blast(constraint)
		if err != nil {
			return false, nil, err
		}
		roots = append(roots, bits[0])
	}

	// Exit immediately if any constraint is trivially false.
	for _, root := range roots {
		if root == b.c.F {
			s.store(key, false)
			return false, nil, nil
		}
	}

	g := gini.New()
	b.c.ToCnf(g)
	g.Add(b.c.T)
	g.Add(0)
	for _, root := range roots {
		if root == b.c.T {
			continue
		}
		g.Add(root)
		g.Add(0)
	}

	ret, err := s.solve(ctx, g)
	if err != nil {
		return false, nil, err
	}
	switch ret {
	case -1:
		s.store(key, false)
		return false, nil, nil
	case 1:
		s.store(key, true)
	default:
		return false, nil, dcpa.ErrSolverUnknown
	}

	if len(vars) == 0 {
		return true, nil, nil // no variables requested, ignore model
	}

	values = make([]*dcpa.ConstantExpr, len(vars))
	for i, v := range vars {
		var value uint64
		for j, bit := range b.vars[v.Key()] {
			if bit.Var() > g.MaxVar() {
				continue // unconstrained
			}
			if g.Value(bit) {
				value |= 1 << uint(j)
			}
		}
		values[i] = dcpa.NewConstantExpr(value, v.Width)
	}
	return true, values, nil
}

// solve runs the search. Without a cancellable context the search runs on
// the calling goroutine; otherwise it runs in the background and is stopped
// once ctx is done.
func (s *Solver) solve(ctx context.Context, g *gini.Gini) (int, error) {
	if ctx.Done() == nil {
		return g.Solve(), nil
	}

	interval := s.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	search := g.GoSolve()
	for {
		if ret, done := search.Test(); done {
			return ret, nil
		}
		select {
		case <-ctx.Done():
			search.Stop()
			s.mu.Lock()
			s.stats.CancelN++
			s.mu.Unlock()
			return 0, dcpa.ErrSolverCanceled
		case <-ticker.C:
		}
	}
}

func (s *Solver) store(key string, sat bool) {
	if key != "" {
		s.cache.Add(key, sat)
	}
}

func queryKey(constraints []dcpa.Expr) string {
	var buf strings.Builder
	for _, c := range constraints {
		buf.WriteString(c.String())
		buf.WriteByte('\n')
	}
	return buf.String()
}

// Stats represents statistics for the solver.
type Stats struct {
	SolveN    int
	SolveTime time.Duration
	CacheHitN int
	CancelN   int
}

// Error represents an error from the solver.
type Error struct {
	Op      string
	Message string
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	return fmt.Sprintf("sat: %s: %s", e.Op, e.Message)
}
