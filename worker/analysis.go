package worker

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/dcpa"
	"github.com/benbjohnson/dcpa/cfa"
	"github.com/benbjohnson/dcpa/distributed"
	"github.com/benbjohnson/dcpa/sat"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Default analysis limits.
const (
	DefaultMaxErrorHops = 64
	DefaultMaxWidenings = 8
)

// InitSender is the sender name of the message that starts the analysis
// at the program entry.
const InitSender = "init"

// Verdict is the outcome of an analysis.
type Verdict int

const (
	Unknown Verdict = iota
	Safe
	Unsafe
)

func (v Verdict) String() string {
	switch v {
	case Unknown:
		return "unknown"
	case Safe:
		return "safe"
	case Unsafe:
		return "unsafe"
	default:
		return fmt.Sprintf("Verdict<%d>", int(v))
	}
}

// Result is the outcome of Analysis.Run.
type Result struct {
	Verdict Verdict

	// Block ids from the program entry to the error location and the
	// initial values reaching it. Only set if the verdict is Unsafe.
	Trace  []string
	Inputs map[string]*dcpa.ConstantExpr

	Stats Stats
}

// Stats holds statistics for a single analysis run.
type Stats struct {
	Operators distributed.Stats

	BlockN int
	PostN  int
	ErrorN int

	AbstractionN         int
	AbstractionCacheHitN int
	ForcedAbstractionN   int

	// Error conditions refuted by an entry abstraction or at the program
	// entry, and those dropped at the hop limit.
	StoppedErrorN int
	DroppedErrorN int

	Time time.Duration
}

// Analysis verifies that no error location of a block graph is reachable.
// Every block is analyzed by its own worker goroutine; workers communicate
// only through messages on a bus.
type Analysis struct {
	Graph     *cfa.BlockGraph
	Precision *dcpa.Precision

	// Error conditions traveling more blocks are dropped and the verdict
	// becomes Unknown.
	MaxErrorHops int

	// Widenings of a block entry after which the entry is abstracted
	// with the entry precision on every further widening.
	MaxWidenings int

	AbstractionMode      dcpa.AbstractionMode
	BooleanLimit         int
	AbstractionCacheSize int

	// Returns the solver of a single worker.
	NewSolver func() dcpa.Solver

	Logger *logrus.Entry
}

// NewAnalysis returns an analysis of g with the initial precision.
func NewAnalysis(g *cfa.BlockGraph, precision *dcpa.Precision) *Analysis {
	if precision == nil {
		precision = dcpa.NewPrecision()
	}
	return &Analysis{
		Graph:        g,
		Precision:    precision,
		MaxErrorHops: DefaultMaxErrorHops,
		MaxWidenings: DefaultMaxWidenings,
		BooleanLimit: dcpa.DefaultBooleanLimit,
		NewSolver:    func() dcpa.Solver { return sat.NewSolver(1024) },
		Logger:       logrus.NewEntry(logrus.StandardLogger()),
	}
}

// Run analyzes the block graph until a violation is found or no message
// is left in flight.
func (a *Analysis) Run(ctx context.Context) (*Result, error) {
	t := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ids := make([]string, len(a.Graph.Blocks))
	for i, b := range a.Graph.Blocks {
		ids[i] = b.ID
	}
	bus := NewBus(ids...)

	found := make(chan *violation, 1)
	report := func(v *violation) {
		select {
		case found <- v:
		default:
		}
	}

	stats := &distributed.Stats{}
	workers := make([]*Worker, len(a.Graph.Blocks))
	for i, b := range a.Graph.Blocks {
		workers[i] = a.newWorker(b, bus, stats, report)
	}

	root := a.Graph.Root
	a.Logger.Infof("analyze %s: %d blocks, %d predicates", a.Graph.CFA.Function, len(a.Graph.Blocks), a.Precision.Size())
	start := distributed.NewMessage(distributed.PostCondition, InitSender, root.Entry.Number, distributed.Payload{
		distributed.FormulaKey: dcpa.True().String(),
		distributed.SSAKey:     dcpa.NewSSAMap().String(),
		distributed.PTSKey:     "",
	})
	if err := bus.Send(root.ID, start); err != nil {
		return nil, err
	}

	errc := make(chan error, len(workers))
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				errc <- errors.Wrapf(err, "worker %s", w.Block.ID)
			}
		}(w)
	}

	var v *violation
	var err error
	select {
	case <-bus.Idle():
		select {
		case v = <-found:
		default:
		}
	case v = <-found:
	case err = <-errc:
	case <-ctx.Done():
		err = ctx.Err()
	}
	cancel()
	wg.Wait()

	// Release native solver state.
	for _, w := range workers {
		if c, ok := w.ops.Solver.(io.Closer); ok {
			if e := c.Close(); e != nil {
				a.Logger.WithError(e).WithField("block", w.Block.ID).Warn("close solver")
			}
		}
	}

	if err != nil {
		return nil, err
	}

	result := &Result{Verdict: Safe}
	result.Stats.Operators = stats.Snapshot()
	result.Stats.BlockN = len(workers)
	result.Stats.PostN = bus.SentN(distributed.PostCondition)
	result.Stats.ErrorN = bus.SentN(distributed.ErrorCondition)
	for _, w := range workers {
		abs := w.ops.Abstractions.Stats()
		result.Stats.AbstractionN += abs.AbstractionN
		result.Stats.AbstractionCacheHitN += abs.CacheHitN
		result.Stats.ForcedAbstractionN += w.stats.ForcedAbstractionN
		result.Stats.StoppedErrorN += w.stats.StoppedErrorN
		result.Stats.DroppedErrorN += w.stats.DroppedErrorN
	}
	result.Stats.Time = time.Since(t)

	if v != nil {
		result.Verdict = Unsafe
		result.Trace, result.Inputs = v.trace, v.inputs
	} else if result.Stats.DroppedErrorN > 0 {
		result.Verdict = Unknown
	}
	a.Logger.Infof("analyze %s: %s (%s)", a.Graph.CFA.Function, result.Verdict, result.Stats.Time)
	return result, nil
}

func (a *Analysis) newWorker(b *cfa.Block, bus *Bus, stats *distributed.Stats, report func(*violation)) *Worker {
	solver := a.NewSolver()
	ops := distributed.NewPredicateOperators(b.ID, solver, a.Graph.CFA, nil)
	ops.Abstractions = dcpa.NewAbstractionManager(solver, a.AbstractionCacheSize)
	ops.Abstractions.Mode = a.AbstractionMode
	ops.Abstractions.BooleanLimit = a.BooleanLimit
	ops.Logger = a.Logger.WithField("block", b.ID)
	ops.Stats = stats

	// Every block starts from the trivial abstraction.
	ops.Initial = func(node *dcpa.CFANode) dcpa.PredicateAbstractState {
		pf := ops.PathFormulas.MakeEmpty()
		return dcpa.NewAbstractionState(pf, ops.Abstractions.MakeTrueAbstraction(pf), dcpa.LocationCounts{})
	}

	return &Worker{
		Block:        b,
		Graph:        a.Graph,
		ops:          ops,
		bus:          bus,
		precision:    a.Precision,
		logger:       ops.Logger,
		report:       report,
		maxErrorHops: a.MaxErrorHops,
		maxWidenings: a.MaxWidenings,
		posts:        make(map[string]*dcpa.AbstractionState),
	}
}
