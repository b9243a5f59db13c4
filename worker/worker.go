package worker

import (
	"context"
	"fmt"

	"github.com/benbjohnson/dcpa"
	"github.com/benbjohnson/dcpa/cfa"
	"github.com/benbjohnson/dcpa/distributed"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Worker analyzes a single block. It keeps the latest post-condition of
// every predecessor, joins them into its entry abstraction and forwards
// post-conditions to its successors whenever the entry grows. Error
// conditions travel the other way until they are refuted by an entry
// abstraction or reach the program entry.
//
// A worker is driven by a single goroutine.
type Worker struct {
	Block *cfa.Block
	Graph *cfa.BlockGraph

	ops       *distributed.PredicateOperators
	bus       *Bus
	precision *dcpa.Precision
	logger    *logrus.Entry
	report    func(*violation)

	maxErrorHops int
	maxWidenings int

	posts   map[string]*dcpa.AbstractionState
	entry   *dcpa.AbstractionState
	widenN  int
	queued  bool
	pending []*errorCondition

	stats workerStats
}

type workerStats struct {
	ForcedAbstractionN int
	StoppedErrorN      int
	DroppedErrorN      int
}

// errorCondition is a path formula from the block entry to an error
// location, built from an empty SSA table.
type errorCondition struct {
	pf    dcpa.PathFormula
	trace []string // block ids, most recent first
	hops  int
}

// violation is a feasible error condition at the program entry.
type violation struct {
	trace   []string
	inputs  map[string]*dcpa.ConstantExpr
	formula dcpa.Expr
}

// Run handles messages until ctx is canceled or a message fails.
// A contract violation raised by an operator is returned as the error, any
// other panic is returned as an error naming the block and message.
func (w *Worker) Run(ctx context.Context) (err error) {
	var msg *distributed.Message
	defer func() {
		if r := recover(); r != nil {
			if v, ok := r.(*dcpa.ContractViolation); ok {
				err = v
				return
			}
			err = errors.Errorf("block %s: message %s: panic: %v", w.Block.ID, msg, r)
		}
	}()

	for {
		if msg, err = w.bus.Receive(ctx, w.Block.ID); err != nil {
			return err
		} else if err := w.Handle(ctx, msg); err != nil {
			return err
		}
		w.bus.Done()
	}
}

// Handle processes a single message.
func (w *Worker) Handle(ctx context.Context, msg *distributed.Message) error {
	w.logger.WithFields(logrus.Fields{"message": msg.ID, "sender": msg.Sender}).Debugf("receive %s", msg.Type)

	if msg.Precision != nil {
		p, err := w.ops.DeserializePrecision(msg.Precision)
		if err != nil {
			return errors.Wrapf(err, "message %s", msg)
		}
		w.precision = w.ops.CombinePrecision([]*dcpa.Precision{w.precision, p})
	}

	switch msg.Type {
	case distributed.PostCondition:
		return w.handlePost(ctx, msg)
	case distributed.ErrorCondition:
		return w.handleError(ctx, msg)
	default:
		return errors.Errorf("block %s: unexpected message type %q", w.Block.ID, msg.Type)
	}
}

func (w *Worker) handlePost(ctx context.Context, msg *distributed.Message) error {
	state, err := w.ops.Deserialize(msg)
	if err != nil {
		return err
	}
	post, err := w.toAbstraction(ctx, state.(*dcpa.NonAbstractionState))
	if err != nil {
		return errors.Wrapf(err, "block %s: message %s", w.Block.ID, msg)
	}
	w.posts[msg.Sender] = post

	senders := maps.Keys(w.posts)
	slices.Sort(senders)
	states := make([]dcpa.PredicateAbstractState, len(senders))
	for i, sender := range senders {
		states[i] = w.posts[sender]
	}
	combined := w.ops.Combine(states).(*dcpa.NonAbstractionState)

	empty := w.ops.PathFormulas.MakeEmpty()
	abs := w.ops.Abstractions.MakeAbstraction(dcpa.Uninstantiate(combined.PathFormula.Formula), empty)
	candidate := dcpa.NewAbstractionState(empty, abs, combined.Locations)

	if changed, err := w.join(ctx, candidate); err != nil {
		return err
	} else if !changed {
		w.logger.Debug("entry unchanged")
		return nil
	}
	w.logger.Debugf("entry: %s", w.entry.Abstraction.Uninstantiated)

	if err := w.sendPosts(ctx); err != nil {
		return err
	}
	return w.checkErrors(ctx)
}

// toAbstraction converts a received summary to an abstraction over the
// variables' values at this block's entry. A summary that only speaks
// about final values is taken as is; any other is abstracted with the
// entry precision.
func (w *Worker) toAbstraction(ctx context.Context, state *dcpa.NonAbstractionState) (*dcpa.AbstractionState, error) {
	pf := state.PathFormula

	var abs *dcpa.AbstractionFormula
	if dcpa.IsCurrent(pf.Formula, pf.SSA) {
		abs = w.ops.Abstractions.MakeAbstraction(dcpa.Uninstantiate(pf.Formula), pf)
	} else {
		preds := w.precision.Lookup(w.Block.Entry, state.Locations.Get(w.Block.Entry.Number))
		var err error
		if abs, err = w.ops.Abstractions.Abstract(ctx, pf, preds); err != nil {
			return nil, err
		}
	}
	return dcpa.NewAbstractionState(w.ops.PathFormulas.MakeEmptyWithContext(pf.SSA, pf.PTS), abs, state.Locations), nil
}

// join merges candidate into the entry abstraction. It returns false if
// the entry already covers candidate.
func (w *Worker) join(ctx context.Context, candidate *dcpa.AbstractionState) (bool, error) {
	if w.entry == nil {
		w.entry = candidate
		return true, nil
	}

	if covered, err := w.ops.Covers(ctx, w.entry, candidate); err != nil {
		return false, errors.Wrapf(err, "block %s: coverage", w.Block.ID)
	} else if covered {
		return false, nil
	}

	entry := w.ops.Widen(w.entry, candidate)
	if w.widenN++; w.widenN > w.maxWidenings {
		pf := w.ops.PathFormulas.MakeEmpty()
		pf.Formula = entry.Abstraction.Uninstantiated
		abs, err := w.ops.Abstractions.Abstract(ctx, pf, w.precision.Lookup(w.Block.Entry, 0))
		if err != nil {
			return false, errors.Wrapf(err, "block %s: abstract entry", w.Block.ID)
		}
		entry = dcpa.NewAbstractionState(w.ops.PathFormulas.MakeEmpty(), abs, entry.Locations)
		w.stats.ForcedAbstractionN++
	}
	w.entry = entry
	return true, nil
}

// entryPathFormula returns the entry abstraction as a path formula over
// the values at the block entry.
func (w *Worker) entryPathFormula() dcpa.PathFormula {
	pf := w.ops.PathFormulas.MakeEmpty()
	pf.Formula = w.entry.Abstraction.Uninstantiated
	return pf
}

// sendPosts sends the abstraction of every successor's entry.
func (w *Worker) sendPosts(ctx context.Context) error {
	entry := w.entryPathFormula()
	for _, succ := range w.Block.Succs {
		pf := w.ops.PathFormulas.Concat(entry, w.Block.PathToSucc(w.ops.PathFormulas, succ))
		locs := w.entry.Locations.Inc(succ.Entry.Number)

		abs, err := w.ops.Abstractions.Abstract(ctx, pf, w.precision.Lookup(succ.Entry, locs.Get(succ.Entry.Number)))
		if err != nil {
			return errors.Wrapf(err, "block %s: abstract post for %s", w.Block.ID, succ.ID)
		} else if abs.IsFalse() {
			w.logger.Debugf("%s unreachable", succ.ID)
			continue
		}

		state := dcpa.NewAbstractionState(w.ops.PathFormulas.MakeEmptyWithContext(pf.SSA, pf.PTS), abs, locs)
		if ok, err := w.ops.ProceedForward(ctx, state); err != nil {
			return err
		} else if !ok {
			continue
		}

		msg := distributed.NewMessage(distributed.PostCondition, w.Block.ID, succ.Entry.Number, w.ops.Serialize(state))
		msg.Precision = w.ops.SerializePrecision(w.precision)
		if err := w.bus.Send(succ.ID, msg); err != nil {
			return err
		}
	}
	return nil
}

// checkErrors queues the local error conditions on the first call and
// re-checks every pending error condition against the current entry.
func (w *Worker) checkErrors(ctx context.Context) error {
	if !w.queued {
		w.queued = true
		for _, i := range w.Block.Errors {
			w.pending = append(w.pending, &errorCondition{
				pf:    w.Block.PathTo(w.ops.PathFormulas, i),
				trace: []string{w.Block.ID},
			})
		}
	}

	pending := w.pending
	w.pending = nil
	for _, ec := range pending {
		if err := w.process(ctx, ec); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) handleError(ctx context.Context, msg *distributed.Message) error {
	succ, ok := w.Graph.BlockAt(msg.Target)
	if !ok {
		return errors.Wrapf(distributed.ErrUnknownNode, "block %s: error condition %s: no block at N%d", w.Block.ID, msg, msg.Target)
	}

	state, err := w.ops.Deserialize(msg)
	if err != nil {
		return err
	}
	suffix := state.(*dcpa.NonAbstractionState).PathFormula

	return w.process(ctx, &errorCondition{
		pf:    w.ops.PathFormulas.Concat(w.Block.PathToSucc(w.ops.PathFormulas, succ), suffix),
		trace: append([]string{w.Block.ID}, msg.Trace...),
		hops:  msg.Hops,
	})
}

// process decides what happens to an error condition at this block. At the
// program entry a satisfiable condition is a violation. Elsewhere it is
// forwarded to the predecessors if it is consistent with the entry
// abstraction and kept for later otherwise.
func (w *Worker) process(ctx context.Context, ec *errorCondition) error {
	if w.Block == w.Graph.Root {
		return w.checkRoot(ctx, ec)
	} else if w.entry == nil {
		w.pending = append(w.pending, ec)
		return nil
	}

	pf := w.ops.PathFormulas.Concat(w.entryPathFormula(), ec.pf)
	state := dcpa.NewNonAbstractionState(pf, w.entry.Abstraction, w.entry.Locations)
	if ok, err := w.ops.ProceedBackward(ctx, state); err != nil {
		return errors.Wrapf(err, "block %s: error condition from %s", w.Block.ID, ec.trace[len(ec.trace)-1])
	} else if !ok {
		w.stats.StoppedErrorN++
		w.pending = append(w.pending, ec)
		return nil
	}

	if ec.hops >= w.maxErrorHops {
		w.stats.DroppedErrorN++
		w.logger.Warnf("drop error condition from %s after %d hops", ec.trace[len(ec.trace)-1], ec.hops)
		return nil
	}

	payload := w.ops.Serialize(dcpa.NewNonAbstractionState(ec.pf, w.entry.Abstraction, w.entry.Locations))
	for _, pred := range w.Block.Preds {
		msg := distributed.NewMessage(distributed.ErrorCondition, w.Block.ID, w.Block.Entry.Number, payload)
		msg.Trace = ec.trace
		msg.Hops = ec.hops + 1
		msg.Precision = w.ops.SerializePrecision(w.precision)
		if err := w.bus.Send(pred.ID, msg); err != nil {
			return err
		}
	}
	return nil
}

// checkRoot reports ec if some initial state satisfies it. Initial values
// are unconstrained, so an unsatisfiable condition is dropped for good.
// The solver's model is replayed against the condition before reporting.
func (w *Worker) checkRoot(ctx context.Context, ec *errorCondition) error {
	formula := ec.pf.Formula

	var sat bool
	vars := dcpa.FindVars(formula)
	var values []*dcpa.ConstantExpr
	if dcpa.IsConstantExpr(formula) {
		sat = dcpa.IsConstantTrue(formula)
	} else {
		var err error
		if sat, values, err = w.ops.Solver.Solve(ctx, []dcpa.Expr{formula}, vars); err != nil {
			return errors.Wrapf(err, "block %s: check error condition", w.Block.ID)
		}
	}
	if !sat {
		w.stats.StoppedErrorN++
		return nil
	}

	if len(vars) > 0 {
		if result, err := dcpa.NewExprEvaluator(vars, values).Evaluate(formula); err != nil {
			return errors.Wrapf(err, "block %s: replay error condition", w.Block.ID)
		} else if !result.IsTrue() {
			return errors.Errorf("block %s: solver model does not satisfy error condition %s", w.Block.ID, formula)
		}
	}

	v := &violation{trace: ec.trace, inputs: make(map[string]*dcpa.ConstantExpr), formula: formula}
	for i, x := range vars {
		if !x.IsInstantiated() {
			v.inputs[x.Name] = values[i]
		}
	}
	w.logger.Infof("error reachable: %s", fmt.Sprint(v.trace))
	w.report(v)
	return nil
}
