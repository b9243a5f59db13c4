package distributed

import (
	"context"

	"github.com/benbjohnson/dcpa"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUnknownNode is returned when a message names a CFA node that does
	// not exist in the receiver's program.
	ErrUnknownNode = errors.New("unknown cfa node")

	// ErrUnsupportedPrecision is returned when a precision payload does not
	// have a recognized shape.
	ErrUnsupportedPrecision = errors.New("unsupported precision payload")
)

// NodeLookup resolves CFA node numbers.
type NodeLookup interface {
	Node(number int) (*dcpa.CFANode, bool)
}

// InitialStateFunc returns the initial state template of a block at node.
type InitialStateFunc func(node *dcpa.CFANode) dcpa.PredicateAbstractState

// PredicateOperators holds the distributed operators of the predicate
// analysis for a single block. An instance is owned by one worker and is
// not safe for concurrent use.
type PredicateOperators struct {
	Block string

	Solver       dcpa.Solver
	PathFormulas *dcpa.PathFormulaManager
	Abstractions *dcpa.AbstractionManager

	Nodes   NodeLookup
	Initial InitialStateFunc

	Logger *logrus.Entry
	Stats  *Stats
}

// NewPredicateOperators returns operators for block that decide queries
// with solver.
func NewPredicateOperators(block string, solver dcpa.Solver, nodes NodeLookup, initial InitialStateFunc) *PredicateOperators {
	return &PredicateOperators{
		Block:        block,
		Solver:       solver,
		PathFormulas: dcpa.NewPathFormulaManager(nil),
		Abstractions: dcpa.NewAbstractionManager(solver, 0),
		Nodes:        nodes,
		Initial:      initial,
		Logger:       logrus.WithField("block", block),
		Stats:        &Stats{},
	}
}

// Serialize encodes the summary of state for transmission.
//
// An abstraction state sends its instantiated abstraction formula, or the
// block formula it was computed from when the abstraction is trivially
// true. A non-abstraction state sends its raw path formula and an
// infeasible state sends "false".
func (o *PredicateOperators) Serialize(state dcpa.PredicateAbstractState) Payload {
	o.Stats.inc(&o.Stats.SerializeN)

	var pf dcpa.PathFormula
	switch state := state.(type) {
	case *dcpa.AbstractionState:
		pf = state.PathFormula
		if abs := state.Abstraction; abs.IsTrue() {
			pf = abs.BlockFormula
		} else {
			pf.Formula = abs.Instantiated
		}
	case *dcpa.NonAbstractionState:
		pf = state.PathFormula
	case *dcpa.InfeasibleDummyState:
		pf = o.PathFormulas.MakeEmpty()
		pf.Formula = dcpa.False()
	default:
		dcpa.Violate("serialize", o.Block, "unexpected state type %T", state)
	}

	return Payload{
		FormulaKey: pf.Formula.String(),
		SSAKey:     pf.SSA.String(),
		PTSKey:     o.pts(pf.PTS).String(),
	}
}

// Deserialize decodes the summary carried by msg into a state attached to
// this block's initial state template at the node the message names.
//
// Missing or malformed payload fields fail open: the formula defaults to
// "true", the SSA table and pointer target set to empty. Each default is
// logged and counted. A message naming an unknown node is an error.
func (o *PredicateOperators) Deserialize(msg *Message) (dcpa.PredicateAbstractState, error) {
	o.Stats.inc(&o.Stats.DeserializeN)

	node, ok := o.Nodes.Node(msg.Target)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownNode, "block %s: deserialize %s: N%d", o.Block, msg, msg.Target)
	}
	logger := o.Logger.WithField("message", msg.ID)

	ssa := dcpa.NewSSAMap()
	if text, ok := msg.Payload[SSAKey]; !ok {
		o.Stats.inc(&o.Stats.MissingSSAN)
		logger.Warn("deserialize: payload without ssa map, assuming empty")
	} else if m, err := dcpa.ParseSSAMap(text); err != nil {
		o.Stats.inc(&o.Stats.MalformedSSAN)
		logger.WithError(err).Warn("deserialize: malformed ssa map, assuming empty")
	} else {
		ssa = m
	}

	var formula dcpa.Expr = dcpa.True()
	if text, ok := msg.Payload[FormulaKey]; !ok {
		o.Stats.inc(&o.Stats.MissingFormulaN)
		logger.Warn("deserialize: payload without formula, assuming true")
	} else if expr, err := dcpa.ParseExpr(text); err != nil {
		o.Stats.inc(&o.Stats.MalformedFormulaN)
		logger.WithError(err).Warn("deserialize: malformed formula, assuming true")
	} else if dcpa.ExprWidth(expr) != dcpa.WidthBool {
		o.Stats.inc(&o.Stats.MalformedFormulaN)
		logger.Warnf("deserialize: non-boolean formula %s, assuming true", expr)
	} else if err := checkFormulaSSA(expr, ssa); err != nil {
		o.Stats.inc(&o.Stats.MalformedFormulaN)
		logger.WithError(err).Warn("deserialize: formula does not match ssa map, assuming true")
	} else {
		formula = expr
	}

	pts := o.PathFormulas.PTS.Empty()
	if text, ok := msg.Payload[PTSKey]; !ok {
		o.Stats.inc(&o.Stats.MissingPTSN)
		logger.Warn("deserialize: payload without pointer target set, assuming empty")
	} else if s, err := o.PathFormulas.PTS.Parse(text); err != nil {
		o.Stats.inc(&o.Stats.MalformedPTSN)
		logger.WithError(err).Warn("deserialize: malformed pointer target set, assuming empty")
	} else {
		pts = s
	}

	pf := o.PathFormulas.MakeEmptyWithContext(ssa, pts)
	pf.Formula = formula
	return dcpa.WithPathFormula(o.Initial(node), pf), nil
}

// checkFormulaSSA returns an error if a variable of expr disagrees with its
// ssa entry. Widths must match and an indexed variable may not be ahead of
// the table.
func checkFormulaSSA(expr dcpa.Expr, ssa dcpa.SSAMap) error {
	for _, v := range dcpa.FindVars(expr) {
		e, ok := ssa.Get(v.Name)
		if ok && e.Width != v.Width {
			return errors.Errorf("%s: width %d in ssa map", v, e.Width)
		} else if v.IsInstantiated() && (!ok || v.Index > e.Index) {
			return errors.Errorf("%s: index ahead of ssa map", v)
		}
	}
	return nil
}

// Combine merges the summaries arriving at a block entry into one state
// whose formula is the disjunction of every input's abstraction formula,
// instantiated against the merged SSA table. All states must be
// abstraction states; the result keeps the abstraction and location counts
// of the first one.
func (o *PredicateOperators) Combine(states []dcpa.PredicateAbstractState) dcpa.PredicateAbstractState {
	o.Stats.inc(&o.Stats.CombineN)

	if len(states) == 0 {
		dcpa.Violate("combine", o.Block, "no states")
	}

	inputs := make([]*dcpa.AbstractionState, len(states))
	for i, state := range states {
		s, ok := state.(*dcpa.AbstractionState)
		if !ok {
			dcpa.Violate("combine", o.Block, "state %d: expected abstraction state, got %s", i, dcpa.StateKind(state))
		}
		inputs[i] = s
	}

	ssa := inputs[0].PathFormula.SSA
	pts := o.pts(inputs[0].PathFormula.PTS)
	for _, s := range inputs[1:] {
		ssa = mergeSSA(o.Block, ssa, s.PathFormula.SSA)
		pts = o.PathFormulas.PTS.Merge(pts, o.pts(s.PathFormula.PTS), ssa)
	}

	disjuncts := make([]dcpa.Expr, len(inputs))
	for i, s := range inputs {
		disjuncts[i] = dcpa.Instantiate(s.Abstraction.Uninstantiated, ssa)
	}

	pf := o.PathFormulas.MakeAnd(o.PathFormulas.MakeEmptyWithContext(ssa, pts), dcpa.Or(disjuncts...))
	return dcpa.NewNonAbstractionState(pf, inputs[0].Abstraction, inputs[0].Locations)
}

// mergeSSA merges two tables and reports width conflicts against block.
func mergeSSA(block string, a, b dcpa.SSAMap) dcpa.SSAMap {
	b.Each(func(name string, e dcpa.SSAEntry) {
		if ea, ok := a.Get(name); ok && ea.Width != e.Width {
			dcpa.Violate("combine", block, "width conflict for %s: %d != %d", name, ea.Width, e.Width)
		}
	})
	return dcpa.MergeSSAMaps(a, b)
}

func (o *PredicateOperators) pts(pts dcpa.PointerTargetSet) dcpa.PointerTargetSet {
	if pts == nil {
		return o.PathFormulas.PTS.Empty()
	}
	return pts
}

// ProceedForward reports whether forward analysis may continue from state.
// The predicate analysis never blocks forward analysis.
func (o *PredicateOperators) ProceedForward(ctx context.Context, state dcpa.PredicateAbstractState) (bool, error) {
	return true, nil
}

// ProceedBackward reports whether an error condition should keep
// propagating from state. It stops once the state's formula is
// unsatisfiable. Solver failures are returned unchanged.
func (o *PredicateOperators) ProceedBackward(ctx context.Context, state dcpa.PredicateAbstractState) (bool, error) {
	var formula dcpa.Expr
	switch state := state.(type) {
	case *dcpa.AbstractionState:
		formula = state.Abstraction.Instantiated
	case *dcpa.NonAbstractionState:
		formula = state.PathFormula.Formula
	case *dcpa.InfeasibleDummyState:
		o.Stats.inc(&o.Stats.ProceedStopN)
		return false, nil
	default:
		dcpa.Violate("proceed backward", o.Block, "unexpected state type %T", state)
	}

	sat, err := dcpa.IsSatisfiable(ctx, o.Solver, formula)
	if err != nil {
		return false, err
	} else if !sat {
		o.Stats.inc(&o.Stats.ProceedStopN)
	}
	return sat, nil
}

// Widen joins two abstraction states seen at the same block entry.
func (o *PredicateOperators) Widen(a, b dcpa.PredicateAbstractState) *dcpa.AbstractionState {
	o.Stats.inc(&o.Stats.WidenN)

	sa, ok := a.(*dcpa.AbstractionState)
	if !ok {
		dcpa.Violate("widen", o.Block, "first state: expected abstraction state, got %s", dcpa.StateKind(a))
	}
	sb, ok := b.(*dcpa.AbstractionState)
	if !ok {
		dcpa.Violate("widen", o.Block, "second state: expected abstraction state, got %s", dcpa.StateKind(b))
	}

	pf := o.PathFormulas.MakeOr(sa.PathFormula, sb.PathFormula)
	instantiated := dcpa.Or(sa.Abstraction.Instantiated, sb.Abstraction.Instantiated)

	abs := o.Abstractions.MakeAbstraction(dcpa.Uninstantiate(instantiated), pf)
	abs.Instantiated = instantiated
	abs.ReusedIDs = sa.Abstraction.ReusedIDs.Union(sb.Abstraction.ReusedIDs)

	return dcpa.NewAbstractionState(pf, abs, sa.Locations.Union(sb.Locations))
}

// Covers returns true if b adds nothing to a: b's formula entails a's.
// States of different kinds never cover each other.
func (o *PredicateOperators) Covers(ctx context.Context, a, b dcpa.PredicateAbstractState) (bool, error) {
	switch a := a.(type) {
	case *dcpa.AbstractionState:
		b, ok := b.(*dcpa.AbstractionState)
		if !ok {
			return false, nil
		}
		return dcpa.Entails(ctx, o.Solver, b.Abstraction.Uninstantiated, a.Abstraction.Uninstantiated)

	case *dcpa.NonAbstractionState:
		b, ok := b.(*dcpa.NonAbstractionState)
		if !ok {
			return false, nil
		}
		return dcpa.Entails(ctx, o.Solver, b.PathFormula.Formula, a.PathFormula.Formula)

	case *dcpa.InfeasibleDummyState:
		_, ok := b.(*dcpa.InfeasibleDummyState)
		return ok, nil

	default:
		dcpa.Violate("covers", o.Block, "unexpected state type %T", a)
		return false, nil
	}
}

// CoverageIsEquality returns false: coverage is entailment, not equality.
func (o *PredicateOperators) CoverageIsEquality() bool {
	return false
}
