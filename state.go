package dcpa

import (
	"fmt"
)

// PredicateAbstractState is an abstract state of the predicate analysis.
// It is one of *AbstractionState, *NonAbstractionState or
// *InfeasibleDummyState.
type PredicateAbstractState interface {
	fmt.Stringer
	predicateAbstractState()
}

func (*AbstractionState) predicateAbstractState()     {}
func (*NonAbstractionState) predicateAbstractState()  {}
func (*InfeasibleDummyState) predicateAbstractState() {}

// AbstractionState is a state at which an abstraction was computed.
// PathFormula is the path since that abstraction, typically empty and
// continuing from the abstraction's SSA table.
type AbstractionState struct {
	PathFormula PathFormula
	Abstraction *AbstractionFormula
	Locations   LocationCounts
}

// NewAbstractionState returns a new instance of AbstractionState.
func NewAbstractionState(pf PathFormula, abs *AbstractionFormula, locs LocationCounts) *AbstractionState {
	assert(abs != nil, "abstraction state without abstraction")
	return &AbstractionState{PathFormula: pf, Abstraction: abs, Locations: locs}
}

func (s *AbstractionState) String() string {
	return fmt.Sprintf("AbstractionState(%s, %s)", s.Abstraction, s.PathFormula.Formula)
}

// NonAbstractionState is a state between two abstractions. Abstraction is
// the last abstraction computed along the path.
type NonAbstractionState struct {
	PathFormula PathFormula
	Abstraction *AbstractionFormula
	Locations   LocationCounts
}

// NewNonAbstractionState returns a new instance of NonAbstractionState.
func NewNonAbstractionState(pf PathFormula, abs *AbstractionFormula, locs LocationCounts) *NonAbstractionState {
	assert(abs != nil, "non-abstraction state without abstraction")
	return &NonAbstractionState{PathFormula: pf, Abstraction: abs, Locations: locs}
}

func (s *NonAbstractionState) String() string {
	return fmt.Sprintf("NonAbstractionState(%s, %s)", s.Abstraction, s.PathFormula.Formula)
}

// InfeasibleDummyState marks a state that can never be reached.
type InfeasibleDummyState struct{}

func (*InfeasibleDummyState) String() string { return "InfeasibleDummyState" }

// WithPathFormula returns a NonAbstractionState that carries pf and
// otherwise inherits the abstraction and location counts of state.
func WithPathFormula(state PredicateAbstractState, pf PathFormula) *NonAbstractionState {
	switch state := state.(type) {
	case *AbstractionState:
		return NewNonAbstractionState(pf, state.Abstraction, state.Locations)
	case *NonAbstractionState:
		return NewNonAbstractionState(pf, state.Abstraction, state.Locations)
	default:
		panic(fmt.Sprintf("cannot attach path formula to %T", state))
	}
}

// StateKind returns a short name for the variant of state.
func StateKind(state PredicateAbstractState) string {
	switch state.(type) {
	case *AbstractionState:
		return "abstraction"
	case *NonAbstractionState:
		return "non-abstraction"
	case *InfeasibleDummyState:
		return "infeasible"
	default:
		panic("unreachable")
	}
}
