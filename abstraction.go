package dcpa

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/benbjohnson/immutable"
)

// Region is the symbolic representation of an abstraction used for
// entailment checks. It holds the uninstantiated abstraction formula.
type Region struct {
	Formula Expr
}

// IsTrue returns true if the region is the whole state space.
func (r Region) IsTrue() bool { return r.Formula == nil || IsConstantTrue(r.Formula) }

// IsFalse returns true if the region is empty.
func (r Region) IsFalse() bool { return r.Formula != nil && IsConstantFalse(r.Formula) }

func (r Region) String() string {
	if r.Formula == nil {
		return "true"
	}
	return r.Formula.String()
}

// AbstractionFormula is the result of one predicate abstraction computation.
type AbstractionFormula struct {
	ID     int
	Region Region

	// Abstraction over the variables' values at the end of BlockFormula,
	// with indices taken from BlockFormula's SSA table.
	Instantiated Expr

	// Same abstraction with all indices removed.
	Uninstantiated Expr

	// Path formula the abstraction was computed from.
	BlockFormula PathFormula

	// Identifiers of earlier abstractions that were reused to compute this one.
	ReusedIDs IDSet
}

// IsTrue returns true if the abstraction is the whole state space.
func (a *AbstractionFormula) IsTrue() bool { return a.Region.IsTrue() }

// IsFalse returns true if the abstraction is empty.
func (a *AbstractionFormula) IsFalse() bool { return a.Region.IsFalse() }

func (a *AbstractionFormula) String() string {
	return fmt.Sprintf("ABS%d: %s", a.ID, a.Uninstantiated)
}

// IDSet is an immutable sorted set of abstraction identifiers.
// The zero value is an empty set.
type IDSet struct {
	m *immutable.SortedMap[int, struct{}]
}

// NewIDSet returns a set containing ids.
func NewIDSet(ids ...int) IDSet {
	var s IDSet
	for _, id := range ids {
		s = s.Add(id)
	}
	return s
}

// Len returns the number of ids in the set.
func (s IDSet) Len() int {
	if s.m == nil {
		return 0
	}
	return s.m.Len()
}

// Contains returns true if id is in the set.
func (s IDSet) Contains(id int) bool {
	if s.m == nil {
		return false
	}
	_, ok := s.m.Get(id)
	return ok
}

// Add returns a copy of the set with id added.
func (s IDSet) Add(id int) IDSet {
	m := s.m
	if m == nil {
		m = immutable.NewSortedMap[int, struct{}](nil)
	}
	return IDSet{m: m.Set(id, struct{}{})}
}

// Union returns the union of s and other.
func (s IDSet) Union(other IDSet) IDSet {
	if s.Len() < other.Len() {
		s, other = other, s
	}
	for _, id := range other.Slice() {
		if !s.Contains(id) {
			s = s.Add(id)
		}
	}
	return s
}

// Slice returns the ids in ascending order.
func (s IDSet) Slice() []int {
	a := make([]int, 0, s.Len())
	if s.m == nil {
		return a
	}
	itr := s.m.Iterator()
	for !itr.Done() {
		id, _, _ := itr.Next()
		a = append(a, id)
	}
	return a
}

// Equal returns true if both sets contain the same ids.
func (s IDSet) Equal(other IDSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for _, id := range s.Slice() {
		if !other.Contains(id) {
			return false
		}
	}
	return true
}

func (s IDSet) String() string {
	ids := s.Slice()
	a := make([]string, len(ids))
	for i, id := range ids {
		a[i] = strconv.Itoa(id)
	}
	return "{" + strings.Join(a, ",") + "}"
}
