package dcpa

import (
	"fmt"
	"strings"

	"github.com/benbjohnson/immutable"
)

// PointerTargetSet describes the heap regions a path formula may refer to.
// Implementations are immutable.
type PointerTargetSet interface {
	String() string
	pointerTargetSet()
}

// PointerTargetSetManager creates, parses and merges pointer target sets.
type PointerTargetSetManager interface {
	Empty() PointerTargetSet
	Parse(text string) (PointerTargetSet, error)

	// Alloc returns pts with base added as an allocated region.
	Alloc(pts PointerTargetSet, base string) PointerTargetSet

	// Merge returns a set under which formulas built against either a or b
	// remain meaningful when reindexed to ssa.
	Merge(a, b PointerTargetSet, ssa SSAMap) PointerTargetSet
}

// TrackedBases is a PointerTargetSet which records the set of allocated
// base regions by name.
type TrackedBases struct {
	bases *immutable.SortedMap[string, struct{}]
}

func (*TrackedBases) pointerTargetSet() {}

// Len returns the number of tracked bases.
func (s *TrackedBases) Len() int {
	if s == nil || s.bases == nil {
		return 0
	}
	return s.bases.Len()
}

// Contains returns true if base is tracked.
func (s *TrackedBases) Contains(base string) bool {
	if s == nil || s.bases == nil {
		return false
	}
	_, ok := s.bases.Get(base)
	return ok
}

// Bases returns the tracked base names in sorted order.
func (s *TrackedBases) Bases() []string {
	a := make([]string, 0, s.Len())
	if s.Len() == 0 {
		return a
	}
	itr := s.bases.Iterator()
	for !itr.Done() {
		base, _, _ := itr.Next()
		a = append(a, base)
	}
	return a
}

// String returns the comma separated base names.
func (s *TrackedBases) String() string {
	return strings.Join(s.Bases(), ",")
}

func (s *TrackedBases) with(base string) *TrackedBases {
	m := s.bases
	if m == nil {
		m = immutable.NewSortedMap[string, struct{}](nil)
	}
	return &TrackedBases{bases: m.Set(base, struct{}{})}
}

// TrackedBasesManager is the PointerTargetSetManager for TrackedBases.
type TrackedBasesManager struct{}

// NewTrackedBasesManager returns a new instance of TrackedBasesManager.
func NewTrackedBasesManager() *TrackedBasesManager {
	return &TrackedBasesManager{}
}

func (*TrackedBasesManager) Empty() PointerTargetSet {
	return &TrackedBases{}
}

func (*TrackedBasesManager) Parse(text string) (PointerTargetSet, error) {
	s := &TrackedBases{}
	for _, base := range strings.Split(text, ",") {
		base = strings.TrimSpace(base)
		if base == "" {
			continue
		} else if !IsValidVarName(base) {
			return nil, fmt.Errorf("invalid pointer base %q", base)
		}
		s = s.with(base)
	}
	return s, nil
}

func (m *TrackedBasesManager) Alloc(pts PointerTargetSet, base string) PointerTargetSet {
	return m.cast("alloc", pts).with(base)
}

func (m *TrackedBasesManager) Merge(a, b PointerTargetSet, ssa SSAMap) PointerTargetSet {
	sa, sb := m.cast("merge pts", a), m.cast("merge pts", b)
	if sa.Len() < sb.Len() {
		sa, sb = sb, sa
	}
	result := sa
	for _, base := range sb.Bases() {
		if !result.Contains(base) {
			result = result.with(base)
		}
	}
	return result
}

func (m *TrackedBasesManager) cast(op string, pts PointerTargetSet) *TrackedBases {
	s, ok := pts.(*TrackedBases)
	if !ok {
		Violate(op, "", "unexpected pointer target set type %T", pts)
	}
	return s
}
