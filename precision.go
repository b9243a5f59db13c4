package dcpa

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/benbjohnson/immutable"
)

// PredicateSet is an immutable set of uninstantiated predicates, keyed and
// ordered by their textual form. The zero value is empty.
type PredicateSet struct {
	m *immutable.SortedMap[string, Expr]
}

// NewPredicateSet returns a set containing preds.
func NewPredicateSet(preds ...Expr) PredicateSet {
	return PredicateSet{}.Add(preds...)
}

// Len returns the number of predicates.
func (s PredicateSet) Len() int {
	if s.m == nil {
		return 0
	}
	return s.m.Len()
}

// Contains returns true if the set holds pred.
func (s PredicateSet) Contains(pred Expr) bool {
	if s.m == nil {
		return false
	}
	_, ok := s.m.Get(Uninstantiate(pred).String())
	return ok
}

// Add returns a copy of s with preds added. Constant predicates carry no
// information and are ignored.
func (s PredicateSet) Add(preds ...Expr) PredicateSet {
	m := s.m
	for _, pred := range preds {
		if IsConstantExpr(pred) {
			continue
		}
		assert(ExprWidth(pred) == WidthBool, "predicate must be boolean: %s", pred)
		pred = Uninstantiate(pred)
		if m == nil {
			m = immutable.NewSortedMap[string, Expr](nil)
		}
		if _, ok := m.Get(pred.String()); !ok {
			m = m.Set(pred.String(), pred)
		}
	}
	return PredicateSet{m: m}
}

// Union returns the union of s and other.
func (s PredicateSet) Union(other PredicateSet) PredicateSet {
	if s.Len() < other.Len() {
		s, other = other, s
	}
	return s.Add(other.Slice()...)
}

// Slice returns the predicates in order of their textual form.
func (s PredicateSet) Slice() []Expr {
	a := make([]Expr, 0, s.Len())
	if s.m == nil {
		return a
	}
	itr := s.m.Iterator()
	for !itr.Done() {
		_, pred, _ := itr.Next()
		a = append(a, pred)
	}
	return a
}

// Strings returns the textual form of every predicate.
func (s PredicateSet) Strings() []string {
	preds := s.Slice()
	a := make([]string, len(preds))
	for i := range preds {
		a[i] = preds[i].String()
	}
	return a
}

// Equal returns true if both sets hold the same predicates.
func (s PredicateSet) Equal(other PredicateSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for _, pred := range s.Slice() {
		if !other.Contains(pred) {
			return false
		}
	}
	return true
}

// LocationInstance identifies the i-th visit of a CFA node along a path.
type LocationInstance struct {
	Node     int
	Instance int
}

// String returns the key form "node,instance".
func (li LocationInstance) String() string {
	return fmt.Sprintf("%d,%d", li.Node, li.Instance)
}

// ParseLocationInstance parses the form returned by LocationInstance.String().
func ParseLocationInstance(s string) (LocationInstance, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return LocationInstance{}, fmt.Errorf("invalid location instance %q", s)
	}
	node, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return LocationInstance{}, fmt.Errorf("invalid location instance node %q", s)
	}
	instance, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || instance < 0 {
		return LocationInstance{}, fmt.Errorf("invalid location instance count %q", s)
	}
	return LocationInstance{Node: node, Instance: instance}, nil
}

// Precision is an immutable set of predicates organized by scope. A lookup
// at a program point returns the union of all scopes that apply to it.
// The zero value is the empty precision.
type Precision struct {
	instances *immutable.SortedMap[string, PredicateSet]
	local     *immutable.SortedMap[int, PredicateSet]
	function  *immutable.SortedMap[string, PredicateSet]
	global    PredicateSet
}

// NewPrecision returns the empty precision.
func NewPrecision() *Precision {
	return &Precision{}
}

func (p *Precision) clone() *Precision {
	other := *p
	return &other
}

// AddLocationInstance returns a copy of p with preds tracked at one visit of a node.
func (p *Precision) AddLocationInstance(li LocationInstance, preds ...Expr) *Precision {
	other := p.clone()
	if other.instances == nil {
		other.instances = immutable.NewSortedMap[string, PredicateSet](nil)
	}
	set, _ := other.instances.Get(li.String())
	other.instances = other.instances.Set(li.String(), set.Add(preds...))
	return other
}

// AddLocal returns a copy of p with preds tracked at node.
func (p *Precision) AddLocal(node int, preds ...Expr) *Precision {
	other := p.clone()
	if other.local == nil {
		other.local = immutable.NewSortedMap[int, PredicateSet](nil)
	}
	set, _ := other.local.Get(node)
	other.local = other.local.Set(node, set.Add(preds...))
	return other
}

// AddFunction returns a copy of p with preds tracked in every node of fn.
func (p *Precision) AddFunction(fn string, preds ...Expr) *Precision {
	other := p.clone()
	if other.function == nil {
		other.function = immutable.NewSortedMap[string, PredicateSet](nil)
	}
	set, _ := other.function.Get(fn)
	other.function = other.function.Set(fn, set.Add(preds...))
	return other
}

// AddGlobal returns a copy of p with preds tracked everywhere.
func (p *Precision) AddGlobal(preds ...Expr) *Precision {
	other := p.clone()
	other.global = other.global.Add(preds...)
	return other
}

// Lookup returns the predicates that apply at the given visit of node.
func (p *Precision) Lookup(node *CFANode, instance int) []Expr {
	set := p.global
	if p.function != nil {
		if s, ok := p.function.Get(node.Function); ok {
			set = set.Union(s)
		}
	}
	if p.local != nil {
		if s, ok := p.local.Get(node.Number); ok {
			set = set.Union(s)
		}
	}
	if p.instances != nil {
		if s, ok := p.instances.Get(LocationInstance{Node: node.Number, Instance: instance}.String()); ok {
			set = set.Union(s)
		}
	}
	return set.Slice()
}

// EachLocationInstance calls fn for every location instance scope.
func (p *Precision) EachLocationInstance(fn func(li LocationInstance, preds PredicateSet)) {
	if p.instances == nil {
		return
	}
	itr := p.instances.Iterator()
	for !itr.Done() {
		key, set, _ := itr.Next()
		li, err := ParseLocationInstance(key)
		assert(err == nil, "corrupt location instance key: %q", key)
		fn(li, set)
	}
}

// EachLocal calls fn for every node scope.
func (p *Precision) EachLocal(fn func(node int, preds PredicateSet)) {
	if p.local == nil {
		return
	}
	itr := p.local.Iterator()
	for !itr.Done() {
		node, set, _ := itr.Next()
		fn(node, set)
	}
}

// EachFunction calls fn for every function scope.
func (p *Precision) EachFunction(fn func(name string, preds PredicateSet)) {
	if p.function == nil {
		return
	}
	itr := p.function.Iterator()
	for !itr.Done() {
		name, set, _ := itr.Next()
		fn(name, set)
	}
}

// Global returns the predicates tracked everywhere.
func (p *Precision) Global() PredicateSet {
	return p.global
}

// Union returns a precision holding the predicates of both p and other in
// their respective scopes.
func (p *Precision) Union(other *Precision) *Precision {
	result := p
	other.EachLocationInstance(func(li LocationInstance, preds PredicateSet) {
		result = result.AddLocationInstance(li, preds.Slice()...)
	})
	other.EachLocal(func(node int, preds PredicateSet) {
		result = result.AddLocal(node, preds.Slice()...)
	})
	other.EachFunction(func(name string, preds PredicateSet) {
		result = result.AddFunction(name, preds.Slice()...)
	})
	if other.global.Len() > 0 {
		result = result.AddGlobal(other.global.Slice()...)
	}
	return result
}

// Size returns the total number of scoped predicates.
func (p *Precision) Size() int {
	n := p.global.Len()
	p.EachLocationInstance(func(_ LocationInstance, preds PredicateSet) { n += preds.Len() })
	p.EachLocal(func(_ int, preds PredicateSet) { n += preds.Len() })
	p.EachFunction(func(_ string, preds PredicateSet) { n += preds.Len() })
	return n
}

// Equal returns true if both precisions hold the same predicates in the same scopes.
func (p *Precision) Equal(other *Precision) bool {
	return p.Size() == other.Size() && p.Union(other).Size() == p.Size()
}

// String returns a multi-line listing of all scopes.
func (p *Precision) String() string {
	var buf strings.Builder
	p.EachLocationInstance(func(li LocationInstance, preds PredicateSet) {
		fmt.Fprintf(&buf, "instance %s: %s\n", li, strings.Join(preds.Strings(), " "))
	})
	p.EachLocal(func(node int, preds PredicateSet) {
		fmt.Fprintf(&buf, "local %d: %s\n", node, strings.Join(preds.Strings(), " "))
	})
	p.EachFunction(func(name string, preds PredicateSet) {
		fmt.Fprintf(&buf, "function %s: %s\n", name, strings.Join(preds.Strings(), " "))
	})
	if p.global.Len() > 0 {
		fmt.Fprintf(&buf, "global: %s\n", strings.Join(p.global.Strings(), " "))
	}
	return buf.String()
}
