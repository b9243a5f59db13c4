package cfa

import (
	"fmt"

	"github.com/benbjohnson/dcpa"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// EdgeKind is the type of operation performed along an edge.
type EdgeKind int

const (
	BlankEdge EdgeKind = iota
	AssumeEdge
	AssignEdge
	HavocEdge
	AllocEdge
)

func (k EdgeKind) String() string {
	switch k {
	case BlankEdge:
		return "blank"
	case AssumeEdge:
		return "assume"
	case AssignEdge:
		return "assign"
	case HavocEdge:
		return "havoc"
	case AllocEdge:
		return "alloc"
	default:
		return fmt.Sprintf("EdgeKind<%d>", int(k))
	}
}

// Edge is a transition between two CFA nodes.
type Edge struct {
	From *dcpa.CFANode
	To   *dcpa.CFANode
	Kind EdgeKind

	Cond  dcpa.Expr     // assume
	Var   *dcpa.VarExpr // assign, havoc
	Value dcpa.Expr     // assign
	Base  string        // alloc

	// Source position or text the edge was built from, if any.
	Label string
}

// Apply extends pf with the effect of the edge.
func (e *Edge) Apply(m *dcpa.PathFormulaManager, pf dcpa.PathFormula) dcpa.PathFormula {
	switch e.Kind {
	case AssumeEdge:
		return m.MakeAssume(pf, e.Cond)
	case AssignEdge:
		return m.MakeAssign(pf, e.Var, e.Value)
	case HavocEdge:
		return m.MakeHavoc(pf, e.Var)
	case AllocEdge:
		return m.MakeAlloc(pf, e.Base)
	default:
		return m.MakeBlank(pf)
	}
}

// Operation returns the textual form of the edge's operation.
func (e *Edge) Operation() string {
	switch e.Kind {
	case AssumeEdge:
		return fmt.Sprintf("assume %s", e.Cond)
	case AssignEdge:
		return fmt.Sprintf("%s := %s", e.Var, e.Value)
	case HavocEdge:
		return fmt.Sprintf("%s := *", e.Var)
	case AllocEdge:
		return fmt.Sprintf("alloc %s", e.Base)
	default:
		return "skip"
	}
}

func (e *Edge) String() string {
	return fmt.Sprintf("%s -> %s: %s", e.From, e.To, e.Operation())
}

// CFA is the control-flow automaton of a single function.
type CFA struct {
	Function string
	Entry    *dcpa.CFANode
	Exit     *dcpa.CFANode

	nodes  map[int]*dcpa.CFANode
	out    map[int][]*Edge
	in     map[int][]*Edge
	errors map[int]struct{}
}

// New returns an empty CFA for function.
func New(function string) *CFA {
	return &CFA{
		Function: function,
		nodes:    make(map[int]*dcpa.CFANode),
		out:      make(map[int][]*Edge),
		in:       make(map[int][]*Edge),
		errors:   make(map[int]struct{}),
	}
}

// AddNode returns a new node numbered one above the highest existing node.
func (c *CFA) AddNode() *dcpa.CFANode {
	number := 1
	for n := range c.nodes {
		if n >= number {
			number = n + 1
		}
	}
	return c.NodeAt(number)
}

// NodeAt returns the node with the given number, creating it if needed.
func (c *CFA) NodeAt(number int) *dcpa.CFANode {
	if n, ok := c.nodes[number]; ok {
		return n
	}
	n := &dcpa.CFANode{Number: number, Function: c.Function}
	c.nodes[number] = n
	return n
}

// Node returns the node with the given number.
func (c *CFA) Node(number int) (*dcpa.CFANode, bool) {
	n, ok := c.nodes[number]
	return n, ok
}

// Nodes returns all nodes ordered by number.
func (c *CFA) Nodes() []*dcpa.CFANode {
	numbers := maps.Keys(c.nodes)
	slices.Sort(numbers)

	a := make([]*dcpa.CFANode, len(numbers))
	for i, n := range numbers {
		a[i] = c.nodes[n]
	}
	return a
}

// AddEdge adds e to the automaton.
func (c *CFA) AddEdge(e *Edge) {
	c.out[e.From.Number] = append(c.out[e.From.Number], e)
	c.in[e.To.Number] = append(c.in[e.To.Number], e)
}

// Out returns the edges leaving node.
func (c *CFA) Out(node *dcpa.CFANode) []*Edge { return c.out[node.Number] }

// In returns the edges entering node.
func (c *CFA) In(node *dcpa.CFANode) []*Edge { return c.in[node.Number] }

// Edges returns all edges ordered by source and target node.
func (c *CFA) Edges() []*Edge {
	var a []*Edge
	for _, n := range c.Nodes() {
		a = append(a, c.out[n.Number]...)
	}
	slices.SortStableFunc(a, func(x, y *Edge) bool {
		if x.From.Number != y.From.Number {
			return x.From.Number < y.From.Number
		}
		return x.To.Number < y.To.Number
	})
	return a
}

// MarkError marks node as an error location.
func (c *CFA) MarkError(node *dcpa.CFANode) {
	c.errors[node.Number] = struct{}{}
}

// IsError returns true if node is an error location.
func (c *CFA) IsError(node *dcpa.CFANode) bool {
	_, ok := c.errors[node.Number]
	return ok
}

// ErrorNodes returns the error locations ordered by number.
func (c *CFA) ErrorNodes() []*dcpa.CFANode {
	var a []*dcpa.CFANode
	for _, n := range c.Nodes() {
		if c.IsError(n) {
			a = append(a, n)
		}
	}
	return a
}

// Reachable returns the nodes reachable from the entry. Error nodes are
// treated as sinks.
func (c *CFA) Reachable() map[int]bool {
	seen := make(map[int]bool)
	if c.Entry == nil {
		return seen
	}
	stack := []*dcpa.CFANode{c.Entry}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n.Number] {
			continue
		}
		seen[n.Number] = true
		if c.IsError(n) {
			continue
		}
		for _, e := range c.out[n.Number] {
			stack = append(stack, e.To)
		}
	}
	return seen
}

// Validate checks that the automaton is well formed.
func (c *CFA) Validate() error {
	if c.Entry == nil {
		return errors.Errorf("cfa %s: no entry node", c.Function)
	} else if _, ok := c.nodes[c.Entry.Number]; !ok {
		return errors.Errorf("cfa %s: entry node %s not in automaton", c.Function, c.Entry)
	}

	widths := make(map[string]uint)
	check := func(e *Edge, exprs ...dcpa.Expr) error {
		for _, v := range dcpa.FindVars(exprs...) {
			if v.IsInstantiated() {
				return errors.Errorf("cfa %s: %s: variable %s must not carry an ssa index", c.Function, e, v)
			}
			if w, ok := widths[v.Name]; ok && w != v.Width {
				return errors.Errorf("cfa %s: %s: variable %s used with widths %d and %d", c.Function, e, v.Name, w, v.Width)
			}
			widths[v.Name] = v.Width
		}
		return nil
	}

	for _, e := range c.Edges() {
		if _, ok := c.nodes[e.To.Number]; !ok {
			return errors.Errorf("cfa %s: %s: unknown target node", c.Function, e)
		}
		switch e.Kind {
		case AssumeEdge:
			if e.Cond == nil || dcpa.ExprWidth(e.Cond) != dcpa.WidthBool {
				return errors.Errorf("cfa %s: %s: assume requires a boolean condition", c.Function, e)
			} else if err := check(e, e.Cond); err != nil {
				return err
			}
		case AssignEdge:
			if e.Var == nil || e.Value == nil {
				return errors.Errorf("cfa %s: %s: assign requires a variable and a value", c.Function, e)
			} else if e.Var.Width != dcpa.ExprWidth(e.Value) {
				return errors.Errorf("cfa %s: %s: %s", c.Function, e, dcpa.ErrWidthMismatch)
			} else if err := check(e, e.Var, e.Value); err != nil {
				return err
			}
		case HavocEdge:
			if e.Var == nil {
				return errors.Errorf("cfa %s: %s: havoc requires a variable", c.Function, e)
			} else if err := check(e, e.Var); err != nil {
				return err
			}
		case AllocEdge:
			if !dcpa.IsValidVarName(e.Base) {
				return errors.Errorf("cfa %s: %s: invalid allocation base %q", c.Function, e, e.Base)
			}
		}
	}
	return nil
}
