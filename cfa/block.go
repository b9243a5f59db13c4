package cfa

import (
	"fmt"

	"github.com/benbjohnson/dcpa"
	"github.com/pkg/errors"
	uf "github.com/spakin/disjoint"
)

// Block is a chain of CFA nodes analyzed by a single worker. Edges[i] leads
// from Nodes[i] to Nodes[i+1]; Exits lead from the last node to the entries
// of successor blocks.
type Block struct {
	ID    string
	Entry *dcpa.CFANode
	Nodes []*dcpa.CFANode
	Edges []*Edge
	Exits []*Edge

	Preds []*Block
	Succs []*Block

	// Positions in Nodes of error locations.
	Errors []int
}

func (b *Block) String() string {
	return fmt.Sprintf("%s[%s..%s]", b.ID, b.Entry, b.Nodes[len(b.Nodes)-1])
}

// PathTo returns the path formula from the block entry to Nodes[i], built
// from an empty SSA table.
func (b *Block) PathTo(m *dcpa.PathFormulaManager, i int) dcpa.PathFormula {
	pf := m.MakeEmpty()
	for _, e := range b.Edges[:i] {
		pf = e.Apply(m, pf)
	}
	return pf
}

// PathToSucc returns the path formula from the block entry into succ,
// joining every exit edge that leads there.
func (b *Block) PathToSucc(m *dcpa.PathFormulaManager, succ *Block) dcpa.PathFormula {
	chain := b.PathTo(m, len(b.Edges))

	var pf *dcpa.PathFormula
	for _, e := range b.Exits {
		if e.To.Number != succ.Entry.Number {
			continue
		}
		next := e.Apply(m, chain)
		if pf == nil {
			pf = &next
		} else {
			joined := m.MakeOr(*pf, next)
			pf = &joined
		}
	}
	if pf == nil {
		dcpa.Violate("path to successor", b.ID, "%s is not a successor", succ.ID)
	}
	return *pf
}

// BlockGraph is a decomposition of a CFA into blocks.
type BlockGraph struct {
	CFA    *CFA
	Root   *Block
	Blocks []*Block

	byEntry map[int]*Block
}

// BlockAt returns the block starting at the given node.
func (g *BlockGraph) BlockAt(entry int) (*Block, bool) {
	b, ok := g.byEntry[entry]
	return b, ok
}

// Block returns the block with the given id.
func (g *BlockGraph) Block(id string) (*Block, bool) {
	for _, b := range g.Blocks {
		if b.ID == id {
			return b, true
		}
	}
	return nil, false
}

// Decompose splits the reachable part of c into blocks. A block starts at
// the program entry, at every node with more than one incoming edge and at
// every target of a branch. Error locations end their block.
func Decompose(c *CFA) (*BlockGraph, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	reachable := c.Reachable()

	isEntry := func(n *dcpa.CFANode) bool {
		if n.Number == c.Entry.Number {
			return true
		}
		var in int
		for _, e := range c.In(n) {
			if reachable[e.From.Number] && !c.IsError(e.From) {
				in++
			}
		}
		if in != 1 {
			return true
		}
		for _, e := range c.In(n) {
			if reachable[e.From.Number] && !c.IsError(e.From) && len(c.Out(e.From)) > 1 {
				return true
			}
		}
		return false
	}

	// Group every node with its unique predecessor unless it starts a block.
	elements := make(map[int]*uf.Element)
	for _, n := range c.Nodes() {
		if reachable[n.Number] {
			elements[n.Number] = uf.NewElement()
		}
	}
	for _, n := range c.Nodes() {
		if !reachable[n.Number] || c.IsError(n) {
			continue
		}
		for _, e := range c.Out(n) {
			if !isEntry(e.To) {
				uf.Union(elements[n.Number], elements[e.To.Number])
			}
		}
	}

	g := &BlockGraph{CFA: c, byEntry: make(map[int]*Block)}
	byRep := make(map[*uf.Element]*Block)
	for _, n := range c.Nodes() {
		if !reachable[n.Number] || !isEntry(n) {
			continue
		}
		rep := elements[n.Number].Find()
		if _, ok := byRep[rep]; ok {
			return nil, errors.Errorf("cfa %s: block of %s has two entries", c.Function, n)
		}
		b := &Block{ID: fmt.Sprintf("B%d", n.Number), Entry: n}
		byRep[rep] = b
		g.byEntry[n.Number] = b
		g.Blocks = append(g.Blocks, b)
	}

	// Walk each chain from its entry.
	for _, b := range g.Blocks {
		n := b.Entry
		for {
			b.Nodes = append(b.Nodes, n)
			if c.IsError(n) {
				b.Errors = append(b.Errors, len(b.Nodes)-1)
				break
			}
			out := c.Out(n)
			if len(out) == 1 && !isEntry(out[0].To) {
				b.Edges = append(b.Edges, out[0])
				n = out[0].To
				continue
			}
			b.Exits = append(b.Exits, out...)
			break
		}
	}

	// Connect blocks.
	for _, b := range g.Blocks {
		seen := make(map[string]bool)
		for _, e := range b.Exits {
			succ := g.byEntry[e.To.Number]
			if seen[succ.ID] {
				continue
			}
			seen[succ.ID] = true
			b.Succs = append(b.Succs, succ)
			succ.Preds = append(succ.Preds, b)
		}
	}

	g.Root = g.byEntry[c.Entry.Number]
	return g, nil
}
