package dcpa

import (
	"fmt"
)

// CFANode is a location of a control-flow automaton.
type CFANode struct {
	Number   int
	Function string
}

// String returns the node as "N<number>".
func (n *CFANode) String() string {
	return fmt.Sprintf("N%d", n.Number)
}
