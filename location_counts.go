package dcpa

import (
	"fmt"
	"strings"

	"github.com/benbjohnson/immutable"
)

// LocationCounts records how often an abstraction was computed at each
// CFA node along a path. The zero value is empty.
type LocationCounts struct {
	m *immutable.SortedMap[int, int]
}

// Get returns the count for node.
func (c LocationCounts) Get(node int) int {
	if c.m == nil {
		return 0
	}
	n, _ := c.m.Get(node)
	return n
}

// Len returns the number of nodes with a count.
func (c LocationCounts) Len() int {
	if c.m == nil {
		return 0
	}
	return c.m.Len()
}

// Set returns a copy of c with the count of node set to n.
func (c LocationCounts) Set(node, n int) LocationCounts {
	m := c.m
	if m == nil {
		m = immutable.NewSortedMap[int, int](nil)
	}
	return LocationCounts{m: m.Set(node, n)}
}

// Inc returns a copy of c with the count of node incremented.
func (c LocationCounts) Inc(node int) LocationCounts {
	return c.Set(node, c.Get(node)+1)
}

// Each calls fn for every node in ascending order.
func (c LocationCounts) Each(fn func(node, n int)) {
	if c.m == nil {
		return
	}
	itr := c.m.Iterator()
	for !itr.Done() {
		node, n, _ := itr.Next()
		fn(node, n)
	}
}

// Union returns the union of a and b. When both hold a count for the same
// node, the count from b is kept.
func (c LocationCounts) Union(b LocationCounts) LocationCounts {
	result := c
	b.Each(func(node, n int) {
		result = result.Set(node, n)
	})
	return result
}

// Equal returns true if both hold the same counts.
func (c LocationCounts) Equal(other LocationCounts) bool {
	if c.Len() != other.Len() {
		return false
	}
	equal := true
	c.Each(func(node, n int) {
		if other.m == nil {
			equal = false
			return
		}
		if o, ok := other.m.Get(node); !ok || o != n {
			equal = false
		}
	})
	return equal
}

func (c LocationCounts) String() string {
	var a []string
	c.Each(func(node, n int) { a = append(a, fmt.Sprintf("N%d:%d", node, n)) })
	return "{" + strings.Join(a, " ") + "}"
}
