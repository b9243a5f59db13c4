package dcpa

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/benbjohnson/immutable"
)

// SSAEntry is the current index and bit width of one variable.
type SSAEntry struct {
	Index int
	Width uint
}

// SSAMap is an immutable table from variable name to its latest SSA index.
// The zero value is an empty table.
type SSAMap struct {
	m *immutable.SortedMap[string, SSAEntry]
}

// NewSSAMap returns an empty table.
func NewSSAMap() SSAMap {
	return SSAMap{m: immutable.NewSortedMap[string, SSAEntry](nil)}
}

func (s SSAMap) sorted() *immutable.SortedMap[string, SSAEntry] {
	if s.m == nil {
		return immutable.NewSortedMap[string, SSAEntry](nil)
	}
	return s.m
}

// Len returns the number of variables in the table.
func (s SSAMap) Len() int {
	if s.m == nil {
		return 0
	}
	return s.m.Len()
}

// Get returns the entry for name.
func (s SSAMap) Get(name string) (SSAEntry, bool) {
	if s.m == nil {
		return SSAEntry{}, false
	}
	return s.m.Get(name)
}

// Index returns the index of name, or NoIndex if the variable is absent.
func (s SSAMap) Index(name string) int {
	if e, ok := s.Get(name); ok {
		return e.Index
	}
	return NoIndex
}

// Set returns a copy of the table with name set to index.
func (s SSAMap) Set(name string, index int, width uint) SSAMap {
	assert(index > 0, "ssa index must be positive: %s@%d", name, index)
	return SSAMap{m: s.sorted().Set(name, SSAEntry{Index: index, Width: width})}
}

// Each calls fn for every variable in name order.
func (s SSAMap) Each(fn func(name string, e SSAEntry)) {
	if s.m == nil {
		return
	}
	itr := s.m.Iterator()
	for !itr.Done() {
		name, e, _ := itr.Next()
		fn(name, e)
	}
}

// Names returns the variable names in sorted order.
func (s SSAMap) Names() []string {
	a := make([]string, 0, s.Len())
	s.Each(func(name string, _ SSAEntry) { a = append(a, name) })
	return a
}

// Equal returns true if both tables hold the same entries.
func (s SSAMap) Equal(other SSAMap) bool {
	if s.Len() != other.Len() {
		return false
	}
	equal := true
	s.Each(func(name string, e SSAEntry) {
		if o, ok := other.Get(name); !ok || o != e {
			equal = false
		}
	})
	return equal
}

// String returns the wire form: space separated "name@index:width" entries.
func (s SSAMap) String() string {
	var buf strings.Builder
	s.Each(func(name string, e SSAEntry) {
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		fmt.Fprintf(&buf, "%s@%d:%d", name, e.Index, e.Width)
	})
	return buf.String()
}

// ParseSSAMap parses the form returned by SSAMap.String().
func ParseSSAMap(text string) (SSAMap, error) {
	s := NewSSAMap()
	for _, field := range strings.Fields(text) {
		at, colon := strings.IndexByte(field, '@'), strings.LastIndexByte(field, ':')
		if at <= 0 || colon < at {
			return SSAMap{}, fmt.Errorf("invalid ssa entry %q", field)
		}
		name := field[:at]
		if !IsValidVarName(name) {
			return SSAMap{}, fmt.Errorf("invalid ssa variable %q", name)
		}
		index, err := strconv.Atoi(field[at+1 : colon])
		if err != nil || index <= 0 {
			return SSAMap{}, fmt.Errorf("invalid ssa index %q", field)
		}
		width, err := parseWidth(field[colon+1:])
		if err != nil {
			return SSAMap{}, fmt.Errorf("invalid ssa entry %q: %s", field, err)
		}
		if _, ok := s.Get(name); ok {
			return SSAMap{}, fmt.Errorf("duplicate ssa variable %q", name)
		}
		s = s.Set(name, index, width)
	}
	return s, nil
}

// MergeSSAMaps returns the pointwise maximum of a and b. A variable present
// in either table is present in the result.
func MergeSSAMaps(a, b SSAMap) SSAMap {
	if a.Len() < b.Len() {
		a, b = b, a
	}
	result := a
	b.Each(func(name string, e SSAEntry) {
		existing, ok := result.Get(name)
		if !ok {
			result = result.Set(name, e.Index, e.Width)
			return
		}
		if existing.Width != e.Width {
			Violate("merge ssa", "", "width conflict for %s: %d != %d", name, existing.Width, e.Width)
		}
		if e.Index > existing.Index {
			result = result.Set(name, e.Index, e.Width)
		}
	})
	return result
}

// SSAMapBuilder accumulates index updates on top of a base table.
type SSAMapBuilder struct {
	ssa SSAMap
}

// NewSSAMapBuilder returns a builder starting from base.
func NewSSAMapBuilder(base SSAMap) *SSAMapBuilder {
	return &SSAMapBuilder{ssa: base}
}

// Set sets the index of name. Indices never decrease.
func (b *SSAMapBuilder) Set(name string, index int, width uint) {
	if e, ok := b.ssa.Get(name); ok {
		assert(index >= e.Index, "ssa index decreased for %s: %d < %d", name, index, e.Index)
	}
	b.ssa = b.ssa.Set(name, index, width)
}

// Fresh assigns the next index to name and returns it.
func (b *SSAMapBuilder) Fresh(name string, width uint) int {
	index := 1
	if e, ok := b.ssa.Get(name); ok {
		index = e.Index + 1
	}
	b.ssa = b.ssa.Set(name, index, width)
	return index
}

// Build returns the resulting table.
func (b *SSAMapBuilder) Build() SSAMap {
	return b.ssa
}
