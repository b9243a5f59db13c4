package cfa_test

import (
	"strings"
	"testing"

	"github.com/benbjohnson/dcpa/cfa"
)

// MustLoadFunction translates a function of a testdata package. Fatal on error.
func MustLoadFunction(tb testing.TB, pkg, name string) *cfa.CFA {
	tb.Helper()
	c, err := cfa.LoadFunction("../testdata/"+pkg, name)
	if err != nil {
		tb.Fatal(err)
	}
	return c
}

// CountEdges returns the number of edges of c matching fn.
func CountEdges(c *cfa.CFA, fn func(e *cfa.Edge) bool) int {
	var n int
	for _, e := range c.Edges() {
		if fn(e) {
			n++
		}
	}
	return n
}

func TestFromFunction(t *testing.T) {
	t.Run("Branch", func(t *testing.T) {
		c := MustLoadFunction(t, "clamp", "Clamp")
		if c.Function != "Clamp" {
			t.Fatalf("unexpected function: %s", c.Function)
		} else if c.Exit == nil {
			t.Fatal("expected exit node")
		} else if n := len(c.ErrorNodes()); n != 1 {
			t.Fatalf("unexpected error node count: %d", n)
		} else if err := c.Validate(); err != nil {
			t.Fatal(err)
		}

		// The parameter is read as an input, locals are prefixed.
		if n := CountEdges(c, func(e *cfa.Edge) bool { return e.Kind == cfa.AssignEdge && e.Value.String() == "x:8" }); n != 1 {
			t.Fatalf("unexpected phi assignments of x: %d", n)
		}
		if n := CountEdges(c, func(e *cfa.Edge) bool {
			return e.Kind == cfa.AssignEdge && !strings.HasPrefix(e.Var.Name, "Clamp.")
		}); n != 0 {
			t.Fatalf("unexpected assignments to unprefixed variables: %d", n)
		}

		// The assertion branches to the error location on its negation.
		errNode := c.ErrorNodes()[0]
		if in := c.In(errNode); len(in) != 1 {
			t.Fatalf("unexpected error edges: %v", in)
		} else if in[0].Kind != cfa.AssumeEdge || !strings.HasPrefix(in[0].Cond.String(), "(not ") {
			t.Fatalf("unexpected error edge: %s", in[0])
		}
	})

	t.Run("Assume", func(t *testing.T) {
		c := MustLoadFunction(t, "clamp", "Scale")
		if n := CountEdges(c, func(e *cfa.Edge) bool {
			return e.Kind == cfa.AssumeEdge && strings.Contains(e.Label, "Assume")
		}); n != 1 {
			t.Fatalf("unexpected assume edges: %d", n)
		}
		if n := CountEdges(c, func(e *cfa.Edge) bool {
			return e.Kind == cfa.AssignEdge && strings.Contains(e.Value.String(), "(zext x:8 16)")
		}); n != 1 {
			t.Fatalf("unexpected conversions: %d", n)
		}
	})

	// Phis are assigned in parallel through temporaries.
	t.Run("Phi", func(t *testing.T) {
		c := MustLoadFunction(t, "count", "Count")
		if n := CountEdges(c, func(e *cfa.Edge) bool {
			return e.Kind == cfa.AssignEdge && strings.HasSuffix(e.Var.Name, "$")
		}); n != 4 {
			t.Fatalf("unexpected temporaries: %d", n)
		}
		if n := CountEdges(c, func(e *cfa.Edge) bool {
			return e.Kind == cfa.AssignEdge && strings.HasSuffix(e.Value.String(), "$:8")
		}); n != 4 {
			t.Fatalf("unexpected copies: %d", n)
		}
	})

	t.Run("HavocAndPanic", func(t *testing.T) {
		c := MustLoadFunction(t, "count", "Input")
		if n := CountEdges(c, func(e *cfa.Edge) bool {
			return e.Kind == cfa.HavocEdge && e.Var.Width == 32
		}); n != 1 {
			t.Fatalf("unexpected havoc edges: %d", n)
		}
		if n := len(c.ErrorNodes()); n != 1 {
			t.Fatalf("unexpected error node count: %d", n)
		} else if in := c.In(c.ErrorNodes()[0]); len(in) != 1 || in[0].Kind != cfa.BlankEdge {
			t.Fatalf("unexpected error edges: %v", in)
		}
	})

	t.Run("ErrUnsupported", func(t *testing.T) {
		if _, err := cfa.LoadFunction("../testdata/unsupported", "Sum"); err == nil {
			t.Fatal("expected error")
		} else if !strings.Contains(err.Error(), "unsupported") {
			t.Fatalf("unexpected error: %s", err)
		}
	})

	t.Run("ErrNotFound", func(t *testing.T) {
		if _, err := cfa.LoadFunction("../testdata/clamp", "Missing"); err == nil || !strings.Contains(err.Error(), `function "Missing" not found`) {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
