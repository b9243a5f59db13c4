package dot_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/benbjohnson/dcpa/cfa"
	"github.com/benbjohnson/dcpa/dot"
	"github.com/sebdah/goldie/v2"
)

// MustLoadBlockGraph loads and decomposes a program from the shared testdata directory.
func MustLoadBlockGraph(tb testing.TB, name string) *cfa.BlockGraph {
	tb.Helper()
	c, err := cfa.LoadYAML("../testdata/" + name)
	if err != nil {
		tb.Fatal(err)
	}
	g, err := cfa.Decompose(c)
	if err != nil {
		tb.Fatal(err)
	}
	return g
}

func TestWrite(t *testing.T) {
	t.Run("Loop", func(t *testing.T) {
		var buf bytes.Buffer
		if err := dot.Write(&buf, MustLoadBlockGraph(t, "safe_loop.yaml")); err != nil {
			t.Fatal(err)
		}
		goldie.New(t).Assert(t, "safe_loop", buf.Bytes())
	})

	// Edges inside a block are drawn plain.
	t.Run("Chain", func(t *testing.T) {
		graph := dot.NewGraph(MustLoadBlockGraph(t, "heap.yaml"))
		if n := len(graph.Clusters); n != 3 {
			t.Fatalf("unexpected clusters: %d", n)
		} else if n := len(graph.Clusters[0].Nodes); n != 4 {
			t.Fatalf("unexpected nodes: %d", n)
		}

		var bold int
		for _, e := range graph.Edges {
			if e.Attrs["style"] == "bold" {
				bold++
			}
		}
		if got, want := len(graph.Edges), 5; got != want {
			t.Fatalf("edges=%d, want %d", got, want)
		} else if bold != 2 {
			t.Fatalf("unexpected bold edges: %d", bold)
		} else if got, want := graph.Edges[0].Attrs.String(), `label="alloc heap0"`; got != want {
			t.Fatalf("attrs=%s, want %s", got, want)
		}
	})
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	if err := dot.Render(&buf, MustLoadBlockGraph(t, "safe_loop.yaml"), "svg"); err != nil {
		t.Fatal(err)
	} else if !strings.Contains(buf.String(), "<svg") {
		t.Fatalf("unexpected output: %s", buf.String())
	} else if !strings.Contains(buf.String(), "cluster_B5") {
		t.Fatal("expected block cluster")
	}
}
