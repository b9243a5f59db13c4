// Package dot exports block graphs in the Graphviz DOT language.
package dot

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/benbjohnson/dcpa/cfa"
	"github.com/goccy/go-graphviz"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const tmplGraph = `digraph {{printf "%q" .Title}} {
	label={{printf "%q" .Title}};
	labeljust="l";
	fontname="Arial";
	fontsize="14";
	rankdir="TB";
	node [shape="circle" fontname="Verdana" fontsize="10"];
	edge [fontname="Verdana" fontsize="9"];
{{range .Clusters}}
	subgraph {{printf "%q" .Name}} {
		label={{printf "%q" .ID}};
		{{- range .Nodes}}
		{{printf "%q" .ID}} [ {{.Attrs}} ];
		{{- end}}
	}
{{end}}
	{{- range .Edges}}
	{{printf "%q -> %q" .From .To}} [ {{.Attrs}} ];
	{{- end}}
}
`

var tmpl = template.Must(template.New("dot").Parse(tmplGraph))

// Graph is a DOT digraph with one cluster per block.
type Graph struct {
	Title    string
	Clusters []*Cluster
	Edges    []*Edge
}

// Cluster groups the nodes of a single block.
type Cluster struct {
	ID    string
	Nodes []*Node
}

// Name returns the subgraph name. Graphviz only draws subgraphs whose
// name starts with "cluster" as boxes.
func (c *Cluster) Name() string {
	return "cluster_" + c.ID
}

type Node struct {
	ID    string
	Attrs Attrs
}

type Edge struct {
	From  string
	To    string
	Attrs Attrs
}

// Attrs holds DOT attributes. They are written in key order.
type Attrs map[string]string

func (a Attrs) String() string {
	keys := maps.Keys(a)
	slices.Sort(keys)

	l := make([]string, len(keys))
	for i, k := range keys {
		l[i] = fmt.Sprintf("%s=%q", k, a[k])
	}
	return strings.Join(l, " ")
}

// NewGraph builds the DOT graph of g. Block entries are drawn with a thick
// border, error locations in red and edges between blocks in bold.
func NewGraph(g *cfa.BlockGraph) *Graph {
	graph := &Graph{Title: g.CFA.Function}
	for _, b := range g.Blocks {
		cluster := &Cluster{ID: b.ID}
		for _, n := range b.Nodes {
			node := &Node{ID: n.String(), Attrs: Attrs{"label": n.String()}}
			if n == b.Entry {
				node.Attrs["penwidth"] = "2"
			}
			if g.CFA.IsError(n) {
				node.Attrs["color"] = "red"
			}
			cluster.Nodes = append(cluster.Nodes, node)
		}
		graph.Clusters = append(graph.Clusters, cluster)

		for _, e := range b.Edges {
			graph.Edges = append(graph.Edges, newEdge(e))
		}
		for _, e := range b.Exits {
			edge := newEdge(e)
			edge.Attrs["style"] = "bold"
			graph.Edges = append(graph.Edges, edge)
		}
	}
	return graph
}

func newEdge(e *cfa.Edge) *Edge {
	return &Edge{From: e.From.String(), To: e.To.String(), Attrs: Attrs{"label": e.Operation()}}
}

// WriteTo writes the graph in the DOT language to w.
func (g *Graph) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, g); err != nil {
		return 0, err
	}
	return buf.WriteTo(w)
}

// Write writes the block graph g in the DOT language to w.
func Write(w io.Writer, g *cfa.BlockGraph) error {
	_, err := NewGraph(g).WriteTo(w)
	return err
}

// Render lays out the block graph with Graphviz and writes the image in the
// given format (e.g. "svg", "png") to w.
func Render(w io.Writer, g *cfa.BlockGraph, format string) error {
	var buf bytes.Buffer
	if err := Write(&buf, g); err != nil {
		return err
	}

	gv := graphviz.New()
	defer gv.Close()

	graph, err := graphviz.ParseBytes(buf.Bytes())
	if err != nil {
		return errors.Wrap(err, "parse dot")
	}
	defer graph.Close()

	if err := gv.Render(graph, graphviz.Format(format), w); err != nil {
		return errors.Wrapf(err, "render %s", format)
	}
	return nil
}
