package cfa

import (
	"io/ioutil"

	"github.com/benbjohnson/dcpa"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// programYAML is the file format of a program given as an edge list.
//
//	function: main
//	entry: 1
//	errors: [5]
//	edges:
//	  - {from: 1, to: 2, assign: {var: "i:32", value: "0:32"}}
//	  - {from: 2, to: 3, assume: "(slt i:32 10:32)"}
type programYAML struct {
	Function string     `yaml:"function"`
	Entry    int        `yaml:"entry"`
	Exit     int        `yaml:"exit"`
	Errors   []int      `yaml:"errors"`
	Edges    []edgeYAML `yaml:"edges"`
}

type edgeYAML struct {
	From   int         `yaml:"from"`
	To     int         `yaml:"to"`
	Assume string      `yaml:"assume"`
	Assign *assignYAML `yaml:"assign"`
	Havoc  string      `yaml:"havoc"`
	Alloc  string      `yaml:"alloc"`
	Label  string      `yaml:"label"`
}

type assignYAML struct {
	Var   string `yaml:"var"`
	Value string `yaml:"value"`
}

// LoadYAML reads a program from a YAML file.
func LoadYAML(path string) (*CFA, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := ParseYAML(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return c, nil
}

// ParseYAML parses a program from its YAML edge list.
func ParseYAML(data []byte) (*CFA, error) {
	var prog programYAML
	if err := yaml.UnmarshalStrict(data, &prog); err != nil {
		return nil, err
	}

	function := prog.Function
	if function == "" {
		function = "main"
	}
	c := New(function)
	if prog.Entry <= 0 {
		return nil, errors.New("entry node required")
	}
	c.Entry = c.NodeAt(prog.Entry)
	if prog.Exit > 0 {
		c.Exit = c.NodeAt(prog.Exit)
	}
	for _, n := range prog.Errors {
		c.MarkError(c.NodeAt(n))
	}

	for i, ey := range prog.Edges {
		e, err := parseEdge(c, ey)
		if err != nil {
			return nil, errors.Wrapf(err, "edge %d (%d -> %d)", i, ey.From, ey.To)
		}
		c.AddEdge(e)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func parseEdge(c *CFA, ey edgeYAML) (*Edge, error) {
	if ey.From <= 0 || ey.To <= 0 {
		return nil, errors.New("node numbers must be positive")
	}
	e := &Edge{From: c.NodeAt(ey.From), To: c.NodeAt(ey.To), Label: ey.Label}

	var n int
	if ey.Assume != "" {
		n++
		cond, err := dcpa.ParseExpr(ey.Assume)
		if err != nil {
			return nil, err
		}
		e.Kind, e.Cond = AssumeEdge, cond
	}
	if ey.Assign != nil {
		n++
		v, err := parseVar(ey.Assign.Var)
		if err != nil {
			return nil, err
		}
		value, err := dcpa.ParseExpr(ey.Assign.Value)
		if err != nil {
			return nil, err
		}
		e.Kind, e.Var, e.Value = AssignEdge, v, value
	}
	if ey.Havoc != "" {
		n++
		v, err := parseVar(ey.Havoc)
		if err != nil {
			return nil, err
		}
		e.Kind, e.Var = HavocEdge, v
	}
	if ey.Alloc != "" {
		n++
		e.Kind, e.Base = AllocEdge, ey.Alloc
	}

	if n > 1 {
		return nil, errors.New("at most one of assume, assign, havoc and alloc allowed")
	}
	return e, nil
}

func parseVar(s string) (*dcpa.VarExpr, error) {
	expr, err := dcpa.ParseExpr(s)
	if err != nil {
		return nil, err
	}
	v, ok := expr.(*dcpa.VarExpr)
	if !ok {
		return nil, errors.Errorf("expected variable, got %s", expr)
	}
	return v, nil
}
