//go:build z3

package config

import (
	"github.com/benbjohnson/dcpa"
	"github.com/benbjohnson/dcpa/z3"
)

func init() {
	backends[Z3Backend] = func(Solver) dcpa.Solver { return z3.NewSolver() }
}
