// Package z3 implements dcpa.Solver on top of the Z3 C library.
// Build with the "z3" tag and libz3 installed to enable it.
package z3
