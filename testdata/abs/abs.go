package abs

import "github.com/benbjohnson/dcpa"

// Abs overflows for the smallest int8.
func Abs(x int8) int8 {
	if x < 0 {
		x = -x
	}
	dcpa.Assert(x >= 0)
	return x
}
