package clamp

import "github.com/benbjohnson/dcpa"

func Clamp(x int8) int8 {
	if x < 0 {
		x = 0
	}
	dcpa.Assert(x >= 0)
	return x
}

func Scale(x uint8) uint16 {
	y := uint16(x) << 2
	dcpa.Assume(x < 64)
	dcpa.Assert(y < 256)
	return y
}
