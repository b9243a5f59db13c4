package count

import "github.com/benbjohnson/dcpa"

func Count(n uint8) uint8 {
	var i, j uint8
	for i < n {
		i, j = i+1, i
	}
	dcpa.Assert(j <= i)
	return i
}

func Input() int32 {
	x := dcpa.Int32()
	if x > 10 {
		panic("too large")
	}
	return x
}
