package dcpa

// The functions below mark nondeterminism and checks in Go programs that are
// translated to a CFA. They have no effect when executed normally.

// Assume restricts the analysis to paths on which cond holds.
func Assume(cond bool) {}

// Assert marks the paths on which cond does not hold as errors.
func Assert(cond bool) {}

// Bool returns an arbitrary boolean.
func Bool() bool { return false }

// Byte returns an arbitrary byte.
func Byte() byte { return 0 }

// Int returns an arbitrary signed integer of the target's integer width.
func Int() int { return 0 }

// Int8 returns an arbitrary 8-bit signed integer.
func Int8() int8 { return 0 }

// Int16 returns an arbitrary 16-bit signed integer.
func Int16() int16 { return 0 }

// Int32 returns an arbitrary 32-bit signed integer.
func Int32() int32 { return 0 }

// Int64 returns an arbitrary 64-bit signed integer.
func Int64() int64 { return 0 }

func Uint() uint     { return 0 }
func Uint8() uint8   { return 0 }
func Uint16() uint16 { return 0 }
func Uint32() uint32 { return 0 }
func Uint64() uint64 { return 0 }
