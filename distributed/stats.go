package distributed

import "sync/atomic"

// Stats counts operator invocations and fail-open defaults. Counters are
// updated atomically so a Stats value may be shared by several workers.
type Stats struct {
	SerializeN   int64
	DeserializeN int64
	CombineN     int64
	WidenN       int64
	ProceedStopN int64

	MissingFormulaN   int64
	MalformedFormulaN int64
	MissingSSAN       int64
	MalformedSSAN     int64
	MissingPTSN       int64
	MalformedPTSN     int64
}

func (s *Stats) inc(n *int64) {
	if s != nil {
		atomic.AddInt64(n, 1)
	}
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Stats {
	return Stats{
		SerializeN:        atomic.LoadInt64(&s.SerializeN),
		DeserializeN:      atomic.LoadInt64(&s.DeserializeN),
		CombineN:          atomic.LoadInt64(&s.CombineN),
		WidenN:            atomic.LoadInt64(&s.WidenN),
		ProceedStopN:      atomic.LoadInt64(&s.ProceedStopN),
		MissingFormulaN:   atomic.LoadInt64(&s.MissingFormulaN),
		MalformedFormulaN: atomic.LoadInt64(&s.MalformedFormulaN),
		MissingSSAN:       atomic.LoadInt64(&s.MissingSSAN),
		MalformedSSAN:     atomic.LoadInt64(&s.MalformedSSAN),
		MissingPTSN:       atomic.LoadInt64(&s.MissingPTSN),
		MalformedPTSN:     atomic.LoadInt64(&s.MalformedPTSN),
	}
}

// FailOpenN returns the number of malformed or missing fields that were
// replaced by their defaults.
func (s Stats) FailOpenN() int64 {
	return s.MissingFormulaN + s.MalformedFormulaN + s.MissingSSAN + s.MalformedSSAN + s.MissingPTSN + s.MalformedPTSN
}
