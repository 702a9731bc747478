package http

import "sync/atomic"

// sequenceTracker keeps the highest resolution sequence number observed so
// far. observe reports whether seq is current, advancing the high-water mark
// when it is. A sequence equal to the mark is accepted because retried
// requests can legitimately replay the latest response.
type sequenceTracker struct {
	high atomic.Uint64
}

func (t *sequenceTracker) observe(seq uint64) bool {
	for {
		cur := t.high.Load()
		if seq < cur {
			return false
		}
		if t.high.CompareAndSwap(cur, seq) {
			return true
		}
	}
}
