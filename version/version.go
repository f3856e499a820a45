// Package version tracks the storage engine's write horizon: the highest
// sequence number known to be durable. The transaction-log iterator reads
// this value to decide how far it is allowed to read and when it has caught
// up to the writer.
package version

import "sync/atomic"

// Set exposes a monotonically non-decreasing view of the last durable
// sequence number. It is safe for concurrent use: a single writer advances
// it as batches commit, while any number of iterators read it without
// locking.
type Set struct {
	lastSequence atomic.Uint64
}

// New creates a Set whose last sequence starts at initial.
func New(initial uint64) *Set {
	s := &Set{}
	s.lastSequence.Store(initial)
	return s
}

// LastSequence returns the highest sequence number known to be durable.
func (s *Set) LastSequence() uint64 {
	return s.lastSequence.Load()
}

// Advance sets the last sequence number to seq if seq is greater than the
// current value. It never moves the horizon backwards: a caller advancing
// with a stale value is a no-op, not a regression.
func (s *Set) Advance(seq uint64) {
	for {
		cur := s.lastSequence.Load()
		if seq <= cur {
			return
		}
		if s.lastSequence.CompareAndSwap(cur, seq) {
			return
		}
	}
}
