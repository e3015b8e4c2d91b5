// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kpq

import (
	"cmp"
	"sync"
)

// KLSM is the k-LSM relaxed priority queue: per-handle distributional
// LSMs absorbing inserts, spilling into one shared LSM once a merged
// block reaches ⌈(k+1)/2⌉ entries. DeleteMin takes the smaller of the
// handle's local best and the shared snapshot's minimum.
//
// A successful DeleteMin returns a key with at most ⌈k/2⌉ strictly
// smaller keys present at its linearization point (the item version
// CAS).
type KLSM[K cmp.Ordered, V any] struct {
	relaxation int
	core       sharedCore[K, V]

	mu      sync.Mutex
	handles []*Handle[K, V]
}

// NewKLSM creates a k-LSM queue with relaxation bound k.
// Panics if relaxation < 0.
func NewKLSM[K cmp.Ordered, V any](relaxation int) *KLSM[K, V] {
	if relaxation < 0 {
		panic("kpq: relaxation must be >= 0")
	}
	return newKLSM[K, V](&Options{relaxation: relaxation})
}

func newKLSM[K cmp.Ordered, V any](opts *Options) *KLSM[K, V] {
	q := &KLSM[K, V]{relaxation: opts.relaxation}
	q.core.init(opts.relaxation, defaultRetries(opts.retries))
	return q
}

// Handle returns a new goroutine-affine operation handle.
func (q *KLSM[K, V]) Handle() *Handle[K, V] {
	h := &Handle[K, V]{
		dist:   newDistLocal[K, V](q.relaxation),
		core:   &q.core,
		shared: newSharedLocal(&q.core),
	}
	q.mu.Lock()
	q.handles = append(q.handles, h)
	q.mu.Unlock()
	return h
}

// Relaxation returns the configured relaxation bound.
func (q *KLSM[K, V]) Relaxation() int { return q.relaxation }

// Stats sums the operation counters of every handle.
func (q *KLSM[K, V]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s Stats
	for _, h := range q.handles {
		s = s.Add(h.counters.snapshot())
	}
	return s
}

// SupportsConcurrency reports that the queue may be used from many
// goroutines through distinct handles.
func (q *KLSM[K, V]) SupportsConcurrency() bool { return true }
