// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kpq

import "cmp"

// Queue is the common interface of the relaxed priority queue variants.
//
// A Queue holds no per-goroutine state itself; all operations go through
// a [Handle] obtained from the queue. Handles are cheap to create and
// goroutine-affine: one handle per goroutine, created once, reused for
// the goroutine's lifetime.
//
// The interface intentionally excludes length because accurate counts in
// lock-free algorithms require expensive cross-core synchronization.
// Track counts in application logic, or read the additive [Stats]
// snapshot when an approximate view is enough.
//
// Example:
//
//	q := kpq.NewKLSM[uint32, uint32](256)
//
//	// Per worker goroutine:
//	h := q.Handle()
//	h.Insert(42, 42)
//	v, err := h.DeleteMin()
//	if err == nil {
//	    process(v)
//	}
type Queue[K cmp.Ordered, V any] interface {
	// Handle returns a new operation handle bound to the calling
	// goroutine. A handle must not be used from more than one goroutine
	// without external synchronization.
	Handle() *Handle[K, V]

	// Relaxation returns the configured relaxation bound k. A successful
	// DeleteMin may return any one of the ⌈k/2⌉ smallest keys present at
	// its linearization point.
	Relaxation() int

	// Stats returns the sum of the operation counters of every handle
	// created so far. The snapshot is additive but not atomic across
	// handles.
	Stats() Stats

	// SupportsConcurrency reports whether the queue may be operated from
	// multiple goroutines concurrently (through distinct handles).
	SupportsConcurrency() bool
}

// Compile-time interface checks for all queue variants.
var (
	_ Queue[int, int] = (*KLSM[int, int])(nil)
	_ Queue[int, int] = (*SharedLSM[int, int])(nil)
	_ Queue[int, int] = (*DistLSM[int, int])(nil)
)
