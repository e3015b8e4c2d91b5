// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kpq

import (
	"cmp"

	"code.hybscloud.com/spin"
)

// Handle is a goroutine's view of a queue. A handle bundles the
// per-goroutine state the algorithms need — item and block pools, the
// local LSM, candidate snapshot buffers — so the hot paths run without
// any locking whatsoever.
//
// A handle must not be used from more than one goroutine without
// external synchronization. Create one handle per goroutine and reuse
// it; creation is cheap but not free.
type Handle[K cmp.Ordered, V any] struct {
	counters opCounters

	// Local LSM; nil for the shared-only variant.
	dist *distLSMLocal[K, V]

	// Shared LSM core and per-handle context; nil for the local-only
	// variant.
	core   *sharedCore[K, V]
	shared *sharedLSMLocal[K, V]

	// Shared-only staging: item pool plus a private singleton block
	// reused across inserts (insertBlock copies it).
	items   itemAllocator[K, V]
	scratch *block[K, V]
}

// Insert adds a key/value pair to the queue. Insert never fails:
// allocation exhaustion is outside the model and everything else is
// absorbed by the LSM cascade.
func (h *Handle[K, V]) Insert(key K, value V) {
	h.counters.addInsert()

	if h.dist != nil {
		h.dist.insert(key, value, h.core, h.shared)
		return
	}

	// Shared-only: publish a singleton block immediately.
	it := h.items.acquire()
	it.initialize(key, value)
	h.scratch.clear()
	h.scratch.insert(it, it.loadVersion())
	h.core.insertBlock(h.shared, h.scratch)
}

// DeleteMin extracts a value whose key is within the relaxation bound
// of the true minimum. Returns ErrWouldBlock when the queue was
// observed empty or the contention retry budget was exhausted; the two
// are indistinguishable and the caller simply retries if it knows items
// remain.
func (h *Handle[K, V]) DeleteMin() (V, error) {
	var v V
	var err error

	switch {
	case h.core == nil:
		v, err = h.deleteMinLocal()
	case h.dist == nil:
		v, err = h.core.deleteMin(h.shared)
	default:
		v, err = h.deleteMinCombined()
	}

	if err != nil {
		h.counters.addFailed()
		return v, err
	}
	h.counters.addDelete()
	return v, nil
}

func (h *Handle[K, V]) deleteMinLocal() (V, error) {
	v, ok := h.dist.deleteMin()
	if !ok {
		var zero V
		return zero, ErrWouldBlock
	}
	return v, nil
}

// deleteMinCombined races the local best against the shared snapshot's
// minimum and takes the smaller. A lost take on the shared side trims
// the winner's stale prefix before retrying so repeated losers stop
// rescanning dead entries.
func (h *Handle[K, V]) deleteMinCombined() (V, error) {
	var zero V
	sw := spin.Wait{}

	for attempt := 0; attempt < h.core.retries; attempt++ {
		local := h.dist.peek()
		ver, cur := h.core.load()
		global := cur.minimum()

		best := local
		fromShared := false
		if best.empty() || (!global.empty() && global.key < best.key) {
			if !global.empty() {
				best = global
				fromShared = true
			}
		}

		if best.empty() {
			if h.dist.spy() > 0 {
				continue
			}
			return zero, ErrWouldBlock
		}

		if v, ok := best.take(); ok {
			return v, nil
		}

		if fromShared {
			h.core.trimStale(h.shared, ver, cur)
		}
		sw.Once()
	}

	return zero, ErrWouldBlock
}

// Stats returns this handle's own operation counters.
func (h *Handle[K, V]) Stats() Stats {
	return h.counters.snapshot()
}
