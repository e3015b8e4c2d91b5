// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kpq

import (
	"cmp"
	"sync"
)

// distLSMLocal is one handle's log-structured merge queue: an ordered
// sequence of blocks with decreasing size classes, a memoized best
// entry, and private item/block pools. Everything here is single
// goroutine; other handles only ever touch the items inside (via take),
// never the block list.
type distLSMLocal[K cmp.Ordered, V any] struct {
	relaxation int

	alloc   itemAllocator[K, V]
	storage blockStorage[K, V]

	blocks     []*block[K, V]
	cachedBest peeked[K, V]
}

func newDistLocal[K cmp.Ordered, V any](relaxation int) *distLSMLocal[K, V] {
	return &distLSMLocal[K, V]{relaxation: relaxation}
}

// insert allocates an item and places it into the LSM. With a non-nil
// core, blocks grown past the relaxation spill bound are handed to the
// shared LSM instead of staying local.
func (d *distLSMLocal[K, V]) insert(key K, value V, core *sharedCore[K, V], sl *sharedLSMLocal[K, V]) {
	it := d.alloc.acquire()
	it.initialize(key, value)
	d.insertItem(it, it.loadVersion(), core, sl)
}

func (d *distLSMLocal[K, V]) insertItem(it *item[K, V], version uint64, core *sharedCore[K, V], sl *sharedLSMLocal[K, V]) {
	key := it.key

	if d.cachedBest.empty() || key < d.cachedBest.key {
		d.cachedBest = peeked[K, V]{key: key, it: it, version: version}
	} else if d.cachedBest.taken() {
		d.cachedBest.it = nil
	}

	// Tail-append fast path: monotone insertion streams stay in the
	// current tail block without any merging.
	if n := len(d.blocks); n > 0 {
		tail := d.blocks[n-1]
		if tail.last < tail.capacity() {
			if tailKey, ok := tail.peekTail(); ok && tailKey <= key {
				tail.insertTail(it, version)
				return
			}
		}
	}

	nb := d.storage.getBlock(0)
	nb.insert(it, version)
	d.mergeInsert(nb, core, sl)
}

// mergeInsert runs the LSM cascade: while the trailing block has the
// same capacity as the incoming one, combine them. The merged block
// moves up a size class only when both inputs justify the larger size,
// which keeps heavy extraction from breeding huge sparse blocks. A
// merged block reaching ⌈(k+1)/2⌉ live entries spills into the shared
// LSM when one is attached.
func (d *distLSMLocal[K, V]) mergeInsert(nb *block[K, V], core *sharedCore[K, V], sl *sharedLSMLocal[K, V]) {
	old := d.blocks
	oldLen := len(old)
	otherIx := oldLen - 1

	ins := nb
	var del *block[K, V]

	for otherIx >= 0 && ins.capacity() == old[otherIx].capacity() {
		other := old[otherIx]
		mergedPow := ins.pow2
		if ins.size()+other.size() > ins.capacity() {
			mergedPow++
		}
		mb := d.storage.getBlock(mergedPow)
		mb.merge(ins, other)

		ins.setUnused()
		ins = mb
		del = other
		otherIx--
	}

	if core != nil && ins.size() >= (d.relaxation+2)/2 {
		// Exceeds the relaxation bound: publish globally and drop the
		// local copy along with the merged-away trailing blocks.
		core.insertBlock(sl, ins)
		ins.setUnused()
		d.blocks = old[:otherIx+1]
	} else {
		d.blocks = append(old[:otherIx+1], ins)
	}

	if del != nil {
		del.setUnused()
	}
	for i := len(d.blocks); i < oldLen; i++ {
		old[i].setUnused()
	}
}

// deleteMin extracts the memoized minimum. A failed version CAS counts
// as a miss; the caller decides whether to retry.
func (d *distLSMLocal[K, V]) deleteMin() (V, bool) {
	var zero V

	best := d.peek()
	if best.empty() && d.spy() > 0 {
		best = d.peek() // Retry once after a successful spy.
	}
	if best.empty() {
		return zero, false
	}
	return best.take()
}

// peek returns the minimum live entry across all blocks, shrinking
// mostly-stale blocks along the way: a block at half capacity or less
// is compacted one size class down and merged with its right neighbor
// when the classes collide. This bounds internal fragmentation under
// heavy extraction.
func (d *distLSMLocal[K, V]) peek() peeked[K, V] {
	// Short-circuit while the memoized entry is still live.
	if !d.cachedBest.empty() && !d.cachedBest.taken() {
		return d.cachedBest
	}

	var best peeked[K, V]
	ix := 0
outer:
	for ix < len(d.blocks) {
		b := d.blocks[ix]
		cand := b.peek()

		for b.size() <= b.capacity()/2 {
			if b.size() == 0 {
				d.blocks = append(d.blocks[:ix], d.blocks[ix+1:]...)
				b.setUnused()
				continue outer
			}

			// Shrink one size class down.
			nb := d.storage.getBlock(b.pow2 - 1)
			nb.copy(b)
			b.setUnused()

			// Merge with the right neighbor if the classes now collide.
			if ix+1 < len(d.blocks) && nb.capacity() == d.blocks[ix+1].capacity() {
				next := d.blocks[ix+1]
				mb := d.storage.getBlock(nb.pow2 + 1)
				mb.merge(nb, next)
				next.setUnused()
				nb.setUnused()
				nb = mb
				d.blocks = append(d.blocks[:ix+1], d.blocks[ix+2:]...)
			}

			d.blocks[ix] = nb
			b = nb
			cand = b.peek()
		}

		if best.empty() || (!cand.empty() && cand.key < best.key) {
			best = cand
		}
		ix++
	}

	d.cachedBest = best
	return best
}

// spy would copy a random peer's blocks into this LSM so a drained
// handle can keep serving deletes. Disabled: a safe cross-handle block
// snapshot protocol does not exist yet, and a torn copy would break the
// per-block sort invariant. Returns the number of spied items (0).
func (d *distLSMLocal[K, V]) spy() int {
	return 0
}

// DistLSM is the local-only relaxed priority queue variant: every
// handle owns a private LSM and DeleteMin observes only the calling
// handle's items. It is the LocalOnly() product of the builder.
//
// Use it when work never migrates between goroutines; with multiple
// handles the relaxation is unbounded with respect to other handles'
// items.
type DistLSM[K cmp.Ordered, V any] struct {
	relaxation int

	mu      sync.Mutex
	handles []*Handle[K, V]
}

// NewDistLSM creates a local-only queue.
func NewDistLSM[K cmp.Ordered, V any]() *DistLSM[K, V] {
	return newDistLSM[K, V](&Options{})
}

func newDistLSM[K cmp.Ordered, V any](opts *Options) *DistLSM[K, V] {
	return &DistLSM[K, V]{relaxation: opts.relaxation}
}

// Handle returns a new goroutine-affine operation handle.
func (q *DistLSM[K, V]) Handle() *Handle[K, V] {
	h := &Handle[K, V]{dist: newDistLocal[K, V](q.relaxation)}
	q.mu.Lock()
	q.handles = append(q.handles, h)
	q.mu.Unlock()
	return h
}

// Relaxation returns the configured relaxation bound.
func (q *DistLSM[K, V]) Relaxation() int { return q.relaxation }

// Stats sums the operation counters of every handle.
func (q *DistLSM[K, V]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s Stats
	for _, h := range q.handles {
		s = s.Add(h.counters.snapshot())
	}
	return s
}

// SupportsConcurrency reports that distinct handles may be used from
// distinct goroutines concurrently.
func (q *DistLSM[K, V]) SupportsConcurrency() bool { return true }
