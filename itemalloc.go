// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kpq

import "cmp"

// initialSlabSize is the item count of an allocator's first slab.
// Slabs grow geometrically and are never freed.
const initialSlabSize = 64

// itemAllocator is a per-handle pool of items backed by fixed slabs.
//
// Acquire walks the slabs round-robin looking for a reusable cell
// (version even, i.e. never published or already taken). There is no
// cross-handle deallocation: a cell taken by another goroutine becomes
// reusable here simply by its version turning even.
//
// Slab backing arrays are append-only so item pointers stay stable for
// the allocator's lifetime.
type itemAllocator[K cmp.Ordered, V any] struct {
	slabs [][]item[K, V]

	// Scan cursor, persisted across acquires so reuse probing is O(1)
	// amortized instead of rescanning from the front.
	slab int
	next int
}

// acquire returns a reusable item cell, growing the pool if a full
// sweep finds none. The returned cell has an even version; the caller
// publishes it via initialize.
func (a *itemAllocator[K, V]) acquire() *item[K, V] {
	if len(a.slabs) == 0 {
		a.slabs = append(a.slabs, make([]item[K, V], initialSlabSize))
	}

	total := 0
	for _, s := range a.slabs {
		total += len(s)
	}

	for scanned := 0; scanned < total; scanned++ {
		if a.next >= len(a.slabs[a.slab]) {
			a.next = 0
			a.slab = (a.slab + 1) % len(a.slabs)
		}
		it := &a.slabs[a.slab][a.next]
		a.next++
		if it.reusable() {
			return it
		}
	}

	// Every cell is live: grow geometrically and hand out the first
	// cell of the fresh slab.
	grown := make([]item[K, V], total)
	a.slabs = append(a.slabs, grown)
	a.slab = len(a.slabs) - 1
	a.next = 1
	return &grown[0]
}
