// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kpq

import "cmp"

// itemPair couples an item reference with the version under which the
// block owns it and a snapshot of the item's key. The pair is stale
// once the item's current version no longer matches: the item was taken
// (or recycled) elsewhere. The key snapshot keeps sort order and tail
// bounds meaningful even after the referenced cell is recycled under a
// different key. Stale slots are skipped on reads and dropped on
// rebuilds; they are never reclaimed in place.
type itemPair[K cmp.Ordered, V any] struct {
	key     K
	it      *item[K, V]
	version uint64
}

// owned reports whether the pair still owns its item.
func (p itemPair[K, V]) owned() bool {
	return p.it != nil && p.it.loadVersion() == p.version
}

// peeked describes a candidate minimum observed in a block. A nil item
// denotes an empty observation.
type peeked[K cmp.Ordered, V any] struct {
	key     K
	it      *item[K, V]
	index   int
	version uint64
}

// empty reports whether the observation found no live entry.
func (p peeked[K, V]) empty() bool { return p.it == nil }

// taken reports whether the observed entry has since been extracted by
// another handle.
func (p peeked[K, V]) taken() bool { return p.it.loadVersion() != p.version }

// take attempts to extract the observed entry.
func (p peeked[K, V]) take() (V, bool) {
	return p.it.take(p.version)
}

// block is a sorted array of item pairs with capacity exactly 2^pow2.
//
// The live window is pairs[first:last). Owned entries within the window
// are sorted by key (non-decreasing); stale entries keep their slot and
// their (still sorted) key until the block is rebuilt. last advances
// only through the owning handle; first advances only through the
// owning handle's peek. Blocks published into a shared block array are
// read-only: concurrent readers use the non-advancing scans.
type block[K cmp.Ordered, V any] struct {
	pairs []itemPair[K, V]

	first int
	last  int

	pow2 int

	// used marks the block as checked out of its pool.
	used bool

	// tag is the version of the block array this block was last
	// published in. Owner-only; see blockPool.
	tag uint64
}

func newBlock[K cmp.Ordered, V any](pow2 int) *block[K, V] {
	return &block[K, V]{
		pairs: make([]itemPair[K, V], 1<<pow2),
		pow2:  pow2,
	}
}

func (b *block[K, V]) capacity() int { return len(b.pairs) }

// size counts entries in the live window, including entries that have
// gone stale since they were written. Other handles take items without
// the owner noticing, so size is an upper bound on live entries.
func (b *block[K, V]) size() int { return b.last - b.first }

// insert appends an item to the block. Precondition: the block is empty
// or key >= every key already present (sorted append).
func (b *block[K, V]) insert(it *item[K, V], version uint64) {
	b.pairs[b.last] = itemPair[K, V]{key: it.key, it: it, version: version}
	b.last++
}

// insertTail appends an item whose monotonicity the caller has already
// verified against peekTail.
func (b *block[K, V]) insertTail(it *item[K, V], version uint64) {
	b.insert(it, version)
}

// copy compacts that's live entries into b, dropping stale slots.
// Precondition: b is empty and capacity() >= that's live count.
func (b *block[K, V]) copy(that *block[K, V]) {
	dst := 0
	for i := that.first; i < that.last; i++ {
		if p := that.pairs[i]; p.owned() {
			b.pairs[dst] = p
			dst++
		}
	}
	b.first = 0
	b.last = dst
}

// merge writes the sorted union of the live entries of lhs and rhs into
// b. Stale entries are skipped; surviving pairs keep their (item,
// version) identity. Stable on equal keys: lhs entries first.
// Precondition: b is empty and large enough.
func (b *block[K, V]) merge(lhs, rhs *block[K, V]) {
	b.mergeFrom(lhs, lhs.first, rhs, rhs.first)
}

// mergeFrom is merge with explicit scan starts, for callers that have
// already consumed a prefix of either input.
func (b *block[K, V]) mergeFrom(lhs *block[K, V], lhsFirst int, rhs *block[K, V], rhsFirst int) {
	dst := 0
	li, ri := lhsFirst, rhsFirst

	for li < lhs.last && ri < rhs.last {
		lp := lhs.pairs[li]
		if !lp.owned() {
			li++
			continue
		}
		rp := rhs.pairs[ri]
		if !rp.owned() {
			ri++
			continue
		}
		if lp.key <= rp.key {
			b.pairs[dst] = lp
			li++
		} else {
			b.pairs[dst] = rp
			ri++
		}
		dst++
	}
	for ; li < lhs.last; li++ {
		if p := lhs.pairs[li]; p.owned() {
			b.pairs[dst] = p
			dst++
		}
	}
	for ; ri < rhs.last; ri++ {
		if p := rhs.pairs[ri]; p.owned() {
			b.pairs[dst] = p
			dst++
		}
	}

	b.first = 0
	b.last = dst
}

// peek returns the minimum live entry, advancing first past stale
// front slots. Owner only: this is the sole in-place stale reclamation
// path, and it must never run on a block published into a shared array.
func (b *block[K, V]) peek() peeked[K, V] {
	for b.first < b.last {
		p := b.pairs[b.first]
		if p.owned() {
			return peeked[K, V]{key: p.key, it: p.it, index: b.first, version: p.version}
		}
		b.first++
	}
	return peeked[K, V]{}
}

// peekShared returns the minimum live entry without mutating the block.
// Safe on published, logically immutable blocks.
func (b *block[K, V]) peekShared() peeked[K, V] {
	for i := b.first; i < b.last; i++ {
		if p := b.pairs[i]; p.owned() {
			return peeked[K, V]{key: p.key, it: p.it, index: i, version: p.version}
		}
	}
	return peeked[K, V]{}
}

// peekTail reports the key bounding the block from above. Stale entries
// still bound the block (the array is sorted regardless of liveness),
// so the scan only skips never-written slots.
func (b *block[K, V]) peekTail() (K, bool) {
	for i := b.last - 1; i >= b.first; i-- {
		if b.pairs[i].it != nil {
			return b.pairs[i].key, true
		}
	}
	var zero K
	return zero, false
}

// peekNth returns the entry at index n, empty if the slot is stale.
func (b *block[K, V]) peekNth(n int) peeked[K, V] {
	if p := b.pairs[n]; p.owned() {
		return peeked[K, V]{key: p.key, it: p.it, index: n, version: p.version}
	}
	return peeked[K, V]{}
}

// liveCount counts entries that are still owned. O(size); used on the
// contention paths that decide whether a published block is worth
// rebuilding.
func (b *block[K, V]) liveCount() int {
	n := 0
	for i := b.first; i < b.last; i++ {
		if b.pairs[i].owned() {
			n++
		}
	}
	return n
}

func (b *block[K, V]) clear() {
	b.first = 0
	b.last = 0
}

func (b *block[K, V]) usedFlag() bool { return b.used }
func (b *block[K, V]) setUsed()       { b.used = true }
func (b *block[K, V]) setUnused()     { b.used = false }
