// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kpq

import (
	"cmp"
	"container/heap"
)

// blockHead tracks the next live entry of one merge input.
type blockHead[K cmp.Ordered, V any] struct {
	b   *block[K, V]
	ix  int
	key K
}

// headHeap is a min-heap of merge inputs keyed by head key.
type headHeap[K cmp.Ordered, V any] []blockHead[K, V]

func (h headHeap[K, V]) Len() int           { return len(h) }
func (h headHeap[K, V]) Less(i, j int) bool { return h[i].key < h[j].key }
func (h headHeap[K, V]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *headHeap[K, V]) Push(x any) {
	*h = append(*h, x.(blockHead[K, V]))
}

func (h *headHeap[K, V]) Pop() any {
	old := *h
	n := len(old)
	head := old[n-1]
	*h = old[:n-1]
	return head
}

// lazyBlock defers the merge of equal-sized blocks: merge only records
// the input, and finalize performs a single k-way merge over all
// recorded inputs. Each merge call doubles the logical capacity, so a
// chain of same-class collisions finalizes into one block of the next
// free size class, except when only one input still has live entries:
// that input block is then returned as is, in its own size class.
type lazyBlock[K cmp.Ordered, V any] struct {
	pow2  int
	heads headHeap[K, V]
}

// newLazyBlock starts a lazy merge with a single input block, scanned
// from index first.
func newLazyBlock[K cmp.Ordered, V any](b *block[K, V], first int) *lazyBlock[K, V] {
	lb := &lazyBlock[K, V]{pow2: b.pow2}
	if head, ok := nextHead(b, first); ok {
		lb.heads = append(lb.heads, head)
	}
	return lb
}

// merge records another input of the lazy block's current size class
// and grows the logical size class by one.
func (lb *lazyBlock[K, V]) merge(b *block[K, V], first int) {
	if head, ok := nextHead(b, first); ok {
		lb.heads = append(lb.heads, head)
	}
	lb.pow2++
}

// nextHead positions a head at the first live entry at or after ix.
func nextHead[K cmp.Ordered, V any](b *block[K, V], ix int) (blockHead[K, V], bool) {
	for ; ix < b.last; ix++ {
		if b.pairs[ix].owned() {
			return blockHead[K, V]{b: b, ix: ix, key: b.pairs[ix].key}, true
		}
	}
	return blockHead[K, V]{}, false
}

// finalize materializes the merge. With a single recorded input (inputs
// without live entries are not recorded) the input block itself is
// returned and no allocation happens; otherwise an output
// block of the accumulated size class is acquired from pool and filled
// by a k-way merge that keeps only live entries.
func (lb *lazyBlock[K, V]) finalize(pool blockSource[K, V]) *block[K, V] {
	if len(lb.heads) == 1 {
		return lb.heads[0].b
	}

	out := pool.getBlock(lb.pow2)
	if len(lb.heads) == 0 {
		return out
	}

	heap.Init(&lb.heads)

	dst := 0
	for len(lb.heads) > 1 {
		head := heap.Pop(&lb.heads).(blockHead[K, V])
		out.pairs[dst] = head.b.pairs[head.ix]
		dst++
		if next, ok := nextHead(head.b, head.ix+1); ok {
			heap.Push(&lb.heads, next)
		}
	}

	// Drain the single remaining input linearly.
	head := lb.heads[0]
	for {
		out.pairs[dst] = head.b.pairs[head.ix]
		dst++
		next, ok := nextHead(head.b, head.ix+1)
		if !ok {
			break
		}
		head = next
	}

	out.first = 0
	out.last = dst
	return out
}
