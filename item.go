// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kpq

import (
	"cmp"

	"code.hybscloud.com/atomix"
)

// item is a key/value cell with a monotonic version stamp.
//
// The version stamp is the sole ownership token: a holder of the pair
// (item, v) owns the cell's contents while item.version == v, and a
// successful CAS from v to v+1 atomically transfers ownership away.
// Version parity encodes the cell's lifecycle:
//
//	even — free (reusable by the owning allocator)
//	odd  — live (published, key/value immutable)
//
// Item memory is never returned to the runtime while the queue lives;
// cells recycle through their allocator, and the strictly monotonic
// version defeats ABA on recycled cells.
type item[K cmp.Ordered, V any] struct {
	key     K
	value   V
	version atomix.Uint64
}

// initialize stores key and value and flips the version from even
// (free) to odd (live). Owner only: the cell must have been acquired
// from the allocator and not yet published.
func (it *item[K, V]) initialize(key K, value V) {
	it.key = key
	it.value = value
	// Release so that a thread observing the new odd version also
	// observes the key/value written above.
	it.version.StoreRelease(it.version.LoadRelaxed() + 1)
}

// loadVersion returns the current version with acquire ordering.
func (it *item[K, V]) loadVersion() uint64 {
	return it.version.LoadAcquire()
}

// take attempts to extract the cell's value by CAS'ing the version from
// expected to expected+1. This is the linearization point of every
// successful DeleteMin. On failure the cell was taken elsewhere (or
// recycled) and the returned value is the zero V.
//
// The value is snapshotted before the CAS: while the version still
// equals expected the contents are immutable, and reading afterwards
// would race with the owning allocator re-initializing the cell.
func (it *item[K, V]) take(expected uint64) (V, bool) {
	val := it.value
	if !it.version.CompareAndSwapAcqRel(expected, expected+1) {
		var zero V
		return zero, false
	}
	return val, true
}

// reusable reports whether the cell may be handed out by its allocator
// again. Free cells have even versions.
func (it *item[K, V]) reusable() bool {
	return it.version.LoadAcquire()&1 == 0
}
