// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kpq

import "cmp"

// blockSource hands out empty, checked-out blocks of a requested size
// class. Implemented by blockStorage (per-handle LSM side) and
// blockPool (shared publication side).
type blockSource[K cmp.Ordered, V any] interface {
	getBlock(pow2 int) *block[K, V]
}

// blockStorage is a per-handle free list of blocks indexed by power of
// two. Blocks live for the storage's lifetime and cycle through the
// used flag; nothing here is safe for cross-goroutine use.
type blockStorage[K cmp.Ordered, V any] struct {
	free [maxPower + 1][]*block[K, V]
}

// getBlock returns an empty block of capacity 2^pow2, marked used.
// The caller releases it via setUnused.
func (s *blockStorage[K, V]) getBlock(pow2 int) *block[K, V] {
	for _, b := range s.free[pow2] {
		if !b.usedFlag() {
			b.clear()
			b.setUsed()
			return b
		}
	}

	b := newBlock[K, V](pow2)
	b.setUsed()
	s.free[pow2] = append(s.free[pow2], b)
	return b
}
