// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kpq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyBlockSingleInputNoAllocation(t *testing.T) {
	var storage blockStorage[int, int]

	b := fillBlock(t, 1, 2)
	lb := newLazyBlock(b, b.first)

	out := lb.finalize(&storage)
	assert.Same(t, b, out, "a single input finalizes to itself")
}

func TestLazyBlockCascadeMerge(t *testing.T) {
	var storage blockStorage[int, int]

	// Mirror the block-array cascade: each recorded input matches the
	// lazy block's current size class.
	b0 := fillBlock(t, 4)       // pow2 0
	b1 := fillBlock(t, 9)       // pow2 0
	b2 := fillBlock(t, 1, 6)    // pow2 1
	b3 := fillBlock(t, 2, 3, 5) // pow2 2

	lb := newLazyBlock(b0, b0.first)
	lb.merge(b1, b1.first)
	lb.merge(b2, b2.first)
	lb.merge(b3, b3.first)

	out := lb.finalize(&storage)
	require.Equal(t, 3, out.pow2, "three merges grow the class by three")
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 9}, drainKeys(t, out))
}

func TestLazyBlockSkipsStaleEntries(t *testing.T) {
	var storage blockStorage[int, int]

	b0 := fillBlock(t, 1, 5)
	b1 := fillBlock(t, 2, 8)

	// Stale out one entry per input.
	_, ok := b0.peekNth(0).take()
	require.True(t, ok)
	_, ok = b1.peekNth(1).take()
	require.True(t, ok)

	lb := newLazyBlock(b0, b0.first)
	lb.merge(b1, b1.first)

	out := lb.finalize(&storage)
	assert.Equal(t, []int{2, 5}, drainKeys(t, out))
}

func TestLazyBlockAllStaleInputs(t *testing.T) {
	var storage blockStorage[int, int]

	b0 := fillBlock(t, 1)
	b1 := fillBlock(t, 2)
	_, ok := b0.peekNth(0).take()
	require.True(t, ok)
	_, ok = b1.peekNth(0).take()
	require.True(t, ok)

	lb := newLazyBlock(b0, b0.first)
	lb.merge(b1, b1.first)

	out := lb.finalize(&storage)
	assert.Equal(t, 0, out.size())
}
