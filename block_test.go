// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kpq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// liveItem returns a freshly published item cell.
func liveItem(key, value int) *item[int, int] {
	it := &item[int, int]{}
	it.initialize(key, value)
	return it
}

// fillBlock builds a block of the smallest fitting size class from
// ascending keys, with value == key.
func fillBlock(t *testing.T, keys ...int) *block[int, int] {
	t.Helper()
	b := newBlock[int, int](pow2For(len(keys)))
	for _, k := range keys {
		it := liveItem(k, k)
		b.insert(it, it.loadVersion())
	}
	return b
}

// drainKeys extracts all live entries of a block through peek/take.
func drainKeys(t *testing.T, b *block[int, int]) []int {
	t.Helper()
	var keys []int
	for {
		p := b.peek()
		if p.empty() {
			return keys
		}
		_, ok := p.take()
		require.True(t, ok)
		keys = append(keys, p.key)
	}
}

func TestBlockCapacityIsPowerOfTwo(t *testing.T) {
	for pow2 := 0; pow2 <= 10; pow2++ {
		b := newBlock[int, int](pow2)
		assert.Equal(t, 1<<pow2, b.capacity())
	}
}

func TestBlockPeekReturnsMinimum(t *testing.T) {
	b := fillBlock(t, 2, 3, 5, 9)

	p := b.peek()
	require.False(t, p.empty())
	assert.Equal(t, 2, p.key)

	// peek is non-destructive.
	p = b.peek()
	assert.Equal(t, 2, p.key)
	assert.Equal(t, 4, b.size())
}

func TestBlockPeekSkipsStaleFront(t *testing.T) {
	b := fillBlock(t, 1, 2, 3, 4)

	// Take the two smallest entries out from under the block.
	for i := 0; i < 2; i++ {
		p := b.peekNth(i)
		require.False(t, p.empty())
		_, ok := p.take()
		require.True(t, ok)
	}

	p := b.peek()
	require.False(t, p.empty())
	assert.Equal(t, 3, p.key)
	assert.Equal(t, 2, b.first, "peek reclaims the stale prefix")
	assert.Equal(t, 2, b.size())
}

func TestBlockPeekSharedDoesNotAdvance(t *testing.T) {
	b := fillBlock(t, 1, 2, 3, 4)

	p := b.peekNth(0)
	_, ok := p.take()
	require.True(t, ok)

	s := b.peekShared()
	require.False(t, s.empty())
	assert.Equal(t, 2, s.key)
	assert.Equal(t, 0, b.first, "shared scan must not mutate the block")
}

func TestBlockPeekAllStale(t *testing.T) {
	b := fillBlock(t, 1, 2)
	for i := 0; i < 2; i++ {
		_, ok := b.peekNth(i).take()
		require.True(t, ok)
	}

	assert.True(t, b.peek().empty())
	assert.Equal(t, 0, b.size())
}

func TestBlockPeekTail(t *testing.T) {
	b := fillBlock(t, 1, 5, 9)

	k, ok := b.peekTail()
	require.True(t, ok)
	assert.Equal(t, 9, k)

	// A stale tail still bounds the block from above.
	_, taken := b.peekNth(2).take()
	require.True(t, taken)
	k, ok = b.peekTail()
	require.True(t, ok)
	assert.Equal(t, 9, k)

	empty := newBlock[int, int](2)
	_, ok = empty.peekTail()
	assert.False(t, ok)
}

func TestBlockMerge(t *testing.T) {
	lhs := fillBlock(t, 1, 4, 6, 8)
	rhs := fillBlock(t, 2, 3, 7, 9)

	out := newBlock[int, int](3)
	out.merge(lhs, rhs)

	assert.Equal(t, 8, out.size())
	assert.Equal(t, []int{1, 2, 3, 4, 6, 7, 8, 9}, drainKeys(t, out))
}

func TestBlockMergeSkipsStale(t *testing.T) {
	lhs := fillBlock(t, 1, 4, 6)
	rhs := fillBlock(t, 2, 3, 7)

	// Stale out 4 and 2 before merging.
	_, ok := lhs.peekNth(1).take()
	require.True(t, ok)
	_, ok = rhs.peekNth(0).take()
	require.True(t, ok)

	out := newBlock[int, int](3)
	out.merge(lhs, rhs)

	assert.Equal(t, 4, out.size())
	assert.Equal(t, []int{1, 3, 6, 7}, drainKeys(t, out))
}

func TestBlockMergeDuplicateKeys(t *testing.T) {
	lhs := fillBlock(t, 1, 3, 3)
	rhs := fillBlock(t, 3, 5)

	out := newBlock[int, int](3)
	out.merge(lhs, rhs)

	assert.Equal(t, []int{1, 3, 3, 3, 5}, drainKeys(t, out))
}

func TestBlockCopyTightens(t *testing.T) {
	src := fillBlock(t, 1, 2, 3, 4, 5, 6, 7, 8)
	for _, n := range []int{0, 2, 4, 5, 7} {
		_, ok := src.peekNth(n).take()
		require.True(t, ok)
	}

	dst := newBlock[int, int](2)
	dst.copy(src)

	assert.Equal(t, 3, dst.size())
	assert.Equal(t, 0, dst.first)
	assert.Equal(t, []int{2, 4, 7}, drainKeys(t, dst))
}

func TestBlockInsertTailKeepsOrder(t *testing.T) {
	b := newBlock[int, int](2)
	for _, k := range []int{1, 3, 3, 8} {
		it := liveItem(k, k)
		b.insertTail(it, it.loadVersion())
	}
	assert.Equal(t, []int{1, 3, 3, 8}, drainKeys(t, b))
}

func TestBlockClearAndReuse(t *testing.T) {
	b := fillBlock(t, 1, 2)
	b.setUsed()
	require.True(t, b.usedFlag())

	b.clear()
	assert.Equal(t, 0, b.size())
	assert.True(t, b.peek().empty())

	b.setUnused()
	assert.False(t, b.usedFlag())
}
