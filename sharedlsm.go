// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kpq

import (
	"cmp"
	"sync"
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// sharedCore is the shared-LSM machinery common to SharedLSM and KLSM.
//
// The published snapshot lives behind a single 128-bit atomic entry so
// that the version travels with the pointer and a stalled publisher can
// never reinstate a recycled candidate buffer (ABA on the bare pointer).
//
// Entry format: [lo=version | hi=*blockArray]
type sharedCore[K cmp.Ordered, V any] struct {
	_ pad

	// global points at a 16-byte-aligned entry inside globalBuf: the
	// 128-bit CAS faults on an unaligned operand, and Go aligns struct
	// fields to 8 bytes at most.
	global    *atomix.Uint128 // lo=version, hi=pointer
	globalBuf [32]byte
	_         pad

	relaxation int
	retries    int

	// root is the initial empty snapshot. Holding it here keeps it
	// reachable: the global entry stores the pointer as a plain uint64,
	// invisible to the garbage collector.
	root *blockArray[K, V]
}

func (s *sharedCore[K, V]) init(relaxation, retries int) {
	s.relaxation = relaxation
	s.retries = retries
	s.root = &blockArray[K, V]{version: 1}
	base := uintptr(unsafe.Pointer(&s.globalBuf[0]))
	s.global = (*atomix.Uint128)(unsafe.Pointer(&s.globalBuf[(16-base%16)%16]))
	s.global.StoreRelaxed(1, uint64(uintptr(unsafe.Pointer(s.root))))
}

// load returns the published version and snapshot with acquire
// ordering, pairing with the release CAS of publish.
func (s *sharedCore[K, V]) load() (uint64, *blockArray[K, V]) {
	lo, hi := s.global.LoadAcquire()
	return lo, (*blockArray[K, V])(*(*unsafe.Pointer)(unsafe.Pointer(&hi)))
}

// publish CAS'es the global entry from (ver, cur) to (ver+1, cand).
func (s *sharedCore[K, V]) publish(ver uint64, cur, cand *blockArray[K, V]) bool {
	return s.global.CompareAndSwapAcqRel(
		ver, uint64(uintptr(unsafe.Pointer(cur))),
		ver+1, uint64(uintptr(unsafe.Pointer(cand))),
	)
}

// sharedLSMLocal is a handle's private shared-LSM context: the block
// pool feeding published arrays and the two candidate buffers used
// alternately by version parity. Alternation gives a recycled buffer a
// publication distance of two, so any publisher still holding it loses
// its CAS before the buffer's new content could be misread as current.
type sharedLSMLocal[K cmp.Ordered, V any] struct {
	pool  blockPool[K, V]
	odds  blockArray[K, V]
	evens blockArray[K, V]
}

func newSharedLocal[K cmp.Ordered, V any](core *sharedCore[K, V]) *sharedLSMLocal[K, V] {
	l := &sharedLSMLocal[K, V]{}
	l.pool.core = core
	return l
}

// candidate returns the build buffer for the given target version.
func (l *sharedLSMLocal[K, V]) candidate(version uint64) *blockArray[K, V] {
	if version&1 == 1 {
		return &l.odds
	}
	return &l.evens
}

// insertBlock publishes the live contents of b into the shared LSM.
// The caller's block is copied first and may be recycled as soon as
// insertBlock returns.
func (s *sharedCore[K, V]) insertBlock(l *sharedLSMLocal[K, V], b *block[K, V]) {
	nb := l.pool.getBlock(b.pow2)
	nb.copy(b)
	if nb.size() == 0 {
		nb.setUnused()
		return
	}

	sw := spin.Wait{}
	for {
		ver, cur := s.load()
		cand := l.candidate(ver + 1)
		cand.copyFrom(cur)
		cand.version = ver + 1

		l.pool.begin()
		cand.insertLocal(nb, &l.pool)

		if s.publish(ver, cur, cand) {
			l.pool.commit(cand, ver+1)
			if cand.references(nb) {
				nb.tag = ver + 1
			} else {
				nb.tag = 0
				nb.setUnused()
			}
			return
		}

		// Lost the race: another handle published. Rebuild against the
		// fresh snapshot; nb is untouched by the failed attempt.
		l.pool.abort()
		sw.Once()
	}
}

// deleteMin extracts a minimal element from the published snapshot.
// Relaxed: the returned key is one of the per-size-class minima. On a
// lost extraction race the winning block's stale prefix is trimmed and
// republished before retrying; after the retry budget is spent the
// caller sees ErrWouldBlock, indistinguishable from empty.
func (s *sharedCore[K, V]) deleteMin(l *sharedLSMLocal[K, V]) (V, error) {
	var zero V
	sw := spin.Wait{}
	for attempt := 0; attempt < s.retries; attempt++ {
		ver, cur := s.load()
		best := cur.minimum()
		if best.empty() {
			return zero, ErrWouldBlock
		}
		if v, ok := best.take(); ok {
			return v, nil
		}
		s.trimStale(l, ver, cur)
		sw.Once()
	}
	return zero, ErrWouldBlock
}

// trimStale publishes a snapshot with mostly-stale blocks rebuilt. A
// failed publish needs no retry: the failure means another handle made
// progress on the same snapshot.
func (s *sharedCore[K, V]) trimStale(l *sharedLSMLocal[K, V], ver uint64, cur *blockArray[K, V]) {
	cand := l.candidate(ver + 1)
	cand.copyFrom(cur)
	cand.version = ver + 1

	l.pool.begin()
	cand.removeStale(&l.pool)

	if s.publish(ver, cur, cand) {
		l.pool.commit(cand, ver+1)
	} else {
		l.pool.abort()
	}
}

// blockPool is a handle's free list for blocks that enter published
// arrays. Reuse is gated on publication distance: a block is reusable
// once it is unused, or once it was last published at least two
// versions ago and the current snapshot no longer references it. Any
// in-flight publisher that still references such a block copied from an
// older snapshot necessarily fails its publish CAS, so the block cannot
// resurface. A reader stalled across two publications may still scan a
// recycled block's keys; that can only mis-rank a candidate minimum —
// the item version CAS rejects any actual misextraction.
type blockPool[K cmp.Ordered, V any] struct {
	core    *sharedCore[K, V]
	free    [maxPower + 1][]*block[K, V]
	attempt []*block[K, V]
}

// getBlock returns an empty block of capacity 2^pow2, marked used and
// recorded in the current publish attempt.
func (p *blockPool[K, V]) getBlock(pow2 int) *block[K, V] {
	for _, b := range p.free[pow2] {
		if p.reusable(b) {
			b.clear()
			b.setUsed()
			b.tag = 0
			p.attempt = append(p.attempt, b)
			return b
		}
	}

	b := newBlock[K, V](pow2)
	b.setUsed()
	p.free[pow2] = append(p.free[pow2], b)
	p.attempt = append(p.attempt, b)
	return b
}

func (p *blockPool[K, V]) reusable(b *block[K, V]) bool {
	if !b.usedFlag() {
		return true
	}
	if b.tag == 0 {
		// Checked out but never committed: still staged somewhere.
		return false
	}
	ver, cur := p.core.load()
	return b.tag+2 <= ver && !cur.references(b)
}

// begin starts a publish attempt's allocation log.
func (p *blockPool[K, V]) begin() {
	p.attempt = p.attempt[:0]
}

// commit tags every logged block that made it into the published
// candidate and releases the rest (intermediate merge outputs).
func (p *blockPool[K, V]) commit(cand *blockArray[K, V], ver uint64) {
	for _, b := range p.attempt {
		if cand.references(b) {
			b.tag = ver
		} else {
			b.tag = 0
			b.setUnused()
		}
	}
	p.attempt = p.attempt[:0]
}

// abort releases every block allocated by a failed publish attempt.
func (p *blockPool[K, V]) abort() {
	for _, b := range p.attempt {
		b.tag = 0
		b.setUnused()
	}
	p.attempt = p.attempt[:0]
}

// SharedLSM is the globally shared relaxed priority queue variant:
// every insert is published into the shared snapshot immediately as a
// singleton block. It is the GlobalOnly() product of the builder and
// the spill target inside [KLSM].
//
// A successful DeleteMin returns one of the per-size-class minima of
// the current snapshot, which keeps it within the ⌈k/2⌉ smallest keys.
type SharedLSM[K cmp.Ordered, V any] struct {
	core sharedCore[K, V]

	mu      sync.Mutex
	handles []*Handle[K, V]
}

// NewSharedLSM creates a shared-only queue with relaxation bound k.
// Panics if relaxation < 0.
func NewSharedLSM[K cmp.Ordered, V any](relaxation int) *SharedLSM[K, V] {
	if relaxation < 0 {
		panic("kpq: relaxation must be >= 0")
	}
	return newSharedLSM[K, V](&Options{relaxation: relaxation})
}

func newSharedLSM[K cmp.Ordered, V any](opts *Options) *SharedLSM[K, V] {
	q := &SharedLSM[K, V]{}
	q.core.init(opts.relaxation, defaultRetries(opts.retries))
	return q
}

// Handle returns a new goroutine-affine operation handle.
func (q *SharedLSM[K, V]) Handle() *Handle[K, V] {
	h := &Handle[K, V]{
		core:    &q.core,
		shared:  newSharedLocal(&q.core),
		scratch: newBlock[K, V](0),
	}
	q.mu.Lock()
	q.handles = append(q.handles, h)
	q.mu.Unlock()
	return h
}

// Relaxation returns the configured relaxation bound.
func (q *SharedLSM[K, V]) Relaxation() int { return q.core.relaxation }

// Stats sums the operation counters of every handle.
func (q *SharedLSM[K, V]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s Stats
	for _, h := range q.handles {
		s = s.Add(h.counters.snapshot())
	}
	return s
}

// SupportsConcurrency reports that the queue may be used from many
// goroutines through distinct handles.
func (q *SharedLSM[K, V]) SupportsConcurrency() bool { return true }
