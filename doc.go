// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package kpq provides k-relaxed concurrent priority queues.
//
// A relaxed min-priority queue trades strict ordering for scalability:
// a successful DeleteMin may return any one of the ⌈k/2⌉ smallest keys
// currently present. Dropping the total order removes the serial
// bottleneck at the head of a strict priority queue while still
// approximating priority order well enough for parallel shortest-path,
// branch-and-bound and discrete-event-simulation workloads.
//
// The package offers three variants of the k-LSM design
// (Wimmer et al., PPoPP 2015):
//
//   - KLSM: per-goroutine log-structured merge queues that spill into a
//     lock-free shared LSM once a block outgrows the relaxation bound
//   - SharedLSM: every insert published into the shared LSM immediately
//   - DistLSM: purely goroutine-local sub-queues, no sharing
//
// # Quick Start
//
// Direct constructors (recommended for most cases):
//
//	q := kpq.NewKLSM[uint32, uint32](256)
//	q := kpq.NewSharedLSM[uint64, string](4096)
//	q := kpq.NewDistLSM[int, int]()
//
// Builder API selects the variant from locality constraints:
//
//	q := kpq.Build[uint32, uint32](kpq.New(256))               // → KLSM
//	q := kpq.Build[uint32, uint32](kpq.New(256).GlobalOnly())  // → SharedLSM
//	q := kpq.Build[uint32, uint32](kpq.New(0).LocalOnly())     // → DistLSM
//
// # Basic Usage
//
// All state a goroutine touches lives in a [Handle]. Create one handle
// per goroutine and reuse it:
//
//	q := kpq.NewKLSM[uint32, uint32](256)
//
//	h := q.Handle()
//	h.Insert(42, 42)
//
//	v, err := h.DeleteMin()
//	if kpq.IsWouldBlock(err) {
//	    // Queue momentarily empty (or heavily contended) — retry later
//	}
//
// Insert never fails. DeleteMin returns [ErrWouldBlock] both when the
// queue is observed empty and when the contention retry budget runs
// out; the two are deliberately indistinguishable, so a caller that
// knows items remain simply retries:
//
//	backoff := iox.Backoff{}
//	for {
//	    v, err := h.DeleteMin()
//	    if err == nil {
//	        backoff.Reset()
//	        process(v)
//	        continue
//	    }
//	    backoff.Wait()
//	}
//
// # Choosing k
//
// k bounds how far a returned key may trail the true minimum, measured
// as the number of strictly smaller keys that may still be present at
// the extraction's linearization point (at most ⌈k/2⌉). Small k gives
// tight ordering and more synchronization; large k shifts work into
// goroutine-local blocks:
//
//	kpq.NewKLSM[uint32, uint32](0)     // exact order for one goroutine
//	kpq.NewKLSM[uint32, uint32](256)   // balanced
//	kpq.NewKLSM[uint32, uint32](4096)  // throughput-oriented
//
// # How It Works
//
// Inserts land in the calling handle's distributional LSM: a new
// element becomes a one-entry sorted block, and equal-sized blocks
// merge cascade-style into blocks of twice the size, so a handle's
// blocks always form a sequence of decreasing power-of-two capacities.
// When a merged block reaches ⌈(k+1)/2⌉ live entries it is published
// into the shared LSM, an immutable array of blocks (at most one per
// size class) replaced wholesale through an atomic snapshot swap.
//
// DeleteMin compares the calling handle's memoized local minimum with
// the shared snapshot's minimum and extracts the smaller one by bumping
// the winning item's version stamp with a CAS. The version CAS is the
// single linearization point: exactly one extractor can win an item,
// no matter how many snapshots still reference it.
//
// Extracted entries leave tombstones behind. Blocks that become mostly
// stale are compacted one size class down — locally during peek, and
// in the shared LSM by publishing a trimmed snapshot when an extraction
// race is lost.
//
// # Memory Model
//
// Item cells and blocks are never returned to the runtime while the
// queue lives; they recycle through per-handle pools. Strictly
// monotonic version stamps defeat ABA on recycled cells, and published
// snapshots are replaced, never mutated. There are no hazard pointers
// and no epochs; the price is that memory footprint tracks the
// high-water mark.
//
// # Error Handling
//
// The only error the queue produces is [ErrWouldBlock], sourced from
// [code.hybscloud.com/iox] for ecosystem consistency:
//
//	kpq.IsWouldBlock(err)  // true if queue empty/contended
//	kpq.IsSemantic(err)    // true if control flow signal
//	kpq.IsNonFailure(err)  // true if nil or ErrWouldBlock
//
// # Thread Safety
//
// Queues are safe for any number of goroutines, each operating through
// its own [Handle]. A handle itself is goroutine-affine: sharing one
// handle across goroutines without external synchronization is
// undefined behavior, like violating the producer/consumer constraints
// of a single-producer queue.
//
// # Race Detection
//
// Go's race detector is not designed for lock-free algorithm
// verification: it cannot observe happens-before edges established by
// atomic memory orderings on separate words (item version stamps
// guarding key/value cells, the snapshot pointer guarding block
// contents). Concurrent tests are excluded via //go:build !race; the
// single-goroutine test surface runs under the detector unrestricted.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/iox] for semantic errors,
// [code.hybscloud.com/atomix] for atomic primitives with explicit
// memory ordering, and [code.hybscloud.com/spin] for CPU pause
// instructions.
package kpq
