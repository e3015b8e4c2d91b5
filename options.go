// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kpq

import (
	"cmp"
	"runtime"
)

// maxPower bounds block capacities to 2^maxPower entries. A block array
// has one slot per size class; the structure cannot physically host
// more than 2^maxPower items.
const maxPower = 32

// Options configures queue creation and variant selection.
type Options struct {
	// Variant constraints (determines queue type)
	localOnly  bool
	globalOnly bool

	// DeleteMin contention retry budget; 0 selects the default of
	// 4 × GOMAXPROCS.
	retries int

	// Relaxation bound k.
	relaxation int
}

// Builder creates queues with fluent configuration.
//
// The builder selects the queue variant based on locality constraints:
//
//	q := kpq.Build[uint32, uint32](kpq.New(256))               // → KLSM
//	q := kpq.Build[uint32, uint32](kpq.New(256).GlobalOnly())  // → SharedLSM
//	q := kpq.Build[uint32, uint32](kpq.New(0).LocalOnly())     // → DistLSM
type Builder struct {
	opts Options
}

// New creates a queue builder with the given relaxation bound k.
//
// A successful DeleteMin on the resulting queue may return any one of
// the ⌈k/2⌉ smallest keys present at its linearization point. k = 0
// yields exact priority order for single-goroutine use; larger k trades
// ordering quality for reduced synchronization.
//
// Panics if relaxation < 0.
func New(relaxation int) *Builder {
	if relaxation < 0 {
		panic("kpq: relaxation must be >= 0")
	}
	return &Builder{opts: Options{relaxation: relaxation}}
}

// LocalOnly declares that items never migrate between goroutines:
// every handle operates on a private sub-queue and DeleteMin only
// observes the calling handle's own items.
func (b *Builder) LocalOnly() *Builder {
	b.opts.localOnly = true
	return b
}

// GlobalOnly declares that every insert publishes to the shared
// structure immediately, with no per-handle buffering.
func (b *Builder) GlobalOnly() *Builder {
	b.opts.globalOnly = true
	return b
}

// Retries sets the DeleteMin contention retry budget. After n failed
// extraction attempts DeleteMin returns ErrWouldBlock. The default
// (n = 0) is 4 × GOMAXPROCS.
func (b *Builder) Retries(n int) *Builder {
	b.opts.retries = n
	return b
}

// Build creates a Queue[K, V] with automatic variant selection.
//
// Variant selection:
//
//	LocalOnly()  → DistLSM   (per-handle sub-queues, no sharing)
//	GlobalOnly() → SharedLSM (every insert published globally)
//	Neither      → KLSM      (per-handle LSMs spilling into a shared LSM)
//
// For concrete return types, use:
//   - BuildKLSM[K, V](b)   → *KLSM[K, V]
//   - BuildShared[K, V](b) → *SharedLSM[K, V]
//   - BuildDist[K, V](b)   → *DistLSM[K, V]
func Build[K cmp.Ordered, V any](b *Builder) Queue[K, V] {
	switch {
	case b.opts.localOnly && b.opts.globalOnly:
		panic("kpq: LocalOnly and GlobalOnly are mutually exclusive")
	case b.opts.localOnly:
		return newDistLSM[K, V](&b.opts)
	case b.opts.globalOnly:
		return newSharedLSM[K, V](&b.opts)
	default:
		return newKLSM[K, V](&b.opts)
	}
}

// BuildKLSM creates a KLSM queue with a concrete return type.
// Panics if the builder has a locality constraint set.
func BuildKLSM[K cmp.Ordered, V any](b *Builder) *KLSM[K, V] {
	if b.opts.localOnly || b.opts.globalOnly {
		panic("kpq: BuildKLSM requires no locality constraints")
	}
	return newKLSM[K, V](&b.opts)
}

// BuildShared creates a SharedLSM queue with a concrete return type.
// Panics if the builder is not configured with GlobalOnly() only.
func BuildShared[K cmp.Ordered, V any](b *Builder) *SharedLSM[K, V] {
	if b.opts.localOnly || !b.opts.globalOnly {
		panic("kpq: BuildShared requires GlobalOnly() without LocalOnly()")
	}
	return newSharedLSM[K, V](&b.opts)
}

// BuildDist creates a DistLSM queue with a concrete return type.
// Panics if the builder is not configured with LocalOnly() only.
func BuildDist[K cmp.Ordered, V any](b *Builder) *DistLSM[K, V] {
	if !b.opts.localOnly || b.opts.globalOnly {
		panic("kpq: BuildDist requires LocalOnly() without GlobalOnly()")
	}
	return newDistLSM[K, V](&b.opts)
}

// defaultRetries is the DeleteMin contention budget when none is
// configured: O(number of contending threads).
func defaultRetries(configured int) int {
	if configured > 0 {
		return configured
	}
	return 4 * runtime.GOMAXPROCS(0)
}

// pow2For returns the smallest p with 2^p >= n.
func pow2For(n int) int {
	p := 0
	for (1 << p) < n {
		p++
	}
	return p
}

// pad is cache line padding to prevent false sharing.
type pad [64]byte
