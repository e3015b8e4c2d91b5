// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !race

// This file contains lock-free stress tests. The algorithms synchronize
// through atomic version stamps and snapshot swaps on separate words,
// which Go's race detector cannot observe; the tests are excluded from
// race builds.

package kpq_test

import (
	"math/rand/v2"
	"sync"
	"testing"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"

	"code.hybscloud.com/kpq"
)

// =============================================================================
// Symmetric Stress
// =============================================================================

// TestKLSMSymmetricWorkload runs a 50/50 insert/delete mix on every
// worker, then reconciles the counters: inserts − successful deletes
// must equal the number of items recovered by an exhaustive drain.
func TestKLSMSymmetricWorkload(t *testing.T) {
	const (
		workers   = 8
		opsPerG   = 100000
		keySpace  = 1 << 20
		valueBase = 1 << 32
	)
	q := kpq.NewKLSM[uint32, uint64](256)

	handles := make([]*kpq.Handle[uint32, uint64], workers)
	for w := range handles {
		handles[w] = q.Handle()
	}

	consumed := make([][]uint64, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			h := handles[id]
			rng := rand.New(rand.NewPCG(uint64(id), 42))
			next := uint64(id) * valueBase

			for op := 0; op < opsPerG; op++ {
				if rng.IntN(2) == 0 {
					h.Insert(rng.Uint32N(keySpace), next)
					next++
				} else if v, err := h.DeleteMin(); err == nil {
					consumed[id] = append(consumed[id], v)
				}
			}
		}(w)
	}
	wg.Wait()

	// Reconcile: counted inserts − successful deletes == residual size,
	// measured by exhaustively draining every handle.
	stats := q.Stats()
	residual := uint64(0)
	seen := make(map[uint64]bool, stats.Inserts)
	record := func(v uint64) {
		if seen[v] {
			t.Fatalf("value %d surfaced twice", v)
		}
		seen[v] = true
	}

	for _, vs := range consumed {
		for _, v := range vs {
			record(v)
		}
	}
	for _, h := range handles {
		for {
			v, err := h.DeleteMin()
			if err != nil {
				break
			}
			record(v)
			residual++
		}
	}

	if stats.Inserts-stats.Deletes != residual {
		t.Fatalf("residual mismatch: %d inserts, %d deletes, drained %d",
			stats.Inserts, stats.Deletes, residual)
	}
	if uint64(len(seen)) != stats.Inserts {
		t.Fatalf("conservation: %d distinct values surfaced, %d inserted",
			len(seen), stats.Inserts)
	}
}

// TestDeleteContentionDecreasesWithRelaxation compares the failed
// delete ratio between a small and a large relaxation bound under an
// identical workload: more relaxation means less synchronization, so
// the failure ratio must not grow.
func TestDeleteContentionDecreasesWithRelaxation(t *testing.T) {
	if testing.Short() {
		t.Skip("contention measurement needs the full workload")
	}

	ratio := func(relaxation int) float64 {
		const (
			workers = 8
			ops     = 50000
		)
		q := kpq.NewKLSM[uint32, uint64](relaxation)

		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				h := q.Handle()
				rng := rand.New(rand.NewPCG(uint64(id), uint64(relaxation)))
				next := uint64(id) << 32
				for op := 0; op < ops; op++ {
					if op%2 == 0 {
						h.Insert(rng.Uint32N(1<<16), next)
						next++
					} else {
						h.DeleteMin()
					}
				}
			}(w)
		}
		wg.Wait()

		stats := q.Stats()
		attempts := stats.Deletes + stats.FailedDeletes
		if attempts == 0 {
			return 0
		}
		return float64(stats.FailedDeletes) / float64(attempts)
	}

	small := ratio(16)
	large := ratio(4096)
	t.Logf("failed delete ratio: k=16 %.4f, k=4096 %.4f", small, large)
	if large > small {
		t.Fatalf("failure ratio must not grow with relaxation: k=16 %.4f, k=4096 %.4f",
			small, large)
	}
}

// TestSharedLSMPublishStorm hammers the publish CAS loop from many
// goroutines and verifies nothing is lost.
func TestSharedLSMPublishStorm(t *testing.T) {
	const (
		workers = 8
		each    = 5000
		total   = workers * each
	)
	q := kpq.NewSharedLSM[uint32, uint32](4096)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			h := q.Handle()
			for i := 0; i < each; i++ {
				v := uint32(id*each + i)
				h.Insert(v%1024, v)
			}
		}(w)
	}
	wg.Wait()

	seen := make([]atomix.Int32, total)
	h := q.Handle()
	backoff := iox.Backoff{}
	drained := 0
	for drained < total {
		v, err := h.DeleteMin()
		if err != nil {
			backoff.Wait()
			continue
		}
		backoff.Reset()
		if seen[v].Add(1) != 1 {
			t.Fatalf("value %d drained twice", v)
		}
		drained++
	}

	if _, err := h.DeleteMin(); !kpq.IsWouldBlock(err) {
		t.Fatalf("queue must be empty after draining %d items", total)
	}
}
