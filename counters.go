// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kpq

import "code.hybscloud.com/atomix"

// Stats is an additive snapshot of operation counters.
type Stats struct {
	// Inserts is the number of Insert calls.
	Inserts uint64
	// Deletes is the number of successful DeleteMin calls.
	Deletes uint64
	// FailedDeletes is the number of DeleteMin calls that returned
	// ErrWouldBlock (queue observed empty or contention budget
	// exhausted).
	FailedDeletes uint64
}

// Add returns the element-wise sum of two snapshots.
func (s Stats) Add(t Stats) Stats {
	return Stats{
		Inserts:       s.Inserts + t.Inserts,
		Deletes:       s.Deletes + t.Deletes,
		FailedDeletes: s.FailedDeletes + t.FailedDeletes,
	}
}

// opCounters is a handle's private operation tally. Padded so that
// counters of different handles never share a cache line.
type opCounters struct {
	_       pad
	inserts atomix.Int64
	deletes atomix.Int64
	failed  atomix.Int64
	_       pad
}

func (c *opCounters) addInsert() { c.inserts.Add(1) }
func (c *opCounters) addDelete() { c.deletes.Add(1) }
func (c *opCounters) addFailed() { c.failed.Add(1) }

func (c *opCounters) snapshot() Stats {
	return Stats{
		Inserts:       uint64(c.inserts.Load()),
		Deletes:       uint64(c.deletes.Load()),
		FailedDeletes: uint64(c.failed.Load()),
	}
}
