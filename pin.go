// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kpq

import "runtime"

// Pin locks the calling goroutine to its OS thread and binds that
// thread to the given CPU. Benchmark and latency-sensitive callers pin
// one worker per core so handle-local pools stay cache-resident.
//
// Returns [errors.ErrUnsupported] on platforms without thread affinity;
// the goroutine is not locked in that case.
func Pin(cpu int) error {
	runtime.LockOSThread()
	if err := setAffinity(cpu); err != nil {
		runtime.UnlockOSThread()
		return err
	}
	return nil
}

// Unpin releases the goroutine-to-thread lock taken by Pin. The kernel
// affinity mask of the thread is left as is.
func Unpin() {
	runtime.UnlockOSThread()
}
