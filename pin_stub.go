// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !linux

package kpq

import "errors"

// setAffinity is unavailable off Linux.
func setAffinity(cpu int) error {
	_ = cpu
	return errors.ErrUnsupported
}
