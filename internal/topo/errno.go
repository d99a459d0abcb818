// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

package topo

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/smpart/smpart/internal/driver"
)

// Errno maps a topology error to the errno-compatible integer code the
// C-shaped informational surface documents: 0 on success, ENOENT when the
// introspection module is absent, ENODEV for an out-of-range device, EIO
// otherwise.
func Errno(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, ErrNoIntrospection) {
		return int(unix.ENOENT)
	}
	var noDev ErrDeviceNotFound
	if errors.As(err, &noDev) {
		return int(unix.ENODEV)
	}
	var invalid driver.ErrInvalidDevice
	if errors.As(err, &invalid) {
		return int(unix.ENODEV)
	}
	return int(unix.EIO)
}
