// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux || !cgo

package nvcuda

import (
	"errors"

	"github.com/smpart/smpart/internal/driver"
	"github.com/smpart/smpart/internal/mask"
	"github.com/smpart/smpart/internal/vertab"
)

func installLaunchHook(*vertab.Record, driver.LaunchHandler) error {
	return driver.ErrPatchInstall{Reason: "launch-path patching requires linux and cgo"}
}

func writeGlobalDefault(*vertab.Record, mask.Mask) error {
	return errors.New("driver patching requires linux and cgo")
}
