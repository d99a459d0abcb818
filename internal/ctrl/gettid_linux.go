// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package ctrl

import "golang.org/x/sys/unix"

func currentTID() int {
	return unix.Gettid()
}
