// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package ctrl

// Partitioning only works against the linux driver stack; elsewhere the
// hook never installs, so the thread id is only ever used as a map key by
// tests.
func currentTID() int {
	return 0
}
