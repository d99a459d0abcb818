// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux && cgo

package nvcuda

import "C"

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// smpartGoLaunchCallback is invoked by the C trampoline on the launching
// thread for every kernel launch, with a pointer to the in-flight launch
// descriptor. It runs after the driver has resolved stream/global
// configuration into the descriptor.
//
//export smpartGoLaunchCallback
func smpartGoLaunchCallback(desc unsafe.Pointer) {
	st := activeHook.Load()
	if st == nil || desc == nil {
		return
	}
	st.handler(unix.Gettid(), descWriter{base: desc, rec: st.rec})
}
