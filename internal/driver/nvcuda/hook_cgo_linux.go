// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux && cgo

package nvcuda

/*
#cgo LDFLAGS: -ldl

#include <dlfcn.h>
#include <stdint.h>
#include <stddef.h>

// The CUDA driver exposes internal function tables through
// cuGetExportTable, keyed by UUID. This is the debug/tools table carrying
// the per-launch callback registration co-opted here. Its identity has
// been stable across the supported release range; the callback slot index
// moves between releases and is tracked in the version offset table.
static const unsigned char smpartDebugTableUuid[16] = {
	0x2c, 0x8e, 0x0a, 0xd8, 0x24, 0xc7, 0x74, 0x4e,
	0xa7, 0x8f, 0xd6, 0x5f, 0xab, 0x3e, 0x7a, 0x8c
};

typedef int (*smpartGetExportTable_t)(const void **table, const void *uuid);
typedef int (*smpartRegisterCb_t)(void (*cb)(void *launchDesc));

extern void smpartGoLaunchCallback(void *launchDesc);

static void smpartLaunchTrampoline(void *launchDesc) {
	smpartGoLaunchCallback(launchDesc);
}

static int smpartExportTable(const void ***tableOut) {
	// RTLD_NOLOAD: the driver library must already be loaded by the
	// application; this module never pulls it in itself.
	void *lib = dlopen("libcuda.so.1", RTLD_LAZY | RTLD_NOLOAD);
	if (lib == NULL)
		lib = dlopen("libcuda.so", RTLD_LAZY | RTLD_NOLOAD);
	if (lib == NULL)
		return 1;
	smpartGetExportTable_t get =
		(smpartGetExportTable_t)dlsym(lib, "cuGetExportTable");
	if (get == NULL)
		return 2;
	const void **table = NULL;
	if (get((const void **)&table, smpartDebugTableUuid) != 0 || table == NULL)
		return 3;
	*tableOut = table;
	return 0;
}

// smpartInstallLaunchHook registers the trampoline in the given slot of
// the debug table. Returns 0 on success.
int smpartInstallLaunchHook(int slot) {
	const void **table = NULL;
	int rc = smpartExportTable(&table);
	if (rc != 0)
		return rc;
	smpartRegisterCb_t reg = (smpartRegisterCb_t)table[slot];
	if (reg == NULL)
		return 4;
	if (reg(smpartLaunchTrampoline) != 0)
		return 5;
	return 0;
}

// smpartGlobalStateBase resolves the driver's global state block exposed
// in the debug table.
int smpartGlobalStateBase(void **base) {
	const void **table = NULL;
	int rc = smpartExportTable(&table);
	if (rc != 0)
		return rc;
	if (table[1] == NULL)
		return 4;
	*base = (void *)table[1];
	return 0;
}
*/
import "C"

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/smpart/smpart/internal/driver"
	"github.com/smpart/smpart/internal/mask"
	"github.com/smpart/smpart/internal/vertab"
)

// hookState couples the installed handler to the record it was installed
// with. It is set exactly once per process.
type hookState struct {
	rec     *vertab.Record
	handler driver.LaunchHandler
}

var activeHook atomic.Pointer[hookState]

func installLaunchHook(rec *vertab.Record, h driver.LaunchHandler) error {
	st := &hookState{rec: rec, handler: h}
	if !activeHook.CompareAndSwap(nil, st) {
		return driver.ErrPatchInstall{Reason: "hook already installed in this process"}
	}
	if rc := C.smpartInstallLaunchHook(C.int(rec.HookSlot)); rc != 0 {
		activeHook.Store(nil)
		return driver.ErrPatchInstall{Reason: hookFailure(int(rc))}
	}
	return nil
}

func writeGlobalDefault(rec *vertab.Record, m mask.Mask) error {
	var base unsafe.Pointer
	if rc := C.smpartGlobalStateBase(&base); rc != 0 {
		return fmt.Errorf("resolve driver global state: %s", hookFailure(int(rc)))
	}
	put64(base, rec.GlobalDefaultOffset, m.Lo())
	if rec.Desc != vertab.DescMask64 {
		put64(base, rec.GlobalDefaultOffset+8, m.Hi())
	}
	return nil
}

func hookFailure(rc int) string {
	switch rc {
	case 1:
		return "driver library is not loaded in this process"
	case 2:
		return "export-table entry point not found"
	case 3:
		return "debug export table unavailable"
	case 4:
		return "hook point absent from debug table"
	case 5:
		return "callback registration rejected"
	default:
		return fmt.Sprintf("unknown failure %d", rc)
	}
}
