// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

// Package smpart controls which Thread Processing Clusters (TPCs) the
// NVIDIA driver lets a kernel launch use, and answers topology queries
// describing how TPCs group into GPCs.
//
// A set mask bit disables the corresponding TPC. Masks apply at three
// levels with fixed precedence: a one-shot next-launch mask set from the
// launching thread, a per-stream mask, and a process-wide global default,
// in that order. Mask setters never fail the caller; on unsupported driver
// builds they degrade to no-ops observable through Err.
//
// Pin the goroutine with runtime.LockOSThread around SetNextMask and the
// launch that is meant to consume it: the one-shot contract is scoped to
// the OS thread, not the goroutine or the call site.
package smpart

import (
	"log/slog"
	"sync"

	"github.com/smpart/smpart/internal/ctrl"
	"github.com/smpart/smpart/internal/driver"
	"github.com/smpart/smpart/internal/driver/nvcuda"
	"github.com/smpart/smpart/internal/topo"
)

// Stream is an opaque CUDA stream handle (the CUstream pointer value).
type Stream = driver.Stream

var (
	mu      sync.Mutex
	logger  *slog.Logger
	control *ctrl.Controller
	reader  *topo.Reader

	// indirections for tests
	newDriver = func(l *slog.Logger) driver.Driver { return nvcuda.New(l) }
	procRoot  = "/proc"
)

// SetLogger routes this package's diagnostics through l. It only takes
// effect before the first partitioning or topology call.
func SetLogger(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

func defaults() (*ctrl.Controller, *topo.Reader) {
	mu.Lock()
	defer mu.Unlock()
	if control == nil {
		drv := newDriver(logger)
		control = ctrl.New(logger, drv)
		reader = topo.New(logger, topo.NewProcIntrospector(procRoot), drv)
	}
	return control, reader
}

// SetGlobalMask sets the default TPC mask for all kernels, including
// CUDA-internal ones. Supported for CUDA 6.5 through 12.6.
func SetGlobalMask(mask uint64) {
	c, _ := defaults()
	c.SetGlobalMask(mask)
}

// SetStreamMask sets the TPC mask for all kernels launched via stream,
// overriding the global mask. Supported for CUDA 8.0 through 12.6.
//
// The association lives in the driver-owned stream object: if the driver
// reuses a destroyed handle's memory for a new stream, the new stream
// observes the old mask. No persistence across handle reuse is promised.
func SetStreamMask(stream Stream, mask uint64) {
	c, _ := defaults()
	c.SetStreamMask(stream, mask)
}

// SetStreamMaskExt is SetStreamMask with a 128-bit mask, for devices with
// more than 64 TPCs.
func SetStreamMaskExt(stream Stream, hi, lo uint64) {
	c, _ := defaults()
	c.SetStreamMaskExt(stream, hi, lo)
}

// SetStreamMaskLZC is SetStreamMask in the four-word encoding: mask1
// covers TPCs 0-31 through mask4 covering TPCs 96-127.
func SetStreamMaskLZC(stream Stream, mask1, mask2, mask3, mask4 uint32) {
	c, _ := defaults()
	c.SetStreamMaskLZC(stream, mask1, mask2, mask3, mask4)
}

// SetNextMask sets the TPC mask consumed by exactly the next kernel
// launch from the calling OS thread, overriding global and per-stream
// masks for that one launch. Supported for CUDA 6.5 through 12.6.
func SetNextMask(mask uint64) {
	c, _ := defaults()
	c.SetNextMask(mask)
}

// Err reports why partitioning is disabled (unsupported driver version,
// failed hook installation) or the most recent mask-write failure. It
// returns nil while everything is in effect.
func Err() error {
	c, _ := defaults()
	return c.Err()
}

// GetGPCInfo reports the number of enabled GPCs on device dev and, per
// GPC, the bitmask of TPCs belonging to it. Requires the nvdebug kernel
// module; dev is an nvdebug device index.
func GetGPCInfo(dev int) (int, []uint64, error) {
	_, r := defaults()
	return r.GPCInfo(dev)
}

// GetTPCInfo reports the total number of TPCs on device dev. Requires
// the nvdebug kernel module.
func GetTPCInfo(dev int) (int, error) {
	_, r := defaults()
	return r.TPCInfo(dev)
}

// GetTPCInfoCUDA reports the total number of TPCs on a CUDA device,
// using only public device-attribute queries. It does not require
// nvdebug.
func GetTPCInfoCUDA(cudaDev int) (int, error) {
	_, r := defaults()
	return r.TPCInfoCUDA(cudaDev)
}

// Errno maps an informational-query error to its errno-compatible code:
// 0 for nil, ENOENT when the introspection module is absent, ENODEV for
// an out-of-range device.
func Errno(err error) int {
	return topo.Errno(err)
}
