// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

// Package driver defines the boundary to the GPU driver library: version
// detection, device-attribute queries, and the narrow, capability-gated
// surface through which launch configuration is patched. The production
// implementation lives in the nvcuda subpackage; tests substitute fakes.
package driver

import (
	"fmt"

	"github.com/smpart/smpart/internal/mask"
	"github.com/smpart/smpart/internal/vertab"
)

// Stream is an opaque driver stream handle. Only its identity is used;
// this module never dereferences it. The driver owns stream lifetime: a
// destroyed-and-reused handle value carries whatever association the
// driver-side object still holds.
type Stream uintptr

// LaunchDescriptor is the in-flight configuration for a single kernel
// submission. The only operation this module performs on it is writing the
// resolved TPC mask before the launch reaches hardware.
type LaunchDescriptor interface {
	SetTPCMask(m mask.Mask)
}

// LaunchHandler runs synchronously on the launching thread for every
// kernel launch, after the driver has already resolved the stream-or-global
// mask into the descriptor. tid is the OS thread id of the launching
// thread.
type LaunchHandler func(tid int, desc LaunchDescriptor)

// Driver is the GPU driver library collaborator.
type Driver interface {
	// CudaVersion reports the loaded driver's CUDA interface version.
	CudaVersion() (vertab.Version, error)

	// WriteGlobalDefault overwrites the driver-internal default TPC mask
	// field that every launch without a more specific mask consults.
	WriteGlobalDefault(rec *vertab.Record, m mask.Mask) error

	// WriteStreamMask writes the mask words and valid flag into the
	// stream's launch-configuration object.
	WriteStreamMask(rec *vertab.Record, s Stream, m mask.Mask) error

	// InstallLaunchHook installs h into the driver's launch path. It must
	// be called at most once per process and verifies the hook point
	// before returning; failure is ErrPatchInstall and leaves the driver
	// untouched.
	InstallLaunchHook(rec *vertab.Record, h LaunchHandler) error

	// DeviceCount reports the number of devices the driver enumerates.
	DeviceCount() (int, error)

	// DeviceName reports a device's product name.
	DeviceName(dev int) (string, error)

	// DeviceMultiprocessorCount reports the SM count of a device.
	DeviceMultiprocessorCount(dev int) (int, error)

	// DeviceComputeCapability reports a device's compute capability.
	DeviceComputeCapability(dev int) (major, minor int, err error)
}

// ErrPatchInstall is returned when the launch-path hook could not be
// installed. Subsequent mask writes are accepted but have no effect.
type ErrPatchInstall struct {
	Reason string
}

func (e ErrPatchInstall) Error() string {
	return fmt.Sprintf("launch-path hook installation failed: %s", e.Reason)
}

// ErrInvalidDevice is returned for device indexes outside the enumerated
// range.
type ErrInvalidDevice struct {
	Index int
}

func (e ErrInvalidDevice) Error() string {
	return fmt.Sprintf("device index out of range: %d", e.Index)
}
