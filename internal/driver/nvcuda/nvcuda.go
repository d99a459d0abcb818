// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

// Package nvcuda implements the driver boundary against the NVIDIA stack:
// NVML for version detection and device attributes, and the CUDA driver
// library's debug export table for the launch-path hook.
package nvcuda

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/smpart/smpart/internal/driver"
	"github.com/smpart/smpart/internal/mask"
	"github.com/smpart/smpart/internal/vertab"
)

// Driver is the production driver.Driver backed by NVML and libcuda.
type Driver struct {
	logger      *slog.Logger
	lib         nvmlLib
	mu          sync.Mutex
	initialized bool
}

var _ driver.Driver = (*Driver)(nil)

// New creates a Driver. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Driver {
	return newWithLib(logger, newRealNvmlLib())
}

// newWithLib creates a Driver with a specific NVML implementation.
// This is used for testing with mock implementations.
func newWithLib(logger *slog.Logger, lib nvmlLib) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		logger: logger.With("component", "nvcuda"),
		lib:    lib,
	}
}

func (d *Driver) ensureInit() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return nil
	}
	if ret := d.lib.Init(); ret != nvml.SUCCESS {
		return fmt.Errorf("NVML init failed: %s", d.lib.ErrorString(ret))
	}
	d.initialized = true
	return nil
}

// CudaVersion reports the loaded driver's CUDA interface version.
func (d *Driver) CudaVersion() (vertab.Version, error) {
	if err := d.ensureInit(); err != nil {
		return 0, err
	}
	v, ret := d.lib.SystemGetCudaDriverVersion()
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("failed to query CUDA driver version: %s", d.lib.ErrorString(ret))
	}
	return vertab.Version(v), nil
}

// DeviceCount reports the number of devices NVML enumerates.
func (d *Driver) DeviceCount() (int, error) {
	if err := d.ensureInit(); err != nil {
		return 0, err
	}
	count, ret := d.lib.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("failed to get device count: %s", d.lib.ErrorString(ret))
	}
	return count, nil
}

// DeviceName reports a device's product name.
func (d *Driver) DeviceName(dev int) (string, error) {
	handle, err := d.deviceHandle(dev)
	if err != nil {
		return "", err
	}
	name, ret := handle.GetName()
	if ret != nvml.SUCCESS {
		return "", fmt.Errorf("failed to get device %d name: %s", dev, d.lib.ErrorString(ret))
	}
	return name, nil
}

func (d *Driver) deviceHandle(dev int) (nvmlDeviceHandle, error) {
	count, err := d.DeviceCount()
	if err != nil {
		return nil, err
	}
	if dev < 0 || dev >= count {
		return nil, driver.ErrInvalidDevice{Index: dev}
	}
	handle, ret := d.lib.DeviceGetHandleByIndex(dev)
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("failed to get device %d handle: %s", dev, d.lib.ErrorString(ret))
	}
	return handle, nil
}

// DeviceComputeCapability reports a device's compute capability.
func (d *Driver) DeviceComputeCapability(dev int) (int, int, error) {
	handle, err := d.deviceHandle(dev)
	if err != nil {
		return 0, 0, err
	}
	major, minor, ret := handle.GetCudaComputeCapability()
	if ret != nvml.SUCCESS {
		return 0, 0, fmt.Errorf("failed to get compute capability: %s", d.lib.ErrorString(ret))
	}
	return major, minor, nil
}

// DeviceMultiprocessorCount reports the SM count of a device. NVML only
// exposes the total CUDA core count, so the SM count is derived through
// the per-architecture cores-per-SM figure.
func (d *Driver) DeviceMultiprocessorCount(dev int) (int, error) {
	handle, err := d.deviceHandle(dev)
	if err != nil {
		return 0, err
	}
	cores, ret := handle.GetNumGpuCores()
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("failed to get core count: %s", d.lib.ErrorString(ret))
	}
	major, minor, ret := handle.GetCudaComputeCapability()
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("failed to get compute capability: %s", d.lib.ErrorString(ret))
	}
	per := coresPerSM(major, minor)
	if per == 0 || cores%per != 0 {
		return 0, fmt.Errorf("cannot derive SM count for compute capability %d.%d (%d cores)", major, minor, cores)
	}
	return cores / per, nil
}

// coresPerSM returns the CUDA core count per SM for a compute capability,
// or 0 when the architecture is unknown.
func coresPerSM(major, minor int) int {
	switch major {
	case 3:
		return 192
	case 5:
		return 128
	case 6:
		if minor == 0 {
			return 64
		}
		return 128
	case 7:
		return 64
	case 8:
		if minor == 0 {
			return 64
		}
		return 128
	case 9, 10, 12:
		return 128
	default:
		return 0
	}
}

// WriteGlobalDefault overwrites the driver's global default TPC mask field.
func (d *Driver) WriteGlobalDefault(rec *vertab.Record, m mask.Mask) error {
	if err := d.ensureInit(); err != nil {
		return err
	}
	return writeGlobalDefault(rec, m)
}

// WriteStreamMask writes the mask words and valid flag into the stream's
// launch-configuration object.
func (d *Driver) WriteStreamMask(rec *vertab.Record, s driver.Stream, m mask.Mask) error {
	if s == 0 {
		return fmt.Errorf("nil stream handle")
	}
	if !rec.HasStreamMask {
		return fmt.Errorf("driver %s predates per-stream masks", rec.Version)
	}
	writeStreamWords(rec, s, m)
	return nil
}

// InstallLaunchHook installs h into the driver's launch path via the debug
// export table. At most one hook is installed per process.
func (d *Driver) InstallLaunchHook(rec *vertab.Record, h driver.LaunchHandler) error {
	if err := d.ensureInit(); err != nil {
		return driver.ErrPatchInstall{Reason: err.Error()}
	}
	if err := installLaunchHook(rec, h); err != nil {
		return err
	}
	d.logger.Info("launch-path hook installed", "version", rec.Version, "slot", rec.HookSlot)
	return nil
}
