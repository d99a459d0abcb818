// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

package nvcuda

import (
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlLib abstracts the NVML library functions for testability.
// This allows mocking NVML calls in unit tests.
type nvmlLib interface {
	Init() nvml.Return
	Shutdown() nvml.Return
	SystemGetCudaDriverVersion() (int, nvml.Return)
	DeviceGetCount() (int, nvml.Return)
	DeviceGetHandleByIndex(index int) (nvmlDeviceHandle, nvml.Return)
	ErrorString(ret nvml.Return) string
}

// nvmlDeviceHandle abstracts operations on an NVML device handle.
type nvmlDeviceHandle interface {
	GetName() (string, nvml.Return)
	GetUUID() (string, nvml.Return)
	GetCudaComputeCapability() (int, int, nvml.Return)
	GetNumGpuCores() (int, nvml.Return)
}

// realNvmlLib is the production implementation that calls the actual NVML library.
type realNvmlLib struct{}

// realDeviceHandle wraps an actual nvml.Device
type realDeviceHandle struct {
	device nvml.Device
}

// newRealNvmlLib creates a new real NVML library wrapper.
func newRealNvmlLib() nvmlLib {
	return &realNvmlLib{}
}

func (r *realNvmlLib) Init() nvml.Return {
	return nvml.Init()
}

func (r *realNvmlLib) Shutdown() nvml.Return {
	return nvml.Shutdown()
}

func (r *realNvmlLib) SystemGetCudaDriverVersion() (int, nvml.Return) {
	return nvml.SystemGetCudaDriverVersion()
}

func (r *realNvmlLib) DeviceGetCount() (int, nvml.Return) {
	return nvml.DeviceGetCount()
}

func (r *realNvmlLib) DeviceGetHandleByIndex(index int) (nvmlDeviceHandle, nvml.Return) {
	handle, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return nil, ret
	}
	return &realDeviceHandle{device: handle}, ret
}

func (r *realNvmlLib) ErrorString(ret nvml.Return) string {
	return nvml.ErrorString(ret)
}

func (h *realDeviceHandle) GetName() (string, nvml.Return) {
	return h.device.GetName()
}

func (h *realDeviceHandle) GetUUID() (string, nvml.Return) {
	return h.device.GetUUID()
}

func (h *realDeviceHandle) GetCudaComputeCapability() (int, int, nvml.Return) {
	return h.device.GetCudaComputeCapability()
}

func (h *realDeviceHandle) GetNumGpuCores() (int, nvml.Return) {
	return h.device.GetNumGpuCores()
}
