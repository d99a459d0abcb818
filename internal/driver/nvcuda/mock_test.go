// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

package nvcuda

import (
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// mockNvmlLib implements nvmlLib for tests.
type mockNvmlLib struct {
	initRet     nvml.Return
	cudaVersion int
	versionRet  nvml.Return
	devices     []*mockDeviceHandle

	initCount int
}

func (m *mockNvmlLib) Init() nvml.Return {
	m.initCount++
	return m.initRet
}

func (m *mockNvmlLib) Shutdown() nvml.Return {
	return nvml.SUCCESS
}

func (m *mockNvmlLib) SystemGetCudaDriverVersion() (int, nvml.Return) {
	return m.cudaVersion, m.versionRet
}

func (m *mockNvmlLib) DeviceGetCount() (int, nvml.Return) {
	return len(m.devices), nvml.SUCCESS
}

func (m *mockNvmlLib) DeviceGetHandleByIndex(index int) (nvmlDeviceHandle, nvml.Return) {
	if index < 0 || index >= len(m.devices) {
		return nil, nvml.ERROR_INVALID_ARGUMENT
	}
	return m.devices[index], nvml.SUCCESS
}

func (m *mockNvmlLib) ErrorString(ret nvml.Return) string {
	return nvml.ErrorString(ret)
}

// mockDeviceHandle implements nvmlDeviceHandle for tests.
type mockDeviceHandle struct {
	name     string
	uuid     string
	ccMajor  int
	ccMinor  int
	gpuCores int
}

func (m *mockDeviceHandle) GetName() (string, nvml.Return) {
	return m.name, nvml.SUCCESS
}

func (m *mockDeviceHandle) GetUUID() (string, nvml.Return) {
	return m.uuid, nvml.SUCCESS
}

func (m *mockDeviceHandle) GetCudaComputeCapability() (int, int, nvml.Return) {
	return m.ccMajor, m.ccMinor, nvml.SUCCESS
}

func (m *mockDeviceHandle) GetNumGpuCores() (int, nvml.Return) {
	return m.gpuCores, nvml.SUCCESS
}
