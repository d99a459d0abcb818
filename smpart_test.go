// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

package smpart

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/smpart/smpart/internal/driver"
	"github.com/smpart/smpart/internal/mask"
	"github.com/smpart/smpart/internal/vertab"
)

// stubDriver reports an unsupported driver build and records whether any
// write reached it.
type stubDriver struct {
	writes int
}

func (d *stubDriver) CudaVersion() (vertab.Version, error) { return 42000, nil }

func (d *stubDriver) WriteGlobalDefault(*vertab.Record, mask.Mask) error {
	d.writes++
	return nil
}

func (d *stubDriver) WriteStreamMask(*vertab.Record, driver.Stream, mask.Mask) error {
	d.writes++
	return nil
}

func (d *stubDriver) InstallLaunchHook(*vertab.Record, driver.LaunchHandler) error { return nil }

func (d *stubDriver) DeviceCount() (int, error) { return 0, nil }

func (d *stubDriver) DeviceName(int) (string, error) {
	return "", driver.ErrInvalidDevice{Index: 0}
}

func (d *stubDriver) DeviceMultiprocessorCount(int) (int, error) {
	return 0, driver.ErrInvalidDevice{Index: 0}
}

func (d *stubDriver) DeviceComputeCapability(int) (int, int, error) {
	return 0, 0, driver.ErrInvalidDevice{Index: 0}
}

// resetDefaults rebinds the package-level state for one test.
func resetDefaults(t *testing.T, drv driver.Driver, root string) {
	t.Helper()
	mu.Lock()
	control = nil
	reader = nil
	prevLogger, prevDriver, prevRoot := logger, newDriver, procRoot
	logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	newDriver = func(*slog.Logger) driver.Driver { return drv }
	procRoot = root
	mu.Unlock()

	t.Cleanup(func() {
		mu.Lock()
		control = nil
		reader = nil
		logger, newDriver, procRoot = prevLogger, prevDriver, prevRoot
		mu.Unlock()
	})
}

func TestMaskSettersInertOnUnsupportedDriver(t *testing.T) {
	drv := &stubDriver{}
	resetDefaults(t, drv, t.TempDir())

	SetGlobalMask(^uint64(0x1))
	SetStreamMask(Stream(0x1000), ^uint64(0x1))
	SetStreamMaskExt(Stream(0x1000), 0, 0x1)
	SetStreamMaskLZC(Stream(0x1000), 1, 0, 0, 0)
	SetNextMask(0x1)

	assert.Zero(t, drv.writes, "no driver memory is touched on unsupported builds")

	var unsup vertab.ErrUnsupportedVersion
	assert.ErrorAs(t, Err(), &unsup)
}

func TestTopologySurface(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "gpu0")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "num_gpcs"), []byte("2\n"), 0o644))
	for gpc, m := range []uint64{0x7, 0x38} {
		require.NoError(t, os.WriteFile(
			filepath.Join(dir, fmt.Sprintf("gpc%d_tpc_mask", gpc)),
			[]byte(fmt.Sprintf("0x%x\n", m)), 0o644))
	}
	resetDefaults(t, &stubDriver{}, root)

	count, masks, err := GetGPCInfo(0)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []uint64{0x7, 0x38}, masks)

	tpcs, err := GetTPCInfo(0)
	require.NoError(t, err)
	assert.Equal(t, 6, tpcs)
	assert.Equal(t, 0, Errno(err))
}

func TestTopologyErrno(t *testing.T) {
	resetDefaults(t, &stubDriver{}, t.TempDir())

	_, _, err := GetGPCInfo(0)
	require.Error(t, err)
	assert.Equal(t, int(unix.ENOENT), Errno(err))

	_, err = GetTPCInfoCUDA(0)
	require.Error(t, err)
	assert.Equal(t, int(unix.ENODEV), Errno(err))
}
