// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

package ctrl

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smpart/smpart/internal/driver"
	"github.com/smpart/smpart/internal/mask"
	"github.com/smpart/smpart/internal/vertab"
)

// fakeDriver simulates the driver's launch path: a launch builds a
// descriptor from the stream mask when one is set, else from the global
// default, then runs the installed hook. The effective mask is whatever
// the descriptor holds afterwards, which is exactly the contract the real
// driver gives the patcher.
type fakeDriver struct {
	version    vertab.Version
	versionErr error
	installErr error

	mu       sync.Mutex
	installs int
	handler  driver.LaunchHandler
	global   mask.Mask
	streams  map[driver.Stream]mask.Mask
	streamOK map[driver.Stream]bool
}

func newFakeDriver(v vertab.Version) *fakeDriver {
	return &fakeDriver{
		version:  v,
		streams:  make(map[driver.Stream]mask.Mask),
		streamOK: make(map[driver.Stream]bool),
	}
}

func (f *fakeDriver) CudaVersion() (vertab.Version, error) {
	return f.version, f.versionErr
}

func (f *fakeDriver) WriteGlobalDefault(_ *vertab.Record, m mask.Mask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.global = m
	return nil
}

func (f *fakeDriver) WriteStreamMask(_ *vertab.Record, s driver.Stream, m mask.Mask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams[s] = m
	f.streamOK[s] = true
	return nil
}

func (f *fakeDriver) InstallLaunchHook(_ *vertab.Record, h driver.LaunchHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installs++
	if f.installErr != nil {
		return f.installErr
	}
	f.handler = h
	return nil
}

func (f *fakeDriver) DeviceCount() (int, error) { return 1, nil }

func (f *fakeDriver) DeviceName(int) (string, error) { return "fake", nil }

func (f *fakeDriver) DeviceMultiprocessorCount(int) (int, error) { return 0, nil }

func (f *fakeDriver) DeviceComputeCapability(int) (int, int, error) { return 0, 0, nil }

type fakeDesc struct {
	m mask.Mask
}

func (d *fakeDesc) SetTPCMask(m mask.Mask) { d.m = m }

// Launch simulates one kernel launch on s from the current thread and
// returns the effective TPC mask.
func (f *fakeDriver) Launch(s driver.Stream) mask.Mask {
	f.mu.Lock()
	desc := &fakeDesc{m: f.global}
	if f.streamOK[s] {
		desc.m = f.streams[s]
	}
	h := f.handler
	f.mu.Unlock()

	if h != nil {
		h(currentTID(), desc)
	}
	return desc.m
}

const stream1 = driver.Stream(0x1000)

func newController(t *testing.T) (*Controller, *fakeDriver) {
	t.Helper()
	drv := newFakeDriver(12060)
	c := New(nil, drv)
	return c, drv
}

func TestPrecedence(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	t.Run("global applies when nothing else is set", func(t *testing.T) {
		c, drv := newController(t)
		c.SetGlobalMask(^uint64(0x1))

		m := drv.Launch(stream1)
		assert.False(t, m.Disabled(0))
		for i := 1; i < 128; i++ {
			assert.True(t, m.Disabled(i), "tpc %d", i)
		}
	})

	t.Run("stream overrides global", func(t *testing.T) {
		c, drv := newController(t)
		c.SetGlobalMask(^uint64(0x1))
		c.SetStreamMask(stream1, ^uint64(0b1100))

		m := drv.Launch(stream1)
		assert.True(t, m.Disabled(0))
		assert.False(t, m.Disabled(2))
		assert.False(t, m.Disabled(3))

		// other streams still see the global default
		other := drv.Launch(driver.Stream(0x2000))
		assert.False(t, other.Disabled(0))
		assert.True(t, other.Disabled(2))
	})

	t.Run("next overrides stream and global", func(t *testing.T) {
		c, drv := newController(t)
		c.SetGlobalMask(^uint64(0x1))
		c.SetStreamMask(stream1, ^uint64(0b1111))
		c.SetNextMask(0x0)

		m := drv.Launch(stream1)
		assert.True(t, m.IsZero(), "all-enabled next mask wins for one launch, got %s", m)

		// the next launch reverts to the stream mask
		m = drv.Launch(stream1)
		for i := 0; i < 4; i++ {
			assert.False(t, m.Disabled(i), "tpc %d", i)
		}
		assert.True(t, m.Disabled(4))
	})
}

func TestNextMaskConsumeOnce(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c, drv := newController(t)

	c.SetNextMask(0x1)
	c.SetNextMask(0x2) // replaces, no queueing

	m := drv.Launch(stream1)
	assert.False(t, m.Disabled(0))
	assert.True(t, m.Disabled(1), "only the second mask applies")

	m = drv.Launch(stream1)
	assert.True(t, m.IsZero(), "no bleed-through after consumption")
}

func TestNextMaskAppliesToAnyStream(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c, drv := newController(t)
	c.SetStreamMask(stream1, ^uint64(0))
	c.SetNextMask(0x0)

	// the next mask is thread-scoped, not stream-scoped
	m := drv.Launch(driver.Stream(0x3000))
	assert.True(t, m.IsZero())
}

func TestNextMaskThreadIsolation(t *testing.T) {
	c, drv := newController(t)

	// arm a next mask from a different OS thread; this thread's launches
	// must not consume it
	armed := make(chan struct{})
	release := make(chan struct{})
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		c.SetNextMask(0xff)
		close(armed)
		<-release
	}()
	<-armed

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	m := drv.Launch(stream1)
	assert.True(t, m.IsZero(), "another thread's pending mask must not apply")
	close(release)
}

func TestStreamEncodingEquivalence(t *testing.T) {
	base := ^uint64(0b111100)

	c1, d1 := newController(t)
	c1.SetStreamMask(stream1, base)

	c2, d2 := newController(t)
	c2.SetStreamMaskExt(stream1, ^uint64(0), base)

	c3, d3 := newController(t)
	c3.SetStreamMaskLZC(stream1, uint32(base), uint32(base>>32), ^uint32(0), ^uint32(0))

	m1 := d1.Launch(stream1)
	m2 := d2.Launch(stream1)
	m3 := d3.Launch(stream1)

	for i := 0; i < 64; i++ {
		assert.Equal(t, m1.Disabled(i), m2.Disabled(i), "tpc %d: 64 vs ext", i)
		assert.Equal(t, m1.Disabled(i), m3.Disabled(i), "tpc %d: 64 vs lzc", i)
	}
}

func TestStreamMaskReplacement(t *testing.T) {
	c, drv := newController(t)

	c.SetStreamMask(stream1, ^uint64(0x1))
	c.SetStreamMask(stream1, ^uint64(0x2))

	m := drv.Launch(stream1)
	assert.True(t, m.Disabled(0))
	assert.False(t, m.Disabled(1), "re-setting replaces the prior value")
}

func TestUnsupportedVersion(t *testing.T) {
	drv := newFakeDriver(13370)
	c := New(nil, drv)

	c.SetGlobalMask(^uint64(0x1))
	c.SetStreamMask(stream1, ^uint64(0x1))
	c.SetNextMask(0x1)

	assert.True(t, drv.Launch(stream1).IsZero(), "mutating operations are inert")

	var unsup vertab.ErrUnsupportedVersion
	require.ErrorAs(t, c.Err(), &unsup)
	assert.Equal(t, vertab.Version(13370), unsup.Detected)
}

func TestPatchInstallFailure(t *testing.T) {
	drv := newFakeDriver(12060)
	drv.installErr = driver.ErrPatchInstall{Reason: "unexpected memory protection"}
	c := New(nil, drv)

	// accepted but without effect, observable via the diagnostic channel
	c.SetGlobalMask(^uint64(0x1))
	assert.True(t, drv.Launch(stream1).IsZero())

	var patch driver.ErrPatchInstall
	assert.ErrorAs(t, c.Err(), &patch)
}

func TestSetupRunsOnce(t *testing.T) {
	c, drv := newController(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.SetGlobalMask(0x1)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, drv.installs, "hook installed at most once per process")
	assert.NoError(t, c.Err())
	require.NotNil(t, c.Record())
	assert.Equal(t, vertab.Version(12060), c.Record().Version)
}

func TestGlobalMaskLastWriteWins(t *testing.T) {
	c, drv := newController(t)

	c.SetGlobalMask(^uint64(0x1))
	c.SetGlobalMask(^uint64(0x2))

	m := drv.Launch(stream1)
	assert.True(t, m.Disabled(0))
	assert.False(t, m.Disabled(1))
}

func TestGlobalMaskObservable(t *testing.T) {
	c, _ := newController(t)

	_, ok := c.GlobalMask()
	assert.False(t, ok, "no mask reported before the first write")

	c.SetGlobalMask(0xff)

	m, ok := c.GlobalMask()
	require.True(t, ok)
	assert.Equal(t, 8, m.DisabledCount(64))

	c.SetGlobalMask(0x1)
	m, _ = c.GlobalMask()
	assert.Equal(t, 1, m.DisabledCount(64), "accessor tracks the last write")
}

func TestGlobalMaskNotObservableWhenDegraded(t *testing.T) {
	drv := newFakeDriver(13370)
	c := New(nil, drv)

	c.SetGlobalMask(0xff)

	_, ok := c.GlobalMask()
	assert.False(t, ok, "a rejected write must not be reported")
}
