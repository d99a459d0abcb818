// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

// Package ctrl holds the mask stores and the launch-path patching logic:
// the process-wide default mask, per-stream masks, and the one-shot
// next-launch mask, resolved in that reverse order of precedence at every
// kernel launch.
package ctrl

import (
	"log/slog"
	"sync"

	"github.com/smpart/smpart/internal/driver"
	"github.com/smpart/smpart/internal/mask"
	"github.com/smpart/smpart/internal/vertab"
)

// Controller owns all partitioning state for one driver instance. Tests
// construct independent controllers; production code uses one per process.
//
// All methods are safe for concurrent use. Mask setters never fail the
// caller: on an unsupported driver version or a failed hook installation
// they degrade to no-ops, and the condition is observable through Err().
type Controller struct {
	logger *slog.Logger
	drv    driver.Driver

	setupOnce sync.Once
	rec       *vertab.Record
	setupErr  error

	// next holds at most one pending mask per OS thread, consumed by the
	// launch hook on that thread's next launch.
	nextMu sync.Mutex
	next   map[int]mask.Mask

	// last successfully written global mask, for observability
	globalMu  sync.RWMutex
	global    mask.Mask
	hasGlobal bool

	errMu   sync.RWMutex
	lastErr error
}

// New creates a Controller over drv. A nil logger falls back to
// slog.Default().
func New(logger *slog.Logger, drv driver.Driver) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		logger: logger.With("component", "ctrl"),
		drv:    drv,
		next:   make(map[int]mask.Mask),
	}
}

// setup resolves the driver version to an offset record and installs the
// launch hook. It runs at most once; concurrent first calls converge on
// the same outcome.
func (c *Controller) setup() {
	c.setupOnce.Do(func() {
		v, err := c.drv.CudaVersion()
		if err != nil {
			c.setupErr = err
			c.logger.Warn("driver version detection failed; partitioning disabled", "error", err)
			return
		}
		rec, err := vertab.Lookup(v)
		if err != nil {
			c.setupErr = err
			c.logger.Warn("unsupported driver version; partitioning disabled", "version", v)
			return
		}
		if err := c.drv.InstallLaunchHook(rec, c.onLaunch); err != nil {
			c.setupErr = err
			c.logger.Warn("launch hook installation failed; partitioning disabled", "version", v, "error", err)
			return
		}
		c.rec = rec
		c.logger.Info("partitioning enabled", "version", v, "descriptor", rec.Desc)
	})
}

// ready reports whether mask writes can take effect.
func (c *Controller) ready() bool {
	c.setup()
	return c.setupErr == nil
}

// Err reports the diagnostic condition disabling partitioning, or the most
// recent write failure. The documented mask-setter surface stays silent;
// this is the observable side channel.
func (c *Controller) Err() error {
	c.setup()
	if c.setupErr != nil {
		return c.setupErr
	}
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.lastErr
}

// Record returns the resolved offset record, or nil when partitioning is
// disabled.
func (c *Controller) Record() *vertab.Record {
	c.setup()
	return c.rec
}

func (c *Controller) fail(msg string, err error) {
	c.logger.Warn(msg, "error", err)
	c.errMu.Lock()
	c.lastErr = err
	c.errMu.Unlock()
}

// SetGlobalMask sets the process-wide default TPC mask consulted by every
// launch with no more specific override, including driver-internal ones.
// Concurrent writers are last-write-wins.
func (c *Controller) SetGlobalMask(m uint64) {
	if !c.ready() {
		return
	}
	gm := mask.FromUint64(m)
	if err := c.drv.WriteGlobalDefault(c.rec, gm); err != nil {
		c.fail("global mask write failed", err)
		return
	}
	c.globalMu.Lock()
	c.global = gm
	c.hasGlobal = true
	c.globalMu.Unlock()
}

// GlobalMask returns the last global mask successfully written through
// this controller. ok is false until the first write takes effect; the
// driver's own default is not observable.
func (c *Controller) GlobalMask() (mask.Mask, bool) {
	c.globalMu.RLock()
	defer c.globalMu.RUnlock()
	return c.global, c.hasGlobal
}

// SetStreamMask associates a 64-bit mask with a stream. It overrides the
// global mask for launches on that stream and is superseded by a pending
// next-launch mask. There is no unset: the all-zero mask re-enables every
// TPC. The association lives in the driver-owned stream object, so a
// destroyed-and-reused handle value carries it over; callers own stream
// lifetime.
func (c *Controller) SetStreamMask(s driver.Stream, m uint64) {
	c.setStream(s, mask.FromUint64(m))
}

// SetStreamMaskExt is SetStreamMask with a 128-bit mask for devices with
// more than 64 TPCs.
func (c *Controller) SetStreamMaskExt(s driver.Stream, hi, lo uint64) {
	c.setStream(s, mask.FromUint128(hi, lo))
}

// SetStreamMaskLZC is SetStreamMask in the four-word encoding: w1 covers
// TPCs 0-31 through w4 covering TPCs 96-127.
func (c *Controller) SetStreamMaskLZC(s driver.Stream, w1, w2, w3, w4 uint32) {
	c.setStream(s, mask.FromWords32(w1, w2, w3, w4))
}

func (c *Controller) setStream(s driver.Stream, m mask.Mask) {
	if !c.ready() {
		return
	}
	if err := c.drv.WriteStreamMask(c.rec, s, m); err != nil {
		c.fail("stream mask write failed", err)
	}
}

// SetNextMask arms a one-shot mask consumed by exactly the next kernel
// launch from the calling OS thread, overriding stream and global masks
// for that single launch. Arming again before a launch replaces the
// pending value.
//
// The contract is thread-scoped: the caller must pin the goroutine with
// runtime.LockOSThread and issue the launch from the same thread.
func (c *Controller) SetNextMask(m uint64) {
	if !c.ready() {
		return
	}
	tid := currentTID()
	c.nextMu.Lock()
	c.next[tid] = mask.FromUint64(m)
	c.nextMu.Unlock()
}

// onLaunch runs on the launching thread for every kernel launch. The
// driver has already resolved the stream-or-global mask into the
// descriptor; the hook's only job is the next-launch override, consumed
// atomically so exactly one launch observes it.
func (c *Controller) onLaunch(tid int, desc driver.LaunchDescriptor) {
	c.nextMu.Lock()
	m, ok := c.next[tid]
	if ok {
		delete(c.next, tid)
	}
	c.nextMu.Unlock()

	if ok {
		desc.SetTPCMask(m)
	}
}
