// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

// Package topo answers read-only topology queries: how many GPCs a device
// has, which TPCs belong to each, and the total TPC count. It shares the
// device and mask data model with the partitioning path but is independent
// of it and safe to call at any time from any thread.
package topo

import (
	"fmt"
	"log/slog"
	"math/bits"

	"github.com/smpart/smpart/internal/driver"
)

// Reader answers topology queries. The nvdebug-backed queries and the
// public-attribute fallback are independent: either collaborator may be
// absent without affecting the other.
type Reader struct {
	logger *slog.Logger
	intro  Introspector
	drv    driver.Driver
}

// New creates a Reader. A nil logger falls back to slog.Default().
func New(logger *slog.Logger, intro Introspector, drv driver.Driver) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		logger: logger.With("component", "topo"),
		intro:  intro,
		drv:    drv,
	}
}

// GPCInfo reports the number of enabled GPCs on a device and, per GPC,
// the bitmask of TPCs belonging to it. Requires the nvdebug module;
// its absence is ErrNoIntrospection.
func (r *Reader) GPCInfo(dev int) (int, []uint64, error) {
	count, err := r.intro.GPCCount(dev)
	if err != nil {
		return 0, nil, err
	}
	masks := make([]uint64, count)
	for gpc := 0; gpc < count; gpc++ {
		m, err := r.intro.GPCTPCMask(dev, gpc)
		if err != nil {
			return 0, nil, fmt.Errorf("reading GPC %d: %w", gpc, err)
		}
		masks[gpc] = m
	}
	return count, masks, nil
}

// TPCInfo reports the total number of TPCs on a device, as the sum of the
// per-GPC membership populations. Requires the nvdebug module.
func (r *Reader) TPCInfo(dev int) (int, error) {
	count, masks, err := r.GPCInfo(dev)
	if err != nil {
		return 0, err
	}
	total := 0
	for gpc := 0; gpc < count; gpc++ {
		total += bits.OnesCount64(masks[gpc])
	}
	return total, nil
}

// TPCInfoCUDA reports the total number of TPCs on a CUDA device, derived
// purely from public device attributes: the SM count divided by the
// per-architecture SMs-per-TPC figure. It has no nvdebug dependency.
func (r *Reader) TPCInfoCUDA(cudaDev int) (int, error) {
	sms, err := r.drv.DeviceMultiprocessorCount(cudaDev)
	if err != nil {
		return 0, err
	}
	major, minor, err := r.drv.DeviceComputeCapability(cudaDev)
	if err != nil {
		return 0, err
	}
	per := smsPerTPC(major, minor)
	if sms%per != 0 {
		return 0, fmt.Errorf("SM count %d is not a multiple of %d SMs per TPC (compute capability %d.%d)", sms, per, major, minor)
	}
	return sms / per, nil
}

// smsPerTPC returns how many SMs share a TPC. TPCs pair two SMs from
// GP100 (6.0) and Volta (7.0) onward; earlier parts map one SM per TPC.
func smsPerTPC(major, minor int) int {
	if major >= 7 || (major == 6 && minor == 0) {
		return 2
	}
	return 1
}
