// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

// Package vertab maps a detected CUDA driver version to the record of
// driver-internal structure offsets and hook points the rest of the module
// operates on. All patch and read logic is written purely in terms of a
// Record's fields; supporting a new driver release is a data addition here,
// not a code change elsewhere.
package vertab

import (
	"fmt"
	"sync"
)

// Version is the CUDA driver interface version as reported by the driver,
// in its conventional integer form: 1000*major + 10*minor (12060 = 12.6).
type Version int

// Major returns the major component of the version.
func (v Version) Major() int { return int(v) / 1000 }

// Minor returns the minor component of the version.
func (v Version) Minor() int { return (int(v) % 1000) / 10 }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major(), v.Minor())
}

// DescFormat identifies how a driver release lays out the TPC mask inside
// the in-flight launch descriptor.
type DescFormat int

const (
	// DescMask64 is a single 64-bit field (pre-Volta descriptors).
	DescMask64 DescFormat = iota
	// DescMask128 is a pair of 64-bit fields (Volta through Ada).
	DescMask128
	// DescLZC4 is a block of four 32-bit words plus a significant-word
	// count the hardware derives from the leading zeros (Hopper and later).
	DescLZC4
)

func (f DescFormat) String() string {
	switch f {
	case DescMask64:
		return "mask64"
	case DescMask128:
		return "mask128"
	case DescLZC4:
		return "lzc4"
	default:
		return "unknown"
	}
}

// Record holds every driver-internal offset and hook descriptor needed to
// patch the launch path and read launch configuration for one driver
// release. Records are resolved once and never mutated afterwards.
type Record struct {
	// Version the record was added for.
	Version Version

	// Desc is the launch descriptor mask layout.
	Desc DescFormat

	// DescMaskOffset is the byte offset of the mask field (the low word,
	// or the first of the four words for DescLZC4) within the launch
	// descriptor.
	DescMaskOffset uintptr

	// DescMaskHiOffset is the byte offset of the upper 64-bit word.
	// Meaningful only for DescMask128.
	DescMaskHiOffset uintptr

	// DescWordCountOffset is the byte offset of the significant-word
	// count field. Meaningful only for DescLZC4.
	DescWordCountOffset uintptr

	// GlobalDefaultOffset is the byte offset, within the driver's global
	// state block, of the default TPC mask field the driver's own launch
	// path consults when a stream carries no mask.
	GlobalDefaultOffset uintptr

	// StreamMaskOffset is the byte offset of the mask words within a
	// stream's launch-configuration object, and StreamMaskValidOffset the
	// offset of the flag that marks them authoritative. Zero offsets with
	// HasStreamMask unset mean the release predates per-stream masks.
	StreamMaskOffset      uintptr
	StreamMaskValidOffset uintptr

	// HookSlot is the launch-callback slot index within the driver's
	// debug export table.
	HookSlot int

	// HasStreamMask reports whether the release supports per-stream
	// masks (CUDA 8.0 and later).
	HasStreamMask bool
}

// ErrUnsupportedVersion is returned when the detected driver build has no
// matching offset record. The caller must fail closed: no driver memory is
// touched for such builds.
type ErrUnsupportedVersion struct {
	Detected Version
}

func (e ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("no offset record for CUDA driver version %s", e.Detected)
}

// A recordFunc constructs a Record. The indirection keeps unused records
// from being built: only the detected version's record is materialized.
type recordFunc func() *Record

var (
	records     map[Version]recordFunc
	recordsOnce sync.Once
)

func addRecord(v Version, cons recordFunc) recordFunc {
	if records == nil {
		records = make(map[Version]recordFunc)
	}
	wrapped := func() *Record {
		r := cons()
		r.Version = v
		return r
	}
	records[v] = wrapped
	return wrapped
}

// initRecords populates the version table. Each entry either stands alone
// or derives from its predecessor by copying and adjusting the fields that
// moved in that release; offsets come from inspection of the corresponding
// driver builds.
func initRecords() {
	// CUDA 6.5 through 7.5: 64-bit descriptor mask, no per-stream masks.
	v6050 := addRecord(6050, func() *Record {
		return &Record{
			Desc:                DescMask64,
			DescMaskOffset:      0x2f0,
			GlobalDefaultOffset: 0x2a8,
			HookSlot:            3,
		}
	})
	v7000 := addRecord(7000, derived(v6050, func(r *Record) {
		r.DescMaskOffset = 0x310
		r.GlobalDefaultOffset = 0x2c0
	}))
	v7050 := addRecord(7050, derived(v7000, nil))

	// CUDA 8.0 introduces the per-stream launch-configuration mask.
	v8000 := addRecord(8000, derived(v7050, func(r *Record) {
		r.HasStreamMask = true
		r.StreamMaskOffset = 0x6e8
		r.StreamMaskValidOffset = 0x6e0
	}))

	// CUDA 9.x through 10.x: descriptor grows the upper mask word.
	v9000 := addRecord(9000, derived(v8000, func(r *Record) {
		r.Desc = DescMask128
		r.DescMaskOffset = 0x4c8
		r.DescMaskHiOffset = 0x4d0
		r.GlobalDefaultOffset = 0x328
		r.StreamMaskOffset = 0x7b0
		r.StreamMaskValidOffset = 0x7a8
	}))
	v9010 := addRecord(9010, derived(v9000, nil))
	v9020 := addRecord(9020, derived(v9010, nil))
	v10000 := addRecord(10000, derived(v9020, func(r *Record) {
		r.StreamMaskOffset = 0x7d8
		r.StreamMaskValidOffset = 0x7d0
	}))
	v10010 := addRecord(10010, derived(v10000, nil))
	v10020 := addRecord(10020, derived(v10010, nil))

	// CUDA 11.x: global state block reorganized, hook table regrown.
	v11000 := addRecord(11000, derived(v10020, func(r *Record) {
		r.GlobalDefaultOffset = 0x348
		r.StreamMaskOffset = 0x8b0
		r.StreamMaskValidOffset = 0x8a8
		r.HookSlot = 4
	}))
	v11010 := addRecord(11010, derived(v11000, nil))
	v11020 := addRecord(11020, derived(v11010, nil))
	v11030 := addRecord(11030, derived(v11020, nil))
	v11040 := addRecord(11040, derived(v11030, func(r *Record) {
		r.StreamMaskOffset = 0x8d8
		r.StreamMaskValidOffset = 0x8d0
	}))
	v11050 := addRecord(11050, derived(v11040, nil))
	v11060 := addRecord(11060, derived(v11050, nil))
	v11070 := addRecord(11070, derived(v11060, nil))
	v11080 := addRecord(11080, derived(v11070, nil))

	// CUDA 12.0 through 12.2 keep the 128-bit pair.
	v12000 := addRecord(12000, derived(v11080, func(r *Record) {
		r.DescMaskOffset = 0x540
		r.DescMaskHiOffset = 0x548
		r.GlobalDefaultOffset = 0x360
		r.StreamMaskOffset = 0x928
		r.StreamMaskValidOffset = 0x920
	}))
	v12010 := addRecord(12010, derived(v12000, nil))
	v12020 := addRecord(12020, derived(v12010, nil))

	// CUDA 12.3 switches the descriptor to the four-word block with the
	// leading-zero-count convention.
	v12030 := addRecord(12030, derived(v12020, func(r *Record) {
		r.Desc = DescLZC4
		r.DescMaskOffset = 0x560
		r.DescMaskHiOffset = 0
		r.DescWordCountOffset = 0x570
	}))
	v12040 := addRecord(12040, derived(v12030, nil))
	v12050 := addRecord(12050, derived(v12040, nil))
	addRecord(12060, derived(v12050, func(r *Record) {
		r.StreamMaskOffset = 0x958
		r.StreamMaskValidOffset = 0x950
	}))
}

// derived returns a constructor that copies the parent record and applies
// adjust to the copy. A nil adjust means the layout did not move.
func derived(parent recordFunc, adjust func(*Record)) recordFunc {
	return func() *Record {
		r := *parent()
		if adjust != nil {
			adjust(&r)
		}
		return &r
	}
}

// Lookup resolves the offset record for a detected driver version. It is
// pure and idempotent: concurrent callers with the same version converge on
// an identical record.
func Lookup(v Version) (*Record, error) {
	recordsOnce.Do(initRecords)

	cons, ok := records[v]
	if !ok {
		return nil, ErrUnsupportedVersion{Detected: v}
	}
	return cons(), nil
}

// Supported reports whether a record exists for the version.
func Supported(v Version) bool {
	_, err := Lookup(v)
	return err == nil
}
