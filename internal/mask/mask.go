// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

package mask

import (
	"fmt"
	"math/bits"
)

// Mask is the canonical TPC disable vector, 128 bits wide. A set bit i means
// TPC i is disabled for the launches the mask governs; the zero value leaves
// every TPC enabled.
//
// The three external encodings (single 64-bit word, 128-bit pair, four
// 32-bit words) all decode into this one type so their equivalence is
// structural rather than re-checked per call site.
type Mask struct {
	lo uint64 // TPCs 0-63
	hi uint64 // TPCs 64-127
}

// MaxWidth is the widest TPC index range any encoding can express.
const MaxWidth = 128

// FromUint64 decodes the single-word form. TPCs 64 and above are forced
// disabled, matching the documented behavior of 64-bit masks on devices
// with more than 64 TPCs.
func FromUint64(m uint64) Mask {
	return Mask{lo: m, hi: ^uint64(0)}
}

// FromUint128 decodes the extended form: lo covers TPCs 0-63, hi 64-127.
func FromUint128(hi, lo uint64) Mask {
	return Mask{lo: lo, hi: hi}
}

// FromWords32 decodes the four-word form. The words concatenate low to
// high: w1 covers TPCs 0-31, w4 covers TPCs 96-127.
func FromWords32(w1, w2, w3, w4 uint32) Mask {
	return Mask{
		lo: uint64(w1) | uint64(w2)<<32,
		hi: uint64(w3) | uint64(w4)<<32,
	}
}

// EnableOnly returns a mask that leaves only TPCs 0..n-1 enabled,
// disabling everything else. EnableOnly(1) is the canonical
// "pin to TPC 0" mask (~0x1 in the 64-bit form, widened).
func EnableOnly(n int) Mask {
	m := Mask{lo: ^uint64(0), hi: ^uint64(0)}
	for i := 0; i < n && i < MaxWidth; i++ {
		m = m.enable(i)
	}
	return m
}

func (m Mask) enable(i int) Mask {
	if i < 64 {
		m.lo &^= 1 << uint(i)
	} else {
		m.hi &^= 1 << uint(i-64)
	}
	return m
}

// Lo returns the word covering TPCs 0-63.
func (m Mask) Lo() uint64 { return m.lo }

// Hi returns the word covering TPCs 64-127.
func (m Mask) Hi() uint64 { return m.hi }

// Words32 returns the four-word form, low word first.
func (m Mask) Words32() [4]uint32 {
	return [4]uint32{
		uint32(m.lo),
		uint32(m.lo >> 32),
		uint32(m.hi),
		uint32(m.hi >> 32),
	}
}

// SignificantWords returns how many 32-bit words must be written to carry
// every set bit, counting from the low word. Descriptor layouts that store
// the mask as a variable-length word block use this to skip the all-zero
// tail, which the hardware infers from the leading zero count.
func (m Mask) SignificantWords() int {
	w := m.Words32()
	n := len(w)
	for n > 0 && w[n-1] == 0 {
		n--
	}
	return n
}

// Disabled reports whether TPC i is disabled. Indexes outside the mask
// width report true: a mask can never enable a TPC it cannot express.
func (m Mask) Disabled(i int) bool {
	switch {
	case i < 0 || i >= MaxWidth:
		return true
	case i < 64:
		return m.lo&(1<<uint(i)) != 0
	default:
		return m.hi&(1<<uint(i-64)) != 0
	}
}

// DisabledCount returns the number of disabled TPCs among indexes
// 0..width-1.
func (m Mask) DisabledCount(width int) int {
	if width > MaxWidth {
		width = MaxWidth
	}
	n := 0
	if width >= 64 {
		n = bits.OnesCount64(m.lo)
		n += bits.OnesCount64(m.hi & lowBits(width-64))
		return n
	}
	return bits.OnesCount64(m.lo & lowBits(width))
}

// lowBits returns a word with the low n bits set.
func lowBits(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(n) - 1
}

// Truncate clamps the mask to a device with tpcCount TPCs: every bit at or
// beyond tpcCount is set, since those TPCs do not exist and the hardware
// treats them as unavailable. The enforced width is
// min(MaxWidth, max(64, tpcCount)).
func (m Mask) Truncate(tpcCount int) Mask {
	if tpcCount < 0 {
		tpcCount = 0
	}
	if tpcCount >= MaxWidth {
		return m
	}
	if tpcCount >= 64 {
		m.hi |= ^uint64(0) << uint(tpcCount-64)
		return m
	}
	m.hi = ^uint64(0)
	m.lo |= ^uint64(0) << uint(tpcCount)
	return m
}

// IsZero reports whether no TPC is disabled.
func (m Mask) IsZero() bool { return m.lo == 0 && m.hi == 0 }

func (m Mask) String() string {
	if m.hi == 0 {
		return fmt.Sprintf("0x%x", m.lo)
	}
	return fmt.Sprintf("0x%x%016x", m.hi, m.lo)
}
