// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromUint64(t *testing.T) {
	m := FromUint64(0x1)
	assert.True(t, m.Disabled(0))
	assert.False(t, m.Disabled(1))
	assert.False(t, m.Disabled(63))

	// TPCs 64+ are always disabled in the single-word form
	for _, i := range []int{64, 100, 127} {
		assert.True(t, m.Disabled(i), "TPC %d should be disabled", i)
	}
}

func TestEncodingEquivalence(t *testing.T) {
	tests := []struct {
		name string
		m64  uint64
	}{
		{"pin to tpc0", ^uint64(0x1)},
		{"tpcs 2-4 only", ^uint64(0b00011100)},
		{"all enabled", 0},
		{"all disabled", ^uint64(0)},
		{"high bit", 1 << 63},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := FromUint64(tc.m64)
			b := FromUint128(^uint64(0), tc.m64)
			c := FromWords32(uint32(tc.m64), uint32(tc.m64>>32), ^uint32(0), ^uint32(0))

			for i := 0; i < 64; i++ {
				assert.Equal(t, a.Disabled(i), b.Disabled(i), "tpc %d: 64 vs 128", i)
				assert.Equal(t, a.Disabled(i), c.Disabled(i), "tpc %d: 64 vs lzc", i)
			}
		})
	}
}

func TestFromWords32(t *testing.T) {
	m := FromWords32(0x1, 0x2, 0x4, 0x8)
	assert.True(t, m.Disabled(0))
	assert.True(t, m.Disabled(33))
	assert.True(t, m.Disabled(66))
	assert.True(t, m.Disabled(99))
	assert.False(t, m.Disabled(1))
	assert.False(t, m.Disabled(32))

	assert.Equal(t, [4]uint32{0x1, 0x2, 0x4, 0x8}, m.Words32())
}

func TestSignificantWords(t *testing.T) {
	assert.Equal(t, 0, FromUint128(0, 0).SignificantWords())
	assert.Equal(t, 1, FromUint128(0, 0x1).SignificantWords())
	assert.Equal(t, 2, FromUint128(0, 1<<40).SignificantWords())
	assert.Equal(t, 3, FromUint128(0x1, 0).SignificantWords())
	assert.Equal(t, 4, FromUint128(1<<63, 0).SignificantWords())
}

func TestTruncate(t *testing.T) {
	t.Run("64-bit mask on 80 TPC device disables 64-79", func(t *testing.T) {
		m := FromUint64(0).Truncate(80)
		for i := 0; i < 64; i++ {
			assert.False(t, m.Disabled(i), "tpc %d", i)
		}
		for i := 64; i < 128; i++ {
			assert.True(t, m.Disabled(i), "tpc %d", i)
		}
	})

	t.Run("narrow device disables high bits", func(t *testing.T) {
		m := FromUint128(0, 0).Truncate(20)
		assert.False(t, m.Disabled(19))
		assert.True(t, m.Disabled(20))
		assert.True(t, m.Disabled(63))
		assert.True(t, m.Disabled(64))
	})

	t.Run("explicit bits survive", func(t *testing.T) {
		m := FromUint128(0, 0b101).Truncate(40)
		assert.True(t, m.Disabled(0))
		assert.False(t, m.Disabled(1))
		assert.True(t, m.Disabled(2))
	})

	t.Run("full width is identity", func(t *testing.T) {
		m := FromUint128(0xdead, 0xbeef)
		assert.Equal(t, m, m.Truncate(128))
		assert.Equal(t, m, m.Truncate(500))
	})
}

func TestEnableOnly(t *testing.T) {
	m := EnableOnly(4)
	for i := 0; i < 4; i++ {
		assert.False(t, m.Disabled(i))
	}
	for _, i := range []int{4, 63, 64, 127} {
		assert.True(t, m.Disabled(i))
	}

	assert.Equal(t, ^uint64(0b1111), EnableOnly(4).Lo())
}

func TestDisabledCount(t *testing.T) {
	assert.Equal(t, 0, Mask{}.DisabledCount(128))
	assert.Equal(t, 1, FromUint128(0, 0x1).DisabledCount(128))
	assert.Equal(t, 64, FromUint64(0).DisabledCount(128)) // widened upper half
	assert.Equal(t, 0, FromUint64(0).DisabledCount(64))
	assert.Equal(t, 3, FromUint128(0, 0b111).DisabledCount(2)+FromUint128(0, 0b111).DisabledCount(1))
}

func TestString(t *testing.T) {
	assert.Equal(t, "0x0", Mask{}.String())
	assert.Equal(t, "0xff", FromUint128(0, 0xff).String())
	assert.Equal(t, "0x10000000000000000ff", FromUint128(1, 0xff).String())
}
