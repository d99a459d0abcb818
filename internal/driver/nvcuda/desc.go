// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

package nvcuda

import (
	"unsafe"

	"github.com/smpart/smpart/internal/driver"
	"github.com/smpart/smpart/internal/mask"
	"github.com/smpart/smpart/internal/vertab"
)

// descWriter gives the launch hook write access to an in-flight launch
// descriptor. The descriptor lives in driver-owned memory; every write
// goes through the resolved offset record, never a hard-coded layout.
type descWriter struct {
	base unsafe.Pointer
	rec  *vertab.Record
}

var _ driver.LaunchDescriptor = descWriter{}

// SetTPCMask serializes m into the descriptor using the record's layout.
func (w descWriter) SetTPCMask(m mask.Mask) {
	switch w.rec.Desc {
	case vertab.DescMask64:
		put64(w.base, w.rec.DescMaskOffset, m.Lo())

	case vertab.DescMask128:
		put64(w.base, w.rec.DescMaskOffset, m.Lo())
		put64(w.base, w.rec.DescMaskHiOffset, m.Hi())

	case vertab.DescLZC4:
		words := m.Words32()
		for i, word := range words {
			put32(w.base, w.rec.DescMaskOffset+uintptr(i)*4, word)
		}
		put32(w.base, w.rec.DescWordCountOffset, uint32(m.SignificantWords()))
	}
}

// writeStreamWords writes the mask words and the valid flag into a
// stream's launch-configuration object. The stream object stores the low
// word at StreamMaskOffset and, on releases whose descriptors are wider
// than 64 bits, the high word adjacent to it.
func writeStreamWords(rec *vertab.Record, s driver.Stream, m mask.Mask) {
	base := unsafe.Pointer(s) //nolint:govet // stream handles originate in the driver, outside the Go heap
	put64(base, rec.StreamMaskOffset, m.Lo())
	if rec.Desc != vertab.DescMask64 {
		put64(base, rec.StreamMaskOffset+8, m.Hi())
	}
	put32(base, rec.StreamMaskValidOffset, 1)
}

func put64(base unsafe.Pointer, off uintptr, v uint64) {
	*(*uint64)(unsafe.Add(base, off)) = v
}

func put32(base unsafe.Pointer, off uintptr, v uint32) {
	*(*uint32)(unsafe.Add(base, off)) = v
}
