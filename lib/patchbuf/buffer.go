// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package patchbuf

import (
	"fmt"
	"io"
	"sync"
)

// Buffer is a growable byte store supporting append, absolute-offset
// patch writes, end-relative patch writes, and truncation or growth
// to an exact final length. The zero value is not usable; call New.
type Buffer struct {
	mu sync.RWMutex

	// main holds appended bytes and absolute-offset patches.
	main []byte

	// end holds the end-relative segment (the trailer tag). It is
	// positioned at endOffset, which is derived from the target
	// length and the distance passed to WriteEnd. endOffset is -1
	// until WriteEnd is called.
	end         []byte
	endOffset   int64
	endDistance int64

	// target is the total length of the finished file: the size
	// estimate until finalization fixes it exactly. -1 when unknown.
	target int64

	finalized bool
}

// New returns an empty Buffer with no target length.
func New() *Buffer {
	return &Buffer{endOffset: -1, target: -1}
}

// SetTarget fixes or refines the target length. The end segment, if
// already written, is re-pinned relative to the new target.
func (b *Buffer) SetTarget(target int64) error {
	if target < 0 {
		return fmt.Errorf("negative target length %d", target)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = target
	if b.end != nil {
		b.endOffset = target - b.endDistance - int64(len(b.end))
	}
	return nil
}

// Append extends the main segment. If the appended bytes would run
// into the end segment, grow pushes the end segment (and the target)
// forward to make room; otherwise the excess is dropped, keeping the
// end segment where the estimate pinned it.
func (b *Buffer) Append(p []byte, grow bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.main = append(b.main, p...)
	if b.endOffset >= 0 && int64(len(b.main)) > b.endOffset {
		if grow {
			b.endOffset = int64(len(b.main))
			b.target = b.endOffset + int64(len(b.end)) + b.endDistance
		} else {
			b.main = b.main[:b.endOffset]
		}
	}
}

// WriteAt overwrites bytes at a fixed absolute offset in the main
// segment, used to patch a region emitted earlier as a placeholder.
// Writing past the current main length extends it (never silently
// drops data).
func (b *Buffer) WriteAt(p []byte, off int64) error {
	if off < 0 {
		return fmt.Errorf("negative patch offset %d", off)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if want := off + int64(len(p)); want > int64(len(b.main)) {
		grown := make([]byte, want)
		copy(grown, b.main)
		b.main = grown
	}
	copy(b.main[off:], p)
	return nil
}

// WriteEnd places p so that it ends distance bytes before the final
// end of the file. Requires the target length to be set. A distance
// of zero pins p at the very end.
func (b *Buffer) WriteEnd(p []byte, distance int64) error {
	if distance < 0 {
		return fmt.Errorf("negative end distance %d", distance)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.target < 0 {
		return fmt.Errorf("end-relative write before target length is known")
	}
	off := b.target - distance - int64(len(p))
	if off < 0 {
		return fmt.Errorf("end segment of %d bytes at distance %d does not fit in target %d",
			len(p), distance, b.target)
	}
	b.end = append([]byte(nil), p...)
	b.endOffset = off
	b.endDistance = distance
	return nil
}

// Truncate fixes the target to exactly the bytes produced: the end
// segment is pulled back to sit immediately after the main segment
// and any slack from the estimate is discarded.
func (b *Buffer) Truncate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.endOffset >= 0 {
		if int64(len(b.main)) > b.endOffset {
			b.main = b.main[:b.endOffset]
		}
		b.endOffset = int64(len(b.main))
		b.target = b.endOffset + int64(len(b.end)) + b.endDistance
	} else {
		b.target = int64(len(b.main))
	}
	b.finalized = true
}

// Extend zero-fills the gap between the main segment and the end
// segment, keeping the estimated target length.
func (b *Buffer) Extend() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.endOffset > int64(len(b.main)) {
		grown := make([]byte, b.endOffset)
		copy(grown, b.main)
		b.main = grown
	}
	if b.target < 0 {
		b.target = int64(len(b.main)) + int64(len(b.end))
	}
	b.finalized = true
}

// ReadAt copies available bytes at off into p. It returns the number
// of bytes copied and whether the region beyond the copied bytes is
// still being produced. Offsets at or past the target length return
// io.EOF.
func (b *Buffer) ReadAt(p []byte, off int64) (int, bool, error) {
	if off < 0 {
		return 0, false, fmt.Errorf("negative read offset %d", off)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	size := b.sizeLocked()
	if off >= size {
		return 0, false, io.EOF
	}
	if max := size - off; int64(len(p)) > max {
		p = p[:max]
	}

	n := b.copyLocked(p, off)
	producing := !b.finalized && n < len(p)
	return n, producing, nil
}

// copyLocked copies the longest initialized run starting at off into
// p and returns its length. The run may span from the main segment
// into the end segment only when they are contiguous.
func (b *Buffer) copyLocked(p []byte, off int64) int {
	mainLen := int64(len(b.main))

	// Offset inside (or before the end of) the main segment.
	if off < mainLen {
		n := copy(p, b.main[off:])
		if int64(n) < int64(len(p)) && b.endOffset == mainLen {
			n += copy(p[n:], b.end)
		}
		return n
	}

	// Offset inside the end segment.
	if b.endOffset >= 0 && off >= b.endOffset {
		if rel := off - b.endOffset; rel < int64(len(b.end)) {
			return copy(p, b.end[rel:])
		}
		return 0
	}

	// Offset in the gap between segments: nothing produced yet.
	return 0
}

// Size returns the total length of the virtual file: the target
// (estimated or exact) when known, otherwise the bytes produced so
// far.
func (b *Buffer) Size() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sizeLocked()
}

func (b *Buffer) sizeLocked() int64 {
	if b.target >= 0 {
		return b.target
	}
	return int64(len(b.main))
}

// Len returns the produced length of the main segment.
func (b *Buffer) Len() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(len(b.main))
}

// Capacity returns the allocated byte capacity, charged against the
// cache budget.
func (b *Buffer) Capacity() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(cap(b.main) + cap(b.end))
}

// Finalized reports whether Truncate or Extend has fixed the final
// length.
func (b *Buffer) Finalized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.finalized
}
