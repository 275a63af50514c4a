package netcore

import "bytes"

// growthFactor is the constant multiplier applied to buf_size on every
// grow(): 4K -> 32K -> 256K -> 2M -> 16M ...
const growthFactor = 8

// ringBuffer is a per-connection circular byte buffer with vectored
// read/write support and on-demand growth. One slot is always kept free
// so that read_cursor == write_cursor is unambiguously "empty" rather
// than "full".
type ringBuffer struct {
	buf  []byte
	rPos int
	wPos int
}

// newRingBuffer allocates a ring sized to size, lazily — callers only pay
// for the allocation on first use of a connection.
func newRingBuffer(size int) *ringBuffer {
	if size <= 0 {
		size = initialBufferSize
	}
	return &ringBuffer{buf: make([]byte, size)}
}

// reset returns the buffer to its freshly-allocated state: cursors at
// zero and shrunk back to its initial size. If the backing array is
// already at initialSize it is reused rather than reallocated. A
// non-positive initialSize means initialBufferSize, as in newRingBuffer.
func (b *ringBuffer) reset(initialSize int) {
	if initialSize <= 0 {
		initialSize = initialBufferSize
	}
	b.rPos = 0
	b.wPos = 0
	if len(b.buf) != initialSize {
		b.buf = make([]byte, initialSize)
	}
}

// used returns the number of bytes currently queued.
func (b *ringBuffer) used() int {
	if b.wPos >= b.rPos {
		return b.wPos - b.rPos
	}
	return len(b.buf) - b.rPos + b.wPos
}

// available returns the number of bytes that may be written without
// growing: buf_size - used - 1.
func (b *ringBuffer) available() int {
	return len(b.buf) - b.used() - 1
}

// grow reallocates the backing array to size * growthFactor, linearising
// the used region so that read_cursor becomes 0 and write_cursor becomes
// the used byte count. Byte order is preserved across any wrap point.
func (b *ringBuffer) grow() {
	newSize := len(b.buf) * growthFactor
	n := b.used()
	newBuf := make([]byte, newSize)
	if n > 0 {
		if b.wPos > b.rPos {
			copy(newBuf, b.buf[b.rPos:b.wPos])
		} else {
			k := copy(newBuf, b.buf[b.rPos:])
			copy(newBuf[k:], b.buf[:b.wPos])
		}
	}
	b.buf = newBuf
	b.rPos = 0
	b.wPos = n
}

// readIOVec returns the contiguous writable regions suitable for readv:
// one slice if write_cursor >= read_cursor (plus a wrap-to-front second
// slice when read_cursor > 0), two slices if the buffer is already
// wrapped. One byte is always withheld so a full buffer never reports
// write_cursor == read_cursor.
func (b *ringBuffer) readIOVec() [][]byte {
	if b.wPos >= b.rPos {
		if b.rPos == 0 {
			// the withheld byte sits at the very end of the array, since
			// wrapping to index 0 would otherwise close the read/write gap.
			return [][]byte{b.buf[b.wPos : len(b.buf)-1]}
		}
		first := b.buf[b.wPos:]
		second := b.buf[:b.rPos-1]
		if len(second) == 0 {
			return [][]byte{first}
		}
		return [][]byte{first, second}
	}
	// already wrapped: writable region is [wPos, rPos-1)
	return [][]byte{b.buf[b.wPos : b.rPos-1]}
}

// writeIOVec returns the readable regions suitable for writev, in the
// same two-slice form as readIOVec. An empty buffer returns exactly one
// zero-length slice, never two.
func (b *ringBuffer) writeIOVec() [][]byte {
	if b.wPos >= b.rPos {
		return [][]byte{b.buf[b.rPos:b.wPos]}
	}
	return [][]byte{b.buf[b.rPos:], b.buf[:b.wPos]}
}

// advanceWrite advances write_cursor modulo buf_size after n bytes have
// been placed into the regions returned by readIOVec.
func (b *ringBuffer) advanceWrite(n int) {
	b.wPos = (b.wPos + n) % len(b.buf)
}

// advanceRead advances read_cursor modulo buf_size after n bytes have
// been consumed from the regions returned by writeIOVec. If the cursors
// become equal, both reset to zero (wrap-avoidance optimisation).
func (b *ringBuffer) advanceRead(n int) {
	b.rPos = (b.rPos + n) % len(b.buf)
	if b.rPos == b.wPos {
		b.rPos = 0
		b.wPos = 0
	}
}

// append copies p into the buffer, growing (possibly repeatedly) until it
// fits.
func (b *ringBuffer) append(p []byte) {
	for b.available() < len(p) {
		b.grow()
	}
	n := len(p)
	if n == 0 {
		return
	}
	end := len(b.buf)
	if b.wPos+n <= end {
		copy(b.buf[b.wPos:], p)
	} else {
		k := end - b.wPos
		copy(b.buf[b.wPos:], p[:k])
		copy(b.buf, p[k:])
	}
	b.advanceWrite(n)
}

// scanResult is the outcome of scanTo: Data is either an in-place slice of
// the ring's backing array (Alloc == false, valid only until the next
// mutation) or a freshly allocated contiguous copy (Alloc == true, set
// when the frame straddled the wrap point).
type scanResult struct {
	Data  []byte
	Alloc bool
	Found bool
}

// scanTo finds the first occurrence of term in the used region (searching
// across the wrap if necessary), returns the frame up to but not
// including term, and advances read_cursor past term. The terminator byte
// itself is overwritten with NUL in whichever buffer is returned. If term
// is not present, Found is false and the buffer is left untouched.
func (b *ringBuffer) scanTo(term byte) scanResult {
	n := b.used()
	if n == 0 {
		return scanResult{Found: false}
	}

	if b.wPos > b.rPos {
		// single contiguous run, cheap in-place path
		region := b.buf[b.rPos:b.wPos]
		idx := bytes.IndexByte(region, term)
		if idx < 0 {
			return scanResult{Found: false}
		}
		region[idx] = 0
		frame := region[:idx]
		b.advanceRead(idx + 1)
		return scanResult{Data: frame, Found: true}
	}

	// possibly wrapped (or empty handled above): search tail then head
	tail := b.buf[b.rPos:]
	if idx := bytes.IndexByte(tail, term); idx >= 0 {
		tail[idx] = 0
		frame := tail[:idx]
		b.advanceRead(idx + 1)
		return scanResult{Data: frame, Found: true}
	}
	head := b.buf[:b.wPos]
	idx := bytes.IndexByte(head, term)
	if idx < 0 {
		return scanResult{Found: false}
	}

	// frame straddles the wrap: must copy out a contiguous buffer.
	frame := make([]byte, len(tail)+idx+1)
	copy(frame, tail)
	copy(frame[len(tail):], head[:idx+1])
	frame[len(frame)-1] = 0
	result := frame[:len(frame)-1]
	head[idx] = 0
	b.advanceRead(len(tail) + idx + 1)
	return scanResult{Data: result, Alloc: true, Found: true}
}
