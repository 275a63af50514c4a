package netcore

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingBufferAppendAndReadAll(t *testing.T) {
	b := newRingBuffer(16)
	b.append([]byte("hello"))
	require.Equal(t, 5, b.used())

	iov := b.writeIOVec()
	require.Len(t, iov, 1)
	require.Equal(t, "hello", string(iov[0]))
}

func TestRingBufferAvailableInvariant(t *testing.T) {
	b := newRingBuffer(8)
	require.Equal(t, len(b.buf)-1, b.available())

	b.append([]byte("1234567"))
	require.Equal(t, 7, b.used())
	require.Equal(t, 0, b.available())
}

func TestRingBufferGrowOnAppend(t *testing.T) {
	b := newRingBuffer(8)
	b.append([]byte("1234567"))
	require.Equal(t, 8, len(b.buf))

	// one more byte than fits forces a grow to 8*growthFactor = 64.
	b.append([]byte("8"))
	require.Equal(t, 64, len(b.buf))
	require.Equal(t, "12345678", string(b.writeIOVec()[0]))
}

func TestRingBufferGrowPreservesOrderAcrossWrap(t *testing.T) {
	b := newRingBuffer(8)
	// construct a wrapped configuration directly: rPos=6, wPos=3, used
	// bytes (in logical order) a,b,c,d,e at positions 6,7,0,1,2.
	copy(b.buf, []byte{'c', 'd', 'e', 0, 0, 0, 'a', 'b'})
	b.rPos = 6
	b.wPos = 3

	b.grow()
	require.Equal(t, 0, b.rPos)
	require.Equal(t, 5, b.wPos)
	require.Equal(t, "abcde", string(b.buf[b.rPos:b.wPos]))
}

func TestRingBufferCursorResetWhenEmptied(t *testing.T) {
	b := newRingBuffer(8)
	b.append([]byte("abc"))
	b.advanceRead(3)
	require.Equal(t, 0, b.rPos)
	require.Equal(t, 0, b.wPos)
}

func TestRingBufferRoundtripRandom(t *testing.T) {
	b := newRingBuffer(8)
	var want bytes.Buffer

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		n := rng.Intn(5) + 1
		chunk := make([]byte, n)
		rng.Read(chunk)
		b.append(chunk)
		want.Write(chunk)

		if rng.Intn(3) == 0 {
			// drain some, simulating a partial writev
			drain := rng.Intn(want.Len() + 1)
			got := readN(b, drain)
			require.Equal(t, want.Next(drain), got)
		}
	}
	require.Equal(t, want.Bytes(), readAll(b))
}

func TestRingBufferScanToSimple(t *testing.T) {
	b := newRingBuffer(16)
	b.append([]byte("ping\npong\n"))

	res := b.scanTo('\n')
	require.True(t, res.Found)
	require.False(t, res.Alloc)
	require.Equal(t, "ping", string(res.Data))

	res2 := b.scanTo('\n')
	require.True(t, res2.Found)
	require.Equal(t, "pong", string(res2.Data))

	res3 := b.scanTo('\n')
	require.False(t, res3.Found)
}

func TestRingBufferScanToNotFound(t *testing.T) {
	b := newRingBuffer(16)
	b.append([]byte("no terminator here"))
	res := b.scanTo('\n')
	require.False(t, res.Found)
	// buffer must be untouched on a failed scan.
	require.Equal(t, "no terminator here", string(b.writeIOVec()[0]))
}

func TestRingBufferScanToWrapAllocates(t *testing.T) {
	b := newRingBuffer(8)
	// force a wrapped configuration where the frame straddles the wrap:
	// rPos=6, wPos=3, bytes at 6,7,0,1,2 = a,b,c,\n,d
	copy(b.buf, []byte{'c', '\n', 'd', 0, 0, 0, 'a', 'b'})
	b.rPos = 6
	b.wPos = 3

	res := b.scanTo('\n')
	require.True(t, res.Found)
	require.True(t, res.Alloc)
	require.Equal(t, "abc", string(res.Data))
	// four bytes consumed (a, b, c, terminator): (6 + 4) mod 8 = 2.
	require.Equal(t, 2, b.rPos)
}

func TestRingBufferEmptyWriteIOVecIsSingleSlice(t *testing.T) {
	b := newRingBuffer(8)
	iov := b.writeIOVec()
	require.Len(t, iov, 1)
	require.Len(t, iov[0], 0)
}

// readAll drains every used byte from b via writeIOVec, without mutating
// cursors permanently beyond the drain (used for test assertions only).
func readAll(b *ringBuffer) []byte {
	return readN(b, b.used())
}

func readN(b *ringBuffer, n int) []byte {
	if n == 0 {
		return nil
	}
	out := make([]byte, 0, n)
	remaining := n
	for remaining > 0 {
		iov := b.writeIOVec()
		took := 0
		for _, part := range iov {
			if remaining == 0 {
				break
			}
			k := len(part)
			if k > remaining {
				k = remaining
			}
			out = append(out, part[:k]...)
			remaining -= k
			took += k
		}
		b.advanceRead(took)
		if took == 0 {
			break
		}
	}
	return out
}
