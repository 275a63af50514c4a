package netcore

import (
	"net"
	"sync"

	"go.uber.org/atomic"
)

// watcherHandle is a registered interest in a file descriptor's
// readability or writability — one-shot in this design: stopped when it
// fires, re-armed only through an asyncEvent.
type watcherHandle struct {
	fd      int
	writing bool // false = read-side watcher, true = write-side watcher
	armed   bool
}

// Conn is a connection record: a back-pointer to the networking context,
// two watcher handles bound to the same fd, the input/output ring
// buffers, the output spinlock-equivalent mutex, and the use_write_buf /
// should_schedule flags.
//
// A Conn is created on first accept for a given fd and retained (not
// freed) across close to allow reuse by a future accept on the same fd;
// it is destroyed only at Shutdown.
type Conn struct {
	ctx *Context
	fd  int

	readWatcher  watcherHandle
	writeWatcher watcherHandle

	input  *ringBuffer
	output *ringBuffer

	outputLock  sync.Mutex
	useWriteBuf atomic.Bool
	shouldSched atomic.Bool
	closed      atomic.Bool

	netConn net.Conn
}

// RemoteAddr returns the remote address of the net.Conn recorded in
// netConn, or nil when none is recorded. Connections accepted by the core
// do not record one, so for them it returns nil.
func (c *Conn) RemoteAddr() net.Addr {
	if c.netConn == nil {
		return nil
	}
	return c.netConn.RemoteAddr()
}

// FD returns the file descriptor number backing this connection. Close
// closes the descriptor but the number stays recorded here, and a future
// accept may hand out the same number again.
func (c *Conn) FD() int {
	return c.fd
}

// Send writes buffers to the connection through the adaptive output
// path (direct writev, spilling to a per-connection buffer under load).
// It is the only write surface a Handler should use to reply.
func (c *Conn) Send(buffers [][]byte) error {
	return c.ctx.Send(c, buffers)
}

// Close force-closes the connection.
func (c *Conn) Close() {
	c.ctx.closeClient(c)
}

// Scan finds the first occurrence of term in the connection's input
// buffer and returns the frame up to (not including) it. The returned
// slice is only valid until the next mutation of this connection's
// input buffer unless alloc is true.
func (c *Conn) Scan(term byte) (line []byte, alloc bool, ok bool) {
	res := c.input.scanTo(term)
	return res.Data, res.Alloc, res.Found
}

// initBuffers lazily allocates (or, on reuse, resets) the connection's
// input/output ring buffers at connection-record creation / re-accept
// time.
func (c *Conn) initBuffers(initialSize int) {
	if c.input == nil {
		c.input = newRingBuffer(initialSize)
	} else {
		c.input.reset(initialSize)
	}
	if c.output == nil {
		c.output = newRingBuffer(initialSize)
	} else {
		c.output.reset(initialSize)
	}
	c.useWriteBuf.Store(false)
	c.closed.Store(false)
}
