package netcore

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// isTransient reports whether err is a transient, retry-later I/O error
// (EAGAIN/EINTR/EWOULDBLOCK).
func isTransient(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR
}

// Send is the only write surface the core exposes externally. It
// branches on use_write_buf without the lock as a best-effort fast
// path: most replies are small enough that the direct writev never
// allocates or locks, and only sustained bulk traffic takes the spill
// path.
func (ctx *Context) Send(conn *Conn, buffers [][]byte) error {
	if !ctx.shouldRun.Load() {
		return ErrClosed
	}
	if conn.closed.Load() {
		return ErrConnClosed
	}
	if conn.useWriteBuf.Load() {
		return ctx.sendBuffered(conn, buffers)
	}
	return ctx.sendDirect(conn, buffers)
}

func (ctx *Context) sendDirect(conn *Conn, buffers [][]byte) error {
	total := 0
	for _, b := range buffers {
		total += len(b)
	}
	if total == 0 {
		return nil
	}

	sent, err := unix.Writev(conn.fd, buffers)
	switch {
	case err == nil && sent == total:
		return nil
	case err != nil && !isTransient(err):
		ctx.logger.Error("writev failed", zap.Int("fd", conn.fd), zap.Error(err))
		ctx.closeClient(conn)
		return err
	default:
		// transient error, or a short write: switch to spill mode.
		if sent < 0 {
			sent = 0
		}
		ctx.spill(conn, buffers, sent)
		return nil
	}
}

func (ctx *Context) sendBuffered(conn *Conn, buffers [][]byte) error {
	conn.outputLock.Lock()
	if !conn.useWriteBuf.Load() {
		// drained out from under us between the lock-free check and
		// acquiring the lock; fall through to the direct path.
		conn.outputLock.Unlock()
		return ctx.sendDirect(conn, buffers)
	}
	for _, b := range buffers {
		conn.output.append(b)
	}
	conn.outputLock.Unlock()
	return nil
}

// spill implements the spill-identification algorithm: find the buffer
// index and intra-buffer offset the kernel stopped at, append
// everything from there on into conn.output, and arm the write watcher.
func (ctx *Context) spill(conn *Conn, buffers [][]byte, sent int) {
	skipBytes := 0
	idx := 0
	for idx < len(buffers) {
		next := skipBytes + len(buffers[idx])
		if next > sent {
			break
		}
		skipBytes = next
		idx++
	}

	conn.outputLock.Lock()
	if idx < len(buffers) {
		offset := sent - skipBytes
		conn.output.append(buffers[idx][offset:])
		for i := idx + 1; i < len(buffers); i++ {
			conn.output.append(buffers[i])
		}
	}
	conn.useWriteBuf.Store(true)
	conn.outputLock.Unlock()

	ctx.postRearm(&conn.writeWatcher)
}

// drainOutput runs when the write-side watcher fires: flush conn.output
// with a single writev and, if it's not fully drained, arm the write
// watcher again.
func (ctx *Context) drainOutput(conn *Conn) {
	conn.outputLock.Lock()
	iov := conn.output.writeIOVec()
	n, err := unix.Writev(conn.fd, iov)
	if err != nil && !isTransient(err) {
		conn.outputLock.Unlock()
		ctx.logger.Error("writev (drain) failed", zap.Int("fd", conn.fd), zap.Error(err))
		ctx.closeClient(conn)
		return
	}
	if n > 0 {
		conn.output.advanceRead(n)
	}

	if conn.output.used() == 0 {
		conn.useWriteBuf.Store(false)
		conn.outputLock.Unlock()
		return
	}
	conn.outputLock.Unlock()
	ctx.postRearm(&conn.writeWatcher)
}
