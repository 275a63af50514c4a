package netcore

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// dispatch classifies a claimed watcher and drives the correct handler.
// It runs outside the leader mutex, so any number of
// workers may be inside it concurrently, each operating on a different
// fd — the read watcher being stopped-until-rearmed is what keeps a
// single connection's reads serialised.
func (ctx *Context) dispatch(ev pollEvent) {
	if ev.fd == ctx.tcpFD {
		ctx.acceptTCP()
		return
	}
	if ev.fd == ctx.udpFD {
		// The UDP listener is one-shot and never re-armed (see
		// setupUDPListener), so this fires at most once; no datagram is
		// read.
		ctx.logger.Warn("udp readiness ignored: UDP handling is not implemented")
		return
	}

	conn, ok := ctx.registry.get(ev.fd)
	if !ok {
		return
	}

	if ev.writable {
		ctx.drainOutput(conn)
	}
	if ev.readable {
		ctx.handleReadable(conn)
	}
}

// acceptTCP accepts one new connection off the TCP listener, configures
// its socket options, binds it into the registry, and arms its read
// watcher — then re-arms the listener itself, since it is one-shot like
// every other watcher.
func (ctx *Context) acceptTCP() {
	defer ctx.postRearm(&watcherHandle{fd: ctx.tcpFD})

	fd, _, err := unix.Accept(ctx.tcpFD)
	if err != nil {
		if !isTransient(err) {
			ctx.logger.Error("accept failed", zap.Error(err))
		}
		return
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		ctx.logger.Warn("failed to set O_NONBLOCK on accepted socket", zap.Error(err))
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		ctx.logger.Warn("failed to set TCP_NODELAY", zap.Error(err))
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		ctx.logger.Warn("failed to set SO_KEEPALIVE", zap.Error(err))
	}

	conn := ctx.registry.getOrCreate(fd, func() *Conn {
		return &Conn{ctx: ctx, fd: fd}
	})
	conn.fd = fd
	conn.readWatcher = watcherHandle{fd: fd, writing: false}
	conn.writeWatcher = watcherHandle{fd: fd, writing: true}
	conn.initBuffers(ctx.cfg.InitialBufferSize)
	conn.shouldSched.Store(true)

	if err := ctx.poller.addConn(fd); err != nil {
		ctx.logger.Error("failed to watch accepted socket", zap.Error(err))
		ctx.closeClient(conn)
		return
	}

	ctx.postRearm(&conn.readWatcher)
}

// handleReadable reads whatever is available into the connection's input
// buffer, then synchronously invokes the command handler. Reads are
// serialised per connection because the read watcher stays disarmed
// until the handler returns and this function re-posts its rearm.
func (ctx *Context) handleReadable(conn *Conn) {
	if conn.input.available() < len(conn.input.buf)/2 {
		conn.input.grow()
	}

	iov := conn.input.readIOVec()
	n, err := unix.Readv(conn.fd, iov)

	switch {
	case err != nil && isTransient(err):
		// leave the connection intact; the caller re-arms below.
	case n == 0 && err == nil:
		ctx.logger.Debug("peer closed connection", zap.Int("fd", conn.fd))
		ctx.closeClient(conn)
		return
	case err != nil:
		ctx.logger.Error("readv failed", zap.Int("fd", conn.fd), zap.Error(err))
		ctx.closeClient(conn)
		return
	default:
		conn.input.advanceWrite(n)
	}

	if ctx.handler != nil {
		ctx.handler.HandleData(conn)
	}

	if conn.shouldSched.Load() {
		ctx.postRearm(&conn.readWatcher)
	}
}

// closeClient tears the connection down: should_schedule cleared, both
// watchers stopped, buffers reset, fd closed. The record itself is
// retained in its registry slot for reuse by a future accept on the
// same fd.
func (ctx *Context) closeClient(conn *Conn) {
	conn.closed.Store(true)
	conn.shouldSched.Store(false)
	ctx.poller.remove(conn.fd)

	if conn.input != nil {
		conn.input.reset(ctx.cfg.InitialBufferSize)
	}
	conn.outputLock.Lock()
	if conn.output != nil {
		conn.output.reset(ctx.cfg.InitialBufferSize)
	}
	conn.useWriteBuf.Store(false)
	conn.outputLock.Unlock()

	unix.Close(conn.fd)
}
