package netcore

import (
	"net"

	"github.com/kavu/go_reuseport"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Context holds the config, the command handler, the listener watchers,
// the leader/followers pool, the async event channel, the connection
// registry, and the should_run flag. It is the value returned by Init
// and threaded through every exported operation.
type Context struct {
	cfg     *Config
	handler Handler
	logger  *zap.Logger

	tcpListener *net.TCPListener
	tcpFD       int
	udpConn     *net.UDPConn
	udpFD       int

	poller   poller
	asyncQ   *asyncQueue
	pool     *leaderPool
	registry *registry

	shouldRun atomic.Bool
}

// Init binds listeners on the configured TCP and UDP ports (both
// INADDR_ANY), with SO_REUSEADDR and a backlog of 64, and prepares the
// poller, registry, and async queue. It does not start any workers —
// call StartWorker once per pool slot.
func Init(cfg *Config, handler Handler, logger *zap.Logger) (*Context, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = newNopLogger()
	}

	p, err := newPoller()
	if err != nil {
		logger.Error("event-loop init failed", zap.Error(err))
		return nil, errors.Wrap(err, "netcore: init poller")
	}

	ctx := &Context{
		cfg:      cfg,
		handler:  handler,
		logger:   logger,
		poller:   p,
		asyncQ:   newAsyncQueue(),
		registry: newRegistry(),
	}
	ctx.pool = newLeaderPool(ctx)
	ctx.shouldRun.Store(true)

	if err := ctx.setupTCPListener(); err != nil {
		p.close()
		logger.Error("failed to bind TCP listener", zap.Error(err))
		return nil, err
	}
	if err := ctx.setupUDPListener(); err != nil {
		ctx.tcpListener.Close()
		p.close()
		logger.Error("failed to bind UDP listener", zap.Error(err))
		return nil, err
	}

	return ctx, nil
}

func (ctx *Context) setupTCPListener() error {
	addr := ":" // INADDR_ANY
	ln, err := go_reuseport.Listen("tcp", addr+itoa(ctx.cfg.TCPPort))
	if err != nil {
		return errors.Wrap(err, "netcore: listen tcp")
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return errors.New("netcore: reuseport listener is not a *net.TCPListener")
	}
	ctx.tcpListener = tcpLn

	fd, err := fdFromConn(tcpLn)
	if err != nil {
		tcpLn.Close()
		return err
	}
	ctx.tcpFD = fd

	// go_reuseport.Listen already called listen(2) with its own backlog;
	// a second listen(2) call on the same socket (the duplicated fd
	// shares the kernel's open file description with the original) only
	// adjusts the backlog, per the Linux listen(2) man page, so this is
	// what actually enforces listenBacklog rather than the library's
	// default.
	if err := unix.Listen(fd, listenBacklog); err != nil {
		tcpLn.Close()
		return errors.Wrap(err, "netcore: listen tcp backlog")
	}

	if err := ctx.poller.addListener(fd); err != nil {
		tcpLn.Close()
		return errors.Wrap(err, "netcore: watch tcp listener")
	}
	return nil
}

func (ctx *Context) setupUDPListener() error {
	pc, err := go_reuseport.ListenPacket("udp", ":"+itoa(ctx.cfg.UDPPort))
	if err != nil {
		return errors.Wrap(err, "netcore: listen udp")
	}
	udpConn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return errors.New("netcore: reuseport packet conn is not a *net.UDPConn")
	}
	ctx.udpConn = udpConn

	fd, err := fdFromConn(udpConn)
	if err != nil {
		udpConn.Close()
		return err
	}
	ctx.udpFD = fd

	// Watched one-shot like every listener but never re-armed: dispatch
	// logs its readiness at WARN and never reads a datagram.
	if err := ctx.poller.addListener(fd); err != nil {
		udpConn.Close()
		return errors.Wrap(err, "netcore: watch udp listener")
	}
	return nil
}

// StartWorker blocks until Shutdown is called; it is expected to be
// invoked from each worker thread (goroutine) by the host program, with
// the pool size equal to cfg.WorkerThreads.
func (ctx *Context) StartWorker() {
	ctx.pool.wg.Add(1)
	defer ctx.pool.wg.Done()
	ctx.pool.run()
}

// Run is a convenience wrapper that launches cfg.WorkerThreads goroutines,
// each running the worker loop as StartWorker does, and blocks until
// Shutdown.
func (ctx *Context) Run() {
	n := ctx.cfg.WorkerThreads
	ctx.pool.wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer ctx.pool.wg.Done()
			ctx.pool.run()
		}()
	}
	ctx.pool.wait()
}

// Shutdown is idempotent: it stops the workers, closes the listeners, and
// tears down every connection in the registry.
func (ctx *Context) Shutdown() {
	if !ctx.shouldRun.CompareAndSwap(true, false) {
		return
	}

	ctx.asyncQ.post(asyncEvent{kind: eventExit})
	ctx.poller.wake()
	ctx.pool.wait()

	if ctx.tcpListener != nil {
		ctx.poller.remove(ctx.tcpFD)
		ctx.tcpListener.Close()
		// ctx.tcpFD is a separate descriptor entry dup(2)'d off
		// tcpListener's fd (see fdFromConn) for the poller/accept calls to
		// use directly; closing the listener doesn't close it, so it's
		// closed here explicitly.
		unix.Close(ctx.tcpFD)
	}
	if ctx.udpConn != nil {
		ctx.udpConn.Close()
		unix.Close(ctx.udpFD)
	}

	ctx.registry.shutdown(func(c *Conn) {
		ctx.poller.remove(c.fd)
		unix.Close(c.fd)
	})

	ctx.poller.close()
}

// drainAsync applies every queued async event (re-arming watchers,
// observing Exit) and reports whether an Exit event was seen. Must be
// called with the leader mutex held, so that every watcher re-arm this
// core performs is serialised with the single blocking demultiplexer
// call each leader makes in turn.
func (ctx *Context) drainAsync() (exit bool) {
	for _, ev := range ctx.asyncQ.drain() {
		switch ev.kind {
		case eventExit:
			exit = true
		case eventRearm:
			ctx.rearm(ev.watcher)
		}
	}
	return exit
}

func (ctx *Context) rearm(w *watcherHandle) {
	if w == nil {
		return
	}
	var err error
	if w.writing {
		err = ctx.poller.armWrite(w.fd)
	} else {
		err = ctx.poller.armRead(w.fd)
	}
	if err != nil {
		ctx.logger.Error("failed to rearm watcher", zap.Int("fd", w.fd), zap.Bool("writing", w.writing), zap.Error(err))
	}
}

// postRearm enqueues a watcher re-arm async event and wakes the leader
// blocked in waitOne, so the re-arm is applied on its next turn.
func (ctx *Context) postRearm(w *watcherHandle) {
	ctx.asyncQ.post(asyncEvent{kind: eventRearm, watcher: w})
	ctx.poller.wake()
}
