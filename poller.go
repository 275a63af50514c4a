package netcore

import "golang.org/x/sys/unix"

// pollEvent reports the outcome of one waitOne call: either a ready file
// descriptor (with the directions that fired) or the internal wake-up
// signal used to break a blocked waitOne (see poller.wake).
type pollEvent struct {
	fd       int
	readable bool
	writable bool
	isWake   bool
}

// poller is the kernel event demultiplexer the leader/followers pool is
// wrapped around — edge-triggered, one-shot: once waitOne reports an fd,
// all interest in that fd is disarmed until armRead/armWrite is called
// again. This makes the watcher-stop/rearm protocol explicit, rather
// than relying on a library's implicit watcher object.
//
// Each fd carries a single kernel-level registration combining whatever
// of EPOLLIN/EPOLLOUT (or their kqueue EVFILT_READ/WRITE equivalents) is
// currently armed; armRead and armWrite independently add their
// direction to that combined mask, and a fired fd's mask is cleared
// entirely (both directions) until explicitly rearmed — the core above
// this layer re-posts exactly the directions it still wants, so this
// never loses a pending direction's interest.
type poller interface {
	addListener(fd int) error
	addConn(fd int) error
	armRead(fd int) error
	armWrite(fd int) error
	remove(fd int) error
	waitOne() (pollEvent, error)
	// wake unblocks a single pending waitOne call. postRearm uses it so
	// a queued re-arm is applied on the leader's next turn, and Shutdown
	// uses it to break the leader out of its blocking demultiplexer call.
	wake()
	close() error
}

// newWakePipe creates the self-pipe used to break a blocked waitOne (see
// poller.wake). It is common to every poller backend; unix.Pipe2 is
// Linux-only in golang.org/x/sys/unix, so portability across the BSD
// family is handled with plain Pipe + fcntl instead.
func newWakePipe() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}
	for _, fd := range fds {
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return 0, 0, err
		}
		flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
		if err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return 0, 0, err
		}
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags|unix.O_NONBLOCK); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return 0, 0, err
		}
	}
	return fds[0], fds[1], nil
}
