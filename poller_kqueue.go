//go:build darwin || netbsd || freebsd || openbsd || dragonfly

package netcore

import (
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// kqueuePoller implements poller on the BSD family via kqueue(2). Each
// direction is a distinct EVFILT_READ/EVFILT_WRITE filter registered with
// EV_ONESHOT, so — unlike the Linux epoll backend, which disarms both
// directions on any single fd's readiness — each direction here clears
// independently; armRead/armWrite only ever re-add the filter they own.
type kqueuePoller struct {
	kq int

	mu      sync.Mutex
	reading map[int]bool
	writing map[int]bool

	wakeR, wakeW int
}

func newPoller() (poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, errors.Wrap(err, "netcore: kqueue")
	}

	wakeR, wakeW, err := newWakePipe()
	if err != nil {
		unix.Close(kq)
		return nil, errors.Wrap(err, "netcore: wake pipe")
	}

	p := &kqueuePoller{kq: kq, reading: make(map[int]bool), writing: make(map[int]bool), wakeR: wakeR, wakeW: wakeW}
	changes := []unix.Kevent_t{{
		Ident:  uint64(wakeR),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD,
	}}
	if _, err := unix.Kevent(kq, changes, nil, nil); err != nil {
		unix.Close(kq)
		unix.Close(wakeR)
		unix.Close(wakeW)
		return nil, errors.Wrap(err, "netcore: kevent wake pipe")
	}
	return p, nil
}

func (p *kqueuePoller) register(fd int, filter int16) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  unix.EV_ADD | unix.EV_ONESHOT,
	}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (p *kqueuePoller) addListener(fd int) error {
	p.mu.Lock()
	p.reading[fd] = true
	p.mu.Unlock()
	return p.register(fd, unix.EVFILT_READ)
}

func (p *kqueuePoller) addConn(fd int) error {
	return p.addListener(fd)
}

func (p *kqueuePoller) armRead(fd int) error {
	p.mu.Lock()
	p.reading[fd] = true
	p.mu.Unlock()
	return p.register(fd, unix.EVFILT_READ)
}

func (p *kqueuePoller) armWrite(fd int) error {
	p.mu.Lock()
	p.writing[fd] = true
	p.mu.Unlock()
	return p.register(fd, unix.EVFILT_WRITE)
}

func (p *kqueuePoller) remove(fd int) error {
	p.mu.Lock()
	delete(p.reading, fd)
	delete(p.writing, fd)
	p.mu.Unlock()

	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	// best-effort: either filter may not currently be registered.
	unix.Kevent(p.kq, changes, nil, nil)
	return nil
}

func (p *kqueuePoller) waitOne() (pollEvent, error) {
	var events [1]unix.Kevent_t
	for {
		n, err := unix.Kevent(p.kq, nil, events[:], nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return pollEvent{}, errors.Wrap(err, "netcore: kevent wait")
		}
		if n == 0 {
			continue
		}

		ev := events[0]
		fd := int(ev.Ident)
		if fd == p.wakeR {
			var buf [64]byte
			unix.Read(p.wakeR, buf[:])
			return pollEvent{isWake: true}, nil
		}

		p.mu.Lock()
		readable := ev.Filter == unix.EVFILT_READ
		writable := ev.Filter == unix.EVFILT_WRITE
		if readable {
			delete(p.reading, fd)
		}
		if writable {
			delete(p.writing, fd)
		}
		p.mu.Unlock()

		return pollEvent{
			fd:       fd,
			readable: readable,
			writable: writable,
		}, nil
	}
}

func (p *kqueuePoller) close() error {
	unix.Close(p.wakeR)
	unix.Close(p.wakeW)
	return unix.Close(p.kq)
}

func (p *kqueuePoller) wake() {
	var b [1]byte
	unix.Write(p.wakeW, b[:])
}
