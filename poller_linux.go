//go:build linux

package netcore

import (
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// epollPoller implements poller on Linux via epoll(7), edge-triggered
// with EPOLLONESHOT so every readiness notification is a single token
// that must be explicitly rearmed.
type epollPoller struct {
	epfd int

	mu   sync.Mutex
	mask map[int]uint32 // current armed EPOLLIN/EPOLLOUT bits per fd

	wakeR, wakeW int
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "netcore: epoll_create1")
	}

	wakeR, wakeW, err := newWakePipe()
	if err != nil {
		unix.Close(epfd)
		return nil, errors.Wrap(err, "netcore: wake pipe")
	}

	p := &epollPoller{epfd: epfd, mask: make(map[int]uint32), wakeR: wakeR, wakeW: wakeW}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeR)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeR, &ev); err != nil {
		unix.Close(epfd)
		unix.Close(wakeR)
		unix.Close(wakeW)
		return nil, errors.Wrap(err, "netcore: epoll_ctl wake pipe")
	}
	return p, nil
}

func (p *epollPoller) ctl(fd int, events uint32) error {
	op := unix.EPOLL_CTL_MOD
	p.mu.Lock()
	if _, ok := p.mask[fd]; !ok {
		op = unix.EPOLL_CTL_ADD
	}
	p.mask[fd] = events
	p.mu.Unlock()

	ev := unix.EpollEvent{Events: events | unix.EPOLLONESHOT | unix.EPOLLET, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, op, fd, &ev)
}

func (p *epollPoller) addListener(fd int) error {
	return p.ctl(fd, unix.EPOLLIN)
}

func (p *epollPoller) addConn(fd int) error {
	return p.ctl(fd, unix.EPOLLIN)
}

func (p *epollPoller) armRead(fd int) error {
	p.mu.Lock()
	events := p.mask[fd] | unix.EPOLLIN
	p.mu.Unlock()
	return p.ctl(fd, events)
}

func (p *epollPoller) armWrite(fd int) error {
	p.mu.Lock()
	events := p.mask[fd] | unix.EPOLLOUT
	p.mu.Unlock()
	return p.ctl(fd, events)
}

func (p *epollPoller) remove(fd int) error {
	p.mu.Lock()
	delete(p.mask, fd)
	p.mu.Unlock()
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

// waitOne blocks for exactly one readiness batch from epoll_wait and
// reports a single fd back to the leader that called it.
func (p *epollPoller) waitOne() (pollEvent, error) {
	var events [1]unix.EpollEvent
	for {
		n, err := unix.EpollWait(p.epfd, events[:], -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return pollEvent{}, errors.Wrap(err, "netcore: epoll_wait")
		}
		if n == 0 {
			continue
		}

		ev := events[0]
		fd := int(ev.Fd)
		if fd == p.wakeR {
			var buf [64]byte
			unix.Read(p.wakeR, buf[:])
			return pollEvent{isWake: true}, nil
		}

		// claimed: this fd's interest is gone until explicitly rearmed,
		// matching the EPOLLONESHOT semantics requested at registration.
		// The entry stays (at zero) because the fd is still registered, so
		// the rearm goes through EPOLL_CTL_MOD rather than a second ADD.
		p.mu.Lock()
		p.mask[fd] = 0
		p.mu.Unlock()

		return pollEvent{
			fd:       fd,
			readable: ev.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			writable: ev.Events&(unix.EPOLLOUT|unix.EPOLLERR) != 0,
		}, nil
	}
}

func (p *epollPoller) close() error {
	unix.Close(p.wakeR)
	unix.Close(p.wakeW)
	return unix.Close(p.epfd)
}

// wake unblocks a pending waitOne call; used by postRearm and Shutdown.
func (p *epollPoller) wake() {
	var b [1]byte
	unix.Write(p.wakeW, b[:])
}
