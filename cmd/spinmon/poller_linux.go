//go:build linux

package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller multiplexes the input devices on a single epoll instance.
//
// An eventfd is always registered so other goroutines (IPC, HTTP, shutdown)
// can interrupt a wait through Wake.
type epollPoller struct {
	epfd   int
	wakefd int
	events []unix.EpollEvent
}

func newEpollPoller() (*epollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	p := &epollPoller{
		epfd:   epfd,
		wakefd: wakefd,
		events: make([]unix.EpollEvent, 8),
	}
	if err := p.Watch(wakefd); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Watch registers fd for read readiness. Watching twice is a no-op.
func (p *epollPoller) Watch(fd int) error {
	event := unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil && !errors.Is(err, unix.EEXIST) {
		return fmt.Errorf("epoll_ctl_add fd=%d: %w", fd, err)
	}
	return nil
}

// Unwatch removes fd. Removing an fd that is not watched is a no-op.
func (p *epollPoller) Unwatch(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("epoll_ctl_del fd=%d: %w", fd, err)
	}
	return nil
}

// Wait blocks until a watched fd is readable, Wake is called, or timeout
// elapses. A negative timeout waits indefinitely. The returned fds never
// include the wake fd.
func (p *epollPoller) Wait(timeout time.Duration) ([]int, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}

	n, err := unix.EpollWait(p.epfd, p.events, ms)
	if err != nil {
		// Interrupted system call (signals, Go runtime preemption)
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("epoll_wait: %w", err)
	}

	var ready []int
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Fd)

		if fd == p.wakefd {
			p.drainWake()
			continue
		}

		if p.events[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			return nil, fmt.Errorf("device error/hangup (fd=%d)", fd)
		}
		ready = append(ready, fd)
	}
	return ready, nil
}

// Wake interrupts a pending Wait. Safe to call from any goroutine.
func (p *epollPoller) Wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(p.wakefd, buf[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

func (p *epollPoller) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(p.wakefd, buf[:])
}

func (p *epollPoller) Close() error {
	unix.Close(p.wakefd)
	return unix.Close(p.epfd)
}
