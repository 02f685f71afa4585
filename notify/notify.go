// Copyright 2026 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package notify

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Notifier watches sockets for readiness using an epoll instance, delivering
// exactly one notification per one-shot registration (see [Watch.Register]).
// A single dispatch goroutine waits on the epoll instance; [Notifier.Close]
// wakes it through an eventfd and joins it before releasing the kernel
// resources.
type Notifier struct {
	epfd   int
	wakefd int
	done   chan struct{} // closed when the dispatch goroutine has returned

	mu      sync.Mutex
	watches map[int32]*Watch
	closing bool
}

// New returns a new epoll-backed readiness notifier with its dispatch
// goroutine up and running.
func New() (*Notifier, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	// The eventfd is the bell Close rings to get the dispatch goroutine out
	// of its epoll_wait.
	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, os.NewSyscallError("eventfd", err)
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd,
		&unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, os.NewSyscallError("epoll_ctl", err)
	}
	n := &Notifier{
		epfd:    epfd,
		wakefd:  wakefd,
		done:    make(chan struct{}),
		watches: map[int32]*Watch{},
	}
	go n.dispatch()
	return n, nil
}

// Watch registers the passed socket file descriptor with the notifier,
// initially disarmed: notifications only happen after arming the watch with
// [Watch.Register]. The notifier doesn't take ownership of the descriptor,
// but the descriptor must stay open until the watch is closed again.
func (n *Notifier) Watch(fd int) (*Watch, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closing {
		return nil, net.ErrClosed
	}
	if _, ok := n.watches[int32(fd)]; ok {
		return nil, fmt.Errorf("notify: fd %d is already watched", fd)
	}
	if err := unix.EpollCtl(n.epfd, unix.EPOLL_CTL_ADD, fd,
		&unix.EpollEvent{Events: 0, Fd: int32(fd)}); err != nil {
		return nil, os.NewSyscallError("epoll_ctl", err)
	}
	w := &Watch{n: n, fd: fd}
	n.watches[int32(fd)] = w
	return w, nil
}

// Close wakes the dispatch goroutine, waits for it to terminate, and then
// releases the epoll instance and eventfd. All watches become defunct.
// Closing an already closed notifier is a no-op.
func (n *Notifier) Close() error {
	n.mu.Lock()
	if n.closing {
		n.mu.Unlock()
		return nil
	}
	n.closing = true
	n.watches = nil
	n.mu.Unlock()
	var bell [8]byte
	binary.NativeEndian.PutUint64(bell[:], 1)
	_, err := unix.Write(n.wakefd, bell[:])
	<-n.done
	_ = unix.Close(n.epfd)
	_ = unix.Close(n.wakefd)
	if err != nil {
		return os.NewSyscallError("write", err)
	}
	return nil
}

// dispatch waits for epoll events and fires the corresponding watches,
// until the eventfd bell rings.
func (n *Notifier) dispatch() {
	defer close(n.done)
	var events [16]unix.EpollEvent
	for {
		num, err := unix.EpollWait(n.epfd, events[:], -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return
		}
		for _, ev := range events[:num] {
			if ev.Fd == int32(n.wakefd) {
				return
			}
			n.mu.Lock()
			w := n.watches[ev.Fd]
			n.mu.Unlock()
			if w == nil {
				continue // watch closed while the event was in flight
			}
			w.fire(ev.Events)
		}
	}
}
