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
	"errors"
	"os"
	"sync"

	"github.com/thediveo/fdferry"
	"golang.org/x/sys/unix"
)

// Watch is a single watched socket of a [Notifier]. [Watch.Readable] and
// [Watch.Writable] probe the socket's current readiness without blocking;
// [Watch.Register] arms a one-shot notification. A Watch therefore serves
// both as a task reactor (waiter.Reactor) and – via [Watch.Source] – as a
// readiness source (ready.Source).
type Watch struct {
	n  *Notifier
	fd int

	mu       sync.Mutex
	interest fdferry.Interest
	ch       chan<- fdferry.Interest
}

// Register arms a one-shot notification: as soon as the socket satisfies
// (any part of) the given interest, exactly one value is sent to ch, and
// the watch disarms itself until the next Register. The channel should be
// buffered (capacity 1 suffices for the usual one-channel-per-waiter
// pattern); a notification that cannot be delivered immediately is dropped
// rather than blocking the notifier's dispatch goroutine.
//
// Registering again before the previous registration fired simply re-arms
// the watch with the new interest and channel.
func (w *Watch) Register(interest fdferry.Interest, ch chan<- fdferry.Interest) error {
	if interest&(fdferry.Readable|fdferry.Writable) == 0 {
		return errors.New("notify: cannot register empty interest")
	}
	w.mu.Lock()
	w.interest = interest
	w.ch = ch
	w.mu.Unlock()
	if err := unix.EpollCtl(w.n.epfd, unix.EPOLL_CTL_MOD, w.fd,
		&unix.EpollEvent{Events: epollEvents(interest) | unix.EPOLLONESHOT, Fd: int32(w.fd)}); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

// fire delivers an armed notification, translating the epoll event mask
// back into the interest (sub)set that became ready.
func (w *Watch) fire(events uint32) {
	w.mu.Lock()
	ch := w.ch
	interest := w.interest
	w.ch = nil
	w.mu.Unlock()
	if ch == nil {
		return // disarmed, spurious
	}
	became := interests(events) & interest
	if became == 0 {
		// Errors and hangups wake whatever was armed: the waiter needs to
		// attempt its syscall to learn the details.
		became = interest
	}
	select {
	case ch <- became:
	default:
	}
}

// Readable reports whether the socket currently has data (or an EOF/error
// condition) to read, without blocking.
func (w *Watch) Readable() bool { return w.probe(unix.POLLIN) }

// Writable reports whether the socket currently accepts writing, without
// blocking.
func (w *Watch) Writable() bool { return w.probe(unix.POLLOUT) }

// probe polls the socket with a zero timeout for the given condition;
// errors and hangups also count as “ready”, as the next syscall will then
// promptly report the details.
func (w *Watch) probe(events int16) bool {
	pollfds := []unix.PollFd{{Fd: int32(w.fd), Events: events}}
	for {
		n, err := unix.Poll(pollfds, 0)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || n == 0 {
			return false
		}
		return pollfds[0].Revents&(events|unix.POLLERR|unix.POLLHUP) != 0
	}
}

// Close unregisters the socket from the notifier. A pending armed
// notification may or may not still be delivered. Closing a watch of an
// already closed notifier is a no-op.
func (w *Watch) Close() error {
	w.n.mu.Lock()
	defer w.n.mu.Unlock()
	if w.n.watches[int32(w.fd)] != w {
		return nil
	}
	delete(w.n.watches, int32(w.fd))
	if err := unix.EpollCtl(w.n.epfd, unix.EPOLL_CTL_DEL, w.fd, nil); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

// Source returns a readiness-source view of this watch (in the shape of
// ready.Source): probes pass through, and registered interest always
// notifies into the fixed channel ch, typically owned by the readiness poll
// loop.
func (w *Watch) Source(ch chan<- fdferry.Interest) *LoopSource {
	return &LoopSource{w: w, ch: ch}
}

// LoopSource is a readiness-source view of a [Watch] with a fixed
// notification channel; see [Watch.Source].
type LoopSource struct {
	w  *Watch
	ch chan<- fdferry.Interest
}

// Readable reports whether the watched socket is currently readable.
func (s *LoopSource) Readable() bool { return s.w.Readable() }

// Writable reports whether the watched socket is currently writable.
func (s *LoopSource) Writable() bool { return s.w.Writable() }

// Register arms a one-shot notification for the given interest, to be
// delivered to the source's fixed channel.
func (s *LoopSource) Register(interest fdferry.Interest) error {
	return s.w.Register(interest, s.ch)
}

// epollEvents translates an interest set into an epoll event mask.
func epollEvents(interest fdferry.Interest) uint32 {
	var events uint32
	if interest&fdferry.Readable != 0 {
		events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest&fdferry.Writable != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

// interests translates an epoll event mask back into an interest set;
// error and hangup conditions show up as both readable and writable, as
// attempting either will immediately surface the condition.
func interests(events uint32) fdferry.Interest {
	var interest fdferry.Interest
	if events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		interest |= fdferry.Readable
	}
	if events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		interest |= fdferry.Writable
	}
	return interest
}
