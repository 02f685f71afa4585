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

package ready

import (
	"errors"

	"github.com/thediveo/fdferry"
)

// ErrNotReady means that the readiness source currently reports the socket
// as not ready for the attempted direction, so no syscall was even
// attempted. The caller re-polls after its readiness mechanism signals the
// registered interest.
var ErrNotReady = errors.New("ready: socket not ready")

// Source is the readiness information for one socket, as maintained by an
// external readiness-polling mechanism (such as an epoll loop, see
// [github.com/thediveo/fdferry/notify]). Register requests that the
// mechanism notifies its poll loop when the socket next satisfies the given
// interest; how that notification reaches the loop is the mechanism's
// business, not this adaptor's.
type Source interface {
	Readable() bool
	Writable() bool
	Register(interest fdferry.Interest) error
}

// Queue adapts a descriptor [fdferry.Queue] to a readiness-polling loop: it
// consults the readiness [Source] before each I/O-performing operation and
// reports [ErrNotReady] instead of uselessly attempting a syscall on a
// not-ready socket. The queue should be in non-blocking mode
// ([fdferry.WithNonblock]).
//
// Readiness can go stale between the check and the syscall – with both
// level- and edge-triggered models – in which case the engine's
// [fdferry.ErrWouldBlock] passes through unchanged, interest again
// registered; the adaptor never busy-loops internally.
type Queue struct {
	q   *fdferry.Queue
	src Source
}

// New returns a readiness-polling adaptor for the passed descriptor queue,
// consulting the passed readiness source. The source must belong to the
// same socket as the queue.
func New(q *fdferry.Queue, src Source) *Queue {
	return &Queue{q: q, src: src}
}

// Enqueue stages a descriptor for sending; as this never performs I/O, it
// passes straight through to [fdferry.Queue.Enqueue], including its
// [fdferry.ErrFull] behavior.
func (r *Queue) Enqueue(h *fdferry.Handle) error {
	return r.q.Enqueue(h)
}

// Flush transmits all staged descriptors if the socket is currently
// writable; otherwise it registers write interest and fails with
// [ErrNotReady] without attempting a syscall. An [fdferry.ErrWouldBlock]
// from the losing side of a readiness race propagates unchanged, with
// write interest registered.
func (r *Queue) Flush() (int, error) {
	if !r.src.Writable() {
		if err := r.src.Register(fdferry.Writable); err != nil {
			return 0, err
		}
		return 0, ErrNotReady
	}
	n, err := r.q.Flush()
	if errors.Is(err, fdferry.ErrWouldBlock) {
		if rerr := r.src.Register(fdferry.Writable); rerr != nil {
			return n, rerr
		}
	}
	return n, err
}

// Dequeue returns the next received descriptor. When nothing is consumable
// from the receive buffer and the socket isn't readable either, it
// registers read interest and fails with [ErrNotReady] without attempting a
// syscall. An [fdferry.ErrWouldBlock] from the losing side of a readiness
// race propagates unchanged, with read interest registered.
func (r *Queue) Dequeue() (*fdferry.Handle, error) {
	if !r.q.CanDequeue() && !r.src.Readable() {
		if err := r.src.Register(fdferry.Readable); err != nil {
			return nil, err
		}
		return nil, ErrNotReady
	}
	h, err := r.q.Dequeue()
	if errors.Is(err, fdferry.ErrWouldBlock) {
		if rerr := r.src.Register(fdferry.Readable); rerr != nil {
			return nil, rerr
		}
	}
	return h, err
}
