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

package waiter

import (
	"context"
	"errors"

	"github.com/thediveo/fdferry"
)

// Reactor registers one-shot readiness interest on behalf of suspended
// operations: after a successful Register, exactly one value is sent to ch
// once the socket satisfies (any part of) the interest. Re-registering
// before the notification fired re-arms with the new interest.
// [github.com/thediveo/fdferry/notify.Watch] is a ready-made implementation.
type Reactor interface {
	Register(interest fdferry.Interest, ch chan<- fdferry.Interest) error
}

// Queue adapts a descriptor [fdferry.Queue] to suspend/resume concurrency:
// every operation either completes synchronously or – on
// [fdferry.ErrWouldBlock] – registers with the [Reactor] and suspends on a
// per-direction channel until woken or its context is done. The queue must
// be in non-blocking mode ([fdferry.WithNonblock]).
//
// Cancellation is always safe: state lives in the engine, so an operation
// abandoned mid-suspension loses nothing – staged entries stay staged,
// buffered descriptors stay buffered, and a later operation picks up where
// things stand. A notification arriving after cancellation parks in the
// buffered channel and gets absorbed by the next suspension, which simply
// re-attempts.
//
// The single-caller-per-direction precondition of the engine carries over:
// at most one goroutine sending (Enqueue/Flush) and one receiving (Dequeue)
// at any time. This also keeps it at one outstanding syscall per direction.
type Queue struct {
	q   *fdferry.Queue
	r   Reactor
	rch chan fdferry.Interest
	wch chan fdferry.Interest
}

// New returns a suspend/resume adaptor for the passed descriptor queue,
// registering wake-ups with the passed reactor. The reactor must belong to
// the same socket as the queue.
func New(q *fdferry.Queue, r Reactor) *Queue {
	return &Queue{
		q:   q,
		r:   r,
		rch: make(chan fdferry.Interest, 1),
		wch: make(chan fdferry.Interest, 1),
	}
}

// Enqueue stages a descriptor for sending, transparently flushing – and
// suspending as necessary – when the staging buffer is full. On success,
// ownership of the handle has moved to the engine; on error the caller
// still owns it.
func (w *Queue) Enqueue(ctx context.Context, h *fdferry.Handle) error {
	for {
		err := w.q.Enqueue(h)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fdferry.ErrFull) {
			return err
		}
		if _, err := w.Flush(ctx); err != nil {
			return err
		}
	}
}

// Flush transmits all currently staged descriptors in one batch, suspending
// until the socket accepts it or ctx is done. It returns the number of
// descriptors transmitted.
func (w *Queue) Flush(ctx context.Context) (int, error) {
	for {
		n, err := w.q.Flush()
		if !errors.Is(err, fdferry.ErrWouldBlock) {
			return n, err
		}
		if err := w.suspend(ctx, fdferry.Writable, w.wch); err != nil {
			return 0, err
		}
	}
}

// Dequeue returns the next received descriptor, suspending until one
// arrives, the peer closes (then [io.EOF]), or ctx is done. Truncation
// losses surface exactly as from [fdferry.Queue.Dequeue].
func (w *Queue) Dequeue(ctx context.Context) (*fdferry.Handle, error) {
	for {
		h, err := w.q.Dequeue()
		if !errors.Is(err, fdferry.ErrWouldBlock) {
			return h, err
		}
		if err := w.suspend(ctx, fdferry.Readable, w.rch); err != nil {
			return nil, err
		}
	}
}

// suspend registers the given one-shot interest and then waits for either
// the wake-up or the context to be done. A stale wake-up from an earlier
// abandoned suspension gets consumed here at worst, resulting in one
// spurious – and harmless – re-attempt.
func (w *Queue) suspend(ctx context.Context, interest fdferry.Interest, ch chan fdferry.Interest) error {
	if err := w.r.Register(interest, ch); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}
