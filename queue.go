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

package fdferry

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/eapache/queue"
	"github.com/thediveo/fdferry/rights"
	"golang.org/x/sys/unix"
)

// companion is the filler value for the single byte of ordinary payload that
// must accompany each transferred descriptor on the wire: the kernel refuses
// to send a rights message without at least one byte of regular data, and
// keeping it at exactly one byte per descriptor keeps the descriptor stream
// and the byte stream in lockstep.
const companion byte = 0xfd

// lostDescriptor is a receive buffer entry standing in for a descriptor the
// kernel dropped due to ancillary buffer truncation; it keeps the buffered
// entries in exact stream order, so the loss gets reported at the stream
// position where the descriptor would have been.
type lostDescriptor struct{}

// Queue ferries file descriptors over a connected unix domain stream socket:
// [Queue.Enqueue] stages descriptors on the sending side without performing
// any I/O, [Queue.Flush] transmits all staged descriptors in one batched
// sendmsg, and [Queue.Dequeue] returns received descriptors strictly in the
// order the peer enqueued them. The queue exclusively owns its socket as
// well as all staged and buffered descriptors; [Queue.Close] closes whatever
// the queue still owns, exactly once.
//
// A Queue never spawns goroutines and never blocks beyond what the socket's
// blocking mode dictates: on a non-blocking socket, operations that cannot
// make progress return [ErrWouldBlock]. A Queue cannot(!) be used
// concurrently from multiple goroutines without external synchronization;
// the ready and waiter packages layer the two usual concurrency models on
// top.
type Queue struct {
	fd     int
	closed bool
	layout rights.Layout
	policy TruncationPolicy

	// send side: staged entries plus the companion byte remainder of a
	// partially accepted sendmsg (the descriptors always ride the first
	// accepted byte, so only plain bytes can remain outstanding).
	staged []*Handle
	sbuf   []byte
	carry  int

	// receive side: buffered entries – received descriptors and truncation
	// loss markers, in exact stream order – together with the companion byte
	// claims that gate handing them out. Normally claims == recvq.Length();
	// descriptors from a peer's partially accepted flush can outnumber their
	// claims for a while, whereas claims outnumbering entries means the peer
	// broke the one-byte-per-descriptor rule.
	recvq    *queue.Queue
	claims   int  // companion bytes read, not yet consumed by a dequeue
	lost     int  // loss markers currently in recvq
	lossy    bool // the latest batch got clipped, further bytes are orphans
	desynced bool
	pbuf     []byte
	oob      []byte
}

// New returns a new descriptor queue on top of the passed connected unix
// domain stream socket. The queue takes ownership of the file descriptor in
// any case, so the descriptor will also be closed when New fails.
//
// By default the queue stages up to [DefaultCapacity] descriptors and skips
// over descriptors lost to ancillary buffer truncation; see [WithCapacity],
// [WithTruncationPolicy], and [WithNonblock].
func New(fd int, opts ...Opt) (*Queue, error) {
	o := options{capacity: DefaultCapacity}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			_ = unix.Close(fd)
			return nil, err
		}
	}
	layout, err := rights.LayoutFor(o.capacity)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	domain, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_DOMAIN)
	if err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("getsockopt", err)
	}
	sotype, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TYPE)
	if err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("getsockopt", err)
	}
	if domain != unix.AF_UNIX || sotype != unix.SOCK_STREAM {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("fdferry: fd %d is not a connected unix domain stream socket", fd)
	}
	if o.nonblock {
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fd)
			return nil, os.NewSyscallError("fcntl", err)
		}
	}
	return &Queue{
		fd:     fd,
		layout: layout,
		policy: o.policy,
		staged: make([]*Handle, 0, layout.Capacity()),
		sbuf:   make([]byte, layout.Capacity()),
		recvq:  queue.New(),
		pbuf:   make([]byte, layout.Capacity()),
		oob:    make([]byte, layout.Space()),
	}, nil
}

// FD returns the queue's underlying socket file descriptor, for registering
// it with a readiness mechanism. Ownership stays with the queue; in
// particular, the descriptor must not be closed behind the queue's back.
func (q *Queue) FD() int { return q.fd }

// Capacity returns the maximum number of descriptors that can be staged for
// sending at any time, which is also the maximum batch size of a single
// flush.
func (q *Queue) Capacity() int { return q.layout.Capacity() }

// Pending returns the number of descriptors currently staged for sending.
func (q *Queue) Pending() int { return len(q.staged) }

// Buffered returns the number of received descriptors waiting to be
// dequeued.
func (q *Queue) Buffered() int { return q.recvq.Length() - q.lost }

// CanDequeue reports whether the next [Queue.Dequeue] will complete without
// performing any I/O: there's a consumable descriptor buffered, or a pending
// loss or protocol violation to report.
func (q *Queue) CanDequeue() bool { return q.desynced || q.claims > 0 }

// Enqueue stages the passed descriptor handle for transmission with the
// next [Queue.Flush], together with its companion payload byte. It fails
// with [ErrFull] – without any syscall – when the staging buffer is at
// capacity; the caller then keeps ownership of the handle, flushes, and
// retries. On success, ownership of the handle moves to the queue.
func (q *Queue) Enqueue(h *Handle) error {
	if q.closed {
		return net.ErrClosed
	}
	if h.FD() < 0 {
		return errors.New("fdferry: cannot enqueue a handle that doesn't own a descriptor")
	}
	if len(q.staged) >= q.layout.Capacity() {
		return ErrFull
	}
	q.staged = append(q.staged, h)
	return nil
}

// Flush attempts exactly one batched sendmsg carrying every staged
// descriptor in a single rights message, plus one companion payload byte per
// descriptor. On success it returns the number of descriptors transmitted,
// with the staging buffer empty afterwards and the queue's local descriptor
// copies closed – the kernel then holds the in-transit duplicates. On
// [ErrWouldBlock] nothing was transmitted and the staging buffer is
// untouched, entry for entry; the same holds for other I/O errors, so a
// caller abandoning the queue still gets all staged descriptors closed on
// [Queue.Close].
//
// Flushing an empty queue is a no-op returning 0.
func (q *Queue) Flush() (int, error) {
	if q.closed {
		return 0, net.ErrClosed
	}
	if err := q.drainCarry(); err != nil {
		return 0, err
	}
	if len(q.staged) == 0 {
		return 0, nil
	}
	fds := make([]int, len(q.staged))
	for i, h := range q.staged {
		fds[i] = h.FD()
	}
	oob, err := q.layout.Encode(fds)
	if err != nil {
		return 0, err
	}
	payload := q.sbuf[:len(q.staged)]
	for i := range payload {
		payload[i] = companion
	}
	n, err := q.sendmsg(payload, oob)
	if err != nil {
		return 0, err
	}
	// All descriptors went out with the first accepted byte and are now in
	// transit with the kernel in charge, so we close our copies.
	count := len(q.staged)
	for _, h := range q.staged {
		_ = h.Close()
	}
	q.staged = q.staged[:0]
	q.carry += len(payload) - n
	return count, nil
}

// drainCarry sends companion bytes still outstanding from a previously only
// partially accepted sendmsg, before any new batch may go out.
func (q *Queue) drainCarry() error {
	for q.carry > 0 {
		chunk := q.sbuf[:min(q.carry, len(q.sbuf))]
		for i := range chunk {
			chunk[i] = companion
		}
		n, err := q.sendmsg(chunk, nil)
		if err != nil {
			return err
		}
		q.carry -= n
	}
	return nil
}

// Dequeue returns the next received descriptor, in exactly the order the
// peer enqueued them. A descriptor is only ever returned after its companion
// byte has been consumed from the byte stream; when no consumable descriptor
// is buffered, Dequeue performs one recvmsg, which may buffer further
// descriptors beyond the one returned.
//
// Dequeue fails with [ErrWouldBlock] when reading would block, with [io.EOF]
// when the peer has closed the connection and everything received has been
// dequeued, and with [ErrTruncated] for each descriptor the kernel dropped
// on receive – the byte stream still advances past the loss, so subsequent
// descriptors keep arriving in order, unless the queue was created with
// [TruncationFail].
func (q *Queue) Dequeue() (*Handle, error) {
	if q.closed {
		return nil, net.ErrClosed
	}
	for {
		if q.desynced {
			return nil, fmt.Errorf("%w: %w", ErrDesynchronized, ErrTruncated)
		}
		if q.claims > 0 {
			if q.recvq.Length() > 0 {
				q.claims--
				if h, ok := q.recvq.Remove().(*Handle); ok {
					return h, nil
				}
				// a loss marker: the kernel dropped the descriptor that sat
				// at this stream position.
				q.lost--
				if q.policy == TruncationFail {
					q.desynced = true
				}
				return nil, ErrTruncated
			}
			// Companion bytes with no descriptors to match and no kernel
			// truncation to blame: the peer doesn't play by the
			// one-byte-per-descriptor rule.
			return nil, fmt.Errorf("fdferry: %d companion byte(s) without descriptors: %w",
				q.claims, ErrMalformed)
		}
		if err := q.receive(); err != nil {
			return nil, err
		}
	}
}

// receive performs a single successful recvmsg (retrying only on EINTR) and
// folds its outcome into the receive-side bookkeeping.
//
// The kernel hands out the complete rights array of a batch with the first
// read touching that batch, clipping the array silently to our ancillary
// buffer size if need be and flagging the clip. Companion bytes of the same
// batch surfacing in later reads therefore come bare; whether they claim a
// buffered descriptor, mark a clipped-away one, or are plain protocol
// garbage depends on the bookkeeping at that point.
func (q *Queue) receive() error {
	// While recovering from a clipped batch we read a single byte at a time:
	// the kernel otherwise glues the clipped batch's orphaned companion
	// bytes together with the head of a following intact batch into one
	// read, and then the stream positions of the losses would be lost too.
	p := q.pbuf
	if q.lossy {
		p = q.pbuf[:1]
	}
	var n, oobn, recvflags int
	for {
		var err error
		n, oobn, recvflags, _, err = unix.Recvmsg(q.fd, p, q.oob, 0)
		if err == nil {
			break
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if wouldBlock(err) {
			return ErrWouldBlock
		}
		return os.NewSyscallError("recvmsg", err)
	}
	if n == 0 && oobn == 0 {
		return io.EOF
	}
	fds, err := rights.Parse(q.oob[:oobn])
	if err != nil {
		// Whatever was extracted before the parse went south is ours now
		// and must not leak.
		for _, fd := range fds {
			_ = unix.Close(fd)
		}
		return err
	}
	if len(fds) > 0 || rights.Truncated(recvflags) {
		// This read touched a fresh batch head, with whatever rights the
		// kernel let through riding right here.
		q.lossy = rights.Truncated(recvflags)
	}
	for _, fd := range fds {
		q.recvq.Add(NewHandle(fd))
	}
	for i := 0; i < n; i++ {
		if q.recvq.Length() > q.claims {
			// claims a descriptor (or loss) already buffered.
			q.claims++
			continue
		}
		if q.lossy {
			q.recvq.Add(lostDescriptor{})
			q.lost++
		}
		q.claims++
	}
	return nil
}

// sendmsg issues a single sendmsg, retrying only on EINTR and translating
// the would-block condition.
func (q *Queue) sendmsg(p, oob []byte) (int, error) {
	for {
		n, err := unix.SendmsgN(q.fd, p, oob, nil, unix.MSG_NOSIGNAL)
		switch {
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case wouldBlock(err):
			return 0, ErrWouldBlock
		default:
			return 0, os.NewSyscallError("sendmsg", err)
		}
	}
}

// Close closes all descriptors still staged for sending, all received but
// not yet dequeued descriptors, and finally the underlying socket. Closing
// an already closed queue is a no-op. Queue operations after Close fail
// with [net.ErrClosed].
func (q *Queue) Close() error {
	if q.closed {
		return nil
	}
	q.closed = true
	for _, h := range q.staged {
		_ = h.Close()
	}
	q.staged = nil
	for q.recvq.Length() > 0 {
		if h, ok := q.recvq.Remove().(*Handle); ok {
			_ = h.Close()
		}
	}
	if err := unix.Close(q.fd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}
