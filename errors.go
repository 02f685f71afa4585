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

	"github.com/thediveo/fdferry/rights"
	"golang.org/x/sys/unix"
)

// Errors returned by [Queue] operations, to be tested for using [errors.Is].
// [Queue.Dequeue] additionally returns [io.EOF] when the peer has closed the
// connection and no more data is to come, and operations on a closed queue
// return [net.ErrClosed]. Failing syscalls surface as wrapped
// [os.SyscallError] values.
var (
	// ErrFull means that the send-side staging buffer already holds as many
	// entries as the queue's capacity allows. Recoverable: flush, then
	// enqueue again.
	ErrFull = errors.New("fdferry: send staging buffer full")

	// ErrWouldBlock means that no progress was possible right now on a
	// non-blocking socket. Recoverable: retry once the socket becomes ready;
	// see the ready and waiter packages for the two canned ways of waiting.
	ErrWouldBlock = errors.New("fdferry: operation would block")

	// ErrTruncated reports file descriptor(s) dropped by the kernel because
	// the receiving ancillary buffer was undersized. The lost descriptors
	// are unrecoverable, but the connection continues unless the queue was
	// configured with [TruncationFail].
	ErrTruncated = rights.ErrTruncated

	// ErrMalformed reports ancillary data that didn't parse as a well-formed
	// rights message, or a descriptor stream that has come out of step with
	// its companion byte stream. Treat the affected receive as fatal;
	// whether to abandon the whole connection is the caller's decision.
	ErrMalformed = rights.ErrMalformed

	// ErrDesynchronized is returned by every dequeue after a truncation
	// loss on a queue configured with [TruncationFail]; it wraps
	// [ErrTruncated].
	ErrDesynchronized = errors.New("fdferry: descriptor stream desynchronized")
)

// wouldBlock reports whether a syscall error is the kernel's way of saying
// “not now”.
func wouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}
