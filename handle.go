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
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Handle owns a single open file descriptor and makes sure it gets closed
// exactly once, however the handle ends its life. A Handle is “move-only”:
// ownership of the underlying descriptor moves away from it through
// [Handle.Take] or [Handle.File] (or, receiver-internally, through a
// successful [Queue.Enqueue]), and afterwards the handle is just an empty
// husk whose [Handle.Close] does nothing.
//
// A Handle must not be used concurrently from multiple goroutines.
type Handle struct {
	fd int // the owned descriptor, or -1 after close/take
}

// NewHandle takes ownership of the passed file descriptor and returns the
// handle now owning it. The caller must not close the descriptor itself
// anymore.
func NewHandle(fd int) *Handle {
	return &Handle{fd: fd}
}

// FD returns the file descriptor owned by this handle without transferring
// ownership, or -1 if the handle doesn't own a descriptor (anymore).
func (h *Handle) FD() int {
	if h == nil {
		return -1
	}
	return h.fd
}

// Take transfers ownership of the file descriptor to the caller, returning
// the raw descriptor value. The handle afterwards doesn't own a descriptor
// anymore, so closing it becomes the caller's duty. Taking twice returns -1
// the second time.
func (h *Handle) Take() int {
	fd := h.fd
	h.fd = -1
	return fd
}

// File transfers ownership of the file descriptor into a newly created
// [os.File] with the given name. It returns nil if the handle doesn't own a
// descriptor anymore.
func (h *Handle) File(name string) *os.File {
	fd := h.Take()
	if fd < 0 {
		return nil
	}
	return os.NewFile(uintptr(fd), name)
}

// Close closes the owned file descriptor, unless ownership was transferred
// away before or the handle was already closed. Close never closes the same
// descriptor twice.
func (h *Handle) Close() error {
	fd := h.Take()
	if fd < 0 {
		return nil
	}
	if err := unix.Close(fd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}

// String renders the handle for log consumption.
func (h *Handle) String() string {
	if h.FD() < 0 {
		return "fd (gone)"
	}
	return fmt.Sprintf("fd %d", h.fd)
}
