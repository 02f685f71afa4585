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

package rights

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// MaxPerMessage is the maximum number of file descriptors the Linux kernel
// transfers in a single SCM_RIGHTS control message (SCM_MAX_FD).
const MaxPerMessage = 253

// Codec errors, to be tested for using [errors.Is].
var (
	// ErrCapacityExceeded means that more file descriptors were passed to
	// [Layout.Encode] than the layout was sized for.
	ErrCapacityExceeded = errors.New("rights: control message capacity exceeded")

	// ErrTruncated means that the kernel dropped file descriptors on the
	// receiving side because the ancillary buffer was too small to take them
	// all. The descriptors beyond the truncation point are gone for good,
	// but the connection as such is still usable.
	ErrTruncated = errors.New("rights: control message truncated, descriptor(s) lost")

	// ErrMalformed means that received ancillary data didn't parse as
	// well-formed control message(s). This should never happen when talking
	// to a correctly implemented peer.
	ErrMalformed = errors.New("rights: malformed control message")
)

// Layout is the platform-correct ancillary buffer layout for transferring up
// to a fixed maximum number of file descriptors per message. It is computed
// once (at queue construction) and then reused for every send and receive,
// so no per-call size arithmetic is needed and a receiver honouring the same
// maximum as its peer never sees spurious truncation.
type Layout struct {
	capacity int // max fds per control message
	space    int // bytes of ancillary buffer space for capacity fds
}

// LayoutFor returns the ancillary buffer layout for transferring at most
// capacity file descriptors per message. The capacity must be at least 1 and
// at most [MaxPerMessage].
func LayoutFor(capacity int) (Layout, error) {
	if capacity < 1 || capacity > MaxPerMessage {
		return Layout{}, fmt.Errorf("rights: invalid layout capacity %d, expected 1..%d",
			capacity, MaxPerMessage)
	}
	return Layout{
		capacity: capacity,
		space:    unix.CmsgSpace(capacity * 4),
	}, nil
}

// Capacity returns the maximum number of file descriptors per control
// message this layout was computed for.
func (l Layout) Capacity() int { return l.capacity }

// Space returns the number of ancillary buffer bytes needed to receive a
// control message carrying up to [Layout.Capacity] file descriptors.
func (l Layout) Space() int { return l.space }

// Encode returns the ancillary data (“out-of-band” data) encoding the passed
// file descriptors as a single SCM_RIGHTS control message. It fails with
// [ErrCapacityExceeded] if there are more descriptors than the layout was
// sized for. Encoding doesn't transfer ownership of the descriptors; only a
// subsequent successful sendmsg does.
func (l Layout) Encode(fds []int) ([]byte, error) {
	if len(fds) > l.capacity {
		return nil, fmt.Errorf("%w: %d descriptors, layout capacity %d",
			ErrCapacityExceeded, len(fds), l.capacity)
	}
	return unix.UnixRights(fds...), nil
}

// Parse returns the file descriptors transferred inside the passed ancillary
// data, in wire order. Control messages other than SCM_RIGHTS (such as
// SCM_CREDENTIALS) are silently skipped. Parse fails with [ErrMalformed] if
// the ancillary data doesn't parse; any descriptors already extracted at
// that point are returned nevertheless, so the caller can close them and
// avoid leaking.
//
// The caller becomes the owner of all returned file descriptors.
func Parse(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	var fds []int
	for _, cmsg := range cmsgs {
		if cmsg.Header.Level != unix.SOL_SOCKET || cmsg.Header.Type != unix.SCM_RIGHTS {
			continue
		}
		cmsgfds, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			return fds, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		fds = append(fds, cmsgfds...)
	}
	return fds, nil
}

// Truncated reports whether the flags returned by a recvmsg indicate that
// the kernel had to drop ancillary data – and thus file descriptors –
// because the receiver's ancillary buffer was too small.
func Truncated(recvflags int) bool {
	return recvflags&unix.MSG_CTRUNC != 0
}
