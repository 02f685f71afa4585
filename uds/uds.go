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

package uds

import (
	"os"

	"github.com/thediveo/fdferry"
	"golang.org/x/sys/unix"
)

// Pair returns a pair of peer-to-peer connected (stream) unix domain
// sockets that can transfer open file descriptors across process
// boundaries. Both sockets are close-on-exec; clear the flag on one of them
// (or dup it into a child's fd table via [os/exec.Cmd.ExtraFiles]) to hand
// it to a child process.
func Pair() (dupond, dupont int, err error) {
	fdpair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, 0, os.NewSyscallError("socketpair", err)
	}
	return fdpair[0], fdpair[1], nil
}

// QueuePair returns a pair of descriptor queues connected peer-to-peer
// through a fresh unix domain socket pair, both created with the same
// options. This is the quickest way to ferry descriptors between two
// goroutines – or, after forking off a child that inherits one of the
// queue's sockets, between two processes.
func QueuePair(opts ...fdferry.Opt) (dupond, dupont *fdferry.Queue, err error) {
	fd1, fd2, err := Pair()
	if err != nil {
		return nil, nil, err
	}
	dupond, err = fdferry.New(fd1, opts...)
	if err != nil {
		// fd1 is always closed by now, but we don't want to leak fd2...
		_ = unix.Close(fd2)
		return nil, nil, err
	}
	dupont, err = fdferry.New(fd2, opts...)
	if err != nil {
		// fd1 was closed already, fd2 is always closed by now too, so we
		// only need to dispose of the first successfully created queue...
		_ = dupond.Close()
		return nil, nil, err
	}
	return dupond, dupont, nil
}
