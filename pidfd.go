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
	"strconv"
	"strings"
)

// PID returns the PID of the process referenced by this handle, which must
// hold a PID fd (see pidfd_open(2) and [golang.org/x/sys/unix.PidfdOpen]);
// otherwise, it returns an error.
//
// Ferrying PID fds is one of the prime uses of descriptor queues: the
// receiver ends up with a race-free reference to the process itself,
// instead of a numeric PID that might get recycled behind its back.
//
// See also: https://stackoverflow.com/a/74856311
func (h *Handle) PID() (int, error) {
	fd := h.FD()
	target, err := os.Readlink("/proc/self/fd/" + strconv.FormatInt(int64(fd), 10))
	if err != nil {
		return 0, err
	}
	if target != "anon_inode:[pidfd]" {
		return 0, fmt.Errorf("fd %d is not a PID fd", fd)
	}

	fdinfo, err := os.ReadFile("/proc/self/fdinfo/" + strconv.FormatInt(int64(fd), 10))
	if err != nil {
		return 0, err
	}
	for line := range strings.Lines(string(fdinfo)) {
		value, ok := strings.CutPrefix(line, "Pid:\t")
		if !ok || value == "" {
			continue
		}
		pid, err := strconv.ParseInt(value[:len(value)-1], 10, 32)
		if err != nil {
			return 0, err
		}
		return int(pid), nil
	}
	return 0, fmt.Errorf("fd %d has no PID information", fd)
}
