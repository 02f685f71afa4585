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
	"os"

	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/thediveo/success"
)

var _ = Describe("SCM_RIGHTS codec", func() {

	It("computes the platform ancillary layout once and for all", func() {
		layout := Successful(LayoutFor(4))
		Expect(layout.Capacity()).To(Equal(4))
		Expect(layout.Space()).To(Equal(unix.CmsgSpace(4 * 4)))

		Expect(LayoutFor(0)).Error().To(MatchError(ContainSubstring("invalid layout capacity")))
		Expect(LayoutFor(MaxPerMessage + 1)).Error().To(MatchError(ContainSubstring("invalid layout capacity")))
		Expect(LayoutFor(MaxPerMessage)).Error().NotTo(HaveOccurred())
	})

	It("encodes at most its capacity", func() {
		layout := Successful(LayoutFor(2))
		oob := Successful(layout.Encode([]int{0, 1}))
		Expect(oob).To(Equal(unix.UnixRights(0, 1)))

		Expect(layout.Encode([]int{0, 1, 2})).Error().To(MatchError(ErrCapacityExceeded))
	})

	It("roundtrips descriptor values through the wire encoding", func() {
		layout := Successful(LayoutFor(3))
		oob := Successful(layout.Encode([]int{42, 43, 44}))
		Expect(Successful(Parse(oob))).To(Equal([]int{42, 43, 44}))

		Expect(Successful(Parse(nil))).To(BeEmpty())
	})

	It("skips control messages that aren't rights", func() {
		creds := unix.UnixCredentials(&unix.Ucred{
			Pid: int32(os.Getpid()),
			Uid: uint32(os.Getuid()),
			Gid: uint32(os.Getgid()),
		})
		Expect(Successful(Parse(creds))).To(BeEmpty())

		// multiple control messages in one ancillary chunk, with the rights
		// hiding behind the credentials.
		oob := append(creds, unix.UnixRights(42, 43)...)
		Expect(Successful(Parse(oob))).To(Equal([]int{42, 43}))
	})

	It("rejects gibberish ancillary data", func() {
		Expect(Parse([]byte{0x42, 0x66, 0x0})).Error().To(MatchError(ErrMalformed))
	})

	It("detects kernel-side ancillary truncation", func() {
		Expect(Truncated(unix.MSG_CTRUNC)).To(BeTrue())
		Expect(Truncated(unix.MSG_CTRUNC | unix.MSG_OOB)).To(BeTrue())
		Expect(Truncated(0)).To(BeFalse())
	})

})
