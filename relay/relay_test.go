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

package relay

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/thediveo/fdferry"
	"github.com/thediveo/fdferry/notify"
	"github.com/thediveo/fdferry/uds"
	"github.com/thediveo/fdferry/waiter"
	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/onsi/gomega/gleak"
	. "github.com/thediveo/fdooze"
	. "github.com/thediveo/success"
)

var _ = Describe("reflecting descriptors", func() {

	BeforeEach(func() {
		goodfds := Filedescriptors()
		goodgos := Goroutines()
		DeferCleanup(func() {
			Eventually(Goroutines).Within(2 * time.Second).ProbeEvery(100 * time.Millisecond).
				ShouldNot(HaveLeaked(goodgos))
			Eventually(Filedescriptors).Within(2 * time.Second).ProbeEvery(100 * time.Millisecond).
				ShouldNot(HaveLeakedFds(goodfds))
		})

		oldDefault := slog.Default()
		slog.SetDefault(slog.New(slog.NewTextHandler(GinkgoWriter, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})))
		DeferCleanup(func() { slog.SetDefault(oldDefault) })
	})

	It("reflects descriptors until the peer disconnects", func(ctx context.Context) {
		client, server := reflector(nil, nil)

		done := make(chan error, 1)
		go func() {
			defer GinkgoRecover()
			done <- Serve(ctx, server)
		}()

		canaryfd := newCanaryFd()
		id := devino(canaryfd)
		Expect(client.Enqueue(fdferry.NewHandle(canaryfd))).To(Succeed())
		Expect(client.Flush()).To(Equal(1))
		h := Successful(client.Dequeue())
		Expect(devino(h.FD())).To(Equal(id))
		Expect(h.Close()).To(Succeed())

		Expect(client.Close()).To(Succeed())
		var err error
		Eventually(done).Within(5 * time.Second).Should(Receive(&err))
		Expect(err).NotTo(HaveOccurred())
	})

	It("returns the context's error when cancelled", func(ctx context.Context) {
		_, server := reflector(nil, nil)

		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer GinkgoRecover()
			done <- Serve(cctx, server)
		}()
		Consistently(done).Within(250 * time.Millisecond).ShouldNot(Receive())

		cancel()
		var err error
		Eventually(done).Within(5 * time.Second).Should(Receive(&err))
		Expect(err).To(MatchError(context.Canceled))
	})

	It("skips descriptors lost to truncation, reflecting the survivors", func(ctx context.Context) {
		client, server := reflector(
			[]fdferry.Opt{fdferry.WithCapacity(3)},
			[]fdferry.Opt{fdferry.WithCapacity(2)})

		done := make(chan error, 1)
		go func() {
			defer GinkgoRecover()
			done <- Serve(ctx, server)
		}()

		ids := make([][2]uint64, 3)
		for i := range ids {
			canaryfd := newCanaryFd()
			ids[i] = devino(canaryfd)
			Expect(client.Enqueue(fdferry.NewHandle(canaryfd))).To(Succeed())
		}
		Expect(client.Flush()).To(Equal(3))

		// The reflector can only hold two of the three descriptors; the
		// third is lost on its side and must be skipped over, not trip the
		// loop up.
		for i := range 2 {
			h := Successful(client.Dequeue())
			Expect(devino(h.FD())).To(Equal(ids[i]))
			Expect(h.Close()).To(Succeed())
		}

		Expect(client.Close()).To(Succeed())
		var err error
		Eventually(done).Within(5 * time.Second).Should(Receive(&err))
		Expect(err).NotTo(HaveOccurred())
	})

})

// reflector returns a client queue and the suspend/resume server queue to
// reflect from, connected through a fresh socket pair, with all the
// trimmings torn down in proper order at the end of the current test.
func reflector(clientOpts, serverOpts []fdferry.Opt) (*fdferry.Queue, *waiter.Queue) {
	GinkgoHelper()
	fd1, fd2 := Successful2R(uds.Pair())
	client := Successful(fdferry.New(fd1, clientOpts...))
	DeferCleanup(func() { _ = client.Close() })
	server := Successful(fdferry.New(fd2,
		append(serverOpts, fdferry.WithNonblock())...))
	DeferCleanup(func() { Expect(server.Close()).To(Succeed()) })
	notifier := Successful(notify.New())
	DeferCleanup(func() { Expect(notifier.Close()).To(Succeed()) })
	watch := Successful(notifier.Watch(server.FD()))
	DeferCleanup(func() { Expect(watch.Close()).To(Succeed()) })
	return client, waiter.New(server, watch)
}

// newCanaryFd returns a fresh file descriptor for a throw-away file; dup,
// as the os.File closes its descriptor when garbage collected.
func newCanaryFd() int {
	GinkgoHelper()
	f := Successful(os.CreateTemp(GinkgoT().TempDir(), "canary-*.dat"))
	defer f.Close()
	return Successful(unix.Dup(int(f.Fd())))
}

// devino returns the device and inode numbers identifying the file behind
// the passed file descriptor.
func devino(fd int) [2]uint64 {
	GinkgoHelper()
	var stat unix.Stat_t
	Expect(unix.Fstat(fd, &stat)).To(Succeed())
	return [2]uint64{uint64(stat.Dev), stat.Ino}
}
