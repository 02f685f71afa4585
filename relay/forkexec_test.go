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
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/thediveo/fdferry"
	"github.com/thediveo/fdferry/uds"
	"github.com/thediveo/safe"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gexec"
	. "github.com/onsi/gomega/gleak"
	. "github.com/thediveo/fdooze"
	. "github.com/thediveo/success"
)

var (
	relaybinarymu sync.Mutex
	relayBinary   string
)

// relayBinaryPath builds the relay binary at most once per test run,
// without cgo so that it runs wherever the tests run.
func relayBinaryPath() string {
	relaybinarymu.Lock()
	defer relaybinarymu.Unlock()

	if relayBinary != "" {
		return relayBinary
	}

	By("building the relay binary")
	var err error
	relayBinary, err = gexec.BuildWithEnvironment(
		"github.com/thediveo/fdferry/relay/cmd",
		[]string{"CGO_ENABLED=0"})
	Expect(err).NotTo(HaveOccurred(), "cannot build relay binary")
	return relayBinary
}

var _ = Describe("ferrying to a relay child process", func() {

	BeforeEach(func() {
		goodfds := Filedescriptors()
		goodgos := Goroutines()
		DeferCleanup(func() {
			Eventually(Goroutines).Within(2 * time.Second).ProbeEvery(100 * time.Millisecond).
				ShouldNot(HaveLeaked(goodgos))
			Eventually(Filedescriptors).Within(2 * time.Second).ProbeEvery(100 * time.Millisecond).
				ShouldNot(HaveLeakedFds(goodfds))
		})
	})

	It("reflects a descriptor across the process boundary", func() {
		relaybin := relayBinaryPath()

		cfgpath := filepath.Join(GinkgoT().TempDir(), "relay.toml")
		Expect(os.WriteFile(cfgpath, []byte("capacity = 4\n"), 0o644)).To(Succeed())

		dupond, dupont := Successful2R(uds.Pair())
		childsock := os.NewFile(uintptr(dupont), "relay-socket")

		var out safe.Buffer
		cmd := exec.Command(relaybin)
		cmd.Stdout = io.MultiWriter(&out, GinkgoWriter)
		cmd.Stderr = cmd.Stdout
		cmd.Env = append(os.Environ(), "FDFERRY_RELAY_CONFIG="+cfgpath)
		cmd.ExtraFiles = []*os.File{childsock}
		Expect(cmd.Start()).To(Succeed())
		Expect(childsock.Close()).To(Succeed())

		q := Successful(fdferry.New(dupond))

		canaryfd := newCanaryFd()
		id := devino(canaryfd)
		Expect(q.Enqueue(fdferry.NewHandle(canaryfd))).To(Succeed())
		Expect(q.Flush()).To(Equal(1))

		h := Successful(q.Dequeue())
		Expect(devino(h.FD())).To(Equal(id))
		Expect(h.Close()).To(Succeed())

		// Disconnecting terminates the relay process.
		Expect(q.Close()).To(Succeed())
		done := make(chan error, 1)
		go func() {
			defer GinkgoRecover()
			done <- cmd.Wait()
		}()
		var err error
		Eventually(done).Within(5 * time.Second).Should(Receive(&err))
		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(ContainSubstring("capacity=4"))
	})

	It("refuses to start without a connected socket as fd 3", func() {
		relaybin := relayBinaryPath()

		var out safe.Buffer
		cmd := exec.Command(relaybin)
		cmd.Stdout = io.MultiWriter(&out, GinkgoWriter)
		cmd.Stderr = cmd.Stdout
		Expect(cmd.Run()).To(MatchError(ContainSubstring("exit status 1")))
		Expect(out.String()).To(ContainSubstring("invalid fd 3"))
	})

})
