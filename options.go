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

	"github.com/thediveo/fdferry/rights"
)

// DefaultCapacity is the default maximum number of descriptors staged for
// sending, and thus also the default maximum batch size per flush.
const DefaultCapacity = 16

// TruncationPolicy decides what happens to a queue after the kernel dropped
// received descriptors due to an undersized ancillary buffer.
type TruncationPolicy int

const (
	// TruncationSkip skips descriptors lost in truncation: each loss
	// surfaces once as [ErrTruncated] and the byte stream advances past it,
	// so later descriptors still arrive in order. This is the default.
	TruncationSkip TruncationPolicy = iota
	// TruncationFail treats the connection as desynchronized after the
	// first loss: every subsequent dequeue fails.
	TruncationFail
)

// String renders the truncation policy in human-readable form.
func (p TruncationPolicy) String() string {
	switch p {
	case TruncationSkip:
		return "skip"
	case TruncationFail:
		return "fail"
	}
	return fmt.Sprintf("TruncationPolicy(%d)", int(p))
}

// options collects the configurable aspects of a [Queue].
type options struct {
	capacity int
	policy   TruncationPolicy
	nonblock bool
}

// Opt configures aspects of a new [Queue] while it is passed to [New].
type Opt func(*options) error

// WithCapacity sets the maximum number of descriptors staged for sending,
// which is also the maximum batch size of a single flush and the maximum
// number of descriptors a single receive expects. Both peers should use the
// same capacity; a peer batching beyond this queue's capacity will get its
// excess descriptors truncated by the kernel on our side. The capacity must
// be within 1..[rights.MaxPerMessage].
func WithCapacity(capacity int) Opt {
	return func(o *options) error {
		if capacity < 1 || capacity > rights.MaxPerMessage {
			return fmt.Errorf("fdferry: invalid capacity %d, expected 1..%d",
				capacity, rights.MaxPerMessage)
		}
		o.capacity = capacity
		return nil
	}
}

// WithTruncationPolicy sets how the queue behaves after the kernel dropped
// received descriptors; defaults to [TruncationSkip].
func WithTruncationPolicy(policy TruncationPolicy) Opt {
	return func(o *options) error {
		switch policy {
		case TruncationSkip, TruncationFail:
			o.policy = policy
			return nil
		}
		return fmt.Errorf("fdferry: invalid truncation policy %d", int(policy))
	}
}

// WithNonblock switches the queue's socket into non-blocking mode, so that
// operations unable to make progress return [ErrWouldBlock] instead of
// blocking. The ready and waiter adaptors expect their queues to be
// non-blocking.
func WithNonblock() Opt {
	return func(o *options) error {
		o.nonblock = true
		return nil
	}
}
