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
	"cmp"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/thediveo/fdferry"
	"github.com/thediveo/fdferry/waiter"
)

// Opt is a function that configures a reflector serving loop.
type Opt func(*options)

type options struct {
	log *slog.Logger
}

// WithLogger sets the logger the serving loop reports to, instead of
// [slog.Default].
func WithLogger(log *slog.Logger) Opt {
	return func(o *options) { o.log = log }
}

// Serve reflects descriptors back at their sender: each descriptor received
// on the passed queue is immediately sent back over the same queue. Serve
// returns nil after the peer has disconnected, the context's error after
// cancellation, and any other receive or send error as-is.
//
// Descriptors lost to truncation on the way in are logged and skipped, as
// there is nothing left to reflect. Descriptors sent back don't linger in
// this process: their local copies are closed as soon as the kernel has
// taken charge of them.
//
// Since this function is used in testing, it generates slog records over the
// course of its operation. You might thus want to send slog output to the
// GinkgoWriter, either via [WithLogger] or by swapping the default logger:
// this way, you won't be bothered with slog output unless your test fails
// ($HEAVENS forbid!) or you explicitly request to see it all using
// “-ginkgo.v” when running tests.
func Serve(ctx context.Context, q *waiter.Queue, opts ...Opt) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	id := petname.Generate(2, "-")
	slogger := cmp.Or(o.log, slog.Default()).With(slog.String("relay-id", id))
	slogger.Info("descriptor reflector loop started")
	defer slogger.Info("descriptor reflector loop terminated")

	for {
		// Check and exit if the context is done by now: the queue's fast
		// paths never consult the context, so buffered descriptors could
		// otherwise keep us spinning past cancellation.
		select {
		case <-ctx.Done():
			slogger.Info("context cancelled")
			return ctx.Err()
		default:
		}
		h, err := q.Dequeue(ctx)
		if err != nil {
			switch {
			// https://go.dev/wiki/ErrorValueFAQ
			case errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed):
				slogger.Info("peer disconnected")
				return nil
			case errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded):
				slogger.Info("context cancelled")
				return err
			case errors.Is(err, fdferry.ErrDesynchronized):
				slogger.Error("descriptor stream out of step",
					slog.String("err", err.Error()))
				return err
			case errors.Is(err, fdferry.ErrTruncated):
				slogger.Warn("descriptor lost in transit, nothing to reflect")
				continue
			}
			slogger.Error("cannot receive",
				slog.String("err", err.Error()))
			return err
		}
		slogger.Info("reflecting descriptor", slog.String("fd", h.String()))
		if err := q.Enqueue(ctx, h); err != nil {
			// The handle never made it into the queue, so it is still ours
			// to dispose of.
			_ = h.Close()
			slogger.Error("cannot stage descriptor for return",
				slog.String("err", err.Error()))
			return err
		}
		if _, err := q.Flush(ctx); err != nil {
			slogger.Error("cannot send",
				slog.String("err", err.Error()))
			return err
		}
	}
}
