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

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/thediveo/fdferry"
	"github.com/thediveo/fdferry/notify"
	"github.com/thediveo/fdferry/relay"
	"github.com/thediveo/fdferry/waiter"
)

func main() {
	cfg, err := loadConfig(os.Getenv(configEnvVar))
	if err != nil {
		slog.Error("invalid configuration", slog.String("err", err.Error()))
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr,
		&slog.HandlerOptions{Level: cfg.slogLevel()})))

	slog.Info("fdferry/relay/cmd started",
		slog.Int("pid", os.Getpid()),
		slog.Int("capacity", cfg.Capacity),
		slog.String("truncation", cfg.truncationPolicy().String()))
	defer slog.Info("fdferry/relay/cmd terminated", slog.Int("pid", os.Getpid()))

	q, err := fdferry.New(3,
		fdferry.WithCapacity(cfg.Capacity),
		fdferry.WithTruncationPolicy(cfg.truncationPolicy()),
		fdferry.WithNonblock())
	if err != nil {
		slog.Error("invalid fd 3", slog.String("err", err.Error()))
		os.Exit(1)
	}
	notifier, err := notify.New()
	if err != nil {
		_ = q.Close()
		slog.Error("cannot create readiness notifier", slog.String("err", err.Error()))
		os.Exit(1)
	}
	watch, err := notifier.Watch(q.FD())
	if err != nil {
		_ = notifier.Close()
		_ = q.Close()
		slog.Error("cannot watch queue socket", slog.String("err", err.Error()))
		os.Exit(1)
	}
	err = relay.Serve(context.Background(), waiter.New(q, watch))
	_ = watch.Close()
	_ = notifier.Close()
	_ = q.Close()
	if err != nil {
		os.Exit(1)
	}
}
