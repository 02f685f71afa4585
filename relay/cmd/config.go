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
	"fmt"
	"log/slog"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/thediveo/fdferry"
	"github.com/thediveo/fdferry/rights"
)

// configEnvVar is the environment variable optionally pointing to a TOML
// configuration file for the reflector process.
const configEnvVar = "FDFERRY_RELAY_CONFIG"

// config is the reflector process configuration: the defaults, optionally
// overlaid with settings from a TOML file.
type config struct {
	Capacity   int    `toml:"capacity"`
	Truncation string `toml:"truncation"`
	LogLevel   string `toml:"log-level"`
}

// defaultConfig returns the configuration used in absence of a configuration
// file.
func defaultConfig() config {
	return config{
		Capacity:   fdferry.DefaultCapacity,
		Truncation: "skip",
		LogLevel:   "info",
	}
}

// loadConfig returns the default configuration, overlaid with the settings
// from the TOML file at the passed path. An empty path is fine and simply
// returns the defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return config{}, fmt.Errorf("load relay config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config{}, fmt.Errorf("load relay config: unknown key %q",
			undecoded[0].String())
	}
	if err := cfg.validate(); err != nil {
		return config{}, fmt.Errorf("load relay config: %w", err)
	}
	return cfg, nil
}

func (c config) validate() error {
	if c.Capacity < 1 || c.Capacity > rights.MaxPerMessage {
		return fmt.Errorf("invalid capacity %d, expected 1..%d",
			c.Capacity, rights.MaxPerMessage)
	}
	switch strings.ToLower(c.Truncation) {
	case "skip", "fail":
	default:
		return fmt.Errorf("invalid truncation policy %q, expected %q or %q",
			c.Truncation, "skip", "fail")
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return nil
}

// truncationPolicy returns the configured descriptor queue truncation
// policy.
func (c config) truncationPolicy() fdferry.TruncationPolicy {
	if strings.ToLower(c.Truncation) == "fail" {
		return fdferry.TruncationFail
	}
	return fdferry.TruncationSkip
}

// slogLevel returns the configured log level for the process-wide logger.
func (c config) slogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
