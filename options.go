// Copyright (c) 2024 The raktr Authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package raktr

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/qadron/raktr/internal/logging"
)

// Options configures a Reactor at construction time. The zero value (via
// New with no Option) gives max_tick_interval the spec's documented
// default of 100ms.
type Options struct {
	// MaxTickInterval bounds how long one tick's readiness wait may block.
	// Zero means block indefinitely until a socket is ready or a poller
	// wakeup arrives (Stop, Queue delivery, connect/listen registration);
	// tasks added by OnTick, NextTick, AtInterval or Delay do not end such
	// a wait.
	MaxTickInterval time.Duration

	// ReadBufferCap is the size of the scratch buffer used for each read(2)
	// syscall per ready socket, per tick.
	ReadBufferCap int

	// LogPath, if set, redirects the reactor's logger to a rotating file
	// sink at this path instead of stderr.
	LogPath string

	// LogRotation controls the file sink's rotation policy; ignored unless
	// LogPath is set. Zero value uses logging.DefaultRotation.
	LogRotation logging.Rotation
}

const defaultMaxTickInterval = 100 * time.Millisecond
const defaultReadBufferCap = 64 * 1024

// Option mutates Options during New.
type Option func(*Options)

// WithMaxTickInterval overrides the selector timeout (spec §3:
// "maximum-tick-interval (seconds, default 0.1)").
func WithMaxTickInterval(d time.Duration) Option {
	return func(o *Options) { o.MaxTickInterval = d }
}

// WithReadBufferCap overrides the per-read scratch buffer size.
func WithReadBufferCap(n int) Option {
	return func(o *Options) { o.ReadBufferCap = n }
}

// WithLogPath redirects the reactor's logger to a rotating file at path.
func WithLogPath(path string, rotation logging.Rotation) Option {
	return func(o *Options) {
		o.LogPath = path
		o.LogRotation = rotation
	}
}

func loadOptions(opts ...Option) *Options {
	o := &Options{
		MaxTickInterval: defaultMaxTickInterval,
		ReadBufferCap:   defaultReadBufferCap,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// tomlOptions is the on-disk shape decoded by LoadOptionsTOML; field names
// match the snake_case keys spec §6 documents for the constructor's
// recognised options.
type tomlOptions struct {
	MaxTickIntervalSeconds float64 `toml:"max_tick_interval"`
	ReadBufferCap          int     `toml:"read_buffer_cap"`
	LogPath                string  `toml:"log_path"`
	LogMaxSizeMB           int     `toml:"log_max_size_mb"`
	LogMaxBackups          int     `toml:"log_max_backups"`
	LogMaxAgeDays          int     `toml:"log_max_age_days"`
	LogCompress            bool    `toml:"log_compress"`
}

// LoadOptionsTOML reads a TOML document at path and returns the equivalent
// []Option, so a caller can do raktr.New(append(fileOpts, overrides...)...).
func LoadOptionsTOML(path string) ([]Option, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var doc tomlOptions
	if _, err := toml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, err
	}

	var opts []Option
	if doc.MaxTickIntervalSeconds > 0 {
		opts = append(opts, WithMaxTickInterval(time.Duration(doc.MaxTickIntervalSeconds*float64(time.Second))))
	}
	if doc.ReadBufferCap > 0 {
		opts = append(opts, WithReadBufferCap(doc.ReadBufferCap))
	}
	if doc.LogPath != "" {
		rot := logging.DefaultRotation
		if doc.LogMaxSizeMB > 0 {
			rot.MaxSizeMB = doc.LogMaxSizeMB
		}
		if doc.LogMaxBackups > 0 {
			rot.MaxBackups = doc.LogMaxBackups
		}
		if doc.LogMaxAgeDays > 0 {
			rot.MaxAgeDays = doc.LogMaxAgeDays
		}
		rot.Compress = doc.LogCompress
		opts = append(opts, WithLogPath(doc.LogPath, rot))
	}

	return opts, nil
}
