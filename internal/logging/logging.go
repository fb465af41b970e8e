// Copyright (c) 2019 Andy Pan
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

// Package logging provides the reactor's structured logger. It wraps
// go.uber.org/zap and, optionally, a lumberjack rotating file sink.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.RWMutex
	logger  *zap.SugaredLogger
	rotator *lumberjack.Logger
)

func init() {
	l, _ := zap.NewProduction()
	logger = l.Sugar()
}

// Rotation describes the lumberjack file-rotation policy for the file sink
// installed by SetLogPath.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultRotation mirrors the teacher's lumberjack defaults: modest size cap,
// a handful of backups, compressed.
var DefaultRotation = Rotation{MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28, Compress: true}

// SetLogger replaces the package-wide logger wholesale, e.g. with a caller's
// own *zap.Logger.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l.Sugar()
}

// SetLogPath points the logger at a rotating file sink at path, using rot
// for the rotation policy. It replaces (and closes) any previously
// installed file sink.
func SetLogPath(path string, rot Rotation) error {
	mu.Lock()
	defer mu.Unlock()

	if rotator != nil {
		_ = rotator.Close()
	}

	rotator = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rot.MaxSizeMB,
		MaxBackups: rot.MaxBackups,
		MaxAge:     rot.MaxAgeDays,
		Compress:   rot.Compress,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(rotator),
		zap.InfoLevel,
	)
	logger = zap.New(core).Sugar()
	return nil
}

// Errorf logs a formatted message at Error level. Used on hot paths where
// the caller cannot usefully propagate the error (poller wakeups, accept
// failures inside the tick loop).
func Errorf(format string, args ...interface{}) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Errorf(format, args...)
}

// Warnf logs a formatted message at Warn level.
func Warnf(format string, args ...interface{}) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Warnf(format, args...)
}

// Debugf logs a formatted message at Debug level.
func Debugf(format string, args ...interface{}) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Debugf(format, args...)
}

// LogErr logs err at Warn level if it is non-nil; a convenience for call
// sites that can't usefully do anything else with a teardown-time error.
func LogErr(err error) {
	if err == nil {
		return
	}
	Warnf("%v", err)
}
