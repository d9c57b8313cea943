/*
 *    Copyright 2021 chenquan
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *        http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 */

// Package xlog wraps zap into the named-logger factory the broker core
// consumes as its Logger SPI (see internal/spi).
package xlog

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Log is a named, structured logger. It exposes the level-tagged events
// the Logger SPI requires: Trace is mapped onto zap's Debug level since
// zap has no dedicated trace level, and Critical onto zap's DPanic level.
type Log struct {
	name string
	z    *zap.Logger
}

var (
	mu      sync.RWMutex
	base    *zap.Logger = zap.NewNop()
	initted bool
)

// Options configures the process-wide logging sinks. Zero value logs
// nothing (log-disable semantics).
type Options struct {
	File    string // log-file: path to rotate logs into, empty disables file output
	Console bool   // log-console: also log to stderr
	Level   string // log-level: debug|info|warn|error
	Disable bool   // log-disable: suppress all logging
}

// Init wires the process-wide zap core from Options. Safe to call once at
// startup; LoggerModule works against a no-op logger before Init is called.
func Init(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	if opts.Disable {
		base = zap.NewNop()
		initted = true
		return nil
	}

	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.Set(opts.Level); err != nil {
			return err
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	if opts.Console {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderCfg),
			zapcore.Lock(os.Stderr),
			level,
		))
	}
	if opts.File != "" {
		writer := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.AddSync(writer),
			level,
		))
	}
	if len(cores) == 0 {
		base = zap.NewNop()
	} else {
		base = zap.New(zapcore.NewTee(cores...))
	}
	initted = true
	return nil
}

// LoggerModule returns a Log tagged with the given subsystem name, e.g.
// "server", "session-manager", "topic-subscriptions".
func LoggerModule(name string) *Log {
	mu.RLock()
	b := base
	mu.RUnlock()
	return &Log{name: name, z: b.With(zap.String("module", name))}
}

func (l *Log) Trace(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Log) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Log) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Log) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Log) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

// Critical logs at zap's DPanic level: noisy in development, silent (but
// still logged as an error) in production encoder configs.
func (l *Log) Critical(msg string, fields ...zap.Field) { l.z.DPanic(msg, fields...) }

// Panic logs then panics, for unrecoverable startup failures a caller
// has no sensible way to continue past.
func (l *Log) Panic(msg string, fields ...zap.Field) { l.z.Panic(msg, fields...) }

// Named derives a child logger, e.g. LoggerModule("session").Named(clientID).
func (l *Log) Named(suffix string) *Log {
	return &Log{name: l.name + "." + suffix, z: l.z.With(zap.String("sub", suffix))}
}
