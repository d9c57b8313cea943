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

package spi

import (
	"go.uber.org/zap"

	"github.com/yunqi/lighthouse/internal/xlog"
)

// Logger is the level-tagged structured-event sink the core logs
// through. Trace/Debug/Info/Warn/Error/Critical are the broker's
// required severity levels, from most to least verbose.
type Logger interface {
	Trace(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Critical(msg string, fields ...zap.Field)
}

// LoggerFactory produces named Logger instances.
type LoggerFactory interface {
	Logger(name string) Logger
}

// ZapLoggerFactory is the default LoggerFactory, backed by internal/xlog.
type ZapLoggerFactory struct{}

func (ZapLoggerFactory) Logger(name string) Logger { return xlog.LoggerModule(name) }
