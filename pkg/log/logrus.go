// Copyright 2026 The vmcore Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"time"

	"github.com/sirupsen/logrus"
)

// LogrusEmitter routes log statements through a logrus logger, so binaries
// that already standardize on logrus (e.g. cmd/vmtool) get a single output
// stream.
type LogrusEmitter struct {
	// Logger is the destination logrus logger. A nil Logger uses the
	// logrus standard logger.
	Logger *logrus.Logger
}

// Emit implements Emitter.Emit.
func (e LogrusEmitter) Emit(_ int, level Level, _ time.Time, format string, v ...any) {
	logger := e.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	switch level {
	case Warning:
		logger.Warnf(format, v...)
	case Info:
		logger.Infof(format, v...)
	case Debug:
		logger.Debugf(format, v...)
	}
}
