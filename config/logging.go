//  Copyright (c) 2026 Uber Technologies, Inc.
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

package config

import (
	"fmt"
	"io"
	"log"
	"os"
)

// LogLevel is the verbosity of a LogGroup. A message is printed when its level is at most the
// level of the group.
type LogLevel int

// The levels, from the quietest.
const (
	ErrLevel LogLevel = iota + 1
	WarnLevel
	InfoLevel
	// DebugLevel reports per-function events and stays readable on large programs.
	DebugLevel
	// TraceLevel reports every solver step.
	TraceLevel
)

var _levelTags = map[LogLevel]string{
	ErrLevel:   "[ERROR] ",
	WarnLevel:  "[WARN] ",
	InfoLevel:  "[INFO] ",
	DebugLevel: "[DEBUG] ",
	TraceLevel: "[TRACE] ",
}

// LogGroup prints leveled messages to a single logger. It is safe for concurrent use since
// every message is one call to the underlying logger.
type LogGroup struct {
	level LogLevel
	out   *log.Logger
}

// NewLogGroup returns a log group writing to stderr at the level stored in the config.
func NewLogGroup(config *Config) *LogGroup {
	return NewLogGroupTo(os.Stderr, LogLevel(config.LogLevel))
}

// NewLogGroupTo returns a log group writing to w at the given level.
func NewLogGroupTo(w io.Writer, level LogLevel) *LogGroup {
	return &LogGroup{level: level, out: log.New(w, "", log.Ltime)}
}

// Discard returns a log group that prints nothing.
func Discard() *LogGroup { return NewLogGroupTo(io.Discard, ErrLevel) }

// Level returns the level of the group.
func (l *LogGroup) Level() LogLevel { return l.level }

// SetAllOutput redirects the group to w.
func (l *LogGroup) SetAllOutput(w io.Writer) { l.out.SetOutput(w) }

// SetAllFlags sets the log flags of the group, e.g. 0 to drop timestamps.
func (l *LogGroup) SetAllFlags(flags int) { l.out.SetFlags(flags) }

func (l *LogGroup) logf(level LogLevel, format string, v []any) {
	if level > l.level {
		return
	}
	_ = l.out.Output(3, _levelTags[level]+fmt.Sprintf(format, v...))
}

// Tracef logs at TraceLevel.
func (l *LogGroup) Tracef(format string, v ...any) { l.logf(TraceLevel, format, v) }

// Debugf logs at DebugLevel.
func (l *LogGroup) Debugf(format string, v ...any) { l.logf(DebugLevel, format, v) }

// Infof logs at InfoLevel.
func (l *LogGroup) Infof(format string, v ...any) { l.logf(InfoLevel, format, v) }

// Warnf logs at WarnLevel.
func (l *LogGroup) Warnf(format string, v ...any) { l.logf(WarnLevel, format, v) }

// Errorf logs at ErrLevel.
func (l *LogGroup) Errorf(format string, v ...any) { l.logf(ErrLevel, format, v) }
