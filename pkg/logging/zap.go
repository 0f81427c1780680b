// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package logging builds the zap loggers of the storage tools.
package logging

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/siderolabs/gen/xslices"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format is the encoding of the log entries.
type Format string

// Log formats.
const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// LogWriter is a wrapper around zap.Logger that implements io.Writer interface.
type LogWriter struct {
	dest  *zap.Logger
	level zapcore.Level
}

// NewWriter creates new log zap log writer.
func NewWriter(l *zap.Logger, level zapcore.Level) io.Writer {
	return &LogWriter{
		dest:  l,
		level: level,
	}
}

// Write implements io.Writer interface.
func (lw *LogWriter) Write(line []byte) (int, error) {
	checked := lw.dest.Check(lw.level, strings.TrimSpace(string(line)))
	if checked == nil {
		return 0, nil
	}

	checked.Write()

	return len(line), nil
}

// StdLogger returns a standard library logger writing to l, used by net/http servers.
func StdLogger(l *zap.Logger, level zapcore.Level) *log.Logger {
	return log.New(NewWriter(l, level), "", 0)
}

// LogDestination defines logging destination Config.
type LogDestination struct {
	level  zapcore.LevelEnabler
	writer io.Writer
	config zapcore.EncoderConfig
	format Format
}

// EncoderOption defines a log destination encoder config setter.
type EncoderOption func(dest *LogDestination)

// WithoutTimestamp disables timestamp.
func WithoutTimestamp() EncoderOption {
	return func(dest *LogDestination) {
		dest.config.EncodeTime = nil
	}
}

// WithColoredLevels enables log level colored output.
func WithColoredLevels() EncoderOption {
	return func(dest *LogDestination) {
		dest.config.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
}

// WithFormat sets the encoding of the entries.
func WithFormat(format Format) EncoderOption {
	return func(dest *LogDestination) {
		dest.format = format
	}
}

// NewLogDestination creates new log destination.
func NewLogDestination(writer io.Writer, logLevel zapcore.LevelEnabler, options ...EncoderOption) *LogDestination {
	config := zap.NewDevelopmentEncoderConfig()
	config.ConsoleSeparator = " "
	config.StacktraceKey = "error"

	dest := &LogDestination{
		level:  logLevel,
		config: config,
		writer: writer,
		format: FormatConsole,
	}

	for _, option := range options {
		option(dest)
	}

	return dest
}

func (dest *LogDestination) encoder() zapcore.Encoder {
	if dest.format == FormatJSON {
		config := zap.NewProductionEncoderConfig()
		config.EncodeTime = zapcore.ISO8601TimeEncoder

		if dest.config.EncodeTime == nil {
			config.TimeKey = ""
		}

		return zapcore.NewJSONEncoder(config)
	}

	return zapcore.NewConsoleEncoder(dest.config)
}

// Wrap is a simple helper to wrap io.Writer with default arguments.
func Wrap(writer io.Writer) *zap.Logger {
	return ZapLogger(
		NewLogDestination(writer, zapcore.DebugLevel),
	)
}

// New builds a logger writing entries at level and above to writer.
//
// An empty level means info.
func New(writer io.Writer, level string, options ...EncoderOption) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel

	if level != "" {
		var err error

		if lvl, err = zapcore.ParseLevel(level); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	return ZapLogger(NewLogDestination(writer, lvl, options...)), nil
}

// ZapLogger creates new default Zap Logger.
func ZapLogger(dests ...*LogDestination) *zap.Logger {
	if len(dests) == 0 {
		panic("at least one writer must be defined")
	}

	cores := xslices.Map(dests, func(dest *LogDestination) zapcore.Core {
		return zapcore.NewCore(
			dest.encoder(),
			zapcore.AddSync(dest.writer),
			dest.level,
		)
	})

	return zap.New(zapcore.NewTee(cores...))
}

// Component helper for creating zap.Field.
func Component(name string) zapcore.Field {
	return zap.String("component", name)
}
