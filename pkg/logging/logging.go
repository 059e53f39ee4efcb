// Package logging builds the zap loggers used across ringbot.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console-encoded sugared logger at level writing to every sink, or to
// stderr when none is given.
func New(level zapcore.Level, sinks ...zapcore.WriteSyncer) *zap.SugaredLogger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")

	if len(sinks) == 0 {
		sinks = []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.NewMultiWriteSyncer(sinks...),
		zap.NewAtomicLevelAt(level),
	)
	return zap.New(core).Sugar()
}

// ParseLevel parses debug, info, warn or error. Unknown names select info.
func ParseLevel(s string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// ChannelSink is a zapcore.WriteSyncer that forwards each log line to a channel,
// dropping lines while the channel is full.
type ChannelSink struct {
	ch chan string
}

// NewChannelSink returns a sink buffering up to size lines.
func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{ch: make(chan string, size)}
}

// Lines returns the channel log lines arrive on.
func (s *ChannelSink) Lines() <-chan string {
	return s.ch
}

func (s *ChannelSink) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		select {
		case s.ch <- line:
		default:
			// Drop if channel full
		}
	}
	return len(p), nil
}

func (s *ChannelSink) Sync() error { return nil }
