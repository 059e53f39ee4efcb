package main

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestBackground(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"clean stop", nil, 0},
		{"failure", errors.New("scheduler already running"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			<-background(zap.New(core).Sugar(), "teleop", func() error { return tt.err })

			if got := logs.Len(); got != tt.want {
				t.Fatalf("logged %d entries, want %d", got, tt.want)
			}
			if tt.want == 0 {
				return
			}
			entry := logs.All()[0]
			if entry.Level != zapcore.ErrorLevel || entry.Message != "teleop stopped" {
				t.Errorf("entry = %s %q", entry.Level, entry.Message)
			}
			if got := entry.ContextMap()["error"]; got != tt.err.Error() {
				t.Errorf("error field = %v, want %q", got, tt.err)
			}
		})
	}
}
