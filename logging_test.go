// logging_test.go: logger adapter and test logger tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestLogger_BasicMessageCapture(t *testing.T) {
	logger := NewTestLogger()

	logger.Debug("debug message", "key", 1)
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message", "error", "boom")

	if len(logger.Messages) != 4 {
		t.Fatalf("Expected 4 messages, got %d", len(logger.Messages))
	}
	for _, level := range []string{"DEBUG", "INFO", "WARN", "ERROR"} {
		if !logger.HasMessageContaining(level, "message") {
			t.Errorf("Expected a %s message", level)
		}
	}
	if got, _ := logArg(logger.Messages[3], "error"); got != "boom" {
		t.Errorf("Expected error arg %q, got %v", "boom", got)
	}

	logger.Clear()
	if len(logger.Messages) != 0 {
		t.Errorf("Expected no messages after Clear, got %d", len(logger.Messages))
	}
}

// TestLogger_WithMethod checks that child loggers carry their fields and
// report to the root logger.
func TestLogger_WithMethod(t *testing.T) {
	root := NewTestLogger()
	child := root.With("plugin", "hello").With("function", "hello_fn")

	child.Info("Plugin call", "request_id", "abc")

	if root.Count("INFO", "Plugin call") != 1 {
		t.Fatalf("Expected the child message to be captured by the root")
	}
	msg := root.Messages[0]
	for key, want := range map[string]string{"plugin": "hello", "function": "hello_fn", "request_id": "abc"} {
		if got, ok := logArg(msg, key); !ok || got != want {
			t.Errorf("Expected %s=%q, got %v", key, want, got)
		}
	}
}

func TestLogger_FactoryAndNoOp(t *testing.T) {
	if _, ok := NewLogger(nil).(*NoOpLogger); !ok {
		t.Error("Expected nil to produce a NoOpLogger")
	}

	test := NewTestLogger()
	if NewLogger(test) != Logger(test) {
		t.Error("Expected a Logger to be used as is")
	}

	var buf bytes.Buffer
	slogger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	adapted := NewLogger(slogger)
	if _, ok := adapted.(*SlogLogger); !ok {
		t.Fatalf("Expected *slog.Logger to be wrapped, got %T", adapted)
	}
	adapted.With("plugin", "hello").Warn("Skipping plugin", "reason", SkipReasonDisabled)
	out := buf.String()
	if !strings.Contains(out, "Skipping plugin") || !strings.Contains(out, "plugin=hello") {
		t.Errorf("Unexpected slog output: %s", out)
	}

	noop := NewNoOpLogger()
	noop.Info("ignored")
	if noop.With("k", "v") == nil {
		t.Error("Expected NoOpLogger.With to return a logger")
	}
}

func TestLogger_UnsupportedTypesPanic(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected NewLogger to panic on an unsupported type")
		}
	}()
	NewLogger("not a logger")
}

func TestLogger_ContextIntegration(t *testing.T) {
	if _, ok := LoggerFromContext(context.Background()).(*NoOpLogger); !ok {
		t.Error("Expected the default logger without a context value")
	}

	logger := NewTestLogger()
	ctx := ContextWithLogger(context.Background(), logger)
	LoggerFromContext(ctx).Info("from context")
	if !logger.HasMessage("INFO", "from context") {
		t.Error("Expected the context logger to be used")
	}
}

func TestLogger_ThreadSafety(t *testing.T) {
	logger := NewTestLogger()
	child := logger.With("worker", true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if j%2 == 0 {
					logger.Info("tick", "i", i)
				} else {
					child.Info("tick", "i", i)
				}
			}
		}(i)
	}
	wg.Wait()

	if got := logger.Count("INFO", "tick"); got != 1000 {
		t.Errorf("Expected 1000 messages, got %d", got)
	}
}
