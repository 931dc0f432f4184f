// panic_recovery.go: panic recovery with stack capture
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"runtime"
)

// RecoveryHandler receives a recovered panic value and the goroutine stack.
type RecoveryHandler func(recovered interface{}, stack []byte)

// withStackRecover returns a function that, when deferred, recovers a panic
// and logs it with the stack trace.
//
//	defer withStackRecover(logger)()
func withStackRecover(logger Logger) func() {
	return func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered in goroutine",
				"panic", r,
				"stack", string(captureStack()))
		}
	}
}

// withCustomRecoveryHandler is withStackRecover with a caller supplied handler.
func withCustomRecoveryHandler(handler RecoveryHandler) func() {
	return func() {
		if r := recover(); r != nil {
			handler(r, captureStack())
		}
	}
}

func captureStack() []byte {
	buf := make([]byte, 64<<10)
	n := runtime.Stack(buf, false)
	return buf[:n]
}

// MetricsRecoveryHandler returns a handler that logs the panic and counts it
// under component.
func MetricsRecoveryHandler(logger Logger, metrics MetricsCollector, component string) RecoveryHandler {
	return func(recovered interface{}, stack []byte) {
		if metrics != nil {
			metrics.IncrementCounter(MetricPanicsRecovered, map[string]string{"component": component}, 1)
		}
		logger.Error("Panic recovered",
			"panic", recovered,
			"component", component,
			"stack", string(stack))
	}
}
