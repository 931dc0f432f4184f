// request_bridge.go: turning HTTP requests into foreign handler calls
//
// A call goes through four steps: the request headers and body are marshaled
// into NUL-terminated buffers owned by the host, a per-plugin slot is
// acquired, the call is dispatched to the call pool, and the returned buffer
// is copied out and released through the plugin's free export.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// RawQueryHeader carries the request's raw query string to the plugin.
const RawQueryHeader = "x-raw-query"

// RequestIDHeader is set on every plugin-backed response.
const RequestIDHeader = "X-Request-Id"

// BridgeOptions controls a RequestBridge.
type BridgeOptions struct {
	// Pool running the foreign calls; required
	Pool *CallPool

	// Per-plugin concurrency gate shared by every route of the plugin; nil
	// means unbounded
	Gate *semaphore.Weighted

	// Maximum wait for a call, 0 for no limit
	CallTimeout time.Duration

	// Maximum request body size, 0 for no limit
	MaxBodyBytes int64

	// Log request headers at debug level
	Debug bool

	Tracker *RequestTracker
	Metrics MetricsCollector
	Logger  Logger
}

// RequestBridge calls one bound route.
type RequestBridge struct {
	route BoundRoute
	opts  BridgeOptions

	logger  Logger
	tracker *RequestTracker
	onPanic RecoveryHandler
}

// NewRequestBridge creates the bridge for route.
func NewRequestBridge(route BoundRoute, opts BridgeOptions) *RequestBridge {
	logger := NewLogger(opts.Logger).With("plugin", route.Plugin, "function", route.Function)
	tracker := opts.Tracker
	if tracker == nil {
		tracker = NewRequestTracker(opts.Metrics)
	}
	return &RequestBridge{
		route:   route,
		opts:    opts,
		logger:  logger,
		tracker: tracker,
		onPanic: MetricsRecoveryHandler(logger, opts.Metrics, "request_bridge"),
	}
}

// Route returns the route served by the bridge.
func (b *RequestBridge) Route() BoundRoute {
	return b.route
}

type callResult struct {
	payload string
	err     error
}

// Call invokes the route's handler export and returns its payload.
//
// The calling goroutine only waits. The foreign call itself runs on the call
// pool and cannot be interrupted: when ctx is done or CallTimeout elapses the
// wait is abandoned, but the call still completes, its buffer is released and
// its concurrency slot returned.
func (b *RequestBridge) Call(ctx context.Context, header http.Header, rawQuery string, body []byte) (string, error) {
	ctx = ContextWithLogger(ctx, b.logger.With("request_id", uuid.NewString()))
	return b.call(ctx, header, rawQuery, body)
}

// call expects ctx to carry the request logger.
func (b *RequestBridge) call(ctx context.Context, header http.Header, rawQuery string, body []byte) (string, error) {
	logger := LoggerFromContext(ctx)

	headersBuf, err := MarshalHeaders(header, rawQuery)
	if err != nil {
		return "", err
	}
	bodyBuf, err := cString(body)
	if err != nil {
		return "", err
	}

	if b.opts.Debug {
		logger.Debug("Handle route header map", "headers", string(headersBuf[:len(headersBuf)-1]))
	}

	if b.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.CallTimeout)
		defer cancel()
	}

	if b.opts.Gate != nil {
		if err := b.opts.Gate.Acquire(ctx, 1); err != nil {
			return "", NewConcurrencyLimitError(b.route.Plugin, err)
		}
	}
	releaseSlot := func() {
		if b.opts.Gate != nil {
			b.opts.Gate.Release(1)
		}
	}

	done := make(chan callResult, 1)
	job := func() {
		var res callResult
		start := b.tracker.StartCall(b.route.Plugin)
		defer func() {
			b.tracker.EndCall(b.route.Plugin, b.route.Function, start, res.err)
			releaseSlot()
			done <- res
		}()
		defer withCustomRecoveryHandler(func(recovered interface{}, stack []byte) {
			b.onPanic(recovered, stack)
			res = callResult{err: NewHandlerPanicError(b.route.Plugin, b.route.Function, recovered)}
		})()

		res = b.invoke(headersBuf, bodyBuf)
	}

	if b.opts.Pool == nil {
		releaseSlot()
		return "", NewPoolClosedError()
	}
	if err := b.opts.Pool.Submit(ctx, job); err != nil {
		releaseSlot()
		if HasCode(err, ErrCodePoolClosed) {
			return "", err
		}
		return "", NewCallAbandonedError(b.route.Plugin, b.route.Function, err)
	}

	select {
	case res := <-done:
		if res.err != nil {
			logger.Error("Plugin call failed", "error", res.err)
		}
		return res.payload, res.err
	case <-ctx.Done():
		if b.opts.Metrics != nil {
			b.opts.Metrics.IncrementCounter(MetricCallsAbandoned, map[string]string{"plugin": b.route.Plugin}, 1)
		}
		logger.Warn("Stopped waiting for plugin call", "reason", ctx.Err())
		return "", NewCallAbandonedError(b.route.Plugin, b.route.Function, ctx.Err())
	}
}

// invoke performs the foreign call. Both buffers must stay reachable until
// the handler returns.
func (b *RequestBridge) invoke(headers, body []byte) callResult {
	ptr := b.route.handler(&headers[0], &body[0])
	runtime.KeepAlive(headers)
	runtime.KeepAlive(body)

	payload, ok, err := takeForeignString(ptr, b.route.free)
	if !ok {
		return callResult{err: NewNullResponseError(b.route.Plugin, b.route.Function)}
	}
	if err != nil {
		return callResult{err: err}
	}
	return callResult{payload: payload}
}

// ServeHTTP implements http.Handler.
func (b *RequestBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set(RequestIDHeader, requestID)
	logger := b.logger.With("request_id", requestID)
	ctx := ContextWithLogger(r.Context(), logger)

	body, err := b.readBody(w, r)
	if err != nil {
		status := http.StatusBadRequest
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	payload, err := b.call(ctx, r.Header, r.URL.RawQuery, body)
	if err != nil {
		if ctx.Err() != nil {
			// Client is gone; nothing to write.
			return
		}
		status := HTTPStatus(err)
		http.Error(w, http.StatusText(status), status)
		return
	}

	resp := EncodeResponse(b.route.Kind, payload)
	if resp.ParseError != nil {
		logger.Warn("Error parsing JSON", "error", resp.ParseError)
		if b.opts.Metrics != nil {
			b.opts.Metrics.IncrementCounter(MetricJSONParseErrors, map[string]string{
				"plugin":   b.route.Plugin,
				"function": b.route.Function,
			}, 1)
		}
	}
	resp.Write(w)
}

func (b *RequestBridge) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	reader := io.Reader(r.Body)
	if b.opts.MaxBodyBytes > 0 {
		reader = http.MaxBytesReader(w, r.Body, b.opts.MaxBodyBytes)
	}
	return io.ReadAll(reader)
}

// MarshalHeaders encodes header as the NUL-terminated JSON object passed to
// handlers: lower-case names mapped to every value in order. A non-empty
// rawQuery replaces any x-raw-query header sent by the client.
func MarshalHeaders(header http.Header, rawQuery string) ([]byte, error) {
	collection := make(map[string][]string, len(header)+1)
	for name, values := range header {
		key := strings.ToLower(name)
		collection[key] = append(collection[key], values...)
	}
	if rawQuery != "" {
		collection[RawQueryHeader] = []string{rawQuery}
	}

	encoded, err := json.Marshal(collection)
	if err != nil {
		return nil, NewHeaderEncodingError(err)
	}
	return append(encoded, 0), nil
}

// cString copies body into a NUL-terminated buffer. Bodies that cannot be
// represented as C text are rejected.
func cString(body []byte) ([]byte, error) {
	if bytes.IndexByte(body, 0) >= 0 {
		return nil, NewInvalidBodyError("body contains a NUL byte")
	}
	if !utf8.Valid(body) {
		return nil, NewInvalidBodyError("body is not valid UTF-8")
	}
	buf := make([]byte, len(body)+1)
	copy(buf, body)
	return buf, nil
}
