// errors.go: structured error definitions for the native plugin host
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/agilira/go-errors"
)

// Error codes for the native plugin host
const (
	// Configuration errors (1700-1799)
	ErrCodeConfigNotFound        = "CONFIG_1701"
	ErrCodeConfigParseError      = "CONFIG_1702"
	ErrCodeConfigValidationError = "CONFIG_1703"
	ErrCodeConfigFileError       = "CONFIG_1706"
	ErrCodeManifestSchemaError   = "CONFIG_1708"

	// Load errors (2100-2199)
	ErrCodeLibraryOpenFailed   = "LOAD_2101"
	ErrCodeMissingExport       = "LOAD_2102"
	ErrCodeIntegrityMismatch   = "LOAD_2103"
	ErrCodeUnsupportedPlatform = "LOAD_2104"
	ErrCodeDuplicatePlugin     = "LOAD_2105"

	// Protocol errors (2200-2299)
	ErrCodeNullRouteList        = "PROTOCOL_2201"
	ErrCodeMalformedRouteList   = "PROTOCOL_2202"
	ErrCodeRouteListStatus      = "PROTOCOL_2203"
	ErrCodeUnsupportedMethod    = "PROTOCOL_2204"
	ErrCodeUnsupportedResponse  = "PROTOCOL_2205"
	ErrCodeInvalidRoute         = "PROTOCOL_2206"
	ErrCodeDuplicateRoute       = "PROTOCOL_2207"
	ErrCodeInvalidRequestBody   = "PROTOCOL_2208"
	ErrCodeHeaderEncodingFailed = "PROTOCOL_2209"

	// Runtime errors (2300-2399)
	ErrCodeNullResponse     = "RUNTIME_2301"
	ErrCodeHandlerPanic     = "RUNTIME_2302"
	ErrCodeCallAbandoned    = "RUNTIME_2303"
	ErrCodePoolClosed       = "RUNTIME_2304"
	ErrCodeBufferReleased   = "RUNTIME_2305"
	ErrCodeConcurrencyLimit = "RUNTIME_2306"
	ErrCodeForeignTooLong   = "RUNTIME_2307"
)

// ErrorCategory classifies errors produced by this package.
type ErrorCategory string

const (
	CategoryConfig   ErrorCategory = "config"
	CategoryLoad     ErrorCategory = "load"
	CategoryProtocol ErrorCategory = "protocol"
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryUnknown  ErrorCategory = "unknown"
)

// Configuration error constructors

func NewConfigNotFoundError(path string) *errors.Error {
	return errors.New(ErrCodeConfigNotFound, "Plugin manifest not found").
		WithUserMessage("The plugin manifest file could not be found").
		WithContext("config_path", path).
		WithSeverity("error")
}

func NewConfigParseError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigParseError, "Plugin manifest parse error").
		WithUserMessage("Failed to parse plugin manifest").
		WithContext("config_path", path).
		WithSeverity("error")
}

func NewConfigValidationError(message string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeConfigValidationError, "Configuration validation error: "+message).
			WithUserMessage("Configuration validation failed").
			WithSeverity("error")
	}
	return errors.New(ErrCodeConfigValidationError, "Configuration validation error: "+message).
		WithUserMessage("Configuration validation failed").
		WithSeverity("error")
}

func NewConfigFileError(path string, message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigFileError, "Configuration file error: "+message).
		WithUserMessage("Plugin manifest access failed").
		WithContext("config_path", path).
		WithSeverity("error")
}

func NewManifestSchemaError(path string, message string) *errors.Error {
	return errors.New(ErrCodeManifestSchemaError, "Manifest schema error: "+message).
		WithUserMessage("Plugin manifest does not match the expected schema").
		WithContext("config_path", path).
		WithSeverity("error")
}

// Load error constructors

func NewLibraryOpenError(name, path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeLibraryOpenFailed, "Failed to open native library").
		WithUserMessage("A configured plugin library could not be opened").
		WithContext("plugin_name", name).
		WithContext("plugin_path", path).
		WithSeverity("error")
}

func NewMissingExportError(name, export string, cause error) *errors.Error {
	msg := "Missing plugin export: " + export
	if cause != nil {
		return errors.Wrap(cause, ErrCodeMissingExport, msg).
			WithUserMessage("A required plugin export could not be resolved").
			WithContext("plugin_name", name).
			WithContext("export", export).
			WithSeverity("error")
	}
	return errors.New(ErrCodeMissingExport, msg).
		WithUserMessage("A required plugin export could not be resolved").
		WithContext("plugin_name", name).
		WithContext("export", export).
		WithSeverity("error")
}

func NewIntegrityMismatchError(name, path, expected, actual string) *errors.Error {
	return errors.New(ErrCodeIntegrityMismatch, "Plugin file hash does not match manifest").
		WithUserMessage("Plugin integrity verification failed").
		WithContext("plugin_name", name).
		WithContext("plugin_path", path).
		WithContext("expected", expected).
		WithContext("actual", actual).
		WithSeverity("error")
}

func NewUnsupportedPlatformError(goos string) *errors.Error {
	return errors.New(ErrCodeUnsupportedPlatform, "Native libraries are not supported on "+goos).
		WithUserMessage("This platform cannot load native plugins").
		WithContext("goos", goos).
		WithSeverity("error")
}

func NewDuplicatePluginError(name string) *errors.Error {
	return errors.New(ErrCodeDuplicatePlugin, "Duplicate plugin name").
		WithUserMessage("Plugin names must be unique").
		WithContext("plugin_name", name).
		WithSeverity("error")
}

// Protocol error constructors

func NewNullRouteListError(name string) *errors.Error {
	return errors.New(ErrCodeNullRouteList, "Received null pointer from routes function").
		WithUserMessage("Plugin returned no route list").
		WithContext("plugin_name", name).
		WithSeverity("error")
}

func NewMalformedRouteListError(name string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeMalformedRouteList, "Malformed route list").
		WithUserMessage("Plugin route list is not valid JSON").
		WithContext("plugin_name", name).
		WithSeverity("error")
}

func NewRouteListStatusError(name string, status int, message string) *errors.Error {
	return errors.New(ErrCodeRouteListStatus, "Error loading routes: "+message).
		WithUserMessage("Plugin reported a failure while listing routes").
		WithContext("plugin_name", name).
		WithContext("status", status).
		WithSeverity("error")
}

func NewUnsupportedMethodError(name, path, method string) *errors.Error {
	return errors.New(ErrCodeUnsupportedMethod, "Unsupported method: "+method).
		WithUserMessage("Plugin routes may only use GET or POST").
		WithContext("plugin_name", name).
		WithContext("route_path", path).
		WithContext("method", method).
		WithSeverity("error")
}

func NewUnsupportedResponseKindError(name, path, kind string) *errors.Error {
	return errors.New(ErrCodeUnsupportedResponse, "Unsupported response format: "+kind).
		WithUserMessage("Plugin routes may only respond with text, html or json").
		WithContext("plugin_name", name).
		WithContext("route_path", path).
		WithContext("response_type", kind).
		WithSeverity("error")
}

func NewInvalidRouteError(name, path, message string) *errors.Error {
	return errors.New(ErrCodeInvalidRoute, "Invalid route: "+message).
		WithUserMessage("Plugin advertised an invalid route").
		WithContext("plugin_name", name).
		WithContext("route_path", path).
		WithSeverity("error")
}

func NewDuplicateRouteError(method, path string, plugins ...string) *errors.Error {
	return errors.New(ErrCodeDuplicateRoute, "Duplicate route: "+method+" "+path).
		WithUserMessage("Two plugin routes resolve to the same method and path").
		WithContext("method", method).
		WithContext("route_path", path).
		WithContext("plugins", strings.Join(plugins, ",")).
		WithSeverity("error")
}

func NewInvalidBodyError(message string) *errors.Error {
	return errors.New(ErrCodeInvalidRequestBody, "Invalid request body: "+message).
		WithUserMessage("The request body cannot be passed to the plugin").
		WithSeverity("warning")
}

func NewHeaderEncodingError(cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeHeaderEncodingFailed, "Failed to encode request headers").
		WithUserMessage("The request headers cannot be passed to the plugin").
		WithSeverity("error")
}

// Runtime error constructors

func NewNullResponseError(name, function string) *errors.Error {
	return errors.New(ErrCodeNullResponse, "Received null pointer from function").
		WithUserMessage("The plugin handler returned no response").
		WithContext("plugin_name", name).
		WithContext("function", function).
		WithSeverity("error")
}

func NewHandlerPanicError(name, function string, recovered any) *errors.Error {
	return errors.New(ErrCodeHandlerPanic, "Panic while calling plugin handler").
		WithUserMessage("The plugin call failed unexpectedly").
		WithContext("plugin_name", name).
		WithContext("function", function).
		WithContext("panic", recovered).
		WithSeverity("error")
}

func NewCallAbandonedError(name, function string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeCallAbandoned, "Stopped waiting for plugin call").
		WithUserMessage("The plugin call did not complete in time").
		WithContext("plugin_name", name).
		WithContext("function", function).
		WithSeverity("warning").
		AsRetryable()
}

func NewPoolClosedError() *errors.Error {
	return errors.New(ErrCodePoolClosed, "Call pool is closed").
		WithUserMessage("The plugin host is shutting down").
		WithSeverity("warning")
}

func NewBufferReleasedError() *errors.Error {
	return errors.New(ErrCodeBufferReleased, "Foreign buffer already released").
		WithUserMessage("Plugin memory was accessed after release").
		WithSeverity("error")
}

func NewConcurrencyLimitError(name string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConcurrencyLimit, "Waiting for a plugin call slot failed").
		WithUserMessage("The plugin is busy").
		WithContext("plugin_name", name).
		WithSeverity("warning").
		AsRetryable()
}

func NewForeignStringTooLongError(limit int) *errors.Error {
	return errors.New(ErrCodeForeignTooLong, "Plugin buffer is not NUL-terminated within the size limit").
		WithUserMessage("The plugin returned an oversized response").
		WithContext("limit_bytes", limit).
		WithSeverity("error")
}

// codeOf returns the go-errors code carried by err, if any.
func codeOf(err error) string {
	var coded *errors.Error
	if stderrors.As(err, &coded) {
		return string(coded.Code)
	}
	return ""
}

// HasCode reports whether err carries the given error code.
func HasCode(err error, code string) bool {
	return err != nil && codeOf(err) == code
}

// CategoryOf classifies err by its code prefix.
func CategoryOf(err error) ErrorCategory {
	code := codeOf(err)
	switch {
	case strings.HasPrefix(code, "CONFIG_"):
		return CategoryConfig
	case strings.HasPrefix(code, "LOAD_"):
		return CategoryLoad
	case strings.HasPrefix(code, "PROTOCOL_"):
		return CategoryProtocol
	case strings.HasPrefix(code, "RUNTIME_"):
		return CategoryRuntime
	default:
		return CategoryUnknown
	}
}

// HTTPStatus maps a request-time error to the status written to the client.
func HTTPStatus(err error) int {
	switch codeOf(err) {
	case ErrCodeInvalidRequestBody:
		return http.StatusBadRequest
	case ErrCodeCallAbandoned:
		return http.StatusGatewayTimeout
	case ErrCodePoolClosed, ErrCodeConcurrencyLimit:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
