// native_library.go: the C ABI contract between the host and a plugin library
//
// A plugin is a shared library exporting:
//
//	const char* routes(void);
//	void free(char*);
//	const char* <function>(const char* headers_json, const char* body);
//
// Every pointer returned by routes or a handler is owned by the library and
// must be handed back through its free export exactly once.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

// Names of the exports every plugin must provide.
const (
	RoutesSymbol = "routes"
	FreeSymbol   = "free"
)

// RoutesFunc calls the routes export and returns its raw result.
type RoutesFunc func() uintptr

// FreeFunc releases a buffer previously returned by the same library.
type FreeFunc func(ptr uintptr)

// HandlerFunc calls a route handler export. headers and body point to
// NUL-terminated buffers that stay valid only for the duration of the call.
type HandlerFunc func(headers, body *byte) uintptr

// Library is an opened shared library whose exports can be bound to Go
// functions. Implementations must be safe to bind from one goroutine at a
// time; the bound functions themselves may be called concurrently.
type Library interface {
	BindRoutes(symbol string) (RoutesFunc, error)
	BindFree(symbol string) (FreeFunc, error)
	BindHandler(symbol string) (HandlerFunc, error)
}

// LibraryOpener opens libraries by path.
type LibraryOpener interface {
	Open(path string) (Library, error)
}

// OpenerFunc adapts a function to LibraryOpener.
type OpenerFunc func(path string) (Library, error)

// Open implements LibraryOpener.
func (f OpenerFunc) Open(path string) (Library, error) {
	return f(path)
}
