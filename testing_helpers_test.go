// testing_helpers_test.go: in-memory plugin libraries and manifest helpers for tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"unsafe"
)

// fakeAllocator hands out NUL-terminated buffers the way a plugin's malloc
// would, and checks that every one comes back through free exactly once.
type fakeAllocator struct {
	mu          sync.Mutex
	live        map[uintptr][]byte
	allocs      int
	frees       int
	doubleFrees int
}

func newFakeAllocator() *fakeAllocator {
	return &fakeAllocator{live: make(map[uintptr][]byte)}
}

func (a *fakeAllocator) alloc(s string) uintptr {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	ptr := uintptr(unsafe.Pointer(&buf[0]))

	a.mu.Lock()
	defer a.mu.Unlock()
	a.live[ptr] = buf
	a.allocs++
	return ptr
}

func (a *fakeAllocator) free(ptr uintptr) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.live[ptr]; !ok {
		a.doubleFrees++
		return
	}
	delete(a.live, ptr)
	a.frees++
}

// stats returns allocations, frees, double frees and live buffers.
func (a *fakeAllocator) stats() (allocs, frees, doubleFrees, live int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocs, a.frees, a.doubleFrees, len(a.live)
}

// assertBalanced fails the test unless every buffer was freed exactly once.
func (a *fakeAllocator) assertBalanced(t *testing.T) {
	t.Helper()
	allocs, frees, doubleFrees, live := a.stats()
	if doubleFrees != 0 {
		t.Errorf("Expected no double frees, got %d", doubleFrees)
	}
	if live != 0 {
		t.Errorf("Expected no live buffers, got %d", live)
	}
	if allocs != frees {
		t.Errorf("Expected allocs == frees, got %d allocs and %d frees", allocs, frees)
	}
}

// fakeHandler receives the decoded headers JSON and body; ok=false returns null.
type fakeHandler func(headers, body string) (out string, ok bool)

// fakeLibrary is an in-memory Library.
type fakeLibrary struct {
	alloc *fakeAllocator

	mu          sync.Mutex
	routesJSON  string
	nullRoutes  bool
	routesCalls int
	handlers    map[string]fakeHandler
	missing     map[string]bool
}

func newFakeLibrary(alloc *fakeAllocator, routesJSON string) *fakeLibrary {
	return &fakeLibrary{
		alloc:      alloc,
		routesJSON: routesJSON,
		handlers:   make(map[string]fakeHandler),
		missing:    make(map[string]bool),
	}
}

func (l *fakeLibrary) handle(function string, h fakeHandler) *fakeLibrary {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[function] = h
	return l
}

func (l *fakeLibrary) BindRoutes(symbol string) (RoutesFunc, error) {
	if l.missing[symbol] {
		return nil, fmt.Errorf("undefined symbol: %s", symbol)
	}
	return func() uintptr {
		l.mu.Lock()
		l.routesCalls++
		null, data := l.nullRoutes, l.routesJSON
		l.mu.Unlock()
		if null {
			return 0
		}
		return l.alloc.alloc(data)
	}, nil
}

func (l *fakeLibrary) BindFree(symbol string) (FreeFunc, error) {
	if l.missing[symbol] {
		return nil, fmt.Errorf("undefined symbol: %s", symbol)
	}
	return l.alloc.free, nil
}

func (l *fakeLibrary) BindHandler(symbol string) (HandlerFunc, error) {
	l.mu.Lock()
	h, ok := l.handlers[symbol]
	l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("undefined symbol: %s", symbol)
	}
	return func(headers, body *byte) uintptr {
		hs, _ := copyCString(uintptr(unsafe.Pointer(headers)))
		bs, _ := copyCString(uintptr(unsafe.Pointer(body)))
		out, ok := h(hs, bs)
		if !ok {
			return 0
		}
		return l.alloc.alloc(out)
	}, nil
}

// fakeOpener serves fake libraries by path and counts opens.
type fakeOpener struct {
	mu    sync.Mutex
	libs  map[string]*fakeLibrary
	opens map[string]int
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{libs: make(map[string]*fakeLibrary), opens: make(map[string]int)}
}

func (o *fakeOpener) add(path string, lib *fakeLibrary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.libs[path] = lib
}

func (o *fakeOpener) Open(path string) (Library, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	lib, ok := o.libs[path]
	if !ok {
		return nil, fmt.Errorf("%s: cannot open shared object file", path)
	}
	o.opens[path]++
	return lib, nil
}

func (o *fakeOpener) openCount(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens[path]
}

// routesJSON renders a bare route array.
func routesJSON(routes ...routeWire) string {
	data, err := json.Marshal(routes)
	if err != nil {
		panic(err)
	}
	return string(data)
}

func getRoute(path, function, kind string) routeWire {
	return routeWire{Path: path, Function: function, MethodRouter: "get", ResponseType: kind}
}

func postRoute(path, function, kind string) routeWire {
	return routeWire{Path: path, Function: function, MethodRouter: "post", ResponseType: kind}
}

// touchLibrary creates an empty file standing in for a shared object.
func touchLibrary(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("not really an ELF"), 0o600); err != nil {
		t.Fatalf("Failed to create library file: %v", err)
	}
	return path
}

// manifestEntry is one plugin in a test manifest.
type manifestEntry struct {
	Version string `json:"version"`
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
	SHA256  string `json:"sha256,omitempty"`
}

// writeJSONManifest writes a Plugins.json manifest and returns its path.
func writeJSONManifest(t *testing.T, dir string, plugins map[string]manifestEntry) string {
	t.Helper()
	data, err := json.MarshalIndent(map[string]interface{}{"plugins": plugins}, "", "  ")
	if err != nil {
		t.Fatalf("Failed to encode manifest: %v", err)
	}
	path := filepath.Join(dir, "Plugins.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}
	return path
}

// loadTestRegistry opens descs through opener and fails the test on error.
func loadTestRegistry(t *testing.T, opener LibraryOpener, descs ...PluginDescriptor) *LibraryRegistry {
	t.Helper()
	reg, err := LoadLibraries(descs, RegistryOptions{Opener: opener, Logger: NewTestLogger()})
	if err != nil {
		t.Fatalf("LoadLibraries failed: %v", err)
	}
	return reg
}

// routePaths lists "METHOD path" for every bound route, sorted.
func routePaths(routes []BoundRoute) []string {
	out := make([]string, 0, len(routes))
	for _, r := range routes {
		out = append(out, r.Method+" "+r.Path)
	}
	sort.Strings(out)
	return out
}

// logArg returns the value logged under key, if any.
func logArg(msg TestLogMessage, key string) (interface{}, bool) {
	for i := 0; i+1 < len(msg.Args); i += 2 {
		if k, ok := msg.Args[i].(string); ok && k == key {
			return msg.Args[i+1], true
		}
	}
	return nil, false
}
