// native_library_unix.go: dlopen-based library loading for Unix-like systems
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

//go:build darwin || freebsd || linux

package nativeplugins

import (
	"fmt"
	"path/filepath"

	"github.com/ebitengine/purego"
)

// NativeOpener opens shared objects with dlopen through purego, so the host
// builds without cgo.
type NativeOpener struct{}

// NewNativeOpener returns the opener used when HostConfig.Opener is nil.
func NewNativeOpener() *NativeOpener {
	return &NativeOpener{}
}

// Open loads the library at path with RTLD_NOW, so unresolved dependencies
// fail here rather than on the first request.
func (o *NativeOpener) Open(path string) (Library, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	handle, err := purego.Dlopen(abs, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, err
	}
	return &nativeLibrary{path: abs, handle: handle}, nil
}

type nativeLibrary struct {
	path   string
	handle uintptr
}

func (l *nativeLibrary) lookup(symbol string) (uintptr, error) {
	sym, err := purego.Dlsym(l.handle, symbol)
	if err != nil {
		return 0, err
	}
	if sym == 0 {
		return 0, fmt.Errorf("symbol %s resolved to null in %s", symbol, l.path)
	}
	return sym, nil
}

func (l *nativeLibrary) BindRoutes(symbol string) (RoutesFunc, error) {
	sym, err := l.lookup(symbol)
	if err != nil {
		return nil, err
	}
	var fn func() uintptr
	purego.RegisterFunc(&fn, sym)
	return fn, nil
}

func (l *nativeLibrary) BindFree(symbol string) (FreeFunc, error) {
	sym, err := l.lookup(symbol)
	if err != nil {
		return nil, err
	}
	var fn func(uintptr)
	purego.RegisterFunc(&fn, sym)
	return fn, nil
}

func (l *nativeLibrary) BindHandler(symbol string) (HandlerFunc, error) {
	sym, err := l.lookup(symbol)
	if err != nil {
		return nil, err
	}
	var fn func(*byte, *byte) uintptr
	purego.RegisterFunc(&fn, sym)
	return fn, nil
}
