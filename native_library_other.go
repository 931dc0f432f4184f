// native_library_other.go: library loading on platforms without dlopen support
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

//go:build !darwin && !freebsd && !linux

package nativeplugins

import "runtime"

// NativeOpener reports an error for every library on this platform.
type NativeOpener struct{}

// NewNativeOpener returns the opener used when HostConfig.Opener is nil.
func NewNativeOpener() *NativeOpener {
	return &NativeOpener{}
}

// Open always fails with an unsupported platform error.
func (o *NativeOpener) Open(path string) (Library, error) {
	return nil, NewUnsupportedPlatformError(runtime.GOOS)
}
