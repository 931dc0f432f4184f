// foreign_buffer.go: ownership of text buffers returned by plugin libraries
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"strings"
	"sync/atomic"
	"unsafe"
)

// maxForeignStringLen bounds the scan for the terminating NUL. A buffer
// without a NUL inside the bound is rejected rather than truncated.
var maxForeignStringLen = 64 << 20

// ForeignBuffer is a NUL-terminated string allocated by a plugin library.
//
// The host may copy it out and must release it exactly once through the free
// export of the library that produced it. It is never freed by Go and must not
// outlive the call that obtained it.
type ForeignBuffer struct {
	ptr      uintptr
	free     FreeFunc
	released atomic.Bool
}

// NewForeignBuffer wraps ptr. A null ptr has nothing to release and is
// reported as nil.
func NewForeignBuffer(ptr uintptr, free FreeFunc) *ForeignBuffer {
	if ptr == 0 {
		return nil
	}
	return &ForeignBuffer{ptr: ptr, free: free}
}

// String copies the buffer into Go memory. Invalid UTF-8 sequences are
// replaced with U+FFFD.
func (b *ForeignBuffer) String() (string, error) {
	if b.released.Load() {
		return "", NewBufferReleasedError()
	}
	s, complete := copyCString(b.ptr)
	if !complete {
		return "", NewForeignStringTooLongError(maxForeignStringLen)
	}
	return s, nil
}

// Release hands the buffer back to its library. Only the first call frees;
// it reports whether this call was the one that did.
func (b *ForeignBuffer) Release() bool {
	if !b.released.CompareAndSwap(false, true) {
		return false
	}
	if b.free != nil {
		b.free(b.ptr)
	}
	return true
}

// Released reports whether Release has been called.
func (b *ForeignBuffer) Released() bool {
	return b.released.Load()
}

// takeForeignString copies the text at ptr and releases it, on every path.
// ok is false for a null ptr.
func takeForeignString(ptr uintptr, free FreeFunc) (s string, ok bool, err error) {
	buf := NewForeignBuffer(ptr, free)
	if buf == nil {
		return "", false, nil
	}
	defer buf.Release()

	s, err = buf.String()
	return s, true, err
}

// copyCString copies the NUL-terminated text at ptr. complete is false when
// no NUL was found within maxForeignStringLen bytes.
func copyCString(ptr uintptr) (s string, complete bool) {
	if ptr == 0 {
		return "", true
	}
	// #nosec G103 - ptr comes from a plugin export and is NUL-terminated by contract
	start := unsafe.Pointer(ptr) //nolint:govet
	n := 0
	for n < maxForeignStringLen && *(*byte)(unsafe.Add(start, n)) != 0 {
		n++
	}
	if n == maxForeignStringLen {
		return "", false
	}
	s = string(unsafe.Slice((*byte)(start), n))
	return strings.ToValidUTF8(s, "\uFFFD"), true
}
