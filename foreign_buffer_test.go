// foreign_buffer_test.go: copy-out and release-once tests for plugin buffers
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForeignBuffer_CopyAndRelease(t *testing.T) {
	alloc := newFakeAllocator()
	buf := NewForeignBuffer(alloc.alloc("hello plugin"), alloc.free)
	require.NotNil(t, buf)

	s, err := buf.String()
	require.NoError(t, err)
	assert.Equal(t, "hello plugin", s)

	assert.True(t, buf.Release(), "first release frees")
	assert.False(t, buf.Release(), "second release is a no-op")
	assert.True(t, buf.Released())

	_, err = buf.String()
	assert.True(t, HasCode(err, ErrCodeBufferReleased), "copy after release must fail, got %v", err)

	alloc.assertBalanced(t)
}

func TestForeignBuffer_NullPointer(t *testing.T) {
	alloc := newFakeAllocator()
	assert.Nil(t, NewForeignBuffer(0, alloc.free))

	s, ok, err := takeForeignString(0, alloc.free)
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.Empty(t, s)

	allocs, frees, _, _ := alloc.stats()
	assert.Zero(t, allocs)
	assert.Zero(t, frees, "a null pointer is never handed to free")
}

func TestForeignBuffer_ConcurrentReleaseFreesOnce(t *testing.T) {
	alloc := newFakeAllocator()
	buf := NewForeignBuffer(alloc.alloc("x"), alloc.free)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if buf.Release() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	alloc.assertBalanced(t)
}

func TestCopyCString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"ascii", "Hello, World!", "Hello, World!"},
		{"utf8", "ciao è già", "ciao è già"},
		{"invalid utf8 is replaced", "ok\xffok", "ok\uFFFDok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alloc := newFakeAllocator()
			got, ok, err := takeForeignString(alloc.alloc(tt.input), alloc.free)
			if !ok || err != nil {
				t.Fatalf("Expected a copied string, got ok=%v err=%v", ok, err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
			alloc.assertBalanced(t)
		})
	}
}

func TestCopyCString_StopsAtFirstNUL(t *testing.T) {
	alloc := newFakeAllocator()
	got, ok, err := takeForeignString(alloc.alloc("before\x00after"), alloc.free)
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, "before", got)
	alloc.assertBalanced(t)
}

func TestForeignBuffer_RejectsUnterminatedText(t *testing.T) {
	saved := maxForeignStringLen
	maxForeignStringLen = 8
	defer func() { maxForeignStringLen = saved }()

	alloc := newFakeAllocator()
	got, ok, err := takeForeignString(alloc.alloc("0123456789"), alloc.free)
	assert.True(t, ok)
	assert.Empty(t, got)
	assert.True(t, HasCode(err, ErrCodeForeignTooLong), "got %v", err)
	alloc.assertBalanced(t)

	// Exactly one byte short of the bound still fits.
	got, _, err = takeForeignString(alloc.alloc("0123456"), alloc.free)
	require.NoError(t, err)
	assert.Equal(t, "0123456", got)
	alloc.assertBalanced(t)
}
