// plugin_integrity.go: sha256 pinning of plugin libraries
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileSHA256 returns the lower-case hex sha256 digest of the file at path.
func FileSHA256(path string) (string, error) {
	file, err := os.Open(filepath.Clean(path)) // #nosec G304 - path comes from the operator's manifest
	if err != nil {
		return "", err
	}
	defer func() {
		_ = file.Close()
	}()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// VerifyIntegrity checks desc against its pinned digest. Descriptors without
// a pin always pass and report verified=false.
func VerifyIntegrity(desc PluginDescriptor) (verified bool, err error) {
	expected := normalizeDigest(desc.SHA256)
	if expected == "" {
		return false, nil
	}

	actual, err := FileSHA256(desc.Path)
	if err != nil {
		return false, NewLibraryOpenError(desc.Name, desc.Path, err)
	}
	if actual != expected {
		return false, NewIntegrityMismatchError(desc.Name, desc.Path, expected, actual)
	}
	return true, nil
}

// normalizeDigest accepts "sha256:<hex>" as well as bare hex, in any case.
func normalizeDigest(digest string) string {
	digest = strings.TrimSpace(strings.ToLower(digest))
	return strings.TrimPrefix(digest, "sha256:")
}
