// config.go: host configuration structures and defaults
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Environment variables read by HostConfigFromEnv.
const (
	EnvManifestPath       = "PLUGINS_MANIFEST"
	EnvDebug              = "DEBUG"
	EnvNamePrefix         = "NATIVE_PLUGINS_NAME_PREFIX"
	EnvWorkers            = "NATIVE_PLUGINS_WORKERS"
	EnvMaxConcurrentCalls = "NATIVE_PLUGINS_MAX_CONCURRENT_CALLS"
	EnvCallTimeout        = "NATIVE_PLUGINS_CALL_TIMEOUT"

	// DefaultManifestPath is used when neither an argument nor PLUGINS_MANIFEST is given.
	DefaultManifestPath = "Plugins.toml"
)

// HostConfig configures a Host.
//
// The zero value is usable after ApplyDefaults: the manifest is resolved from
// the environment, calls run on a pool sized to GOMAXPROCS, and there is no
// per-plugin concurrency limit or call timeout.
//
// Example configuration:
//
//	config := HostConfig{
//	    ManifestPath:       "/etc/myapp/Plugins.toml",
//	    NamePrefix:         true,             // serve /hello of plugin "A" at /A/hello
//	    Workers:            8,                // foreign calls run on 8 locked OS threads
//	    MaxConcurrentCalls: 4,                // at most 4 in-flight calls per plugin
//	    CallTimeout:        10 * time.Second, // stop waiting after 10s (504)
//	}
type HostConfig struct {
	// Manifest location; empty means PLUGINS_MANIFEST or Plugins.toml
	ManifestPath string `json:"manifest_path,omitempty" yaml:"manifest_path,omitempty"`

	// Whether route paths are prefixed with the plugin name
	NamePrefix bool `json:"name_prefix" yaml:"name_prefix"`

	// Dump discovered routes and request headers at debug level
	Debug bool `json:"debug" yaml:"debug"`

	// Size of the call pool
	Workers int `json:"workers" yaml:"workers"`

	// Per-plugin in-flight call limit, 0 for unbounded
	MaxConcurrentCalls int `json:"max_concurrent_calls" yaml:"max_concurrent_calls"`

	// How long a request waits for a foreign call, 0 for no limit
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout"`

	// Maximum accepted request body, 0 for no limit
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes"`

	// Address of the gRPC health server, empty disables it
	HealthAddr string `json:"health_addr,omitempty" yaml:"health_addr,omitempty"`

	// Audit trail output file, empty disables auditing
	AuditFile string `json:"audit_file,omitempty" yaml:"audit_file,omitempty"`

	// Path that serves a JSON metrics snapshot on the host router, empty disables it
	MetricsPath string `json:"metrics_path,omitempty" yaml:"metrics_path,omitempty"`

	Logger  Logger           `json:"-" yaml:"-"`
	Opener  LibraryOpener    `json:"-" yaml:"-"`
	Metrics MetricsCollector `json:"-" yaml:"-"`
}

// DefaultHostConfig returns the configuration used by the plughost command.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		NamePrefix:   true,
		Workers:      runtime.GOMAXPROCS(0),
		MaxBodyBytes: 10 << 20,
	}
}

// ApplyDefaults fills unset fields.
func (hc *HostConfig) ApplyDefaults() {
	if hc.ManifestPath == "" {
		hc.ManifestPath = ResolveManifestPath("")
	}
	if hc.Workers <= 0 {
		hc.Workers = runtime.GOMAXPROCS(0)
	}
	if hc.Logger == nil {
		hc.Logger = DefaultLogger()
	}
	if hc.Opener == nil {
		hc.Opener = NewNativeOpener()
	}
	if hc.Metrics == nil {
		hc.Metrics = NewDefaultMetricsCollector()
	}
}

// Validate checks the configuration for values the host cannot run with.
func (hc *HostConfig) Validate() error {
	if strings.TrimSpace(hc.ManifestPath) == "" {
		return NewConfigValidationError("manifest path cannot be empty", nil)
	}
	if hc.Workers < 0 {
		return NewConfigValidationError(fmt.Sprintf("workers cannot be negative: %d", hc.Workers), nil)
	}
	if hc.MaxConcurrentCalls < 0 {
		return NewConfigValidationError(fmt.Sprintf("max concurrent calls cannot be negative: %d", hc.MaxConcurrentCalls), nil)
	}
	if hc.CallTimeout < 0 {
		return NewConfigValidationError("call timeout cannot be negative", nil)
	}
	if hc.MaxBodyBytes < 0 {
		return NewConfigValidationError("max body bytes cannot be negative", nil)
	}
	if hc.MetricsPath != "" && !strings.HasPrefix(hc.MetricsPath, "/") {
		return NewConfigValidationError("metrics path must start with '/': "+hc.MetricsPath, nil)
	}
	return nil
}

// HostConfigFromEnv returns DefaultHostConfig overridden by the environment.
// Malformed values are configuration errors rather than silently ignored.
func HostConfigFromEnv() (HostConfig, error) {
	hc := DefaultHostConfig()

	if v := os.Getenv(EnvManifestPath); v != "" {
		hc.ManifestPath = v
	}

	boolVars := []struct {
		name   string
		target *bool
	}{
		{EnvDebug, &hc.Debug},
		{EnvNamePrefix, &hc.NamePrefix},
	}
	for _, bv := range boolVars {
		v := os.Getenv(bv.name)
		if v == "" {
			continue
		}
		b, err := cast.ToBoolE(v)
		if err != nil {
			return hc, NewConfigValidationError("invalid boolean in "+bv.name, err)
		}
		*bv.target = b
	}

	intVars := []struct {
		name   string
		target *int
	}{
		{EnvWorkers, &hc.Workers},
		{EnvMaxConcurrentCalls, &hc.MaxConcurrentCalls},
	}
	for _, iv := range intVars {
		v := os.Getenv(iv.name)
		if v == "" {
			continue
		}
		n, err := cast.ToIntE(v)
		if err != nil {
			return hc, NewConfigValidationError("invalid integer in "+iv.name, err)
		}
		*iv.target = n
	}

	if v := os.Getenv(EnvCallTimeout); v != "" {
		d, err := cast.ToDurationE(v)
		if err != nil {
			return hc, NewConfigValidationError("invalid duration in "+EnvCallTimeout, err)
		}
		hc.CallTimeout = d
	}

	return hc, nil
}
