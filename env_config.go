// env_config.go: environment variable expansion for manifest values
//
// Plugin paths in the manifest may reference the environment with ${VAR} or
// ${VAR:-default}, so the same manifest can be shipped to hosts that keep
// their plugin libraries in different directories.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// EnvConfigOptions configures environment variable expansion.
//
// Example usage:
//
//	options := EnvConfigOptions{
//	    Prefix:         "NATIVE_PLUGINS_",
//	    FailOnMissing:  true,
//	    ValidateValues: true,
//	}
type EnvConfigOptions struct {
	// Prefix tried before the bare variable name (e.g. "NATIVE_PLUGINS_")
	Prefix string `json:"prefix" yaml:"prefix"`

	// Whether an unresolved variable is an error
	FailOnMissing bool `json:"fail_on_missing" yaml:"fail_on_missing"`

	// Whether expanded values are checked for control characters and length
	ValidateValues bool `json:"validate_values" yaml:"validate_values"`

	// Fallback values for undefined variables
	Defaults map[string]string `json:"defaults,omitempty" yaml:"defaults,omitempty"`

	// Values that win over inline defaults but not over the environment
	Overrides map[string]string `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

// DefaultEnvConfigOptions returns the options used for manifest expansion.
func DefaultEnvConfigOptions() EnvConfigOptions {
	return EnvConfigOptions{
		Prefix:         "NATIVE_PLUGINS_",
		FailOnMissing:  false,
		ValidateValues: true,
		Defaults:       make(map[string]string),
		Overrides:      make(map[string]string),
	}
}

// placeholderPattern matches ${NAME} and ${NAME:-fallback}.
var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// maxExpandedValue bounds a single substituted value.
const maxExpandedValue = 4096

// ExpandEnvironmentVariables expands ${VAR} and ${VAR:-default} placeholders.
//
// Resolution order for each variable:
//  1. Environment variable with the configured prefix
//  2. Environment variable without prefix
//  3. Configured override
//  4. Inline default
//  5. Configured default
//  6. Empty string, or an error when FailOnMissing is set
//
// Example:
//
//	path, err := ExpandEnvironmentVariables("${PLUGIN_DIR:-./plugins}/libhello.so", options)
func ExpandEnvironmentVariables(input string, options EnvConfigOptions) (string, error) {
	matches := placeholderPattern.FindAllStringSubmatchIndex(input, -1)
	if len(matches) == 0 {
		return input, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(input[last:m[0]])
		last = m[1]

		name := input[m[2]:m[3]]
		fallback := ""
		if m[6] >= 0 {
			fallback = input[m[6]:m[7]]
		}

		value, err := resolvePlaceholder(name, fallback, options)
		if err != nil {
			return "", err
		}
		b.WriteString(value)
	}
	b.WriteString(input[last:])
	return b.String(), nil
}

func resolvePlaceholder(name, fallback string, options EnvConfigOptions) (string, error) {
	candidates := make([]func() (string, bool), 0, 5)
	if options.Prefix != "" {
		candidates = append(candidates, func() (string, bool) { return nonEmptyEnv(options.Prefix + name) })
	}
	candidates = append(candidates,
		func() (string, bool) { return nonEmptyEnv(name) },
		func() (string, bool) {
			v, ok := options.Overrides[name]
			return v, ok
		},
		func() (string, bool) { return fallback, fallback != "" },
		func() (string, bool) {
			v, ok := options.Defaults[name]
			return v, ok
		},
	)

	for _, candidate := range candidates {
		if value, ok := candidate(); ok {
			return checkExpandedValue(name, value, options)
		}
	}

	if options.FailOnMissing {
		return "", NewConfigValidationError(fmt.Sprintf("required environment variable not found: %s (also tried %s%s)", name, options.Prefix, name), nil)
	}
	return "", nil
}

func nonEmptyEnv(name string) (string, bool) {
	v := os.Getenv(name)
	return v, v != ""
}

// checkExpandedValue rejects values that cannot be part of a library path.
func checkExpandedValue(name, value string, options EnvConfigOptions) (string, error) {
	if !options.ValidateValues {
		return value, nil
	}
	if len(value) > maxExpandedValue {
		return "", NewConfigValidationError(fmt.Sprintf("value of %s too long: %d bytes (max %d)", name, len(value), maxExpandedValue), nil)
	}
	if i := strings.IndexFunc(value, func(r rune) bool { return r < 0x20 && r != '\t' }); i >= 0 {
		return "", NewConfigValidationError(fmt.Sprintf("value of %s contains a control character at offset %d", name, i), nil)
	}
	return value, nil
}
