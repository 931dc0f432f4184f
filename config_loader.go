// config_loader.go: plugin manifest loading with multi-format support
//
// The manifest names every plugin the host may load:
//
//	[plugins.hello]
//	version = "0.1.0"
//	path = "./plugins/libhello.so"
//	enabled = true
//
// TOML is the default format. JSON and YAML manifests are selected by file
// extension and carry the same "plugins" table.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/agilira/argus"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

const maxManifestSize = 10 * 1024 * 1024

// Reasons recorded for skipped plugins.
const (
	SkipReasonDisabled   = "disabled"
	SkipReasonNotFound   = "plugin file not found"
	SkipReasonNotRegular = "plugin path is not a regular file"
)

// PluginDescriptor is one manifest entry.
type PluginDescriptor struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
	Path    string `json:"path" yaml:"path"`
	Enabled bool   `json:"enabled" yaml:"enabled"`

	// Optional hex sha256 of the library file
	SHA256 string `json:"sha256,omitempty" yaml:"sha256,omitempty"`
}

// SkippedPlugin records a manifest entry that will not be loaded.
type SkippedPlugin struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Manifest is a parsed plugin manifest.
type Manifest struct {
	// File the manifest was read from
	Path string

	// Every entry, sorted by name
	Plugins []PluginDescriptor

	// Entries excluded from loading, sorted by name
	Skipped []SkippedPlugin

	enabled []PluginDescriptor
}

// Enabled returns the entries that are enabled and whose library file exists,
// sorted by name.
func (m *Manifest) Enabled() []PluginDescriptor {
	out := make([]PluginDescriptor, len(m.enabled))
	copy(out, m.enabled)
	return out
}

// ManifestOptions controls LoadManifest.
type ManifestOptions struct {
	// Expansion applied to ${VAR} placeholders in plugin paths
	Env EnvConfigOptions

	Logger  Logger
	Metrics MetricsCollector
	Auditor *Auditor
}

// DefaultManifestOptions returns options with default environment expansion
// and no logging.
func DefaultManifestOptions() ManifestOptions {
	return ManifestOptions{Env: DefaultEnvConfigOptions()}
}

// ResolveManifestPath returns path, or PLUGINS_MANIFEST, or Plugins.toml.
func ResolveManifestPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv(EnvManifestPath); env != "" {
		return env
	}
	return DefaultManifestPath
}

// LoadManifest reads and validates the manifest at path (see ResolveManifestPath).
//
// Any read, parse or schema failure is returned as a configuration error and
// no partial manifest is produced. Disabled entries and entries whose library
// file is missing are not errors: they are logged, audited and listed in
// Manifest.Skipped.
//
// Example usage:
//
//	manifest, err := LoadManifest("", DefaultManifestOptions())
//	if err != nil {
//	    log.Fatalf("Failed to load manifest: %v", err)
//	}
//	for _, desc := range manifest.Enabled() {
//	    fmt.Println(desc.Name, desc.Path)
//	}
func LoadManifest(path string, opts ManifestOptions) (*Manifest, error) {
	path = ResolveManifestPath(path)
	logger := NewLogger(opts.Logger)

	content, err := readManifestFile(path)
	if err != nil {
		return nil, err
	}

	raw, err := parseManifestDocument(path, content)
	if err != nil {
		return nil, err
	}

	descs, err := bindManifest(path, raw, opts.Env)
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{Path: path, Plugins: descs}
	manifest.filter(logger, opts.Metrics, opts.Auditor)

	logger.Debug("Plugin manifest loaded",
		"path", path,
		"plugins", len(descs),
		"enabled", len(manifest.enabled),
		"skipped", len(manifest.Skipped))

	return manifest, nil
}

func readManifestFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewConfigNotFoundError(path)
		}
		return nil, NewConfigFileError(path, "cannot stat manifest", err)
	}
	if !info.Mode().IsRegular() {
		return nil, NewConfigValidationError("manifest is not a regular file: "+path, nil)
	}
	if info.Size() > maxManifestSize {
		return nil, NewConfigValidationError(fmt.Sprintf("manifest size exceeds limit: %d > %d", info.Size(), maxManifestSize), nil)
	}

	content, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - operator supplied manifest
	if err != nil {
		return nil, NewConfigFileError(path, "cannot read manifest", err)
	}
	return content, nil
}

// parseManifestDocument decodes content into a generic map. YAML goes through
// yaml.v3, JSON through argus, and TOML (the default for any other extension)
// through a TOML decoder that keeps [plugins.<name>] sections nested.
func parseManifestDocument(path string, content []byte) (map[string]interface{}, error) {
	format := argus.DetectFormat(path)

	switch format {
	case argus.FormatYAML:
		var doc map[string]interface{}
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return nil, NewConfigParseError(path, err)
		}
		if doc == nil {
			doc = map[string]interface{}{}
		}
		return doc, nil

	case argus.FormatJSON:
		doc, err := argus.ParseConfig(content, format)
		if err != nil {
			return nil, NewConfigParseError(path, err)
		}
		return doc, nil

	default:
		doc := map[string]interface{}{}
		if _, err := toml.Decode(string(content), &doc); err != nil {
			return nil, NewConfigParseError(path, err)
		}
		return doc, nil
	}
}

// bindManifest turns the generic document into sorted descriptors.
func bindManifest(path string, doc map[string]interface{}, envOpts EnvConfigOptions) ([]PluginDescriptor, error) {
	rawPlugins, ok := doc["plugins"]
	if !ok {
		return nil, NewManifestSchemaError(path, "missing 'plugins' table")
	}

	table, err := cast.ToStringMapE(rawPlugins)
	if err != nil {
		return nil, NewManifestSchemaError(path, "'plugins' must be a table of plugin entries")
	}

	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	descs := make([]PluginDescriptor, 0, len(names))
	for _, name := range names {
		desc, err := bindPluginEntry(path, name, table[name], envOpts)
		if err != nil {
			return nil, err
		}
		descs = append(descs, desc)
	}
	return descs, nil
}

func bindPluginEntry(path, name string, raw interface{}, envOpts EnvConfigOptions) (PluginDescriptor, error) {
	desc := PluginDescriptor{Name: name}

	if strings.TrimSpace(name) == "" {
		return desc, NewManifestSchemaError(path, "plugin name cannot be empty")
	}
	if strings.Contains(name, "/") {
		return desc, NewManifestSchemaError(path, fmt.Sprintf("plugin %q: name cannot contain '/'", name))
	}

	entry, err := cast.ToStringMapE(raw)
	if err != nil {
		return desc, NewManifestSchemaError(path, fmt.Sprintf("plugin %q: entry must be a table", name))
	}

	rawEnabled, ok := entry["enabled"]
	if !ok {
		return desc, NewManifestSchemaError(path, fmt.Sprintf("plugin %q: missing 'enabled'", name))
	}
	if desc.Enabled, err = cast.ToBoolE(rawEnabled); err != nil {
		return desc, NewManifestSchemaError(path, fmt.Sprintf("plugin %q: 'enabled' must be a boolean", name))
	}

	if desc.Version, err = optionalString(entry, "version"); err != nil {
		return desc, NewManifestSchemaError(path, fmt.Sprintf("plugin %q: 'version' must be a string", name))
	}
	if desc.SHA256, err = optionalString(entry, "sha256"); err != nil {
		return desc, NewManifestSchemaError(path, fmt.Sprintf("plugin %q: 'sha256' must be a string", name))
	}

	libPath, err := optionalString(entry, "path")
	if err != nil {
		return desc, NewManifestSchemaError(path, fmt.Sprintf("plugin %q: 'path' must be a string", name))
	}
	if libPath, err = ExpandEnvironmentVariables(libPath, envOpts); err != nil {
		return desc, err
	}
	if desc.Enabled && strings.TrimSpace(libPath) == "" {
		return desc, NewManifestSchemaError(path, fmt.Sprintf("plugin %q: 'path' cannot be empty", name))
	}
	desc.Path = libPath

	return desc, nil
}

func optionalString(entry map[string]interface{}, key string) (string, error) {
	v, ok := entry[key]
	if !ok || v == nil {
		return "", nil
	}
	switch v.(type) {
	case map[string]interface{}, map[interface{}]interface{}, []interface{}:
		return "", fmt.Errorf("%s is not a scalar", key)
	}
	return cast.ToStringE(v)
}

// filter splits the descriptors into enabled and skipped entries.
func (m *Manifest) filter(logger Logger, metrics MetricsCollector, auditor *Auditor) {
	for _, desc := range m.Plugins {
		reason := skipReason(desc)
		if reason == "" {
			m.enabled = append(m.enabled, desc)
			continue
		}

		m.Skipped = append(m.Skipped, SkippedPlugin{Name: desc.Name, Path: desc.Path, Reason: reason})
		logger.Warn("Skipping plugin", "plugin", desc.Name, "path", desc.Path, "reason", reason)
		if metrics != nil {
			metrics.IncrementCounter(MetricPluginsSkipped, map[string]string{"plugin": desc.Name, "reason": reason}, 1)
		}
		auditor.Record(AuditPluginSkipped, map[string]interface{}{
			"plugin": desc.Name,
			"path":   desc.Path,
			"reason": reason,
		})
	}
}

func skipReason(desc PluginDescriptor) string {
	if !desc.Enabled {
		return SkipReasonDisabled
	}
	info, err := os.Stat(desc.Path)
	if err != nil {
		return SkipReasonNotFound
	}
	if !info.Mode().IsRegular() {
		return SkipReasonNotRegular
	}
	return ""
}
