// plugin_registry.go: loaded plugin libraries keyed by name
//
// The registry is built once at startup from the enabled manifest entries.
// Each library is opened exactly once, its required exports are resolved, and
// it stays open for the lifetime of the process.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"sort"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// LoadedLibrary is an opened plugin library with its required exports bound.
type LoadedLibrary struct {
	Name       string
	Descriptor PluginDescriptor
	LoadedAt   time.Time

	// Whether the library file matched a sha256 pin
	Verified bool

	// mu serialises route discovery and symbol resolution on lib.
	mu     sync.Mutex
	lib    Library
	routes RoutesFunc
	free   FreeFunc

	logger Logger
	debug  bool
}

// Free returns the library's free export.
func (l *LoadedLibrary) Free() FreeFunc {
	return l.free
}

// BindHandler resolves a route handler export.
func (l *LoadedLibrary) BindHandler(function string) (HandlerFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fn, err := l.lib.BindHandler(function)
	if err != nil {
		return nil, NewMissingExportError(l.Name, function, err)
	}
	if fn == nil {
		return nil, NewMissingExportError(l.Name, function, nil)
	}
	return fn, nil
}

// RegistryOptions controls LoadLibraries.
type RegistryOptions struct {
	// Opener used for every library; nil means NewNativeOpener()
	Opener LibraryOpener

	// Log discovered routes at debug level
	Debug bool

	Logger  Logger
	Metrics MetricsCollector
	Auditor *Auditor
}

// LibraryRegistry holds every loaded library. It is read-only once built.
type LibraryRegistry struct {
	libraries map[string]*LoadedLibrary
	names     []string
}

// LoadLibraries opens each descriptor's library and binds the routes and free
// exports.
//
// Open, integrity and export failures are fatal. Libraries opened before the
// failure are not unloaded.
func LoadLibraries(descs []PluginDescriptor, opts RegistryOptions) (*LibraryRegistry, error) {
	logger := NewLogger(opts.Logger)
	opener := opts.Opener
	if opener == nil {
		opener = NewNativeOpener()
	}

	reg := &LibraryRegistry{libraries: make(map[string]*LoadedLibrary, len(descs))}

	for _, desc := range descs {
		if _, exists := reg.libraries[desc.Name]; exists {
			return nil, NewDuplicatePluginError(desc.Name)
		}

		loaded, err := loadLibrary(desc, opener, opts, logger)
		if err != nil {
			if opts.Metrics != nil {
				opts.Metrics.IncrementCounter(MetricPluginLoadErrors, map[string]string{
					"plugin":   desc.Name,
					"category": string(CategoryOf(err)),
				}, 1)
			}
			return nil, err
		}

		reg.libraries[desc.Name] = loaded
		reg.names = append(reg.names, desc.Name)

		logger.Info("Plugin loaded", "plugin", desc.Name, "version", desc.Version, "path", desc.Path)
		if opts.Metrics != nil {
			opts.Metrics.IncrementCounter(MetricPluginsLoaded, map[string]string{"plugin": desc.Name}, 1)
		}
		opts.Auditor.Record(AuditPluginLoaded, map[string]interface{}{
			"plugin":   desc.Name,
			"version":  desc.Version,
			"path":     desc.Path,
			"verified": loaded.Verified,
		})
	}

	sort.Strings(reg.names)
	if opts.Metrics != nil {
		opts.Metrics.SetGauge(MetricPluginsActive, nil, float64(len(reg.names)))
	}
	return reg, nil
}

func loadLibrary(desc PluginDescriptor, opener LibraryOpener, opts RegistryOptions, logger Logger) (*LoadedLibrary, error) {
	verified, err := VerifyIntegrity(desc)
	if err != nil {
		if HasCode(err, ErrCodeIntegrityMismatch) {
			opts.Auditor.Record(AuditIntegrityFailed, map[string]interface{}{
				"plugin": desc.Name,
				"path":   desc.Path,
			})
		}
		return nil, err
	}
	if verified {
		opts.Auditor.Record(AuditIntegrityVerified, map[string]interface{}{
			"plugin": desc.Name,
			"path":   desc.Path,
		})
	}

	lib, err := opener.Open(desc.Path)
	if err != nil {
		if HasCode(err, ErrCodeUnsupportedPlatform) {
			return nil, err
		}
		return nil, NewLibraryOpenError(desc.Name, desc.Path, err)
	}

	routes, err := lib.BindRoutes(RoutesSymbol)
	if err != nil || routes == nil {
		return nil, NewMissingExportError(desc.Name, RoutesSymbol, err)
	}
	free, err := lib.BindFree(FreeSymbol)
	if err != nil || free == nil {
		return nil, NewMissingExportError(desc.Name, FreeSymbol, err)
	}

	return &LoadedLibrary{
		Name:       desc.Name,
		Descriptor: desc,
		LoadedAt:   timecache.CachedTime(),
		Verified:   verified,
		lib:        lib,
		routes:     routes,
		free:       free,
		logger:     logger.With("plugin", desc.Name),
		debug:      opts.Debug,
	}, nil
}

// Get returns the library registered under name.
func (r *LibraryRegistry) Get(name string) (*LoadedLibrary, bool) {
	if r == nil {
		return nil, false
	}
	lib, ok := r.libraries[name]
	return lib, ok
}

// Names returns the loaded plugin names in sorted order.
func (r *LibraryRegistry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of loaded libraries.
func (r *LibraryRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}
