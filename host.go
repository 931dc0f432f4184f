// host.go: the native plugin host
//
// NewHost is the single initialisation step: it reads the manifest, opens the
// enabled libraries, discovers and binds their routes and builds the router.
// Nothing is loaded lazily, so every startup failure surfaces from NewHost
// before the application starts listening.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/semaphore"
)

// Host serves the routes of every loaded plugin.
//
// Example usage:
//
//	host, err := nativeplugins.NewHost(nativeplugins.HostConfig{
//	    ManifestPath: "Plugins.toml",
//	    NamePrefix:   true,
//	})
//	if err != nil {
//	    log.Fatalf("plugin host: %v", err)
//	}
//	defer host.Close()
//
//	r := chi.NewRouter()
//	r.Mount("/plugin", host.Router())
//	http.ListenAndServe(":8080", r)
type Host struct {
	config  HostConfig
	logger  Logger
	metrics MetricsCollector
	auditor *Auditor

	manifest *Manifest
	registry *LibraryRegistry
	routes   []BoundRoute

	pool    *CallPool
	tracker *RequestTracker
	health  *HealthChecker
	router  chi.Router

	closeOnce sync.Once
	closeErr  error
}

// NewHost loads every enabled plugin and binds its routes.
//
// Manifest, load and route errors are returned as is; no partially loaded
// host is ever returned.
func NewHost(config HostConfig) (*Host, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	h := &Host{
		config:  config,
		logger:  config.Logger,
		metrics: config.Metrics,
	}

	auditor, err := NewAuditor(config.AuditFile)
	if err != nil {
		return nil, err
	}
	h.auditor = auditor

	if err := h.load(); err != nil {
		_ = auditor.Close()
		return nil, err
	}

	h.tracker = NewRequestTracker(h.metrics)
	h.pool = NewCallPool(config.Workers, h.logger)
	h.health = NewHealthChecker(h.registry.Names())

	if err := h.buildRouter(); err != nil {
		h.pool.Close()
		h.health.Shutdown()
		_ = auditor.Close()
		return nil, err
	}

	h.logger.Info("Plugin host ready",
		"plugins", h.registry.Len(),
		"routes", len(h.routes),
		"skipped", len(h.manifest.Skipped),
		"workers", h.pool.Size())
	return h, nil
}

func (h *Host) load() error {
	manifest, err := LoadManifest(h.config.ManifestPath, ManifestOptions{
		Env:     DefaultEnvConfigOptions(),
		Logger:  h.logger,
		Metrics: h.metrics,
		Auditor: h.auditor,
	})
	if err != nil {
		return err
	}
	h.manifest = manifest

	registry, err := LoadLibraries(manifest.Enabled(), RegistryOptions{
		Opener:  h.config.Opener,
		Debug:   h.config.Debug,
		Logger:  h.logger,
		Metrics: h.metrics,
		Auditor: h.auditor,
	})
	if err != nil {
		return err
	}
	h.registry = registry

	routes, err := BindRoutes(registry, BinderOptions{
		NamePrefix:    h.config.NamePrefix,
		ReservedPaths: h.reservedPaths(),
		Logger:        h.logger,
		Metrics:       h.metrics,
		Auditor:       h.auditor,
	})
	if err != nil {
		return err
	}
	h.routes = routes
	return nil
}

// reservedPaths lists the GET paths served by the host itself.
func (h *Host) reservedPaths() []string {
	paths := []string{"/"}
	if h.config.MetricsPath != "" {
		paths = append(paths, h.config.MetricsPath)
	}
	return paths
}

func (h *Host) buildRouter() error {
	r := chi.NewRouter()

	loaded := fmt.Sprintf("Loaded plugins: %d", h.registry.Len())
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		Response{ContentType: ContentTypeText, Body: []byte(loaded)}.Write(w)
	})

	if h.config.MetricsPath != "" {
		r.Get(h.config.MetricsPath, h.serveMetrics)
	}

	gates := make(map[string]*semaphore.Weighted)
	if h.config.MaxConcurrentCalls > 0 {
		for _, name := range h.registry.Names() {
			gates[name] = semaphore.NewWeighted(int64(h.config.MaxConcurrentCalls))
		}
	}

	err := Mount(r, h.routes, func(route BoundRoute) http.Handler {
		return NewRequestBridge(route, BridgeOptions{
			Pool:         h.pool,
			Gate:         gates[route.Plugin],
			CallTimeout:  h.config.CallTimeout,
			MaxBodyBytes: h.config.MaxBodyBytes,
			Debug:        h.config.Debug,
			Tracker:      h.tracker,
			Metrics:      h.metrics,
			Logger:       h.logger,
		})
	})
	if err != nil {
		return err
	}

	h.router = r
	return nil
}

// Router returns the router serving "/" and every bound route.
func (h *Host) Router() chi.Router {
	return h.router
}

// Routes returns the bound routes in binding order.
func (h *Host) Routes() []BoundRoute {
	out := make([]BoundRoute, len(h.routes))
	copy(out, h.routes)
	return out
}

// Plugins returns the names of the loaded plugins.
func (h *Host) Plugins() []string {
	return h.registry.Names()
}

// Skipped returns the manifest entries that were not loaded.
func (h *Host) Skipped() []SkippedPlugin {
	out := make([]SkippedPlugin, len(h.manifest.Skipped))
	copy(out, h.manifest.Skipped)
	return out
}

// Registry returns the loaded libraries.
func (h *Host) Registry() *LibraryRegistry {
	return h.registry
}

// Health returns the gRPC health reporter.
func (h *Host) Health() *HealthChecker {
	return h.health
}

// Tracker returns the in-flight call tracker.
func (h *Host) Tracker() *RequestTracker {
	return h.tracker
}

// HostSnapshot is the document served on HostConfig.MetricsPath.
type HostSnapshot struct {
	Plugins     []string               `json:"plugins"`
	Skipped     []SkippedPlugin        `json:"skipped"`
	Routes      []BoundRoute           `json:"routes"`
	ActiveCalls map[string]int64       `json:"active_calls"`
	TotalCalls  int64                  `json:"total_calls"`
	BusyWorkers int64                  `json:"busy_workers"`
	Workers     int                    `json:"workers"`
	Metrics     map[string]interface{} `json:"metrics"`
}

// Snapshot returns the current host state.
func (h *Host) Snapshot() HostSnapshot {
	return HostSnapshot{
		Plugins:     h.Plugins(),
		Skipped:     h.Skipped(),
		Routes:      h.Routes(),
		ActiveCalls: h.tracker.AllActiveCalls(),
		TotalCalls:  h.tracker.TotalCalls(),
		BusyWorkers: h.pool.Busy(),
		Workers:     h.pool.Size(),
		Metrics:     h.metrics.GetMetrics(),
	}
}

func (h *Host) serveMetrics(w http.ResponseWriter, _ *http.Request) {
	body, err := json.Marshal(h.Snapshot())
	if err != nil {
		h.logger.Error("Failed to encode metrics snapshot", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	Response{ContentType: ContentTypeJSON, Body: body}.Write(w)
}

// Shutdown waits for in-flight calls until ctx is done, then closes the host.
func (h *Host) Shutdown(ctx context.Context) error {
	h.health.Shutdown()
	drainErr := h.tracker.WaitForDrain(ctx)
	if drainErr != nil {
		h.logger.Warn("Plugin calls still running at shutdown", "error", drainErr)
	}
	if err := h.Close(); err != nil {
		return err
	}
	return drainErr
}

// Close reports NOT_SERVING, waits for running calls and stops the call
// pool. Libraries stay loaded until the process exits.
func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		h.health.Shutdown()
		h.pool.Close()
		h.auditor.Record(AuditHostClosed, map[string]interface{}{
			"plugins":     h.registry.Len(),
			"total_calls": h.tracker.TotalCalls(),
		})
		h.closeErr = h.auditor.Close()
		h.logger.Info("Plugin host closed")
	})
	return h.closeErr
}
