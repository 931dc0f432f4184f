// route_binder.go: binding discovered routes to handler exports and the router
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
)

// BoundRoute is a route whose handler export has been resolved. It is
// immutable once BindRoutes returns it.
type BoundRoute struct {
	Plugin   string       `json:"plugin"`
	Path     string       `json:"path"`
	Method   string       `json:"method"`
	Kind     ResponseKind `json:"response_type"`
	Function string       `json:"function"`

	handler HandlerFunc
	free    FreeFunc
}

// NewBoundRoute assembles a route from already resolved functions.
func NewBoundRoute(plugin, path, method string, kind ResponseKind, function string, handler HandlerFunc, free FreeFunc) BoundRoute {
	return BoundRoute{
		Plugin:   plugin,
		Path:     path,
		Method:   method,
		Kind:     kind,
		Function: function,
		handler:  handler,
		free:     free,
	}
}

// BinderOptions controls BindRoutes.
type BinderOptions struct {
	// Serve each route under /<plugin>/
	NamePrefix bool

	// GET paths already served by the host; a plugin route on one of them
	// is a duplicate
	ReservedPaths []string

	Logger  Logger
	Metrics MetricsCollector
	Auditor *Auditor
}

// ComposeRoutePath returns the router path for a plugin route. With prefix
// the path is placed under "/<plugin>/"; without it the plugin path is used
// as is and must be absolute.
func ComposeRoutePath(plugin, path string, prefix bool) (string, error) {
	if prefix {
		return "/" + plugin + "/" + strings.TrimPrefix(path, "/"), nil
	}
	if !strings.HasPrefix(path, "/") {
		return "", NewInvalidRouteError(plugin, path, "path must start with '/' when routes are not prefixed")
	}
	return path, nil
}

// hostRouteOwner names the host as the owner of its reserved paths in
// duplicate route errors.
const hostRouteOwner = "host"

// BindRoutes discovers the routes of every library in reg and resolves their
// handler exports. Plugins and routes are processed in sorted order, so the
// result does not depend on map iteration.
//
// Two routes resolving to the same method and path are reported as an error
// rather than silently shadowing each other.
func BindRoutes(reg *LibraryRegistry, opts BinderOptions) ([]BoundRoute, error) {
	logger := NewLogger(opts.Logger)

	var bound []BoundRoute
	owners := make(map[string]string)
	for _, path := range opts.ReservedPaths {
		owners[http.MethodGet+" "+path] = hostRouteOwner
	}

	for _, name := range reg.Names() {
		lib, _ := reg.Get(name)

		routes, err := lib.DiscoverRoutes()
		if err != nil {
			return nil, err
		}
		sort.SliceStable(routes, func(i, j int) bool {
			if routes[i].Path != routes[j].Path {
				return routes[i].Path < routes[j].Path
			}
			return routes[i].Method < routes[j].Method
		})

		for _, route := range routes {
			path, err := ComposeRoutePath(name, route.Path, opts.NamePrefix)
			if err != nil {
				return nil, err
			}

			key := route.Method + " " + path
			if owner, exists := owners[key]; exists {
				return nil, NewDuplicateRouteError(route.Method, path, owner, name)
			}
			owners[key] = name

			handler, err := lib.BindHandler(route.Function)
			if err != nil {
				return nil, err
			}

			bound = append(bound, NewBoundRoute(name, path, route.Method, route.Kind, route.Function, handler, lib.Free()))
			logger.Debug("Route bound",
				"plugin", name,
				"method", route.Method,
				"path", path,
				"function", route.Function,
				"response_type", string(route.Kind))
		}

		if opts.Metrics != nil {
			opts.Metrics.SetGauge(MetricRoutesBound, map[string]string{"plugin": name}, float64(len(routes)))
		}
		opts.Auditor.Record(AuditRoutesBound, map[string]interface{}{
			"plugin": name,
			"routes": len(routes),
		})
	}

	return bound, nil
}

// Mount registers every route on r under its declared method only, so other
// methods on the same path answer 405 and unknown paths 404.
func Mount(r chi.Router, routes []BoundRoute, handlerFor func(BoundRoute) http.Handler) error {
	for _, route := range routes {
		if err := mountRoute(r, route, handlerFor(route)); err != nil {
			return err
		}
	}
	return nil
}

// mountRoute turns chi's panic on a malformed pattern into an error.
func mountRoute(r chi.Router, route BoundRoute, h http.Handler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = NewInvalidRouteError(route.Plugin, route.Path, fmt.Sprint(rec))
		}
	}()
	r.Method(route.Method, route.Path, h)
	return nil
}
