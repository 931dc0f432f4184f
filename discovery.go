// discovery.go: route discovery through a plugin's routes export
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// RouteDescriptor is one route advertised by a plugin.
type RouteDescriptor struct {
	Path     string       `json:"path"`
	Function string       `json:"function"`
	Method   string       `json:"method_router"`
	Kind     ResponseKind `json:"response_type"`
}

// routeWire is a route exactly as the plugin wrote it.
type routeWire struct {
	Path         string `json:"path"`
	Function     string `json:"function"`
	MethodRouter string `json:"method_router"`
	ResponseType string `json:"response_type"`
}

// routesEnvelope is the older {routes, message, status} route list.
type routesEnvelope struct {
	Routes  []routeWire `json:"routes"`
	Message string      `json:"message"`
	Status  *int        `json:"status"`
}

// ParseMethod maps a route method to its HTTP method. Only get and post are
// supported, in any case.
func ParseMethod(method string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "get":
		return http.MethodGet, true
	case "post":
		return http.MethodPost, true
	default:
		return "", false
	}
}

// DiscoverRoutes asks the library for its routes.
//
// The routes export is called under the library mutex; the returned buffer is
// copied and released before decoding. Both a bare JSON array of routes and
// the {routes, message, status} envelope are accepted; a non-zero status is a
// failure reported with the plugin's message.
func (l *LoadedLibrary) DiscoverRoutes() ([]RouteDescriptor, error) {
	data, ok, err := l.callRoutes()
	if !ok {
		return nil, NewNullRouteListError(l.Name)
	}
	if err != nil {
		return nil, NewMalformedRouteListError(l.Name, err)
	}

	if l.debug {
		l.logger.Debug("Routes JSON", "json", data)
	}

	wire, err := decodeRouteList(l.Name, []byte(data))
	if err != nil {
		return nil, err
	}

	routes := make([]RouteDescriptor, 0, len(wire))
	for _, w := range wire {
		route, err := validateRoute(l.Name, w)
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, nil
}

func (l *LoadedLibrary) callRoutes() (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return takeForeignString(l.routes(), l.free)
}

func decodeRouteList(name string, data []byte) ([]routeWire, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, NewMalformedRouteListError(name, fmt.Errorf("empty route list"))
	}

	switch trimmed[0] {
	case '[':
		var routes []routeWire
		if err := json.Unmarshal(trimmed, &routes); err != nil {
			return nil, NewMalformedRouteListError(name, err)
		}
		return routes, nil

	case '{':
		var env routesEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, NewMalformedRouteListError(name, err)
		}
		if env.Status == nil {
			return nil, NewMalformedRouteListError(name, fmt.Errorf("route envelope has no status"))
		}
		if *env.Status != 0 {
			return nil, NewRouteListStatusError(name, *env.Status, env.Message)
		}
		return env.Routes, nil

	default:
		return nil, NewMalformedRouteListError(name, fmt.Errorf("route list must be a JSON array or object"))
	}
}

func validateRoute(name string, w routeWire) (RouteDescriptor, error) {
	if strings.TrimSpace(w.Path) == "" {
		return RouteDescriptor{}, NewInvalidRouteError(name, w.Path, "empty path for function "+w.Function)
	}
	if strings.TrimSpace(w.Function) == "" {
		return RouteDescriptor{}, NewInvalidRouteError(name, w.Path, "empty function name")
	}

	method, ok := ParseMethod(w.MethodRouter)
	if !ok {
		return RouteDescriptor{}, NewUnsupportedMethodError(name, w.Path, w.MethodRouter)
	}
	kind, err := ParseResponseKind(w.ResponseType)
	if err != nil {
		return RouteDescriptor{}, NewUnsupportedResponseKindError(name, w.Path, w.ResponseType)
	}

	return RouteDescriptor{
		Path:     w.Path,
		Function: w.Function,
		Method:   method,
		Kind:     kind,
	}, nil
}
