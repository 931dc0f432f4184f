// route_binder_test.go: path composition, binding and mounting tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"
)

func TestComposeRoutePath(t *testing.T) {
	tests := []struct {
		plugin  string
		path    string
		prefix  bool
		want    string
		wantErr bool
	}{
		{"A", "/hello", true, "/A/hello", false},
		{"A", "hello", true, "/A/hello", false},
		{"A", "/", true, "/A/", false},
		{"A", "/nested/page", true, "/A/nested/page", false},
		{"A", "/hello", false, "/hello", false},
		{"A", "hello", false, "", true},
	}

	for _, tt := range tests {
		got, err := ComposeRoutePath(tt.plugin, tt.path, tt.prefix)
		if tt.wantErr {
			if !HasCode(err, ErrCodeInvalidRoute) {
				t.Errorf("ComposeRoutePath(%q, %q, %v): expected invalid route error, got %v", tt.plugin, tt.path, tt.prefix, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ComposeRoutePath(%q, %q, %v): unexpected error %v", tt.plugin, tt.path, tt.prefix, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ComposeRoutePath(%q, %q, %v) = %q, want %q", tt.plugin, tt.path, tt.prefix, got, tt.want)
		}
	}
}

func TestComposeRoutePath_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		plugin := rapid.StringMatching(`[A-Za-z][A-Za-z0-9_-]{0,12}`).Draw(t, "plugin")
		rel := rapid.StringMatching(`([a-z0-9][a-z0-9/]{0,19})?`).Draw(t, "rel")
		leading := rapid.Bool().Draw(t, "leading")
		path := rel
		if leading {
			path = "/" + rel
		}

		got, err := ComposeRoutePath(plugin, path, true)
		if err != nil {
			t.Fatalf("prefixed composition never fails: %v", err)
		}
		if !strings.HasPrefix(got, "/"+plugin+"/") {
			t.Fatalf("%q does not start with the plugin prefix", got)
		}
		// A leading slash on the plugin path does not change the result.
		other, _ := ComposeRoutePath(plugin, strings.TrimPrefix(path, "/"), true)
		if other != got {
			t.Fatalf("%q != %q", other, got)
		}

		unprefixed, err := ComposeRoutePath(plugin, path, false)
		if strings.HasPrefix(path, "/") {
			if err != nil || unprefixed != path {
				t.Fatalf("absolute path %q must be kept, got %q, %v", path, unprefixed, err)
			}
		} else if err == nil {
			t.Fatalf("relative path %q must be rejected without prefixing", path)
		}
	})
}

func newBinderFixture(t *testing.T) (*LibraryRegistry, *fakeAllocator) {
	t.Helper()
	alloc := newFakeAllocator()
	ok := func(headers, body string) (string, bool) { return "ok", true }

	libA := newFakeLibrary(alloc, routesJSON(
		getRoute("/hello", "hello", "text"),
		postRoute("/echo", "echo", "json"),
	)).handle("hello", ok).handle("echo", ok)
	libB := newFakeLibrary(alloc, routesJSON(
		getRoute("hello", "hello_b", "html"),
	)).handle("hello_b", ok)

	opener := newFakeOpener()
	opener.add("libA.so", libA)
	opener.add("libB.so", libB)
	reg := loadTestRegistry(t, opener,
		PluginDescriptor{Name: "A", Path: "libA.so", Enabled: true},
		PluginDescriptor{Name: "B", Path: "libB.so", Enabled: true},
	)
	return reg, alloc
}

func TestBindRoutes_WithPrefix(t *testing.T) {
	reg, alloc := newBinderFixture(t)

	routes, err := BindRoutes(reg, BinderOptions{NamePrefix: true})
	if err != nil {
		t.Fatalf("BindRoutes failed: %v", err)
	}

	want := []string{"GET /A/hello", "GET /B/hello", "POST /A/echo"}
	if diff := cmp.Diff(want, routePaths(routes)); diff != "" {
		t.Errorf("Bound routes mismatch (-want +got):\n%s", diff)
	}
	for _, r := range routes {
		if r.handler == nil || r.free == nil {
			t.Errorf("Route %s %s has unresolved functions", r.Method, r.Path)
		}
	}
	alloc.assertBalanced(t)
}

func TestBindRoutes_WithoutPrefixRejectsRelativePath(t *testing.T) {
	reg, _ := newBinderFixture(t)

	_, err := BindRoutes(reg, BinderOptions{NamePrefix: false})
	if !HasCode(err, ErrCodeInvalidRoute) {
		t.Fatalf("Expected invalid route error for plugin B's relative path, got %v", err)
	}
}

func TestBindRoutes_DuplicateRoute(t *testing.T) {
	alloc := newFakeAllocator()
	ok := func(headers, body string) (string, bool) { return "ok", true }
	opener := newFakeOpener()
	opener.add("libA.so", newFakeLibrary(alloc, routesJSON(getRoute("/hello", "hello", "text"))).handle("hello", ok))
	opener.add("libB.so", newFakeLibrary(alloc, routesJSON(getRoute("/hello", "hello", "text"))).handle("hello", ok))
	reg := loadTestRegistry(t, opener,
		PluginDescriptor{Name: "A", Path: "libA.so", Enabled: true},
		PluginDescriptor{Name: "B", Path: "libB.so", Enabled: true},
	)

	_, err := BindRoutes(reg, BinderOptions{NamePrefix: false})
	if !HasCode(err, ErrCodeDuplicateRoute) {
		t.Fatalf("Expected duplicate route error, got %v", err)
	}

	// The same paths do not collide once prefixed.
	routes, err := BindRoutes(reg, BinderOptions{NamePrefix: true})
	if err != nil {
		t.Fatalf("BindRoutes with prefix failed: %v", err)
	}
	if len(routes) != 2 {
		t.Errorf("Expected 2 routes, got %d", len(routes))
	}
}

func TestBindRoutes_ReservedPaths(t *testing.T) {
	alloc := newFakeAllocator()
	ok := func(headers, body string) (string, bool) { return "ok", true }
	opener := newFakeOpener()
	opener.add("libA.so", newFakeLibrary(alloc, routesJSON(
		getRoute("/", "index", "text"),
		postRoute("/", "submit", "json"),
	)).handle("index", ok).handle("submit", ok))
	reg := loadTestRegistry(t, opener, PluginDescriptor{Name: "A", Path: "libA.so", Enabled: true})

	_, err := BindRoutes(reg, BinderOptions{NamePrefix: false, ReservedPaths: []string{"/"}})
	if !HasCode(err, ErrCodeDuplicateRoute) {
		t.Fatalf("Expected a GET / route to collide with the host, got %v", err)
	}

	// Only GET is reserved, and prefixed routes never land on "/".
	routes, err := BindRoutes(reg, BinderOptions{NamePrefix: true, ReservedPaths: []string{"/"}})
	if err != nil {
		t.Fatalf("BindRoutes with prefix failed: %v", err)
	}
	if len(routes) != 2 {
		t.Errorf("Expected 2 routes, got %d", len(routes))
	}
}

func TestBindRoutes_SamePathDifferentMethods(t *testing.T) {
	alloc := newFakeAllocator()
	ok := func(headers, body string) (string, bool) { return "ok", true }
	opener := newFakeOpener()
	opener.add("libA.so", newFakeLibrary(alloc, routesJSON(
		getRoute("/item", "get_item", "json"),
		postRoute("/item", "save_item", "json"),
	)).handle("get_item", ok).handle("save_item", ok))
	reg := loadTestRegistry(t, opener, PluginDescriptor{Name: "A", Path: "libA.so", Enabled: true})

	routes, err := BindRoutes(reg, BinderOptions{})
	if err != nil {
		t.Fatalf("BindRoutes failed: %v", err)
	}
	if diff := cmp.Diff([]string{"GET /item", "POST /item"}, routePaths(routes)); diff != "" {
		t.Errorf("Bound routes mismatch (-want +got):\n%s", diff)
	}
}

func TestBindRoutes_MissingHandlerExport(t *testing.T) {
	alloc := newFakeAllocator()
	opener := newFakeOpener()
	opener.add("libA.so", newFakeLibrary(alloc, routesJSON(getRoute("/hello", "hello", "text"))))
	reg := loadTestRegistry(t, opener, PluginDescriptor{Name: "A", Path: "libA.so", Enabled: true})

	_, err := BindRoutes(reg, BinderOptions{NamePrefix: true})
	if !HasCode(err, ErrCodeMissingExport) {
		t.Fatalf("Expected missing export error, got %v", err)
	}
	if CategoryOf(err) != CategoryLoad {
		t.Errorf("Expected load category, got %s", CategoryOf(err))
	}
}

func TestBindRoutes_RecordsMetrics(t *testing.T) {
	reg, _ := newBinderFixture(t)
	metrics := NewDefaultMetricsCollector()

	if _, err := BindRoutes(reg, BinderOptions{NamePrefix: true, Metrics: metrics}); err != nil {
		t.Fatalf("BindRoutes failed: %v", err)
	}
	if got := metrics.Gauge(MetricRoutesBound, map[string]string{"plugin": "A"}); got != 2 {
		t.Errorf("Expected 2 routes bound for A, got %v", got)
	}
}

func TestMount_MethodsAndNotFound(t *testing.T) {
	routes := []BoundRoute{
		NewBoundRoute("A", "/A/hello", http.MethodGet, KindText, "hello", nil, nil),
		NewBoundRoute("A", "/A/echo", http.MethodPost, KindJSON, "echo", nil, nil),
	}

	r := chi.NewRouter()
	err := Mount(r, routes, func(route BoundRoute) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(route.Function))
		})
	})
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	tests := []struct {
		method string
		path   string
		status int
		body   string
	}{
		{http.MethodGet, "/A/hello", http.StatusOK, "hello"},
		{http.MethodPost, "/A/echo", http.StatusOK, "echo"},
		{http.MethodPost, "/A/hello", http.StatusMethodNotAllowed, ""},
		{http.MethodGet, "/A/echo", http.StatusMethodNotAllowed, ""},
		{http.MethodGet, "/A/missing", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.status {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, tt.status, rec.Code)
		}
		if tt.body != "" && rec.Body.String() != tt.body {
			t.Errorf("%s %s: expected body %q, got %q", tt.method, tt.path, tt.body, rec.Body.String())
		}
	}
}

func TestMount_MalformedPattern(t *testing.T) {
	routes := []BoundRoute{
		NewBoundRoute("A", "/A/{broken", http.MethodGet, KindText, "hello", nil, nil),
	}
	err := Mount(chi.NewRouter(), routes, func(BoundRoute) http.Handler { return http.NotFoundHandler() })
	if !HasCode(err, ErrCodeInvalidRoute) {
		t.Fatalf("Expected invalid route error, got %v", err)
	}
}
