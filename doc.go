// Package nativeplugins extends an HTTP server with request handlers loaded
// from native shared libraries at startup, without recompiling the host.
//
// A plugin is a shared object exporting a small C ABI:
//
//	const char* routes(void);   // JSON array of {path, function, method_router, response_type}
//	void free(char*);           // releases any buffer returned by this library
//	const char* <function>(const char* headers_json, const char* body);
//
// The host reads the plugin manifest (Plugins.toml by default), opens each
// enabled library once, asks it for its routes and mounts one handler per
// route on a chi router. Requests are forwarded as a JSON object of
// lower-case header names (the raw query travels as "x-raw-query") and a
// NUL-terminated body. Responses are served as text, html or json according
// to the route's response_type.
//
// Key Features:
//   - Libraries loaded with dlopen through purego, no cgo required
//   - TOML, JSON and YAML manifests with ${VAR} expansion in plugin paths
//   - Optional sha256 pinning of plugin files
//   - Foreign calls run on a dedicated pool of OS-thread-locked workers
//   - Per-plugin concurrency limits and call timeouts
//   - gRPC health reporting per plugin, metrics and an argus audit trail
//
// Basic Usage:
//
//	host, err := nativeplugins.NewHost(nativeplugins.HostConfig{
//		ManifestPath: "Plugins.toml",
//		NamePrefix:   true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer host.Close()
//
//	r := chi.NewRouter()
//	r.Mount("/plugin", host.Router())
//	log.Fatal(http.ListenAndServe(":8080", r))
//
// Memory ownership:
// Every buffer a plugin returns is copied into Go memory and handed back to
// the same library's free export exactly once. Buffers passed to a plugin are
// owned by the host and valid only for the duration of the call.
//
// Copyright (c) 2025 AGILira - A. Giordano
// SPDX-License-Identifier: MPL-2.0
package nativeplugins
