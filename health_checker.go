// health_checker.go: gRPC health reporting for the host and its plugins
//
// The host registers the standard grpc.health.v1.Health service. The empty
// service name reports the host itself and each loaded plugin is reported
// under its own name.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"context"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthChecker publishes serving status through the gRPC health service.
//
// Usage example:
//
//	checker := NewHealthChecker(registry.Names())
//	go func() {
//	    if err := checker.Serve(ctx, "127.0.0.1:9090"); err != nil {
//	        log.Printf("health server stopped: %v", err)
//	    }
//	}()
//	defer checker.Shutdown()
type HealthChecker struct {
	server  *health.Server
	plugins []string

	mu       sync.Mutex
	shutdown bool
}

// NewHealthChecker reports the host and every named plugin as SERVING.
func NewHealthChecker(plugins []string) *HealthChecker {
	hc := &HealthChecker{
		server:  health.NewServer(),
		plugins: append([]string(nil), plugins...),
	}
	hc.server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, name := range hc.plugins {
		hc.server.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	return hc
}

// Register adds the health service to s.
func (hc *HealthChecker) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, hc.server)
}

// Check returns the status of service ("" for the host).
func (hc *HealthChecker) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := hc.server.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// SetPluginServing updates the status reported for one plugin.
func (hc *HealthChecker) SetPluginServing(name string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	hc.server.SetServingStatus(name, status)
}

// Shutdown reports every service as NOT_SERVING. Later status updates are
// ignored.
func (hc *HealthChecker) Shutdown() {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if hc.shutdown {
		return
	}
	hc.shutdown = true
	hc.server.Shutdown()
}

// Serve runs a gRPC server exposing the health service on addr until ctx is
// done.
func (hc *HealthChecker) Serve(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return hc.ServeListener(ctx, lis)
}

// ServeListener is Serve on an existing listener.
func (hc *HealthChecker) ServeListener(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer()
	hc.Register(srv)

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			srv.GracefulStop()
		case <-stopped:
		}
	}()
	defer close(stopped)

	return srv.Serve(lis)
}
