// health_checker_test.go: gRPC health reporting tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthChecker_Creation(t *testing.T) {
	hc := NewHealthChecker([]string{"A", "B"})
	ctx := context.Background()

	for _, service := range []string{"", "A", "B"} {
		status, err := hc.Check(ctx, service)
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status, "service %q", service)
	}

	_, err := hc.Check(ctx, "unknown")
	assert.Error(t, err, "unknown services are reported as not found")
}

func TestHealthChecker_SetPluginServing(t *testing.T) {
	hc := NewHealthChecker([]string{"A"})
	ctx := context.Background()

	hc.SetPluginServing("A", false)
	status, err := hc.Check(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)

	hc.SetPluginServing("A", true)
	status, err = hc.Check(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)
}

func TestHealthChecker_Shutdown(t *testing.T) {
	hc := NewHealthChecker([]string{"A"})
	hc.Shutdown()
	hc.Shutdown()

	ctx := context.Background()
	for _, service := range []string{"", "A"} {
		status, err := hc.Check(ctx, service)
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status, "service %q", service)
	}

	hc.SetPluginServing("A", true)
	status, _ := hc.Check(ctx, "A")
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status, "updates after shutdown are ignored")
}

func TestHealthChecker_ServeListener(t *testing.T) {
	hc := NewHealthChecker([]string{"A"})
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- hc.ServeListener(ctx, lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()
	resp, err := healthpb.NewHealthClient(conn).Check(callCtx, &healthpb.HealthCheckRequest{Service: "A"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("health server did not stop")
	}
}
