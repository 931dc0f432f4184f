// serve.go: the serve subcommand
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	nativeplugins "github.com/agilira/go-nativeplugins"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type serveOptions struct {
	hostFlags

	addr            string
	mount           string
	healthAddr      string
	metricsPath     string
	shutdownTimeout time.Duration
}

func newServeCommand() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the manifest and serve plugin routes",
		Long: `Serve loads every enabled plugin, binds its routes and listens for HTTP
requests until SIGINT or SIGTERM.

Example:
  plughost serve --manifest ./Plugins.toml --addr 127.0.0.1:8080 --mount /plugin
  plughost serve --health-addr 127.0.0.1:9090 --max-calls 4 --call-timeout 10s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	opts.register(cmd.Flags())
	cmd.Flags().StringVar(&opts.addr, "addr", "127.0.0.1:8080", "HTTP listen address")
	cmd.Flags().StringVar(&opts.mount, "mount", "/plugin", "path the plugin router is mounted at, empty for the root")
	cmd.Flags().StringVar(&opts.healthAddr, "health-addr", "", "gRPC health service listen address, empty to disable")
	cmd.Flags().StringVar(&opts.metricsPath, "metrics-path", "", "serve a JSON metrics snapshot at this path under the mount")
	cmd.Flags().DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 15*time.Second, "how long to wait for in-flight calls on shutdown")

	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	config, err := opts.hostConfig(cmd)
	if err != nil {
		return err
	}
	config.HealthAddr = opts.healthAddr
	config.MetricsPath = opts.metricsPath
	logger := config.Logger

	host, err := nativeplugins.NewHost(config)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	mount := "/" + strings.Trim(opts.mount, "/")
	r.Mount(mount, host.Router())

	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	var lc net.ListenConfig
	lis, err := lc.Listen(gctx, "tcp", opts.addr)
	if err != nil {
		_ = host.Close()
		return err
	}
	logger.Info("Serving plugin routes", "addr", lis.Addr().String(), "mount", mount, "routes", len(host.Routes()))

	g.Go(func() error {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if config.HealthAddr != "" {
		g.Go(func() error {
			logger.Info("Serving gRPC health", "addr", config.HealthAddr)
			return host.Health().Serve(gctx, config.HealthAddr)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.shutdownTimeout)
		defer cancel()

		srvErr := srv.Shutdown(shutdownCtx)
		hostErr := host.Shutdown(shutdownCtx)
		return errors.Join(srvErr, hostErr)
	})

	return g.Wait()
}
