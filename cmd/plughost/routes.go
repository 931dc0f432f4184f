// routes.go: the routes subcommand
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"strings"

	nativeplugins "github.com/agilira/go-nativeplugins"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

type routesOptions struct {
	hostFlags
	mount string
}

func newRoutesCommand() *cobra.Command {
	opts := &routesOptions{}

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Load every enabled plugin and print the bound route table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRoutes(cmd, opts)
		},
	}

	opts.register(cmd.Flags())
	cmd.Flags().StringVar(&opts.mount, "mount", "/plugin", "mount path shown in front of every route")

	return cmd
}

func runRoutes(cmd *cobra.Command, opts *routesOptions) error {
	config, err := opts.hostConfig(cmd)
	if err != nil {
		return err
	}

	host, err := nativeplugins.NewHost(config)
	if err != nil {
		return err
	}
	defer func() {
		_ = host.Close()
	}()

	mount := strings.TrimRight(opts.mount, "/")
	t := newTable("PLUGIN", "METHOD", "PATH", "KIND", "FUNCTION")
	for _, route := range host.Routes() {
		t.add(lipgloss.NewStyle(), route.Plugin, route.Method, mount+route.Path, string(route.Kind), route.Function)
	}

	out := cmd.OutOrStdout()
	if err := t.render(out, "No routes bound."); err != nil {
		return err
	}

	for _, skipped := range host.Skipped() {
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("skipped %s: %s", skipped.Name, skipped.Reason)))
	}
	return nil
}
