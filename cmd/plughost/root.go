// root.go: plughost command tree and shared host flags
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	nativeplugins "github.com/agilira/go-nativeplugins"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newRootCommand(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "plughost",
		Short: "Serve HTTP routes exported by native plugin libraries",
		Long: `plughost reads a plugin manifest (Plugins.toml by default, or the file named
by PLUGINS_MANIFEST), opens every enabled shared library, asks each one for
its routes and serves them over HTTP.

Routes of plugin "hello" are served under /<mount>/hello/... unless
--name-prefix=false is given.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newRoutesCommand())
	rootCmd.AddCommand(newCheckCommand())

	return rootCmd
}

// hostFlags are the flags shared by every command that builds a host.
type hostFlags struct {
	manifest    string
	namePrefix  bool
	debug       bool
	workers     int
	maxCalls    int
	callTimeout time.Duration
	auditFile   string
}

func (f *hostFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.manifest, "manifest", "", "plugin manifest (default $"+nativeplugins.EnvManifestPath+" or "+nativeplugins.DefaultManifestPath+")")
	fs.BoolVar(&f.namePrefix, "name-prefix", true, "serve each plugin's routes under /<plugin name>")
	fs.BoolVar(&f.debug, "debug", false, "log discovered routes and request headers")
	fs.IntVar(&f.workers, "workers", 0, "number of call pool workers (default GOMAXPROCS)")
	fs.IntVar(&f.maxCalls, "max-calls", 0, "maximum in-flight calls per plugin, 0 for unbounded")
	fs.DurationVar(&f.callTimeout, "call-timeout", 0, "how long a request waits for a plugin, 0 for no limit")
	fs.StringVar(&f.auditFile, "audit-file", "", "write an audit trail of plugin load events to this file")
}

// hostConfig returns the environment configuration overridden by every flag
// given on the command line.
func (f *hostFlags) hostConfig(cmd *cobra.Command) (nativeplugins.HostConfig, error) {
	config, err := nativeplugins.HostConfigFromEnv()
	if err != nil {
		return config, err
	}

	flags := cmd.Flags()
	if flags.Changed("manifest") {
		config.ManifestPath = f.manifest
	}
	if flags.Changed("name-prefix") {
		config.NamePrefix = f.namePrefix
	}
	if flags.Changed("debug") {
		config.Debug = f.debug
	}
	if flags.Changed("workers") {
		config.Workers = f.workers
	}
	if flags.Changed("max-calls") {
		config.MaxConcurrentCalls = f.maxCalls
	}
	if flags.Changed("call-timeout") {
		config.CallTimeout = f.callTimeout
	}
	if flags.Changed("audit-file") {
		config.AuditFile = f.auditFile
	}

	config.Logger = newLogger(cmd.ErrOrStderr(), config.Debug)
	return config, nil
}

func newLogger(w io.Writer, debug bool) nativeplugins.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return nativeplugins.NewSlogLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}
