// check.go: the check subcommand
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"

	nativeplugins "github.com/agilira/go-nativeplugins"
	"github.com/spf13/cobra"
)

func newCheckCommand() *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the manifest and verify pinned library digests",
		Long: `Check parses the manifest, lists enabled and skipped entries and verifies
the sha256 pin of every enabled library. Libraries are never opened.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, manifestPath)
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "plugin manifest (default $"+nativeplugins.EnvManifestPath+" or "+nativeplugins.DefaultManifestPath+")")

	return cmd
}

func runCheck(cmd *cobra.Command, manifestPath string) error {
	manifest, err := nativeplugins.LoadManifest(manifestPath, nativeplugins.DefaultManifestOptions())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headerStyle.Render("Manifest: "+manifest.Path))

	failed := 0
	t := newTable("PLUGIN", "VERSION", "STATUS", "PATH")
	for _, desc := range manifest.Enabled() {
		verified, err := nativeplugins.VerifyIntegrity(desc)
		switch {
		case err != nil:
			failed++
			t.add(errStyle, desc.Name, desc.Version, "integrity failed", desc.Path)
		case verified:
			t.add(okStyle, desc.Name, desc.Version, "verified", desc.Path)
		default:
			t.add(mutedStyle, desc.Name, desc.Version, "unpinned", desc.Path)
		}
	}
	for _, skipped := range manifest.Skipped {
		t.add(mutedStyle, skipped.Name, "", "skipped: "+skipped.Reason, skipped.Path)
	}

	if err := t.render(out, "No plugins in manifest."); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d plugin(s) failed integrity verification", failed)
	}
	return nil
}
