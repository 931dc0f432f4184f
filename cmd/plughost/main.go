// main.go: entry point of the plughost command
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"os"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "plughost: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	root := newRootCommand(version, commit, date)
	root.SetArgs(args)
	return root.Execute()
}
