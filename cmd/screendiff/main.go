// Package main is the entry point for the screendiff CLI.
package main

import (
	"fmt"
	"os"

	"github.com/junsooki/screendiff/internal/cli"
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := cli.Execute(version, commit, date); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
