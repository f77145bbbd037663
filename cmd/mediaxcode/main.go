// Package main is the entry point for the mediaxcode application.
package main

import (
	"os"

	"github.com/jmylchreest/mediaxcode/cmd/mediaxcode/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
