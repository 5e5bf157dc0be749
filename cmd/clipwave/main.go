// Package main is the entry point for the clipwave application.
package main

import (
	"os"

	"github.com/clipwave/clipwave/cmd/clipwave/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
