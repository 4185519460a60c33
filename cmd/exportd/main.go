// Package main is the entry point for the exportd daemon.
package main

import (
	"os"

	"github.com/freecut/exportd/cmd/exportd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
