// Package main provides the CLI for LeapMeta, the schema sync and indicator engine.
package main

import (
	"os"

	"github.com/leapstack-labs/leapmeta/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
