// Package main is the entry point for the nexus orchestrator.
package main

import (
	"os"

	"github.com/zerodaily/nexus/cmd/nexus/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
