package main

import (
	"os"

	"github.com/mcpsuite/mcpsuite/internal/cmd/mcpctl"
	entrypoint "github.com/mcpsuite/mcpsuite/internal/platform/cmd"
)

// main runs the mcpctl command line.
func main() {
	ctx, stop := entrypoint.SignalContext()
	code := mcpctl.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
