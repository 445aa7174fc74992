package main

import (
	"flag"
	"log"
	"os"

	dashboardcmd "github.com/mcpsuite/mcpsuite/internal/cmd/dashboard"
	entrypoint "github.com/mcpsuite/mcpsuite/internal/platform/cmd"
)

// main serves the operations dashboard.
func main() {
	cfg, err := dashboardcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[DASHBOARD] ")

	ctx, stop := entrypoint.SignalContext()
	defer stop()

	if err := dashboardcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve dashboard: %v", err)
	}
}
