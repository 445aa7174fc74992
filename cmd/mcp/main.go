package main

import (
	"flag"
	"log"
	"os"
	"strings"

	mcpcmd "github.com/mcpsuite/mcpsuite/internal/cmd/mcp"
	entrypoint "github.com/mcpsuite/mcpsuite/internal/platform/cmd"
)

// main starts one MCP server on stdio or HTTP.
func main() {
	cfg, err := mcpcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[MCP " + strings.ToUpper(cfg.Server) + "] ")

	ctx, stop := entrypoint.SignalContext()
	defer stop()

	if err := mcpcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve %s server: %v", cfg.Server, err)
	}
}
