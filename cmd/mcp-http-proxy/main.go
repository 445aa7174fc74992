package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	proxycmd "github.com/mcpsuite/mcpsuite/internal/cmd/proxy"
	entrypoint "github.com/mcpsuite/mcpsuite/internal/platform/cmd"
)

// main relays stdio JSON-RPC to a remote MCP server over HTTP.
func main() {
	cfg, err := proxycmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		if errors.Is(err, proxycmd.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, "Example: mcp-http-proxy https://goal-agent.yourdomain.com")
			os.Exit(1)
		}
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[MCP-HTTP-PROXY] ")

	ctx, stop := entrypoint.SignalContext()
	defer stop()

	if err := proxycmd.Run(ctx, cfg, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("proxy failed: %v", err)
	}
}
