package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"

	prlintcmd "github.com/mcpsuite/mcpsuite/internal/cmd/prlint"
)

// main lints the pull request template and exits 1 on findings.
func main() {
	cfg, err := prlintcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[PRLINT] ")

	if err := prlintcmd.Run(context.Background(), cfg, os.Stdout); err != nil {
		if errors.Is(err, prlintcmd.ErrProblems) {
			os.Exit(1)
		}
		log.Fatalf("lint failed: %v", err)
	}
}
