// Package prlint lints a pull request template against the canonical
// structure.
package prlint

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	entrypoint "github.com/mcpsuite/mcpsuite/internal/platform/cmd"
	"github.com/mcpsuite/mcpsuite/internal/services/prtemplate"
)

// ErrProblems is returned when the template has lint findings.
var ErrProblems = errors.New("template has lint problems")

// Config holds prlint configuration.
type Config struct {
	// File is the template to lint. Empty lints the embedded template.
	File string `env:"MCPSUITE_PR_TEMPLATE"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.File, "file", cfg.File, "Template file to lint (default: the embedded template)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run lints the configured template and prints each problem to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServicePRLint, func(context.Context) error {
		name := cfg.File
		src := prtemplate.Template()
		if name == "" {
			name = "embedded template"
		} else {
			data, err := os.ReadFile(cfg.File)
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}
			src = data
		}

		problems, err := prtemplate.Check(src)
		if err != nil {
			return err
		}
		for _, p := range problems {
			fmt.Fprintf(out, "%s: %s\n", name, p)
		}
		if len(problems) > 0 {
			fmt.Fprintf(out, "%s: %d problem(s)\n", name, len(problems))
			return ErrProblems
		}
		fmt.Fprintf(out, "%s: ok\n", name)
		return nil
	})
}
