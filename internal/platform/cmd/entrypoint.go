// Package cmd holds the startup plumbing shared by every mcpsuite binary:
// dotenv plus environment config, flag parsing, signal handling and a
// traced run loop.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mcpsuite/mcpsuite/internal/platform/config"
	"github.com/mcpsuite/mcpsuite/internal/platform/otel"
)

const otelShutdownTimeout = 5 * time.Second

// Service names used for telemetry and log prefixes.
const (
	ServiceMCP       = "mcp"
	ServiceDashboard = "dashboard"
	ServiceProxy     = "mcp-http-proxy"
	ServiceCtl       = "mcpctl"
	ServicePRLint    = "prlint"
)

// ParseConfig loads the dotenv file and then environment defaults into cfg.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses command-line flags.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// RunWithTelemetry sets up tracing for service, runs fn inside a root span
// named "<service>.run" and flushes spans on return.
func RunWithTelemetry(ctx context.Context, service string, run func(context.Context) error) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return fmt.Errorf("service name is required")
	}
	if run == nil {
		return fmt.Errorf("run function is required")
	}
	shutdown, err := otel.Setup(ctx, service)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("%s otel shutdown: %v", service, err)
		}
	}()

	ctx, finish := otel.StartSpan(ctx, service+".run", attribute.String("service.command", service))
	err = run(ctx)
	finish(err)
	return err
}
