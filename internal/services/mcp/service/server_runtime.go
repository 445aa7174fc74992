package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpsuite/mcpsuite/internal/platform/logging"
	"github.com/mcpsuite/mcpsuite/internal/platform/timeouts"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/catalog"
)

// healthInterval is how often the upstream dependency is probed.
const healthInterval = 30 * time.Second

// Run is the service entrypoint for MCP and blocks until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}
	if cfg.Transport != TransportStdio && cfg.Transport != TransportHTTP {
		return fmt.Errorf("transport %q is not supported", cfg.Transport)
	}

	info, ok := catalog.Lookup(cfg.Server)
	if !ok {
		return fmt.Errorf("unknown server %q (known: %s)", cfg.Server, strings.Join(catalog.Keys(), ", "))
	}
	logger, err := logging.New(logging.Options{
		Dir:   cfg.LogDir,
		File:  info.LogFile(),
		Name:  info.Name,
		Level: cfg.LogLevel,
	})
	if err != nil {
		return err
	}
	defer logger.Close()

	s, err := New(ctx, string(info.Kind), logger)
	if err != nil {
		return err
	}
	s.logStartup(cfg)
	defer logging.Shutdown(logger, s.info.Name)

	healthCtx, healthCancel := context.WithCancel(ctx)
	defer healthCancel()
	go s.monitorHealth(healthCtx, healthInterval)

	switch cfg.Transport {
	case TransportHTTP:
		return s.serveHTTP(ctx, cfg)
	default:
		return s.serveWithTransport(ctx, &mcp.StdioTransport{})
	}
}

func (s *Server) logStartup(cfg Config) {
	settings := append([]logging.Setting{
		{Key: "Transport", Value: cfg.Transport},
		{Key: "Tools", Value: len(s.module.Tools)},
		{Key: "Resources", Value: len(s.module.Resources)},
	}, s.module.Settings...)
	if cfg.Transport == TransportHTTP {
		settings = append(settings, logging.Setting{Key: "HTTP Address", Value: cfg.HTTPAddr})
	}
	logging.Startup(s.logger, s.info.Name, settings...)
	if s.module.ConfigErr != nil {
		s.logger.Error().Err(s.module.ConfigErr).Msg("server starting with errors, some features unavailable")
	}
}

// serveHTTP exposes the server over streamable HTTP until ctx ends.
func (s *Server) serveHTTP(ctx context.Context, cfg Config) error {
	transport := NewHTTPTransport(cfg.HTTPAddr, s, HTTPOptions{
		AllowedHosts: cfg.AllowedHosts,
		AuthToken:    cfg.AuthToken,
	})
	err := transport.Start(ctx)
	if closeErr := s.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("close server resources: %w", closeErr)
	}
	return err
}

// serveWithTransport starts the MCP server using the provided transport.
// The server and its module resources share a single exit path.
func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	closeErr := s.Close()
	if closeErr != nil {
		if err == nil {
			return fmt.Errorf("close server resources: %w", closeErr)
		}
		return fmt.Errorf("serve MCP: %v; close server resources: %w", err, closeErr)
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

// Close releases the module's clients and stores. It is safe to call more
// than once.
func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		if s.module.Close != nil {
			s.closeErr = s.module.Close()
		}
	})
	return s.closeErr
}

// monitorHealth periodically probes the module's upstream dependency and
// logs transitions. Failures never stop the server.
func (s *Server) monitorHealth(ctx context.Context, interval time.Duration) {
	if s.module.Health == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkHealth(ctx)
		}
	}
}

// checkHealth runs one probe and reports whether the dependency is healthy.
func (s *Server) checkHealth(ctx context.Context) bool {
	if s.module.Health == nil {
		return true
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeouts.HealthProbe)
	err := s.module.Health(probeCtx)
	cancel()

	state := "ok"
	if err != nil {
		state = err.Error()
	}
	s.healthMu.Lock()
	changed := state != s.lastHealth
	s.lastHealth = state
	s.healthMu.Unlock()

	if changed {
		if err != nil {
			s.logger.Error().Err(err).Msg("health check failed")
		} else {
			s.logger.Info().Msg("health check ok")
		}
	}
	return err == nil
}
