package dashboard

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/catalog"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/procs"
)

// ServerCounts tallies catalog servers by state.
type ServerCounts struct {
	Total   int `json:"total"`
	Running int `json:"running"`
	Stopped int `json:"stopped"`
}

// StatusView is the top-level health picture.
type StatusView struct {
	Servers ServerCounts `json:"servers"`
	Redis   RedisSummary `json:"redis"`
	System  SystemStats  `json:"system"`
}

// ProcessDetails describes a running server; empty when stopped.
type ProcessDetails struct {
	PID        int32   `json:"pid,omitempty"`
	Uptime     float64 `json:"uptime,omitempty"`
	MemoryMB   float64 `json:"memory_mb,omitempty"`
	CPUPercent float64 `json:"cpu_percent,omitempty"`
}

// ServerView is one catalog server with its process state.
type ServerView struct {
	Key             string         `json:"key"`
	Name            string         `json:"name"`
	Status          string         `json:"status"`
	EnvConfigured   bool           `json:"env_configured"`
	RequiredEnvVars []string       `json:"required_env_vars"`
	LogFile         string         `json:"log_file"`
	Details         ProcessDetails `json:"details"`
}

func (s *Server) runningByKind(ctx context.Context) map[catalog.Kind]procs.Process {
	list, err := s.processes(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("scan server processes")
		return map[catalog.Kind]procs.Process{}
	}
	return procs.ByKind(list)
}

func (s *Server) serverViews(running map[catalog.Kind]procs.Process) []ServerView {
	out := make([]ServerView, 0, len(s.servers))
	for _, srv := range s.servers {
		view := ServerView{
			Key:             string(srv.Kind),
			Name:            srv.Name,
			Status:          "stopped",
			EnvConfigured:   s.envConfigured(srv.RequiredEnv),
			RequiredEnvVars: append([]string{}, srv.RequiredEnv...),
			LogFile:         s.logDir + "/" + srv.LogFile(),
		}
		if p, ok := running[srv.Kind]; ok {
			view.Status = "running"
			view.Details = ProcessDetails{PID: p.PID, Uptime: p.Uptime, MemoryMB: p.MemoryMB, CPUPercent: p.CPUPercent}
		}
		out = append(out, view)
	}
	return out
}

func (s *Server) counts(running map[catalog.Kind]procs.Process) ServerCounts {
	n := 0
	for _, srv := range s.servers {
		if _, ok := running[srv.Kind]; ok {
			n++
		}
	}
	return ServerCounts{Total: len(s.servers), Running: n, Stopped: len(s.servers) - n}
}

func (s *Server) sampleSystem(ctx context.Context) SystemStats {
	stats, err := s.system(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("sample host stats")
	}
	return stats
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy", "timestamp": s.timestamp()})
}

func (s *Server) status(c *fiber.Ctx) error {
	ctx := c.UserContext()
	running := s.runningByKind(ctx)
	return c.JSON(fiber.Map{
		"timestamp": s.timestamp(),
		"servers":   s.counts(running),
		"redis":     s.redisSummary(ctx, true),
		"system":    s.sampleSystem(ctx),
	})
}

func (s *Server) listServers(c *fiber.Ctx) error {
	running := s.runningByKind(c.UserContext())
	return c.JSON(fiber.Map{"servers": s.serverViews(running)})
}

type controlRequest struct {
	Action string `json:"action" validate:"required,oneof=start stop restart"`
}

func (s *Server) controlAll(c *fiber.Ctx) error {
	var req controlRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.New(apperrors.CodeJSON, "request body must be JSON with an action")
	}
	req.Action = strings.ToLower(strings.TrimSpace(req.Action))
	if err := s.validate.Struct(req); err != nil {
		return apperrors.Validation("invalid action %q; use start, stop or restart", req.Action)
	}
	if s.control == nil {
		return apperrors.NotConfigured("server control")
	}
	res, err := s.control.Control(c.UserContext(), req.Action)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) logs(c *fiber.Ctx) error {
	lines := c.QueryInt("lines", defaultLogLines)
	if lines > maxLogLines {
		lines = maxLogLines
	}
	if lines <= 0 {
		lines = defaultLogLines
	}
	if key := strings.TrimSpace(c.Query("server")); key != "" {
		srv, ok := catalog.Lookup(key)
		if !ok {
			return apperrors.NotFound("unknown server %q", key)
		}
		tail, err := TailLog(s.logDir+"/"+srv.LogFile(), lines)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeUnexpected, "read log: "+err.Error(), err)
		}
		return c.JSON(fiber.Map{"server": string(srv.Kind), "logs": tail})
	}
	return c.JSON(s.allLogs(lines))
}

func (s *Server) env(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"servers": s.envStatus(), "timestamp": s.timestamp()})
}
