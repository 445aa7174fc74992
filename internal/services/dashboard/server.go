// Package dashboard serves the operations dashboard: server processes,
// Redis, goals and logs over a JSON API with live WebSocket updates.
package dashboard

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/fiberzerolog"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/services/goalagent"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/catalog"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/procs"
)

//go:embed static
var staticFS embed.FS

// Controller applies start, stop and restart to every server.
type Controller interface {
	Control(ctx context.Context, action string) (procs.ControlResult, error)
}

// Deps are the dashboard's data sources. Nil sources report as
// unavailable.
type Deps struct {
	Logger zerolog.Logger
	// Processes lists running servers; procs.Scan in production.
	Processes func(ctx context.Context) ([]procs.Process, error)
	Control   Controller
	// System samples host load; HostStats in production.
	System func(ctx context.Context) (SystemStats, error)
	Redis  *redis.Client
	Goals  *goalagent.Agent
	// GoalsErr explains a nil Goals.
	GoalsErr  error
	GoalStore string
	LogDir    string
	Getenv    func(string) string
	Now       func() time.Time
	// PollInterval is the broadcaster tick (default 100ms); host stats are
	// resampled every tenth tick.
	PollInterval time.Duration
	// IdlePing is how long a quiet socket waits before a ping (default 30s).
	IdlePing time.Duration
}

// Server is the dashboard HTTP app.
type Server struct {
	logger    zerolog.Logger
	app       *fiber.App
	hub       *hub
	validate  *validator.Validate
	servers   []catalog.Server
	processes func(ctx context.Context) ([]procs.Process, error)
	control   Controller
	system    func(ctx context.Context) (SystemStats, error)
	rdb       *redis.Client
	goals     *goalagent.Agent
	goalsErr  error
	goalStore string
	logDir    string
	getenv    func(string) string
	now       func() time.Time
	poll      time.Duration
	idlePing  time.Duration

	// ctx bounds work started from WebSocket handlers.
	ctx context.Context
}

// New builds the dashboard and registers its routes.
func New(deps Deps) *Server {
	s := &Server{
		logger:    deps.Logger,
		hub:       newHub(),
		validate:  validator.New(),
		servers:   catalog.All(),
		processes: deps.Processes,
		control:   deps.Control,
		system:    deps.System,
		rdb:       deps.Redis,
		goals:     deps.Goals,
		goalsErr:  deps.GoalsErr,
		goalStore: deps.GoalStore,
		logDir:    deps.LogDir,
		getenv:    deps.Getenv,
		now:       deps.Now,
		poll:      deps.PollInterval,
		idlePing:  deps.IdlePing,
		ctx:       context.Background(),
	}
	if s.processes == nil {
		s.processes = procs.Scan
	}
	if s.system == nil {
		s.system = HostStats
	}
	if s.getenv == nil {
		s.getenv = os.Getenv
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logDir == "" {
		s.logDir = "logs"
	}
	if s.poll <= 0 {
		s.poll = 100 * time.Millisecond
	}
	if s.idlePing <= 0 {
		s.idlePing = 30 * time.Second
	}
	s.app = s.routes()
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) routes() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "MCP Operations Dashboard",
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})
	app.Use(recover.New())
	app.Use(fiberzerolog.New(fiberzerolog.Config{Logger: &s.logger}))

	api := app.Group("/api")
	api.Get("/health", s.health)
	api.Get("/status", s.status)
	api.Get("/servers", s.listServers)
	api.Post("/servers/control-all", s.controlAll)
	api.Get("/redis/stats", s.redisStats)
	api.Get("/redis/keys", s.redisKeys)
	api.Get("/redis/key/*", s.redisKey)
	api.Get("/logs", s.logs)
	api.Get("/env", s.env)

	api.Get("/goals", s.goalsOverview)
	api.Get("/goals/list", s.listGoals)
	api.Post("/goals", s.createGoal)
	api.Get("/goals/:id", s.goalDetails)
	api.Delete("/goals/:id", s.deleteGoal)
	api.Post("/goals/:id/tasks", s.addTasks)
	api.Get("/tasks/list", s.listTasks)
	api.Put("/tasks/:id/status", s.updateTaskStatus)
	api.Delete("/tasks/:id", s.deleteTask)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.serveWS))

	app.Use("/", filesystem.New(filesystem.Config{
		Root:       http.FS(staticFS),
		PathPrefix: "static",
		Index:      "index.html",
	}))
	return app
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(ErrorResponse{Error: "http_error", Message: fe.Message})
	}
	code := apperrors.CodeOf(err)
	status := code.HTTPStatus()
	if status >= fiber.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(status).JSON(ErrorResponse{Error: string(code), Message: err.Error()})
}

// Run serves on addr and broadcasts updates until ctx ends.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.ctx = ctx
	bctx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.broadcast(bctx)
	}()

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.app.Listener(ln) }()

	select {
	case err := <-serveErr:
		stop()
		<-done
		return err
	case <-ctx.Done():
	}
	stop()
	<-done
	s.hub.closeAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown dashboard: %w", err)
	}
	return <-serveErr
}

func (s *Server) timestamp() string {
	return s.now().Format(time.RFC3339)
}
