package goalagent

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/mcpsuite/mcpsuite/internal/platform/config"
	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/platform/logging"
	"github.com/mcpsuite/mcpsuite/internal/platform/storage/redisconn"
	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage"
	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage/postgres"
	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage/rediscache"
	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage/sqlite"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/domain"
)

// Store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config configures the goal store and agent.
type Config struct {
	Store      string `env:"GOAL_STORE" envDefault:"sqlite"`
	SQLitePath string `env:"GOAL_SQLITE_PATH" envDefault:"data/goals.db"`
	// Cache is "redis" or "none".
	Cache      string `env:"GOAL_CACHE" envDefault:"none"`
	CacheTTL   int    `env:"GOAL_CACHE_TTL" envDefault:"3600"`
	MaxWorkers int    `env:"GOAL_MAX_WORKERS" envDefault:"4"`
	Postgres   PostgresConfig
	Redis      redisconn.Config
}

// PostgresConfig locates the Postgres goal store. DSN wins over the parts.
type PostgresConfig struct {
	DSN      string `env:"POSTGRES_DSN"`
	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	Database string `env:"POSTGRES_DB" envDefault:"mcp_goals"`
	User     string `env:"POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD"`
	SSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
}

// ConnString returns the DSN, building a postgres:// URL from the parts
// when none is set.
func (c PostgresConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	return u.String()
}

// OpenStore opens the configured backend and, when GOAL_CACHE=redis,
// fronts it with the Redis cache. An unreachable Redis disables the cache
// instead of failing.
func OpenStore(ctx context.Context, cfg Config, logger zerolog.Logger) (storage.Store, bool, error) {
	var (
		store storage.Store
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Store)) {
	case "", StoreSQLite:
		store, err = sqlite.Open(ctx, cfg.SQLitePath)
	case StorePostgres:
		store, err = postgres.Open(ctx, cfg.Postgres.ConnString())
	default:
		return nil, false, apperrors.Validation("GOAL_STORE must be sqlite or postgres, got %q", cfg.Store)
	}
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.CodeConnection, fmt.Sprintf("open %s goal store: %v", cfg.Store, err), err)
	}

	if !strings.EqualFold(strings.TrimSpace(cfg.Cache), "redis") {
		return store, false, nil
	}
	rdb, err := redisconn.Open(ctx, cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Msg("goal cache disabled")
		_ = rdb.Close()
		return store, false, nil
	}
	ttl := time.Duration(cfg.CacheTTL) * time.Second
	return rediscache.New(store, rdb, ttl, logger), true, nil
}

// Module opens the goal store from GOAL_* variables.
func Module(ctx context.Context, deps domain.Deps) domain.Module {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return NewModule(nil, err)
	}
	logger := zerolog.Nop()
	if deps.Logger != nil {
		logger = deps.Logger.Logger
	}
	settings := []logging.Setting{
		{Key: "Store", Value: cfg.Store},
		{Key: "Cache", Value: cfg.Cache},
		{Key: "Max Workers", Value: cfg.MaxWorkers},
	}
	if strings.EqualFold(cfg.Store, StorePostgres) {
		settings = append(settings,
			logging.Setting{Key: "Postgres Host", Value: net.JoinHostPort(cfg.Postgres.Host, strconv.Itoa(cfg.Postgres.Port))},
			logging.Setting{Key: "Postgres Database", Value: cfg.Postgres.Database},
		)
	} else {
		settings = append(settings, logging.Setting{Key: "SQLite Path", Value: cfg.SQLitePath})
	}

	store, cached, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		module := NewModule(nil, err)
		module.Settings = settings
		return module
	}
	agent := New(store, Options{
		Logger:       logger,
		Workers:      cfg.MaxWorkers,
		StoreKind:    strings.ToLower(cfg.Store),
		CacheEnabled: cached,
		Notify:       deps.Notify,
	})
	module := NewModule(agent, nil)
	module.Settings = settings
	module.Health = agent.Ping
	module.Close = agent.Close
	return module
}

type server struct {
	agent  *Agent
	cfgErr error
}

func (s server) get() (*Agent, error) {
	if s.agent == nil {
		return nil, domain.NotConfigured("Goal Agent", s.cfgErr)
	}
	return s.agent, nil
}

// NewModule exposes agent as MCP tools and resources. agent may be nil, in
// which case tools report cfgErr.
func NewModule(agent *Agent, cfgErr error) domain.Module {
	s := server{agent: agent, cfgErr: cfgErr}
	tool := func(name, desc string) *mcp.Tool { return &mcp.Tool{Name: name, Description: desc} }
	return domain.Module{
		Name: "Goal Agent",
		Tools: []domain.ToolRegistration{
			domain.Tool(tool("create_goal", "Create a goal in planning status"), s.createGoal),
			domain.Tool(tool("break_down_goal", "Add subtasks to a goal; dependencies name task ids of the goal or #N for an earlier subtask in the same list"), s.breakDownGoal),
			domain.Tool(tool("get_goal", "Get a goal with its tasks"), s.getGoal),
			domain.Tool(tool("list_goals", "List goals, newest first"), s.listGoals),
			domain.Tool(tool("get_next_tasks", "List pending tasks whose dependencies are completed"), s.getNextTasks),
			domain.Tool(tool("update_task_status", "Set a task's status and optional JSON result"), s.updateTaskStatus),
			domain.Tool(tool("delete_task", "Delete a task"), s.deleteTask),
			domain.Tool(tool("get_task", "Get a task"), s.getTask),
			domain.Tool(tool("generate_execution_plan", "Order a goal's tasks into phases that can run in parallel"), s.generateExecutionPlan),
			domain.Tool(tool("delete_goal", "Delete a goal and all of its tasks"), s.deleteGoal),
			domain.Tool(tool("update_goal", "Change a goal's description, priority, status, repos or metadata"), s.updateGoal),
			domain.Tool(tool("batch_update_tasks", "Update several task statuses concurrently"), s.batchUpdateTasks),
			domain.Tool(tool("batch_get_tasks", "Get several tasks concurrently"), s.batchGetTasks),
			domain.Tool(tool("get_agent_status", "Report goal and task counts and the store in use"), s.getAgentStatus),
		},
		Resources: []domain.ResourceRegistration{
			{Template: GoalResourceTemplate(), Handler: s.readGoal},
			{Resource: SummaryResource(), Handler: s.readSummary},
		},
		ConfigErr: cfgErr,
	}
}

// CreateGoalInput is the create_goal input.
type CreateGoalInput struct {
	Description string         `json:"description" jsonschema:"what the goal should achieve"`
	Priority    string         `json:"priority,omitempty" jsonschema:"high, medium or low (default medium)"`
	Repos       []string       `json:"repos,omitempty" jsonschema:"repositories the goal touches"`
	Metadata    map[string]any `json:"metadata,omitempty" jsonschema:"free-form metadata"`
}

func (s server) createGoal(ctx context.Context, _ *mcp.CallToolRequest, in CreateGoalInput) (*mcp.CallToolResult, Goal, error) {
	a, err := s.get()
	if err != nil {
		return nil, Goal{}, err
	}
	goal, err := a.CreateGoal(ctx, GoalSpec(in))
	return nil, goal, err
}

// BreakDownInput is the break_down_goal input.
type BreakDownInput struct {
	GoalID   string `json:"goal_id" jsonschema:"goal to break down"`
	Subtasks string `json:"subtasks" jsonschema:"JSON array of {description, type, priority, dependencies, repo, jira_ticket, estimated_effort, tools}"`
}

func (s server) breakDownGoal(ctx context.Context, _ *mcp.CallToolRequest, in BreakDownInput) (*mcp.CallToolResult, Goal, error) {
	a, err := s.get()
	if err != nil {
		return nil, Goal{}, err
	}
	if err := domain.Require("goal_id", in.GoalID); err != nil {
		return nil, Goal{}, err
	}
	var subtasks []SubtaskSpec
	if err := domain.DecodeJSONArg("subtasks", in.Subtasks, &subtasks); err != nil {
		return nil, Goal{}, err
	}
	goal, err := a.BreakDown(ctx, in.GoalID, subtasks)
	return nil, goal, err
}

// GoalIDInput names one goal.
type GoalIDInput struct {
	GoalID string `json:"goal_id" jsonschema:"goal id, e.g. GOAL-0001"`
}

func (s server) getGoal(ctx context.Context, _ *mcp.CallToolRequest, in GoalIDInput) (*mcp.CallToolResult, Goal, error) {
	a, err := s.get()
	if err != nil {
		return nil, Goal{}, err
	}
	goal, err := a.GetGoal(ctx, in.GoalID)
	return nil, goal, err
}

// ListGoalsInput filters list_goals.
type ListGoalsInput struct {
	Status   string `json:"status,omitempty" jsonschema:"planning, active, completed, failed or cancelled"`
	Priority string `json:"priority,omitempty" jsonschema:"high, medium or low"`
}

// GoalsResult lists goals.
type GoalsResult struct {
	Goals        []Goal `json:"goals"`
	Count        int    `json:"count"`
	Store        string `json:"store"`
	CacheEnabled bool   `json:"cache_enabled"`
}

func (s server) listGoals(ctx context.Context, _ *mcp.CallToolRequest, in ListGoalsInput) (*mcp.CallToolResult, GoalsResult, error) {
	a, err := s.get()
	if err != nil {
		return nil, GoalsResult{}, err
	}
	goals, err := a.ListGoals(ctx, in.Status, in.Priority)
	if err != nil {
		return nil, GoalsResult{}, err
	}
	return nil, GoalsResult{Goals: goals, Count: len(goals), Store: a.opts.StoreKind, CacheEnabled: a.opts.CacheEnabled}, nil
}

// NextTasksInput is the get_next_tasks input.
type NextTasksInput struct {
	GoalID string `json:"goal_id,omitempty" jsonschema:"limit to one goal"`
}

// TasksResult lists tasks.
type TasksResult struct {
	Tasks []Task `json:"tasks"`
	Count int    `json:"count"`
}

func (s server) getNextTasks(ctx context.Context, _ *mcp.CallToolRequest, in NextTasksInput) (*mcp.CallToolResult, TasksResult, error) {
	a, err := s.get()
	if err != nil {
		return nil, TasksResult{}, err
	}
	tasks, err := a.NextTasks(ctx, in.GoalID)
	if err != nil {
		return nil, TasksResult{}, err
	}
	return nil, TasksResult{Tasks: tasks, Count: len(tasks)}, nil
}

// UpdateTaskStatusInput is the update_task_status input.
type UpdateTaskStatusInput struct {
	TaskID string `json:"task_id" jsonschema:"task id, e.g. TASK-0001"`
	Status string `json:"status" jsonschema:"pending, in_progress, completed, failed or blocked"`
	Result string `json:"result,omitempty" jsonschema:"JSON result to store with the task"`
}

func (s server) updateTaskStatus(ctx context.Context, _ *mcp.CallToolRequest, in UpdateTaskStatusInput) (*mcp.CallToolResult, Task, error) {
	a, err := s.get()
	if err != nil {
		return nil, Task{}, err
	}
	var result json.RawMessage
	if strings.TrimSpace(in.Result) != "" {
		if err := domain.DecodeJSONArg("result", in.Result, &result); err != nil {
			return nil, Task{}, err
		}
	}
	task, err := a.UpdateTaskStatus(ctx, in.TaskID, in.Status, result)
	return nil, task, err
}

// TaskIDInput names one task.
type TaskIDInput struct {
	TaskID string `json:"task_id" jsonschema:"task id, e.g. TASK-0001"`
}

func (s server) deleteTask(ctx context.Context, _ *mcp.CallToolRequest, in TaskIDInput) (*mcp.CallToolResult, DeletedTask, error) {
	a, err := s.get()
	if err != nil {
		return nil, DeletedTask{}, err
	}
	out, err := a.DeleteTask(ctx, in.TaskID)
	return nil, out, err
}

func (s server) getTask(ctx context.Context, _ *mcp.CallToolRequest, in TaskIDInput) (*mcp.CallToolResult, Task, error) {
	a, err := s.get()
	if err != nil {
		return nil, Task{}, err
	}
	task, err := a.GetTask(ctx, in.TaskID)
	return nil, task, err
}

func (s server) generateExecutionPlan(ctx context.Context, _ *mcp.CallToolRequest, in GoalIDInput) (*mcp.CallToolResult, Plan, error) {
	a, err := s.get()
	if err != nil {
		return nil, Plan{}, err
	}
	plan, err := a.ExecutionPlan(ctx, in.GoalID)
	return nil, plan, err
}

func (s server) deleteGoal(ctx context.Context, _ *mcp.CallToolRequest, in GoalIDInput) (*mcp.CallToolResult, DeletedGoal, error) {
	a, err := s.get()
	if err != nil {
		return nil, DeletedGoal{}, err
	}
	out, err := a.DeleteGoal(ctx, in.GoalID)
	return nil, out, err
}

// UpdateGoalInput is the update_goal input. Omitted fields are unchanged.
type UpdateGoalInput struct {
	GoalID      string         `json:"goal_id" jsonschema:"goal to update"`
	Description string         `json:"description,omitempty" jsonschema:"new description"`
	Priority    string         `json:"priority,omitempty" jsonschema:"high, medium or low"`
	Status      string         `json:"status,omitempty" jsonschema:"planning, active, completed, failed or cancelled"`
	Repos       []string       `json:"repos,omitempty" jsonschema:"replacement repository list"`
	Metadata    map[string]any `json:"metadata,omitempty" jsonschema:"replacement metadata"`
}

func (s server) updateGoal(ctx context.Context, _ *mcp.CallToolRequest, in UpdateGoalInput) (*mcp.CallToolResult, Goal, error) {
	a, err := s.get()
	if err != nil {
		return nil, Goal{}, err
	}
	patch := GoalPatch{Repos: in.Repos, Metadata: in.Metadata}
	if in.Description != "" {
		patch.Description = &in.Description
	}
	if in.Priority != "" {
		patch.Priority = &in.Priority
	}
	if in.Status != "" {
		patch.Status = &in.Status
	}
	goal, err := a.UpdateGoal(ctx, in.GoalID, patch)
	return nil, goal, err
}

// BatchUpdateInput is the batch_update_tasks input.
type BatchUpdateInput struct {
	Updates string `json:"updates" jsonschema:"JSON array of {task_id, status, result}"`
}

func (s server) batchUpdateTasks(ctx context.Context, _ *mcp.CallToolRequest, in BatchUpdateInput) (*mcp.CallToolResult, BatchResult, error) {
	a, err := s.get()
	if err != nil {
		return nil, BatchResult{}, err
	}
	var updates []TaskUpdate
	if err := domain.DecodeJSONArg("updates", in.Updates, &updates); err != nil {
		return nil, BatchResult{}, err
	}
	if len(updates) == 0 {
		return nil, BatchResult{}, apperrors.Validation("updates must not be empty")
	}
	return nil, a.BatchUpdate(ctx, updates), nil
}

// BatchGetInput is the batch_get_tasks input.
type BatchGetInput struct {
	TaskIDs string `json:"task_ids" jsonschema:"comma separated task ids or a JSON array"`
}

func (s server) batchGetTasks(ctx context.Context, _ *mcp.CallToolRequest, in BatchGetInput) (*mcp.CallToolResult, BatchTasks, error) {
	a, err := s.get()
	if err != nil {
		return nil, BatchTasks{}, err
	}
	ids, err := parseIDs(in.TaskIDs)
	if err != nil {
		return nil, BatchTasks{}, err
	}
	out, err := a.BatchGet(ctx, ids)
	return nil, out, err
}

func parseIDs(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	var ids []string
	if strings.HasPrefix(raw, "[") {
		if err := domain.DecodeJSONArg("task_ids", raw, &ids); err != nil {
			return nil, err
		}
	} else {
		ids = domain.SplitList(raw)
	}
	if len(ids) == 0 {
		return nil, apperrors.Validation("task_ids must not be empty")
	}
	return ids, nil
}

func (s server) getAgentStatus(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, Status, error) {
	a, err := s.get()
	if err != nil {
		return nil, Status{}, err
	}
	status, err := a.Status(ctx)
	return nil, status, err
}
