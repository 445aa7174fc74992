package goalagent

import (
	"encoding/json"
	"time"

	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage"
)

// Priorities, highest first.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Goal statuses.
const (
	GoalPlanning  = "planning"
	GoalActive    = "active"
	GoalCompleted = "completed"
	GoalFailed    = "failed"
	GoalCancelled = "cancelled"
)

// Task statuses.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
	TaskBlocked    = "blocked"
)

var (
	goalStatuses = []string{GoalPlanning, GoalActive, GoalCompleted, GoalFailed, GoalCancelled}
	taskStatuses = []string{TaskPending, TaskInProgress, TaskCompleted, TaskFailed, TaskBlocked}
	priorities   = []string{PriorityHigh, PriorityMedium, PriorityLow}
)

func priorityRank(p string) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Progress counts a goal's finished tasks.
type Progress struct {
	Total     int     `json:"total"`
	Completed int     `json:"completed"`
	Percent   float64 `json:"percent"`
}

// Goal is the client view of a goal.
type Goal struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Priority    string         `json:"priority"`
	Status      string         `json:"status"`
	Repos       []string       `json:"repos"`
	Metadata    map[string]any `json:"metadata"`
	Tasks       []string       `json:"tasks"`
	Progress    Progress       `json:"progress"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	TaskDetails []Task         `json:"task_details,omitempty"`
	Cache       *CacheInfo     `json:"cache,omitempty"`
}

// Task is the client view of a task.
type Task struct {
	ID              string     `json:"id"`
	GoalID          string     `json:"goal_id"`
	Description     string     `json:"description"`
	Type            string     `json:"type"`
	Priority        string     `json:"priority"`
	Status          string     `json:"status"`
	Dependencies    []string   `json:"dependencies"`
	Repo            string     `json:"repo,omitempty"`
	JiraTicket      string     `json:"jira_ticket,omitempty"`
	EstimatedEffort string     `json:"estimated_effort,omitempty"`
	AssignedTools   []string   `json:"assigned_tools"`
	Result          any        `json:"result,omitempty"`
	CreatedAt       string     `json:"created_at"`
	UpdatedAt       string     `json:"updated_at"`
	CompletedAt     string     `json:"completed_at,omitempty"`
	Cache           *CacheInfo `json:"cache,omitempty"`
}

// CacheInfo says where a read was served from.
type CacheInfo struct {
	Enabled    bool   `json:"enabled"`
	Hit        bool   `json:"hit"`
	ServedFrom string `json:"served_from"`
}

func cacheInfo(status storage.CacheStatus) *CacheInfo {
	switch status {
	case storage.CacheHit:
		return &CacheInfo{Enabled: true, Hit: true, ServedFrom: "cache"}
	case storage.CacheMiss:
		return &CacheInfo{Enabled: true, ServedFrom: "store"}
	default:
		return &CacheInfo{ServedFrom: "store"}
	}
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func goalView(g storage.Goal, tasks []storage.Task) Goal {
	out := Goal{
		ID:          g.ID,
		Description: g.Description,
		Priority:    g.Priority,
		Status:      g.Status,
		Repos:       nonNil(g.Repos),
		Metadata:    g.Metadata,
		Tasks:       make([]string, 0, len(tasks)),
		CreatedAt:   stamp(g.CreatedAt),
		UpdatedAt:   stamp(g.UpdatedAt),
	}
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	for _, t := range tasks {
		out.Tasks = append(out.Tasks, t.ID)
		if t.Status == TaskCompleted {
			out.Progress.Completed++
		}
	}
	out.Progress.Total = len(tasks)
	if out.Progress.Total > 0 {
		pct := float64(out.Progress.Completed) * 100 / float64(out.Progress.Total)
		out.Progress.Percent = float64(int(pct*10+0.5)) / 10
	}
	return out
}

func taskView(t storage.Task) Task {
	out := Task{
		ID:              t.ID,
		GoalID:          t.GoalID,
		Description:     t.Description,
		Type:            t.Type,
		Priority:        t.Priority,
		Status:          t.Status,
		Dependencies:    nonNil(t.Dependencies),
		Repo:            t.Repo,
		JiraTicket:      t.JiraTicket,
		EstimatedEffort: t.EstimatedEffort,
		AssignedTools:   nonNil(t.AssignedTools),
		CreatedAt:       stamp(t.CreatedAt),
		UpdatedAt:       stamp(t.UpdatedAt),
	}
	if t.CompletedAt != nil {
		out.CompletedAt = stamp(*t.CompletedAt)
	}
	if len(t.Result) > 0 {
		var v any
		if err := json.Unmarshal(t.Result, &v); err == nil {
			out.Result = v
		}
	}
	return out
}

func taskViews(tasks []storage.Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskView(t))
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
