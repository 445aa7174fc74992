// Package storage defines persistence contracts for goals and tasks.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested goal or task is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates an id collision.
	ErrAlreadyExists = errors.New("record already exists")
)

// Sequence names used with NextIDs.
const (
	GoalSequence = "goal"
	TaskSequence = "task"
)

// Goal is one stored goal.
type Goal struct {
	ID          string
	Description string
	Priority    string
	Status      string
	Repos       []string
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Task is one stored task.
type Task struct {
	ID              string
	GoalID          string
	Description     string
	Type            string
	Priority        string
	Status          string
	Dependencies    []string
	Repo            string
	JiraTicket      string
	EstimatedEffort string
	AssignedTools   []string
	// Result is raw JSON, nil when unset.
	Result      json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// GoalFilter narrows ListGoals. Blank fields match everything.
type GoalFilter struct {
	Status   string
	Priority string
}

// TaskFilter narrows ListTasks. Blank fields match everything.
type TaskFilter struct {
	GoalID   string
	Status   string
	Priority string
}

// Counts totals the stored records.
type Counts struct {
	Goals int64
	Tasks int64
}

// Store persists goals and tasks.
//
// List methods return goals newest first and tasks in id order.
// DeleteGoal removes the goal's tasks with it.
type Store interface {
	// NextIDs reserves n consecutive values of a named sequence and
	// returns the first one. Reservations are atomic across processes
	// sharing the database.
	NextIDs(ctx context.Context, sequence string, n int) (int64, error)

	CreateGoal(ctx context.Context, goal Goal) error
	GetGoal(ctx context.Context, id string) (Goal, error)
	ListGoals(ctx context.Context, filter GoalFilter) ([]Goal, error)
	UpdateGoal(ctx context.Context, goal Goal) error
	DeleteGoal(ctx context.Context, id string) error

	// CreateTasks inserts every task or none.
	CreateTasks(ctx context.Context, tasks []Task) error
	GetTask(ctx context.Context, id string) (Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error)
	UpdateTask(ctx context.Context, task Task) error
	DeleteTask(ctx context.Context, id string) error

	Count(ctx context.Context) (Counts, error)
	Ping(ctx context.Context) error
	Close() error
}

// CacheStatus reports how a cached read was served.
type CacheStatus string

const (
	CacheHit      CacheStatus = "hit"
	CacheMiss     CacheStatus = "miss"
	CacheDisabled CacheStatus = "disabled"
)

// CachedReader is implemented by stores that front another store with a
// cache and can say whether a read was served from it.
type CachedReader interface {
	GetGoalCached(ctx context.Context, id string) (Goal, CacheStatus, error)
	GetTaskCached(ctx context.Context, id string) (Task, CacheStatus, error)
}
