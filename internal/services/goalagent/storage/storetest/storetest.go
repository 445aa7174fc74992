// Package storetest runs the shared behavior checks every goal store
// implementation must pass.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage"
)

// Run exercises store behavior against stores produced by open. Each
// subtest gets a fresh store.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	t.Helper()

	t.Run("sequences", func(t *testing.T) { testSequences(t, open(t)) })
	t.Run("goal lifecycle", func(t *testing.T) { testGoalLifecycle(t, open(t)) })
	t.Run("goal filters", func(t *testing.T) { testGoalFilters(t, open(t)) })
	t.Run("task lifecycle", func(t *testing.T) { testTaskLifecycle(t, open(t)) })
	t.Run("create tasks is atomic", func(t *testing.T) { testCreateTasksAtomic(t, open(t)) })
	t.Run("delete goal cascades", func(t *testing.T) { testDeleteGoalCascades(t, open(t)) })
}

var base = time.Date(2026, time.March, 4, 9, 30, 0, 0, time.UTC)

// Goal builds a goal fixture.
func Goal(id string, offset time.Duration) storage.Goal {
	return storage.Goal{
		ID:          id,
		Description: "goal " + id,
		Priority:    "medium",
		Status:      "planning",
		Repos:       []string{"octo/app"},
		Metadata:    map[string]any{"team": "core"},
		CreatedAt:   base.Add(offset),
		UpdatedAt:   base.Add(offset),
	}
}

// Task builds a task fixture.
func Task(id, goalID string, deps ...string) storage.Task {
	return storage.Task{
		ID:            id,
		GoalID:        goalID,
		Description:   "task " + id,
		Type:          "general",
		Priority:      "medium",
		Status:        "pending",
		Dependencies:  deps,
		AssignedTools: []string{},
		CreatedAt:     base,
		UpdatedAt:     base,
	}
}

func testSequences(t *testing.T, store storage.Store) {
	ctx := context.Background()
	first, err := store.NextIDs(ctx, storage.GoalSequence, 1)
	if err != nil {
		t.Fatalf("next ids: %v", err)
	}
	if first != 1 {
		t.Fatalf("first id = %d, want 1", first)
	}
	batch, err := store.NextIDs(ctx, storage.GoalSequence, 3)
	if err != nil {
		t.Fatalf("next ids: %v", err)
	}
	if batch != 2 {
		t.Fatalf("batch start = %d, want 2", batch)
	}
	other, err := store.NextIDs(ctx, storage.TaskSequence, 1)
	if err != nil {
		t.Fatalf("next ids: %v", err)
	}
	if other != 1 {
		t.Fatalf("task sequence start = %d, want 1", other)
	}
	next, err := store.NextIDs(ctx, storage.GoalSequence, 1)
	if err != nil {
		t.Fatalf("next ids: %v", err)
	}
	if next != 5 {
		t.Fatalf("next id = %d, want 5", next)
	}
}

func testGoalLifecycle(t *testing.T, store storage.Store) {
	ctx := context.Background()
	goal := Goal("GOAL-0001", 0)
	if err := store.CreateGoal(ctx, goal); err != nil {
		t.Fatalf("create goal: %v", err)
	}
	if err := store.CreateGoal(ctx, goal); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate create err = %v, want ErrAlreadyExists", err)
	}

	got, err := store.GetGoal(ctx, goal.ID)
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	if got.Description != goal.Description || got.Priority != "medium" || got.Status != "planning" {
		t.Fatalf("goal = %+v", got)
	}
	if len(got.Repos) != 1 || got.Repos[0] != "octo/app" {
		t.Fatalf("repos = %v", got.Repos)
	}
	if got.Metadata["team"] != "core" {
		t.Fatalf("metadata = %v", got.Metadata)
	}
	if !got.CreatedAt.Equal(goal.CreatedAt) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, goal.CreatedAt)
	}

	got.Status = "active"
	got.UpdatedAt = base.Add(time.Hour)
	if err := store.UpdateGoal(ctx, got); err != nil {
		t.Fatalf("update goal: %v", err)
	}
	again, err := store.GetGoal(ctx, goal.ID)
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	if again.Status != "active" || !again.UpdatedAt.Equal(got.UpdatedAt) {
		t.Fatalf("updated goal = %+v", again)
	}

	if _, err := store.GetGoal(ctx, "GOAL-9999"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing goal err = %v, want ErrNotFound", err)
	}
	missing := Goal("GOAL-9999", 0)
	if err := store.UpdateGoal(ctx, missing); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("update missing err = %v, want ErrNotFound", err)
	}
	if err := store.DeleteGoal(ctx, "GOAL-9999"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("delete missing err = %v, want ErrNotFound", err)
	}
}

func testGoalFilters(t *testing.T, store storage.Store) {
	ctx := context.Background()
	for i, status := range []string{"planning", "active", "active"} {
		goal := Goal(fmt.Sprintf("GOAL-%04d", i+1), time.Duration(i)*time.Minute)
		goal.Status = status
		if i == 2 {
			goal.Priority = "high"
		}
		if err := store.CreateGoal(ctx, goal); err != nil {
			t.Fatalf("create goal: %v", err)
		}
	}

	all, err := store.ListGoals(ctx, storage.GoalFilter{})
	if err != nil {
		t.Fatalf("list goals: %v", err)
	}
	if len(all) != 3 || all[0].ID != "GOAL-0003" {
		t.Fatalf("goals = %v, want newest first", ids(all))
	}

	active, err := store.ListGoals(ctx, storage.GoalFilter{Status: "active"})
	if err != nil {
		t.Fatalf("list goals: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active goals = %v", ids(active))
	}

	high, err := store.ListGoals(ctx, storage.GoalFilter{Status: "active", Priority: "high"})
	if err != nil {
		t.Fatalf("list goals: %v", err)
	}
	if len(high) != 1 || high[0].ID != "GOAL-0003" {
		t.Fatalf("high goals = %v", ids(high))
	}

	none, err := store.ListGoals(ctx, storage.GoalFilter{Status: "cancelled"})
	if err != nil {
		t.Fatalf("list goals: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Fatalf("empty list = %#v, want non-nil empty", none)
	}
}

func testTaskLifecycle(t *testing.T, store storage.Store) {
	ctx := context.Background()
	if err := store.CreateGoal(ctx, Goal("GOAL-0001", 0)); err != nil {
		t.Fatalf("create goal: %v", err)
	}
	tasks := []storage.Task{
		Task("TASK-0001", "GOAL-0001"),
		Task("TASK-0002", "GOAL-0001", "TASK-0001"),
	}
	if err := store.CreateTasks(ctx, tasks); err != nil {
		t.Fatalf("create tasks: %v", err)
	}

	got, err := store.GetTask(ctx, "TASK-0002")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if len(got.Dependencies) != 1 || got.Dependencies[0] != "TASK-0001" {
		t.Fatalf("dependencies = %v", got.Dependencies)
	}
	if got.Result != nil || got.CompletedAt != nil {
		t.Fatalf("fresh task has result or completion: %+v", got)
	}

	done := base.Add(2 * time.Hour)
	got.Status = "completed"
	got.Result = json.RawMessage(`{"pr":42}`)
	got.CompletedAt = &done
	got.UpdatedAt = done
	if err := store.UpdateTask(ctx, got); err != nil {
		t.Fatalf("update task: %v", err)
	}
	again, err := store.GetTask(ctx, "TASK-0002")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if again.Status != "completed" || again.CompletedAt == nil || !again.CompletedAt.Equal(done) {
		t.Fatalf("updated task = %+v", again)
	}
	var result map[string]any
	if err := json.Unmarshal(again.Result, &result); err != nil || result["pr"] != float64(42) {
		t.Fatalf("result = %s (%v)", again.Result, err)
	}

	completed, err := store.ListTasks(ctx, storage.TaskFilter{GoalID: "GOAL-0001", Status: "completed"})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(completed) != 1 || completed[0].ID != "TASK-0002" {
		t.Fatalf("completed tasks = %v", taskIDs(completed))
	}

	if err := store.DeleteTask(ctx, "TASK-0001"); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if _, err := store.GetTask(ctx, "TASK-0001"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("deleted task err = %v, want ErrNotFound", err)
	}
	if err := store.DeleteTask(ctx, "TASK-0001"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}

	counts, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts.Goals != 1 || counts.Tasks != 1 {
		t.Fatalf("counts = %+v", counts)
	}
}

func testCreateTasksAtomic(t *testing.T, store storage.Store) {
	ctx := context.Background()
	if err := store.CreateGoal(ctx, Goal("GOAL-0001", 0)); err != nil {
		t.Fatalf("create goal: %v", err)
	}
	if err := store.CreateTasks(ctx, []storage.Task{Task("TASK-0001", "GOAL-0001")}); err != nil {
		t.Fatalf("create tasks: %v", err)
	}

	err := store.CreateTasks(ctx, []storage.Task{
		Task("TASK-0002", "GOAL-0001"),
		Task("TASK-0001", "GOAL-0001"),
	})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("colliding batch err = %v, want ErrAlreadyExists", err)
	}
	if _, err := store.GetTask(ctx, "TASK-0002"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("partial batch persisted: %v", err)
	}
}

func testDeleteGoalCascades(t *testing.T, store storage.Store) {
	ctx := context.Background()
	for _, id := range []string{"GOAL-0001", "GOAL-0002"} {
		if err := store.CreateGoal(ctx, Goal(id, 0)); err != nil {
			t.Fatalf("create goal: %v", err)
		}
	}
	if err := store.CreateTasks(ctx, []storage.Task{
		Task("TASK-0001", "GOAL-0001"),
		Task("TASK-0002", "GOAL-0001"),
		Task("TASK-0003", "GOAL-0002"),
	}); err != nil {
		t.Fatalf("create tasks: %v", err)
	}

	if err := store.DeleteGoal(ctx, "GOAL-0001"); err != nil {
		t.Fatalf("delete goal: %v", err)
	}
	left, err := store.ListTasks(ctx, storage.TaskFilter{})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(left) != 1 || left[0].ID != "TASK-0003" {
		t.Fatalf("remaining tasks = %v", taskIDs(left))
	}
}

func ids(goals []storage.Goal) []string {
	out := make([]string, 0, len(goals))
	for _, g := range goals {
		out = append(out, g.ID)
	}
	return out
}

func taskIDs(tasks []storage.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.ID)
	}
	return out
}
