package goalagent

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage"
	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage/sqlite"
)

type notifications struct {
	mu   sync.Mutex
	uris []string
}

func (n *notifications) add(_ context.Context, uri string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.uris = append(n.uris, uri)
}

func (n *notifications) has(uri string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, u := range n.uris {
		if u == uri {
			return true
		}
	}
	return false
}

func newTestAgent(t *testing.T) (*Agent, *notifications) {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "goals.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	var (
		mu    sync.Mutex
		clock = time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)
	)
	n := &notifications{}
	agent := New(store, Options{
		Logger:    zerolog.Nop(),
		StoreKind: StoreSQLite,
		Notify:    n.add,
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		},
	})
	t.Cleanup(func() { _ = agent.Close() })
	return agent, n
}

func mustGoal(t *testing.T, a *Agent, desc string) Goal {
	t.Helper()
	goal, err := a.CreateGoal(context.Background(), GoalSpec{Description: desc})
	if err != nil {
		t.Fatalf("create goal: %v", err)
	}
	return goal
}

func mustBreakDown(t *testing.T, a *Agent, goalID string, subtasks ...SubtaskSpec) Goal {
	t.Helper()
	goal, err := a.BreakDown(context.Background(), goalID, subtasks)
	if err != nil {
		t.Fatalf("break down: %v", err)
	}
	return goal
}

func TestCreateGoal(t *testing.T) {
	a, n := newTestAgent(t)
	ctx := context.Background()

	first := mustGoal(t, a, "  Ship the release  ")
	if first.ID != "GOAL-0001" || first.Description != "Ship the release" {
		t.Fatalf("goal = %+v", first)
	}
	if first.Priority != PriorityMedium || first.Status != GoalPlanning {
		t.Fatalf("defaults = %s/%s", first.Priority, first.Status)
	}
	if first.Repos == nil || first.Metadata == nil || first.Tasks == nil {
		t.Fatalf("nil collections in %+v", first)
	}
	second := mustGoal(t, a, "Second")
	if second.ID != "GOAL-0002" {
		t.Fatalf("second id = %s", second.ID)
	}
	if !n.has("goal://GOAL-0001") || !n.has("goals://summary") {
		t.Fatalf("notifications = %v", n.uris)
	}

	tests := []struct {
		name string
		spec GoalSpec
		want string
	}{
		{name: "blank", spec: GoalSpec{Description: "   "}, want: "description is required"},
		{name: "priority", spec: GoalSpec{Description: "x", Priority: "urgent"}, want: "priority must be one of: high, medium, low"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.CreateGoal(ctx, tt.spec)
			if apperrors.CodeOf(err) != apperrors.CodeValidation {
				t.Fatalf("err = %v, want validation", err)
			}
			if err.Error() != tt.want {
				t.Fatalf("message = %q, want %q", err.Error(), tt.want)
			}
		})
	}
}

func TestBreakDownResolvesDependencies(t *testing.T) {
	a, _ := newTestAgent(t)
	goal := mustGoal(t, a, "Release")

	out := mustBreakDown(t, a, goal.ID,
		SubtaskSpec{Description: "design"},
		SubtaskSpec{Description: "build", Dependencies: []string{"#1"}, Priority: PriorityHigh, Tools: []string{"github"}},
	)
	if out.Status != GoalActive {
		t.Fatalf("status after breakdown = %s, want active", out.Status)
	}
	if len(out.TaskDetails) != 2 {
		t.Fatalf("task details = %d", len(out.TaskDetails))
	}
	build := out.TaskDetails[1]
	if build.ID != "TASK-0002" || len(build.Dependencies) != 1 || build.Dependencies[0] != "TASK-0001" {
		t.Fatalf("build task = %+v", build)
	}
	if build.Type != "general" || build.AssignedTools[0] != "github" {
		t.Fatalf("build task fields = %+v", build)
	}

	again := mustBreakDown(t, a, goal.ID,
		SubtaskSpec{Description: "release", Dependencies: []string{"TASK-0002", "TASK-0002"}},
	)
	last := again.TaskDetails[2]
	if last.ID != "TASK-0003" || len(last.Dependencies) != 1 {
		t.Fatalf("follow-up task = %+v", last)
	}
	if again.Progress.Total != 3 {
		t.Fatalf("progress = %+v", again.Progress)
	}
}

func TestBreakDownRejectsBadInput(t *testing.T) {
	a, _ := newTestAgent(t)
	ctx := context.Background()
	goal := mustGoal(t, a, "Release")
	other := mustGoal(t, a, "Other")
	mustBreakDown(t, a, other.ID, SubtaskSpec{Description: "elsewhere"})

	tests := []struct {
		name     string
		goalID   string
		subtasks []SubtaskSpec
		code     apperrors.Code
	}{
		{name: "empty", goalID: goal.ID, code: apperrors.CodeValidation},
		{name: "missing goal", goalID: "GOAL-9999", subtasks: []SubtaskSpec{{Description: "x"}}, code: apperrors.CodeNotFound},
		{name: "blank description", goalID: goal.ID, subtasks: []SubtaskSpec{{Description: "ok"}, {Description: " "}}, code: apperrors.CodeValidation},
		{name: "bad priority", goalID: goal.ID, subtasks: []SubtaskSpec{{Description: "x", Priority: "p0"}}, code: apperrors.CodeValidation},
		{name: "forward reference", goalID: goal.ID, subtasks: []SubtaskSpec{{Description: "x", Dependencies: []string{"#1"}}}, code: apperrors.CodeValidation},
		{name: "other goal task", goalID: goal.ID, subtasks: []SubtaskSpec{{Description: "x", Dependencies: []string{"TASK-0001"}}}, code: apperrors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.BreakDown(ctx, tt.goalID, tt.subtasks)
			if code := apperrors.CodeOf(err); code != tt.code {
				t.Fatalf("code = %s (%v), want %s", code, err, tt.code)
			}
		})
	}

	got, err := a.GetGoal(ctx, goal.ID)
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	if len(got.Tasks) != 0 || got.Status != GoalPlanning {
		t.Fatalf("rejected breakdowns left state behind: %+v", got)
	}
}

func TestGoalStatusFollowsTasks(t *testing.T) {
	a, _ := newTestAgent(t)
	ctx := context.Background()
	goal := mustGoal(t, a, "Release")
	mustBreakDown(t, a, goal.ID, SubtaskSpec{Description: "a"}, SubtaskSpec{Description: "b"})

	steps := []struct {
		task, status, want string
	}{
		{"TASK-0001", TaskCompleted, GoalActive},
		{"TASK-0002", TaskFailed, GoalFailed},
		{"TASK-0002", TaskInProgress, GoalActive},
		{"TASK-0002", TaskCompleted, GoalCompleted},
	}
	for _, step := range steps {
		if _, err := a.UpdateTaskStatus(ctx, step.task, step.status, nil); err != nil {
			t.Fatalf("update %s: %v", step.task, err)
		}
		got, err := a.GetGoal(ctx, goal.ID)
		if err != nil {
			t.Fatalf("get goal: %v", err)
		}
		if got.Status != step.want {
			t.Fatalf("after %s=%s goal status = %s, want %s", step.task, step.status, got.Status, step.want)
		}
	}

	cancelled := GoalCancelled
	if _, err := a.UpdateGoal(ctx, goal.ID, GoalPatch{Status: &cancelled}); err != nil {
		t.Fatalf("cancel goal: %v", err)
	}
	if _, err := a.UpdateTaskStatus(ctx, "TASK-0001", TaskPending, nil); err != nil {
		t.Fatalf("reopen task: %v", err)
	}
	got, err := a.GetGoal(ctx, goal.ID)
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	if got.Status != GoalCancelled {
		t.Fatalf("cancelled goal changed to %s", got.Status)
	}
}

func TestUpdateTaskStatus(t *testing.T) {
	a, _ := newTestAgent(t)
	ctx := context.Background()
	goal := mustGoal(t, a, "Release")
	mustBreakDown(t, a, goal.ID, SubtaskSpec{Description: "a"})

	task, err := a.UpdateTaskStatus(ctx, "TASK-0001", TaskCompleted, json.RawMessage(`{"pr":7}`))
	if err != nil {
		t.Fatalf("complete task: %v", err)
	}
	if task.CompletedAt == "" {
		t.Fatal("completed task has no completed_at")
	}
	result, ok := task.Result.(map[string]any)
	if !ok || result["pr"] != float64(7) {
		t.Fatalf("result = %#v", task.Result)
	}

	reopened, err := a.UpdateTaskStatus(ctx, "TASK-0001", TaskInProgress, nil)
	if err != nil {
		t.Fatalf("reopen task: %v", err)
	}
	if reopened.CompletedAt != "" {
		t.Fatalf("reopened task kept completed_at %s", reopened.CompletedAt)
	}
	if reopened.Result == nil {
		t.Fatal("status change without result dropped the stored result")
	}

	_, err = a.UpdateTaskStatus(ctx, "TASK-0001", "done", nil)
	if apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("bad status err = %v", err)
	}
	_, err = a.UpdateTaskStatus(ctx, "TASK-0404", TaskCompleted, nil)
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("missing task err = %v", err)
	}
}

func TestNextTasks(t *testing.T) {
	a, _ := newTestAgent(t)
	ctx := context.Background()
	goal := mustGoal(t, a, "Release")
	mustBreakDown(t, a, goal.ID,
		SubtaskSpec{Description: "low root", Priority: PriorityLow},
		SubtaskSpec{Description: "high root", Priority: PriorityHigh},
		SubtaskSpec{Description: "child", Dependencies: []string{"#1"}},
		SubtaskSpec{Description: "medium root"},
	)

	next, err := a.NextTasks(ctx, goal.ID)
	if err != nil {
		t.Fatalf("next tasks: %v", err)
	}
	if got := ids(next); got != "TASK-0002,TASK-0004,TASK-0001" {
		t.Fatalf("next = %s", got)
	}

	if _, err := a.UpdateTaskStatus(ctx, "TASK-0001", TaskCompleted, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	next, err = a.NextTasks(ctx, "")
	if err != nil {
		t.Fatalf("next tasks: %v", err)
	}
	if got := ids(next); got != "TASK-0002,TASK-0003,TASK-0004" {
		t.Fatalf("next after completion = %s", got)
	}

	if _, err := a.NextTasks(ctx, "GOAL-0404"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("missing goal err = %v", err)
	}
}

func TestExecutionPlan(t *testing.T) {
	a, _ := newTestAgent(t)
	ctx := context.Background()
	goal := mustGoal(t, a, "Release")

	empty, err := a.ExecutionPlan(ctx, goal.ID)
	if err != nil {
		t.Fatalf("empty plan: %v", err)
	}
	if empty.TotalTasks != 0 || empty.Message == "" || empty.Phases == nil {
		t.Fatalf("empty plan = %+v", empty)
	}

	mustBreakDown(t, a, goal.ID,
		SubtaskSpec{Description: "schema"},
		SubtaskSpec{Description: "api", Dependencies: []string{"#1"}},
		SubtaskSpec{Description: "ui", Dependencies: []string{"#1"}, Priority: PriorityHigh},
		SubtaskSpec{Description: "docs"},
		SubtaskSpec{Description: "release", Dependencies: []string{"#2", "#3"}},
	)
	plan, err := a.ExecutionPlan(ctx, goal.ID)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.TotalTasks != 5 || plan.TotalPhases != 3 {
		t.Fatalf("plan totals = %d tasks, %d phases", plan.TotalTasks, plan.TotalPhases)
	}
	want := []string{"TASK-0001,TASK-0004", "TASK-0003,TASK-0002", "TASK-0005"}
	for i, phase := range plan.Phases {
		if got := ids(phase.Tasks); got != want[i] {
			t.Fatalf("phase %d = %s, want %s", i+1, got, want[i])
		}
		if phase.ParallelPossible != (phase.TaskCount > 1) {
			t.Fatalf("phase %d parallel flag = %v", i+1, phase.ParallelPossible)
		}
	}
}

func TestBuildPhasesRejectsCyclesAndUnknownDependencies(t *testing.T) {
	task := func(id string, deps ...string) storage.Task {
		return storage.Task{ID: id, Priority: PriorityMedium, Dependencies: deps}
	}

	_, err := buildPhases([]storage.Task{task("A", "C"), task("B", "A"), task("C", "B"), task("D")})
	if apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("cycle err = %v", err)
	}
	payload := apperrors.ToPayload(err)
	if fmt.Sprint(payload.Context["cycle_tasks"]) != "[A B C]" {
		t.Fatalf("cycle context = %v", payload.Context)
	}

	_, err = buildPhases([]storage.Task{task("A", "GONE")})
	if apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("unknown dependency err = %v", err)
	}
	if !strings.Contains(fmt.Sprint(apperrors.ToPayload(err).Context), "GONE") {
		t.Fatalf("unknown dependency context = %v", apperrors.ToPayload(err).Context)
	}
}

func TestDeleteTaskAndGoal(t *testing.T) {
	a, _ := newTestAgent(t)
	ctx := context.Background()
	goal := mustGoal(t, a, "Release")
	mustBreakDown(t, a, goal.ID,
		SubtaskSpec{Description: "a"},
		SubtaskSpec{Description: "b", Dependencies: []string{"#1"}},
		SubtaskSpec{Description: "c"},
	)

	deleted, err := a.DeleteTask(ctx, "TASK-0001")
	if err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if deleted.GoalID != goal.ID || len(deleted.DependentTasks) != 1 || deleted.DependentTasks[0] != "TASK-0002" {
		t.Fatalf("deleted task = %+v", deleted)
	}
	if _, err := a.DeleteTask(ctx, "TASK-0001"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("second delete err = %v", err)
	}
	if _, err := a.ExecutionPlan(ctx, goal.ID); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("plan with dangling dependency err = %v", err)
	}

	gone, err := a.DeleteGoal(ctx, goal.ID)
	if err != nil {
		t.Fatalf("delete goal: %v", err)
	}
	if gone.DeletedTasks != 2 || strings.Join(gone.TaskIDs, ",") != "TASK-0002,TASK-0003" {
		t.Fatalf("deleted goal = %+v", gone)
	}
	if _, err := a.GetTask(ctx, "TASK-0003"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("task survived goal deletion: %v", err)
	}
	if _, err := a.DeleteGoal(ctx, goal.ID); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("second goal delete err = %v", err)
	}
}

func TestBatchOperations(t *testing.T) {
	a, _ := newTestAgent(t)
	ctx := context.Background()
	goal := mustGoal(t, a, "Release")
	mustBreakDown(t, a, goal.ID, SubtaskSpec{Description: "a"}, SubtaskSpec{Description: "b"}, SubtaskSpec{Description: "c"})

	res := a.BatchUpdate(ctx, []TaskUpdate{
		{TaskID: "TASK-0001", Status: TaskCompleted},
		{TaskID: "TASK-0002", Status: TaskInProgress, Result: json.RawMessage(`"started"`)},
		{TaskID: "TASK-0404", Status: TaskCompleted},
		{TaskID: "TASK-0003", Status: "finished"},
		{Status: TaskCompleted},
	})
	if res.Total != 5 || len(res.Successful) != 2 || len(res.Failed) != 3 {
		t.Fatalf("batch update = %+v", res)
	}
	if res.Failed[0].TaskID != "TASK-0404" || !strings.Contains(res.Failed[0].Error, "not found") {
		t.Fatalf("failure = %+v", res.Failed[0])
	}

	got, err := a.BatchGet(ctx, []string{"TASK-0002", "TASK-0404", "TASK-0001"})
	if err != nil {
		t.Fatalf("batch get: %v", err)
	}
	if ids(got.Tasks) != "TASK-0002,TASK-0001" || len(got.NotFound) != 1 || got.Total != 3 {
		t.Fatalf("batch get = %+v", got)
	}
	if got.Tasks[0].Status != TaskInProgress || got.Tasks[0].Result != "started" {
		t.Fatalf("task 2 = %+v", got.Tasks[0])
	}
	if got.Tasks[0].Cache == nil || got.Tasks[0].Cache.Enabled {
		t.Fatalf("cache info = %+v", got.Tasks[0].Cache)
	}
}

func TestSummaryAndStatus(t *testing.T) {
	a, _ := newTestAgent(t)
	ctx := context.Background()
	first := mustGoal(t, a, "first")
	mustGoal(t, a, "second")
	mustBreakDown(t, a, first.ID, SubtaskSpec{Description: "a"}, SubtaskSpec{Description: "b"})
	if _, err := a.UpdateTaskStatus(ctx, "TASK-0001", TaskCompleted, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	summary, err := a.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.TotalGoals != 2 || summary.TotalTasks != 2 {
		t.Fatalf("summary totals = %+v", summary)
	}
	if summary.GoalsByStatus[GoalActive] != 1 || summary.GoalsByStatus[GoalPlanning] != 1 {
		t.Fatalf("goals by status = %v", summary.GoalsByStatus)
	}
	if summary.TasksByStatus[TaskCompleted] != 1 || summary.TasksByStatus[TaskPending] != 1 {
		t.Fatalf("tasks by status = %v", summary.TasksByStatus)
	}
	if summary.Goals[0].ID != "GOAL-0002" || summary.Goals[1].Progress.Percent != 50 {
		t.Fatalf("summary goals = %+v", summary.Goals)
	}

	status, err := a.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Goals != 2 || status.Tasks != 2 || status.Store != StoreSQLite || !status.Healthy || status.Workers != 4 {
		t.Fatalf("status = %+v", status)
	}

	if _, err := a.ListGoals(ctx, "done", ""); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("bad status filter err = %v", err)
	}
	active, err := a.ListGoals(ctx, GoalActive, "")
	if err != nil || len(active) != 1 || active[0].ID != first.ID {
		t.Fatalf("active goals = %+v (%v)", active, err)
	}
}

func TestPostgresConnString(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: 5433, Database: "goals", User: "agent", Password: "p@ss word", SSLMode: "require"}
	if got, want := cfg.ConnString(), "postgres://agent:p%40ss%20word@db:5433/goals?sslmode=require"; got != want {
		t.Fatalf("conn string = %q, want %q", got, want)
	}
	cfg.DSN = "postgres://override"
	if got := cfg.ConnString(); got != "postgres://override" {
		t.Fatalf("dsn override = %q", got)
	}
}

func ids(tasks []Task) string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return strings.Join(out, ",")
}
