// Package goalagent implements the goal agent MCP server: goals broken
// down into dependent tasks, persisted in a pluggable store.
package goalagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage"
)

const (
	goalURIPrefix = "goal://"
	summaryURI    = "goals://summary"
)

// GoalURI is the resource URI of one goal.
func GoalURI(id string) string { return goalURIPrefix + id }

// Options tune an Agent.
type Options struct {
	Logger zerolog.Logger
	// Workers bounds batch operations. Defaults to 4.
	Workers int
	// StoreKind and CacheEnabled are reported by Status.
	StoreKind    string
	CacheEnabled bool
	// Notify is called with each resource URI a write changed.
	Notify func(ctx context.Context, uri string)
	Now    func() time.Time
}

// Agent owns goal and task state. Writes are serialized so a task change
// and the goal status it implies land together.
type Agent struct {
	store    storage.Store
	opts     Options
	validate *validator.Validate
	mu       sync.Mutex
}

// New wraps store.
func New(store storage.Store, opts Options) *Agent {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Agent{store: store, opts: opts, validate: validator.New()}
}

// GoalSpec describes a new goal.
type GoalSpec struct {
	Description string         `json:"description" validate:"required"`
	Priority    string         `json:"priority,omitempty" validate:"omitempty,oneof=high medium low"`
	Repos       []string       `json:"repos,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SubtaskSpec describes one task added by BreakDown. Dependencies name
// existing task ids of the goal, or "#N" for the Nth subtask of the same
// batch.
type SubtaskSpec struct {
	Description     string   `json:"description" validate:"required"`
	Type            string   `json:"type,omitempty"`
	Priority        string   `json:"priority,omitempty" validate:"omitempty,oneof=high medium low"`
	Dependencies    []string `json:"dependencies,omitempty"`
	Repo            string   `json:"repo,omitempty"`
	JiraTicket      string   `json:"jira_ticket,omitempty"`
	EstimatedEffort string   `json:"estimated_effort,omitempty"`
	Tools           []string `json:"tools,omitempty"`
}

// GoalPatch changes selected goal fields. Nil fields are left alone.
type GoalPatch struct {
	Description *string
	Priority    *string
	Status      *string
	Repos       []string
	Metadata    map[string]any
}

// TaskUpdate is one entry of a batch status update.
type TaskUpdate struct {
	TaskID string          `json:"task_id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
}

func (a *Agent) check(v any) error {
	err := a.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.Field())
		if fe.Tag() == "oneof" {
			return apperrors.Validation("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
		}
		return apperrors.Validation("%s is %s", field, fe.Tag())
	}
	return apperrors.Validation("%s", err.Error())
}

func notFound(kind, id string) error {
	return apperrors.NotFound("%s %s not found", kind, id)
}

func (a *Agent) storeErr(kind, id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return notFound(kind, id)
	}
	return err
}

func (a *Agent) notify(ctx context.Context, goalIDs ...string) {
	if a.opts.Notify == nil {
		return
	}
	for _, id := range goalIDs {
		a.opts.Notify(ctx, GoalURI(id))
	}
	a.opts.Notify(ctx, summaryURI)
}

// CreateGoal validates spec and stores a new goal in planning status.
func (a *Agent) CreateGoal(ctx context.Context, spec GoalSpec) (Goal, error) {
	spec.Description = strings.TrimSpace(spec.Description)
	if err := a.check(spec); err != nil {
		return Goal{}, err
	}
	if spec.Priority == "" {
		spec.Priority = PriorityMedium
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	seq, err := a.store.NextIDs(ctx, storage.GoalSequence, 1)
	if err != nil {
		return Goal{}, err
	}
	now := a.opts.Now().UTC()
	goal := storage.Goal{
		ID:          fmt.Sprintf("GOAL-%04d", seq),
		Description: spec.Description,
		Priority:    spec.Priority,
		Status:      GoalPlanning,
		Repos:       nonNil(spec.Repos),
		Metadata:    spec.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.CreateGoal(ctx, goal); err != nil {
		return Goal{}, err
	}
	a.opts.Logger.Info().Str("goal_id", goal.ID).Str("priority", goal.Priority).Msg("goal created")
	a.notify(ctx, goal.ID)
	return goalView(goal, nil), nil
}

// BreakDown adds subtasks to a goal. All subtasks are stored or none.
func (a *Agent) BreakDown(ctx context.Context, goalID string, subtasks []SubtaskSpec) (Goal, error) {
	if len(subtasks) == 0 {
		return Goal{}, apperrors.Validation("at least one subtask is required")
	}
	for i := range subtasks {
		subtasks[i].Description = strings.TrimSpace(subtasks[i].Description)
		if err := a.check(subtasks[i]); err != nil {
			return Goal{}, apperrors.WithMetadata(apperrors.CodeValidation,
				fmt.Sprintf("subtask %d: %v", i+1, err),
				map[string]any{"subtask": i + 1})
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	goal, err := a.store.GetGoal(ctx, goalID)
	if err != nil {
		return Goal{}, a.storeErr("goal", goalID, err)
	}
	existing, err := a.store.ListTasks(ctx, storage.TaskFilter{GoalID: goalID})
	if err != nil {
		return Goal{}, err
	}
	known := make(map[string]bool, len(existing))
	for _, t := range existing {
		known[t.ID] = true
	}

	first, err := a.store.NextIDs(ctx, storage.TaskSequence, len(subtasks))
	if err != nil {
		return Goal{}, err
	}
	ids := make([]string, len(subtasks))
	for i := range subtasks {
		ids[i] = fmt.Sprintf("TASK-%04d", first+int64(i))
	}

	now := a.opts.Now().UTC()
	tasks := make([]storage.Task, 0, len(subtasks))
	for i, spec := range subtasks {
		deps, err := resolveDependencies(spec.Dependencies, i, ids, known)
		if err != nil {
			return Goal{}, err
		}
		task := storage.Task{
			ID:              ids[i],
			GoalID:          goalID,
			Description:     spec.Description,
			Type:            spec.Type,
			Priority:        spec.Priority,
			Status:          TaskPending,
			Dependencies:    deps,
			Repo:            spec.Repo,
			JiraTicket:      spec.JiraTicket,
			EstimatedEffort: spec.EstimatedEffort,
			AssignedTools:   nonNil(spec.Tools),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if task.Type == "" {
			task.Type = "general"
		}
		if task.Priority == "" {
			task.Priority = PriorityMedium
		}
		tasks = append(tasks, task)
	}

	if err := a.store.CreateTasks(ctx, tasks); err != nil {
		return Goal{}, err
	}
	all := append(existing, tasks...)
	goal, err = a.syncGoalStatus(ctx, goal, all)
	if err != nil {
		return Goal{}, err
	}
	a.opts.Logger.Info().Str("goal_id", goalID).Int("tasks", len(tasks)).Msg("goal broken down")
	a.notify(ctx, goalID)
	out := goalView(goal, all)
	out.TaskDetails = taskViews(all)
	return out, nil
}

func resolveDependencies(raw []string, index int, batch []string, known map[string]bool) ([]string, error) {
	deps := make([]string, 0, len(raw))
	for _, dep := range raw {
		dep = strings.TrimSpace(dep)
		if dep == "" {
			continue
		}
		if ref, ok := strings.CutPrefix(dep, "#"); ok {
			n, err := strconv.Atoi(ref)
			if err != nil || n < 1 || n > index {
				return nil, apperrors.WithMetadata(apperrors.CodeValidation,
					fmt.Sprintf("subtask %d: dependency %s must name an earlier subtask", index+1, dep),
					map[string]any{"subtask": index + 1, "dependency": dep})
			}
			dep = batch[n-1]
		} else if !known[dep] {
			return nil, apperrors.WithMetadata(apperrors.CodeValidation,
				fmt.Sprintf("subtask %d: dependency %s is not a task of this goal", index+1, dep),
				map[string]any{"subtask": index + 1, "dependency": dep})
		}
		if !slices.Contains(deps, dep) {
			deps = append(deps, dep)
		}
	}
	return deps, nil
}

// syncGoalStatus derives the goal status from its tasks. Cancelled goals
// keep their status.
func (a *Agent) syncGoalStatus(ctx context.Context, goal storage.Goal, tasks []storage.Task) (storage.Goal, error) {
	status := deriveGoalStatus(goal.Status, tasks)
	if status == goal.Status {
		return goal, nil
	}
	a.opts.Logger.Info().Str("goal_id", goal.ID).Str("from", goal.Status).Str("to", status).Msg("goal status changed")
	goal.Status = status
	goal.UpdatedAt = a.opts.Now().UTC()
	if err := a.store.UpdateGoal(ctx, goal); err != nil {
		return storage.Goal{}, err
	}
	return goal, nil
}

func deriveGoalStatus(current string, tasks []storage.Task) string {
	if current == GoalCancelled {
		return current
	}
	if len(tasks) == 0 {
		return GoalPlanning
	}
	var completed, failed, open int
	for _, t := range tasks {
		switch t.Status {
		case TaskCompleted:
			completed++
		case TaskFailed:
			failed++
		case TaskPending, TaskInProgress:
			open++
		}
	}
	switch {
	case completed == len(tasks):
		return GoalCompleted
	case failed > 0 && open == 0:
		return GoalFailed
	default:
		return GoalActive
	}
}

// GetGoal returns a goal with its task details and cache status.
func (a *Agent) GetGoal(ctx context.Context, id string) (Goal, error) {
	goal, status, err := a.readGoal(ctx, id)
	if err != nil {
		return Goal{}, err
	}
	tasks, err := a.store.ListTasks(ctx, storage.TaskFilter{GoalID: id})
	if err != nil {
		return Goal{}, err
	}
	out := goalView(goal, tasks)
	out.TaskDetails = taskViews(tasks)
	out.Cache = cacheInfo(status)
	return out, nil
}

func (a *Agent) readGoal(ctx context.Context, id string) (storage.Goal, storage.CacheStatus, error) {
	if cached, ok := a.store.(storage.CachedReader); ok {
		goal, status, err := cached.GetGoalCached(ctx, id)
		return goal, status, a.storeErr("goal", id, err)
	}
	goal, err := a.store.GetGoal(ctx, id)
	return goal, storage.CacheDisabled, a.storeErr("goal", id, err)
}

func (a *Agent) readTask(ctx context.Context, id string) (storage.Task, storage.CacheStatus, error) {
	if cached, ok := a.store.(storage.CachedReader); ok {
		task, status, err := cached.GetTaskCached(ctx, id)
		return task, status, a.storeErr("task", id, err)
	}
	task, err := a.store.GetTask(ctx, id)
	return task, storage.CacheDisabled, a.storeErr("task", id, err)
}

// ListGoals returns goals newest first. Status and priority filters are
// validated.
func (a *Agent) ListGoals(ctx context.Context, status, priority string) ([]Goal, error) {
	if status != "" && !slices.Contains(goalStatuses, status) {
		return nil, apperrors.Validation("status must be one of: %s", strings.Join(goalStatuses, ", "))
	}
	if priority != "" && !slices.Contains(priorities, priority) {
		return nil, apperrors.Validation("priority must be one of: %s", strings.Join(priorities, ", "))
	}
	goals, err := a.store.ListGoals(ctx, storage.GoalFilter{Status: status, Priority: priority})
	if err != nil {
		return nil, err
	}
	tasks, err := a.store.ListTasks(ctx, storage.TaskFilter{})
	if err != nil {
		return nil, err
	}
	byGoal := map[string][]storage.Task{}
	for _, t := range tasks {
		byGoal[t.GoalID] = append(byGoal[t.GoalID], t)
	}
	out := make([]Goal, 0, len(goals))
	for _, g := range goals {
		out = append(out, goalView(g, byGoal[g.ID]))
	}
	return out, nil
}

// ListTasks returns tasks matching the filter in id order.
func (a *Agent) ListTasks(ctx context.Context, filter storage.TaskFilter) ([]Task, error) {
	if filter.Status != "" && !slices.Contains(taskStatuses, filter.Status) {
		return nil, apperrors.Validation("status must be one of: %s", strings.Join(taskStatuses, ", "))
	}
	if filter.Priority != "" && !slices.Contains(priorities, filter.Priority) {
		return nil, apperrors.Validation("priority must be one of: %s", strings.Join(priorities, ", "))
	}
	tasks, err := a.store.ListTasks(ctx, filter)
	if err != nil {
		return nil, err
	}
	return taskViews(tasks), nil
}

// NextTasks returns pending tasks whose dependencies are all completed,
// by priority and then id. An empty goalID covers every goal.
func (a *Agent) NextTasks(ctx context.Context, goalID string) ([]Task, error) {
	if goalID != "" {
		if _, err := a.store.GetGoal(ctx, goalID); err != nil {
			return nil, a.storeErr("goal", goalID, err)
		}
	}
	tasks, err := a.store.ListTasks(ctx, storage.TaskFilter{GoalID: goalID})
	if err != nil {
		return nil, err
	}
	status := make(map[string]string, len(tasks))
	for _, t := range tasks {
		status[t.ID] = t.Status
	}

	var ready []storage.Task
	for _, t := range tasks {
		if t.Status != TaskPending {
			continue
		}
		met := true
		for _, dep := range t.Dependencies {
			s, ok := status[dep]
			if !ok {
				// Cross-goal dependency when goalID is set.
				dt, err := a.store.GetTask(ctx, dep)
				if err == nil {
					s, ok = dt.Status, true
				}
			}
			if !ok || s != TaskCompleted {
				met = false
				break
			}
		}
		if met {
			ready = append(ready, t)
		}
	}
	sortTasks(ready)
	return taskViews(ready), nil
}

// GetTask returns a task with its cache status.
func (a *Agent) GetTask(ctx context.Context, id string) (Task, error) {
	task, status, err := a.readTask(ctx, id)
	if err != nil {
		return Task{}, err
	}
	out := taskView(task)
	out.Cache = cacheInfo(status)
	return out, nil
}

// UpdateTaskStatus sets a task's status and optional result, then derives
// the goal status. Completing a task stamps completed_at.
func (a *Agent) UpdateTaskStatus(ctx context.Context, id, status string, result json.RawMessage) (Task, error) {
	if !slices.Contains(taskStatuses, status) {
		return Task{}, apperrors.WithMetadata(apperrors.CodeValidation,
			fmt.Sprintf("invalid status %q", status),
			map[string]any{"valid_statuses": taskStatuses})
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	task, err := a.store.GetTask(ctx, id)
	if err != nil {
		return Task{}, a.storeErr("task", id, err)
	}
	from := task.Status
	now := a.opts.Now().UTC()
	task.Status = status
	task.UpdatedAt = now
	if len(result) > 0 {
		task.Result = result
	}
	if status == TaskCompleted {
		task.CompletedAt = &now
	} else {
		task.CompletedAt = nil
	}
	if err := a.store.UpdateTask(ctx, task); err != nil {
		return Task{}, a.storeErr("task", id, err)
	}
	a.opts.Logger.Info().Str("task_id", id).Str("from", from).Str("to", status).Msg("task status changed")

	if err := a.resyncGoal(ctx, task.GoalID); err != nil {
		return Task{}, err
	}
	a.notify(ctx, task.GoalID)
	return taskView(task), nil
}

func (a *Agent) resyncGoal(ctx context.Context, goalID string) error {
	goal, err := a.store.GetGoal(ctx, goalID)
	if err != nil {
		return a.storeErr("goal", goalID, err)
	}
	tasks, err := a.store.ListTasks(ctx, storage.TaskFilter{GoalID: goalID})
	if err != nil {
		return err
	}
	_, err = a.syncGoalStatus(ctx, goal, tasks)
	return err
}

// BatchResult reports a batch status update.
type BatchResult struct {
	Successful []BatchSuccess `json:"successful"`
	Failed     []BatchFailure `json:"failed"`
	Total      int            `json:"total"`
}

// BatchSuccess is one applied update.
type BatchSuccess struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// BatchFailure is one rejected update.
type BatchFailure struct {
	TaskID string `json:"task_id"`
	Error  string `json:"error"`
}

// BatchUpdate applies updates concurrently. One failing update does not
// stop the others.
func (a *Agent) BatchUpdate(ctx context.Context, updates []TaskUpdate) BatchResult {
	out := BatchResult{Successful: []BatchSuccess{}, Failed: []BatchFailure{}, Total: len(updates)}
	results := make([]error, len(updates))
	p := pool.New().WithMaxGoroutines(a.opts.Workers)
	for i, u := range updates {
		if strings.TrimSpace(u.TaskID) == "" || strings.TrimSpace(u.Status) == "" {
			results[i] = apperrors.Validation("task_id and status are required")
			continue
		}
		p.Go(func() {
			_, results[i] = a.UpdateTaskStatus(ctx, u.TaskID, u.Status, u.Result)
		})
	}
	p.Wait()

	for i, u := range updates {
		if err := results[i]; err != nil {
			a.opts.Logger.Warn().Err(err).Str("task_id", u.TaskID).Msg("batch task update failed")
			out.Failed = append(out.Failed, BatchFailure{TaskID: u.TaskID, Error: err.Error()})
			continue
		}
		out.Successful = append(out.Successful, BatchSuccess{TaskID: u.TaskID, Status: u.Status})
	}
	return out
}

// BatchTasks reports a batch read.
type BatchTasks struct {
	Tasks    []Task   `json:"tasks"`
	NotFound []string `json:"not_found"`
	Total    int      `json:"total"`
}

// BatchGet reads tasks concurrently, in input order.
func (a *Agent) BatchGet(ctx context.Context, ids []string) (BatchTasks, error) {
	tasks := make([]Task, len(ids))
	errs := make([]error, len(ids))
	p := pool.New().WithMaxGoroutines(a.opts.Workers)
	for i, id := range ids {
		p.Go(func() {
			tasks[i], errs[i] = a.GetTask(ctx, id)
		})
	}
	p.Wait()

	out := BatchTasks{Tasks: []Task{}, NotFound: []string{}, Total: len(ids)}
	for i, id := range ids {
		switch err := errs[i]; {
		case err == nil:
			out.Tasks = append(out.Tasks, tasks[i])
		case apperrors.CodeOf(err) == apperrors.CodeNotFound:
			out.NotFound = append(out.NotFound, id)
		default:
			return BatchTasks{}, err
		}
	}
	return out, nil
}

// DeletedTask reports a task deletion.
type DeletedTask struct {
	DeletedTaskID  string   `json:"deleted_task_id"`
	GoalID         string   `json:"goal_id"`
	DependentTasks []string `json:"dependent_tasks"`
	Success        bool     `json:"success"`
}

// DeleteTask removes a task. Tasks that depended on it are reported and
// keep the dangling reference.
func (a *Agent) DeleteTask(ctx context.Context, id string) (DeletedTask, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	task, err := a.store.GetTask(ctx, id)
	if err != nil {
		return DeletedTask{}, a.storeErr("task", id, err)
	}
	all, err := a.store.ListTasks(ctx, storage.TaskFilter{})
	if err != nil {
		return DeletedTask{}, err
	}
	dependents := []string{}
	for _, t := range all {
		if slices.Contains(t.Dependencies, id) {
			dependents = append(dependents, t.ID)
		}
	}
	if err := a.store.DeleteTask(ctx, id); err != nil {
		return DeletedTask{}, a.storeErr("task", id, err)
	}
	if len(dependents) > 0 {
		a.opts.Logger.Warn().Str("task_id", id).Strs("dependents", dependents).Msg("deleted task had dependents")
	}
	if err := a.resyncGoal(ctx, task.GoalID); err != nil {
		return DeletedTask{}, err
	}
	a.notify(ctx, task.GoalID)
	return DeletedTask{DeletedTaskID: id, GoalID: task.GoalID, DependentTasks: dependents, Success: true}, nil
}

// DeletedGoal reports a goal deletion.
type DeletedGoal struct {
	DeletedGoalID string   `json:"deleted_goal_id"`
	DeletedTasks  int      `json:"deleted_tasks"`
	TaskIDs       []string `json:"task_ids"`
	Success       bool     `json:"success"`
}

// DeleteGoal removes a goal and its tasks.
func (a *Agent) DeleteGoal(ctx context.Context, id string) (DeletedGoal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tasks, err := a.store.ListTasks(ctx, storage.TaskFilter{GoalID: id})
	if err != nil {
		return DeletedGoal{}, err
	}
	if err := a.store.DeleteGoal(ctx, id); err != nil {
		return DeletedGoal{}, a.storeErr("goal", id, err)
	}
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	a.opts.Logger.Info().Str("goal_id", id).Int("tasks", len(ids)).Msg("goal deleted")
	a.notify(ctx, id)
	return DeletedGoal{DeletedGoalID: id, DeletedTasks: len(ids), TaskIDs: ids, Success: true}, nil
}

// UpdateGoal applies patch to a goal.
func (a *Agent) UpdateGoal(ctx context.Context, id string, patch GoalPatch) (Goal, error) {
	if patch.Description != nil && strings.TrimSpace(*patch.Description) == "" {
		return Goal{}, apperrors.Validation("description must not be empty")
	}
	if patch.Priority != nil && !slices.Contains(priorities, *patch.Priority) {
		return Goal{}, apperrors.Validation("priority must be one of: %s", strings.Join(priorities, ", "))
	}
	if patch.Status != nil && !slices.Contains(goalStatuses, *patch.Status) {
		return Goal{}, apperrors.Validation("status must be one of: %s", strings.Join(goalStatuses, ", "))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	goal, err := a.store.GetGoal(ctx, id)
	if err != nil {
		return Goal{}, a.storeErr("goal", id, err)
	}
	if patch.Description != nil {
		goal.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Priority != nil {
		goal.Priority = *patch.Priority
	}
	if patch.Status != nil {
		goal.Status = *patch.Status
	}
	if patch.Repos != nil {
		goal.Repos = patch.Repos
	}
	if patch.Metadata != nil {
		goal.Metadata = patch.Metadata
	}
	goal.UpdatedAt = a.opts.Now().UTC()
	if err := a.store.UpdateGoal(ctx, goal); err != nil {
		return Goal{}, a.storeErr("goal", id, err)
	}
	tasks, err := a.store.ListTasks(ctx, storage.TaskFilter{GoalID: id})
	if err != nil {
		return Goal{}, err
	}
	a.notify(ctx, id)
	return goalView(goal, tasks), nil
}

// ExecutionPlan phases a goal's tasks.
func (a *Agent) ExecutionPlan(ctx context.Context, goalID string) (Plan, error) {
	goal, err := a.store.GetGoal(ctx, goalID)
	if err != nil {
		return Plan{}, a.storeErr("goal", goalID, err)
	}
	tasks, err := a.store.ListTasks(ctx, storage.TaskFilter{GoalID: goalID})
	if err != nil {
		return Plan{}, err
	}
	plan := Plan{GoalID: goalID, GoalDescription: goal.Description, TotalTasks: len(tasks), Phases: []Phase{}}
	if len(tasks) == 0 {
		plan.Message = "No tasks defined for this goal"
		return plan, nil
	}
	phases, err := buildPhases(tasks)
	if err != nil {
		return Plan{}, err
	}
	plan.Phases = phases
	plan.TotalPhases = len(phases)
	return plan, nil
}

// Summary totals goals and tasks by status.
type Summary struct {
	TotalGoals    int            `json:"total_goals"`
	TotalTasks    int            `json:"total_tasks"`
	GoalsByStatus map[string]int `json:"goals_by_status"`
	TasksByStatus map[string]int `json:"tasks_by_status"`
	Goals         []Goal         `json:"goals"`
}

// Summary returns every goal with its progress plus status counts.
func (a *Agent) Summary(ctx context.Context) (Summary, error) {
	goals, err := a.ListGoals(ctx, "", "")
	if err != nil {
		return Summary{}, err
	}
	tasks, err := a.store.ListTasks(ctx, storage.TaskFilter{})
	if err != nil {
		return Summary{}, err
	}
	out := Summary{
		TotalGoals:    len(goals),
		TotalTasks:    len(tasks),
		GoalsByStatus: map[string]int{},
		TasksByStatus: map[string]int{},
		Goals:         goals,
	}
	for _, g := range goals {
		out.GoalsByStatus[g.Status]++
	}
	for _, t := range tasks {
		out.TasksByStatus[t.Status]++
	}
	return out, nil
}

// Status describes the agent and its store.
type Status struct {
	Goals        int64  `json:"goals"`
	Tasks        int64  `json:"tasks"`
	Store        string `json:"store"`
	CacheEnabled bool   `json:"cache_enabled"`
	Workers      int    `json:"max_workers"`
	Healthy      bool   `json:"healthy"`
	Error        string `json:"error,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// Status counts records and probes the store.
func (a *Agent) Status(ctx context.Context) (Status, error) {
	counts, err := a.store.Count(ctx)
	if err != nil {
		return Status{}, err
	}
	out := Status{
		Goals:        counts.Goals,
		Tasks:        counts.Tasks,
		Store:        a.opts.StoreKind,
		CacheEnabled: a.opts.CacheEnabled,
		Workers:      a.opts.Workers,
		Healthy:      true,
		Timestamp:    stamp(a.opts.Now()),
	}
	if err := a.store.Ping(ctx); err != nil {
		out.Healthy = false
		out.Error = err.Error()
	}
	return out, nil
}

// Ping probes the store.
func (a *Agent) Ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}

// Close closes the store.
func (a *Agent) Close() error {
	return a.store.Close()
}
