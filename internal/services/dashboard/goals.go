package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/services/goalagent"
	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage"
)

const (
	recentGoals = 5
	activeTasks = 10
)

// GoalsSummary counts goals and tasks by status.
type GoalsSummary struct {
	TotalGoals    int            `json:"total_goals"`
	TotalTasks    int            `json:"total_tasks"`
	GoalsByStatus map[string]int `json:"goals_by_status"`
	TasksByStatus map[string]int `json:"tasks_by_status"`
}

func emptySummary() GoalsSummary {
	return GoalsSummary{GoalsByStatus: map[string]int{}, TasksByStatus: map[string]int{}}
}

func (s *Server) agent() (*goalagent.Agent, error) {
	if s.goals == nil {
		e := apperrors.New(apperrors.CodeNotConfigured, "Goal store not available")
		if s.goalsErr != nil {
			e.Metadata = map[string]any{"detail": s.goalsErr.Error()}
		}
		return nil, e
	}
	return s.goals, nil
}

func (s *Server) goalsSummary(ctx context.Context) (GoalsSummary, error) {
	agent, err := s.agent()
	if err != nil {
		return emptySummary(), err
	}
	sum, err := agent.Summary(ctx)
	if err != nil {
		return emptySummary(), err
	}
	return GoalsSummary{
		TotalGoals:    sum.TotalGoals,
		TotalTasks:    sum.TotalTasks,
		GoalsByStatus: sum.GoalsByStatus,
		TasksByStatus: sum.TasksByStatus,
	}, nil
}

// goalsOverview degrades to an empty summary with an error field instead of
// failing, so the dashboard renders without a goal store.
func (s *Server) goalsOverview(c *fiber.Ctx) error {
	ctx := c.UserContext()
	empty := fiber.Map{
		"summary":      emptySummary(),
		"recent_goals": []goalagent.Goal{},
		"active_tasks": []goalagent.Task{},
	}
	agent, err := s.agent()
	if err != nil {
		empty["error"] = err.Error()
		return c.JSON(empty)
	}
	sum, err := agent.Summary(ctx)
	if err != nil {
		empty["error"] = err.Error()
		return c.JSON(empty)
	}
	tasks, err := agent.ListTasks(ctx, storage.TaskFilter{})
	if err != nil {
		empty["error"] = err.Error()
		return c.JSON(empty)
	}

	recent := append([]goalagent.Goal{}, sum.Goals...)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].UpdatedAt > recent[j].UpdatedAt })
	if len(recent) > recentGoals {
		recent = recent[:recentGoals]
	}
	active := []goalagent.Task{}
	for _, t := range tasks {
		if t.Status == goalagent.TaskInProgress || t.Status == goalagent.TaskPending {
			active = append(active, t)
			if len(active) == activeTasks {
				break
			}
		}
	}
	return c.JSON(fiber.Map{
		"summary": GoalsSummary{
			TotalGoals:    sum.TotalGoals,
			TotalTasks:    sum.TotalTasks,
			GoalsByStatus: sum.GoalsByStatus,
			TasksByStatus: sum.TasksByStatus,
		},
		"recent_goals": recent,
		"active_tasks": active,
		"source":       s.goalStore,
	})
}

func (s *Server) listGoals(c *fiber.Ctx) error {
	agent, err := s.agent()
	if err != nil {
		return err
	}
	goals, err := agent.ListGoals(c.UserContext(), c.Query("status"), c.Query("priority"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"goals": goals, "count": len(goals), "source": s.goalStore})
}

func (s *Server) listTasks(c *fiber.Ctx) error {
	agent, err := s.agent()
	if err != nil {
		return err
	}
	tasks, err := agent.ListTasks(c.UserContext(), storage.TaskFilter{
		GoalID:   c.Query("goal_id"),
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"tasks": tasks, "count": len(tasks), "source": s.goalStore})
}

func (s *Server) goalDetails(c *fiber.Ctx) error {
	agent, err := s.agent()
	if err != nil {
		return err
	}
	goal, err := agent.GetGoal(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	tasks := goal.TaskDetails
	if tasks == nil {
		tasks = []goalagent.Task{}
	}
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].CreatedAt < tasks[j].CreatedAt })
	byStatus := map[string]int{}
	for _, t := range tasks {
		byStatus[t.Status]++
	}
	goal.TaskDetails = nil
	goal.Cache = nil
	return c.JSON(fiber.Map{
		"goal":            goal,
		"tasks":           tasks,
		"task_count":      len(tasks),
		"tasks_by_status": byStatus,
		"source":          s.goalStore,
	})
}

func (s *Server) deleteGoal(c *fiber.Ctx) error {
	agent, err := s.agent()
	if err != nil {
		return err
	}
	res, err := agent.DeleteGoal(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":             true,
		"deleted_goal_id":     res.DeletedGoalID,
		"deleted_tasks_count": res.DeletedTasks,
		"message":             fmt.Sprintf("Goal %s and %d task(s) deleted successfully", res.DeletedGoalID, res.DeletedTasks),
	})
}

func (s *Server) deleteTask(c *fiber.Ctx) error {
	agent, err := s.agent()
	if err != nil {
		return err
	}
	res, err := agent.DeleteTask(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":         true,
		"deleted_task_id": res.DeletedTaskID,
		"goal_id":         res.GoalID,
		"dependent_tasks": res.DependentTasks,
		"message":         fmt.Sprintf("Task %s deleted successfully", res.DeletedTaskID),
	})
}

type createGoalRequest struct {
	Description string         `json:"description" validate:"required"`
	Priority    string         `json:"priority" validate:"omitempty,oneof=high medium low"`
	Repos       []string       `json:"repos"`
	Metadata    map[string]any `json:"metadata"`
}

func (s *Server) createGoal(c *fiber.Ctx) error {
	var req createGoalRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.New(apperrors.CodeJSON, "request body must be a JSON goal")
	}
	if err := s.validate.Struct(req); err != nil {
		if req.Description == "" {
			return apperrors.Validation("description is required")
		}
		return apperrors.Validation("Invalid priority. Must be high, medium, or low")
	}
	agent, err := s.agent()
	if err != nil {
		return err
	}
	goal, err := agent.CreateGoal(c.UserContext(), goalagent.GoalSpec{
		Description: req.Description,
		Priority:    req.Priority,
		Repos:       req.Repos,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"goal":    goal,
		"message": fmt.Sprintf("Goal %s created successfully", goal.ID),
	})
}

type addTasksRequest struct {
	Subtasks []goalagent.SubtaskSpec `json:"subtasks"`
}

func (s *Server) addTasks(c *fiber.Ctx) error {
	var req addTasksRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.New(apperrors.CodeJSON, "request body must be JSON with a subtasks array")
	}
	if len(req.Subtasks) == 0 {
		return apperrors.Validation("At least one task is required")
	}
	agent, err := s.agent()
	if err != nil {
		return err
	}
	goalID := c.Params("id")
	goal, err := agent.BreakDown(c.UserContext(), goalID, req.Subtasks)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"goal_id":     goalID,
		"tasks_added": len(req.Subtasks),
		"goal_status": goal.Status,
		"message":     fmt.Sprintf("Added %d task(s) to %s", len(req.Subtasks), goalID),
	})
}

type taskStatusRequest struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
}

func (s *Server) updateTaskStatus(c *fiber.Ctx) error {
	var req taskStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.New(apperrors.CodeJSON, "request body must be JSON with a status")
	}
	agent, err := s.agent()
	if err != nil {
		return err
	}
	if string(req.Result) == "null" {
		req.Result = nil
	}
	id := c.Params("id")
	task, err := agent.UpdateTaskStatus(c.UserContext(), id, req.Status, req.Result)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"task":    task,
		"message": fmt.Sprintf("Task %s updated to %s", id, req.Status),
	})
}
