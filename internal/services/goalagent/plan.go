package goalagent

import (
	"sort"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage"
)

// Phase is one step of an execution plan. Its tasks only depend on tasks
// in earlier phases.
type Phase struct {
	Phase            int    `json:"phase"`
	Tasks            []Task `json:"tasks"`
	TaskCount        int    `json:"task_count"`
	ParallelPossible bool   `json:"parallel_execution_possible"`
}

// Plan orders a goal's tasks into phases.
type Plan struct {
	GoalID          string  `json:"goal_id"`
	GoalDescription string  `json:"goal_description"`
	TotalTasks      int     `json:"total_tasks"`
	TotalPhases     int     `json:"total_phases"`
	Phases          []Phase `json:"execution_phases"`
	Message         string  `json:"message,omitempty"`
}

// buildPhases layers tasks with Kahn's algorithm. Within a phase tasks are
// ordered by priority and then id.
func buildPhases(tasks []storage.Task) ([]Phase, error) {
	byID := make(map[string]storage.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	indegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))
	unknown := map[string][]string{}
	for _, t := range tasks {
		indegree[t.ID] += 0
		for _, dep := range t.Dependencies {
			if _, ok := byID[dep]; !ok {
				unknown[t.ID] = append(unknown[t.ID], dep)
				continue
			}
			indegree[t.ID]++
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}
	if len(unknown) > 0 {
		return nil, apperrors.WithMetadata(apperrors.CodeValidation,
			"tasks depend on tasks outside this goal",
			map[string]any{"unknown_dependencies": unknown})
	}

	var ready []string
	for id, n := range indegree {
		if n == 0 {
			ready = append(ready, id)
		}
	}

	phases := []Phase{}
	placed := 0
	for len(ready) > 0 {
		sortByPriority(ready, byID)
		phase := Phase{Phase: len(phases) + 1, Tasks: make([]Task, 0, len(ready))}
		var next []string
		for _, id := range ready {
			phase.Tasks = append(phase.Tasks, taskView(byID[id]))
			for _, child := range dependents[id] {
				indegree[child]--
				if indegree[child] == 0 {
					next = append(next, child)
				}
			}
		}
		phase.TaskCount = len(phase.Tasks)
		phase.ParallelPossible = phase.TaskCount > 1
		phases = append(phases, phase)
		placed += phase.TaskCount
		ready = next
	}

	if placed < len(tasks) {
		var cycle []string
		for id, n := range indegree {
			if n > 0 {
				cycle = append(cycle, id)
			}
		}
		sort.Strings(cycle)
		return nil, apperrors.WithMetadata(apperrors.CodeValidation,
			"circular dependency between tasks",
			map[string]any{"cycle_tasks": cycle})
	}
	return phases, nil
}

func sortByPriority(ids []string, byID map[string]storage.Task) {
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := priorityRank(byID[ids[i]].Priority), priorityRank(byID[ids[j]].Priority)
		if ri != rj {
			return ri < rj
		}
		return ids[i] < ids[j]
	})
}

func sortTasks(tasks []storage.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		ri, rj := priorityRank(tasks[i].Priority), priorityRank(tasks[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return tasks[i].ID < tasks[j].ID
	})
}
