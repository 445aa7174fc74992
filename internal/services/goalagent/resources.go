package goalagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpsuite/mcpsuite/internal/services/mcp/domain"
)

// GoalResourceTemplate defines the goal://{goal_id} resource.
func GoalResourceTemplate() *mcp.ResourceTemplate {
	return &mcp.ResourceTemplate{
		Name:        "goal",
		Title:       "Goal",
		Description: "A goal with its tasks and progress. URI format: goal://{goal_id}",
		MIMEType:    "application/json",
		URITemplate: "goal://{goal_id}",
	}
}

// SummaryResource defines the goals://summary resource.
func SummaryResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "goals_summary",
		Title:       "Goals summary",
		Description: "Every goal with its progress, plus goal and task counts by status",
		MIMEType:    "application/json",
		URI:         summaryURI,
	}
}

func (s *server) readGoal(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri, err := domain.ResourceURI(req)
	if err != nil {
		return nil, err
	}
	id, ok := strings.CutPrefix(uri, goalURIPrefix)
	if !ok || strings.TrimSpace(id) == "" || strings.Contains(id, "/") {
		return nil, fmt.Errorf("goal id is required; use URI format goal://{goal_id}")
	}
	agent, err := s.get()
	if err != nil {
		return nil, err
	}
	goal, err := agent.GetGoal(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read goal %s: %w", id, err)
	}
	goal.Cache = nil
	return domain.JSONResource(uri, goal)
}

func (s *server) readSummary(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri, err := domain.ResourceURI(req)
	if err != nil {
		return nil, err
	}
	agent, err := s.get()
	if err != nil {
		return nil, err
	}
	summary, err := agent.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("read goals summary: %w", err)
	}
	return domain.JSONResource(uri, summary)
}
