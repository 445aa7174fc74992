package jira

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
)

const agilePageSize = 50

// Board is an agile board.
type Board struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	ProjectKey string `json:"project_key,omitempty"`
}

// Boards lists boards, optionally filtered by project.
func (c *Client) Boards(ctx context.Context, project string) ([]Board, error) {
	q := url.Values{"maxResults": {strconv.Itoa(agilePageSize)}, "startAt": {"0"}}
	if project != "" {
		q.Set("projectKeyOrId", project)
	}
	var raw struct {
		Values []struct {
			ID       int    `json:"id"`
			Name     string `json:"name"`
			Type     string `json:"type"`
			Location struct {
				ProjectKey string `json:"projectKey"`
			} `json:"location"`
		} `json:"values"`
	}
	if err := c.agile(ctx, http.MethodGet, "/board", q, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]Board, 0, len(raw.Values))
	for _, b := range raw.Values {
		out = append(out, Board{ID: b.ID, Name: b.Name, Type: b.Type, ProjectKey: b.Location.ProjectKey})
	}
	c.logger.Info().Str("project", project).Int("count", len(out)).Msg("retrieved boards")
	return out, nil
}

// Sprint is a board sprint.
type Sprint struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Goal      string `json:"goal,omitempty"`
}

// Sprints lists the sprints of a board in state (active, future or closed).
func (c *Client) Sprints(ctx context.Context, boardID int, state string) ([]Sprint, error) {
	q := url.Values{"state": {state}, "maxResults": {strconv.Itoa(agilePageSize)}}
	var raw struct {
		Values []struct {
			ID        int    `json:"id"`
			Name      string `json:"name"`
			State     string `json:"state"`
			StartDate string `json:"startDate"`
			EndDate   string `json:"endDate"`
			Goal      string `json:"goal"`
		} `json:"values"`
	}
	if err := c.agile(ctx, http.MethodGet, "/board/"+strconv.Itoa(boardID)+"/sprint", q, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]Sprint, 0, len(raw.Values))
	for _, s := range raw.Values {
		out = append(out, Sprint{ID: s.ID, Name: s.Name, State: s.State, StartDate: s.StartDate, EndDate: s.EndDate, Goal: s.Goal})
	}
	return out, nil
}

// AddToSprint moves issues into a sprint.
func (c *Client) AddToSprint(ctx context.Context, sprintID int, keys []string) error {
	if len(keys) == 0 {
		return apperrors.Validation("issue_keys must not be empty")
	}
	if err := c.agile(ctx, http.MethodPost, "/sprint/"+strconv.Itoa(sprintID)+"/issue", nil, map[string]any{"issues": keys}, nil); err != nil {
		return err
	}
	c.logger.Info().Int("sprint", sprintID).Int("issues", len(keys)).Msg("added issues to sprint")
	return nil
}

// SprintPlacement reports where AddToActiveSprint put an issue.
type SprintPlacement struct {
	Success    bool   `json:"success"`
	IssueKey   string `json:"issue_key"`
	SprintID   int    `json:"sprint_id"`
	SprintName string `json:"sprint_name"`
	BoardID    int    `json:"board_id"`
	BoardName  string `json:"board_name"`
}

// AddToActiveSprint adds key to the active sprint of the first scrum board
// of project that has one.
func (c *Client) AddToActiveSprint(ctx context.Context, key, project string) (SprintPlacement, error) {
	boards, err := c.Boards(ctx, project)
	if err != nil {
		return SprintPlacement{}, err
	}
	scrum := 0
	for _, b := range boards {
		if b.Type != "scrum" {
			continue
		}
		scrum++
		sprints, err := c.Sprints(ctx, b.ID, "active")
		if err != nil {
			return SprintPlacement{}, err
		}
		if len(sprints) == 0 {
			continue
		}
		s := sprints[0]
		if err := c.AddToSprint(ctx, s.ID, []string{key}); err != nil {
			return SprintPlacement{}, err
		}
		return SprintPlacement{Success: true, IssueKey: key, SprintID: s.ID, SprintName: s.Name, BoardID: b.ID, BoardName: b.Name}, nil
	}
	if scrum == 0 {
		return SprintPlacement{}, apperrors.NotFound("no scrum board found for project %s", project)
	}
	return SprintPlacement{}, apperrors.NotFound("no active sprint on the %d scrum board(s) of project %s", scrum, project)
}
