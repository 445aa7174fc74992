package jira

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/mcpsuite/mcpsuite/internal/platform/config"
	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/platform/logging"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/domain"
)

// Config configures the Jira server.
type Config struct {
	BaseURL        string  `env:"JIRA_BASE_URL"`
	Email          string  `env:"JIRA_EMAIL"`
	APIToken       string  `env:"JIRA_API_TOKEN"`
	ProjectKey     string  `env:"JIRA_PROJECT_KEY"`
	TimeoutSeconds int     `env:"JIRA_TIMEOUT" envDefault:"30"`
	MaxRetries     int     `env:"JIRA_MAX_RETRIES" envDefault:"3"`
	RateLimit      float64 `env:"JIRA_RATE_LIMIT" envDefault:"10"`
}

const (
	defaultSearchResults = 50
	maxSearchResults     = 100
)

// Module builds the Jira server from JIRA_* variables.
func Module(_ context.Context, deps domain.Deps) domain.Module {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return NewModule(nil, "", err)
	}
	settings := []logging.Setting{
		{Key: "Base URL", Value: cfg.BaseURL},
		{Key: "Email", Value: cfg.Email},
		{Key: "API Token", Value: cfg.APIToken},
		{Key: "Project Key", Value: orNotSet(cfg.ProjectKey)},
		{Key: "Timeout", Value: cfg.TimeoutSeconds},
		{Key: "Max Retries", Value: cfg.MaxRetries},
		{Key: "Rate Limit", Value: cfg.RateLimit},
	}
	if missing := config.Missing(map[string]string{
		"JIRA_BASE_URL":  cfg.BaseURL,
		"JIRA_EMAIL":     cfg.Email,
		"JIRA_API_TOKEN": cfg.APIToken,
	}, "JIRA_BASE_URL", "JIRA_EMAIL", "JIRA_API_TOKEN"); len(missing) > 0 {
		module := NewModule(nil, cfg.ProjectKey, apperrors.NotConfigured("Jira", missing...))
		module.Settings = settings
		return module
	}
	var logger *zerolog.Logger
	if deps.Logger != nil {
		logger = &deps.Logger.Logger
	}
	client := NewClient(cfg, logger)
	module := NewModule(client, cfg.ProjectKey, nil)
	module.Settings = settings
	module.Health = client.Ping
	return module
}

func orNotSet(v string) string {
	if v == "" {
		return "Not set"
	}
	return v
}

type server struct {
	client         *Client
	defaultProject string
	cfgErr         error
}

func (s server) get() (*Client, error) {
	if s.client == nil {
		return nil, domain.NotConfigured("Jira", s.cfgErr)
	}
	return s.client, nil
}

// issue resolves the client and validates key.
func (s server) issue(key string) (*Client, error) {
	c, err := s.get()
	if err != nil {
		return nil, err
	}
	if err := ValidateIssueKey(key); err != nil {
		return nil, err
	}
	return c, nil
}

func (s server) project(key string) (string, error) {
	if key = strings.TrimSpace(key); key != "" {
		return key, nil
	}
	if s.defaultProject != "" {
		return s.defaultProject, nil
	}
	return "", apperrors.Validation("project_key is required (JIRA_PROJECT_KEY is not set)")
}

// NewModule exposes client as MCP tools. defaultProject fills in omitted
// project keys. client may be nil, in which case tools report cfgErr.
func NewModule(client *Client, defaultProject string, cfgErr error) domain.Module {
	s := server{client: client, defaultProject: defaultProject, cfgErr: cfgErr}
	tool := func(name, desc string) *mcp.Tool { return &mcp.Tool{Name: name, Description: desc} }
	return domain.Module{
		Name: "Jira",
		Tools: []domain.ToolRegistration{
			domain.Tool(tool("jira_get_issue", "Get a Jira issue by key"), s.getIssue),
			domain.Tool(tool("jira_search_issues", "Search issues with JQL"), s.searchIssues),
			domain.Tool(tool("jira_build_jql", "Build a JQL query from common criteria"), s.buildJQL),
			domain.Tool(tool("jira_create_issue", "Create an issue; story points go to the field the issue type defines"), s.createIssue),
			domain.Tool(tool("jira_create_issues_bulk", "Create several issues in one request"), s.createIssuesBulk),
			domain.Tool(tool("jira_update_issue", "Update issue fields from a JSON object"), s.updateIssue),
			domain.Tool(tool("jira_delete_issue", "Delete an issue and its subtasks"), s.deleteIssue),
			domain.Tool(tool("jira_assign_issue", "Assign an issue to an account; an empty account unassigns"), s.assignIssue),
			domain.Tool(tool("jira_get_project_issue_types", "List the issue types of a project"), s.projectIssueTypes),
			domain.Tool(tool("jira_get_creatable_issue_types", "List creatable issue types with their required fields"), s.creatableIssueTypes),
			domain.Tool(tool("jira_get_create_metadata", "List the create-screen fields of an issue type"), s.createMetadata),
			domain.Tool(tool("jira_check_story_points_requirement", "Check whether an issue type requires story points"), s.checkStoryPoints),
			domain.Tool(tool("jira_get_transitions", "List the status transitions available on an issue"), s.getTransitions),
			domain.Tool(tool("jira_transition_issue", "Move an issue through its workflow by transition name or id"), s.transitionIssue),
			domain.Tool(tool("jira_add_comment", "Add a comment to an issue"), s.addComment),
			domain.Tool(tool("jira_get_comments", "List the comments on an issue as plain text"), s.getComments),
			domain.Tool(tool("jira_link_issues", "Link two issues"), s.linkIssues),
			domain.Tool(tool("jira_get_projects", "List accessible projects"), s.getProjects),
			domain.Tool(tool("jira_get_watchers", "List the watchers of an issue"), s.getWatchers),
			domain.Tool(tool("jira_add_watcher", "Add a watcher to an issue"), s.addWatcher),
			domain.Tool(tool("jira_get_boards", "List agile boards, optionally for one project"), s.getBoards),
			domain.Tool(tool("jira_get_active_sprints", "List the active sprints of a board"), s.getActiveSprints),
			domain.Tool(tool("jira_add_to_sprint", "Move issues into a sprint"), s.addToSprint),
			domain.Tool(tool("jira_add_issue_to_active_sprint", "Add an issue to its project's active sprint"), s.addToActiveSprint),
		},
		ConfigErr: cfgErr,
	}
}

// Result acknowledges a write.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func done(format string, args ...any) Result {
	return Result{Success: true, Message: fmt.Sprintf(format, args...)}
}

// IssueKeyInput names one issue.
type IssueKeyInput struct {
	IssueKey string `json:"issue_key" jsonschema:"issue key such as PROJ-123"`
}

// GetIssueInput is the jira_get_issue input.
type GetIssueInput struct {
	IssueKey string   `json:"issue_key" jsonschema:"issue key such as PROJ-123"`
	Fields   []string `json:"fields,omitempty" jsonschema:"fields to return raw, e.g. [\"summary\", \"customfield_10031\"]"`
}

func (s server) getIssue(ctx context.Context, _ *mcp.CallToolRequest, in GetIssueInput) (*mcp.CallToolResult, Issue, error) {
	c, err := s.issue(in.IssueKey)
	if err != nil {
		return nil, Issue{}, err
	}
	issue, err := c.GetIssue(ctx, in.IssueKey, in.Fields)
	return nil, issue, err
}

// SearchInput is the jira_search_issues input.
type SearchInput struct {
	JQL        string   `json:"jql" jsonschema:"JQL query"`
	MaxResults int      `json:"max_results,omitempty" jsonschema:"page size, at most 100 (default 50)"`
	StartAt    int      `json:"start_at,omitempty" jsonschema:"index of the first result"`
	Fields     []string `json:"fields,omitempty" jsonschema:"fields to return raw"`
}

func (s server) searchIssues(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchResult, error) {
	c, err := s.get()
	if err != nil {
		return nil, SearchResult{}, err
	}
	if err := domain.Require("jql", in.JQL); err != nil {
		return nil, SearchResult{}, err
	}
	if in.StartAt < 0 {
		return nil, SearchResult{}, apperrors.Validation("start_at must not be negative")
	}
	limit := domain.Clamp(in.MaxResults, defaultSearchResults, 1, maxSearchResults)
	res, err := c.Search(ctx, in.JQL, limit, in.StartAt, in.Fields)
	return nil, res, err
}

// BuildJQLInput is the jira_build_jql input.
type BuildJQLInput struct {
	Project   string   `json:"project,omitempty" jsonschema:"project key"`
	Status    string   `json:"status,omitempty" jsonschema:"status name"`
	Assignee  string   `json:"assignee,omitempty" jsonschema:"account id, or currentUser()"`
	IssueType string   `json:"issue_type,omitempty" jsonschema:"issue type name"`
	Priority  string   `json:"priority,omitempty" jsonschema:"priority name"`
	Labels    []string `json:"labels,omitempty" jsonschema:"labels, any of which matches"`
	Text      string   `json:"text,omitempty" jsonschema:"full text search"`
	OrderBy   string   `json:"order_by,omitempty" jsonschema:"ordering, e.g. created DESC"`
}

// JQLResult is the jira_build_jql output.
type JQLResult struct {
	JQL string `json:"jql"`
}

func (s server) buildJQL(_ context.Context, _ *mcp.CallToolRequest, in BuildJQLInput) (*mcp.CallToolResult, JQLResult, error) {
	return nil, JQLResult{JQL: BuildJQL(JQLQuery(in))}, nil
}

// CreateIssueInput is the jira_create_issue input.
type CreateIssueInput struct {
	ProjectKey        string         `json:"project_key,omitempty" jsonschema:"project key (default JIRA_PROJECT_KEY)"`
	Summary           string         `json:"summary" jsonschema:"issue summary"`
	Description       string         `json:"description,omitempty" jsonschema:"plain text description"`
	IssueType         string         `json:"issue_type,omitempty" jsonschema:"issue type name (default Task)"`
	Priority          string         `json:"priority,omitempty" jsonschema:"priority name"`
	Labels            []string       `json:"labels,omitempty" jsonschema:"labels"`
	AssigneeAccountID string         `json:"assignee_account_id,omitempty" jsonschema:"assignee account id"`
	StoryPoints       int            `json:"story_points,omitempty" jsonschema:"story points, 1 to 100"`
	ParentKey         string         `json:"parent_key,omitempty" jsonschema:"parent issue key for subtasks"`
	CustomFields      map[string]any `json:"custom_fields,omitempty" jsonschema:"extra field values keyed by field id"`
	RichText          bool           `json:"rich_text,omitempty" jsonschema:"split the description into paragraphs on blank lines"`
}

func (s server) createIssue(ctx context.Context, _ *mcp.CallToolRequest, in CreateIssueInput) (*mcp.CallToolResult, CreatedIssue, error) {
	c, err := s.get()
	if err != nil {
		return nil, CreatedIssue{}, err
	}
	project, err := s.project(in.ProjectKey)
	if err != nil {
		return nil, CreatedIssue{}, err
	}
	in.ProjectKey = project
	created, err := c.CreateIssue(ctx, IssueSpec(in))
	return nil, created, err
}

// BulkInput is the jira_create_issues_bulk input.
type BulkInput struct {
	Issues []IssueSpec `json:"issues" jsonschema:"issues to create"`
}

func (s server) createIssuesBulk(ctx context.Context, _ *mcp.CallToolRequest, in BulkInput) (*mcp.CallToolResult, BulkResult, error) {
	c, err := s.get()
	if err != nil {
		return nil, BulkResult{}, err
	}
	for i := range in.Issues {
		if in.Issues[i].ProjectKey == "" {
			in.Issues[i].ProjectKey = s.defaultProject
		}
	}
	res, err := c.CreateIssuesBulk(ctx, in.Issues)
	return nil, res, err
}

// UpdateInput is the jira_update_issue input.
type UpdateInput struct {
	IssueKey string `json:"issue_key" jsonschema:"issue key"`
	Fields   string `json:"fields" jsonschema:"fields to set as a JSON object, e.g. {\"summary\": \"New title\"}"`
}

func (s server) updateIssue(ctx context.Context, _ *mcp.CallToolRequest, in UpdateInput) (*mcp.CallToolResult, Result, error) {
	c, err := s.issue(in.IssueKey)
	if err != nil {
		return nil, Result{}, err
	}
	var fields map[string]any
	if err := domain.DecodeJSONArg("fields", in.Fields, &fields); err != nil {
		return nil, Result{}, err
	}
	if err := c.UpdateIssue(ctx, in.IssueKey, fields); err != nil {
		return nil, Result{}, err
	}
	return nil, done("Updated %s", in.IssueKey), nil
}

func (s server) deleteIssue(ctx context.Context, _ *mcp.CallToolRequest, in IssueKeyInput) (*mcp.CallToolResult, Result, error) {
	c, err := s.issue(in.IssueKey)
	if err != nil {
		return nil, Result{}, err
	}
	if err := c.DeleteIssue(ctx, in.IssueKey); err != nil {
		return nil, Result{}, err
	}
	return nil, done("Deleted %s", in.IssueKey), nil
}

// AssignInput is the jira_assign_issue input.
type AssignInput struct {
	IssueKey  string `json:"issue_key" jsonschema:"issue key"`
	AccountID string `json:"account_id,omitempty" jsonschema:"assignee account id; empty unassigns"`
}

func (s server) assignIssue(ctx context.Context, _ *mcp.CallToolRequest, in AssignInput) (*mcp.CallToolResult, Result, error) {
	c, err := s.issue(in.IssueKey)
	if err != nil {
		return nil, Result{}, err
	}
	if err := c.AssignIssue(ctx, in.IssueKey, in.AccountID); err != nil {
		return nil, Result{}, err
	}
	if in.AccountID == "" {
		return nil, done("Unassigned %s", in.IssueKey), nil
	}
	return nil, done("Assigned %s to %s", in.IssueKey, in.AccountID), nil
}

// ProjectInput names a project.
type ProjectInput struct {
	ProjectKey string `json:"project_key,omitempty" jsonschema:"project key (default JIRA_PROJECT_KEY)"`
}

// IssueTypesResult lists issue types.
type IssueTypesResult struct {
	ProjectKey string      `json:"project_key"`
	IssueTypes []IssueType `json:"issue_types"`
}

func (s server) projectIssueTypes(ctx context.Context, _ *mcp.CallToolRequest, in ProjectInput) (*mcp.CallToolResult, IssueTypesResult, error) {
	c, err := s.get()
	if err != nil {
		return nil, IssueTypesResult{}, err
	}
	project, err := s.project(in.ProjectKey)
	if err != nil {
		return nil, IssueTypesResult{}, err
	}
	types, err := c.IssueTypes(ctx, project)
	return nil, IssueTypesResult{ProjectKey: project, IssueTypes: types}, err
}

// CreatableResult lists creatable issue types.
type CreatableResult struct {
	ProjectKey string               `json:"project_key"`
	IssueTypes []CreatableIssueType `json:"issue_types"`
}

func (s server) creatableIssueTypes(ctx context.Context, _ *mcp.CallToolRequest, in ProjectInput) (*mcp.CallToolResult, CreatableResult, error) {
	c, err := s.get()
	if err != nil {
		return nil, CreatableResult{}, err
	}
	project, err := s.project(in.ProjectKey)
	if err != nil {
		return nil, CreatableResult{}, err
	}
	types, err := c.CreatableIssueTypes(ctx, project)
	return nil, CreatableResult{ProjectKey: project, IssueTypes: types}, err
}

// CreateMetadataInput is the jira_get_create_metadata input.
type CreateMetadataInput struct {
	ProjectKey  string `json:"project_key,omitempty" jsonschema:"project key (default JIRA_PROJECT_KEY)"`
	IssueTypeID string `json:"issue_type_id" jsonschema:"issue type id from jira_get_project_issue_types"`
}

// CreateMetadataResult lists create-screen fields.
type CreateMetadataResult struct {
	ProjectKey  string      `json:"project_key"`
	IssueTypeID string      `json:"issue_type_id"`
	Fields      []FieldMeta `json:"fields"`
}

func (s server) createMetadata(ctx context.Context, _ *mcp.CallToolRequest, in CreateMetadataInput) (*mcp.CallToolResult, CreateMetadataResult, error) {
	c, err := s.get()
	if err != nil {
		return nil, CreateMetadataResult{}, err
	}
	project, err := s.project(in.ProjectKey)
	if err != nil {
		return nil, CreateMetadataResult{}, err
	}
	if err := domain.Require("issue_type_id", in.IssueTypeID); err != nil {
		return nil, CreateMetadataResult{}, err
	}
	fields, err := c.CreateMetadata(ctx, project, in.IssueTypeID)
	return nil, CreateMetadataResult{ProjectKey: project, IssueTypeID: in.IssueTypeID, Fields: fields}, err
}

// StoryPointsInput is the jira_check_story_points_requirement input.
type StoryPointsInput struct {
	ProjectKey string `json:"project_key,omitempty" jsonschema:"project key (default JIRA_PROJECT_KEY)"`
	IssueType  string `json:"issue_type,omitempty" jsonschema:"issue type name (default Story)"`
}

func (s server) checkStoryPoints(ctx context.Context, _ *mcp.CallToolRequest, in StoryPointsInput) (*mcp.CallToolResult, StoryPointsReport, error) {
	c, err := s.get()
	if err != nil {
		return nil, StoryPointsReport{}, err
	}
	project, err := s.project(in.ProjectKey)
	if err != nil {
		return nil, StoryPointsReport{}, err
	}
	issueType := in.IssueType
	if issueType == "" {
		issueType = "Story"
	}
	report, err := c.CheckStoryPoints(ctx, project, issueType)
	return nil, report, err
}

// TransitionsResult lists transitions.
type TransitionsResult struct {
	IssueKey    string       `json:"issue_key"`
	Transitions []Transition `json:"transitions"`
}

func (s server) getTransitions(ctx context.Context, _ *mcp.CallToolRequest, in IssueKeyInput) (*mcp.CallToolResult, TransitionsResult, error) {
	c, err := s.issue(in.IssueKey)
	if err != nil {
		return nil, TransitionsResult{}, err
	}
	ts, err := c.Transitions(ctx, in.IssueKey)
	return nil, TransitionsResult{IssueKey: in.IssueKey, Transitions: ts}, err
}

// TransitionInput is the jira_transition_issue input.
type TransitionInput struct {
	IssueKey       string `json:"issue_key" jsonschema:"issue key"`
	TransitionName string `json:"transition_name,omitempty" jsonschema:"transition or target status name, case-insensitive"`
	TransitionID   string `json:"transition_id,omitempty" jsonschema:"transition id from jira_get_transitions"`
	Comment        string `json:"comment,omitempty" jsonschema:"comment to add with the transition"`
	Fields         string `json:"fields,omitempty" jsonschema:"fields to set as a JSON object"`
}

// TransitionResult is the jira_transition_issue output.
type TransitionResult struct {
	Success    bool       `json:"success"`
	IssueKey   string     `json:"issue_key"`
	Transition Transition `json:"transition"`
}

func (s server) transitionIssue(ctx context.Context, _ *mcp.CallToolRequest, in TransitionInput) (*mcp.CallToolResult, TransitionResult, error) {
	c, err := s.issue(in.IssueKey)
	if err != nil {
		return nil, TransitionResult{}, err
	}
	req := TransitionRequest{ID: in.TransitionID, Name: in.TransitionName, Comment: in.Comment}
	if strings.TrimSpace(in.Fields) != "" {
		if err := domain.DecodeJSONArg("fields", in.Fields, &req.Fields); err != nil {
			return nil, TransitionResult{}, err
		}
	}
	t, err := c.TransitionIssue(ctx, in.IssueKey, req)
	if err != nil {
		return nil, TransitionResult{}, err
	}
	return nil, TransitionResult{Success: true, IssueKey: in.IssueKey, Transition: t}, nil
}

// CommentInput is the jira_add_comment input.
type CommentInput struct {
	IssueKey string `json:"issue_key" jsonschema:"issue key"`
	Comment  string `json:"comment" jsonschema:"comment text"`
	RichText bool   `json:"rich_text,omitempty" jsonschema:"split into paragraphs on blank lines"`
}

func (s server) addComment(ctx context.Context, _ *mcp.CallToolRequest, in CommentInput) (*mcp.CallToolResult, Comment, error) {
	c, err := s.issue(in.IssueKey)
	if err != nil {
		return nil, Comment{}, err
	}
	comment, err := c.AddComment(ctx, in.IssueKey, in.Comment, in.RichText)
	return nil, comment, err
}

// CommentsResult lists comments.
type CommentsResult struct {
	IssueKey string    `json:"issue_key"`
	Count    int       `json:"count"`
	Comments []Comment `json:"comments"`
}

func (s server) getComments(ctx context.Context, _ *mcp.CallToolRequest, in IssueKeyInput) (*mcp.CallToolResult, CommentsResult, error) {
	c, err := s.issue(in.IssueKey)
	if err != nil {
		return nil, CommentsResult{}, err
	}
	comments, err := c.Comments(ctx, in.IssueKey)
	return nil, CommentsResult{IssueKey: in.IssueKey, Count: len(comments), Comments: comments}, err
}

// LinkInput is the jira_link_issues input.
type LinkInput struct {
	InwardIssue  string `json:"inward_issue" jsonschema:"inward issue key"`
	OutwardIssue string `json:"outward_issue" jsonschema:"outward issue key"`
	LinkType     string `json:"link_type,omitempty" jsonschema:"link type name: Relates, Blocks, Clones or Duplicates (default Relates)"`
}

func (s server) linkIssues(ctx context.Context, _ *mcp.CallToolRequest, in LinkInput) (*mcp.CallToolResult, Result, error) {
	c, err := s.issue(in.InwardIssue)
	if err != nil {
		return nil, Result{}, err
	}
	if err := ValidateIssueKey(in.OutwardIssue); err != nil {
		return nil, Result{}, err
	}
	linkType := in.LinkType
	if linkType == "" {
		linkType = "Relates"
	}
	if err := c.LinkIssues(ctx, in.InwardIssue, in.OutwardIssue, linkType); err != nil {
		return nil, Result{}, err
	}
	return nil, done("Linked %s to %s (%s)", in.InwardIssue, in.OutwardIssue, linkType), nil
}

// ProjectsResult lists projects.
type ProjectsResult struct {
	Count    int       `json:"count"`
	Projects []Project `json:"projects"`
}

func (s server) getProjects(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, ProjectsResult, error) {
	c, err := s.get()
	if err != nil {
		return nil, ProjectsResult{}, err
	}
	projects, err := c.Projects(ctx)
	return nil, ProjectsResult{Count: len(projects), Projects: projects}, err
}

func (s server) getWatchers(ctx context.Context, _ *mcp.CallToolRequest, in IssueKeyInput) (*mcp.CallToolResult, Watchers, error) {
	c, err := s.issue(in.IssueKey)
	if err != nil {
		return nil, Watchers{}, err
	}
	w, err := c.Watchers(ctx, in.IssueKey)
	return nil, w, err
}

// WatcherInput is the jira_add_watcher input.
type WatcherInput struct {
	IssueKey  string `json:"issue_key" jsonschema:"issue key"`
	AccountID string `json:"account_id" jsonschema:"watcher account id"`
}

func (s server) addWatcher(ctx context.Context, _ *mcp.CallToolRequest, in WatcherInput) (*mcp.CallToolResult, Result, error) {
	c, err := s.issue(in.IssueKey)
	if err != nil {
		return nil, Result{}, err
	}
	if err := c.AddWatcher(ctx, in.IssueKey, in.AccountID); err != nil {
		return nil, Result{}, err
	}
	return nil, done("Added watcher to %s", in.IssueKey), nil
}

// BoardsInput is the jira_get_boards input.
type BoardsInput struct {
	ProjectKey string `json:"project_key,omitempty" jsonschema:"only boards of this project"`
}

// BoardsResult lists boards.
type BoardsResult struct {
	Count  int     `json:"count"`
	Boards []Board `json:"boards"`
}

func (s server) getBoards(ctx context.Context, _ *mcp.CallToolRequest, in BoardsInput) (*mcp.CallToolResult, BoardsResult, error) {
	c, err := s.get()
	if err != nil {
		return nil, BoardsResult{}, err
	}
	boards, err := c.Boards(ctx, in.ProjectKey)
	return nil, BoardsResult{Count: len(boards), Boards: boards}, err
}

// BoardInput names a board.
type BoardInput struct {
	BoardID int `json:"board_id" jsonschema:"board id from jira_get_boards"`
}

// SprintsResult lists sprints.
type SprintsResult struct {
	BoardID int      `json:"board_id"`
	Sprints []Sprint `json:"sprints"`
}

func (s server) getActiveSprints(ctx context.Context, _ *mcp.CallToolRequest, in BoardInput) (*mcp.CallToolResult, SprintsResult, error) {
	c, err := s.get()
	if err != nil {
		return nil, SprintsResult{}, err
	}
	if in.BoardID <= 0 {
		return nil, SprintsResult{}, apperrors.Validation("board_id must be positive")
	}
	sprints, err := c.Sprints(ctx, in.BoardID, "active")
	return nil, SprintsResult{BoardID: in.BoardID, Sprints: sprints}, err
}

// SprintInput is the jira_add_to_sprint input.
type SprintInput struct {
	SprintID  int    `json:"sprint_id" jsonschema:"sprint id from jira_get_active_sprints"`
	IssueKeys string `json:"issue_keys" jsonschema:"comma separated issue keys"`
}

func (s server) addToSprint(ctx context.Context, _ *mcp.CallToolRequest, in SprintInput) (*mcp.CallToolResult, Result, error) {
	c, err := s.get()
	if err != nil {
		return nil, Result{}, err
	}
	if in.SprintID <= 0 {
		return nil, Result{}, apperrors.Validation("sprint_id must be positive")
	}
	keys := domain.SplitList(strings.Trim(in.IssueKeys, "[]"))
	for i, k := range keys {
		keys[i] = strings.Trim(k, `"' `)
		if err := ValidateIssueKey(keys[i]); err != nil {
			return nil, Result{}, err
		}
	}
	if err := c.AddToSprint(ctx, in.SprintID, keys); err != nil {
		return nil, Result{}, err
	}
	return nil, done("Added %d issue(s) to sprint %d", len(keys), in.SprintID), nil
}

// ActiveSprintInput is the jira_add_issue_to_active_sprint input.
type ActiveSprintInput struct {
	IssueKey   string `json:"issue_key" jsonschema:"issue key"`
	ProjectKey string `json:"project_key,omitempty" jsonschema:"project key (default JIRA_PROJECT_KEY)"`
}

func (s server) addToActiveSprint(ctx context.Context, _ *mcp.CallToolRequest, in ActiveSprintInput) (*mcp.CallToolResult, SprintPlacement, error) {
	c, err := s.issue(in.IssueKey)
	if err != nil {
		return nil, SprintPlacement{}, err
	}
	project, err := s.project(in.ProjectKey)
	if err != nil {
		return nil, SprintPlacement{}, err
	}
	placement, err := c.AddToActiveSprint(ctx, in.IssueKey, project)
	return nil, placement, err
}
