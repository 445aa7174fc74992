package jira

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
)

// Issue is the flattened view of a Jira issue.
type Issue struct {
	Key         string         `json:"key"`
	ID          string         `json:"id"`
	URL         string         `json:"url"`
	Summary     string         `json:"summary"`
	Status      string         `json:"status,omitempty"`
	IssueType   string         `json:"issue_type,omitempty"`
	Priority    string         `json:"priority,omitempty"`
	Assignee    string         `json:"assignee,omitempty"`
	Reporter    string         `json:"reporter,omitempty"`
	Parent      string         `json:"parent,omitempty"`
	Labels      []string       `json:"labels"`
	Description string         `json:"description,omitempty"`
	Created     string         `json:"created,omitempty"`
	Updated     string         `json:"updated,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
}

type rawIssue struct {
	ID     string         `json:"id"`
	Key    string         `json:"key"`
	Fields map[string]any `json:"fields"`
}

func (c *Client) toIssue(raw rawIssue, keepFields bool) Issue {
	f := raw.Fields
	issue := Issue{
		Key:         raw.Key,
		ID:          raw.ID,
		URL:         c.BrowseURL(raw.Key),
		Summary:     str(f, "summary"),
		Status:      str(f, "status", "name"),
		IssueType:   str(f, "issuetype", "name"),
		Priority:    str(f, "priority", "name"),
		Assignee:    str(f, "assignee", "displayName"),
		Reporter:    str(f, "reporter", "displayName"),
		Parent:      str(f, "parent", "key"),
		Labels:      []string{},
		Description: FlattenADF(f["description"]),
		Created:     str(f, "created"),
		Updated:     str(f, "updated"),
	}
	if labels, ok := f["labels"].([]any); ok {
		for _, l := range labels {
			if s, ok := l.(string); ok {
				issue.Labels = append(issue.Labels, s)
			}
		}
	}
	if keepFields {
		issue.Fields = f
	}
	return issue
}

// GetIssue fetches one issue. When fields are named the raw field values
// are returned as well.
func (c *Client) GetIssue(ctx context.Context, key string, fields []string) (Issue, error) {
	var q url.Values
	if len(fields) > 0 {
		q = url.Values{"fields": {strings.Join(fields, ",")}}
	}
	var raw rawIssue
	if err := c.api(ctx, http.MethodGet, "/issue/"+url.PathEscape(key), q, nil, &raw); err != nil {
		return Issue{}, err
	}
	c.logger.Info().Str("issue", key).Msg("retrieved issue")
	return c.toIssue(raw, len(fields) > 0), nil
}

// SearchResult is one page of a JQL search.
type SearchResult struct {
	JQL        string  `json:"jql"`
	Total      int     `json:"total"`
	StartAt    int     `json:"start_at"`
	MaxResults int     `json:"max_results"`
	Issues     []Issue `json:"issues"`
}

// Search runs a JQL query.
func (c *Client) Search(ctx context.Context, jql string, maxResults, startAt int, fields []string) (SearchResult, error) {
	body := map[string]any{"jql": jql, "maxResults": maxResults, "startAt": startAt}
	if len(fields) > 0 {
		body["fields"] = fields
	}
	var raw struct {
		Total      int        `json:"total"`
		StartAt    int        `json:"startAt"`
		MaxResults int        `json:"maxResults"`
		Issues     []rawIssue `json:"issues"`
	}
	if err := c.api(ctx, http.MethodPost, "/search", nil, body, &raw); err != nil {
		return SearchResult{}, err
	}
	out := SearchResult{JQL: jql, Total: raw.Total, StartAt: raw.StartAt, MaxResults: raw.MaxResults, Issues: make([]Issue, 0, len(raw.Issues))}
	for _, ri := range raw.Issues {
		out.Issues = append(out.Issues, c.toIssue(ri, len(fields) > 0))
	}
	c.logger.Info().Int("count", len(out.Issues)).Int("total", out.Total).Msg("search returned issues")
	return out, nil
}

// IssueSpec describes an issue to create.
type IssueSpec struct {
	ProjectKey        string         `json:"project_key"`
	Summary           string         `json:"summary"`
	Description       string         `json:"description,omitempty"`
	IssueType         string         `json:"issue_type,omitempty"`
	Priority          string         `json:"priority,omitempty"`
	Labels            []string       `json:"labels,omitempty"`
	AssigneeAccountID string         `json:"assignee_account_id,omitempty"`
	StoryPoints       int            `json:"story_points,omitempty"`
	ParentKey         string         `json:"parent_key,omitempty"`
	CustomFields      map[string]any `json:"custom_fields,omitempty"`
	RichText          bool           `json:"rich_text,omitempty"`
}

func (s *IssueSpec) normalize() error {
	if s.IssueType == "" {
		s.IssueType = "Task"
	}
	if strings.TrimSpace(s.ProjectKey) == "" {
		return apperrors.Validation("project_key is required")
	}
	if strings.TrimSpace(s.Summary) == "" {
		return apperrors.Validation("summary is required")
	}
	if s.StoryPoints < 0 || s.StoryPoints > 100 {
		return apperrors.Validation("story_points must be between 1 and 100, got %d", s.StoryPoints)
	}
	if s.ParentKey != "" {
		return ValidateIssueKey(s.ParentKey)
	}
	return nil
}

func (s IssueSpec) fields(storyField string) map[string]any {
	f := map[string]any{
		"project":     map[string]any{"key": s.ProjectKey},
		"summary":     s.Summary,
		"description": ToADF(s.Description, s.RichText),
		"issuetype":   map[string]any{"name": s.IssueType},
	}
	if s.Priority != "" {
		f["priority"] = map[string]any{"name": s.Priority}
	}
	if s.AssigneeAccountID != "" {
		f["assignee"] = map[string]any{"accountId": s.AssigneeAccountID}
	}
	if len(s.Labels) > 0 {
		f["labels"] = s.Labels
	}
	if s.ParentKey != "" {
		f["parent"] = map[string]any{"key": s.ParentKey}
	}
	if s.StoryPoints > 0 && storyField != "" {
		f[storyField] = s.StoryPoints
	}
	for k, v := range s.CustomFields {
		f[k] = v
	}
	return f
}

// CreatedIssue identifies a newly created issue.
type CreatedIssue struct {
	Key              string `json:"key"`
	ID               string `json:"id"`
	Self             string `json:"self,omitempty"`
	URL              string `json:"url"`
	StoryPoints      int    `json:"story_points,omitempty"`
	StoryPointsField string `json:"story_points_field,omitempty"`
}

// CreateIssue creates one issue. Story points are written to the field the
// issue type's create metadata names.
func (c *Client) CreateIssue(ctx context.Context, spec IssueSpec) (CreatedIssue, error) {
	if err := spec.normalize(); err != nil {
		return CreatedIssue{}, err
	}
	var storyField string
	if spec.StoryPoints > 0 {
		var err error
		if storyField, err = c.StoryPointsField(ctx, spec.ProjectKey, spec.IssueType); err != nil {
			return CreatedIssue{}, err
		}
	}
	var raw struct {
		ID   string `json:"id"`
		Key  string `json:"key"`
		Self string `json:"self"`
	}
	if err := c.api(ctx, http.MethodPost, "/issue", nil, map[string]any{"fields": spec.fields(storyField)}, &raw); err != nil {
		return CreatedIssue{}, err
	}
	if raw.Key == "" {
		return CreatedIssue{}, apperrors.New(apperrors.CodeUnexpected, "jira did not return an issue key")
	}
	c.logger.Info().Str("issue", raw.Key).Msg("created issue")
	out := CreatedIssue{Key: raw.Key, ID: raw.ID, Self: raw.Self, URL: c.BrowseURL(raw.Key)}
	if storyField != "" {
		out.StoryPoints, out.StoryPointsField = spec.StoryPoints, storyField
	}
	return out, nil
}

// BulkError reports one rejected element of a bulk create.
type BulkError struct {
	Index   int    `json:"index"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
}

// BulkResult is the outcome of CreateIssuesBulk.
type BulkResult struct {
	Created []CreatedIssue `json:"created"`
	Errors  []BulkError    `json:"errors"`
}

// CreateIssuesBulk creates issues in one request. Story point fields are
// discovered once per project and issue type.
func (c *Client) CreateIssuesBulk(ctx context.Context, specs []IssueSpec) (BulkResult, error) {
	if len(specs) == 0 {
		return BulkResult{}, apperrors.Validation("issues must not be empty")
	}
	storyFields := map[string]string{}
	updates := make([]map[string]any, 0, len(specs))
	for i := range specs {
		spec := &specs[i]
		if err := spec.normalize(); err != nil {
			return BulkResult{}, apperrors.Wrap(apperrors.CodeValidation, fmt.Sprintf("issue %d: %s", i+1, err.Error()), err)
		}
		var field string
		if spec.StoryPoints > 0 {
			cacheKey := spec.ProjectKey + "/" + strings.ToLower(spec.IssueType)
			f, ok := storyFields[cacheKey]
			if !ok {
				var err error
				if f, err = c.StoryPointsField(ctx, spec.ProjectKey, spec.IssueType); err != nil {
					return BulkResult{}, err
				}
				storyFields[cacheKey] = f
			}
			field = f
		}
		updates = append(updates, map[string]any{"fields": spec.fields(field)})
	}
	var raw struct {
		Issues []struct {
			ID   string `json:"id"`
			Key  string `json:"key"`
			Self string `json:"self"`
		} `json:"issues"`
		Errors []struct {
			Status              int `json:"status"`
			FailedElementNumber int `json:"failedElementNumber"`
			ElementErrors       struct {
				ErrorMessages []string          `json:"errorMessages"`
				Errors        map[string]string `json:"errors"`
			} `json:"elementErrors"`
		} `json:"errors"`
	}
	if err := c.api(ctx, http.MethodPost, "/issue/bulk", nil, map[string]any{"issueUpdates": updates}, &raw); err != nil {
		return BulkResult{}, err
	}
	out := BulkResult{Created: []CreatedIssue{}, Errors: []BulkError{}}
	for _, is := range raw.Issues {
		out.Created = append(out.Created, CreatedIssue{Key: is.Key, ID: is.ID, Self: is.Self, URL: c.BrowseURL(is.Key)})
	}
	for _, e := range raw.Errors {
		msgs := append([]string{}, e.ElementErrors.ErrorMessages...)
		for field, msg := range e.ElementErrors.Errors {
			msgs = append(msgs, field+": "+msg)
		}
		out.Errors = append(out.Errors, BulkError{Index: e.FailedElementNumber, Status: e.Status, Message: strings.Join(msgs, " | ")})
	}
	c.logger.Info().Int("created", len(out.Created)).Int("failed", len(out.Errors)).Msg("bulk created issues")
	return out, nil
}

// UpdateIssue sets fields on an issue.
func (c *Client) UpdateIssue(ctx context.Context, key string, fields map[string]any) error {
	if len(fields) == 0 {
		return apperrors.Validation("fields must not be empty")
	}
	if desc, ok := fields["description"].(string); ok {
		fields["description"] = ToADF(desc, true)
	}
	if err := c.api(ctx, http.MethodPut, "/issue/"+url.PathEscape(key), nil, map[string]any{"fields": fields}, nil); err != nil {
		return err
	}
	c.logger.Info().Str("issue", key).Msg("updated issue")
	return nil
}

// DeleteIssue deletes an issue and its subtasks.
func (c *Client) DeleteIssue(ctx context.Context, key string) error {
	q := url.Values{"deleteSubtasks": {"true"}}
	if err := c.api(ctx, http.MethodDelete, "/issue/"+url.PathEscape(key), q, nil, nil); err != nil {
		return err
	}
	c.logger.Info().Str("issue", key).Msg("deleted issue")
	return nil
}

// AssignIssue assigns key to accountID. An empty accountID unassigns.
func (c *Client) AssignIssue(ctx context.Context, key, accountID string) error {
	body := map[string]any{"accountId": nil}
	if accountID != "" {
		body["accountId"] = accountID
	}
	return c.api(ctx, http.MethodPut, "/issue/"+url.PathEscape(key)+"/assignee", nil, body, nil)
}

// Transition is a workflow move available on an issue.
type Transition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	To   string `json:"to"`
}

// Transitions lists the moves available on key.
func (c *Client) Transitions(ctx context.Context, key string) ([]Transition, error) {
	var raw struct {
		Transitions []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			To   struct {
				Name string `json:"name"`
			} `json:"to"`
		} `json:"transitions"`
	}
	if err := c.api(ctx, http.MethodGet, "/issue/"+url.PathEscape(key)+"/transitions", nil, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]Transition, 0, len(raw.Transitions))
	for _, t := range raw.Transitions {
		out = append(out, Transition{ID: t.ID, Name: t.Name, To: t.To.Name})
	}
	return out, nil
}

// TransitionRequest selects a transition by id or by name.
type TransitionRequest struct {
	ID      string
	Name    string
	Comment string
	Fields  map[string]any
}

// TransitionIssue applies a transition. Names match case-insensitively
// against the transition or its target status.
func (c *Client) TransitionIssue(ctx context.Context, key string, req TransitionRequest) (Transition, error) {
	if req.ID == "" && strings.TrimSpace(req.Name) == "" {
		return Transition{}, apperrors.Validation("transition_id or transition_name is required")
	}
	available, err := c.Transitions(ctx, key)
	if err != nil {
		return Transition{}, err
	}
	var chosen *Transition
	for i, t := range available {
		if (req.ID != "" && t.ID == req.ID) ||
			(req.ID == "" && (strings.EqualFold(t.Name, strings.TrimSpace(req.Name)) || strings.EqualFold(t.To, strings.TrimSpace(req.Name)))) {
			chosen = &available[i]
			break
		}
	}
	if chosen == nil {
		names := make([]string, 0, len(available))
		for _, t := range available {
			names = append(names, t.Name)
		}
		want := req.ID
		if want == "" {
			want = req.Name
		}
		return Transition{}, apperrors.WithMetadata(apperrors.CodeNotFound,
			fmt.Sprintf("transition %q is not available for %s", want, key),
			map[string]any{"available_transitions": names})
	}
	body := map[string]any{"transition": map[string]any{"id": chosen.ID}}
	if req.Comment != "" {
		body["update"] = map[string]any{"comment": []any{map[string]any{"add": map[string]any{"body": ToADF(req.Comment, true)}}}}
	}
	if len(req.Fields) > 0 {
		body["fields"] = req.Fields
	}
	if err := c.api(ctx, http.MethodPost, "/issue/"+url.PathEscape(key)+"/transitions", nil, body, nil); err != nil {
		return Transition{}, err
	}
	c.logger.Info().Str("issue", key).Str("transition", chosen.Name).Msg("transitioned issue")
	return *chosen, nil
}

// Comment is a flattened issue comment.
type Comment struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Body    string `json:"body"`
	Created string `json:"created"`
	Updated string `json:"updated,omitempty"`
}

type rawComment struct {
	ID     string `json:"id"`
	Author struct {
		DisplayName string `json:"displayName"`
	} `json:"author"`
	Body    any    `json:"body"`
	Created string `json:"created"`
	Updated string `json:"updated"`
}

func (r rawComment) comment() Comment {
	return Comment{ID: r.ID, Author: r.Author.DisplayName, Body: FlattenADF(r.Body), Created: r.Created, Updated: r.Updated}
}

// AddComment posts text as an ADF comment.
func (c *Client) AddComment(ctx context.Context, key, text string, rich bool) (Comment, error) {
	if strings.TrimSpace(text) == "" {
		return Comment{}, apperrors.Validation("comment is required")
	}
	var raw rawComment
	if err := c.api(ctx, http.MethodPost, "/issue/"+url.PathEscape(key)+"/comment", nil, map[string]any{"body": ToADF(text, rich)}, &raw); err != nil {
		return Comment{}, err
	}
	c.logger.Info().Str("issue", key).Msg("added comment")
	return raw.comment(), nil
}

// Comments lists the comments on key.
func (c *Client) Comments(ctx context.Context, key string) ([]Comment, error) {
	var raw struct {
		Comments []rawComment `json:"comments"`
	}
	if err := c.api(ctx, http.MethodGet, "/issue/"+url.PathEscape(key)+"/comment", nil, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]Comment, 0, len(raw.Comments))
	for _, rc := range raw.Comments {
		out = append(out, rc.comment())
	}
	return out, nil
}

// LinkIssues links inward to outward with the named link type.
func (c *Client) LinkIssues(ctx context.Context, inward, outward, linkType string) error {
	body := map[string]any{
		"type":         map[string]any{"name": linkType},
		"inwardIssue":  map[string]any{"key": inward},
		"outwardIssue": map[string]any{"key": outward},
	}
	return c.api(ctx, http.MethodPost, "/issueLink", nil, body, nil)
}

// Project is an accessible Jira project.
type Project struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	ProjectType string `json:"project_type,omitempty"`
}

// Projects lists every accessible project.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var raw []struct {
		ID             string `json:"id"`
		Key            string `json:"key"`
		Name           string `json:"name"`
		ProjectTypeKey string `json:"projectTypeKey"`
	}
	if err := c.api(ctx, http.MethodGet, "/project", nil, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]Project, 0, len(raw))
	for _, p := range raw {
		out = append(out, Project{ID: p.ID, Key: p.Key, Name: p.Name, ProjectType: p.ProjectTypeKey})
	}
	return out, nil
}

// Watcher is one user watching an issue.
type Watcher struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
}

// Watchers describes who watches an issue.
type Watchers struct {
	WatchCount int       `json:"watch_count"`
	IsWatching bool      `json:"is_watching"`
	Watchers   []Watcher `json:"watchers"`
}

// Watchers lists the watchers of key.
func (c *Client) Watchers(ctx context.Context, key string) (Watchers, error) {
	var raw struct {
		WatchCount int  `json:"watchCount"`
		IsWatching bool `json:"isWatching"`
		Watchers   []struct {
			AccountID   string `json:"accountId"`
			DisplayName string `json:"displayName"`
		} `json:"watchers"`
	}
	if err := c.api(ctx, http.MethodGet, "/issue/"+url.PathEscape(key)+"/watchers", nil, nil, &raw); err != nil {
		return Watchers{}, err
	}
	out := Watchers{WatchCount: raw.WatchCount, IsWatching: raw.IsWatching, Watchers: make([]Watcher, 0, len(raw.Watchers))}
	for _, w := range raw.Watchers {
		out.Watchers = append(out.Watchers, Watcher{AccountID: w.AccountID, DisplayName: w.DisplayName})
	}
	return out, nil
}

// AddWatcher adds accountID as a watcher. The API takes a bare JSON string.
func (c *Client) AddWatcher(ctx context.Context, key, accountID string) error {
	if strings.TrimSpace(accountID) == "" {
		return apperrors.Validation("account_id is required")
	}
	return c.api(ctx, http.MethodPost, "/issue/"+url.PathEscape(key)+"/watchers", nil, accountID, nil)
}
