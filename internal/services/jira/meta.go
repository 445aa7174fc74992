package jira

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
)

// IssueType is an issue type available in a project.
type IssueType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Subtask     bool   `json:"subtask"`
}

// FieldMeta describes one field of the create screen.
type FieldMeta struct {
	FieldID  string `json:"field_id"`
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Type     string `json:"type,omitempty"`
}

type rawField struct {
	FieldID  string `json:"fieldId"`
	Key      string `json:"key"`
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Schema   struct {
		Type string `json:"type"`
	} `json:"schema"`
}

func (f rawField) meta(id string) FieldMeta {
	if id == "" {
		id = f.FieldID
	}
	if id == "" {
		id = f.Key
	}
	return FieldMeta{FieldID: id, Name: f.Name, Required: f.Required, Type: f.Schema.Type}
}

// IssueTypes lists the issue types that can be created in project.
func (c *Client) IssueTypes(ctx context.Context, project string) ([]IssueType, error) {
	var raw struct {
		IssueTypes []IssueType `json:"issueTypes"`
		Values     []IssueType `json:"values"`
	}
	path := "/issue/createmeta/" + url.PathEscape(project) + "/issuetypes"
	if err := c.api(ctx, http.MethodGet, path, nil, nil, &raw); err != nil {
		return nil, err
	}
	types := raw.IssueTypes
	if len(types) == 0 {
		types = raw.Values
	}
	if types == nil {
		types = []IssueType{}
	}
	c.logger.Info().Str("project", project).Int("count", len(types)).Msg("retrieved issue types")
	return types, nil
}

// CreateMetadata lists the create-screen fields of an issue type.
func (c *Client) CreateMetadata(ctx context.Context, project, issueTypeID string) ([]FieldMeta, error) {
	var raw struct {
		Fields  []rawField `json:"fields"`
		Values  []rawField `json:"values"`
		Results []rawField `json:"results"`
	}
	path := "/issue/createmeta/" + url.PathEscape(project) + "/issuetypes/" + url.PathEscape(issueTypeID)
	if err := c.api(ctx, http.MethodGet, path, nil, nil, &raw); err != nil {
		return nil, err
	}
	fields := append(append(raw.Fields, raw.Values...), raw.Results...)
	out := make([]FieldMeta, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.meta(""))
	}
	return out, nil
}

// CreatableIssueType is an issue type with its required fields.
type CreatableIssueType struct {
	IssueType
	RequiredFields []FieldMeta `json:"required_fields"`
}

// CreatableIssueTypes reads the expanded create metadata of project.
func (c *Client) CreatableIssueTypes(ctx context.Context, project string) ([]CreatableIssueType, error) {
	var raw struct {
		Projects []struct {
			IssueTypes []struct {
				IssueType
				Fields map[string]rawField `json:"fields"`
			} `json:"issuetypes"`
		} `json:"projects"`
	}
	q := url.Values{"projectKeys": {project}, "expand": {"projects.issuetypes.fields"}}
	if err := c.api(ctx, http.MethodGet, "/issue/createmeta", q, nil, &raw); err != nil {
		return nil, err
	}
	out := []CreatableIssueType{}
	for _, p := range raw.Projects {
		for _, it := range p.IssueTypes {
			ct := CreatableIssueType{IssueType: it.IssueType, RequiredFields: []FieldMeta{}}
			for id, f := range it.Fields {
				if f.Required {
					ct.RequiredFields = append(ct.RequiredFields, f.meta(id))
				}
			}
			sort.Slice(ct.RequiredFields, func(i, j int) bool {
				return ct.RequiredFields[i].FieldID < ct.RequiredFields[j].FieldID
			})
			out = append(out, ct)
		}
	}
	return out, nil
}

func (c *Client) findIssueType(ctx context.Context, project, name string) (IssueType, error) {
	types, err := c.IssueTypes(ctx, project)
	if err != nil {
		return IssueType{}, err
	}
	names := make([]string, 0, len(types))
	for _, it := range types {
		if strings.EqualFold(it.Name, name) {
			return it, nil
		}
		names = append(names, it.Name)
	}
	return IssueType{}, apperrors.WithMetadata(apperrors.CodeNotFound,
		fmt.Sprintf("issue type %q not found in project %s", name, project),
		map[string]any{"available_issue_types": names})
}

var estimateKeywords = []string{"story point", "point", "estimate", "effort"}

func isStoryPointsName(name string) bool {
	return strings.Contains(strings.ToLower(name), "story point")
}

func isEstimateName(name string) bool {
	lower := strings.ToLower(name)
	for _, k := range estimateKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// StoryPointsField returns the id of the story points field on the create
// screen of project/issueType.
func (c *Client) StoryPointsField(ctx context.Context, project, issueType string) (string, error) {
	it, err := c.findIssueType(ctx, project, issueType)
	if err != nil {
		return "", err
	}
	fields, err := c.CreateMetadata(ctx, project, it.ID)
	if err != nil {
		return "", err
	}
	for _, f := range fields {
		if isStoryPointsName(f.Name) {
			return f.FieldID, nil
		}
	}
	return "", apperrors.Newf(apperrors.CodeValidation,
		"issue type %s in project %s has no story points field on its create screen; omit story_points", issueType, project)
}

// StoryPointsReport describes how story points apply to an issue type.
type StoryPointsReport struct {
	ProjectKey          string      `json:"project_key"`
	IssueType           string      `json:"issue_type"`
	StoryPointsRequired bool        `json:"story_points_required"`
	StoryPointsFields   []FieldMeta `json:"story_points_fields"`
	RequiredFields      []FieldMeta `json:"all_required_fields"`
}

// CheckStoryPoints reports estimate-like fields and every required field of
// an issue type.
func (c *Client) CheckStoryPoints(ctx context.Context, project, issueType string) (StoryPointsReport, error) {
	it, err := c.findIssueType(ctx, project, issueType)
	if err != nil {
		return StoryPointsReport{}, err
	}
	fields, err := c.CreateMetadata(ctx, project, it.ID)
	if err != nil {
		return StoryPointsReport{}, err
	}
	out := StoryPointsReport{ProjectKey: project, IssueType: it.Name, StoryPointsFields: []FieldMeta{}, RequiredFields: []FieldMeta{}}
	for _, f := range fields {
		if isEstimateName(f.Name) {
			out.StoryPointsFields = append(out.StoryPointsFields, f)
			out.StoryPointsRequired = out.StoryPointsRequired || f.Required
		}
		if f.Required {
			out.RequiredFields = append(out.RequiredFields, f)
		}
	}
	return out, nil
}
