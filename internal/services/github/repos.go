package github

import (
	"context"
	"strings"

	gh "github.com/google/go-github/v30/github"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
)

const maxIssueBody = 500

// Repository summarizes a repository.
type Repository struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	URL           string `json:"url"`
	Description   string `json:"description"`
	Private       bool   `json:"private"`
	Language      string `json:"language"`
	Stars         int    `json:"stars"`
	Forks         int    `json:"forks"`
	OpenIssues    int    `json:"open_issues"`
	DefaultBranch string `json:"default_branch"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// ListRepositories lists the repositories of username, or of the
// authenticated user when username is empty.
func (c *Client) ListRepositories(ctx context.Context, username, sort string, limit int) ([]Repository, error) {
	switch sort {
	case "":
		sort = "updated"
	case "created", "updated", "pushed", "full_name":
	default:
		return nil, apperrors.Validation("sort must be created, updated, pushed or full_name, got %q", sort)
	}
	opts := &gh.RepositoryListOptions{Sort: sort, ListOptions: gh.ListOptions{PerPage: limit}}
	repos, err := call(ctx, c, "list repositories", func(ctx context.Context) ([]*gh.Repository, *gh.Response, error) {
		return c.api.Repositories.List(ctx, strings.TrimSpace(username), opts)
	})
	if err != nil {
		return nil, err
	}
	out := make([]Repository, 0, len(repos))
	for _, r := range repos {
		if len(out) == limit {
			break
		}
		out = append(out, Repository{
			Name:          r.GetName(),
			FullName:      r.GetFullName(),
			URL:           r.GetHTMLURL(),
			Description:   r.GetDescription(),
			Private:       r.GetPrivate(),
			Language:      r.GetLanguage(),
			Stars:         r.GetStargazersCount(),
			Forks:         r.GetForksCount(),
			OpenIssues:    r.GetOpenIssuesCount(),
			DefaultBranch: r.GetDefaultBranch(),
			CreatedAt:     formatTime(r.GetCreatedAt().Time),
			UpdatedAt:     formatTime(r.GetUpdatedAt().Time),
		})
	}
	return out, nil
}

// Issue summarizes an issue. Bodies are cut to 500 characters.
type Issue struct {
	Number    int      `json:"number"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	State     string   `json:"state"`
	URL       string   `json:"url"`
	User      string   `json:"user"`
	Assignees []string `json:"assignees"`
	Labels    []string `json:"labels"`
	Comments  int      `json:"comments"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// ListIssues lists issues, skipping pull requests.
func (c *Client) ListIssues(ctx context.Context, owner, repo, state string, labels []string, limit int) ([]Issue, error) {
	switch state {
	case "":
		state = "open"
	case "open", "closed", "all":
	default:
		return nil, apperrors.Validation("state must be open, closed or all, got %q", state)
	}
	opts := &gh.IssueListByRepoOptions{State: state, Labels: labels, ListOptions: gh.ListOptions{PerPage: limit}}
	issues, err := call(ctx, c, "list issues", func(ctx context.Context) ([]*gh.Issue, *gh.Response, error) {
		return c.api.Issues.ListByRepo(ctx, owner, repo, opts)
	})
	if err != nil {
		return nil, err
	}
	out := make([]Issue, 0, len(issues))
	for _, is := range issues {
		if is.IsPullRequest() {
			continue
		}
		if len(out) == limit {
			break
		}
		assignees := make([]string, 0, len(is.Assignees))
		for _, a := range is.Assignees {
			assignees = append(assignees, a.GetLogin())
		}
		names := make([]string, 0, len(is.Labels))
		for _, l := range is.Labels {
			names = append(names, l.GetName())
		}
		out = append(out, Issue{
			Number:    is.GetNumber(),
			Title:     is.GetTitle(),
			Body:      truncate(is.GetBody(), maxIssueBody),
			State:     is.GetState(),
			URL:       is.GetHTMLURL(),
			User:      is.GetUser().GetLogin(),
			Assignees: assignees,
			Labels:    names,
			Comments:  is.GetComments(),
			CreatedAt: formatTime(is.GetCreatedAt()),
			UpdatedAt: formatTime(is.GetUpdatedAt()),
		})
	}
	return out, nil
}

// Created describes a new issue or pull request.
type Created struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	State     string `json:"state"`
	CreatedAt string `json:"created_at"`
}

// CreateIssue opens an issue.
func (c *Client) CreateIssue(ctx context.Context, owner, repo, title, body string, labels, assignees []string) (Created, error) {
	req := &gh.IssueRequest{Title: gh.String(title), Body: gh.String(body)}
	if len(labels) > 0 {
		req.Labels = &labels
	}
	if len(assignees) > 0 {
		req.Assignees = &assignees
	}
	is, err := call(ctx, c, "create issue", func(ctx context.Context) (*gh.Issue, *gh.Response, error) {
		return c.api.Issues.Create(ctx, owner, repo, req)
	})
	if err != nil {
		return Created{}, err
	}
	c.logger.Info().Str("repo", owner+"/"+repo).Int("number", is.GetNumber()).Msg("created issue")
	return Created{
		Number:    is.GetNumber(),
		Title:     is.GetTitle(),
		URL:       is.GetHTMLURL(),
		State:     is.GetState(),
		CreatedAt: formatTime(is.GetCreatedAt()),
	}, nil
}

// CreatePullRequest opens a pull request from head into base.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo, title, head, base, body string) (Created, error) {
	req := &gh.NewPullRequest{Title: gh.String(title), Head: gh.String(head), Base: gh.String(base), Body: gh.String(body)}
	pr, err := call(ctx, c, "create pull request", func(ctx context.Context) (*gh.PullRequest, *gh.Response, error) {
		return c.api.PullRequests.Create(ctx, owner, repo, req)
	})
	if err != nil {
		return Created{}, err
	}
	c.logger.Info().Str("repo", owner+"/"+repo).Int("number", pr.GetNumber()).Msg("created pull request")
	return Created{
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		URL:       pr.GetHTMLURL(),
		State:     pr.GetState(),
		CreatedAt: formatTime(pr.GetCreatedAt()),
	}, nil
}

// Branch summarizes a branch.
type Branch struct {
	Name      string `json:"name"`
	Protected bool   `json:"protected"`
	CommitSHA string `json:"commit_sha"`
	CommitURL string `json:"commit_url,omitempty"`
}

// ListBranches lists up to limit branches.
func (c *Client) ListBranches(ctx context.Context, owner, repo string, limit int) ([]Branch, error) {
	opts := &gh.BranchListOptions{ListOptions: gh.ListOptions{PerPage: limit}}
	branches, err := call(ctx, c, "list branches", func(ctx context.Context) ([]*gh.Branch, *gh.Response, error) {
		return c.api.Repositories.ListBranches(ctx, owner, repo, opts)
	})
	if err != nil {
		return nil, err
	}
	out := make([]Branch, 0, len(branches))
	for _, b := range branches {
		if len(out) == limit {
			break
		}
		out = append(out, Branch{
			Name:      b.GetName(),
			Protected: b.GetProtected(),
			CommitSHA: b.GetCommit().GetSHA(),
			CommitURL: b.GetCommit().GetHTMLURL(),
		})
	}
	return out, nil
}

// BranchCommit is the head commit of a branch.
type BranchCommit struct {
	SHA     string `json:"sha"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message"`
	Author  string `json:"author"`
	Date    string `json:"date"`
}

// BranchInfo describes a branch and its head commit.
type BranchInfo struct {
	Name      string       `json:"name"`
	Protected bool         `json:"protected"`
	Commit    BranchCommit `json:"commit"`
}

// GetBranch returns a branch. A missing branch is not_found.
func (c *Client) GetBranch(ctx context.Context, owner, repo, branch string) (BranchInfo, error) {
	b, err := call(ctx, c, "get branch", func(ctx context.Context) (*gh.Branch, *gh.Response, error) {
		return c.api.Repositories.GetBranch(ctx, owner, repo, branch)
	})
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return BranchInfo{}, apperrors.Wrap(apperrors.CodeNotFound, "branch '"+branch+"' not found", err)
		}
		return BranchInfo{}, err
	}
	head := b.GetCommit()
	return BranchInfo{
		Name:      b.GetName(),
		Protected: b.GetProtected(),
		Commit: BranchCommit{
			SHA:     head.GetSHA(),
			URL:     head.GetHTMLURL(),
			Message: head.GetCommit().GetMessage(),
			Author:  head.GetCommit().GetAuthor().GetName(),
			Date:    formatTime(head.GetCommit().GetAuthor().GetDate()),
		},
	}, nil
}

// CreatedBranch describes a new branch.
type CreatedBranch struct {
	Success      bool   `json:"success"`
	BranchName   string `json:"branch_name"`
	SourceBranch string `json:"source_branch"`
	SHA          string `json:"sha"`
	Ref          string `json:"ref"`
}

// headSHA resolves the commit a branch points at.
func (c *Client) headSHA(ctx context.Context, owner, repo, branch string) (string, error) {
	ref, err := call(ctx, c, "get ref", func(ctx context.Context) (*gh.Reference, *gh.Response, error) {
		return c.api.Git.GetRef(ctx, owner, repo, "heads/"+branch)
	})
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return "", apperrors.Wrap(apperrors.CodeNotFound, "branch '"+branch+"' not found", err)
		}
		return "", err
	}
	return ref.GetObject().GetSHA(), nil
}

// CreateBranch branches from source. An existing branch is a conflict.
func (c *Client) CreateBranch(ctx context.Context, owner, repo, name, source string) (CreatedBranch, error) {
	source = c.branch(source)
	existing, err := c.GetBranch(ctx, owner, repo, name)
	switch {
	case err == nil:
		return CreatedBranch{}, apperrors.WithMetadata(apperrors.CodeConflict,
			"branch '"+name+"' already exists",
			map[string]any{"existing_branch": map[string]any{"name": existing.Name, "commit_sha": existing.Commit.SHA}})
	case apperrors.CodeOf(err) != apperrors.CodeNotFound:
		return CreatedBranch{}, err
	}
	sha, err := c.headSHA(ctx, owner, repo, source)
	if err != nil {
		return CreatedBranch{}, err
	}
	ref := &gh.Reference{Ref: gh.String("refs/heads/" + name), Object: &gh.GitObject{SHA: gh.String(sha)}}
	created, err := call(ctx, c, "create ref", func(ctx context.Context) (*gh.Reference, *gh.Response, error) {
		return c.api.Git.CreateRef(ctx, owner, repo, ref)
	})
	if err != nil {
		return CreatedBranch{}, err
	}
	c.logger.Info().Str("repo", owner+"/"+repo).Str("branch", name).Str("sha", shortSHA(sha)).Msg("created branch")
	return CreatedBranch{Success: true, BranchName: name, SourceBranch: source, SHA: sha, Ref: created.GetRef()}, nil
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
