package github

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/mcpsuite/mcpsuite/internal/platform/config"
	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/platform/logging"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/domain"
)

// Config configures the GitHub server.
type Config struct {
	Token          string `env:"GITHUB_PERSONAL_ACCESS_TOKEN"`
	APIURL         string `env:"GITHUB_API_URL"`
	DefaultBranch  string `env:"GITHUB_DEFAULT_BRANCH" envDefault:"main"`
	TimeoutSeconds int    `env:"GITHUB_TIMEOUT" envDefault:"30"`
	MaxRetries     int    `env:"GITHUB_MAX_RETRIES" envDefault:"3"`
	TreeWorkers    int    `env:"GITHUB_TREE_WORKERS" envDefault:"8"`
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Module builds the GitHub server from GITHUB_* variables.
func Module(_ context.Context, deps domain.Deps) domain.Module {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return NewModule(nil, err)
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}
	settings := []logging.Setting{
		{Key: "Token", Value: cfg.Token},
		{Key: "API URL", Value: apiURL},
		{Key: "Default Branch", Value: cfg.DefaultBranch},
		{Key: "Timeout", Value: cfg.TimeoutSeconds},
		{Key: "Max Retries", Value: cfg.MaxRetries},
	}
	if missing := config.Missing(map[string]string{
		"GITHUB_PERSONAL_ACCESS_TOKEN": cfg.Token,
	}, "GITHUB_PERSONAL_ACCESS_TOKEN"); len(missing) > 0 {
		module := NewModule(nil, apperrors.NotConfigured("GitHub", missing...))
		module.Settings = settings
		return module
	}
	var logger *zerolog.Logger
	if deps.Logger != nil {
		logger = &deps.Logger.Logger
	}
	client, err := NewClient(cfg, logger)
	if err != nil {
		module := NewModule(nil, err)
		module.Settings = settings
		return module
	}
	module := NewModule(client, nil)
	module.Settings = settings
	module.Health = client.Ping
	return module
}

type server struct {
	client *Client
	cfgErr error
}

func (s server) get() (*Client, error) {
	if s.client == nil {
		return nil, domain.NotConfigured("GitHub", s.cfgErr)
	}
	return s.client, nil
}

// repo resolves the client and the owner/repo pair.
func (s server) repo(ctx context.Context, name string) (*Client, string, string, error) {
	c, err := s.get()
	if err != nil {
		return nil, "", "", err
	}
	owner, repo, err := c.Repo(ctx, name)
	if err != nil {
		return nil, "", "", err
	}
	return c, owner, repo, nil
}

// NewModule exposes client as MCP tools. client may be nil, in which case
// tools report cfgErr.
func NewModule(client *Client, cfgErr error) domain.Module {
	s := server{client: client, cfgErr: cfgErr}
	tool := func(name, desc string) *mcp.Tool { return &mcp.Tool{Name: name, Description: desc} }
	return domain.Module{
		Name: "GitHub",
		Tools: []domain.ToolRegistration{
			domain.Tool(tool("list_repositories", "List repositories of a user or of the authenticated user"), s.listRepositories),
			domain.Tool(tool("get_file_content", "Read a file from a repository branch"), s.getFileContent),
			domain.Tool(tool("list_issues", "List repository issues, excluding pull requests"), s.listIssues),
			domain.Tool(tool("create_issue", "Open an issue"), s.createIssue),
			domain.Tool(tool("create_pull_request", "Open a pull request from head into base"), s.createPullRequest),
			domain.Tool(tool("list_branches", "List repository branches"), s.listBranches),
			domain.Tool(tool("get_branch_info", "Get a branch and its latest commit"), s.getBranchInfo),
			domain.Tool(tool("create_branch", "Create a branch from a source branch"), s.createBranch),
			domain.Tool(tool("create_or_update_file", "Create a file, or update it when it exists"), s.createOrUpdateFile),
			domain.Tool(tool("commit_multiple_files", "Write several files in one commit"), s.commitMultipleFiles),
			domain.Tool(tool("delete_file", "Delete a file"), s.deleteFile),
			domain.Tool(tool("get_directory_tree", "List a directory tree down to a depth"), s.getDirectoryTree),
		},
		ConfigErr: cfgErr,
	}
}

// ListRepositoriesInput is the list_repositories input.
type ListRepositoriesInput struct {
	Username string `json:"username,omitempty" jsonschema:"user whose repositories to list (default: authenticated user)"`
	Sort     string `json:"sort,omitempty" jsonschema:"created, updated, pushed or full_name (default updated)"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum repositories, at most 100 (default 20)"`
}

// RepositoriesResult lists repositories.
type RepositoriesResult struct {
	Count        int          `json:"count"`
	Repositories []Repository `json:"repositories"`
}

func (s server) listRepositories(ctx context.Context, _ *mcp.CallToolRequest, in ListRepositoriesInput) (*mcp.CallToolResult, RepositoriesResult, error) {
	c, err := s.get()
	if err != nil {
		return nil, RepositoriesResult{}, err
	}
	repos, err := c.ListRepositories(ctx, in.Username, in.Sort, domain.Clamp(in.Limit, defaultListLimit, 1, maxListLimit))
	if err != nil {
		return nil, RepositoriesResult{}, err
	}
	return nil, RepositoriesResult{Count: len(repos), Repositories: repos}, nil
}

// FileInput names a file on a branch.
type FileInput struct {
	RepoName string `json:"repo_name" jsonschema:"owner/repo, or a repository of the authenticated user"`
	FilePath string `json:"file_path" jsonschema:"path of the file in the repository"`
	Branch   string `json:"branch,omitempty" jsonschema:"branch (default GITHUB_DEFAULT_BRANCH)"`
}

func (s server) getFileContent(ctx context.Context, _ *mcp.CallToolRequest, in FileInput) (*mcp.CallToolResult, File, error) {
	c, owner, repo, err := s.repo(ctx, in.RepoName)
	if err != nil {
		return nil, File{}, err
	}
	f, err := c.GetFile(ctx, owner, repo, in.FilePath, in.Branch)
	return nil, f, err
}

// ListIssuesInput is the list_issues input.
type ListIssuesInput struct {
	RepoName string   `json:"repo_name" jsonschema:"owner/repo"`
	State    string   `json:"state,omitempty" jsonschema:"open, closed or all (default open)"`
	Labels   []string `json:"labels,omitempty" jsonschema:"only issues carrying every label"`
	Limit    int      `json:"limit,omitempty" jsonschema:"maximum issues, at most 100 (default 20)"`
}

// IssuesResult lists issues.
type IssuesResult struct {
	Repository string  `json:"repository"`
	Count      int     `json:"count"`
	Issues     []Issue `json:"issues"`
}

func (s server) listIssues(ctx context.Context, _ *mcp.CallToolRequest, in ListIssuesInput) (*mcp.CallToolResult, IssuesResult, error) {
	c, owner, repo, err := s.repo(ctx, in.RepoName)
	if err != nil {
		return nil, IssuesResult{}, err
	}
	issues, err := c.ListIssues(ctx, owner, repo, in.State, in.Labels, domain.Clamp(in.Limit, defaultListLimit, 1, maxListLimit))
	if err != nil {
		return nil, IssuesResult{}, err
	}
	return nil, IssuesResult{Repository: owner + "/" + repo, Count: len(issues), Issues: issues}, nil
}

// CreateIssueInput is the create_issue input.
type CreateIssueInput struct {
	RepoName  string   `json:"repo_name" jsonschema:"owner/repo"`
	Title     string   `json:"title" jsonschema:"issue title"`
	Body      string   `json:"body,omitempty" jsonschema:"issue body in Markdown"`
	Labels    []string `json:"labels,omitempty" jsonschema:"labels to apply"`
	Assignees []string `json:"assignees,omitempty" jsonschema:"logins to assign"`
}

func (s server) createIssue(ctx context.Context, _ *mcp.CallToolRequest, in CreateIssueInput) (*mcp.CallToolResult, Created, error) {
	if err := domain.Require("title", in.Title); err != nil {
		return nil, Created{}, err
	}
	c, owner, repo, err := s.repo(ctx, in.RepoName)
	if err != nil {
		return nil, Created{}, err
	}
	created, err := c.CreateIssue(ctx, owner, repo, in.Title, in.Body, in.Labels, in.Assignees)
	return nil, created, err
}

// CreatePullRequestInput is the create_pull_request input.
type CreatePullRequestInput struct {
	RepoName string `json:"repo_name" jsonschema:"owner/repo"`
	Title    string `json:"title" jsonschema:"pull request title"`
	Head     string `json:"head" jsonschema:"branch with the changes"`
	Base     string `json:"base" jsonschema:"branch to merge into"`
	Body     string `json:"body,omitempty" jsonschema:"pull request description"`
}

func (s server) createPullRequest(ctx context.Context, _ *mcp.CallToolRequest, in CreatePullRequestInput) (*mcp.CallToolResult, Created, error) {
	if err := domain.Require("title", in.Title, "head", in.Head, "base", in.Base); err != nil {
		return nil, Created{}, err
	}
	c, owner, repo, err := s.repo(ctx, in.RepoName)
	if err != nil {
		return nil, Created{}, err
	}
	created, err := c.CreatePullRequest(ctx, owner, repo, in.Title, in.Head, in.Base, in.Body)
	return nil, created, err
}

// ListBranchesInput is the list_branches input.
type ListBranchesInput struct {
	RepoName string `json:"repo_name" jsonschema:"owner/repo"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum branches, at most 100 (default 20)"`
}

// BranchesResult lists branches.
type BranchesResult struct {
	Repository string   `json:"repository"`
	Count      int      `json:"count"`
	Branches   []Branch `json:"branches"`
}

func (s server) listBranches(ctx context.Context, _ *mcp.CallToolRequest, in ListBranchesInput) (*mcp.CallToolResult, BranchesResult, error) {
	c, owner, repo, err := s.repo(ctx, in.RepoName)
	if err != nil {
		return nil, BranchesResult{}, err
	}
	branches, err := c.ListBranches(ctx, owner, repo, domain.Clamp(in.Limit, defaultListLimit, 1, maxListLimit))
	if err != nil {
		return nil, BranchesResult{}, err
	}
	return nil, BranchesResult{Repository: owner + "/" + repo, Count: len(branches), Branches: branches}, nil
}

// BranchInput names a branch.
type BranchInput struct {
	RepoName   string `json:"repo_name" jsonschema:"owner/repo"`
	BranchName string `json:"branch_name" jsonschema:"branch name"`
}

func (s server) getBranchInfo(ctx context.Context, _ *mcp.CallToolRequest, in BranchInput) (*mcp.CallToolResult, BranchInfo, error) {
	if err := domain.Require("branch_name", in.BranchName); err != nil {
		return nil, BranchInfo{}, err
	}
	c, owner, repo, err := s.repo(ctx, in.RepoName)
	if err != nil {
		return nil, BranchInfo{}, err
	}
	info, err := c.GetBranch(ctx, owner, repo, in.BranchName)
	return nil, info, err
}

// CreateBranchInput is the create_branch input.
type CreateBranchInput struct {
	RepoName     string `json:"repo_name" jsonschema:"owner/repo"`
	BranchName   string `json:"branch_name" jsonschema:"new branch name"`
	SourceBranch string `json:"source_branch,omitempty" jsonschema:"branch to start from (default GITHUB_DEFAULT_BRANCH)"`
}

func (s server) createBranch(ctx context.Context, _ *mcp.CallToolRequest, in CreateBranchInput) (*mcp.CallToolResult, CreatedBranch, error) {
	if err := domain.Require("branch_name", in.BranchName); err != nil {
		return nil, CreatedBranch{}, err
	}
	c, owner, repo, err := s.repo(ctx, in.RepoName)
	if err != nil {
		return nil, CreatedBranch{}, err
	}
	created, err := c.CreateBranch(ctx, owner, repo, in.BranchName, in.SourceBranch)
	return nil, created, err
}

// PutFileInput is the create_or_update_file input.
type PutFileInput struct {
	RepoName      string `json:"repo_name" jsonschema:"owner/repo"`
	FilePath      string `json:"file_path" jsonschema:"path of the file in the repository"`
	Content       string `json:"content" jsonschema:"full file content"`
	CommitMessage string `json:"commit_message" jsonschema:"commit message"`
	Branch        string `json:"branch,omitempty" jsonschema:"branch (default GITHUB_DEFAULT_BRANCH)"`
	SHA           string `json:"sha,omitempty" jsonschema:"current blob sha from get_file_content; looked up when omitted"`
}

func (s server) createOrUpdateFile(ctx context.Context, _ *mcp.CallToolRequest, in PutFileInput) (*mcp.CallToolResult, FileChange, error) {
	if err := domain.Require("commit_message", in.CommitMessage); err != nil {
		return nil, FileChange{}, err
	}
	c, owner, repo, err := s.repo(ctx, in.RepoName)
	if err != nil {
		return nil, FileChange{}, err
	}
	change, err := c.PutFile(ctx, owner, repo, in.FilePath, in.Content, in.CommitMessage, in.Branch, in.SHA)
	return nil, change, err
}

// CommitFilesInput is the commit_multiple_files input.
type CommitFilesInput struct {
	RepoName      string        `json:"repo_name" jsonschema:"owner/repo"`
	Files         []FileContent `json:"files" jsonschema:"files to write"`
	CommitMessage string        `json:"commit_message" jsonschema:"commit message"`
	Branch        string        `json:"branch,omitempty" jsonschema:"branch to commit to (default GITHUB_DEFAULT_BRANCH)"`
	BaseBranch    string        `json:"base_branch,omitempty" jsonschema:"branch whose head becomes the parent (default: branch)"`
}

func (s server) commitMultipleFiles(ctx context.Context, _ *mcp.CallToolRequest, in CommitFilesInput) (*mcp.CallToolResult, MultiCommit, error) {
	if err := domain.Require("commit_message", in.CommitMessage); err != nil {
		return nil, MultiCommit{}, err
	}
	c, owner, repo, err := s.repo(ctx, in.RepoName)
	if err != nil {
		return nil, MultiCommit{}, err
	}
	res, err := c.CommitFiles(ctx, owner, repo, in.Branch, in.BaseBranch, in.Files, in.CommitMessage)
	return nil, res, err
}

// DeleteFileInput is the delete_file input.
type DeleteFileInput struct {
	RepoName      string `json:"repo_name" jsonschema:"owner/repo"`
	FilePath      string `json:"file_path" jsonschema:"path of the file in the repository"`
	CommitMessage string `json:"commit_message" jsonschema:"commit message"`
	Branch        string `json:"branch,omitempty" jsonschema:"branch (default GITHUB_DEFAULT_BRANCH)"`
	SHA           string `json:"sha,omitempty" jsonschema:"current blob sha; looked up when omitted"`
}

func (s server) deleteFile(ctx context.Context, _ *mcp.CallToolRequest, in DeleteFileInput) (*mcp.CallToolResult, FileChange, error) {
	if err := domain.Require("commit_message", in.CommitMessage); err != nil {
		return nil, FileChange{}, err
	}
	c, owner, repo, err := s.repo(ctx, in.RepoName)
	if err != nil {
		return nil, FileChange{}, err
	}
	change, err := c.DeleteFile(ctx, owner, repo, in.FilePath, in.CommitMessage, in.Branch, in.SHA)
	return nil, change, err
}

// TreeInput is the get_directory_tree input.
type TreeInput struct {
	RepoName string `json:"repo_name" jsonschema:"owner/repo"`
	Path     string `json:"path,omitempty" jsonschema:"directory to list (default: repository root)"`
	Branch   string `json:"branch,omitempty" jsonschema:"branch (default GITHUB_DEFAULT_BRANCH)"`
	MaxDepth int    `json:"max_depth,omitempty" jsonschema:"levels below path to include, 1 to 10 (default 3)"`
}

func (s server) getDirectoryTree(ctx context.Context, _ *mcp.CallToolRequest, in TreeInput) (*mcp.CallToolResult, Tree, error) {
	c, owner, repo, err := s.repo(ctx, in.RepoName)
	if err != nil {
		return nil, Tree{}, err
	}
	tree, err := c.DirectoryTree(ctx, owner, repo, in.Path, in.Branch, domain.Clamp(in.MaxDepth, defaultTreeDepth, 1, 10))
	return nil, tree, err
}
