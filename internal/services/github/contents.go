package github

import (
	"context"
	"path"
	"sort"
	"strings"

	gh "github.com/google/go-github/v30/github"
	"github.com/sourcegraph/conc/pool"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
)

const (
	defaultTreeDepth = 3
	regularFileMode  = "100644"
)

// File is a decoded file.
type File struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Size     int    `json:"size"`
	SHA      string `json:"sha"`
	URL      string `json:"url"`
	Encoding string `json:"encoding"`
}

func cleanPath(p string) string {
	return strings.Trim(strings.TrimSpace(p), "/")
}

// GetFile returns the decoded content of a file. Directories are
// rejected with their listing in the error context.
func (c *Client) GetFile(ctx context.Context, owner, repo, filePath, branch string) (File, error) {
	filePath = cleanPath(filePath)
	if filePath == "" {
		return File{}, apperrors.Validation("file_path is required")
	}
	branch = c.branch(branch)
	type contents struct {
		file *gh.RepositoryContent
		dir  []*gh.RepositoryContent
	}
	got, err := call(ctx, c, "get contents", func(ctx context.Context) (contents, *gh.Response, error) {
		file, dir, resp, err := c.api.Repositories.GetContents(ctx, owner, repo, filePath, &gh.RepositoryContentGetOptions{Ref: branch})
		return contents{file: file, dir: dir}, resp, err
	})
	if err != nil {
		return File{}, err
	}
	if got.file == nil {
		items := make([]string, 0, len(got.dir))
		for _, item := range got.dir {
			items = append(items, item.GetPath())
		}
		return File{}, apperrors.WithMetadata(apperrors.CodeValidation, "path is a directory: "+filePath, map[string]any{"items": items})
	}
	content, err := got.file.GetContent()
	if err != nil {
		return File{}, apperrors.Wrap(apperrors.CodeUnexpected, "decode "+filePath+": "+err.Error(), err)
	}
	return File{
		Path:     filePath,
		Content:  content,
		Size:     got.file.GetSize(),
		SHA:      got.file.GetSHA(),
		URL:      got.file.GetHTMLURL(),
		Encoding: got.file.GetEncoding(),
	}, nil
}

// CommitRef identifies a commit made by a write.
type CommitRef struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
	Author  string `json:"author,omitempty"`
	Date    string `json:"date,omitempty"`
}

// FileChange reports a single-file write.
type FileChange struct {
	Success    bool      `json:"success"`
	Action     string    `json:"action"`
	FilePath   string    `json:"file_path"`
	Branch     string    `json:"branch"`
	Commit     CommitRef `json:"commit"`
	ContentSHA string    `json:"content_sha,omitempty"`
}

// fileSHA returns the blob sha of an existing file, or "" when it is
// missing.
func (c *Client) fileSHA(ctx context.Context, owner, repo, filePath, branch string) (string, error) {
	f, err := c.GetFile(ctx, owner, repo, filePath, branch)
	switch {
	case err == nil:
		return f.SHA, nil
	case apperrors.CodeOf(err) == apperrors.CodeNotFound:
		return "", nil
	default:
		return "", err
	}
}

// PutFile creates filePath, or updates it when it already exists. sha may
// be passed to skip the lookup.
func (c *Client) PutFile(ctx context.Context, owner, repo, filePath, content, message, branch, sha string) (FileChange, error) {
	filePath = cleanPath(filePath)
	if filePath == "" {
		return FileChange{}, apperrors.Validation("file_path is required")
	}
	branch = c.branch(branch)
	if sha == "" {
		var err error
		if sha, err = c.fileSHA(ctx, owner, repo, filePath, branch); err != nil {
			return FileChange{}, err
		}
	}
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.String(message),
		Content: []byte(content),
		Branch:  gh.String(branch),
	}
	action := "created"
	write := c.api.Repositories.CreateFile
	if sha != "" {
		action = "updated"
		opts.SHA = gh.String(sha)
		write = c.api.Repositories.UpdateFile
	}
	res, err := call(ctx, c, action+" file", func(ctx context.Context) (*gh.RepositoryContentResponse, *gh.Response, error) {
		return write(ctx, owner, repo, filePath, opts)
	})
	if err != nil {
		return FileChange{}, err
	}
	c.logger.Info().Str("repo", owner+"/"+repo).Str("path", filePath).Str("action", action).Msg("wrote file")
	return FileChange{
		Success:    true,
		Action:     action,
		FilePath:   filePath,
		Branch:     branch,
		Commit:     CommitRef{SHA: res.Commit.GetSHA(), Message: message, URL: res.Commit.GetHTMLURL()},
		ContentSHA: res.GetContent().GetSHA(),
	}, nil
}

// DeleteFile removes filePath. A missing sha is looked up first.
func (c *Client) DeleteFile(ctx context.Context, owner, repo, filePath, message, branch, sha string) (FileChange, error) {
	filePath = cleanPath(filePath)
	if filePath == "" {
		return FileChange{}, apperrors.Validation("file_path is required")
	}
	branch = c.branch(branch)
	if sha == "" {
		f, err := c.GetFile(ctx, owner, repo, filePath, branch)
		if err != nil {
			return FileChange{}, err
		}
		sha = f.SHA
	}
	opts := &gh.RepositoryContentFileOptions{Message: gh.String(message), SHA: gh.String(sha), Branch: gh.String(branch)}
	res, err := call(ctx, c, "delete file", func(ctx context.Context) (*gh.RepositoryContentResponse, *gh.Response, error) {
		return c.api.Repositories.DeleteFile(ctx, owner, repo, filePath, opts)
	})
	if err != nil {
		return FileChange{}, err
	}
	c.logger.Info().Str("repo", owner+"/"+repo).Str("path", filePath).Msg("deleted file")
	return FileChange{
		Success:  true,
		Action:   "deleted",
		FilePath: filePath,
		Branch:   branch,
		Commit:   CommitRef{SHA: res.Commit.GetSHA(), Message: message, URL: res.Commit.GetHTMLURL()},
	}, nil
}

// FileContent is one file of a multi-file commit.
type FileContent struct {
	Path    string `json:"path" jsonschema:"file path in the repository"`
	Content string `json:"content" jsonschema:"full file content"`
}

// MultiCommit reports a multi-file commit.
type MultiCommit struct {
	Success    bool      `json:"success"`
	Branch     string    `json:"branch"`
	FilesCount int       `json:"files_count"`
	Commit     CommitRef `json:"commit"`
}

// CommitFiles writes every file in a single commit on branch. The new
// tree is based on baseBranch when given, otherwise on branch itself.
func (c *Client) CommitFiles(ctx context.Context, owner, repo, branch, baseBranch string, files []FileContent, message string) (MultiCommit, error) {
	if len(files) == 0 {
		return MultiCommit{}, apperrors.Validation("files must not be empty")
	}
	entries := make([]*gh.TreeEntry, 0, len(files))
	for i, f := range files {
		p := cleanPath(f.Path)
		if p == "" {
			return MultiCommit{}, apperrors.Validation("files[%d].path is required", i)
		}
		entries = append(entries, &gh.TreeEntry{
			Path:    gh.String(p),
			Mode:    gh.String(regularFileMode),
			Type:    gh.String("blob"),
			Content: gh.String(f.Content),
		})
	}
	branch = c.branch(branch)
	base := branch
	if strings.TrimSpace(baseBranch) != "" {
		base = strings.TrimSpace(baseBranch)
	}

	parentSHA, err := c.headSHA(ctx, owner, repo, base)
	if err != nil {
		return MultiCommit{}, err
	}
	parent, err := call(ctx, c, "get commit", func(ctx context.Context) (*gh.Commit, *gh.Response, error) {
		return c.api.Git.GetCommit(ctx, owner, repo, parentSHA)
	})
	if err != nil {
		return MultiCommit{}, err
	}
	tree, err := call(ctx, c, "create tree", func(ctx context.Context) (*gh.Tree, *gh.Response, error) {
		return c.api.Git.CreateTree(ctx, owner, repo, parent.GetTree().GetSHA(), entries)
	})
	if err != nil {
		return MultiCommit{}, err
	}
	commit, err := call(ctx, c, "create commit", func(ctx context.Context) (*gh.Commit, *gh.Response, error) {
		return c.api.Git.CreateCommit(ctx, owner, repo, &gh.Commit{
			Message: gh.String(message),
			Tree:    &gh.Tree{SHA: tree.SHA},
			Parents: []*gh.Commit{{SHA: gh.String(parentSHA)}},
		})
	})
	if err != nil {
		return MultiCommit{}, err
	}
	ref := &gh.Reference{Ref: gh.String("refs/heads/" + branch), Object: &gh.GitObject{SHA: commit.SHA}}
	if _, err := call(ctx, c, "update ref", func(ctx context.Context) (*gh.Reference, *gh.Response, error) {
		return c.api.Git.UpdateRef(ctx, owner, repo, ref, false)
	}); err != nil {
		return MultiCommit{}, err
	}
	c.logger.Info().Str("repo", owner+"/"+repo).Str("branch", branch).Int("files", len(files)).Str("sha", shortSHA(commit.GetSHA())).Msg("committed files")
	return MultiCommit{
		Success:    true,
		Branch:     branch,
		FilesCount: len(files),
		Commit: CommitRef{
			SHA:     commit.GetSHA(),
			Message: message,
			URL:     commit.GetHTMLURL(),
			Author:  commit.GetAuthor().GetName(),
			Date:    formatTime(commit.GetAuthor().GetDate()),
		},
	}, nil
}

// TreeEntry is one node of a directory tree.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int    `json:"size"`
	SHA  string `json:"sha"`
}

// Tree lists a directory down to a depth.
type Tree struct {
	Path     string      `json:"path"`
	Branch   string      `json:"branch"`
	MaxDepth int         `json:"max_depth"`
	Count    int         `json:"count"`
	Entries  []TreeEntry `json:"entries"`
}

func entryType(gitType string) string {
	switch gitType {
	case "blob":
		return "file"
	case "tree":
		return "dir"
	case "commit":
		return "submodule"
	default:
		return gitType
	}
}

// depthUnder returns how many levels p sits below dir, or 0 when p is
// not inside dir.
func depthUnder(dir, p string) int {
	if dir != "" {
		if !strings.HasPrefix(p, dir+"/") {
			return 0
		}
		p = strings.TrimPrefix(p, dir+"/")
	}
	return strings.Count(p, "/") + 1
}

// DirectoryTree lists dir down to maxDepth levels from one recursive git
// tree. When GitHub truncates that tree the listing falls back to a
// concurrent walk of the contents API.
func (c *Client) DirectoryTree(ctx context.Context, owner, repo, dir, branch string, maxDepth int) (Tree, error) {
	dir = cleanPath(dir)
	branch = c.branch(branch)
	if maxDepth <= 0 {
		maxDepth = defaultTreeDepth
	}
	out := Tree{Path: dir, Branch: branch, MaxDepth: maxDepth, Entries: []TreeEntry{}}

	tree, err := call(ctx, c, "get tree", func(ctx context.Context) (*gh.Tree, *gh.Response, error) {
		return c.api.Git.GetTree(ctx, owner, repo, branch, true)
	})
	if err != nil {
		return Tree{}, err
	}
	if tree.GetTruncated() {
		c.logger.Warn().Str("repo", owner+"/"+repo).Msg("git tree truncated, walking contents")
		entries, err := c.walkContents(ctx, owner, repo, dir, branch, maxDepth)
		if err != nil {
			return Tree{}, err
		}
		out.Entries = append(out.Entries, entries...)
	} else {
		for _, e := range tree.Entries {
			d := depthUnder(dir, e.GetPath())
			if d == 0 || d > maxDepth {
				continue
			}
			out.Entries = append(out.Entries, TreeEntry{Path: e.GetPath(), Type: entryType(e.GetType()), Size: e.GetSize(), SHA: e.GetSHA()})
		}
	}
	if dir != "" && len(out.Entries) == 0 {
		return Tree{}, apperrors.NotFound("path %q not found on %s", dir, branch)
	}
	sort.Slice(out.Entries, func(i, j int) bool { return out.Entries[i].Path < out.Entries[j].Path })
	out.Count = len(out.Entries)
	return out, nil
}

// walkContents lists directories level by level, fetching each level's
// directories concurrently.
func (c *Client) walkContents(ctx context.Context, owner, repo, dir, branch string, maxDepth int) ([]TreeEntry, error) {
	var out []TreeEntry
	level := []string{dir}
	for depth := 1; depth <= maxDepth && len(level) > 0; depth++ {
		p := pool.NewWithResults[[]TreeEntry]().WithContext(ctx).WithMaxGoroutines(c.workers).WithCancelOnError()
		for _, d := range level {
			p.Go(func(ctx context.Context) ([]TreeEntry, error) {
				return c.listDir(ctx, owner, repo, d, branch)
			})
		}
		results, err := p.Wait()
		if err != nil {
			return nil, err
		}
		var next []string
		for _, entries := range results {
			for _, e := range entries {
				out = append(out, e)
				if e.Type == "dir" {
					next = append(next, e.Path)
				}
			}
		}
		level = next
	}
	return out, nil
}

func (c *Client) listDir(ctx context.Context, owner, repo, dir, branch string) ([]TreeEntry, error) {
	items, err := call(ctx, c, "list contents", func(ctx context.Context) ([]*gh.RepositoryContent, *gh.Response, error) {
		file, items, resp, err := c.api.Repositories.GetContents(ctx, owner, repo, dir, &gh.RepositoryContentGetOptions{Ref: branch})
		if err == nil && file != nil {
			items = []*gh.RepositoryContent{file}
		}
		return items, resp, err
	})
	if err != nil {
		return nil, err
	}
	out := make([]TreeEntry, 0, len(items))
	for _, item := range items {
		p := item.GetPath()
		if p == "" {
			p = path.Join(dir, item.GetName())
		}
		out = append(out, TreeEntry{Path: p, Type: item.GetType(), Size: item.GetSize(), SHA: item.GetSHA()})
	}
	return out, nil
}
