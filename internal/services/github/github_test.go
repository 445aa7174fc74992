package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/testkit/mcptest"
)

// fakeGitHub serves the slice of the REST API the client uses.
type fakeGitHub struct {
	mu        sync.Mutex
	files     map[string]string
	refs      map[string]string
	truncated bool
	failures  int
	calls     []string
	puts      []map[string]any
	tree      map[string]any
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		files: map[string]string{
			"README.md":            "# demo\n",
			"cmd/app/main.go":      "package main\n",
			"internal/x/x.go":      "package x\n",
			"internal/x/deep/y.go": "package deep\n",
		},
		refs: map[string]string{"main": "sha-main"},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
}

// dirs returns every directory implied by the file set.
func (f *fakeGitHub) dirs() []string {
	seen := map[string]bool{}
	for p := range f.files {
		for d := path.Dir(p); d != "."; d = path.Dir(d) {
			seen[d] = true
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func (f *fakeGitHub) handler() http.Handler {
	mux := http.NewServeMux()
	record := func(r *http.Request) {
		f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	}
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"login": "octo"})
	})
	mux.HandleFunc("GET /user/repos", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		record(r)
		f.mu.Unlock()
		if f.failures > 0 {
			f.failures--
			writeJSON(w, http.StatusBadGateway, map[string]any{"message": "bad gateway"})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{
			{"name": "demo", "full_name": "octo/demo", "stargazers_count": 3, "created_at": "2024-01-02T03:04:05Z"},
			{"name": "other", "full_name": "octo/other"},
		})
	})
	mux.HandleFunc("GET /repos/{owner}/{repo}/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		record(r)
		p := r.PathValue("path")
		if content, ok := f.files[p]; ok {
			writeJSON(w, http.StatusOK, map[string]any{
				"type": "file", "path": p, "encoding": "base64", "size": len(content), "sha": "blob-" + p,
				"content": base64.StdEncoding.EncodeToString([]byte(content)),
			})
			return
		}
		var items []map[string]any
		for fp, content := range f.files {
			if path.Dir(fp) == p || (p == "" && !strings.Contains(fp, "/")) {
				items = append(items, map[string]any{"type": "file", "path": fp, "size": len(content), "sha": "blob-" + fp})
			}
		}
		for _, d := range f.dirs() {
			if path.Dir(d) == p || (p == "" && !strings.Contains(d, "/")) {
				items = append(items, map[string]any{"type": "dir", "path": d, "sha": "tree-" + d})
			}
		}
		if len(items) == 0 {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, items)
	})
	mux.HandleFunc("PUT /repos/{owner}/{repo}/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		record(r)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.puts = append(f.puts, body)
		raw, _ := base64.StdEncoding.DecodeString(body["content"].(string))
		f.files[r.PathValue("path")] = string(raw)
		writeJSON(w, http.StatusOK, map[string]any{
			"content": map[string]any{"sha": "blob-new"},
			"commit":  map[string]any{"sha": "commit-put", "html_url": "https://github.test/commit-put"},
		})
	})
	mux.HandleFunc("DELETE /repos/{owner}/{repo}/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		record(r)
		delete(f.files, r.PathValue("path"))
		writeJSON(w, http.StatusOK, map[string]any{"commit": map[string]any{"sha": "commit-del"}})
	})
	mux.HandleFunc("GET /repos/{owner}/{repo}/branches/{branch}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		sha, ok := f.refs[r.PathValue("branch")]
		if !ok {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"name": r.PathValue("branch"), "protected": true,
			"commit": map[string]any{"sha": sha, "commit": map[string]any{
				"message": "initial", "author": map[string]any{"name": "Ada", "date": "2024-05-06T07:08:09Z"},
			}},
		})
	})
	mux.HandleFunc("GET /repos/{owner}/{repo}/git/refs/heads/{branch}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		record(r)
		sha, ok := f.refs[r.PathValue("branch")]
		if !ok {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ref": "refs/heads/" + r.PathValue("branch"), "object": map[string]any{"sha": sha}})
	})
	mux.HandleFunc("POST /repos/{owner}/{repo}/git/refs", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		record(r)
		var body struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.refs[strings.TrimPrefix(body.Ref, "refs/heads/")] = body.SHA
		writeJSON(w, http.StatusCreated, map[string]any{"ref": body.Ref, "object": map[string]any{"sha": body.SHA}})
	})
	mux.HandleFunc("PATCH /repos/{owner}/{repo}/git/refs/heads/{branch}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		record(r)
		var body struct {
			SHA string `json:"sha"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.refs[r.PathValue("branch")] = body.SHA
		writeJSON(w, http.StatusOK, map[string]any{"ref": "refs/heads/" + r.PathValue("branch"), "object": map[string]any{"sha": body.SHA}})
	})
	mux.HandleFunc("GET /repos/{owner}/{repo}/git/commits/{sha}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		record(r)
		writeJSON(w, http.StatusOK, map[string]any{"sha": r.PathValue("sha"), "tree": map[string]any{"sha": "tree-base"}})
	})
	mux.HandleFunc("POST /repos/{owner}/{repo}/git/trees", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		record(r)
		_ = json.NewDecoder(r.Body).Decode(&f.tree)
		writeJSON(w, http.StatusCreated, map[string]any{"sha": "tree-new"})
	})
	mux.HandleFunc("POST /repos/{owner}/{repo}/git/commits", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		record(r)
		writeJSON(w, http.StatusCreated, map[string]any{
			"sha": "commit-new", "author": map[string]any{"name": "octo", "date": "2024-06-01T00:00:00Z"},
		})
	})
	mux.HandleFunc("GET /repos/{owner}/{repo}/git/trees/{sha}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		record(r)
		var entries []map[string]any
		for p, content := range f.files {
			entries = append(entries, map[string]any{"path": p, "type": "blob", "size": len(content), "sha": "blob-" + p})
		}
		for _, d := range f.dirs() {
			entries = append(entries, map[string]any{"path": d, "type": "tree", "sha": "tree-" + d})
		}
		writeJSON(w, http.StatusOK, map[string]any{"sha": "tree-main", "tree": entries, "truncated": f.truncated})
	})
	mux.HandleFunc("GET /repos/{owner}/{repo}/issues", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		record(r)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, []map[string]any{
			{"number": 1, "title": "bug", "body": strings.Repeat("b", 600), "state": "open", "user": map[string]any{"login": "ada"},
				"labels": []map[string]any{{"name": "bug"}}},
			{"number": 2, "title": "a pull request", "pull_request": map[string]any{"url": "x"}},
		})
	})
	mux.HandleFunc("POST /repos/{owner}/{repo}/pulls", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["head"] == body["base"] {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "Validation Failed"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"number": 7, "title": body["title"], "state": "open"})
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeGitHub) {
	t.Helper()
	fake := newFakeGitHub()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{Token: "tok", APIURL: srv.URL, TimeoutSeconds: 5, MaxRetries: 2}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.backoff = time.Millisecond
	return client, fake
}

func TestRepoResolution(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		in          string
		owner, repo string
		code        apperrors.Code
	}{
		{name: "full", in: "acme/widgets", owner: "acme", repo: "widgets"},
		{name: "bare", in: "widgets", owner: "octo", repo: "widgets"},
		{name: "slashes trimmed", in: "/acme/widgets/", owner: "acme", repo: "widgets"},
		{name: "empty", in: " ", code: apperrors.CodeValidation},
		{name: "too deep", in: "a/b/c", code: apperrors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := c.Repo(ctx, tt.in)
			if tt.code != "" {
				if code := apperrors.CodeOf(err); code != tt.code {
					t.Fatalf("code = %s, want %s", code, tt.code)
				}
				return
			}
			if err != nil || owner != tt.owner || repo != tt.repo {
				t.Fatalf("got %s/%s, %v", owner, repo, err)
			}
		})
	}
}

func TestListRepositoriesRetriesServerErrors(t *testing.T) {
	c, fake := newTestClient(t)
	fake.failures = 1

	repos, err := c.ListRepositories(context.Background(), "", "", 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(repos) != 1 || repos[0].FullName != "octo/demo" || repos[0].Stars != 3 || repos[0].CreatedAt != "2024-01-02T03:04:05Z" {
		t.Fatalf("unexpected repos %+v", repos)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected one retry, calls = %v", fake.calls)
	}
	if _, err := c.ListRepositories(context.Background(), "", "stars", 5); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("expected validation error for sort, got %v", err)
	}
}

func TestGetFile(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	f, err := c.GetFile(ctx, "octo", "demo", "/README.md", "")
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if f.Content != "# demo\n" || f.SHA != "blob-README.md" || f.Path != "README.md" {
		t.Fatalf("unexpected file %+v", f)
	}

	_, err = c.GetFile(ctx, "octo", "demo", "internal/x", "")
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) || domainErr.Code != apperrors.CodeValidation {
		t.Fatalf("expected validation error for a directory, got %v", err)
	}
	if items, _ := domainErr.Metadata["items"].([]string); len(items) != 2 {
		t.Fatalf("directory items = %v", domainErr.Metadata["items"])
	}

	_, err = c.GetFile(ctx, "octo", "demo", "nope.txt", "")
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode() != http.StatusNotFound {
		t.Fatalf("expected wrapped APIError, got %#v", err)
	}
}

func TestPutFileCreatesThenUpdates(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	created, err := c.PutFile(ctx, "octo", "demo", "docs/new.md", "hello", "add docs", "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Action != "created" || created.Branch != "main" || created.Commit.SHA != "commit-put" {
		t.Fatalf("unexpected create %+v", created)
	}
	if _, ok := fake.puts[0]["sha"]; ok {
		t.Fatalf("create must not send a sha: %v", fake.puts[0])
	}

	updated, err := c.PutFile(ctx, "octo", "demo", "docs/new.md", "hello again", "edit docs", "main", "")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Action != "updated" || fake.puts[1]["sha"] != "blob-docs/new.md" || fake.puts[1]["branch"] != "main" {
		t.Fatalf("unexpected update %+v body=%v", updated, fake.puts[1])
	}
	if fake.files["docs/new.md"] != "hello again" {
		t.Fatalf("content = %q", fake.files["docs/new.md"])
	}

	deleted, err := c.DeleteFile(ctx, "octo", "demo", "docs/new.md", "remove", "", "")
	if err != nil || deleted.Action != "deleted" {
		t.Fatalf("delete: %+v %v", deleted, err)
	}
	if _, ok := fake.files["docs/new.md"]; ok {
		t.Fatal("file should be gone")
	}
}

func TestCommitFiles(t *testing.T) {
	c, fake := newTestClient(t)
	res, err := c.CommitFiles(context.Background(), "octo", "demo", "", "", []FileContent{
		{Path: "a.txt", Content: "A"},
		{Path: "dir/b.txt", Content: "B"},
	}, "two files")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if res.FilesCount != 2 || res.Commit.SHA != "commit-new" || res.Commit.Author != "octo" {
		t.Fatalf("unexpected result %+v", res)
	}
	if fake.refs["main"] != "commit-new" {
		t.Fatalf("ref not moved: %v", fake.refs)
	}
	if fake.tree["base_tree"] != "tree-base" {
		t.Fatalf("tree not based on parent: %v", fake.tree)
	}
	entries, _ := fake.tree["tree"].([]any)
	if len(entries) != 2 {
		t.Fatalf("tree entries = %v", fake.tree["tree"])
	}
	first, _ := entries[0].(map[string]any)
	if first["mode"] != "100644" || first["type"] != "blob" || first["content"] != "A" {
		t.Fatalf("unexpected entry %v", first)
	}

	if _, err := c.CommitFiles(context.Background(), "octo", "demo", "", "", nil, "empty"); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := c.CommitFiles(context.Background(), "octo", "demo", "ghost", "", []FileContent{{Path: "x", Content: "y"}}, "m"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected not_found for a missing branch, got %v", err)
	}
}

func TestBranches(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	created, err := c.CreateBranch(ctx, "octo", "demo", "feature", "")
	if err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if created.SHA != "sha-main" || created.SourceBranch != "main" || fake.refs["feature"] != "sha-main" {
		t.Fatalf("unexpected branch %+v refs=%v", created, fake.refs)
	}

	_, err = c.CreateBranch(ctx, "octo", "demo", "feature", "main")
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) || domainErr.Code != apperrors.CodeConflict || domainErr.Metadata["existing_branch"] == nil {
		t.Fatalf("expected conflict, got %v", err)
	}

	info, err := c.GetBranch(ctx, "octo", "demo", "main")
	if err != nil {
		t.Fatalf("branch info: %v", err)
	}
	if !info.Protected || info.Commit.Author != "Ada" || info.Commit.Date != "2024-05-06T07:08:09Z" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := c.GetBranch(ctx, "octo", "demo", "ghost"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestDirectoryTree(t *testing.T) {
	for _, truncated := range []bool{false, true} {
		name := "recursive tree"
		if truncated {
			name = "contents walk"
		}
		t.Run(name, func(t *testing.T) {
			c, fake := newTestClient(t)
			fake.truncated = truncated
			ctx := context.Background()

			tree, err := c.DirectoryTree(ctx, "octo", "demo", "internal", "", 1)
			if err != nil {
				t.Fatalf("tree: %v", err)
			}
			if tree.Count != 1 || tree.Entries[0].Path != "internal/x" || tree.Entries[0].Type != "dir" {
				t.Fatalf("depth 1 entries %+v", tree.Entries)
			}

			tree, err = c.DirectoryTree(ctx, "octo", "demo", "", "", 0)
			if err != nil {
				t.Fatalf("tree: %v", err)
			}
			var paths []string
			for _, e := range tree.Entries {
				paths = append(paths, e.Path)
			}
			want := "README.md cmd cmd/app cmd/app/main.go internal internal/x internal/x/deep internal/x/x.go"
			if got := strings.Join(paths, " "); got != want {
				t.Fatalf("paths = %s\nwant    %s", got, want)
			}

			if _, err := c.DirectoryTree(ctx, "octo", "demo", "missing", "", 2); apperrors.CodeOf(err) != apperrors.CodeNotFound {
				t.Fatalf("expected not_found, got %v", err)
			}
		})
	}
}

func TestListIssuesSkipsPullRequests(t *testing.T) {
	c, _ := newTestClient(t)
	issues, err := c.ListIssues(context.Background(), "octo", "demo", "", nil, 10)
	if err != nil {
		t.Fatalf("list issues: %v", err)
	}
	if len(issues) != 1 || issues[0].User != "ada" || len([]rune(issues[0].Body)) != maxIssueBody+3 {
		t.Fatalf("unexpected issues %+v", issues)
	}
	if _, err := c.ListIssues(context.Background(), "octo", "demo", "merged", nil, 10); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestToolsOverMCP(t *testing.T) {
	c, _ := newTestClient(t)
	session := mcptest.Connect(t, NewModule(c, nil))

	res := mcptest.Call(t, session, "get_file_content", map[string]any{"repo_name": "demo", "file_path": "cmd/app/main.go"})
	if got := mcptest.Decode[File](t, res); got.Content != "package main\n" {
		t.Fatalf("unexpected file %+v", got)
	}

	res = mcptest.Call(t, session, "commit_multiple_files", map[string]any{
		"repo_name":      "octo/demo",
		"files":          []map[string]any{{"path": "x.txt", "content": "x"}},
		"commit_message": "add x",
	})
	if got := mcptest.Decode[MultiCommit](t, res); !got.Success || got.Branch != "main" {
		t.Fatalf("unexpected commit %+v", got)
	}

	res = mcptest.Call(t, session, "create_pull_request", map[string]any{
		"repo_name": "octo/demo", "title": "same", "head": "main", "base": "main",
	})
	if payload := mcptest.Failure(t, res); payload.Type != apperrors.CodeHTTP || payload.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected failure %+v", payload)
	}

	res = mcptest.Call(t, session, "get_directory_tree", map[string]any{"repo_name": "octo/demo", "path": "cmd", "max_depth": 2})
	if got := mcptest.Decode[Tree](t, res); got.Count != 2 {
		t.Fatalf("unexpected tree %+v", got)
	}
}

func TestUnconfigured(t *testing.T) {
	session := mcptest.Connect(t, NewModule(nil, apperrors.NotConfigured("GitHub", "GITHUB_PERSONAL_ACCESS_TOKEN")))
	res := mcptest.Call(t, session, "list_repositories", nil)
	payload := mcptest.Failure(t, res)
	if payload.Type != apperrors.CodeNotConfigured || !strings.Contains(payload.Error, "GitHub client not initialized") {
		t.Fatalf("unexpected payload %+v", payload)
	}
}
