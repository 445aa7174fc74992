package files

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/testkit/mcptest"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	root := t.TempDir()
	svc, err := NewService(Config{Root: root, MaxReadBytes: 1 << 20})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, root
}

func writeFixture(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func codeOf(t *testing.T, err error) apperrors.Code {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	return apperrors.CodeOf(err)
}

func TestResolve(t *testing.T) {
	svc, root := newTestService(t)
	svc.home = "/home/tester"

	tests := []struct {
		name  string
		path  string
		write bool
		want  string
		code  apperrors.Code
	}{
		{name: "relative", path: "a/b.txt", want: filepath.Join(root, "a/b.txt")},
		{name: "home", path: "~/notes.md", want: "/home/tester/notes.md"},
		{name: "cleaned", path: root + "/x/../y", want: filepath.Join(root, "y")},
		{name: "restricted", path: "/proc/self/status", code: apperrors.CodePermission},
		{name: "write protected", path: "/usr/local/bin/tool", write: true, code: apperrors.CodePermission},
		{name: "read from write protected", path: "/usr/share/doc", want: "/usr/share/doc"},
		{name: "prefix is not a parent", path: "/devices/x", want: "/devices/x"},
		{name: "empty", path: " ", code: apperrors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Resolve(tt.path, tt.write)
			if tt.code != "" {
				if c := codeOf(t, err); c != tt.code {
					t.Fatalf("code = %s, want %s", c, tt.code)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got != tt.want {
				t.Fatalf("resolve = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadFile(t *testing.T) {
	svc, root := newTestService(t)
	writeFixture(t, filepath.Join(root, "config.yaml"), "a: 1\nb: 2\n")
	writeFixture(t, filepath.Join(root, "blob.bin"), "\xff\xfe\x00")

	got, err := svc.ReadFile("config.yaml", "")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Content != "a: 1\nb: 2\n" || got.Lines != 2 || got.Size != 10 {
		t.Fatalf("unexpected read result %+v", got)
	}
	if len(got.SHA256) != 64 {
		t.Fatalf("unexpected hash %q", got.SHA256)
	}

	_, err = svc.ReadFile("config.yml", "")
	if c := codeOf(t, err); c != apperrors.CodeNotFound {
		t.Fatalf("missing file code = %s", c)
	}
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected app error, got %T", err)
	}
	similar, _ := appErr.Metadata["similar_files"].([]string)
	if len(similar) != 1 || !strings.HasSuffix(similar[0], "config.yaml") {
		t.Fatalf("expected similar config.yaml, got %v", appErr.Metadata)
	}

	if _, err := svc.ReadFile(".", ""); codeOf(t, err) != apperrors.CodeValidation {
		t.Fatalf("directory read should be a validation error: %v", err)
	}
	if _, err := svc.ReadFile("blob.bin", ""); codeOf(t, err) != apperrors.CodeValidation {
		t.Fatalf("binary read should be a validation error: %v", err)
	}
	if _, err := svc.ReadFile("config.yaml", "latin-1"); codeOf(t, err) != apperrors.CodeValidation {
		t.Fatalf("unsupported encoding should be a validation error: %v", err)
	}
}

func TestWriteFileCreatesOverwritesAndPreviews(t *testing.T) {
	svc, root := newTestService(t)

	created, err := svc.WriteFile("nested/dir/out.txt", "one\ntwo\n", true, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created.Created || created.Action != "created" || created.Lines != 2 {
		t.Fatalf("unexpected create result %+v", created)
	}

	preview, err := svc.WriteFile("nested/dir/out.txt", "one\nthree\n", true, true)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.Action != "preview" || !strings.Contains(preview.Diff, "-two\n") || !strings.Contains(preview.Diff, "+three\n") {
		t.Fatalf("unexpected preview %+v", preview)
	}
	data, _ := os.ReadFile(filepath.Join(root, "nested/dir/out.txt"))
	if string(data) != "one\ntwo\n" {
		t.Fatalf("preview must not write, got %q", data)
	}

	over, err := svc.WriteFile("nested/dir/out.txt", "one\nthree\n", true, false)
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if over.Created || over.Action != "overwritten" {
		t.Fatalf("unexpected overwrite result %+v", over)
	}

	if _, err := svc.WriteFile("missing/out.txt", "x", false, false); codeOf(t, err) != apperrors.CodeNotFound {
		t.Fatalf("expected not_found without create_dirs: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(root, "nested/dir"))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestEditFile(t *testing.T) {
	svc, root := newTestService(t)
	path := filepath.Join(root, "main.go")
	writeFixture(t, path, "package main\n\nfunc main() {\n\tprintln(\"hello world\")\n}\n")

	res, err := svc.EditFile(path, `println("hello world")`, `println("bye")`)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !strings.Contains(res.Diff, "+\tprintln(\"bye\")") {
		t.Fatalf("unexpected diff %q", res.Diff)
	}

	_, err = svc.EditFile(path, "func main() { return }", "x")
	if codeOf(t, err) != apperrors.CodeNotFound {
		t.Fatalf("expected not_found: %v", err)
	}

	writeFixture(t, path, "x\nx\n")
	_, err = svc.EditFile(path, "x", "y")
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeValidation || appErr.Metadata["matches"] != 2 {
		t.Fatalf("expected ambiguous match error, got %v", err)
	}
}

func TestListDirectory(t *testing.T) {
	svc, root := newTestService(t)
	writeFixture(t, filepath.Join(root, "b.txt"), "b")
	writeFixture(t, filepath.Join(root, ".hidden"), "h")
	writeFixture(t, filepath.Join(root, "sub/a.txt"), "a")
	writeFixture(t, filepath.Join(root, "sub/deep/c.txt"), "c")

	flat, err := svc.ListDirectory(root, false, false, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if flat.Count != 2 || flat.Entries[0].Type != "directory" || flat.Entries[0].Name != "sub" {
		t.Fatalf("unexpected flat listing %+v", flat.Entries)
	}

	deep, err := svc.ListDirectory(root, true, true, 3)
	if err != nil {
		t.Fatalf("recursive list: %v", err)
	}
	if deep.Count != 6 {
		t.Fatalf("expected 6 entries, got %d: %+v", deep.Count, deep.Entries)
	}

	shallow, err := svc.ListDirectory(root, false, true, 1)
	if err != nil {
		t.Fatalf("depth-limited list: %v", err)
	}
	if shallow.Count != 2 {
		t.Fatalf("expected depth 1 to stop at children, got %+v", shallow.Entries)
	}

	if _, err := svc.ListDirectory(filepath.Join(root, "b.txt"), false, false, 1); codeOf(t, err) != apperrors.CodeValidation {
		t.Fatalf("expected validation error listing a file: %v", err)
	}
}

func TestFileInfoReportsSymlinks(t *testing.T) {
	svc, root := newTestService(t)
	target := filepath.Join(root, "target.txt")
	writeFixture(t, target, "data")
	link := filepath.Join(root, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	info, err := svc.FileInfo(link)
	if err != nil {
		t.Fatalf("file info: %v", err)
	}
	if info.Type != "symlink" || info.SymlinkTarget != target || !info.Readable {
		t.Fatalf("unexpected info %+v", info)
	}
	plain, err := svc.FileInfo(target)
	if err != nil {
		t.Fatalf("file info: %v", err)
	}
	if plain.Type != "file" || plain.Size != 4 || plain.MimeType == "" || !plain.Writable {
		t.Fatalf("unexpected info %+v", plain)
	}
}

func TestSearchFilesSkipsNoise(t *testing.T) {
	svc, root := newTestService(t)
	writeFixture(t, filepath.Join(root, "a.go"), "")
	writeFixture(t, filepath.Join(root, "pkg/b.go"), "")
	writeFixture(t, filepath.Join(root, "node_modules/c.go"), "")
	writeFixture(t, filepath.Join(root, ".git/d.go"), "")
	writeFixture(t, filepath.Join(root, "README.md"), "")

	res, err := svc.SearchFiles(root, "*.go", true)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Count != 2 {
		t.Fatalf("expected 2 matches, got %+v", res.Matches)
	}

	if _, err := svc.SearchFiles(root, "[", false); codeOf(t, err) != apperrors.CodeValidation {
		t.Fatalf("expected invalid pattern error: %v", err)
	}
}

func TestSearchSystemWideLimits(t *testing.T) {
	svc, root := newTestService(t)
	for i := 0; i < 5; i++ {
		writeFixture(t, filepath.Join(root, "dir", strings.Repeat("x", i+1)+".log"), "")
	}

	res, err := svc.SearchSystemWide(context.Background(), "*.log", []string{root, root}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Count != 3 || !res.Truncated || len(res.SearchedPaths) != 1 {
		t.Fatalf("unexpected limited result %+v", res)
	}

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	res, err = svc.SearchSystemWide(ctx, "*.log", []string{root}, 100)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !res.TimedOut || res.Count != 0 {
		t.Fatalf("expected timeout, got %+v", res)
	}
}

func TestToolsOverMCP(t *testing.T) {
	svc, root := newTestService(t)
	session := mcptest.Connect(t, NewModule(svc))

	res := mcptest.Call(t, session, "write_file", map[string]any{
		"file_path": "hello.txt",
		"content":   "hi\n",
	})
	written := mcptest.Decode[WriteResult](t, res)
	if written.Path != filepath.Join(root, "hello.txt") || !written.Created {
		t.Fatalf("unexpected write %+v", written)
	}

	read := mcptest.Decode[ReadResult](t, mcptest.Call(t, session, "read_file", map[string]any{"file_path": "hello.txt"}))
	if read.Content != "hi\n" {
		t.Fatalf("unexpected read %+v", read)
	}

	failure := mcptest.Failure(t, mcptest.Call(t, session, "read_file", map[string]any{"file_path": "nope.txt"}))
	if failure.Type != apperrors.CodeNotFound || failure.Success {
		t.Fatalf("unexpected failure payload %+v", failure)
	}
}
