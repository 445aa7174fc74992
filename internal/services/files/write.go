package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
)

// WriteResult reports a write, or a preview of one.
type WriteResult struct {
	Path    string `json:"path"`
	Action  string `json:"action"`
	Bytes   int    `json:"bytes"`
	Lines   int    `json:"lines"`
	Created bool   `json:"created"`
	Diff    string `json:"diff,omitempty"`
}

// WriteFile replaces path with content via a temp file and rename. With
// preview set, nothing is written and the diff against the current content
// is returned instead.
func (s *Service) WriteFile(path, content string, createDirs, preview bool) (WriteResult, error) {
	resolved, err := s.Resolve(path, true)
	if err != nil {
		return WriteResult{}, err
	}

	old, mode, exists, err := readExisting(resolved)
	if err != nil {
		return WriteResult{}, s.statError(resolved, err)
	}
	out := WriteResult{
		Path:    resolved,
		Bytes:   len(content),
		Lines:   countLines(content),
		Created: !exists,
	}
	if preview {
		out.Action = "preview"
		out.Diff = UnifiedDiff(old, content)
		return out, nil
	}

	dir := filepath.Dir(resolved)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		if !createDirs {
			return WriteResult{}, apperrors.NotFound("parent directory does not exist: %s", dir)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return WriteResult{}, s.statError(dir, err)
		}
	}
	if err := atomicWrite(resolved, []byte(content), mode); err != nil {
		return WriteResult{}, s.statError(resolved, err)
	}
	out.Action = "overwritten"
	if out.Created {
		out.Action = "created"
	}
	return out, nil
}

func readExisting(path string) (string, fs.FileMode, bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", 0o644, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	if info.IsDir() {
		return "", 0, false, apperrors.Validation("path is a directory, not a file: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, false, err
	}
	return string(data), info.Mode().Perm(), true, nil
}

func atomicWrite(path string, data []byte, mode fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// EditResult reports a single in-place replacement.
type EditResult struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
	Lines int    `json:"lines"`
	Diff  string `json:"diff"`
}

// EditFile replaces exactly one occurrence of oldText with newText.
func (s *Service) EditFile(path, oldText, newText string) (EditResult, error) {
	if oldText == "" {
		return EditResult{}, apperrors.Validation("old_text is required")
	}
	resolved, err := s.Resolve(path, true)
	if err != nil {
		return EditResult{}, err
	}
	current, mode, exists, err := readExisting(resolved)
	if err != nil {
		return EditResult{}, s.statError(resolved, err)
	}
	if !exists {
		return EditResult{}, s.statError(resolved, fs.ErrNotExist)
	}

	switch n := strings.Count(current, oldText); {
	case n == 0:
		e := apperrors.NotFound("old_text not found in %s", resolved)
		if similar := apperrors.SimilarLines(current, oldText); len(similar) > 0 {
			e.Metadata = map[string]any{"similar_lines": similar}
		}
		return EditResult{}, e
	case n > 1:
		return EditResult{}, apperrors.WithMetadata(apperrors.CodeValidation,
			fmt.Sprintf("old_text matches %d times in %s; include more context to make it unique", n, resolved),
			map[string]any{"matches": n})
	}

	updated := strings.Replace(current, oldText, newText, 1)
	if err := atomicWrite(resolved, []byte(updated), mode); err != nil {
		return EditResult{}, s.statError(resolved, err)
	}
	return EditResult{
		Path:  resolved,
		Bytes: len(updated),
		Lines: countLines(updated),
		Diff:  UnifiedDiff(current, updated),
	}, nil
}

// UnifiedDiff renders a line diff with "-", "+" and " " prefixes.
func UnifiedDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			sb.WriteString(prefix)
			sb.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}
