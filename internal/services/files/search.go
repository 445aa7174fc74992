package files

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
)

const maxSearchMatches = 500

// skipDirs are never descended into by searches.
var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"__pycache__":  true,
	".venv":        true,
}

var skipRoots = []string{"/proc", "/sys", "/dev"}

// SearchResult lists matches for a glob pattern.
type SearchResult struct {
	Pattern       string   `json:"pattern"`
	Directory     string   `json:"directory,omitempty"`
	SearchedPaths []string `json:"searched_paths,omitempty"`
	Count         int      `json:"count"`
	Truncated     bool     `json:"truncated"`
	TimedOut      bool     `json:"timed_out"`
	Matches       []Entry  `json:"matches"`
}

// SearchFiles walks dir and matches base names against a glob pattern.
func (s *Service) SearchFiles(dir, pattern string, includeHidden bool) (SearchResult, error) {
	if err := checkPattern(pattern); err != nil {
		return SearchResult{}, err
	}
	resolved, err := s.Resolve(dir, false)
	if err != nil {
		return SearchResult{}, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return SearchResult{}, s.statError(resolved, err)
	}
	if !info.IsDir() {
		return SearchResult{}, apperrors.Validation("path is not a directory: %s", resolved)
	}

	out := SearchResult{Pattern: pattern, Directory: resolved, Matches: []Entry{}}
	s.walkMatches(context.Background(), resolved, pattern, includeHidden, maxSearchMatches, &out)
	sortEntries(out.Matches)
	out.Count = len(out.Matches)
	return out, nil
}

// SearchSystemWide searches several roots until maxResults matches are
// found or the context deadline passes.
func (s *Service) SearchSystemWide(ctx context.Context, pattern string, roots []string, maxResults int) (SearchResult, error) {
	if err := checkPattern(pattern); err != nil {
		return SearchResult{}, err
	}
	if len(roots) == 0 {
		roots = s.defaultRoots()
	}
	out := SearchResult{Pattern: pattern, Matches: []Entry{}, SearchedPaths: []string{}}
	seen := map[string]bool{}
	for _, root := range roots {
		resolved, err := s.Resolve(root, false)
		if err != nil || seen[resolved] {
			continue
		}
		seen[resolved] = true
		if _, err := os.Stat(resolved); err != nil {
			continue
		}
		out.SearchedPaths = append(out.SearchedPaths, resolved)
		s.walkMatches(ctx, resolved, pattern, false, maxResults, &out)
		if out.Truncated || out.TimedOut {
			break
		}
	}
	sortByName(out.Matches)
	out.Count = len(out.Matches)
	return out, nil
}

func (s *Service) defaultRoots() []string {
	var roots []string
	if s.home != "" {
		roots = append(roots, s.home)
	}
	return append(roots, s.root)
}

func (s *Service) walkMatches(ctx context.Context, root, pattern string, includeHidden bool, limit int, out *SearchResult) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			out.TimedOut = errors.Is(ctxErr, context.DeadlineExceeded)
			return fs.SkipAll
		}
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if skipDirs[name] || (!includeHidden && strings.HasPrefix(name, ".")) {
				return fs.SkipDir
			}
			if _, restricted := underAny(path, skipRoots); restricted {
				return fs.SkipDir
			}
			if _, restricted := underAny(path, s.restricted); restricted {
				return fs.SkipDir
			}
		} else if !includeHidden && strings.HasPrefix(name, ".") {
			return nil
		}
		if ok, _ := filepath.Match(pattern, name); ok {
			if len(out.Matches) >= limit {
				out.Truncated = true
				return fs.SkipAll
			}
			out.Matches = append(out.Matches, entryFor(path, d))
		}
		return nil
	})
}

func checkPattern(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return apperrors.Validation("pattern is required")
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return apperrors.Validation("invalid pattern %q: %v", pattern, err)
	}
	return nil
}

// sortByName orders matches from several roots by base name.
func sortByName(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
}

// withDeadline bounds a search by seconds, defaulting to 30.
func withDeadline(ctx context.Context, seconds int) (context.Context, context.CancelFunc) {
	if seconds <= 0 {
		seconds = 30
	}
	return context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
}
