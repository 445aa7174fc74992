// Package files implements the file system MCP server.
//
// Paths expand "~" and resolve relative to the configured root. System
// directories are never readable, and a second list is read-only.
package files

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
)

const (
	maxListEntries = 1000
	maxSimilar     = 5
)

var (
	defaultRestricted     = []string{"/etc/shadow", "/etc/sudoers", "/sys", "/proc", "/dev", "/boot", "/lib", "/lib64", "/sbin", "/usr/sbin"}
	defaultWriteProtected = []string{"/etc", "/usr", "/bin", "/var/log"}
)

// Service performs file operations on behalf of the tools.
type Service struct {
	root           string
	home           string
	restricted     []string
	writeProtected []string
	maxReadBytes   int64
}

// NewService builds a service resolving relative paths against root. An
// empty root means the working directory.
func NewService(cfg Config) (*Service, error) {
	root := cfg.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		root = wd
	}
	home, _ := os.UserHomeDir()
	return &Service{
		root:           filepath.Clean(root),
		home:           home,
		restricted:     defaultRestricted,
		writeProtected: defaultWriteProtected,
		maxReadBytes:   cfg.MaxReadBytes,
	}, nil
}

// Resolve expands and cleans path, rejecting restricted locations.
func (s *Service) Resolve(path string, write bool) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", apperrors.Validation("file path is required")
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if s.home == "" {
			return "", apperrors.Validation("cannot expand ~: home directory unknown")
		}
		path = filepath.Join(s.home, strings.TrimPrefix(path, "~"))
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	path = filepath.Clean(path)

	if prefix, ok := underAny(path, s.restricted); ok {
		return "", apperrors.Newf(apperrors.CodePermission, "access denied: %s is in restricted directory %s", path, prefix)
	}
	if write {
		if prefix, ok := underAny(path, s.writeProtected); ok {
			return "", apperrors.Newf(apperrors.CodePermission, "write access denied: %s is in protected directory %s", path, prefix)
		}
	}
	return path, nil
}

func underAny(path string, prefixes []string) (string, bool) {
	for _, prefix := range prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+string(filepath.Separator)) {
			return prefix, true
		}
	}
	return "", false
}

// ReadResult is the content and metadata of a read file.
type ReadResult struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Size     int64  `json:"size"`
	Lines    int    `json:"lines"`
	Modified string `json:"modified"`
	MimeType string `json:"mime_type,omitempty"`
	SHA256   string `json:"sha256"`
	Encoding string `json:"encoding"`
}

// ReadFile reads a UTF-8 text file.
func (s *Service) ReadFile(path, encoding string) (ReadResult, error) {
	if err := checkEncoding(encoding); err != nil {
		return ReadResult{}, err
	}
	resolved, err := s.Resolve(path, false)
	if err != nil {
		return ReadResult{}, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return ReadResult{}, s.statError(resolved, err)
	}
	if info.IsDir() {
		return ReadResult{}, apperrors.Validation("path is a directory, not a file: %s", resolved)
	}
	if s.maxReadBytes > 0 && info.Size() > s.maxReadBytes {
		return ReadResult{}, apperrors.WithMetadata(apperrors.CodeValidation,
			fmt.Sprintf("file is too large to read: %d bytes", info.Size()),
			map[string]any{"size": info.Size(), "limit": s.maxReadBytes})
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return ReadResult{}, s.statError(resolved, err)
	}
	if !utf8.Valid(data) {
		return ReadResult{}, apperrors.Validation("file is binary or non-UTF-8: %s", resolved)
	}
	sum := sha256.Sum256(data)
	return ReadResult{
		Path:     resolved,
		Content:  string(data),
		Size:     info.Size(),
		Lines:    countLines(string(data)),
		Modified: info.ModTime().Format(time.RFC3339),
		MimeType: mime.TypeByExtension(filepath.Ext(resolved)),
		SHA256:   hex.EncodeToString(sum[:]),
		Encoding: "utf-8",
	}, nil
}

func checkEncoding(encoding string) error {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return nil
	default:
		return apperrors.Validation("unsupported encoding %q: only utf-8 is supported", encoding)
	}
}

// statError classifies a failed stat or open. A missing file carries the
// names of similar siblings.
func (s *Service) statError(path string, err error) error {
	var known *apperrors.Error
	switch {
	case errors.As(err, &known):
		return err
	case errors.Is(err, fs.ErrNotExist):
		e := apperrors.NotFound("file not found: %s", path)
		if similar := similarNames(filepath.Dir(path), filepath.Base(path)); len(similar) > 0 {
			e.Metadata = map[string]any{"similar_files": similar}
		}
		return e
	case errors.Is(err, fs.ErrPermission):
		return apperrors.Wrap(apperrors.CodePermission, "permission denied: "+path, err)
	default:
		return apperrors.Wrap(apperrors.CodeUnexpected, err.Error(), err)
	}
}

// similarNames returns up to five entries in dir whose names share a stem
// with name.
func similarNames(dir, name string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	stem := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
	var out []string
	for _, entry := range entries {
		candidate := strings.ToLower(entry.Name())
		candidateStem := strings.TrimSuffix(candidate, filepath.Ext(candidate))
		if stem == "" || candidateStem == "" {
			continue
		}
		if strings.Contains(candidate, stem) || strings.Contains(stem, candidateStem) {
			out = append(out, filepath.Join(dir, entry.Name()))
			if len(out) == maxSimilar {
				break
			}
		}
	}
	return out
}

func countLines(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}

// Entry describes one directory entry.
type Entry struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
}

// ListResult is a directory listing.
type ListResult struct {
	Directory string  `json:"directory"`
	Count     int     `json:"count"`
	Truncated bool    `json:"truncated"`
	Entries   []Entry `json:"entries"`
}

// ListDirectory lists dir, optionally recursing up to maxDepth levels.
func (s *Service) ListDirectory(dir string, includeHidden, recursive bool, maxDepth int) (ListResult, error) {
	resolved, err := s.Resolve(dir, false)
	if err != nil {
		return ListResult{}, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return ListResult{}, s.statError(resolved, err)
	}
	if !info.IsDir() {
		return ListResult{}, apperrors.Validation("path is not a directory: %s", resolved)
	}
	if !recursive {
		maxDepth = 1
	}

	out := ListResult{Directory: resolved, Entries: []Entry{}}
	walkErr := filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if path == resolved {
			return err
		}
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		hidden := strings.HasPrefix(d.Name(), ".")
		if hidden && !includeHidden {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if len(out.Entries) >= maxListEntries {
			out.Truncated = true
			return fs.SkipAll
		}
		out.Entries = append(out.Entries, entryFor(path, d))
		if d.IsDir() && depth(resolved, path) >= maxDepth {
			return fs.SkipDir
		}
		return nil
	})
	if walkErr != nil {
		return ListResult{}, s.statError(resolved, walkErr)
	}
	sortEntries(out.Entries)
	out.Count = len(out.Entries)
	return out, nil
}

func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0
	}
	return len(strings.Split(rel, string(filepath.Separator)))
}

func entryFor(path string, d fs.DirEntry) Entry {
	e := Entry{Name: d.Name(), Path: path, Type: entryType(d.Type())}
	if info, err := d.Info(); err == nil {
		if !info.IsDir() {
			e.Size = info.Size()
		}
		e.Modified = info.ModTime().Format(time.RFC3339)
	}
	return e
}

func entryType(mode fs.FileMode) string {
	switch {
	case mode&fs.ModeSymlink != 0:
		return "symlink"
	case mode.IsDir():
		return "directory"
	default:
		return "file"
	}
}

// sortEntries puts directories first, then orders by path.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		di, dj := entries[i].Type == "directory", entries[j].Type == "directory"
		if di != dj {
			return di
		}
		return entries[i].Path < entries[j].Path
	})
}

// Info is file metadata without content.
type Info struct {
	Path          string `json:"path"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Size          int64  `json:"size"`
	Mode          string `json:"mode"`
	Permissions   string `json:"permissions"`
	Modified      string `json:"modified"`
	MimeType      string `json:"mime_type,omitempty"`
	SymlinkTarget string `json:"symlink_target,omitempty"`
	Readable      bool   `json:"readable"`
	Writable      bool   `json:"writable"`
}

// FileInfo stats path without following a final symlink.
func (s *Service) FileInfo(path string) (Info, error) {
	resolved, err := s.Resolve(path, false)
	if err != nil {
		return Info{}, err
	}
	info, err := os.Lstat(resolved)
	if err != nil {
		return Info{}, s.statError(resolved, err)
	}
	out := Info{
		Path:        resolved,
		Name:        info.Name(),
		Type:        entryType(info.Mode()),
		Size:        info.Size(),
		Mode:        info.Mode().String(),
		Permissions: fmt.Sprintf("%03o", info.Mode().Perm()),
		Modified:    info.ModTime().Format(time.RFC3339),
		Readable:    canOpen(resolved, os.O_RDONLY),
		Writable:    canOpen(resolved, os.O_WRONLY),
	}
	if out.Type == "file" {
		out.MimeType = mime.TypeByExtension(filepath.Ext(resolved))
	}
	if out.Type == "symlink" {
		out.SymlinkTarget, _ = os.Readlink(resolved)
	}
	return out, nil
}

func canOpen(path string, flag int) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		if flag == os.O_RDONLY {
			_, err := os.ReadDir(path)
			return err == nil
		}
		return info.Mode().Perm()&0o200 != 0
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
