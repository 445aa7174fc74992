package bash

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
)

// BatchSummary counts the outcomes of a command batch.
type BatchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// BatchResult is the outcome of execute_multiple_commands.
type BatchResult struct {
	Success bool            `json:"success"`
	Summary BatchSummary    `json:"summary"`
	Results []CommandResult `json:"results"`
}

// ExecuteAll runs commands in order. With stopOnError the first failure
// skips the rest. A command rejected before it starts counts as failed.
func (e *Executor) ExecuteAll(ctx context.Context, commands []string, dir string, timeout time.Duration, stopOnError bool) (BatchResult, error) {
	if len(commands) == 0 {
		return BatchResult{}, apperrors.Validation("commands must not be empty")
	}
	out := BatchResult{
		Summary: BatchSummary{Total: len(commands)},
		Results: []CommandResult{},
	}
	for i, command := range commands {
		if err := ctx.Err(); err != nil {
			return BatchResult{}, err
		}
		res, err := e.Execute(ctx, CommandRequest{Command: command, WorkingDir: dir, Timeout: timeout})
		if err != nil {
			if ctx.Err() != nil {
				return BatchResult{}, err
			}
			res = CommandResult{Command: command, ExitCode: -1, Error: err.Error()}
			var appErr *apperrors.Error
			if errors.As(err, &appErr) {
				res.Error = appErr.Message
			}
		}
		res.Index = i
		out.Results = append(out.Results, res)
		if res.Success {
			out.Summary.Succeeded++
			continue
		}
		out.Summary.Failed++
		if stopOnError {
			break
		}
	}
	out.Summary.Skipped = out.Summary.Total - out.Summary.Succeeded - out.Summary.Failed
	out.Success = out.Summary.Succeeded == out.Summary.Total
	return out, nil
}

// DirectoryStatus reports whether a path is a usable directory.
type DirectoryStatus struct {
	Path        string `json:"path"`
	Exists      bool   `json:"exists"`
	IsDirectory bool   `json:"is_directory"`
	Readable    bool   `json:"readable"`
	Writable    bool   `json:"writable"`
}

// CheckDirectory never fails for a missing path; it reports exists=false.
func (e *Executor) CheckDirectory(path string) (DirectoryStatus, error) {
	resolved, err := e.resolve(path)
	if err != nil {
		return DirectoryStatus{}, err
	}
	out := DirectoryStatus{Path: resolved}
	info, err := os.Stat(resolved)
	if err != nil {
		return out, nil
	}
	out.Exists = true
	out.IsDirectory = info.IsDir()
	if out.IsDirectory {
		_, readErr := os.ReadDir(resolved)
		out.Readable = readErr == nil
		out.Writable = dirWritable(resolved)
	} else {
		if f, err := os.Open(resolved); err == nil {
			out.Readable = true
			_ = f.Close()
		}
		if f, err := os.OpenFile(resolved, os.O_WRONLY, 0); err == nil {
			out.Writable = true
			_ = f.Close()
		}
	}
	return out, nil
}

func dirWritable(dir string) bool {
	f, err := os.CreateTemp(dir, ".mcpsuite-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}

// Item is one directory entry.
type Item struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
}

// Listing is the content of a directory.
type Listing struct {
	Path      string `json:"path"`
	Count     int    `json:"count"`
	Truncated bool   `json:"truncated"`
	Items     []Item `json:"items"`
}

// ListDirectory lists the direct children of path. Entries that cannot be
// stat'ed are skipped.
func (e *Executor) ListDirectory(path string) (Listing, error) {
	resolved, err := e.resolve(path)
	if err != nil {
		return Listing{}, err
	}
	info, err := os.Stat(resolved)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Listing{}, apperrors.NotFound("directory does not exist: %s", resolved)
	case err != nil:
		return Listing{}, apperrors.Wrap(apperrors.CodePermission, "cannot access "+resolved, err)
	case !info.IsDir():
		return Listing{}, apperrors.Validation("path is not a directory: %s", resolved)
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return Listing{}, apperrors.Wrap(apperrors.CodePermission, "cannot read "+resolved, err)
	}

	out := Listing{Path: resolved, Items: []Item{}}
	for _, entry := range entries {
		if len(out.Items) >= maxListEntries {
			out.Truncated = true
			break
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		item := Item{
			Name:     entry.Name(),
			Path:     filepath.Join(resolved, entry.Name()),
			Type:     "file",
			Size:     info.Size(),
			Modified: info.ModTime().Format(time.RFC3339),
		}
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			item.Type = "symlink"
		case info.IsDir():
			item.Type = "directory"
		}
		out.Items = append(out.Items, item)
	}
	sort.Slice(out.Items, func(i, j int) bool { return out.Items[i].Name < out.Items[j].Name })
	out.Count = len(out.Items)
	return out, nil
}

// Lookup is the result of which_command.
type Lookup struct {
	Command string `json:"command"`
	Found   bool   `json:"found"`
	Path    string `json:"path,omitempty"`
}

// Which finds command on PATH.
func (e *Executor) Which(command string) (Lookup, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return Lookup{}, apperrors.Validation("command is required")
	}
	if strings.ContainsAny(command, " \t\n;|&") {
		return Lookup{}, apperrors.Validation("command must be a single program name: %q", command)
	}
	out := Lookup{Command: command}
	path, err := exec.LookPath(command)
	if err != nil {
		return out, nil
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	out.Found = true
	out.Path = path
	return out, nil
}
