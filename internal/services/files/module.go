package files

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpsuite/mcpsuite/internal/platform/config"
	"github.com/mcpsuite/mcpsuite/internal/platform/logging"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/domain"
)

// Config configures the file server.
type Config struct {
	// Root resolves relative paths. Empty means the working directory.
	Root         string `env:"FILES_ROOT"`
	MaxReadBytes int64  `env:"FILES_MAX_READ_BYTES" envDefault:"10485760"`
}

// Module builds the file server from the environment.
func Module(_ context.Context, deps domain.Deps) domain.Module {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return domain.Module{Name: "File System", ConfigErr: err}
	}
	svc, err := NewService(cfg)
	if err != nil {
		return domain.Module{Name: "File System", ConfigErr: err}
	}
	return NewModule(svc)
}

// NewModule exposes svc as MCP tools.
func NewModule(svc *Service) domain.Module {
	return domain.Module{
		Name: "File System",
		Tools: []domain.ToolRegistration{
			domain.Tool(ReadFileTool(), ReadFileHandler(svc)),
			domain.Tool(WriteFileTool(), WriteFileHandler(svc)),
			domain.Tool(EditFileTool(), EditFileHandler(svc)),
			domain.Tool(ListDirectoryTool(), ListDirectoryHandler(svc)),
			domain.Tool(FileInfoTool(), FileInfoHandler(svc)),
			domain.Tool(SearchFilesTool(), SearchFilesHandler(svc)),
			domain.Tool(SearchSystemWideTool(), SearchSystemWideHandler(svc)),
		},
		Settings: []logging.Setting{
			{Key: "Root", Value: svc.root},
			{Key: "Restricted Paths", Value: svc.restricted},
		},
	}
}

// ReadFileInput is the read_file input.
type ReadFileInput struct {
	FilePath string `json:"file_path" jsonschema:"path of the file to read"`
	Encoding string `json:"encoding,omitempty" jsonschema:"text encoding, only utf-8 is supported"`
}

// ReadFileTool defines read_file.
func ReadFileTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "read_file",
		Description: "Read a UTF-8 text file and return its content with metadata",
	}
}

// ReadFileHandler reads a file.
func ReadFileHandler(svc *Service) mcp.ToolHandlerFor[ReadFileInput, ReadResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, in ReadFileInput) (*mcp.CallToolResult, ReadResult, error) {
		out, err := svc.ReadFile(in.FilePath, in.Encoding)
		return nil, out, err
	}
}

// WriteFileInput is the write_file input.
type WriteFileInput struct {
	FilePath   string `json:"file_path" jsonschema:"path of the file to write"`
	Content    string `json:"content" jsonschema:"full new content of the file"`
	CreateDirs *bool  `json:"create_dirs,omitempty" jsonschema:"create missing parent directories (default true)"`
	Preview    bool   `json:"preview,omitempty" jsonschema:"return a diff without writing"`
}

// WriteFileTool defines write_file.
func WriteFileTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "write_file",
		Description: "Write content to a file atomically, or preview the change as a diff",
	}
}

// WriteFileHandler writes a file.
func WriteFileHandler(svc *Service) mcp.ToolHandlerFor[WriteFileInput, WriteResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, in WriteFileInput) (*mcp.CallToolResult, WriteResult, error) {
		createDirs := in.CreateDirs == nil || *in.CreateDirs
		out, err := svc.WriteFile(in.FilePath, in.Content, createDirs, in.Preview)
		return nil, out, err
	}
}

// EditFileInput is the edit_file input.
type EditFileInput struct {
	FilePath string `json:"file_path" jsonschema:"path of the file to edit"`
	OldText  string `json:"old_text" jsonschema:"exact text to replace; must occur once"`
	NewText  string `json:"new_text" jsonschema:"replacement text"`
}

// EditFileTool defines edit_file.
func EditFileTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "edit_file",
		Description: "Replace exactly one occurrence of old_text with new_text in a file",
	}
}

// EditFileHandler edits a file in place.
func EditFileHandler(svc *Service) mcp.ToolHandlerFor[EditFileInput, EditResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, in EditFileInput) (*mcp.CallToolResult, EditResult, error) {
		out, err := svc.EditFile(in.FilePath, in.OldText, in.NewText)
		return nil, out, err
	}
}

// ListDirectoryInput is the list_directory input.
type ListDirectoryInput struct {
	DirPath       string `json:"dir_path" jsonschema:"directory to list"`
	IncludeHidden bool   `json:"include_hidden,omitempty" jsonschema:"include dot files"`
	Recursive     bool   `json:"recursive,omitempty" jsonschema:"descend into subdirectories"`
	MaxDepth      int    `json:"max_depth,omitempty" jsonschema:"recursion depth limit (default 3, max 10)"`
}

// ListDirectoryTool defines list_directory.
func ListDirectoryTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_directory",
		Description: "List directory entries, directories first",
	}
}

// ListDirectoryHandler lists a directory.
func ListDirectoryHandler(svc *Service) mcp.ToolHandlerFor[ListDirectoryInput, ListResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, in ListDirectoryInput) (*mcp.CallToolResult, ListResult, error) {
		depth := domain.Clamp(in.MaxDepth, 3, 1, 10)
		out, err := svc.ListDirectory(in.DirPath, in.IncludeHidden, in.Recursive, depth)
		return nil, out, err
	}
}

// FileInfoInput is the get_file_info input.
type FileInfoInput struct {
	FilePath string `json:"file_path" jsonschema:"file or directory path"`
}

// FileInfoTool defines get_file_info.
func FileInfoTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_file_info",
		Description: "Get file or directory metadata without reading content",
	}
}

// FileInfoHandler stats a path.
func FileInfoHandler(svc *Service) mcp.ToolHandlerFor[FileInfoInput, Info] {
	return func(_ context.Context, _ *mcp.CallToolRequest, in FileInfoInput) (*mcp.CallToolResult, Info, error) {
		out, err := svc.FileInfo(in.FilePath)
		return nil, out, err
	}
}

// SearchFilesInput is the search_files input.
type SearchFilesInput struct {
	DirPath       string `json:"dir_path" jsonschema:"directory to search"`
	Pattern       string `json:"pattern" jsonschema:"glob matched against file names, e.g. *.go"`
	IncludeHidden bool   `json:"include_hidden,omitempty" jsonschema:"include dot files"`
}

// SearchFilesTool defines search_files.
func SearchFilesTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_files",
		Description: "Recursively find files whose names match a glob pattern",
	}
}

// SearchFilesHandler searches one directory tree.
func SearchFilesHandler(svc *Service) mcp.ToolHandlerFor[SearchFilesInput, SearchResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, in SearchFilesInput) (*mcp.CallToolResult, SearchResult, error) {
		out, err := svc.SearchFiles(in.DirPath, in.Pattern, in.IncludeHidden)
		return nil, out, err
	}
}

// SearchSystemWideInput is the search_files_system_wide input.
type SearchSystemWideInput struct {
	Pattern        string   `json:"pattern" jsonschema:"glob matched against file names"`
	StartPaths     []string `json:"start_paths,omitempty" jsonschema:"roots to search (default home and working directory)"`
	MaxResults     int      `json:"max_results,omitempty" jsonschema:"match limit (default 100, max 1000)"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty" jsonschema:"search deadline in seconds (default 30)"`
}

// SearchSystemWideTool defines search_files_system_wide.
func SearchSystemWideTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_files_system_wide",
		Description: "Search several root directories for file names matching a glob, bounded by count and time",
	}
}

// SearchSystemWideHandler searches across roots.
func SearchSystemWideHandler(svc *Service) mcp.ToolHandlerFor[SearchSystemWideInput, SearchResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in SearchSystemWideInput) (*mcp.CallToolResult, SearchResult, error) {
		ctx, cancel := withDeadline(ctx, in.TimeoutSeconds)
		defer cancel()
		limit := domain.Clamp(in.MaxResults, 100, 1, 1000)
		out, err := svc.SearchSystemWide(ctx, in.Pattern, in.StartPaths, limit)
		return nil, out, err
	}
}
