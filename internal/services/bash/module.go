package bash

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpsuite/mcpsuite/internal/platform/config"
	"github.com/mcpsuite/mcpsuite/internal/platform/logging"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/domain"
)

// Config configures the bash server.
type Config struct {
	Timeout   time.Duration `env:"BASH_TIMEOUT" envDefault:"30s"`
	MaxOutput int           `env:"BASH_MAX_OUTPUT" envDefault:"1048576"`
	// DefaultDir is the working directory when a call names none. Empty
	// means the home directory.
	DefaultDir string `env:"BASH_DEFAULT_DIR"`
	// AllowedPaths limits working and inspected directories when set.
	AllowedPaths []string `env:"BASH_ALLOWED_PATHS" envSeparator:","`
}

// Module builds the bash server from the environment.
func Module(_ context.Context, deps domain.Deps) domain.Module {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return domain.Module{Name: "Bash", ConfigErr: err}
	}
	executor, err := NewExecutor(cfg, deps.Logger)
	if err != nil {
		return domain.Module{Name: "Bash", ConfigErr: err}
	}
	return NewModule(executor)
}

// NewModule exposes executor as MCP tools.
func NewModule(executor *Executor) domain.Module {
	return domain.Module{
		Name: "Bash",
		Tools: []domain.ToolRegistration{
			domain.Tool(ExecuteCommandTool(), ExecuteCommandHandler(executor)),
			domain.Tool(ExecuteMultipleTool(), ExecuteMultipleHandler(executor)),
			domain.Tool(CheckDirectoryTool(), CheckDirectoryHandler(executor)),
			domain.Tool(ListDirectoryTool(), ListDirectoryHandler(executor)),
			domain.Tool(WhichCommandTool(), WhichCommandHandler(executor)),
		},
		Settings: []logging.Setting{
			{Key: "Shell", Value: executor.shell},
			{Key: "Default Directory", Value: executor.defaultDir},
			{Key: "Timeout", Value: executor.timeout.String()},
			{Key: "Max Output Bytes", Value: executor.maxOutput},
			{Key: "Allowed Paths", Value: executor.allowedPaths},
		},
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// ExecuteCommandInput is the execute_command input.
type ExecuteCommandInput struct {
	Command    string            `json:"command" jsonschema:"shell command to run"`
	WorkingDir string            `json:"working_dir,omitempty" jsonschema:"working directory (default home)"`
	Timeout    int               `json:"timeout,omitempty" jsonschema:"timeout in seconds, 1 to 300 (default 30)"`
	Env        map[string]string `json:"env,omitempty" jsonschema:"extra environment variables"`
}

// ExecuteCommandTool defines execute_command.
func ExecuteCommandTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "execute_command",
		Description: "Execute a shell command and return stdout, stderr and the exit code",
	}
}

// ExecuteCommandHandler runs one command.
func ExecuteCommandHandler(executor *Executor) mcp.ToolHandlerFor[ExecuteCommandInput, CommandResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in ExecuteCommandInput) (*mcp.CallToolResult, CommandResult, error) {
		out, err := executor.Execute(ctx, CommandRequest{
			Command:    in.Command,
			WorkingDir: in.WorkingDir,
			Timeout:    seconds(in.Timeout),
			Env:        in.Env,
		})
		return nil, out, err
	}
}

// ExecuteMultipleInput is the execute_multiple_commands input.
type ExecuteMultipleInput struct {
	Commands    []string `json:"commands" jsonschema:"commands to run in order"`
	WorkingDir  string   `json:"working_dir,omitempty" jsonschema:"working directory for every command"`
	StopOnError *bool    `json:"stop_on_error,omitempty" jsonschema:"skip remaining commands after a failure (default true)"`
	Timeout     int      `json:"timeout,omitempty" jsonschema:"per-command timeout in seconds (default 30)"`
}

// ExecuteMultipleTool defines execute_multiple_commands.
func ExecuteMultipleTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "execute_multiple_commands",
		Description: "Execute several shell commands in sequence",
	}
}

// ExecuteMultipleHandler runs a command batch.
func ExecuteMultipleHandler(executor *Executor) mcp.ToolHandlerFor[ExecuteMultipleInput, BatchResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in ExecuteMultipleInput) (*mcp.CallToolResult, BatchResult, error) {
		stop := in.StopOnError == nil || *in.StopOnError
		out, err := executor.ExecuteAll(ctx, in.Commands, in.WorkingDir, seconds(in.Timeout), stop)
		return nil, out, err
	}
}

// PathInput names a directory.
type PathInput struct {
	Path string `json:"path" jsonschema:"directory path"`
}

// CheckDirectoryTool defines check_directory.
func CheckDirectoryTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "check_directory",
		Description: "Check whether a directory exists and is readable and writable",
	}
}

// CheckDirectoryHandler checks a directory.
func CheckDirectoryHandler(executor *Executor) mcp.ToolHandlerFor[PathInput, DirectoryStatus] {
	return func(_ context.Context, _ *mcp.CallToolRequest, in PathInput) (*mcp.CallToolResult, DirectoryStatus, error) {
		out, err := executor.CheckDirectory(in.Path)
		return nil, out, err
	}
}

// ListDirectoryTool defines list_directory.
func ListDirectoryTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_directory",
		Description: "List the contents of a directory",
	}
}

// ListDirectoryHandler lists a directory.
func ListDirectoryHandler(executor *Executor) mcp.ToolHandlerFor[PathInput, Listing] {
	return func(_ context.Context, _ *mcp.CallToolRequest, in PathInput) (*mcp.CallToolResult, Listing, error) {
		out, err := executor.ListDirectory(in.Path)
		return nil, out, err
	}
}

// WhichCommandInput is the which_command input.
type WhichCommandInput struct {
	Command string `json:"command" jsonschema:"program name to locate"`
}

// WhichCommandTool defines which_command.
func WhichCommandTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "which_command",
		Description: "Find the full path of a program on PATH",
	}
}

// WhichCommandHandler looks up a program.
func WhichCommandHandler(executor *Executor) mcp.ToolHandlerFor[WhichCommandInput, Lookup] {
	return func(_ context.Context, _ *mcp.CallToolRequest, in WhichCommandInput) (*mcp.CallToolResult, Lookup, error) {
		out, err := executor.Which(in.Command)
		return nil, out, err
	}
}
