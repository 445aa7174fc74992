// Package catalog lists the MCP servers shipped with mcpsuite.
//
// The runtime uses it to resolve -server keys, and the dashboard and mcpctl
// use it to find processes, log files and required credentials.
package catalog

import (
	"sort"
	"strings"

	"github.com/mcpsuite/mcpsuite/internal/platform/logging"
)

// Kind is a server key such as "github" or "goal-agent".
type Kind string

const (
	KindGitHub      Kind = "github"
	KindJira        Kind = "jira"
	KindFiles       Kind = "file-server"
	KindBash        Kind = "bash"
	KindInternet    Kind = "internet"
	KindMemoryCache Kind = "memory-cache"
	KindFrappe      Kind = "frappe"
	KindGoalAgent   Kind = "goal-agent"
)

// Server describes one MCP server.
type Server struct {
	Kind Kind
	// Name is the display name, e.g. "GitHub Server".
	Name string
	// RequiredEnv lists variables the server needs to be fully functional.
	RequiredEnv []string
}

// LogFile is the server's log file name inside the log directory.
func (s Server) LogFile() string {
	return logging.ServerLogFile(string(s.Kind))
}

// ProcessMarker is the command-line fragment that identifies a running
// instance of the server.
func (s Server) ProcessMarker() string {
	return "-server=" + string(s.Kind)
}

var servers = []Server{
	{Kind: KindMemoryCache, Name: "Memory Cache Server", RequiredEnv: []string{"REDIS_HOST", "REDIS_PORT"}},
	{Kind: KindGoalAgent, Name: "Goal Agent Server"},
	{Kind: KindInternet, Name: "Internet Server", RequiredEnv: []string{"GOOGLE_API_KEY", "GOOGLE_SEARCH_ENGINE_ID"}},
	{Kind: KindGitHub, Name: "GitHub Server", RequiredEnv: []string{"GITHUB_PERSONAL_ACCESS_TOKEN"}},
	{Kind: KindFrappe, Name: "Frappe Server", RequiredEnv: []string{"FRAPPE_SITE_URL", "FRAPPE_API_KEY", "FRAPPE_API_SECRET"}},
	{Kind: KindJira, Name: "Jira Server", RequiredEnv: []string{"JIRA_BASE_URL", "JIRA_EMAIL", "JIRA_API_TOKEN"}},
	{Kind: KindFiles, Name: "File System Server"},
	{Kind: KindBash, Name: "Bash Server"},
}

// All returns every server in display order.
func All() []Server {
	out := make([]Server, len(servers))
	copy(out, servers)
	return out
}

// Lookup finds a server by key. Underscores are accepted in place of
// dashes and a trailing "_server" is ignored.
func Lookup(key string) (Server, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.TrimSuffix(strings.TrimSuffix(key, "_server"), "-server")
	key = strings.ReplaceAll(key, "_", "-")
	if key == "file" {
		key = string(KindFiles)
	}
	for _, s := range servers {
		if string(s.Kind) == key {
			return s, true
		}
	}
	return Server{}, false
}

// Keys returns the sorted server keys.
func Keys() []string {
	keys := make([]string, 0, len(servers))
	for _, s := range servers {
		keys = append(keys, string(s.Kind))
	}
	sort.Strings(keys)
	return keys
}
