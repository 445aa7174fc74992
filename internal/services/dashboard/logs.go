package dashboard

import (
	"path/filepath"
	"strings"

	"github.com/mcpsuite/mcpsuite/internal/platform/logging"
)

// Log tail limits.
const (
	defaultLogLines = 100
	maxLogLines     = 500
	snapshotLines   = 30
)

// LogLine is one non-blank log line with its detected level.
type LogLine struct {
	Text  string `json:"text"`
	Level string `json:"level"`
}

// LogSummary counts problem lines across servers.
type LogSummary struct {
	TotalErrors   int `json:"total_errors"`
	TotalWarnings int `json:"total_warnings"`
}

// LogsView is the all-servers log response.
type LogsView struct {
	AllServers map[string][]LogLine `json:"all_servers"`
	Summary    LogSummary           `json:"summary"`
}

// DetectLevel classifies a line by the level words it contains.
func DetectLevel(line string) string {
	upper := strings.ToUpper(line)
	switch {
	case strings.Contains(upper, "ERROR"), strings.Contains(upper, "CRITICAL"),
		strings.Contains(upper, "FATAL"), strings.Contains(upper, "PANIC"):
		return "error"
	case strings.Contains(upper, "WARN"):
		return "warning"
	case strings.Contains(upper, "DEBUG"):
		return "debug"
	default:
		return "info"
	}
}

// TailLog returns up to n trailing non-blank lines of path with their
// levels. A missing file yields no lines.
func TailLog(path string, n int) ([]LogLine, error) {
	if n <= 0 {
		n = defaultLogLines
	}
	lines, err := logging.Tail(path, n)
	if err != nil {
		return nil, err
	}
	out := make([]LogLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, LogLine{Text: line, Level: DetectLevel(line)})
	}
	return out, nil
}

func (s *Server) allLogs(lines int) LogsView {
	view := LogsView{AllServers: map[string][]LogLine{}}
	for _, srv := range s.servers {
		tail, err := TailLog(filepath.Join(s.logDir, srv.LogFile()), lines)
		if err != nil {
			s.logger.Warn().Err(err).Str("server", string(srv.Kind)).Msg("read log")
			tail = []LogLine{}
		}
		view.AllServers[string(srv.Kind)] = tail
		for _, l := range tail {
			switch l.Level {
			case "error":
				view.Summary.TotalErrors++
			case "warning":
				view.Summary.TotalWarnings++
			}
		}
	}
	return view
}
