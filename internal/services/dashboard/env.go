package dashboard

import "strings"

// EnvVar is the masked state of one credential.
type EnvVar struct {
	Configured  bool   `json:"configured"`
	MaskedValue string `json:"masked_value"`
}

// ServerEnv lists a server's credentials.
type ServerEnv struct {
	Name    string            `json:"name"`
	EnvVars map[string]EnvVar `json:"env_vars"`
	AllSet  bool              `json:"all_set"`
}

// MaskValue shows the first four characters of values longer than six and
// hides shorter ones entirely.
func MaskValue(value string) string {
	switch {
	case value == "":
		return "Not set"
	case len(value) > 6:
		return value[:4] + "***"
	default:
		return "***"
	}
}

func (s *Server) envStatus() map[string]ServerEnv {
	out := make(map[string]ServerEnv, len(s.servers))
	for _, srv := range s.servers {
		view := ServerEnv{Name: srv.Name, EnvVars: map[string]EnvVar{}, AllSet: true}
		for _, name := range srv.RequiredEnv {
			value := strings.TrimSpace(s.getenv(name))
			view.EnvVars[name] = EnvVar{Configured: value != "", MaskedValue: MaskValue(value)}
			if value == "" {
				view.AllSet = false
			}
		}
		out[string(srv.Kind)] = view
	}
	return out
}

func (s *Server) envConfigured(required []string) bool {
	for _, name := range required {
		if strings.TrimSpace(s.getenv(name)) == "" {
			return false
		}
	}
	return true
}
