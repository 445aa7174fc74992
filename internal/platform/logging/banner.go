package logging

import (
	"runtime"
	"strings"
)

const rule = "======================================================================"

var sensitiveMarkers = []string{"token", "secret", "password", "key", "api"}

// Setting is one configuration value shown in the startup banner.
type Setting struct {
	Key   string
	Value any
}

// Startup logs the startup banner. Settings whose key looks sensitive are
// masked.
func Startup(l *Logger, name string, settings ...Setting) {
	if l == nil {
		return
	}
	l.Info().Msg(rule)
	l.Info().Msgf("%s Starting", name)
	l.Info().Msg(rule)
	l.Info().Msgf("Go Version: %s", runtime.Version())
	l.Info().Msgf("Log Level: %s", l.GetLevel())
	l.Info().Msgf("Started At: %s", stamp())
	for _, s := range settings {
		l.Info().Msgf("%s: %v", s.Key, Mask(s.Key, s.Value))
	}
	l.Info().Msg(rule)
}

// Shutdown logs the shutdown banner.
func Shutdown(l *Logger, name string) {
	if l == nil {
		return
	}
	l.Info().Msg(rule)
	l.Info().Msgf("%s Shutting Down", name)
	l.Info().Msg(rule)
}

// Mask hides value when key names a credential.
func Mask(key string, value any) any {
	lower := strings.ToLower(key)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(lower, marker) {
			return "********"
		}
	}
	return value
}
