package domain

import (
	"encoding/json"
	"strings"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
)

// SplitList splits a comma separated argument, trimming blanks.
func SplitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DecodeJSONArg unmarshals a JSON-string argument into target. The error
// names the argument so callers can fix it.
func DecodeJSONArg(name, raw string, target any) error {
	if strings.TrimSpace(raw) == "" {
		return apperrors.Validation("%s is required", name)
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return apperrors.Wrap(apperrors.CodeJSON, "invalid JSON in "+name+": "+err.Error(), err)
	}
	return nil
}

// Require returns a validation error naming the first blank field.
func Require(fields ...string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		if strings.TrimSpace(fields[i+1]) == "" {
			return apperrors.Validation("%s is required", fields[i])
		}
	}
	return nil
}

// Clamp bounds v to [lo, hi], using def when v is zero.
func Clamp(v, def, lo, hi int) int {
	if v == 0 {
		v = def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
