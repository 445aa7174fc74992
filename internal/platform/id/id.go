// Package id generates the identifiers used across mcpsuite.
package id

import (
	"encoding/base32"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a random UUIDv4 encoded as 26 lowercase base32 characters.
func NewID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(u[:])), nil
}

// Sequence formats n as a prefixed, zero-padded identifier such as
// GOAL-0001. Numbers past 9999 keep growing in width.
func Sequence(prefix string, n int64) string {
	return fmt.Sprintf("%s-%04d", prefix, n)
}

// ParseSequence returns the number in a Sequence identifier with the given
// prefix.
func ParseSequence(prefix, value string) (int64, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(value), prefix+"-")
	if !ok || rest == "" {
		return 0, fmt.Errorf("id %q does not start with %s-", value, prefix)
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("id %q has invalid sequence number", value)
	}
	return n, nil
}
