package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/subosito/gotenv"
)

// EnvFileVar overrides the path of the dotenv file loaded by LoadDotEnv.
const EnvFileVar = "MCPSUITE_ENV_FILE"

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadDotEnv loads a dotenv file into the process environment.
//
// The path comes from MCPSUITE_ENV_FILE when set, otherwise ".env" in the
// working directory. Variables already present in the environment win. A
// missing file is not an error.
func LoadDotEnv() error {
	path := strings.TrimSpace(os.Getenv(EnvFileVar))
	if path == "" {
		path = ".env"
	}
	if err := gotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load dotenv %s: %w", path, err)
	}
	return nil
}

// Missing returns the names of required settings whose values are blank.
// Keys are reported in the order given.
func Missing(required map[string]string, order ...string) []string {
	var missing []string
	for _, name := range order {
		if strings.TrimSpace(required[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
