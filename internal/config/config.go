package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/xerrors"
)

// EnvOrDefault returns the value of the environment variable key parsed as
// T, or defaultValue when it is unset or does not parse.
func EnvOrDefault[T any](key string, defaultValue T) T {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	var parsed any
	var err error
	switch any(defaultValue).(type) {
	case string:
		return any(value).(T)
	case int:
		parsed, err = strconv.Atoi(value)
	case int64:
		parsed, err = strconv.ParseInt(value, 10, 64)
	case uint:
		var u uint64
		u, err = strconv.ParseUint(value, 10, 0)
		parsed = uint(u)
	case uint64:
		parsed, err = strconv.ParseUint(value, 10, 64)
	case float64:
		parsed, err = strconv.ParseFloat(value, 64)
	case bool:
		parsed, err = strconv.ParseBool(value)
	case time.Duration:
		parsed, err = time.ParseDuration(value)
	default:
		return defaultValue
	}
	if err != nil {
		return defaultValue
	}
	return parsed.(T)
}

// LoadDotEnv loads variables from the given files, or .env when none are
// named, without overriding variables already set. Missing files are
// skipped.
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, filename := range filenames {
		if err := godotenv.Load(filename); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return xerrors.Errorf("failed to load %s: %w", filename, err)
		}
	}
	return nil
}
