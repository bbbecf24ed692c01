package config_test

import (
	"asciitex/internal/config"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEnvOrDefault(t *testing.T) {
	tests := []struct {
		name  string
		value string
		check func(t *testing.T, key string)
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			"out",
			func(t *testing.T, key string) {
				if diff := cmp.Diff("out", config.EnvOrDefault(key, "tmp")); diff != "" {
					t.Errorf("(-want +got):\n%s", diff)
				}
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			"12",
			func(t *testing.T, key string) {
				if diff := cmp.Diff(12, config.EnvOrDefault(key, 9)); diff != "" {
					t.Errorf("(-want +got):\n%s", diff)
				}
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			"twelve",
			func(t *testing.T, key string) {
				if diff := cmp.Diff(9, config.EnvOrDefault(key, 9)); diff != "" {
					t.Errorf("(-want +got):\n%s", diff)
				}
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			"3",
			func(t *testing.T, key string) {
				if diff := cmp.Diff(uint(3), config.EnvOrDefault(key, uint(8))); diff != "" {
					t.Errorf("(-want +got):\n%s", diff)
				}
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			"0.99",
			func(t *testing.T, key string) {
				if diff := cmp.Diff(0.99, config.EnvOrDefault(key, 0.999999)); diff != "" {
					t.Errorf("(-want +got):\n%s", diff)
				}
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			"true",
			func(t *testing.T, key string) {
				if diff := cmp.Diff(true, config.EnvOrDefault(key, false)); diff != "" {
					t.Errorf("(-want +got):\n%s", diff)
				}
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			"1m30s",
			func(t *testing.T, key string) {
				if diff := cmp.Diff(90*time.Second, config.EnvOrDefault(key, time.Second)); diff != "" {
					t.Errorf("(-want +got):\n%s", diff)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "ASCIITEX_TEST_" + tt.name
			t.Setenv(key, tt.value)
			tt.check(t, key)
		})
	}

	t.Run("Unset", func(t *testing.T) {
		if got := config.EnvOrDefault("ASCIITEX_TEST_UNSET", "fallback"); got != "fallback" {
			t.Errorf("Expected fallback, got %q", got)
		}
	})
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("ASCIITEX_DOTENV_NEW=from-file\nASCIITEX_DOTENV_SET=from-file\n"), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Setenv("ASCIITEX_DOTENV_SET", "from-env")
	t.Setenv("ASCIITEX_DOTENV_NEW", "")
	os.Unsetenv("ASCIITEX_DOTENV_NEW")

	if err := config.LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("ASCIITEX_DOTENV_NEW"); got != "from-file" {
		t.Errorf("Expected from-file, got %q", got)
	}
	if got := os.Getenv("ASCIITEX_DOTENV_SET"); got != "from-env" {
		t.Errorf("Expected existing variables to win, got %q", got)
	}
}
