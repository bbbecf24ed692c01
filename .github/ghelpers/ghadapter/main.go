package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
)

// ghadapter runs a command that prints a JSON object, such as bin/check,
// and appends each top level field to $GITHUB_OUTPUT. The command's exit
// code is passed through after the outputs are written, so a failed check
// still publishes its report.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: ghadapter command [args...]")
		os.Exit(2)
	}

	cmd := exec.Command(os.Args[1], os.Args[2:]...)
	cmd.Stdin = os.Stdin
	cmd.Stderr = os.Stderr

	output, err := cmd.Output()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		code = exitErr.ExitCode()
	}
	_, _ = os.Stdout.Write(output)

	if githubOutput := os.Getenv("GITHUB_OUTPUT"); githubOutput != "" {
		if err := appendOutputs(githubOutput, output); err != nil {
			fmt.Fprintln(os.Stderr, err)
			if code == 0 {
				code = 1
			}
		}
	}
	os.Exit(code)
}

func appendOutputs(path string, output []byte) error {
	var result map[string]any
	if err := json.Unmarshal(output, &result); err != nil {
		return fmt.Errorf("command output is not a JSON object: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	return writeOutputs(f, result)
}

func writeOutputs(w io.Writer, result map[string]any) error {
	keys := make([]string, 0, len(result))
	for key := range result {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := result[key]
		switch value.(type) {
		case map[string]any, []any:
			// Nested values keep their JSON form so steps can fromJSON them.
			b, err := json.Marshal(value)
			if err != nil {
				return err
			}
			value = string(b)
		}
		if _, err := fmt.Fprintf(w, "%s=%v\n", key, value); err != nil {
			return err
		}
	}
	return nil
}
