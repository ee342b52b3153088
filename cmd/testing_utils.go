// Package cmd contains testing utilities shared between command tests.
// This file provides common functions for setting up test environments,
// capturing output, and running the CLI in-process.
package cmd

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	logger "github.com/PolarWolf314/docvault/internal/logging"
	"github.com/spf13/cobra"
)

// setupTestEnvironment changes into a fresh vault directory and points the
// session directory at a temporary one.
func setupTestEnvironment(t *testing.T) string {
	t.Helper()
	originalWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}

	tempDir := t.TempDir()
	t.Setenv("DOCVAULT_SESSION_DIR", t.TempDir())
	t.Setenv("NO_COLOR", "1")

	if err := os.Chdir(tempDir); err != nil {
		t.Fatalf("Failed to change to temp directory: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(originalWd); err != nil {
			t.Fatalf("Failed to change to original directory: %v", err)
		}
		ResetGlobalState()
	})

	ResetGlobalState()
	return tempDir
}

// captureOutput captures both stdout and stderr during function execution.
func captureOutput(fn func() error) (string, error) {
	originalStdout := os.Stdout
	originalStderr := os.Stderr

	stdoutReader, stdoutWriter, _ := os.Pipe()
	stderrReader, stderrWriter, _ := os.Pipe()

	os.Stdout = stdoutWriter
	os.Stderr = stderrWriter

	outputChan := make(chan string, 2)
	for _, r := range []*os.File{stdoutReader, stderrReader} {
		go func(r *os.File) {
			var buf bytes.Buffer
			_, _ = io.Copy(&buf, r)
			outputChan <- buf.String()
		}(r)
	}

	err := fn()

	stdoutWriter.Close()
	stderrWriter.Close()

	os.Stdout = originalStdout
	os.Stderr = originalStderr

	first := <-outputChan
	second := <-outputChan
	return first + second, err
}

// createTestCLI creates a complete CLI instance for testing with the given
// arguments.
func createTestCLI(args ...string) *cobra.Command {
	Logger = logger.Logger{
		Verbose: verbose,
		Debug:   debug,
	}

	rootCmd := &cobra.Command{
		Use:           "docvault",
		Short:         "Docvault - zero-knowledge document encryption.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(KeysCmd)
	rootCmd.AddCommand(DocsCmd)
	rootCmd.AddCommand(LogCmd)
	rootCmd.SetArgs(args)
	return rootCmd
}

// runCLI runs the CLI with passwords fed from stdin, one per line.
func runCLI(t *testing.T, passwords []string, args ...string) (string, error) {
	t.Helper()
	if len(passwords) > 0 {
		stdinReader = bufio.NewReader(strings.NewReader(strings.Join(passwords, "\n") + "\n"))
		args = append(args, "--password-stdin")
	}
	return captureOutput(func() error {
		return createTestCLI(args...).Execute()
	})
}

// initializeVault provisions a vault in the current directory.
func initializeVault(t *testing.T, password string) {
	t.Helper()
	output, err := runCLI(t, []string{password}, "keys", "init", "--iterations", "100000", "--identity", "ada@example.com")
	if err != nil {
		t.Fatalf("Failed to initialize vault: %v\nOutput: %s", err, output)
	}
}
