package utils

import (
	"bytes"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/term"
)

func ttyPath() string {
	if runtime.GOOS == "windows" {
		return "CON"
	}
	return "/dev/tty"
}

// ReadPassword prompts for a password without echoing input. It reads from
// stdin when stdin is a terminal and from the TTY otherwise, so it still
// works when stdin carries a document.
func ReadPassword(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		tty, err := os.Open(ttyPath())
		if err != nil {
			return nil, fmt.Errorf("cannot read password: stdin is not a terminal and %s is unavailable", ttyPath())
		}
		defer tty.Close()
		fd = int(tty.Fd())
		if !term.IsTerminal(fd) {
			return nil, fmt.Errorf("cannot read password: %s is not a terminal", ttyPath())
		}
	}

	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr) // Hidden input leaves the cursor on the prompt line.

	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}

// ReadNewPassword prompts twice and fails when the entries differ.
func ReadNewPassword(prompt string) ([]byte, error) {
	first, err := ReadPassword(prompt)
	if err != nil {
		return nil, err
	}
	second, err := ReadPassword("Confirm password: ")
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(first, second) {
		return nil, fmt.Errorf("passwords do not match")
	}
	return first, nil
}

// IsTerminal returns true if stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// TerminalSize returns the stdout terminal's columns and rows, or 80x24 when
// stdout is not a terminal.
func TerminalSize() (int, int) {
	cols, rows, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || cols <= 0 || rows <= 0 {
		return 80, 24
	}
	return cols, rows
}

// WriteToTTY writes content directly to the terminal, bypassing stdout and
// stderr.
func WriteToTTY(content string) error {
	tty, err := os.OpenFile(ttyPath(), os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("cannot open %s for writing: %w", ttyPath(), err)
	}
	defer tty.Close()

	if _, err := tty.WriteString(content); err != nil {
		return fmt.Errorf("failed to write to TTY: %w", err)
	}
	return nil
}

// ClearScreen clears the terminal and scrollback so a closed preview leaves
// nothing behind.
func ClearScreen() error {
	return WriteToTTY("\033[2J\033[3J\033[H")
}
