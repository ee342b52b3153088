package utils

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
)

// ReadPasswordFromStdin reads one password per line from r, which is
// os.Stdin when nil. Trailing CR/LF is stripped. Each call consumes exactly
// one line so rotation can read the old and the new password in turn.
func ReadPasswordFromStdin(r *bufio.Reader) ([]byte, error) {
	if r == nil {
		stat, err := os.Stdin.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat stdin: %w", err)
		}
		// ModeCharDevice means stdin is a terminal, not a pipe.
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			return nil, fmt.Errorf("no data provided on stdin (hint: pipe your password to this command)")
		}
		r = bufio.NewReader(os.Stdin)
	}

	line, err := r.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read from stdin: %w", err)
	}

	password := bytes.TrimRight(line, "\r\n")
	if len(password) == 0 {
		return nil, fmt.Errorf("stdin is empty")
	}
	return password, nil
}
