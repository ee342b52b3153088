package ui

import (
	"strings"
	"testing"
)

func TestTableAlignsColumns(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	table := NewTable("id", "name", "scheme")
	table.AddRow("3f2a", "passport.pdf", "dek")
	table.AddRow("9c1e77", "will.txt", "legacy")

	lines := strings.Split(strings.TrimRight(table.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d: %q", len(lines), lines)
	}
	if lines[0] != "ID      NAME          SCHEME" {
		t.Errorf("Unexpected header %q", lines[0])
	}
	if lines[1] != "3f2a    passport.pdf  dek" {
		t.Errorf("Unexpected row %q", lines[1])
	}
	if table.Len() != 2 {
		t.Errorf("Expected 2 rows, got %d", table.Len())
	}
}

func TestTableIgnoresColorCodesInWidths(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	table := NewTable()
	table.AddRow("\x1b[32mok\x1b[0m", "x")
	table.AddRow("fail", "y")

	lines := strings.Split(strings.TrimRight(table.String(), "\n"), "\n")
	if visibleLen(lines[0]) != visibleLen(lines[1]) {
		t.Errorf("Expected equal visible widths, got %q and %q", lines[0], lines[1])
	}
}
