package utils

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"LowercaseSimple", "MacBook", "macbook"},
		{"SpacesToHyphens", "Tax Return", "tax-return"},
		{"RemoveSpecialChars", "My@Doc#123!", "mydoc123"},
		{"KeepDots", "passport.pdf", "passport.pdf"},
		{"RemoveConsecutiveHyphens", "my--doc", "my-doc"},
		{"TrimHyphensAndDots", "-.hidden-", "hidden"},
		{"EmptyToDefault", "", "unnamed"},
		{"OnlySpecialChars", "@#$%", "unnamed"},
		{"PreserveUnderscores", "my_doc", "my_doc"},
		{"ComplexName", "  My Scan (Page 1)!  ", "my-scan-page-1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := SanitizeName(tc.input)
			if result != tc.expected {
				t.Errorf("SanitizeName(%q) = %q, expected %q", tc.input, result, tc.expected)
			}
		})
	}
}

func TestDefaultIdentity(t *testing.T) {
	identity := DefaultIdentity()
	if identity == "" {
		t.Fatal("DefaultIdentity returned an empty string")
	}
	if strings.ContainsAny(identity, " \t\n") {
		t.Errorf("DefaultIdentity should not contain whitespace, got %q", identity)
	}
}

func TestIsValidIdentity(t *testing.T) {
	valid := []string{"ada@example.com", "ada@laptop", "a.b+c@host-1"}
	invalid := []string{"", "ada", "@host", "ada@", "ada @host"}

	for _, id := range valid {
		if !IsValidIdentity(id) {
			t.Errorf("Expected %q to be valid", id)
		}
	}
	for _, id := range invalid {
		if IsValidIdentity(id) {
			t.Errorf("Expected %q to be invalid", id)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := map[int64]string{
		0:          "0 B",
		1023:       "1023 B",
		1536:       "1.5 KiB",
		5 << 20:    "5.0 MiB",
		3 << 30:    "3.0 GiB",
		5000 << 30: "5000.0 GiB",
	}
	for in, want := range tests {
		if got := FormatSize(in); got != want {
			t.Errorf("FormatSize(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFindVaultRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".docvault"), 0700); err != nil {
		t.Fatalf("Failed to create marker: %v", err)
	}
	nested := filepath.Join(root, "scans", "2024")
	if err := os.MkdirAll(nested, 0700); err != nil {
		t.Fatalf("Failed to create nested dir: %v", err)
	}

	got, err := FindVaultRoot(nested, ".docvault")
	if err != nil {
		t.Fatalf("FindVaultRoot failed: %v", err)
	}
	if got != root {
		t.Errorf("Expected %q, got %q", root, got)
	}

	got, err = FindVaultRoot(t.TempDir(), ".docvault")
	if err != nil {
		t.Fatalf("FindVaultRoot failed: %v", err)
	}
	if got != "" {
		t.Errorf("Expected no vault, got %q", got)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "meta.json")

	if err := WriteFileAtomic(path, []byte("one"), 0600); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("two"), 0600); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "two" {
		t.Errorf("Expected %q, got %q", "two", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected permissions 0600, got %o", info.Mode().Perm())
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("Expected no leftover temporary files, found %d entries", len(entries))
	}
}

func TestReadPasswordFromStdin_Lines(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("old-password\r\nnew-password\n"))

	first, err := ReadPasswordFromStdin(r)
	if err != nil {
		t.Fatalf("ReadPasswordFromStdin failed: %v", err)
	}
	second, err := ReadPasswordFromStdin(r)
	if err != nil {
		t.Fatalf("ReadPasswordFromStdin failed: %v", err)
	}
	if string(first) != "old-password" || string(second) != "new-password" {
		t.Errorf("Expected two passwords, got %q and %q", first, second)
	}

	if _, err := ReadPasswordFromStdin(r); err == nil {
		t.Errorf("Expected an error once input is exhausted")
	}
}
