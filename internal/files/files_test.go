package files

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	kerrors "github.com/PolarWolf314/docvault/internal/errors"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
}

func TestResolve_EmptyPatterns(t *testing.T) {
	if _, err := Resolve(nil, t.TempDir()); !errors.Is(err, kerrors.ErrNoFilesFound) {
		t.Errorf("Expected ErrNoFilesFound, got: %v", err)
	}
}

func TestResolve_SingleFile(t *testing.T) {
	tmpDir := t.TempDir()
	scan := filepath.Join(tmpDir, "scan.pdf")
	writeTestFile(t, scan, "%PDF-1.4")

	files, err := Resolve([]string{"scan.pdf"}, tmpDir)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(files) != 1 || files[0] != scan {
		t.Errorf("Expected [%s], got: %v", scan, files)
	}
}

func TestResolve_MissingFile(t *testing.T) {
	_, err := Resolve([]string{"missing.pdf"}, t.TempDir())
	if !errors.Is(err, kerrors.ErrFileNotFound) {
		t.Errorf("Expected ErrFileNotFound, got: %v", err)
	}
}

func TestResolve_Directory(t *testing.T) {
	tmpDir := t.TempDir()
	writeTestFile(t, filepath.Join(tmpDir, "docs", "a.txt"), "a")
	writeTestFile(t, filepath.Join(tmpDir, "docs", "nested", "b.txt"), "b")
	writeTestFile(t, filepath.Join(tmpDir, "docs", ".docvault", "account.toml"), "x")

	files, err := Resolve([]string{"docs"}, tmpDir)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("Expected 2 files, got: %v", files)
	}
	for _, f := range files {
		if filepath.Base(filepath.Dir(f)) == ".docvault" {
			t.Errorf("Expected .docvault to be skipped, got %s", f)
		}
	}
}

func TestResolve_DoublestarGlob(t *testing.T) {
	tmpDir := t.TempDir()
	writeTestFile(t, filepath.Join(tmpDir, "2024", "jan", "invoice.pdf"), "1")
	writeTestFile(t, filepath.Join(tmpDir, "2024", "feb", "invoice.pdf"), "2")
	writeTestFile(t, filepath.Join(tmpDir, "2024", "feb", "notes.txt"), "3")
	writeTestFile(t, filepath.Join(tmpDir, ".docvault", "stray.pdf"), "4")

	files, err := Resolve([]string{"**/*.pdf"}, tmpDir)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("Expected 2 pdf files, got: %v", files)
	}
}

func TestResolve_GlobWithNoMatches(t *testing.T) {
	tmpDir := t.TempDir()
	writeTestFile(t, filepath.Join(tmpDir, "notes.txt"), "x")

	if _, err := Resolve([]string{"*.pdf"}, tmpDir); !errors.Is(err, kerrors.ErrNoFilesFound) {
		t.Errorf("Expected ErrNoFilesFound, got: %v", err)
	}
}

func TestResolve_Deduplicates(t *testing.T) {
	tmpDir := t.TempDir()
	scan := filepath.Join(tmpDir, "scan.png")
	writeTestFile(t, scan, "x")

	files, err := Resolve([]string{"scan.png", "*.png", scan}, tmpDir)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("Expected 1 file after dedup, got: %v", files)
	}
}

func TestResolve_RejectsVaultDirectoryFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeTestFile(t, filepath.Join(tmpDir, ".docvault", "account.toml"), "x")

	if _, err := Resolve([]string{".docvault/account.toml"}, tmpDir); err == nil {
		t.Errorf("Expected an error selecting a file inside .docvault")
	}
}

func TestDetectMimeType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if got := DetectMimeType(png); got != "image/png" {
		t.Errorf("Expected image/png, got %s", got)
	}
	if got := DetectMimeType([]byte("%PDF-1.7\n")); got != "application/pdf" {
		t.Errorf("Expected application/pdf, got %s", got)
	}
}

func TestIsImage(t *testing.T) {
	tests := map[string]bool{
		"image/png":                true,
		"image/jpeg":               true,
		"image/webp":               true,
		"application/pdf":          false,
		"application/octet-stream": false,
		"not/a-type":               false,
	}
	for mimeType, want := range tests {
		if got := IsImage(mimeType); got != want {
			t.Errorf("IsImage(%q) = %v, want %v", mimeType, got, want)
		}
	}
}
