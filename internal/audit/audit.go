package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	logger "github.com/PolarWolf314/docvault/internal/logging"

	"github.com/coder/quartz"
)

// TimestampFormat is RFC3339 in UTC with microseconds.
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

// Operation names recorded in the trail.
const (
	OpProvision = "provision"
	OpUnlock    = "unlock"
	OpLock      = "lock"
	OpVerify    = "verify"
	OpUpload    = "upload"
	OpDownload  = "download"
	OpPreview   = "preview"
	OpRotate    = "rotate"
)

// Entry represents a single audit log entry. It never carries key material,
// passwords or document content.
type Entry struct {
	Timestamp string `json:"ts"`
	Identity  string `json:"identity"`
	Operation string `json:"op"`

	// Optional fields depending on operation.
	DocumentID     string   `json:"document_id,omitempty"`     // For download/preview.
	Files          []string `json:"files,omitempty"`           // For upload.
	DocumentsCount int      `json:"documents_count,omitempty"` // For upload/rotate.
	SkippedCount   int      `json:"skipped_count,omitempty"`   // For rotate (legacy documents).
	Iterations     int      `json:"iterations,omitempty"`      // For provision/rotate.
	Outcome        string   `json:"outcome,omitempty"`         // "ok" or "failed".
	Reason         string   `json:"reason,omitempty"`          // Error category on failure.
}

// Trail appends entries to one vault's audit log.
type Trail struct {
	Path     string
	Identity string
	Clock    quartz.Clock

	// Logger receives a warning for every entry that could not be written.
	Logger logger.Logger
}

// New returns a Trail writing to path. An empty path disables logging.
func New(path, identity string) *Trail {
	return &Trail{Path: path, Identity: identity, Clock: quartz.NewReal()}
}

// Entry returns an entry for op with the identity filled in.
func (t *Trail) Entry(op string) Entry {
	return Entry{Identity: t.Identity, Operation: op}
}

// Log appends an entry to the audit log. A write failure is logged as a
// warning and the entry is dropped; operations never fail because of the
// trail.
func (t *Trail) Log(entry Entry) {
	if t == nil || t.Path == "" {
		return
	}

	if entry.Timestamp == "" {
		now := time.Now()
		if t.Clock != nil {
			now = t.Clock.Now()
		}
		entry.Timestamp = now.UTC().Format(TimestampFormat)
	}
	if entry.Identity == "" {
		entry.Identity = t.Identity
	}

	if err := os.MkdirAll(filepath.Dir(t.Path), 0700); err != nil {
		t.Logger.Warnf("Audit entry for %s dropped: %v", entry.Operation, err)
		return
	}

	f, err := os.OpenFile(t.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		t.Logger.Warnf("Audit entry for %s dropped: %v", entry.Operation, err)
		return
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		t.Logger.Warnf("Audit entry for %s dropped: %v", entry.Operation, err)
		return
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		t.Logger.Warnf("Audit entry for %s dropped: %v", entry.Operation, err)
	}
}

// ReadEntries reads all entries from the audit log.
// Returns an empty slice if the log doesn't exist.
func (t *Trail) ReadEntries() ([]Entry, error) {
	if t == nil || t.Path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(t.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return ParseEntries(data)
}

// ParseEntries parses JSON Lines data into audit entries.
// Malformed lines are silently skipped.
func ParseEntries(data []byte) ([]Entry, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var entries []Entry
	start := 0

	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1

			if len(line) == 0 {
				continue
			}

			var entry Entry
			if err := json.Unmarshal(line, &entry); err != nil {
				// Partial writes leave malformed lines behind.
				continue
			}
			entries = append(entries, entry)
		}
	}

	return entries, nil
}
