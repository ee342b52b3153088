package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/awnumar/memguard"
)

// Record is what a Store keeps between processes. The flag, the timestamps
// and the key material are written and removed together.
type Record struct {
	Active    bool      `json:"active"`
	LoadedAt  time.Time `json:"loaded_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// KeyMaterial is only present when the active key was exportable.
	KeyMaterial []byte `json:"key_material,omitempty"`
}

// Expired reports whether the record's expiry has passed at now. A zero
// ExpiresAt never expires.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Store persists the session record. Restore returns (nil, nil) when
// nothing is stored.
type Store interface {
	Init(ctx context.Context) error
	Restore(ctx context.Context) (*Record, error)
	Persist(ctx context.Context, rec Record) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the record in process memory. It is used for
// single-process hosts and tests.
type MemoryStore struct {
	mu  sync.Mutex
	rec *Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(context.Context) error { return nil }

func (s *MemoryStore) Restore(context.Context) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return nil, nil
	}
	return cloneRecord(s.rec), nil
}

func (s *MemoryStore) Persist(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wipe()
	s.rec = cloneRecord(&rec)
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wipe()
	s.rec = nil
	return nil
}

func (s *MemoryStore) wipe() {
	if s.rec != nil {
		memguard.WipeBytes(s.rec.KeyMaterial)
	}
}

func cloneRecord(r *Record) *Record {
	out := *r
	if r.KeyMaterial != nil {
		out.KeyMaterial = append([]byte(nil), r.KeyMaterial...)
	}
	return &out
}

// sessionFileName is the single file FileStore reads and writes.
const sessionFileName = "session.json"

// FileStore keeps the record in a 0600 file under a runtime directory so
// that separate CLI invocations share one session.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) path() string {
	return filepath.Join(s.Dir, sessionFileName)
}

func (s *FileStore) Init(context.Context) error {
	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	return nil
}

func (s *FileStore) Restore(context.Context) (*Record, error) {
	data, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	defer memguard.WipeBytes(data)

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	return &rec, nil
}

// Persist writes the record to a temporary file and renames it into place,
// so readers see either the old record or the new one.
func (s *FileStore) Persist(ctx context.Context, rec Record) error {
	if err := s.Init(ctx); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	defer memguard.WipeBytes(data)

	tmp, err := os.CreateTemp(s.Dir, sessionFileName+".*")
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to set session file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmpName, s.path()); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(context.Context) error {
	if err := os.Remove(s.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
