package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/PolarWolf314/docvault/internal/configs"
)

// RotationJournal is written before a key rotation touches any document and
// removed after the new account is saved. It holds everything needed to
// finish or undo an interrupted rotation without either password: the
// account being committed and both versions of every wrapped DEK, encoded as
// in document records.
type RotationJournal struct {
	StartedAt time.Time         `toml:"started_at"`
	Account   Account           `toml:"account"`
	Originals map[string]string `toml:"originals"`
	Rewrapped map[string]string `toml:"rewrapped"`
}

// Commits reports whether account is the one the journal was committing.
func (j *RotationJournal) Commits(account *Account) bool {
	return account != nil &&
		account.EncryptionSalt == j.Account.EncryptionSalt &&
		account.KeyVerificationPayload == j.Account.KeyVerificationPayload
}

// JournalStore keeps the rotation journal in .docvault/rotation.toml.
type JournalStore struct {
	Path string
}

func NewJournalStore(path string) *JournalStore {
	return &JournalStore{Path: path}
}

// Load returns the pending journal, or nil when no rotation is in flight.
func (s *JournalStore) Load(ctx context.Context) (*RotationJournal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.Path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	var journal RotationJournal
	if err := configs.LoadTOML(s.Path, &journal); err != nil {
		return nil, fmt.Errorf("failed to load rotation journal: %w", err)
	}
	return &journal, nil
}

// Save writes the journal atomically.
func (s *JournalStore) Save(ctx context.Context, journal *RotationJournal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := configs.SaveTOML(s.Path, journal); err != nil {
		return fmt.Errorf("failed to save rotation journal: %w", err)
	}
	return nil
}

// Clear removes the journal. A missing journal is not an error.
func (s *JournalStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove rotation journal: %w", err)
	}
	return nil
}
