package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/PolarWolf314/docvault/internal/configs"
	kerrors "github.com/PolarWolf314/docvault/internal/errors"
	"github.com/PolarWolf314/docvault/internal/kdf"
)

// Account is the provisioning payload: everything needed to derive and
// check the master key, and nothing that reveals it.
type Account struct {
	Identity                string    `toml:"identity"`
	EncryptionSalt          string    `toml:"encryption_salt"`
	KeyVerificationPayload  string    `toml:"key_verification_payload"`
	EncryptionMethod        string    `toml:"encryption_method"`
	KeyDerivationIterations int       `toml:"key_derivation_iterations"`
	ProvisionedAt           time.Time `toml:"provisioned_at"`
	RotatedAt               time.Time `toml:"rotated_at"`
}

// NewAccount builds the account for freshly generated params and a key
// derived from them.
func NewAccount(identity string, params kdf.Params, key *kdf.MasterKey, now time.Time) (*Account, error) {
	payload, err := kdf.CreateValidationPayload(identity, key)
	if err != nil {
		return nil, fmt.Errorf("creating validation payload: %w", err)
	}
	return &Account{
		Identity:                identity,
		EncryptionSalt:          params.EncodedSalt(),
		KeyVerificationPayload:  base64.StdEncoding.EncodeToString(payload),
		EncryptionMethod:        kdf.Method,
		KeyDerivationIterations: params.Iterations,
		ProvisionedAt:           now,
	}, nil
}

// ValidationPayload decodes the stored payload. A corrupt value decodes to
// nil, which never verifies.
func (a *Account) ValidationPayload() kdf.ValidationPayload {
	payload, err := base64.StdEncoding.DecodeString(a.KeyVerificationPayload)
	if err != nil {
		return nil
	}
	return payload
}

// DeriveKey derives the master key from password with the account's salt
// and iterations.
func (a *Account) DeriveKey(password []byte, exportable bool) (*kdf.MasterKey, kdf.SaltEncoding, error) {
	if a.EncryptionMethod != "" && a.EncryptionMethod != kdf.Method {
		return nil, 0, fmt.Errorf("%w: unsupported encryption method %q", kerrors.ErrKeyDerivation, a.EncryptionMethod)
	}
	return kdf.DeriveFromEncodedSalt(password, a.EncryptionSalt, a.KeyDerivationIterations, exportable)
}

// Verify checks key against the account's validation payload.
func (a *Account) Verify(key *kdf.MasterKey) bool {
	return kdf.VerifyKeyValidation(a.Identity, key, a.ValidationPayload())
}

// AccountStore keeps the account in .docvault/account.toml.
type AccountStore struct {
	Path string
}

func NewAccountStore(path string) *AccountStore {
	return &AccountStore{Path: path}
}

// Exists reports whether the vault has been provisioned.
func (s *AccountStore) Exists() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}

// Load returns the account or ErrNotProvisioned.
func (s *AccountStore) Load(ctx context.Context) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.Path); errors.Is(err, os.ErrNotExist) {
		return nil, kerrors.ErrNotProvisioned
	}

	var account Account
	if err := configs.LoadTOML(s.Path, &account); err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &account, nil
}

// Save replaces the account atomically.
func (s *AccountStore) Save(ctx context.Context, account *Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := configs.SaveTOML(s.Path, account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}
