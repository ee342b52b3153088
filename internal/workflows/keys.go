package workflows

import (
	"context"
	"errors"
	"time"

	"github.com/PolarWolf314/docvault/internal/audit"
	kerrors "github.com/PolarWolf314/docvault/internal/errors"
	"github.com/PolarWolf314/docvault/internal/kdf"
	"github.com/PolarWolf314/docvault/internal/session"
)

// UnlockOptions configures the unlock workflow.
type UnlockOptions struct {
	Password []byte
}

// UnlockResult contains the outcome of an unlock operation.
type UnlockResult struct {
	Identity  string
	ExpiresAt time.Time

	// LiteralSalt is set when the account's salt was read as raw text
	// rather than base64.
	LiteralSalt bool
}

// Unlock derives the master key from the password, checks it against the
// validation payload and loads it into the session.
//
// Returns ErrNotProvisioned if the vault has no account.
// Returns ErrWrongPassword if the password does not verify.
func (v *Vault) Unlock(ctx context.Context, opts UnlockOptions) (*UnlockResult, error) {
	account, err := v.loadAccount(ctx)
	if err != nil {
		return nil, err
	}
	entry := v.Trail.Entry(audit.OpUnlock)

	// Exportable so the session can be restored by the next command.
	key, encoding, err := account.DeriveKey(opts.Password, true)
	if err != nil {
		v.record(entry, err)
		return nil, err
	}
	if !account.Verify(key) {
		key.Destroy()
		v.record(entry, kerrors.ErrWrongPassword)
		return nil, kerrors.ErrWrongPassword
	}
	if encoding == kdf.SaltLiteral {
		v.Logger.Warnf("Account salt is not base64; it was used as literal bytes")
	}

	if err := v.Sessions.SetMasterKey(ctx, key); err != nil {
		v.Logger.Warnf("Session unlocked for this process only: %v", err)
	}
	v.record(entry, nil)

	return &UnlockResult{
		Identity:    account.Identity,
		ExpiresAt:   v.Sessions.ExpiresAt(),
		LiteralSalt: encoding == kdf.SaltLiteral,
	}, nil
}

// VerifyOptions configures the verify workflow.
type VerifyOptions struct {
	Password []byte
}

// VerifyResult contains the outcome of a verify operation.
type VerifyResult struct {
	Identity    string
	LiteralSalt bool
}

// Verify checks a password against the validation payload without touching
// the session.
//
// Returns ErrWrongPassword if the password does not verify.
func (v *Vault) Verify(ctx context.Context, opts VerifyOptions) (*VerifyResult, error) {
	account, err := v.loadAccount(ctx)
	if err != nil {
		return nil, err
	}
	entry := v.Trail.Entry(audit.OpVerify)

	key, encoding, err := account.DeriveKey(opts.Password, false)
	if err != nil {
		v.record(entry, err)
		return nil, err
	}
	defer key.Destroy()

	if !account.Verify(key) {
		v.record(entry, kerrors.ErrWrongPassword)
		return nil, kerrors.ErrWrongPassword
	}
	v.record(entry, nil)
	return &VerifyResult{Identity: account.Identity, LiteralSalt: encoding == kdf.SaltLiteral}, nil
}

// LockResult contains the outcome of a lock operation.
type LockResult struct {
	// WasUnlocked is false when there was no key to clear.
	WasUnlocked bool
}

// Lock destroys the session key and removes everything persisted for it.
func (v *Vault) Lock(ctx context.Context) (*LockResult, error) {
	wasUnlocked := v.Sessions.State() == session.StateLoaded
	if err := v.Sessions.ClearMasterKey(ctx); err != nil {
		return nil, err
	}
	v.record(v.Trail.Entry(audit.OpLock), nil)
	return &LockResult{WasUnlocked: wasUnlocked}, nil
}

// StatusResult describes a vault and its session.
type StatusResult struct {
	VaultName string
	VaultPath string
	VaultUUID string

	Provisioned bool
	Identity    string
	Iterations  int
	RotatedAt   time.Time

	Session   session.State
	ExpiresAt time.Time

	Documents       int
	LegacyDocuments int
}

// Status reports provisioning, session and document counts. It never
// prompts and never decrypts.
func (v *Vault) Status(ctx context.Context) (*StatusResult, error) {
	result := &StatusResult{
		VaultName: v.Config.Vault.Name,
		VaultPath: v.Settings.VaultPath,
		VaultUUID: v.Config.Vault.UUID,
		Session:   v.Sessions.State(),
		ExpiresAt: v.Sessions.ExpiresAt(),
	}

	account, err := v.loadAccount(ctx)
	switch {
	case err == nil:
		result.Provisioned = true
		result.Identity = account.Identity
		result.Iterations = account.KeyDerivationIterations
		result.RotatedAt = account.RotatedAt
	case !errors.Is(err, kerrors.ErrNotProvisioned):
		return nil, err
	}

	records, err := v.Documents.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		result.Documents++
		if rec.IsLegacy() {
			result.LegacyDocuments++
		}
	}
	return result, nil
}
