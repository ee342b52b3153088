package workflows

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/PolarWolf314/docvault/internal/audit"
	"github.com/PolarWolf314/docvault/internal/configs"
	kerrors "github.com/PolarWolf314/docvault/internal/errors"
	logger "github.com/PolarWolf314/docvault/internal/logging"
	"github.com/PolarWolf314/docvault/internal/rotation"
	"github.com/PolarWolf314/docvault/internal/session"
	"github.com/PolarWolf314/docvault/internal/store"
	"github.com/PolarWolf314/docvault/internal/utils"

	"github.com/coder/quartz"
)

// OpenOptions configures how a vault is opened.
type OpenOptions struct {
	// Dir is where the search for .docvault starts. Defaults to the working
	// directory.
	Dir string

	Logger logger.Logger

	// Clock defaults to the real clock.
	Clock quartz.Clock

	// SessionStore overrides the per-user session file.
	SessionStore session.Store
}

// Vault is an opened vault: its settings, configuration and the
// collaborators every workflow needs. There is no package-level state;
// callers pass the Vault around.
type Vault struct {
	Settings  *configs.VaultSettings
	Config    *configs.VaultConfig
	Documents *store.DocumentStore
	Accounts  *store.AccountStore
	Journal   *store.JournalStore
	Sessions  *session.Manager
	Trail     *audit.Trail
	Logger    logger.Logger
	Clock     quartz.Clock
}

// Open finds the vault above opts.Dir, loads its configuration and brings
// the session in line with what is persisted.
//
// Returns ErrVaultNotInitialized if no .docvault directory is found.
func Open(ctx context.Context, opts OpenOptions) (*Vault, error) {
	dir, err := resolveDir(opts.Dir)
	if err != nil {
		return nil, err
	}

	settings, err := configs.InitVaultSettings(dir)
	if err != nil {
		return nil, err
	}
	return openSettings(ctx, settings, opts)
}

func openSettings(ctx context.Context, settings *configs.VaultSettings, opts OpenOptions) (*Vault, error) {
	config, err := configs.LoadVaultConfig(settings)
	if err != nil {
		return nil, err
	}
	opts.Logger.Debugf("Opened vault %s (%s)", config.Vault.Name, config.Vault.UUID)

	clock := opts.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}

	sessionStore := opts.SessionStore
	if sessionStore == nil {
		sessionStore = session.NewFileStore(settings.SessionDirFor(config.Vault.UUID))
	}
	if err := sessionStore.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing session store: %w", err)
	}

	documents := store.NewDocumentStore(settings.DocumentsPath)
	documents.Clock = clock
	accounts := store.NewAccountStore(settings.AccountPath)

	v := &Vault{
		Settings:  settings,
		Config:    config,
		Documents: documents,
		Accounts:  accounts,
		Journal:   store.NewJournalStore(settings.JournalPath),
		Sessions: session.New(session.Options{
			Store:              sessionStore,
			Clock:              clock,
			Timeout:            config.Session.Timeout.Duration,
			ReconcileInterval:  config.Session.ReconcileInterval.Duration,
			MaxRestoreAttempts: config.Session.MaxRestoreAttempts,
			Logger:             opts.Logger,
		}),
		Logger: opts.Logger,
		Clock:  clock,
	}

	v.Trail = audit.New(settings.AuditPath, v.identity(ctx))
	v.Trail.Clock = clock
	v.Trail.Logger = opts.Logger

	v.recoverRotation(ctx)

	if err := v.Sessions.Reconcile(ctx); err != nil {
		v.Logger.Warnf("Could not reconcile session state: %v", err)
	}
	return v, nil
}

// coordinator builds the rotation coordinator for this vault.
func (v *Vault) coordinator() *rotation.Coordinator {
	return &rotation.Coordinator{
		Documents:   v.Documents,
		Accounts:    v.Accounts,
		Journal:     v.Journal,
		Sessions:    v.Sessions,
		Concurrency: v.Config.Rotation.Concurrency,
		Logger:      v.Logger,
		Clock:       v.Clock,
	}
}

// recoverRotation finishes or undoes a rotation interrupted by a crash
// before anything else reads the document keys. A rotation rolled forward
// invalidates a persisted session key, so the session is dropped.
func (v *Vault) recoverRotation(ctx context.Context) {
	outcome, err := v.coordinator().Recover(ctx)
	if err != nil {
		v.Logger.WarnfAlways("Could not recover an interrupted key rotation: %v", err)
		return
	}
	switch outcome {
	case rotation.RecoveryRolledForward:
		if err := v.Sessions.ClearMasterKey(ctx); err != nil {
			v.Logger.Warnf("Could not clear the session after rotation recovery: %v", err)
		}
		v.Logger.WarnfAlways("An interrupted key rotation was completed. Unlock with the new password.")
	case rotation.RecoveryRolledBack:
		v.Logger.WarnfAlways("An interrupted key rotation was undone. The old password is still in effect.")
	}
}

// identity is the provisioned identity, or user@host before provisioning.
func (v *Vault) identity(ctx context.Context) string {
	account, err := v.Accounts.Load(ctx)
	if err != nil {
		return utils.DefaultIdentity()
	}
	return account.Identity
}

// loadAccount maps a missing account to ErrNotProvisioned.
func (v *Vault) loadAccount(ctx context.Context) (*store.Account, error) {
	account, err := v.Accounts.Load(ctx)
	if errors.Is(err, kerrors.ErrNotProvisioned) {
		return nil, kerrors.ErrNotProvisioned
	}
	return account, err
}

// record writes an audit entry, marking it failed when err is non-nil.
func (v *Vault) record(entry audit.Entry, err error) {
	if err != nil {
		entry.Outcome = "failed"
		entry.Reason = ErrorCategory(err)
	} else {
		entry.Outcome = "ok"
	}
	v.Trail.Log(entry)
}

func resolveDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return wd, nil
}
