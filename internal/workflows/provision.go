package workflows

import (
	"context"
	"fmt"
	"os"

	"github.com/PolarWolf314/docvault/internal/audit"
	"github.com/PolarWolf314/docvault/internal/configs"
	kerrors "github.com/PolarWolf314/docvault/internal/errors"
	"github.com/PolarWolf314/docvault/internal/kdf"
	"github.com/PolarWolf314/docvault/internal/store"
	"github.com/PolarWolf314/docvault/internal/utils"
)

// ProvisionOptions configures the provision workflow.
type ProvisionOptions struct {
	OpenOptions

	// Name of the vault. Defaults to the directory name.
	Name string

	// Identity bound into the validation payload. Defaults to user@host.
	Identity string

	Password []byte

	// Iterations must be one of kdf.AllowedIterations. Zero uses the vault
	// configuration's value.
	Iterations int
}

// ProvisionResult contains the outcome of a provision operation.
type ProvisionResult struct {
	Vault      *Vault
	VaultUUID  string
	Identity   string
	Iterations int
}

// Provision creates a vault in opts.Dir if needed, derives the master key
// from the password with fresh salt, stores the account's provisioning
// payload and unlocks the session with the new key.
//
// Returns ErrAlreadyProvisioned if the vault already has an account.
// Returns ErrKeyDerivation if the iteration count is not allowed.
func Provision(ctx context.Context, opts ProvisionOptions) (*ProvisionResult, error) {
	dir, err := resolveDir(opts.Dir)
	if err != nil {
		return nil, err
	}
	settings, err := configs.NewVaultSettings(dir)
	if err != nil {
		return nil, err
	}

	accounts := store.NewAccountStore(settings.AccountPath)
	if accounts.Exists() {
		return nil, kerrors.ErrAlreadyProvisioned
	}

	if _, err := os.Stat(settings.ConfigPath); os.IsNotExist(err) {
		name := opts.Name
		if name == "" {
			name = settings.VaultName
		}
		config := configs.DefaultVaultConfig(name)
		if err := configs.SaveVaultConfig(settings, config); err != nil {
			return nil, err
		}
		opts.Logger.Infof("Created vault configuration at %s", settings.ConfigPath)
	}
	if err := os.MkdirAll(settings.DocumentsPath, 0700); err != nil {
		return nil, fmt.Errorf("creating documents directory: %w", err)
	}

	v, err := openSettings(ctx, settings, opts.OpenOptions)
	if err != nil {
		return nil, err
	}

	identity := opts.Identity
	if identity == "" {
		identity = utils.DefaultIdentity()
	}
	iterations := opts.Iterations
	if iterations == 0 {
		iterations = v.Config.KDF.Iterations
	}

	entry := v.Trail.Entry(audit.OpProvision)
	entry.Identity = identity
	entry.Iterations = iterations

	params, err := kdf.NewParams(iterations)
	if err != nil {
		return nil, err
	}
	v.Logger.Debugf("Deriving master key with %d iterations", iterations)
	key, err := params.Derive(opts.Password, true)
	if err != nil {
		return nil, err
	}

	account, err := store.NewAccount(identity, params, key, v.Clock.Now().UTC())
	if err != nil {
		key.Destroy()
		return nil, err
	}
	if err := v.Accounts.Save(ctx, account); err != nil {
		key.Destroy()
		v.record(entry, err)
		return nil, err
	}
	v.Trail.Identity = identity

	if err := v.Sessions.SetMasterKey(ctx, key); err != nil {
		v.Logger.Warnf("Vault provisioned but the session could not be saved: %v", err)
	}
	v.record(entry, nil)

	return &ProvisionResult{
		Vault:      v,
		VaultUUID:  v.Config.Vault.UUID,
		Identity:   identity,
		Iterations: iterations,
	}, nil
}
