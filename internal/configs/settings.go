package configs

import (
	"fmt"
	"os"
	"path/filepath"

	kerrors "github.com/PolarWolf314/docvault/internal/errors"
	"github.com/PolarWolf314/docvault/internal/utils"
)

// VaultDirName is the directory that marks a vault root.
const VaultDirName = ".docvault"

// VaultSettings holds the resolved paths of one vault.
type VaultSettings struct {
	VaultName     string
	VaultPath     string
	ConfigPath    string
	AccountPath   string
	DocumentsPath string
	AuditPath     string

	// JournalPath exists only while a key rotation is committing.
	JournalPath string

	// SessionDir is per user and outside the vault, so session material is
	// never committed or synced with the documents.
	SessionDir string
}

// InitVaultSettings walks up from startDir to the nearest .docvault
// directory and resolves the vault's paths. It returns
// ErrVaultNotInitialized when no vault is found.
func InitVaultSettings(startDir string) (*VaultSettings, error) {
	root, err := utils.FindVaultRoot(startDir, VaultDirName)
	if err != nil {
		return nil, fmt.Errorf("error getting vault root: %w", err)
	}
	if root == "" {
		return nil, kerrors.ErrVaultNotInitialized
	}
	return NewVaultSettings(root)
}

// NewVaultSettings resolves the paths of a vault rooted at root, whether or
// not it exists yet.
func NewVaultSettings(root string) (*VaultSettings, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("error resolving vault path: %w", err)
	}

	sessionDir, err := SessionDir()
	if err != nil {
		return nil, err
	}

	vaultDir := filepath.Join(abs, VaultDirName)
	return &VaultSettings{
		VaultName:     filepath.Base(abs),
		VaultPath:     abs,
		ConfigPath:    filepath.Join(vaultDir, "config.toml"),
		AccountPath:   filepath.Join(vaultDir, "account.toml"),
		DocumentsPath: filepath.Join(vaultDir, "documents"),
		AuditPath:     filepath.Join(vaultDir, "audit.jsonl"),
		JournalPath:   filepath.Join(vaultDir, "rotation.toml"),
		SessionDir:    sessionDir,
	}, nil
}

// SessionDir returns the per-user runtime directory for session state:
// $DOCVAULT_SESSION_DIR, else $XDG_RUNTIME_DIR/docvault, else a directory
// under the system temp dir named after the user.
func SessionDir() (string, error) {
	if dir := os.Getenv("DOCVAULT_SESSION_DIR"); dir != "" {
		return dir, nil
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "docvault"), nil
	}

	username, err := utils.GetUsername()
	if err != nil {
		return "", fmt.Errorf("error getting username: %w", err)
	}
	return filepath.Join(os.TempDir(), "docvault-"+utils.SanitizeName(username)), nil
}

// SessionDirFor returns the session directory of a specific vault, so two
// vaults on one machine keep separate sessions.
func (s *VaultSettings) SessionDirFor(vaultUUID string) string {
	return filepath.Join(s.SessionDir, vaultUUID)
}
