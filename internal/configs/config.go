package configs

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	kerrors "github.com/PolarWolf314/docvault/internal/errors"
	"github.com/PolarWolf314/docvault/internal/kdf"

	"github.com/google/uuid"
)

// VaultConfig is the content of .docvault/config.toml.
type VaultConfig struct {
	Vault    Vault          `toml:"vault"`
	KDF      KDFConfig      `toml:"kdf"`
	Session  SessionConfig  `toml:"session"`
	Preview  PreviewConfig  `toml:"preview"`
	Rotation RotationConfig `toml:"rotation"`
}

type Vault struct {
	UUID      string    `toml:"vault_uuid"`
	Name      string    `toml:"name"`
	CreatedAt time.Time `toml:"created_at"`
}

type KDFConfig struct {
	// Iterations is used for new provisioning and rotation.
	Iterations int `toml:"iterations"`
}

type SessionConfig struct {
	Timeout            Duration `toml:"timeout"`
	ReconcileInterval  Duration `toml:"reconcile_interval"`
	MaxRestoreAttempts int      `toml:"max_restore_attempts"`
}

type PreviewConfig struct {
	MaxWidth         int      `toml:"max_width"`
	MaxHeight        int      `toml:"max_height"`
	NoiseAmplitude   int      `toml:"noise_amplitude"`
	WatermarkOpacity float64  `toml:"watermark_opacity"`
	Duration         Duration `toml:"duration"`
}

type RotationConfig struct {
	Concurrency int `toml:"concurrency"`
}

// Duration is a time.Duration written as "30m" or "1h30m" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults for values missing from config.toml.
const (
	DefaultSessionTimeout     = 30 * time.Minute
	DefaultReconcileInterval  = time.Minute
	DefaultMaxRestoreAttempts = 3
	DefaultPreviewMaxWidth    = 1600
	DefaultPreviewMaxHeight   = 1600
	DefaultNoiseAmplitude     = 2
	DefaultWatermarkOpacity   = 0.12
	DefaultPreviewDuration    = 2 * time.Minute
	DefaultRotationWorkers    = 8
)

// DefaultVaultConfig returns a config for a new vault.
func DefaultVaultConfig(name string) *VaultConfig {
	config := &VaultConfig{
		Vault: Vault{
			UUID:      GenerateVaultUUID(),
			Name:      name,
			CreatedAt: time.Now().UTC(),
		},
	}
	config.ApplyDefaults()
	return config
}

// ApplyDefaults fills every unset value.
func (c *VaultConfig) ApplyDefaults() {
	if c.KDF.Iterations == 0 {
		c.KDF.Iterations = kdf.DefaultIterations
	}
	if c.Session.Timeout.Duration == 0 {
		c.Session.Timeout.Duration = DefaultSessionTimeout
	}
	if c.Session.ReconcileInterval.Duration == 0 {
		c.Session.ReconcileInterval.Duration = DefaultReconcileInterval
	}
	if c.Session.MaxRestoreAttempts == 0 {
		c.Session.MaxRestoreAttempts = DefaultMaxRestoreAttempts
	}
	if c.Preview.MaxWidth == 0 {
		c.Preview.MaxWidth = DefaultPreviewMaxWidth
	}
	if c.Preview.MaxHeight == 0 {
		c.Preview.MaxHeight = DefaultPreviewMaxHeight
	}
	if c.Preview.NoiseAmplitude == 0 {
		c.Preview.NoiseAmplitude = DefaultNoiseAmplitude
	}
	if c.Preview.WatermarkOpacity == 0 {
		c.Preview.WatermarkOpacity = DefaultWatermarkOpacity
	}
	if c.Preview.Duration.Duration == 0 {
		c.Preview.Duration.Duration = DefaultPreviewDuration
	}
	if c.Rotation.Concurrency == 0 {
		c.Rotation.Concurrency = DefaultRotationWorkers
	}
}

// Validate reports values no component can work with.
func (c *VaultConfig) Validate() error {
	if !slices.Contains(kdf.AllowedIterations, c.KDF.Iterations) {
		return fmt.Errorf("%w: kdf.iterations must be one of %v, got %d", kerrors.ErrInvalidVaultConfig, kdf.AllowedIterations, c.KDF.Iterations)
	}
	if c.Session.MaxRestoreAttempts < 0 {
		return fmt.Errorf("%w: session.max_restore_attempts cannot be negative", kerrors.ErrInvalidVaultConfig)
	}
	if c.Preview.MaxWidth < 0 || c.Preview.MaxHeight < 0 {
		return fmt.Errorf("%w: preview dimensions cannot be negative", kerrors.ErrInvalidVaultConfig)
	}
	if c.Preview.NoiseAmplitude < 0 || c.Preview.NoiseAmplitude > 16 {
		return fmt.Errorf("%w: preview.noise_amplitude must be between 0 and 16", kerrors.ErrInvalidVaultConfig)
	}
	if c.Preview.WatermarkOpacity < 0 || c.Preview.WatermarkOpacity > 1 {
		return fmt.Errorf("%w: preview.watermark_opacity must be between 0 and 1", kerrors.ErrInvalidVaultConfig)
	}
	if c.Rotation.Concurrency < 0 {
		return fmt.Errorf("%w: rotation.concurrency cannot be negative", kerrors.ErrInvalidVaultConfig)
	}
	return nil
}

// LoadVaultConfig loads the vault configuration and applies defaults.
func LoadVaultConfig(settings *VaultSettings) (*VaultConfig, error) {
	config := &VaultConfig{}

	if _, err := os.Stat(settings.ConfigPath); errors.Is(err, os.ErrNotExist) {
		return nil, kerrors.ErrVaultNotInitialized
	}

	if err := LoadTOML(settings.ConfigPath, config); err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidVaultConfig, err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveVaultConfig saves the vault configuration.
func SaveVaultConfig(settings *VaultSettings, config *VaultConfig) error {
	if err := SaveTOML(settings.ConfigPath, config); err != nil {
		return fmt.Errorf("failed to save vault config: %w", err)
	}
	return nil
}

// GenerateVaultUUID generates a new UUID for a vault.
func GenerateVaultUUID() string {
	return uuid.New().String()
}
