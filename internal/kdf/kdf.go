package kdf

import (
	"crypto/sha256"
	"fmt"
	"sync"

	kerrors "github.com/PolarWolf314/docvault/internal/errors"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the master key size in bytes (AES-256).
	KeySize = 32

	// SaltSize is the size of a provisioned salt in bytes.
	SaltSize = 32

	// MinIterations is the PBKDF2 iteration floor.
	MinIterations = 100_000

	// LegacyIterations is the iteration count used by documents encrypted
	// before per-document keys existed.
	LegacyIterations = 100_000
)

// MasterKey is an opaque handle to a 256-bit symmetric key. The key bits live
// in a memguard enclave and are only exposed for the duration of a Use call.
type MasterKey struct {
	mu         sync.RWMutex
	enclave    *memguard.Enclave
	exportable bool
}

// newMasterKey seals raw into an enclave. memguard wipes raw in the process.
func newMasterKey(raw []byte, exportable bool) *MasterKey {
	return &MasterKey{
		enclave:    memguard.NewEnclave(raw),
		exportable: exportable,
	}
}

// ImportMasterKey wraps previously exported key bits in a new handle.
// The caller's buffer is wiped.
func ImportMasterKey(raw []byte, exportable bool) (*MasterKey, error) {
	if len(raw) != KeySize {
		memguard.WipeBytes(raw)
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", kerrors.ErrInvalidKeyLength, KeySize, len(raw))
	}
	return newMasterKey(raw, exportable), nil
}

// DeriveMasterKey runs PBKDF2-HMAC-SHA256 over password with the given salt
// and iteration count. The same inputs always produce the same key bits.
//
// Returns ErrKeyDerivation if the salt is not SaltSize bytes or iterations is
// below MinIterations.
func DeriveMasterKey(password, salt []byte, iterations int, exportable bool) (*MasterKey, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", kerrors.ErrKeyDerivation, SaltSize, len(salt))
	}
	return derive(password, salt, iterations, exportable)
}

// DeriveFromEncodedSalt decodes a stored salt with DecodeSalt and derives the
// master key from it. Salts that only decode as literal text come from an
// older provisioning format; their length is not checked.
func DeriveFromEncodedSalt(password []byte, encodedSalt string, iterations int, exportable bool) (*MasterKey, SaltEncoding, error) {
	salt, encoding := DecodeSalt(encodedSalt)
	if encoding == SaltBase64 {
		key, err := DeriveMasterKey(password, salt, iterations, exportable)
		return key, encoding, err
	}

	if len(salt) == 0 {
		return nil, encoding, fmt.Errorf("%w: empty salt", kerrors.ErrKeyDerivation)
	}
	key, err := derive(password, salt, iterations, exportable)
	return key, encoding, err
}

// DeriveLegacyKey derives the single password key used by documents that
// predate per-document keys. The document identifier is the salt.
func DeriveLegacyKey(password []byte, documentID string, iterations int) (*MasterKey, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: legacy documents need an identifier salt", kerrors.ErrKeyDerivation)
	}
	if iterations == 0 {
		iterations = LegacyIterations
	}
	return derive(password, []byte(documentID), iterations, false)
}

func derive(password, salt []byte, iterations int, exportable bool) (*MasterKey, error) {
	if iterations < MinIterations {
		return nil, fmt.Errorf("%w: iterations must be at least %d, got %d", kerrors.ErrKeyDerivation, MinIterations, iterations)
	}
	raw := pbkdf2.Key(password, salt, iterations, KeySize, sha256.New)
	return newMasterKey(raw, exportable), nil
}

// Use opens the enclave and calls fn with the raw key bits. The slice is
// destroyed when fn returns and must not be retained.
func (k *MasterKey) Use(fn func(raw []byte) error) error {
	if k == nil {
		return kerrors.ErrSessionExpired
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.enclave == nil {
		return kerrors.ErrSessionExpired
	}

	buf, err := k.enclave.Open()
	if err != nil {
		return fmt.Errorf("opening key enclave: %w", err)
	}
	defer buf.Destroy()

	return fn(buf.Bytes())
}

// Exportable reports whether Export is permitted for this handle.
func (k *MasterKey) Exportable() bool {
	if k == nil {
		return false
	}
	return k.exportable
}

// Export returns a copy of the key bits. Only exportable handles may be
// exported; the session manager uses this to persist a restorable form.
func (k *MasterKey) Export() ([]byte, error) {
	if !k.Exportable() {
		return nil, kerrors.ErrKeyNotExportable
	}

	var out []byte
	err := k.Use(func(raw []byte) error {
		out = make([]byte, len(raw))
		copy(out, raw)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Destroy drops the enclave. Later Use calls fail with ErrSessionExpired.
func (k *MasterKey) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	k.enclave = nil
	k.mu.Unlock()
}

// Destroyed reports whether Destroy has been called.
func (k *MasterKey) Destroyed() bool {
	if k == nil {
		return true
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.enclave == nil
}
