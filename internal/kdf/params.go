package kdf

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"slices"

	kerrors "github.com/PolarWolf314/docvault/internal/errors"
)

// Method is the derivation method name stored in the provisioning payload.
const Method = "PBKDF2-SHA256"

// AllowedIterations are the iteration counts selectable at provisioning.
var AllowedIterations = []int{100_000, 250_000, 500_000}

// DefaultIterations is used when no choice is configured.
const DefaultIterations = 250_000

// Params are a user's key derivation parameters. They are fixed once
// encryption is provisioned; changing them requires a rotation.
type Params struct {
	Salt       []byte
	Iterations int
	Hash       string
}

// NewParams generates parameters with a fresh random salt.
func NewParams(iterations int) (Params, error) {
	if !slices.Contains(AllowedIterations, iterations) {
		return Params{}, fmt.Errorf("%w: iterations must be one of %v, got %d", kerrors.ErrKeyDerivation, AllowedIterations, iterations)
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return Params{}, fmt.Errorf("generating salt: %w", err)
	}

	return Params{
		Salt:       salt,
		Iterations: iterations,
		Hash:       "SHA-256",
	}, nil
}

// EncodedSalt returns the salt in the form stored by the account collaborator.
func (p Params) EncodedSalt() string {
	return base64.StdEncoding.EncodeToString(p.Salt)
}

// Derive derives the master key for password under these parameters.
func (p Params) Derive(password []byte, exportable bool) (*MasterKey, error) {
	return DeriveMasterKey(password, p.Salt, p.Iterations, exportable)
}

// SaltEncoding records how a stored salt was interpreted.
type SaltEncoding int

const (
	// SaltBase64 means the stored value decoded as base64.
	SaltBase64 SaltEncoding = iota
	// SaltLiteral means the stored value was used as raw text bytes.
	SaltLiteral
)

func (e SaltEncoding) String() string {
	if e == SaltLiteral {
		return "literal"
	}
	return "base64"
}

// DecodeSalt interprets a stored salt. Base64 is tried first; anything that
// does not decode is used as the bytes of the literal string. Accounts
// provisioned by older releases stored text salts, and both paths are kept.
func DecodeSalt(encoded string) ([]byte, SaltEncoding) {
	if raw, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(raw) > 0 {
		return raw, SaltBase64
	}
	return []byte(encoded), SaltLiteral
}
