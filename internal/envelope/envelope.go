package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	kerrors "github.com/PolarWolf314/docvault/internal/errors"
	"github.com/PolarWolf314/docvault/internal/kdf"

	"github.com/awnumar/memguard"
)

const (
	// Algorithm names both layers of the envelope.
	Algorithm = "AES-GCM-256"

	// DEKSize is the size of a document encryption key in bytes.
	DEKSize = 32

	// IVSize is the GCM nonce size used by both layers.
	IVSize = 12

	// TagSize is the auth tag size written by this version.
	TagSize = 16

	// MinTagSize is the smallest auth tag GCM accepts.
	MinTagSize = 12
)

// DEKInfo is a document's wrapped key. It is replaced, never mutated, when
// the master key rotates.
type DEKInfo struct {
	WrappedDEK []byte `json:"wrapped_dek"`
	DEKIV      []byte `json:"dek_iv"`
	Algorithm  string `json:"algorithm"`
}

// DocumentEncryptionData is an encrypted document body with a detached tag.
// len(Ciphertext) equals the plaintext length.
type DocumentEncryptionData struct {
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
}

// UnwrapError reports that the DEK could not be unwrapped. Its message is
// the same as AuthTagError's so the failing layer is not observable.
type UnwrapError struct{}

func (e *UnwrapError) Error() string { return kerrors.ErrDecryptFailed.Error() }

func (e *UnwrapError) Is(target error) bool { return target == kerrors.ErrDecryptFailed }

// AuthTagError reports that the document body failed authentication.
type AuthTagError struct{}

func (e *AuthTagError) Error() string { return kerrors.ErrDecryptFailed.Error() }

func (e *AuthTagError) Is(target error) bool { return target == kerrors.ErrDecryptFailed }

// EncryptForUpload encrypts plaintext under a fresh DEK and wraps the DEK
// with mk.
//
// The workflow:
//  1. Generate a random 256-bit DEK and a random body IV
//  2. Seal the plaintext with AES-GCM, detaching the 16 byte tag
//  3. Wrap the DEK with AES-GCM under mk using a second random IV
//
// Every call draws new IVs, so no IV is shared between layers or documents.
func EncryptForUpload(plaintext []byte, mk *kdf.MasterKey) (*DocumentEncryptionData, *DEKInfo, error) {
	dek := make([]byte, DEKSize)
	if _, err := rand.Read(dek); err != nil {
		return nil, nil, fmt.Errorf("%w: generating DEK: %v", kerrors.ErrEncryptFailed, err)
	}
	defer memguard.WipeBytes(dek)

	data, err := sealBody(dek, plaintext)
	if err != nil {
		return nil, nil, err
	}

	info, err := wrapDEK(dek, mk)
	if err != nil {
		return nil, nil, err
	}

	return data, info, nil
}

// DecryptWithMasterKey unwraps the DEK with mk and opens the body. It fails
// closed with *UnwrapError or *AuthTagError, both of which match
// ErrDecryptFailed and print identically.
func DecryptWithMasterKey(data *DocumentEncryptionData, info *DEKInfo, mk *kdf.MasterKey) ([]byte, error) {
	dek, err := unwrapDEK(info, mk)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(dek)

	return openBody(dek, data)
}

// RewrapDEK re-wraps a document's DEK from oldKey to newKey. The document
// body is not touched.
func RewrapDEK(info *DEKInfo, oldKey, newKey *kdf.MasterKey) (*DEKInfo, error) {
	dek, err := unwrapDEK(info, oldKey)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(dek)

	return wrapDEK(dek, newKey)
}

func sealBody(dek, plaintext []byte) (*DocumentEncryptionData, error) {
	aead, err := newGCM(dek, TagSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrEncryptFailed, err)
	}

	iv, err := newIV()
	if err != nil {
		return nil, err
	}

	sealed := aead.Seal(nil, iv, plaintext, nil)
	split := len(sealed) - TagSize
	return &DocumentEncryptionData{
		Ciphertext: sealed[:split],
		IV:         iv,
		AuthTag:    sealed[split:],
	}, nil
}

func openBody(key []byte, data *DocumentEncryptionData) ([]byte, error) {
	if data == nil || len(data.IV) != IVSize {
		return nil, &AuthTagError{}
	}
	tagLen := len(data.AuthTag)
	if tagLen < MinTagSize || tagLen > TagSize {
		return nil, &AuthTagError{}
	}

	aead, err := newGCM(key, tagLen)
	if err != nil {
		return nil, &AuthTagError{}
	}

	sealed := make([]byte, 0, len(data.Ciphertext)+tagLen)
	sealed = append(sealed, data.Ciphertext...)
	sealed = append(sealed, data.AuthTag...)

	plaintext, err := aead.Open(nil, data.IV, sealed, nil)
	if err != nil {
		return nil, &AuthTagError{}
	}
	return plaintext, nil
}

func wrapDEK(dek []byte, mk *kdf.MasterKey) (*DEKInfo, error) {
	iv, err := newIV()
	if err != nil {
		return nil, err
	}

	var wrapped []byte
	err = mk.Use(func(raw []byte) error {
		aead, err := newGCM(raw, TagSize)
		if err != nil {
			return err
		}
		wrapped = aead.Seal(nil, iv, dek, nil)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("wrapping DEK: %w", err)
	}

	return &DEKInfo{
		WrappedDEK: wrapped,
		DEKIV:      iv,
		Algorithm:  Algorithm,
	}, nil
}

func unwrapDEK(info *DEKInfo, mk *kdf.MasterKey) ([]byte, error) {
	if info == nil || info.Algorithm != Algorithm || len(info.DEKIV) != IVSize {
		return nil, &UnwrapError{}
	}

	var dek []byte
	err := mk.Use(func(raw []byte) error {
		aead, err := newGCM(raw, TagSize)
		if err != nil {
			return err
		}
		dek, err = aead.Open(nil, info.DEKIV, info.WrappedDEK, nil)
		return err
	})
	if err != nil {
		if errors.Is(err, kerrors.ErrSessionExpired) {
			return nil, err
		}
		return nil, &UnwrapError{}
	}
	if len(dek) != DEKSize {
		memguard.WipeBytes(dek)
		return nil, &UnwrapError{}
	}
	return dek, nil
}

func newGCM(key []byte, tagSize int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithTagSize(block, tagSize)
}

func newIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("%w: generating IV: %v", kerrors.ErrEncryptFailed, err)
	}
	return iv, nil
}
