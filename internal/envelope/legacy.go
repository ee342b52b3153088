package envelope

import (
	"fmt"

	kerrors "github.com/PolarWolf314/docvault/internal/errors"
	"github.com/PolarWolf314/docvault/internal/kdf"
)

// LegacyKeyInfo describes a document encrypted before per-document keys.
// Its body key is PBKDF2(password, Salt) with no DEK in between.
type LegacyKeyInfo struct {
	// Salt is the document identifier the key was derived with.
	Salt string

	// Iterations defaults to kdf.LegacyIterations when zero.
	Iterations int

	IV []byte

	// AuthTag is stored separately by some records. When empty the tag is
	// recovered from the body frame.
	AuthTag []byte
}

// DecryptLegacy derives the legacy document key from password and opens the
// body. Failures are reported as *AuthTagError, like the DEK path.
func DecryptLegacy(body []byte, originalSize int64, password []byte, info LegacyKeyInfo) ([]byte, error) {
	if len(password) == 0 {
		return nil, kerrors.ErrPasswordRequired
	}

	var data *DocumentEncryptionData
	if len(info.AuthTag) > 0 {
		data = &DocumentEncryptionData{Ciphertext: body, IV: info.IV, AuthTag: info.AuthTag}
	} else {
		parsed, err := ParseFrame(body, info.IV, originalSize)
		if err != nil {
			return nil, err
		}
		data = parsed
	}

	key, err := kdf.DeriveLegacyKey(password, info.Salt, info.Iterations)
	if err != nil {
		return nil, fmt.Errorf("deriving legacy key: %w", err)
	}
	defer key.Destroy()

	var plaintext []byte
	err = key.Use(func(raw []byte) error {
		var openErr error
		plaintext, openErr = openBody(raw, data)
		return openErr
	})
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}
