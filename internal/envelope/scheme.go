package envelope

import (
	"github.com/PolarWolf314/docvault/internal/kdf"
)

// Scheme identifies how a stored document was encrypted. It is decided once
// where records are loaded and switched on by callers; the two schemes are
// never merged.
type Scheme interface {
	// Name is "dek" or "legacy".
	Name() string
	isScheme()
}

const (
	SchemeNameDEK    = "dek"
	SchemeNameLegacy = "legacy"
)

// DEKScheme is the current envelope format: a wrapped per-document key plus
// the body IV.
type DEKScheme struct {
	Info DEKInfo
	IV   []byte

	// TagLength is recorded for documents written by this version and pins
	// the frame to it. Zero means unknown: the length is derived from the
	// frame size.
	TagLength int
}

func (DEKScheme) Name() string { return SchemeNameDEK }
func (DEKScheme) isScheme()    {}

// LegacyScheme is the pre-envelope format keyed directly by the password.
type LegacyScheme struct {
	Key LegacyKeyInfo
}

func (LegacyScheme) Name() string { return SchemeNameLegacy }
func (LegacyScheme) isScheme()    {}

// Credentials carries whatever the caller holds. DEK documents need the
// master key; legacy documents need the password.
type Credentials struct {
	MasterKey *kdf.MasterKey
	Password  []byte
}

// Open decrypts a stored frame according to its scheme.
func Open(scheme Scheme, frame []byte, originalSize int64, creds Credentials) ([]byte, error) {
	switch s := scheme.(type) {
	case DEKScheme:
		data, err := parseDEKFrame(frame, s, originalSize)
		if err != nil {
			return nil, err
		}
		return DecryptWithMasterKey(data, &s.Info, creds.MasterKey)
	case LegacyScheme:
		return DecryptLegacy(frame, originalSize, creds.Password, s.Key)
	default:
		return nil, &UnwrapError{}
	}
}

func parseDEKFrame(frame []byte, s DEKScheme, originalSize int64) (*DocumentEncryptionData, error) {
	if s.TagLength == 0 {
		return ParseFrame(frame, s.IV, originalSize)
	}
	return ParseRecordedFrame(frame, s.IV, s.TagLength, originalSize)
}
