package store

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/PolarWolf314/docvault/internal/envelope"
	kerrors "github.com/PolarWolf314/docvault/internal/errors"
)

// Record is a document's metadata as stored in meta.json. The body lives
// next to it in body.bin as ciphertext || tag.
//
// A record carries the fields of exactly one scheme: the DEK fields for
// documents written by this version, the legacy fields for documents
// encrypted directly under the password.
type Record struct {
	ID               string    `json:"id"`
	OriginalFilename string    `json:"original_filename"`
	MimeType         string    `json:"mime_type"`
	OriginalSize     int64     `json:"original_size"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	EncryptedDEK        string `json:"encrypted_dek,omitempty"`
	EncryptionAlgorithm string `json:"encryption_algorithm,omitempty"`
	EncryptionIV        string `json:"encryption_iv,omitempty"`

	// TagLength is set by this version. Records without it have their tag
	// length derived from the body size.
	TagLength int `json:"tag_length,omitempty"`

	// LegacySalt defaults to ID when empty.
	LegacySalt       string `json:"legacy_salt,omitempty"`
	LegacyIterations int    `json:"legacy_iterations,omitempty"`
	LegacyIV         string `json:"legacy_iv,omitempty"`
	LegacyAuthTag    string `json:"legacy_auth_tag,omitempty"`
}

// IsLegacy reports whether the document predates per-document keys.
func (r *Record) IsLegacy() bool {
	return r.EncryptedDEK == "" && r.LegacyIV != ""
}

// SchemeName returns "dek" or "legacy" without decoding anything.
func (r *Record) SchemeName() string {
	if r.IsLegacy() {
		return envelope.SchemeNameLegacy
	}
	return envelope.SchemeNameDEK
}

// Scheme decodes the record's scheme fields. This is the only place the
// dek/legacy decision is made.
func (r *Record) Scheme() (envelope.Scheme, error) {
	if r.IsLegacy() {
		iv, err := base64.StdEncoding.DecodeString(r.LegacyIV)
		if err != nil {
			return nil, fmt.Errorf("%w: document %s has an invalid legacy IV", kerrors.ErrMalformedFrame, r.ID)
		}
		var tag []byte
		if r.LegacyAuthTag != "" {
			tag, err = base64.StdEncoding.DecodeString(r.LegacyAuthTag)
			if err != nil {
				return nil, fmt.Errorf("%w: document %s has an invalid legacy tag", kerrors.ErrMalformedFrame, r.ID)
			}
		}
		salt := r.LegacySalt
		if salt == "" {
			salt = r.ID
		}
		return envelope.LegacyScheme{Key: envelope.LegacyKeyInfo{
			Salt:       salt,
			Iterations: r.LegacyIterations,
			IV:         iv,
			AuthTag:    tag,
		}}, nil
	}

	if r.EncryptedDEK == "" {
		return nil, fmt.Errorf("%w: document %s has no key information", kerrors.ErrMalformedFrame, r.ID)
	}
	info, err := envelope.DecodeDEKInfo(r.EncryptedDEK)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", r.ID, err)
	}
	iv, err := base64.StdEncoding.DecodeString(r.EncryptionIV)
	if err != nil {
		return nil, fmt.Errorf("%w: document %s has an invalid IV", kerrors.ErrMalformedFrame, r.ID)
	}
	return envelope.DEKScheme{Info: *info, IV: iv, TagLength: r.TagLength}, nil
}

// DEKInfo returns the wrapped key of a DEK document.
func (r *Record) DEKInfo() (*envelope.DEKInfo, error) {
	scheme, err := r.Scheme()
	if err != nil {
		return nil, err
	}
	dek, ok := scheme.(envelope.DEKScheme)
	if !ok {
		return nil, fmt.Errorf("document %s is a legacy document without a DEK", r.ID)
	}
	return &dek.Info, nil
}

func recordFromPayload(id string, payload *envelope.UploadPayload, now time.Time) *Record {
	return &Record{
		ID:                  id,
		OriginalFilename:    payload.OriginalFilename,
		MimeType:            payload.MimeType,
		OriginalSize:        payload.OriginalSize,
		CreatedAt:           now,
		UpdatedAt:           now,
		EncryptedDEK:        payload.EncryptedDEK,
		EncryptionAlgorithm: payload.EncryptionAlgorithm,
		EncryptionIV:        payload.EncryptionIV,
		TagLength:           payload.TagLength,
	}
}
