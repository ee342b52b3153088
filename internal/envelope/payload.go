package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	kerrors "github.com/PolarWolf314/docvault/internal/errors"
)

// UploadPayload is what the storage collaborator receives for a new document.
// The body travels next to the JSON metadata, framed as ciphertext || tag.
type UploadPayload struct {
	EncryptedBody       []byte `json:"-"`
	EncryptedDEK        string `json:"encrypted_dek"`
	EncryptionAlgorithm string `json:"encryption_algorithm"`
	EncryptionIV        string `json:"encryption_iv"`
	OriginalFilename    string `json:"original_filename"`
	MimeType            string `json:"mime_type"`
	OriginalSize        int64  `json:"original_size"`
	TagLength           int    `json:"tag_length"`
}

// NewUploadPayload assembles the upload payload for an encrypted document.
func NewUploadPayload(data *DocumentEncryptionData, info *DEKInfo, filename, mimeType string, originalSize int64) (*UploadPayload, error) {
	encodedDEK, err := EncodeDEKInfo(info)
	if err != nil {
		return nil, err
	}

	return &UploadPayload{
		EncryptedBody:       Frame(data),
		EncryptedDEK:        encodedDEK,
		EncryptionAlgorithm: Algorithm,
		EncryptionIV:        base64.StdEncoding.EncodeToString(data.IV),
		OriginalFilename:    filename,
		MimeType:            mimeType,
		OriginalSize:        originalSize,
		TagLength:           len(data.AuthTag),
	}, nil
}

// Scheme returns the DEK scheme described by the payload.
func (p *UploadPayload) Scheme() (DEKScheme, error) {
	info, err := DecodeDEKInfo(p.EncryptedDEK)
	if err != nil {
		return DEKScheme{}, err
	}
	iv, err := base64.StdEncoding.DecodeString(p.EncryptionIV)
	if err != nil {
		return DEKScheme{}, fmt.Errorf("%w: encryption_iv is not base64", kerrors.ErrMalformedFrame)
	}
	return DEKScheme{Info: *info, IV: iv, TagLength: p.TagLength}, nil
}

// EncodeDEKInfo serializes a DEKInfo as base64 JSON.
func EncodeDEKInfo(info *DEKInfo) (string, error) {
	data, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("encoding DEK info: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeDEKInfo parses the output of EncodeDEKInfo.
func DecodeDEKInfo(encoded string) (*DEKInfo, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: encrypted_dek is not base64", kerrors.ErrMalformedFrame)
	}
	var info DEKInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("%w: encrypted_dek is not valid JSON", kerrors.ErrMalformedFrame)
	}
	return &info, nil
}
