package kdf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/hkdf"
)

const (
	validationVersion   = 1
	validationAlgorithm = "HMAC-SHA256"
	validationNonceSize = 32
	validationContext   = "docvault/key-validation/v1"
)

// ValidationPayload is the opaque JSON blob the account collaborator stores
// to check a candidate key. It holds a random nonce and a keyed tag and can
// not be used to decrypt anything.
type ValidationPayload []byte

type validationEnvelope struct {
	Version   int    `json:"v"`
	Algorithm string `json:"alg"`
	Nonce     []byte `json:"nonce"`
	Tag       []byte `json:"tag"`
}

// CreateValidationPayload binds identity and a fresh nonce to key.
func CreateValidationPayload(identity string, key *MasterKey) (ValidationPayload, error) {
	nonce := make([]byte, validationNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating validation nonce: %w", err)
	}

	tag, err := validationTag(identity, key, nonce)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(validationEnvelope{
		Version:   validationVersion,
		Algorithm: validationAlgorithm,
		Nonce:     nonce,
		Tag:       tag,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding validation payload: %w", err)
	}
	return data, nil
}

// VerifyKeyValidation recomputes the tag with candidate and compares it in
// constant time. Wrong keys, wrong identities and corrupt payloads all
// return false; there is no error path.
func VerifyKeyValidation(identity string, candidate *MasterKey, payload ValidationPayload) bool {
	var env validationEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return false
	}
	if env.Version != validationVersion || env.Algorithm != validationAlgorithm {
		return false
	}
	if len(env.Nonce) != validationNonceSize || len(env.Tag) != sha256.Size {
		return false
	}

	expected, err := validationTag(identity, candidate, env.Nonce)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, env.Tag)
}

// validationTag computes HMAC(subkey, context || len(identity) || identity || nonce)
// where subkey is an HKDF expansion of the master key, so the master key
// itself never keys the MAC.
func validationTag(identity string, key *MasterKey, nonce []byte) ([]byte, error) {
	var tag []byte
	err := key.Use(func(raw []byte) error {
		subkey := make([]byte, sha256.Size)
		defer memguard.WipeBytes(subkey)

		r := hkdf.New(sha256.New, raw, nil, []byte(validationContext))
		if _, err := io.ReadFull(r, subkey); err != nil {
			return fmt.Errorf("expanding validation key: %w", err)
		}

		mac := hmac.New(sha256.New, subkey)
		mac.Write([]byte(validationContext))
		var length [4]byte
		binary.BigEndian.PutUint32(length[:], uint32(len(identity)))
		mac.Write(length[:])
		mac.Write([]byte(identity))
		mac.Write(nonce)
		tag = mac.Sum(nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tag, nil
}
