package errors

import "errors"

// Key errors indicate problems deriving, validating or holding the master key.
var (
	// ErrKeyDerivation indicates the salt or iteration parameters are malformed.
	// It is fatal for the given inputs and never retried.
	ErrKeyDerivation = errors.New("invalid key derivation parameters")

	// ErrWrongPassword indicates the password did not pass the validation payload.
	ErrWrongPassword = errors.New("incorrect encryption password")

	// ErrAuthentication indicates the current password could not be verified
	// before a privileged operation such as rotation.
	ErrAuthentication = errors.New("current password could not be verified")

	// ErrKeyNotExportable indicates an attempt to serialize a non-exportable key handle.
	ErrKeyNotExportable = errors.New("master key is not exportable")
)

// Session errors indicate the master key is not available in this session.
var (
	// ErrSessionExpired indicates no master key is loaded, either because the
	// session timed out or because it was never unlocked. Recoverable by
	// prompting for the password again.
	ErrSessionExpired = errors.New("no master key loaded in this session")

	// ErrPasswordRequired indicates a legacy document was opened without the
	// password its key is derived from.
	ErrPasswordRequired = errors.New("password required for this document")
)

// Cryptographic errors indicate failures during encryption or decryption operations.
var (
	// ErrDecryptFailed is the single category reported for unwrap and auth
	// tag failures. It does not say which layer failed.
	ErrDecryptFailed = errors.New("decryption failed")

	// ErrEncryptFailed indicates document encryption failed.
	ErrEncryptFailed = errors.New("failed to encrypt document")

	// ErrInvalidKeyLength indicates a key has an unexpected length.
	ErrInvalidKeyLength = errors.New("invalid key length")

	// ErrMalformedFrame indicates stored ciphertext is too short to hold a tag.
	ErrMalformedFrame = errors.New("malformed ciphertext frame")

	// ErrRotationAborted indicates a re-wrap failed and nothing was committed.
	// The previous master key stays authoritative.
	ErrRotationAborted = errors.New("key rotation aborted")
)

// Vault state errors indicate issues with vault configuration or provisioning.
var (
	// ErrVaultNotInitialized indicates no .docvault directory was found.
	ErrVaultNotInitialized = errors.New("vault has not been initialized")

	// ErrNotProvisioned indicates encryption has not been provisioned for this vault.
	ErrNotProvisioned = errors.New("encryption has not been provisioned")

	// ErrAlreadyProvisioned indicates encryption has already been provisioned.
	ErrAlreadyProvisioned = errors.New("encryption has already been provisioned")

	// ErrInvalidVaultConfig indicates the vault configuration is malformed.
	ErrInvalidVaultConfig = errors.New("vault configuration is invalid")
)

// Document errors indicate issues with stored documents or their selection.
var (
	// ErrDocumentNotFound indicates the requested document does not exist.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrNoFilesFound indicates no files matched the provided patterns.
	ErrNoFilesFound = errors.New("no matching files found")

	// ErrFileNotFound indicates a specific file could not be located.
	ErrFileNotFound = errors.New("file not found")

	// ErrUnsupportedImage indicates preview input is not a decodable image.
	ErrUnsupportedImage = errors.New("document cannot be previewed")

	// ErrPreviewClosed indicates a preview surface was used after cleanup.
	ErrPreviewClosed = errors.New("preview has been closed")

	// ErrNoWatermark indicates an image carries no recoverable provenance.
	ErrNoWatermark = errors.New("no watermark found")
)
