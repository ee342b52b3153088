// Package envelope implements per-document envelope encryption.
//
// # Encryption Architecture
//
// Each document gets its own key:
//
//  1. A random 256-bit DEK encrypts the document body with AES-GCM
//  2. The master key wraps the DEK with AES-GCM under a second random IV
//  3. The wrapped DEK (DEKInfo) is stored with the document's metadata
//
// Rotating the master key only re-wraps DEKs (RewrapDEK); document bodies
// are never re-encrypted or re-uploaded.
//
// # Failure Reporting
//
// A wrong master key surfaces as *UnwrapError, a tampered body or tag as
// *AuthTagError. Both print "decryption failed" and both match
// errors.ErrDecryptFailed, so nothing outside this package can tell which
// layer rejected the input.
//
// # Storage Framing
//
// Bodies are stored as ciphertext || tag. ParseFrame recovers the tag length
// from the original plaintext size when it is known and valid (12–16 bytes),
// and otherwise falls back to the fixed 16 byte tag older releases wrote.
//
// A shortened GCM tag is a prefix of the full one, so deriving the length
// from the frame size means a body stripped of up to 4 trailing bytes still
// authenticates, with 96 to 120 bits instead of 128. That path stays for
// documents written without a recorded length. This package always writes
// 16 byte tags and records the length (UploadPayload.TagLength), and
// DEKScheme.TagLength pins such frames: a size mismatch is a failed
// decryption (ParseRecordedFrame).
//
// # Legacy Documents
//
// Documents written before DEKs existed were encrypted directly under
// PBKDF2(password, documentID). They are a separate LegacyScheme and are
// opened with DecryptLegacy, which needs the password rather than the
// master key.
package envelope
