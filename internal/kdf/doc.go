// Package kdf derives master keys from passwords and checks candidate keys
// without revealing them.
//
// A master key is PBKDF2-HMAC-SHA256(password, salt, iterations) truncated to
// 32 bytes. The salt and iteration count are chosen at provisioning and are
// immutable afterwards; changing them is a rotation.
//
// Key bits are held in a memguard enclave behind MasterKey. Code that needs
// the bits (the envelope engine, the validation MAC) borrows them through
// MasterKey.Use. Only handles created as exportable can be serialized, which
// is what the session manager needs to restore a session.
//
// # Validation
//
// CreateValidationPayload produces a JSON blob containing a random nonce and
// an HMAC over the identity and nonce, keyed by an HKDF subkey of the master
// key. VerifyKeyValidation recomputes the HMAC with a candidate key and
// compares in constant time. The payload decrypts nothing, and a wrong
// password yields false rather than an error.
//
// # Stored Salts
//
// DecodeSalt tries base64 first and falls back to the literal string bytes.
// The fallback serves accounts provisioned by an older format that stored
// text salts. It is unclear whether that format was deliberate, so both
// paths stay explicit and callers can see which one was taken.
package kdf
