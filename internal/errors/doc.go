// Package errors provides typed error values for docvault.
//
// Using sentinel errors allows callers to handle specific error conditions
// programmatically with errors.Is() rather than string matching. This makes
// error handling more robust and refactoring-safe.
//
// # Error Categories
//
// Errors are grouped by category:
//
//   - Key errors: derivation and validation (ErrKeyDerivation, ErrWrongPassword)
//   - Session errors: the master key is absent (ErrSessionExpired)
//   - Crypto errors: ErrDecryptFailed covers both the key-unwrap and the
//     document auth tag layer, so callers cannot tell which one failed
//   - Vault errors: provisioning state (ErrNotProvisioned)
//   - Document errors: lookup and selection (ErrDocumentNotFound)
//
// A wrong password is not an error inside the key validation code, it is a
// false result. Workflows translate that false into ErrWrongPassword so the
// CLI can tell "need password" from "wrong password" from "corrupted
// document".
//
// # Usage
//
// Handle errors in the CLI layer:
//
//	result, err := workflows.Download(ctx, vault, opts)
//	if errors.Is(err, kerrors.ErrDecryptFailed) {
//	    // Show the generic corrupted-or-wrong-key message
//	}
//
// Wrap errors with additional context:
//
//	return fmt.Errorf("loading document %s: %w", id, errors.ErrDocumentNotFound)
package errors
