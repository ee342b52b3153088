// Package workflows provides high-level orchestration for docvault commands.
//
// Workflows coordinate the vault's collaborators (configuration, document
// and account stores, the session manager, the audit trail) to implement
// complete user-facing features. Each workflow handles a single command's
// business logic, independent of CLI concerns like flag parsing, prompts,
// spinners, and output formatting.
//
// # The Vault handle
//
// Open locates a vault and returns a *Vault holding everything a workflow
// needs. There is no package-level state: the cmd layer opens one Vault
// per command and calls methods on it. Opening a vault reconciles the
// session with what the previous command persisted, so an unlocked session
// carries over between commands until it expires or is locked.
//
// Provision is the exception: it creates the vault, so it is a function.
//
// # Available Workflows
//
//   - Provision: creates the account and unlocks the first session
//   - Unlock, Lock, Verify, Status: manage the master key session
//   - Upload, List, Download: store and retrieve documents
//   - Preview, Trace: protected previews and provenance recovery
//   - Rotate: re-wraps every document key under a new password
//   - Log: reads the audit trail
//
// # Error Handling
//
// Workflows return typed errors from the internal/errors package, allowing
// the CLI layer to provide appropriate user-facing messages without string
// matching:
//
//	result, err := v.Download(ctx, opts)
//	if errors.Is(err, kerrors.ErrSessionExpired) {
//	    // Prompt for the password and unlock
//	}
//
// Wrong passwords surface as ErrWrongPassword. Decryption failures surface
// as ErrDecryptFailed without saying whether the key or the ciphertext was
// at fault.
package workflows
