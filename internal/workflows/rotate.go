package workflows

import (
	"context"

	"github.com/PolarWolf314/docvault/internal/audit"
	"github.com/PolarWolf314/docvault/internal/rotation"
)

// RotateOptions configures the rotate workflow.
type RotateOptions struct {
	OldPassword []byte
	NewPassword []byte

	// Iterations for the new key. Zero uses the vault configuration.
	Iterations int
}

// RotateResult contains the outcome of a rotate operation.
type RotateResult struct {
	Rotated    int
	Skipped    int
	Iterations int
}

// Rotate replaces the master key: every DEK is re-wrapped under a key
// derived from the new password and the session switches to the new key.
// Document bodies are not touched.
//
// Returns ErrAuthentication if the old password does not verify.
// Returns ErrRotationAborted if any document could not be re-wrapped; in
// that case nothing was changed.
func (v *Vault) Rotate(ctx context.Context, opts RotateOptions) (*RotateResult, error) {
	if _, err := v.loadAccount(ctx); err != nil {
		return nil, err
	}

	iterations := opts.Iterations
	if iterations == 0 {
		iterations = v.Config.KDF.Iterations
	}

	entry := v.Trail.Entry(audit.OpRotate)
	entry.Iterations = iterations

	result, err := v.coordinator().Rotate(ctx, rotation.RotateRequest{
		OldPassword: opts.OldPassword,
		NewPassword: opts.NewPassword,
		Iterations:  iterations,
		Exportable:  true,
	})
	if err != nil {
		v.record(entry, err)
		return nil, err
	}

	entry.DocumentsCount = result.Rotated
	entry.SkippedCount = result.Skipped
	v.record(entry, nil)

	return &RotateResult{
		Rotated:    result.Rotated,
		Skipped:    result.Skipped,
		Iterations: result.Iterations,
	}, nil
}
