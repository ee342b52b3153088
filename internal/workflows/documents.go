package workflows

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/PolarWolf314/docvault/internal/audit"
	"github.com/PolarWolf314/docvault/internal/envelope"
	kerrors "github.com/PolarWolf314/docvault/internal/errors"
	"github.com/PolarWolf314/docvault/internal/files"
	"github.com/PolarWolf314/docvault/internal/kdf"
	"github.com/PolarWolf314/docvault/internal/store"
	"github.com/PolarWolf314/docvault/internal/utils"

	"github.com/awnumar/memguard"
)

// UploadOptions configures the upload workflow.
type UploadOptions struct {
	// Patterns are paths, directories or globs of the files to upload.
	Patterns []string

	// BaseDir resolves relative patterns. Defaults to the working directory.
	BaseDir string

	// DryRun lists what would be uploaded without encrypting anything.
	DryRun bool
}

// UploadedDocument describes one uploaded (or, in a dry run, selected) file.
type UploadedDocument struct {
	ID       string
	Path     string
	Filename string
	MimeType string
	Size     int64
}

// UploadResult contains the outcome of an upload operation.
type UploadResult struct {
	Documents []UploadedDocument
	DryRun    bool
}

// Upload encrypts each selected file under a fresh DEK wrapped by the
// session key and hands the upload payload to the document store.
//
// Returns ErrNoFilesFound or ErrFileNotFound when the patterns select nothing.
// Returns ErrSessionExpired if the vault is locked.
func (v *Vault) Upload(ctx context.Context, opts UploadOptions) (*UploadResult, error) {
	baseDir, err := resolveDir(opts.BaseDir)
	if err != nil {
		return nil, err
	}
	paths, err := files.Resolve(opts.Patterns, baseDir)
	if err != nil {
		return nil, err
	}
	v.Logger.Debugf("Selected %d files for upload", len(paths))

	result := &UploadResult{DryRun: opts.DryRun}
	if opts.DryRun {
		for _, path := range paths {
			info, err := os.Stat(path)
			if err != nil {
				return nil, fmt.Errorf("%w: %s", kerrors.ErrFileNotFound, path)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", path, err)
			}
			result.Documents = append(result.Documents, UploadedDocument{
				Path:     path,
				Filename: filepath.Base(path),
				MimeType: files.DetectMimeType(data),
				Size:     info.Size(),
			})
			memguard.WipeBytes(data)
		}
		return result, nil
	}

	entry := v.Trail.Entry(audit.OpUpload)
	err = v.Sessions.WithKey(ctx, func(key *kdf.MasterKey) error {
		for _, path := range paths {
			doc, err := v.uploadFile(ctx, path, key)
			if err != nil {
				return err
			}
			result.Documents = append(result.Documents, *doc)
			entry.Files = append(entry.Files, doc.ID)
		}
		return nil
	})
	entry.DocumentsCount = len(result.Documents)
	v.record(entry, err)
	if err != nil {
		return result, err
	}
	return result, nil
}

func (v *Vault) uploadFile(ctx context.Context, path string, key *kdf.MasterKey) (*UploadedDocument, error) {
	plaintext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer memguard.WipeBytes(plaintext)

	mimeType := files.DetectMimeType(plaintext)
	data, info, err := envelope.EncryptForUpload(plaintext, key)
	if err != nil {
		return nil, fmt.Errorf("encrypting %s: %w", path, err)
	}

	payload, err := envelope.NewUploadPayload(data, info, filepath.Base(path), mimeType, int64(len(plaintext)))
	if err != nil {
		return nil, err
	}
	rec, err := v.Documents.Put(ctx, payload)
	if err != nil {
		return nil, err
	}
	v.Logger.Infof("Uploaded %s as %s", path, rec.ID)

	return &UploadedDocument{
		ID:       rec.ID,
		Path:     path,
		Filename: rec.OriginalFilename,
		MimeType: rec.MimeType,
		Size:     rec.OriginalSize,
	}, nil
}

// ListResult contains the stored documents, oldest first.
type ListResult struct {
	Documents []*store.Record
}

// List returns the metadata of every stored document. It needs no key.
func (v *Vault) List(ctx context.Context) (*ListResult, error) {
	records, err := v.Documents.List(ctx)
	if err != nil {
		return nil, err
	}
	return &ListResult{Documents: records}, nil
}

// DownloadOptions configures the download workflow.
type DownloadOptions struct {
	// ID is a document id or an unambiguous prefix of one.
	ID string

	// Output is the destination path. Defaults to the original filename in
	// the working directory.
	Output string

	// Force overwrites an existing output file.
	Force bool

	// Password is only needed for legacy documents.
	Password []byte
}

// DownloadResult contains the outcome of a download operation.
type DownloadResult struct {
	Document *store.Record
	Path     string
}

// Download decrypts a document and writes the plaintext to disk with 0600
// permissions.
//
// Returns ErrDocumentNotFound if no document matches the id.
// Returns ErrSessionExpired if the vault is locked.
// Returns ErrPasswordRequired for a legacy document without a password.
// Returns ErrDecryptFailed if the document cannot be decrypted.
func (v *Vault) Download(ctx context.Context, opts DownloadOptions) (*DownloadResult, error) {
	rec, err := v.Documents.Resolve(ctx, opts.ID)
	if err != nil {
		return nil, err
	}

	output := opts.Output
	if output == "" {
		wd, err := resolveDir("")
		if err != nil {
			return nil, err
		}
		output = filepath.Join(wd, filepath.Base(rec.OriginalFilename))
	}
	if _, err := os.Stat(output); err == nil && !opts.Force {
		return nil, fmt.Errorf("%s already exists, use --force to overwrite", output)
	}

	entry := v.Trail.Entry(audit.OpDownload)
	entry.DocumentID = rec.ID

	plaintext, err := v.decrypt(ctx, rec, opts.Password)
	if err != nil {
		v.record(entry, err)
		return nil, err
	}
	defer memguard.WipeBytes(plaintext)

	if err := utils.WriteFileAtomic(output, plaintext, 0600); err != nil {
		v.record(entry, err)
		return nil, err
	}
	v.record(entry, nil)

	return &DownloadResult{Document: rec, Path: output}, nil
}

// decrypt opens a stored document with the session key, or with password
// for legacy documents. The caller owns and must wipe the result.
func (v *Vault) decrypt(ctx context.Context, rec *store.Record, password []byte) ([]byte, error) {
	body, err := v.Documents.ReadBody(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	scheme, err := rec.Scheme()
	if err != nil {
		return nil, err
	}

	if _, ok := scheme.(envelope.LegacyScheme); ok {
		if len(password) == 0 {
			return nil, kerrors.ErrPasswordRequired
		}
		v.Logger.Debugf("Document %s uses the legacy scheme", rec.ID)
		return envelope.Open(scheme, body, rec.OriginalSize, envelope.Credentials{Password: password})
	}

	var plaintext []byte
	err = v.Sessions.WithKey(ctx, func(key *kdf.MasterKey) error {
		var err error
		plaintext, err = envelope.Open(scheme, body, rec.OriginalSize, envelope.Credentials{MasterKey: key})
		return err
	})
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// IsLegacy reports whether the document behind id needs a password to open.
func (v *Vault) IsLegacy(ctx context.Context, id string) (bool, error) {
	rec, err := v.Documents.Resolve(ctx, id)
	if err != nil {
		return false, err
	}
	return rec.IsLegacy(), nil
}

// ErrorCategory maps err to the short reason shown to users and written to
// the audit trail. Decryption failures never say which layer failed.
func ErrorCategory(err error) string {
	switch {
	case errors.Is(err, kerrors.ErrSessionExpired), errors.Is(err, kerrors.ErrPasswordRequired):
		return "password required"
	case errors.Is(err, kerrors.ErrWrongPassword), errors.Is(err, kerrors.ErrAuthentication):
		return "wrong password"
	case errors.Is(err, kerrors.ErrDecryptFailed), errors.Is(err, kerrors.ErrMalformedFrame):
		return "document corrupted or key mismatch"
	}
	return "error"
}
