package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PolarWolf314/docvault/internal/envelope"
	kerrors "github.com/PolarWolf314/docvault/internal/errors"
	"github.com/PolarWolf314/docvault/internal/utils"

	"github.com/coder/quartz"
	"github.com/google/uuid"
)

const (
	bodyFileName = "body.bin"
	metaFileName = "meta.json"
)

// DocumentStore keeps encrypted documents on the local filesystem, one
// directory per document:
//
//	<Dir>/<uuid>/body.bin   ciphertext || tag
//	<Dir>/<uuid>/meta.json  Record
//
// It never sees keys or plaintext. meta.json is written last, so a document
// without one is an interrupted upload and is ignored.
type DocumentStore struct {
	Dir   string
	Clock quartz.Clock
}

func NewDocumentStore(dir string) *DocumentStore {
	return &DocumentStore{Dir: dir, Clock: quartz.NewReal()}
}

func (s *DocumentStore) docDir(id string) string {
	return filepath.Join(s.Dir, id)
}

// Put stores an upload payload under a new id and returns its record.
func (s *DocumentStore) Put(ctx context.Context, payload *envelope.UploadPayload) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec := recordFromPayload(uuid.New().String(), payload, s.Clock.Now().UTC())
	if err := s.PutRecord(ctx, rec, payload.EncryptedBody); err != nil {
		return nil, err
	}
	return rec, nil
}

// PutRecord stores a record and its framed body as given. It is how legacy
// documents are imported.
func (s *DocumentStore) PutRecord(ctx context.Context, rec *Record, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := uuid.Parse(rec.ID); err != nil {
		return fmt.Errorf("invalid document id %q: %w", rec.ID, err)
	}

	dir := s.docDir(rec.ID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}
	if err := utils.WriteFileAtomic(filepath.Join(dir, bodyFileName), body, 0600); err != nil {
		return fmt.Errorf("failed to store document body: %w", err)
	}
	if err := s.writeMeta(rec); err != nil {
		return err
	}
	return nil
}

// Get returns the record of id.
func (s *DocumentStore) Get(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrDocumentNotFound, id)
	}

	data, err := os.ReadFile(filepath.Join(s.docDir(id), metaFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document metadata: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse metadata of %s: %w", id, err)
	}
	return &rec, nil
}

// Resolve finds a document by full id or by an unambiguous id prefix.
func (s *DocumentStore) Resolve(ctx context.Context, idOrPrefix string) (*Record, error) {
	if _, err := uuid.Parse(idOrPrefix); err == nil {
		return s.Get(ctx, idOrPrefix)
	}

	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var match *Record
	for _, rec := range records {
		if !strings.HasPrefix(rec.ID, idOrPrefix) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("document id prefix %q is ambiguous", idOrPrefix)
		}
		match = rec
	}
	if match == nil || idOrPrefix == "" {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrDocumentNotFound, idOrPrefix)
	}
	return match, nil
}

// ReadBody returns the framed body of id.
func (s *DocumentStore) ReadBody(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.docDir(id), bodyFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document body: %w", err)
	}
	return data, nil
}

// List returns every complete document, oldest first.
func (s *DocumentStore) List(ctx context.Context) ([]*Record, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	var records []*Record
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := uuid.Parse(entry.Name()); err != nil {
			continue
		}
		rec, err := s.Get(ctx, entry.Name())
		if errors.Is(err, kerrors.ErrDocumentNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// ReplaceDEKs swaps the wrapped key of every listed document. Either all
// records are replaced or, if any write fails, the ones already written are
// put back and an error is returned. Document bodies are not touched.
func (s *DocumentStore) ReplaceDEKs(ctx context.Context, updates map[string]*envelope.DEKInfo) error {
	ids := make([]string, 0, len(updates))
	for id := range updates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Build every new record before writing any of them.
	originals := make(map[string]*Record, len(ids))
	replacements := make(map[string]*Record, len(ids))
	now := s.Clock.Now().UTC()
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if rec.IsLegacy() {
			return fmt.Errorf("document %s is a legacy document without a DEK", id)
		}
		encoded, err := envelope.EncodeDEKInfo(updates[id])
		if err != nil {
			return err
		}

		originals[id] = rec
		next := *rec
		next.EncryptedDEK = encoded
		next.EncryptionAlgorithm = updates[id].Algorithm
		next.UpdatedAt = now
		replacements[id] = &next
	}

	var written []string
	for _, id := range ids {
		err := ctx.Err()
		if err == nil {
			err = s.writeMeta(replacements[id])
		}
		if err != nil {
			if rollbackErr := s.rollback(written, originals); rollbackErr != nil {
				return fmt.Errorf("replacing DEKs: %w (rollback failed: %v)", err, rollbackErr)
			}
			return fmt.Errorf("replacing DEKs: %w", err)
		}
		written = append(written, id)
	}
	return nil
}

func (s *DocumentStore) rollback(ids []string, originals map[string]*Record) error {
	var errs []error
	for _, id := range ids {
		if err := s.writeMeta(originals[id]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (s *DocumentStore) writeMeta(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document metadata: %w", err)
	}
	if err := utils.WriteFileAtomic(filepath.Join(s.docDir(rec.ID), metaFileName), data, 0600); err != nil {
		return fmt.Errorf("failed to store document metadata: %w", err)
	}
	return nil
}
