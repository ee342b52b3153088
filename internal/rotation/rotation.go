package rotation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/PolarWolf314/docvault/internal/envelope"
	kerrors "github.com/PolarWolf314/docvault/internal/errors"
	"github.com/PolarWolf314/docvault/internal/kdf"
	logger "github.com/PolarWolf314/docvault/internal/logging"
	"github.com/PolarWolf314/docvault/internal/session"
	"github.com/PolarWolf314/docvault/internal/store"

	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the number of DEKs re-wrapped at once.
const DefaultConcurrency = 8

// DocumentStore is the part of store.DocumentStore rotation needs.
type DocumentStore interface {
	List(ctx context.Context) ([]*store.Record, error)
	ReplaceDEKs(ctx context.Context, updates map[string]*envelope.DEKInfo) error
}

// AccountStore is the part of store.AccountStore rotation needs.
type AccountStore interface {
	Load(ctx context.Context) (*store.Account, error)
	Save(ctx context.Context, account *store.Account) error
}

// Journal is the part of store.JournalStore rotation needs. Load returns
// nil when no rotation is pending.
type Journal interface {
	Load(ctx context.Context) (*store.RotationJournal, error)
	Save(ctx context.Context, journal *store.RotationJournal) error
	Clear(ctx context.Context) error
}

// Recovery says what Recover did with a pending journal.
type Recovery int

const (
	RecoveryNone Recovery = iota
	RecoveryRolledBack
	RecoveryRolledForward
)

func (r Recovery) String() string {
	switch r {
	case RecoveryRolledBack:
		return "rolled back"
	case RecoveryRolledForward:
		return "rolled forward"
	default:
		return "none"
	}
}

// Coordinator replaces the master key of a vault. Only wrapped DEKs are
// rewritten; document bodies are never read.
type Coordinator struct {
	Documents DocumentStore
	Accounts  AccountStore

	// Journal records a rotation before it commits so that Recover can
	// finish or undo it after a crash. Rotate refuses to run without one.
	Journal Journal

	// Sessions, when set, is held exclusively for the whole rotation and
	// receives the new key on success.
	Sessions *session.Manager

	Concurrency int
	Logger      logger.Logger
	Clock       quartz.Clock
}

type RotateRequest struct {
	OldPassword []byte
	NewPassword []byte

	// Iterations for the new key. Zero keeps the account's current value.
	Iterations int

	// Exportable makes the new key exportable so it can be persisted by a
	// file-backed session. An exportable current session key implies it.
	Exportable bool
}

type Result struct {
	Rotated    int
	Skipped    int
	Iterations int
	RotatedAt  time.Time
}

// AbortedError reports a rotation that committed nothing, or whose partial
// commit was reverted.
type AbortedError struct {
	DocumentID string
	Err        error
}

func (e *AbortedError) Error() string {
	if e.DocumentID != "" {
		return fmt.Sprintf("%s: document %s: %v", kerrors.ErrRotationAborted, e.DocumentID, e.Err)
	}
	return fmt.Sprintf("%s: %v", kerrors.ErrRotationAborted, e.Err)
}

func (e *AbortedError) Is(target error) bool { return target == kerrors.ErrRotationAborted }

func (e *AbortedError) Unwrap() error { return e.Err }

// Rotate verifies the old password, re-wraps every DEK under a key derived
// from the new password, then commits the DEKs and the account. Either both
// commits land or neither does, including across a crash once Recover has
// run. Legacy documents are skipped.
func (c *Coordinator) Rotate(ctx context.Context, req RotateRequest) (*Result, error) {
	if c.Journal == nil {
		return nil, &AbortedError{Err: errors.New("no rotation journal configured")}
	}
	if c.Sessions == nil {
		newKey, result, err := c.rotate(ctx, req, false)
		if newKey != nil {
			newKey.Destroy()
		}
		return result, err
	}

	var result *Result
	err := c.Sessions.Exclusive(ctx, func(current *kdf.MasterKey) (*kdf.MasterKey, error) {
		exportable := current != nil && current.Exportable()
		newKey, res, err := c.rotate(ctx, req, exportable)
		result = res
		if err != nil {
			if newKey != nil {
				newKey.Destroy()
			}
			return nil, err
		}
		return newKey, nil
	})
	if err != nil {
		// A persist failure after the swap leaves the rotation committed.
		if result != nil {
			c.Logger.Warnf("Rotation committed but the session could not be persisted: %v", err)
			return result, nil
		}
		return nil, err
	}
	return result, nil
}

func (c *Coordinator) rotate(ctx context.Context, req RotateRequest, sessionExportable bool) (*kdf.MasterKey, *Result, error) {
	if _, err := c.Recover(ctx); err != nil {
		return nil, nil, &AbortedError{Err: err}
	}

	account, err := c.Accounts.Load(ctx)
	if err != nil {
		return nil, nil, err
	}

	oldKey, _, err := account.DeriveKey(req.OldPassword, false)
	if err != nil {
		return nil, nil, err
	}
	defer oldKey.Destroy()
	if !account.Verify(oldKey) {
		return nil, nil, kerrors.ErrAuthentication
	}
	c.Logger.Debugf("Old password verified for %s", account.Identity)

	iterations := req.Iterations
	if iterations == 0 {
		iterations = account.KeyDerivationIterations
		if !slices.Contains(kdf.AllowedIterations, iterations) {
			iterations = kdf.DefaultIterations
		}
	}
	params, err := kdf.NewParams(iterations)
	if err != nil {
		return nil, nil, err
	}
	newKey, err := params.Derive(req.NewPassword, req.Exportable || sessionExportable)
	if err != nil {
		return nil, nil, err
	}

	records, err := c.Documents.List(ctx)
	if err != nil {
		return newKey, nil, &AbortedError{Err: err}
	}

	var eligible []*store.Record
	skipped := 0
	for _, rec := range records {
		if rec.IsLegacy() {
			c.Logger.Debugf("Skipping legacy document %s", rec.ID)
			skipped++
			continue
		}
		eligible = append(eligible, rec)
	}

	originals, updates, err := c.rewrapAll(ctx, eligible, oldKey, newKey)
	if err != nil {
		return newKey, nil, err
	}

	now := c.now()
	next, err := store.NewAccount(account.Identity, params, newKey, account.ProvisionedAt)
	if err != nil {
		return newKey, nil, &AbortedError{Err: err}
	}
	next.RotatedAt = now

	journal, err := newJournal(next, originals, updates, now)
	if err != nil {
		return newKey, nil, &AbortedError{Err: err}
	}
	if err := c.Journal.Save(ctx, journal); err != nil {
		return newKey, nil, &AbortedError{Err: err}
	}

	if err := c.Documents.ReplaceDEKs(ctx, updates); err != nil {
		return newKey, nil, c.revert(ctx, originals, err)
	}
	if err := c.Accounts.Save(ctx, next); err != nil {
		return newKey, nil, c.revert(ctx, originals, err)
	}

	// The account is the commit point. A journal that survives from here on
	// makes Recover roll forward, which rewrites the same DEKs.
	if err := c.Journal.Clear(context.WithoutCancel(ctx)); err != nil {
		c.Logger.Warnf("Rotation committed but its journal could not be removed: %v", err)
	}

	c.Logger.Infof("Re-wrapped %d document keys", len(updates))
	return newKey, &Result{
		Rotated:    len(updates),
		Skipped:    skipped,
		Iterations: iterations,
		RotatedAt:  now,
	}, nil
}

// rewrapAll re-wraps every record's DEK in memory. The returned maps hold
// the old and new key info by document id.
func (c *Coordinator) rewrapAll(ctx context.Context, records []*store.Record, oldKey, newKey *kdf.MasterKey) (map[string]*envelope.DEKInfo, map[string]*envelope.DEKInfo, error) {
	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	originals := make([]*envelope.DEKInfo, len(records))
	rewrapped := make([]*envelope.DEKInfo, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, rec := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return &AbortedError{DocumentID: rec.ID, Err: err}
			}
			info, err := rec.DEKInfo()
			if err != nil {
				return &AbortedError{DocumentID: rec.ID, Err: err}
			}
			next, err := envelope.RewrapDEK(info, oldKey, newKey)
			if err != nil {
				return &AbortedError{DocumentID: rec.ID, Err: err}
			}
			originals[i] = info
			rewrapped[i] = next
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	before := make(map[string]*envelope.DEKInfo, len(records))
	after := make(map[string]*envelope.DEKInfo, len(records))
	for i, rec := range records {
		before[rec.ID] = originals[i]
		after[rec.ID] = rewrapped[i]
	}
	return before, after, nil
}

// revert puts the old DEKs back after a commit step failed. The journal is
// kept when the revert itself fails so the next Recover can finish it.
func (c *Coordinator) revert(ctx context.Context, originals map[string]*envelope.DEKInfo, cause error) error {
	// The caller's context may be the reason the commit failed.
	ctx = context.WithoutCancel(ctx)
	if err := c.Documents.ReplaceDEKs(ctx, originals); err != nil {
		c.Logger.Errorf("Failed to restore document keys after an aborted rotation: %v", err)
		return &AbortedError{Err: errors.Join(cause, err)}
	}
	if err := c.Journal.Clear(ctx); err != nil {
		c.Logger.Warnf("Failed to remove the journal of an aborted rotation: %v", err)
	}
	return &AbortedError{Err: cause}
}

// Recover completes a rotation that was interrupted between writing its
// journal and removing it. If the saved account is the one the journal was
// committing, the re-wrapped DEKs are written again; otherwise the original
// DEKs are restored. Either way the journal is removed afterwards. It needs
// no key, so it can run before the vault is unlocked.
func (c *Coordinator) Recover(ctx context.Context) (Recovery, error) {
	if c.Journal == nil {
		return RecoveryNone, nil
	}
	journal, err := c.Journal.Load(ctx)
	if err != nil || journal == nil {
		return RecoveryNone, err
	}

	account, err := c.Accounts.Load(ctx)
	if err != nil {
		return RecoveryNone, fmt.Errorf("recovering interrupted rotation: %w", err)
	}

	outcome, target := RecoveryRolledBack, journal.Originals
	if journal.Commits(account) {
		outcome, target = RecoveryRolledForward, journal.Rewrapped
	}

	infos := make(map[string]*envelope.DEKInfo, len(target))
	for id, encoded := range target {
		info, err := envelope.DecodeDEKInfo(encoded)
		if err != nil {
			return RecoveryNone, fmt.Errorf("recovering interrupted rotation: document %s: %w", id, err)
		}
		infos[id] = info
	}

	ctx = context.WithoutCancel(ctx)
	if err := c.Documents.ReplaceDEKs(ctx, infos); err != nil {
		return RecoveryNone, fmt.Errorf("recovering interrupted rotation: %w", err)
	}
	if err := c.Journal.Clear(ctx); err != nil {
		return RecoveryNone, err
	}

	c.Logger.Warnf("Interrupted key rotation from %s %s (%d document keys)",
		journal.StartedAt.Format(time.RFC3339), outcome, len(infos))
	return outcome, nil
}

func newJournal(next *store.Account, originals, rewrapped map[string]*envelope.DEKInfo, now time.Time) (*store.RotationJournal, error) {
	journal := &store.RotationJournal{
		StartedAt: now,
		Account:   *next,
		Originals: make(map[string]string, len(originals)),
		Rewrapped: make(map[string]string, len(rewrapped)),
	}
	for id, info := range originals {
		encoded, err := envelope.EncodeDEKInfo(info)
		if err != nil {
			return nil, fmt.Errorf("journaling document %s: %w", id, err)
		}
		journal.Originals[id] = encoded
	}
	for id, info := range rewrapped {
		encoded, err := envelope.EncodeDEKInfo(info)
		if err != nil {
			return nil, fmt.Errorf("journaling document %s: %w", id, err)
		}
		journal.Rewrapped[id] = encoded
	}
	return journal, nil
}

func (c *Coordinator) now() time.Time {
	if c.Clock == nil {
		return time.Now().UTC()
	}
	return c.Clock.Now().UTC()
}
