package rotation

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/PolarWolf314/docvault/internal/envelope"
	kerrors "github.com/PolarWolf314/docvault/internal/errors"
	"github.com/PolarWolf314/docvault/internal/kdf"
	"github.com/PolarWolf314/docvault/internal/session"
	"github.com/PolarWolf314/docvault/internal/store"

	"github.com/coder/quartz"
	"github.com/google/uuid"
)

const (
	oldPassword = "CorrectHorse123!"
	newPassword = "BatteryStaple456?"
)

type vaultFixture struct {
	docs     *store.DocumentStore
	accounts *store.AccountStore
	journal  *store.JournalStore
	ids      []string
	bodies   map[string][]byte
}

// newVault provisions an account for oldPassword and uploads n documents
// encrypted under its key.
func newVault(t *testing.T, n int) *vaultFixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	f := &vaultFixture{
		docs:     store.NewDocumentStore(filepath.Join(dir, "documents")),
		accounts: store.NewAccountStore(filepath.Join(dir, "account.toml")),
		journal:  store.NewJournalStore(filepath.Join(dir, "rotation.toml")),
		bodies:   make(map[string][]byte),
	}

	params, err := kdf.NewParams(100_000)
	if err != nil {
		t.Fatalf("NewParams failed: %v", err)
	}
	key, err := params.Derive([]byte(oldPassword), false)
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	defer key.Destroy()

	account, err := store.NewAccount("ada@example.com", params, key, time.Now().UTC())
	if err != nil {
		t.Fatalf("NewAccount failed: %v", err)
	}
	if err := f.accounts.Save(ctx, account); err != nil {
		t.Fatalf("Save account failed: %v", err)
	}

	for i := 0; i < n; i++ {
		f.upload(t, key, fmt.Sprintf("document %d", i))
	}
	return f
}

func (f *vaultFixture) upload(t *testing.T, key *kdf.MasterKey, content string) string {
	t.Helper()
	data, info, err := envelope.EncryptForUpload([]byte(content), key)
	if err != nil {
		t.Fatalf("EncryptForUpload failed: %v", err)
	}
	payload, err := envelope.NewUploadPayload(data, info, content+".txt", "text/plain", int64(len(content)))
	if err != nil {
		t.Fatalf("NewUploadPayload failed: %v", err)
	}
	rec, err := f.docs.Put(context.Background(), payload)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	f.ids = append(f.ids, rec.ID)
	f.bodies[rec.ID] = payload.EncryptedBody
	return rec.ID
}

func (f *vaultFixture) addLegacy(t *testing.T) string {
	t.Helper()
	iv := make([]byte, envelope.IVSize)
	if _, err := rand.Read(iv); err != nil {
		t.Fatalf("Failed to read random bytes: %v", err)
	}
	rec := &store.Record{
		ID:               uuid.New().String(),
		OriginalFilename: "old.txt",
		MimeType:         "text/plain",
		OriginalSize:     4,
		LegacyIV:         base64.StdEncoding.EncodeToString(iv),
	}
	if err := f.docs.PutRecord(context.Background(), rec, make([]byte, 20)); err != nil {
		t.Fatalf("PutRecord failed: %v", err)
	}
	return rec.ID
}

func (f *vaultFixture) deriveKey(t *testing.T, password string) *kdf.MasterKey {
	t.Helper()
	account, err := f.accounts.Load(context.Background())
	if err != nil {
		t.Fatalf("Load account failed: %v", err)
	}
	key, _, err := account.DeriveKey([]byte(password), false)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	t.Cleanup(key.Destroy)
	return key
}

func (f *vaultFixture) verifies(t *testing.T, password string) bool {
	t.Helper()
	account, err := f.accounts.Load(context.Background())
	if err != nil {
		t.Fatalf("Load account failed: %v", err)
	}
	return account.Verify(f.deriveKey(t, password))
}

func (f *vaultFixture) open(t *testing.T, id string, key *kdf.MasterKey) ([]byte, error) {
	t.Helper()
	ctx := context.Background()
	rec, err := f.docs.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	body, err := f.docs.ReadBody(ctx, id)
	if err != nil {
		t.Fatalf("ReadBody failed: %v", err)
	}
	scheme, err := rec.Scheme()
	if err != nil {
		t.Fatalf("Scheme failed: %v", err)
	}
	return envelope.Open(scheme, body, rec.OriginalSize, envelope.Credentials{MasterKey: key})
}

func TestRotate_ReWrapsEveryDocument(t *testing.T) {
	f := newVault(t, 5)
	f.addLegacy(t)
	c := &Coordinator{Journal: f.journal, Documents: f.docs, Accounts: f.accounts, Concurrency: 2}

	result, err := c.Rotate(context.Background(), RotateRequest{
		OldPassword: []byte(oldPassword),
		NewPassword: []byte(newPassword),
	})
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if result.Rotated != 5 || result.Skipped != 1 {
		t.Errorf("Expected 5 rotated and 1 skipped, got %+v", result)
	}
	if result.Iterations != 100_000 {
		t.Errorf("Expected iterations to be kept at 100000, got %d", result.Iterations)
	}

	if !f.verifies(t, newPassword) {
		t.Errorf("Expected the new password to verify after rotation")
	}
	if f.verifies(t, oldPassword) {
		t.Errorf("Expected the old password to stop verifying after rotation")
	}

	newKey := f.deriveKey(t, newPassword)
	oldKey := f.deriveKey(t, oldPassword)
	for i, id := range f.ids {
		got, err := f.open(t, id, newKey)
		if err != nil {
			t.Fatalf("Decrypt with new key failed for %s: %v", id, err)
		}
		if want := fmt.Sprintf("document %d", i); string(got) != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
		if _, err := f.open(t, id, oldKey); !errors.Is(err, kerrors.ErrDecryptFailed) {
			t.Errorf("Expected the old key to fail for %s, got %v", id, err)
		}

		body, err := f.docs.ReadBody(context.Background(), id)
		if err != nil {
			t.Fatalf("ReadBody failed: %v", err)
		}
		if !bytes.Equal(body, f.bodies[id]) {
			t.Errorf("Expected the body of %s to be untouched", id)
		}
	}
}

func TestRotate_NewIterations(t *testing.T) {
	f := newVault(t, 1)
	c := &Coordinator{Journal: f.journal, Documents: f.docs, Accounts: f.accounts}

	result, err := c.Rotate(context.Background(), RotateRequest{
		OldPassword: []byte(oldPassword),
		NewPassword: []byte(newPassword),
		Iterations:  250_000,
	})
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if result.Iterations != 250_000 {
		t.Errorf("Expected 250000 iterations, got %d", result.Iterations)
	}

	account, err := f.accounts.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if account.KeyDerivationIterations != 250_000 {
		t.Errorf("Expected the account to record 250000 iterations, got %d", account.KeyDerivationIterations)
	}
	if account.RotatedAt.IsZero() {
		t.Errorf("Expected RotatedAt to be set")
	}
}

func TestRotate_InvalidIterations(t *testing.T) {
	f := newVault(t, 1)
	c := &Coordinator{Journal: f.journal, Documents: f.docs, Accounts: f.accounts}

	_, err := c.Rotate(context.Background(), RotateRequest{
		OldPassword: []byte(oldPassword),
		NewPassword: []byte(newPassword),
		Iterations:  1000,
	})
	if !errors.Is(err, kerrors.ErrKeyDerivation) {
		t.Errorf("Expected ErrKeyDerivation, got %v", err)
	}
	if !f.verifies(t, oldPassword) {
		t.Errorf("Expected the old password to remain valid")
	}
}

func TestRotate_WrongOldPassword(t *testing.T) {
	f := newVault(t, 2)
	c := &Coordinator{Journal: f.journal, Documents: f.docs, Accounts: f.accounts}

	_, err := c.Rotate(context.Background(), RotateRequest{
		OldPassword: []byte("wrongpassword"),
		NewPassword: []byte(newPassword),
	})
	if !errors.Is(err, kerrors.ErrAuthentication) {
		t.Fatalf("Expected ErrAuthentication, got %v", err)
	}
	if !f.verifies(t, oldPassword) {
		t.Errorf("Expected the old password to remain valid")
	}
}

func TestRotate_AbortsOnUnwrapFailure(t *testing.T) {
	f := newVault(t, 3)

	// A document wrapped under some other key cannot be re-wrapped.
	raw := make([]byte, kdf.KeySize)
	if _, err := rand.Read(raw); err != nil {
		t.Fatalf("Failed to read random bytes: %v", err)
	}
	stranger, err := kdf.ImportMasterKey(raw, false)
	if err != nil {
		t.Fatalf("ImportMasterKey failed: %v", err)
	}
	defer stranger.Destroy()
	badID := f.upload(t, stranger, "foreign document")

	c := &Coordinator{Journal: f.journal, Documents: f.docs, Accounts: f.accounts}
	_, err = c.Rotate(context.Background(), RotateRequest{
		OldPassword: []byte(oldPassword),
		NewPassword: []byte(newPassword),
	})
	if !errors.Is(err, kerrors.ErrRotationAborted) {
		t.Fatalf("Expected ErrRotationAborted, got %v", err)
	}
	var aborted *AbortedError
	if !errors.As(err, &aborted) || aborted.DocumentID != badID {
		t.Errorf("Expected the abort to name %s, got %v", badID, err)
	}
	if !errors.Is(err, kerrors.ErrDecryptFailed) {
		t.Errorf("Expected the cause to be a decrypt failure, got %v", err)
	}

	if !f.verifies(t, oldPassword) {
		t.Errorf("Expected the old password to remain valid")
	}
	oldKey := f.deriveKey(t, oldPassword)
	for _, id := range f.ids[:3] {
		if _, err := f.open(t, id, oldKey); err != nil {
			t.Errorf("Expected %s to still open with the old key, got %v", id, err)
		}
	}
}

type failingAccounts struct {
	*store.AccountStore
}

func (failingAccounts) Save(context.Context, *store.Account) error {
	return errors.New("disk full")
}

func TestRotate_AccountSaveFailureRestoresDEKs(t *testing.T) {
	f := newVault(t, 3)
	c := &Coordinator{Journal: f.journal, Documents: f.docs, Accounts: failingAccounts{f.accounts}}

	_, err := c.Rotate(context.Background(), RotateRequest{
		OldPassword: []byte(oldPassword),
		NewPassword: []byte(newPassword),
	})
	if !errors.Is(err, kerrors.ErrRotationAborted) {
		t.Fatalf("Expected ErrRotationAborted, got %v", err)
	}

	oldKey := f.deriveKey(t, oldPassword)
	for _, id := range f.ids {
		if _, err := f.open(t, id, oldKey); err != nil {
			t.Errorf("Expected %s to open with the old key after revert, got %v", id, err)
		}
	}
}

func TestRotate_SwapsSessionKey(t *testing.T) {
	ctx := context.Background()
	f := newVault(t, 2)

	sessions := session.New(session.Options{
		Store:   session.NewMemoryStore(),
		Clock:   quartz.NewMock(t),
		Timeout: -1,
	})
	account, err := f.accounts.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	current, _, err := account.DeriveKey([]byte(oldPassword), true)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	if err := sessions.SetMasterKey(ctx, current); err != nil {
		t.Fatalf("SetMasterKey failed: %v", err)
	}

	var reasons []session.Reason
	unsubscribe := sessions.Subscribe(func(ev session.Event) {
		reasons = append(reasons, ev.Reason)
	})
	defer unsubscribe()

	c := &Coordinator{Journal: f.journal, Documents: f.docs, Accounts: f.accounts, Sessions: sessions}
	if _, err := c.Rotate(ctx, RotateRequest{
		OldPassword: []byte(oldPassword),
		NewPassword: []byte(newPassword),
	}); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	if !current.Destroyed() {
		t.Errorf("Expected the previous session key to be destroyed")
	}
	if len(reasons) != 1 || reasons[0] != session.ReasonRotated {
		t.Errorf("Expected a single rotated event, got %v", reasons)
	}

	err = sessions.WithKey(ctx, func(key *kdf.MasterKey) error {
		if !key.Exportable() {
			t.Errorf("Expected the new session key to stay exportable")
		}
		_, err := f.open(t, f.ids[0], key)
		return err
	})
	if err != nil {
		t.Errorf("Expected the session key to open documents after rotation, got %v", err)
	}
}

func TestRotate_FailureKeepsSessionKey(t *testing.T) {
	ctx := context.Background()
	f := newVault(t, 1)

	sessions := session.New(session.Options{Clock: quartz.NewMock(t), Timeout: -1})
	current := f.deriveKey(t, oldPassword)
	if err := sessions.SetMasterKey(ctx, current); err != nil {
		t.Fatalf("SetMasterKey failed: %v", err)
	}

	c := &Coordinator{Journal: f.journal, Documents: f.docs, Accounts: f.accounts, Sessions: sessions}
	if _, err := c.Rotate(ctx, RotateRequest{
		OldPassword: []byte("wrongpassword"),
		NewPassword: []byte(newPassword),
	}); !errors.Is(err, kerrors.ErrAuthentication) {
		t.Fatalf("Expected ErrAuthentication, got %v", err)
	}

	if current.Destroyed() || sessions.State() != session.StateLoaded {
		t.Errorf("Expected the session key to survive a failed rotation")
	}
}

func TestRotate_EmptyVault(t *testing.T) {
	f := newVault(t, 0)
	c := &Coordinator{Journal: f.journal, Documents: f.docs, Accounts: f.accounts}

	result, err := c.Rotate(context.Background(), RotateRequest{
		OldPassword: []byte(oldPassword),
		NewPassword: []byte(newPassword),
	})
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if result.Rotated != 0 {
		t.Errorf("Expected nothing to rotate, got %d", result.Rotated)
	}
	if !f.verifies(t, newPassword) {
		t.Errorf("Expected the new password to verify")
	}
}

func TestRotate_RequiresJournal(t *testing.T) {
	f := newVault(t, 1)
	c := &Coordinator{Documents: f.docs, Accounts: f.accounts}

	_, err := c.Rotate(context.Background(), RotateRequest{
		OldPassword: []byte(oldPassword),
		NewPassword: []byte(newPassword),
	})
	if !errors.Is(err, kerrors.ErrRotationAborted) {
		t.Fatalf("Expected ErrRotationAborted, got %v", err)
	}
	if !f.verifies(t, oldPassword) {
		t.Errorf("Expected the old password to remain valid")
	}
}

func TestRotate_RemovesJournalOnSuccess(t *testing.T) {
	f := newVault(t, 2)
	c := &Coordinator{Journal: f.journal, Documents: f.docs, Accounts: f.accounts}

	if _, err := c.Rotate(context.Background(), RotateRequest{
		OldPassword: []byte(oldPassword),
		NewPassword: []byte(newPassword),
	}); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if f.journalPending(t) {
		t.Errorf("Expected the journal to be removed after a committed rotation")
	}
}

// errCrash stands in for the process dying mid-commit.
var errCrash = errors.New("process killed")

// crash runs rotate and requires it to die with errCrash, leaving whatever
// it wrote on disk.
func crash(t *testing.T, c *Coordinator) {
	t.Helper()
	defer func() {
		if r := recover(); r != errCrash {
			t.Fatalf("Expected the rotation to be killed, got %v", r)
		}
	}()
	_, _ = c.Rotate(context.Background(), RotateRequest{
		OldPassword: []byte(oldPassword),
		NewPassword: []byte(newPassword),
	})
}

func (f *vaultFixture) journalPending(t *testing.T) bool {
	t.Helper()
	journal, err := f.journal.Load(context.Background())
	if err != nil {
		t.Fatalf("Load journal failed: %v", err)
	}
	return journal != nil
}

// recoverWith runs Recover on fresh, healthy stores as the next process
// would.
func (f *vaultFixture) recoverWith(t *testing.T, want Recovery) {
	t.Helper()
	c := &Coordinator{Journal: f.journal, Documents: f.docs, Accounts: f.accounts}
	got, err := c.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if got != want {
		t.Errorf("Expected recovery %s, got %s", want, got)
	}
	if f.journalPending(t) {
		t.Errorf("Expected the journal to be removed after recovery")
	}
}

func (f *vaultFixture) requireAllOpen(t *testing.T, password string) {
	t.Helper()
	if !f.verifies(t, password) {
		t.Fatalf("Expected %q to verify", password)
	}
	key := f.deriveKey(t, password)
	for i, id := range f.ids {
		got, err := f.open(t, id, key)
		if err != nil {
			t.Errorf("Expected %s to open with the %q key, got %v", id, password, err)
			continue
		}
		if want := fmt.Sprintf("document %d", i); string(got) != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	}
}

type crashingAccounts struct {
	*store.AccountStore
}

func (crashingAccounts) Save(context.Context, *store.Account) error {
	panic(errCrash)
}

func TestRotate_CrashBeforeAccountSaveRollsBack(t *testing.T) {
	f := newVault(t, 3)
	crash(t, &Coordinator{Journal: f.journal, Documents: f.docs, Accounts: crashingAccounts{f.accounts}})

	if !f.journalPending(t) {
		t.Fatalf("Expected the crash to leave a journal behind")
	}
	// Before recovery the DEKs are already under the new key.
	oldKey := f.deriveKey(t, oldPassword)
	if _, err := f.open(t, f.ids[0], oldKey); !errors.Is(err, kerrors.ErrDecryptFailed) {
		t.Fatalf("Expected the crash to leave re-wrapped DEKs, got %v", err)
	}

	f.recoverWith(t, RecoveryRolledBack)
	f.requireAllOpen(t, oldPassword)
}

type crashingDocuments struct {
	*store.DocumentStore
}

// ReplaceDEKs writes the first half of updates and then dies.
func (d crashingDocuments) ReplaceDEKs(ctx context.Context, updates map[string]*envelope.DEKInfo) error {
	ids := make([]string, 0, len(updates))
	for id := range updates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	half := make(map[string]*envelope.DEKInfo)
	for _, id := range ids[:len(ids)/2] {
		half[id] = updates[id]
	}
	if err := d.DocumentStore.ReplaceDEKs(ctx, half); err != nil {
		return err
	}
	panic(errCrash)
}

func TestRotate_CrashMidDEKWriteRollsBack(t *testing.T) {
	f := newVault(t, 4)
	crash(t, &Coordinator{Journal: f.journal, Documents: crashingDocuments{f.docs}, Accounts: f.accounts})

	f.recoverWith(t, RecoveryRolledBack)
	f.requireAllOpen(t, oldPassword)
}

type crashingJournal struct {
	*store.JournalStore
}

func (crashingJournal) Clear(context.Context) error {
	panic(errCrash)
}

func TestRotate_CrashAfterAccountSaveRollsForward(t *testing.T) {
	f := newVault(t, 3)
	f.addLegacy(t)
	crash(t, &Coordinator{Journal: crashingJournal{f.journal}, Documents: f.docs, Accounts: f.accounts})

	if !f.journalPending(t) {
		t.Fatalf("Expected the crash to leave a journal behind")
	}

	f.recoverWith(t, RecoveryRolledForward)
	f.requireAllOpen(t, newPassword)
	if f.verifies(t, oldPassword) {
		t.Errorf("Expected the old password to stop verifying")
	}
}

func TestRecover_NothingPending(t *testing.T) {
	f := newVault(t, 1)
	f.recoverWith(t, RecoveryNone)
	f.requireAllOpen(t, oldPassword)
}

func TestRotate_RecoversBeforeRotating(t *testing.T) {
	f := newVault(t, 2)
	crash(t, &Coordinator{Journal: f.journal, Documents: f.docs, Accounts: crashingAccounts{f.accounts}})

	c := &Coordinator{Journal: f.journal, Documents: f.docs, Accounts: f.accounts}
	result, err := c.Rotate(context.Background(), RotateRequest{
		OldPassword: []byte(oldPassword),
		NewPassword: []byte(newPassword),
	})
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if result.Rotated != 2 {
		t.Errorf("Expected 2 rotated, got %d", result.Rotated)
	}
	f.requireAllOpen(t, newPassword)
}
