package session

import (
	"context"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	kerrors "github.com/PolarWolf314/docvault/internal/errors"
	"github.com/PolarWolf314/docvault/internal/kdf"

	"github.com/coder/quartz"
)

func newTestKey(t *testing.T, exportable bool) *kdf.MasterKey {
	t.Helper()
	raw := make([]byte, kdf.KeySize)
	if _, err := rand.Read(raw); err != nil {
		t.Fatalf("Failed to read random bytes: %v", err)
	}
	key, err := kdf.ImportMasterKey(raw, exportable)
	if err != nil {
		t.Fatalf("Failed to import key: %v", err)
	}
	return key
}

func newTestManager(t *testing.T, store Store) (*Manager, *quartz.Mock) {
	t.Helper()
	mClock := quartz.NewMock(t)
	m := New(Options{
		Store:   store,
		Clock:   mClock,
		Timeout: 10 * time.Minute,
	})
	return m, mClock
}

func TestSessionScenario(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m, _ := newTestManager(t, store)

	if err := m.SetMasterKey(ctx, newTestKey(t, true)); err != nil {
		t.Fatalf("SetMasterKey failed: %v", err)
	}
	if !m.HasMasterKey() {
		t.Fatalf("Expected HasMasterKey to be true right after SetMasterKey")
	}

	if err := m.ClearMasterKey(ctx); err != nil {
		t.Fatalf("ClearMasterKey failed: %v", err)
	}
	if m.HasMasterKey() {
		t.Errorf("Expected HasMasterKey to be false after ClearMasterKey")
	}

	rec, err := store.Restore(ctx)
	if err != nil {
		t.Fatalf("store.Restore failed: %v", err)
	}
	if rec != nil {
		t.Errorf("Expected no stored record after clear, got %+v", rec)
	}
}

func TestSetMasterKey_PersistsMaterialOnlyWhenExportable(t *testing.T) {
	ctx := context.Background()

	for _, exportable := range []bool{true, false} {
		store := NewMemoryStore()
		m, mClock := newTestManager(t, store)

		if err := m.SetMasterKey(ctx, newTestKey(t, exportable)); err != nil {
			t.Fatalf("SetMasterKey failed: %v", err)
		}

		rec, err := store.Restore(ctx)
		if err != nil || rec == nil {
			t.Fatalf("Expected a stored record, got %v, %v", rec, err)
		}
		if !rec.Active {
			t.Errorf("Expected the active flag to be set")
		}
		if got := len(rec.KeyMaterial) > 0; got != exportable {
			t.Errorf("exportable=%t: expected material stored=%t, got %t", exportable, exportable, got)
		}
		if want := mClock.Now().Add(10 * time.Minute); !rec.ExpiresAt.Equal(want) {
			t.Errorf("Expected ExpiresAt %s, got %s", want, rec.ExpiresAt)
		}
	}
}

func TestSetMasterKey_ReplacesAndDestroysPrevious(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, nil)

	first := newTestKey(t, false)
	second := newTestKey(t, false)
	if err := m.SetMasterKey(ctx, first); err != nil {
		t.Fatalf("SetMasterKey failed: %v", err)
	}
	if err := m.SetMasterKey(ctx, second); err != nil {
		t.Fatalf("SetMasterKey failed: %v", err)
	}

	if !first.Destroyed() {
		t.Errorf("Expected the replaced key to be destroyed")
	}
	err := m.WithKey(ctx, func(key *kdf.MasterKey) error {
		if key != second {
			t.Errorf("Expected WithKey to see the newest key")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithKey failed: %v", err)
	}
}

func TestExpiry(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	m, mClock := newTestManager(t, store)

	var (
		mu     sync.Mutex
		events []Event
	)
	unsubscribe := m.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})
	defer unsubscribe()

	key := newTestKey(t, true)
	if err := m.SetMasterKey(ctx, key); err != nil {
		t.Fatalf("SetMasterKey failed: %v", err)
	}

	mClock.Advance(9 * time.Minute)
	if !m.HasMasterKey() {
		t.Fatalf("Expected key to be loaded before the timeout")
	}

	mClock.Advance(time.Minute).MustWait(ctx)

	if m.HasMasterKey() {
		t.Errorf("Expected key to be gone after the timeout")
	}
	if !key.Destroyed() {
		t.Errorf("Expected expired key to be destroyed")
	}
	if m.State() != StateCleared {
		t.Errorf("Expected state %s, got %s", StateCleared, m.State())
	}
	if rec, _ := store.Restore(ctx); rec != nil {
		t.Errorf("Expected expiry to clear the store, got %+v", rec)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0].Reason != ReasonSet || events[1].Reason != ReasonExpired {
		t.Errorf("Expected [set expired] events, got %+v", events)
	}
}

func TestExpiry_StaleTimerIgnoredAfterReload(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m, mClock := newTestManager(t, nil)

	if err := m.SetMasterKey(ctx, newTestKey(t, false)); err != nil {
		t.Fatalf("SetMasterKey failed: %v", err)
	}
	mClock.Advance(5 * time.Minute)
	if err := m.SetMasterKey(ctx, newTestKey(t, false)); err != nil {
		t.Fatalf("SetMasterKey failed: %v", err)
	}

	// The first timer was stopped; the next event is the second key's expiry.
	mClock.Advance(5 * time.Minute)
	if !m.HasMasterKey() {
		t.Fatalf("Expected the reloaded key to outlive the first timeout")
	}
	mClock.Advance(5 * time.Minute).MustWait(ctx)
	if m.HasMasterKey() {
		t.Errorf("Expected the reloaded key to expire on its own timeout")
	}
}

func TestWithKey_NoKey(t *testing.T) {
	m, _ := newTestManager(t, nil)

	called := false
	err := m.WithKey(context.Background(), func(*kdf.MasterKey) error {
		called = true
		return nil
	})
	if !errors.Is(err, kerrors.ErrSessionExpired) {
		t.Errorf("Expected ErrSessionExpired, got %v", err)
	}
	if called {
		t.Errorf("Expected fn not to run without a key")
	}
}

func TestRestore_FromStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, _ := newTestManager(t, store)
	if err := first.SetMasterKey(ctx, newTestKey(t, true)); err != nil {
		t.Fatalf("SetMasterKey failed: %v", err)
	}

	// A second manager over the same store stands in for a new process.
	second, _ := newTestManager(t, store)
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if !second.HasMasterKey() {
		t.Errorf("Expected restored manager to hold a key")
	}

	var a, b []byte
	_ = first.WithKey(ctx, func(k *kdf.MasterKey) error { a, _ = k.Export(); return nil })
	_ = second.WithKey(ctx, func(k *kdf.MasterKey) error { b, _ = k.Export(); return nil })
	if string(a) != string(b) || len(a) != kdf.KeySize {
		t.Errorf("Expected restored key bits to match the original")
	}
}

func TestRestore_ExpiredRecord(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m, mClock := newTestManager(t, store)

	if err := store.Persist(ctx, Record{
		Active:      true,
		LoadedAt:    mClock.Now().Add(-time.Hour),
		ExpiresAt:   mClock.Now().Add(-time.Minute),
		KeyMaterial: make([]byte, kdf.KeySize),
	}); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	if err := m.Restore(ctx); !errors.Is(err, kerrors.ErrSessionExpired) {
		t.Errorf("Expected ErrSessionExpired, got %v", err)
	}
	if rec, _ := store.Restore(ctx); rec != nil {
		t.Errorf("Expected expired record to be cleared, got %+v", rec)
	}
}

type failingStore struct {
	MemoryStore
	restoreErr error
	cleared    int
}

func (s *failingStore) Restore(ctx context.Context) (*Record, error) {
	if s.restoreErr != nil {
		return nil, s.restoreErr
	}
	return s.MemoryStore.Restore(ctx)
}

func (s *failingStore) Clear(ctx context.Context) error {
	s.cleared++
	return s.MemoryStore.Clear(ctx)
}

func TestRestore_BoundedAttempts(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{restoreErr: errors.New("disk on fire")}
	m := New(Options{Store: store, Clock: quartz.NewMock(t), MaxRestoreAttempts: 3})

	for i := 0; i < 2; i++ {
		err := m.Restore(ctx)
		if err == nil || errors.Is(err, kerrors.ErrSessionExpired) {
			t.Fatalf("Attempt %d: expected a plain restore error, got %v", i+1, err)
		}
	}
	if store.cleared != 0 {
		t.Fatalf("Expected no clear before the attempt limit, got %d", store.cleared)
	}

	if err := m.Restore(ctx); !errors.Is(err, kerrors.ErrSessionExpired) {
		t.Errorf("Expected ErrSessionExpired after the attempt limit, got %v", err)
	}
	if store.cleared != 1 {
		t.Errorf("Expected the stale record to be cleared once, got %d", store.cleared)
	}
}

func TestHasMasterKey_TriggersBackgroundRestore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	first, _ := newTestManager(t, store)
	if err := first.SetMasterKey(ctx, newTestKey(t, true)); err != nil {
		t.Fatalf("SetMasterKey failed: %v", err)
	}

	second, _ := newTestManager(t, store)
	restored := make(chan struct{})
	unsubscribe := second.Subscribe(func(ev Event) {
		if ev.Reason == ReasonRestored {
			close(restored)
		}
	})
	defer unsubscribe()

	if second.HasMasterKey() {
		t.Fatalf("Expected HasMasterKey to report false while restoring")
	}

	select {
	case <-restored:
	case <-ctx.Done():
		t.Fatalf("Timed out waiting for background restore")
	}
	if !second.HasMasterKey() {
		t.Errorf("Expected key to be loaded after background restore")
	}
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("restores when memory is empty", func(t *testing.T) {
		store := NewMemoryStore()
		first, _ := newTestManager(t, store)
		if err := first.SetMasterKey(ctx, newTestKey(t, true)); err != nil {
			t.Fatalf("SetMasterKey failed: %v", err)
		}

		second, _ := newTestManager(t, store)
		if err := second.Reconcile(ctx); err != nil {
			t.Fatalf("Reconcile failed: %v", err)
		}
		if !second.HasMasterKey() {
			t.Errorf("Expected Reconcile to restore the key")
		}
	})

	t.Run("clears a flag without material", func(t *testing.T) {
		store := NewMemoryStore()
		m, mClock := newTestManager(t, store)
		_ = store.Persist(ctx, Record{Active: true, LoadedAt: mClock.Now(), ExpiresAt: mClock.Now().Add(time.Hour)})

		if err := m.Reconcile(ctx); err != nil {
			t.Fatalf("Reconcile failed: %v", err)
		}
		if rec, _ := store.Restore(ctx); rec != nil {
			t.Errorf("Expected stale flag to be cleared, got %+v", rec)
		}
	})

	t.Run("persists again when the store lost its record", func(t *testing.T) {
		store := NewMemoryStore()
		m, _ := newTestManager(t, store)
		if err := m.SetMasterKey(ctx, newTestKey(t, false)); err != nil {
			t.Fatalf("SetMasterKey failed: %v", err)
		}
		_ = store.Clear(ctx)

		if err := m.Reconcile(ctx); err != nil {
			t.Fatalf("Reconcile failed: %v", err)
		}
		rec, _ := store.Restore(ctx)
		if rec == nil || !rec.Active {
			t.Errorf("Expected the record to be persisted again, got %+v", rec)
		}
	})
}

func TestReconcile_CorruptSessionFile(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	path := filepath.Join(store.Dir, sessionFileName)
	if err := os.WriteFile(path, []byte("{corrupt"), 0600); err != nil {
		t.Fatalf("Failed to write session file: %v", err)
	}

	m := New(Options{Store: store, Clock: quartz.NewMock(t), MaxRestoreAttempts: 3})
	for i := 0; i < 2; i++ {
		if err := m.Reconcile(ctx); err == nil {
			t.Fatalf("Attempt %d: expected a parse error", i+1)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("Attempt %d: expected the file to survive below the limit, got %v", i+1, err)
		}
	}

	if err := m.Reconcile(ctx); err != nil {
		t.Errorf("Expected the final attempt to discard the session quietly, got %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected the corrupt session file to be removed, got %v", err)
	}
	if m.State() != StateCleared {
		t.Errorf("Expected state cleared, got %v", m.State())
	}

	if err := m.Reconcile(ctx); err != nil {
		t.Errorf("Expected Reconcile to be quiet once the file is gone, got %v", err)
	}
}

func TestReconcile_CorruptSessionFileWhileLoaded(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	m, _ := newTestManager(t, store)
	if err := m.SetMasterKey(ctx, newTestKey(t, true)); err != nil {
		t.Fatalf("SetMasterKey failed: %v", err)
	}
	path := filepath.Join(store.Dir, sessionFileName)
	if err := os.WriteFile(path, []byte("{corrupt"), 0600); err != nil {
		t.Fatalf("Failed to write session file: %v", err)
	}

	if err := m.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	rec, err := store.Restore(ctx)
	if err != nil || rec == nil || !rec.Active || len(rec.KeyMaterial) == 0 {
		t.Errorf("Expected the loaded key to be persisted over the corrupt file, got %+v, %v", rec, err)
	}
}

func TestStart_ReconcilesOnTicker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	mClock := quartz.NewMock(t)
	m := New(Options{Store: store, Clock: mClock, Timeout: -1, ReconcileInterval: time.Minute})

	tickerCtx, stop := context.WithCancel(ctx)
	defer stop()
	m.Start(tickerCtx)

	other := New(Options{Store: store, Clock: mClock, Timeout: -1})
	if err := other.SetMasterKey(ctx, newTestKey(t, true)); err != nil {
		t.Fatalf("SetMasterKey failed: %v", err)
	}

	mClock.Advance(time.Minute).MustWait(ctx)

	if !m.HasMasterKey() {
		t.Errorf("Expected the ticker to reconcile and restore the key")
	}
}

func TestExclusive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m, _ := newTestManager(t, store)

	old := newTestKey(t, true)
	if err := m.SetMasterKey(ctx, old); err != nil {
		t.Fatalf("SetMasterKey failed: %v", err)
	}

	t.Run("error keeps the current key", func(t *testing.T) {
		err := m.Exclusive(ctx, func(current *kdf.MasterKey) (*kdf.MasterKey, error) {
			if current != old {
				t.Errorf("Expected Exclusive to hand over the active key")
			}
			return nil, kerrors.ErrRotationAborted
		})
		if !errors.Is(err, kerrors.ErrRotationAborted) {
			t.Errorf("Expected ErrRotationAborted, got %v", err)
		}
		if old.Destroyed() {
			t.Errorf("Expected the current key to survive a failed swap")
		}
	})

	t.Run("new key is swapped in", func(t *testing.T) {
		next := newTestKey(t, true)
		err := m.Exclusive(ctx, func(*kdf.MasterKey) (*kdf.MasterKey, error) {
			return next, nil
		})
		if err != nil {
			t.Fatalf("Exclusive failed: %v", err)
		}
		if !old.Destroyed() {
			t.Errorf("Expected the old key to be destroyed after the swap")
		}
		_ = m.WithKey(ctx, func(k *kdf.MasterKey) error {
			if k != next {
				t.Errorf("Expected WithKey to see the swapped key")
			}
			return nil
		})
	})
}

func TestExclusive_BlocksReaders(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m, _ := newTestManager(t, nil)
	if err := m.SetMasterKey(ctx, newTestKey(t, false)); err != nil {
		t.Fatalf("SetMasterKey failed: %v", err)
	}
	next := newTestKey(t, false)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- m.Exclusive(ctx, func(*kdf.MasterKey) (*kdf.MasterKey, error) {
			close(entered)
			<-release
			return next, nil
		})
	}()
	<-entered

	seen := make(chan *kdf.MasterKey, 1)
	go func() {
		_ = m.WithKey(ctx, func(k *kdf.MasterKey) error {
			seen <- k
			return nil
		})
	}()

	select {
	case <-seen:
		t.Fatalf("Expected WithKey to block while Exclusive is running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Exclusive failed: %v", err)
	}
	select {
	case k := <-seen:
		if k != next {
			t.Errorf("Expected the blocked reader to see the rotated key")
		}
	case <-ctx.Done():
		t.Fatalf("Timed out waiting for WithKey")
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, nil)

	var got []Reason
	unsubscribe := m.Subscribe(func(ev Event) { got = append(got, ev.Reason) })

	_ = m.SetMasterKey(ctx, newTestKey(t, false))
	unsubscribe()
	_ = m.ClearMasterKey(ctx)

	if len(got) != 1 || got[0] != ReasonSet {
		t.Errorf("Expected only the set event before unsubscribe, got %v", got)
	}
}
