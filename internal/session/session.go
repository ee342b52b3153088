package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	kerrors "github.com/PolarWolf314/docvault/internal/errors"
	"github.com/PolarWolf314/docvault/internal/kdf"
	logger "github.com/PolarWolf314/docvault/internal/logging"

	"github.com/awnumar/memguard"
	"github.com/coder/quartz"
)

const (
	// DefaultTimeout is how long a loaded key stays usable.
	DefaultTimeout = 30 * time.Minute

	// DefaultMaxRestoreAttempts bounds consecutive failed restorations
	// before the stored flags are treated as stale and cleared.
	DefaultMaxRestoreAttempts = 3
)

// Options configures a Manager. Zero values fall back to the defaults above,
// an in-memory store and the real clock.
type Options struct {
	Store Store
	Clock quartz.Clock

	// Timeout is the session lifetime. Negative disables expiry.
	Timeout time.Duration

	// ReconcileInterval is the period used by Start. Zero disables the
	// ticker.
	ReconcileInterval time.Duration

	MaxRestoreAttempts int
	Logger             logger.Logger
}

// Manager owns the single active master key of a process.
//
// The key slot is guarded by a read-write lock: WithKey holds the read side
// for the duration of an encrypt or decrypt, Exclusive holds the write side
// for a whole rotation. Listeners are always notified after the lock is
// released.
type Manager struct {
	store      Store
	clock      quartz.Clock
	timeout    time.Duration
	interval   time.Duration
	maxRestore int
	log        logger.Logger

	mu        sync.RWMutex
	key       *kdf.MasterKey
	state     State
	loadedAt  time.Time
	expiresAt time.Time
	timer     *quartz.Timer
	gen       uint64
	failures  int

	restoring atomic.Bool

	listenersMu sync.Mutex
	listeners   map[int]func(Event)
	nextID      int
}

func New(opts Options) *Manager {
	m := &Manager{
		store:      opts.Store,
		clock:      opts.Clock,
		timeout:    opts.Timeout,
		interval:   opts.ReconcileInterval,
		maxRestore: opts.MaxRestoreAttempts,
		log:        opts.Logger,
		listeners:  make(map[int]func(Event)),
	}
	if m.store == nil {
		m.store = NewMemoryStore()
	}
	if m.clock == nil {
		m.clock = quartz.NewReal()
	}
	if m.timeout == 0 {
		m.timeout = DefaultTimeout
	}
	if m.maxRestore <= 0 {
		m.maxRestore = DefaultMaxRestoreAttempts
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ExpiresAt returns when the loaded key expires, or the zero time.
func (m *Manager) ExpiresAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.loadedLocked() {
		return time.Time{}
	}
	return m.expiresAt
}

// SetMasterKey makes key the active key, replacing and destroying any
// previous one, and persists the session record. The Manager takes
// ownership of key.
func (m *Manager) SetMasterKey(ctx context.Context, key *kdf.MasterKey) error {
	if key == nil || key.Destroyed() {
		return fmt.Errorf("cannot load an empty key: %w", kerrors.ErrSessionExpired)
	}

	m.mu.Lock()
	m.installLocked(key, m.clock.Now().Add(m.timeout))
	err := m.persistLocked(ctx)
	ev := m.eventLocked(ReasonSet)
	m.mu.Unlock()

	m.notify(ev)
	return err
}

// ClearMasterKey destroys the active key and removes the stored record.
// The store is cleared even when no key is loaded in this process.
func (m *Manager) ClearMasterKey(ctx context.Context) error {
	m.mu.Lock()
	err := m.clearLocked(ctx)
	ev := m.eventLocked(ReasonCleared)
	m.mu.Unlock()

	m.notify(ev)
	return err
}

// HasMasterKey reports whether a usable key is loaded. When the store still
// carries an active record but this process holds no key, a restore is
// started in the background and HasMasterKey returns false.
func (m *Manager) HasMasterKey() bool {
	m.mu.RLock()
	loaded := m.loadedLocked()
	m.mu.RUnlock()
	if loaded {
		return true
	}

	rec, err := m.store.Restore(context.Background())
	if err != nil || rec == nil || !rec.Active {
		return false
	}
	if m.restoring.CompareAndSwap(false, true) {
		go func() {
			defer m.restoring.Store(false)
			if err := m.Restore(context.Background()); err != nil && !errors.Is(err, kerrors.ErrSessionExpired) {
				m.log.Warnf("Background session restore failed: %v", err)
			}
		}()
	}
	return false
}

// Restore loads the key from the store. Expired or material-less records
// are cleared and reported as ErrSessionExpired. After MaxRestoreAttempts
// consecutive failures the record is cleared as stale.
func (m *Manager) Restore(ctx context.Context) error {
	m.mu.Lock()
	if m.loadedLocked() {
		m.mu.Unlock()
		return nil
	}

	rec, err := m.store.Restore(ctx)
	if err != nil {
		err = m.restoreFailedLocked(ctx, err)
		m.mu.Unlock()
		return err
	}
	if rec == nil || !rec.Active {
		m.mu.Unlock()
		return kerrors.ErrSessionExpired
	}

	now := m.clock.Now()
	if rec.Expired(now) || len(rec.KeyMaterial) == 0 {
		m.log.Debugf("Discarding session record (expired=%t, material=%t)", rec.Expired(now), len(rec.KeyMaterial) > 0)
		clearErr := m.clearLocked(ctx)
		ev := m.eventLocked(ReasonExpired)
		m.mu.Unlock()
		m.notify(ev)
		if clearErr != nil {
			return clearErr
		}
		return kerrors.ErrSessionExpired
	}

	key, err := kdf.ImportMasterKey(rec.KeyMaterial, true)
	if err != nil {
		err = m.restoreFailedLocked(ctx, err)
		m.mu.Unlock()
		return err
	}

	m.failures = 0
	m.installLocked(key, rec.ExpiresAt)
	m.loadedAt = rec.LoadedAt
	ev := m.eventLocked(ReasonRestored)
	m.mu.Unlock()

	m.log.Debugf("Restored session loaded at %s", rec.LoadedAt.Format(time.RFC3339))
	m.notify(ev)
	return nil
}

// Reconcile brings memory and the store back in line:
//   - memory empty, store holds material: restore
//   - memory empty, store holds a flag without material: clear the flag
//   - memory empty, store unreadable: count a failed restore, clearing the
//     store after MaxRestoreAttempts
//   - memory loaded, store lost its record or is unreadable: persist again
func (m *Manager) Reconcile(ctx context.Context) error {
	m.mu.RLock()
	loaded := m.loadedLocked()
	m.mu.RUnlock()

	rec, err := m.store.Restore(ctx)
	if err != nil {
		if loaded {
			m.log.Debugf("Session store unreadable, persisting again: %v", err)
			return m.persistLoaded(ctx)
		}
		// Restore counts the failure and clears the store at the bound.
		if err := m.Restore(ctx); err != nil && !errors.Is(err, kerrors.ErrSessionExpired) {
			return err
		}
		return nil
	}
	active := rec != nil && rec.Active

	switch {
	case !loaded && active && len(rec.KeyMaterial) > 0:
		if err := m.Restore(ctx); err != nil && !errors.Is(err, kerrors.ErrSessionExpired) {
			return err
		}
	case !loaded && active:
		m.log.Debugf("Clearing stale session flag")
		return m.store.Clear(ctx)
	case loaded && !active:
		m.log.Debugf("Session store lost its record, persisting again")
		return m.persistLoaded(ctx)
	}
	return nil
}

func (m *Manager) persistLoaded(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadedLocked() {
		return m.persistLocked(ctx)
	}
	return nil
}

// Start runs Reconcile every ReconcileInterval until ctx is done. It is a
// no-op when no interval is configured.
func (m *Manager) Start(ctx context.Context) {
	if m.interval <= 0 {
		return
	}
	m.clock.TickerFunc(ctx, m.interval, func() error {
		if err := m.Reconcile(ctx); err != nil {
			m.log.Warnf("Session reconcile failed: %v", err)
		}
		return nil
	}, "session", "reconcile")
}

// WithKey runs fn with shared access to the active key. It returns
// ErrSessionExpired when no key is loaded. fn must not retain the key.
func (m *Manager) WithKey(ctx context.Context, fn func(key *kdf.MasterKey) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.loadedLocked() {
		return kerrors.ErrSessionExpired
	}
	return fn(m.key)
}

// Exclusive runs fn with exclusive access to the key slot. current is nil
// when no key is loaded. When fn returns a new key and no error, the new key
// replaces current, which is destroyed.
func (m *Manager) Exclusive(ctx context.Context, fn func(current *kdf.MasterKey) (*kdf.MasterKey, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	var current *kdf.MasterKey
	if m.loadedLocked() {
		current = m.key
	}

	next, err := fn(current)
	if err != nil || next == nil || next == current {
		m.mu.Unlock()
		return err
	}

	m.installLocked(next, m.clock.Now().Add(m.timeout))
	persistErr := m.persistLocked(ctx)
	ev := m.eventLocked(ReasonRotated)
	m.mu.Unlock()

	m.notify(ev)
	return persistErr
}

func (m *Manager) loadedLocked() bool {
	return m.key != nil && !m.key.Destroyed()
}

// installLocked swaps in key and arms the expiry timer.
func (m *Manager) installLocked(key *kdf.MasterKey, expiresAt time.Time) {
	if m.key != nil && m.key != key {
		m.key.Destroy()
	}
	m.stopTimerLocked()

	now := m.clock.Now()
	m.key = key
	m.state = StateLoaded
	m.loadedAt = now
	m.gen++

	if m.timeout < 0 {
		m.expiresAt = time.Time{}
		return
	}
	m.expiresAt = expiresAt

	gen := m.gen
	m.timer = m.clock.AfterFunc(expiresAt.Sub(now), func() {
		m.expire(gen)
	}, "session", "expiry")
}

func (m *Manager) expire(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || !m.loadedLocked() {
		m.mu.Unlock()
		return
	}
	err := m.clearLocked(context.Background())
	ev := m.eventLocked(ReasonExpired)
	m.mu.Unlock()

	if err != nil {
		m.log.Warnf("Failed to clear expired session: %v", err)
	}
	m.log.Infof("Session expired")
	m.notify(ev)
}

func (m *Manager) clearLocked(ctx context.Context) error {
	if m.key != nil {
		m.key.Destroy()
		m.key = nil
	}
	m.stopTimerLocked()
	m.state = StateCleared
	m.loadedAt = time.Time{}
	m.expiresAt = time.Time{}
	m.gen++

	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing session store: %w", err)
	}
	return nil
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// persistLocked writes flag, timestamps and, for exportable keys, the key
// material in one record.
func (m *Manager) persistLocked(ctx context.Context) error {
	rec := Record{
		Active:    true,
		LoadedAt:  m.loadedAt,
		ExpiresAt: m.expiresAt,
	}
	if m.key.Exportable() {
		raw, err := m.key.Export()
		if err != nil {
			return fmt.Errorf("exporting key for session store: %w", err)
		}
		rec.KeyMaterial = raw
		defer memguard.WipeBytes(raw)
	}

	if err := m.store.Persist(ctx, rec); err != nil {
		m.log.WarnfAlways("Session could not be persisted, it will end with this process: %v", err)
		return fmt.Errorf("persisting session: %w", err)
	}
	return nil
}

func (m *Manager) restoreFailedLocked(ctx context.Context, cause error) error {
	m.failures++
	m.log.Debugf("Session restore attempt %d/%d failed: %v", m.failures, m.maxRestore, cause)
	if m.failures < m.maxRestore {
		return fmt.Errorf("restoring session: %w", cause)
	}

	m.failures = 0
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing stale session: %w", err)
	}
	m.state = StateCleared
	return fmt.Errorf("%w: restore failed %d times, stored session discarded", kerrors.ErrSessionExpired, m.maxRestore)
}
