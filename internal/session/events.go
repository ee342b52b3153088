package session

import (
	"sort"
	"time"
)

// State is the lifecycle state of the key slot.
type State int

const (
	StateUnset State = iota
	StateLoaded
	StateCleared
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateCleared:
		return "cleared"
	default:
		return "unset"
	}
}

// Reason says why a transition happened.
type Reason string

const (
	ReasonSet      Reason = "set"
	ReasonRestored Reason = "restored"
	ReasonRotated  Reason = "rotated"
	ReasonCleared  Reason = "cleared"
	ReasonExpired  Reason = "expired"
)

// Event is delivered to listeners after every transition.
type Event struct {
	State     State
	Reason    Reason
	At        time.Time
	ExpiresAt time.Time
}

// Subscribe registers fn for session events and returns a function that
// removes it. Listeners run synchronously on the goroutine that caused the
// transition and must not call back into the Manager's mutating methods.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = fn

	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) eventLocked(reason Reason) Event {
	return Event{
		State:     m.state,
		Reason:    reason,
		At:        m.clock.Now(),
		ExpiresAt: m.expiresAt,
	}
}

// notify calls listeners in subscription order.
func (m *Manager) notify(ev Event) {
	m.listenersMu.Lock()
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.listeners[id])
	}
	m.listenersMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
