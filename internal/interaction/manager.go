// Package interaction tracks the one pending AskUserQuestion/Plan-approval
// request per session that paused an LLM run, and parses the user's free-
// form reply back into the structured answer the paused run is resuming
// with. Grounded on the teacher's process-wide map-with-cleanup-timer
// idiom used for delegate/interaction-style state (internal/tools/delegate_state.go
// before its SQL-store pivot), adapted here to an in-memory TTL map with no
// storage backend since a pending interaction is inherently short-lived.
package interaction

import (
	"sync"
	"time"

	"github.com/nextlevelbuilder/gatewaycore/internal/parser"
)

// DefaultTTL is how long a pending interaction survives without an answer
// before it silently expires (§4.6, §5).
const DefaultTTL = 5 * time.Minute

// cleanupInterval is how often the background sweep scans for expired
// entries.
const cleanupInterval = 60 * time.Second

// PendingInteraction is one paused run waiting on a user's answer.
type PendingInteraction struct {
	SessionKey  string
	ToolCallID  string
	Question    string
	Options     []parser.QuestionOption
	MultiSelect bool
	Kind        parser.InteractionKind
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Manager is the process-wide sessionKey → PendingInteraction map. Exactly
// one entry can exist per sessionKey at a time; Set replaces whatever was
// there before.
type Manager struct {
	mu      sync.Mutex
	entries map[string]PendingInteraction
	ttl     time.Duration

	timer      *time.Timer
	timerDone  bool
}

// NewManager builds a Manager with the given TTL (DefaultTTL if ttl <= 0).
// The cleanup timer is started lazily on the first Set and stopped once the
// map is empty, so an idle process holding no interactions runs no timer.
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{entries: make(map[string]PendingInteraction), ttl: ttl, timerDone: true}
}

// Set replaces the pending interaction for sessionKey and (re)starts the
// cleanup timer.
func (m *Manager) Set(sessionKey string, p PendingInteraction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	p.SessionKey = sessionKey
	p.CreatedAt = now
	p.ExpiresAt = now.Add(m.ttl)
	m.entries[sessionKey] = p

	m.ensureTimerLocked()
}

// Get returns the pending interaction for sessionKey if it exists and has
// not expired. An expired entry is deleted as a side effect of the lookup.
func (m *Manager) Get(sessionKey string) (PendingInteraction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.entries[sessionKey]
	if !ok {
		return PendingInteraction{}, false
	}
	if time.Now().After(p.ExpiresAt) {
		delete(m.entries, sessionKey)
		return PendingInteraction{}, false
	}
	return p, true
}

// Clear removes the pending interaction for sessionKey, if any.
func (m *Manager) Clear(sessionKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionKey)
}

// cleanupExpired scans every entry and deletes the ones past expiresAt. The
// background timer calls this; tests in this package also call it directly.
func (m *Manager) cleanupExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for key, p := range m.entries {
		if now.After(p.ExpiresAt) {
			delete(m.entries, key)
		}
	}

	if len(m.entries) == 0 {
		m.stopTimerLocked()
		return
	}
	m.timer.Reset(cleanupInterval)
}

// ensureTimerLocked starts the cleanup timer if it isn't already running.
// Must be called with m.mu held.
func (m *Manager) ensureTimerLocked() {
	if !m.timerDone {
		return
	}
	m.timerDone = false
	m.timer = time.AfterFunc(cleanupInterval, m.cleanupExpired)
}

// stopTimerLocked marks the timer as stopped so the next Set restarts it.
// Must be called with m.mu held.
func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timerDone = true
}
