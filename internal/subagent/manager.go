package subagent

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nextlevelbuilder/gatewaycore/internal/bus"
)

// DefaultMaxConcurrent, DefaultMaxRetained and DefaultReservationTTLSec are
// the defaults every admission check is measured against unless the caller
// overrides them via Config.
const (
	DefaultMaxConcurrent     = 5
	DefaultMaxRetained       = 15
	DefaultReservationTTLSec = 30
)

const (
	EventSpawned   = "spawned"
	EventCompleted = "completed"
)

// Config tunes the admission thresholds, normally sourced from
// config.SubagentsConfig.
type Config struct {
	MaxConcurrent     int
	MaxRetained       int
	ReservationTTLSec int
}

func (c Config) normalized() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.MaxRetained <= 0 {
		c.MaxRetained = DefaultMaxRetained
	}
	if c.ReservationTTLSec <= 0 {
		c.ReservationTTLSec = DefaultReservationTTLSec
	}
	return c
}

// Manager is the single coherent critical section guarding the
// (running, completed, reserved) triple (§5, §9). All admission,
// registration, completion, and removal operations take the same mutex, so
// the invariants in §8 hold at every point in time, not just between calls.
type Manager struct {
	mu        sync.Mutex
	running   map[string]RunRecord    // runId -> record
	completed map[string]RunRecord    // runId -> record
	reserved  map[string]Reservation  // reserveId -> reservation

	cfg       Config
	publisher bus.EventPublisher
	registry  *Registry

	gcTicker *time.Ticker
	gcDone   chan struct{}

	// onHeartbeat is invoked (coalesced to at most once per second) after
	// markCompleted, to wake the parent's dispatcher (§4.7).
	onHeartbeat func(sessionKey string)
	lastHeartbeat map[string]time.Time
}

// NewManager builds a Manager. registry may be nil (no durable persistence,
// useful for tests); publisher may be nil (no event bus).
func NewManager(cfg Config, publisher bus.EventPublisher, registry *Registry, onHeartbeat func(sessionKey string)) *Manager {
	m := &Manager{
		running:       make(map[string]RunRecord),
		completed:     make(map[string]RunRecord),
		reserved:      make(map[string]Reservation),
		cfg:           cfg.normalized(),
		publisher:     publisher,
		registry:      registry,
		onHeartbeat:   onHeartbeat,
		lastHeartbeat: make(map[string]time.Time),
		gcDone:        make(chan struct{}),
	}
	m.gcTicker = time.NewTicker(5 * time.Second)
	go m.gcLoop()
	if registry != nil {
		m.loadFromRegistry()
	}
	return m
}

// Close stops the reservation-GC background loop.
func (m *Manager) Close() {
	m.gcTicker.Stop()
	close(m.gcDone)
}

func (m *Manager) gcLoop() {
	for {
		select {
		case <-m.gcTicker.C:
			m.mu.Lock()
			m.purgeExpiredReservationsLocked()
			m.mu.Unlock()
		case <-m.gcDone:
			return
		}
	}
}

// purgeExpiredReservationsLocked drops every reservation older than the
// configured TTL. Must be called with m.mu held. Invariant #2: a
// reservation never outlives the TTL without being consumed or GC'd.
func (m *Manager) purgeExpiredReservationsLocked() {
	ttl := time.Duration(m.cfg.ReservationTTLSec) * time.Second
	now := time.Now()
	for id, r := range m.reserved {
		if now.Sub(r.ReservedAt) > ttl {
			delete(m.reserved, id)
		}
	}
}

// ReserveSlot implements §4.7's admission check, atomically, under the
// single critical-section mutex.
func (m *Manager) ReserveSlot(requesterSessionKey string) AdmissionResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeExpiredReservationsLocked()

	runningForSession := 0
	for _, r := range m.running {
		if r.RequesterSessionKey == requesterSessionKey {
			runningForSession++
		}
	}
	reservedForSession := 0
	for _, r := range m.reserved {
		if r.RequesterSessionKey == requesterSessionKey {
			reservedForSession++
		}
	}
	active := runningForSession + reservedForSession
	if active >= m.cfg.MaxConcurrent {
		return AdmissionResult{Allowed: false, Reason: "concurrency"}
	}

	completedForSession := 0
	var completedRecords []RunRecord
	for _, r := range m.completed {
		if r.RequesterSessionKey == requesterSessionKey {
			completedForSession++
			completedRecords = append(completedRecords, r)
		}
	}
	total := runningForSession + completedForSession + reservedForSession
	if total >= m.cfg.MaxRetained {
		return AdmissionResult{
			Allowed:     false,
			Reason:      "capacity",
			Suggestions: oldestRunIDs(completedRecords, 3),
		}
	}

	reserveID := uuid.NewString()
	m.reserved[reserveID] = Reservation{
		ReserveID:           reserveID,
		RequesterSessionKey: requesterSessionKey,
		ReservedAt:          time.Now(),
	}
	return AdmissionResult{Allowed: true, ReserveID: reserveID}
}

// oldestRunIDs returns up to n run ids of the oldest records by EndedAt
// (nil EndedAt counts as the zero time and so sorts first; completed
// records normally carry one).
func oldestRunIDs(records []RunRecord, n int) []string {
	sorted := append([]RunRecord(nil), records...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0; j-- {
			if recordTime(sorted[j]).Before(recordTime(sorted[j-1])) {
				sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
			} else {
				break
			}
		}
	}
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	ids := make([]string, len(sorted))
	for i, r := range sorted {
		ids[i] = r.RunID
	}
	return ids
}

func recordTime(r RunRecord) time.Time {
	if r.EndedAt != nil {
		return *r.EndedAt
	}
	return time.Time{}
}

// Register atomically deletes the reservation and inserts ctx into
// running, publishing a "spawned" event. Returns false if reserveID doesn't
// exist (already consumed, expired, or never issued) — §8 invariant #3:
// every register either consumes exactly one matching reservation or is
// rejected.
func (m *Manager) Register(ctx Context, reserveID string) bool {
	m.mu.Lock()
	_, ok := m.reserved[reserveID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.reserved, reserveID)

	now := time.Now()
	record := RunRecord{
		RunID:               ctx.RunID,
		RequesterSessionKey: ctx.RequesterSessionKey,
		ChildSessionKey:     ctx.ChildSessionKey,
		ChildSessionID:      ctx.ChildSessionID,
		Task:                ctx.Task,
		Label:               ctx.Label,
		PlanMode:            ctx.PlanMode,
		Cleanup:             ctx.Cleanup,
		Model:               ctx.Model,
		Origin:              ctx.Origin,
		StartedAt:           &now,
	}
	m.running[ctx.RunID] = record
	m.mu.Unlock()

	m.persist(record)
	m.publish(EventSpawned, record)
	return true
}

// MarkCompleted moves a running record to completed with notified=false,
// publishes a "completed" event, and requests a heartbeat for the parent
// session (coalesced to at most once per second). A no-op if runId isn't
// currently running (§4.7).
func (m *Manager) MarkCompleted(runID string, outcome Outcome, summary string, endedAt time.Time) {
	m.MarkCompletedWithReason(runID, outcome, summary, "", endedAt)
}

// MarkCompletedWithReason is MarkCompleted plus a classified failure reason
// (§7's "always surfaced" FailoverReason) carried alongside the summary
// rather than folded into it, so the announce flow and the registry both
// see it as structured data.
func (m *Manager) MarkCompletedWithReason(runID string, outcome Outcome, summary, reason string, endedAt time.Time) {
	m.mu.Lock()
	record, ok := m.running[runID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.running, runID)
	record.Outcome = outcome
	record.Summary = summary
	record.Reason = reason
	record.Notified = false
	if endedAt.IsZero() {
		endedAt = time.Now()
	}
	record.EndedAt = &endedAt
	m.completed[runID] = record

	shouldHeartbeat := false
	if m.onHeartbeat != nil {
		last, seen := m.lastHeartbeat[record.RequesterSessionKey]
		if !seen || time.Since(last) >= time.Second {
			m.lastHeartbeat[record.RequesterSessionKey] = time.Now()
			shouldHeartbeat = true
		}
	}
	m.mu.Unlock()

	m.persist(record)
	m.publish(EventCompleted, record)
	if shouldHeartbeat {
		m.onHeartbeat(record.RequesterSessionKey)
	}
}

// RemoveSubagent deletes a completed record, enforcing that only the
// requester may remove it and that a still-running subagent can never be
// removed (§4.7, §7 PermissionDenied).
func (m *Manager) RemoveSubagent(runID, requesterSessionKey string) error {
	m.mu.Lock()
	if _, ok := m.running[runID]; ok {
		m.mu.Unlock()
		return &RemovalError{Reason: "running"}
	}
	record, ok := m.completed[runID]
	if !ok {
		m.mu.Unlock()
		return &RemovalError{Reason: "permission"}
	}
	if record.RequesterSessionKey != requesterSessionKey {
		m.mu.Unlock()
		return &RemovalError{Reason: "permission"}
	}
	delete(m.completed, runID)
	m.mu.Unlock()

	if m.registry != nil {
		m.registry.Remove(runID)
	}
	return nil
}

// MarkNotified flips a completed record's Notified flag after the announce
// flow has delivered its message, so a restart's syncFromRecord does not
// re-announce it.
func (m *Manager) MarkNotified(runID string) {
	m.mu.Lock()
	record, ok := m.completed[runID]
	if !ok {
		m.mu.Unlock()
		return
	}
	record.Notified = true
	m.completed[runID] = record
	m.mu.Unlock()
	m.persist(record)
}

// Get returns a copy of a record from either map, for read-only callers
// (sessions_history, the announce flow).
func (m *Manager) Get(runID string) (RunRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.running[runID]; ok {
		return r, true
	}
	if r, ok := m.completed[runID]; ok {
		return r, true
	}
	return RunRecord{}, false
}

// ListForSession returns every running and completed record for a session
// as two slices, each in no particular order — StatusTextForPrompt sorts
// them before rendering.
func (m *Manager) ListForSession(requesterSessionKey string) (running, completedList []RunRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.running {
		if r.RequesterSessionKey == requesterSessionKey {
			running = append(running, r)
		}
	}
	for _, r := range m.completed {
		if r.RequesterSessionKey == requesterSessionKey {
			completedList = append(completedList, r)
		}
	}
	return running, completedList
}

// UncompletedHeartbeats returns the completed, not-yet-notified records for
// any session — what the registry listener drives the announce flow from.
func (m *Manager) UncompletedHeartbeats() []RunRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RunRecord
	for _, r := range m.completed {
		if !r.Notified {
			out = append(out, r)
		}
	}
	return out
}

func (m *Manager) persist(record RunRecord) {
	if m.registry != nil {
		m.registry.Upsert(record)
	}
}

func (m *Manager) publish(name string, record RunRecord) {
	if m.publisher != nil {
		m.publisher.Broadcast(bus.Event{Name: name, Payload: record})
	}
}

// loadFromRegistry implements syncFromRecord on startup (§4.7): records
// with endedAt && outcome populate completed with notified=true; records
// still running are re-registered and observed (no cancel-on-restart —
// they are simply tracked so removeSubagent's running-check still applies).
func (m *Manager) loadFromRegistry() {
	records, err := m.registry.LoadAll()
	if err != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if r.EndedAt != nil && r.Outcome != "" {
			r.Notified = true
			m.completed[r.RunID] = r
		} else {
			m.running[r.RunID] = r
		}
	}
}
