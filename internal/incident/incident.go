// Package incident tracks operational failures and enforces the
// two-strike automatic-pause protocol: two same-type incidents in one
// session trip a global pause flag until the backlog is resolved.
package incident

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type tags an incident with its failure class.
type Type string

const (
	TypeDeploymentFailure Type = "deployment_failure"
	TypeSecurityBlock     Type = "security_block"
	TypeAgentError        Type = "agent_error"
	TypeUserRejection     Type = "user_rejection"
)

// Types returns all known incident types.
func Types() []Type {
	return []Type{TypeDeploymentFailure, TypeSecurityBlock, TypeAgentError, TypeUserRejection}
}

// ParseType converts a string tag to a Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Types() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Status is the lifecycle state of an incident.
type Status string

const (
	StatusOpen          Status = "open"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
)

// PauseThreshold is how many same-type incidents in one session trip
// the global pause flag.
const PauseThreshold = 2

var (
	ErrUnknownType     = errors.New("unknown incident type")
	ErrNotFound        = errors.New("incident not found")
	ErrAlreadyResolved = errors.New("incident already resolved")
)

// Incident is a single recorded failure. Fields are immutable once
// written; only Status advances, and resolution data lives in a
// separate Resolution record attached to the same id.
type Incident struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Type        Type              `json:"type"`
	Description string            `json:"description"`
	Agent       string            `json:"agent,omitempty"`
	Operation   string            `json:"operation,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
	Status      Status            `json:"status"`
}

// Resolution is the root-cause record attached when an incident closes.
type Resolution struct {
	Cause          string    `json:"cause"`
	PreventionRule string    `json:"prevention_rule"`
	Verifier       string    `json:"verifier"`
	VerifiedAt     time.Time `json:"verified_at"`
}

// Event is the input to Record.
type Event struct {
	Type        Type
	Description string
	Agent       string
	Operation   string
	Details     map[string]string
}

// EscalationFunc is invoked when the two-strike flag trips.
// Panics inside a callback are recovered and never abort Record.
type EscalationFunc func(t Type, incidentID string)

// Stats summarizes the tracker state.
type Stats struct {
	Total          int            `json:"total"`
	ByStatus       map[Status]int `json:"by_status"`
	ByType         map[Type]int   `json:"by_type"`
	SessionCounts  map[Type]int   `json:"session_counts"`
	PauseTriggered bool           `json:"pause_triggered"`
	MTTRHours      float64        `json:"mttr_hours"`
}

// Tracker records incidents, persists them through a Store, and owns
// the per-session counters and pause flag. All state shares one mutex
// so two types crossing the threshold at once cannot race the flag.
type Tracker struct {
	mu             sync.Mutex
	store          Store
	records        []record
	byID           map[string]int
	sessionCounts  map[Type]int
	pauseTriggered bool
	callbacks      []EscalationFunc
	logger         *slog.Logger
	now            func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker's logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker loads existing incidents from the store. Session counters
// start at zero: only incidents recorded in this process count toward
// the two-strike threshold.
func NewTracker(store Store, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		store:         store,
		byID:          make(map[string]int),
		sessionCounts: make(map[Type]int),
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	records, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load incidents: %w", err)
	}
	t.records = records
	for i, r := range records {
		t.byID[r.Incident.ID] = i
	}
	return t, nil
}

// OnEscalation registers a callback for two-strike escalation.
func (t *Tracker) OnEscalation(fn EscalationFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, fn)
}

// Record appends a new open incident and returns its id. Crossing the
// two-strike threshold for the event's type sets the pause flag
// (idempotent) and fires escalation callbacks synchronously.
func (t *Tracker) Record(ev Event) (string, error) {
	if _, err := ParseType(string(ev.Type)); err != nil {
		return "", err
	}
	if strings.TrimSpace(ev.Description) == "" {
		return "", errors.New("incident description is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	inc := Incident{
		ID:          newID(now),
		Timestamp:   now,
		Type:        ev.Type,
		Description: ev.Description,
		Agent:       ev.Agent,
		Operation:   ev.Operation,
		Details:     copyDetails(ev.Details),
		Status:      StatusOpen,
	}
	rec := record{Incident: inc}

	if err := t.store.Append(rec); err != nil {
		return "", fmt.Errorf("persist incident: %w", err)
	}
	t.records = append(t.records, rec)
	t.byID[inc.ID] = len(t.records) - 1

	t.sessionCounts[ev.Type]++
	count := t.sessionCounts[ev.Type]
	t.logger.Warn("incident recorded",
		"id", inc.ID, "type", ev.Type, "session_count", count)

	if count >= PauseThreshold && !t.pauseTriggered {
		t.pauseTriggered = true
		t.logger.Error("two-strike threshold reached, pausing automation",
			"type", ev.Type, "incident", inc.ID)
		for _, fn := range t.callbacks {
			t.invoke(fn, ev.Type, inc.ID)
		}
	}

	return inc.ID, nil
}

// invoke runs one escalation callback, recovering panics so a bad
// callback cannot abort the Record that tripped it.
func (t *Tracker) invoke(fn EscalationFunc, typ Type, id string) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("escalation callback panicked", "panic", r, "incident", id)
		}
	}()
	fn(typ, id)
}

// Investigate marks an open incident as under investigation. Advisory
// only: it does not affect counters or the pause flag.
func (t *Tracker) Investigate(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if t.records[i].Incident.Status == StatusResolved {
		return fmt.Errorf("%w: %s", ErrAlreadyResolved, id)
	}
	t.records[i].Incident.Status = StatusInvestigating
	return t.store.Rewrite(t.records)
}

// Resolve closes an incident with a root-cause record. The original
// incident fields stay unchanged; only status, resolution, and
// closed-at are added. Returns true when the incident transitioned to
// resolved. Resolving may clear the pause flag: the type's session
// counter resets once no open incident of that type remains, and the
// flag drops only when no type is still at or above the threshold.
func (t *Tracker) Resolve(id string, res Resolution) (bool, error) {
	if strings.TrimSpace(res.Cause) == "" || strings.TrimSpace(res.Verifier) == "" {
		return false, errors.New("resolution cause and verifier are required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.byID[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if t.records[i].Incident.Status == StatusResolved {
		return false, fmt.Errorf("%w: %s", ErrAlreadyResolved, id)
	}

	now := t.now().UTC()
	if res.VerifiedAt.IsZero() {
		res.VerifiedAt = now
	}
	t.records[i].Incident.Status = StatusResolved
	t.records[i].Resolution = &res
	t.records[i].ClosedAt = &now

	if err := t.store.Rewrite(t.records); err != nil {
		return false, fmt.Errorf("persist resolution: %w", err)
	}

	typ := t.records[i].Incident.Type
	if t.openCountLocked(typ) == 0 {
		t.sessionCounts[typ] = 0
	}
	t.recheckPauseLocked()

	t.logger.Info("incident resolved", "id", id, "verifier", res.Verifier)
	return true, nil
}

func (t *Tracker) openCountLocked(typ Type) int {
	n := 0
	for _, r := range t.records {
		if r.Incident.Type == typ && r.Incident.Status != StatusResolved {
			n++
		}
	}
	return n
}

func (t *Tracker) recheckPauseLocked() {
	for _, count := range t.sessionCounts {
		if count >= PauseThreshold {
			return
		}
	}
	if t.pauseTriggered {
		t.logger.Info("pause flag cleared")
	}
	t.pauseTriggered = false
}

// PauseTriggered reports whether automation is currently paused.
func (t *Tracker) PauseTriggered() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pauseTriggered
}

// ByID returns one incident.
func (t *Tracker) ByID(id string) (Incident, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.byID[id]
	if !ok {
		return Incident{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t.records[i].Incident, nil
}

// Open returns all unresolved incidents, newest first.
func (t *Tracker) Open() []Incident {
	return t.list(func(inc Incident) bool { return inc.Status != StatusResolved })
}

// All returns every incident, newest first.
func (t *Tracker) All() []Incident {
	return t.list(func(Incident) bool { return true })
}

func (t *Tracker) list(keep func(Incident) bool) []Incident {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Incident
	for _, r := range t.records {
		if keep(r.Incident) {
			out = append(out, r.Incident)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Stats reports totals by status and type, current session counters,
// the pause flag, and mean time to resolution over resolved incidents.
// Pure read.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{
		ByStatus:       make(map[Status]int),
		ByType:         make(map[Type]int),
		SessionCounts:  make(map[Type]int),
		PauseTriggered: t.pauseTriggered,
	}
	for typ, count := range t.sessionCounts {
		s.SessionCounts[typ] = count
	}

	var totalResolution time.Duration
	resolved := 0
	for _, r := range t.records {
		s.Total++
		s.ByStatus[r.Incident.Status]++
		s.ByType[r.Incident.Type]++
		if r.Incident.Status == StatusResolved && r.ClosedAt != nil {
			totalResolution += r.ClosedAt.Sub(r.Incident.Timestamp)
			resolved++
		}
	}
	if resolved > 0 {
		s.MTTRHours = totalResolution.Hours() / float64(resolved)
	}
	return s
}

// newID builds an id like INC-20260830-a1b2c3.
func newID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("INC-%s-%s", now.Format("20060102"), suffix)
}

func copyDetails(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
