package incident

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "incidents.jsonl"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	tr, err := NewTracker(store)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	return tr
}

func mustRecord(t *testing.T, tr *Tracker, typ Type, desc string) string {
	t.Helper()
	id, err := tr.Record(Event{Type: typ, Description: desc})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	return id
}

func TestRecordAssignsIDAndOpens(t *testing.T) {
	tr := newTestTracker(t)
	id := mustRecord(t, tr, TypeAgentError, "planner crashed")

	if len(id) != len("INC-20060102-abcdef") {
		t.Errorf("unexpected id shape: %q", id)
	}
	inc, err := tr.ByID(id)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if inc.Status != StatusOpen || inc.Type != TypeAgentError {
		t.Errorf("incident = %+v", inc)
	}
}

func TestTwoStrikesSameTypeTriggersPause(t *testing.T) {
	tr := newTestTracker(t)

	var escalated []string
	tr.OnEscalation(func(typ Type, id string) {
		escalated = append(escalated, id)
	})

	mustRecord(t, tr, TypeSecurityBlock, "first block")
	if tr.PauseTriggered() {
		t.Fatal("one incident must not trigger pause")
	}

	second := mustRecord(t, tr, TypeSecurityBlock, "second block")
	if !tr.PauseTriggered() {
		t.Fatal("two same-type incidents must trigger pause")
	}
	if len(escalated) != 1 || escalated[0] != second {
		t.Errorf("escalation callbacks = %v, want [%s]", escalated, second)
	}

	// Third strike is idempotent on the flag and fires no new callback.
	mustRecord(t, tr, TypeSecurityBlock, "third block")
	if len(escalated) != 1 {
		t.Errorf("flag already set, callbacks fired again: %v", escalated)
	}
}

func TestTwoDifferentTypesDoNotTriggerPause(t *testing.T) {
	tr := newTestTracker(t)
	mustRecord(t, tr, TypeSecurityBlock, "block")
	mustRecord(t, tr, TypeAgentError, "crash")
	if tr.PauseTriggered() {
		t.Error("one incident each of two types must not trigger pause")
	}
}

func TestEscalationPanicRecovered(t *testing.T) {
	tr := newTestTracker(t)
	tr.OnEscalation(func(Type, string) { panic("bad callback") })

	mustRecord(t, tr, TypeDeploymentFailure, "deploy broke")
	id := mustRecord(t, tr, TypeDeploymentFailure, "deploy broke again")
	if id == "" {
		t.Fatal("Record must survive a panicking callback")
	}
	if !tr.PauseTriggered() {
		t.Error("pause flag should still be set")
	}
}

func TestResolveClearsPauseOnlyWhenNoTypeRemains(t *testing.T) {
	tr := newTestTracker(t)

	a1 := mustRecord(t, tr, TypeSecurityBlock, "block 1")
	a2 := mustRecord(t, tr, TypeSecurityBlock, "block 2")
	b1 := mustRecord(t, tr, TypeAgentError, "crash 1")
	b2 := mustRecord(t, tr, TypeAgentError, "crash 2")
	if !tr.PauseTriggered() {
		t.Fatal("both types tripped, pause expected")
	}

	res := Resolution{Cause: "bad regex", PreventionRule: "command_sanitizer", Verifier: "operator"}
	for _, id := range []string{a1, a2} {
		if ok, err := tr.Resolve(id, res); err != nil || !ok {
			t.Fatalf("Resolve(%s) = %v, %v", id, ok, err)
		}
	}
	if !tr.PauseTriggered() {
		t.Error("agent_error still at threshold, pause must hold")
	}

	for _, id := range []string{b1, b2} {
		if _, err := tr.Resolve(id, res); err != nil {
			t.Fatalf("Resolve(%s): %v", id, err)
		}
	}
	if tr.PauseTriggered() {
		t.Error("all strikes resolved, pause must clear")
	}
}

func TestResolveKeepsOriginalFields(t *testing.T) {
	tr := newTestTracker(t)
	id := mustRecord(t, tr, TypeUserRejection, "user said no")

	ok, err := tr.Resolve(id, Resolution{
		Cause: "prompt was unclear", PreventionRule: "none", Verifier: "reviewer",
	})
	if err != nil || !ok {
		t.Fatalf("Resolve = %v, %v", ok, err)
	}

	inc, err := tr.ByID(id)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if inc.Status != StatusResolved {
		t.Errorf("status = %s", inc.Status)
	}
	if inc.Description != "user said no" || inc.Type != TypeUserRejection {
		t.Errorf("original fields changed: %+v", inc)
	}

	if _, err := tr.Resolve(id, Resolution{Cause: "x", Verifier: "y"}); err == nil {
		t.Error("resolving twice must fail")
	}
}

func TestInvestigateIsAdvisory(t *testing.T) {
	tr := newTestTracker(t)
	mustRecord(t, tr, TypeAgentError, "crash 1")
	id := mustRecord(t, tr, TypeAgentError, "crash 2")

	if err := tr.Investigate(id); err != nil {
		t.Fatalf("Investigate: %v", err)
	}
	inc, _ := tr.ByID(id)
	if inc.Status != StatusInvestigating {
		t.Errorf("status = %s", inc.Status)
	}
	if !tr.PauseTriggered() {
		t.Error("investigating must not clear the pause flag")
	}
}

func TestStatsAndMTTR(t *testing.T) {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	clock := base
	store := NewMemStore()
	tr, err := NewTracker(store, WithClock(func() time.Time { return clock }))
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	id := mustRecord(t, tr, TypeDeploymentFailure, "rollout failed")
	mustRecord(t, tr, TypeAgentError, "crash")

	clock = base.Add(3 * time.Hour)
	if _, err := tr.Resolve(id, Resolution{Cause: "c", PreventionRule: "r", Verifier: "v"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	s := tr.Stats()
	if s.Total != 2 || s.ByStatus[StatusResolved] != 1 || s.ByStatus[StatusOpen] != 1 {
		t.Errorf("stats = %+v", s)
	}
	if s.MTTRHours != 3 {
		t.Errorf("MTTR = %v hours, want 3", s.MTTRHours)
	}

	// Stats must be a pure read.
	again := tr.Stats()
	if again.Total != s.Total {
		t.Error("Stats mutated state")
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incidents.jsonl")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	tr, err := NewTracker(store)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	id := mustRecord(t, tr, TypeSecurityBlock, "persisted block")
	mustRecord(t, tr, TypeSecurityBlock, "another block")
	if !tr.PauseTriggered() {
		t.Fatal("pause expected")
	}

	store2, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	reopened, err := NewTracker(store2)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if len(reopened.All()) != 2 {
		t.Errorf("reopened tracker sees %d incidents, want 2", len(reopened.All()))
	}
	if _, err := reopened.ByID(id); err != nil {
		t.Errorf("ByID after reopen: %v", err)
	}
	// Counters are per session, so a fresh process is not paused.
	if reopened.PauseTriggered() {
		t.Error("pause flag must not persist across sessions")
	}
}

func TestRecordValidation(t *testing.T) {
	tr := newTestTracker(t)
	if _, err := tr.Record(Event{Type: "bogus", Description: "x"}); err == nil {
		t.Error("unknown type must fail")
	}
	if _, err := tr.Record(Event{Type: TypeAgentError}); err == nil {
		t.Error("empty description must fail")
	}
}

func TestOpenListsUnresolvedNewestFirst(t *testing.T) {
	store := NewMemStore()
	clock := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	tr, err := NewTracker(store, WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	old := mustRecord(t, tr, TypeAgentError, "older")
	newer := mustRecord(t, tr, TypeUserRejection, "newer")
	if _, err := tr.Resolve(old, Resolution{Cause: "c", Verifier: "v"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	open := tr.Open()
	if len(open) != 1 || open[0].ID != newer {
		t.Errorf("Open = %+v", open)
	}
	all := tr.All()
	if len(all) != 2 || all[0].ID != newer {
		t.Errorf("All not newest first: %+v", all)
	}
}
