package audit

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/boshu2/warden/internal/fingerprint"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	signer := NewSigner(fingerprint.NewWithID("test-machine"))
	s, err := NewFileStore(path, signer)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s, path
}

func appendN(t *testing.T, s *FileStore, n int) []Entry {
	t.Helper()
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		e, err := s.Append(context.Background(), Record{
			Level:     LevelOperation,
			Action:    "file_write",
			Tool:      "filesystem",
			Params:    map[string]string{"path": "/workspace/a.txt"},
			Authority: "A4: FILE_WRITE",
			Outcome:   "pending",
			SessionID: "s1",
			ActorID:   "agent-1",
		})
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		out = append(out, e)
	}
	return out
}

func TestAppendChainsSignatures(t *testing.T) {
	s, _ := newTestStore(t)

	if s.Head() != GenesisSignature {
		t.Errorf("empty chain head = %q, want genesis", s.Head())
	}

	entries := appendN(t, s, 3)
	for i, e := range entries {
		if e.Seq != int64(i+1) {
			t.Errorf("entry %d seq = %d", i, e.Seq)
		}
		if e.Signature == "" || e.Signature == GenesisSignature {
			t.Errorf("entry %d has no signature", i)
		}
	}
	if s.Head() != entries[2].Signature {
		t.Error("head should be the last entry's signature")
	}
}

func TestVerifyCleanChain(t *testing.T) {
	s, _ := newTestStore(t)
	appendN(t, s, 10)

	report, err := s.Verify(context.Background(), 0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Checked != 10 || report.Valid != 10 || report.Invalid != 0 {
		t.Errorf("clean chain report = %+v", report)
	}
}

func TestVerifyDetectsTamperPropagation(t *testing.T) {
	s, path := newTestStore(t)
	appendN(t, s, 5)

	// Edit entry 3's outcome in memory, simulating a doctored store.
	s.entries[2].Outcome = "success"

	report, err := s.Verify(context.Background(), 0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Invalid != 3 {
		t.Errorf("invalid = %d, want 3 (entry 3 and everything after)", report.Invalid)
	}
	if len(report.BadSeqs) != 3 || report.BadSeqs[0] != 3 || report.BadSeqs[2] != 5 {
		t.Errorf("bad seqs = %v, want [3 4 5]", report.BadSeqs)
	}
	if report.Valid != 2 {
		t.Errorf("valid = %d, want 2 (entries before the edit)", report.Valid)
	}
	_ = path
}

func TestVerifyIsPureRead(t *testing.T) {
	s, _ := newTestStore(t)
	appendN(t, s, 4)

	head := s.Head()
	if _, err := s.Verify(context.Background(), 0); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if s.Head() != head {
		t.Error("Verify must not alter the chain head")
	}

	before, _ := s.Query(context.Background(), Filter{})
	after, _ := s.Query(context.Background(), Filter{})
	if len(before) != len(after) {
		t.Error("Query must not alter stored state")
	}
}

func TestQueryFilters(t *testing.T) {
	s, _ := newTestStore(t)
	appendN(t, s, 3)
	if _, err := s.Append(context.Background(), Record{
		Level: LevelCritical, Action: "blocked_op", Tool: "shell",
		Authority: "A5: SYSTEM_EXEC", Outcome: "blocked",
		SessionID: "s1", ActorID: "agent-2",
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	critical, err := s.Query(context.Background(), Filter{Level: LevelCritical})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(critical) != 1 || critical[0].Action != "blocked_op" {
		t.Errorf("level filter returned %+v", critical)
	}

	byTool, _ := s.Query(context.Background(), Filter{Tool: "filesystem"})
	if len(byTool) != 3 {
		t.Errorf("tool filter returned %d entries, want 3", len(byTool))
	}

	limited, _ := s.Query(context.Background(), Filter{Limit: 2})
	if len(limited) != 2 {
		t.Errorf("limit filter returned %d entries, want 2", len(limited))
	}
	// Newest first.
	if limited[0].Seq != 4 {
		t.Errorf("query should return newest first, got seq %d", limited[0].Seq)
	}
}

func TestReopenRecoversHead(t *testing.T) {
	s, path := newTestStore(t)
	entries := appendN(t, s, 3)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	signer := NewSigner(fingerprint.NewWithID("test-machine"))
	reopened, err := NewFileStore(path, signer)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Head() != entries[2].Signature {
		t.Error("reopened store should recover the head signature")
	}

	e, err := reopened.Append(context.Background(), Record{
		Level: LevelInfo, Action: "noop", Tool: "test",
		Authority: "A0: READ_ONLY", Outcome: "success",
		SessionID: "s1", ActorID: "agent-1",
	})
	if err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if e.Seq != 4 {
		t.Errorf("seq after reopen = %d, want 4", e.Seq)
	}

	report, err := reopened.Verify(context.Background(), 0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Invalid != 0 {
		t.Errorf("chain should verify across reopen: %+v", report)
	}
}

func TestAppendAfterClose(t *testing.T) {
	s, _ := newTestStore(t)
	_ = s.Close()
	if _, err := s.Append(context.Background(), Record{}); err != ErrStoreClosed {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
}

func TestConcurrentAppendsSerialize(t *testing.T) {
	s, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Append(context.Background(), Record{
				Level: LevelInfo, Action: "op", Tool: "test",
				Authority: "A0: READ_ONLY", Outcome: "success",
				SessionID: "s1", ActorID: "agent-1",
			})
		}()
	}
	wg.Wait()

	report, err := s.Verify(context.Background(), 0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Checked != 20 || report.Invalid != 0 {
		t.Errorf("concurrent appends broke the chain: %+v", report)
	}
}

func TestRedact(t *testing.T) {
	params := map[string]string{
		"path":     "/workspace/a.txt",
		"password": "hunter2hunter2",
		"api_key":  "sk-abcdefghij0123456789",
	}
	out := Redact(params)
	if out["path"] != "/workspace/a.txt" {
		t.Error("non-secret params should pass through")
	}
	if out["password"] != "[redacted]" || out["api_key"] != "[redacted]" {
		t.Errorf("secrets not redacted: %+v", out)
	}
	if params["password"] != "hunter2hunter2" {
		t.Error("Redact must not mutate its input")
	}
}

func TestVerifyLimitWindow(t *testing.T) {
	s, _ := newTestStore(t)
	appendN(t, s, 6)

	report, err := s.Verify(context.Background(), 2)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Checked != 2 || report.Invalid != 0 {
		t.Errorf("windowed verify report = %+v", report)
	}
}
