package operation

import (
	"errors"
	"testing"

	"github.com/boshu2/warden/internal/authority"
	"github.com/boshu2/warden/internal/capability"
)

func TestNewValidation(t *testing.T) {
	if _, err := New("", capability.FileRead, nil, authority.FileRead, ""); !errors.Is(err, ErrActorRequired) {
		t.Errorf("expected ErrActorRequired, got %v", err)
	}
	if _, err := New("agent-1", capability.FileRead, nil, authority.Level(9), ""); !errors.Is(err, ErrInvalidLevel) {
		t.Errorf("expected ErrInvalidLevel, got %v", err)
	}
	if _, err := New("agent-1", capability.Capability("nope"), nil, authority.ReadOnly, ""); !errors.Is(err, capability.ErrUnknownCapability) {
		t.Errorf("expected ErrUnknownCapability, got %v", err)
	}
}

func TestNewRefusesLevelBelowCapabilityMinimum(t *testing.T) {
	if _, err := New("agent-1", capability.ShellExec, nil, authority.ReadOnly, ""); !errors.Is(err, ErrLevelTooLow) {
		t.Errorf("expected ErrLevelTooLow, got %v", err)
	}
	// Declaring above the minimum stays legal.
	if _, err := New("agent-1", capability.FileRead, nil, authority.SystemExec, ""); err != nil {
		t.Errorf("level above minimum should be accepted, got %v", err)
	}
}

func TestParamsCopied(t *testing.T) {
	params := map[string]string{"path": "/workspace/a.txt"}
	op, err := New("agent-1", capability.FileWrite, params, authority.FileWrite, "write a file")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before := op.Hash()

	params["path"] = "/etc/passwd"
	if op.Hash() != before {
		t.Error("mutating the caller's params map must not change the operation")
	}
}

func TestHashDeterministic(t *testing.T) {
	op, err := New("agent-1", capability.FileWrite, map[string]string{
		"path":    "/workspace/app.py",
		"content": "print(1)",
	}, authority.FileWrite, "write app.py")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if op.Hash() != op.Hash() {
		t.Error("Hash should be deterministic")
	}
	if op.Hash() == op.ContentHash() {
		t.Error("Hash includes the id, ContentHash does not; they should differ")
	}
}

func TestContentHashCollidesAcrossSubmissions(t *testing.T) {
	params := map[string]string{"path": "/workspace/app.py"}
	a, _ := New("agent-1", capability.FileWrite, params, authority.FileWrite, "write")
	b, _ := New("agent-1", capability.FileWrite, params, authority.FileWrite, "write")

	if a.ID == b.ID {
		t.Error("submission ids should be unique")
	}
	if a.ContentHash() != b.ContentHash() {
		t.Error("identical content should produce identical content hashes")
	}
	if a.Hash() == b.Hash() {
		t.Error("full hashes include the id and should differ")
	}
}
