package constitution

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/boshu2/warden/internal/authority"
	"github.com/boshu2/warden/internal/capability"
	"github.com/boshu2/warden/internal/operation"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustOp(t *testing.T, cap capability.Capability, params map[string]string, level authority.Level, desc string) operation.Operation {
	t.Helper()
	op, err := operation.New("agent-1", cap, params, level, desc)
	if err != nil {
		t.Fatalf("operation.New: %v", err)
	}
	return op
}

func TestValidateCleanOperation(t *testing.T) {
	c := New(nil, quietLogger())
	op := mustOp(t, capability.WebSearch, map[string]string{"query": "golang news"}, authority.InfoRetrieval, "search the web")

	if err := c.Validate(op); err != nil {
		t.Errorf("clean operation rejected: %v", err)
	}
}

func TestPrimeDirectiveKeywordInDescription(t *testing.T) {
	c := New(nil, quietLogger())
	op := mustOp(t, capability.ShellExec, map[string]string{"command": "true"}, authority.SystemExec, "format disk")

	err := c.Validate(op)
	if !errors.Is(err, ErrPrimeDirective) {
		t.Fatalf("expected prime directive violation, got %v", err)
	}
	var v *ViolationError
	if !errors.As(err, &v) {
		t.Fatal("expected *ViolationError")
	}
	if v.Article != "ARTICLE_I_SECTION_1" {
		t.Errorf("article = %q", v.Article)
	}
}

func TestPrimeDirectiveKeywordInParams(t *testing.T) {
	c := New(nil, quietLogger())
	op := mustOp(t, capability.ShellExec, map[string]string{"command": "wipe --all"}, authority.SystemExec, "maintenance")

	if err := c.Validate(op); !errors.Is(err, ErrPrimeDirective) {
		t.Errorf("expected prime directive violation, got %v", err)
	}
}

func TestProhibitedOperations(t *testing.T) {
	c := New(nil, quietLogger())

	// Prohibited capabilities cannot come through operation.New's
	// registry, so exercise the constitutional backstop directly.
	op := operation.Operation{
		ID:         "op-test",
		Actor:      "agent-1",
		Capability: capability.Capability("self_replicate"),
		Level:      authority.SafeCompute,
	}
	if err := c.Validate(op); !errors.Is(err, ErrProhibited) {
		t.Errorf("self_replicate: expected prohibited violation, got %v", err)
	}

	op.Capability = capability.Capability("kernel_modify")
	if err := c.Validate(op); !errors.Is(err, ErrProhibited) {
		t.Errorf("kernel_modify: expected prohibited violation, got %v", err)
	}
}

func TestIntegrityFingerprint(t *testing.T) {
	a := New(nil, quietLogger())
	b := New(nil, quietLogger())
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical rulesets should fingerprint identically")
	}

	altered := DefaultConstraints()
	altered[0].Description = "No harm, mostly"
	c := New(altered, quietLogger())
	if c.Fingerprint() == a.Fingerprint() {
		t.Error("changing a constraint should change the fingerprint")
	}

	if !a.VerifyIntegrity() {
		t.Error("unmodified constitution should verify")
	}
}

func TestConstraintsForLevel(t *testing.T) {
	c := New(nil, quietLogger())

	low := c.ConstraintsFor(authority.ReadOnly)
	high := c.ConstraintsFor(authority.SystemExec)
	if len(high) <= len(low) {
		t.Errorf("elevated levels should carry extra constraints: low=%d high=%d", len(low), len(high))
	}
	for _, con := range low {
		if con.Article == "ARTICLE_IV_SECTION_1" {
			t.Error("elevated verification should not apply to ReadOnly")
		}
	}
}

func TestAdvisoryConstraintDoesNotReject(t *testing.T) {
	constraints := []Constraint{
		{
			Article:     "ARTICLE_X",
			Title:       "Advisory Test",
			Description: "advisory only",
			Levels:      authority.Levels(),
			Enforcement: Advisory,
		},
	}
	c := New(constraints, quietLogger())
	op := mustOp(t, capability.FileRead, map[string]string{"path": "/workspace/a"}, authority.FileRead, "read a file")

	if err := c.Validate(op); err != nil {
		t.Errorf("advisory constraint should not reject: %v", err)
	}
}
