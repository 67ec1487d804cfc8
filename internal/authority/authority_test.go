package authority

import "testing"

func TestIsAuthorizedMonotonic(t *testing.T) {
	for _, required := range Levels() {
		for _, actor := range Levels() {
			got := IsAuthorized(required, actor)
			want := actor >= required
			if got != want {
				t.Errorf("IsAuthorized(%s, %s) = %v, want %v", required, actor, got, want)
			}
		}
	}
}

func TestQuorumSizes(t *testing.T) {
	for _, l := range []Level{ReadOnly, SafeCompute, InfoRetrieval, FileRead} {
		if q := QuorumSize(l, 1); q != 0 {
			t.Errorf("QuorumSize(%s) = %d, want 0", l, q)
		}
	}
	if q := QuorumSize(FileWrite, 1); q != 4 {
		t.Errorf("QuorumSize(FileWrite, f=1) = %d, want 4", q)
	}
	if q := QuorumSize(SystemExec, 2); q != 7 {
		t.Errorf("QuorumSize(SystemExec, f=2) = %d, want 7", q)
	}
}

func TestRequirementsTable(t *testing.T) {
	fw := For(FileWrite)
	if !fw.ApprovalNeeded {
		t.Error("FileWrite should require approval")
	}
	if fw.QuorumSize != 4 {
		t.Errorf("FileWrite quorum = %d, want 4", fw.QuorumSize)
	}
	if !fw.SandboxRequired {
		t.Error("FileWrite should require sandbox")
	}

	se := For(SystemExec)
	if se.QuorumSize != 7 {
		t.Errorf("SystemExec quorum = %d, want 7", se.QuorumSize)
	}
	if se.TrustThreshold != 0.95 {
		t.Errorf("SystemExec trust threshold = %v, want 0.95", se.TrustThreshold)
	}

	ro := For(ReadOnly)
	if ro.ApprovalNeeded || ro.QuorumSize != 0 || ro.SandboxRequired {
		t.Errorf("ReadOnly should need no approval, quorum, or sandbox: %+v", ro)
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, l := range Levels() {
		got, err := Parse(l.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", l.String(), err)
		}
		if got != l {
			t.Errorf("Parse(%q) = %s", l.String(), got)
		}
	}

	if got, err := Parse("FILE_WRITE"); err != nil || got != FileWrite {
		t.Errorf("Parse(FILE_WRITE) = %v, %v", got, err)
	}
	if _, err := Parse("A9: GODMODE"); err == nil {
		t.Error("expected error for unknown level name")
	}
}

func TestLevelStringUnknown(t *testing.T) {
	if Level(42).Valid() {
		t.Error("Level(42) should be invalid")
	}
}
