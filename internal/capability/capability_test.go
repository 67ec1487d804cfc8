package capability

import (
	"errors"
	"testing"

	"github.com/boshu2/warden/internal/authority"
)

func TestParseKnown(t *testing.T) {
	c, err := Parse("file_write")
	if err != nil {
		t.Fatalf("Parse(file_write): %v", err)
	}
	if c != FileWrite {
		t.Errorf("Parse(file_write) = %q", c)
	}
}

func TestParseUnknown(t *testing.T) {
	_, err := Parse("summon_demon")
	if !errors.Is(err, ErrUnknownCapability) {
		t.Errorf("expected ErrUnknownCapability, got %v", err)
	}
}

func TestMinLevels(t *testing.T) {
	cases := []struct {
		cap  Capability
		want authority.Level
	}{
		{ReadDocs, authority.ReadOnly},
		{Math, authority.SafeCompute},
		{WebSearch, authority.InfoRetrieval},
		{FileRead, authority.FileRead},
		{FileWrite, authority.FileWrite},
		{ShellExec, authority.SystemExec},
	}
	for _, tc := range cases {
		got, err := MinLevel(tc.cap)
		if err != nil {
			t.Fatalf("MinLevel(%s): %v", tc.cap, err)
		}
		if got != tc.want {
			t.Errorf("MinLevel(%s) = %s, want %s", tc.cap, got, tc.want)
		}
	}
}

func TestAllSortedAndComplete(t *testing.T) {
	all := All()
	if len(all) != 15 {
		t.Errorf("expected 15 capabilities, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1] >= all[i] {
			t.Errorf("All() not sorted at index %d: %s >= %s", i, all[i-1], all[i])
		}
	}
}
