package gates

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
)

// CommandMode selects how the sanitizer treats commands that clear the
// deny list.
type CommandMode string

const (
	// ModeAllowlist rejects any command whose first token is not in
	// the safe-command set. Default.
	ModeAllowlist CommandMode = "allowlist"

	// ModeDenylist only rejects commands matching the dangerous
	// pattern list.
	ModeDenylist CommandMode = "denylist"
)

// dangerousCommands are rejected in every mode: destructive filesystem
// operations, fork bombs, and pipe-to-shell downloads.
var dangerousCommands = []string{
	`rm\s+-rf\s+/`,
	`mkfs`,
	`dd\s+.*of=/dev`,
	`:\(\)\{.*\}`,
	`chmod\s+-R\s+777`,
	`chown\s+-R\s+root`,
	`curl.*\|\s*bash`,
	`wget.*\|\s*sh`,
}

// safeCommands is the allowlist-mode first-token set.
var safeCommands = map[string]bool{
	"ls": true, "cat": true, "grep": true, "find": true, "echo": true,
	"pwd": true, "cd": true, "mkdir": true, "touch": true, "cp": true,
	"mv": true, "chmod": true, "chown": true, "git": true, "python": true,
	"pip": true, "npm": true, "node": true, "go": true, "docker": true,
	"kubectl": true, "terraform": true, "curl": true, "wget": true,
	"ssh": true, "scp": true,
}

// CommandSanitizer validates shell commands in two phases: deny-list
// first, then (in allowlist mode) first-token membership.
type CommandSanitizer struct {
	mode     CommandMode
	patterns []*regexp.Regexp
	threats  atomic.Int64
}

// NewCommandSanitizer compiles the deny list. An empty mode defaults
// to allowlist.
func NewCommandSanitizer(mode CommandMode) *CommandSanitizer {
	if mode == "" {
		mode = ModeAllowlist
	}
	s := &CommandSanitizer{mode: mode}
	for _, p := range dangerousCommands {
		s.patterns = append(s.patterns, regexp.MustCompile(p))
	}
	return s
}

// Check validates a command.
func (s *CommandSanitizer) Check(command string) Result {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return Result{Gate: GateCommand, Passed: true}
	}

	for _, p := range s.patterns {
		if p.MatchString(command) {
			s.threats.Add(1)
			return Result{
				Gate:           GateCommand,
				ThreatDetected: true,
				Reason:         fmt.Sprintf("dangerous pattern detected: %s", p.String()),
			}
		}
	}

	if s.mode == ModeAllowlist {
		first := strings.Fields(trimmed)[0]
		if !safeCommands[first] {
			return Result{
				Gate:   GateCommand,
				Reason: fmt.Sprintf("command %q not in allowlist", first),
			}
		}
	}

	return Result{Gate: GateCommand, Passed: true}
}

// Threats returns the cumulative threat count.
func (s *CommandSanitizer) Threats() int64 {
	return s.threats.Load()
}
