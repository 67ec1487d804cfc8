package gates

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
)

// injectionPatterns are known jailbreak and override phrasings,
// matched case-insensitively against prompts and tool output.
var injectionPatterns = []string{
	`ignore.*previous.*instructions`,
	`disregard.*above`,
	`forget.*everything`,
	`new.*instructions`,
	`system\s*prompt`,
	`reveal.*prompt`,
	`show.*instructions`,
	`you.*are.*now.*`,
	`pretend.*you.*are`,
	`act.*as.*if`,
	`imagine.*you.*are`,
	`roleplay.*as`,
	`base64.*decode`,
	`rot13`,
	`unicode.*escape`,
	`hex.*decode`,
	`<\s*system\s*>`,
	`<\s*assistant\s*>`,
	`<\s*user\s*>`,
	`\[INST\]`,
	`\[/INST\]`,
	`bypass.*gate`,
	`disable.*security`,
	`override.*protection`,
	`skip.*approval`,
}

// InjectionScanner matches input text against the fixed injection
// pattern list. Any match fails the gate.
type InjectionScanner struct {
	patterns []*regexp.Regexp
	threats  atomic.Int64
}

// NewInjectionScanner compiles the pattern list.
func NewInjectionScanner() *InjectionScanner {
	s := &InjectionScanner{}
	for _, p := range injectionPatterns {
		s.patterns = append(s.patterns, regexp.MustCompile(`(?i)`+p))
	}
	return s
}

// Check scans text and lists every matched pattern on failure.
func (s *InjectionScanner) Check(text string) Result {
	if text == "" {
		return Result{Gate: GateInjection, Passed: true}
	}

	var matched []string
	for _, p := range s.patterns {
		if p.MatchString(text) {
			matched = append(matched, p.String())
		}
	}
	if len(matched) > 0 {
		s.threats.Add(1)
		return Result{
			Gate:           GateInjection,
			ThreatDetected: true,
			Reason:         fmt.Sprintf("injection patterns matched: %s", strings.Join(matched, ", ")),
		}
	}
	return Result{Gate: GateInjection, Passed: true}
}

// Threats returns the cumulative threat count.
func (s *InjectionScanner) Threats() int64 {
	return s.threats.Load()
}
