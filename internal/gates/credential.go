package gates

import (
	"fmt"
	"regexp"
	"sync/atomic"
)

// credentialPatterns match common secret shapes: key=value secrets,
// bearer tokens, and provider-prefixed API keys.
var credentialPatterns = []string{
	`api[_-]?key\s*[:=]\s*['"]?[a-zA-Z0-9_\-]{20,}['"]?`,
	`password\s*[:=]\s*['"]?[^\s]{6,}['"]?`,
	`secret\s*[:=]\s*['"]?[a-zA-Z0-9_\-]{10,}['"]?`,
	`token\s*[:=]\s*['"]?[a-zA-Z0-9_\-]{20,}['"]?`,
	`bearer\s+[a-zA-Z0-9_\-]{20,}`,
	`sk-[a-zA-Z0-9_\-]{20,}`,
	`gh[pousr]_[a-zA-Z0-9_\-]{20,}`,
}

// CredentialGuard fails any text containing a secret-shaped string.
type CredentialGuard struct {
	patterns []*regexp.Regexp
	threats  atomic.Int64
}

// NewCredentialGuard compiles the pattern list.
func NewCredentialGuard() *CredentialGuard {
	g := &CredentialGuard{}
	for _, p := range credentialPatterns {
		g.patterns = append(g.patterns, regexp.MustCompile(`(?i)`+p))
	}
	return g
}

// Check scans text for credential exposure.
func (g *CredentialGuard) Check(text string) Result {
	if text == "" {
		return Result{Gate: GateCredential, Passed: true}
	}
	for _, p := range g.patterns {
		if p.MatchString(text) {
			g.threats.Add(1)
			return Result{
				Gate:           GateCredential,
				ThreatDetected: true,
				Reason:         fmt.Sprintf("potential credential exposure: %s", p.String()),
			}
		}
	}
	return Result{Gate: GateCredential, Passed: true}
}

// Threats returns the cumulative threat count.
func (g *CredentialGuard) Threats() int64 {
	return g.threats.Load()
}
