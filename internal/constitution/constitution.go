// Package constitution implements the immutable rule engine every
// operation is validated against. The constraint set, Prime Directive,
// and authority hierarchy description are hashed into a fingerprint at
// load time; every validation re-derives the fingerprint first and
// refuses to proceed on a mismatch, so the ruleset cannot be silently
// altered at runtime.
package constitution

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/boshu2/warden/internal/authority"
	"github.com/boshu2/warden/internal/canonical"
	"github.com/boshu2/warden/internal/operation"
)

// Version of the constitution document.
const Version = "2.0.0"

// PrimeDirective is the no-harm rule enforced on every operation.
const PrimeDirective = "No agent shall cause harm to humans, human systems, or human data through action or inaction."

// AuthorityHierarchy describes the governance chain of command. Part
// of the fingerprinted document.
var AuthorityHierarchy = []string{
	"L0: CONSTITUTIONAL AUTHORITY (This Document)",
	"L1: HUMAN OPERATORS (Ultimate Authority)",
	"L2: KERNEL AUTHORITY (System Governance)",
	"L3: AGENT HIERARCHY (Planner -> Researcher -> Builder -> Tester -> Integrator)",
	"L4: SKILL EXECUTION (Sandboxed Operations)",
	"L5: EXTERNAL SYSTEMS (APIs, File System, Network)",
}

// harmfulKeywords drive the Prime Directive heuristic over the
// operation's capability name, description, and parameters.
var harmfulKeywords = []string{
	"destruct", "delete", "remove", "format", "erase", "wipe",
	"malware", "virus", "attack", "exploit", "bypass",
}

// prohibitedPatterns are capability-name substrings that are
// constitutionally forbidden regardless of authority level.
var prohibitedPatterns = []struct {
	substrings []string
	detail     string
}{
	{[]string{"self_replicate"}, "self-replication without explicit authorization gate approval"},
	{[]string{"kernel", "modify"}, "modifying the agent's own code or the governance kernel"},
}

// Enforcement selects how a constraint is applied.
type Enforcement string

const (
	// Strict constraints reject violating operations.
	Strict Enforcement = "strict"

	// Advisory constraints log a warning and continue.
	Advisory Enforcement = "advisory"

	// Logging constraints record the match and continue.
	Logging Enforcement = "logging"
)

// Constraint is a single constitutional article.
type Constraint struct {
	// Article identifies the constraint, e.g. "ARTICLE_I_SECTION_1".
	Article string

	// Title is the human-readable name.
	Title string

	// Description explains the rule.
	Description string

	// Levels are the authority tiers the constraint applies to.
	Levels []authority.Level

	// Enforcement is strict, advisory, or logging.
	Enforcement Enforcement
}

// appliesTo reports whether the constraint covers a level.
func (c Constraint) appliesTo(level authority.Level) bool {
	for _, l := range c.Levels {
		if l == level {
			return true
		}
	}
	return false
}

// articlePrimeDirective is the article whose strict enforcement runs
// the harm heuristic.
const articlePrimeDirective = "ARTICLE_I_SECTION_1"

// DefaultConstraints returns the built-in constraint set.
func DefaultConstraints() []Constraint {
	all := authority.Levels()
	elevated := []authority.Level{authority.FileWrite, authority.SystemExec}
	return []Constraint{
		{
			Article:     articlePrimeDirective,
			Title:       "Prime Directive",
			Description: PrimeDirective,
			Levels:      all,
			Enforcement: Strict,
		},
		{
			Article:     "ARTICLE_II_SECTION_3",
			Title:       "Prohibited Actions",
			Description: "Agents are absolutely forbidden from prohibited operations",
			Levels:      all,
			Enforcement: Strict,
		},
		{
			Article:     "ARTICLE_IV_SECTION_1",
			Title:       "Elevated Verification",
			Description: "All A4+ operations must pass quorum approval before execution",
			Levels:      elevated,
			Enforcement: Strict,
		},
		{
			Article:     "ARTICLE_V_SECTION_1",
			Title:       "Keyed-Hash Integrity",
			Description: "All audit signatures must use keyed cryptographic hashing",
			Levels:      all,
			Enforcement: Logging,
		},
		{
			Article:     "ARTICLE_VI_SECTION_1",
			Title:       "Immutable Audit Trail",
			Description: "All agent actions must be logged with cryptographic signatures",
			Levels:      all,
			Enforcement: Strict,
		},
	}
}

// Constitution holds the fingerprinted ruleset. Immutable after New.
type Constitution struct {
	version     string
	constraints []Constraint
	fingerprint string
	logger      *slog.Logger
}

// New loads the constitution with the given constraints (nil uses the
// defaults) and computes the immutability fingerprint.
func New(constraints []Constraint, logger *slog.Logger) *Constitution {
	if constraints == nil {
		constraints = DefaultConstraints()
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Constitution{
		version:     Version,
		constraints: constraints,
		logger:      logger,
	}
	c.fingerprint = c.computeFingerprint()
	logger.Info("constitution loaded",
		"version", c.version,
		"constraints", len(constraints),
		"fingerprint", c.fingerprint[:12])
	return c
}

// computeFingerprint derives the hash over the canonical v1 form of
// the full document: version, Prime Directive, hierarchy, constraints.
func (c *Constitution) computeFingerprint() string {
	enc := canonical.NewEncoder().
		Field("version", c.version).
		Field("prime_directive", PrimeDirective).
		List("authority_hierarchy", AuthorityHierarchy)
	for _, con := range c.constraints {
		levels := make([]string, len(con.Levels))
		for i, l := range con.Levels {
			levels[i] = l.String()
		}
		enc.Field("article", con.Article).
			Field("title", con.Title).
			Field("description", con.Description).
			List("levels", levels).
			Field("enforcement", string(con.Enforcement))
	}
	return enc.SumHex()
}

// Fingerprint returns the load-time immutability fingerprint.
func (c *Constitution) Fingerprint() string {
	return c.fingerprint
}

// Version returns the document version.
func (c *Constitution) Version() string {
	return c.version
}

// Constraints returns a copy of the constraint set.
func (c *Constitution) Constraints() []Constraint {
	out := make([]Constraint, len(c.constraints))
	copy(out, c.constraints)
	return out
}

// ConstraintsFor returns the constraints applying to a level.
func (c *Constitution) ConstraintsFor(level authority.Level) []Constraint {
	var out []Constraint
	for _, con := range c.constraints {
		if con.appliesTo(level) {
			out = append(out, con)
		}
	}
	return out
}

// VerifyIntegrity re-derives the fingerprint and compares it to the
// load-time value.
func (c *Constitution) VerifyIntegrity() bool {
	return c.computeFingerprint() == c.fingerprint
}

// Validate checks an operation against the full ruleset. A nil return
// means the operation is constitutionally admissible; it does not mean
// it is authorized or security-clean, which are independent checks.
func (c *Constitution) Validate(op operation.Operation) error {
	if !c.VerifyIntegrity() {
		c.logger.Error("constitution integrity check failed",
			"operation", op.ID,
			"expected", c.fingerprint[:12])
		return &ViolationError{
			Kind:   KindIntegrity,
			Detail: "constitution fingerprint mismatch, possible runtime modification",
		}
	}

	for _, con := range c.constraints {
		if !con.appliesTo(op.Level) {
			continue
		}
		if err := c.enforce(con, op); err != nil {
			return err
		}
	}

	if err := c.checkProhibited(op); err != nil {
		return err
	}

	c.logger.Debug("operation passed constitutional validation", "operation", op.ID)
	return nil
}

func (c *Constitution) enforce(con Constraint, op operation.Operation) error {
	switch con.Enforcement {
	case Advisory:
		c.logger.Warn("advisory constraint matched",
			"operation", op.ID, "article", con.Article, "title", con.Title)
		return nil
	case Logging:
		c.logger.Info("logging constraint matched",
			"operation", op.ID, "article", con.Article, "title", con.Title)
		return nil
	}

	if con.Article == articlePrimeDirective {
		if keyword := c.harmfulKeyword(op); keyword != "" {
			c.logger.Warn("harmful keyword detected",
				"operation", op.ID, "keyword", keyword)
			return &ViolationError{
				Kind:    KindPrimeDirective,
				Article: con.Article,
				Detail:  fmt.Sprintf("operation matches harmful keyword %q: %s", keyword, con.Description),
			}
		}
	}

	return nil
}

// harmfulKeyword scans the capability name, description, and
// parameters for Prime Directive keywords, case-insensitively.
// Returns the first match or "".
func (c *Constitution) harmfulKeyword(op operation.Operation) string {
	var b strings.Builder
	b.WriteString(string(op.Capability))
	b.WriteByte(' ')
	b.WriteString(op.Description)
	for k, v := range op.Params {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte(' ')
		b.WriteString(v)
	}
	text := strings.ToLower(b.String())

	for _, keyword := range harmfulKeywords {
		if strings.Contains(text, keyword) {
			return keyword
		}
	}
	return ""
}

func (c *Constitution) checkProhibited(op operation.Operation) error {
	name := strings.ToLower(string(op.Capability))
	for _, p := range prohibitedPatterns {
		matched := true
		for _, sub := range p.substrings {
			if !strings.Contains(name, sub) {
				matched = false
				break
			}
		}
		if matched {
			return &ViolationError{
				Kind:   KindProhibited,
				Detail: fmt.Sprintf("operation %s is prohibited: %s", op.ID, p.detail),
			}
		}
	}
	return nil
}
