// Package authority defines the six-tier permission hierarchy that
// gates every operation the kernel governs. Levels are totally
// ordered: a principal at level N may perform any operation whose
// required level is at most N. The definitions are fixed at compile
// time and conceptually read-only for the process lifetime.
package authority

import "fmt"

// Level is one of the six ordered authority tiers, A0 through A5.
type Level int

const (
	// ReadOnly (A0) permits public information access only.
	ReadOnly Level = iota

	// SafeCompute (A1) permits sandboxed computation and text analysis.
	SafeCompute

	// InfoRetrieval (A2) permits network read operations.
	InfoRetrieval

	// FileRead (A3) permits local filesystem reads.
	FileRead

	// FileWrite (A4) permits local filesystem writes. First tier that
	// requires human approval and quorum consensus.
	FileWrite

	// SystemExec (A5) permits shell commands and deployment. Highest
	// tier; largest quorum, strictest trust threshold.
	SystemExec
)

// levelNames follows the A<n>: NAME display convention.
var levelNames = map[Level]string{
	ReadOnly:      "A0: READ_ONLY",
	SafeCompute:   "A1: SAFE_COMPUTE",
	InfoRetrieval: "A2: INFO_RETRIEVAL",
	FileRead:      "A3: FILE_READ",
	FileWrite:     "A4: FILE_WRITE",
	SystemExec:    "A5: SYSTEM_EXEC",
}

var levelDescriptions = map[Level]string{
	ReadOnly:      "Public information access only",
	SafeCompute:   "Sandboxed computation and text analysis",
	InfoRetrieval: "Network read operations (web search, API queries)",
	FileRead:      "Local file system read operations",
	FileWrite:     "Local file system write operations",
	SystemExec:    "System-level operations (shell commands, deployment)",
}

// String returns the display name, e.g. "A4: FILE_WRITE".
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("A?: UNKNOWN(%d)", int(l))
}

// Description returns a one-line summary of what the level permits.
func (l Level) Description() string {
	return levelDescriptions[l]
}

// Valid reports whether l is one of the six defined tiers.
func (l Level) Valid() bool {
	return l >= ReadOnly && l <= SystemExec
}

// Levels returns all six tiers in ascending order.
func Levels() []Level {
	return []Level{ReadOnly, SafeCompute, InfoRetrieval, FileRead, FileWrite, SystemExec}
}

// Parse maps a level name ("A4: FILE_WRITE" or "FILE_WRITE") back to a
// Level. Returns an error for unrecognized names.
func Parse(name string) (Level, error) {
	for l, display := range levelNames {
		if name == display {
			return l, nil
		}
	}
	short := map[string]Level{
		"READ_ONLY":      ReadOnly,
		"SAFE_COMPUTE":   SafeCompute,
		"INFO_RETRIEVAL": InfoRetrieval,
		"FILE_READ":      FileRead,
		"FILE_WRITE":     FileWrite,
		"SYSTEM_EXEC":    SystemExec,
	}
	if l, ok := short[name]; ok {
		return l, nil
	}
	return ReadOnly, fmt.Errorf("unknown authority level %q", name)
}

// Requirements describes what an operation at a given level must
// satisfy before execution.
type Requirements struct {
	// Level these requirements apply to.
	Level Level

	// ApprovalNeeded is whether human approval is mandatory.
	ApprovalNeeded bool

	// QuorumSize is the Byzantine quorum required, 0 if none.
	QuorumSize int

	// TrustThreshold is the minimum trust score (0.0 to 1.0).
	TrustThreshold float64

	// SandboxRequired is whether execution must be sandboxed.
	SandboxRequired bool

	// Capabilities allowed at this level.
	Capabilities []string

	// RateLimits caps operations per time period.
	RateLimits map[string]int
}

var requirements = map[Level]Requirements{
	ReadOnly: {
		Level:        ReadOnly,
		Capabilities: []string{"read_docs"},
		RateLimits:   map[string]int{"per_minute": 1000, "per_hour": 10000},
	},
	SafeCompute: {
		Level:          SafeCompute,
		TrustThreshold: 0.8,
		Capabilities:   []string{"math", "text_analysis", "format"},
		RateLimits:     map[string]int{"per_minute": 500, "per_hour": 5000},
	},
	InfoRetrieval: {
		Level:          InfoRetrieval,
		TrustThreshold: 0.8,
		Capabilities:   []string{"web_search", "api_query_get", "research"},
		RateLimits:     map[string]int{"per_minute": 100, "per_hour": 1000},
	},
	FileRead: {
		Level:          FileRead,
		TrustThreshold: 0.8,
		Capabilities:   []string{"file_read", "dir_list", "code_analyzer"},
		RateLimits:     map[string]int{"per_minute": 200, "per_hour": 2000},
	},
	FileWrite: {
		Level:           FileWrite,
		ApprovalNeeded:  true,
		QuorumSize:      QuorumSize(FileWrite, 1),
		TrustThreshold:  0.9,
		SandboxRequired: true,
		Capabilities:    []string{"file_write", "file_delete"},
		RateLimits:      map[string]int{"per_minute": 50, "per_hour": 500},
	},
	SystemExec: {
		Level:           SystemExec,
		ApprovalNeeded:  true,
		QuorumSize:      QuorumSize(SystemExec, 2),
		TrustThreshold:  0.95,
		SandboxRequired: true,
		Capabilities:    []string{"shell_exec", "system_modify", "network_write"},
		RateLimits:      map[string]int{"per_minute": 10, "per_hour": 100},
	},
}

// For returns the requirements for a level.
func For(level Level) Requirements {
	return requirements[level]
}

// IsAuthorized reports whether a principal at actor level may perform
// an operation requiring the given level.
func IsAuthorized(required, actor Level) bool {
	return actor >= required
}

// QuorumSize computes the Byzantine quorum for a level using the
// 3f+1 rule, where f is the number of faulty participants tolerated.
// Levels below FileWrite need no consensus.
func QuorumSize(level Level, faultTolerance int) int {
	if level < FileWrite {
		return 0
	}
	return 3*faultTolerance + 1
}
