// Package audit implements the tamper-evident, hash-chained audit
// log. Every entry's signature is an HMAC over the entry's canonical
// form, the previous entry's signature, and an hour-granular device
// fingerprint, so any retroactive edit invalidates every subsequent
// signature. Entries are never updated or deleted.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"
)

// GenesisSignature is the fixed chain seed before any entry exists.
const GenesisSignature = "0000000000000000000000000000000000000000000000000000000000000000"

// Severity levels for entries.
const (
	LevelInfo      = "INFO"
	LevelOperation = "OPERATION"
	LevelWarning   = "WARNING"
	LevelCritical  = "CRITICAL"
)

// Sentinel errors for the audit package.
var (
	// ErrAppendFailed wraps any failure to durably write an entry.
	// High-assurance callers treat it as fatal to the operation.
	ErrAppendFailed = errors.New("audit append failed")

	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("audit store closed")
)

// Entry is one audit record. Append-only; "resolution" of anything is
// a new entry, never an edit.
type Entry struct {
	// Seq is the store-assigned sequence number, starting at 1.
	Seq int64 `json:"seq" bson:"seq"`

	// Timestamp is when the entry was appended (UTC).
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	// Level is the severity (INFO, OPERATION, WARNING, CRITICAL).
	Level string `json:"level" bson:"level"`

	// Action is the governed action name.
	Action string `json:"action" bson:"action"`

	// Tool is the originating tool or category.
	Tool string `json:"tool" bson:"tool"`

	// Params is the parameter snapshot.
	Params map[string]string `json:"params,omitempty" bson:"params,omitempty"`

	// Authority is the display form of the authority level.
	Authority string `json:"authority" bson:"authority"`

	// Outcome records the result (pending, success, failure, blocked,
	// rejected).
	Outcome string `json:"outcome" bson:"outcome"`

	// SessionID groups entries for one session.
	SessionID string `json:"session_id" bson:"sessionId"`

	// ActorID is the requesting principal.
	ActorID string `json:"actor_id" bson:"actorId"`

	// Signature chains this entry to its predecessor.
	Signature string `json:"signature" bson:"signature"`
}

// Record is the caller-facing shape for Append; the store assigns the
// sequence, timestamp, and signature.
type Record struct {
	Level     string
	Action    string
	Tool      string
	Params    map[string]string
	Authority string
	Outcome   string
	SessionID string
	ActorID   string
}

// Filter narrows Query results. Zero values mean no constraint.
type Filter struct {
	// From and To bound the timestamp range (inclusive).
	From time.Time
	To   time.Time

	// Level matches the severity exactly.
	Level string

	// Tool matches the originating tool exactly.
	Tool string

	// Limit caps the result count; 0 means the store default (100).
	Limit int
}

// matches reports whether an entry satisfies the filter.
func (f Filter) matches(e Entry) bool {
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if f.Level != "" && e.Level != f.Level {
		return false
	}
	if f.Tool != "" && e.Tool != f.Tool {
		return false
	}
	return true
}

// limit returns the effective result cap.
func (f Filter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// Report summarizes a chain verification sweep.
type Report struct {
	// Checked is how many entries were verified.
	Checked int `json:"checked"`

	// Valid and Invalid count signature matches and mismatches.
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`

	// BadSeqs lists the sequence numbers that failed, oldest first.
	BadSeqs []int64 `json:"bad_seqs,omitempty"`
}

// Store is the append-only audit persistence interface. Query and
// Verify are pure reads.
type Store interface {
	// Append signs and durably writes a record, returning the new
	// entry (with sequence and signature assigned).
	Append(ctx context.Context, rec Record) (Entry, error)

	// Query returns matching entries, newest first.
	Query(ctx context.Context, f Filter) ([]Entry, error)

	// Verify re-derives signatures for the last limit entries, oldest
	// to newest. limit <= 0 verifies everything.
	Verify(ctx context.Context, limit int) (Report, error)

	// Head returns the current chain head signature.
	Head() string

	// Close releases resources.
	Close() error
}

// Redact masks values of credential-shaped parameter keys before they
// reach durable storage. The gate pipeline blocks credential exposure
// in governed fields; this is the audit-side backstop.
func Redact(params map[string]string) map[string]string {
	if params == nil {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "password") || strings.Contains(lower, "secret") ||
			strings.Contains(lower, "token") || strings.Contains(lower, "api_key") {
			out[k] = "[redacted]"
			continue
		}
		out[k] = v
	}
	return out
}
