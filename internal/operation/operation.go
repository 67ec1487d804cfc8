// Package operation defines the unit of governance: one proposed
// privileged action, immutable once constructed. The content hash is
// always re-derived from the fields rather than cached, so a stale
// hash can never survive a field change.
package operation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/boshu2/warden/internal/authority"
	"github.com/boshu2/warden/internal/canonical"
	"github.com/boshu2/warden/internal/capability"
)

// Sentinel errors for operation construction.
var (
	// ErrActorRequired is returned when no requesting actor is given.
	ErrActorRequired = errors.New("operation actor is required")

	// ErrInvalidLevel is returned for authority levels outside A0-A5.
	ErrInvalidLevel = errors.New("invalid authority level")

	// ErrLevelTooLow is returned when the declared level is below the
	// capability's registry minimum.
	ErrLevelTooLow = errors.New("authority level below capability minimum")
)

// Operation is one proposed action awaiting a governance verdict.
// Fields are exported for serialization but the struct is treated as
// immutable after New returns.
type Operation struct {
	// ID uniquely identifies this submission.
	ID string `json:"id"`

	// Actor is the requesting principal (agent or user id).
	Actor string `json:"actor"`

	// Capability is the governed action being requested.
	Capability capability.Capability `json:"capability"`

	// Params are the action parameters (path, command, url, ...).
	Params map[string]string `json:"params,omitempty"`

	// Level is the authority tier this operation requires.
	Level authority.Level `json:"level"`

	// Description is free text explaining the intent.
	Description string `json:"description,omitempty"`
}

// New validates the fields and returns an immutable operation. The
// params map is copied so later mutation by the caller cannot leak in.
func New(actor string, cap capability.Capability, params map[string]string, level authority.Level, description string) (Operation, error) {
	if actor == "" {
		return Operation{}, ErrActorRequired
	}
	if !level.Valid() {
		return Operation{}, fmt.Errorf("%w: %d", ErrInvalidLevel, int(level))
	}
	minLevel, err := capability.MinLevel(cap)
	if err != nil {
		return Operation{}, err
	}
	if level < minLevel {
		return Operation{}, fmt.Errorf("%w: %s needs %s, got %s", ErrLevelTooLow, cap, minLevel, level)
	}

	copied := make(map[string]string, len(params))
	for k, v := range params {
		copied[k] = v
	}

	return Operation{
		ID:          "op-" + uuid.NewString(),
		Actor:       actor,
		Capability:  cap,
		Params:      copied,
		Level:       level,
		Description: description,
	}, nil
}

// Hash derives the deterministic content hash used for integrity
// comparison, deduplication, and audit correlation. Identical content
// hashes identically regardless of params map ordering.
func (o Operation) Hash() string {
	return canonical.NewEncoder().
		Field("id", o.ID).
		Field("actor", o.Actor).
		Field("capability", string(o.Capability)).
		Map("params", o.Params).
		Int("level", int(o.Level)).
		Field("description", o.Description).
		SumHex()
}

// ContentHash is like Hash but excludes the submission id, so two
// submissions of the same action by the same actor collide. The kernel
// uses it for duplicate detection.
func (o Operation) ContentHash() string {
	return canonical.NewEncoder().
		Field("actor", o.Actor).
		Field("capability", string(o.Capability)).
		Map("params", o.Params).
		Int("level", int(o.Level)).
		Field("description", o.Description).
		SumHex()
}
