// Package canonical provides the versioned canonical encoding used for
// every hash and signature in warden. Hashes must never depend on
// implicit struct field ordering or map iteration order, so all hashed
// material goes through an explicit, versioned record format first.
// Changing the format requires bumping the version tag.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Version is the current canonical format version tag. It is embedded
// in every encoded record so that a format change invalidates old
// signatures loudly instead of silently drifting.
const Version = "wv1"

// Field separators. Unit separator between key=value records, record
// separator between nested records. Values are escaped so the
// separators cannot be forged from field content.
const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// Encoder accumulates fields in declaration order and produces the
// canonical byte form.
type Encoder struct {
	parts []string
}

// NewEncoder returns an encoder primed with the version tag.
func NewEncoder() *Encoder {
	return &Encoder{parts: []string{Version}}
}

// Field appends a single key=value record.
func (e *Encoder) Field(key, value string) *Encoder {
	e.parts = append(e.parts, escape(key)+"="+escape(value))
	return e
}

// Int appends an integer field.
func (e *Encoder) Int(key string, value int) *Encoder {
	return e.Field(key, strconv.Itoa(value))
}

// Map appends a string map with keys sorted lexicographically. The map
// is flattened into key-sorted sub-records so two maps with the same
// contents always encode identically.
func (e *Encoder) Map(key string, m map[string]string) *Encoder {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sub := make([]string, 0, len(keys))
	for _, k := range keys {
		sub = append(sub, escape(k)+"="+escape(m[k]))
	}
	e.parts = append(e.parts, escape(key)+"="+strings.Join(sub, recordSep))
	return e
}

// List appends a string slice preserving order.
func (e *Encoder) List(key string, values []string) *Encoder {
	sub := make([]string, 0, len(values))
	for _, v := range values {
		sub = append(sub, escape(v))
	}
	e.parts = append(e.parts, escape(key)+"="+strings.Join(sub, recordSep))
	return e
}

// Bytes returns the canonical encoding.
func (e *Encoder) Bytes() []byte {
	return []byte(strings.Join(e.parts, fieldSep))
}

// SumHex returns the hex SHA-256 digest of the canonical encoding.
func (e *Encoder) SumHex() string {
	sum := sha256.Sum256(e.Bytes())
	return hex.EncodeToString(sum[:])
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, fieldSep, "\\u001f")
	s = strings.ReplaceAll(s, recordSep, "\\u001e")
	return s
}
