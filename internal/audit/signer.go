package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/boshu2/warden/internal/canonical"
	"github.com/boshu2/warden/internal/fingerprint"
)

// Signer derives per-entry HMAC keys and signatures. The key material
// mixes the device fingerprint (hour window) with the previous
// signature, so the chain is bound to both the machine and the time
// the entries were written.
type Signer struct {
	device *fingerprint.Provider
}

// NewSigner returns a signer bound to a device fingerprint provider.
func NewSigner(device *fingerprint.Provider) *Signer {
	return &Signer{device: device}
}

// Sign computes the signature for an entry given its predecessor's
// signature. The entry's own Signature field is ignored.
func (s *Signer) Sign(e Entry, prevSignature string) string {
	key := s.deriveKey(e, prevSignature)
	mac := hmac.New(sha256.New, key)
	mac.Write(canonicalEntry(e))
	return hex.EncodeToString(mac.Sum(nil))
}

// Valid reports whether the entry's stored signature matches the one
// re-derived from its content and predecessor.
func (s *Signer) Valid(e Entry, prevSignature string) bool {
	expected := s.Sign(e, prevSignature)
	return hmac.Equal([]byte(expected), []byte(e.Signature))
}

// deriveKey builds the HMAC key from the device fingerprint at the
// entry's timestamp, chained to the previous signature. Using the
// entry timestamp (not the wall clock) keeps verification stable
// across hour boundaries.
func (s *Signer) deriveKey(e Entry, prevSignature string) []byte {
	material := s.device.At(e.Timestamp) + ":" + prevSignature
	sum := sha256.Sum256([]byte(material))
	return sum[:]
}

// canonicalEntry produces the versioned canonical form of an entry's
// signed fields, in declared order.
func canonicalEntry(e Entry) []byte {
	return canonical.NewEncoder().
		Int("seq", int(e.Seq)).
		Field("timestamp", e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z")).
		Field("level", e.Level).
		Field("action", e.Action).
		Field("tool", e.Tool).
		Map("params", e.Params).
		Field("authority", e.Authority).
		Field("outcome", e.Outcome).
		Field("session_id", e.SessionID).
		Field("actor_id", e.ActorID).
		Bytes()
}
