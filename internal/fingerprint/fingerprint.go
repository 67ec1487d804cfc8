// Package fingerprint derives a coarse, hour-granularity device
// fingerprint. The audit chain mixes it into every signing key so that
// a copied log re-signed on another machine (or far outside its
// original time window) fails verification.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"
)

// machineIDPath is the systemd machine id, stable across reboots.
const machineIDPath = "/etc/machine-id"

// Provider returns the fingerprint for a given instant. The clock is a
// parameter so verification can re-derive historic windows.
type Provider struct {
	machineID string
}

// New probes the machine identity once and returns a provider.
func New() *Provider {
	return &Provider{machineID: readMachineID()}
}

// NewWithID returns a provider with a fixed machine identity. Used by
// tests and by verification of logs produced elsewhere.
func NewWithID(id string) *Provider {
	return &Provider{machineID: id}
}

// At returns the fingerprint for the hour window containing t.
func (p *Provider) At(t time.Time) string {
	window := t.UTC().Unix() / 3600
	sum := sha256.Sum256([]byte(p.machineID + ":" + strconv.FormatInt(window, 10)))
	return hex.EncodeToString(sum[:])
}

// MachineID exposes the probed identity for diagnostics.
func (p *Provider) MachineID() string {
	return p.machineID
}

func readMachineID() string {
	if data, err := os.ReadFile(machineIDPath); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}
	// Fallback for machines without systemd.
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown-device"
}
