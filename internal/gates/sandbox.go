package gates

import (
	"fmt"
	"sync/atomic"
)

// highRiskOperations must run sandboxed. Advisory metadata for the
// caller; this gate is not itself an isolation mechanism.
var highRiskOperations = map[string]bool{
	"terminal.execute":      true,
	"filesystem.delete":     true,
	"docker.run":            true,
	"code_analyzer.execute": true,
	"shell_exec":            true,
	"file_delete":           true,
}

// SandboxEnforcer flags operations that require sandboxed execution.
type SandboxEnforcer struct {
	enabled bool
	threats atomic.Int64
}

// NewSandboxEnforcer returns the gate; when disabled it passes
// everything.
func NewSandboxEnforcer(enabled bool) *SandboxEnforcer {
	return &SandboxEnforcer{enabled: enabled}
}

// Check reports whether the named operation requires a sandbox. The
// result still passes: the flag is carried via ThreatDetected and the
// reason so callers can route execution accordingly.
func (s *SandboxEnforcer) Check(operationName string) Result {
	if !s.enabled || !highRiskOperations[operationName] {
		return Result{Gate: GateSandbox, Passed: true}
	}
	s.threats.Add(1)
	return Result{
		Gate:           GateSandbox,
		Passed:         true,
		ThreatDetected: true,
		Reason:         fmt.Sprintf("operation %q requires sandboxed execution", operationName),
	}
}

// Threats returns the cumulative count of sandbox-required hits.
func (s *SandboxEnforcer) Threats() int64 {
	return s.threats.Load()
}
