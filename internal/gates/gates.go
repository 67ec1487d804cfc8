// Package gates implements the security gate pipeline: six
// independent checkers, each inspecting one aspect of a request, and a
// coordinator that fans the applicable gates out concurrently and
// aggregates their verdicts. Gates are stateless per call apart from
// cumulative threat counters kept for reporting.
package gates

import (
	"errors"
	"sync"
)

// Gate names, stable identifiers used in results and audit records.
const (
	GateInjection  = "prompt_injection"
	GateCommand    = "command_sanitizer"
	GateSandbox    = "sandbox_enforcer"
	GateCredential = "credential_guard"
	GateNetwork    = "network_allowlist"
	GateWorkspace  = "workspace_boundary"
)

// ErrWorkspaceRootRequired is returned by NewCoordinator when no
// workspace root is configured.
var ErrWorkspaceRootRequired = errors.New("workspace root is required")

// Result is a single gate's verdict. Passed and ThreatDetected are
// distinct: a gate may pass a borderline case while still flagging it
// for the audit trail.
type Result struct {
	// Gate is the name of the gate that produced this result.
	Gate string `json:"gate"`

	// Passed is whether the request cleared this gate.
	Passed bool `json:"passed"`

	// ThreatDetected flags the request for audit even when passed.
	ThreatDetected bool `json:"threat_detected"`

	// Reason explains a failure or flag in human-readable form.
	Reason string `json:"reason,omitempty"`
}

// Request carries the fields of a proposed operation that gates
// inspect. Only the populated fields are checked.
type Request struct {
	// Prompt is user input or tool output to scan for injection.
	Prompt string

	// Command is a shell command to sanitize.
	Command string

	// OperationName is checked against the high-risk sandbox set.
	OperationName string

	// URL is an outbound network target.
	URL string

	// Path is a filesystem path to confine to the workspace.
	Path string

	// Texts are additional free-text fields scanned for credential
	// exposure alongside the fields above.
	Texts map[string]string
}

// Report aggregates all gate results for one request.
type Report struct {
	// OverallPassed is the logical AND of every individual pass.
	OverallPassed bool `json:"overall_passed"`

	// ThreatDetected is the logical OR of every threat flag.
	ThreatDetected bool `json:"threat_detected"`

	// Results holds one entry per gate check that ran.
	Results []Result `json:"results"`
}

// Failing returns the results that did not pass.
func (r Report) Failing() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// Config is process-wide gate configuration, fixed at construction.
type Config struct {
	// WorkspaceRoot confines file operations. Mandatory.
	WorkspaceRoot string

	// ExtraAllowedHosts are merged into the default network allowlist.
	ExtraAllowedHosts []string

	// CommandMode selects allowlist (default) or denylist-only
	// command sanitization.
	CommandMode CommandMode

	// SandboxEnabled toggles the sandbox-requirement gate.
	SandboxEnabled bool
}

// Coordinator owns the six gates and runs the applicable subset for
// each request.
type Coordinator struct {
	injection  *InjectionScanner
	command    *CommandSanitizer
	sandbox    *SandboxEnforcer
	credential *CredentialGuard
	network    *NetworkAllowlist
	workspace  *WorkspaceBoundary
}

// NewCoordinator builds the pipeline from process-wide configuration.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.WorkspaceRoot == "" {
		return nil, ErrWorkspaceRootRequired
	}
	workspace, err := NewWorkspaceBoundary(cfg.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		injection:  NewInjectionScanner(),
		command:    NewCommandSanitizer(cfg.CommandMode),
		sandbox:    NewSandboxEnforcer(cfg.SandboxEnabled),
		credential: NewCredentialGuard(),
		network:    NewNetworkAllowlist(cfg.ExtraAllowedHosts),
		workspace:  workspace,
	}, nil
}

// RunAll executes every gate relevant to the populated request fields.
// Independent gates run concurrently; the aggregate pass is the AND of
// individual passes and the aggregate threat flag is the OR.
func (c *Coordinator) RunAll(req Request) Report {
	var checks []func() []Result

	if req.Prompt != "" {
		checks = append(checks, func() []Result {
			return []Result{c.injection.Check(req.Prompt)}
		})
	}
	if req.Command != "" {
		checks = append(checks, func() []Result {
			return []Result{c.command.Check(req.Command)}
		})
	}
	if req.OperationName != "" {
		checks = append(checks, func() []Result {
			return []Result{c.sandbox.Check(req.OperationName)}
		})
	}
	if req.URL != "" {
		checks = append(checks, func() []Result {
			return []Result{c.network.Check(req.URL)}
		})
	}
	if req.Path != "" {
		checks = append(checks, func() []Result {
			return []Result{c.workspace.Check(req.Path)}
		})
	}
	if texts := credentialTexts(req); len(texts) > 0 {
		checks = append(checks, func() []Result {
			var out []Result
			for _, text := range texts {
				res := c.credential.Check(text)
				if !res.Passed {
					out = append(out, res)
				}
			}
			if len(out) == 0 {
				out = append(out, Result{Gate: GateCredential, Passed: true})
			}
			return out
		})
	}

	results := make([][]Result, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = check()
		}()
	}
	wg.Wait()

	report := Report{OverallPassed: true}
	for _, group := range results {
		for _, res := range group {
			report.Results = append(report.Results, res)
			if !res.Passed {
				report.OverallPassed = false
			}
			if res.ThreatDetected {
				report.ThreatDetected = true
			}
		}
	}
	return report
}

// credentialTexts collects every free-text field that should be
// scanned for secret-shaped strings.
func credentialTexts(req Request) []string {
	var out []string
	for _, s := range []string{req.Prompt, req.Command, req.URL, req.Path} {
		if s != "" {
			out = append(out, s)
		}
	}
	for _, s := range req.Texts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ThreatCounts reports cumulative threats seen per gate since
// construction. Reporting only; not used in any decision.
func (c *Coordinator) ThreatCounts() map[string]int64 {
	return map[string]int64{
		GateInjection:  c.injection.Threats(),
		GateCommand:    c.command.Threats(),
		GateSandbox:    c.sandbox.Threats(),
		GateCredential: c.credential.Threats(),
		GateNetwork:    c.network.Threats(),
		GateWorkspace:  c.workspace.Threats(),
	}
}
