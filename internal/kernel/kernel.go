// Package kernel orchestrates the governance pipeline. Every proposed
// operation runs through the security gates, the constitution, and the
// authority model before anything executes, and every step leaves an
// audit trace. The kernel owns its own counters; there is no global
// mutable state.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/boshu2/warden/internal/approval"
	"github.com/boshu2/warden/internal/audit"
	"github.com/boshu2/warden/internal/authority"
	"github.com/boshu2/warden/internal/capability"
	"github.com/boshu2/warden/internal/constitution"
	"github.com/boshu2/warden/internal/gates"
	"github.com/boshu2/warden/internal/incident"
	"github.com/boshu2/warden/internal/operation"
)

// Verdict is the kernel's answer for one submission.
type Verdict string

const (
	VerdictApproved        Verdict = "approved"
	VerdictPendingApproval Verdict = "pending_approval"
	VerdictRejected        Verdict = "rejected"
	VerdictBlocked         Verdict = "blocked"
)

// Stable, machine-parseable reason codes. Every rejection or block
// carries exactly one.
const (
	ReasonGateFailed        = "security_gate_failed"
	ReasonPrimeDirective    = "prime_directive_violation"
	ReasonProhibited        = "prohibited_operation"
	ReasonConstitutional    = "constitutional_violation"
	ReasonIntegrity         = "constitution_integrity"
	ReasonInsufficientLevel = "insufficient_authority"
	ReasonApprovalRequired  = "approval_required"
	ReasonExecutionFailed   = "execution_failed"
	ReasonExecutionTimeout  = "execution_timeout"
	ReasonAuditWriteFailed  = "audit_write_failed"
	ReasonDuplicate         = "duplicate_operation"
	ReasonUnknownCapability = "unknown_capability"
)

// Result is returned from Submit and ResumeApproved.
type Result struct {
	// Verdict is the pipeline outcome.
	Verdict Verdict `json:"verdict"`

	// ReasonCode is set for every non-approved verdict.
	ReasonCode string `json:"reason_code,omitempty"`

	// Detail is the human-readable explanation.
	Detail string `json:"detail,omitempty"`

	// Output is the executor's output on an approved verdict.
	Output string `json:"output,omitempty"`

	// ApprovalID references the open ballot on pending_approval.
	ApprovalID string `json:"approval_id,omitempty"`

	// QuorumSize is the required approval quorum on pending_approval.
	QuorumSize int `json:"quorum_size,omitempty"`

	// OperationID echoes the submitted operation's id.
	OperationID string `json:"operation_id"`
}

// Executor dispatches an approved operation to the external execution
// collaborator. The kernel bounds every call with its dispatch timeout.
type Executor interface {
	Execute(ctx context.Context, op operation.Operation) (string, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, op operation.Operation) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, op operation.Operation) (string, error) {
	return f(ctx, op)
}

// Metrics is a snapshot of kernel counters.
type Metrics struct {
	Executed  int64     `json:"executed"`
	Failed    int64     `json:"failed"`
	Rejected  int64     `json:"rejected"`
	Blocked   int64     `json:"blocked"`
	StartedAt time.Time `json:"started_at"`
}

// Config tunes one kernel instance.
type Config struct {
	// SessionID stamps audit entries for this kernel's lifetime.
	SessionID string

	// HighAssurance makes an audit write failure abort the operation
	// instead of proceeding with a log line. Fail closed: if the
	// permitted-action record cannot be written, nothing is permitted.
	HighAssurance bool

	// DispatchTimeout bounds every executor call. Default 30s.
	DispatchTimeout time.Duration

	// DedupWindow is how long a content hash blocks an identical
	// resubmission. Default 1 minute; 0 keeps the default, negative
	// disables deduplication.
	DedupWindow time.Duration
}

// Kernel is the orchestrating component. Safe for concurrent use.
type Kernel struct {
	constitution *constitution.Constitution
	gates        *gates.Coordinator
	auditor      audit.Store
	approvals    *approval.Service
	incidents    *incident.Tracker
	executor     Executor
	cfg          Config
	logger       *slog.Logger
	now          func() time.Time

	mu      sync.Mutex
	recent  map[string]time.Time
	pending map[string]operation.Operation
	metrics Metrics
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithLogger sets the kernel's logger.
func WithLogger(l *slog.Logger) Option {
	return func(k *Kernel) { k.logger = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(k *Kernel) { k.now = now }
}

// WithIncidents wires an incident tracker; blocked operations and
// execution failures are recorded there.
func WithIncidents(t *incident.Tracker) Option {
	return func(k *Kernel) { k.incidents = t }
}

// New assembles a kernel. Constitution, gates, audit store, approval
// service, and executor are all required.
func New(c *constitution.Constitution, g *gates.Coordinator, a audit.Store, ap *approval.Service, ex Executor, cfg Config, opts ...Option) (*Kernel, error) {
	if c == nil || g == nil || a == nil || ap == nil || ex == nil {
		return nil, errors.New("kernel requires constitution, gates, audit store, approvals, and executor")
	}
	if cfg.SessionID == "" {
		return nil, errors.New("kernel session id is required")
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 30 * time.Second
	}
	if cfg.DedupWindow == 0 {
		cfg.DedupWindow = time.Minute
	}

	k := &Kernel{
		constitution: c,
		gates:        g,
		auditor:      a,
		approvals:    ap,
		executor:     ex,
		cfg:          cfg,
		logger:       slog.Default(),
		now:          time.Now,
		recent:       make(map[string]time.Time),
		pending:      make(map[string]operation.Operation),
	}
	for _, opt := range opts {
		opt(k)
	}
	k.metrics.StartedAt = k.now().UTC()
	return k, nil
}

// Submit runs one operation through the full pipeline and returns a
// verdict. Every submission lands on the audit chain: a "pending"
// intent entry before the gates run, or a rejection entry when the
// submission is refused up front.
func (k *Kernel) Submit(ctx context.Context, op operation.Operation, actorLevel authority.Level) (Result, error) {
	res := Result{OperationID: op.ID}
	k.sweepPending(ctx)

	minLevel, err := capability.MinLevel(op.Capability)
	if err != nil {
		return k.settle(ctx, op, k.reject(res, ReasonUnknownCapability, err.Error())), nil
	}

	// The registry minimum binds the capability to its tier. Without
	// this check a privileged capability declared at a low level would
	// sail past the authority model and its quorum requirement.
	if op.Level < minLevel {
		detail := fmt.Sprintf("capability %s requires at least %s, operation declared %s",
			op.Capability, minLevel, op.Level)
		return k.settle(ctx, op, k.reject(res, ReasonInsufficientLevel, detail)), nil
	}

	if dup := k.checkDuplicate(op); dup {
		return k.settle(ctx, op, k.reject(res, ReasonDuplicate,
			fmt.Sprintf("operation content already submitted within %s", k.cfg.DedupWindow))), nil
	}

	if err := k.audit(ctx, op, audit.LevelOperation, "pending"); err != nil {
		if k.cfg.HighAssurance {
			k.count(func(m *Metrics) { m.Blocked++ })
			res.Verdict = VerdictBlocked
			res.ReasonCode = ReasonAuditWriteFailed
			res.Detail = "audit trail unavailable, refusing to proceed: " + err.Error()
			return res, nil
		}
		k.logger.Error("audit append failed, continuing", "operation", op.ID, "error", err)
	}

	report := k.gates.RunAll(gateRequest(op))
	if !report.OverallPassed {
		detail := gateDetail(report)
		k.recordIncident(incident.TypeSecurityBlock, op, detail)
		res.Verdict = VerdictBlocked
		res.ReasonCode = ReasonGateFailed
		res.Detail = detail
		return k.settle(ctx, op, res), nil
	}

	if err := k.constitution.Validate(op); err != nil {
		return k.constitutionalVerdict(ctx, res, op, err), nil
	}

	reqs := authority.For(op.Level)
	if !authority.IsAuthorized(op.Level, actorLevel) {
		detail := fmt.Sprintf("actor level %s below required %s", actorLevel, op.Level)
		return k.settle(ctx, op, k.reject(res, ReasonInsufficientLevel, detail)), nil
	}

	if reqs.ApprovalNeeded {
		ballot, err := k.approvals.Open(op.ID, op.Hash(), reqs.QuorumSize)
		if err != nil {
			return res, fmt.Errorf("open approval ballot: %w", err)
		}
		k.mu.Lock()
		k.pending[ballot.ID] = op
		k.mu.Unlock()

		k.logger.Info("operation parked for approval",
			"operation", op.ID, "ballot", ballot.ID, "quorum", ballot.Quorum)
		res.Verdict = VerdictPendingApproval
		res.ReasonCode = ReasonApprovalRequired
		res.Detail = fmt.Sprintf("requires %d approvals", ballot.Quorum)
		res.ApprovalID = ballot.ID
		res.QuorumSize = ballot.Quorum
		return res, nil
	}

	return k.dispatch(ctx, res, op), nil
}

// ResumeApproved executes an operation parked behind a ballot once the
// ballot reports approved. A pending or failed ballot leaves the
// operation parked; a rejected or expired ballot discards it.
func (k *Kernel) ResumeApproved(ctx context.Context, approvalID string) (Result, error) {
	k.mu.Lock()
	op, ok := k.pending[approvalID]
	k.mu.Unlock()
	if !ok {
		return Result{}, fmt.Errorf("no operation parked under approval %s", approvalID)
	}

	st, err := k.approvals.Status(approvalID)
	if err != nil {
		return Result{}, err
	}

	res := Result{OperationID: op.ID, ApprovalID: approvalID}
	switch st.Decision {
	case approval.DecisionApproved:
	case approval.DecisionPending:
		res.Verdict = VerdictPendingApproval
		res.ReasonCode = ReasonApprovalRequired
		res.Detail = fmt.Sprintf("%d of %d approvals collected", st.Approvals, st.Ballot.Quorum)
		return res, nil
	default:
		k.mu.Lock()
		delete(k.pending, approvalID)
		k.mu.Unlock()
		detail := fmt.Sprintf("approval ballot %s", st.Decision)
		return k.settle(ctx, op, k.reject(res, ReasonApprovalRequired, detail)), nil
	}

	k.mu.Lock()
	delete(k.pending, approvalID)
	k.mu.Unlock()
	return k.dispatch(ctx, res, op), nil
}

// Metrics returns a snapshot of the kernel's counters.
func (k *Kernel) Metrics() Metrics {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.metrics
}

// dispatch runs the executor under the dispatch timeout and audits the
// outcome. Execution failures are rejections, not blocks: they are
// operational faults, not security violations.
func (k *Kernel) dispatch(ctx context.Context, res Result, op operation.Operation) Result {
	execCtx, cancel := context.WithTimeout(ctx, k.cfg.DispatchTimeout)
	defer cancel()

	output, err := k.executor.Execute(execCtx, op)
	if err != nil {
		k.count(func(m *Metrics) { m.Failed++ })
		code := ReasonExecutionFailed
		if errors.Is(err, context.DeadlineExceeded) {
			code = ReasonExecutionTimeout
		}
		k.auditBestEffort(ctx, op, audit.LevelWarning, "failure:"+err.Error())
		k.recordIncident(incident.TypeAgentError, op, err.Error())
		k.logger.Warn("execution failed", "operation", op.ID, "error", err)
		return k.reject(res, code, err.Error())
	}

	k.count(func(m *Metrics) { m.Executed++ })
	k.auditBestEffort(ctx, op, audit.LevelOperation, "success")
	k.logger.Info("operation executed", "operation", op.ID, "capability", op.Capability)
	res.Verdict = VerdictApproved
	res.Output = output
	return res
}

// constitutionalVerdict maps a constitution error to a verdict. Prime
// directive and prohibited-operation hits are blocks; integrity
// failures block at the highest severity; other constraint violations
// are policy rejections.
func (k *Kernel) constitutionalVerdict(ctx context.Context, res Result, op operation.Operation, err error) Result {
	var violation *constitution.ViolationError
	if !errors.As(err, &violation) {
		return k.settle(ctx, op, k.reject(res, ReasonConstitutional, err.Error()))
	}

	res.Detail = violation.Error()
	res.ReasonCode = string(violation.Kind)
	switch violation.Kind {
	case constitution.KindIntegrity:
		res.Verdict = VerdictBlocked
	case constitution.KindPrimeDirective, constitution.KindProhibited:
		k.recordIncident(incident.TypeSecurityBlock, op, violation.Error())
		res.Verdict = VerdictBlocked
	default:
		res.Verdict = VerdictRejected
	}
	return k.settle(ctx, op, res)
}

// checkDuplicate records the operation's content hash and reports
// whether an identical submission was seen within the dedup window.
func (k *Kernel) checkDuplicate(op operation.Operation) bool {
	if k.cfg.DedupWindow < 0 {
		return false
	}
	hash := op.ContentHash()
	now := k.now()

	k.mu.Lock()
	defer k.mu.Unlock()
	for h, seen := range k.recent {
		if now.Sub(seen) > k.cfg.DedupWindow {
			delete(k.recent, h)
		}
	}
	if _, ok := k.recent[hash]; ok {
		return true
	}
	k.recent[hash] = now
	return false
}

// sweepPending discards parked operations whose ballots resolved
// against them without ever being resumed, so a long-lived kernel does
// not accumulate dead entries. Runs lazily on every Submit, like the
// dedup map pruning.
func (k *Kernel) sweepPending(ctx context.Context) {
	k.mu.Lock()
	ids := make([]string, 0, len(k.pending))
	for id := range k.pending {
		ids = append(ids, id)
	}
	k.mu.Unlock()

	for _, id := range ids {
		st, err := k.approvals.Status(id)
		if err != nil {
			continue
		}
		if st.Decision != approval.DecisionExpired && st.Decision != approval.DecisionRejected {
			continue
		}
		k.mu.Lock()
		op, ok := k.pending[id]
		delete(k.pending, id)
		k.mu.Unlock()
		if !ok {
			continue
		}
		k.count(func(m *Metrics) { m.Rejected++ })
		k.auditBestEffort(ctx, op, audit.LevelWarning,
			fmt.Sprintf("rejected:approval ballot %s", st.Decision))
		k.logger.Info("parked operation discarded",
			"operation", op.ID, "ballot", id, "decision", st.Decision)
	}
}

// settle records a verdict decided before any execution, then bumps
// the matching counter. In high-assurance mode an unwritable outcome
// record overrides the verdict: a block or rejection that cannot be
// put on the chain is itself an audit failure.
func (k *Kernel) settle(ctx context.Context, op operation.Operation, res Result) Result {
	level := audit.LevelWarning
	if res.ReasonCode == ReasonIntegrity {
		level = audit.LevelCritical
	}
	outcome := string(res.Verdict) + ":" + res.Detail
	if err := k.audit(ctx, op, level, outcome); err != nil {
		if k.cfg.HighAssurance {
			res.Verdict = VerdictBlocked
			res.ReasonCode = ReasonAuditWriteFailed
			res.Detail = "audit trail unavailable, refusing to proceed: " + err.Error()
		} else {
			k.logger.Error("audit append failed", "operation", op.ID, "outcome", outcome, "error", err)
		}
	}
	k.count(func(m *Metrics) {
		if res.Verdict == VerdictBlocked {
			m.Blocked++
		} else {
			m.Rejected++
		}
	})
	return res
}

func (k *Kernel) reject(res Result, code, detail string) Result {
	res.Verdict = VerdictRejected
	res.ReasonCode = code
	res.Detail = detail
	return res
}

func (k *Kernel) count(apply func(*Metrics)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	apply(&k.metrics)
}

// audit appends one entry for the operation.
func (k *Kernel) audit(ctx context.Context, op operation.Operation, level, outcome string) error {
	_, err := k.auditor.Append(ctx, audit.Record{
		Level:     level,
		Action:    string(op.Capability),
		Tool:      toolFor(op.Capability),
		Params:    op.Params,
		Authority: op.Level.String(),
		Outcome:   outcome,
		SessionID: k.cfg.SessionID,
		ActorID:   op.Actor,
	})
	return err
}

// auditBestEffort logs instead of failing when the entry cannot be
// written; the step-1 pending entry already holds the intent record.
func (k *Kernel) auditBestEffort(ctx context.Context, op operation.Operation, level, outcome string) {
	if err := k.audit(ctx, op, level, outcome); err != nil {
		k.logger.Error("audit append failed", "operation", op.ID, "outcome", outcome, "error", err)
	}
}

func (k *Kernel) recordIncident(typ incident.Type, op operation.Operation, detail string) {
	if k.incidents == nil {
		return
	}
	_, err := k.incidents.Record(incident.Event{
		Type:        typ,
		Description: detail,
		Agent:       op.Actor,
		Operation:   op.ID,
	})
	if err != nil {
		k.logger.Error("incident record failed", "operation", op.ID, "error", err)
	}
}

// gateRequest maps operation fields onto the gate request. Only the
// params an operation actually carries get checked.
func gateRequest(op operation.Operation) gates.Request {
	return gates.Request{
		Prompt:        strings.TrimSpace(op.Description + " " + op.Params["prompt"]),
		Command:       op.Params["command"],
		OperationName: string(op.Capability),
		URL:           op.Params["url"],
		Path:          op.Params["path"],
		Texts:         op.Params,
	}
}

// gateDetail joins every failing gate's reason so simultaneous
// failures are all reported.
func gateDetail(report gates.Report) string {
	var parts []string
	for _, r := range report.Failing() {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Gate, r.Reason))
	}
	return strings.Join(parts, "; ")
}

// toolFor maps a capability to its originating tool category for the
// audit trail.
func toolFor(c capability.Capability) string {
	switch c {
	case capability.FileRead, capability.FileWrite, capability.FileDelete, capability.DirList:
		return "filesystem"
	case capability.ShellExec, capability.SystemModify:
		return "shell"
	case capability.WebSearch, capability.APIQueryGet, capability.NetworkWrite:
		return "network"
	case capability.CodeAnalyzer, capability.Research, capability.ReadDocs:
		return "analysis"
	default:
		return "compute"
	}
}
