package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boshu2/warden/internal/approval"
	"github.com/boshu2/warden/internal/authority"
	"github.com/boshu2/warden/internal/capability"
	"github.com/boshu2/warden/internal/constitution"
	"github.com/boshu2/warden/internal/kernel"
	"github.com/boshu2/warden/internal/operation"
)

var (
	submitActor       string
	submitLevel       string
	submitDescription string
	submitParams      []string
	submitApproveAs   []string
)

var submitCmd = &cobra.Command{
	Use:   "submit <capability>",
	Short: "Submit an operation for a governance verdict",
	Long: `Submit a proposed operation to the governance kernel.

The operation runs through the security gate pipeline, the
constitution, and the authority model, and a verdict comes back:
approved, pending_approval, rejected, or blocked. Every step is
recorded on the audit chain.

Elevated operations (FILE_WRITE and above) require a Byzantine quorum
of approvals. Repeated --approve-as flags cast signed votes on the
opened ballot; when the quorum is met in-process, the operation
executes immediately. Otherwise the ballot id is printed for an
external approval flow.

Examples:
  warden submit file_read --level FILE_READ --param path=./notes.md
  warden submit file_write --level FILE_WRITE \
    --param path=./app.py --param content='print(1)' \
    --approve-as alice --approve-as bob --approve-as carol --approve-as dave
  warden submit shell_exec --level SYSTEM_EXEC --param command='go test ./...'`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitActor, "actor", "", "Requesting actor id (default: current user)")
	submitCmd.Flags().StringVar(&submitLevel, "level", "", "Authority level (READ_ONLY .. SYSTEM_EXEC)")
	submitCmd.Flags().StringVar(&submitDescription, "description", "", "Free-text intent description")
	submitCmd.Flags().StringArrayVar(&submitParams, "param", nil, "Operation parameter key=value (repeatable)")
	submitCmd.Flags().StringArrayVar(&submitApproveAs, "approve-as", nil, "Cast an approval vote as this approver (repeatable)")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	cap, err := capability.Parse(args[0])
	if err != nil {
		return err
	}

	level, err := resolveLevel(cap)
	if err != nil {
		return err
	}

	actor := submitActor
	if actor == "" {
		actor = GetCurrentUser()
	}

	params, err := parseParams(submitParams)
	if err != nil {
		return err
	}

	op, err := operation.New(actor, cap, params, level, submitDescription)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := openAuditStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close() //nolint:errcheck // shutdown path
	}()

	tracker, err := openIncidentTracker(cfg)
	if err != nil {
		return err
	}
	approvals, err := buildApprovals(cfg)
	if err != nil {
		return err
	}
	coordinator, err := buildGates(cfg)
	if err != nil {
		return err
	}

	dispatchTimeout, err := cfg.DispatchTimeout()
	if err != nil {
		return err
	}
	dedupWindow, err := cfg.DedupWindow()
	if err != nil {
		return err
	}

	k, err := kernel.New(
		constitution.New(nil, logger),
		coordinator,
		store,
		approvals,
		kernel.ExecutorFunc(acknowledgeExecutor),
		kernel.Config{
			SessionID:       "cli-" + GetCurrentUser(),
			HighAssurance:   cfg.Kernel.HighAssurance,
			DispatchTimeout: dispatchTimeout,
			DedupWindow:     dedupWindow,
		},
		kernel.WithLogger(logger),
		kernel.WithIncidents(tracker),
	)
	if err != nil {
		return err
	}

	res, err := k.Submit(ctx, op, level)
	if err != nil {
		return err
	}

	if res.Verdict == kernel.VerdictPendingApproval && len(submitApproveAs) > 0 {
		res, err = castVotes(ctx, k, approvals, res)
		if err != nil {
			return err
		}
	}

	return printResult(res)
}

// acknowledgeExecutor stands in for the external agent-execution
// collaborator: warden governs, it does not run tools itself.
func acknowledgeExecutor(ctx context.Context, op operation.Operation) (string, error) {
	return fmt.Sprintf("cleared for dispatch: %s by %s", op.Capability, op.Actor), nil
}

// castVotes signs and casts one approval per --approve-as flag, then
// resumes the operation if the ballot reached quorum.
func castVotes(ctx context.Context, k *kernel.Kernel, approvals *approval.Service, res kernel.Result) (kernel.Result, error) {
	for _, approver := range submitApproveAs {
		sig := approvals.SignVote(res.ApprovalID, approver, true)
		if _, err := approvals.Vote(res.ApprovalID, approver, true, sig); err != nil {
			return res, fmt.Errorf("vote as %s: %w", approver, err)
		}
		fmt.Printf("vote cast: %s approved ballot %s\n", approver, res.ApprovalID)
	}
	return k.ResumeApproved(ctx, res.ApprovalID)
}

// resolveLevel picks the operation's authority level: the --level flag
// when given, the capability's registry minimum otherwise. A flag below
// the registry minimum is refused rather than silently raised.
func resolveLevel(cap capability.Capability) (authority.Level, error) {
	min, err := capability.MinLevel(cap)
	if err != nil {
		return 0, err
	}
	if submitLevel == "" {
		return min, nil
	}
	level, err := authority.Parse(submitLevel)
	if err != nil {
		return 0, err
	}
	if level < min {
		return 0, fmt.Errorf("capability %s requires at least %s", cap, min)
	}
	return level, nil
}

func parseParams(pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, want key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}

func printResult(res kernel.Result) error {
	if GetOutput() == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Printf("verdict:   %s\n", res.Verdict)
	fmt.Printf("operation: %s\n", res.OperationID)
	if res.ReasonCode != "" {
		fmt.Printf("reason:    %s\n", res.ReasonCode)
	}
	if res.Detail != "" {
		fmt.Printf("detail:    %s\n", res.Detail)
	}
	if res.ApprovalID != "" {
		fmt.Printf("approval:  %s (quorum %d)\n", res.ApprovalID, res.QuorumSize)
	}
	if res.Output != "" {
		fmt.Printf("output:    %s\n", res.Output)
	}
	return nil
}
