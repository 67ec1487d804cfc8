package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/boshu2/warden/internal/audit"
)

var (
	auditVerifyLimit int
	auditQueryLevel  string
	auditQueryTool   string
	auditQueryLimit  int
	auditQuerySince  string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Verify and query the audit chain",
	Long: `Work with the tamper-evident audit chain.

Every governance decision appends a hash-linked entry; editing any
historical entry invalidates every signature after it.`,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-derive signatures and report chain integrity",
	Long: `Walk the chain oldest to newest, re-deriving each signature.

A clean sweep reports zero invalid entries. Any invalid entry means
the store was edited after the fact; everything after the edit will
also fail, which pinpoints where the history diverged.

Examples:
  warden audit verify
  warden audit verify --limit 1000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
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

		limit := auditVerifyLimit
		if limit == 0 {
			limit = cfg.Audit.VerifyLimit
		}
		report, err := store.Verify(ctx, limit)
		if err != nil {
			return err
		}

		if GetOutput() == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		fmt.Printf("checked: %d\n", report.Checked)
		fmt.Printf("valid:   %d\n", report.Valid)
		fmt.Printf("invalid: %d\n", report.Invalid)
		if len(report.BadSeqs) > 0 {
			fmt.Printf("bad seqs: %v\n", report.BadSeqs)
			return fmt.Errorf("audit chain integrity failure")
		}
		return nil
	},
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query audit entries",
	Long: `Query audit entries by severity, tool, and time range.
Newest entries first. This is a pure read path.

Examples:
  warden audit query --level CRITICAL
  warden audit query --tool filesystem --limit 20
  warden audit query --since 24h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
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

		filter := audit.Filter{
			Level: auditQueryLevel,
			Tool:  auditQueryTool,
			Limit: auditQueryLimit,
		}
		if auditQuerySince != "" {
			d, err := time.ParseDuration(auditQuerySince)
			if err != nil {
				return fmt.Errorf("parse --since: %w", err)
			}
			filter.From = time.Now().UTC().Add(-d)
		}

		entries, err := store.Query(ctx, filter)
		if err != nil {
			return err
		}

		if GetOutput() == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tTIME\tLEVEL\tACTION\tTOOL\tOUTCOME\tACTOR")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Seq, e.Timestamp.Format(time.RFC3339), e.Level,
				e.Action, e.Tool, e.Outcome, e.ActorID)
		}
		return w.Flush()
	},
}

func init() {
	auditVerifyCmd.Flags().IntVar(&auditVerifyLimit, "limit", 0, "Verify only the last N entries (0 = full chain)")
	auditQueryCmd.Flags().StringVar(&auditQueryLevel, "level", "", "Filter by severity (INFO, OPERATION, WARNING, CRITICAL)")
	auditQueryCmd.Flags().StringVar(&auditQueryTool, "tool", "", "Filter by originating tool")
	auditQueryCmd.Flags().IntVar(&auditQueryLimit, "limit", 0, "Maximum entries to return (default 100)")
	auditQueryCmd.Flags().StringVar(&auditQuerySince, "since", "", "Only entries newer than this duration (e.g. 24h)")
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditQueryCmd)
	rootCmd.AddCommand(auditCmd)
}
