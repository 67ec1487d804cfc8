package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/boshu2/warden/internal/incident"
)

var (
	incidentAgent     string
	incidentOperation string
	incidentDetails   []string
	incidentCause     string
	incidentRule      string
	incidentVerifier  string
	incidentAll       bool
)

var incidentCmd = &cobra.Command{
	Use:   "incident",
	Short: "Record and resolve operational incidents",
	Long: `Track operational failures: deployment failures, security
blocks, agent errors, and user rejections.

Two same-type incidents in one session trip the automation pause flag;
it clears only once the backlog is resolved.`,
}

var incidentRecordCmd = &cobra.Command{
	Use:   "record <type> <description>",
	Short: "Record a new incident",
	Long: `Record a new open incident.

Types: deployment_failure, security_block, agent_error, user_rejection

Examples:
  warden incident record deployment_failure "canary rollout failed health checks"
  warden incident record agent_error "planner crashed" --agent planner-2`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := incident.ParseType(args[0])
		if err != nil {
			return err
		}
		details, err := parseParams(incidentDetails)
		if err != nil {
			return err
		}

		tracker, err := incidentTrackerFromConfig()
		if err != nil {
			return err
		}
		id, err := tracker.Record(incident.Event{
			Type:        typ,
			Description: args[1],
			Agent:       incidentAgent,
			Operation:   incidentOperation,
			Details:     details,
		})
		if err != nil {
			return err
		}
		fmt.Println(id)
		if tracker.PauseTriggered() {
			fmt.Fprintln(os.Stderr, "warning: two-strike threshold reached, automation paused")
		}
		return nil
	},
}

var incidentResolveCmd = &cobra.Command{
	Use:   "resolve <incident-id>",
	Short: "Resolve an incident with a root-cause record",
	Long: `Attach a root-cause record to an open incident and close it.
The original incident fields are retained unmodified.

Examples:
  warden incident resolve INC-20260830-a1b2c3 \
    --cause "regex missed quoted payload" \
    --rule command_sanitizer --verifier operator`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tracker, err := incidentTrackerFromConfig()
		if err != nil {
			return err
		}
		ok, err := tracker.Resolve(args[0], incident.Resolution{
			Cause:          incidentCause,
			PreventionRule: incidentRule,
			Verifier:       incidentVerifier,
		})
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("resolved %s\n", args[0])
		}
		return nil
	},
}

var incidentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List incidents",
	RunE: func(cmd *cobra.Command, args []string) error {
		tracker, err := incidentTrackerFromConfig()
		if err != nil {
			return err
		}

		incidents := tracker.Open()
		if incidentAll {
			incidents = tracker.All()
		}

		if GetOutput() == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(incidents)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTIME\tTYPE\tSTATUS\tDESCRIPTION")
		for _, inc := range incidents {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				inc.ID, inc.Timestamp.Format(time.RFC3339), inc.Type,
				inc.Status, inc.Description)
		}
		return w.Flush()
	},
}

var incidentStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show incident totals, session counters, and MTTR",
	RunE: func(cmd *cobra.Command, args []string) error {
		tracker, err := incidentTrackerFromConfig()
		if err != nil {
			return err
		}
		stats := tracker.Stats()

		if GetOutput() == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		fmt.Printf("total:     %d\n", stats.Total)
		for status, n := range stats.ByStatus {
			fmt.Printf("  %s: %d\n", status, n)
		}
		fmt.Printf("paused:    %v\n", stats.PauseTriggered)
		fmt.Printf("mttr:      %.1fh\n", stats.MTTRHours)
		return nil
	},
}

func incidentTrackerFromConfig() (*incident.Tracker, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openIncidentTracker(cfg)
}

func init() {
	incidentRecordCmd.Flags().StringVar(&incidentAgent, "agent", "", "Originating agent id")
	incidentRecordCmd.Flags().StringVar(&incidentOperation, "operation", "", "Related operation id")
	incidentRecordCmd.Flags().StringArrayVar(&incidentDetails, "detail", nil, "Detail key=value (repeatable)")
	incidentResolveCmd.Flags().StringVar(&incidentCause, "cause", "", "Root cause")
	incidentResolveCmd.Flags().StringVar(&incidentRule, "rule", "", "The gate or rule that should have prevented it")
	incidentResolveCmd.Flags().StringVar(&incidentVerifier, "verifier", "", "Who verified the resolution")
	incidentListCmd.Flags().BoolVar(&incidentAll, "all", false, "Include resolved incidents")
	incidentCmd.AddCommand(incidentRecordCmd)
	incidentCmd.AddCommand(incidentResolveCmd)
	incidentCmd.AddCommand(incidentListCmd)
	incidentCmd.AddCommand(incidentStatsCmd)
	rootCmd.AddCommand(incidentCmd)
}
