package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	approveBallot   string
	approveApprover string
	approveReject   bool
)

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Work with approval ballots",
	Long: `Work with quorum approval ballots for elevated operations.

Votes are authenticated: each one carries an HMAC signature over the
ballot id, approver id, and verdict under the shared approval secret.`,
}

var approveSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Mint a vote signature for an external approval flow",
	Long: `Mint the HMAC signature an approver must present with a vote.

The signature binds the ballot id, the approver id, and the verdict,
so a signature for one vote cannot be replayed for another.

Examples:
  warden approve sign --ballot apr-1234 --approver alice
  warden approve sign --ballot apr-1234 --approver bob --reject`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if approveBallot == "" || approveApprover == "" {
			return fmt.Errorf("--ballot and --approver are required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		approvals, err := buildApprovals(cfg)
		if err != nil {
			return err
		}
		sig := approvals.SignVote(approveBallot, approveApprover, !approveReject)
		fmt.Println(sig)
		return nil
	},
}

func init() {
	approveSignCmd.Flags().StringVar(&approveBallot, "ballot", "", "Ballot id")
	approveSignCmd.Flags().StringVar(&approveApprover, "approver", "", "Approver id")
	approveSignCmd.Flags().BoolVar(&approveReject, "reject", false, "Sign a rejection instead of an approval")
	approveCmd.AddCommand(approveSignCmd)
	rootCmd.AddCommand(approveCmd)
}
