package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/boshu2/warden/internal/authority"
)

var levelsCmd = &cobra.Command{
	Use:   "levels",
	Short: "Show the authority hierarchy",
	Long: `Display the six authority levels and their requirements:
approval, Byzantine quorum size, trust threshold, sandboxing, and
permitted capabilities.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if GetOutput() == "json" {
			var out []authority.Requirements
			for _, level := range authority.Levels() {
				out = append(out, authority.For(level))
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "LEVEL\tAPPROVAL\tQUORUM\tTRUST\tSANDBOX\tCAPABILITIES")
		for _, level := range authority.Levels() {
			req := authority.For(level)
			fmt.Fprintf(w, "%s\t%v\t%d\t%.2f\t%v\t%s\n",
				level, req.ApprovalNeeded, req.QuorumSize,
				req.TrustThreshold, req.SandboxRequired,
				strings.Join(req.Capabilities, ","))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(levelsCmd)
}
