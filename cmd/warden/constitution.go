package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boshu2/warden/internal/authority"
	"github.com/boshu2/warden/internal/constitution"
)

var constitutionCmd = &cobra.Command{
	Use:   "constitution",
	Short: "Inspect the constitutional ruleset",
	Long: `Inspect the immutable constraint set every operation is
validated against, and verify its integrity fingerprint.`,
}

var constitutionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the constitution and its fingerprint",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := constitution.New(nil, nil)

		if GetOutput() == "json" {
			out := struct {
				Version        string                    `json:"version"`
				Fingerprint    string                    `json:"fingerprint"`
				PrimeDirective string                    `json:"prime_directive"`
				Constraints    []constitution.Constraint `json:"constraints"`
			}{c.Version(), c.Fingerprint(), constitution.PrimeDirective, c.Constraints()}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		fmt.Printf("version:     %s\n", c.Version())
		fmt.Printf("fingerprint: %s\n", c.Fingerprint())
		fmt.Printf("\nPrime Directive:\n  %s\n\n", constitution.PrimeDirective)
		for _, con := range c.Constraints() {
			levels := make([]string, len(con.Levels))
			for i, l := range con.Levels {
				levels[i] = l.String()
			}
			fmt.Printf("%s: %s [%s]\n", con.Article, con.Title, con.Enforcement)
			fmt.Printf("  applies to: %s\n", strings.Join(levels, ", "))
		}
		return nil
	},
}

var constitutionVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-derive the immutability fingerprint",
	Long: `Re-derive the constitution's immutability fingerprint and
compare it with the one computed at load time. A mismatch means the
ruleset was altered at runtime.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := constitution.New(nil, nil)
		if !c.VerifyIntegrity() {
			return fmt.Errorf("constitution integrity check failed")
		}
		fmt.Printf("ok: fingerprint %s\n", c.Fingerprint())
		return nil
	},
}

var constitutionCheckCmd = &cobra.Command{
	Use:   "constraints <level>",
	Short: "Show the constraints that apply at an authority level",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := authority.Parse(args[0])
		if err != nil {
			return err
		}
		c := constitution.New(nil, nil)
		for _, con := range c.ConstraintsFor(level) {
			fmt.Printf("%s: %s [%s]\n", con.Article, con.Title, con.Enforcement)
		}
		return nil
	},
}

func init() {
	constitutionCmd.AddCommand(constitutionShowCmd)
	constitutionCmd.AddCommand(constitutionVerifyCmd)
	constitutionCmd.AddCommand(constitutionCheckCmd)
	rootCmd.AddCommand(constitutionCmd)
}
