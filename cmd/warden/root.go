package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/boshu2/warden/internal/approval"
	"github.com/boshu2/warden/internal/audit"
	"github.com/boshu2/warden/internal/config"
	"github.com/boshu2/warden/internal/fingerprint"
	"github.com/boshu2/warden/internal/gates"
	"github.com/boshu2/warden/internal/incident"
	"github.com/boshu2/warden/internal/logging"
)

var (
	// Global flags
	verbose bool
	output  string
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Governance and trust kernel for autonomous agents",
	Long: `warden is the governance kernel for an autonomous-agent platform.

Every privileged action (file write, shell execution, deployment)
passes through warden before any effect is observable: the security
gate pipeline, the constitution, the authority hierarchy, and a
tamper-evident audit chain.

Core Commands:
  submit        Submit an operation for a governance verdict
  approve       Work with approval ballots
  audit         Verify and query the audit chain
  incident      Record and resolve operational incidents
  constitution  Inspect the constitutional ruleset
  levels        Show the authority hierarchy
  version       Show version information`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		syncConfigFlagToEnv()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (json, table, yaml)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.warden/config.yaml)")
}

// GetVerbose returns the verbose flag value for use by subcommands.
func GetVerbose() bool {
	return verbose
}

// GetOutput returns the output format for use by subcommands.
func GetOutput() string {
	return output
}

// GetConfigFile returns the config file path for use by subcommands.
func GetConfigFile() string {
	return cfgFile
}

func syncConfigFlagToEnv() {
	path := strings.TrimSpace(GetConfigFile())
	if path == "" {
		return
	}
	_ = os.Setenv("WARDEN_CONFIG", path)
}

// GetCurrentUser returns the current system username.
// Uses os/user package for reliable identity, not spoofable via env vars.
func GetCurrentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}

// loadConfig resolves the effective configuration for a command run.
func loadConfig() (*config.Config, error) {
	overrides := &config.Config{Verbose: GetVerbose()}
	if GetOutput() != "" {
		overrides.Output = GetOutput()
	}
	return config.Load(overrides)
}

// buildLogger assembles the process logger from config and installs it
// as the slog default.
func buildLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	logger, cleanup, err := logging.New(logging.Options{
		Verbose: cfg.Verbose,
		File:    cfg.Logging.File,
		Journal: cfg.Logging.Journal,
	})
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return logger, cleanup, nil
}

// openAuditStore builds the configured audit backend.
func openAuditStore(ctx context.Context, cfg *config.Config) (audit.Store, error) {
	signer := audit.NewSigner(fingerprint.New())
	switch cfg.Audit.Backend {
	case "", "file":
		return audit.NewFileStore(cfg.AuditPath(), signer)
	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return audit.NewMongoStore(connectCtx, audit.MongoConfig{
			URI:        cfg.Audit.MongoURI,
			DB:         cfg.Audit.MongoDatabase,
			Collection: cfg.Audit.MongoCollection,
		}, signer)
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Audit.Backend)
	}
}

// openIncidentTracker builds the incident tracker over its file store.
func openIncidentTracker(cfg *config.Config) (*incident.Tracker, error) {
	store, err := incident.NewFileStore(cfg.IncidentPath())
	if err != nil {
		return nil, err
	}
	return incident.NewTracker(store)
}

// buildApprovals builds the ballot service from the configured secret.
func buildApprovals(cfg *config.Config) (*approval.Service, error) {
	secret := cfg.Approval.Secret
	if secret == "" {
		return nil, fmt.Errorf("approval secret is not configured (set WARDEN_APPROVAL_SECRET)")
	}
	var opts []approval.Option
	if ttl, err := cfg.ApprovalTTL(); err != nil {
		return nil, err
	} else if ttl > 0 {
		opts = append(opts, approval.WithTTL(ttl))
	}
	return approval.NewService([]byte(secret), opts...), nil
}

// buildGates builds the security gate pipeline from config.
func buildGates(cfg *config.Config) (*gates.Coordinator, error) {
	mode := gates.ModeAllowlist
	if cfg.Gates.CommandMode == "denylist" {
		mode = gates.ModeDenylist
	}
	return gates.NewCoordinator(gates.Config{
		WorkspaceRoot:     cfg.Gates.WorkspaceRoot,
		ExtraAllowedHosts: cfg.Gates.AllowedHosts,
		CommandMode:       mode,
		SandboxEnabled:    cfg.Gates.SandboxEnabled,
	})
}
