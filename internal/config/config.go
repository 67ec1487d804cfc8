// Package config provides configuration management for Warden.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (WARDEN_*)
// 3. Project config (.warden/config.yaml in cwd)
// 4. Home config (~/.warden/config.yaml)
// 5. Defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Warden configuration.
type Config struct {
	// Output controls the default output format (table, json, yaml).
	Output string `yaml:"output" json:"output"`

	// BaseDir is the Warden data directory (default: .warden).
	BaseDir string `yaml:"base_dir" json:"base_dir"`

	// Verbose enables verbose output.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// Gates settings
	Gates GatesConfig `yaml:"gates" json:"gates"`

	// Audit settings
	Audit AuditConfig `yaml:"audit" json:"audit"`

	// Kernel settings
	Kernel KernelConfig `yaml:"kernel" json:"kernel"`

	// Approval settings
	Approval ApprovalConfig `yaml:"approval" json:"approval"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// GatesConfig holds security gate pipeline settings.
type GatesConfig struct {
	// WorkspaceRoot confines file operations. Mandatory at kernel
	// construction; default is the current working directory.
	WorkspaceRoot string `yaml:"workspace_root" json:"workspace_root"`

	// AllowedHosts are merged into the default network allowlist.
	AllowedHosts []string `yaml:"allowed_hosts" json:"allowed_hosts"`

	// CommandMode selects command sanitization: "allowlist" (default)
	// or "denylist".
	CommandMode string `yaml:"command_mode" json:"command_mode"`

	// SandboxEnabled toggles the sandbox-requirement gate.
	SandboxEnabled bool `yaml:"sandbox_enabled" json:"sandbox_enabled"`
}

// AuditConfig holds audit chain settings.
type AuditConfig struct {
	// Backend selects the store: "file" (default) or "mongo".
	Backend string `yaml:"backend" json:"backend"`

	// Path is the JSONL file for the file backend, relative to
	// BaseDir unless absolute.
	Path string `yaml:"path" json:"path"`

	// MongoURI is the connection string for the mongo backend.
	MongoURI string `yaml:"mongo_uri" json:"mongo_uri"`

	// MongoDatabase is the database name for the mongo backend.
	MongoDatabase string `yaml:"mongo_database" json:"mongo_database"`

	// MongoCollection is the collection name for the mongo backend.
	MongoCollection string `yaml:"mongo_collection" json:"mongo_collection"`

	// VerifyLimit caps how many trailing entries a default
	// verification sweep checks. 0 means the full chain.
	VerifyLimit int `yaml:"verify_limit" json:"verify_limit"`
}

// KernelConfig holds governance kernel settings.
type KernelConfig struct {
	// HighAssurance makes audit write failures abort the operation.
	HighAssurance bool `yaml:"high_assurance" json:"high_assurance"`

	// DispatchTimeout bounds executor calls (Go duration string).
	DispatchTimeout string `yaml:"dispatch_timeout" json:"dispatch_timeout"`

	// DedupWindow is how long identical resubmissions are rejected
	// (Go duration string).
	DedupWindow string `yaml:"dedup_window" json:"dedup_window"`

	// IncidentPath is the incident JSONL file, relative to BaseDir
	// unless absolute.
	IncidentPath string `yaml:"incident_path" json:"incident_path"`
}

// ApprovalConfig holds quorum ballot settings.
type ApprovalConfig struct {
	// Secret keys the HMAC used to authenticate votes. Prefer the
	// WARDEN_APPROVAL_SECRET environment variable over the file.
	Secret string `yaml:"secret" json:"secret"`

	// TTL is how long a ballot stays open (Go duration string).
	TTL string `yaml:"ttl" json:"ttl"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// File is an optional JSON log file path.
	File string `yaml:"file" json:"file"`

	// Journal mirrors logs to the systemd journal when available.
	Journal bool `yaml:"journal" json:"journal"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput  = "table"
	defaultBaseDir = ".warden"
)

// Default returns the default configuration.
func Default() *Config {
	cwd, _ := os.Getwd()
	return &Config{
		Output:  defaultOutput,
		BaseDir: defaultBaseDir,
		Verbose: false,
		Gates: GatesConfig{
			WorkspaceRoot: cwd,
			CommandMode:   "allowlist",
		},
		Audit: AuditConfig{
			Backend:         "file",
			Path:            "audit.jsonl",
			MongoDatabase:   "warden",
			MongoCollection: "audit",
		},
		Kernel: KernelConfig{
			DispatchTimeout: "30s",
			DedupWindow:     "1m",
			IncidentPath:    "incidents.jsonl",
		},
		Approval: ApprovalConfig{
			TTL: "1h",
		},
	}
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	homeConfig, _ := loadFromPath(homeConfigPath())
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	projectConfig, _ := loadFromPath(projectConfigPath())
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	cfg = applyEnv(cfg)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	return cfg, nil
}

// DispatchTimeout parses the kernel dispatch timeout.
func (c *Config) DispatchTimeout() (time.Duration, error) {
	return parseDuration("kernel.dispatch_timeout", c.Kernel.DispatchTimeout)
}

// DedupWindow parses the kernel dedup window.
func (c *Config) DedupWindow() (time.Duration, error) {
	return parseDuration("kernel.dedup_window", c.Kernel.DedupWindow)
}

// ApprovalTTL parses the ballot lifetime.
func (c *Config) ApprovalTTL() (time.Duration, error) {
	return parseDuration("approval.ttl", c.Approval.TTL)
}

// AuditPath resolves the file-backend audit path against BaseDir.
func (c *Config) AuditPath() string {
	return c.resolve(c.Audit.Path)
}

// IncidentPath resolves the incident store path against BaseDir.
func (c *Config) IncidentPath() string {
	return c.resolve(c.Kernel.IncidentPath)
}

func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.BaseDir, path)
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".warden", "config.yaml")
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("WARDEN_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".warden", "config.yaml")
}

// loadFromPath loads config from a YAML file.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("WARDEN_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("WARDEN_BASE_DIR"); v != "" {
		cfg.BaseDir = v
	}
	if v := os.Getenv("WARDEN_VERBOSE"); v == "true" || v == "1" {
		cfg.Verbose = true
	}
	if v := os.Getenv("WARDEN_WORKSPACE_ROOT"); v != "" {
		cfg.Gates.WorkspaceRoot = v
	}
	if v := os.Getenv("WARDEN_ALLOWED_HOSTS"); v != "" {
		cfg.Gates.AllowedHosts = splitHosts(v)
	}
	if v := os.Getenv("WARDEN_COMMAND_MODE"); v != "" {
		cfg.Gates.CommandMode = v
	}
	if v := os.Getenv("WARDEN_SANDBOX"); v == "true" || v == "1" {
		cfg.Gates.SandboxEnabled = true
	}
	if v := os.Getenv("WARDEN_AUDIT_BACKEND"); v != "" {
		cfg.Audit.Backend = v
	}
	if v := os.Getenv("WARDEN_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}
	if v := os.Getenv("WARDEN_MONGO_URI"); v != "" {
		cfg.Audit.MongoURI = v
	}
	if v := os.Getenv("WARDEN_HIGH_ASSURANCE"); v == "true" || v == "1" {
		cfg.Kernel.HighAssurance = true
	}
	if v := os.Getenv("WARDEN_DISPATCH_TIMEOUT"); v != "" {
		cfg.Kernel.DispatchTimeout = v
	}
	if v := os.Getenv("WARDEN_DEDUP_WINDOW"); v != "" {
		cfg.Kernel.DedupWindow = v
	}
	if v := os.Getenv("WARDEN_APPROVAL_SECRET"); v != "" {
		cfg.Approval.Secret = v
	}
	if v := os.Getenv("WARDEN_APPROVAL_TTL"); v != "" {
		cfg.Approval.TTL = v
	}
	if v := os.Getenv("WARDEN_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("WARDEN_LOG_JOURNAL"); v == "true" || v == "1" {
		cfg.Logging.Journal = true
	}
	return cfg
}

func splitHosts(v string) []string {
	var out []string
	for _, h := range strings.Split(v, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// mergeStr overwrites dst with src when src is non-empty.
func mergeStr(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// mergeInt overwrites dst with src when src is non-zero.
func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

// merge merges src into dst, with src values taking precedence.
// Booleans only merge upward: an explicit false cannot be
// distinguished from unset in YAML without pointer fields.
func merge(dst, src *Config) *Config {
	mergeStr(&dst.Output, src.Output)
	mergeStr(&dst.BaseDir, src.BaseDir)
	if src.Verbose {
		dst.Verbose = true
	}

	mergeGates(&dst.Gates, &src.Gates)
	mergeAudit(&dst.Audit, &src.Audit)
	mergeKernel(&dst.Kernel, &src.Kernel)
	mergeApproval(&dst.Approval, &src.Approval)
	mergeLogging(&dst.Logging, &src.Logging)

	return dst
}

// mergeGates merges gate-specific config fields.
func mergeGates(dst, src *GatesConfig) {
	mergeStr(&dst.WorkspaceRoot, src.WorkspaceRoot)
	mergeStr(&dst.CommandMode, src.CommandMode)
	if len(src.AllowedHosts) > 0 {
		dst.AllowedHosts = append([]string(nil), src.AllowedHosts...)
	}
	if src.SandboxEnabled {
		dst.SandboxEnabled = true
	}
}

// mergeAudit merges audit-specific config fields.
func mergeAudit(dst, src *AuditConfig) {
	mergeStr(&dst.Backend, src.Backend)
	mergeStr(&dst.Path, src.Path)
	mergeStr(&dst.MongoURI, src.MongoURI)
	mergeStr(&dst.MongoDatabase, src.MongoDatabase)
	mergeStr(&dst.MongoCollection, src.MongoCollection)
	mergeInt(&dst.VerifyLimit, src.VerifyLimit)
}

// mergeKernel merges kernel-specific config fields.
func mergeKernel(dst, src *KernelConfig) {
	mergeStr(&dst.DispatchTimeout, src.DispatchTimeout)
	mergeStr(&dst.DedupWindow, src.DedupWindow)
	mergeStr(&dst.IncidentPath, src.IncidentPath)
	if src.HighAssurance {
		dst.HighAssurance = true
	}
}

// mergeApproval merges approval-specific config fields.
func mergeApproval(dst, src *ApprovalConfig) {
	mergeStr(&dst.Secret, src.Secret)
	mergeStr(&dst.TTL, src.TTL)
}

// mergeLogging merges logging-specific config fields.
func mergeLogging(dst, src *LoggingConfig) {
	mergeStr(&dst.File, src.File)
	if src.Journal {
		dst.Journal = true
	}
}
