package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Output != "table" {
		t.Errorf("Default Output = %q, want %q", cfg.Output, "table")
	}
	if cfg.BaseDir != ".warden" {
		t.Errorf("Default BaseDir = %q, want %q", cfg.BaseDir, ".warden")
	}
	if cfg.Verbose {
		t.Error("Default Verbose = true, want false")
	}
	if cfg.Gates.CommandMode != "allowlist" {
		t.Errorf("Default Gates.CommandMode = %q, want allowlist", cfg.Gates.CommandMode)
	}
	if cfg.Gates.WorkspaceRoot == "" {
		t.Error("Default Gates.WorkspaceRoot should be the working directory")
	}
	if cfg.Audit.Backend != "file" {
		t.Errorf("Default Audit.Backend = %q, want file", cfg.Audit.Backend)
	}
	if cfg.Kernel.DispatchTimeout != "30s" {
		t.Errorf("Default Kernel.DispatchTimeout = %q, want 30s", cfg.Kernel.DispatchTimeout)
	}
	if cfg.Approval.TTL != "1h" {
		t.Errorf("Default Approval.TTL = %q, want 1h", cfg.Approval.TTL)
	}
}

func TestMerge(t *testing.T) {
	dst := Default()
	src := &Config{
		Output:  "json",
		BaseDir: "/custom/path",
		Audit:   AuditConfig{Backend: "mongo", MongoURI: "mongodb://localhost:27017"},
	}

	result := merge(dst, src)

	if result.Output != "json" {
		t.Errorf("merge Output = %q, want %q", result.Output, "json")
	}
	if result.BaseDir != "/custom/path" {
		t.Errorf("merge BaseDir = %q, want %q", result.BaseDir, "/custom/path")
	}
	if result.Audit.Backend != "mongo" || result.Audit.MongoURI != "mongodb://localhost:27017" {
		t.Errorf("merge Audit = %+v", result.Audit)
	}
	// Defaults should be preserved when not overridden
	if result.Kernel.DispatchTimeout != "30s" {
		t.Errorf("merge lost Kernel.DispatchTimeout default: %q", result.Kernel.DispatchTimeout)
	}
	if result.Audit.MongoDatabase != "warden" {
		t.Errorf("merge lost Audit.MongoDatabase default: %q", result.Audit.MongoDatabase)
	}
}

func TestMerge_BooleanUpwardOnly(t *testing.T) {
	dst := Default()
	src := &Config{Kernel: KernelConfig{HighAssurance: true}}

	result := merge(dst, src)
	if !result.Kernel.HighAssurance {
		t.Error("merge should set HighAssurance from src")
	}

	// A zero-value src must not clear an already-set flag.
	result = merge(result, &Config{Output: "json"})
	if !result.Kernel.HighAssurance {
		t.Error("merge must not clear HighAssurance")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("WARDEN_OUTPUT", "yaml")
	t.Setenv("WARDEN_VERBOSE", "1")
	t.Setenv("WARDEN_WORKSPACE_ROOT", "/srv/workspace")
	t.Setenv("WARDEN_ALLOWED_HOSTS", "api.internal.example, cache.internal.example")
	t.Setenv("WARDEN_HIGH_ASSURANCE", "true")
	t.Setenv("WARDEN_DISPATCH_TIMEOUT", "45s")
	t.Setenv("WARDEN_APPROVAL_SECRET", "env-secret")

	cfg := applyEnv(Default())

	if cfg.Output != "yaml" {
		t.Errorf("Output = %q, want yaml", cfg.Output)
	}
	if !cfg.Verbose {
		t.Error("Verbose should be set from env")
	}
	if cfg.Gates.WorkspaceRoot != "/srv/workspace" {
		t.Errorf("WorkspaceRoot = %q", cfg.Gates.WorkspaceRoot)
	}
	if len(cfg.Gates.AllowedHosts) != 2 || cfg.Gates.AllowedHosts[1] != "cache.internal.example" {
		t.Errorf("AllowedHosts = %v", cfg.Gates.AllowedHosts)
	}
	if !cfg.Kernel.HighAssurance {
		t.Error("HighAssurance should be set from env")
	}
	if cfg.Kernel.DispatchTimeout != "45s" {
		t.Errorf("DispatchTimeout = %q", cfg.Kernel.DispatchTimeout)
	}
	if cfg.Approval.Secret != "env-secret" {
		t.Errorf("Approval.Secret = %q", cfg.Approval.Secret)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
output: json
base_dir: /data/warden
gates:
  workspace_root: /srv/agents
  command_mode: denylist
audit:
  backend: mongo
  mongo_uri: mongodb://db:27017
kernel:
  high_assurance: true
  dispatch_timeout: 10s
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("loadFromPath: %v", err)
	}
	if cfg.Output != "json" || cfg.BaseDir != "/data/warden" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Gates.CommandMode != "denylist" {
		t.Errorf("CommandMode = %q", cfg.Gates.CommandMode)
	}
	if !cfg.Kernel.HighAssurance || cfg.Kernel.DispatchTimeout != "10s" {
		t.Errorf("Kernel = %+v", cfg.Kernel)
	}
}

func TestLoadFromPath_Missing(t *testing.T) {
	cfg, err := loadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if cfg != nil {
		t.Error("missing file should return nil config")
	}
	if err == nil {
		t.Error("missing file should return an error to the (ignoring) caller")
	}
}

func TestDurationParsing(t *testing.T) {
	cfg := Default()

	d, err := cfg.DispatchTimeout()
	if err != nil || d != 30*time.Second {
		t.Errorf("DispatchTimeout = %v, %v", d, err)
	}

	cfg.Kernel.DedupWindow = "5m"
	d, err = cfg.DedupWindow()
	if err != nil || d != 5*time.Minute {
		t.Errorf("DedupWindow = %v, %v", d, err)
	}

	cfg.Approval.TTL = "not a duration"
	if _, err := cfg.ApprovalTTL(); err == nil {
		t.Error("bad duration must fail to parse")
	}
}

func TestPathResolution(t *testing.T) {
	cfg := Default()
	cfg.BaseDir = "/data/warden"

	if got := cfg.AuditPath(); got != "/data/warden/audit.jsonl" {
		t.Errorf("AuditPath = %q", got)
	}
	if got := cfg.IncidentPath(); got != "/data/warden/incidents.jsonl" {
		t.Errorf("IncidentPath = %q", got)
	}

	cfg.Audit.Path = "/var/log/warden/audit.jsonl"
	if got := cfg.AuditPath(); got != "/var/log/warden/audit.jsonl" {
		t.Errorf("absolute AuditPath = %q", got)
	}
}
