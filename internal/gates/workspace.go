package gates

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// WorkspaceBoundary confines file operations to the configured
// workspace root and its descendants.
type WorkspaceBoundary struct {
	root    string
	threats atomic.Int64
}

// NewWorkspaceBoundary resolves the root to an absolute path.
func NewWorkspaceBoundary(root string) (*WorkspaceBoundary, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	return &WorkspaceBoundary{root: filepath.Clean(abs)}, nil
}

// Check resolves the path and confirms it is the workspace root or a
// descendant. Relative paths are resolved against the root, so
// "../../etc/passwd" style traversal is caught after cleaning.
func (w *WorkspaceBoundary) Check(path string) Result {
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(w.root, target)
	}
	target = filepath.Clean(target)

	if target == w.root || strings.HasPrefix(target, w.root+string(filepath.Separator)) {
		return Result{Gate: GateWorkspace, Passed: true}
	}

	w.threats.Add(1)
	return Result{
		Gate:           GateWorkspace,
		ThreatDetected: true,
		Reason:         fmt.Sprintf("path %q is outside workspace %q", path, w.root),
	}
}

// Root returns the resolved workspace root.
func (w *WorkspaceBoundary) Root() string {
	return w.root
}

// Threats returns the cumulative threat count.
func (w *WorkspaceBoundary) Threats() int64 {
	return w.threats.Load()
}
