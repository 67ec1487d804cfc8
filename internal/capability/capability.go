// Package capability defines the closed set of actions the kernel can
// govern. Capabilities are resolved through an explicit registry so an
// unknown action name is rejected up front instead of falling through
// a runtime string comparison somewhere deeper in the pipeline.
package capability

import (
	"errors"
	"fmt"
	"sort"

	"github.com/boshu2/warden/internal/authority"
)

// Capability identifies one governed action.
type Capability string

const (
	ReadDocs     Capability = "read_docs"
	Math         Capability = "math"
	TextAnalysis Capability = "text_analysis"
	Format       Capability = "format"
	WebSearch    Capability = "web_search"
	APIQueryGet  Capability = "api_query_get"
	Research     Capability = "research"
	FileRead     Capability = "file_read"
	DirList      Capability = "dir_list"
	CodeAnalyzer Capability = "code_analyzer"
	FileWrite    Capability = "file_write"
	FileDelete   Capability = "file_delete"
	ShellExec    Capability = "shell_exec"
	SystemModify Capability = "system_modify"
	NetworkWrite Capability = "network_write"
)

// ErrUnknownCapability is returned by Parse for names outside the
// registry.
var ErrUnknownCapability = errors.New("unknown capability")

// registry maps each capability to the minimum authority level that
// may exercise it.
var registry = map[Capability]authority.Level{
	ReadDocs:     authority.ReadOnly,
	Math:         authority.SafeCompute,
	TextAnalysis: authority.SafeCompute,
	Format:       authority.SafeCompute,
	WebSearch:    authority.InfoRetrieval,
	APIQueryGet:  authority.InfoRetrieval,
	Research:     authority.InfoRetrieval,
	FileRead:     authority.FileRead,
	DirList:      authority.FileRead,
	CodeAnalyzer: authority.FileRead,
	FileWrite:    authority.FileWrite,
	FileDelete:   authority.FileWrite,
	ShellExec:    authority.SystemExec,
	SystemModify: authority.SystemExec,
	NetworkWrite: authority.SystemExec,
}

// Parse resolves a capability name through the registry.
func Parse(name string) (Capability, error) {
	c := Capability(name)
	if _, ok := registry[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCapability, name)
	}
	return c, nil
}

// MinLevel returns the minimum authority level for a capability.
func MinLevel(c Capability) (authority.Level, error) {
	level, ok := registry[c]
	if !ok {
		return authority.ReadOnly, fmt.Errorf("%w: %q", ErrUnknownCapability, string(c))
	}
	return level, nil
}

// String returns the capability name.
func (c Capability) String() string {
	return string(c)
}

// All returns every registered capability, sorted by name.
func All() []Capability {
	out := make([]Capability, 0, len(registry))
	for c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
