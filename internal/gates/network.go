package gates

import (
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
)

// defaultAllowedHosts seeds the network allowlist with known API hosts
// plus loopback.
var defaultAllowedHosts = []string{
	"api.openai.com",
	"api.anthropic.com",
	"api.deepseek.com",
	"api.moonshot.cn",
	"api.nvidia.com",
	"localhost",
	"127.0.0.1",
	"0.0.0.0",
}

// NetworkAllowlist restricts outbound targets to a fixed host set.
type NetworkAllowlist struct {
	allowed map[string]bool
	threats atomic.Int64
}

// NewNetworkAllowlist merges extra hosts into the default set.
func NewNetworkAllowlist(extra []string) *NetworkAllowlist {
	allowed := make(map[string]bool, len(defaultAllowedHosts)+len(extra))
	for _, h := range defaultAllowedHosts {
		allowed[h] = true
	}
	for _, h := range extra {
		if h = strings.TrimSpace(h); h != "" {
			allowed[strings.ToLower(h)] = true
		}
	}
	return &NetworkAllowlist{allowed: allowed}
}

// Check parses the URL, extracts the host, and tests membership.
func (n *NetworkAllowlist) Check(raw string) Result {
	parsed, err := url.Parse(raw)
	if err != nil {
		return Result{
			Gate:   GateNetwork,
			Reason: fmt.Sprintf("invalid URL: %v", err),
		}
	}

	host := parsed.Hostname()
	if host == "" {
		// Bare host without a scheme parses into the path.
		host = strings.SplitN(parsed.Path, "/", 2)[0]
	}
	host = strings.ToLower(host)

	if n.allowed[host] {
		return Result{Gate: GateNetwork, Passed: true}
	}

	n.threats.Add(1)
	return Result{
		Gate:           GateNetwork,
		ThreatDetected: true,
		Reason:         fmt.Sprintf("host %q not in network allowlist", host),
	}
}

// Threats returns the cumulative threat count.
func (n *NetworkAllowlist) Threats() int64 {
	return n.threats.Load()
}
