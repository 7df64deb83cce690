// ABOUTME: Connectivity gate consulted before any remote operation
// ABOUTME: A single boolean check; retry policy lives with the callers

package netgate

import (
	"net"
	"sync"
	"time"
)

// Gate answers the one question the engine asks before touching the
// network. No retries live here; feed fetches abort on false and rely on
// the next user-triggered pull.
type Gate interface {
	Online() bool
}

// Static is a fixed gate for tests and forced-offline mode.
type Static bool

// Online returns the fixed value.
func (s Static) Online() bool { return bool(s) }

// DefaultProbeAddr is a well-connected anycast endpoint.
const DefaultProbeAddr = "1.1.1.1:443"

// DialGate probes a TCP endpoint to judge connectivity. Results are cached
// for a short interval so per-operation checks stay cheap.
type DialGate struct {
	addr    string
	timeout time.Duration
	ttl     time.Duration

	mu      sync.Mutex
	last    time.Time
	lastVal bool
}

// NewDialGate creates a gate probing addr. Empty addr uses DefaultProbeAddr.
func NewDialGate(addr string) *DialGate {
	if addr == "" {
		addr = DefaultProbeAddr
	}
	return &DialGate{
		addr:    addr,
		timeout: 2 * time.Second,
		ttl:     5 * time.Second,
	}
}

// Online dials the probe address, reusing the last answer while it is
// fresh.
func (g *DialGate) Online() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if time.Since(g.last) < g.ttl {
		return g.lastVal
	}

	conn, err := net.DialTimeout("tcp", g.addr, g.timeout)
	if err == nil {
		conn.Close()
	}
	g.last = time.Now()
	g.lastVal = err == nil
	return g.lastVal
}
