package ratelimiter

import (
	"net"
	"sync"
	"time"
)

// Rejection reasons returned by Admission.Admit.
const (
	ReasonNone      = ""
	ReasonGlobal    = "global_rate"
	ReasonPerClient = "client_rate"
)

// AdmissionConfig configures connection admission.
type AdmissionConfig struct {
	// ConnectionsPerSecond limits accepted connections across all clients.
	// 0 disables the global limit.
	ConnectionsPerSecond uint
	Burst                uint

	// PerClientPerSecond limits accepted connections per client IP.
	// 0 disables per-client limiting.
	PerClientPerSecond uint
	PerClientBurst     uint

	// IdleEviction drops per-client buckets unused for this long.
	// Default: 5 minutes.
	IdleEviction time.Duration
}

type clientBucket struct {
	limiter  *RateLimiter
	lastSeen time.Time
}

// Admission decides whether a freshly accepted connection may be served.
//
// It checks the per-client bucket first so a single noisy client exhausts
// only its own budget, then the global bucket.
//
// Thread safety:
// Safe for concurrent use.
type Admission struct {
	cfg    AdmissionConfig
	global *RateLimiter

	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastSweep time.Time
	now       func() time.Time
}

// NewAdmission creates an Admission from cfg.
func NewAdmission(cfg AdmissionConfig) *Admission {
	if cfg.IdleEviction <= 0 {
		cfg.IdleEviction = 5 * time.Minute
	}
	return &Admission{
		cfg:     cfg,
		global:  New(cfg.ConnectionsPerSecond, cfg.Burst),
		clients: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

// Enabled reports whether any limit is configured.
func (a *Admission) Enabled() bool {
	return a.cfg.ConnectionsPerSecond > 0 || a.cfg.PerClientPerSecond > 0
}

// Admit reports whether a connection from addr is admitted. When it is not,
// reason names the bucket that refused it.
func (a *Admission) Admit(addr net.Addr) (ok bool, reason string) {
	if a.cfg.PerClientPerSecond > 0 && addr != nil {
		if !a.clientLimiter(clientKey(addr)).Allow() {
			return false, ReasonPerClient
		}
	}
	if !a.global.Allow() {
		return false, ReasonGlobal
	}
	return true, ReasonNone
}

// TrackedClients returns the number of per-client buckets held.
func (a *Admission) TrackedClients() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.clients)
}

func (a *Admission) clientLimiter(key string) *RateLimiter {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if now.Sub(a.lastSweep) >= a.cfg.IdleEviction {
		for k, b := range a.clients {
			if now.Sub(b.lastSeen) >= a.cfg.IdleEviction {
				delete(a.clients, k)
			}
		}
		a.lastSweep = now
	}

	b, ok := a.clients[key]
	if !ok {
		b = &clientBucket{limiter: New(a.cfg.PerClientPerSecond, a.cfg.PerClientBurst)}
		a.clients[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// clientKey reduces an address to its host so every port of one client
// shares a bucket.
func clientKey(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
