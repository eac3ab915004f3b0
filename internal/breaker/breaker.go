// Package breaker implements a per-host circuit breaker that blocks
// requests to a host that is failing, and periodically probes it for
// recovery. Spec §4.4.
package breaker

import (
	"fmt"
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Config configures breaker behavior. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	FailureThreshold  int
	RecoveryTimeout   time.Duration
	SuccessThreshold  int
	FailureStatusCodes map[int]bool
}

// DefaultConfig mirrors web_fetch's CircuitBreakerConfig defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 3,
		FailureStatusCodes: map[int]bool{
			500: true, 502: true, 503: true, 504: true,
		},
	}
}

// Stats tracks breaker activity for diagnostics.
type Stats struct {
	TotalRequests     int
	SuccessfulRequests int
	FailedRequests    int
	BlockedRequests   int
	StateChanges      int
	LastFailure       time.Time
	LastSuccess       time.Time
}

// ErrOpen is returned by Allow when the breaker is blocking requests.
type ErrOpen struct {
	Host string
}

func (e *ErrOpen) Error() string {
	return fmt.Sprintf("circuit breaker for %q is open", e.Host)
}

// Breaker is a single host's circuit breaker state machine.
type Breaker struct {
	host string
	cfg  Config

	mu             sync.Mutex
	state          State
	failureCount   int
	successCount   int
	lastFailureAt  time.Time
	stats          Stats
}

func newBreaker(host string, cfg Config) *Breaker {
	return &Breaker{host: host, cfg: cfg, state: Closed}
}

// Allow reports whether a request to this breaker's host may proceed,
// performing any CLOSED->OPEN or OPEN->HALF_OPEN transition first.
// Returns *ErrOpen when the breaker is blocking.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.TotalRequests++

	if b.state == Closed && b.failureCount >= b.cfg.FailureThreshold {
		b.transitionTo(Open)
	}
	if b.state == Open && time.Since(b.lastFailureAt) >= b.cfg.RecoveryTimeout {
		b.transitionTo(HalfOpen)
	}

	if b.state == Open {
		b.stats.BlockedRequests++
		return &ErrOpen{Host: b.host}
	}
	return nil
}

// RecordSuccess reports a successful call through the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.SuccessfulRequests++
	b.stats.LastSuccess = time.Now()

	switch b.state {
	case HalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.transitionTo(Closed)
		}
	case Closed:
		// Leaky-bucket healing: successes gradually forgive past failures.
		if b.failureCount > 0 {
			b.failureCount--
		}
	}
}

// RecordFailure reports a failed call, classified by HTTP status code
// (statusCode may be 0 for non-HTTP failures such as network errors,
// which always count).
func (b *Breaker) RecordFailure(statusCode int) {
	if !b.isFailure(statusCode) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.FailedRequests++
	b.stats.LastFailure = time.Now()
	b.failureCount++
	b.lastFailureAt = time.Now()

	if b.state == HalfOpen {
		b.transitionTo(Open)
	}
}

func (b *Breaker) isFailure(statusCode int) bool {
	if statusCode == 0 {
		return true // network/transport-level error, always a failure
	}
	return b.cfg.FailureStatusCodes[statusCode]
}

func (b *Breaker) transitionTo(s State) {
	b.state = s
	b.stats.StateChanges++
	switch s {
	case HalfOpen:
		b.successCount = 0
	case Closed:
		b.failureCount = 0
		b.successCount = 0
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot of the breaker's statistics.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Reset manually forces the breaker back to CLOSED.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(Closed)
}

// Registry manages one Breaker per host, created lazily.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates a Registry applying cfg to every breaker it
// creates.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the Breaker for host, creating it on first use.
func (r *Registry) Get(host string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[host]
	if !ok {
		b = newBreaker(host, r.cfg)
		r.breakers[host] = b
	}
	return b
}

// AllStats returns a snapshot of every tracked breaker's statistics,
// keyed by host.
func (r *Registry) AllStats() map[string]Stats {
	r.mu.Lock()
	hosts := make([]string, 0, len(r.breakers))
	breakers := make([]*Breaker, 0, len(r.breakers))
	for h, b := range r.breakers {
		hosts = append(hosts, h)
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make(map[string]Stats, len(hosts))
	for i, h := range hosts {
		out[h] = breakers[i].Stats()
	}
	return out
}
