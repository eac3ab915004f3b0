// Package ftppool manages pooled FTP connections keyed by
// (host, port, username), evicting idle connections and capping how
// many idle connections each key keeps; Borrow does not limit how many
// connections to one key are open at once. Spec §4.9. Grounded on
// web_fetch/ftp/connection.py's FTPConnectionPool, rendered over
// github.com/jlaffaye/ftp since no FTP client exists anywhere else in
// the example pack.
package ftppool

import (
	"fmt"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
)

// Config configures a Pool. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	MaxConnectionsPerHost int
	IdleTimeout           time.Duration
	CleanupInterval       time.Duration
	DialTimeout           time.Duration
}

// DefaultConfig mirrors web_fetch's FTPConnectionPool defaults
// (300s idle eviction, checked every 60s).
func DefaultConfig() Config {
	return Config{
		MaxConnectionsPerHost: 5,
		IdleTimeout:           300 * time.Second,
		CleanupInterval:       60 * time.Second,
		DialTimeout:           30 * time.Second,
	}
}

// Credentials identifies one pooled connection pool slot.
type Credentials struct {
	Host     string
	Port     int
	Username string // empty means anonymous
	Password string
}

func (c Credentials) key() string {
	user := c.Username
	if user == "" {
		user = "anonymous"
	}
	return fmt.Sprintf("%s:%d:%s", c.Host, c.Port, user)
}

type pooledConn struct {
	conn     *ftp.ServerConn
	lastUsed time.Time
}

// Pool manages pooled *ftp.ServerConn instances grouped by
// Credentials.key(). Safe for concurrent use.
type Pool struct {
	cfg Config

	mu    sync.Mutex
	conns map[string][]*pooledConn

	stopCleanup chan struct{}
}

// New constructs a Pool and starts its idle-eviction goroutine.
func New(cfg Config) *Pool {
	p := &Pool{cfg: cfg, conns: make(map[string][]*pooledConn), stopCleanup: make(chan struct{})}
	go p.cleanupLoop()
	return p
}

// Close stops the cleanup goroutine and closes every pooled
// connection.
func (p *Pool) Close() {
	close(p.stopCleanup)
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, list := range p.conns {
		for _, pc := range list {
			pc.conn.Quit()
		}
	}
	p.conns = make(map[string][]*pooledConn)
}

func (p *Pool) cleanupLoop() {
	ticker := time.NewTicker(p.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCleanup:
			return
		case <-ticker.C:
			p.evictIdle()
		}
	}
}

func (p *Pool) evictIdle() {
	cutoff := time.Now().Add(-p.cfg.IdleTimeout)
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, list := range p.conns {
		var keep []*pooledConn
		for _, pc := range list {
			if pc.lastUsed.Before(cutoff) {
				pc.conn.Quit()
				continue
			}
			keep = append(keep, pc)
		}
		if len(keep) == 0 {
			delete(p.conns, key)
		} else {
			p.conns[key] = keep
		}
	}
}

// Borrow returns a connection for creds, reusing an idle pooled one
// if available, otherwise dialing and logging in. The caller must
// call the returned release function exactly once when finished.
func (p *Pool) Borrow(creds Credentials) (*ftp.ServerConn, func(healthy bool), error) {
	key := creds.key()

	p.mu.Lock()
	if list := p.conns[key]; len(list) > 0 {
		pc := list[len(list)-1]
		p.conns[key] = list[:len(list)-1]
		p.mu.Unlock()
		return pc.conn, p.releaseFunc(key, pc.conn), nil
	}
	p.mu.Unlock()

	conn, err := p.dial(creds)
	if err != nil {
		return nil, nil, err
	}
	return conn, p.releaseFunc(key, conn), nil
}

func (p *Pool) dial(creds Credentials) (*ftp.ServerConn, error) {
	addr := fmt.Sprintf("%s:%d", creds.Host, creds.Port)
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(p.cfg.DialTimeout))
	if err != nil {
		return nil, fmt.Errorf("ftp dial %s: %w", addr, err)
	}

	user, pass := creds.Username, creds.Password
	if user == "" {
		user, pass = "anonymous", "anonymous@"
	}
	if err := conn.Login(user, pass); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("ftp login %s@%s: %w", user, addr, err)
	}
	return conn, nil
}

// releaseFunc returns a connection to the pool for key if healthy and
// the per-host cap allows it; otherwise it closes the connection.
func (p *Pool) releaseFunc(key string, conn *ftp.ServerConn) func(healthy bool) {
	return func(healthy bool) {
		if !healthy {
			conn.Quit()
			return
		}

		p.mu.Lock()
		atCap := len(p.conns[key]) >= p.cfg.MaxConnectionsPerHost
		if !atCap {
			p.conns[key] = append(p.conns[key], &pooledConn{conn: conn, lastUsed: time.Now()})
		}
		p.mu.Unlock()

		if atCap {
			conn.Quit()
		}
	}
}

// Stats is a point-in-time snapshot of pool occupancy, mirroring
// web_fetch's get_pool_stats (spec §13 supplemented feature).
type Stats struct {
	TotalKeys         int
	ActiveConnections int
	PerKey            map[string]int
}

// Stats returns a snapshot of pooled (idle, available-for-reuse)
// connections across all keys.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	perKey := make(map[string]int, len(p.conns))
	total := 0
	for key, list := range p.conns {
		perKey[key] = len(list)
		total += len(list)
	}
	return Stats{
		TotalKeys:         len(p.conns),
		ActiveConnections: total,
		PerKey:            perKey,
	}
}
