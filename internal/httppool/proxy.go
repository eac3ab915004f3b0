package httppool

import (
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
)

// ProxyRotation selects how ProxyManager.Next picks among healthy
// proxies.
type ProxyRotation string

const (
	ProxyRoundRobin ProxyRotation = "round_robin"
	ProxyRandom     ProxyRotation = "random"
)

type proxyEntry struct {
	url     *url.URL
	mu      sync.Mutex
	healthy bool
}

// ProxyManager rotates across a fixed set of upstream proxies,
// skipping any marked unhealthy. Adapted from
// internal/fetcher/proxy.go's ProxyManager/proxyEntry, trimmed to the
// rotation/health-marking behavior the connection pool needs; the
// background HTTP health-check loop is left to the caller since the
// pool itself has no opinion on probe targets or cadence.
type ProxyManager struct {
	proxies  []*proxyEntry
	rotation ProxyRotation
	index    atomic.Int64
	mu       sync.RWMutex
}

// NewProxyManager builds a ProxyManager from raw proxy URLs, skipping
// any that fail to parse.
func NewProxyManager(rawURLs []string, rotation ProxyRotation) *ProxyManager {
	pm := &ProxyManager{rotation: rotation}
	for _, raw := range rawURLs {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		pm.proxies = append(pm.proxies, &proxyEntry{url: u, healthy: true})
	}
	return pm
}

// ProxyFunc returns an http.Transport-compatible proxy selector.
func (pm *ProxyManager) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		return pm.Next(), nil
	}
}

// Next returns the next proxy per the configured rotation, or nil if
// none are healthy (direct connection).
func (pm *ProxyManager) Next() *url.URL {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	healthy := pm.healthyProxies()
	if len(healthy) == 0 {
		return nil
	}

	var entry *proxyEntry
	if pm.rotation == ProxyRandom {
		entry = healthy[rand.Intn(len(healthy))]
	} else {
		idx := pm.index.Add(1) % int64(len(healthy))
		entry = healthy[idx]
	}
	return entry.url
}

// MarkFailed marks proxyURL unhealthy so Next skips it.
func (pm *ProxyManager) MarkFailed(proxyURL *url.URL) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, p := range pm.proxies {
		if p.url.String() == proxyURL.String() {
			p.mu.Lock()
			p.healthy = false
			p.mu.Unlock()
			return
		}
	}
}

// MarkHealthy reverses a prior MarkFailed.
func (pm *ProxyManager) MarkHealthy(proxyURL *url.URL) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, p := range pm.proxies {
		if p.url.String() == proxyURL.String() {
			p.mu.Lock()
			p.healthy = true
			p.mu.Unlock()
			return
		}
	}
}

// Count returns the total configured proxy count.
func (pm *ProxyManager) Count() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.proxies)
}

func (pm *ProxyManager) healthyProxies() []*proxyEntry {
	healthy := make([]*proxyEntry, 0, len(pm.proxies))
	for _, p := range pm.proxies {
		p.mu.Lock()
		ok := p.healthy
		p.mu.Unlock()
		if ok {
			healthy = append(healthy, p)
		}
	}
	return healthy
}
