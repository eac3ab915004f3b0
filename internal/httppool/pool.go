// Package httppool manages a tuned http.Transport per pool, a small
// DNS-answer cache, and decompression (gzip/deflate/brotli), with a
// per-host cap on open connections and a total cap on idle ones (open
// connections across hosts are not capped). Spec §4.8. Grounded on
// internal/fetcher/http.go's HTTPFetcher transport construction.
package httppool

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/publicsuffix"
)

// Config configures a Pool. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	TotalConnections     int
	ConnectionsPerHost   int
	IdleConnTimeout      time.Duration
	ConnectTimeout       time.Duration
	TLSHandshakeTimeout  time.Duration
	DNSCacheTTL          time.Duration
	TLSInsecureSkipVerify bool

	// ProxyURLs, if non-empty, routes every request through a rotating
	// upstream proxy (see proxy.go). An empty list means direct
	// connections.
	ProxyURLs     []string
	ProxyRotation ProxyRotation

	// ProxyRequiresAuth tells callers (the retry controller, via
	// Pool.ProxyAuthConfigured) whether a 407 from the upstream is
	// something this pool can plausibly recover from by retrying,
	// since it has credentials configured for the proxy it selected.
	ProxyRequiresAuth bool
}

// DefaultConfig follows internal/fetcher/http.go's transport defaults.
func DefaultConfig() Config {
	return Config{
		TotalConnections:    100,
		ConnectionsPerHost:  10,
		IdleConnTimeout:     90 * time.Second,
		ConnectTimeout:      30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DNSCacheTTL:         5 * time.Minute,
	}
}

type dnsCacheEntry struct {
	addrs   []string
	cachedAt time.Time
}

// Pool owns one tuned *http.Client shared across requests, with a
// bounded DNS-answer cache layered in front of the dialer.
type Pool struct {
	cfg    Config
	client *http.Client
	proxy  *ProxyManager

	mu  sync.Mutex
	dns map[string]dnsCacheEntry
}

// New constructs a Pool. cfg.TotalConnections bounds MaxIdleConns, the
// idle connections kept across all hosts; the number of open
// connections across hosts is not capped. cfg.ConnectionsPerHost bounds
// both MaxIdleConnsPerHost and MaxConnsPerHost, the open connections
// to one host.
func New(cfg Config) (*Pool, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	p := &Pool{cfg: cfg, dns: make(map[string]dnsCacheEntry)}

	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:         p.dialContext(dialer),
		MaxIdleConns:        cfg.TotalConnections,
		MaxIdleConnsPerHost: cfg.ConnectionsPerHost,
		MaxConnsPerHost:     cfg.ConnectionsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSInsecureSkipVerify,
		},
		// Decompression is performed explicitly (DecompressBody) so brotli
		// can be handled alongside gzip/deflate.
		DisableCompression: true,
	}

	if len(cfg.ProxyURLs) > 0 {
		p.proxy = NewProxyManager(cfg.ProxyURLs, cfg.ProxyRotation)
		transport.Proxy = p.proxy.ProxyFunc()
	}

	p.client = &http.Client{Transport: transport, Jar: jar}
	return p, nil
}

// ProxyAuthConfigured reports whether this pool routes through an
// upstream proxy it holds credentials for — fed to
// retry.ClassifyStatus so a 407 is retried only when recovery is
// plausible (see DESIGN.md's Open Question resolution).
func (p *Pool) ProxyAuthConfigured() bool {
	return p.proxy != nil && p.cfg.ProxyRequiresAuth
}

// Proxy returns the pool's ProxyManager, or nil if no proxies are
// configured.
func (p *Pool) Proxy() *ProxyManager {
	return p.proxy
}

// dialContext wraps net.Dialer.DialContext with a TTL'd cache of
// resolved addresses, avoiding a DNS round trip on every dial within
// cfg.DNSCacheTTL.
func (p *Pool) dialContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return dialer.DialContext(ctx, network, addr)
		}

		p.mu.Lock()
		entry, ok := p.dns[host]
		fresh := ok && time.Since(entry.cachedAt) < p.cfg.DNSCacheTTL
		p.mu.Unlock()

		if fresh && len(entry.addrs) > 0 {
			return dialer.DialContext(ctx, network, net.JoinHostPort(entry.addrs[0], port))
		}

		addrs, err := net.DefaultResolver.LookupHost(ctx, host)
		if err != nil || len(addrs) == 0 {
			return dialer.DialContext(ctx, network, addr)
		}

		p.mu.Lock()
		p.dns[host] = dnsCacheEntry{addrs: addrs, cachedAt: time.Now()}
		p.mu.Unlock()

		return dialer.DialContext(ctx, network, net.JoinHostPort(addrs[0], port))
	}
}

// Client returns the underlying *http.Client for direct use by the
// Fetcher's transport stage. The pool itself is the unit of sharing;
// there is no per-request checkout since http.Transport already pools
// idle connections internally.
func (p *Pool) Client() *http.Client {
	return p.client
}

// Close releases idle connections.
func (p *Pool) Close() {
	p.client.CloseIdleConnections()
}

// DecompressBody wraps body according to the response's
// Content-Encoding header (gzip, deflate, or br), returning body
// unchanged for an empty or unrecognized encoding.
func DecompressBody(contentEncoding string, body io.Reader) (io.Reader, error) {
	switch contentEncoding {
	case "gzip":
		return gzip.NewReader(body)
	case "deflate":
		return flate.NewReader(body), nil
	case "br":
		return brotli.NewReader(body), nil
	default:
		return body, nil
	}
}
