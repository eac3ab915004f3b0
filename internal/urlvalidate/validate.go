// Package urlvalidate parses, normalizes, and security-screens URLs
// before they reach the rest of the fetch stack.
package urlvalidate

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Config is the SSRF-protection policy applied by Validator. The zero
// value is not usable; call DefaultConfig.
type Config struct {
	AllowedSchemes map[string]bool

	// BlockedHosts is matched case-insensitively against the hostname.
	BlockedHosts map[string]bool

	// AllowedHosts, if non-nil, makes the validator an allowlist:
	// only these hostnames are accepted.
	AllowedHosts map[string]bool

	BlockedCIDRs []*net.IPNet
	AllowedCIDRs []*net.IPNet // if non-empty, acts as an allowlist

	BlockedPorts map[int]bool
	AllowedPorts map[int]bool // if non-empty, acts as an allowlist
}

// DefaultConfig mirrors web_fetch's SSRFProtectionConfig defaults.
func DefaultConfig() Config {
	cfg := Config{
		AllowedSchemes: map[string]bool{"http": true, "https": true, "ftp": true, "ftps": true},
		BlockedHosts: map[string]bool{
			"localhost":       true,
			"127.0.0.1":       true,
			"::1":             true,
			"0.0.0.0":         true,
			"169.254.169.254": true, // cloud metadata endpoint
		},
		BlockedPorts: map[int]bool{
			22: true, 23: true, 25: true, 53: true, 110: true, 143: true, 993: true, 995: true,
			3306: true, 5432: true, 6379: true, 27017: true,
			8080: true, 8443: true, 9200: true, 9300: true,
		},
	}
	for _, cidr := range []string{
		"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16",
		"127.0.0.0/8", "169.254.0.0/16", "100.64.0.0/10",
		"224.0.0.0/4", "240.0.0.0/4",
		"::1/128", "fc00::/7", "fe80::/10",
	} {
		if _, n, err := net.ParseCIDR(cidr); err == nil {
			cfg.BlockedCIDRs = append(cfg.BlockedCIDRs, n)
		}
	}
	return cfg
}

// Validator validates and normalizes URLs against Config.
type Validator struct {
	cfg Config
}

// New creates a Validator from cfg.
func New(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// UrlAnalysis is the structured breakdown returned by Analyze.
type UrlAnalysis struct {
	Scheme   string
	Host     string
	Port     int
	Path     string
	Query    string
	Fragment string
	IsSecure bool
	IsLocal  bool
	Segments []string
}

var suspiciousPathPatterns = []string{
	"../", "..\\",
	"%2e%2e%2f", "%2e%2e%5c",
	"/./", "/.//",
	"//", `\\`,
}

// Validate parses url, applies the SSRF policy, and returns the
// normalized form. Spec §4.1 validate_url.
func (v *Validator) Validate(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrInvalid)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if !v.cfg.AllowedSchemes[scheme] {
		return nil, fmt.Errorf("%w: blocked scheme %q", ErrInvalid, u.Scheme)
	}

	hostname := strings.ToLower(u.Hostname())
	if hostname == "" {
		return nil, fmt.Errorf("%w: missing hostname", ErrInvalid)
	}
	if v.cfg.BlockedHosts[hostname] {
		return nil, fmt.Errorf("%w: blocked hostname %q", ErrBlocked, hostname)
	}
	if v.cfg.AllowedHosts != nil && !v.cfg.AllowedHosts[hostname] {
		return nil, fmt.Errorf("%w: hostname %q not in allowlist", ErrBlocked, hostname)
	}

	if err := v.validateIP(hostname); err != nil {
		return nil, err
	}

	port := defaultPort(scheme)
	if p := u.Port(); p != "" {
		port, _ = strconv.Atoi(p)
	}
	if v.cfg.BlockedPorts[port] {
		return nil, fmt.Errorf("%w: blocked port %d", ErrBlocked, port)
	}
	if len(v.cfg.AllowedPorts) > 0 && !v.cfg.AllowedPorts[port] {
		return nil, fmt.Errorf("%w: port %d not in allowlist", ErrBlocked, port)
	}

	if err := validatePath(u.Path); err != nil {
		return nil, err
	}

	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	return u, nil
}

func (v *Validator) validateIP(hostname string) error {
	ip := net.ParseIP(hostname)
	if ip == nil {
		return nil // not a literal IP; DNS resolution happens later in the pool
	}
	for _, n := range v.cfg.BlockedCIDRs {
		if n.Contains(ip) {
			return fmt.Errorf("%w: IP %s in blocked range %s", ErrBlocked, hostname, n)
		}
	}
	if len(v.cfg.AllowedCIDRs) > 0 {
		for _, n := range v.cfg.AllowedCIDRs {
			if n.Contains(ip) {
				return nil
			}
		}
		return fmt.Errorf("%w: IP %s not in allowed ranges", ErrBlocked, hostname)
	}
	return nil
}

func validatePath(path string) error {
	if path == "" {
		return nil
	}
	lower := strings.ToLower(path)
	for _, pat := range suspiciousPathPatterns {
		if strings.Contains(lower, pat) {
			return fmt.Errorf("%w: %q", ErrSuspiciousPath, pat)
		}
	}
	if strings.Contains(path, "%00") {
		return fmt.Errorf("%w: encoded NUL byte", ErrSuspiciousPath)
	}
	for _, c := range path {
		if c < 0x20 && c != '\t' && c != '\n' && c != '\r' {
			return fmt.Errorf("%w: control character", ErrSuspiciousPath)
		}
	}
	return nil
}

func defaultPort(scheme string) int {
	switch scheme {
	case "https", "ftps":
		return 443
	case "ftp":
		return 21
	default:
		return 80
	}
}

// Normalize lowercases scheme and host, resolves against base when raw
// is relative, and collapses "." / ".." segments while preserving a
// trailing slash and original query-parameter order. Spec §4.1
// normalize_url; idempotent per testable property 6.
func (v *Validator) Normalize(raw string, base *url.URL) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if base != nil && !u.IsAbs() {
		u = base.ResolveReference(u)
	}
	hadTrailingSlash := strings.HasSuffix(u.Path, "/") && u.Path != "/"
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = collapseDotSegments(u.Path)
	if hadTrailingSlash && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String(), nil
}

func collapseDotSegments(p string) string {
	if p == "" {
		return p
	}
	absolute := strings.HasPrefix(p, "/")
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, seg := range parts {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}
	joined := strings.Join(out, "/")
	if absolute {
		joined = "/" + joined
	}
	if joined == "" {
		joined = "/"
	}
	return joined
}

// Analyze returns a structured breakdown of raw without applying the
// SSRF policy. Spec §4.1 analyze_url.
func (v *Validator) Analyze(raw string) (*UrlAnalysis, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	scheme := strings.ToLower(u.Scheme)
	port := defaultPort(scheme)
	if p := u.Port(); p != "" {
		port, _ = strconv.Atoi(p)
	}
	hostname := u.Hostname()
	a := &UrlAnalysis{
		Scheme:   scheme,
		Host:     hostname,
		Port:     port,
		Path:     u.Path,
		Query:    u.RawQuery,
		Fragment: u.Fragment,
		IsSecure: scheme == "https" || scheme == "ftps",
		IsLocal:  isLocalHost(hostname),
	}
	for _, seg := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if seg != "" {
			a.Segments = append(a.Segments, seg)
		}
	}
	return a, nil
}

func isLocalHost(hostname string) bool {
	if hostname == "localhost" {
		return true
	}
	ip := net.ParseIP(hostname)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsPrivate()
}
