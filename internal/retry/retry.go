// Package retry classifies fetch errors and computes retry delays
// under FIXED, LINEAR, EXPONENTIAL, and ADAPTIVE backoff strategies.
// Spec §4.5.
package retry

import (
	"math/rand"
	"time"
)

// Strategy selects the delay-growth function.
type Strategy int

const (
	Fixed Strategy = iota
	Linear
	Exponential
	AdaptiveStrategy
)

// Category groups errors for retryability and delay decisions.
// Spec §4.5 error-category table.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryClientError
	CategoryServerError
	CategoryNetwork
	CategoryRateLimit
	CategoryAuth
	CategoryTimeout
	CategoryDNS
	CategoryTLS
	CategoryContent
	CategoryVerification
)

// categoryInfo is the fixed per-category retryability/delay table.
type categoryInfo struct {
	retryable      bool
	suggestedDelay time.Duration
	adaptiveMult   float64
}

var categoryTable = map[Category]categoryInfo{
	CategoryClientError:   {retryable: false, adaptiveMult: 1.0},
	CategoryServerError:   {retryable: true, suggestedDelay: 5 * time.Second, adaptiveMult: 1.5},
	CategoryNetwork:       {retryable: true, suggestedDelay: 5 * time.Second, adaptiveMult: 1.2},
	CategoryRateLimit:     {retryable: true, suggestedDelay: 60 * time.Second, adaptiveMult: 2.0},
	CategoryAuth:          {retryable: false, adaptiveMult: 1.0},
	CategoryTimeout:       {retryable: true, suggestedDelay: 10 * time.Second, adaptiveMult: 1.8},
	CategoryDNS:           {retryable: true, suggestedDelay: 30 * time.Second, adaptiveMult: 3.0},
	CategoryTLS:           {retryable: false, adaptiveMult: 1.0},
	CategoryContent:       {retryable: false, adaptiveMult: 1.0},
	CategoryVerification:  {retryable: false, adaptiveMult: 1.0},
	CategoryUnknown:       {retryable: false, adaptiveMult: 1.0},
}

// categoryForStatus maps HTTP status codes to (category, retryable),
// ported field-for-field from web_fetch's status_code_categories.
// proxyAuthConfigured resolves the 407 open question: proxy-auth
// errors are retryable only when the fetcher has a proxy backend
// configured (see DESIGN.md Open Question resolutions).
func categoryForStatus(status int, proxyAuthConfigured bool) (Category, bool) {
	switch status {
	case 400, 404, 405, 406, 409, 410, 411, 412, 413, 414, 415, 416, 417, 418, 421, 422, 423, 424, 425, 426, 431, 451:
		return CategoryClientError, false
	case 401, 403:
		return CategoryAuth, false
	case 407:
		return CategoryAuth, proxyAuthConfigured
	case 408:
		return CategoryTimeout, true
	case 428:
		return CategoryClientError, true
	case 429:
		return CategoryRateLimit, true
	case 500, 502, 503, 504, 507, 511:
		return CategoryServerError, true
	case 501, 505, 506, 508, 510:
		return CategoryServerError, false
	default:
		return CategoryUnknown, false
	}
}

// ErrorInfo is the input to Controller's delay/retry decisions.
type ErrorInfo struct {
	Category       Category
	StatusCode     int
	RetryAfter     time.Duration // from Retry-After header, 0 if absent
	Retryable      bool
	SuggestedDelay time.Duration
}

// ClassifyStatus builds an ErrorInfo from an HTTP status code and an
// optional Retry-After delay (0 if the header was absent).
func ClassifyStatus(status int, retryAfter time.Duration, proxyAuthConfigured bool) ErrorInfo {
	cat, retryable := categoryForStatus(status, proxyAuthConfigured)
	info := categoryTable[cat]
	ei := ErrorInfo{
		Category:       cat,
		StatusCode:     status,
		RetryAfter:     retryAfter,
		Retryable:      retryable,
		SuggestedDelay: info.suggestedDelay,
	}
	if cat == CategoryRateLimit {
		if retryAfter > 0 {
			ei.SuggestedDelay = retryAfter
		} else {
			ei.SuggestedDelay = 60 * time.Second
		}
	}
	return ei
}

// ClassifyCategory builds an ErrorInfo directly from a non-HTTP
// category (network, timeout, DNS, TLS classification performed by
// the caller from a transport error).
func ClassifyCategory(cat Category) ErrorInfo {
	info := categoryTable[cat]
	return ErrorInfo{
		Category:       cat,
		Retryable:      info.retryable,
		SuggestedDelay: info.suggestedDelay,
	}
}

// Config configures a Controller. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	Strategy      Strategy
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
	JitterFactor  float64
}

// DefaultConfig mirrors web_fetch's RetryConfig defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:      Exponential,
		MaxRetries:    3,
		BaseDelay:     time.Second,
		MaxDelay:      60 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
		JitterFactor:  0.1,
	}
}

// Controller computes retry decisions and delays for a sequence of
// attempts against one request.
type Controller struct {
	cfg  Config
	rand *rand.Rand
}

// New constructs a Controller. A total of cfg.MaxRetries+1 attempts
// are made before giving up (spec §4.5).
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg, rand: rand.New(rand.NewSource(1))}
}

// ShouldRetry reports whether attempt (0-based, the attempt that just
// failed) should be followed by another.
func (c *Controller) ShouldRetry(info ErrorInfo, attempt int) bool {
	if attempt >= c.cfg.MaxRetries {
		return false
	}
	if !info.Retryable {
		return false
	}
	if c.cfg.Strategy == Fixed && c.cfg.MaxRetries == 0 {
		return false
	}
	return true
}

// Delay computes the wait before retrying, applying the configured
// strategy, the category's adaptive multiplier (for AdaptiveStrategy),
// the configured max delay cap, and jitter.
func (c *Controller) Delay(info ErrorInfo, attempt int) time.Duration {
	base := c.cfg.BaseDelay
	if info.Category == CategoryRateLimit && info.SuggestedDelay > 0 {
		base = info.SuggestedDelay
	}

	var delay time.Duration
	switch c.cfg.Strategy {
	case Fixed:
		delay = base
	case Linear:
		delay = base * time.Duration(attempt+1)
	case Exponential:
		delay = scaleDuration(base, pow(c.cfg.BackoffFactor, attempt))
	case AdaptiveStrategy:
		mult := categoryTable[info.Category].adaptiveMult
		delay = scaleDuration(c.cfg.BaseDelay, mult*pow(c.cfg.BackoffFactor, attempt))
	default:
		delay = base
	}

	if delay > c.cfg.MaxDelay {
		delay = c.cfg.MaxDelay
	}

	// Retry-After from the server is an explicit floor, never overridden
	// downward by the computed strategy delay or the max-delay cap.
	if info.RetryAfter > delay {
		delay = info.RetryAfter
	}

	if c.cfg.Jitter && delay > 0 {
		jitterAmount := float64(delay) * c.cfg.JitterFactor
		jitter := (c.rand.Float64()*2 - 1) * jitterAmount
		delay = time.Duration(float64(delay) + jitter)
		if delay < 0 {
			delay = 0
		}
	}

	return delay
}

func scaleDuration(d time.Duration, factor float64) time.Duration {
	return time.Duration(float64(d) * factor)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// MaxAttempts is the total number of attempts (initial + retries)
// for this Controller's configuration.
func (c *Controller) MaxAttempts() int {
	return c.cfg.MaxRetries + 1
}
