package retry

import (
	"testing"
	"time"
)

func TestClientErrorsNotRetryable(t *testing.T) {
	info := ClassifyStatus(404, 0, false)
	if info.Retryable {
		t.Error("404 should not be retryable")
	}
}

func TestServerErrorsRetryable(t *testing.T) {
	for _, status := range []int{500, 502, 503, 504} {
		info := ClassifyStatus(status, 0, false)
		if !info.Retryable {
			t.Errorf("%d should be retryable", status)
		}
		if info.Category != CategoryServerError {
			t.Errorf("%d category = %v, want ServerError", status, info.Category)
		}
	}
}

func TestRateLimitUsesRetryAfterHeader(t *testing.T) {
	info := ClassifyStatus(429, 30*time.Second, false)
	if info.SuggestedDelay != 30*time.Second {
		t.Errorf("suggested delay = %v, want 30s from Retry-After", info.SuggestedDelay)
	}
}

func TestRateLimitDefaultsWithoutRetryAfter(t *testing.T) {
	info := ClassifyStatus(429, 0, false)
	if info.SuggestedDelay != 60*time.Second {
		t.Errorf("suggested delay = %v, want default 60s", info.SuggestedDelay)
	}
}

func Test407RetryableOnlyWithProxy(t *testing.T) {
	withoutProxy := ClassifyStatus(407, 0, false)
	withProxy := ClassifyStatus(407, 0, true)
	if withoutProxy.Retryable {
		t.Error("407 without proxy configured should not be retryable")
	}
	if !withProxy.Retryable {
		t.Error("407 with proxy configured should be retryable")
	}
}

func TestShouldRetryRespectsMaxRetries(t *testing.T) {
	c := New(DefaultConfig())
	info := ClassifyStatus(503, 0, false)
	if !c.ShouldRetry(info, 0) {
		t.Error("expected retry on attempt 0")
	}
	if c.ShouldRetry(info, c.cfg.MaxRetries) {
		t.Error("expected no retry once max_retries reached")
	}
}

func TestExponentialDelayGrows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Jitter = false
	cfg.Strategy = Exponential
	c := New(cfg)
	info := ClassifyStatus(503, 0, false)

	var prev time.Duration
	for attempt := 0; attempt < 3; attempt++ {
		d := c.Delay(info, attempt)
		if d < prev {
			t.Errorf("attempt %d: delay %v should not be less than previous %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestDelayNeverExceedsMaxDelay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Jitter = false
	cfg.MaxDelay = 2 * time.Second
	c := New(cfg)
	info := ClassifyStatus(503, 0, false)

	d := c.Delay(info, 10)
	if d > cfg.MaxDelay {
		t.Errorf("delay %v exceeds max delay %v", d, cfg.MaxDelay)
	}
}

func TestRetryAfterOverridesComputedDelayFromBelow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Jitter = false
	cfg.Strategy = Fixed
	cfg.BaseDelay = time.Second
	c := New(cfg)
	info := ClassifyStatus(429, 45*time.Second, false)

	d := c.Delay(info, 0)
	if d < 45*time.Second {
		t.Errorf("delay %v should be at least the Retry-After floor of 45s", d)
	}
}

func TestDelayIsNeverNegative(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseDelay = 0
	c := New(cfg)
	info := ClassifyStatus(500, 0, false)
	for attempt := 0; attempt < 5; attempt++ {
		if d := c.Delay(info, attempt); d < 0 {
			t.Errorf("attempt %d: negative delay %v", attempt, d)
		}
	}
}

func TestMaxAttemptsIsRetriesPlusOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 4
	c := New(cfg)
	if c.MaxAttempts() != 5 {
		t.Errorf("MaxAttempts() = %d, want 5", c.MaxAttempts())
	}
}
