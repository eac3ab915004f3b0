package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Fetcher.MaxConcurrentRequests < 1 {
		return fmt.Errorf("fetcher.max_concurrent_requests must be >= 1, got %d", cfg.Fetcher.MaxConcurrentRequests)
	}
	if cfg.Fetcher.MaxConcurrentRequests > 1000 {
		return fmt.Errorf("fetcher.max_concurrent_requests must be <= 1000, got %d", cfg.Fetcher.MaxConcurrentRequests)
	}
	if cfg.Fetcher.MaxResponseSize <= 0 {
		return fmt.Errorf("fetcher.max_response_size must be > 0")
	}
	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be > 0")
	}

	if cfg.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second must be > 0")
	}
	if cfg.RateLimit.BurstSize < 1 {
		return fmt.Errorf("rate_limit.burst_size must be >= 1, got %d", cfg.RateLimit.BurstSize)
	}
	validAlgorithms := map[string]bool{"token_bucket": true, "sliding_window": true, "fixed_window": true, "leaky_bucket": true, "adaptive": true}
	if !validAlgorithms[cfg.RateLimit.Algorithm] {
		return fmt.Errorf("rate_limit.algorithm must be token_bucket/sliding_window/fixed_window/leaky_bucket/adaptive, got %q", cfg.RateLimit.Algorithm)
	}

	if cfg.CircuitBreaker.FailureThreshold < 1 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be >= 1, got %d", cfg.CircuitBreaker.FailureThreshold)
	}
	if cfg.CircuitBreaker.RecoveryTimeout <= 0 {
		return fmt.Errorf("circuit_breaker.recovery_timeout must be > 0")
	}

	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0, got %d", cfg.Retry.MaxRetries)
	}
	validStrategies := map[string]bool{"fixed": true, "linear": true, "exponential": true, "adaptive": true}
	if !validStrategies[cfg.Retry.Strategy] {
		return fmt.Errorf("retry.strategy must be fixed/linear/exponential/adaptive, got %q", cfg.Retry.Strategy)
	}
	if cfg.Retry.BaseDelay <= 0 {
		return fmt.Errorf("retry.base_delay must be > 0")
	}
	if cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay must be >= retry.base_delay")
	}

	if cfg.Cache.Enabled {
		validBackends := map[string]bool{"memory": true, "file": true}
		if !validBackends[cfg.Cache.Backend] {
			return fmt.Errorf("cache.backend must be 'memory' or 'file', got %q", cfg.Cache.Backend)
		}
		if cfg.Cache.MaxSize < 1 {
			return fmt.Errorf("cache.max_size must be >= 1, got %d", cfg.Cache.MaxSize)
		}
	}

	if cfg.HTTPPool.TotalConnections < 1 {
		return fmt.Errorf("http_pool.total_connections must be >= 1, got %d", cfg.HTTPPool.TotalConnections)
	}
	if cfg.HTTPPool.ConnectionsPerHost < 1 {
		return fmt.Errorf("http_pool.connections_per_host must be >= 1, got %d", cfg.HTTPPool.ConnectionsPerHost)
	}
	if cfg.HTTPPool.ProxyRotation != "" && cfg.HTTPPool.ProxyRotation != "round_robin" && cfg.HTTPPool.ProxyRotation != "random" {
		return fmt.Errorf("http_pool.proxy_rotation must be 'round_robin' or 'random', got %q", cfg.HTTPPool.ProxyRotation)
	}
	for _, proxyURL := range cfg.HTTPPool.ProxyURLs {
		if _, err := url.Parse(proxyURL); err != nil {
			return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
		}
	}

	if cfg.FTPPool.MaxConnectionsPerHost < 1 {
		return fmt.Errorf("ftp_pool.max_connections_per_host must be >= 1, got %d", cfg.FTPPool.MaxConnectionsPerHost)
	}

	if cfg.Streaming.ChunkSize < 1 {
		return fmt.Errorf("streaming.chunk_size must be >= 1, got %d", cfg.Streaming.ChunkSize)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks if a URL string is valid for fetching.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ftp", "ftps":
	default:
		return fmt.Errorf("URL scheme must be http/https/ftp/ftps, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
