package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and CLI flags.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults from struct
	setDefaults(v, cfg)

	// Environment variable support
	v.SetEnvPrefix("FETCHKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search default locations
		v.SetConfigName("fetchkit")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".fetchkit"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	return Load(path)
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("fetcher.max_concurrent_requests", cfg.Fetcher.MaxConcurrentRequests)
	v.SetDefault("fetcher.max_response_size", cfg.Fetcher.MaxResponseSize)
	v.SetDefault("fetcher.request_timeout", cfg.Fetcher.RequestTimeout)
	v.SetDefault("fetcher.enable_dedup", cfg.Fetcher.EnableDedup)
	v.SetDefault("fetcher.dedup_max_age", cfg.Fetcher.DedupMaxAge)
	v.SetDefault("fetcher.user_agents", cfg.Fetcher.UserAgents)

	v.SetDefault("rate_limit.algorithm", cfg.RateLimit.Algorithm)
	v.SetDefault("rate_limit.requests_per_second", cfg.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst_size", cfg.RateLimit.BurstSize)
	v.SetDefault("rate_limit.window_size", cfg.RateLimit.WindowSize)
	v.SetDefault("rate_limit.respect_server_limits", cfg.RateLimit.RespectServerLimits)
	v.SetDefault("rate_limit.adaptive_factor", cfg.RateLimit.AdaptiveFactor)
	v.SetDefault("rate_limit.min_requests_per_second", cfg.RateLimit.MinRequestsPerSecond)
	v.SetDefault("rate_limit.max_requests_per_second", cfg.RateLimit.MaxRequestsPerSecond)

	v.SetDefault("circuit_breaker.failure_threshold", cfg.CircuitBreaker.FailureThreshold)
	v.SetDefault("circuit_breaker.recovery_timeout", cfg.CircuitBreaker.RecoveryTimeout)
	v.SetDefault("circuit_breaker.success_threshold", cfg.CircuitBreaker.SuccessThreshold)

	v.SetDefault("retry.strategy", cfg.Retry.Strategy)
	v.SetDefault("retry.max_retries", cfg.Retry.MaxRetries)
	v.SetDefault("retry.base_delay", cfg.Retry.BaseDelay)
	v.SetDefault("retry.max_delay", cfg.Retry.MaxDelay)
	v.SetDefault("retry.backoff_factor", cfg.Retry.BackoffFactor)
	v.SetDefault("retry.jitter", cfg.Retry.Jitter)
	v.SetDefault("retry.jitter_factor", cfg.Retry.JitterFactor)

	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.backend", cfg.Cache.Backend)
	v.SetDefault("cache.default_ttl", cfg.Cache.DefaultTTL)
	v.SetDefault("cache.max_size", cfg.Cache.MaxSize)
	v.SetDefault("cache.enable_compression", cfg.Cache.EnableCompression)
	v.SetDefault("cache.compression_min_bytes", cfg.Cache.CompressionMinBytes)
	v.SetDefault("cache.file_cache_dir", cfg.Cache.FileCacheDir)

	v.SetDefault("http_pool.total_connections", cfg.HTTPPool.TotalConnections)
	v.SetDefault("http_pool.connections_per_host", cfg.HTTPPool.ConnectionsPerHost)
	v.SetDefault("http_pool.idle_conn_timeout", cfg.HTTPPool.IdleConnTimeout)
	v.SetDefault("http_pool.connect_timeout", cfg.HTTPPool.ConnectTimeout)
	v.SetDefault("http_pool.tls_handshake_timeout", cfg.HTTPPool.TLSHandshakeTimeout)
	v.SetDefault("http_pool.dns_cache_ttl", cfg.HTTPPool.DNSCacheTTL)
	v.SetDefault("http_pool.tls_insecure_skip_verify", cfg.HTTPPool.TLSInsecureSkipVerify)
	v.SetDefault("http_pool.proxy_urls", cfg.HTTPPool.ProxyURLs)
	v.SetDefault("http_pool.proxy_rotation", cfg.HTTPPool.ProxyRotation)
	v.SetDefault("http_pool.proxy_requires_auth", cfg.HTTPPool.ProxyRequiresAuth)

	v.SetDefault("ftp_pool.max_connections_per_host", cfg.FTPPool.MaxConnectionsPerHost)
	v.SetDefault("ftp_pool.idle_timeout", cfg.FTPPool.IdleTimeout)
	v.SetDefault("ftp_pool.cleanup_interval", cfg.FTPPool.CleanupInterval)
	v.SetDefault("ftp_pool.dial_timeout", cfg.FTPPool.DialTimeout)

	v.SetDefault("streaming.chunk_size", cfg.Streaming.ChunkSize)
	v.SetDefault("streaming.verify_checksum", cfg.Streaming.VerifyChecksum)
	v.SetDefault("streaming.progress_reporting", cfg.Streaming.ProgressReporting)
	v.SetDefault("streaming.temp_suffix", cfg.Streaming.TempSuffix)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
