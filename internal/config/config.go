package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for fetchctl/fetchkit.
type Config struct {
	Fetcher       FetcherConfig       `mapstructure:"fetcher"        yaml:"fetcher"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"     yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker" yaml:"circuit_breaker"`
	Retry         RetryConfig         `mapstructure:"retry"          yaml:"retry"`
	Cache         CacheConfig         `mapstructure:"cache"          yaml:"cache"`
	HTTPPool      HTTPPoolConfig      `mapstructure:"http_pool"      yaml:"http_pool"`
	FTPPool       FTPPoolConfig       `mapstructure:"ftp_pool"       yaml:"ftp_pool"`
	Streaming     StreamingConfig     `mapstructure:"streaming"      yaml:"streaming"`
	Logging       LoggingConfig       `mapstructure:"logging"        yaml:"logging"`
	Metrics       MetricsConfig       `mapstructure:"metrics"        yaml:"metrics"`
}

// FetcherConfig controls the top-level Fetcher composition.
type FetcherConfig struct {
	MaxConcurrentRequests int           `mapstructure:"max_concurrent_requests" yaml:"max_concurrent_requests"`
	MaxResponseSize       int64         `mapstructure:"max_response_size"       yaml:"max_response_size"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout"         yaml:"request_timeout"`
	EnableDedup           bool          `mapstructure:"enable_dedup"            yaml:"enable_dedup"`
	DedupMaxAge           time.Duration `mapstructure:"dedup_max_age"           yaml:"dedup_max_age"`
	UserAgents            []string      `mapstructure:"user_agents"             yaml:"user_agents"`
	FTPUsername           string        `mapstructure:"ftp_username"            yaml:"ftp_username"`
	FTPPassword           string        `mapstructure:"ftp_password"            yaml:"ftp_password"`
}

// RateLimitConfig controls per-host rate limiting.
type RateLimitConfig struct {
	Algorithm            string  `mapstructure:"algorithm"              yaml:"algorithm"`
	RequestsPerSecond    float64 `mapstructure:"requests_per_second"    yaml:"requests_per_second"`
	BurstSize            int     `mapstructure:"burst_size"             yaml:"burst_size"`
	WindowSize           time.Duration `mapstructure:"window_size"      yaml:"window_size"`
	RespectServerLimits  bool    `mapstructure:"respect_server_limits"  yaml:"respect_server_limits"`
	AdaptiveFactor       float64 `mapstructure:"adaptive_factor"        yaml:"adaptive_factor"`
	MinRequestsPerSecond float64 `mapstructure:"min_requests_per_second" yaml:"min_requests_per_second"`
	MaxRequestsPerSecond float64 `mapstructure:"max_requests_per_second" yaml:"max_requests_per_second"`
}

// CircuitBreakerConfig controls per-host circuit breaking.
type CircuitBreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"  yaml:"recovery_timeout"`
	SuccessThreshold int           `mapstructure:"success_threshold" yaml:"success_threshold"`
}

// RetryConfig controls retry backoff.
type RetryConfig struct {
	Strategy      string        `mapstructure:"strategy"       yaml:"strategy"`
	MaxRetries    int           `mapstructure:"max_retries"    yaml:"max_retries"`
	BaseDelay     time.Duration `mapstructure:"base_delay"     yaml:"base_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"      yaml:"max_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor" yaml:"backoff_factor"`
	Jitter        bool          `mapstructure:"jitter"         yaml:"jitter"`
	JitterFactor  float64       `mapstructure:"jitter_factor"  yaml:"jitter_factor"`
}

// CacheConfig controls response caching.
type CacheConfig struct {
	Enabled             bool          `mapstructure:"enabled"               yaml:"enabled"`
	Backend             string        `mapstructure:"backend"               yaml:"backend"` // memory, file
	DefaultTTL          time.Duration `mapstructure:"default_ttl"           yaml:"default_ttl"`
	MaxSize             int           `mapstructure:"max_size"              yaml:"max_size"`
	EnableCompression   bool          `mapstructure:"enable_compression"    yaml:"enable_compression"`
	CompressionMinBytes int           `mapstructure:"compression_min_bytes" yaml:"compression_min_bytes"`
	FileCacheDir        string        `mapstructure:"file_cache_dir"        yaml:"file_cache_dir"`
}

// HTTPPoolConfig controls the pooled HTTP transport.
type HTTPPoolConfig struct {
	TotalConnections      int           `mapstructure:"total_connections"       yaml:"total_connections"`
	ConnectionsPerHost    int           `mapstructure:"connections_per_host"    yaml:"connections_per_host"`
	IdleConnTimeout       time.Duration `mapstructure:"idle_conn_timeout"       yaml:"idle_conn_timeout"`
	ConnectTimeout        time.Duration `mapstructure:"connect_timeout"         yaml:"connect_timeout"`
	TLSHandshakeTimeout   time.Duration `mapstructure:"tls_handshake_timeout"   yaml:"tls_handshake_timeout"`
	DNSCacheTTL           time.Duration `mapstructure:"dns_cache_ttl"           yaml:"dns_cache_ttl"`
	TLSInsecureSkipVerify bool          `mapstructure:"tls_insecure_skip_verify" yaml:"tls_insecure_skip_verify"`
	ProxyURLs             []string      `mapstructure:"proxy_urls"              yaml:"proxy_urls"`
	ProxyRotation         string        `mapstructure:"proxy_rotation"          yaml:"proxy_rotation"` // round_robin, random
	ProxyRequiresAuth     bool          `mapstructure:"proxy_requires_auth"     yaml:"proxy_requires_auth"`
}

// FTPPoolConfig controls the pooled FTP connections.
type FTPPoolConfig struct {
	MaxConnectionsPerHost int           `mapstructure:"max_connections_per_host" yaml:"max_connections_per_host"`
	IdleTimeout           time.Duration `mapstructure:"idle_timeout"             yaml:"idle_timeout"`
	CleanupInterval       time.Duration `mapstructure:"cleanup_interval"         yaml:"cleanup_interval"`
	DialTimeout           time.Duration `mapstructure:"dial_timeout"             yaml:"dial_timeout"`
}

// StreamingConfig controls streamed downloads.
type StreamingConfig struct {
	ChunkSize         int    `mapstructure:"chunk_size"          yaml:"chunk_size"`
	VerifyChecksum    bool   `mapstructure:"verify_checksum"     yaml:"verify_checksum"`
	ProgressReporting bool   `mapstructure:"progress_reporting"  yaml:"progress_reporting"`
	TempSuffix        string `mapstructure:"temp_suffix"         yaml:"temp_suffix"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls metrics collection.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults. Most values
// match each component package's own DefaultConfig; the rate-limit
// window size, adaptive factor and max rate, the circuit breaker's
// recovery timeout and success threshold, the HTTP connect timeout and
// the streaming chunk size differ from them.
func DefaultConfig() *Config {
	return &Config{
		Fetcher: FetcherConfig{
			MaxConcurrentRequests: 50,
			MaxResponseSize:       100 * 1024 * 1024,
			RequestTimeout:        30 * time.Second,
			EnableDedup:           true,
			DedupMaxAge:           300 * time.Second,
			UserAgents:            []string{"fetchkit/1.0"},
		},
		RateLimit: RateLimitConfig{
			Algorithm:            "token_bucket",
			RequestsPerSecond:    10.0,
			BurstSize:            20,
			WindowSize:           time.Second,
			RespectServerLimits:  true,
			AdaptiveFactor:       0.5,
			MinRequestsPerSecond: 1.0,
			MaxRequestsPerSecond: 50.0,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			SuccessThreshold: 2,
		},
		Retry: RetryConfig{
			Strategy:      "exponential",
			MaxRetries:    3,
			BaseDelay:     time.Second,
			MaxDelay:      60 * time.Second,
			BackoffFactor: 2.0,
			Jitter:        true,
			JitterFactor:  0.1,
		},
		Cache: CacheConfig{
			Enabled:             true,
			Backend:             "memory",
			DefaultTTL:          time.Hour,
			MaxSize:             1000,
			EnableCompression:   true,
			CompressionMinBytes: 1024,
			FileCacheDir:        "./cache",
		},
		HTTPPool: HTTPPoolConfig{
			TotalConnections:    100,
			ConnectionsPerHost:  10,
			IdleConnTimeout:     90 * time.Second,
			ConnectTimeout:      10 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			DNSCacheTTL:         5 * time.Minute,
			ProxyRotation:       "round_robin",
		},
		FTPPool: FTPPoolConfig{
			MaxConnectionsPerHost: 5,
			IdleTimeout:           300 * time.Second,
			CleanupInterval:       60 * time.Second,
			DialTimeout:           30 * time.Second,
		},
		Streaming: StreamingConfig{
			ChunkSize:         1 << 20,
			VerifyChecksum:    true,
			ProgressReporting: true,
			TempSuffix:        ".part",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
