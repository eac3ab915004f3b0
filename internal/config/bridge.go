package config

import (
	"github.com/IshaanNene/fetchkit/internal/breaker"
	"github.com/IshaanNene/fetchkit/internal/cache"
	"github.com/IshaanNene/fetchkit/internal/fetcher"
	"github.com/IshaanNene/fetchkit/internal/ftppool"
	"github.com/IshaanNene/fetchkit/internal/httppool"
	"github.com/IshaanNene/fetchkit/internal/ratelimit"
	"github.com/IshaanNene/fetchkit/internal/retry"
	"github.com/IshaanNene/fetchkit/internal/streampipe"
	"github.com/IshaanNene/fetchkit/internal/urlvalidate"
)

// ToFetcherConfig maps the layered Config onto fetcher.Config, the
// shape each component package actually consumes. A caller (cmd/
// fetchctl) still supplies CacheBackend and Logger directly, since
// those aren't values viper/yaml can express.
func (c *Config) ToFetcherConfig() fetcher.Config {
	retryStrategy := map[string]retry.Strategy{
		"fixed":       retry.Fixed,
		"linear":      retry.Linear,
		"exponential": retry.Exponential,
		"adaptive":    retry.AdaptiveStrategy,
	}[c.Retry.Strategy]

	rotation := httppool.ProxyRoundRobin
	if c.HTTPPool.ProxyRotation == "random" {
		rotation = httppool.ProxyRandom
	}

	return fetcher.Config{
		Validator: urlvalidate.DefaultConfig(),
		RateLimit: ratelimit.Config{
			Algorithm:            ratelimitAlgorithm(c.RateLimit.Algorithm),
			RequestsPerSecond:    c.RateLimit.RequestsPerSecond,
			BurstSize:            c.RateLimit.BurstSize,
			WindowSize:           c.RateLimit.WindowSize,
			RespectServerLimits:  c.RateLimit.RespectServerLimits,
			AdaptiveFactor:       c.RateLimit.AdaptiveFactor,
			MinRequestsPerSecond: c.RateLimit.MinRequestsPerSecond,
			MaxRequestsPerSecond: c.RateLimit.MaxRequestsPerSecond,
		},
		Breaker: breaker.Config{
			FailureThreshold: c.CircuitBreaker.FailureThreshold,
			RecoveryTimeout:  c.CircuitBreaker.RecoveryTimeout,
			SuccessThreshold: c.CircuitBreaker.SuccessThreshold,
			FailureStatusCodes: breaker.DefaultConfig().FailureStatusCodes,
		},
		Retry: retry.Config{
			Strategy:      retryStrategy,
			MaxRetries:    c.Retry.MaxRetries,
			BaseDelay:     c.Retry.BaseDelay,
			MaxDelay:      c.Retry.MaxDelay,
			BackoffFactor: c.Retry.BackoffFactor,
			Jitter:        c.Retry.Jitter,
			JitterFactor:  c.Retry.JitterFactor,
		},
		HTTPPool: httppool.Config{
			TotalConnections:      c.HTTPPool.TotalConnections,
			ConnectionsPerHost:    c.HTTPPool.ConnectionsPerHost,
			IdleConnTimeout:       c.HTTPPool.IdleConnTimeout,
			ConnectTimeout:        c.HTTPPool.ConnectTimeout,
			TLSHandshakeTimeout:   c.HTTPPool.TLSHandshakeTimeout,
			DNSCacheTTL:           c.HTTPPool.DNSCacheTTL,
			TLSInsecureSkipVerify: c.HTTPPool.TLSInsecureSkipVerify,
			ProxyURLs:             c.HTTPPool.ProxyURLs,
			ProxyRotation:         rotation,
			ProxyRequiresAuth:     c.HTTPPool.ProxyRequiresAuth,
		},
		FTPPool: ftppool.Config{
			MaxConnectionsPerHost: c.FTPPool.MaxConnectionsPerHost,
			IdleTimeout:           c.FTPPool.IdleTimeout,
			CleanupInterval:       c.FTPPool.CleanupInterval,
			DialTimeout:           c.FTPPool.DialTimeout,
		},
		Streaming: streampipe.Config{
			InitialChunkSize: int64(c.Streaming.ChunkSize),
			MinChunkSize:     streampipe.DefaultConfig().MinChunkSize,
			MaxChunkSize:     streampipe.DefaultConfig().MaxChunkSize,
			EnableResume:     true,
			Verification:     verificationMethod(c.Streaming.VerifyChecksum),
			ProgressInterval: streampipe.DefaultConfig().ProgressInterval,
		},
		EnableDedup:           c.Fetcher.EnableDedup,
		DedupMaxAge:           c.Fetcher.DedupMaxAge,
		EnableCache:           c.Cache.Enabled,
		CacheConfig: cache.Config{
			DefaultTTL:          c.Cache.DefaultTTL,
			MaxSize:             c.Cache.MaxSize,
			EnableCompression:   c.Cache.EnableCompression,
			CompressionMinBytes: c.Cache.CompressionMinBytes,
			RelevantHeaders:     cache.DefaultConfig().RelevantHeaders,
		},
		DefaultCacheTTL:       c.Cache.DefaultTTL,
		MaxConcurrentRequests: c.Fetcher.MaxConcurrentRequests,
		MaxResponseSize:       c.Fetcher.MaxResponseSize,
		UserAgents:            c.Fetcher.UserAgents,
		FTPUsername:           c.Fetcher.FTPUsername,
		FTPPassword:           c.Fetcher.FTPPassword,
	}
}

func ratelimitAlgorithm(name string) ratelimit.Algorithm {
	switch name {
	case "sliding_window":
		return ratelimit.SlidingWindow
	case "fixed_window":
		return ratelimit.FixedWindow
	case "leaky_bucket":
		return ratelimit.LeakyBucket
	case "adaptive":
		return ratelimit.Adaptive
	default:
		return ratelimit.TokenBucket
	}
}

func verificationMethod(enabled bool) streampipe.VerificationMethod {
	if enabled {
		return streampipe.VerifySHA256
	}
	return streampipe.VerifyNone
}
