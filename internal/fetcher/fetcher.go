package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/fetchkit/internal/batch"
	"github.com/IshaanNene/fetchkit/internal/breaker"
	"github.com/IshaanNene/fetchkit/internal/cache"
	"github.com/IshaanNene/fetchkit/internal/contenttype"
	"github.com/IshaanNene/fetchkit/internal/dedup"
	"github.com/IshaanNene/fetchkit/internal/ftppool"
	"github.com/IshaanNene/fetchkit/internal/httppool"
	"github.com/IshaanNene/fetchkit/internal/metrics"
	"github.com/IshaanNene/fetchkit/internal/ratelimit"
	"github.com/IshaanNene/fetchkit/internal/retry"
	"github.com/IshaanNene/fetchkit/internal/streampipe"
	"github.com/IshaanNene/fetchkit/internal/types"
	"github.com/IshaanNene/fetchkit/internal/urlvalidate"
)

// Config configures a Fetcher. The zero value is not usable; start
// from DefaultConfig. Every sub-config mirrors the matching
// component's own DefaultConfig, so a caller wiring internal/config's
// layered loader only needs to override what it cares about.
type Config struct {
	Validator urlvalidate.Config
	RateLimit ratelimit.Config
	Breaker   breaker.Config
	Retry     retry.Config
	HTTPPool  httppool.Config
	FTPPool   ftppool.Config
	Streaming streampipe.Config
	Metrics   metrics.Config

	EnableDedup bool
	DedupMaxAge time.Duration

	EnableCache     bool
	CacheConfig     cache.Config
	CacheBackend    cache.Backend // required when EnableCache is true
	DefaultCacheTTL time.Duration

	MaxConcurrentRequests int
	MaxResponseSize       int64

	UserAgents []string

	// FTPUsername/FTPPassword are used when a request's URL carries no
	// userinfo; empty means anonymous FTP.
	FTPUsername string
	FTPPassword string

	Logger *slog.Logger
}

// DefaultConfig mirrors web_fetch's overall default profile: balanced
// rate limiting, a closed-by-default circuit breaker threshold of 5,
// exponential retry with 3 retries (4 attempts), dedup and cache both enabled,
// 50 concurrent requests, 100 MiB response cap.
func DefaultConfig() Config {
	return Config{
		Validator:             urlvalidate.DefaultConfig(),
		RateLimit:             ratelimit.DefaultConfig(),
		Breaker:               breaker.DefaultConfig(),
		Retry:                 retry.DefaultConfig(),
		HTTPPool:              httppool.DefaultConfig(),
		FTPPool:               ftppool.DefaultConfig(),
		Streaming:             streampipe.DefaultConfig(),
		Metrics:               metrics.DefaultConfig(),
		EnableDedup:           true,
		DedupMaxAge:           300 * time.Second,
		EnableCache:           true,
		CacheConfig:           cache.DefaultConfig(),
		DefaultCacheTTL:       time.Hour,
		MaxConcurrentRequests: 50,
		MaxResponseSize:       100 << 20,
		UserAgents:            []string{"fetchkit/1.0"},
	}
}

// Fetcher composes every resilience component into fetch_single/
// fetch_batch (spec §4.13): validate, cache, dedup, rate-limit,
// circuit-break, retry, pool, parse, cache-store, record. Grounded on
// internal/engine/engine.go's Engine, re-targeted from "crawl many
// seeds through a frontier" to "execute one request and return a
// Result."
type Fetcher struct {
	cfg Config

	validator *urlvalidate.Validator
	limiter   *ratelimit.Limiter
	breakers  *breaker.Registry
	retryCtl  *retry.Controller
	dedup     *dedup.Deduplicator // nil if disabled
	cacheLayer *cache.Cache       // nil if disabled
	httpPool  *httppool.Pool
	ftpPool   *ftppool.Pool
	stream    *streampipe.Pipeline
	metrics   *metrics.Collector
	detector  *contenttype.Detector
	batchSched *batch.Scheduler

	parsers map[contenttype.Kind]ContentParser

	sem chan struct{}

	logger  *slog.Logger
	uaIndex atomic.Int64
}

// New constructs a Fetcher from cfg. If cfg.EnableCache is true,
// cfg.CacheBackend must be non-nil.
func New(cfg Config) (*Fetcher, error) {
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = DefaultConfig().MaxConcurrentRequests
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.EnableCache && cfg.CacheBackend == nil {
		return nil, errors.New("fetcher: EnableCache requires a non-nil CacheBackend")
	}

	httpPool, err := httppool.New(cfg.HTTPPool)
	if err != nil {
		return nil, fmt.Errorf("fetcher: construct http pool: %w", err)
	}

	f := &Fetcher{
		cfg:        cfg,
		validator:  urlvalidate.New(cfg.Validator),
		limiter:    ratelimit.New(cfg.RateLimit),
		breakers:   breaker.NewRegistry(cfg.Breaker),
		retryCtl:   retry.New(cfg.Retry),
		httpPool:   httpPool,
		ftpPool:    ftppool.New(cfg.FTPPool),
		stream:     streampipe.New(cfg.Streaming),
		metrics:    metrics.New(cfg.Metrics),
		detector:   contenttype.New(),
		batchSched: batch.New(batch.Config{MaxConcurrent: cfg.MaxConcurrentRequests}),
		parsers:    defaultParsers(),
		sem:        make(chan struct{}, cfg.MaxConcurrentRequests),
		logger:     cfg.Logger.With("component", "fetcher"),
	}

	if cfg.EnableDedup {
		f.dedup = dedup.New(cfg.DedupMaxAge)
	}
	if cfg.EnableCache {
		f.cacheLayer = cache.New(cfg.CacheConfig, cfg.CacheBackend)
	}

	return f, nil
}

func defaultParsers() map[contenttype.Kind]ContentParser {
	css := NewCSSParser()
	return map[contenttype.Kind]ContentParser{
		contenttype.KindHTML: css,
		contenttype.KindRSS:  css,
		contenttype.KindXML:  NewXPathParser(),
	}
}

// RegisterParser installs (or replaces) the ContentParser used for
// kind.
func (f *Fetcher) RegisterParser(kind contenttype.Kind, p ContentParser) {
	f.parsers[kind] = p
}

// Metrics returns the Fetcher's metrics collector, e.g. to mount its
// Prometheus handler or inspect a Snapshot.
func (f *Fetcher) Metrics() *metrics.Collector { return f.metrics }

// Close releases every pooled resource. Safe to call once.
func (f *Fetcher) Close() error {
	f.httpPool.Close()
	f.ftpPool.Close()
	if f.dedup != nil {
		f.dedup.Close()
	}
	return nil
}

// Fetch executes req through the full resilience stack and returns
// its Result. Spec §4.13 fetch_single.
func (f *Fetcher) Fetch(ctx context.Context, req *types.Request) (*types.Result, error) {
	start := time.Now()

	validatedURL, err := f.validator.Validate(req.URLString())
	if err != nil {
		return nil, err
	}
	req = req.Clone()
	req.URL = validatedURL
	if err := urlvalidate.ValidateHeaders(req.Headers); err != nil {
		return nil, err
	}

	if f.cacheLayer != nil {
		if data, ok := f.cacheLayer.Get(req.URLString(), headerMap(req.Headers)); ok {
			result := &types.Result{
				Request:      req,
				FinalURL:     req.URLString(),
				StatusCode:   http.StatusOK,
				Body:         data,
				ResponseTime: time.Since(start),
				Timestamp:    time.Now(),
				CacheHit:     true,
			}
			f.recordMetrics(req, result, nil)
			return result, nil
		}
	}

	var result *types.Result
	if f.dedup != nil {
		key := dedup.MakeKey(req.Method, req.URLString())
		res, _ := f.dedup.Do(key, func() (any, error) {
			return f.runRequest(ctx, req)
		})
		if res.Err != nil {
			f.recordMetrics(req, nil, res.Err)
			return nil, res.Err
		}
		result = res.Value.(*types.Result)
	} else {
		result, err = f.runRequest(ctx, req)
		if err != nil {
			f.recordMetrics(req, nil, err)
			return nil, err
		}
	}

	if f.cacheLayer != nil && result.IsSuccess() && len(result.Body) > 0 {
		_ = f.cacheLayer.Set(req.URLString(), result.Body, headerMap(result.Headers), f.cfg.DefaultCacheTTL)
	}

	f.recordMetrics(req, result, nil)
	return result, nil
}

// FetchBatch executes requests concurrently, bounded by
// cfg.MaxConcurrentRequests and released in priority order, by
// delegating to the batch Scheduler (spec §4.11).
func (f *Fetcher) FetchBatch(ctx context.Context, requests []*types.Request) (batch.BatchResult, error) {
	tasks := make([]batch.Task, len(requests))
	for i, req := range requests {
		req := req
		tasks[i] = batch.Task{
			ID:       req.ID,
			Priority: req.Priority,
			Run: func(ctx context.Context) (any, error) {
				return f.Fetch(ctx, req)
			},
		}
	}
	return f.batchSched.Run(ctx, tasks)
}

// runRequest implements spec §4.13 step 4 (run_request): rate limit,
// circuit breaker, concurrency semaphore, then the bounded retry loop
// across HTTP/FTP execution.
func (f *Fetcher) runRequest(ctx context.Context, req *types.Request) (*types.Result, error) {
	host := req.Host()

	if delay := f.limiter.Acquire(host, nil); delay > 0 {
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, &types.FetchError{Kind: types.ErrCancelled, Host: host, Err: err}
		}
	}

	br := f.breakers.Get(host)
	if err := br.Allow(); err != nil {
		return nil, &types.FetchError{Kind: types.ErrCircuitOpen, Host: host, Err: err}
	}

	select {
	case f.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, &types.FetchError{Kind: types.ErrCancelled, Host: host, Err: ctx.Err()}
	}
	defer func() { <-f.sem }()

	maxRetries := f.retryCtl.MaxAttempts() - 1
	if req.MaxRetries >= 0 {
		maxRetries = req.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err := f.attempt(ctx, req)
		if err == nil {
			br.RecordSuccess()
			f.limiter.RecordResponse(host, result.StatusCode, result.Headers, result.ResponseTime)
			result.RetryCount = attempt
			return result, nil
		}

		lastErr = err
		var fe *types.FetchError
		statusCode := 0
		if errors.As(err, &fe) {
			statusCode = fe.StatusCode
		}
		br.RecordFailure(statusCode)
		f.limiter.RecordResponse(host, statusCode, nil, 0)

		info := classifyError(err, f.httpPool.ProxyAuthConfigured())
		if attempt >= maxRetries || !info.Retryable {
			break
		}

		if err := sleepCtx(ctx, f.retryCtl.Delay(info, attempt)); err != nil {
			lastErr = &types.FetchError{Kind: types.ErrCancelled, Host: host, Err: err}
			break
		}
	}

	return nil, lastErr
}

// classifyError derives a retry.ErrorInfo from the error runRequest's
// attempt produced, preferring the FetchError's status code when one
// is present.
func classifyError(err error, proxyAuthConfigured bool) retry.ErrorInfo {
	var fe *types.FetchError
	if errors.As(err, &fe) && fe.StatusCode > 0 {
		return retry.ClassifyStatus(fe.StatusCode, fe.RetryAfter, proxyAuthConfigured)
	}
	if errors.As(err, &fe) {
		return retry.ClassifyCategory(categoryForKind(fe.Kind))
	}
	return retry.ClassifyCategory(retry.CategoryUnknown)
}

func categoryForKind(k types.ErrorKind) retry.Category {
	switch k {
	case types.ErrServer:
		return retry.CategoryServerError
	case types.ErrClient:
		return retry.CategoryClientError
	case types.ErrRateLimit:
		return retry.CategoryRateLimit
	case types.ErrAuth:
		return retry.CategoryAuth
	case types.ErrTimeout:
		return retry.CategoryTimeout
	case types.ErrNetwork:
		return retry.CategoryNetwork
	case types.ErrDNS:
		return retry.CategoryDNS
	case types.ErrTLS:
		return retry.CategoryTLS
	case types.ErrContent:
		return retry.CategoryContent
	case types.ErrVerification:
		return retry.CategoryVerification
	default:
		return retry.CategoryUnknown
	}
}

// attempt dispatches one try of req to the HTTP or FTP execution path,
// bounding it to req.Timeout (when set) with a fresh deadline per
// attempt so a slow try doesn't consume the next attempt's budget.
func (f *Fetcher) attempt(ctx context.Context, req *types.Request) (*types.Result, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	if req.IsFTP() {
		return f.attemptFTP(ctx, req)
	}
	return f.attemptHTTP(ctx, req)
}

func (f *Fetcher) recordMetrics(req *types.Request, result *types.Result, err error) {
	rec := metrics.Record{
		URL:    req.URLString(),
		Method: req.Method,
		Host:   req.Host(),
	}
	if result != nil {
		rec.Status = result.StatusCode
		rec.ResponseTime = result.ResponseTime
		rec.Size = int64(len(result.Body))
	}
	if err != nil {
		rec.Err = err
	} else if result != nil && result.Err != nil {
		rec.Err = result.Err
	}
	f.metrics.Record(rec)
}

// detectKind resolves req's content kind: req.ContentType forces the
// outcome (spec §4.13 step 4's "or auto-detect" clause) when it names
// a known kind, otherwise the Detector inspects the body/URL/headers.
func (f *Fetcher) detectKind(req *types.Request, data []byte, headers http.Header) contenttype.Kind {
	if req.ContentType != "" {
		if k, ok := contenttype.ParseKind(req.ContentType); ok {
			return k
		}
	}
	kind, _ := f.detector.Detect(data, req.URLString(), headers, "")
	return kind
}

func (f *Fetcher) nextUserAgent() string {
	if len(f.cfg.UserAgents) == 0 {
		return "fetchkit/1.0"
	}
	idx := f.uaIndex.Add(1) % int64(len(f.cfg.UserAgents))
	return f.cfg.UserAgents[idx]
}

func headerMap(h http.Header) map[string]string {
	if h == nil {
		return nil
	}
	m := make(map[string]string, len(h))
	for k := range h {
		m[stdHeaderKeyLower(k)] = h.Get(k)
	}
	return m
}

func stdHeaderKeyLower(k string) string {
	b := []byte(k)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// sleepCtx sleeps for d or returns ctx.Err() if ctx is done first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drainBody reads up to maxBytes from r, matching spec §4.13's
// max_response_size bound.
func drainBody(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes > 0 {
		r = io.LimitReader(r, maxBytes)
	}
	return io.ReadAll(r)
}
