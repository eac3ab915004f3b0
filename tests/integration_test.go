// Package integration exercises the fully composed Fetcher against
// httptest servers, one test per end-to-end scenario named in
// SPEC_FULL.md's testable-properties section (E1-E6).
package integration

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IshaanNene/fetchkit/internal/cache"
	"github.com/IshaanNene/fetchkit/internal/fetcher"
	"github.com/IshaanNene/fetchkit/internal/retry"
	"github.com/IshaanNene/fetchkit/internal/streampipe"
	"github.com/IshaanNene/fetchkit/internal/types"
)

func newFetcher(t *testing.T, mutate func(*fetcher.Config)) *fetcher.Fetcher {
	t.Helper()
	cfg := fetcher.DefaultConfig()
	cfg.EnableCache = false
	cfg.EnableDedup = false
	cfg.Breaker.FailureThreshold = 1000
	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.BurstSize = 1000
	cfg.Retry.MaxRetries = 0
	// httptest servers listen on 127.0.0.1, which the default SSRF
	// policy blocks; lift only the loopback entries.
	delete(cfg.Validator.BlockedHosts, "127.0.0.1")
	var cidrs []*net.IPNet
	for _, n := range cfg.Validator.BlockedCIDRs {
		if !n.Contains(net.IPv4(127, 0, 0, 1)) {
			cidrs = append(cidrs, n)
		}
	}
	cfg.Validator.BlockedCIDRs = cidrs
	if mutate != nil {
		mutate(&cfg)
	}
	f, err := fetcher.New(cfg)
	if err != nil {
		t.Fatalf("fetcher.New: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func mustReq(t *testing.T, rawURL string) *types.Request {
	t.Helper()
	req, err := types.NewRequest(rawURL)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	return req
}

// E1: GET JSON hit.
func TestE1_GetJSONHit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := newFetcher(t, nil)
	req := mustReq(t, srv.URL+"/data")
	req.ContentType = "json"

	result, err := f.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !result.IsSuccess() {
		t.Fatalf("expected success, got status %d err %v", result.StatusCode, result.Err)
	}
	if result.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", result.StatusCode)
	}

	var body map[string]bool
	if err := json.Unmarshal(result.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if !body["ok"] {
		t.Errorf("body = %v, want {ok: true}", body)
	}
}

// E2: server flap with retry — 500, 500, 200 "success", exponential
// backoff with jitter disabled, base delay 100ms.
func TestE2_ServerFlapWithRetry(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("success"))
	}))
	defer srv.Close()

	f := newFetcher(t, func(cfg *fetcher.Config) {
		cfg.Retry.MaxRetries = 2
		cfg.Retry.BaseDelay = 100 * time.Millisecond
		cfg.Retry.MaxDelay = 10 * time.Second
		cfg.Retry.Strategy = retry.Exponential
		cfg.Retry.BackoffFactor = 2
		cfg.Retry.Jitter = false
	})

	start := time.Now()
	result, err := f.Fetch(context.Background(), mustReq(t, srv.URL))
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if result.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", result.StatusCode)
	}
	if string(result.Body) != "success" {
		t.Errorf("Body = %q, want success", result.Body)
	}
	if result.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", result.RetryCount)
	}
	// base=100ms, factor=2: attempt0 delay=100ms, attempt1 delay=200ms -> ~300ms total.
	if elapsed < 280*time.Millisecond || elapsed > 600*time.Millisecond {
		t.Errorf("elapsed = %v, want roughly 300ms", elapsed)
	}
	if calls.Load() != 3 {
		t.Errorf("server saw %d calls, want 3", calls.Load())
	}
}

// E3: rate-limit with server hint — first reply 429 with
// Retry-After: 2, second reply 200; the retried attempt must not fire
// before the hinted delay elapses.
func TestE3_RateLimitWithServerHint(t *testing.T) {
	var calls atomic.Int64
	var firstReplyAt atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			firstReplyAt.Store(time.Now())
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newFetcher(t, func(cfg *fetcher.Config) {
		cfg.Retry.MaxRetries = 1
		cfg.Retry.Strategy = retry.Exponential
	})

	result, err := f.Fetch(context.Background(), mustReq(t, srv.URL))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	secondReplyAt := time.Now()
	first, _ := firstReplyAt.Load().(time.Time)
	if secondReplyAt.Sub(first) < 2*time.Second {
		t.Errorf("second attempt fired %v after the first, want >= 2s", secondReplyAt.Sub(first))
	}
	if !result.IsSuccess() || result.RetryCount != 1 {
		t.Errorf("result = %+v, want success with RetryCount 1", result)
	}
}

// E4: batch with mixed outcomes — one 200-JSON, one 404, one delayed
// 200, one unresolvable host.
func TestE4_BatchWithMixedOutcomes(t *testing.T) {
	jsonSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer jsonSrv.Close()

	notFoundSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer notFoundSrv.Close()

	delayedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte("delayed-ok"))
	}))
	defer delayedSrv.Close()

	f := newFetcher(t, nil)

	requests := []*types.Request{
		mustReq(t, jsonSrv.URL),
		mustReq(t, notFoundSrv.URL),
		mustReq(t, delayedSrv.URL),
		mustReq(t, "http://unresolvable.invalid.example."),
	}

	batchResult, err := f.FetchBatch(context.Background(), requests)
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}

	if batchResult.Succeeded+batchResult.Failed != len(requests) {
		t.Errorf("Succeeded(%d)+Failed(%d) != total(%d)", batchResult.Succeeded, batchResult.Failed, len(requests))
	}
	if batchResult.Succeeded != 2 {
		t.Errorf("Succeeded = %d, want 2", batchResult.Succeeded)
	}
	if batchResult.Failed != 2 {
		t.Errorf("Failed = %d, want 2", batchResult.Failed)
	}

	byID := make(map[string]batchResultEntry)
	for _, r := range batchResult.Results {
		byID[r.ID] = batchResultEntry{value: r.Value, err: r.Err}
	}

	notFoundEntry := byID[requests[1].ID]
	var notFoundErr *types.FetchError
	if !asFetchError(notFoundEntry.err, &notFoundErr) || notFoundErr.Kind != types.ErrNotFound {
		t.Errorf("request[1] error = %v, want ErrNotFound", notFoundEntry.err)
	}

	unresolvableEntry := byID[requests[3].ID]
	var unresolvableErr *types.FetchError
	if !asFetchError(unresolvableEntry.err, &unresolvableErr) || unresolvableErr.Kind != types.ErrNetwork && unresolvableErr.Kind != types.ErrDNS {
		t.Errorf("request[3] error = %v, want Network/DNS", unresolvableEntry.err)
	}
}

type batchResultEntry struct {
	value any
	err   error
}

func asFetchError(err error, target **types.FetchError) bool {
	if err == nil {
		return false
	}
	if fe, ok := err.(*types.FetchError); ok {
		*target = fe
		return true
	}
	return false
}

// E5: resumed download with verification — remote file size 10000,
// local file pre-filled with the first 4000 bytes; expect exactly
// 6000 additional bytes transferred and a matching SHA256.
func TestE5_ResumedDownloadWithVerification(t *testing.T) {
	full := make([]byte, 10000)
	if _, err := rand.Read(full); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	sum := sha256.Sum256(full)
	expectedHash := hex.EncodeToString(sum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		offset := 0
		if rangeHeader != "" {
			var start int
			if _, err := fmt.Sscanf(rangeHeader, "bytes=%d-", &start); err == nil {
				offset = start
			}
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(full)-offset))
		w.WriteHeader(http.StatusOK)
		w.Write(full[offset:])
	}))
	defer srv.Close()

	dir := t.TempDir()
	localPath := filepath.Join(dir, "download.bin")
	if err := os.WriteFile(localPath, full[:4000], 0o644); err != nil {
		t.Fatalf("pre-fill local file: %v", err)
	}

	f := newFetcher(t, func(cfg *fetcher.Config) {
		cfg.Streaming.EnableResume = true
		cfg.Streaming.Verification = streampipe.VerifySHA256
	})

	req := mustReq(t, srv.URL)
	req.OutputPath = localPath
	req.Headers.Set("X-Expected-Checksum", expectedHash)

	result, err := f.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !result.IsSuccess() {
		t.Fatalf("expected success, got %+v", result)
	}

	downloaded, err := os.ReadFile(localPath)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if len(downloaded) != len(full) {
		t.Fatalf("downloaded %d bytes, want %d", len(downloaded), len(full))
	}
	gotSum := sha256.Sum256(downloaded)
	if hex.EncodeToString(gotSum[:]) != expectedHash {
		t.Errorf("final file hash mismatch")
	}
}

// E6: circuit-opening cascade — five consecutive 503s with
// failure_threshold=5 trip the breaker; the sixth request fails fast
// with ErrCircuitOpen; after the recovery timeout a probe succeeds and
// closes the breaker.
func TestE6_CircuitOpeningCascade(t *testing.T) {
	var failUntilClosed atomic.Bool
	failUntilClosed.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failUntilClosed.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	const recoveryTimeout = 150 * time.Millisecond
	f := newFetcher(t, func(cfg *fetcher.Config) {
		cfg.Breaker.FailureThreshold = 5
		cfg.Breaker.RecoveryTimeout = recoveryTimeout
		cfg.Breaker.SuccessThreshold = 1
		cfg.Retry.MaxRetries = 0
	})

	for i := 0; i < 5; i++ {
		result, err := f.Fetch(context.Background(), mustReq(t, srv.URL))
		if err == nil && result.IsSuccess() {
			t.Fatalf("attempt %d unexpectedly succeeded", i)
		}
	}

	_, err := f.Fetch(context.Background(), mustReq(t, srv.URL))
	var fe *types.FetchError
	if !asFetchError(err, &fe) || fe.Kind != types.ErrCircuitOpen {
		t.Fatalf("sixth request error = %v, want ErrCircuitOpen", err)
	}

	time.Sleep(recoveryTimeout + 50*time.Millisecond)
	failUntilClosed.Store(false)

	result, err := f.Fetch(context.Background(), mustReq(t, srv.URL))
	if err != nil {
		t.Fatalf("probe attempt: %v", err)
	}
	if !result.IsSuccess() {
		t.Fatalf("probe attempt should have closed the breaker, got %+v", result)
	}
}

// Confirms the cache layer satisfies a put/get round trip byte-for-byte,
// the property named alongside the E1-E6 scenarios.
func TestCacheRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("cached-body"))
	}))
	defer srv.Close()

	f := newFetcher(t, func(cfg *fetcher.Config) {
		cfg.EnableCache = true
		cfg.CacheBackend = cache.NewMemoryBackend(100, nil)
	})

	req := mustReq(t, srv.URL)
	first, err := f.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if first.CacheHit {
		t.Errorf("first fetch should not be a cache hit")
	}

	second, err := f.Fetch(context.Background(), mustReq(t, srv.URL))
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !second.CacheHit {
		t.Errorf("second fetch should be served from cache")
	}
	if string(second.Body) != string(first.Body) {
		t.Errorf("cached body = %q, want %q", second.Body, first.Body)
	}
}
