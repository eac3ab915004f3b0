package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/IshaanNene/fetchkit/internal/httppool"
	"github.com/IshaanNene/fetchkit/internal/streampipe"
	"github.com/IshaanNene/fetchkit/internal/types"
)

// attemptHTTP executes one HTTP(S) try of req: build the request,
// apply headers, send via the shared connection pool, classify
// non-2xx statuses, decompress, bound the body read, and parse per
// content type. Grounded on internal/fetcher/http.go's HTTPFetcher.Fetch.
func (f *Fetcher) attemptHTTP(ctx context.Context, req *types.Request) (*types.Result, error) {
	if req.OutputPath != "" {
		return f.attemptHTTPStream(ctx, req)
	}

	start := time.Now()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URLString(), body)
	if err != nil {
		return nil, &types.FetchError{Kind: types.ErrClient, Host: req.Host(), Err: err}
	}
	f.applyHeaders(httpReq, req)

	httpResp, err := f.httpPool.Client().Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		return nil, &types.FetchError{Kind: classifyTransportErrorKind(err), Host: req.Host(), Err: err, Elapsed: elapsed}
	}
	defer httpResp.Body.Close()

	if fe := classifyHTTPStatus(req, httpResp, elapsed, f.httpPool.ProxyAuthConfigured()); fe != nil {
		return nil, fe
	}

	reader, err := httppool.DecompressBody(httpResp.Header.Get("Content-Encoding"), httpResp.Body)
	if err != nil {
		return nil, &types.FetchError{Kind: types.ErrContent, Host: req.Host(), Err: err, Elapsed: elapsed}
	}

	data, err := drainBody(reader, f.cfg.MaxResponseSize)
	if err != nil {
		return nil, &types.FetchError{Kind: types.ErrNetwork, Host: req.Host(), Err: err, Elapsed: elapsed}
	}

	result := &types.Result{
		Request:      req,
		FinalURL:     httpResp.Request.URL.String(),
		StatusCode:   httpResp.StatusCode,
		Headers:      httpResp.Header,
		Body:         data,
		ResponseTime: time.Since(start),
		Timestamp:    time.Now(),
	}

	f.attachParsedContent(result, req, data, httpResp.Header)

	return result, nil
}

// attemptHTTPStream streams req's body to req.OutputPath via the
// streaming pipeline instead of buffering it in memory, supporting
// resume via an HTTP Range request. Spec §4.10/§4.13 interaction.
func (f *Fetcher) attemptHTTPStream(ctx context.Context, req *types.Request) (*types.Result, error) {
	start := time.Now()

	totalBytes, err := f.probeContentLength(ctx, req)
	if err != nil {
		return nil, &types.FetchError{Kind: classifyTransportErrorKind(err), Host: req.Host(), Err: err}
	}

	src := streampipe.Source{
		TotalBytes: totalBytes,
		Open: func(offset int64) (io.ReadCloser, error) {
			httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URLString(), nil)
			if err != nil {
				return nil, err
			}
			f.applyHeaders(httpReq, req)
			if offset > 0 {
				httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
			}
			resp, err := f.httpPool.Client().Do(httpReq)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= 400 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
				resp.Body.Close()
				return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}
			return resp.Body, nil
		},
	}

	checksum := req.Headers.Get("X-Expected-Checksum")
	dlResult, err := f.stream.Download(req.OutputPath, src, checksum, progressFromContext(ctx))
	if err != nil {
		return nil, &types.FetchError{Kind: types.ErrVerification, Host: req.Host(), Err: err, Elapsed: time.Since(start)}
	}

	return &types.Result{
		Request:      req,
		FinalURL:     req.URLString(),
		StatusCode:   http.StatusOK,
		Body:         []byte(dlResult.LocalPath),
		ResponseTime: dlResult.Duration,
		Timestamp:    time.Now(),
	}, nil
}

// probeContentLength issues a HEAD request to learn the total size for
// resume/verification bookkeeping; a failed or sizeless HEAD is not
// fatal, since streampipe treats TotalBytes<=0 as "unknown".
func (f *Fetcher) probeContentLength(ctx context.Context, req *types.Request) (int64, error) {
	headReq, err := http.NewRequestWithContext(ctx, http.MethodHead, req.URLString(), nil)
	if err != nil {
		return 0, nil
	}
	f.applyHeaders(headReq, req)
	resp, err := f.httpPool.Client().Do(headReq)
	if err != nil {
		return 0, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, nil
	}
	return resp.ContentLength, nil
}

// applyHeaders sets User-Agent rotation, standard Accept/
// Accept-Encoding headers, and req's own headers (which may override
// the defaults). Grounded on internal/fetcher/http.go's Fetch header
// construction.
func (f *Fetcher) applyHeaders(httpReq *http.Request, req *types.Request) {
	httpReq.Header.Set("User-Agent", f.nextUserAgent())
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for key, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Set(key, v)
		}
	}
}

// classifyHTTPStatus turns a non-2xx/3xx response into a *FetchError,
// or returns nil for a status the caller should treat as success.
// Grounded on internal/fetcher/http.go's 429/5xx handling, generalized
// to the full status table in internal/retry.
func classifyHTTPStatus(req *types.Request, resp *http.Response, elapsed time.Duration, proxyAuthConfigured bool) *types.FetchError {
	if resp.StatusCode < 400 {
		return nil
	}

	var retryAfter time.Duration
	if h := resp.Header.Get("Retry-After"); h != "" {
		retryAfter = parseRetryAfter(h)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	kind := types.ErrClient
	switch {
	case resp.StatusCode == 401 || resp.StatusCode == 403 || resp.StatusCode == 407:
		kind = types.ErrAuth
	case resp.StatusCode == 404:
		kind = types.ErrNotFound
	case resp.StatusCode == 408:
		kind = types.ErrTimeout
	case resp.StatusCode == 429:
		kind = types.ErrRateLimit
	case resp.StatusCode >= 500:
		kind = types.ErrServer
	}

	return &types.FetchError{
		Kind:       kind,
		Host:       req.Host(),
		StatusCode: resp.StatusCode,
		Elapsed:    elapsed,
		RetryAfter: retryAfter,
		Err:        fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
	}
}

// classifyTransportErrorKind maps a transport-level error (as opposed
// to an HTTP status) to an ErrorKind. Grounded on
// internal/fetcher/http.go's isRetryableError.
func classifyTransportErrorKind(err error) types.ErrorKind {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return types.ErrCancelled
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return types.ErrDNS
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.ErrTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) || errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return types.ErrNetwork
		}
	}
	return types.ErrNetwork
}

// parseRetryAfter parses the Retry-After header (seconds or HTTP-date),
// capped at 2 minutes, defaulting to 5s when absent or unparsable.
// Ported from internal/fetcher/http.go's parseRetryAfter.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if secs > 120 {
			secs = 120
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			return time.Second
		}
		if d > 2*time.Minute {
			return 2 * time.Minute
		}
		return d
	}
	return 5 * time.Second
}

// attachParsedContent detects data's content kind (or honors
// req.ContentType if forced) and runs the matching registered
// ContentParser, storing the typed value in result.Content. Per
// DESIGN.md's raw-body-retention open question, the raw bytes are
// cleared once a parser successfully consumes them.
func (f *Fetcher) attachParsedContent(result *types.Result, req *types.Request, data []byte, headers http.Header) {
	k := f.detectKind(req, data, headers)
	result.ContentType = k.String()

	parser, ok := f.parsers[k]
	if !ok {
		return
	}
	content, err := parser.Parse(data, result.FinalURL, k.String())
	if err != nil {
		f.logger.Debug("content parse failed", "url", result.FinalURL, "kind", k.String(), "error", err)
		return
	}
	result.Content = content
	result.Body = nil
}
