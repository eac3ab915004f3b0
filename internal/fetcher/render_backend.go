package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/fetchkit/internal/httppool"
	"github.com/IshaanNene/fetchkit/internal/types"
)

// RenderConfig configures a RenderBackend. The zero value is not
// usable; start from DefaultRenderConfig.
type RenderConfig struct {
	MaxPages int
	Stealth  bool
	Timeout  time.Duration
	Proxy    *httppool.ProxyManager
	Logger   *slog.Logger
}

// DefaultRenderConfig mirrors internal/fetcher/browser.go's defaults.
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{MaxPages: 4, Stealth: true, Timeout: 30 * time.Second}
}

// RenderBackend is the opaque JS-rendering Fetcher backend the core
// treats as a pluggable alternative to the HTTP execution path (spec
// §1's "one opaque backend" carve-out) — it satisfies the same
// Fetch(ctx, *types.Request) (*types.Result, error) shape as the
// composed Fetcher so a caller can swap one for the other, but
// internally bypasses the rate limiter/breaker/retry/cache stack
// entirely: a browser page is its own resource, not a pooled
// connection, and rendering is inherently stateful in a way the
// stateless resilience stack does not model. Grounded on
// internal/fetcher/browser.go + stealth.go, with captcha solving
// (captcha.go) dropped — it has no counterpart in a fetch-execution
// core that does not evade anti-bot defenses, only renders JS.
type RenderBackend struct {
	cfg     RenderConfig
	browser *rod.Browser
	logger  *slog.Logger

	pagePool chan *rod.Page
}

// NewRenderBackend launches a headless Chromium instance and returns
// a ready RenderBackend.
func NewRenderBackend(cfg RenderConfig) (*RenderBackend, error) {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultRenderConfig().MaxPages
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-blink-features", "AutomationControlled")

	if cfg.Proxy != nil {
		if proxyURL := cfg.Proxy.Next(); proxyURL != nil {
			l = l.Proxy(proxyURL.String())
		}
	}

	launchURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &RenderBackend{
		cfg:      cfg,
		browser:  browser,
		logger:   cfg.Logger.With("component", "render_backend"),
		pagePool: make(chan *rod.Page, cfg.MaxPages),
	}, nil
}

// Fetch navigates to req's URL and returns the rendered HTML as the
// Result body. StatusCode is always 200 on success since Rod does not
// expose the navigation's own response status directly; a caller that
// needs the real status should prefer the HTTP execution path.
func (b *RenderBackend) Fetch(ctx context.Context, req *types.Request) (*types.Result, error) {
	start := time.Now()

	page, err := b.acquirePage()
	if err != nil {
		return nil, &types.FetchError{Kind: types.ErrNetwork, Host: req.Host(), Err: fmt.Errorf("acquire page: %w", err)}
	}
	defer b.releasePage(page)

	if b.cfg.Stealth {
		page, err = stealth.Page(b.browser)
		if err != nil {
			return nil, &types.FetchError{Kind: types.ErrNetwork, Host: req.Host(), Err: fmt.Errorf("stealth page: %w", err)}
		}
	}

	if ua := req.Headers.Get("User-Agent"); ua != "" {
		_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua})
	}

	timeout := b.cfg.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	if err := page.Timeout(timeout).Navigate(req.URLString()); err != nil {
		return nil, &types.FetchError{Kind: types.ErrNetwork, Host: req.Host(), Err: fmt.Errorf("navigate: %w", err), Elapsed: time.Since(start)}
	}
	if err := page.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
		b.logger.Warn("page stability timeout, continuing", "url", req.URLString(), "error", err)
	}

	content, err := page.HTML()
	if err != nil {
		return nil, &types.FetchError{Kind: types.ErrNetwork, Host: req.Host(), Err: fmt.Errorf("read html: %w", err), Elapsed: time.Since(start)}
	}

	finalURL := req.URLString()
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	duration := time.Since(start)
	b.logger.Debug("render complete", "url", req.URLString(), "final_url", finalURL, "size", len(content), "duration", duration)

	return &types.Result{
		Request:      req,
		FinalURL:     finalURL,
		StatusCode:   200,
		Body:         []byte(content),
		ContentType:  "text/html",
		ResponseTime: duration,
		Timestamp:    time.Now(),
	}, nil
}

// Close shuts down the browser and every pooled page.
func (b *RenderBackend) Close() error {
	close(b.pagePool)
	for page := range b.pagePool {
		_ = page.Close()
	}
	if b.browser != nil {
		return b.browser.Close()
	}
	return nil
}

// Type identifies this backend to a caller composing multiple
// Fetcher-shaped backends.
func (b *RenderBackend) Type() string { return "render" }

func (b *RenderBackend) acquirePage() (*rod.Page, error) {
	select {
	case page := <-b.pagePool:
		return page, nil
	default:
		return b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
}

func (b *RenderBackend) releasePage(page *rod.Page) {
	_ = page.Navigate("about:blank")
	select {
	case b.pagePool <- page:
	default:
		_ = page.Close()
	}
}
