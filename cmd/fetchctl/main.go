package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/fetchkit/internal/cache"
	"github.com/IshaanNene/fetchkit/internal/config"
	"github.com/IshaanNene/fetchkit/internal/fetcher"
	"github.com/IshaanNene/fetchkit/internal/streampipe"
	"github.com/IshaanNene/fetchkit/internal/types"
	"github.com/IshaanNene/fetchkit/internal/urlvalidate"
)

const (
	exitOK        = 0
	exitFailure   = 1
	exitConfigErr = 2
	exitInterrupt = 130
)

var (
	cfgFile       string
	verbose       bool
	contentType   string
	method        string
	headerFlags   []string
	data          string
	timeoutSec    float64
	retries       int
	concurrent    int
	enableCache   bool
	cacheTTL      int
	stream        bool
	outputPath    string
	progress      bool
	chunkSize     int
	maxFileSize   int64
	validateURLs  bool
	normalizeURLs bool
	noVerifySSL   bool
	format        string
	batchFile     string
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := &cobra.Command{
		Use:   "fetchctl",
		Short: "fetchctl — resilient content-fetch engine CLI",
		Long: `fetchctl drives the fetchkit engine: URL validation, rate
limiting, circuit breaking, retrying, deduplication, caching, pooled
HTTP/FTP connections, and resumable streaming downloads, wrapped in
one command-line tool.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sigCh
		cancel()
	}()
	rootCmd.SetContext(ctx)

	if err := rootCmd.Execute(); err != nil {
		if ctx.Err() != nil {
			return exitInterrupt
		}
		if _, ok := err.(*configError); ok {
			return exitConfigErr
		}
		return exitFailure
	}
	if ctx.Err() != nil {
		return exitInterrupt
	}
	if exitCode != 0 {
		return exitCode
	}
	return exitOK
}

// exitCode lets a RunE set a non-zero exit without returning an error
// cobra would print twice (once via RunE, once via Execute's wrapper).
var exitCode int

type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func fetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch URL...",
		Short: "Fetch one or more URLs",
		Args:  cobra.MinimumNArgs(0),
		RunE:  runFetch,
	}
	addFetchFlags(cmd)
	return cmd
}

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Fetch a batch of URLs listed in a file",
		RunE:  runFetch,
	}
	addFetchFlags(cmd)
	cmd.Flags().StringVar(&batchFile, "batch", "", "file with one URL per non-empty, non-comment line")
	return cmd
}

func addFetchFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&contentType, "content-type", "t", "", "forced content-type kind: text|html|json|xml|rss|csv|markdown|pdf|image|raw")
	cmd.Flags().StringVar(&method, "method", "GET", "HTTP method")
	cmd.Flags().StringArrayVar(&headerFlags, "headers", nil, "request header 'K: V' (repeatable)")
	cmd.Flags().StringVar(&data, "data", "", "request body")
	cmd.Flags().Float64Var(&timeoutSec, "timeout", 30, "per-request timeout in seconds")
	cmd.Flags().IntVar(&retries, "retries", -1, "max retries per request (-1 = use config default)")
	cmd.Flags().IntVar(&concurrent, "concurrent", 0, "max concurrent requests (0 = use config default)")
	cmd.Flags().BoolVar(&enableCache, "cache", true, "enable the response cache")
	cmd.Flags().IntVar(&cacheTTL, "cache-ttl", 0, "cache TTL in seconds (0 = use config default)")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream to disk instead of buffering in memory")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "local destination for --stream")
	cmd.Flags().BoolVar(&progress, "progress", false, "show a progress bar for --stream downloads")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "initial streaming chunk size in bytes (0 = use config default)")
	cmd.Flags().Int64Var(&maxFileSize, "max-file-size", 0, "reject a stream download larger than this many bytes (0 = unbounded)")
	cmd.Flags().BoolVar(&validateURLs, "validate-urls", false, "validate each URL and exit without fetching")
	cmd.Flags().BoolVar(&normalizeURLs, "normalize-urls", false, "print each URL's normalized form and exit without fetching")
	cmd.Flags().BoolVar(&noVerifySSL, "no-verify-ssl", false, "skip TLS certificate verification")
	cmd.Flags().StringVar(&format, "format", "text", "result format: text|json|detailed|summary")
}

func runFetch(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return &configError{fmt.Errorf("load config: %w", err)}
	}
	applyCLIOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return &configError{fmt.Errorf("invalid config: %w", err)}
	}

	urls, err := collectURLs(args)
	if err != nil {
		return &configError{err}
	}
	if len(urls) == 0 {
		return &configError{fmt.Errorf("no URLs given: pass one or more URLs, or --batch FILE")}
	}

	if validateURLs || normalizeURLs {
		return runURLInspection(cfg, urls)
	}

	f, err := buildFetcher(cfg, logger)
	if err != nil {
		return fmt.Errorf("build fetcher: %w", err)
	}
	defer f.Close()

	ctx := cmd.Context()

	var bar *progressbar.ProgressBar
	if progress && stream {
		bar = progressbar.DefaultBytes(-1, "downloading")
		ctx = fetcher.WithProgress(ctx, func(info streampipe.ProgressInfo) {
			bar.ChangeMax64(info.TotalBytes)
			_ = bar.Set64(info.BytesTransferred)
		})
	}

	anyFailed := false
	for _, rawURL := range urls {
		req, err := buildRequest(rawURL)
		if err != nil {
			logger.Error("skipping invalid request", "url", rawURL, "error", err)
			anyFailed = true
			continue
		}

		result, err := f.Fetch(ctx, req)
		if err != nil {
			printResult(rawURL, nil, err)
			anyFailed = true
			continue
		}
		printResult(rawURL, result, nil)
		if !result.IsSuccess() {
			anyFailed = true
		}
	}

	if anyFailed {
		exitCode = exitFailure
	}
	return nil
}

func runURLInspection(cfg *config.Config, urls []string) error {
	v := urlvalidate.New(urlvalidate.DefaultConfig())
	anyFailed := false
	for _, rawURL := range urls {
		if normalizeURLs {
			normalized, err := v.Normalize(rawURL, nil)
			if err != nil {
				fmt.Printf("%s: %v\n", rawURL, err)
				anyFailed = true
				continue
			}
			fmt.Println(normalized)
			continue
		}
		if _, err := v.Validate(rawURL); err != nil {
			fmt.Printf("%s: %v\n", rawURL, err)
			anyFailed = true
			continue
		}
		fmt.Printf("%s: ok\n", rawURL)
	}
	if anyFailed {
		exitCode = exitFailure
	}
	return nil
}

func collectURLs(args []string) ([]string, error) {
	urls := append([]string{}, args...)
	if batchFile == "" {
		return urls, nil
	}
	f, err := os.Open(batchFile)
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

func buildRequest(rawURL string) (*types.Request, error) {
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return nil, err
	}
	req.Method = strings.ToUpper(method)
	req.ContentType = contentType
	req.Timeout = time.Duration(timeoutSec * float64(time.Second))
	req.MaxRetries = retries
	if data != "" {
		req.Body = []byte(data)
	}
	if stream {
		req.OutputPath = outputPath
	}
	for _, h := range headerFlags {
		k, v, ok := strings.Cut(h, ":")
		if !ok {
			continue
		}
		req.Headers.Set(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	return req, nil
}

func buildFetcher(cfg *config.Config, logger *slog.Logger) (*fetcher.Fetcher, error) {
	fcfg := cfg.ToFetcherConfig()
	fcfg.Logger = logger

	if concurrent > 0 {
		fcfg.MaxConcurrentRequests = concurrent
	}
	if cacheTTL > 0 {
		fcfg.DefaultCacheTTL = time.Duration(cacheTTL) * time.Second
	}
	if chunkSize > 0 {
		fcfg.Streaming.InitialChunkSize = int64(chunkSize)
	}
	if maxFileSize > 0 {
		fcfg.Streaming.MaxFileSize = maxFileSize
	}
	if noVerifySSL {
		fcfg.HTTPPool.TLSInsecureSkipVerify = true
	}
	fcfg.EnableCache = enableCache

	if fcfg.EnableCache {
		switch cfg.Cache.Backend {
		case "file":
			backend, err := cache.NewFileBackend(cfg.Cache.FileCacheDir)
			if err != nil {
				return nil, fmt.Errorf("create file cache backend: %w", err)
			}
			fcfg.CacheBackend = backend
		default:
			fcfg.CacheBackend = cache.NewMemoryBackend(cfg.Cache.MaxSize, nil)
		}
	}

	return fetcher.New(fcfg)
}

func printResult(rawURL string, result *types.Result, err error) {
	switch format {
	case "summary":
		if err != nil {
			fmt.Printf("%s FAIL %v\n", color.RedString("✗"), err)
			return
		}
		fmt.Printf("%s %s %d (%s)\n", color.GreenString("✓"), rawURL, result.StatusCode, result.ResponseTime.Round(time.Millisecond))
	case "json":
		if err != nil {
			fmt.Printf(`{"url":%q,"error":%q}`+"\n", rawURL, err.Error())
			return
		}
		fmt.Printf(`{"url":%q,"status":%d,"cache_hit":%v,"retry_count":%d,"response_time_ms":%d}`+"\n",
			rawURL, result.StatusCode, result.CacheHit, result.RetryCount, result.ResponseTime.Milliseconds())
	case "detailed":
		if err != nil {
			fmt.Printf("%s\n  error: %v\n", rawURL, err)
			return
		}
		fmt.Printf("%s\n  status:       %d\n  cache hit:    %v\n  retries:      %d\n  response time: %s\n  content type: %s\n  bytes:        %d\n",
			rawURL, result.StatusCode, result.CacheHit, result.RetryCount, result.ResponseTime.Round(time.Millisecond), result.ContentType, len(result.Body))
	default:
		if err != nil {
			fmt.Printf("%s: error: %v\n", rawURL, err)
			return
		}
		fmt.Printf("%s: %d (%s)\n", rawURL, result.StatusCode, result.ResponseTime.Round(time.Millisecond))
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fetchctl %s\n", config.Version)
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return &configError{err}
			}
			fmt.Printf("Fetcher:\n")
			fmt.Printf("  Max Concurrent Requests: %d\n", cfg.Fetcher.MaxConcurrentRequests)
			fmt.Printf("  Max Response Size:       %d bytes\n", cfg.Fetcher.MaxResponseSize)
			fmt.Printf("  Request Timeout:         %s\n", cfg.Fetcher.RequestTimeout)
			fmt.Printf("  Dedup Enabled:           %v\n", cfg.Fetcher.EnableDedup)
			fmt.Printf("\nRate Limit:\n")
			fmt.Printf("  Algorithm:               %s\n", cfg.RateLimit.Algorithm)
			fmt.Printf("  Requests/sec:            %.1f\n", cfg.RateLimit.RequestsPerSecond)
			fmt.Printf("  Burst Size:              %d\n", cfg.RateLimit.BurstSize)
			fmt.Printf("\nCircuit Breaker:\n")
			fmt.Printf("  Failure Threshold:       %d\n", cfg.CircuitBreaker.FailureThreshold)
			fmt.Printf("  Recovery Timeout:        %s\n", cfg.CircuitBreaker.RecoveryTimeout)
			fmt.Printf("\nRetry:\n")
			fmt.Printf("  Strategy:                %s\n", cfg.Retry.Strategy)
			fmt.Printf("  Max Retries:             %d\n", cfg.Retry.MaxRetries)
			fmt.Printf("\nCache:\n")
			fmt.Printf("  Enabled:                 %v\n", cfg.Cache.Enabled)
			fmt.Printf("  Backend:                 %s\n", cfg.Cache.Backend)
			fmt.Printf("  Default TTL:             %s\n", cfg.Cache.DefaultTTL)
			fmt.Printf("\nHTTP Pool:\n")
			fmt.Printf("  Total Connections:       %d\n", cfg.HTTPPool.TotalConnections)
			fmt.Printf("  Connections/Host:        %d\n", cfg.HTTPPool.ConnectionsPerHost)
			fmt.Printf("  Proxies Configured:      %d\n", len(cfg.HTTPPool.ProxyURLs))
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:                 %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:                    %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func applyCLIOverrides(cfg *config.Config) {
	if retries >= 0 {
		cfg.Retry.MaxRetries = retries
	}
	if concurrent > 0 {
		cfg.Fetcher.MaxConcurrentRequests = concurrent
	}
	cfg.Cache.Enabled = enableCache
	if cacheTTL > 0 {
		cfg.Cache.DefaultTTL = time.Duration(cacheTTL) * time.Second
	}
}
