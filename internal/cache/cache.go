// Package cache implements the pluggable response cache: memory
// (LRU), file (atomic temp-file+rename), and remote-KV backends share
// one Entry shape, TTL, optional compression, and hit/miss/set/delete/
// eviction statistics. Spec §4.7.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// errKeysUnsupported is returned by Backend.Keys implementations that
// cannot enumerate keys (MemoryBackend, whose groupcache/lru list does
// not expose iteration).
var errKeysUnsupported = errors.New("cache: backend does not support key enumeration")

// Entry is one cached value plus its metadata.
type Entry struct {
	Key          string
	Data         []byte
	Timestamp    time.Time
	TTL          time.Duration // 0 means "never expires"
	ETag         string
	LastModified string
	ContentType  string
	Compressed   bool
	HitCount     int
	LastAccessed time.Time
}

// IsExpired reports whether e has outlived its TTL.
func (e *Entry) IsExpired() bool {
	if e.TTL <= 0 {
		return false
	}
	return time.Since(e.Timestamp) > e.TTL
}

// Backend is the pluggable storage interface every cache backend
// implements. Spec §4.7's CacheBackendInterface.
type Backend interface {
	Get(key string) (*Entry, bool, error)
	Set(entry *Entry) error
	Delete(key string) (bool, error)
	Clear() error
	Keys() ([]string, error)
	Size() (int, error)
}

// Stats mirrors EnhancedCache's hit/miss/set/delete/eviction counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Deletes   int64
	Evictions int64
}

// Config configures a Cache. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	DefaultTTL          time.Duration
	MaxSize             int
	EnableCompression   bool
	CompressionMinBytes int // entries smaller than this are stored uncompressed
	RelevantHeaders     []string
}

// DefaultConfig mirrors web_fetch's EnhancedCacheConfig defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:          time.Hour,
		MaxSize:             1000,
		EnableCompression:   true,
		CompressionMinBytes: 1024,
		RelevantHeaders:     []string{"authorization", "accept", "accept-language"},
	}
}

// Cache wraps a Backend with key derivation, compression, and stats.
type Cache struct {
	cfg     Config
	backend Backend

	mu    sync.Mutex
	stats Stats
}

// New wraps backend with cfg's compression and key-derivation policy.
func New(cfg Config, backend Backend) *Cache {
	return &Cache{cfg: cfg, backend: backend}
}

// Get looks up a cached value for url (optionally varying on
// cache-relevant request headers), decompressing transparently.
func (c *Cache) Get(url string, headers map[string]string) ([]byte, bool) {
	key := c.key(url, headers)
	entry, ok, err := c.backend.Get(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil || !ok {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++

	data := entry.Data
	if entry.Compressed {
		decoded, derr := decompress(data)
		if derr == nil {
			data = decoded
		}
	}
	return data, true
}

// Set stores data for url with ttl (0 uses the configured default).
func (c *Cache) Set(url string, data []byte, headers map[string]string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	key := c.key(url, headers)

	compressed := false
	stored := data
	if c.cfg.EnableCompression && len(data) >= c.cfg.CompressionMinBytes {
		if enc, err := compress(data); err == nil {
			stored = enc
			compressed = true
		}
	}

	entry := &Entry{
		Key:          key,
		Data:         stored,
		Timestamp:    time.Now(),
		TTL:          ttl,
		Compressed:   compressed,
		LastAccessed: time.Now(),
	}
	if headers != nil {
		entry.ETag = headers["etag"]
		entry.LastModified = headers["last-modified"]
		entry.ContentType = headers["content-type"]
	}

	err := c.backend.Set(entry)
	c.mu.Lock()
	if err == nil {
		c.stats.Sets++
	}
	c.mu.Unlock()
	return err
}

// Delete removes the cached value for url, if any.
func (c *Cache) Delete(url string, headers map[string]string) error {
	key := c.key(url, headers)
	deleted, err := c.backend.Delete(key)
	c.mu.Lock()
	if err == nil && deleted {
		c.stats.Deletes++
	}
	c.mu.Unlock()
	return err
}

// Clear empties the backing store.
func (c *Cache) Clear() error { return c.backend.Clear() }

// Stats returns a snapshot of hit/miss/set/delete/eviction counts.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// recordEviction lets a Backend report an LRU eviction back into the
// shared stats counter.
func (c *Cache) recordEviction(n int) {
	c.mu.Lock()
	c.stats.Evictions += int64(n)
	c.mu.Unlock()
}

func (c *Cache) key(url string, headers map[string]string) string {
	parts := []string{url}
	for _, h := range c.cfg.RelevantHeaders {
		if v, ok := headers[h]; ok {
			parts = append(parts, h+":"+v)
		}
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
