package cache

import (
	"path/filepath"
	"testing"
	"time"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	backend := NewMemoryBackend(100, nil)
	c := New(DefaultConfig(), backend)

	if err := c.Set("https://example.test/a", []byte("hello"), nil, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, ok := c.Get("https://example.test/a", nil)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(data) != "hello" {
		t.Errorf("got %q, want %q", data, "hello")
	}
}

func TestMemoryCacheMissIncrementsStats(t *testing.T) {
	c := New(DefaultConfig(), NewMemoryBackend(100, nil))
	c.Get("https://example.test/missing", nil)
	if c.Stats().Misses != 1 {
		t.Errorf("Misses = %d, want 1", c.Stats().Misses)
	}
}

func TestMemoryCacheExpiresByTTL(t *testing.T) {
	c := New(DefaultConfig(), NewMemoryBackend(100, nil))
	c.Set("https://example.test/a", []byte("x"), nil, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("https://example.test/a", nil); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestMemoryCacheCompressesLargeEntries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompressionMinBytes = 10
	c := New(cfg, NewMemoryBackend(100, nil))

	big := make([]byte, 2000)
	for i := range big {
		big[i] = byte('a' + i%26)
	}
	c.Set("https://example.test/big", big, nil, time.Minute)
	got, ok := c.Get("https://example.test/big", nil)
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got) != string(big) {
		t.Error("decompressed data does not match original")
	}
}

func TestMemoryCacheEvictsUnderMaxSize(t *testing.T) {
	var evicted int
	backend := NewMemoryBackend(5, func(n int) { evicted += n })
	c := New(DefaultConfig(), backend)

	for i := 0; i < 10; i++ {
		c.Set(string(rune('a'+i)), []byte("v"), nil, time.Minute)
	}
	size, _ := backend.Size()
	if size > 5 {
		t.Errorf("backend size %d exceeds max 5", size)
	}
	if evicted == 0 {
		t.Error("expected at least one eviction")
	}
}

func TestFileCacheRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	backend, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	c := New(DefaultConfig(), backend)

	if err := c.Set("https://example.test/a", []byte("persisted"), nil, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, ok := c.Get("https://example.test/a", nil)
	if !ok || string(data) != "persisted" {
		t.Errorf("got (%q, %v), want (\"persisted\", true)", data, ok)
	}
}

func TestFileCacheDeleteRemovesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	backend, _ := NewFileBackend(dir)
	c := New(DefaultConfig(), backend)

	c.Set("https://example.test/a", []byte("x"), nil, time.Minute)
	if err := c.Delete("https://example.test/a", nil); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := c.Get("https://example.test/a", nil); ok {
		t.Error("expected miss after delete")
	}
}

func TestCacheKeyVariesByRelevantHeaders(t *testing.T) {
	cfg := DefaultConfig()
	c := New(cfg, NewMemoryBackend(100, nil))

	c.Set("https://example.test/a", []byte("en"), map[string]string{"accept-language": "en"}, time.Minute)
	c.Set("https://example.test/a", []byte("fr"), map[string]string{"accept-language": "fr"}, time.Minute)

	en, _ := c.Get("https://example.test/a", map[string]string{"accept-language": "en"})
	fr, _ := c.Get("https://example.test/a", map[string]string{"accept-language": "fr"})
	if string(en) != "en" || string(fr) != "fr" {
		t.Errorf("expected header-varied keys to be distinct, got en=%q fr=%q", en, fr)
	}
}
