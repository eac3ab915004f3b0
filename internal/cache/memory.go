package cache

import (
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
)

// MemoryBackend is an in-process Backend built on groupcache's LRU
// list, generalized from a crawl-result LRU into a TTL-aware response
// cache: Get treats an expired hit as a miss and evicts it; Set relies
// on lru.Cache's OnEvicted hook to keep eviction stats in sync.
type MemoryBackend struct {
	onEvict func(n int)

	mu     sync.Mutex
	lru    *lru.Cache
	adding bool // true only while Set runs lru.Add
}

// NewMemoryBackend creates a MemoryBackend bounded to maxSize entries.
// onEvict, if non-nil, is called with the number of entries evicted
// whenever the size bound forces the LRU list to drop an entry.
func NewMemoryBackend(maxSize int, onEvict func(n int)) *MemoryBackend {
	m := &MemoryBackend{onEvict: onEvict}
	m.lru = &lru.Cache{
		MaxEntries: maxSize,
		OnEvicted: func(key lru.Key, value interface{}) {
			if m.adding && m.onEvict != nil {
				m.onEvict(1)
			}
		},
	}
	return m
}

func (m *MemoryBackend) Get(key string) (*Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	e := v.(*Entry)
	if e.IsExpired() {
		m.lru.Remove(key)
		return nil, false, nil
	}
	e.HitCount++
	e.LastAccessed = time.Now()
	return e, true, nil
}

func (m *MemoryBackend) Set(entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adding = true
	m.lru.Add(entry.Key, entry)
	m.adding = false
	return nil
}

func (m *MemoryBackend) Delete(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lru.Get(key); !ok {
		return false, nil
	}
	m.lru.Remove(key)
	return true, nil
}

func (m *MemoryBackend) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.Clear()
	return nil
}

func (m *MemoryBackend) Keys() ([]string, error) {
	// groupcache/lru does not expose key iteration; callers that need a
	// full listing (e.g. CLI introspection) should prefer FileBackend
	// or RemoteBackend, both of which support it directly.
	return nil, errKeysUnsupported
}

func (m *MemoryBackend) Size() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len(), nil
}
