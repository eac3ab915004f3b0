package dedup

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCanonicalizeURLSortsQueryAndDropsFragment(t *testing.T) {
	a := CanonicalizeURL("HTTP://Example.com:80/path/?b=2&a=1#frag")
	b := CanonicalizeURL("http://example.com/path?a=1&b=2")
	if a != b {
		t.Errorf("expected equal canonical forms, got %q vs %q", a, b)
	}
}

func TestConcurrentDoCollapsesToOneExecution(t *testing.T) {
	d := New(time.Minute)
	defer d.Close()

	key := MakeKey("GET", "https://example.test/a")
	var execCount int32
	var wg sync.WaitGroup
	results := make([]Result, 20)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, _ := d.Do(key, func() (any, error) {
				atomic.AddInt32(&execCount, 1)
				time.Sleep(20 * time.Millisecond)
				return "value", nil
			})
			results[i] = r
		}(i)
	}
	wg.Wait()

	if execCount != 1 {
		t.Errorf("fn executed %d times, want 1", execCount)
	}
	for i, r := range results {
		if r.Value != "value" {
			t.Errorf("result %d = %v, want \"value\"", i, r.Value)
		}
	}
}

func TestWaitersReflectsJoinedCallers(t *testing.T) {
	d := New(time.Minute)
	defer d.Close()

	key := MakeKey("GET", "https://example.test/b")
	release := make(chan struct{})
	started := make(chan struct{})

	go d.Do(key, func() (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	<-started

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Do(key, func() (any, error) { return nil, nil })
		}()
	}
	time.Sleep(10 * time.Millisecond)
	if w := d.Waiters(key); w < 2 {
		t.Errorf("Waiters() = %d, want at least 2 joined callers", w)
	}
	close(release)
	wg.Wait()
}

func TestDifferentKeysExecuteIndependently(t *testing.T) {
	d := New(time.Minute)
	defer d.Close()

	var count int32
	var wg sync.WaitGroup
	for _, u := range []string{"https://a.test/", "https://b.test/"} {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			d.Do(MakeKey("GET", u), func() (any, error) {
				atomic.AddInt32(&count, 1)
				return nil, nil
			})
		}(u)
	}
	wg.Wait()
	if count != 2 {
		t.Errorf("count = %d, want 2 (independent keys should not collapse)", count)
	}
}

func TestInFlightReportsCompletion(t *testing.T) {
	d := New(time.Minute)
	defer d.Close()

	key := MakeKey("GET", "https://example.test/c")
	d.Do(key, func() (any, error) { return nil, nil })
	if d.InFlight(key) {
		t.Error("expected InFlight to be false after completion")
	}
}
