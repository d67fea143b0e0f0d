package clientcache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestGetOrCreateBuildsOncePerKey(t *testing.T) {
	cache := NewCache[*int]()
	var builds atomic.Int32

	var wg sync.WaitGroup
	results := make([]*int, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := cache.GetOrCreate("a", func() (*int, error) {
				builds.Add(1)
				n := 42
				return &n, nil
			})
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	if builds.Load() != 1 {
		t.Fatalf("builds = %d, want 1", builds.Load())
	}
	for i, v := range results {
		if v != results[0] {
			t.Fatalf("result %d is a different client", i)
		}
	}
	if cache.Len() != 1 {
		t.Fatalf("Len = %d, want 1", cache.Len())
	}
}

func TestGetOrCreateDoesNotCacheFailures(t *testing.T) {
	cache := NewCache[string]()
	boom := errors.New("boom")

	if _, err := cache.GetOrCreate("k", func() (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("failed build was cached")
	}

	v, err := cache.GetOrCreate("k", func() (string, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Fatalf("got (%q, %v), want (ok, nil)", v, err)
	}

	cache.Delete("k")
	if cache.Len() != 0 {
		t.Fatalf("Delete did not evict")
	}
}
