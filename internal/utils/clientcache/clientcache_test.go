package clientcache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestGetOrCreateBuildsOnce(t *testing.T) {
	cache := NewCache[*int]()
	var builds atomic.Int32
	var wg sync.WaitGroup
	results := make([]*int, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := cache.GetOrCreate("http://localhost:80", func() (*int, error) {
				builds.Add(1)
				n := 42
				return &n, nil
			})
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
			}
			results[i] = v
		}(i)
	}
	wg.Wait()
	if builds.Load() != 1 {
		t.Fatalf("factory ran %d times, want 1", builds.Load())
	}
	for _, v := range results {
		if v != results[0] {
			t.Fatal("callers received different values for the same key")
		}
	}
}

func TestGetOrCreateDoesNotCacheErrors(t *testing.T) {
	cache := NewCache[string]()
	boom := errors.New("boom")
	if _, err := cache.GetOrCreate("k", func() (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if _, ok := cache.Get("k"); ok {
		t.Fatal("failed build must not be cached")
	}
	v, err := cache.GetOrCreate("k", func() (string, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Fatalf("GetOrCreate = (%q, %v)", v, err)
	}
}

func TestRangeAndClear(t *testing.T) {
	cache := NewCache[int]()
	for _, k := range []string{"a", "b", "c"} {
		k := k
		if _, err := cache.GetOrCreate(k, func() (int, error) { return len(k), nil }); err != nil {
			t.Fatal(err)
		}
	}
	seen := 0
	cache.Range(func(string, int) bool { seen++; return true })
	if seen != 3 {
		t.Fatalf("Range visited %d values, want 3", seen)
	}
	cache.Delete("a")
	if _, ok := cache.Get("a"); ok {
		t.Fatal("Delete did not remove the value")
	}
	cache.Clear()
	seen = 0
	cache.Range(func(string, int) bool { seen++; return true })
	if seen != 0 {
		t.Fatalf("Clear left %d values", seen)
	}
}
