package dataflows

import (
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set("k", 42)

	v, ok := c.Get("k")
	if !ok {
		t.Fatalf("expected hit for k")
	}
	if v.(int) != 42 {
		t.Errorf("expected 42, got %v", v)
	}

	if _, ok := c.Get("missing"); ok {
		t.Errorf("expected miss for unknown key")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	c.Set("k", "v")

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Errorf("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache after expiry, got %d", c.Len())
	}
}

func TestCacheDisabled(t *testing.T) {
	c := NewCache(0)
	c.Set("k", "v")
	if _, ok := c.Get("k"); ok {
		t.Errorf("zero-TTL cache must never hit")
	}
}

func TestCacheIndependentInstances(t *testing.T) {
	a := NewCache(time.Minute)
	b := NewCache(time.Minute)
	a.Set("k", 1)
	if _, ok := b.Get("k"); ok {
		t.Errorf("caches must not share entries")
	}
}
