package cache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func TestMemoryCache_TTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryCache(clock.Now)

	if err := c.Set(ctx, "counts", map[string]int{"client-a": 3}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	tests := []struct {
		name    string
		advance time.Duration
		hit     bool
	}{
		{name: "fresh", advance: 0, hit: true},
		{name: "just before expiry", advance: 59 * time.Second, hit: true},
		{name: "at expiry", advance: time.Second, hit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.Advance(tt.advance)
			var got map[string]int
			hit, err := c.Get(ctx, "counts", &got)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if hit != tt.hit {
				t.Fatalf("hit = %v, want %v", hit, tt.hit)
			}
			if hit && got["client-a"] != 3 {
				t.Errorf("unexpected value: %v", got)
			}
		})
	}

	if c.Len() != 0 {
		t.Errorf("expired entry should be evicted on read, %d left", c.Len())
	}
}

func TestMemoryCache_DeleteAndNoTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryCache(clock.Now)

	_ = c.Set(ctx, "forever", 1, 0)
	clock.Advance(24 * 365 * time.Hour)

	var v int
	if hit, _ := c.Get(ctx, "forever", &v); !hit || v != 1 {
		t.Fatalf("expected entry without ttl to survive, hit=%v v=%d", hit, v)
	}

	_ = c.Delete(ctx, "forever")
	if hit, _ := c.Get(ctx, "forever", &v); hit {
		t.Error("expected miss after delete")
	}
}
