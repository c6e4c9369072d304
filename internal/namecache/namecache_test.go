package namecache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New("redis://" + mr.Addr() + "/0")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRememberAndName(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Remember(ctx, 42, "Alice")
	if got := c.Name(ctx, 42); got != "Alice" {
		t.Fatalf("Name = %q, want Alice", got)
	}

	c.Remember(ctx, 42, "Alice B")
	if got := c.Name(ctx, 42); got != "Alice B" {
		t.Fatalf("Name after update = %q", got)
	}
}

func TestUnknownUser(t *testing.T) {
	c := newTestCache(t)
	if got := c.Name(context.Background(), 7); got != "" {
		t.Fatalf("Name for unknown user = %q, want empty", got)
	}
}

func TestBlankNameIgnored(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Remember(ctx, 7, "   ")
	if got := c.Name(ctx, 7); got != "" {
		t.Fatalf("blank name stored as %q", got)
	}
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	c.Remember(ctx, 1, "Alice")
	if got := c.Name(ctx, 1); got != "" {
		t.Fatalf("nil cache Name = %q", got)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("nil cache Close: %v", err)
	}
}

func TestBadURL(t *testing.T) {
	if _, err := New("http://localhost:6379"); err == nil {
		t.Fatalf("non-redis scheme accepted")
	}
	if _, err := New(""); err == nil {
		t.Fatalf("empty url accepted")
	}
}
