package tokencache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCacheReturnsCachedValueBeforeExpiry(t *testing.T) {
	t.Parallel()

	c := New[string]()
	calls := 0
	renew := func(ctx context.Context) (string, int64, error) {
		calls++
		return "tok1", time.Now().Unix() + 3600, nil
	}

	ctx := context.Background()
	v, err := c.Get(ctx, "n", renew, DefaultTimeNeeded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "tok1" {
		t.Fatalf("got %q, want tok1", v)
	}

	v2, err := c.Get(ctx, "n", renew, DefaultTimeNeeded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v2 != "tok1" {
		t.Fatalf("got %q, want tok1", v2)
	}
	if calls != 1 {
		t.Fatalf("renew called %d times, want 1", calls)
	}
}

func TestCacheRenewsWhenExpiringSoon(t *testing.T) {
	t.Parallel()

	c := New[string]()
	calls := 0
	renew := func(ctx context.Context) (string, int64, error) {
		calls++
		return "tok", time.Now().Unix() + 30, nil
	}

	ctx := context.Background()
	if _, err := c.Get(ctx, "n", renew, DefaultTimeNeeded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Get(ctx, "n", renew, DefaultTimeNeeded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("renew called %d times, want 2", calls)
	}
}

func TestCacheRenewFailureDoesNotClobberEntry(t *testing.T) {
	t.Parallel()

	c := New[string]()
	good := func(ctx context.Context) (string, int64, error) {
		return "good", time.Now().Unix() + 30, nil
	}
	bad := func(ctx context.Context) (string, int64, error) {
		return "", 0, errors.New("boom")
	}

	ctx := context.Background()
	if _, err := c.Get(ctx, "n", good, DefaultTimeNeeded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := c.Get(ctx, "n", bad, DefaultTimeNeeded); err == nil {
		t.Fatalf("expected error from failing renew")
	}

	c.mu.Lock()
	e := c.entries["n"]
	c.mu.Unlock()
	if e.value != "good" {
		t.Fatalf("entry was clobbered by failed renew: %+v", e)
	}
}
