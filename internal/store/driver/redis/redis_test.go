package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ridgegate/ridgegate/pkg/store"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := NewWithClient(client)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestIncrWithTTL(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	count, remaining, err := s.IncrWithTTL(ctx, "ratelimit:c1", time.Minute)
	if err != nil {
		t.Fatalf("IncrWithTTL: %v", err)
	}
	if count != 1 {
		t.Errorf("first count = %d, want 1", count)
	}
	if remaining <= 0 || remaining > time.Minute {
		t.Errorf("remaining = %v", remaining)
	}

	count, _, err = s.IncrWithTTL(ctx, "ratelimit:c1", time.Minute)
	if err != nil {
		t.Fatalf("IncrWithTTL: %v", err)
	}
	if count != 2 {
		t.Errorf("second count = %d, want 2", count)
	}

	// The TTL was attached by the creating increment, not refreshed since.
	if mr.TTL("ratelimit:c1") <= 0 {
		t.Error("counter has no expiry")
	}
}

func TestIncrWithTTLNewWindowAfterExpiry(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	s.IncrWithTTL(ctx, "k", time.Minute)
	s.IncrWithTTL(ctx, "k", time.Minute)
	mr.FastForward(2 * time.Minute)

	count, _, err := s.IncrWithTTL(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("IncrWithTTL: %v", err)
	}
	if count != 1 {
		t.Errorf("count after expiry = %d, want fresh window at 1", count)
	}
}

func TestGetWithTTL(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	count, remaining, err := s.GetWithTTL(ctx, "absent")
	if err != nil {
		t.Fatalf("GetWithTTL absent: %v", err)
	}
	if count != 0 || remaining != 0 {
		t.Errorf("absent counter = %d, %v", count, remaining)
	}

	s.IncrWithTTL(ctx, "k", time.Minute)
	count, remaining, err = s.GetWithTTL(ctx, "k")
	if err != nil {
		t.Fatalf("GetWithTTL: %v", err)
	}
	if count != 1 || remaining <= 0 {
		t.Errorf("GetWithTTL = %d, %v", count, remaining)
	}

	// Reading is side-effect free.
	count, _, _ = s.GetWithTTL(ctx, "k")
	if count != 1 {
		t.Errorf("count after second read = %d", count)
	}
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.IncrWithTTL(ctx, "k", time.Minute)
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "k"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Delete missing = %v, want ErrNotFound", err)
	}
}

func TestDeleteByPattern(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.IncrWithTTL(ctx, "ratelimit:a", time.Minute)
	s.IncrWithTTL(ctx, "ratelimit:b", time.Minute)
	s.IncrWithTTL(ctx, "session:c", time.Minute)

	deleted, err := s.DeleteByPattern(ctx, "ratelimit:*")
	if err != nil {
		t.Fatalf("DeleteByPattern: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if count, _, _ := s.GetWithTTL(ctx, "session:c"); count != 1 {
		t.Error("non-matching key was deleted")
	}

	deleted, err = s.DeleteByPattern(ctx, "ratelimit:*")
	if err != nil || deleted != 0 {
		t.Errorf("second sweep = %d, %v", deleted, err)
	}
}

func TestHealth(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if got := s.Health(ctx); got.Status != "healthy" {
		t.Errorf("status = %q", got.Status)
	}

	mr.Close()
	if got := s.Health(ctx); got.Status != "unhealthy" {
		t.Errorf("status after backend loss = %q", got.Status)
	}
}

func TestNewRequiresAddress(t *testing.T) {
	if _, err := New(&Config{}); err == nil {
		t.Error("New with empty address succeeded")
	}
	if _, err := New(nil); err == nil {
		t.Error("New with nil config succeeded")
	}
}
