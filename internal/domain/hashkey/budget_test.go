package hashkey

import (
	"errors"
	"testing"
	"time"
)

func TestScheduler_NextRoundRobin(t *testing.T) {
	s := NewScheduler([]string{"a", "b", "a", ""})
	if s.Len() != 2 {
		t.Fatalf("expected 2 unique keys, got %d", s.Len())
	}
	got := []string{s.Next(), s.Next(), s.Next()}
	if got[0] != "a" || got[1] != "b" || got[2] != "a" {
		t.Fatalf("unexpected rotation: %v", got)
	}
	var empty *Scheduler
	if empty.Next() != "" {
		t.Fatalf("expected empty key from nil scheduler")
	}
}

func TestScheduler_ObserveKeepsRemainingMonotonicWithinWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).Truncate(time.Minute)
	s := NewScheduler([]string{"k"})

	if err := s.Observe(Status{Token: "k", Remaining: 100, Maximum: 150}, now); err != nil {
		t.Fatalf("observe: %v", err)
	}
	_ = s.Observe(Status{Token: "k", Remaining: 90, Maximum: 150}, now.Add(10*time.Second))
	_ = s.Observe(Status{Token: "k", Remaining: 95, Maximum: 150}, now.Add(20*time.Second))

	b, _ := s.Get("k")
	if b.Remaining != 90 {
		t.Fatalf("expected remaining to stay at 90 within the window, got %d", b.Remaining)
	}
	if b.Peak != 60 {
		t.Fatalf("expected peak 60, got %d", b.Peak)
	}

	_ = s.Observe(Status{Token: "k", Remaining: 140, Maximum: 150}, now.Add(61*time.Second))
	b, _ = s.Get("k")
	if b.Remaining != 140 {
		t.Fatalf("expected refreshed remaining 140, got %d", b.Remaining)
	}
	if b.Peak != 60 {
		t.Fatalf("expected peak kept at 60, got %d", b.Peak)
	}
}

func TestScheduler_ObserveSetsExpiryOnce(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := NewScheduler([]string{"k"})
	first := now.Add(24 * time.Hour)
	_ = s.Observe(Status{Token: "k", Remaining: 1, Maximum: 2, Expiration: first}, now)
	_ = s.Observe(Status{Token: "k", Remaining: 1, Maximum: 2, Expiration: now.Add(48 * time.Hour)}, now)
	b, _ := s.Get("k")
	if !b.Expires.Equal(first) {
		t.Fatalf("expected expiry %v, got %v", first, b.Expires)
	}
}

func TestScheduler_ObserveUnknownKey(t *testing.T) {
	s := NewScheduler([]string{"k"})
	if err := s.Observe(Status{Token: "other"}, time.Now()); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
}
