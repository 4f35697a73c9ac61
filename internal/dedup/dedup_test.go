package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := New("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestFirstSeen(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first, err := s.FirstSeen(ctx, "Ev123")
	if err != nil {
		t.Fatalf("FirstSeen: %v", err)
	}
	if !first {
		t.Error("first delivery reported as replay")
	}

	replay, err := s.FirstSeen(ctx, "Ev123")
	if err != nil {
		t.Fatalf("FirstSeen replay: %v", err)
	}
	if replay {
		t.Error("redelivery reported as first")
	}
}

func TestFirstSeenDistinctEvents(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if first, _ := s.FirstSeen(ctx, "EvA"); !first {
		t.Error("EvA should be first")
	}
	if first, _ := s.FirstSeen(ctx, "EvB"); !first {
		t.Error("EvB should be unaffected by EvA")
	}
}

func TestFirstSeenAfterTTL(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if _, err := s.FirstSeen(ctx, "EvTTL"); err != nil {
		t.Fatalf("FirstSeen: %v", err)
	}
	mr.FastForward(defaultTTL + time.Second)

	first, err := s.FirstSeen(ctx, "EvTTL")
	if err != nil {
		t.Fatalf("FirstSeen after ttl: %v", err)
	}
	if !first {
		t.Error("claim should expire with the key")
	}
}

func TestNewBadURL(t *testing.T) {
	if _, err := New("not a url"); err == nil {
		t.Error("expected parse error")
	}
}
