// Package storetest holds the behavioural checks every store.Store backing must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tapline/internal/store"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Run exercises s; clock must be the time source s was built with. Keys are
// namespaced by prefix so shared databases do not interfere.
func Run(t *testing.T, s store.Store, clock *Clock, prefix string) {
	t.Helper()
	ctx := context.Background()
	k := func(name string) string { return prefix + name }

	if _, err := s.Get(ctx, k("missing")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("get missing: expected ErrNotFound, got %v", err)
	}
	if err := s.Set(ctx, k("session:a"), []byte(`{"id":"a"}`), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.Get(ctx, k("session:a"))
	if err != nil || string(got) != `{"id":"a"}` {
		t.Fatalf("get: %q %v", got, err)
	}
	if err := s.Set(ctx, k("session:a"), []byte(`{"id":"a","v":2}`), time.Hour); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = s.Get(ctx, k("session:a"))
	if string(got) != `{"id":"a","v":2}` {
		t.Fatalf("overwrite not applied: %q", got)
	}

	if err := s.Set(ctx, k("session:b"), []byte("b"), 0); err != nil {
		t.Fatalf("set b: %v", err)
	}
	if err := s.Set(ctx, k("event:a:1"), []byte("e"), time.Hour); err != nil {
		t.Fatalf("set event: %v", err)
	}
	entries, err := s.List(ctx, k("session:"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Key != k("session:a") || entries[1].Key != k("session:b") {
		t.Fatalf("unexpected list result: %+v", entries)
	}

	// Refresh-on-write: a write half way through the window extends it.
	clock.Advance(40 * time.Minute)
	if err := s.Set(ctx, k("session:a"), []byte("refreshed"), time.Hour); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	clock.Advance(40 * time.Minute)
	if _, err := s.Get(ctx, k("session:a")); err != nil {
		t.Fatalf("refreshed key expired early: %v", err)
	}
	if _, err := s.Get(ctx, k("event:a:1")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected expired event key, got %v", err)
	}
	clock.Advance(time.Hour)
	if _, err := s.Get(ctx, k("session:a")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
	if _, err := s.Get(ctx, k("session:b")); err != nil {
		t.Fatalf("zero ttl key should not expire: %v", err)
	}
	entries, _ = s.List(ctx, k("session:"))
	if len(entries) != 1 {
		t.Fatalf("expired keys must not be listed: %+v", entries)
	}

	if err := s.Delete(ctx, k("session:b")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, k("session:b")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}
