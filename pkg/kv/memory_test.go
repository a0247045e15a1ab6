package kv

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	s.Set(ctx, "a", []byte("1"), time.Minute)
	if v, err := s.Get(ctx, "a"); err != nil || string(v) != "1" {
		t.Errorf("Get(a) = %q, %v", v, err)
	}

	if ok, _ := s.SetNX(ctx, "a", []byte("2"), 0); ok {
		t.Error("SetNX must not overwrite a live key")
	}

	now = now.Add(2 * time.Minute)
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected expired key, got %v", err)
	}
	if ok, _ := s.SetNX(ctx, "a", []byte("2"), 0); !ok {
		t.Error("SetNX must set an expired key")
	}

	s.Delete(ctx, "a")
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected deleted key, got %v", err)
	}
}

func TestValkeyStore(t *testing.T) {
	t.Skip("Requires a Valkey/Redis server on localhost:6379 - run manually")

	s, err := NewValkeyStore(ValkeyConfig{Addr: "localhost:6379"})
	if err != nil {
		t.Fatalf("NewValkeyStore failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Set(ctx, "qfold:test", []byte("x"), time.Second); err != nil {
		t.Fatal(err)
	}
	if v, err := s.Get(ctx, "qfold:test"); err != nil || string(v) != "x" {
		t.Errorf("Get = %q, %v", v, err)
	}
}
