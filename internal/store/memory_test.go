package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemorySaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	if _, err := s.Get(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() on empty store error = %v, want ErrNotFound", err)
	}

	saved, err := s.Save(ctx, "AT1", "RT1", 3600, "Bearer")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !saved.IsActive {
		t.Error("Save() credential not active")
	}
	if !saved.LastUpdated.Equal(now) {
		t.Errorf("Save() LastUpdated = %v, want %v", saved.LastUpdated, now)
	}

	got, err := s.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AccessToken != "AT1" || got.RefreshToken != "RT1" {
		t.Errorf("Get() tokens = %q/%q, want AT1/RT1", got.AccessToken, got.RefreshToken)
	}
	if got.ExpiresIn != 3600 || got.TokenType != "Bearer" {
		t.Errorf("Get() = %+v, want ExpiresIn 3600, TokenType Bearer", got)
	}

	want := now.Add(3600 * time.Second)
	if !got.ExpiresAt().Equal(want) {
		t.Errorf("ExpiresAt() = %v, want %v", got.ExpiresAt(), want)
	}
}

func TestMemoryUpdateAccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	// Updating with no record must fail, not create one.
	if _, err := s.UpdateAccess(ctx, AccessUpdate{AccessToken: "AT2"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateAccess() on empty store error = %v, want ErrNotFound", err)
	}

	if _, err := s.Save(ctx, "AT1", "RT1", 3600, "Bearer"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	now = now.Add(30 * time.Minute)
	updated, err := s.UpdateAccess(ctx, AccessUpdate{AccessToken: "AT2", ExpiresIn: 1800, TokenType: "Bearer"})
	if err != nil {
		t.Fatalf("UpdateAccess() error = %v", err)
	}
	if updated.AccessToken != "AT2" || updated.ExpiresIn != 1800 {
		t.Errorf("UpdateAccess() = %+v, want AT2/1800", updated)
	}
	if updated.RefreshToken != "RT1" {
		t.Errorf("UpdateAccess() refresh token = %q, want untouched RT1", updated.RefreshToken)
	}
	if !updated.LastUpdated.Equal(now) {
		t.Errorf("UpdateAccess() LastUpdated = %v, want bumped to %v", updated.LastUpdated, now)
	}
}

func TestMemoryDeactivate(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if err := s.Deactivate(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Deactivate() on empty store error = %v, want ErrNotFound", err)
	}

	if _, err := s.Save(ctx, "AT1", "RT1", 3600, "Bearer"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Deactivate(ctx); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	if _, err := s.Get(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Deactivate() error = %v, want ErrNotFound", err)
	}

	// Re-authorization reactivates the same row.
	if _, err := s.Save(ctx, "AT2", "RT2", 3600, "Bearer"); err != nil {
		t.Fatalf("Save() after Deactivate() error = %v", err)
	}
	got, err := s.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.RefreshToken != "RT2" {
		t.Errorf("Get() refresh token = %q, want RT2", got.RefreshToken)
	}
}

func TestMemoryUpdateAccessAfterDeactivate(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if _, err := s.Save(ctx, "AT1", "RT1", 3600, "Bearer"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Deactivate(ctx); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	if _, err := s.UpdateAccess(ctx, AccessUpdate{AccessToken: "AT2"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateAccess() on inactive record error = %v, want ErrNotFound", err)
	}
}
