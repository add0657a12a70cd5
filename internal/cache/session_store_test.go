package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemorySessionStore(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	if err := store.SaveRefreshToken(ctx, "token-1", "user-1", time.Minute); err != nil {
		t.Fatalf("SaveRefreshToken() error: %v", err)
	}

	userID, err := store.GetRefreshToken(ctx, "token-1")
	if err != nil {
		t.Fatalf("GetRefreshToken() error: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("userID = %q, want %q", userID, "user-1")
	}

	userID, err = store.GetRefreshToken(ctx, "unknown-token")
	if err != nil {
		t.Fatalf("GetRefreshToken() error: %v", err)
	}
	if userID != "" {
		t.Errorf("unknown token returned %q", userID)
	}

	if err := store.DeleteRefreshToken(ctx, "token-1"); err != nil {
		t.Fatalf("DeleteRefreshToken() error: %v", err)
	}
	userID, _ = store.GetRefreshToken(ctx, "token-1")
	if userID != "" {
		t.Errorf("deleted token returned %q", userID)
	}
}

func TestMemorySessionStoreExpiry(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	if err := store.SaveRefreshToken(ctx, "token-1", "user-1", -time.Second); err != nil {
		t.Fatalf("SaveRefreshToken() error: %v", err)
	}

	userID, err := store.GetRefreshToken(ctx, "token-1")
	if err != nil {
		t.Fatalf("GetRefreshToken() error: %v", err)
	}
	if userID != "" {
		t.Errorf("expired token returned %q", userID)
	}
}
