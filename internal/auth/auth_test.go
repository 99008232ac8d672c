package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestStaticPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("door-list"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	checker := NewStaticPassword(string(hash))
	ctx := context.Background()

	if err := checker.Check(ctx, "door-list"); err != nil {
		t.Fatalf("right password rejected: %v", err)
	}
	if err := checker.Check(ctx, "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("want ErrBadCredentials, got %v", err)
	}
}

func TestMemorySessionLifecycle(t *testing.T) {
	store := NewMemorySessions(time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Validate(ctx, sess.Token); err != nil {
		t.Fatalf("fresh session rejected: %v", err)
	}
	if err := store.Validate(ctx, "nope"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("want ErrNoSession, got %v", err)
	}

	if err := store.Destroy(ctx, sess.Token); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if err := store.Validate(ctx, sess.Token); !errors.Is(err, ErrNoSession) {
		t.Fatalf("destroyed session should be invalid, got %v", err)
	}
}

func TestMemorySessionExpiry(t *testing.T) {
	store := NewMemorySessions(-time.Second)
	ctx := context.Background()
	sess, err := store.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Validate(ctx, sess.Token); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expired session should be invalid, got %v", err)
	}
}
