package tokenstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
)

func TestKeyringStore_RoundTrip(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore("leadbridge-test", "tester")
	if err != nil {
		t.Fatalf("NewKeyringStore: %v", err)
	}
	ctx := context.Background()

	if _, err := store.Read(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read() before write error = %v, want ErrNotFound", err)
	}

	issued := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	if err := store.Write(ctx, RefreshToken{Value: "rt-keyring", IssuedAt: issued}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Value != "rt-keyring" || !got.IssuedAt.Equal(issued) {
		t.Errorf("Read() = %+v", got)
	}
}

func TestNewKeyringStore_Validation(t *testing.T) {
	if _, err := NewKeyringStore("", "user"); err == nil {
		t.Error("expected error for empty service")
	}
	if _, err := NewKeyringStore("service", ""); err == nil {
		t.Error("expected error for empty user")
	}
}
