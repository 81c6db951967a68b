package tokenstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStore_ReadMissing(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "token.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	_, err = store.Read(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read() error = %v, want ErrNotFound", err)
	}
}

func TestFileStore_WriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.Write(ctx, RefreshToken{Value: "rt-1", IssuedAt: issued}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// Second write replaces the first record
	if err := store.Write(ctx, RefreshToken{Value: "rt-2", IssuedAt: issued.Add(time.Hour)}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Value != "rt-2" || !got.IssuedAt.Equal(issued.Add(time.Hour)) {
		t.Errorf("Read() = %+v, want rt-2 issued at %v", got, issued.Add(time.Hour))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("permissions = %04o, want 0600", info.Mode().Perm())
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestFileStore_RejectsInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte(`{"token":"rt","date":"2026-01-01T00:00:00Z"}`), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if _, err := store.Read(context.Background()); err == nil {
		t.Fatal("expected error for 0644 token file")
	}
}

func TestFileStore_RejectsEmptyToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte(`{"token":"","date":"2026-01-01T00:00:00Z"}`), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	_, err = store.Read(context.Background())
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Read() error = %v, want empty token error", err)
	}
}

func TestFileStore_CanceledContext(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Write(ctx, RefreshToken{Value: "rt"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Write() error = %v, want context.Canceled", err)
	}
}

func TestNewFileStore_EmptyPath(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestRefreshToken_Expired(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	token := RefreshToken{Value: "rt", IssuedAt: issued}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"fresh", issued.Add(time.Hour), false},
		{"one millisecond before ceiling", issued.Add(Lifetime - time.Millisecond), false},
		{"at ceiling", issued.Add(Lifetime), true},
		{"past ceiling", issued.Add(Lifetime + 24*time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := token.Expired(tt.now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}

	if Lifetime.Milliseconds() != 7_889_400_000 {
		t.Errorf("Lifetime = %dms, want 7889400000ms", Lifetime.Milliseconds())
	}
}
