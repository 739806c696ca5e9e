package creds

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func newStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewFileStore(tokenPath, logger), dir
}

func TestAccessTokenMissingFile(t *testing.T) {
	store, _ := newStore(t)

	token, err := store.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if token != "" {
		t.Errorf("token = %q, want empty for missing file", token)
	}
}

func TestAccessTokenTrimsWhitespace(t *testing.T) {
	store, dir := newStore(t)
	if err := os.WriteFile(filepath.Join(dir, "token"), []byte("  tok-abc\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	token, err := store.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if token != "tok-abc" {
		t.Errorf("token = %q, want tok-abc", token)
	}
}

func TestClearAllRemovesTokenAndProfile(t *testing.T) {
	store, dir := newStore(t)
	tokenPath := filepath.Join(dir, "token")
	profilePath := filepath.Join(dir, "profile.json")
	if err := os.WriteFile(tokenPath, []byte("tok-abc"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(profilePath, []byte(`{"name":"x"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := store.ClearAll(context.Background()); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	for _, path := range []string{tokenPath, profilePath} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s still exists after purge", filepath.Base(path))
		}
	}
}

func TestClearAllTolerantOfMissingFiles(t *testing.T) {
	store, _ := newStore(t)
	if err := store.ClearAll(context.Background()); err != nil {
		t.Errorf("ClearAll on empty store: %v", err)
	}
}
