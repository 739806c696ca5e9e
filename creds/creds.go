// Package creds reads the access credential the engine attaches to feed
// requests. The engine never writes credentials; it only purges them when
// the remote service reports the session expired.
package creds

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// profileCache is the cached profile purged alongside the credential.
const profileCache = "profile.json"

// Store provides read-and-purge access to the stored credential.
type Store interface {
	// AccessToken returns the current token, or "" when none is stored.
	AccessToken(ctx context.Context) (string, error)
	// ClearAll removes the credential and any cached profile.
	ClearAll(ctx context.Context) error
}

// FileStore keeps the token in a plain file next to a cached profile,
// mirroring the layout the sign-in flow writes.
type FileStore struct {
	logger    *slog.Logger
	tokenPath string
}

// NewFileStore creates a store reading the token from tokenPath.
func NewFileStore(tokenPath string, logger *slog.Logger) *FileStore {
	return &FileStore{
		tokenPath: tokenPath,
		logger:    logger,
	}
}

// AccessToken reads the token file. A missing file means signed out, not an
// error.
func (f *FileStore) AccessToken(_ context.Context) (string, error) {
	data, err := os.ReadFile(f.tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ClearAll deletes the token file and the cached profile beside it.
// Idempotent: already-absent files are not an error.
func (f *FileStore) ClearAll(_ context.Context) error {
	if err := os.Remove(f.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove token: %w", err)
	}
	profilePath := filepath.Join(filepath.Dir(f.tokenPath), profileCache)
	if err := os.Remove(profilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cached profile: %w", err)
	}
	f.logger.Info("Credential purged", "token_path", f.tokenPath)
	return nil
}
