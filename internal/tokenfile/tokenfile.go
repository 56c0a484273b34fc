// Package tokenfile persists OAuth2 credentials for the cloud backend. A
// token file records the token together with the client and tenant it was
// issued for, so a refresh never mixes a token with the wrong application.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token directory.
const DirPerms = 0o700

// ErrNotFound is returned by Load when no token file exists.
var ErrNotFound = errors.New("tokenfile: no saved token")

// Record is the on-disk token file.
type Record struct {
	Token    *oauth2.Token `json:"token"`
	ClientID string        `json:"client_id"`
	Tenant   string        `json:"tenant,omitempty"`
	Account  string        `json:"account,omitempty"`
	SavedAt  time.Time     `json:"saved_at"`
}

// Load reads the token file at path.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if rec.Token == nil || rec.Token.RefreshToken == "" {
		return nil, fmt.Errorf("tokenfile: %s has no refresh token (log in again)", path)
	}

	return &rec, nil
}

// Save writes rec to path atomically with owner-only permissions. SavedAt is
// stamped here.
func Save(path string, rec *Record) error {
	stamped := *rec
	stamped.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(stamped, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, err)
	}

	// Temp file in the same directory so the rename stays on one filesystem.
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	if err := writeSynced(tmp, data); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	return nil
}

// UpdateToken replaces the token in an existing file, keeping the rest of
// the record. Used after every silent refresh so a rotated refresh token is
// never lost.
func UpdateToken(path string, tok *oauth2.Token) error {
	rec, err := Load(path)
	if err != nil {
		return err
	}

	rec.Token = tok

	return Save(path, rec)
}

// Remove deletes the token file. A missing file is not an error.
func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return nil
}

func writeSynced(f *os.File, data []byte) error {
	if err := f.Chmod(FilePerms); err != nil {
		f.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	return nil
}
