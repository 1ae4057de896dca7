// Package localstore persists an encrypted profile blob for fast reload.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/crypto"
	"github.com/carebridge/carebridge/internal/model"
)

// Store writes the profile as an encrypted blob under a config directory.
// Blobs survive restarts but are local-only: nothing syncs across machines.
// The file namespace is keyed per role so switching identities does not
// collide. All failures are best-effort: logged, never fatal.
type Store struct {
	dir    string
	secret string
	log    *zap.Logger
}

// New constructs a store rooted at dir.
func New(dir, sharedSecret string, log *zap.Logger) *Store {
	return &Store{dir: dir, secret: sharedSecret, log: log}
}

// DefaultDir returns the per-user config directory for blob storage.
func DefaultDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "carebridge")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "carebridge")
}

func (s *Store) path(role model.Role) string {
	return filepath.Join(s.dir, fmt.Sprintf("profile_%s.enc", role))
}

// Persist encrypts the profile and writes it to disk. Encryption or write
// failure leaves the previous blob untouched; the profile stays
// server-fetched only.
func (s *Store) Persist(p *model.Profile) {
	plain, err := json.Marshal(p)
	if err != nil {
		s.log.Warn("localstore: marshal profile", zap.Error(err))
		return
	}
	blob, err := crypto.SealWithSecret(plain, s.secret)
	if err != nil {
		s.log.Warn("localstore: encrypt profile", zap.Error(err))
		return
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		s.log.Warn("localstore: mkdir", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.path(p.Role), []byte(blob), 0o600); err != nil {
		s.log.Warn("localstore: write blob", zap.Error(err))
	}
}

// Retrieve loads and decrypts the blob for role, or nil when absent or
// unreadable. Decrypt failures are logged and treated as a miss.
func (s *Store) Retrieve(role model.Role) *model.Profile {
	raw, err := os.ReadFile(s.path(role))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("localstore: read blob", zap.Error(err))
		}
		return nil
	}
	plain, err := crypto.OpenWithSecret(string(raw), s.secret)
	if err != nil {
		s.log.Warn("localstore: decrypt blob", zap.Error(err))
		return nil
	}
	var p model.Profile
	if err := json.Unmarshal(plain, &p); err != nil {
		s.log.Warn("localstore: unmarshal profile", zap.Error(err))
		return nil
	}
	return &p
}

// Clear removes the blob for role; used on logout.
func (s *Store) Clear(role model.Role) {
	if err := os.Remove(s.path(role)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("localstore: clear blob", zap.Error(err))
	}
}
