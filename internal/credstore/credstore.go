// Package credstore manages the per-outlet credential databases. Each
// outlet's protocol session lives in its own SQLite file under a base
// directory; deleting the file is a full credential reset.
package credstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/blastline/blastline/internal/pkg/crypto"
)

type Store struct {
	baseDir string
	encKey  string
}

// New creates the base directory if needed. encKey may be empty, which
// disables Export/Import.
func New(baseDir, encKey string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}
	return &Store{baseDir: baseDir, encKey: encKey}, nil
}

// Path returns the outlet's credential database file path.
func (s *Store) Path(outletID string) string {
	return filepath.Join(s.baseDir, outletID+".db")
}

// DSN returns the sqlite connection string for the outlet's credentials.
func (s *Store) DSN(outletID string) string {
	return fmt.Sprintf("file:%s?_foreign_keys=on", s.Path(outletID))
}

// Exists reports whether persisted credentials exist for the outlet.
func (s *Store) Exists(outletID string) bool {
	info, err := os.Stat(s.Path(outletID))
	return err == nil && info.Size() > 0
}

// Delete removes the outlet's credential database, including the WAL
// sidecar files sqlite leaves behind.
func (s *Store) Delete(outletID string) error {
	base := s.Path(outletID)
	for _, p := range []string{base, base + "-wal", base + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

// Export returns the outlet's credential database encrypted with the
// store key, for backup or migration between hosts.
func (s *Store) Export(outletID string) ([]byte, error) {
	if s.encKey == "" {
		return nil, fmt.Errorf("credential export disabled: no encryption key configured")
	}
	raw, err := os.ReadFile(s.Path(outletID))
	if err != nil {
		return nil, fmt.Errorf("read credentials for outlet %s: %w", outletID, err)
	}
	enc, err := crypto.Encrypt(raw, s.encKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt credentials: %w", err)
	}
	return enc, nil
}

// Import restores a previously exported credential database. Any existing
// credentials for the outlet are replaced.
func (s *Store) Import(outletID string, encrypted []byte) error {
	if s.encKey == "" {
		return fmt.Errorf("credential import disabled: no encryption key configured")
	}
	raw, err := crypto.Decrypt(encrypted, s.encKey)
	if err != nil {
		return fmt.Errorf("decrypt credentials: %w", err)
	}
	if err := s.Delete(outletID); err != nil {
		return err
	}
	if err := os.WriteFile(s.Path(outletID), raw, 0o600); err != nil {
		return fmt.Errorf("write credentials for outlet %s: %w", outletID, err)
	}
	return nil
}
