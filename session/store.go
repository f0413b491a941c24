// Package session persists account session blobs to per-username files and keeps
// the process-wide table of authenticated clients keyed by chat user.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tventura/livecastbot/crypto"
)

// FileStore reads and writes one session file per username. The blob itself is
// owned by the igapi package; the store never interprets its contents. When an
// Encryptor is configured the blob is encrypted at rest.
type FileStore struct {
	Dir       string
	Encryptor crypto.Encryptor // nil = plaintext
}

// Path returns the session file path for a username.
func (s *FileStore) Path(username string) string {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, username+"_session.json")
}

// Exists reports whether a session file is present for the username.
func (s *FileStore) Exists(username string) bool {
	_, err := os.Stat(s.Path(username))
	return err == nil
}

// Save writes the session blob, creating the directory if needed.
func (s *FileStore) Save(username string, blob []byte) error {
	if username == "" {
		return fmt.Errorf("username empty")
	}
	if s.Dir != "" {
		if err := os.MkdirAll(s.Dir, 0o700); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}
	data := blob
	if s.Encryptor != nil {
		var err error
		data, err = s.Encryptor.Encrypt(blob)
		if err != nil {
			return fmt.Errorf("encrypt session: %w", err)
		}
	}
	if err := os.WriteFile(s.Path(username), data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// Load reads the session blob for a username.
func (s *FileStore) Load(username string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(username))
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if s.Encryptor != nil {
		plain, err := s.Encryptor.Decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("decrypt session: %w", err)
		}
		return plain, nil
	}
	return data, nil
}

// Delete removes the session file. Missing files are not an error.
func (s *FileStore) Delete(username string) error {
	if err := os.Remove(s.Path(username)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete session file: %w", err)
	}
	return nil
}
