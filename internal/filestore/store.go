// Package filestore persists uploaded file content on local disk, computing
// a content digest while the bytes are streamed out.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store writes uploads below a single root directory, one subdirectory per
// tenant.
type Store struct {
	root string
}

// New creates the store root if it does not exist.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Store{root: root}, nil
}

// Save streams r to durable storage and returns the storage path, the hex
// SHA-256 of the raw bytes and the byte count. The stored name is prefixed
// with a fresh UUID so identical file names never collide.
func (s *Store) Save(tenantID uuid.UUID, fileName string, r io.Reader) (path string, hash string, size int64, err error) {
	dir := filepath.Join(s.root, tenantID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", 0, fmt.Errorf("failed to create tenant directory: %w", err)
	}

	path = filepath.Join(dir, uuid.NewString()+"_"+filepath.Base(fileName))
	f, err := os.Create(path)
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to create storage file: %w", err)
	}

	digest := sha256.New()
	size, err = io.Copy(io.MultiWriter(f, digest), r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", "", 0, fmt.Errorf("failed to write storage file: %w", err)
	}

	return path, hex.EncodeToString(digest.Sum(nil)), size, nil
}

// Read returns the full content of a stored file.
func (s *Store) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}
	return data, nil
}

// Remove deletes a stored file. Missing files are not an error so cleanup
// after a partially failed batch can be retried.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove storage file: %w", err)
	}
	return nil
}
