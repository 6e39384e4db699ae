package contentstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/smallnest/rlmcore/rlmerrors"
)

// ErrNotFound is returned by Get when no blob exists for the given hash.
var ErrNotFound = errors.New("contentstore: blob not found")

// ContentStore maps content_hash -> bytes, backed by a directory of
// digest-named files.
type ContentStore struct {
	dir string
}

// Open creates or reuses a ContentStore rooted at dir (typically
// <data-dir>/docs/blobs).
func Open(dir string) (*ContentStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("contentstore: creating %s: %w", dir, err)
	}
	return &ContentStore{dir: dir}, nil
}

// Hash returns the content digest for b without storing it.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Put stores b, returning its content hash. Put is idempotent: storing the
// same bytes twice yields the same hash and only one physical blob.
//
// Two distinct inputs hashing to the same digest is a fatal correctness
// bug per spec §4.1 — it is never treated as a recoverable condition.
func (s *ContentStore) Put(b []byte) (string, error) {
	hash := Hash(b)
	path := s.blobPath(hash)

	if existing, err := os.ReadFile(path); err == nil {
		if string(existing) != string(b) {
			panic((&rlmerrors.ErrContentHashCollision{Hash: hash}).Error())
		}
		return hash, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("contentstore: reading %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(s.dir, "blob-*.tmp")
	if err != nil {
		return "", fmt.Errorf("contentstore: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("contentstore: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("contentstore: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("contentstore: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("contentstore: committing blob: %w", err)
	}
	return hash, nil
}

// Get returns the bytes stored under hash, or ErrNotFound.
func (s *ContentStore) Get(hash string) ([]byte, error) {
	b, err := os.ReadFile(s.blobPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("contentstore: reading blob %s: %w", hash, err)
	}
	return b, nil
}

// Exists reports whether a blob for hash is present.
func (s *ContentStore) Exists(hash string) bool {
	_, err := os.Stat(s.blobPath(hash))
	return err == nil
}

// Collect removes the blob for hash. Callers (the DocumentStore) must only
// invoke this once they have confirmed no Document still references it.
func (s *ContentStore) Collect(hash string) error {
	err := os.Remove(s.blobPath(hash))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("contentstore: collecting blob %s: %w", hash, err)
	}
	return nil
}

func (s *ContentStore) blobPath(hash string) string {
	return filepath.Join(s.dir, hash)
}
