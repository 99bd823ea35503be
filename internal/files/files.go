// Package files owns attachment blobs. The relational store keeps only
// file metadata; services resolve ids to URLs through this package.
package files

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store saves blobs and resolves stored file ids to serveable URLs.
type Store interface {
	// Save writes the blob and returns its assigned id.
	Save(ctx context.Context, r io.Reader) (uuid.UUID, error)
	// Remove deletes a stored blob; callers use it to undo a Save whose
	// metadata never committed.
	Remove(ctx context.Context, id uuid.UUID) error
	// URL resolves a stored file id to the URL clients fetch it from.
	URL(id uuid.UUID) string
}

// DiskStore keeps blobs in a local directory, one file per id. Blobs are
// served by the HTTP layer under BaseURL.
type DiskStore struct {
	Dir     string
	BaseURL string
}

// NewDiskStore creates the blob directory if needed.
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{Dir: dir, BaseURL: baseURL}, nil
}

// Save writes the blob under a fresh uuid.
func (s *DiskStore) Save(_ context.Context, r io.Reader) (uuid.UUID, error) {
	id := uuid.New()

	f, err := os.Create(filepath.Join(s.Dir, id.String()))
	if err != nil {
		return uuid.Nil, err
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return uuid.Nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return uuid.Nil, err
	}
	return id, nil
}

// Remove deletes the blob for id. Removing a missing blob is not an error.
func (s *DiskStore) Remove(_ context.Context, id uuid.UUID) error {
	err := os.Remove(s.Path(id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// URL resolves a file id to its download URL.
func (s *DiskStore) URL(id uuid.UUID) string {
	return s.BaseURL + "/" + id.String()
}

// Path returns the on-disk location of a stored file.
func (s *DiskStore) Path(id uuid.UUID) string {
	return filepath.Join(s.Dir, id.String())
}
