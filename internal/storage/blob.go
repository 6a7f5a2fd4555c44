// Package storage keeps uploaded media blobs.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MediaPrefix is the URL path under which blobs are served.
const MediaPrefix = "/media/"

var (
	// ErrInvalidKey rejects keys that could escape the store root.
	ErrInvalidKey = errors.New("invalid blob key")
	// ErrNotFound means no blob exists for the key.
	ErrNotFound = errors.New("blob not found")
)

// BlobStore persists opaque blobs addressed by slash-separated keys.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
	KeyFromURL(url string) (string, bool)
}

// NewKey returns a fresh key for an owner's blob with the given extension.
// Owners are hashed so arbitrary identifiers map to safe directory names.
func NewKey(owner, ext string) string {
	sum := sha256.Sum256([]byte(owner))
	return hex.EncodeToString(sum[:8]) + "/" + uuid.NewString() + "." + strings.TrimPrefix(ext, ".")
}

// DiskStore stores blobs under a root directory.
type DiskStore struct {
	root       string
	publicBase string
}

var _ BlobStore = (*DiskStore)(nil)

// NewDiskStore creates root if needed. publicBase is the externally reachable
// server URL used to build blob URLs.
func NewDiskStore(root, publicBase string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &DiskStore{root: root, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

func (d *DiskStore) path(key string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if key == "" || clean != key || strings.HasPrefix(clean, "../") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(d.root, filepath.FromSlash(clean)), nil
}

// Put writes the blob atomically.
func (d *DiskStore) Put(_ context.Context, key string, r io.Reader) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("commit blob: %w", err)
	}
	return nil
}

// Open returns a reader for the blob.
func (d *DiskStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Delete removes the blob. Deleting a missing blob is not an error.
func (d *DiskStore) Delete(_ context.Context, key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// PublicURL returns the URL the server exposes the blob under.
func (d *DiskStore) PublicURL(key string) string {
	return d.publicBase + MediaPrefix + key
}

// KeyFromURL reverses PublicURL.
func (d *DiskStore) KeyFromURL(u string) (string, bool) {
	prefix := d.publicBase + MediaPrefix
	if !strings.HasPrefix(u, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(u, prefix)
	if _, err := d.path(key); err != nil {
		return "", false
	}
	return key, true
}
