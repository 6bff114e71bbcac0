package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileSystemStore stores document blobs on the local filesystem.
// ResolveURL points at the server's own /files/:key route.
type FileSystemStore struct {
	basePath string
	baseURL  string
}

// NewFileSystemStore creates a new filesystem storage backend.
// baseURL is the externally visible server address used to build blob URLs.
func NewFileSystemStore(basePath, baseURL string) *FileSystemStore {
	return &FileSystemStore{
		basePath: basePath,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}
}

// EnsureDir creates the storage directory if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", fs.basePath, err)
	}
	return nil
}

// Put writes data to a file named after the key.
// A partial file left by a failed write is removed before returning.
func (fs *FileSystemStore) Put(ctx context.Context, key string, data io.Reader, size int64) (int64, error) {
	filePath, err := fs.filePath(key)
	if err != nil {
		return 0, err
	}

	file, err := os.Create(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file %s: %w", filePath, err)
	}
	defer file.Close()

	n, err := io.Copy(file, data)
	if err != nil {
		os.Remove(filePath)
		return 0, fmt.Errorf("failed to write file: %w", err)
	}

	return n, nil
}

// Delete removes the blob for a key. Missing blobs report ErrBlobNotFound
// so callers can distinguish a repeat delete from a clean one.
func (fs *FileSystemStore) Delete(ctx context.Context, key string) error {
	filePath, err := fs.filePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("failed to delete file %s: %w", filePath, err)
	}
	return nil
}

// ResolveURL returns the serving URL for a stored blob.
func (fs *FileSystemStore) ResolveURL(ctx context.Context, key string) (string, error) {
	filePath, err := fs.filePath(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(filePath); err != nil {
		if os.IsNotExist(err) {
			return "", ErrBlobNotFound
		}
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	return fs.baseURL + "/files/" + key, nil
}

// Ping verifies the storage directory is accessible.
func (fs *FileSystemStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(fs.basePath); err != nil {
		return fmt.Errorf("storage directory inaccessible: %w", err)
	}
	return nil
}

// LocalPath returns the on-disk path for a key, for direct serving.
func (fs *FileSystemStore) LocalPath(key string) (string, error) {
	return fs.filePath(key)
}

// filePath rejects keys that would escape the storage directory.
func (fs *FileSystemStore) filePath(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(fs.basePath, key), nil
}
