package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// LocalStorage implements ObjectStorage on the local filesystem.
type LocalStorage struct {
	basePath string
	mu       sync.Mutex
}

// NewLocalStorage creates a filesystem store rooted at basePath.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Put writes data to key. The file is written to a temporary name and
// renamed so readers never observe a partial object.
func (l *LocalStorage) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write(key, data)
}

func (l *LocalStorage) write(key string, data []byte) (string, error) {
	dest := l.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return etagOf(data), nil
}

// Get reads key.
func (l *LocalStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return data, nil
}

// ConditionalPut writes data only if the stored object matches etag.
func (l *LocalStorage) ConditionalPut(ctx context.Context, key string, data []byte, etag string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := os.ReadFile(l.fullPath(key))
	switch {
	case os.IsNotExist(err):
		if etag != "" {
			return "", ErrPreconditionFailed
		}
	case err != nil:
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	default:
		if etag == "" || etagOf(current) != etag {
			return "", ErrPreconditionFailed
		}
	}
	return l.write(key, data)
}

// ListObjects returns all keys under prefix.
func (l *LocalStorage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var objects []string
	err := filepath.Walk(l.fullPath(prefix), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil // prefix doesn't exist, return empty list
			}
			return err
		}
		if info.IsDir() || filepath.Ext(path) == ".tmp" {
			return nil
		}
		rel, err := filepath.Rel(l.basePath, path)
		if err != nil {
			return err
		}
		objects = append(objects, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(objects)
	return objects, nil
}

func (l *LocalStorage) fullPath(key string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(key))
}

func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
