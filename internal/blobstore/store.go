// Package blobstore keeps bucketed objects on the local filesystem.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const maxDownloadBytes = 32 << 20

var (
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("blobstore: object not found")
	// ErrInvalidKey is returned for empty keys or keys escaping their bucket.
	ErrInvalidKey = errors.New("blobstore: invalid bucket or key")
)

// Store writes objects beneath root/<bucket>/<key>.
type Store struct {
	root string
	http *http.Client
}

// New creates root if needed and returns a store rooted there.
func New(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("blobstore: root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create root: %w", err)
	}
	return &Store{root: root, http: &http.Client{Timeout: 30 * time.Second}}, nil
}

// Put stores data and returns the object path "<bucket>/<key>". The content
// type is accepted for API parity with hosted stores and not persisted.
func (s *Store) Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	target, objectPath, err := s.resolve(bucket, key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("blobstore: create bucket dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("blobstore: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("blobstore: write %s: %w", objectPath, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("blobstore: close %s: %w", objectPath, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("blobstore: commit %s: %w", objectPath, err)
	}
	return objectPath, nil
}

// Get reads an object.
func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	target, objectPath, err := s.resolve(bucket, key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, objectPath)
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: read %s: %w", objectPath, err)
	}
	return data, nil
}

// Exists reports whether an object is stored.
func (s *Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	target, _, err := s.resolve(bucket, key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(target)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("blobstore: stat: %w", err)
	}
}

// PutFromURL downloads url and stores the body under bucket/key.
func (s *Store) PutFromURL(ctx context.Context, bucket, key, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("blobstore: build download request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("blobstore: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("blobstore: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return "", fmt.Errorf("blobstore: read download: %w", err)
	}
	return s.Put(ctx, bucket, key, data, resp.Header.Get("Content-Type"))
}

// FileSystem exposes a bucket for read-only serving.
func (s *Store) FileSystem(bucket string) (http.FileSystem, error) {
	if !validSegment(bucket) {
		return nil, ErrInvalidKey
	}
	return http.Dir(filepath.Join(s.root, bucket)), nil
}

func (s *Store) resolve(bucket, key string) (string, string, error) {
	if !validSegment(bucket) {
		return "", "", ErrInvalidKey
	}
	cleaned := path.Clean("/" + strings.TrimSpace(key))
	if cleaned == "/" || strings.Contains(key, "..") {
		return "", "", ErrInvalidKey
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	return filepath.Join(s.root, bucket, filepath.FromSlash(cleaned)), bucket + "/" + cleaned, nil
}

func validSegment(bucket string) bool {
	return bucket != "" && bucket != "." && bucket != ".." && !strings.ContainsAny(bucket, `/\`)
}
