package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var ErrInvalidObjectName = errors.New("invalid object name")

// ObjectInfo describes a stored object
type ObjectInfo struct {
	Name       string
	Size       int64
	ModifiedAt time.Time
}

// Storage defines the interface for blob storage backends
type Storage interface {
	// Put stores the object and returns its public URL.
	Put(ctx context.Context, objectName, contentType string, reader io.Reader) (string, error)
	Get(ctx context.Context, objectName string) (io.ReadCloser, error)
	// Delete removes the object. Missing objects are not an error.
	Delete(ctx context.Context, objectName string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	URL(objectName string) string
	// ObjectName resolves a URL produced by URL back to its object name.
	ObjectName(url string) (string, bool)
}

// LocalStorage implements Storage using local filesystem
type LocalStorage struct {
	baseDir string
	baseURL string
}

var _ Storage = (*LocalStorage)(nil)

// NewLocalStorage creates a new local filesystem storage backend. Objects are
// served under baseURL + "/files/".
func NewLocalStorage(baseDir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalStorage{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (s *LocalStorage) BaseDir() string {
	return s.baseDir
}

func cleanName(objectName string) (string, error) {
	name := path.Clean("/" + objectName)[1:]
	if name == "" || name != strings.TrimPrefix(objectName, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidObjectName, objectName)
	}
	return name, nil
}

func (s *LocalStorage) fullPath(objectName string) (string, error) {
	name, err := cleanName(objectName)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(name)), nil
}

func (s *LocalStorage) URL(objectName string) string {
	return fmt.Sprintf("%s/files/%s", s.baseURL, objectName)
}

func (s *LocalStorage) ObjectName(url string) (string, bool) {
	prefix := s.baseURL + "/files/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	name, err := cleanName(strings.TrimPrefix(url, prefix))
	if err != nil {
		return "", false
	}
	return name, true
}

func (s *LocalStorage) Put(ctx context.Context, objectName, contentType string, reader io.Reader) (string, error) {
	fullPath, err := s.fullPath(objectName)
	if err != nil {
		return "", err
	}

	// Create directory if needed
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, readerWithContext(ctx, reader)); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return s.URL(objectName), nil
}

func (s *LocalStorage) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	fullPath, err := s.fullPath(objectName)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

func (s *LocalStorage) Delete(ctx context.Context, objectName string) error {
	fullPath, err := s.fullPath(objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *LocalStorage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	err := filepath.WalkDir(s.baseDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{Name: name, Size: info.Size(), ModifiedAt: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	return objects, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
