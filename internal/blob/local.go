package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore serves files below root. Paths that escape root are refused.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve local root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create local root: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

func (l *LocalStore) resolve(name string) (string, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(l.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the local root", name)
	}
	return path, nil
}

func (l *LocalStore) Open(name string) (io.ReadCloser, error) {
	path, err := l.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: file://%s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (l *LocalStore) Put(key string, body io.Reader) (string, error) {
	path, err := l.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return "file://" + path, nil
}
